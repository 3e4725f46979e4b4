package responsibility

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/bloodlink/bloodlink/internal/domain/access"
	"github.com/bloodlink/bloodlink/internal/domain/patient"
	"github.com/bloodlink/bloodlink/internal/domain/staff"
	"github.com/bloodlink/bloodlink/internal/platform/telemetry"
	"github.com/bloodlink/bloodlink/pkg/apperr"
)

// StaffDirectory resolves staff accounts by email.
type StaffDirectory interface {
	Get(ctx context.Context, email string) (*staff.Account, error)
}

// PatientLookup checks that a patient record exists.
type PatientLookup interface {
	Exists(ctx context.Context, hn string) (bool, error)
}

// Registry maintains which staff are accountable for which patients.
// Responsibility is always explicit: creating a patient does not make the
// creator responsible.
type Registry struct {
	repo     Repository
	staff    StaffDirectory
	patients PatientLookup
	metrics  *telemetry.TelemetryProvider
	logger   zerolog.Logger
}

func NewRegistry(repo Repository, staff StaffDirectory, patients PatientLookup,
	metrics *telemetry.TelemetryProvider, logger zerolog.Logger) *Registry {
	return &Registry{
		repo:     repo,
		staff:    staff,
		patients: patients,
		metrics:  metrics,
		logger:   logger.With().Str("component", "responsibility").Logger(),
	}
}

func (r *Registry) IsResponsible(ctx context.Context, hn, email string) (bool, error) {
	if email == "" {
		return false, nil
	}
	return r.repo.Exists(ctx, hn, email)
}

// ResponsibleEmails returns the recipients for status notifications.
func (r *Registry) ResponsibleEmails(ctx context.Context, hn string) ([]string, error) {
	return r.repo.Emails(ctx, hn)
}

func (r *Registry) List(ctx context.Context, hn string) ([]*Assignment, error) {
	if err := patient.ValidateHN(hn); err != nil {
		return nil, err
	}
	return r.repo.List(ctx, hn)
}

// PatientsFor lists the HNs email is responsible for. Only admins may look
// at another account's caseload.
func (r *Registry) PatientsFor(ctx context.Context, email string, actor access.Actor) ([]string, error) {
	if !actor.IsAdmin() {
		return nil, apperr.Forbidden("admin_only", "only an admin can list a staff member's patients")
	}
	account, err := r.staff.Get(ctx, strings.TrimSpace(email))
	if err != nil {
		return nil, err
	}
	return r.repo.HNsForStaff(ctx, account.Email)
}

// canManage reports whether actor may change hn's responsible list. A
// doctor or nurse may also claim a patient that nobody is responsible for
// yet, but only for themselves.
func (r *Registry) canManage(ctx context.Context, hn, target string, actor access.Actor) (bool, error) {
	if actor.IsAdmin() {
		return true, nil
	}
	responsible, err := r.IsResponsible(ctx, hn, actor.Email)
	if err != nil {
		return false, err
	}
	if access.CanManageStaff(actor.Role, responsible) {
		return true, nil
	}
	if access.IsDoctorOrNurse(actor.Role) && strings.EqualFold(target, actor.Email) {
		emails, err := r.repo.Emails(ctx, hn)
		if err != nil {
			return false, err
		}
		return len(emails) == 0, nil
	}
	return false, nil
}

// Add makes target responsible for hn. Adding an existing pair is a no-op
// and reports added=false.
func (r *Registry) Add(ctx context.Context, hn, target string, actor access.Actor) (bool, error) {
	if err := patient.ValidateHN(hn); err != nil {
		return false, err
	}
	target = strings.TrimSpace(target)
	if target == "" {
		return false, apperr.InvalidState("email_required", "target email is required")
	}

	ok, err := r.canManage(ctx, hn, target, actor)
	if err != nil {
		return false, fmt.Errorf("check responsibility: %w", err)
	}
	if !ok {
		return false, apperr.Forbidden("manage_staff_denied",
			"only an admin or responsible staff can change who is responsible for patient %s", hn)
	}

	account, err := r.staff.Get(ctx, target)
	if err != nil {
		return false, err
	}
	exists, err := r.patients.Exists(ctx, hn)
	if err != nil {
		return false, fmt.Errorf("check patient: %w", err)
	}
	if !exists {
		return false, apperr.NotFound("patient_not_found", "patient HN %s not found", hn)
	}

	added, err := r.repo.Add(ctx, hn, account.Email, actor.Email)
	if err != nil {
		return false, fmt.Errorf("add responsible: %w", err)
	}
	if added {
		r.logger.Info().Str("hn", hn).Str("staff", account.Email).Str("by", actor.Email).Msg("responsible staff added")
	}
	return added, nil
}

// Remove drops target from hn. Only an admin may remove someone else.
func (r *Registry) Remove(ctx context.Context, hn, target string, actor access.Actor) error {
	if err := patient.ValidateHN(hn); err != nil {
		return err
	}
	if !actor.IsAdmin() && !strings.EqualFold(target, actor.Email) {
		return apperr.Forbidden("remove_other_denied", "you can only remove yourself from patient %s", hn)
	}

	removed, err := r.repo.Remove(ctx, hn, target)
	if err != nil {
		return fmt.Errorf("remove responsible: %w", err)
	}
	if !removed {
		return apperr.NotFound("assignment_not_found", "%s is not responsible for patient %s", target, hn)
	}
	r.logger.Info().Str("hn", hn).Str("staff", target).Str("by", actor.Email).Msg("responsible staff removed")
	return nil
}

// BulkAssign makes target responsible for each HN independently. A failure
// on one HN is recorded and the rest are still processed.
func (r *Registry) BulkAssign(ctx context.Context, hns []string, target string, actor access.Actor) (*BulkResult, error) {
	if !access.CanBulkAssign(actor.Role) {
		return nil, apperr.Forbidden("bulk_assign_denied", "role %q cannot bulk-assign responsibility", actor.Role)
	}
	if len(hns) == 0 {
		return nil, apperr.InvalidState("no_patients", "no patients provided")
	}
	if strings.TrimSpace(target) == "" {
		return nil, apperr.InvalidState("email_required", "no staff email provided")
	}
	account, err := r.staff.Get(ctx, strings.TrimSpace(target))
	if err != nil {
		return nil, err
	}

	res := &BulkResult{Errors: []ItemError{}}
	fail := func(hn, msg string) {
		res.Failed++
		res.Errors = append(res.Errors, ItemError{HN: hn, Message: msg})
	}

	for _, hn := range hns {
		hn = strings.TrimSpace(hn)
		if err := patient.ValidateHN(hn); err != nil {
			fail(hn, "invalid HN")
			continue
		}
		exists, err := r.patients.Exists(ctx, hn)
		if err != nil {
			r.logger.Error().Err(err).Str("hn", hn).Msg("bulk assign patient lookup failed")
			fail(hn, "database error")
			continue
		}
		if !exists {
			fail(hn, "patient not found")
			continue
		}
		if !actor.IsAdmin() {
			responsible, err := r.IsResponsible(ctx, hn, actor.Email)
			if err != nil {
				r.logger.Error().Err(err).Str("hn", hn).Msg("bulk assign responsibility check failed")
				fail(hn, "database error")
				continue
			}
			if !responsible {
				fail(hn, "not responsible for this patient")
				continue
			}
		}
		added, err := r.repo.Add(ctx, hn, account.Email, actor.Email)
		if err != nil {
			r.logger.Error().Err(err).Str("hn", hn).Msg("bulk assign insert failed")
			fail(hn, "database error")
			continue
		}
		if !added {
			fail(hn, "already assigned")
			continue
		}
		res.Success++
	}

	r.metrics.RecordBulkAssign(res.Success, res.Failed)
	r.logger.Info().
		Str("staff", account.Email).
		Str("by", actor.Email).
		Int("success", res.Success).
		Int("failed", res.Failed).
		Msg("bulk assign finished")
	return res, nil
}
