package patient

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bloodlink/bloodlink/internal/domain/access"
	"github.com/bloodlink/bloodlink/internal/platform/cache"
	"github.com/bloodlink/bloodlink/pkg/apperr"
)

// Responsibility answers who is accountable for a patient.
type Responsibility interface {
	IsResponsible(ctx context.Context, hn, email string) (bool, error)
	ResponsibleEmails(ctx context.Context, hn string) ([]string, error)
}

const listCachePrefix = "patients:list:"

type Service struct {
	patients Repository
	labs     LabTestRepository
	events   EventRepository
	resp     Responsibility
	kv       cache.KV
	ttl      time.Duration
	logger   zerolog.Logger
}

func NewService(
	patients Repository,
	labs LabTestRepository,
	events EventRepository,
	resp Responsibility,
	kv cache.KV,
	ttl time.Duration,
	logger zerolog.Logger,
) *Service {
	if kv == nil {
		kv = cache.NopKV{}
	}
	return &Service{
		patients: patients,
		labs:     labs,
		events:   events,
		resp:     resp,
		kv:       kv,
		ttl:      ttl,
		logger:   logger.With().Str("component", "patient").Logger(),
	}
}

// -- Patients --

func (s *Service) Create(ctx context.Context, p *Patient, actor access.Actor) error {
	if !access.CanAddPatient(actor.Role) {
		return apperr.Forbidden("add_patient_denied", "role %q cannot register patients", actor.Role)
	}
	p.HN = strings.TrimSpace(p.HN)
	if err := ValidateHN(p.HN); err != nil {
		return err
	}
	p.Name = strings.TrimSpace(p.Name)
	p.Surname = strings.TrimSpace(p.Surname)
	if p.Name == "" || p.Surname == "" {
		return apperr.InvalidState("name_required", "name and surname are required")
	}
	if p.Status != "" {
		st, ok := ParseStatus(p.Status)
		if !ok {
			return apperr.InvalidState("invalid_status", "invalid status: %s", p.Status)
		}
		p.Status = st
	}
	p.Disease = cleanList(p.Disease)
	p.Allergies = cleanList(p.Allergies)
	// New records always start the workflow from the beginning.
	p.Process = ""
	p.applyDefaults()
	p.CreatorEmail = actor.Email

	if err := s.patients.Create(ctx, p); err != nil {
		return err
	}
	s.InvalidateList(ctx)
	return nil
}

// Get returns the patient with its responsible staff filled in.
func (s *Service) Get(ctx context.Context, hn string) (*Patient, error) {
	if err := ValidateHN(hn); err != nil {
		return nil, err
	}
	p, err := s.patients.GetByHN(ctx, hn)
	if err != nil {
		return nil, err
	}
	emails, err := s.resp.ResponsibleEmails(ctx, hn)
	if err != nil {
		return nil, fmt.Errorf("load responsible staff: %w", err)
	}
	p.ResponsibleEmails = emails
	return p, nil
}

type listPage struct {
	Items []*Patient `json:"items"`
	Total int        `json:"total"`
}

// List serves the unfiltered listing from cache when possible.
func (s *Service) List(ctx context.Context, f Filter, limit, offset int) ([]*Patient, int, error) {
	if !f.IsZero() {
		return s.patients.List(ctx, f, limit, offset)
	}

	key := fmt.Sprintf("%s%d:%d", listCachePrefix, limit, offset)
	var page listPage
	hit, err := cache.GetJSON(ctx, s.kv, key, &page)
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("patient cache read failed")
	}
	if hit {
		return page.Items, page.Total, nil
	}

	items, total, err := s.patients.List(ctx, f, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	if err := cache.SetJSON(ctx, s.kv, key, listPage{Items: items, Total: total}, s.ttl); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("patient cache write failed")
	}
	return items, total, nil
}

// InvalidateList drops cached listings after any patient write.
func (s *Service) InvalidateList(ctx context.Context) {
	if err := s.kv.DeletePrefix(ctx, listCachePrefix); err != nil {
		s.logger.Warn().Err(err).Msg("patient cache invalidation failed")
	}
}

func (s *Service) Update(ctx context.Context, hn string, u Update, actor access.Actor) (*Patient, error) {
	p, err := s.Get(ctx, hn)
	if err != nil {
		return nil, err
	}
	responsible := containsFold(p.ResponsibleEmails, actor.Email)
	if !access.CanEditPatient(actor.Role, responsible) {
		return nil, apperr.Forbidden("edit_patient_denied",
			"only an admin or a responsible doctor/nurse can edit patient %s", hn)
	}
	if err := u.apply(p); err != nil {
		return nil, err
	}
	if err := s.patients.Update(ctx, p); err != nil {
		return nil, err
	}
	s.InvalidateList(ctx)
	return p, nil
}

// Delete removes a patient. Doctors and nurses may delete records they
// created or are responsible for.
func (s *Service) Delete(ctx context.Context, hn string, actor access.Actor) error {
	p, err := s.Get(ctx, hn)
	if err != nil {
		return err
	}
	owner := strings.EqualFold(p.CreatorEmail, actor.Email) || containsFold(p.ResponsibleEmails, actor.Email)
	if !access.CanDeletePatient(actor.Role, owner) {
		return apperr.Forbidden("delete_patient_denied",
			"only an admin or the patient's owner can delete patient %s", hn)
	}
	if err := s.patients.Delete(ctx, hn); err != nil {
		return err
	}
	s.InvalidateList(ctx)
	return nil
}

// Exists is used by the responsibility registry.
func (s *Service) Exists(ctx context.Context, hn string) (bool, error) {
	return s.patients.Exists(ctx, hn)
}

func (s *Service) History(ctx context.Context, hn string) ([]*Event, error) {
	if err := s.mustExist(ctx, hn); err != nil {
		return nil, err
	}
	return s.events.ListByHN(ctx, hn)
}

// -- Lab tests --

func (s *Service) LabTests(ctx context.Context, hn string) ([]*LabTest, error) {
	if err := s.mustExist(ctx, hn); err != nil {
		return nil, err
	}
	return s.labs.ListByHN(ctx, hn)
}

// RecordLabResult appends a new lab record for the patient's current visit.
func (s *Service) RecordLabResult(ctx context.Context, hn string, results map[string]Result, note string, actor access.Actor) (*LabTest, error) {
	if !access.CanEditLab(actor.Role) {
		return nil, apperr.Forbidden("edit_lab_denied", "role %q cannot record lab results", actor.Role)
	}
	if err := ValidateResults(results); err != nil {
		return nil, err
	}
	if err := s.mustExist(ctx, hn); err != nil {
		return nil, err
	}
	t := &LabTest{HN: hn, Results: results, Note: note, RecordedBy: actor.Email}
	if err := s.labs.Append(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// UpdateLabResult overwrites the given analytes on an existing record.
func (s *Service) UpdateLabResult(ctx context.Context, id uuid.UUID, results map[string]Result, note *string, actor access.Actor) (*LabTest, error) {
	if !access.CanEditLab(actor.Role) {
		return nil, apperr.Forbidden("edit_lab_denied", "role %q cannot edit lab results", actor.Role)
	}
	if err := ValidateResults(results); err != nil {
		return nil, err
	}
	t, err := s.labs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.Results == nil {
		t.Results = map[string]Result{}
	}
	for k, v := range results {
		t.Results[k] = v
	}
	if note != nil {
		t.Note = *note
	}
	t.RecordedBy = actor.Email
	if err := s.labs.Update(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Service) mustExist(ctx context.Context, hn string) error {
	if err := ValidateHN(hn); err != nil {
		return err
	}
	ok, err := s.patients.Exists(ctx, hn)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.NotFound("patient_not_found", "patient HN %s not found", hn)
	}
	return nil
}

func containsFold(list []string, s string) bool {
	if s == "" {
		return false
	}
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
