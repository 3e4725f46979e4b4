package staff

import (
	"context"
	"fmt"
	"strings"

	"github.com/bloodlink/bloodlink/internal/domain/access"
	"github.com/bloodlink/bloodlink/pkg/apperr"
	"github.com/bloodlink/bloodlink/pkg/pagination"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Get(ctx context.Context, email string) (*Account, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, apperr.InvalidState("email_required", "email is required")
	}
	return s.repo.GetByEmail(ctx, email)
}

// Exists reports whether email belongs to a known staff account.
func (s *Service) Exists(ctx context.Context, email string) (bool, error) {
	_, err := s.Get(ctx, email)
	if apperr.IsKind(err, apperr.KindNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*Account, int, error) {
	return s.repo.List(ctx, limit, offset)
}

// ListStaff returns accounts whose role is one of the recognised roles,
// which are the only valid targets for responsibility.
func (s *Service) ListStaff(ctx context.Context, limit, offset int) ([]*Account, int, error) {
	all, _, err := s.repo.List(ctx, 1000, 0)
	if err != nil {
		return nil, 0, fmt.Errorf("list staff: %w", err)
	}
	var staff []*Account
	for _, a := range all {
		if a.Normalized().Valid() {
			staff = append(staff, a)
		}
	}
	start, end := pagination.Params{Limit: limit, Offset: offset}.Window(len(staff))
	return staff[start:end], len(staff), nil
}

func (s *Service) Search(ctx context.Context, query string) ([]*Account, error) {
	query = strings.TrimSpace(query)
	if len([]rune(query)) < 2 {
		return nil, apperr.InvalidState("query_too_short", "search query must be at least 2 characters")
	}
	return s.repo.Search(ctx, query, 20)
}

// Register records a staff account seen from the identity provider.
func (s *Service) Register(ctx context.Context, a *Account) error {
	a.Email = strings.TrimSpace(a.Email)
	if a.Email == "" {
		return apperr.InvalidState("email_required", "email is required")
	}
	if a.Status == "" {
		a.Status = StatusPending
	}
	return s.repo.Upsert(ctx, a)
}

// Update applies admin changes to role, status or position.
func (s *Service) Update(ctx context.Context, email string, u Update, actor access.Actor) (*Account, error) {
	if !actor.IsAdmin() {
		return nil, apperr.Forbidden("staff_update_denied", "only an admin can change staff accounts")
	}
	a, err := s.Get(ctx, email)
	if err != nil {
		return nil, err
	}
	if u.Status != nil {
		if !validStatuses[*u.Status] {
			return nil, apperr.InvalidState("invalid_staff_status", "invalid status: %s", *u.Status)
		}
		a.Status = *u.Status
	}
	if u.Role != nil {
		if !access.IsValidRole(*u.Role) {
			return nil, apperr.InvalidState("invalid_role", "role %q is not a recognised staff role", *u.Role)
		}
		a.Role = strings.TrimSpace(*u.Role)
	}
	if u.Position != nil {
		a.Position = strings.TrimSpace(*u.Position)
	}
	if err := s.repo.Update(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}
