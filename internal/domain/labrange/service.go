package labrange

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/bloodlink/bloodlink/internal/domain/access"
	"github.com/bloodlink/bloodlink/internal/domain/patient"
	"github.com/bloodlink/bloodlink/pkg/apperr"
)

const maxUnitLen = 32

type Service struct {
	repo   Repository
	logger zerolog.Logger
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{repo: repo, logger: logger.With().Str("component", "labrange").Logger()}
}

// List returns one range per CBC analyte in panel order. Analytes nobody
// has configured yet come back with open bounds.
func (s *Service) List(ctx context.Context) ([]*Range, error) {
	stored, err := s.repo.List(ctx)
	if err != nil {
		return nil, apperr.Dependency("list lab ranges", err)
	}
	byKey := make(map[string]*Range, len(stored))
	for _, r := range stored {
		byKey[r.TestKey] = r
	}
	out := make([]*Range, 0, len(patient.Analytes))
	for _, key := range patient.Analytes {
		if r, ok := byKey[key]; ok {
			out = append(out, r)
			continue
		}
		out = append(out, &Range{TestKey: key, TestName: TestName(key)})
	}
	return out, nil
}

func (s *Service) Update(ctx context.Context, u Update, actor access.Actor) (*Range, error) {
	if !access.CanEditLab(actor.Role) {
		return nil, apperr.Forbidden("edit_lab_denied", "role %q cannot change lab reference ranges", actor.Role)
	}
	key := strings.ToLower(strings.TrimSpace(u.TestKey))
	if err := patient.ValidateResults(map[string]patient.Result{key: {}}); err != nil {
		return nil, err
	}
	if u.MinValue != nil && u.MaxValue != nil && *u.MinValue > *u.MaxValue {
		return nil, apperr.InvalidState("invalid_range",
			"min_value %g is greater than max_value %g for %s", *u.MinValue, *u.MaxValue, key)
	}
	unit := strings.TrimSpace(u.Unit)
	if len(unit) > maxUnitLen {
		return nil, apperr.InvalidState("unit_too_long", "unit must be at most %d characters", maxUnitLen)
	}

	r := &Range{
		TestKey:   key,
		TestName:  TestName(key),
		MinValue:  u.MinValue,
		MaxValue:  u.MaxValue,
		Unit:      unit,
		UpdatedBy: actor.Email,
	}
	if err := s.repo.Upsert(ctx, r); err != nil {
		return nil, apperr.Dependency("save lab range", err)
	}
	s.logger.Info().Str("test_key", key).Str("actor", actor.Email).Msg("lab range updated")
	return r, nil
}
