package patient

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, p *Patient) error
	GetByHN(ctx context.Context, hn string) (*Patient, error)
	// GetForUpdate locks the row until the surrounding transaction ends.
	GetForUpdate(ctx context.Context, hn string) (*Patient, error)
	Exists(ctx context.Context, hn string) (bool, error)
	Update(ctx context.Context, p *Patient) error
	// SetProcess persists process, appointment, version and updated_at.
	SetProcess(ctx context.Context, p *Patient) error
	Delete(ctx context.Context, hn string) error
	List(ctx context.Context, f Filter, limit, offset int) ([]*Patient, int, error)
}

type LabTestRepository interface {
	Append(ctx context.Context, t *LabTest) error
	GetByID(ctx context.Context, id uuid.UUID) (*LabTest, error)
	Update(ctx context.Context, t *LabTest) error
	ListByHN(ctx context.Context, hn string) ([]*LabTest, error)
}

type EventRepository interface {
	Append(ctx context.Context, e *Event) error
	ListByHN(ctx context.Context, hn string) ([]*Event, error)
}
