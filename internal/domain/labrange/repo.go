package labrange

import "context"

type Repository interface {
	List(ctx context.Context) ([]*Range, error)
	Upsert(ctx context.Context, r *Range) error
}
