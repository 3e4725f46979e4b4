package staff

import "context"

type Repository interface {
	GetByEmail(ctx context.Context, email string) (*Account, error)
	List(ctx context.Context, limit, offset int) ([]*Account, int, error)
	Search(ctx context.Context, query string, limit int) ([]*Account, error)
	Upsert(ctx context.Context, a *Account) error
	Update(ctx context.Context, a *Account) error
}
