package responsibility

import "context"

type Repository interface {
	// Add inserts the pair and reports whether a row was created; an
	// existing pair is left alone.
	Add(ctx context.Context, hn, email, assignedBy string) (bool, error)
	Remove(ctx context.Context, hn, email string) (bool, error)
	List(ctx context.Context, hn string) ([]*Assignment, error)
	Exists(ctx context.Context, hn, email string) (bool, error)
	Emails(ctx context.Context, hn string) ([]string, error)
	// HNsForStaff lists the patients a staff member is responsible for.
	HNsForStaff(ctx context.Context, email string) ([]string, error)
}
