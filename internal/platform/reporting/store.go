package reporting

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bloodlink/bloodlink/internal/platform/db"
)

// TransitionCount is how many distinct patients moved to one process on
// one day.
type TransitionCount struct {
	Day     time.Time
	Process string
	Count   int
}

type Store interface {
	StaffRoles(ctx context.Context) ([]string, error)
	ProcessCounts(ctx context.Context) (map[string]int, error)
	DailyTransitions(ctx context.Context, from, to time.Time) ([]TransitionCount, error)
}

type storePG struct{ pool *pgxpool.Pool }

func NewStorePG(pool *pgxpool.Pool) Store {
	return &storePG{pool: pool}
}

// StaffRoles returns raw roles of approved accounts; role normalisation
// happens in Go so SQL and the permission layer cannot disagree.
func (s *storePG) StaffRoles(ctx context.Context) ([]string, error) {
	rows, err := db.Conn(ctx, s.pool).Query(ctx,
		`SELECT role FROM staff_account WHERE status <> 'disabled'`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, err
		}
		out = append(out, role)
	}
	return out, rows.Err()
}

func (s *storePG) ProcessCounts(ctx context.Context) (map[string]int, error) {
	rows, err := db.Conn(ctx, s.pool).Query(ctx,
		`SELECT process, COUNT(*) FROM patient GROUP BY process`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]int)
	for rows.Next() {
		var p string
		var n int
		if err := rows.Scan(&p, &n); err != nil {
			return nil, err
		}
		out[p] = n
	}
	return out, rows.Err()
}

// DailyTransitions groups the timeline by UTC day over [from, to).
func (s *storePG) DailyTransitions(ctx context.Context, from, to time.Time) ([]TransitionCount, error) {
	rows, err := db.Conn(ctx, s.pool).Query(ctx, `
		SELECT (created_at AT TIME ZONE 'UTC')::date AS day, to_process, COUNT(DISTINCT hn)
		FROM process_event
		WHERE created_at >= $1 AND created_at < $2
		GROUP BY 1, 2
		ORDER BY 1`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TransitionCount
	for rows.Next() {
		var tc TransitionCount
		if err := rows.Scan(&tc.Day, &tc.Process, &tc.Count); err != nil {
			return nil, err
		}
		out = append(out, tc)
	}
	return out, rows.Err()
}
