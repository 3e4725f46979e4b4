package responsibility

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bloodlink/bloodlink/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) Add(ctx context.Context, hn, email, assignedBy string) (bool, error) {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO patient_responsibility (hn, staff_email, assigned_by)
		VALUES ($1, $2, $3)
		ON CONFLICT (hn, staff_email) DO NOTHING`, hn, email, assignedBy)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *repoPG) Remove(ctx context.Context, hn, email string) (bool, error) {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx,
		`DELETE FROM patient_responsibility WHERE hn = $1 AND lower(staff_email) = lower($2)`, hn, email)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *repoPG) List(ctx context.Context, hn string) ([]*Assignment, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT pr.hn, pr.staff_email, pr.assigned_by, pr.assigned_at,
		       COALESCE(s.name, ''), COALESCE(s.surname, ''), COALESCE(s.role, ''), COALESCE(s.position, '')
		FROM patient_responsibility pr
		LEFT JOIN staff_account s ON s.email = pr.staff_email
		WHERE pr.hn = $1
		ORDER BY pr.assigned_at, pr.staff_email`, hn)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []*Assignment{}
	for rows.Next() {
		var a Assignment
		if err := rows.Scan(&a.HN, &a.StaffEmail, &a.AssignedBy, &a.AssignedAt,
			&a.Name, &a.Surname, &a.Role, &a.Position); err != nil {
			return nil, err
		}
		items = append(items, &a)
	}
	return items, rows.Err()
}

func (r *repoPG) Exists(ctx context.Context, hn, email string) (bool, error) {
	var ok bool
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM patient_responsibility
		               WHERE hn = $1 AND lower(staff_email) = lower($2))`, hn, email).Scan(&ok)
	return ok, err
}

func (r *repoPG) Emails(ctx context.Context, hn string) ([]string, error) {
	return r.strings(ctx,
		`SELECT staff_email FROM patient_responsibility WHERE hn = $1 ORDER BY assigned_at, staff_email`, hn)
}

func (r *repoPG) HNsForStaff(ctx context.Context, email string) ([]string, error) {
	return r.strings(ctx,
		`SELECT hn FROM patient_responsibility WHERE lower(staff_email) = lower($1) ORDER BY hn`, email)
}

func (r *repoPG) strings(ctx context.Context, sql string, arg string) ([]string, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, sql, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
