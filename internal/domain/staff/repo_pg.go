package staff

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bloodlink/bloodlink/internal/platform/db"
	"github.com/bloodlink/bloodlink/pkg/apperr"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

const accountCols = `email, name, surname, role, status, position, phone, created_at, updated_at`

func scanAccount(row pgx.Row) (*Account, error) {
	var a Account
	err := row.Scan(&a.Email, &a.Name, &a.Surname, &a.Role, &a.Status, &a.Position,
		&a.Phone, &a.CreatedAt, &a.UpdatedAt)
	return &a, err
}

func (r *repoPG) GetByEmail(ctx context.Context, email string) (*Account, error) {
	a, err := scanAccount(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+accountCols+` FROM staff_account WHERE lower(email) = lower($1)`, email))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("staff_not_found", "staff account %s not found", email)
	}
	return a, err
}

func (r *repoPG) List(ctx context.Context, limit, offset int) ([]*Account, int, error) {
	q := db.Conn(ctx, r.pool)
	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM staff_account`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := q.Query(ctx, `SELECT `+accountCols+` FROM staff_account ORDER BY name, email LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	items, err := collect(rows)
	return items, total, err
}

func (r *repoPG) Search(ctx context.Context, query string, limit int) ([]*Account, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT `+accountCols+` FROM staff_account
		WHERE email ILIKE '%' || $1 || '%' OR name ILIKE '%' || $1 || '%' OR surname ILIKE '%' || $1 || '%'
		ORDER BY name LIMIT $2`, query, limit)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (r *repoPG) Upsert(ctx context.Context, a *Account) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO staff_account (email, name, surname, role, status, position, phone)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (email) DO UPDATE SET name=EXCLUDED.name, surname=EXCLUDED.surname,
			role=EXCLUDED.role, position=EXCLUDED.position, phone=EXCLUDED.phone, updated_at=NOW()`,
		a.Email, a.Name, a.Surname, a.Role, a.Status, a.Position, a.Phone)
	return err
}

func (r *repoPG) Update(ctx context.Context, a *Account) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE staff_account SET role=$2, status=$3, position=$4, updated_at=NOW()
		WHERE email = $1`, a.Email, a.Role, a.Status, a.Position)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("staff_not_found", "staff account %s not found", a.Email)
	}
	return nil
}

func collect(rows pgx.Rows) ([]*Account, error) {
	defer rows.Close()
	var items []*Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}
