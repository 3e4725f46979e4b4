package labrange

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bloodlink/bloodlink/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) List(ctx context.Context) ([]*Range, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT test_key, test_name, min_value, max_value, unit, updated_by, updated_at
		FROM lab_range ORDER BY test_key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Range
	for rows.Next() {
		var rg Range
		if err := rows.Scan(&rg.TestKey, &rg.TestName, &rg.MinValue, &rg.MaxValue, &rg.Unit,
			&rg.UpdatedBy, &rg.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, &rg)
	}
	return items, rows.Err()
}

func (r *repoPG) Upsert(ctx context.Context, rg *Range) error {
	return db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO lab_range (test_key, test_name, min_value, max_value, unit, updated_by, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,NOW())
		ON CONFLICT (test_key) DO UPDATE SET test_name=EXCLUDED.test_name,
			min_value=EXCLUDED.min_value, max_value=EXCLUDED.max_value, unit=EXCLUDED.unit,
			updated_by=EXCLUDED.updated_by, updated_at=NOW()
		RETURNING updated_at`,
		rg.TestKey, rg.TestName, rg.MinValue, rg.MaxValue, rg.Unit, rg.UpdatedBy).Scan(&rg.UpdatedAt)
}
