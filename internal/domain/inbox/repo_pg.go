package inbox

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bloodlink/bloodlink/internal/platform/db"
	"github.com/bloodlink/bloodlink/pkg/apperr"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

const msgCols = `id, sender, receiver, subject, body, type, is_read, created_at`

func scanMessage(row pgx.Row) (*Message, error) {
	var m Message
	err := row.Scan(&m.ID, &m.Sender, &m.Receiver, &m.Subject, &m.Body, &m.Type, &m.IsRead, &m.CreatedAt)
	return &m, err
}

func notFound(id uuid.UUID) error {
	return apperr.NotFound("message_not_found", "message %s not found", id)
}

func (r *repoPG) Create(ctx context.Context, m *Message) error {
	m.ID = uuid.New()
	return db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO message (id, sender, receiver, subject, body, type, is_read)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`,
		m.ID, m.Sender, m.Receiver, m.Subject, m.Body, m.Type, m.IsRead,
	).Scan(&m.CreatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Message, error) {
	m, err := scanMessage(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+msgCols+` FROM message WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound(id)
	}
	return m, err
}

func (r *repoPG) List(ctx context.Context, receiver string, unreadOnly bool, limit, offset int) ([]*Message, int, error) {
	q := db.Conn(ctx, r.pool)
	where := ` WHERE lower(receiver) = lower($1)`
	if unreadOnly {
		where += ` AND NOT is_read`
	}

	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM message`+where, receiver).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := q.Query(ctx, `SELECT `+msgCols+` FROM message`+where+`
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`, receiver, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	items := []*Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, m)
	}
	return items, total, rows.Err()
}

func (r *repoPG) UnreadCount(ctx context.Context, receiver string) (int, error) {
	var n int
	err := db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT COUNT(*) FROM message WHERE lower(receiver) = lower($1) AND NOT is_read`, receiver).Scan(&n)
	return n, err
}

func (r *repoPG) SetRead(ctx context.Context, id uuid.UUID, read bool) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `UPDATE message SET is_read = $2 WHERE id = $1`, id, read)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return notFound(id)
	}
	return nil
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM message WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return notFound(id)
	}
	return nil
}
