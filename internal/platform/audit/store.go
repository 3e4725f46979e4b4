// Package audit records who changed what through the API.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bloodlink/bloodlink/internal/platform/db"
)

// Entry is one row of audit_log.
type Entry struct {
	ID         uuid.UUID `json:"id"`
	ActorEmail string    `json:"actor_email"`
	ActorRole  string    `json:"actor_role"`
	Action     string    `json:"action"` // create, update, delete, transition
	Resource   string    `json:"resource"`
	HN         string    `json:"hn,omitempty"`
	Method     string    `json:"method"`
	Path       string    `json:"path"`
	StatusCode int       `json:"status_code"`
	IPAddress  string    `json:"ip_address"`
	RequestID  string    `json:"request_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type Store interface {
	Insert(ctx context.Context, e *Entry) error
	Recent(ctx context.Context, limit int) ([]*Entry, error)
}

type storePG struct{ pool *pgxpool.Pool }

func NewStorePG(pool *pgxpool.Pool) Store {
	return &storePG{pool: pool}
}

func (s *storePG) Insert(ctx context.Context, e *Entry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := db.Conn(ctx, s.pool).Exec(ctx, `
		INSERT INTO audit_log (id, actor_email, actor_role, action, resource, hn,
			method, path, status_code, ip_address, request_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		e.ID, e.ActorEmail, e.ActorRole, e.Action, e.Resource, e.HN,
		e.Method, e.Path, e.StatusCode, e.IPAddress, e.RequestID, e.CreatedAt)
	return err
}

func (s *storePG) Recent(ctx context.Context, limit int) ([]*Entry, error) {
	rows, err := db.Conn(ctx, s.pool).Query(ctx, `
		SELECT id, actor_email, actor_role, action, resource, hn,
			method, path, status_code, ip_address, request_id, created_at
		FROM audit_log ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.ActorEmail, &e.ActorRole, &e.Action, &e.Resource, &e.HN,
			&e.Method, &e.Path, &e.StatusCode, &e.IPAddress, &e.RequestID, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
