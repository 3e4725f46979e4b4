package patient

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bloodlink/bloodlink/internal/domain/process"
	"github.com/bloodlink/bloodlink/internal/platform/db"
	"github.com/bloodlink/bloodlink/pkg/apperr"
)

// =========== Patient Repository ===========

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

const patientCols = `hn, name, surname, gender, age, blood_type, disease, allergies, medication,
	latest_receipt, test_type, status, process, appointment_date, appointment_time,
	creator_email, version, created_at, updated_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.HN, &p.Name, &p.Surname, &p.Gender, &p.Age, &p.BloodType,
		&p.Disease, &p.Allergies, &p.Medication, &p.LatestReceipt, &p.TestType,
		&p.Status, &p.Process, &p.AppointmentDate, &p.AppointmentTime,
		&p.CreatorEmail, &p.Version, &p.CreatedAt, &p.UpdatedAt)
	return &p, err
}

func notFound(hn string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound("patient_not_found", "patient HN %s not found", hn)
	}
	return err
}

func (r *repoPG) Create(ctx context.Context, p *Patient) error {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO patient (hn, name, surname, gender, age, blood_type, disease, allergies,
			medication, latest_receipt, test_type, status, process, appointment_date,
			appointment_time, creator_email, version)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
		RETURNING created_at, updated_at`,
		p.HN, p.Name, p.Surname, p.Gender, p.Age, p.BloodType, p.Disease, p.Allergies,
		p.Medication, p.LatestReceipt, p.TestType, p.Status, p.Process, p.AppointmentDate,
		p.AppointmentTime, p.CreatorEmail, p.Version,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if db.IsUniqueViolation(err) {
		return DuplicateHN(p.HN)
	}
	return err
}

// DuplicateHN is the conflict reported when an HN is already registered.
func DuplicateHN(hn string) error {
	return apperr.Conflict("duplicate_hn", "HN %s มีในระบบแล้ว", hn)
}

func (r *repoPG) GetByHN(ctx context.Context, hn string) (*Patient, error) {
	p, err := scanPatient(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+patientCols+` FROM patient WHERE hn = $1`, hn))
	return p, notFound(hn, err)
}

func (r *repoPG) GetForUpdate(ctx context.Context, hn string) (*Patient, error) {
	if db.TxFromContext(ctx) == nil {
		return nil, fmt.Errorf("GetForUpdate requires a transaction")
	}
	p, err := scanPatient(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+patientCols+` FROM patient WHERE hn = $1 FOR UPDATE`, hn))
	return p, notFound(hn, err)
}

func (r *repoPG) Exists(ctx context.Context, hn string) (bool, error) {
	var ok bool
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM patient WHERE hn = $1)`, hn).Scan(&ok)
	return ok, err
}

func (r *repoPG) Update(ctx context.Context, p *Patient) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE patient SET name=$2, surname=$3, gender=$4, age=$5, blood_type=$6, disease=$7,
			allergies=$8, medication=$9, latest_receipt=$10, test_type=$11, status=$12,
			updated_at=NOW()
		WHERE hn = $1`,
		p.HN, p.Name, p.Surname, p.Gender, p.Age, p.BloodType, p.Disease, p.Allergies,
		p.Medication, p.LatestReceipt, p.TestType, p.Status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return notFound(p.HN, pgx.ErrNoRows)
	}
	return nil
}

func (r *repoPG) SetProcess(ctx context.Context, p *Patient) error {
	return db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE patient SET process=$2, appointment_date=$3, appointment_time=$4, version=$5,
			updated_at=NOW()
		WHERE hn = $1
		RETURNING updated_at`,
		p.HN, p.Process, p.AppointmentDate, p.AppointmentTime, p.Version,
	).Scan(&p.UpdatedAt)
}

func (r *repoPG) Delete(ctx context.Context, hn string) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM patient WHERE hn = $1`, hn)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return notFound(hn, pgx.ErrNoRows)
	}
	return nil
}

func buildWhere(f Filter) (string, []any) {
	var clauses []string
	var args []any
	add := func(clause string, v any) {
		args = append(args, v)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}

	if f.Process != "" {
		add("process = $%d", f.Process)
	}
	if f.Bucket != "" {
		states := process.InBucket(f.Bucket)
		names := make([]string, len(states))
		for i, s := range states {
			names[i] = string(s)
		}
		add("process = ANY($%d)", names)
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if f.Search != "" {
		args = append(args, f.Search)
		n := len(args)
		clauses = append(clauses, fmt.Sprintf(
			"(hn LIKE $%d || '%%' OR name ILIKE '%%' || $%d || '%%' OR surname ILIKE '%%' || $%d || '%%')", n, n, n))
	}
	if f.ResponsibleEmail != "" {
		add("hn IN (SELECT hn FROM patient_responsibility WHERE lower(staff_email) = lower($%d))", f.ResponsibleEmail)
	}

	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (r *repoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*Patient, int, error) {
	q := db.Conn(ctx, r.pool)
	where, args := buildWhere(f)

	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM patient`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	rows, err := q.Query(ctx, fmt.Sprintf(`SELECT `+patientCols+` FROM patient%s
		ORDER BY updated_at DESC, hn LIMIT $%d OFFSET $%d`, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	items := []*Patient{}
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

// =========== Lab Test Repository ===========

type labTestRepoPG struct{ pool *pgxpool.Pool }

func NewLabTestRepoPG(pool *pgxpool.Pool) LabTestRepository {
	return &labTestRepoPG{pool: pool}
}

const labTestCols = `id, hn, results, note, recorded_by, created_at, updated_at`

func scanLabTest(row pgx.Row) (*LabTest, error) {
	var t LabTest
	err := row.Scan(&t.ID, &t.HN, &t.Results, &t.Note, &t.RecordedBy, &t.CreatedAt, &t.UpdatedAt)
	return &t, err
}

func (r *labTestRepoPG) Append(ctx context.Context, t *LabTest) error {
	t.ID = uuid.New()
	if t.Results == nil {
		t.Results = map[string]Result{}
	}
	return db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO lab_test (id, hn, results, note, recorded_by)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING created_at, updated_at`,
		t.ID, t.HN, t.Results, t.Note, t.RecordedBy,
	).Scan(&t.CreatedAt, &t.UpdatedAt)
}

func (r *labTestRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*LabTest, error) {
	t, err := scanLabTest(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+labTestCols+` FROM lab_test WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("lab_test_not_found", "lab test %s not found", id)
	}
	return t, err
}

func (r *labTestRepoPG) Update(ctx context.Context, t *LabTest) error {
	return db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE lab_test SET results=$2, note=$3, recorded_by=$4, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		t.ID, t.Results, t.Note, t.RecordedBy,
	).Scan(&t.UpdatedAt)
}

func (r *labTestRepoPG) ListByHN(ctx context.Context, hn string) ([]*LabTest, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx,
		`SELECT `+labTestCols+` FROM lab_test WHERE hn = $1 ORDER BY created_at DESC`, hn)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []*LabTest{}
	for rows.Next() {
		t, err := scanLabTest(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	return items, rows.Err()
}

// =========== Process Event Repository ===========

type eventRepoPG struct{ pool *pgxpool.Pool }

func NewEventRepoPG(pool *pgxpool.Pool) EventRepository {
	return &eventRepoPG{pool: pool}
}

func (r *eventRepoPG) Append(ctx context.Context, e *Event) error {
	e.ID = uuid.New()
	return db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO process_event (id, hn, from_process, to_process, actor_email, note)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING created_at`,
		e.ID, e.HN, e.From, e.To, e.ActorEmail, e.Note,
	).Scan(&e.CreatedAt)
}

func (r *eventRepoPG) ListByHN(ctx context.Context, hn string) ([]*Event, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT id, hn, from_process, to_process, actor_email, note, created_at
		FROM process_event WHERE hn = $1 ORDER BY created_at`, hn)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []*Event{}
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.HN, &e.From, &e.To, &e.ActorEmail, &e.Note, &e.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, &e)
	}
	return items, rows.Err()
}
