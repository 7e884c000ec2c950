package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/asif-mahmud/medisched/libs/db"
	"github.com/asif-mahmud/medisched/services/doctor-service/internal/outbox"
)

var ErrNotFound = errors.New("doctor not found")

type Doctor struct {
	ID             string
	Name           string
	Specialization string
	Email          string
	Phone          string
	Active         bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Repository persists doctor records. Every write also queues a
// directory.doctor.upserted.v1 event in the same transaction so downstream
// replicas never observe a doctor the directory did not publish.
type Repository struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewRepository(pool *db.Pool, outboxRepo *outbox.Repository) *Repository {
	return &Repository{pool: pool, outbox: outboxRepo}
}

const doctorColumns = `
	id::text, name, specialization, email, phone, active, created_at, updated_at`

func scanDoctor(row pgx.Row) (Doctor, error) {
	var d Doctor
	err := row.Scan(&d.ID, &d.Name, &d.Specialization, &d.Email, &d.Phone, &d.Active, &d.CreatedAt, &d.UpdatedAt)
	return d, err
}

func (r *Repository) Create(ctx context.Context, d Doctor) (Doctor, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Doctor{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	d.ID = uuid.NewString()
	row := tx.QueryRow(ctx, `
		INSERT INTO doctors (id, name, specialization, email, phone, active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+doctorColumns,
		d.ID, d.Name, d.Specialization, d.Email, d.Phone, d.Active)
	created, err := scanDoctor(row)
	if err != nil {
		return Doctor{}, err
	}

	evt := outbox.DoctorUpserted(created.ID, created.Name, created.Specialization, created.Active)
	if err := r.outbox.Insert(ctx, tx, evt); err != nil {
		return Doctor{}, err
	}
	return created, tx.Commit(ctx)
}

func (r *Repository) Get(ctx context.Context, id string) (Doctor, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+doctorColumns+`
		FROM doctors
		WHERE id = $1 AND NOT is_deleted
	`, id)
	d, err := scanDoctor(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Doctor{}, ErrNotFound
	}
	return d, err
}

func (r *Repository) List(ctx context.Context, limit int) ([]Doctor, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+doctorColumns+`
		FROM doctors
		WHERE NOT is_deleted
		ORDER BY name ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Doctor
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *Repository) Update(ctx context.Context, d Doctor) (Doctor, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Doctor{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `
		UPDATE doctors
		SET name = $2,
			specialization = $3,
			email = $4,
			phone = $5,
			active = $6,
			updated_at = now()
		WHERE id = $1 AND NOT is_deleted
		RETURNING `+doctorColumns,
		d.ID, d.Name, d.Specialization, d.Email, d.Phone, d.Active)
	updated, err := scanDoctor(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Doctor{}, ErrNotFound
	}
	if err != nil {
		return Doctor{}, err
	}

	evt := outbox.DoctorUpserted(updated.ID, updated.Name, updated.Specialization, updated.Active)
	if err := r.outbox.Insert(ctx, tx, evt); err != nil {
		return Doctor{}, err
	}
	return updated, tx.Commit(ctx)
}

// SoftDelete hides the doctor from the directory and publishes an inactive
// upsert so schedulers stop offering the calendar.
func (r *Repository) SoftDelete(ctx context.Context, id string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `
		UPDATE doctors
		SET is_deleted = TRUE, active = FALSE, updated_at = now()
		WHERE id = $1 AND NOT is_deleted
		RETURNING `+doctorColumns,
		id)
	deleted, err := scanDoctor(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	evt := outbox.DoctorUpserted(deleted.ID, deleted.Name, deleted.Specialization, false)
	if err := r.outbox.Insert(ctx, tx, evt); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
