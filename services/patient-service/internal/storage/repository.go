package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/asif-mahmud/medisched/libs/db"
	"github.com/asif-mahmud/medisched/services/patient-service/internal/outbox"
)

var ErrNotFound = errors.New("patient not found")

type Patient struct {
	ID          string
	Name        string
	Email       string
	Phone       string
	Address     string
	DateOfBirth *time.Time
	Gender      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Repository struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewRepository(pool *db.Pool, outboxRepo *outbox.Repository) *Repository {
	return &Repository{pool: pool, outbox: outboxRepo}
}

const patientColumns = `
	id::text, name, email, phone, address, date_of_birth, gender, created_at, updated_at`

func scanPatient(row pgx.Row) (Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.Name, &p.Email, &p.Phone, &p.Address, &p.DateOfBirth, &p.Gender, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (r *Repository) Create(ctx context.Context, p Patient) (Patient, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Patient{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	p.ID = uuid.NewString()
	row := tx.QueryRow(ctx, `
		INSERT INTO patients (id, name, email, phone, address, date_of_birth, gender)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+patientColumns,
		p.ID, p.Name, p.Email, p.Phone, p.Address, p.DateOfBirth, p.Gender)
	created, err := scanPatient(row)
	if err != nil {
		return Patient{}, err
	}

	if err := r.outbox.Insert(ctx, tx, outbox.PatientUpserted(created.ID, created.Name, false)); err != nil {
		return Patient{}, err
	}
	return created, tx.Commit(ctx)
}

func (r *Repository) Get(ctx context.Context, id string) (Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+patientColumns+`
		FROM patients
		WHERE id = $1 AND NOT is_deleted
	`, id)
	p, err := scanPatient(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Patient{}, ErrNotFound
	}
	return p, err
}

func (r *Repository) List(ctx context.Context, limit int) ([]Patient, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+patientColumns+`
		FROM patients
		WHERE NOT is_deleted
		ORDER BY name ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *Repository) Update(ctx context.Context, p Patient) (Patient, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Patient{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `
		UPDATE patients
		SET name = $2,
			email = $3,
			phone = $4,
			address = $5,
			date_of_birth = $6,
			gender = $7,
			updated_at = now()
		WHERE id = $1 AND NOT is_deleted
		RETURNING `+patientColumns,
		p.ID, p.Name, p.Email, p.Phone, p.Address, p.DateOfBirth, p.Gender)
	updated, err := scanPatient(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Patient{}, ErrNotFound
	}
	if err != nil {
		return Patient{}, err
	}

	if err := r.outbox.Insert(ctx, tx, outbox.PatientUpserted(updated.ID, updated.Name, false)); err != nil {
		return Patient{}, err
	}
	return updated, tx.Commit(ctx)
}

func (r *Repository) SoftDelete(ctx context.Context, id string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `
		UPDATE patients
		SET is_deleted = TRUE, updated_at = now()
		WHERE id = $1 AND NOT is_deleted
		RETURNING `+patientColumns,
		id)
	deleted, err := scanPatient(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	if err := r.outbox.Insert(ctx, tx, outbox.PatientUpserted(deleted.ID, deleted.Name, true)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
