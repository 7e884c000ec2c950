package storage

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/asif-mahmud/medisched/libs/db"
	"github.com/asif-mahmud/medisched/services/appointment-service/internal/directory"
)

// DoctorCacheRepository stores the doctor replica fed by directory events.
// It backs read enrichment when the doctor directory is unreachable; it is
// never consulted for booking existence checks.
type DoctorCacheRepository struct {
	pool *db.Pool
}

func NewDoctorCacheRepository(pool *db.Pool) *DoctorCacheRepository {
	return &DoctorCacheRepository{pool: pool}
}

func (r *DoctorCacheRepository) UpsertDoctor(ctx context.Context, ref directory.DoctorRef) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO doctor_refs (id, name, specialization, active, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			specialization = EXCLUDED.specialization,
			active = EXCLUDED.active,
			updated_at = now()
	`, ref.ID, ref.DisplayName, ref.Specialization, ref.Active)
	return err
}

func (r *DoctorCacheRepository) GetDoctor(ctx context.Context, id string) (directory.DoctorRef, bool, error) {
	var ref directory.DoctorRef
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, name, specialization, active
		FROM doctor_refs
		WHERE id = $1
	`, id).Scan(&ref.ID, &ref.DisplayName, &ref.Specialization, &ref.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return directory.DoctorRef{}, false, nil
	}
	if err != nil {
		return directory.DoctorRef{}, false, err
	}
	return ref, true, nil
}
