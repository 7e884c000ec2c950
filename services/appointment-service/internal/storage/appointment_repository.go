package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/asif-mahmud/medisched/libs/db"
	"github.com/asif-mahmud/medisched/services/appointment-service/internal/model"
	"github.com/asif-mahmud/medisched/services/appointment-service/internal/outbox"
	"github.com/asif-mahmud/medisched/services/appointment-service/internal/schedule"
)

var (
	// ErrNotFound covers missing and soft-deleted appointments alike.
	ErrNotFound = errors.New("appointment not found")
	// ErrConflict is a scheduling conflict: the candidate interval overlaps a
	// blocking appointment for the same doctor. Raised by the in-transaction
	// check in the common case and by the appointments_no_overlap exclusion
	// constraint (SQLSTATE 23P01) when a concurrent writer wins the race.
	ErrConflict = errors.New("scheduling conflict")
	// ErrInvalidTransition rejects lifecycle moves the state machine does not
	// allow, e.g. rescheduling a completed appointment.
	ErrInvalidTransition = errors.New("invalid appointment state transition")
)

// AppointmentRepository persists appointments and emits lifecycle events in
// the same transaction as the state change.
//
// The appointments table carries the doctor-calendar invariant itself:
//
//	EXCLUDE USING gist (
//	    doctor_id WITH =,
//	    tstzrange(appointment_date, appointment_date + make_interval(mins => duration)) WITH &&
//	) WHERE (status <> 'Cancelled' AND NOT is_deleted)
//
// so two racing writers cannot both commit overlapping intervals regardless
// of what the application-level check observed.
type AppointmentRepository struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewAppointmentRepository(pool *db.Pool, outboxRepo *outbox.Repository) *AppointmentRepository {
	return &AppointmentRepository{pool: pool, outbox: outboxRepo}
}

func IsConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23P01"
}

const appointmentColumns = `
	id::text, patient_id::text, doctor_id::text, appointment_date, duration,
	status, created_at, updated_at, is_deleted`

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var a model.Appointment
	var status string
	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.DoctorID,
		&a.AppointmentDate,
		&a.Duration,
		&status,
		&a.CreatedAt,
		&a.UpdatedAt,
		&a.IsDeleted,
	)
	if err != nil {
		return model.Appointment{}, err
	}
	a.Status = model.Status(status)
	return a, nil
}

// CreateScheduled inserts a new Scheduled appointment after re-checking the
// doctor's calendar inside the transaction. Read-check-write runs under the
// exclusion constraint, so a concurrent conflicting insert surfaces as
// ErrConflict rather than a silent double-booking.
func (r *AppointmentRepository) CreateScheduled(ctx context.Context, appt model.Appointment) (model.Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return model.Appointment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	busy, err := blockingIntervalsTx(ctx, tx, appt.DoctorID, appt.AppointmentDate, appt.End(), "")
	if err != nil {
		return model.Appointment{}, err
	}
	if schedule.ConflictsAny(appt.Interval(), busy) {
		return model.Appointment{}, ErrConflict
	}

	appt.ID = uuid.NewString()
	appt.Status = model.StatusScheduled
	appt.IsDeleted = false

	row := tx.QueryRow(ctx, `
		INSERT INTO appointments (id, patient_id, doctor_id, appointment_date, duration, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+appointmentColumns,
		appt.ID, appt.PatientID, appt.DoctorID, appt.AppointmentDate, appt.Duration, appt.Status.String())
	created, err := scanAppointment(row)
	if err != nil {
		if IsConflict(err) {
			return model.Appointment{}, ErrConflict
		}
		return model.Appointment{}, err
	}

	if err := r.outbox.Insert(ctx, tx, outbox.AppointmentEvent(outbox.EventAppointmentScheduled, created)); err != nil {
		return model.Appointment{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		if IsConflict(err) {
			return model.Appointment{}, ErrConflict
		}
		return model.Appointment{}, err
	}
	return created, nil
}

func (r *AppointmentRepository) Get(ctx context.Context, id string) (model.Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1 AND NOT is_deleted
	`, id)
	appt, err := scanAppointment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Appointment{}, ErrNotFound
	}
	return appt, err
}

func (r *AppointmentRepository) List(ctx context.Context, limit int) ([]model.Appointment, error) {
	if limit <= 0 {
		limit = 100
	}
	return r.queryMany(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE NOT is_deleted
		ORDER BY appointment_date ASC
		LIMIT $1
	`, limit)
}

// ListByDoctor returns the doctor's non-deleted appointments, optionally
// restricted to one calendar day.
func (r *AppointmentRepository) ListByDoctor(ctx context.Context, doctorID string, day *time.Time) ([]model.Appointment, error) {
	if day != nil {
		dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
		return r.queryMany(ctx, `
			SELECT `+appointmentColumns+`
			FROM appointments
			WHERE doctor_id = $1 AND NOT is_deleted
				AND appointment_date >= $2 AND appointment_date < $3
			ORDER BY appointment_date ASC
		`, doctorID, dayStart, dayStart.AddDate(0, 0, 1))
	}
	return r.queryMany(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1 AND NOT is_deleted
		ORDER BY appointment_date ASC
	`, doctorID)
}

func (r *AppointmentRepository) ListByPatient(ctx context.Context, patientID string) ([]model.Appointment, error) {
	return r.queryMany(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1 AND NOT is_deleted
		ORDER BY appointment_date ASC
	`, patientID)
}

// Reschedule applies a partial update. Interval changes require the current
// status to be Scheduled and re-run the conflict check with the appointment
// itself excluded; on rejection the stored interval is untouched. Status
// writes are rejected once the appointment is cancelled.
func (r *AppointmentRepository) Reschedule(ctx context.Context, id string, newDate *time.Time, newDuration *int, newStatus *model.Status) (model.Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return model.Appointment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1 AND NOT is_deleted
		FOR UPDATE
	`, id)
	current, err := scanAppointment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Appointment{}, ErrNotFound
	}
	if err != nil {
		return model.Appointment{}, err
	}

	next := current
	intervalChanged := false
	if newDate != nil {
		next.AppointmentDate = *newDate
		intervalChanged = true
	}
	if newDuration != nil {
		next.Duration = *newDuration
		intervalChanged = true
	}
	if intervalChanged {
		if current.Status != model.StatusScheduled {
			return model.Appointment{}, ErrInvalidTransition
		}
		busy, err := blockingIntervalsTx(ctx, tx, next.DoctorID, next.AppointmentDate, next.End(), id)
		if err != nil {
			return model.Appointment{}, err
		}
		if schedule.ConflictsAny(next.Interval(), busy) {
			return model.Appointment{}, ErrConflict
		}
	}
	if newStatus != nil {
		if current.Status == model.StatusCancelled {
			return model.Appointment{}, ErrInvalidTransition
		}
		next.Status = *newStatus
	}

	row = tx.QueryRow(ctx, `
		UPDATE appointments
		SET appointment_date = $2,
			duration = $3,
			status = $4,
			updated_at = now()
		WHERE id = $1
		RETURNING `+appointmentColumns,
		id, next.AppointmentDate, next.Duration, next.Status.String())
	updated, err := scanAppointment(row)
	if err != nil {
		if IsConflict(err) {
			return model.Appointment{}, ErrConflict
		}
		return model.Appointment{}, err
	}

	if err := r.outbox.Insert(ctx, tx, outbox.AppointmentEvent(outbox.EventAppointmentRescheduled, updated)); err != nil {
		return model.Appointment{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		if IsConflict(err) {
			return model.Appointment{}, ErrConflict
		}
		return model.Appointment{}, err
	}
	return updated, nil
}

// Cancel moves a Scheduled appointment to Cancelled, freeing its interval.
// Already-cancelled and soft-deleted appointments report ErrNotFound so that
// repeated cancels are idempotent from the caller's point of view.
func (r *AppointmentRepository) Cancel(ctx context.Context, id string) (model.Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return model.Appointment{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1 AND NOT is_deleted
		FOR UPDATE
	`, id)
	current, err := scanAppointment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Appointment{}, ErrNotFound
	}
	if err != nil {
		return model.Appointment{}, err
	}
	if current.Status == model.StatusCancelled {
		return model.Appointment{}, ErrNotFound
	}

	row = tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2, updated_at = now()
		WHERE id = $1
		RETURNING `+appointmentColumns,
		id, model.StatusCancelled.String())
	cancelled, err := scanAppointment(row)
	if err != nil {
		return model.Appointment{}, err
	}

	if err := r.outbox.Insert(ctx, tx, outbox.AppointmentEvent(outbox.EventAppointmentCancelled, cancelled)); err != nil {
		return model.Appointment{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, err
	}
	return cancelled, nil
}

// SoftDelete is one-way and allowed from any status; the record disappears
// from reads and conflict checks immediately.
func (r *AppointmentRepository) SoftDelete(ctx context.Context, id string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `
		UPDATE appointments
		SET is_deleted = TRUE, updated_at = now()
		WHERE id = $1 AND NOT is_deleted
		RETURNING `+appointmentColumns,
		id)

	deleted, err := scanAppointment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	if err := r.outbox.Insert(ctx, tx, outbox.AppointmentEvent(outbox.EventAppointmentDeleted, deleted)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ListBlockingIntervals returns the doctor's blocking intervals overlapping
// [from, to), fetched once per slot-generation call.
func (r *AppointmentRepository) ListBlockingIntervals(ctx context.Context, doctorID string, from, to time.Time) ([]schedule.Interval, error) {
	rows, err := r.pool.Query(ctx, blockingIntervalsSQL, doctorID, from, to, "")
	if err != nil {
		return nil, err
	}
	return collectIntervals(rows)
}

const blockingIntervalsSQL = `
	SELECT appointment_date, duration
	FROM appointments
	WHERE doctor_id = $1
		AND NOT is_deleted
		AND status <> 'Cancelled'
		AND appointment_date < $3
		AND appointment_date + make_interval(mins => duration) > $2
		AND ($4 = '' OR id::text <> $4)
	ORDER BY appointment_date ASC`

func blockingIntervalsTx(ctx context.Context, tx pgx.Tx, doctorID string, from, to time.Time, excludeID string) ([]schedule.Interval, error) {
	rows, err := tx.Query(ctx, blockingIntervalsSQL, doctorID, from, to, excludeID)
	if err != nil {
		return nil, err
	}
	return collectIntervals(rows)
}

func collectIntervals(rows pgx.Rows) ([]schedule.Interval, error) {
	defer rows.Close()

	var intervals []schedule.Interval
	for rows.Next() {
		var start time.Time
		var duration int
		if err := rows.Scan(&start, &duration); err != nil {
			return nil, err
		}
		intervals = append(intervals, schedule.Interval{
			Start: start,
			End:   start.Add(time.Duration(duration) * time.Minute),
		})
	}
	return intervals, rows.Err()
}

func (r *AppointmentRepository) queryMany(ctx context.Context, sql string, args ...any) ([]model.Appointment, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var appts []model.Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, appt)
	}
	return appts, rows.Err()
}
