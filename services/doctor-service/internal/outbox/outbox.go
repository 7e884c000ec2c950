package outbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	otelx "github.com/asif-mahmud/medisched/libs/otel"
)

// EventDoctorUpserted announces every doctor create/update/deactivate so the
// scheduler can keep its doctor replica current.
const EventDoctorUpserted = "directory.doctor.upserted.v1"

type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// DoctorUpserted builds the replication event for a doctor record. Soft
// deletion is published as active=false; consumers only need to know the
// doctor is no longer bookable.
func DoctorUpserted(id, name, specialization string, active bool) Event {
	payload, _ := json.Marshal(map[string]any{
		"id":             id,
		"name":           name,
		"specialization": specialization,
		"active":         active,
		"updated_at":     time.Now().UTC().Format(time.RFC3339),
	})
	return Event{
		AggregateType: "doctor",
		AggregateID:   id,
		EventType:     EventDoctorUpserted,
		Payload:       payload,
	}
}

type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

func (r *Repository) Insert(ctx context.Context, tx pgx.Tx, evt Event) error {
	traceparent, tracestate := otelx.TraceContextStrings(ctx)
	_, err := tx.Exec(ctx, `
		INSERT INTO outbox_events (aggregate_type, aggregate_id, event_type, payload, traceparent, tracestate)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, evt.AggregateType, evt.AggregateID, evt.EventType, evt.Payload, traceparent, tracestate)
	return err
}

type Record struct {
	ID          int64
	EventID     string
	AggregateID string
	EventType   string
	Payload     []byte
	Traceparent string
	Tracestate  string
}

func (r *Repository) FetchUnpublished(ctx context.Context, tx pgx.Tx, limit int) ([]Record, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, event_id, aggregate_id, event_type, payload, traceparent, tracestate
		FROM outbox_events
		WHERE published_at IS NULL
		ORDER BY id
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rcd Record
		if err := rows.Scan(&rcd.ID, &rcd.EventID, &rcd.AggregateID, &rcd.EventType, &rcd.Payload, &rcd.Traceparent, &rcd.Tracestate); err != nil {
			return nil, err
		}
		records = append(records, rcd)
	}
	return records, rows.Err()
}

func (r *Repository) MarkPublished(ctx context.Context, tx pgx.Tx, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := tx.Exec(ctx, `
		UPDATE outbox_events
		SET published_at = now()
		WHERE id = ANY($1)
	`, ids)
	return err
}
