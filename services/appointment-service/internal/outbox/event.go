package outbox

import (
	"encoding/json"
	"time"

	"github.com/asif-mahmud/medisched/services/appointment-service/internal/model"
)

// Event is the domain event envelope written to the outbox table.
// The Kafka topic name equals EventType (event per topic).
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

const (
	EventAppointmentScheduled   = "scheduling.appointment.scheduled.v1"
	EventAppointmentRescheduled = "scheduling.appointment.rescheduled.v1"
	EventAppointmentCancelled   = "scheduling.appointment.cancelled.v1"
	EventAppointmentDeleted     = "scheduling.appointment.deleted.v1"
)

// AppointmentEvent builds the envelope for an appointment lifecycle change.
// Payload marshalling of this fixed shape cannot fail, so no error is returned.
func AppointmentEvent(eventType string, appt model.Appointment) Event {
	payload, _ := json.Marshal(map[string]any{
		"appointment_id":   appt.ID,
		"patient_id":       appt.PatientID,
		"doctor_id":        appt.DoctorID,
		"appointment_date": appt.AppointmentDate.UTC().Format(time.RFC3339),
		"duration_minutes": appt.Duration,
		"status":           appt.Status.String(),
		"updated_at":       appt.UpdatedAt.UTC().Format(time.RFC3339),
	})
	return Event{
		AggregateType: "appointment",
		AggregateID:   appt.ID,
		EventType:     eventType,
		Payload:       payload,
	}
}
