package model

import "fmt"

// Status is the appointment lifecycle state. Unknown values are rejected at
// the boundary instead of being stored as free-form strings.
type Status string

const (
	StatusScheduled Status = "Scheduled"
	StatusCompleted Status = "Completed"
	StatusCancelled Status = "Cancelled"
	StatusNoShow    Status = "NoShow"
)

func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusScheduled, StatusCompleted, StatusCancelled, StatusNoShow:
		return Status(s), nil
	}
	return "", fmt.Errorf("unknown appointment status %q", s)
}

func (s Status) String() string { return string(s) }

// Blocking reports whether an appointment in this status occupies the
// doctor's calendar for conflict purposes. Cancelled appointments free their
// interval for re-booking.
func (s Status) Blocking() bool {
	return s != StatusCancelled
}
