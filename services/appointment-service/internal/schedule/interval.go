package schedule

import "time"

// Interval is a half-open time range [Start, End) on a doctor's calendar.
type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports strict overlap between two half-open intervals:
// a.Start < b.End && b.Start < a.End. Touching endpoints do not overlap, so
// back-to-back appointments are always allowed.
func Overlaps(a, b Interval) bool {
	return a.Start.Before(b.End) && b.Start.Before(a.End)
}

// ConflictsAny reports whether the candidate overlaps any interval in busy.
// Callers are responsible for pre-filtering busy to blocking appointments
// (not cancelled, not soft-deleted) and for excluding an appointment's own
// prior interval when rescheduling.
func ConflictsAny(candidate Interval, busy []Interval) bool {
	for _, b := range busy {
		if Overlaps(candidate, b) {
			return true
		}
	}
	return false
}
