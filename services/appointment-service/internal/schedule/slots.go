package schedule

import "time"

// AvailableSlots returns candidate start times at step granularity within
// [dayStart, dayEnd) where an appointment of the given duration would not
// overlap any busy interval. The caller fetches the day's appointments once
// and passes them in; this function performs no I/O.
func AvailableSlots(dayStart, dayEnd time.Time, duration, step time.Duration, busy []Interval) []time.Time {
	if duration <= 0 || step <= 0 {
		return nil
	}
	if !dayEnd.After(dayStart) {
		return nil
	}

	var slots []time.Time
	for t := dayStart; !t.Add(duration).After(dayEnd); t = t.Add(step) {
		if !ConflictsAny(Interval{Start: t, End: t.Add(duration)}, busy) {
			slots = append(slots, t)
		}
	}
	return slots
}
