package schedule

import (
	"testing"
	"time"
)

func TestAvailableSlots_EmptyCalendar(t *testing.T) {
	day := time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC)
	dayStart := day.Add(9 * time.Hour)
	dayEnd := day.Add(17 * time.Hour)

	slots := AvailableSlots(dayStart, dayEnd, 30*time.Minute, 30*time.Minute, nil)
	if len(slots) != 16 {
		t.Fatalf("expected 16 slots for an empty 09:00-17:00 day, got %d", len(slots))
	}
	if !slots[0].Equal(dayStart) {
		t.Fatalf("first slot = %s, want 09:00", slots[0].Format(time.RFC3339))
	}
	if !slots[15].Equal(day.Add(16*time.Hour + 30*time.Minute)) {
		t.Fatalf("last slot = %s, want 16:30", slots[15].Format(time.RFC3339))
	}
	for i := 1; i < len(slots); i++ {
		if slots[i].Sub(slots[i-1]) != 30*time.Minute {
			t.Fatalf("slots not step-aligned at index %d", i)
		}
	}
}

func TestAvailableSlots_FullyBooked(t *testing.T) {
	day := time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC)
	dayStart := day.Add(9 * time.Hour)
	dayEnd := day.Add(17 * time.Hour)

	busy := []Interval{{Start: dayStart, End: dayEnd}}
	slots := AvailableSlots(dayStart, dayEnd, 30*time.Minute, 30*time.Minute, busy)
	if len(slots) != 0 {
		t.Fatalf("expected no slots for a fully booked day, got %d", len(slots))
	}
}

func TestAvailableSlots_SkipsBookedWindow(t *testing.T) {
	day := time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC)
	dayStart := day.Add(9 * time.Hour)
	dayEnd := day.Add(11 * time.Hour)

	busy := []Interval{{Start: day.Add(9*time.Hour + 30*time.Minute), End: day.Add(10 * time.Hour)}}
	slots := AvailableSlots(dayStart, dayEnd, 30*time.Minute, 30*time.Minute, busy)

	want := []time.Time{
		day.Add(9 * time.Hour),
		day.Add(10 * time.Hour),
		day.Add(10*time.Hour + 30*time.Minute),
	}
	if len(slots) != len(want) {
		t.Fatalf("expected %d slots, got %d", len(want), len(slots))
	}
	for i := range want {
		if !slots[i].Equal(want[i]) {
			t.Fatalf("slot %d = %s, want %s", i, slots[i], want[i])
		}
	}
}

func TestAvailableSlots_DurationLongerThanRemainder(t *testing.T) {
	day := time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC)
	dayStart := day.Add(9 * time.Hour)
	dayEnd := day.Add(10 * time.Hour)

	// A 45-minute visit fits only at 09:00 on a one-hour day with 30m steps.
	slots := AvailableSlots(dayStart, dayEnd, 45*time.Minute, 30*time.Minute, nil)
	if len(slots) != 1 || !slots[0].Equal(dayStart) {
		t.Fatalf("expected a single 09:00 slot, got %v", slots)
	}
}

func TestAvailableSlots_DegenerateInputs(t *testing.T) {
	day := time.Date(2026, 3, 12, 9, 0, 0, 0, time.UTC)
	if got := AvailableSlots(day, day.Add(8*time.Hour), 0, 30*time.Minute, nil); got != nil {
		t.Fatalf("zero duration should yield nil, got %v", got)
	}
	if got := AvailableSlots(day, day.Add(8*time.Hour), 30*time.Minute, 0, nil); got != nil {
		t.Fatalf("zero step should yield nil, got %v", got)
	}
	if got := AvailableSlots(day, day, 30*time.Minute, 30*time.Minute, nil); got != nil {
		t.Fatalf("empty window should yield nil, got %v", got)
	}
}
