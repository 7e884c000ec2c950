package model

import "testing"

func TestParseStatus(t *testing.T) {
	for _, s := range []string{"Scheduled", "Completed", "Cancelled", "NoShow"} {
		got, err := ParseStatus(s)
		if err != nil {
			t.Fatalf("ParseStatus(%q): %v", s, err)
		}
		if got.String() != s {
			t.Fatalf("ParseStatus(%q) = %q", s, got)
		}
	}
}

func TestParseStatus_RejectsUnknown(t *testing.T) {
	for _, s := range []string{"", "scheduled", "Pending", "CANCELLED", "Done"} {
		if _, err := ParseStatus(s); err == nil {
			t.Fatalf("ParseStatus(%q) should fail", s)
		}
	}
}

func TestStatusBlocking(t *testing.T) {
	if StatusCancelled.Blocking() {
		t.Fatal("cancelled appointments must not block the calendar")
	}
	for _, s := range []Status{StatusScheduled, StatusCompleted, StatusNoShow} {
		if !s.Blocking() {
			t.Fatalf("%s should block the calendar", s)
		}
	}
}
