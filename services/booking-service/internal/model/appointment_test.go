package model

import (
	"testing"
	"time"
)

func TestEffectiveStatus(t *testing.T) {
	start := time.Date(2024, 3, 15, 14, 0, 0, 0, time.UTC)
	a := Appointment{StartTime: start, DurationMinutes: 30, Status: StatusScheduled}

	if got := a.EffectiveStatus(start.Add(29 * time.Minute)); got != StatusScheduled {
		t.Fatalf("expected scheduled, got %s", got)
	}
	if got := a.EffectiveStatus(start.Add(30 * time.Minute)); got != StatusCompleted {
		t.Fatalf("expected completed at end time, got %s", got)
	}

	a.Status = StatusCancelled
	if got := a.EffectiveStatus(start.Add(time.Hour)); got != StatusCancelled {
		t.Fatalf("cancelled must stay cancelled, got %s", got)
	}
	if a.Date() != "2024-03-15" || a.Clock() != "14:00" {
		t.Fatalf("unexpected date/clock %s %s", a.Date(), a.Clock())
	}
}
