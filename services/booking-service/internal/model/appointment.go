package model

import "time"

type Status string

const (
	StatusScheduled   Status = "scheduled"
	StatusRescheduled Status = "rescheduled"
	StatusCancelled   Status = "cancelled"
	// StatusCompleted is never stored; it is derived from the clock.
	StatusCompleted Status = "completed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusRescheduled, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}

type Appointment struct {
	ID              string
	UserID          string
	StartTime       time.Time
	DurationMinutes int
	Status          Status
	Notes           string
	RescheduledFrom string
	CancelledAt     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (a Appointment) EndTime() time.Time {
	return a.StartTime.Add(time.Duration(a.DurationMinutes) * time.Minute)
}

func (a Appointment) Date() string  { return a.StartTime.UTC().Format("2006-01-02") }
func (a Appointment) Clock() string { return a.StartTime.UTC().Format("15:04") }

// EffectiveStatus reports scheduled appointments that have already ended as completed.
func (a Appointment) EffectiveStatus(now time.Time) Status {
	if a.Status == StatusScheduled && !a.EndTime().After(now) {
		return StatusCompleted
	}
	return a.Status
}
