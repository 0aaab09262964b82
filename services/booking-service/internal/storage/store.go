package storage

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/md-rashed-zaman/chatbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/chatbook/services/booking-service/internal/outbox"
)

var (
	ErrNotFound = errors.New("appointment not found")
	// ErrConflict means a write would make two scheduled appointments overlap.
	ErrConflict = errors.New("appointment overlaps a scheduled appointment")
)

// Store is the transactional record of appointments.
type Store interface {
	// InTx runs fn as one atomic unit of work. Any error from fn rolls back every write.
	InTx(ctx context.Context, fn func(Tx) error) error
	Overlapping(ctx context.Context, start, end time.Time) ([]model.Appointment, error)
	Get(ctx context.Context, id string) (model.Appointment, error)
	ListByUser(ctx context.Context, userID string, filter ListFilter) ([]model.Appointment, error)
}

// Tx is the view of the store inside a unit of work.
type Tx interface {
	// LockDate serializes units of work touching the same calendar date.
	LockDate(ctx context.Context, date time.Time) error
	Overlapping(ctx context.Context, start, end time.Time) ([]model.Appointment, error)
	GetForUpdate(ctx context.Context, id string) (model.Appointment, error)
	Insert(ctx context.Context, appt model.Appointment) error
	UpdateStatus(ctx context.Context, id string, status model.Status, at time.Time) error
	Emit(ctx context.Context, evt outbox.Event) error
}

// ListFilter narrows ListByUser. Zero values mean "no bound".
// Status is matched against the effective status, so "completed" works.
type ListFilter struct {
	Status model.Status
	From   time.Time // inclusive date
	To     time.Time // inclusive date
	Now    time.Time
}

func (f ListFilter) match(a model.Appointment) bool {
	day := a.StartTime.UTC().Truncate(24 * time.Hour)
	if !f.From.IsZero() && day.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && day.After(f.To) {
		return false
	}
	if f.Status != "" && a.EffectiveStatus(f.Now) != f.Status {
		return false
	}
	return true
}

func filterAppointments(appts []model.Appointment, f ListFilter) []model.Appointment {
	out := make([]model.Appointment, 0, len(appts))
	for _, a := range appts {
		if f.match(a) {
			out = append(out, a)
		}
	}
	sortByStart(out)
	return out
}

func sortByStart(appts []model.Appointment) {
	sort.SliceStable(appts, func(i, j int) bool {
		if appts[i].StartTime.Equal(appts[j].StartTime) {
			return appts[i].CreatedAt.Before(appts[j].CreatedAt)
		}
		return appts[i].StartTime.Before(appts[j].StartTime)
	})
}
