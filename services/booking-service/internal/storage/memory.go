package storage

import (
	"context"
	"sync"
	"time"

	"github.com/md-rashed-zaman/chatbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/chatbook/services/booking-service/internal/outbox"
)

// MemoryStore keeps appointments in process memory. A single mutex serializes
// units of work, which gives them serializable isolation.
type MemoryStore struct {
	mu     sync.RWMutex
	appts  map[string]model.Appointment
	events []outbox.Event
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{appts: map[string]model.Appointment{}}
}

func (s *MemoryStore) InTx(ctx context.Context, fn func(Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &memTx{store: s, written: map[string]model.Appointment{}}
	if err := fn(tx); err != nil {
		return err
	}
	for id, a := range tx.written {
		s.appts[id] = a
	}
	s.events = append(s.events, tx.events...)
	return nil
}

func (s *MemoryStore) Overlapping(_ context.Context, start, end time.Time) ([]model.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return overlapping(s.appts, nil, start, end), nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (model.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.appts[id]
	if !ok {
		return model.Appointment{}, ErrNotFound
	}
	return a, nil
}

func (s *MemoryStore) ListByUser(_ context.Context, userID string, filter ListFilter) ([]model.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var appts []model.Appointment
	for _, a := range s.appts {
		if a.UserID == userID {
			appts = append(appts, a)
		}
	}
	return filterAppointments(appts, filter), nil
}

// Events returns the committed outbox events in emit order.
func (s *MemoryStore) Events() []outbox.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]outbox.Event(nil), s.events...)
}

// memTx buffers writes until the unit commits; reads see its own writes.
type memTx struct {
	store   *MemoryStore
	written map[string]model.Appointment
	events  []outbox.Event
}

func (t *memTx) LockDate(context.Context, time.Time) error { return nil }

func (t *memTx) Overlapping(_ context.Context, start, end time.Time) ([]model.Appointment, error) {
	return overlapping(t.store.appts, t.written, start, end), nil
}

func (t *memTx) GetForUpdate(_ context.Context, id string) (model.Appointment, error) {
	if a, ok := t.written[id]; ok {
		return a, nil
	}
	if a, ok := t.store.appts[id]; ok {
		return a, nil
	}
	return model.Appointment{}, ErrNotFound
}

func (t *memTx) Insert(ctx context.Context, a model.Appointment) error {
	if _, err := t.GetForUpdate(ctx, a.ID); err == nil {
		return ErrConflict
	}
	if a.Status == model.StatusScheduled {
		if busy := overlapping(t.store.appts, t.written, a.StartTime, a.EndTime()); len(busy) > 0 {
			return ErrConflict
		}
	}
	t.written[a.ID] = a
	return nil
}

func (t *memTx) UpdateStatus(ctx context.Context, id string, status model.Status, at time.Time) error {
	a, err := t.GetForUpdate(ctx, id)
	if err != nil {
		return err
	}
	a.Status = status
	a.UpdatedAt = at
	if status == model.StatusCancelled {
		cancelledAt := at
		a.CancelledAt = &cancelledAt
	}
	t.written[id] = a
	return nil
}

func (t *memTx) Emit(_ context.Context, evt outbox.Event) error {
	t.events = append(t.events, evt)
	return nil
}

// overlapping merges base with pending writes and returns the scheduled
// appointments intersecting [start, end).
func overlapping(base, pending map[string]model.Appointment, start, end time.Time) []model.Appointment {
	var out []model.Appointment
	visit := func(a model.Appointment) {
		if a.Status == model.StatusScheduled && a.StartTime.Before(end) && start.Before(a.EndTime()) {
			out = append(out, a)
		}
	}
	for id, a := range base {
		if p, ok := pending[id]; ok {
			a = p
		}
		visit(a)
	}
	for id, a := range pending {
		if _, ok := base[id]; !ok {
			visit(a)
		}
	}
	sortByStart(out)
	return out
}
