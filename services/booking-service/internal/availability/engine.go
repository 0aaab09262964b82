package availability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	otelx "github.com/md-rashed-zaman/chatbook/libs/otel"
	"github.com/md-rashed-zaman/chatbook/services/booking-service/internal/calendar"
	"github.com/md-rashed-zaman/chatbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/chatbook/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/chatbook/services/booking-service/internal/storage"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrOutsideBusinessHours = errors.New("outside business hours")
	ErrSlotTaken            = errors.New("slot taken")
	ErrNotFound             = errors.New("appointment not found")
	ErrInvalidDuration      = errors.New("invalid duration")
	ErrInPast               = errors.New("time has already passed")
)

const defaultMutationTimeout = 10 * time.Second

// Engine computes free slots and performs the only calendar mutations.
// Every mutation is one storage unit of work.
type Engine struct {
	store           storage.Store
	cal             calendar.Calendar
	logger          *slog.Logger
	tracer          trace.Tracer
	now             func() time.Time
	newID           func() string
	mutationTimeout time.Duration
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(e *Engine) { e.newID = newID }
}

func WithMutationTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.mutationTimeout = d
		}
	}
}

func NewEngine(store storage.Store, cal calendar.Calendar, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:           store,
		cal:             cal,
		logger:          logger,
		tracer:          otelx.Tracer("booking-service/availability"),
		now:             func() time.Time { return time.Now().UTC() },
		newID:           uuid.NewString,
		mutationTimeout: defaultMutationTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Calendar() calendar.Calendar { return e.cal }

func (e *Engine) Now() time.Time { return e.now() }

// FreeSlots returns the open window of date minus scheduled appointments,
// sliced into durationMinutes units. Closed days and slots that already
// started yield nothing.
func (e *Engine) FreeSlots(ctx context.Context, date time.Time, durationMinutes int) ([]Interval, error) {
	if durationMinutes <= 0 {
		return nil, ErrInvalidDuration
	}
	start, end, ok := e.cal.Window(date)
	if !ok {
		return nil, nil
	}
	appts, err := e.store.Overlapping(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("load appointments: %w", err)
	}
	return FreeSlots(Interval{Start: start, End: end}, busyIntervals(appts), time.Duration(durationMinutes)*time.Minute, e.now()), nil
}

// Reserve books [start, start+duration) for userID.
func (e *Engine) Reserve(ctx context.Context, userID string, start time.Time, durationMinutes int, notes string) (model.Appointment, error) {
	ctx, cancel := e.detach(ctx)
	defer cancel()
	ctx, span := e.tracer.Start(ctx, "availability.reserve", trace.WithAttributes(
		attribute.String("appointment.date", start.UTC().Format(calendar.DateLayout)),
		attribute.Int("appointment.duration_minutes", durationMinutes),
	))
	defer span.End()

	if durationMinutes <= 0 {
		return model.Appointment{}, ErrInvalidDuration
	}
	start = start.UTC()
	now := e.now()
	appt := model.Appointment{
		ID:              e.newID(),
		UserID:          userID,
		StartTime:       start,
		DurationMinutes: durationMinutes,
		Status:          model.StatusScheduled,
		Notes:           notes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err := e.store.InTx(ctx, func(tx storage.Tx) error {
		if err := tx.LockDate(ctx, start); err != nil {
			return err
		}
		if err := e.place(ctx, tx, appt); err != nil {
			return err
		}
		return emit(ctx, tx, outbox.EventAppointmentBooked, appt)
	})
	if err != nil {
		return model.Appointment{}, e.fail(span, "reserve", err)
	}
	e.logger.Info("appointment reserved", "appointment_id", appt.ID, "user_id", userID, "start", start.Format(time.RFC3339))
	return appt, nil
}

// Release cancels an appointment. Cancelling an already cancelled appointment
// succeeds without writing anything.
func (e *Engine) Release(ctx context.Context, id string) (model.Appointment, error) {
	ctx, cancel := e.detach(ctx)
	defer cancel()
	ctx, span := e.tracer.Start(ctx, "availability.release", trace.WithAttributes(attribute.String("appointment.id", id)))
	defer span.End()

	var out model.Appointment
	err := e.store.InTx(ctx, func(tx storage.Tx) error {
		appt, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		switch appt.EffectiveStatus(e.now()) {
		case model.StatusCancelled:
			out = appt
			return nil
		case model.StatusRescheduled, model.StatusCompleted:
			return ErrNotFound
		}

		now := e.now()
		if err := tx.UpdateStatus(ctx, id, model.StatusCancelled, now); err != nil {
			return err
		}
		appt.Status = model.StatusCancelled
		appt.UpdatedAt = now
		appt.CancelledAt = &now
		out = appt
		return emit(ctx, tx, outbox.EventAppointmentCancelled, appt)
	})
	if err != nil {
		return model.Appointment{}, e.fail(span, "release", err)
	}
	e.logger.Info("appointment released", "appointment_id", id)
	return out, nil
}

// Move closes the appointment as rescheduled and books a replacement at
// newStart with the same owner, duration and notes. A failed move leaves the
// original untouched.
func (e *Engine) Move(ctx context.Context, id string, newStart time.Time) (model.Appointment, error) {
	ctx, cancel := e.detach(ctx)
	defer cancel()
	ctx, span := e.tracer.Start(ctx, "availability.move", trace.WithAttributes(
		attribute.String("appointment.id", id),
		attribute.String("appointment.new_date", newStart.UTC().Format(calendar.DateLayout)),
	))
	defer span.End()

	newStart = newStart.UTC()
	var out model.Appointment
	err := e.store.InTx(ctx, func(tx storage.Tx) error {
		orig, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if orig.EffectiveStatus(e.now()) != model.StatusScheduled {
			return ErrNotFound
		}
		for _, day := range lockOrder(orig.StartTime, newStart) {
			if err := tx.LockDate(ctx, day); err != nil {
				return err
			}
		}

		now := e.now()
		if err := tx.UpdateStatus(ctx, orig.ID, model.StatusRescheduled, now); err != nil {
			return err
		}
		out = model.Appointment{
			ID:              e.newID(),
			UserID:          orig.UserID,
			StartTime:       newStart,
			DurationMinutes: orig.DurationMinutes,
			Status:          model.StatusScheduled,
			Notes:           orig.Notes,
			RescheduledFrom: orig.ID,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := e.place(ctx, tx, out); err != nil {
			return err
		}
		return emit(ctx, tx, outbox.EventAppointmentRescheduled, out)
	})
	if err != nil {
		return model.Appointment{}, e.fail(span, "move", err)
	}
	e.logger.Info("appointment moved", "appointment_id", id, "new_appointment_id", out.ID, "start", newStart.Format(time.RFC3339))
	return out, nil
}

func (e *Engine) Get(ctx context.Context, id string) (model.Appointment, error) {
	appt, err := e.store.Get(ctx, id)
	if err != nil {
		return model.Appointment{}, mapStoreError(err)
	}
	return appt, nil
}

func (e *Engine) List(ctx context.Context, userID string, filter storage.ListFilter) ([]model.Appointment, error) {
	if filter.Now.IsZero() {
		filter.Now = e.now()
	}
	return e.store.ListByUser(ctx, userID, filter)
}

// place re-validates time, hours and overlap inside the unit of work, then inserts.
func (e *Engine) place(ctx context.Context, tx storage.Tx, appt model.Appointment) error {
	if appt.StartTime.Before(e.now()) {
		return ErrInPast
	}
	if !e.cal.Contains(appt.StartTime, appt.EndTime()) {
		return ErrOutsideBusinessHours
	}
	busy, err := tx.Overlapping(ctx, appt.StartTime, appt.EndTime())
	if err != nil {
		return err
	}
	if len(busy) > 0 {
		return ErrSlotTaken
	}
	return tx.Insert(ctx, appt)
}

// detach keeps a mutation running after the caller goes away, bounded by its own timeout.
func (e *Engine) detach(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), e.mutationTimeout)
}

func (e *Engine) fail(span trace.Span, op string, err error) error {
	err = mapStoreError(err)
	switch {
	case errors.Is(err, ErrSlotTaken), errors.Is(err, ErrOutsideBusinessHours),
		errors.Is(err, ErrNotFound), errors.Is(err, ErrInvalidDuration), errors.Is(err, ErrInPast):
		span.SetAttributes(attribute.String("booking.outcome", err.Error()))
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.logger.Error("appointment mutation failed", "op", op, "err", err)
	}
	return err
}

func mapStoreError(err error) error {
	switch {
	case errors.Is(err, storage.ErrConflict):
		return ErrSlotTaken
	case errors.Is(err, storage.ErrNotFound):
		return ErrNotFound
	}
	return err
}

func emit(ctx context.Context, tx storage.Tx, eventType string, appt model.Appointment) error {
	evt, err := outbox.NewAppointmentEvent(eventType, appt)
	if err != nil {
		return err
	}
	return tx.Emit(ctx, evt)
}

// lockOrder returns the distinct dates of a and b in ascending order so two
// moves across the same pair of dates take the locks in the same order.
func lockOrder(a, b time.Time) []time.Time {
	da, db := calendar.Day(a), calendar.Day(b)
	switch {
	case da.Equal(db):
		return []time.Time{da}
	case da.Before(db):
		return []time.Time{da, db}
	default:
		return []time.Time{db, da}
	}
}

func busyIntervals(appts []model.Appointment) []Interval {
	out := make([]Interval, 0, len(appts))
	for _, a := range appts {
		out = append(out, Interval{Start: a.StartTime, End: a.EndTime()})
	}
	return out
}
