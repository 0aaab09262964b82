// Package tools exposes the booking operations the model may call. Every call
// is validated against its declared schema and the caller's ownership before
// it reaches the availability engine.
package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/chatbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/chatbook/services/booking-service/internal/calendar"
	"github.com/md-rashed-zaman/chatbook/services/booking-service/internal/llm"
	"github.com/md-rashed-zaman/chatbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/chatbook/services/booking-service/internal/storage"
)

const (
	CheckAvailability     = "check_availability"
	BookAppointment       = "book_appointment"
	RescheduleAppointment = "reschedule_appointment"
	CancelAppointment     = "cancel_appointment"
	ListAppointments      = "list_appointments"

	minDuration = 5
	maxDuration = 480
	maxNotes    = 500
)

// Engine is the slice of the availability engine the tools delegate to.
type Engine interface {
	Calendar() calendar.Calendar
	FreeSlots(ctx context.Context, date time.Time, durationMinutes int) ([]availability.Interval, error)
	Reserve(ctx context.Context, userID string, start time.Time, durationMinutes int, notes string) (model.Appointment, error)
	Release(ctx context.Context, id string) (model.Appointment, error)
	Move(ctx context.Context, id string, newStart time.Time) (model.Appointment, error)
	Get(ctx context.Context, id string) (model.Appointment, error)
	List(ctx context.Context, userID string, filter storage.ListFilter) ([]model.Appointment, error)
	Now() time.Time
}

type handler func(ctx context.Context, userID string, a args) (Result, error)

type Registry struct {
	engine   Engine
	logger   *slog.Logger
	specs    []llm.Tool
	handlers map[string]handler
}

func NewRegistry(engine Engine, logger *slog.Logger) *Registry {
	r := &Registry{engine: engine, logger: logger, handlers: map[string]handler{}}
	r.register(checkAvailabilitySpec(), r.checkAvailability)
	r.register(bookAppointmentSpec(), r.bookAppointment)
	r.register(rescheduleAppointmentSpec(), r.rescheduleAppointment)
	r.register(cancelAppointmentSpec(), r.cancelAppointment)
	r.register(listAppointmentsSpec(), r.listAppointments)
	return r
}

func (r *Registry) register(spec llm.Tool, h handler) {
	r.specs = append(r.specs, spec)
	r.handlers[spec.Name] = h
}

// Specs returns the declarations sent to the model.
func (r *Registry) Specs() []llm.Tool {
	return append([]llm.Tool(nil), r.specs...)
}

// Execute runs one tool call for userID. Domain and validation failures come
// back as a Result; a non-nil error means infrastructure trouble.
func (r *Registry) Execute(ctx context.Context, userID string, call llm.ToolCall) (Result, error) {
	h, ok := r.handlers[call.Name]
	if !ok {
		return failure(CodeUnknownTool, fmt.Sprintf("no tool named %q", call.Name)), nil
	}
	var spec llm.Tool
	for _, s := range r.specs {
		if s.Name == call.Name {
			spec = s
		}
	}
	a, verr := validate(spec, call.Args)
	if verr != nil {
		return failure(verr.code, verr.msg), nil
	}
	res, err := h(ctx, userID, a)
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", call.Name, err)
	}
	r.logger.Debug("tool executed", "tool", call.Name, "user_id", userID, "ok", res.OK, "error", res.Error)
	return res, nil
}

func (r *Registry) checkAvailability(ctx context.Context, _ string, a args) (Result, error) {
	date, _ := a.date("date")
	duration := a.integer("duration", r.engine.Calendar().SlotMinutes())
	slots, err := r.slotStrings(ctx, date, duration)
	if err != nil {
		return Result{}, err
	}
	msg := fmt.Sprintf("%d free %d-minute slots on %s", len(slots), duration, date.Format(calendar.DateLayout))
	if _, _, open := r.engine.Calendar().Window(date); !open {
		msg = fmt.Sprintf("the business is closed on %s", date.Format("Monday 2006-01-02"))
	}
	return success(msg, map[string]any{
		"date":             date.Format(calendar.DateLayout),
		"duration_minutes": duration,
		"slots":            slots,
	}), nil
}

func (r *Registry) bookAppointment(ctx context.Context, userID string, a args) (Result, error) {
	date, _ := a.date("date")
	duration := a.integer("duration", r.engine.Calendar().SlotMinutes())
	start := calendar.At(date, a.clock("time"))

	appt, err := r.engine.Reserve(ctx, userID, start, duration, a.str("notes"))
	if err != nil {
		return r.mutationFailure(ctx, err, date, duration)
	}
	return success(
		fmt.Sprintf("Booked %s at %s for %d minutes.", appt.Date(), appt.Clock(), appt.DurationMinutes),
		view(appt, r.engine.Now()),
	), nil
}

func (r *Registry) rescheduleAppointment(ctx context.Context, userID string, a args) (Result, error) {
	orig, found, err := r.owned(ctx, userID, a.str("appointment_id"))
	if err != nil || !found {
		return notFound(a.str("appointment_id")), err
	}
	date, _ := a.date("new_date")
	moved, err := r.engine.Move(ctx, orig.ID, calendar.At(date, a.clock("new_time")))
	if err != nil {
		return r.mutationFailure(ctx, err, date, orig.DurationMinutes)
	}
	return success(
		fmt.Sprintf("Moved from %s %s to %s %s.", orig.Date(), orig.Clock(), moved.Date(), moved.Clock()),
		view(moved, r.engine.Now()),
	), nil
}

func (r *Registry) cancelAppointment(ctx context.Context, userID string, a args) (Result, error) {
	orig, found, err := r.owned(ctx, userID, a.str("appointment_id"))
	if err != nil || !found {
		return notFound(a.str("appointment_id")), err
	}
	appt, err := r.engine.Release(ctx, orig.ID)
	if err != nil {
		return r.mutationFailure(ctx, err, time.Time{}, 0)
	}
	return success(fmt.Sprintf("Cancelled the appointment on %s at %s.", appt.Date(), appt.Clock()), view(appt, r.engine.Now())), nil
}

func (r *Registry) listAppointments(ctx context.Context, userID string, a args) (Result, error) {
	filter := storage.ListFilter{Status: model.Status(a.str("status"))}
	if d, ok := a.date("from"); ok {
		filter.From = d
	}
	if d, ok := a.date("to"); ok {
		filter.To = d
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.To.Before(filter.From) {
		return failure(CodeInvalidDate, "\"to\" must not be before \"from\""), nil
	}

	appts, err := r.engine.List(ctx, userID, filter)
	if err != nil {
		return Result{}, err
	}
	now := r.engine.Now()
	views := make([]appointmentView, 0, len(appts))
	for _, appt := range appts {
		views = append(views, view(appt, now))
	}
	return success(fmt.Sprintf("%d appointments", len(views)), views), nil
}

// owned loads id and reports someone else's appointment as not found.
func (r *Registry) owned(ctx context.Context, userID, id string) (model.Appointment, bool, error) {
	appt, err := r.engine.Get(ctx, id)
	switch {
	case errors.Is(err, availability.ErrNotFound):
		return model.Appointment{}, false, nil
	case err != nil:
		return model.Appointment{}, false, err
	case appt.UserID != userID:
		return model.Appointment{}, false, nil
	}
	return appt, true, nil
}

func (r *Registry) mutationFailure(ctx context.Context, err error, date time.Time, duration int) (Result, error) {
	switch {
	case errors.Is(err, availability.ErrOutsideBusinessHours):
		cal := r.engine.Calendar()
		return failure(CodeOutsideBusinessHours, "requested time is outside business hours ("+cal.Describe()+")"), nil
	case errors.Is(err, availability.ErrInPast):
		return failure(CodeInvalidDate, "that time has already passed; pick a time from now on"), nil
	case errors.Is(err, availability.ErrSlotTaken):
		slots, serr := r.slotStrings(ctx, date, duration)
		if serr != nil {
			return Result{}, serr
		}
		res := failure(CodeSlotTaken, "that time overlaps an existing appointment")
		res.FreeSlots = slots
		return res, nil
	case errors.Is(err, availability.ErrNotFound):
		return notFound(""), nil
	case errors.Is(err, availability.ErrInvalidDuration):
		return failure(CodeInvalidArguments, "duration must be positive"), nil
	}
	return Result{}, err
}

func (r *Registry) slotStrings(ctx context.Context, date time.Time, duration int) ([]string, error) {
	slots, err := r.engine.FreeSlots(ctx, date, duration)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(slots))
	for _, s := range slots {
		out = append(out, s.String())
	}
	return out, nil
}

func notFound(id string) Result {
	if id == "" {
		return failure(CodeNotFound, "appointment not found")
	}
	return failure(CodeNotFound, fmt.Sprintf("appointment %s not found", id))
}

func view(a model.Appointment, now time.Time) appointmentView {
	return appointmentView{
		AppointmentID:   a.ID,
		Date:            a.Date(),
		Time:            a.Clock(),
		DurationMinutes: a.DurationMinutes,
		Status:          string(a.EffectiveStatus(now)),
		Notes:           a.Notes,
		RescheduledFrom: a.RescheduledFrom,
	}
}
