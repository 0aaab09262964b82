package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/md-rashed-zaman/chatbook/libs/httpx"
	"github.com/md-rashed-zaman/chatbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/chatbook/services/booking-service/internal/calendar"
	"github.com/md-rashed-zaman/chatbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/chatbook/services/booking-service/internal/storage"
)

type Availability interface {
	Calendar() calendar.Calendar
	FreeSlots(ctx context.Context, date time.Time, durationMinutes int) ([]availability.Interval, error)
	List(ctx context.Context, userID string, filter storage.ListFilter) ([]model.Appointment, error)
	Now() time.Time
}

type BookingHandler struct {
	engine Availability
	logger *slog.Logger
}

func NewBookingHandler(engine Availability, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{engine: engine, logger: logger}
}

type slotItem struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type listAppointmentItem struct {
	AppointmentID   string `json:"appointment_id"`
	Date            string `json:"date"`
	StartTime       string `json:"start_time"`
	DurationMinutes int    `json:"duration_minutes"`
	Status          string `json:"status"`
	Notes           string `json:"notes,omitempty"`
	RescheduledFrom string `json:"rescheduled_from,omitempty"`
	CancelledAt     string `json:"cancelled_at,omitempty"`
	CreatedAt       string `json:"created_at"`
	UpdatedAt       string `json:"updated_at"`
}

func (h *BookingHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	date, err := calendar.ParseDate(r.URL.Query().Get("date"))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	duration := h.engine.Calendar().SlotMinutes()
	if raw := strings.TrimSpace(r.URL.Query().Get("duration_minutes")); raw != "" {
		duration, err = strconv.Atoi(raw)
		if err != nil || duration < 5 || duration > 480 {
			httpx.WriteError(w, http.StatusBadRequest, "duration_minutes must be between 5 and 480")
			return
		}
	}

	slots, err := h.engine.FreeSlots(r.Context(), date, duration)
	if err != nil {
		h.logger.Error("free slots failed", "date", date.Format(calendar.DateLayout), "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to load availability")
		return
	}
	items := make([]slotItem, 0, len(slots))
	for _, s := range slots {
		items = append(items, slotItem{StartTime: s.Start.Format(time.RFC3339), EndTime: s.End.Format(time.RFC3339)})
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"date":             date.Format(calendar.DateLayout),
		"duration_minutes": duration,
		"slots":            items,
	})
}

func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	userID := strings.TrimSpace(r.Header.Get(UserIDHeader))
	if userID == "" {
		httpx.WriteError(w, http.StatusUnauthorized, "missing user identity")
		return
	}

	filter, err := parseListFilter(r)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	appts, err := h.engine.List(r.Context(), userID, filter)
	if err != nil {
		h.logger.Error("list appointments failed", "user_id", userID, "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "failed to list appointments")
		return
	}

	now := h.engine.Now()
	items := make([]listAppointmentItem, 0, len(appts))
	for _, a := range appts {
		item := listAppointmentItem{
			AppointmentID:   a.ID,
			Date:            a.Date(),
			StartTime:       a.Clock(),
			DurationMinutes: a.DurationMinutes,
			Status:          string(a.EffectiveStatus(now)),
			Notes:           a.Notes,
			RescheduledFrom: a.RescheduledFrom,
			CreatedAt:       a.CreatedAt.Format(time.RFC3339),
			UpdatedAt:       a.UpdatedAt.Format(time.RFC3339),
		}
		if a.CancelledAt != nil {
			item.CancelledAt = a.CancelledAt.Format(time.RFC3339)
		}
		items = append(items, item)
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}

func parseListFilter(r *http.Request) (storage.ListFilter, error) {
	q := r.URL.Query()
	var f storage.ListFilter
	if s := strings.TrimSpace(q.Get("status")); s != "" {
		f.Status = model.Status(s)
		if !f.Status.Valid() {
			return f, errors.New("invalid status")
		}
	}
	if v := q.Get("from"); v != "" {
		d, err := calendar.ParseDate(v)
		if err != nil {
			return f, errors.New("from must be YYYY-MM-DD")
		}
		f.From = d
	}
	if v := q.Get("to"); v != "" {
		d, err := calendar.ParseDate(v)
		if err != nil {
			return f, errors.New("to must be YYYY-MM-DD")
		}
		f.To = d
	}
	if !f.From.IsZero() && !f.To.IsZero() && f.To.Before(f.From) {
		return f, errors.New("to must not be before from")
	}
	return f, nil
}
