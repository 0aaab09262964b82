package outbox

import (
	"encoding/json"

	"github.com/md-rashed-zaman/chatbook/services/booking-service/internal/model"
)

const (
	EventAppointmentBooked      = "booking.appointment.booked.v1"
	EventAppointmentCancelled   = "booking.appointment.cancelled.v1"
	EventAppointmentRescheduled = "booking.appointment.rescheduled.v1"
)

// Event is the envelope written to outbox_events. EventType doubles as the Kafka topic.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

type appointmentPayload struct {
	AppointmentID   string `json:"appointment_id"`
	UserID          string `json:"user_id"`
	Date            string `json:"date"`
	StartTime       string `json:"start_time"`
	DurationMinutes int    `json:"duration_minutes"`
	Status          string `json:"status"`
	RescheduledFrom string `json:"rescheduled_from,omitempty"`
}

func NewAppointmentEvent(eventType string, a model.Appointment) (Event, error) {
	payload, err := json.Marshal(appointmentPayload{
		AppointmentID:   a.ID,
		UserID:          a.UserID,
		Date:            a.Date(),
		StartTime:       a.Clock(),
		DurationMinutes: a.DurationMinutes,
		Status:          string(a.Status),
		RescheduledFrom: a.RescheduledFrom,
	})
	if err != nil {
		return Event{}, err
	}
	return Event{
		AggregateType: "appointment",
		AggregateID:   a.ID,
		EventType:     eventType,
		Payload:       payload,
	}, nil
}
