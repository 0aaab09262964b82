package tools

import (
	"github.com/md-rashed-zaman/chatbook/services/booking-service/internal/llm"
	"github.com/md-rashed-zaman/chatbook/services/booking-service/internal/model"
)

func durationParam() llm.Param {
	return llm.Param{
		Name:        "duration",
		Type:        llm.TypeInteger,
		Description: "Length in minutes. Defaults to the standard slot length.",
		Min:         minDuration,
		Max:         maxDuration,
	}
}

func appointmentIDParam() llm.Param {
	return llm.Param{
		Name:        "appointment_id",
		Type:        llm.TypeString,
		Description: "Id of one of the user's appointments, as returned by list_appointments or book_appointment.",
		Required:    true,
	}
}

func checkAvailabilitySpec() llm.Tool {
	return llm.Tool{
		Name:        CheckAvailability,
		Description: "List the free time slots on a date.",
		Params: []llm.Param{
			{Name: "date", Type: llm.TypeString, Format: llm.FormatDate, Description: "Date to check.", Required: true},
			durationParam(),
		},
	}
}

func bookAppointmentSpec() llm.Tool {
	return llm.Tool{
		Name:        BookAppointment,
		Description: "Book an appointment for the user.",
		Params: []llm.Param{
			{Name: "date", Type: llm.TypeString, Format: llm.FormatDate, Description: "Appointment date.", Required: true},
			{Name: "time", Type: llm.TypeString, Format: llm.FormatTime, Description: "Start time.", Required: true},
			durationParam(),
			{Name: "notes", Type: llm.TypeString, Description: "Optional notes from the user.", Max: maxNotes},
		},
	}
}

func rescheduleAppointmentSpec() llm.Tool {
	return llm.Tool{
		Name:        RescheduleAppointment,
		Description: "Move one of the user's appointments to a new date and time. Duration and notes are kept.",
		Params: []llm.Param{
			appointmentIDParam(),
			{Name: "new_date", Type: llm.TypeString, Format: llm.FormatDate, Description: "New date.", Required: true},
			{Name: "new_time", Type: llm.TypeString, Format: llm.FormatTime, Description: "New start time.", Required: true},
		},
	}
}

func cancelAppointmentSpec() llm.Tool {
	return llm.Tool{
		Name:        CancelAppointment,
		Description: "Cancel one of the user's appointments.",
		Params:      []llm.Param{appointmentIDParam()},
	}
}

func listAppointmentsSpec() llm.Tool {
	return llm.Tool{
		Name:        ListAppointments,
		Description: "List the user's appointments ordered by start time.",
		Params: []llm.Param{
			{
				Name:        "status",
				Type:        llm.TypeString,
				Description: "Only return appointments with this status.",
				Enum: []string{
					string(model.StatusScheduled), string(model.StatusRescheduled),
					string(model.StatusCancelled), string(model.StatusCompleted),
				},
			},
			{Name: "from", Type: llm.TypeString, Format: llm.FormatDate, Description: "Earliest date, inclusive."},
			{Name: "to", Type: llm.TypeString, Format: llm.FormatDate, Description: "Latest date, inclusive."},
		},
	}
}
