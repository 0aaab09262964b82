package tools

import "encoding/json"

type Code string

const (
	CodeInvalidArguments     Code = "InvalidArguments"
	CodeInvalidDate          Code = "InvalidDate"
	CodeOutsideBusinessHours Code = "OutsideBusinessHours"
	CodeSlotTaken            Code = "SlotTaken"
	CodeNotFound             Code = "NotFound"
	CodeUnknownTool          Code = "UnknownTool"
)

// Result is the structured observation handed back to the model.
type Result struct {
	OK        bool     `json:"ok"`
	Error     Code     `json:"error,omitempty"`
	Message   string   `json:"message,omitempty"`
	Data      any      `json:"data,omitempty"`
	FreeSlots []string `json:"free_slots,omitempty"`
}

func success(msg string, data any) Result {
	return Result{OK: true, Message: msg, Data: data}
}

func failure(code Code, msg string) Result {
	return Result{Error: code, Message: msg}
}

func (r Result) JSON() string {
	b, err := json.Marshal(r)
	if err != nil {
		return `{"ok":false,"error":"InvalidArguments","message":"unencodable result"}`
	}
	return string(b)
}

type appointmentView struct {
	AppointmentID   string `json:"appointment_id"`
	Date            string `json:"date"`
	Time            string `json:"time"`
	DurationMinutes int    `json:"duration_minutes"`
	Status          string `json:"status"`
	Notes           string `json:"notes,omitempty"`
	RescheduledFrom string `json:"rescheduled_from,omitempty"`
}
