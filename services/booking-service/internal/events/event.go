package events

import (
	"encoding/json"
	"time"

	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/model"
)

const (
	TypeBooked      = "appointment.booked.v1"
	TypeCancelled   = "appointment.cancelled.v1"
	TypeCompleted   = "appointment.completed.v1"
	TypeRescheduled = "appointment.rescheduled.v1"
)

// Event is the envelope handed to the publisher. Payload is already
// encoded so the publisher never touches domain types.
type Event struct {
	AggregateID string
	EventType   string
	Payload     []byte
}

// AppointmentPayload is the JSON body of every appointment event.
type AppointmentPayload struct {
	AppointmentID string       `json:"appointmentId"`
	ClientID      string       `json:"clientId"`
	ClientEmail   string       `json:"clientEmail"`
	ServiceID     string       `json:"serviceId"`
	ServiceName   string       `json:"serviceName"`
	Date          string       `json:"date"`
	Time          string       `json:"time"`
	Status        model.Status `json:"status"`
	PreviousDate  string       `json:"previousDate,omitempty"`
	PreviousTime  string       `json:"previousTime,omitempty"`
	OccurredAt    time.Time    `json:"occurredAt"`
}

// ForAppointment builds the event for a, which is the state after the
// change. before is consulted only for reschedules.
func ForAppointment(eventType string, a, before model.Appointment, at time.Time) (Event, error) {
	p := AppointmentPayload{
		AppointmentID: a.ID,
		ClientID:      a.ClientID,
		ClientEmail:   a.ClientEmail,
		ServiceID:     a.ServiceID,
		ServiceName:   a.ServiceName,
		Date:          a.Date,
		Time:          a.Time,
		Status:        a.Status,
		OccurredAt:    at.UTC(),
	}
	if eventType == TypeRescheduled {
		p.PreviousDate = before.Date
		p.PreviousTime = before.Time
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return Event{}, err
	}
	return Event{AggregateID: a.ID, EventType: eventType, Payload: raw}, nil
}

// ForStatus maps a status change to its event type. ok is false for
// statuses that emit nothing.
func ForStatus(s model.Status) (eventType string, ok bool) {
	switch s {
	case model.StatusCancelled:
		return TypeCancelled, true
	case model.StatusCompleted:
		return TypeCompleted, true
	default:
		return "", false
	}
}
