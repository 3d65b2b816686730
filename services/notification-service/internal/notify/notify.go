package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/md-rashed-zaman/salonbook/libs/kafkax"
	"github.com/md-rashed-zaman/salonbook/services/notification-service/internal/email"
	"github.com/segmentio/kafka-go"
)

const (
	TypeBooked      = "appointment.booked.v1"
	TypeCancelled   = "appointment.cancelled.v1"
	TypeCompleted   = "appointment.completed.v1"
	TypeRescheduled = "appointment.rescheduled.v1"
)

// Topics lists every event type the notifier understands.
var Topics = []string{TypeBooked, TypeCancelled, TypeCompleted, TypeRescheduled}

// appointmentPayload mirrors the JSON the booking service publishes.
type appointmentPayload struct {
	AppointmentID string `json:"appointmentId"`
	ClientID      string `json:"clientId"`
	ClientEmail   string `json:"clientEmail"`
	ServiceName   string `json:"serviceName"`
	Date          string `json:"date"`
	Time          string `json:"time"`
	Status        string `json:"status"`
	PreviousDate  string `json:"previousDate"`
	PreviousTime  string `json:"previousTime"`
}

type template struct {
	subject string
	body    string
}

var templates = map[string]map[string]template{
	"es": {
		TypeBooked:      {"Cita confirmada", "Tu cita de %s el %s a las %s está confirmada."},
		TypeCancelled:   {"Cita cancelada", "Tu cita de %s el %s a las %s ha sido cancelada."},
		TypeCompleted:   {"Gracias por tu visita", "Tu cita de %s el %s a las %s se ha completado. ¡Gracias!"},
		TypeRescheduled: {"Cita reprogramada", "Tu cita de %s se ha movido al %s a las %s."},
	},
	"en": {
		TypeBooked:      {"Appointment confirmed", "Your %s appointment on %s at %s is confirmed."},
		TypeCancelled:   {"Appointment cancelled", "Your %s appointment on %s at %s has been cancelled."},
		TypeCompleted:   {"Thanks for visiting", "Your %s appointment on %s at %s is complete. Thank you!"},
		TypeRescheduled: {"Appointment rescheduled", "Your %s appointment has moved to %s at %s."},
	},
}

// SupportedLocale reports whether locale has a template set.
func SupportedLocale(locale string) bool {
	_, ok := templates[locale]
	return ok
}

type Notifier struct {
	sender email.Sender
	logger *slog.Logger
	locale string
}

func New(sender email.Sender, logger *slog.Logger, locale string) *Notifier {
	locale = strings.ToLower(strings.TrimSpace(locale))
	if !SupportedLocale(locale) {
		locale = "es"
	}
	return &Notifier{sender: sender, logger: logger, locale: locale}
}

// Render builds the subject and body for an event. ok is false for event
// types with no template.
func (n *Notifier) Render(eventType string, p appointmentPayload) (subject, body string, ok bool) {
	tpl, ok := templates[n.locale][eventType]
	if !ok {
		return "", "", false
	}
	body = fmt.Sprintf(tpl.body, p.ServiceName, p.Date, p.Time)
	if eventType == TypeRescheduled && p.PreviousDate != "" {
		if n.locale == "es" {
			body += fmt.Sprintf(" (antes: %s %s)", p.PreviousDate, p.PreviousTime)
		} else {
			body += fmt.Sprintf(" (was: %s %s)", p.PreviousDate, p.PreviousTime)
		}
	}
	return tpl.subject, body, true
}

// Handle is a consumer handler. Malformed or unaddressable events are
// logged and acknowledged; only send failures are returned for redelivery.
func (n *Notifier) Handle(ctx context.Context, msg kafka.Message) error {
	eventType := kafkax.HeaderValue(msg.Headers, "event_type")
	if eventType == "" {
		eventType = msg.Topic
	}

	var p appointmentPayload
	if err := json.Unmarshal(msg.Value, &p); err != nil {
		n.logger.ErrorContext(ctx, "invalid appointment payload", "err", err, "event_type", eventType)
		return nil
	}
	if strings.TrimSpace(p.ClientEmail) == "" {
		n.logger.InfoContext(ctx, "no recipient, skipping", "appointment_id", p.AppointmentID, "event_type", eventType)
		return nil
	}

	subject, body, ok := n.Render(eventType, p)
	if !ok {
		n.logger.WarnContext(ctx, "unknown event type", "event_type", eventType)
		return nil
	}

	if err := n.sender.Send(p.ClientEmail, subject, body); err != nil {
		return fmt.Errorf("send %s to %s: %w", eventType, p.ClientEmail, err)
	}
	n.logger.InfoContext(ctx, "notification sent",
		"appointment_id", p.AppointmentID,
		"event_type", eventType,
		"provider", n.sender.ProviderID(),
	)
	return nil
}
