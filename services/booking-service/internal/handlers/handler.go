package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/md-rashed-zaman/salonbook/libs/httpx"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/events"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/metrics"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/reporting"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/storage"
)

// Identity headers set by the gateway after verifying the bearer token.
const (
	HeaderUserID    = "X-User-Id"
	HeaderUserName  = "X-User-Name"
	HeaderUserEmail = "X-User-Email"
	HeaderRole      = "X-Role"

	roleClient = "client"
	roleAdmin  = "admin"
)

const slotStep = 30 * time.Minute

// EventSink receives lifecycle events after a successful store mutation.
type EventSink interface {
	Enqueue(ctx context.Context, ev events.Event)
}

type Options struct {
	Logger   *slog.Logger
	Metrics  *metrics.BookingMetrics
	Events   EventSink
	Location *time.Location
	// ScheduleEnforced switches slot generation from the fixed grid to the
	// grid derived from the weekly schedule and special dates.
	ScheduleEnforced bool
	ReportLocale     string
	Now              func() time.Time
}

type BookingHandler struct {
	store            *storage.Store
	logger           *slog.Logger
	metrics          *metrics.BookingMetrics
	events           EventSink
	loc              *time.Location
	scheduleEnforced bool
	reportLocale     string
	now              func() time.Time
}

func NewBookingHandler(store *storage.Store, opts Options) *BookingHandler {
	h := &BookingHandler{
		store:            store,
		logger:           opts.Logger,
		metrics:          opts.Metrics,
		events:           opts.Events,
		loc:              opts.Location,
		scheduleEnforced: opts.ScheduleEnforced,
		reportLocale:     opts.ReportLocale,
		now:              opts.Now,
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	if h.loc == nil {
		h.loc = time.UTC
	}
	if h.reportLocale == "" {
		h.reportLocale = reporting.DefaultLocale
	}
	if h.now == nil {
		h.now = time.Now
	}
	return h
}

// Routes mounts the booking API under /api/v1.
func (h *BookingHandler) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/public", func(r chi.Router) {
			r.Get("/services", h.PublicServices)
			r.Get("/slots", h.Slots)
		})

		r.Route("/appointments", func(r chi.Router) {
			r.Use(requireIdentity)
			r.Post("/", h.Create)
			r.Get("/mine", h.Mine)
			r.Post("/{id}/cancel", h.Cancel)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(requireIdentity, requireRole(roleAdmin))
			r.Get("/appointments", h.AdminAppointments)
			r.Patch("/appointments/{id}", h.UpdateAppointment)

			r.Get("/services", h.AdminServices)
			r.Post("/services", h.CreateService)
			r.Put("/services/{id}", h.UpdateService)
			r.Delete("/services/{id}", h.DeleteService)

			r.Get("/schedule", h.Schedule)
			r.Put("/schedule", h.SetSchedule)
			r.Post("/schedule/special-dates", h.AddSpecialDate)
			r.Delete("/schedule/special-dates/{date}", h.RemoveSpecialDate)

			r.Get("/reports/dashboard", h.Dashboard)
		})
	})
}

// Identity is the caller as asserted by the gateway.
type Identity struct {
	UserID string
	Name   string
	Email  string
	Role   string
}

func (id Identity) IsAdmin() bool { return id.Role == roleAdmin }

type identityKey struct{}

func identityFromContext(ctx context.Context) Identity {
	id, _ := ctx.Value(identityKey{}).(Identity)
	return id
}

func requireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := Identity{
			UserID: strings.TrimSpace(r.Header.Get(HeaderUserID)),
			Name:   strings.TrimSpace(r.Header.Get(HeaderUserName)),
			Email:  strings.TrimSpace(r.Header.Get(HeaderUserEmail)),
			Role:   strings.ToLower(strings.TrimSpace(r.Header.Get(HeaderRole))),
		}
		if id.UserID == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if id.Role != roleAdmin {
			id.Role = roleClient
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), identityKey{}, id)))
	})
}

func requireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if identityFromContext(r.Context()).Role != role {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// writeStoreError maps storage errors to a status. invalidStatus is used for
// ErrValidation since callers differ on 400 vs 422.
func (h *BookingHandler) writeStoreError(w http.ResponseWriter, r *http.Request, err error, invalidStatus int) {
	var verr *storage.ValidationError
	switch {
	case errors.As(err, &verr):
		http.Error(w, verr.Error(), invalidStatus)
	case errors.Is(err, storage.ErrValidation):
		http.Error(w, "invalid request", invalidStatus)
	case errors.Is(err, storage.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, storage.ErrSlotTaken):
		http.Error(w, "time slot already booked", http.StatusConflict)
	case errors.Is(err, storage.ErrInvalidTransition):
		http.Error(w, "invalid status transition", http.StatusConflict)
	default:
		h.logger.Error("store error",
			"err", err,
			"request_id", httpx.RequestIDFromContext(r.Context()),
			"path", r.URL.Path,
		)
		http.Error(w, "storage error", http.StatusInternalServerError)
	}
}

func (h *BookingHandler) publish(ctx context.Context, eventType string, change storage.AppointmentChange) {
	if h.events == nil {
		return
	}
	ev, err := events.ForAppointment(eventType, change.After, change.Before, h.now())
	if err != nil {
		h.logger.Error("encode event failed", "err", err, "event_type", eventType)
		return
	}
	h.events.Enqueue(ctx, ev)
}

func isValidation(err error) bool { return errors.Is(err, storage.ErrValidation) }
