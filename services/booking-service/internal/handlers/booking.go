package handlers

import (
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/md-rashed-zaman/salonbook/libs/httpx"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/events"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/storage"
)

type createBookingRequest struct {
	ServiceID string `json:"serviceId"`
	Date      string `json:"date"`
	Time      string `json:"time"`
	Notes     string `json:"notes"`
}

type slotsResponse struct {
	Date  string   `json:"date"`
	Slots []string `json:"slots"`
}

// appointmentView is an appointment as returned by the API. The service name
// and price come from the current catalog, deleted services included.
type appointmentView struct {
	model.Appointment
	ServicePrice   int64 `json:"servicePrice"`
	ServiceDeleted bool  `json:"serviceDeleted,omitempty"`
}

func (h *BookingHandler) view(a model.Appointment, catalog map[string]model.Service) appointmentView {
	v := appointmentView{Appointment: a}
	if svc, ok := catalog[a.ServiceID]; ok {
		v.ServiceName = svc.Name
		v.ServicePrice = svc.Price
		v.ServiceDeleted = !svc.Active()
	}
	return v
}

func (h *BookingHandler) views(appts []model.Appointment) []appointmentView {
	catalog := h.catalog()
	out := make([]appointmentView, 0, len(appts))
	for _, a := range appts {
		out = append(out, h.view(a, catalog))
	}
	return out
}

func (h *BookingHandler) catalog() map[string]model.Service {
	services := h.store.Services()
	out := make(map[string]model.Service, len(services))
	for _, s := range services {
		out[s.ID] = s
	}
	return out
}

func (h *BookingHandler) PublicServices(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, h.store.ActiveServices())
}

// gridFor returns the bookable grid for date.
func (h *BookingHandler) gridFor(date string) []string {
	if !h.scheduleEnforced {
		return availability.Grid()
	}
	return availability.GridForDate(date, h.loc, h.store.Schedule(), h.store.SpecialDates(), slotStep)
}

func (h *BookingHandler) Slots(w http.ResponseWriter, r *http.Request) {
	date := strings.TrimSpace(r.URL.Query().Get("date"))
	if _, err := model.ParseDate(date, h.loc); err != nil {
		http.Error(w, "invalid date (want YYYY-MM-DD)", http.StatusBadRequest)
		return
	}
	h.metrics.ObserveSlotQuery()

	slots := availability.FilterGrid(h.gridFor(date), date, h.store.Appointments())
	httpx.WriteJSON(w, http.StatusOK, slotsResponse{Date: date, Slots: slots})
}

func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	id := identityFromContext(r.Context())

	var req createBookingRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.metrics.ObserveBooking("invalid")
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.ServiceID = strings.TrimSpace(req.ServiceID)
	req.Date = strings.TrimSpace(req.Date)
	req.Time = strings.TrimSpace(req.Time)
	if req.ServiceID == "" || req.Date == "" || req.Time == "" {
		h.metrics.ObserveBooking("invalid")
		http.Error(w, "serviceId, date and time are required", http.StatusBadRequest)
		return
	}

	if status, msg := h.checkBookable(req.Date, req.Time); status != 0 {
		h.metrics.ObserveBooking("invalid")
		http.Error(w, msg, status)
		return
	}

	appt, err := h.store.AddAppointment(r.Context(), storage.NewAppointment{
		ClientID:    id.UserID,
		ClientName:  id.Name,
		ClientEmail: id.Email,
		ServiceID:   req.ServiceID,
		Date:        req.Date,
		Time:        req.Time,
		Notes:       req.Notes,
	})
	if err != nil {
		switch {
		case storage.IsConflict(err):
			h.metrics.ObserveBooking("conflict")
		case storage.IsNotFound(err), isValidation(err):
			h.metrics.ObserveBooking("invalid")
		default:
			h.metrics.ObserveBooking("error")
		}
		h.writeStoreError(w, r, err, http.StatusUnprocessableEntity)
		return
	}
	h.metrics.ObserveBooking("created")
	h.publish(r.Context(), events.TypeBooked, storage.AppointmentChange{After: appt})

	h.logger.Info("appointment booked",
		"appointment_id", appt.ID,
		"user_id", id.UserID,
		"date", appt.Date,
		"time", appt.Time,
	)
	httpx.WriteJSON(w, http.StatusCreated, h.view(appt, h.catalog()))
}

// checkBookable validates date and slot against the grid and the clock. It
// returns status 0 when the slot may be booked.
func (h *BookingHandler) checkBookable(date, slot string) (int, string) {
	day, err := model.ParseDate(date, h.loc)
	if err != nil {
		return http.StatusBadRequest, "invalid date (want YYYY-MM-DD)"
	}
	mins, err := model.ParseClock(slot)
	if err != nil {
		return http.StatusBadRequest, "invalid time (want HH:MM)"
	}

	now := h.now().In(h.loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, h.loc)
	if day.Before(today) {
		return http.StatusUnprocessableEntity, "date is in the past"
	}
	if day.Equal(today) && mins <= now.Hour()*60+now.Minute() {
		return http.StatusUnprocessableEntity, "time has already passed"
	}
	if !availability.OnGrid(h.gridFor(date), slot) {
		return http.StatusUnprocessableEntity, "time is not a bookable slot"
	}
	return 0, ""
}

// Mine lists the caller's appointments, newest first.
func (h *BookingHandler) Mine(w http.ResponseWriter, r *http.Request) {
	id := identityFromContext(r.Context())

	var mine []model.Appointment
	for _, a := range h.store.Appointments() {
		if a.ClientID == id.UserID {
			mine = append(mine, a)
		}
	}
	sort.SliceStable(mine, func(i, j int) bool {
		if mine[i].Date != mine[j].Date {
			return mine[i].Date > mine[j].Date
		}
		return mine[i].Time > mine[j].Time
	})
	httpx.WriteJSON(w, http.StatusOK, h.views(mine))
}

// Cancel cancels one of the caller's appointments. Admins may cancel any.
func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id := identityFromContext(r.Context())
	apptID := chi.URLParam(r, "id")

	appt, ok := h.store.Appointment(apptID)
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if appt.ClientID != id.UserID && !id.IsAdmin() {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	change, err := h.store.CancelAppointment(r.Context(), apptID)
	if err != nil {
		h.writeStoreError(w, r, err, http.StatusUnprocessableEntity)
		return
	}
	if change.Changed() {
		h.metrics.ObserveTransition(string(model.StatusCancelled))
		h.publish(r.Context(), events.TypeCancelled, change)
		h.logger.Info("appointment cancelled", "appointment_id", apptID, "user_id", id.UserID)
	}
	httpx.WriteJSON(w, http.StatusOK, h.view(change.After, h.catalog()))
}
