package handlers

import (
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/md-rashed-zaman/salonbook/libs/httpx"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/events"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/reporting"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/storage"
)

type updateAppointmentRequest struct {
	Status *model.Status `json:"status"`
	Notes  *string       `json:"notes"`
	Date   *string       `json:"date"`
	Time   *string       `json:"time"`
}

type serviceRequest struct {
	Name            *string `json:"name"`
	DurationMinutes *int    `json:"durationMinutes"`
	Price           *int64  `json:"price"`
	Description     *string `json:"description"`
}

type scheduleResponse struct {
	Days         []model.ScheduleDay `json:"days"`
	SpecialDates []model.SpecialDate `json:"specialDates"`
}

type scheduleRequest struct {
	Days []model.ScheduleDay `json:"days"`
}

// AdminAppointments lists appointments by date and time, optionally
// filtered by ?date= and ?status=.
func (h *BookingHandler) AdminAppointments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	date := strings.TrimSpace(q.Get("date"))
	if date != "" {
		if _, err := model.ParseDate(date, h.loc); err != nil {
			http.Error(w, "invalid date (want YYYY-MM-DD)", http.StatusBadRequest)
			return
		}
	}
	status := model.Status(strings.TrimSpace(q.Get("status")))
	if status != "" && !status.Valid() {
		http.Error(w, "invalid status", http.StatusBadRequest)
		return
	}

	var out []model.Appointment
	for _, a := range h.store.Appointments() {
		if date != "" && a.Date != date {
			continue
		}
		if status != "" && a.Status != status {
			continue
		}
		out = append(out, a)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].Time < out[j].Time
	})
	httpx.WriteJSON(w, http.StatusOK, h.views(out))
}

// UpdateAppointment changes status, notes or the booked slot.
func (h *BookingHandler) UpdateAppointment(w http.ResponseWriter, r *http.Request) {
	apptID := chi.URLParam(r, "id")

	var req updateAppointmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	cur, ok := h.store.Appointment(apptID)
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if req.Date != nil || req.Time != nil {
		date, slot := cur.Date, cur.Time
		if req.Date != nil {
			date = strings.TrimSpace(*req.Date)
		}
		if req.Time != nil {
			slot = strings.TrimSpace(*req.Time)
		}
		if date != cur.Date || slot != cur.Time {
			if status, msg := h.checkBookable(date, slot); status != 0 {
				http.Error(w, msg, status)
				return
			}
		}
	}

	change, err := h.store.UpdateAppointment(r.Context(), apptID, storage.AppointmentPatch{
		Status: req.Status,
		Notes:  req.Notes,
		Date:   req.Date,
		Time:   req.Time,
	})
	if err != nil {
		h.writeStoreError(w, r, err, http.StatusBadRequest)
		return
	}

	if change.Before.Status != change.After.Status {
		h.metrics.ObserveTransition(string(change.After.Status))
		if eventType, ok := events.ForStatus(change.After.Status); ok {
			h.publish(r.Context(), eventType, change)
		}
	}
	if change.Rescheduled() {
		h.publish(r.Context(), events.TypeRescheduled, change)
	}
	if change.Changed() {
		h.logger.Info("appointment updated",
			"appointment_id", apptID,
			"status", change.After.Status,
			"date", change.After.Date,
			"time", change.After.Time,
		)
	}
	httpx.WriteJSON(w, http.StatusOK, h.view(change.After, h.catalog()))
}

// AdminServices returns the full catalog, deleted services included.
func (h *BookingHandler) AdminServices(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, h.store.Services())
}

func (h *BookingHandler) CreateService(w http.ResponseWriter, r *http.Request) {
	var req serviceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	in := storage.NewService{}
	if req.Name != nil {
		in.Name = *req.Name
	}
	if req.DurationMinutes != nil {
		in.DurationMinutes = *req.DurationMinutes
	}
	if req.Price != nil {
		in.Price = *req.Price
	}
	if req.Description != nil {
		in.Description = *req.Description
	}

	svc, err := h.store.AddService(r.Context(), in)
	if err != nil {
		h.writeStoreError(w, r, err, http.StatusUnprocessableEntity)
		return
	}
	h.logger.Info("service created", "service_id", svc.ID, "name", svc.Name)
	httpx.WriteJSON(w, http.StatusCreated, svc)
}

func (h *BookingHandler) UpdateService(w http.ResponseWriter, r *http.Request) {
	var req serviceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	svc, err := h.store.UpdateService(r.Context(), chi.URLParam(r, "id"), storage.ServicePatch{
		Name:            req.Name,
		DurationMinutes: req.DurationMinutes,
		Price:           req.Price,
		Description:     req.Description,
	})
	if err != nil {
		h.writeStoreError(w, r, err, http.StatusUnprocessableEntity)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, svc)
}

func (h *BookingHandler) DeleteService(w http.ResponseWriter, r *http.Request) {
	serviceID := chi.URLParam(r, "id")
	if err := h.store.DeleteService(r.Context(), serviceID); err != nil {
		h.writeStoreError(w, r, err, http.StatusUnprocessableEntity)
		return
	}
	h.logger.Info("service deleted", "service_id", serviceID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *BookingHandler) Schedule(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, scheduleResponse{
		Days:         h.store.Schedule(),
		SpecialDates: h.store.SpecialDates(),
	})
}

func (h *BookingHandler) SetSchedule(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	days, err := h.store.SetSchedule(r.Context(), req.Days)
	if err != nil {
		h.writeStoreError(w, r, err, http.StatusUnprocessableEntity)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, scheduleResponse{Days: days, SpecialDates: h.store.SpecialDates()})
}

func (h *BookingHandler) AddSpecialDate(w http.ResponseWriter, r *http.Request) {
	var req model.SpecialDate
	if err := httpx.DecodeJSON(r, &req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	sd, err := h.store.AddSpecialDate(r.Context(), req)
	if err != nil {
		h.writeStoreError(w, r, err, http.StatusUnprocessableEntity)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, sd)
}

func (h *BookingHandler) RemoveSpecialDate(w http.ResponseWriter, r *http.Request) {
	if err := h.store.RemoveSpecialDate(r.Context(), chi.URLParam(r, "date")); err != nil {
		h.writeStoreError(w, r, err, http.StatusUnprocessableEntity)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Dashboard builds the admin rollup for ?ref= (default today).
func (h *BookingHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ref := h.now().In(h.loc)
	if raw := strings.TrimSpace(q.Get("ref")); raw != "" {
		d, err := model.ParseDate(raw, h.loc)
		if err != nil {
			http.Error(w, "invalid ref (want YYYY-MM-DD)", http.StatusBadRequest)
			return
		}
		ref = d
	}
	locale := strings.ToLower(strings.TrimSpace(q.Get("locale")))
	if locale == "" {
		locale = h.reportLocale
	}
	if !reporting.SupportedLocale(locale) {
		http.Error(w, "unsupported locale", http.StatusBadRequest)
		return
	}

	start := time.Now()
	d := reporting.Build(h.store.Appointments(), h.store.Services(), ref, reporting.Options{Locale: locale})
	h.metrics.ObserveReport(time.Since(start).Seconds())
	httpx.WriteJSON(w, http.StatusOK, d)
}
