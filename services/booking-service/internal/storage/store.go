package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/model"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const defaultServiceDuration = 30

var tracer = otel.Tracer("salonbook/booking-service/storage")

type slotKey struct {
	date string
	time string
}

// Store owns the services, appointments and schedule collections. Reads
// return copies; every mutation builds a new collection, persists it through
// the backend and only then swaps it in, all under one write lock.
type Store struct {
	backend Backend
	logger  *slog.Logger
	now     func() time.Time
	newID   func() string

	mu           sync.RWMutex
	services     []model.Service
	appointments []model.Appointment
	schedule     []model.ScheduleDay
	special      []model.SpecialDate
	// slots maps each occupied (date, time) to the appointments holding it.
	// Only state persisted before the index existed can hold more than one.
	slots map[slotKey][]string
}

type Options struct {
	Logger *slog.Logger
	Now    func() time.Time
	NewID  func() string
	// Seed writes the default catalog and schedule for keys that were never
	// saved.
	Seed bool
}

type NewAppointment struct {
	ClientID    string
	ClientName  string
	ClientEmail string
	ServiceID   string
	Date        string
	Time        string
	Notes       string
}

// AppointmentPatch changes only the non-nil fields.
type AppointmentPatch struct {
	Status *model.Status
	Notes  *string
	Date   *string
	Time   *string
}

type AppointmentChange struct {
	Before model.Appointment
	After  model.Appointment
}

func (c AppointmentChange) Changed() bool { return c.Before != c.After }

func (c AppointmentChange) Rescheduled() bool {
	return c.Before.Date != c.After.Date || c.Before.Time != c.After.Time
}

type NewService struct {
	Name            string
	DurationMinutes int
	Price           int64
	Description     string
}

type ServicePatch struct {
	Name            *string
	DurationMinutes *int
	Price           *int64
	Description     *string
}

func Open(ctx context.Context, backend Backend, opts Options) (*Store, error) {
	s := &Store{
		backend: backend,
		logger:  opts.Logger,
		now:     opts.Now,
		newID:   opts.NewID,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}

	if err := load(ctx, s, KeyServices, &s.services, opts.Seed, model.DefaultServices); err != nil {
		return nil, err
	}
	if err := load(ctx, s, KeyAppointments, &s.appointments, false, nil); err != nil {
		return nil, err
	}
	if err := load(ctx, s, KeySchedule, &s.schedule, opts.Seed, model.DefaultSchedule); err != nil {
		return nil, err
	}
	if err := load(ctx, s, KeySpecialDates, &s.special, false, nil); err != nil {
		return nil, err
	}
	if s.appointments == nil {
		s.appointments = []model.Appointment{}
	}
	if s.special == nil {
		s.special = []model.SpecialDate{}
	}
	if s.schedule == nil {
		s.schedule = []model.ScheduleDay{}
	}
	if s.services == nil {
		s.services = []model.Service{}
	}
	s.slots = s.indexSlots(s.appointments)
	return s, nil
}

func load[T any](ctx context.Context, s *Store, key string, dst *[]T, seed bool, defaults func() []T) error {
	raw, ok, err := s.backend.Load(ctx, key)
	if err != nil {
		return fmt.Errorf("storage: load %s: %w", key, err)
	}
	if ok {
		if err := json.Unmarshal(raw, dst); err != nil {
			return fmt.Errorf("storage: decode %s: %w", key, err)
		}
		return nil
	}
	if !seed || defaults == nil {
		return nil
	}
	*dst = defaults()
	if err := s.persist(ctx, key, *dst); err != nil {
		return err
	}
	s.logger.Info("seeded default state", "key", key, "records", len(*dst))
	return nil
}

// indexSlots builds the occupancy index. Stored state that already holds
// two live appointments on one slot keeps both holders and logs a warning;
// the slot stays taken until every holder releases it.
func (s *Store) indexSlots(appts []model.Appointment) map[slotKey][]string {
	idx := make(map[slotKey][]string, len(appts))
	for _, a := range appts {
		if !a.Occupies() {
			continue
		}
		k := slotKey{a.Date, a.Time}
		if holders := idx[k]; len(holders) > 0 {
			s.logger.Warn("double booked slot in stored state", "date", a.Date, "time", a.Time, "appointment_id", a.ID, "holder_id", holders[0])
		}
		idx[k] = append(idx[k], a.ID)
	}
	return idx
}

// heldByOther reports whether a live appointment other than id holds k.
func (s *Store) heldByOther(k slotKey, id string) bool {
	for _, holder := range s.slots[k] {
		if holder != id {
			return true
		}
	}
	return false
}

func (s *Store) release(k slotKey, id string) {
	holders := s.slots[k]
	kept := holders[:0]
	for _, holder := range holders {
		if holder != id {
			kept = append(kept, holder)
		}
	}
	if len(kept) == 0 {
		delete(s.slots, k)
		return
	}
	s.slots[k] = kept
}

func (s *Store) hold(k slotKey, id string) {
	for _, holder := range s.slots[k] {
		if holder == id {
			return
		}
	}
	s.slots[k] = append(s.slots[k], id)
}

func (s *Store) persist(ctx context.Context, key string, v any) error {
	ctx, span := tracer.Start(ctx, "storage.save", trace.WithAttributes(attribute.String("storage.key", key)))
	defer span.End()

	raw, err := json.Marshal(v)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("storage: encode %s: %w", key, err)
	}
	if err := s.backend.Save(ctx, key, raw); err != nil {
		span.RecordError(err)
		return fmt.Errorf("storage: save %s: %w", key, err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.backend.Ping(ctx)
}

// Services returns the whole catalog, deleted services included.
func (s *Store) Services() []model.Service {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Service(nil), s.services...)
}

// ActiveServices returns the bookable catalog.
func (s *Store) ActiveServices() []model.Service {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Service, 0, len(s.services))
	for _, svc := range s.services {
		if svc.Active() {
			out = append(out, svc)
		}
	}
	return out
}

func (s *Store) Service(id string) (model.Service, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := indexOfService(s.services, id)
	if i < 0 {
		return model.Service{}, false
	}
	return s.services[i], true
}

func (s *Store) Appointments() []model.Appointment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Appointment(nil), s.appointments...)
}

func (s *Store) Appointment(id string) (model.Appointment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := indexOfAppointment(s.appointments, id)
	if i < 0 {
		return model.Appointment{}, false
	}
	return s.appointments[i], true
}

func (s *Store) Schedule() []model.ScheduleDay {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.ScheduleDay(nil), s.schedule...)
}

func (s *Store) SpecialDates() []model.SpecialDate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.SpecialDate(nil), s.special...)
}

// AddAppointment books a slot. The occupancy check and the insert happen
// under the write lock, so two requests for one slot cannot both succeed.
func (s *Store) AddAppointment(ctx context.Context, in NewAppointment) (model.Appointment, error) {
	in.ClientID = strings.TrimSpace(in.ClientID)
	in.ServiceID = strings.TrimSpace(in.ServiceID)
	in.Date = strings.TrimSpace(in.Date)
	in.Time = strings.TrimSpace(in.Time)
	if err := validateAppointmentInput(in); err != nil {
		return model.Appointment{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i := indexOfService(s.services, in.ServiceID)
	if i < 0 || !s.services[i].Active() {
		return model.Appointment{}, invalid("serviceId", "unknown service")
	}
	if len(s.slots[slotKey{in.Date, in.Time}]) > 0 {
		return model.Appointment{}, ErrSlotTaken
	}

	appt := model.Appointment{
		ID:          s.newID(),
		ClientID:    in.ClientID,
		ClientName:  strings.TrimSpace(in.ClientName),
		ClientEmail: strings.TrimSpace(in.ClientEmail),
		ServiceID:   in.ServiceID,
		ServiceName: s.services[i].Name,
		Date:        in.Date,
		Time:        in.Time,
		Status:      model.StatusConfirmed,
		Notes:       strings.TrimSpace(in.Notes),
		CreatedAt:   s.now().UTC(),
	}

	next := make([]model.Appointment, 0, len(s.appointments)+1)
	next = append(next, s.appointments...)
	next = append(next, appt)
	if err := s.persist(ctx, KeyAppointments, next); err != nil {
		return model.Appointment{}, err
	}
	s.appointments = next
	s.hold(slotKey{appt.Date, appt.Time}, appt.ID)
	return appt, nil
}

func validateAppointmentInput(in NewAppointment) error {
	switch {
	case in.ClientID == "":
		return invalid("clientId", "required")
	case in.ServiceID == "":
		return invalid("serviceId", "required")
	case in.Date == "":
		return invalid("date", "required")
	case in.Time == "":
		return invalid("time", "required")
	}
	if _, err := time.Parse(model.DateLayout, in.Date); err != nil {
		return invalid("date", "must be YYYY-MM-DD")
	}
	if _, err := model.ParseClock(in.Time); err != nil {
		return invalid("time", "must be HH:MM")
	}
	return nil
}

// UpdateAppointment applies patch atomically. Moving a live appointment onto
// a slot held by another one fails with ErrSlotTaken.
func (s *Store) UpdateAppointment(ctx context.Context, id string, patch AppointmentPatch) (AppointmentChange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := indexOfAppointment(s.appointments, id)
	if i < 0 {
		return AppointmentChange{}, ErrNotFound
	}
	cur := s.appointments[i]
	next := cur

	if patch.Status != nil {
		if !patch.Status.Valid() {
			return AppointmentChange{}, invalid("status", "unknown status")
		}
		if !cur.Status.CanTransition(*patch.Status) {
			return AppointmentChange{}, ErrInvalidTransition
		}
		next.Status = *patch.Status
	}
	if patch.Notes != nil {
		next.Notes = strings.TrimSpace(*patch.Notes)
	}
	if patch.Date != nil {
		next.Date = strings.TrimSpace(*patch.Date)
		if _, err := time.Parse(model.DateLayout, next.Date); err != nil {
			return AppointmentChange{}, invalid("date", "must be YYYY-MM-DD")
		}
	}
	if patch.Time != nil {
		next.Time = strings.TrimSpace(*patch.Time)
		if _, err := model.ParseClock(next.Time); err != nil {
			return AppointmentChange{}, invalid("time", "must be HH:MM")
		}
	}

	change := AppointmentChange{Before: cur, After: next}
	if change.Rescheduled() && next.Status != model.StatusConfirmed {
		return AppointmentChange{}, ErrInvalidTransition
	}
	if next.Occupies() {
		if s.heldByOther(slotKey{next.Date, next.Time}, id) {
			return AppointmentChange{}, ErrSlotTaken
		}
	}
	if !change.Changed() {
		return change, nil
	}

	if err := s.replaceAppointment(ctx, i, next); err != nil {
		return AppointmentChange{}, err
	}
	return change, nil
}

// CancelAppointment frees the slot. Cancelling twice is a no-op.
func (s *Store) CancelAppointment(ctx context.Context, id string) (AppointmentChange, error) {
	cancelled := model.StatusCancelled
	return s.UpdateAppointment(ctx, id, AppointmentPatch{Status: &cancelled})
}

// replaceAppointment swaps in next at index i. Caller holds mu.
func (s *Store) replaceAppointment(ctx context.Context, i int, next model.Appointment) error {
	cur := s.appointments[i]
	updated := make([]model.Appointment, len(s.appointments))
	copy(updated, s.appointments)
	updated[i] = next
	if err := s.persist(ctx, KeyAppointments, updated); err != nil {
		return err
	}
	s.appointments = updated

	if cur.Occupies() {
		s.release(slotKey{cur.Date, cur.Time}, cur.ID)
	}
	if next.Occupies() {
		s.hold(slotKey{next.Date, next.Time}, next.ID)
	}
	return nil
}

func (s *Store) AddService(ctx context.Context, in NewService) (model.Service, error) {
	svc := model.Service{
		Name:            strings.TrimSpace(in.Name),
		DurationMinutes: in.DurationMinutes,
		Price:           in.Price,
		Description:     strings.TrimSpace(in.Description),
	}
	if svc.DurationMinutes == 0 {
		svc.DurationMinutes = defaultServiceDuration
	}
	if err := validateService(svc); err != nil {
		return model.Service{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	svc.ID = s.newID()
	next := make([]model.Service, 0, len(s.services)+1)
	next = append(next, s.services...)
	next = append(next, svc)
	if err := s.persist(ctx, KeyServices, next); err != nil {
		return model.Service{}, err
	}
	s.services = next
	return svc, nil
}

// UpdateService edits an active service. Appointment views and reports look
// the service up live, so the new name and price apply to past bookings too.
func (s *Store) UpdateService(ctx context.Context, id string, patch ServicePatch) (model.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := indexOfService(s.services, id)
	if i < 0 || !s.services[i].Active() {
		return model.Service{}, ErrNotFound
	}
	svc := s.services[i]
	if patch.Name != nil {
		svc.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.DurationMinutes != nil {
		svc.DurationMinutes = *patch.DurationMinutes
	}
	if patch.Price != nil {
		svc.Price = *patch.Price
	}
	if patch.Description != nil {
		svc.Description = strings.TrimSpace(*patch.Description)
	}
	if err := validateService(svc); err != nil {
		return model.Service{}, err
	}

	if err := s.replaceService(ctx, i, svc); err != nil {
		return model.Service{}, err
	}
	return svc, nil
}

// DeleteService tombstones the service: it leaves the bookable catalog but
// still resolves for existing appointments and revenue.
func (s *Store) DeleteService(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := indexOfService(s.services, id)
	if i < 0 {
		return ErrNotFound
	}
	svc := s.services[i]
	if !svc.Active() {
		return nil
	}
	at := s.now().UTC()
	svc.DeletedAt = &at
	return s.replaceService(ctx, i, svc)
}

// replaceService swaps in svc at index i. Caller holds mu.
func (s *Store) replaceService(ctx context.Context, i int, svc model.Service) error {
	next := make([]model.Service, len(s.services))
	copy(next, s.services)
	next[i] = svc
	if err := s.persist(ctx, KeyServices, next); err != nil {
		return err
	}
	s.services = next
	return nil
}

func validateService(svc model.Service) error {
	switch {
	case svc.Name == "":
		return invalid("name", "required")
	case svc.Description == "":
		return invalid("description", "required")
	case svc.Price <= 0:
		return invalid("price", "must be greater than zero")
	case svc.DurationMinutes <= 0:
		return invalid("durationMinutes", "must be greater than zero")
	}
	return nil
}

// SetSchedule replaces the weekly schedule. Exactly one record per weekday
// is required; the result is stored Sunday first.
func (s *Store) SetSchedule(ctx context.Context, days []model.ScheduleDay) ([]model.ScheduleDay, error) {
	if len(days) != 7 {
		return nil, invalid("schedule", "exactly 7 days required")
	}
	next := make([]model.ScheduleDay, 0, 7)
	seen := map[int]bool{}
	for _, d := range days {
		if d.Day < 0 || d.Day > 6 {
			return nil, invalid("day", "must be between 0 and 6")
		}
		if seen[d.Day] {
			return nil, invalid("day", fmt.Sprintf("duplicate weekday %d", d.Day))
		}
		seen[d.Day] = true
		d.StartTime = strings.TrimSpace(d.StartTime)
		d.EndTime = strings.TrimSpace(d.EndTime)
		d.BreakStart = strings.TrimSpace(d.BreakStart)
		d.BreakEnd = strings.TrimSpace(d.BreakEnd)
		if err := validateScheduleDay(d); err != nil {
			return nil, err
		}
		next = append(next, d)
	}
	sort.Slice(next, func(i, j int) bool { return next[i].Day < next[j].Day })

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.persist(ctx, KeySchedule, next); err != nil {
		return nil, err
	}
	s.schedule = next
	return append([]model.ScheduleDay(nil), next...), nil
}

func validateScheduleDay(d model.ScheduleDay) error {
	start, err := model.ParseClock(d.StartTime)
	if err != nil {
		return invalid("startTime", "must be HH:MM")
	}
	end, err := model.ParseClock(d.EndTime)
	if err != nil {
		return invalid("endTime", "must be HH:MM")
	}
	if d.Enabled && end <= start {
		return invalid("endTime", "must be after startTime")
	}
	if (d.BreakStart == "") != (d.BreakEnd == "") {
		return invalid("breakStart", "break needs both start and end")
	}
	if d.BreakStart == "" {
		return nil
	}
	bs, err := model.ParseClock(d.BreakStart)
	if err != nil {
		return invalid("breakStart", "must be HH:MM")
	}
	be, err := model.ParseClock(d.BreakEnd)
	if err != nil {
		return invalid("breakEnd", "must be HH:MM")
	}
	if be <= bs {
		return invalid("breakEnd", "must be after breakStart")
	}
	if d.Enabled && (bs < start || be > end) {
		return invalid("breakStart", "break must fall inside opening hours")
	}
	return nil
}

// AddSpecialDate closes a date. Re-adding a date replaces its reason.
func (s *Store) AddSpecialDate(ctx context.Context, sd model.SpecialDate) (model.SpecialDate, error) {
	sd.Date = strings.TrimSpace(sd.Date)
	sd.Reason = strings.TrimSpace(sd.Reason)
	if _, err := time.Parse(model.DateLayout, sd.Date); err != nil {
		return model.SpecialDate{}, invalid("date", "must be YYYY-MM-DD")
	}
	if sd.Reason == "" {
		return model.SpecialDate{}, invalid("reason", "required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := make([]model.SpecialDate, 0, len(s.special)+1)
	for _, cur := range s.special {
		if cur.Date != sd.Date {
			next = append(next, cur)
		}
	}
	next = append(next, sd)
	sort.Slice(next, func(i, j int) bool { return next[i].Date < next[j].Date })
	if err := s.persist(ctx, KeySpecialDates, next); err != nil {
		return model.SpecialDate{}, err
	}
	s.special = next
	return sd, nil
}

func (s *Store) RemoveSpecialDate(ctx context.Context, date string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make([]model.SpecialDate, 0, len(s.special))
	for _, cur := range s.special {
		if cur.Date != date {
			next = append(next, cur)
		}
	}
	if len(next) == len(s.special) {
		return ErrNotFound
	}
	if err := s.persist(ctx, KeySpecialDates, next); err != nil {
		return err
	}
	s.special = next
	return nil
}

func indexOfService(services []model.Service, id string) int {
	for i := range services {
		if services[i].ID == id {
			return i
		}
	}
	return -1
}

func indexOfAppointment(appts []model.Appointment, id string) int {
	for i := range appts {
		if appts[i].ID == id {
			return i
		}
	}
	return -1
}
