package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 6, 10, 8, 0, 0, 0, time.UTC)

func sequentialIDs() func() string {
	var n atomic.Int64
	return func() string { return fmt.Sprintf("id-%d", n.Add(1)) }
}

func openStore(t *testing.T, backend Backend) *Store {
	t.Helper()
	s, err := Open(context.Background(), backend, Options{
		Now:   func() time.Time { return fixedNow },
		NewID: sequentialIDs(),
		Seed:  true,
	})
	require.NoError(t, err)
	return s
}

func booking(clientID, date, at string) NewAppointment {
	return NewAppointment{
		ClientID:    clientID,
		ClientName:  "Ana",
		ClientEmail: "ana@example.com",
		ServiceID:   "1",
		Date:        date,
		Time:        at,
	}
}

func TestOpenSeedsDefaults(t *testing.T) {
	backend := NewMemoryBackend()
	s := openStore(t, backend)

	assert.Len(t, s.Services(), 4)
	assert.Len(t, s.Schedule(), 7)
	assert.Empty(t, s.Appointments())

	_, ok, err := backend.Load(context.Background(), KeyServices)
	require.NoError(t, err)
	assert.True(t, ok, "seeded services must be persisted")
	_, ok, _ = backend.Load(context.Background(), KeyAppointments)
	assert.False(t, ok, "appointments are not seeded")
}

func TestOpenWithoutSeed(t *testing.T) {
	s, err := Open(context.Background(), NewMemoryBackend(), Options{})
	require.NoError(t, err)
	assert.Empty(t, s.Services())
	assert.Empty(t, s.Schedule())
}

func TestAddAppointmentSnapshotsAndConfirms(t *testing.T) {
	s := openStore(t, NewMemoryBackend())

	appt, err := s.AddAppointment(context.Background(), booking("client-1", "2024-06-10", "09:00"))
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, appt.Status)
	assert.Equal(t, "Corte de Cabello", appt.ServiceName)
	assert.Equal(t, "Ana", appt.ClientName)
	assert.Equal(t, fixedNow, appt.CreatedAt)

	slots := availability.AvailableSlots("2024-06-10", s.Appointments())
	assert.NotContains(t, slots, "09:00")
	assert.Len(t, slots, 17)
}

func TestAddAppointmentRejectsTakenSlot(t *testing.T) {
	s := openStore(t, NewMemoryBackend())
	ctx := context.Background()

	_, err := s.AddAppointment(ctx, booking("client-1", "2024-06-10", "09:00"))
	require.NoError(t, err)

	_, err = s.AddAppointment(ctx, booking("client-2", "2024-06-10", "09:00"))
	assert.ErrorIs(t, err, ErrSlotTaken)
	assert.True(t, IsConflict(err))

	_, err = s.AddAppointment(ctx, booking("client-2", "2024-06-11", "09:00"))
	assert.NoError(t, err, "same time on another date is free")
}

func TestConcurrentBookingsOneWinner(t *testing.T) {
	s := openStore(t, NewMemoryBackend())

	var wg sync.WaitGroup
	var wins, conflicts atomic.Int32
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.AddAppointment(context.Background(), booking(fmt.Sprintf("client-%d", i), "2024-06-10", "10:00"))
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, ErrSlotTaken):
				conflicts.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(31), conflicts.Load())
	assert.Len(t, s.Appointments(), 1)
}

func TestAddAppointmentValidation(t *testing.T) {
	s := openStore(t, NewMemoryBackend())
	ctx := context.Background()

	cases := map[string]NewAppointment{
		"missing client":  {ServiceID: "1", Date: "2024-06-10", Time: "09:00"},
		"missing service": {ClientID: "c", Date: "2024-06-10", Time: "09:00"},
		"bad date":        {ClientID: "c", ServiceID: "1", Date: "10/06/2024", Time: "09:00"},
		"bad time":        {ClientID: "c", ServiceID: "1", Date: "2024-06-10", Time: "9am"},
		"unknown service": {ClientID: "c", ServiceID: "99", Date: "2024-06-10", Time: "09:00"},
	}
	for name, in := range cases {
		_, err := s.AddAppointment(ctx, in)
		assert.ErrorIs(t, err, ErrValidation, name)
	}
	assert.Empty(t, s.Appointments())
}

func TestCancelIsIdempotentAndFreesSlot(t *testing.T) {
	s := openStore(t, NewMemoryBackend())
	ctx := context.Background()

	appt, err := s.AddAppointment(ctx, booking("client-1", "2024-06-10", "09:00"))
	require.NoError(t, err)

	change, err := s.CancelAppointment(ctx, appt.ID)
	require.NoError(t, err)
	assert.True(t, change.Changed())
	assert.Equal(t, model.StatusCancelled, change.After.Status)

	slotsAfterFirst := availability.AvailableSlots("2024-06-10", s.Appointments())
	assert.Contains(t, slotsAfterFirst, "09:00")

	change, err = s.CancelAppointment(ctx, appt.ID)
	require.NoError(t, err)
	assert.False(t, change.Changed())
	assert.Equal(t, slotsAfterFirst, availability.AvailableSlots("2024-06-10", s.Appointments()))

	_, err = s.AddAppointment(ctx, booking("client-2", "2024-06-10", "09:00"))
	assert.NoError(t, err, "cancelled slot can be rebooked")

	_, err = s.CancelAppointment(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStatusTransitions(t *testing.T) {
	s := openStore(t, NewMemoryBackend())
	ctx := context.Background()

	appt, err := s.AddAppointment(ctx, booking("client-1", "2024-06-10", "09:00"))
	require.NoError(t, err)

	completed := model.StatusCompleted
	change, err := s.UpdateAppointment(ctx, appt.ID, AppointmentPatch{Status: &completed})
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, change.After.Status)

	_, err = s.CancelAppointment(ctx, appt.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	confirmed := model.StatusConfirmed
	_, err = s.UpdateAppointment(ctx, appt.ID, AppointmentPatch{Status: &confirmed})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	bogus := model.Status("archived")
	_, err = s.UpdateAppointment(ctx, appt.ID, AppointmentPatch{Status: &bogus})
	assert.ErrorIs(t, err, ErrValidation)

	assert.NotContains(t, availability.AvailableSlots("2024-06-10", s.Appointments()), "09:00", "completed keeps the slot")
}

func TestReschedule(t *testing.T) {
	s := openStore(t, NewMemoryBackend())
	ctx := context.Background()

	first, err := s.AddAppointment(ctx, booking("client-1", "2024-06-10", "09:00"))
	require.NoError(t, err)
	_, err = s.AddAppointment(ctx, booking("client-2", "2024-06-10", "10:00"))
	require.NoError(t, err)

	taken := "10:00"
	_, err = s.UpdateAppointment(ctx, first.ID, AppointmentPatch{Time: &taken})
	assert.ErrorIs(t, err, ErrSlotTaken)

	free := "11:00"
	notes := "  prefers window seat "
	change, err := s.UpdateAppointment(ctx, first.ID, AppointmentPatch{Time: &free, Notes: &notes})
	require.NoError(t, err)
	assert.True(t, change.Rescheduled())
	assert.Equal(t, "prefers window seat", change.After.Notes)

	slots := availability.AvailableSlots("2024-06-10", s.Appointments())
	assert.Contains(t, slots, "09:00")
	assert.NotContains(t, slots, "11:00")

	_, err = s.AddAppointment(ctx, booking("client-3", "2024-06-10", "09:00"))
	assert.NoError(t, err, "old slot is released")

	same := "11:00"
	change, err = s.UpdateAppointment(ctx, first.ID, AppointmentPatch{Time: &same})
	require.NoError(t, err)
	assert.False(t, change.Changed())
}

func TestRescheduleCancelledRefused(t *testing.T) {
	s := openStore(t, NewMemoryBackend())
	ctx := context.Background()

	appt, err := s.AddAppointment(ctx, booking("client-1", "2024-06-10", "09:00"))
	require.NoError(t, err)
	_, err = s.CancelAppointment(ctx, appt.ID)
	require.NoError(t, err)

	date := "2024-06-11"
	_, err = s.UpdateAppointment(ctx, appt.ID, AppointmentPatch{Date: &date})
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestServiceLifecycle(t *testing.T) {
	s := openStore(t, NewMemoryBackend())
	ctx := context.Background()

	svc, err := s.AddService(ctx, NewService{Name: "Pedicura", Price: 3500, Description: "Pies"})
	require.NoError(t, err)
	assert.Equal(t, 30, svc.DurationMinutes, "duration defaults to 30")
	assert.Len(t, s.ActiveServices(), 5)

	price := int64(4000)
	updated, err := s.UpdateService(ctx, svc.ID, ServicePatch{Price: &price})
	require.NoError(t, err)
	assert.Equal(t, int64(4000), updated.Price)

	require.NoError(t, s.DeleteService(ctx, svc.ID))
	require.NoError(t, s.DeleteService(ctx, svc.ID), "deleting twice is a no-op")
	assert.Len(t, s.ActiveServices(), 4)

	tomb, ok := s.Service(svc.ID)
	require.True(t, ok, "tombstone still resolves")
	assert.NotNil(t, tomb.DeletedAt)
	assert.Equal(t, int64(4000), tomb.Price)

	_, err = s.UpdateService(ctx, svc.ID, ServicePatch{Price: &price})
	assert.ErrorIs(t, err, ErrNotFound)

	in := booking("client-1", "2024-06-10", "09:00")
	in.ServiceID = svc.ID
	_, err = s.AddAppointment(ctx, in)
	assert.ErrorIs(t, err, ErrValidation, "deleted service is not bookable")

	assert.ErrorIs(t, s.DeleteService(ctx, "missing"), ErrNotFound)
}

func TestServiceValidation(t *testing.T) {
	s := openStore(t, NewMemoryBackend())
	ctx := context.Background()

	for name, in := range map[string]NewService{
		"no name":        {Price: 100, Description: "d"},
		"no description": {Name: "n", Price: 100},
		"zero price":     {Name: "n", Description: "d"},
		"negative time":  {Name: "n", Description: "d", Price: 100, DurationMinutes: -15},
	} {
		_, err := s.AddService(ctx, in)
		var verr *ValidationError
		require.ErrorAs(t, err, &verr, name)
		assert.ErrorIs(t, err, ErrValidation, name)
	}
	assert.Len(t, s.Services(), 4)
}

func TestScheduleAndSpecialDates(t *testing.T) {
	s := openStore(t, NewMemoryBackend())
	ctx := context.Background()

	days := model.DefaultSchedule()
	days[0].Enabled = true
	days[0].EndTime = "13:00"
	// Submit out of order; the store sorts by weekday.
	days[0], days[6] = days[6], days[0]

	saved, err := s.SetSchedule(ctx, days)
	require.NoError(t, err)
	assert.Equal(t, 0, saved[0].Day)
	assert.True(t, saved[0].Enabled)

	_, err = s.SetSchedule(ctx, days[:6])
	assert.ErrorIs(t, err, ErrValidation)

	bad := model.DefaultSchedule()
	bad[1].BreakStart = "08:00"
	bad[1].BreakEnd = "08:30"
	_, err = s.SetSchedule(ctx, bad)
	assert.ErrorIs(t, err, ErrValidation, "break outside opening hours")

	dup := model.DefaultSchedule()
	dup[2].Day = 1
	_, err = s.SetSchedule(ctx, dup)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = s.AddSpecialDate(ctx, model.SpecialDate{Date: "2024-12-25", Reason: "Navidad"})
	require.NoError(t, err)
	_, err = s.AddSpecialDate(ctx, model.SpecialDate{Date: "2024-12-25", Reason: "Feriado"})
	require.NoError(t, err)
	_, err = s.AddSpecialDate(ctx, model.SpecialDate{Date: "2024-12-31"})
	assert.ErrorIs(t, err, ErrValidation)

	special := s.SpecialDates()
	require.Len(t, special, 1)
	assert.Equal(t, "Feriado", special[0].Reason)

	require.NoError(t, s.RemoveSpecialDate(ctx, "2024-12-25"))
	assert.ErrorIs(t, s.RemoveSpecialDate(ctx, "2024-12-25"), ErrNotFound)
}

func TestReopenRestoresState(t *testing.T) {
	backend := NewMemoryBackend()
	ctx := context.Background()
	s := openStore(t, backend)

	appt, err := s.AddAppointment(ctx, booking("client-1", "2024-06-10", "09:00"))
	require.NoError(t, err)
	_, err = s.AddService(ctx, NewService{Name: "Pedicura", Price: 3500, Description: "Pies"})
	require.NoError(t, err)

	reopened, err := Open(ctx, backend, Options{Seed: true})
	require.NoError(t, err)
	assert.Len(t, reopened.Services(), 5)
	got, ok := reopened.Appointment(appt.ID)
	require.True(t, ok)
	assert.Equal(t, appt, got)

	_, err = reopened.AddAppointment(ctx, booking("client-2", "2024-06-10", "09:00"))
	assert.ErrorIs(t, err, ErrSlotTaken, "occupancy index is rebuilt on open")
}

type failingBackend struct {
	*MemoryBackend
	fail atomic.Bool
}

func (f *failingBackend) Save(ctx context.Context, key string, value []byte) error {
	if f.fail.Load() {
		return errors.New("disk full")
	}
	return f.MemoryBackend.Save(ctx, key, value)
}

func TestSaveFailureLeavesStateUntouched(t *testing.T) {
	backend := &failingBackend{MemoryBackend: NewMemoryBackend()}
	s := openStore(t, backend)
	ctx := context.Background()

	backend.fail.Store(true)
	_, err := s.AddAppointment(ctx, booking("client-1", "2024-06-10", "09:00"))
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrValidation))
	assert.Empty(t, s.Appointments())

	backend.fail.Store(false)
	_, err = s.AddAppointment(ctx, booking("client-1", "2024-06-10", "09:00"))
	assert.NoError(t, err, "failed write must not leave the slot reserved")
}

func TestOpenRejectsCorruptState(t *testing.T) {
	backend := NewMemoryBackend()
	require.NoError(t, backend.Save(context.Background(), KeyAppointments, []byte("{not json")))
	_, err := Open(context.Background(), backend, Options{})
	assert.Error(t, err)
}

func TestOpenToleratesStoredDoubleBooking(t *testing.T) {
	backend := NewMemoryBackend()
	raw := []byte(`[
		{"id":"a","clientId":"c1","serviceId":"1","date":"2024-06-10","time":"09:00","status":"confirmed"},
		{"id":"b","clientId":"c2","serviceId":"1","date":"2024-06-10","time":"09:00","status":"confirmed"}
	]`)
	require.NoError(t, backend.Save(context.Background(), KeyAppointments, raw))

	s, err := Open(context.Background(), backend, Options{Seed: true})
	require.NoError(t, err)
	assert.Len(t, s.Appointments(), 2)

	_, err = s.CancelAppointment(context.Background(), "b")
	require.NoError(t, err)
	_, err = s.AddAppointment(context.Background(), booking("c3", "2024-06-10", "09:00"))
	assert.ErrorIs(t, err, ErrSlotTaken, "first holder still occupies the slot")
}

func TestStoredDoubleBookingFreesSlotOnlyAfterLastHolder(t *testing.T) {
	backend := NewMemoryBackend()
	raw := []byte(`[
		{"id":"a","clientId":"c1","serviceId":"1","date":"2024-06-10","time":"09:00","status":"confirmed"},
		{"id":"b","clientId":"c2","serviceId":"1","date":"2024-06-10","time":"09:00","status":"confirmed"}
	]`)
	require.NoError(t, backend.Save(context.Background(), KeyAppointments, raw))

	s, err := Open(context.Background(), backend, Options{Seed: true, NewID: sequentialIDs()})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = s.CancelAppointment(ctx, "a")
	require.NoError(t, err)
	_, err = s.AddAppointment(ctx, booking("c3", "2024-06-10", "09:00"))
	assert.ErrorIs(t, err, ErrSlotTaken, "second holder still occupies the slot")
	assert.NotContains(t, availability.AvailableSlots("2024-06-10", s.Appointments()), "09:00")

	newTime := "10:00"
	_, err = s.UpdateAppointment(ctx, "b", AppointmentPatch{Time: &newTime})
	require.NoError(t, err)

	appt, err := s.AddAppointment(ctx, booking("c3", "2024-06-10", "09:00"))
	require.NoError(t, err)
	assert.Equal(t, "09:00", appt.Time)
}
