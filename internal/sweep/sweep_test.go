package sweep

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smileclinic/booking-bot/internal/booking"
	"github.com/smileclinic/booking-bot/internal/events"
)

type fakeClock struct{ now time.Time }

func (f fakeClock) Now() time.Time { return f.now }

var sweepNow = time.Date(2026, time.March, 2, 12, 0, 0, 0, time.UTC)

type sweepStore struct {
	mu    sync.Mutex
	appts map[int64]*booking.AppointmentDetail
}

func newSweepStore(appts ...*booking.AppointmentDetail) *sweepStore {
	s := &sweepStore{appts: map[int64]*booking.AppointmentDetail{}}
	for _, a := range appts {
		s.appts[a.ID] = a
	}
	return s
}

func appt(id int64, start time.Time) *booking.AppointmentDetail {
	return &booking.AppointmentDetail{
		Appointment: booking.Appointment{
			ID:     id,
			Date:   booking.DateOf(start),
			Start:  booking.NewTimeOfDay(start.Hour(), start.Minute()),
			Status: booking.StatusScheduled,
		},
		ClientPhone: "+77010000001",
	}
}

func (s *sweepStore) startOf(a *booking.AppointmentDetail) time.Time {
	return a.Start.At(a.Date)
}

func (s *sweepStore) ElapsedScheduled(_ context.Context, cutoff time.Time) ([]booking.AppointmentDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []booking.AppointmentDetail
	for _, a := range s.appts {
		if a.Status == booking.StatusScheduled && s.startOf(a).Before(cutoff) {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (s *sweepStore) CompleteAppointment(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appts[id]
	if !ok || a.Status != booking.StatusScheduled {
		return booking.ErrNotFound
	}
	a.Status = booking.StatusCompleted
	return nil
}

func (s *sweepStore) DueReminders(_ context.Context, hoursBefore int, lower, upper time.Time) ([]booking.AppointmentDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []booking.AppointmentDetail
	for _, a := range s.appts {
		if a.Status != booking.StatusScheduled || s.reminderSent(a, hoursBefore) {
			continue
		}
		start := s.startOf(a)
		if !start.Before(lower) && !start.After(upper) {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (s *sweepStore) reminderSent(a *booking.AppointmentDetail, hoursBefore int) bool {
	switch {
	case hoursBefore >= 24:
		return a.Reminder24hSent
	case hoursBefore >= 2:
		return a.Reminder2hSent
	default:
		return a.Reminder1hSent
	}
}

func (s *sweepStore) MarkReminderSent(_ context.Context, id int64, hoursBefore int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appts[id]
	if !ok {
		return booking.ErrNotFound
	}
	switch {
	case hoursBefore >= 24:
		a.Reminder24hSent = true
	case hoursBefore >= 2:
		a.Reminder2hSent = true
	default:
		a.Reminder1hSent = true
	}
	return nil
}

type captureSink struct {
	mu       sync.Mutex
	outcomes []events.Outcome
}

func (c *captureSink) Dispatch(o events.Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outcomes = append(c.outcomes, o)
}

func TestCompletionSweepRespectsGrace(t *testing.T) {
	longPast := appt(1, sweepNow.Add(-2*time.Hour))
	justPast := appt(2, sweepNow.Add(-30*time.Minute))
	future := appt(3, sweepNow.Add(2*time.Hour))
	store := newSweepStore(longPast, justPast, future)

	r := NewRunner(store, nil, fakeClock{now: sweepNow}, 0, 0, nil)
	n, err := r.RunCompletionSweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Equal(t, booking.StatusCompleted, store.appts[1].Status)
	assert.Equal(t, booking.StatusScheduled, store.appts[2].Status, "inside grace period")
	assert.Equal(t, booking.StatusScheduled, store.appts[3].Status)
}

func TestReminderSweepEmitsOncePerLead(t *testing.T) {
	in24h := appt(1, sweepNow.Add(24*time.Hour))
	in2h := appt(2, sweepNow.Add(2*time.Hour+5*time.Minute))
	farOut := appt(3, sweepNow.Add(48*time.Hour))
	store := newSweepStore(in24h, in2h, farOut)
	sink := &captureSink{}

	r := NewRunner(store, sink, fakeClock{now: sweepNow}, 0, 0, nil)
	n, err := r.RunReminderSweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.Len(t, sink.outcomes, 2)
	for _, o := range sink.outcomes {
		assert.Equal(t, events.KindReminderDue, o.Kind)
	}
	assert.True(t, store.appts[1].Reminder24hSent)
	assert.True(t, store.appts[2].Reminder2hSent)
	assert.False(t, store.appts[3].Reminder24hSent)

	// A second pass finds nothing new.
	n, err = r.RunReminderSweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Len(t, sink.outcomes, 2)
}

func TestReminderSweepDistinguishesLeads(t *testing.T) {
	// 1 hour out: only the 1h reminder fires, and the 2h flag is untouched.
	soon := appt(1, sweepNow.Add(time.Hour))
	store := newSweepStore(soon)
	sink := &captureSink{}

	r := NewRunner(store, sink, fakeClock{now: sweepNow}, 0, 0, nil)
	_, err := r.RunReminderSweep(context.Background())
	require.NoError(t, err)

	require.Len(t, sink.outcomes, 1)
	assert.Equal(t, 1, sink.outcomes[0].HoursBefore)
	assert.True(t, store.appts[1].Reminder1hSent)
	assert.False(t, store.appts[1].Reminder2hSent)
}
