// Package sweep runs the periodic maintenance passes: marking elapsed
// appointments completed and emitting due reminders.
package sweep

import (
	"context"
	"sync"
	"time"

	"github.com/smileclinic/booking-bot/internal/booking"
	"github.com/smileclinic/booking-bot/internal/events"
	"github.com/smileclinic/booking-bot/pkg/logging"
)

// Store is the slice of the booking store the sweeps need.
type Store interface {
	ElapsedScheduled(ctx context.Context, cutoff time.Time) ([]booking.AppointmentDetail, error)
	CompleteAppointment(ctx context.Context, id int64) error
	DueReminders(ctx context.Context, hoursBefore int, lower, upper time.Time) ([]booking.AppointmentDetail, error)
	MarkReminderSent(ctx context.Context, id int64, hoursBefore int) error
}

// OutcomeSink receives reminder outcomes.
type OutcomeSink interface {
	Dispatch(o events.Outcome)
}

const (
	// completionGrace is how long after its start an appointment is
	// assumed to have happened.
	completionGrace = time.Hour

	// reminderSlack widens each reminder window so a sweep that fires a
	// little late still catches its appointments.
	reminderSlack = 10 * time.Minute
)

// reminderLeads are the offsets, in hours, at which clients are reminded.
var reminderLeads = []int{24, 2, 1}

// Runner drives both sweeps on timers.
type Runner struct {
	store Store
	sink  OutcomeSink
	clock booking.Clock
	log   *logging.Logger

	completionEvery time.Duration
	reminderEvery   time.Duration

	stopOnce sync.Once
	done     chan struct{}
	wg       sync.WaitGroup
}

// NewRunner creates a sweep runner. sink may be nil (reminders are then only
// marked, not announced).
func NewRunner(store Store, sink OutcomeSink, clock booking.Clock, completionEvery, reminderEvery time.Duration, log *logging.Logger) *Runner {
	if store == nil {
		panic("sweep: store required")
	}
	if clock == nil {
		clock = booking.NewClock(time.Local)
	}
	if log == nil {
		log = logging.Default()
	}
	if completionEvery <= 0 {
		completionEvery = 30 * time.Minute
	}
	if reminderEvery <= 0 {
		reminderEvery = 10 * time.Minute
	}
	return &Runner{
		store:           store,
		sink:            sink,
		clock:           clock,
		log:             log.Named("sweep"),
		completionEvery: completionEvery,
		reminderEvery:   reminderEvery,
		done:            make(chan struct{}),
	}
}

// Start launches both sweep loops.
func (r *Runner) Start() {
	r.wg.Add(2)
	go r.loop(r.completionEvery, r.RunCompletionSweep)
	go r.loop(r.reminderEvery, r.RunReminderSweep)
}

// Stop halts the loops and waits for an in-flight pass to finish.
func (r *Runner) Stop() {
	r.stopOnce.Do(func() {
		close(r.done)
		r.wg.Wait()
	})
}

func (r *Runner) loop(every time.Duration, pass func(context.Context) (int, error)) {
	defer r.wg.Done()
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), every)
			if _, err := pass(ctx); err != nil {
				r.log.Error("sweep pass failed", "error", err)
			}
			cancel()
		case <-r.done:
			return
		}
	}
}

// RunCompletionSweep marks every scheduled appointment whose start lies more
// than an hour in the past as completed. Returns how many rows moved.
func (r *Runner) RunCompletionSweep(ctx context.Context) (int, error) {
	cutoff := r.clock.Now().Add(-completionGrace)
	elapsed, err := r.store.ElapsedScheduled(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	completed := 0
	for i := range elapsed {
		if err := r.store.CompleteAppointment(ctx, elapsed[i].ID); err != nil {
			// Someone may have cancelled it between the list and the
			// update; skip and keep sweeping.
			r.log.Warn("completion skipped", "appointment_id", elapsed[i].ID, "error", err)
			continue
		}
		completed++
	}
	if completed > 0 {
		r.log.Info("completion sweep finished", "completed", completed)
	}
	return completed, nil
}

// RunReminderSweep finds appointments entering a reminder window and emits
// one reminder outcome per appointment and lead time. The flag is set before
// the outcome is dispatched, so a crashed dispatch loses a reminder instead
// of duplicating one.
func (r *Runner) RunReminderSweep(ctx context.Context) (int, error) {
	now := r.clock.Now()
	sent := 0
	for _, lead := range reminderLeads {
		target := now.Add(time.Duration(lead) * time.Hour)
		due, err := r.store.DueReminders(ctx, lead, target.Add(-reminderSlack), target.Add(reminderSlack))
		if err != nil {
			return sent, err
		}
		for i := range due {
			a := &due[i]
			if err := r.store.MarkReminderSent(ctx, a.ID, lead); err != nil {
				r.log.Warn("reminder mark failed", "appointment_id", a.ID, "error", err)
				continue
			}
			if r.sink != nil {
				r.sink.Dispatch(events.Outcome{
					Kind:        events.KindReminderDue,
					HoursBefore: lead,
					Appointment: toSnapshot(a),
				})
			}
			sent++
		}
	}
	return sent, nil
}

func toSnapshot(d *booking.AppointmentDetail) *events.AppointmentSnapshot {
	return &events.AppointmentSnapshot{
		AppointmentID:   d.ID,
		ClientName:      d.ClientName,
		ClientPhone:     d.ClientPhone,
		PatientName:     d.PatientName,
		DoctorID:        d.DoctorID,
		DoctorName:      d.DoctorName,
		ServiceName:     d.ServiceName,
		Date:            d.Date,
		Start:           d.Start.String(),
		DurationMinutes: d.DurationMinutes,
		Price:           d.Price,
		Status:          string(d.Status),
	}
}
