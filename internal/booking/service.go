package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/smileclinic/booking-bot/internal/events"
	"github.com/smileclinic/booking-bot/internal/observability/metrics"
	"github.com/smileclinic/booking-bot/pkg/logging"
)

// Store is the persistence surface the service drives. *Repository is the
// production implementation.
type Store interface {
	ClientByPhone(ctx context.Context, phone string) (*Client, error)
	UpsertClient(ctx context.Context, phone, name string) (*Client, error)
	SetClientBlocked(ctx context.Context, phone string, blocked bool, reason string) error

	Doctors(ctx context.Context) ([]Doctor, error)
	DoctorByID(ctx context.Context, id int64) (*Doctor, error)
	Services(ctx context.Context) ([]Procedure, error)
	ServiceByID(ctx context.Context, id int64) (*Procedure, error)

	BusyIntervals(ctx context.Context, doctorID int64, date time.Time) ([]BusyInterval, error)

	CreateAppointment(ctx context.Context, p CreateParams) (*AppointmentDetail, error)
	CancelAppointment(ctx context.Context, id int64, clientPhone, reason string) (*AppointmentDetail, error)
	RescheduleAppointment(ctx context.Context, p RescheduleParams) (*RescheduleResult, error)
	SetDoctorAbsence(ctx context.Context, doctorID int64, start, end time.Time, reason string) (*AbsenceResult, error)

	AppointmentByID(ctx context.Context, id int64) (*AppointmentDetail, error)
	UpcomingForClient(ctx context.Context, phone string, now time.Time) ([]AppointmentDetail, error)
	UpcomingForDoctor(ctx context.Context, doctorID int64, now time.Time) ([]AppointmentDetail, error)
	UpcomingForClinic(ctx context.Context, now time.Time) ([]AppointmentDetail, error)

	CompleteAppointment(ctx context.Context, id int64) error
	MarkNoShow(ctx context.Context, id int64) error
	RecordPayment(ctx context.Context, id int64, amount int, status string) error
	ScheduleFollowUp(ctx context.Context, id int64, date time.Time, notes string) error
}

// OutcomeSink receives committed booking outcomes. Dispatch must not block;
// the events.Dispatcher satisfies this.
type OutcomeSink interface {
	Dispatch(o events.Outcome)
}

// CreateParams describes a single booking request.
type CreateParams struct {
	ClientPhone string
	ClientName  string
	Role        Role
	PatientName string
	DoctorID    int64
	ServiceID   int64
	Date        time.Time
	Start       TimeOfDay
	Notes       string
}

// ComboParams books two services back to back with the same doctor.
type ComboParams struct {
	ClientPhone     string
	ClientName      string
	Role            Role
	PatientName     string
	DoctorID        int64
	FirstServiceID  int64
	SecondServiceID int64
	Date            time.Time
	Start           TimeOfDay
	Notes           string
}

// ComboResult holds both appointments of a successful combo booking.
type ComboResult struct {
	First  AppointmentDetail
	Second AppointmentDetail
}

// CancelParams describes a cancellation request.
type CancelParams struct {
	ID          int64
	Role        Role
	ClientPhone string
	Reason      string
}

// RescheduleParams moves an existing appointment to a new slot.
type RescheduleParams struct {
	ID          int64
	Role        Role
	ClientPhone string
	NewDate     time.Time
	NewStart    TimeOfDay
}

// RescheduleResult carries the moved appointment plus its previous slot.
type RescheduleResult struct {
	Detail   AppointmentDetail
	OldDate  time.Time
	OldStart TimeOfDay
}

// AbsenceParams declares a doctor absence period (inclusive dates).
type AbsenceParams struct {
	DoctorID int64
	Start    time.Time
	End      time.Time
	Reason   string
}

// AbsenceResult reports the recorded absence and the cascade it triggered.
type AbsenceResult struct {
	AbsenceID int64
	Cancelled int
	Affected  []AppointmentDetail
}

// DoctorAvailability lists a doctor's free slot starts for one date.
type DoctorAvailability struct {
	DoctorID       int64
	DoctorName     string
	Specialization string
	Slots          []TimeOfDay
}

// Service implements the booking operations on top of a Store. Conflict
// detection itself lives in the store's transactions; the service owns
// validation, role scoping, slot derivation and outcome publication.
type Service struct {
	store   Store
	catalog *Catalog
	clock   Clock
	sink    OutcomeSink
	metrics *metrics.BookingMetrics
	log     *logging.Logger
}

// NewService wires the booking engine. sink and m may be nil.
func NewService(store Store, catalog *Catalog, clock Clock, sink OutcomeSink, m *metrics.BookingMetrics, log *logging.Logger) *Service {
	if store == nil {
		panic("booking: store required")
	}
	if catalog == nil {
		panic("booking: catalog required")
	}
	if clock == nil {
		clock = NewClock(time.Local)
	}
	if log == nil {
		log = logging.Default()
	}
	return &Service{
		store:   store,
		catalog: catalog,
		clock:   clock,
		sink:    sink,
		metrics: m,
		log:     log.Named("booking"),
	}
}

// Create books a single appointment. The requested time is normalized onto
// the slot grid before the store-side conflict check runs.
func (s *Service) Create(ctx context.Context, p CreateParams) (*AppointmentDetail, error) {
	detail, err := s.create(ctx, p)
	s.record("create", err)
	if err != nil {
		return nil, err
	}
	s.publish(events.Outcome{
		Kind:        events.KindAppointmentCreated,
		Actor:       string(p.Role),
		Appointment: snapshot(detail),
	})
	return detail, nil
}

func (s *Service) create(ctx context.Context, p CreateParams) (*AppointmentDetail, error) {
	if err := checkActor(p.Role, p.PatientName); err != nil {
		return nil, err
	}
	if _, err := s.store.DoctorByID(ctx, p.DoctorID); err != nil {
		return nil, err
	}
	if _, err := s.store.ServiceByID(ctx, p.ServiceID); err != nil {
		return nil, err
	}
	start, err := NormalizeTime(s.clock, p.Date, p.Start)
	if err != nil {
		return nil, err
	}
	p.Start = start

	if _, err := s.store.UpsertClient(ctx, p.ClientPhone, p.ClientName); err != nil {
		return nil, err
	}
	return s.store.CreateAppointment(ctx, p)
}

// CreateCombo books two services back to back. The second appointment starts
// exactly when the first service ends; if it cannot be placed, the first
// booking is rolled back with a compensating cancel and the second slot's
// error is returned.
func (s *Service) CreateCombo(ctx context.Context, p ComboParams) (*ComboResult, error) {
	res, err := s.createCombo(ctx, p)
	s.record("create_combo", err)
	if err != nil {
		return nil, err
	}
	s.publish(events.Outcome{
		Kind:        events.KindAppointmentCreated,
		Actor:       string(p.Role),
		Appointment: snapshot(&res.First),
	})
	s.publish(events.Outcome{
		Kind:        events.KindAppointmentCreated,
		Actor:       string(p.Role),
		Appointment: snapshot(&res.Second),
	})
	return res, nil
}

func (s *Service) createCombo(ctx context.Context, p ComboParams) (*ComboResult, error) {
	firstSvc, err := s.store.ServiceByID(ctx, p.FirstServiceID)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.ServiceByID(ctx, p.SecondServiceID); err != nil {
		return nil, err
	}

	first, err := s.create(ctx, CreateParams{
		ClientPhone: p.ClientPhone,
		ClientName:  p.ClientName,
		Role:        p.Role,
		PatientName: p.PatientName,
		DoctorID:    p.DoctorID,
		ServiceID:   p.FirstServiceID,
		Date:        p.Date,
		Start:       p.Start,
		Notes:       p.Notes,
	})
	if err != nil {
		return nil, err
	}

	// The second leg inherits the normalized first slot, so its start is
	// already on the grid whenever durations are slot multiples.
	second, err := s.store.CreateAppointment(ctx, CreateParams{
		ClientPhone: p.ClientPhone,
		Role:        p.Role,
		PatientName: p.PatientName,
		DoctorID:    p.DoctorID,
		ServiceID:   p.SecondServiceID,
		Date:        p.Date,
		Start:       first.Start.Add(firstSvc.DurationMinutes),
		Notes:       p.Notes,
	})
	if err != nil {
		if _, cerr := s.store.CancelAppointment(ctx, first.ID, "", "second service did not fit"); cerr != nil {
			s.log.Error("combo rollback failed, first appointment left scheduled",
				"appointment_id", first.ID, "error", cerr)
		}
		return nil, err
	}
	return &ComboResult{First: *first, Second: *second}, nil
}

// Cancel moves a scheduled appointment to cancelled. Clients may only cancel
// their own; admins cancel anything. When an admin cancels an id that does
// not resolve but the client has exactly one upcoming appointment, that one
// is cancelled instead.
func (s *Service) Cancel(ctx context.Context, p CancelParams) (*AppointmentDetail, error) {
	detail, err := s.cancel(ctx, p)
	s.record("cancel", err)
	if err != nil {
		return nil, err
	}
	s.publish(events.Outcome{
		Kind:        events.KindAppointmentCancelled,
		Actor:       string(p.Role),
		Appointment: snapshot(detail),
		Reason:      p.Reason,
	})
	return detail, nil
}

func (s *Service) cancel(ctx context.Context, p CancelParams) (*AppointmentDetail, error) {
	scope := ""
	if p.Role != RoleAdmin {
		if p.ClientPhone == "" {
			return nil, validationErrorf("client cancellations require the client identifier")
		}
		scope = p.ClientPhone
	}

	detail, err := s.store.CancelAppointment(ctx, p.ID, scope, p.Reason)
	if err == nil || !errors.Is(err, ErrNotFound) {
		return detail, err
	}

	if p.Role == RoleAdmin && p.ClientPhone != "" {
		upcoming, uerr := s.store.UpcomingForClient(ctx, p.ClientPhone, s.clock.Now())
		if uerr != nil {
			return nil, uerr
		}
		if len(upcoming) == 1 {
			s.log.Info("admin cancel recovered via sole upcoming appointment",
				"requested_id", p.ID, "actual_id", upcoming[0].ID)
			return s.store.CancelAppointment(ctx, upcoming[0].ID, "", p.Reason)
		}
	}
	return nil, err
}

// Reschedule moves an appointment to a new slot. The new time is normalized
// and conflict-checked; on conflict the original booking is untouched. A
// successful move clears all reminder flags.
func (s *Service) Reschedule(ctx context.Context, p RescheduleParams) (*RescheduleResult, error) {
	res, err := s.reschedule(ctx, p)
	s.record("reschedule", err)
	if err != nil {
		return nil, err
	}
	prev := snapshot(&res.Detail)
	prev.Date = res.OldDate
	prev.Start = res.OldStart.String()
	s.publish(events.Outcome{
		Kind:        events.KindAppointmentRescheduled,
		Actor:       string(p.Role),
		Appointment: snapshot(&res.Detail),
		Previous:    prev,
	})
	return res, nil
}

func (s *Service) reschedule(ctx context.Context, p RescheduleParams) (*RescheduleResult, error) {
	if p.Role != RoleAdmin && p.ClientPhone == "" {
		return nil, validationErrorf("client reschedules require the client identifier")
	}
	start, err := NormalizeTime(s.clock, p.NewDate, p.NewStart)
	if err != nil {
		return nil, err
	}
	p.NewStart = start
	if p.Role == RoleAdmin {
		p.ClientPhone = ""
	}
	return s.store.RescheduleAppointment(ctx, p)
}

// SetDoctorAbsence records an absence period and atomically cancels every
// scheduled appointment inside it, returning the affected bookings so
// callers can notify each client.
func (s *Service) SetDoctorAbsence(ctx context.Context, p AbsenceParams) (*AbsenceResult, error) {
	res, err := s.setDoctorAbsence(ctx, p)
	s.record("set_absence", err)
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveCascadeSize(res.Cancelled)

	cancelled := make([]events.AppointmentSnapshot, 0, len(res.Affected))
	for i := range res.Affected {
		cancelled = append(cancelled, *snapshot(&res.Affected[i]))
	}
	s.publish(events.Outcome{
		Kind:      events.KindAbsenceDeclared,
		Actor:     string(RoleAdmin),
		AbsenceID: res.AbsenceID,
		DoctorID:  p.DoctorID,
		From:      &p.Start,
		To:        &p.End,
		Reason:    p.Reason,
		Cancelled: cancelled,
	})
	return res, nil
}

func (s *Service) setDoctorAbsence(ctx context.Context, p AbsenceParams) (*AbsenceResult, error) {
	if _, err := s.store.DoctorByID(ctx, p.DoctorID); err != nil {
		return nil, err
	}
	if p.End.Before(p.Start) {
		return nil, validationErrorf("absence end date precedes start date")
	}
	if DateOf(p.End).Before(DateOf(s.clock.Now())) {
		return nil, validationErrorf("absence period lies entirely in the past")
	}
	return s.store.SetDoctorAbsence(ctx, p.DoctorID, p.Start, p.End, p.Reason)
}

// Availability returns the free slot starts for the date, either for one
// doctor (doctorID > 0) or for every active doctor. For today, slots that
// already started are excluded.
func (s *Service) Availability(ctx context.Context, date time.Time, doctorID int64) ([]DoctorAvailability, error) {
	var doctors []Doctor
	if doctorID > 0 {
		d, err := s.store.DoctorByID(ctx, doctorID)
		if err != nil {
			return nil, err
		}
		doctors = []Doctor{*d}
	} else {
		var err error
		doctors, err = s.store.Doctors(ctx)
		if err != nil {
			return nil, err
		}
	}

	now := s.clock.Now()
	if DateOf(date).Before(DateOf(now)) {
		return nil, validationErrorf("cannot list availability for a past date")
	}

	out := make([]DoctorAvailability, 0, len(doctors))
	for _, d := range doctors {
		win, ok, err := s.catalog.WorkingWindow(ctx, d.ID, date)
		if err != nil {
			return nil, err
		}
		av := DoctorAvailability{DoctorID: d.ID, DoctorName: d.Name, Specialization: d.Specialization}
		if ok {
			if SameDate(date, now) {
				if cut := nextTickAfter(now); cut > win.Start {
					win.Start = cut
				}
			}
			busy, err := s.store.BusyIntervals(ctx, d.ID, date)
			if err != nil {
				return nil, err
			}
			av.Slots = FreeTicks(win, busy)
		}
		out = append(out, av)
	}
	return out, nil
}

// nextTickAfter returns the first slot boundary at or after the wall time.
func nextTickAfter(now time.Time) TimeOfDay {
	mins := now.Hour()*60 + now.Minute()
	if now.Second() > 0 || now.Nanosecond() > 0 {
		mins++
	}
	rem := mins % SlotMinutes
	if rem != 0 {
		mins += SlotMinutes - rem
	}
	return TimeOfDay(mins)
}

// Doctors lists the active doctors.
func (s *Service) Doctors(ctx context.Context) ([]Doctor, error) {
	return s.store.Doctors(ctx)
}

// ListServices lists the active services.
func (s *Service) ListServices(ctx context.Context) ([]Procedure, error) {
	return s.store.Services(ctx)
}

// UpcomingForClient lists the client's scheduled future appointments.
func (s *Service) UpcomingForClient(ctx context.Context, phone string) ([]AppointmentDetail, error) {
	return s.store.UpcomingForClient(ctx, phone, s.clock.Now())
}

// UpcomingForDoctor lists a doctor's scheduled future appointments.
func (s *Service) UpcomingForDoctor(ctx context.Context, doctorID int64) ([]AppointmentDetail, error) {
	if _, err := s.store.DoctorByID(ctx, doctorID); err != nil {
		return nil, err
	}
	return s.store.UpcomingForDoctor(ctx, doctorID, s.clock.Now())
}

// UpcomingForClinic lists all scheduled future appointments.
func (s *Service) UpcomingForClinic(ctx context.Context) ([]AppointmentDetail, error) {
	return s.store.UpcomingForClinic(ctx, s.clock.Now())
}

// Complete marks a scheduled appointment completed.
func (s *Service) Complete(ctx context.Context, id int64) error {
	err := s.store.CompleteAppointment(ctx, id)
	s.record("complete", err)
	return err
}

// MarkNoShow marks a scheduled appointment as a no-show.
func (s *Service) MarkNoShow(ctx context.Context, id int64) error {
	err := s.store.MarkNoShow(ctx, id)
	s.record("no_show", err)
	return err
}

// RecordPayment stores the amount actually paid for an appointment.
func (s *Service) RecordPayment(ctx context.Context, id int64, amount int, status string) error {
	if amount < 0 {
		return validationErrorf("payment amount must not be negative")
	}
	if status == "" {
		status = "paid"
	}
	err := s.store.RecordPayment(ctx, id, amount, status)
	s.record("record_payment", err)
	return err
}

// ScheduleFollowUp attaches a follow-up date to an appointment.
func (s *Service) ScheduleFollowUp(ctx context.Context, id int64, date time.Time, notes string) error {
	if DateOf(date).Before(DateOf(s.clock.Now())) {
		return validationErrorf("follow-up date lies in the past")
	}
	err := s.store.ScheduleFollowUp(ctx, id, date, notes)
	s.record("schedule_follow_up", err)
	return err
}

// BlockClient marks a client so the inbound gate drops their messages.
func (s *Service) BlockClient(ctx context.Context, phone, reason string) error {
	return s.store.SetClientBlocked(ctx, phone, true, reason)
}

// UnblockClient lifts a block.
func (s *Service) UnblockClient(ctx context.Context, phone string) error {
	return s.store.SetClientBlocked(ctx, phone, false, "")
}

func (s *Service) publish(o events.Outcome) {
	if s.sink == nil {
		return
	}
	o.At = s.clock.Now()
	s.sink.Dispatch(o)
}

func (s *Service) record(op string, err error) {
	switch {
	case err == nil:
		s.metrics.ObserveOperation(op, "ok")
	case IsConflict(err):
		s.metrics.ObserveOperation(op, "conflict")
	case IsValidation(err):
		s.metrics.ObserveOperation(op, "validation")
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrDoctorNotFound),
		errors.Is(err, ErrServiceNotFound), errors.Is(err, ErrClientNotFound):
		s.metrics.ObserveOperation(op, "not_found")
	default:
		s.metrics.ObserveOperation(op, "error")
		s.log.Error(fmt.Sprintf("booking %s failed", op), "error", err)
	}
}

func snapshot(d *AppointmentDetail) *events.AppointmentSnapshot {
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
