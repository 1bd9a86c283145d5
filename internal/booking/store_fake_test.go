package booking

import (
	"context"
	"sync"
	"time"
)

// fakeStore is an in-memory Store (plus ScheduleStore) with the same
// conflict and ownership semantics as the postgres repository. All methods
// hold one mutex, so concurrent creates serialize the way the row locks do.
type fakeStore struct {
	mu            sync.Mutex
	nextID        int64
	nextAbsenceID int64
	clients       map[string]*Client
	doctors       map[int64]Doctor
	services      map[int64]Procedure
	appts         map[int64]*AppointmentDetail
	schedules     map[string]*DoctorSchedule
	absences      []DoctorAbsence
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		clients: map[string]*Client{},
		doctors: map[int64]Doctor{
			1: {ID: 1, Name: "Dr. Adams", Specialization: "dentist", Active: true},
			2: {ID: 2, Name: "Dr. Baker", Specialization: "orthodontist", Active: true},
		},
		services: map[int64]Procedure{
			1: {ID: 1, Name: "cleaning", Price: 10000, DurationMinutes: 30},
			2: {ID: 2, Name: "whitening", Price: 25000, DurationMinutes: 60},
		},
		appts:     map[int64]*AppointmentDetail{},
		schedules: map[string]*DoctorSchedule{},
	}
}

func (f *fakeStore) ClientByPhone(_ context.Context, phone string) (*Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.clients[phone]
	if !ok {
		return nil, ErrClientNotFound
	}
	cp := *c
	return &cp, nil
}

func (f *fakeStore) UpsertClient(_ context.Context, phone, name string) (*Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.clients[phone]
	if !ok {
		f.nextID++
		c = &Client{ID: f.nextID, Phone: phone, Name: name}
		f.clients[phone] = c
	} else if name != "" {
		c.Name = name
	}
	cp := *c
	return &cp, nil
}

func (f *fakeStore) SetClientBlocked(_ context.Context, phone string, blocked bool, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.clients[phone]
	if !ok {
		return ErrClientNotFound
	}
	c.Blocked = blocked
	return nil
}

func (f *fakeStore) Doctors(context.Context) ([]Doctor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Doctor, 0, len(f.doctors))
	for id := int64(1); id <= int64(len(f.doctors)); id++ {
		if d, ok := f.doctors[id]; ok {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeStore) DoctorByID(_ context.Context, id int64) (*Doctor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.doctors[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	return &d, nil
}

func (f *fakeStore) Services(context.Context) ([]Procedure, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Procedure, 0, len(f.services))
	for id := int64(1); id <= int64(len(f.services)); id++ {
		if s, ok := f.services[id]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeStore) ServiceByID(_ context.Context, id int64) (*Procedure, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.services[id]
	if !ok {
		return nil, ErrServiceNotFound
	}
	return &s, nil
}

func (f *fakeStore) BusyIntervals(_ context.Context, doctorID int64, date time.Time) ([]BusyInterval, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var busy []BusyInterval
	for _, a := range f.appts {
		if a.DoctorID == doctorID && SameDate(a.Date, date) && a.Status == StatusScheduled {
			busy = append(busy, BusyInterval{Start: a.Start, DurationMinutes: a.DurationMinutes})
		}
	}
	return busy, nil
}

func (f *fakeStore) CreateAppointment(_ context.Context, p CreateParams) (*AppointmentDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	client, ok := f.clients[p.ClientPhone]
	if !ok {
		return nil, ErrClientNotFound
	}
	svc, ok := f.services[p.ServiceID]
	if !ok {
		return nil, ErrServiceNotFound
	}
	doc, ok := f.doctors[p.DoctorID]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	if f.overlapLocked(p.DoctorID, p.Date, p.Start, svc.DurationMinutes, 0) {
		return nil, &ConflictError{DoctorID: p.DoctorID, Date: p.Date, Time: p.Start}
	}

	f.nextID++
	d := &AppointmentDetail{
		Appointment: Appointment{
			ID:          f.nextID,
			ClientID:    client.ID,
			DoctorID:    p.DoctorID,
			ServiceID:   p.ServiceID,
			Date:        p.Date,
			Start:       p.Start,
			Status:      StatusScheduled,
			Notes:       p.Notes,
			PatientName: p.PatientName,
		},
		ClientName:      client.Name,
		ClientPhone:     client.Phone,
		DoctorName:      doc.Name,
		Specialization:  doc.Specialization,
		ServiceName:     svc.Name,
		Price:           svc.Price,
		DurationMinutes: svc.DurationMinutes,
	}
	f.appts[d.ID] = d
	cp := *d
	return &cp, nil
}

func (f *fakeStore) overlapLocked(doctorID int64, date time.Time, start TimeOfDay, minutes int, excludeID int64) bool {
	for _, a := range f.appts {
		if a.ID == excludeID || a.DoctorID != doctorID || a.Status != StatusScheduled || !SameDate(a.Date, date) {
			continue
		}
		b := BusyInterval{Start: a.Start, DurationMinutes: a.DurationMinutes}
		if b.Overlaps(start, minutes) {
			return true
		}
	}
	return false
}

func (f *fakeStore) CancelAppointment(_ context.Context, id int64, clientPhone, reason string) (*AppointmentDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.appts[id]
	if !ok || a.Status != StatusScheduled {
		return nil, ErrNotFound
	}
	if clientPhone != "" && a.ClientPhone != clientPhone {
		return nil, ErrNotFound
	}
	a.Status = StatusCancelled
	a.CancellationReason = reason
	cp := *a
	return &cp, nil
}

func (f *fakeStore) RescheduleAppointment(_ context.Context, p RescheduleParams) (*RescheduleResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.appts[p.ID]
	if !ok || a.Status != StatusScheduled {
		return nil, ErrNotFound
	}
	if p.ClientPhone != "" && a.ClientPhone != p.ClientPhone {
		return nil, ErrNotFound
	}
	if f.overlapLocked(a.DoctorID, p.NewDate, p.NewStart, a.DurationMinutes, a.ID) {
		return nil, &ConflictError{DoctorID: a.DoctorID, Date: p.NewDate, Time: p.NewStart}
	}
	oldDate, oldStart := a.Date, a.Start
	a.Date, a.Start = p.NewDate, p.NewStart
	a.Reminder24hSent, a.Reminder2hSent, a.Reminder1hSent = false, false, false
	cp := *a
	return &RescheduleResult{Detail: cp, OldDate: oldDate, OldStart: oldStart}, nil
}

func (f *fakeStore) SetDoctorAbsence(_ context.Context, doctorID int64, start, end time.Time, reason string) (*AbsenceResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextAbsenceID++
	f.absences = append(f.absences, DoctorAbsence{
		ID: f.nextAbsenceID, DoctorID: doctorID, StartDate: start, EndDate: end, Reason: reason,
	})

	var affected []AppointmentDetail
	for _, a := range f.appts {
		if a.DoctorID != doctorID || a.Status != StatusScheduled {
			continue
		}
		day := DateOf(a.Date)
		if day.Before(DateOf(start)) || day.After(DateOf(end)) {
			continue
		}
		affected = append(affected, *a)
		a.Status = StatusCancelled
		a.CancellationReason = "doctor unavailable: " + reason
	}
	return &AbsenceResult{AbsenceID: f.nextAbsenceID, Cancelled: len(affected), Affected: affected}, nil
}

func (f *fakeStore) AppointmentByID(_ context.Context, id int64) (*AppointmentDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.appts[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (f *fakeStore) UpcomingForClient(_ context.Context, phone string, now time.Time) ([]AppointmentDetail, error) {
	return f.upcoming(func(a *AppointmentDetail) bool { return a.ClientPhone == phone }, now), nil
}

func (f *fakeStore) UpcomingForDoctor(_ context.Context, doctorID int64, now time.Time) ([]AppointmentDetail, error) {
	return f.upcoming(func(a *AppointmentDetail) bool { return a.DoctorID == doctorID }, now), nil
}

func (f *fakeStore) UpcomingForClinic(_ context.Context, now time.Time) ([]AppointmentDetail, error) {
	return f.upcoming(func(*AppointmentDetail) bool { return true }, now), nil
}

func (f *fakeStore) upcoming(match func(*AppointmentDetail) bool, now time.Time) []AppointmentDetail {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []AppointmentDetail
	for _, a := range f.appts {
		if a.Status == StatusScheduled && match(a) && a.Start.At(a.Date).After(now) {
			out = append(out, *a)
		}
	}
	return out
}

func (f *fakeStore) CompleteAppointment(_ context.Context, id int64) error {
	return f.transition(id, StatusCompleted)
}

func (f *fakeStore) MarkNoShow(_ context.Context, id int64) error {
	return f.transition(id, StatusNoShow)
}

func (f *fakeStore) transition(id int64, next Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.appts[id]
	if !ok || !a.Status.CanTransitionTo(next) {
		return ErrNotFound
	}
	a.Status = next
	return nil
}

func (f *fakeStore) RecordPayment(_ context.Context, id int64, amount int, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.appts[id]
	if !ok {
		return ErrNotFound
	}
	a.ActualPrice = &amount
	a.PaymentStatus = status
	return nil
}

func (f *fakeStore) ScheduleFollowUp(_ context.Context, id int64, date time.Time, notes string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.appts[id]
	if !ok {
		return ErrNotFound
	}
	a.FollowUpDate = &date
	a.FollowUpNotes = notes
	return nil
}

// ScheduleStore methods so the same fake can back a Catalog.

func (f *fakeStore) DoctorSchedule(_ context.Context, doctorID int64, wd time.Weekday) (*DoctorSchedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.schedules[scheduleKey(doctorID, wd)], nil
}

func (f *fakeStore) IsDoctorAbsent(_ context.Context, doctorID int64, date time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	day := DateOf(date)
	for _, ab := range f.absences {
		if ab.DoctorID == doctorID && !day.Before(DateOf(ab.StartDate)) && !day.After(DateOf(ab.EndDate)) {
			return true, nil
		}
	}
	return false, nil
}
