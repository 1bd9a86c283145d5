package booking

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of an appointment.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusNoShow    Status = "no_show"
)

// CanTransitionTo reports whether a status change is legal. Only scheduled
// appointments move; completed, cancelled and no_show are terminal.
func (s Status) CanTransitionTo(next Status) bool {
	if s != StatusScheduled {
		return false
	}
	switch next {
	case StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

// Role distinguishes who is acting on a booking operation. Admins operate on
// any appointment; clients only on their own.
type Role string

const (
	RoleClient Role = "client"
	RoleAdmin  Role = "admin"
)

// TimeOfDay is a clock time expressed as minutes since midnight.
type TimeOfDay int

// NewTimeOfDay builds a TimeOfDay from an hour and minute pair.
func NewTimeOfDay(hour, minute int) TimeOfDay {
	return TimeOfDay(hour*60 + minute)
}

// ParseTimeOfDay parses "HH:MM" (longer strings such as "09:00:00" are
// truncated to the first five characters).
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	if len(s) > 5 {
		s = s[:5]
	}
	parsed, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("booking: parse time %q: %w", s, err)
	}
	return NewTimeOfDay(parsed.Hour(), parsed.Minute()), nil
}

// Hour returns the hour component.
func (t TimeOfDay) Hour() int { return int(t) / 60 }

// Minute returns the minute component.
func (t TimeOfDay) Minute() int { return int(t) % 60 }

// Add returns the time shifted forward by the given number of minutes.
func (t TimeOfDay) Add(minutes int) TimeOfDay { return t + TimeOfDay(minutes) }

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

// At anchors the time of day onto a calendar date in the date's location.
func (t TimeOfDay) At(date time.Time) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), t.Hour(), t.Minute(), 0, 0, date.Location())
}

// DateOf strips the clock component, keeping the calendar day and location.
func DateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// SameDate reports whether two timestamps fall on the same calendar day.
func SameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// Doctor is a bookable practitioner.
type Doctor struct {
	ID             int64
	Name           string
	Specialization string
	Active         bool
}

// Procedure is a bookable service; its duration drives how many slot ticks a
// booking occupies.
type Procedure struct {
	ID              int64
	Name            string
	Price           int
	DurationMinutes int
}

// Client is identified by a phone-equivalent identifier.
type Client struct {
	ID      int64
	Phone   string
	Name    string
	Blocked bool
}

// DoctorSchedule is a per-weekday working window overriding clinic hours.
type DoctorSchedule struct {
	DoctorID int64
	Weekday  time.Weekday
	Start    TimeOfDay
	End      TimeOfDay
}

// DoctorAbsence is an inclusive date range during which a doctor has no slots.
type DoctorAbsence struct {
	ID        int64
	DoctorID  int64
	StartDate time.Time
	EndDate   time.Time
	Reason    string
}

// Appointment is the central entity of the booking engine.
type Appointment struct {
	ID                 int64
	ClientID           int64
	DoctorID           int64
	ServiceID          int64
	Date               time.Time
	Start              TimeOfDay
	Status             Status
	Notes              string
	PatientName        string
	CancellationReason string
	FollowUpDate       *time.Time
	FollowUpNotes      string
	ActualPrice        *int
	PaymentStatus      string
	Reminder24hSent    bool
	Reminder2hSent     bool
	Reminder1hSent     bool
}

// End returns the appointment's exclusive end time given its service duration.
func (a Appointment) End(durationMinutes int) TimeOfDay {
	return a.Start.Add(durationMinutes)
}

// AppointmentDetail is an appointment joined with its client, doctor and
// service rows.
type AppointmentDetail struct {
	Appointment
	ClientName      string
	ClientPhone     string
	DoctorName      string
	Specialization  string
	ServiceName     string
	Price           int
	DurationMinutes int
}

// Window is a working interval within a single day.
type Window struct {
	Start TimeOfDay
	End   TimeOfDay
}

// Slot is a free fixed-granularity candidate start for one doctor on one date.
type Slot struct {
	DoctorID   int64
	DoctorName string
	Time       TimeOfDay
}

// BusyInterval is an occupied stretch of a doctor's day; its length comes from
// the booked service, not the slot size.
type BusyInterval struct {
	Start           TimeOfDay
	DurationMinutes int
}

// Overlaps reports whether the half-open interval [b.Start, b.Start+dur)
// intersects [start, start+minutes).
func (b BusyInterval) Overlaps(start TimeOfDay, minutes int) bool {
	return start < b.Start.Add(b.DurationMinutes) && b.Start < start.Add(minutes)
}
