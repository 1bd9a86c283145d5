package booking

import (
	"time"
)

const (
	// SlotMinutes is the booking granularity.
	SlotMinutes = 30

	// HorizonDays is how far ahead an appointment may be booked.
	HorizonDays = 60

	// closingHour bounds time rounding: a request whose corrected hour
	// reaches it is rejected rather than rounded past closing.
	closingHour = 18
)

// Clock supplies "now" in clinic-local time.
type Clock interface {
	Now() time.Time
}

type systemClock struct {
	loc *time.Location
}

// NewClock returns a Clock reporting wall time in the given location.
func NewClock(loc *time.Location) Clock {
	if loc == nil {
		loc = time.Local
	}
	return systemClock{loc: loc}
}

func (c systemClock) Now() time.Time { return time.Now().In(c.loc) }

// NormalizeTime validates a requested date/time and snaps it onto a
// 30-minute boundary. Minutes below 15 round down to :00, below 45 round to
// :30, and 45 or later round up to the next full hour; if that correction
// reaches the closing hour the request is rejected.
func NormalizeTime(clock Clock, date time.Time, t TimeOfDay) (TimeOfDay, error) {
	now := clock.Now()

	if t.At(date).Before(now) {
		return 0, validationErrorf("cannot book a past date or time")
	}
	if DateOf(date).After(DateOf(now.AddDate(0, 0, HorizonDays))) {
		return 0, validationErrorf("bookings are accepted at most %d days ahead", HorizonDays)
	}

	switch m := t.Minute(); {
	case m == 0 || m == 30:
		return t, nil
	case m < 15:
		return NewTimeOfDay(t.Hour(), 0), nil
	case m < 45:
		return NewTimeOfDay(t.Hour(), 30), nil
	default:
		next := t.Hour() + 1
		if next >= closingHour {
			return 0, validationErrorf("time %s is not bookable; appointments start on :00 or :30", t)
		}
		return NewTimeOfDay(next, 0), nil
	}
}

// checkActor enforces acting-role rules shared by every booking entry point:
// an admin books on behalf of patients and must name one.
func checkActor(role Role, patientName string) error {
	if role == RoleAdmin && patientName == "" {
		return validationErrorf("admins book for patients; a patient name is required")
	}
	return nil
}
