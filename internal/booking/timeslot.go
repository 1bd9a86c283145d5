package booking

import (
	"context"
	"fmt"
	"time"
)

// HoursSource supplies clinic-wide opening hours for a weekday as minutes
// since midnight. open is false when the clinic is closed that day.
type HoursSource interface {
	DayWindow(ctx context.Context, weekday time.Weekday) (startMin, endMin int, open bool)
}

// ScheduleStore provides the per-doctor schedule data the catalog needs.
type ScheduleStore interface {
	// DoctorSchedule returns the active override for the weekday, or nil
	// when the doctor has none.
	DoctorSchedule(ctx context.Context, doctorID int64, weekday time.Weekday) (*DoctorSchedule, error)
	// IsDoctorAbsent reports whether an absence period covers the date.
	IsDoctorAbsent(ctx context.Context, doctorID int64, date time.Time) (bool, error)
}

// Catalog derives a doctor's working window for a calendar day: absences win,
// then a per-weekday schedule override, then clinic-wide hours.
type Catalog struct {
	store ScheduleStore
	hours HoursSource
}

// NewCatalog constructs a time-slot catalog.
func NewCatalog(store ScheduleStore, hours HoursSource) *Catalog {
	if store == nil {
		panic("booking: schedule store required")
	}
	if hours == nil {
		panic("booking: hours source required")
	}
	return &Catalog{store: store, hours: hours}
}

// WorkingWindow returns the doctor's working bounds for the date. ok is false
// when the doctor has no slots that day (absent, or clinic closed with no
// override).
func (c *Catalog) WorkingWindow(ctx context.Context, doctorID int64, date time.Time) (Window, bool, error) {
	absent, err := c.store.IsDoctorAbsent(ctx, doctorID, date)
	if err != nil {
		return Window{}, false, fmt.Errorf("booking: check absence: %w", err)
	}
	if absent {
		return Window{}, false, nil
	}

	sched, err := c.store.DoctorSchedule(ctx, doctorID, date.Weekday())
	if err != nil {
		return Window{}, false, fmt.Errorf("booking: load schedule: %w", err)
	}
	if sched != nil {
		return Window{Start: sched.Start, End: sched.End}, true, nil
	}

	startMin, endMin, open := c.hours.DayWindow(ctx, date.Weekday())
	if !open {
		return Window{}, false, nil
	}
	return Window{Start: TimeOfDay(startMin), End: TimeOfDay(endMin)}, true, nil
}
