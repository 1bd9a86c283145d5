package booking

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func TestFreeTicksEmptyDay(t *testing.T) {
	win := Window{Start: NewTimeOfDay(9, 0), End: NewTimeOfDay(11, 0)}

	got := FreeTicks(win, nil)

	want := []string{"09:00", "09:30", "10:00", "10:30"}
	if len(got) != len(want) {
		t.Fatalf("got %d ticks, want %d: %v", len(got), len(want), got)
	}
	for i, w := range want {
		if got[i].String() != w {
			t.Errorf("tick %d = %s, want %s", i, got[i], w)
		}
	}
}

func TestFreeTicksSubtractsBusyWithServiceDuration(t *testing.T) {
	win := Window{Start: NewTimeOfDay(9, 0), End: NewTimeOfDay(12, 0)}
	// A 60-minute service at 09:30 blocks the 09:30 and 10:00 ticks;
	// [09:00,09:30) does not intersect [09:30,10:30), so 09:00 stays free.
	busy := []BusyInterval{{Start: NewTimeOfDay(9, 30), DurationMinutes: 60}}

	got := FreeTicks(win, busy)

	want := []string{"09:00", "10:30", "11:00", "11:30"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i, w := range want {
		if got[i].String() != w {
			t.Errorf("tick %d = %s, want %s", i, got[i], w)
		}
	}
}

func TestFreeTicksExcludesPartialFinalTick(t *testing.T) {
	// Window ends at 10:15; the 09:45..10:15 region never aligns, and the
	// last full tick is 09:30 (ends 10:00). 10:00 would extend to 10:30.
	win := Window{Start: NewTimeOfDay(9, 0), End: NewTimeOfDay(10, 15)}

	got := FreeTicks(win, nil)

	if len(got) == 0 || got[len(got)-1].String() != "09:30" {
		t.Fatalf("last tick should be 09:30, got %v", got)
	}
}

func TestFreeTicksNeverOverlapsBusy(t *testing.T) {
	win := Window{Start: NewTimeOfDay(9, 0), End: NewTimeOfDay(18, 0)}
	busy := []BusyInterval{
		{Start: NewTimeOfDay(9, 0), DurationMinutes: 90},
		{Start: NewTimeOfDay(13, 30), DurationMinutes: 30},
		{Start: NewTimeOfDay(16, 0), DurationMinutes: 45},
	}

	for _, tick := range FreeTicks(win, busy) {
		for _, b := range busy {
			if b.Overlaps(tick, SlotMinutes) {
				t.Errorf("free tick %s overlaps busy %s+%dm", tick, b.Start, b.DurationMinutes)
			}
		}
	}
}

type stubScheduleStore struct {
	schedules map[string]*DoctorSchedule // key doctorID|weekday
	absent    map[int64]bool
}

func (s *stubScheduleStore) DoctorSchedule(_ context.Context, doctorID int64, wd time.Weekday) (*DoctorSchedule, error) {
	return s.schedules[scheduleKey(doctorID, wd)], nil
}

func (s *stubScheduleStore) IsDoctorAbsent(_ context.Context, doctorID int64, _ time.Time) (bool, error) {
	return s.absent[doctorID], nil
}

func scheduleKey(id int64, wd time.Weekday) string {
	return fmt.Sprintf("%d|%s", id, wd)
}

type stubHours struct {
	startMin, endMin int
	open             bool
}

func (h stubHours) DayWindow(context.Context, time.Weekday) (int, int, bool) {
	return h.startMin, h.endMin, h.open
}

func TestWorkingWindowAbsenceWins(t *testing.T) {
	store := &stubScheduleStore{absent: map[int64]bool{1: true}}
	cat := NewCatalog(store, stubHours{540, 1080, true})

	_, ok, err := cat.WorkingWindow(context.Background(), 1, testNow)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("absent doctor must have no window")
	}
}

func TestWorkingWindowScheduleOverridesClinicHours(t *testing.T) {
	monday := time.Date(2026, time.March, 2, 0, 0, 0, 0, time.UTC)
	store := &stubScheduleStore{
		schedules: map[string]*DoctorSchedule{
			scheduleKey(1, time.Monday): {DoctorID: 1, Weekday: time.Monday, Start: NewTimeOfDay(12, 0), End: NewTimeOfDay(20, 0)},
		},
		absent: map[int64]bool{},
	}
	cat := NewCatalog(store, stubHours{540, 1080, true})

	win, ok, err := cat.WorkingWindow(context.Background(), 1, monday)
	if err != nil {
		t.Fatal(err)
	}
	if !ok || win.Start != NewTimeOfDay(12, 0) || win.End != NewTimeOfDay(20, 0) {
		t.Fatalf("override not applied: %+v ok=%v", win, ok)
	}

	// Doctor 2 has no override and falls back to clinic hours.
	win, ok, err = cat.WorkingWindow(context.Background(), 2, monday)
	if err != nil {
		t.Fatal(err)
	}
	if !ok || win.Start != NewTimeOfDay(9, 0) || win.End != NewTimeOfDay(18, 0) {
		t.Fatalf("clinic fallback not applied: %+v ok=%v", win, ok)
	}
}

func TestWorkingWindowClosedClinicNoOverride(t *testing.T) {
	store := &stubScheduleStore{absent: map[int64]bool{}}
	cat := NewCatalog(store, stubHours{open: false})

	_, ok, err := cat.WorkingWindow(context.Background(), 3, testNow)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("closed clinic with no override must yield no window")
	}
}
