package booking

import (
	"errors"
	"testing"
	"time"
)

type fakeClock struct {
	now time.Time
}

func (f fakeClock) Now() time.Time { return f.now }

var testNow = time.Date(2026, time.March, 2, 8, 0, 0, 0, time.UTC)

func TestNormalizeTimeRounding(t *testing.T) {
	clock := fakeClock{now: testNow}
	date := testNow.AddDate(0, 0, 1)

	tests := []struct {
		in   string
		want string
	}{
		{"09:00", "09:00"},
		{"09:07", "09:00"},
		{"09:15", "09:30"},
		{"09:20", "09:30"},
		{"09:44", "09:30"},
		{"09:45", "10:00"},
		{"09:50", "10:00"},
		{"12:30", "12:30"},
	}
	for _, tt := range tests {
		in, err := ParseTimeOfDay(tt.in)
		if err != nil {
			t.Fatalf("parse %q: %v", tt.in, err)
		}
		got, err := NormalizeTime(clock, date, in)
		if err != nil {
			t.Fatalf("NormalizeTime(%s): %v", tt.in, err)
		}
		if got.String() != tt.want {
			t.Errorf("NormalizeTime(%s) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeTimeRejectsRoundingPastClosing(t *testing.T) {
	clock := fakeClock{now: testNow}
	date := testNow.AddDate(0, 0, 1)

	// 17:50 would round to 18:00, the closing hour.
	_, err := NormalizeTime(clock, date, NewTimeOfDay(17, 50))
	if !IsValidation(err) {
		t.Fatalf("expected ValidationError, got %v", err)
	}

	// 17:30 is still fine.
	if _, err := NormalizeTime(clock, date, NewTimeOfDay(17, 30)); err != nil {
		t.Fatalf("17:30 should be accepted: %v", err)
	}
}

func TestNormalizeTimeRejectsPast(t *testing.T) {
	clock := fakeClock{now: testNow}

	_, err := NormalizeTime(clock, testNow, NewTimeOfDay(7, 0))
	if !IsValidation(err) {
		t.Fatalf("expected ValidationError for past time, got %v", err)
	}

	_, err = NormalizeTime(clock, testNow.AddDate(0, 0, -1), NewTimeOfDay(10, 0))
	if !IsValidation(err) {
		t.Fatalf("expected ValidationError for past date, got %v", err)
	}
}

func TestNormalizeTimeRejectsBeyondHorizon(t *testing.T) {
	clock := fakeClock{now: testNow}

	_, err := NormalizeTime(clock, testNow.AddDate(0, 0, HorizonDays+1), NewTimeOfDay(10, 0))
	if !IsValidation(err) {
		t.Fatalf("expected ValidationError beyond horizon, got %v", err)
	}

	// Exactly 60 days ahead is allowed.
	if _, err := NormalizeTime(clock, testNow.AddDate(0, 0, HorizonDays), NewTimeOfDay(10, 0)); err != nil {
		t.Fatalf("60 days ahead should be accepted: %v", err)
	}
}

func TestCheckActor(t *testing.T) {
	if err := checkActor(RoleClient, ""); err != nil {
		t.Fatalf("client without patient name should pass: %v", err)
	}
	if err := checkActor(RoleAdmin, "Aigerim"); err != nil {
		t.Fatalf("admin with patient name should pass: %v", err)
	}
	err := checkActor(RoleAdmin, "")
	var invalid *ValidationError
	if !errors.As(err, &invalid) {
		t.Fatalf("admin without patient name should fail with ValidationError, got %v", err)
	}
}

func TestStatusTransitions(t *testing.T) {
	for _, next := range []Status{StatusCompleted, StatusCancelled, StatusNoShow} {
		if !StatusScheduled.CanTransitionTo(next) {
			t.Errorf("scheduled -> %s should be legal", next)
		}
	}
	for _, from := range []Status{StatusCompleted, StatusCancelled, StatusNoShow} {
		for _, next := range []Status{StatusScheduled, StatusCompleted, StatusCancelled, StatusNoShow} {
			if from.CanTransitionTo(next) {
				t.Errorf("%s -> %s should be illegal", from, next)
			}
		}
	}
}

func TestParseTimeOfDay(t *testing.T) {
	got, err := ParseTimeOfDay("09:30:00")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got != NewTimeOfDay(9, 30) {
		t.Errorf("got %s", got)
	}
	if _, err := ParseTimeOfDay("9am"); err == nil {
		t.Error("expected error for malformed time")
	}
}
