// Package events carries booking outcomes from the engine to downstream
// consumers (the admin mirror channel, client notifications) without the
// engine knowing who listens. Delivery is fire-and-forget: a failed or slow
// consumer never affects the booking transaction that produced the outcome.
package events

import "time"

// Kind identifies what happened.
type Kind string

const (
	KindAppointmentCreated     Kind = "appointment_created"
	KindAppointmentCancelled   Kind = "appointment_cancelled"
	KindAppointmentRescheduled Kind = "appointment_rescheduled"
	KindAbsenceDeclared        Kind = "absence_declared"
	KindReminderDue            Kind = "reminder_due"
)

// AppointmentSnapshot is a self-contained copy of an appointment at the
// moment the outcome was produced. Consumers never read the store.
type AppointmentSnapshot struct {
	AppointmentID   int64     `json:"appointment_id"`
	ClientName      string    `json:"client_name,omitempty"`
	ClientPhone     string    `json:"client_phone"`
	PatientName     string    `json:"patient_name,omitempty"`
	DoctorID        int64     `json:"doctor_id"`
	DoctorName      string    `json:"doctor_name"`
	ServiceName     string    `json:"service_name"`
	Date            time.Time `json:"date"`
	Start           string    `json:"start"`
	DurationMinutes int       `json:"duration_minutes"`
	Price           int       `json:"price"`
	Status          string    `json:"status"`
}

// Outcome is one booking result fanned out to every sink.
type Outcome struct {
	Kind  Kind      `json:"kind"`
	Actor string    `json:"actor,omitempty"`
	At    time.Time `json:"at"`

	// Appointment is set for created/cancelled/rescheduled/reminder
	// outcomes. For reschedules it holds the new slot and Previous the old.
	Appointment *AppointmentSnapshot `json:"appointment,omitempty"`
	Previous    *AppointmentSnapshot `json:"previous,omitempty"`
	Reason      string               `json:"reason,omitempty"`

	// Absence cascade payload. From and To are pointers so outcomes of
	// other kinds omit them entirely when marshalled.
	AbsenceID int64                 `json:"absence_id,omitempty"`
	DoctorID  int64                 `json:"absence_doctor_id,omitempty"`
	From      *time.Time            `json:"from,omitempty"`
	To        *time.Time            `json:"to,omitempty"`
	Cancelled []AppointmentSnapshot `json:"cancelled,omitempty"`

	// HoursBefore is set on reminder outcomes (24, 2 or 1).
	HoursBefore int `json:"hours_before,omitempty"`
}
