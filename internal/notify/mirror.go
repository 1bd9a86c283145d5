package notify

import (
	"context"
	"fmt"

	"github.com/smileclinic/booking-bot/internal/events"
	"github.com/smileclinic/booking-bot/pkg/logging"
)

// Mirror is an events sink that copies every outcome to the clinic's admin
// channel, so staff see bookings happen in real time.
type Mirror struct {
	sender  Sender
	adminTo string
	log     *logging.Logger
}

// NewMirror creates the admin mirror. adminTo is the admin channel
// identifier.
func NewMirror(sender Sender, adminTo string, log *logging.Logger) *Mirror {
	if sender == nil {
		panic("notify: sender required")
	}
	if log == nil {
		log = logging.Default()
	}
	return &Mirror{sender: sender, adminTo: adminTo, log: log.Named("mirror")}
}

// Deliver implements events.Sink.
func (m *Mirror) Deliver(ctx context.Context, o events.Outcome) error {
	if m.adminTo == "" {
		return nil
	}
	return m.sender.Send(ctx, m.adminTo, m.line(o))
}

func (m *Mirror) line(o events.Outcome) string {
	switch o.Kind {
	case events.KindAppointmentCreated:
		return fmt.Sprintf("[new] #%d %s / %s / %s %s (%s)",
			o.Appointment.AppointmentID, clientLabel(o.Appointment),
			o.Appointment.ServiceName,
			o.Appointment.Date.Format("02.01"), o.Appointment.Start, o.Actor)
	case events.KindAppointmentCancelled:
		line := fmt.Sprintf("[cancelled] #%d %s / %s %s (%s)",
			o.Appointment.AppointmentID, clientLabel(o.Appointment),
			o.Appointment.Date.Format("02.01"), o.Appointment.Start, o.Actor)
		if o.Reason != "" {
			line += " reason: " + o.Reason
		}
		return line
	case events.KindAppointmentRescheduled:
		return fmt.Sprintf("[moved] #%d %s: %s %s -> %s %s",
			o.Appointment.AppointmentID, clientLabel(o.Appointment),
			o.Previous.Date.Format("02.01"), o.Previous.Start,
			o.Appointment.Date.Format("02.01"), o.Appointment.Start)
	case events.KindAbsenceDeclared:
		return fmt.Sprintf("[absence] doctor %d from %s to %s, %d appointments cancelled",
			o.DoctorID, o.From.Format("02.01"), o.To.Format("02.01"), len(o.Cancelled))
	case events.KindReminderDue:
		return fmt.Sprintf("[reminder %dh] #%d %s / %s %s",
			o.HoursBefore, o.Appointment.AppointmentID, clientLabel(o.Appointment),
			o.Appointment.Date.Format("02.01"), o.Appointment.Start)
	}
	return fmt.Sprintf("[%s]", o.Kind)
}

func clientLabel(a *events.AppointmentSnapshot) string {
	if a == nil {
		return "?"
	}
	if a.PatientName != "" {
		return a.PatientName
	}
	if a.ClientName != "" {
		return a.ClientName
	}
	return a.ClientPhone
}
