// Package notify turns booking outcomes into client-facing messages. The
// actual chat transport is pluggable; the default sender only logs, which
// keeps the engine runnable without any provider credentials.
package notify

import (
	"context"
	"fmt"

	"github.com/smileclinic/booking-bot/internal/events"
	"github.com/smileclinic/booking-bot/pkg/logging"
)

// Sender delivers one outbound message to a chat identifier.
type Sender interface {
	Send(ctx context.Context, to, text string) error
}

// LogSender writes outbound messages to the log instead of a provider.
type LogSender struct {
	log *logging.Logger
}

// NewLogSender creates a sender that only logs.
func NewLogSender(log *logging.Logger) *LogSender {
	if log == nil {
		log = logging.Default()
	}
	return &LogSender{log: log.Named("outbound")}
}

func (s *LogSender) Send(_ context.Context, to, text string) error {
	s.log.Info("outbound message", "to", to, "text", text)
	return nil
}

// Notifier is an events sink that messages the clients affected by each
// outcome.
type Notifier struct {
	sender Sender
	log    *logging.Logger
}

// NewNotifier creates a notifier delivering through the sender.
func NewNotifier(sender Sender, log *logging.Logger) *Notifier {
	if sender == nil {
		panic("notify: sender required")
	}
	if log == nil {
		log = logging.Default()
	}
	return &Notifier{sender: sender, log: log.Named("notify")}
}

// Deliver implements events.Sink.
func (n *Notifier) Deliver(ctx context.Context, o events.Outcome) error {
	switch o.Kind {
	case events.KindAppointmentCreated:
		return n.send(ctx, o.Appointment, fmt.Sprintf(
			"Your appointment is confirmed: %s with %s on %s at %s.",
			o.Appointment.ServiceName, o.Appointment.DoctorName,
			o.Appointment.Date.Format("02.01.2006"), o.Appointment.Start))

	case events.KindAppointmentCancelled:
		text := fmt.Sprintf("Your appointment for %s on %s at %s has been cancelled.",
			o.Appointment.ServiceName,
			o.Appointment.Date.Format("02.01.2006"), o.Appointment.Start)
		if o.Reason != "" {
			text += " Reason: " + o.Reason + "."
		}
		return n.send(ctx, o.Appointment, text)

	case events.KindAppointmentRescheduled:
		return n.send(ctx, o.Appointment, fmt.Sprintf(
			"Your appointment for %s was moved from %s %s to %s %s.",
			o.Appointment.ServiceName,
			o.Previous.Date.Format("02.01.2006"), o.Previous.Start,
			o.Appointment.Date.Format("02.01.2006"), o.Appointment.Start))

	case events.KindAbsenceDeclared:
		// Each affected client gets an individual cancellation notice.
		var firstErr error
		for i := range o.Cancelled {
			a := &o.Cancelled[i]
			err := n.send(ctx, a, fmt.Sprintf(
				"Unfortunately %s is unavailable on %s. Your %s appointment at %s was cancelled; please rebook.",
				a.DoctorName, a.Date.Format("02.01.2006"), a.ServiceName, a.Start))
			if err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr

	case events.KindReminderDue:
		return n.send(ctx, o.Appointment, fmt.Sprintf(
			"Reminder: %s with %s on %s at %s.",
			o.Appointment.ServiceName, o.Appointment.DoctorName,
			o.Appointment.Date.Format("02.01.2006"), o.Appointment.Start))
	}
	return nil
}

func (n *Notifier) send(ctx context.Context, a *events.AppointmentSnapshot, text string) error {
	if a == nil || a.ClientPhone == "" {
		n.log.Warn("outcome without client identifier, nothing sent")
		return nil
	}
	return n.sender.Send(ctx, a.ClientPhone, text)
}
