package notify

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/smileclinic/booking-bot/internal/events"
)

type captureSender struct {
	mu   sync.Mutex
	sent []sentMessage
}

type sentMessage struct {
	to   string
	text string
}

func (c *captureSender) Send(_ context.Context, to, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, sentMessage{to: to, text: text})
	return nil
}

func snapshotFixture(id int64, phone string) *events.AppointmentSnapshot {
	return &events.AppointmentSnapshot{
		AppointmentID: id,
		ClientPhone:   phone,
		ClientName:    "Aset",
		DoctorName:    "Dr. Adams",
		ServiceName:   "cleaning",
		Date:          time.Date(2026, time.March, 3, 0, 0, 0, 0, time.UTC),
		Start:         "10:30",
	}
}

func TestNotifierCreatedMessage(t *testing.T) {
	sender := &captureSender{}
	n := NewNotifier(sender, nil)

	err := n.Deliver(context.Background(), events.Outcome{
		Kind:        events.KindAppointmentCreated,
		Appointment: snapshotFixture(42, "+77010000001"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(sender.sent) != 1 || sender.sent[0].to != "+77010000001" {
		t.Fatalf("unexpected sends: %+v", sender.sent)
	}
	if !strings.Contains(sender.sent[0].text, "03.03.2026 at 10:30") {
		t.Fatalf("message lacks slot: %q", sender.sent[0].text)
	}
}

func TestNotifierAbsenceMessagesEveryAffectedClient(t *testing.T) {
	sender := &captureSender{}
	n := NewNotifier(sender, nil)

	err := n.Deliver(context.Background(), events.Outcome{
		Kind: events.KindAbsenceDeclared,
		Cancelled: []events.AppointmentSnapshot{
			*snapshotFixture(1, "+77010000001"),
			*snapshotFixture(2, "+77010000002"),
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(sender.sent) != 2 {
		t.Fatalf("want one message per affected client, got %d", len(sender.sent))
	}
	if sender.sent[0].to == sender.sent[1].to {
		t.Fatalf("both messages went to %s", sender.sent[0].to)
	}
}

func TestNotifierRescheduledIncludesBothSlots(t *testing.T) {
	sender := &captureSender{}
	n := NewNotifier(sender, nil)

	prev := snapshotFixture(42, "+77010000001")
	prev.Date = time.Date(2026, time.March, 2, 0, 0, 0, 0, time.UTC)
	prev.Start = "09:00"

	err := n.Deliver(context.Background(), events.Outcome{
		Kind:        events.KindAppointmentRescheduled,
		Appointment: snapshotFixture(42, "+77010000001"),
		Previous:    prev,
	})
	if err != nil {
		t.Fatal(err)
	}
	text := sender.sent[0].text
	if !strings.Contains(text, "02.03.2026 09:00") || !strings.Contains(text, "03.03.2026 10:30") {
		t.Fatalf("message lacks old or new slot: %q", text)
	}
}

func TestMirrorLines(t *testing.T) {
	sender := &captureSender{}
	m := NewMirror(sender, "admin-chat", nil)

	err := m.Deliver(context.Background(), events.Outcome{
		Kind:        events.KindAppointmentCreated,
		Actor:       "client",
		Appointment: snapshotFixture(42, "+77010000001"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if sender.sent[0].to != "admin-chat" {
		t.Fatalf("mirror sent to %s", sender.sent[0].to)
	}
	if !strings.Contains(sender.sent[0].text, "#42") || !strings.Contains(sender.sent[0].text, "Aset") {
		t.Fatalf("mirror line: %q", sender.sent[0].text)
	}
}

func TestMirrorWithoutAdminChannelIsNoop(t *testing.T) {
	sender := &captureSender{}
	m := NewMirror(sender, "", nil)

	if err := m.Deliver(context.Background(), events.Outcome{Kind: events.KindAppointmentCreated}); err != nil {
		t.Fatal(err)
	}
	if len(sender.sent) != 0 {
		t.Fatalf("no admin channel configured but %d sends happened", len(sender.sent))
	}
}
