package booking

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/zhouzirui/assistant-desk/internal/model/appointment"
)

var at = time.Date(2024, 7, 1, 14, 0, 0, 0, time.UTC)

func mustCreate(t *testing.T, svc *Service, clientID string, when time.Time) appointment.Appointment {
	t.Helper()
	item, err := svc.Create(context.Background(), appointment.CreateInput{ClientID: clientID, ServiceType: "Consultation", ScheduledDate: when})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return item
}

func TestCreateAssignsIDsAndDefaults(t *testing.T) {
	svc := NewService()

	first := mustCreate(t, svc, "c-1", at)
	second := mustCreate(t, svc, "c-2", at)

	if first.ID != 1 || second.ID != 2 {
		t.Fatalf("unexpected ids %d %d", first.ID, second.ID)
	}
	if first.Status != appointment.StatusPending {
		t.Fatalf("expected pending, got %s", first.Status)
	}
	if first.DurationMinutes != defaultDuration {
		t.Fatalf("expected default duration, got %d", first.DurationMinutes)
	}
}

func TestCreateValidates(t *testing.T) {
	svc := NewService()
	cases := map[error]appointment.CreateInput{
		ErrClientRequired:  {ServiceType: "x", ScheduledDate: at},
		ErrServiceRequired: {ClientID: "c", ScheduledDate: at},
		ErrDateRequired:    {ClientID: "c", ServiceType: "x"},
	}
	for want, in := range cases {
		if _, err := svc.Create(context.Background(), in); !errors.Is(err, want) {
			t.Fatalf("expected %v, got %v", want, err)
		}
	}
}

func TestListFiltersAndStats(t *testing.T) {
	svc := NewService()
	ctx := context.Background()
	a := mustCreate(t, svc, "c-1", at)
	mustCreate(t, svc, "c-1", at.Add(time.Hour))
	mustCreate(t, svc, "c-2", at)

	confirmed := appointment.StatusConfirmed
	if _, err := svc.Update(ctx, a.ID, Update{Status: &confirmed}); err != nil {
		t.Fatalf("update: %v", err)
	}

	if got := svc.List(ctx, Query{ClientID: "c-1"}); len(got) != 2 {
		t.Fatalf("expected 2 for c-1, got %d", len(got))
	}
	if got := svc.List(ctx, Query{Status: appointment.StatusConfirmed}); len(got) != 1 || got[0].ID != a.ID {
		t.Fatalf("unexpected confirmed list %+v", got)
	}

	stats := svc.Stats(ctx)
	if stats.Total != 3 || stats.Confirmed != 1 || stats.Pending != 2 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestUpdateAndDeleteMissing(t *testing.T) {
	svc := NewService()
	ctx := context.Background()

	if _, err := svc.Update(ctx, 42, Update{}); !errors.Is(err, ErrAppointmentNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := svc.Delete(ctx, 42); !errors.Is(err, ErrAppointmentNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	bogus := appointment.Status("archived")
	item := mustCreate(t, svc, "c-1", at)
	if _, err := svc.Update(ctx, item.ID, Update{Status: &bogus}); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected invalid status, got %v", err)
	}
}

func TestDueRemindersMarksOnce(t *testing.T) {
	svc := NewService()
	ctx := context.Background()
	now := at.Add(-2 * time.Hour)

	soon := mustCreate(t, svc, "c-1", at)
	far := mustCreate(t, svc, "c-1", at.Add(72*time.Hour))
	pending := mustCreate(t, svc, "c-2", at)

	confirmed := appointment.StatusConfirmed
	for _, id := range []int64{soon.ID, far.ID} {
		if _, err := svc.Update(ctx, id, Update{Status: &confirmed}); err != nil {
			t.Fatalf("confirm %d: %v", id, err)
		}
	}

	due := svc.DueReminders(ctx, now, 24*time.Hour)
	if len(due) != 1 || due[0].ID != soon.ID {
		t.Fatalf("unexpected due list %+v", due)
	}
	if again := svc.DueReminders(ctx, now, 24*time.Hour); len(again) != 0 {
		t.Fatalf("reminder sent twice: %+v", again)
	}

	got, err := svc.Get(ctx, pending.ID)
	if err != nil || got.ReminderSent {
		t.Fatalf("pending appointment should not be reminded: %+v %v", got, err)
	}
}

type fakeNotifier struct {
	online map[string]bool
	sent   []string
}

func (f *fakeNotifier) Notify(clientID, content string) bool {
	if !f.online[clientID] {
		return false
	}
	f.sent = append(f.sent, content)
	return true
}

func TestSendRemindersToConnectedClients(t *testing.T) {
	svc := NewService()
	svc.now = func() time.Time { return at.Add(-3 * time.Hour) }
	ctx := context.Background()

	online := mustCreate(t, svc, "online", at)
	offline := mustCreate(t, svc, "offline", at)
	confirmed := appointment.StatusConfirmed
	for _, id := range []int64{online.ID, offline.ID} {
		if _, err := svc.Update(ctx, id, Update{Status: &confirmed}); err != nil {
			t.Fatalf("confirm: %v", err)
		}
	}

	notifier := &fakeNotifier{online: map[string]bool{"online": true}}
	if n := svc.SendReminders(ctx, notifier, 24*time.Hour); n != 1 {
		t.Fatalf("expected 1 reminder, got %d", n)
	}
	if len(notifier.sent) != 1 || !strings.Contains(notifier.sent[0], "This appointment is in 3 hours.") {
		t.Fatalf("unexpected reminders %q", notifier.sent)
	}
	if !strings.Contains(notifier.sent[0], "Monday, July 01, 2024") || !strings.Contains(notifier.sent[0], "02:00 PM") {
		t.Fatalf("unexpected date formatting %q", notifier.sent[0])
	}
}
