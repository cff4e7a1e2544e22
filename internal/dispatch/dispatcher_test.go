package dispatch

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/hollyoak/remindhub/internal/database"
	"github.com/hollyoak/remindhub/internal/model"
	"github.com/hollyoak/remindhub/internal/push"
	"github.com/hollyoak/remindhub/internal/store"
)

type sentPush struct {
	endpoint string
	payload  push.Payload
	ttl      int
}

type fakeTransport struct {
	mu       sync.Mutex
	sent     []sentPush
	failWith map[string]error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{failWith: make(map[string]error)}
}

func (f *fakeTransport) Send(sub *model.PushSubscription, payload push.Payload, ttl int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failWith[sub.Endpoint]; ok {
		return err
	}
	f.sent = append(f.sent, sentPush{endpoint: sub.Endpoint, payload: payload, ttl: ttl})
	return nil
}

func (f *fakeTransport) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type testEnv struct {
	reminders *store.ReminderStore
	subs      *store.PushStore
	prefs     *store.PreferenceStore
	events    *store.EventStore
	transport *fakeTransport
	disp      *Dispatcher
}

func setupDispatcher(t *testing.T) *testEnv {
	t.Helper()

	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	env := &testEnv{
		reminders: store.NewReminderStore(db),
		subs:      store.NewPushStore(db),
		prefs:     store.NewPreferenceStore(db),
		events:    store.NewEventStore(db),
		transport: newFakeTransport(),
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	env.disp = NewDispatcher(env.reminders, env.subs, env.prefs, env.events, env.transport, nil, logger)
	return env
}

func (e *testEnv) at(t *testing.T, now time.Time) {
	t.Helper()
	e.disp.now = func() time.Time { return now }
}

func TestDispatcherDeliversAndMarksNotified(t *testing.T) {
	env := setupDispatcher(t)
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	env.at(t, now)

	rem, err := env.reminders.Create(model.KindMedication, 1, "Lisinopril", now.Add(-time.Minute))
	if err != nil {
		t.Fatalf("create reminder: %v", err)
	}
	if _, err := env.subs.Upsert(1, "https://push.example/dev1", "p256dh", "auth", "ua"); err != nil {
		t.Fatalf("upsert subscription: %v", err)
	}

	if err := env.disp.Run(context.Background()); err != nil {
		t.Fatalf("run pipeline: %v", err)
	}

	if got := env.transport.sentCount(); got != 1 {
		t.Fatalf("expected 1 delivery, got %d", got)
	}
	sent := env.transport.sent[0]
	if sent.payload.Title != "Medication Reminder" {
		t.Errorf("title = %q", sent.payload.Title)
	}
	if sent.payload.Body != "Time to take Lisinopril" {
		t.Errorf("body = %q", sent.payload.Body)
	}
	if sent.payload.Tag != "reminder-1" {
		t.Errorf("tag = %q", sent.payload.Tag)
	}
	if sent.payload.Data.ReminderID != "med-1" {
		t.Errorf("reminder ref = %q", sent.payload.Data.ReminderID)
	}
	if sent.ttl != push.TTLScheduled {
		t.Errorf("ttl = %d, want %d", sent.ttl, push.TTLScheduled)
	}

	after, err := env.reminders.Get(model.KindMedication, rem.ID)
	if err != nil {
		t.Fatalf("reload reminder: %v", err)
	}
	if !after.Notified {
		t.Error("reminder should be marked notified after delivery")
	}

	events, err := env.events.ListByOwner(1, 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 ledger event, got %d", len(events))
	}
	ev := events[0]
	if ev.Status != model.EventStatusSent {
		t.Errorf("event status = %q", ev.Status)
	}
	if ev.ID != sent.payload.Data.EventID {
		t.Error("ledger event id should match the id embedded in the payload")
	}

	// A second pass must not re-deliver.
	if err := env.disp.Run(context.Background()); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if got := env.transport.sentCount(); got != 1 {
		t.Errorf("expected no re-delivery, got %d total sends", got)
	}
}

func TestDispatcherIsolatesFailedDevice(t *testing.T) {
	env := setupDispatcher(t)
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	env.at(t, now)

	rem, err := env.reminders.Create(model.KindAppointment, 1, "Dentist", now.Add(-time.Minute))
	if err != nil {
		t.Fatalf("create reminder: %v", err)
	}
	if _, err := env.subs.Upsert(1, "https://push.example/good", "k", "a", "ua"); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if _, err := env.subs.Upsert(1, "https://push.example/bad", "k", "a", "ua"); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	env.transport.failWith["https://push.example/bad"] = io.ErrUnexpectedEOF

	err = env.disp.Run(context.Background())
	if err == nil {
		t.Fatal("expected an aggregate error from the failed device")
	}

	if got := env.transport.sentCount(); got != 1 {
		t.Fatalf("healthy device should still receive the push, got %d sends", got)
	}

	after, err := env.reminders.Get(model.KindAppointment, rem.ID)
	if err != nil {
		t.Fatalf("reload reminder: %v", err)
	}
	if !after.Notified {
		t.Error("reminder must be marked notified even when a device fails")
	}

	events, err := env.events.ListByOwner(1, 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	var sent, failed int
	for _, ev := range events {
		switch ev.Status {
		case model.EventStatusSent:
			sent++
		case model.EventStatusFailed:
			failed++
			if ev.ErrorMessage == nil || *ev.ErrorMessage == "" {
				t.Error("failed event should carry an error message")
			}
		}
	}
	if sent != 1 || failed != 1 {
		t.Errorf("ledger counts sent=%d failed=%d, want 1 and 1", sent, failed)
	}
}

func TestDispatcherPrunesExpiredSubscription(t *testing.T) {
	env := setupDispatcher(t)
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	env.at(t, now)

	if _, err := env.reminders.Create(model.KindMedication, 1, "Metformin", now.Add(-time.Minute)); err != nil {
		t.Fatalf("create reminder: %v", err)
	}
	if _, err := env.subs.Upsert(1, "https://push.example/gone", "k", "a", "ua"); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	env.transport.failWith["https://push.example/gone"] = push.ErrExpired

	if err := env.disp.Run(context.Background()); err == nil {
		t.Fatal("expected delivery error for expired endpoint")
	}

	subs, err := env.subs.ListByOwner(1)
	if err != nil {
		t.Fatalf("list subscriptions: %v", err)
	}
	if len(subs) != 0 {
		t.Errorf("expired subscription should be pruned, %d remain", len(subs))
	}
}

func TestDispatcherQuietHoursDeferThenDeliver(t *testing.T) {
	env := setupDispatcher(t)

	pref := model.DefaultPreferences(1)
	pref.QuietStart = strptr("22:00")
	pref.QuietEnd = strptr("07:00")
	if _, err := env.prefs.Upsert(pref); err != nil {
		t.Fatalf("upsert preferences: %v", err)
	}

	night := time.Date(2025, 3, 10, 23, 30, 0, 0, time.UTC)
	rem, err := env.reminders.Create(model.KindMedication, 1, "Melatonin", night.Add(-time.Minute))
	if err != nil {
		t.Fatalf("create reminder: %v", err)
	}
	if _, err := env.subs.Upsert(1, "https://push.example/phone", "k", "a", "ua"); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	env.at(t, night)
	if err := env.disp.Run(context.Background()); err != nil {
		t.Fatalf("night run: %v", err)
	}
	if got := env.transport.sentCount(); got != 0 {
		t.Fatalf("nothing should be delivered during quiet hours, got %d sends", got)
	}
	after, err := env.reminders.Get(model.KindMedication, rem.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if after.Notified {
		t.Fatal("deferred reminder must stay unnotified so a later pass picks it up")
	}

	morning := time.Date(2025, 3, 11, 9, 0, 0, 0, time.UTC)
	env.at(t, morning)
	if err := env.disp.Run(context.Background()); err != nil {
		t.Fatalf("morning run: %v", err)
	}
	if got := env.transport.sentCount(); got != 1 {
		t.Fatalf("expected delivery after quiet hours end, got %d sends", got)
	}
	after, err = env.reminders.Get(model.KindMedication, rem.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !after.Notified {
		t.Error("reminder should be notified after the morning pass")
	}
}

func TestDispatcherSkipsOwnerWithoutDevices(t *testing.T) {
	env := setupDispatcher(t)
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	env.at(t, now)

	rem, err := env.reminders.Create(model.KindMedication, 7, "Aspirin", now.Add(-time.Minute))
	if err != nil {
		t.Fatalf("create reminder: %v", err)
	}

	if err := env.disp.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := env.transport.sentCount(); got != 0 {
		t.Errorf("no devices registered, got %d sends", got)
	}
	after, err := env.reminders.Get(model.KindMedication, rem.ID)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if after.Notified {
		t.Error("item should stay due until the owner registers a device")
	}
}
