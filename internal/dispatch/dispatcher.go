package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/hollyoak/remindhub/internal/model"
	"github.com/hollyoak/remindhub/internal/push"
	"github.com/hollyoak/remindhub/internal/store"
	ws "github.com/hollyoak/remindhub/internal/websocket"
)

// Transport delivers one encrypted push message to one subscription.
// Implemented by push.Service; tests inject fakes.
type Transport interface {
	Send(sub *model.PushSubscription, payload push.Payload, ttl int) error
}

// Dispatcher runs one full scan → filter → fan-out pass. Owners are
// processed concurrently and independently; so are the subscriptions of one
// owner. A failed device never blocks a sibling device, another item, or
// another owner.
type Dispatcher struct {
	scanner   *Scanner
	reminders *store.ReminderStore
	subs      *store.PushStore
	prefs     *store.PreferenceStore
	events    *store.EventStore
	transport Transport
	hub       *ws.Hub
	logger    *slog.Logger

	// now is swappable for tests
	now func() time.Time
}

func NewDispatcher(
	reminders *store.ReminderStore,
	subs *store.PushStore,
	prefs *store.PreferenceStore,
	events *store.EventStore,
	transport Transport,
	hub *ws.Hub,
	logger *slog.Logger,
) *Dispatcher {
	return &Dispatcher{
		scanner:   NewScanner(reminders),
		reminders: reminders,
		subs:      subs,
		prefs:     prefs,
		events:    events,
		transport: transport,
		hub:       hub,
		logger:    logger,
		now:       time.Now,
	}
}

// Run executes one pipeline pass: scan due items, filter per owner, fan out
// to every registered device, record outcomes, and mark items notified.
// Overlapping runs are tolerated: the notified flip is the only mutation and
// re-flipping it is harmless.
func (d *Dispatcher) Run(ctx context.Context) error {
	now := d.now().UTC()

	items, err := d.scanner.DueItems(now)
	if err != nil {
		// Partial scan results are still dispatchable
		d.logger.Error("scan due items", "error", err)
	}
	if len(items) == 0 {
		return nil
	}
	d.logger.Info("scan complete", "due_items", len(items))

	grouped := groupByOwner(items)

	var wg sync.WaitGroup
	ownerErrs := make([]error, len(grouped))
	i := 0
	for ownerID, ownerItems := range grouped {
		wg.Add(1)
		go func(slot int, ownerID int64, ownerItems []model.DueItem) {
			defer wg.Done()
			if err := d.processOwner(ctx, ownerID, ownerItems, now); err != nil {
				ownerErrs[slot] = fmt.Errorf("owner %d: %w", ownerID, err)
			}
		}(i, ownerID, ownerItems)
		i++
	}
	wg.Wait()

	combined := multierr.Combine(ownerErrs...)
	failed := len(multierr.Errors(combined))
	d.logger.Info("pipeline pass complete", "owners", len(grouped), "failed_owners", failed)
	return combined
}

func (d *Dispatcher) processOwner(ctx context.Context, ownerID int64, items []model.DueItem, now time.Time) error {
	pref, err := d.prefs.Get(ownerID)
	if err != nil {
		return fmt.Errorf("load preferences: %w", err)
	}
	if pref == nil {
		defaults := model.DefaultPreferences(ownerID)
		pref = &defaults
	}

	eligible := Filter(items, *pref, now)
	if len(eligible) == 0 {
		d.logger.Debug("no eligible items after filtering", "owner_id", ownerID)
		return nil
	}

	subs, err := d.subs.ListByOwner(ownerID)
	if err != nil {
		return fmt.Errorf("list subscriptions: %w", err)
	}
	if len(subs) == 0 {
		// Owner has no registered devices, nothing to do
		return nil
	}

	var errs error
	for _, item := range eligible {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		errs = multierr.Append(errs, d.dispatchItem(item, subs, now))
	}
	return errs
}

// dispatchItem fans one item out to every subscription, gathers all
// outcomes, and then marks the item notified regardless of individual
// results. Delivery failure is terminal for this fire cycle; the item fires
// again only through recurrence or a user snooze.
func (d *Dispatcher) dispatchItem(item model.DueItem, subs []model.PushSubscription, now time.Time) error {
	var wg sync.WaitGroup
	attemptErrs := make([]error, len(subs))

	for i := range subs {
		wg.Add(1)
		go func(slot int, sub model.PushSubscription) {
			defer wg.Done()
			attemptErrs[slot] = d.attempt(item, &sub, now)
		}(i, subs[i])
	}
	wg.Wait()

	if err := d.reminders.MarkNotified(item.Kind, item.EntityID); err != nil {
		return multierr.Append(multierr.Combine(attemptErrs...), err)
	}
	return multierr.Combine(attemptErrs...)
}

// attempt delivers one item to one subscription and appends the outcome to
// the ledger. The correlation id is generated up front so the device can
// echo it back when the user acts on the notification.
func (d *Dispatcher) attempt(item model.DueItem, sub *model.PushSubscription, now time.Time) error {
	eventID := uuid.NewString()
	payload := buildPayload(item, eventID, now)

	sendErr := d.transport.Send(sub, payload, push.TTLScheduled)

	if err := d.subs.TouchLastSeen(sub.ID); err != nil {
		d.logger.Error("touch subscription", "error", err, "subscription_id", sub.ID)
	}

	ev := model.NotificationEvent{
		ID:                eventID,
		OwnerID:           item.OwnerID,
		EntityKind:        item.Kind,
		EntityID:          item.EntityID,
		ScheduledFireTime: item.FireTime,
		SubscriptionID:    sub.ID,
	}

	if sendErr == nil {
		sentAt := now
		ev.SentAt = &sentAt
		ev.Status = model.EventStatusSent
	} else {
		msg := sendErr.Error()
		ev.Status = model.EventStatusFailed
		ev.ErrorMessage = &msg
	}

	if err := d.events.Append(ev); err != nil {
		d.logger.Error("append delivery event", "error", err, "ref_id", item.RefID)
	}

	if sendErr == nil {
		d.hub.Broadcast(ws.Message{
			Type:    ws.TypeDeliverySent,
			OwnerID: item.OwnerID,
			RefID:   item.RefID,
			Extra:   map[string]any{"subscription_id": sub.ID, "event_id": eventID},
		})
		return nil
	}

	if errors.Is(sendErr, push.ErrExpired) {
		// Dead endpoint, prune it so the next cycle stops trying
		if err := d.subs.DeleteByEndpoint(sub.Endpoint); err != nil {
			d.logger.Error("delete expired subscription", "error", err)
		}
		d.logger.Info("pruned expired subscription", "owner_id", item.OwnerID, "subscription_id", sub.ID)
		d.hub.Broadcast(ws.Message{
			Type:    ws.TypeSubscriptionExpired,
			OwnerID: item.OwnerID,
			Extra:   map[string]any{"subscription_id": sub.ID},
		})
	} else {
		d.logger.Error("push delivery failed", "error", sendErr, "ref_id", item.RefID, "subscription_id", sub.ID)
		d.hub.Broadcast(ws.Message{
			Type:    ws.TypeDeliveryFailed,
			OwnerID: item.OwnerID,
			RefID:   item.RefID,
			Extra:   map[string]any{"subscription_id": sub.ID, "error": sendErr.Error()},
		})
	}

	return fmt.Errorf("deliver %s to subscription %d: %w", item.RefID, sub.ID, sendErr)
}

func buildPayload(item model.DueItem, eventID string, now time.Time) push.Payload {
	title := "Appointment Reminder"
	body := fmt.Sprintf("Upcoming appointment: %s", item.Title)
	if item.Kind == model.KindMedication {
		title = "Medication Reminder"
		body = fmt.Sprintf("Time to take %s", item.Title)
	}

	return push.Payload{
		Title:              title,
		Body:               body,
		Icon:               "/icon-192x192.png",
		Badge:              "/badge-72x72.png",
		Tag:                fmt.Sprintf("reminder-%d", item.EntityID),
		RequireInteraction: true,
		Vibrate:            []int{200, 100, 200},
		Data: push.Data{
			EntityType: item.Kind,
			EntityID:   item.EntityID,
			ReminderID: item.RefID,
			EventID:    eventID,
			UserID:     item.OwnerID,
			Timestamp:  now.UnixMilli(),
		},
	}
}
