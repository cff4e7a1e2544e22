// Package reconcile applies notification actions reported by devices back to
// the reminder tables. Actions arrive live from the service worker or hours
// later through a replayed offline queue, so every operation here is safe to
// apply more than once.
package reconcile

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hollyoak/remindhub/internal/model"
	"github.com/hollyoak/remindhub/internal/store"
	ws "github.com/hollyoak/remindhub/internal/websocket"
)

const (
	ActionTaken   = "taken"
	ActionSnooze  = "snooze"
	ActionDismiss = "dismiss"
)

var (
	ErrNotFound          = errors.New("reminder not found")
	ErrForbidden         = errors.New("reminder belongs to another user")
	ErrUnsupportedAction = errors.New("unsupported action")
)

// defaultSnoozeMinutes applies when the owner has no presets configured.
const defaultSnoozeMinutes = 10

// Action is one user response to a delivered notification.
type Action struct {
	Action        string
	Kind          string
	EntityID      int64
	EventID       string // ledger correlation id from the push payload, optional
	SnoozeMinutes int    // 0 means the owner's first preset
}

// Result reports what the reconciler did with an action.
type Result struct {
	NextFireAt *time.Time
}

type Reconciler struct {
	reminders *store.ReminderStore
	prefs     *store.PreferenceStore
	events    *store.EventStore
	hub       *ws.Hub
	logger    *slog.Logger
	now       func() time.Time
}

func NewReconciler(
	reminders *store.ReminderStore,
	prefs *store.PreferenceStore,
	events *store.EventStore,
	hub *ws.Hub,
	logger *slog.Logger,
) *Reconciler {
	return &Reconciler{
		reminders: reminders,
		prefs:     prefs,
		events:    events,
		hub:       hub,
		logger:    logger.With("component", "reconciler"),
		now:       time.Now,
	}
}

// Apply validates ownership and applies one action. Unknown reminders return
// ErrNotFound, reminders owned by someone else return ErrForbidden, and
// action names outside the known set return ErrUnsupportedAction.
func (r *Reconciler) Apply(ownerID int64, action Action) (*Result, error) {
	rem, err := r.reminders.Get(action.Kind, action.EntityID)
	if err != nil {
		return nil, fmt.Errorf("load reminder: %w", err)
	}
	if rem == nil {
		return nil, ErrNotFound
	}
	if rem.OwnerID != ownerID {
		return nil, ErrForbidden
	}

	var result Result
	switch action.Action {
	case ActionTaken:
		if action.Kind != model.KindMedication {
			return nil, fmt.Errorf("%w: %q only applies to medications", ErrUnsupportedAction, action.Action)
		}
		if err := r.reminders.MarkNotified(action.Kind, action.EntityID); err != nil {
			return nil, fmt.Errorf("mark taken: %w", err)
		}

	case ActionDismiss:
		if err := r.reminders.MarkNotified(action.Kind, action.EntityID); err != nil {
			return nil, fmt.Errorf("mark dismissed: %w", err)
		}

	case ActionSnooze:
		next := r.now().UTC().Add(time.Duration(r.snoozeMinutes(ownerID, action)) * time.Minute)
		if err := r.reminders.Snooze(action.Kind, action.EntityID, next); err != nil {
			return nil, fmt.Errorf("snooze: %w", err)
		}
		result.NextFireAt = &next

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAction, action.Action)
	}

	r.recordClick(ownerID, action)

	r.hub.Broadcast(ws.Message{
		Type:    ws.TypeEventClicked,
		OwnerID: ownerID,
		RefID:   model.RefID(action.Kind, action.EntityID),
		Extra:   map[string]any{"action": action.Action},
	})

	return &result, nil
}

// snoozeMinutes resolves the snooze duration: explicit request value first,
// then the owner's first preset, then the builtin default.
func (r *Reconciler) snoozeMinutes(ownerID int64, action Action) int {
	if action.SnoozeMinutes > 0 {
		return action.SnoozeMinutes
	}
	pref, err := r.prefs.Get(ownerID)
	if err != nil {
		r.logger.Error("load preferences for snooze", "error", err, "owner_id", ownerID)
		return defaultSnoozeMinutes
	}
	if pref != nil && len(pref.SnoozePresets) > 0 {
		return pref.SnoozePresets[0]
	}
	return defaultSnoozeMinutes
}

// recordClick flips the correlated ledger row to clicked. A missing or
// foreign event id is logged and ignored; the action itself already
// succeeded.
func (r *Reconciler) recordClick(ownerID int64, action Action) {
	if action.EventID == "" {
		return
	}
	updated, err := r.events.MarkClicked(action.EventID, ownerID)
	if err != nil {
		r.logger.Error("mark event clicked", "error", err, "event_id", action.EventID)
		return
	}
	if !updated {
		r.logger.Warn("action referenced unknown delivery event", "event_id", action.EventID, "owner_id", ownerID)
	}
}
