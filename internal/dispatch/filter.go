package dispatch

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hollyoak/remindhub/internal/model"
)

// Eligible reports whether an item should be dispatched this pass. An item
// is dropped when the owner disabled its kind, and deferred while the
// owner's quiet-hours window covers the current local time. Deferral is a
// pure filtering decision: nothing is persisted, and the item is simply
// re-evaluated on the next pass.
func Eligible(item model.DueItem, pref model.UserPreference, now time.Time) bool {
	switch item.Kind {
	case model.KindMedication:
		if !pref.NotifyMedications {
			return false
		}
	case model.KindAppointment:
		if !pref.NotifyAppointments {
			return false
		}
	}

	return !InQuietHours(pref, now)
}

// Filter returns the items from one owner's batch that survive preference
// gating and the quiet-hours window.
func Filter(items []model.DueItem, pref model.UserPreference, now time.Time) []model.DueItem {
	var eligible []model.DueItem
	for _, item := range items {
		if Eligible(item, pref, now) {
			eligible = append(eligible, item)
		}
	}
	return eligible
}

// InQuietHours reports whether now falls inside the owner's quiet-hours
// window, evaluated in the owner's time zone. A window with start > end
// wraps midnight (22:00–07:00 covers 23:30 and 06:59 but not 12:00).
// Missing bounds disable the window; an invalid time zone falls back to UTC
// rather than blocking dispatch.
func InQuietHours(pref model.UserPreference, now time.Time) bool {
	if pref.QuietStart == nil || pref.QuietEnd == nil {
		return false
	}

	start, err := parseClock(*pref.QuietStart)
	if err != nil {
		return false
	}
	end, err := parseClock(*pref.QuietEnd)
	if err != nil {
		return false
	}

	loc, err := time.LoadLocation(pref.Timezone)
	if err != nil {
		loc = time.UTC
	}
	local := now.In(loc)
	current := local.Hour()*60 + local.Minute()

	if start > end {
		// Overnight window spanning 00:00
		return current >= start || current <= end
	}
	return current >= start && current <= end
}

// parseClock parses "HH:MM" (seconds tolerated and ignored) into minutes
// since local midnight.
func parseClock(s string) (int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 {
		return 0, fmt.Errorf("invalid clock value %q", s)
	}

	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}

	return hour*60 + minute, nil
}
