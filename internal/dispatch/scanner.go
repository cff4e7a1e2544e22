package dispatch

import (
	"time"

	"go.uber.org/multierr"

	"github.com/hollyoak/remindhub/internal/model"
	"github.com/hollyoak/remindhub/internal/store"
)

// Scanner finds unnotified reminders whose fire time has passed. It has no
// side effects; the notified flag is only flipped downstream after a
// dispatch attempt completes, which makes re-scanning before downstream
// processing finishes harmless.
type Scanner struct {
	reminders *store.ReminderStore
}

func NewScanner(reminders *store.ReminderStore) *Scanner {
	return &Scanner{reminders: reminders}
}

// DueItems returns every due reminder across both kinds, tagged with the
// composite ref id used for downstream correlation. A failure reading one
// kind does not hide due items of the other.
func (s *Scanner) DueItems(now time.Time) ([]model.DueItem, error) {
	var items []model.DueItem
	var errs error

	for _, kind := range []string{model.KindMedication, model.KindAppointment} {
		reminders, err := s.reminders.ListDue(kind, now)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		for _, r := range reminders {
			items = append(items, model.DueItem{
				RefID:    model.RefID(kind, r.ID),
				Kind:     kind,
				EntityID: r.ID,
				OwnerID:  r.OwnerID,
				Title:    r.Title,
				FireTime: r.FireTime,
			})
		}
	}

	return items, errs
}

// groupByOwner buckets due items per owner for independent processing.
func groupByOwner(items []model.DueItem) map[int64][]model.DueItem {
	grouped := make(map[int64][]model.DueItem)
	for _, item := range items {
		grouped[item.OwnerID] = append(grouped[item.OwnerID], item)
	}
	return grouped
}
