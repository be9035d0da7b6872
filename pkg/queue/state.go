package queue

import (
	"github.com/shishobooks/stacks/pkg/models"
)

const (
	StateActive  = "active"
	StateWaiting = "waiting"
	StatePaused  = "paused"
	// StateStale marks a record whose book left the queue statuses. Reconcile
	// drops these.
	StateStale   = "stale"
	StateUnknown = "unknown"
)

// itemState maps a queued book's status to what the queue view shows.
func itemState(status string, position int) string {
	switch status {
	case models.StatusDownloading:
		if position == 0 {
			return StateActive
		}
		return StateWaiting
	case models.StatusPaused:
		return StatePaused
	case models.StatusOnline, models.StatusSaved, models.StatusError, models.StatusMigrated:
		return StateStale
	default:
		return StateUnknown
	}
}
