package store

import (
	"time"

	"github.com/kanbo-app/kanbo/internal/models"
)

// DB is the database storage interface.
type DB interface {
	// SaveTimer stores the timer record, overwriting any existing record
	// so that at most one survives the write.
	SaveTimer(state *models.TimerState) error
	// GetActiveTimer returns the stored timer record, or nil when no
	// timer is running.
	GetActiveTimer() (*models.TimerState, error)
	// DeleteTimer deletes the timer record for the given task. Deleting
	// an absent record is a no-op.
	DeleteTimer(taskID string) error
	// AppendEntry stores a completed work interval, assigning its
	// identity.
	AppendEntry(entry *models.TimeEntry) (*models.TimeEntry, error)
	// GetEntries returns completed entries according to the time and
	// task constraints.
	GetEntries(
		startTime, endTime time.Time,
		taskIDs []string,
	) ([]models.TimeEntry, error)
	// Close ends the database connection.
	Close() error
	// Open begins a database connection.
	Open() error
}
