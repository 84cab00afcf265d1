package coordinator

import (
	"encoding/json"
	"log/slog"
	"os"

	"github.com/kanbo-app/kanbo/internal/models"
)

// writeStatusFile snapshots the timer record to the advisory status
// file. Another process can read it while this one holds the database
// lock. Best-effort: a failed write only degrades out-of-process status
// reporting. Must be called with mu held.
func (c *Coordinator) writeStatusFile() {
	if c.opts.StatusFilePath == "" || c.state == nil {
		return
	}

	b, err := json.Marshal(c.state)
	if err != nil {
		slog.Error("marshalling status file failed", slog.Any("error", err))
		return
	}

	if err := os.WriteFile(c.opts.StatusFilePath, b, 0o600); err != nil {
		slog.Error("writing status file failed", slog.Any("error", err))
	}
}

// removeStatusFile must be called with mu held.
func (c *Coordinator) removeStatusFile() {
	if c.opts.StatusFilePath == "" {
		return
	}

	_ = os.Remove(c.opts.StatusFilePath)
}

// ReadStatusFile returns the advisory timer snapshot written by a
// running instance, or nil when the file is missing.
func ReadStatusFile(path string) (*models.TimerState, error) {
	fileBytes, err := os.ReadFile(path)
	if err != nil {
		// a missing file means no status to report
		return nil, nil
	}

	var state models.TimerState

	err = json.Unmarshal(fileBytes, &state)
	if err != nil {
		return nil, err
	}

	return &state, nil
}
