package models

import (
	"time"
)

// TimerStatus is the lifecycle state of a persisted timer record.
type TimerStatus string

const (
	StatusActive TimerStatus = "active"
	// StatusPaused is accepted when read back from the store but no code
	// path transitions into it yet.
	StatusPaused TimerStatus = "paused"
)

// TimerState is the durable record for the (at most one) running timer.
type TimerState struct {
	// StartTime is when the timer began. Elapsed time is always
	// recomputed from this value, never accumulated.
	StartTime time.Time `json:"start_time"`
	// LastCheckpoint is the instant of the most recent durable write.
	LastCheckpoint time.Time   `json:"last_checkpoint"`
	TaskID         string      `json:"task_id"`
	Status         TimerStatus `json:"status"`
}

// Age reports how long ago the timer started relative to now.
func (s *TimerState) Age(now time.Time) time.Duration {
	return now.Sub(s.StartTime)
}

// Stale reports whether the record is older than the given ceiling and
// should be discarded instead of resumed.
func (s *TimerState) Stale(now time.Time, ceiling time.Duration) bool {
	return s.Age(now) > ceiling
}

// TimeEntry is an immutable completed work interval.
type TimeEntry struct {
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	ID          string    `json:"id"`
	TaskID      string    `json:"task_id"`
	Description string    `json:"description,omitempty"`
	// DurationMinutes is floor((EndTime - StartTime) / 1 minute), never
	// negative even when StartTime is clock-skewed into the future.
	DurationMinutes int  `json:"duration_minutes"`
	IsManual        bool `json:"is_manual"`
}
