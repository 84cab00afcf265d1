package coordinator_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kanbo-app/kanbo/broadcast"
	"github.com/kanbo-app/kanbo/coordinator"
	"github.com/kanbo-app/kanbo/internal/models"
	"github.com/kanbo-app/kanbo/keeper"
)

// dbMock implements store.DB in memory.
type dbMock struct {
	mu        sync.Mutex
	timer     *models.TimerState
	entries   []models.TimeEntry
	saveErr   error
	appendErr error
	deleteErr error
}

func (d *dbMock) SaveTimer(state *models.TimerState) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.saveErr != nil {
		return d.saveErr
	}

	s := *state
	d.timer = &s

	return nil
}

func (d *dbMock) GetActiveTimer() (*models.TimerState, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer == nil {
		return nil, nil
	}

	s := *d.timer

	return &s, nil
}

func (d *dbMock) DeleteTimer(taskID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.deleteErr != nil {
		return d.deleteErr
	}

	if d.timer != nil && d.timer.TaskID == taskID {
		d.timer = nil
	}

	return nil
}

func (d *dbMock) AppendEntry(entry *models.TimeEntry) (*models.TimeEntry, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.appendErr != nil {
		return nil, d.appendErr
	}

	e := *entry
	e.ID = fmt.Sprintf("entry-%d", len(d.entries)+1)

	d.entries = append(d.entries, e)

	return &e, nil
}

func (d *dbMock) GetEntries(
	startTime, endTime time.Time,
	taskIDs []string,
) ([]models.TimeEntry, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	return append([]models.TimeEntry(nil), d.entries...), nil
}

func (d *dbMock) Close() error { return nil }
func (d *dbMock) Open() error  { return nil }

func (d *dbMock) activeTimer() *models.TimerState {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer == nil {
		return nil
	}

	s := *d.timer

	return &s
}

func (d *dbMock) allEntries() []models.TimeEntry {
	d.mu.Lock()
	defer d.mu.Unlock()

	return append([]models.TimeEntry(nil), d.entries...)
}

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{
		now: time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC),
	}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

// silentKeeper accepts every message and never replies, simulating a
// present but unresponsive timekeeper.
type silentKeeper struct{}

func (silentKeeper) Post(keeper.Message) error { return nil }
func (silentKeeper) Ready() bool               { return true }

func newCoordinator(
	t *testing.T,
	db *dbMock,
	kh keeper.Handle,
	clock *fakeClock,
) *coordinator.Coordinator {
	t.Helper()

	c, err := coordinator.New(context.Background(), db, kh, nil, coordinator.Options{
		Now:           clock.Now,
		KeeperTimeout: 20 * time.Millisecond,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = c.Close()
	})

	return c
}

func TestStartStopProducesFlooredEntry(t *testing.T) {
	db := &dbMock{}
	clock := newFakeClock()
	c := newCoordinator(t, db, nil, clock)

	require.NoError(t, c.Start(context.Background(), "t1"))

	clock.Advance(125 * time.Second)

	entry, err := c.Stop(context.Background())
	require.NoError(t, err)
	require.NotNil(t, entry)

	assert.Equal(t, "t1", entry.TaskID)
	assert.Equal(t, 2, entry.DurationMinutes)
	assert.False(t, entry.IsManual)
	assert.NotEmpty(t, entry.ID)

	assert.Nil(t, db.activeTimer(), "timer record must be deleted on stop")

	status := c.GetStatus()
	assert.Empty(t, status.ActiveTaskID)
}

func TestStopWhileIdleIsNoOp(t *testing.T) {
	db := &dbMock{}
	c := newCoordinator(t, db, nil, newFakeClock())

	entry, err := c.Stop(context.Background())
	require.NoError(t, err)
	assert.Nil(t, entry)
	assert.Empty(t, db.allEntries())
}

func TestStartingSecondTaskFinalizesFirst(t *testing.T) {
	db := &dbMock{}
	clock := newFakeClock()
	c := newCoordinator(t, db, nil, clock)

	require.NoError(t, c.Start(context.Background(), "t1"))
	require.NoError(t, c.Start(context.Background(), "t2"))

	entries := db.allEntries()
	require.Len(t, entries, 1, "starting t2 must finalize t1's interval")
	assert.Equal(t, "t1", entries[0].TaskID)
	assert.Equal(t, 0, entries[0].DurationMinutes)

	state := db.activeTimer()
	require.NotNil(t, state)
	assert.Equal(t, "t2", state.TaskID)
	assert.Equal(t, models.StatusActive, state.Status)

	assert.Equal(t, "t2", c.GetStatus().ActiveTaskID)
}

func TestRecoveryAdoptsRecentTimer(t *testing.T) {
	clock := newFakeClock()

	db := &dbMock{
		timer: &models.TimerState{
			TaskID:         "t1",
			StartTime:      clock.Now().Add(-time.Hour),
			LastCheckpoint: clock.Now().Add(-time.Minute),
			Status:         models.StatusActive,
		},
	}

	c := newCoordinator(t, db, nil, clock)

	assert.Equal(t, "t1", c.GetStatus().ActiveTaskID)
	assert.Equal(t, 3600, c.GetElapsedSeconds())
	assert.NotNil(t, db.activeTimer())
}

func TestRecoveryEvictsStaleTimer(t *testing.T) {
	clock := newFakeClock()

	db := &dbMock{
		timer: &models.TimerState{
			TaskID:         "t1",
			StartTime:      clock.Now().Add(-25 * time.Hour),
			LastCheckpoint: clock.Now().Add(-25 * time.Hour),
			Status:         models.StatusActive,
		},
	}

	c := newCoordinator(t, db, nil, clock)

	assert.Empty(t, c.GetStatus().ActiveTaskID)
	assert.Nil(t, db.activeTimer(), "stale record must be deleted")
	assert.Empty(t, db.allEntries(), "eviction must not produce a time entry")
}

func TestRecoveryWithFreshKeeperAdoptsStoredTimer(t *testing.T) {
	clock := newFakeClock()

	db := &dbMock{
		timer: &models.TimerState{
			TaskID:         "t1",
			StartTime:      clock.Now().Add(-time.Hour),
			LastCheckpoint: clock.Now().Add(-time.Minute),
			Status:         models.StatusActive,
		},
	}

	k := keeper.Start()
	defer k.Shutdown()

	c := newCoordinator(t, db, k, clock)

	// A just-started keeper has seen no timers yet, so its empty reply
	// must not mask the record waiting in the store.
	assert.Equal(t, "t1", c.GetStatus().ActiveTaskID)
	assert.Equal(t, 3600, c.GetElapsedSeconds())
	assert.NotNil(t, db.activeTimer())

	// Adoption also teaches the keeper about the resumed timer.
	require.Eventually(t, func() bool {
		reply := make(chan *models.TimerState, 1)
		if k.Post(keeper.StateRequest{Reply: reply}) != nil {
			return false
		}

		select {
		case state := <-reply:
			return state != nil && state.TaskID == "t1"
		case <-time.After(100 * time.Millisecond):
			return false
		}
	}, time.Second, 10*time.Millisecond)
}

func TestRecoveryWithFreshKeeperEvictsStaleTimer(t *testing.T) {
	clock := newFakeClock()

	db := &dbMock{
		timer: &models.TimerState{
			TaskID:         "t1",
			StartTime:      clock.Now().Add(-25 * time.Hour),
			LastCheckpoint: clock.Now().Add(-25 * time.Hour),
			Status:         models.StatusActive,
		},
	}

	k := keeper.Start()
	defer k.Shutdown()

	c := newCoordinator(t, db, k, clock)

	assert.Empty(t, c.GetStatus().ActiveTaskID)
	assert.Nil(t, db.activeTimer(), "stale record must be deleted")
	assert.Empty(t, db.allEntries(), "eviction must not produce a time entry")
}

func TestClockSkewClampsDurationToZero(t *testing.T) {
	clock := newFakeClock()

	db := &dbMock{
		timer: &models.TimerState{
			TaskID:         "t1",
			StartTime:      clock.Now().Add(10 * time.Minute),
			LastCheckpoint: clock.Now(),
			Status:         models.StatusActive,
		},
	}

	c := newCoordinator(t, db, nil, clock)

	assert.Equal(t, 0, c.GetElapsedSeconds())

	entry, err := c.Stop(context.Background())
	require.NoError(t, err)
	require.NotNil(t, entry, "the entry is still produced")
	assert.Equal(t, 0, entry.DurationMinutes)
}

func TestStoreFailureAbortsStart(t *testing.T) {
	db := &dbMock{saveErr: errors.New("disk full")}
	c := newCoordinator(t, db, nil, newFakeClock())

	err := c.Start(context.Background(), "t1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Failed to start timer")

	assert.Empty(t, c.GetStatus().ActiveTaskID,
		"a failed start must not advance the state machine")
	assert.Equal(t, 0, c.GetElapsedSeconds())
}

func TestSinkFailureLeavesTimerIntact(t *testing.T) {
	db := &dbMock{}
	clock := newFakeClock()
	c := newCoordinator(t, db, nil, clock)

	require.NoError(t, c.Start(context.Background(), "t1"))

	db.mu.Lock()
	db.appendErr = errors.New("store unavailable")
	db.mu.Unlock()

	clock.Advance(90 * time.Second)

	entry, err := c.Stop(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Failed to stop timer")
	assert.Nil(t, entry)

	assert.Equal(t, "t1", c.GetStatus().ActiveTaskID,
		"a failed stop must keep the timer active")
	require.NotNil(t, db.activeTimer(), "the record must survive a failed stop")

	// Retry succeeds once the sink is back.
	db.mu.Lock()
	db.appendErr = nil
	db.mu.Unlock()

	entry, err = c.Stop(context.Background())
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, 1, entry.DurationMinutes)
}

func TestStopRetryAfterDeleteFailureRecordsOneEntry(t *testing.T) {
	db := &dbMock{}
	clock := newFakeClock()
	c := newCoordinator(t, db, nil, clock)

	require.NoError(t, c.Start(context.Background(), "t1"))

	clock.Advance(90 * time.Second)

	db.mu.Lock()
	db.deleteErr = errors.New("store unavailable")
	db.mu.Unlock()

	_, err := c.Stop(context.Background())
	require.Error(t, err)

	require.Len(t, db.allEntries(), 1,
		"the entry was persisted before the delete failed")
	require.NotNil(t, db.activeTimer(),
		"the record survives so the stop can be retried")

	db.mu.Lock()
	db.deleteErr = nil
	db.mu.Unlock()

	entry, err := c.Stop(context.Background())
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, 1, entry.DurationMinutes)

	assert.Len(t, db.allEntries(), 1,
		"retrying the stop must not append a second entry")
	assert.Nil(t, db.activeTimer())
}

func TestElapsedSecondsWithTaskFilter(t *testing.T) {
	db := &dbMock{}
	clock := newFakeClock()
	c := newCoordinator(t, db, nil, clock)

	require.NoError(t, c.Start(context.Background(), "t1"))

	clock.Advance(42 * time.Second)

	assert.Equal(t, 42, c.GetElapsedSeconds())
	assert.Equal(t, 42, c.GetElapsedSeconds("t1"))
	assert.Equal(t, 0, c.GetElapsedSeconds("t2"))
}

func TestVisibilityGapIsReflectedOnReturn(t *testing.T) {
	db := &dbMock{}
	clock := newFakeClock()
	c := newCoordinator(t, db, nil, clock)

	require.NoError(t, c.Start(context.Background(), "t1"))

	c.SetVisible(context.Background(), false)

	clock.Advance(10 * time.Second)

	c.SetVisible(context.Background(), true)

	assert.Equal(t, 10, c.GetElapsedSeconds(),
		"elapsed time must reflect the full hidden gap")
}

func TestTickCallbackFollowsVisibility(t *testing.T) {
	db := &dbMock{}
	clock := newFakeClock()

	var ticks atomic.Int64

	c, err := coordinator.New(context.Background(), db, nil, nil, coordinator.Options{
		Now:          clock.Now,
		TickInterval: 5 * time.Millisecond,
		OnTick: func(int) {
			ticks.Add(1)
		},
	})
	require.NoError(t, err)

	defer c.Close()

	assert.Zero(t, ticks.Load(), "no ticks while idle")

	require.NoError(t, c.Start(context.Background(), "t1"))

	require.Eventually(t, func() bool {
		return ticks.Load() > 0
	}, time.Second, time.Millisecond, "ticks must flow while active and visible")

	c.SetVisible(context.Background(), false)

	// Allow an in-flight tick to drain before sampling.
	time.Sleep(20 * time.Millisecond)

	hidden := ticks.Load()

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, hidden, ticks.Load(), "no ticks while hidden")

	c.SetVisible(context.Background(), true)

	require.Eventually(t, func() bool {
		return ticks.Load() > hidden
	}, time.Second, time.Millisecond, "ticks resume when the tab returns")

	_, err = c.Stop(context.Background())
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)

	stopped := ticks.Load()

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, stopped, ticks.Load(), "no ticks after stop")
}

func TestBehaviorMatchesWithKeeperVariants(t *testing.T) {
	tests := []struct {
		name   string
		keeper keeper.Handle
	}{
		{name: "keeper absent", keeper: nil},
		{name: "keeper unresponsive", keeper: silentKeeper{}},
		{name: "keeper running", keeper: keeper.Start()},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			db := &dbMock{}
			clock := newFakeClock()
			c := newCoordinator(t, db, tc.keeper, clock)

			require.NoError(t, c.Start(context.Background(), "t1"))

			clock.Advance(125 * time.Second)

			assert.Equal(t, 125, c.GetElapsedSeconds())

			entry, err := c.Stop(context.Background())
			require.NoError(t, err)
			require.NotNil(t, entry)
			assert.Equal(t, 2, entry.DurationMinutes)
			assert.Nil(t, db.activeTimer())
		})
	}
}

func TestCheckpointUpdatesRecord(t *testing.T) {
	db := &dbMock{}
	clock := newFakeClock()

	c, err := coordinator.New(context.Background(), db, nil, nil, coordinator.Options{
		Now:                clock.Now,
		CheckpointInterval: 10 * time.Millisecond,
	})
	require.NoError(t, err)

	defer c.Close()

	require.NoError(t, c.Start(context.Background(), "t1"))

	started := db.activeTimer()
	require.NotNil(t, started)

	clock.Advance(time.Minute)

	require.Eventually(t, func() bool {
		state := db.activeTimer()
		return state != nil && state.LastCheckpoint.After(started.LastCheckpoint)
	}, time.Second, 5*time.Millisecond, "checkpoint loop must rewrite LastCheckpoint")

	state := db.activeTimer()
	assert.Equal(t, started.StartTime, state.StartTime,
		"checkpoints must never touch StartTime")
}

func TestLateCheckpointCannotResurrectStoppedTimer(t *testing.T) {
	db := &dbMock{}
	clock := newFakeClock()

	c, err := coordinator.New(context.Background(), db, nil, nil, coordinator.Options{
		Now:                clock.Now,
		CheckpointInterval: 10 * time.Millisecond,
	})
	require.NoError(t, err)

	defer c.Close()

	require.NoError(t, c.Start(context.Background(), "t1"))

	_, err = c.Stop(context.Background())
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)

	assert.Nil(t, db.activeTimer(),
		"no checkpoint may race after deletion and resurrect the record")
}

func TestBroadcastWakesOtherTab(t *testing.T) {
	db := &dbMock{}
	clock := newFakeClock()
	hub := broadcast.NewHub()

	defer hub.Close()

	newTab := func() *coordinator.Coordinator {
		c, err := coordinator.New(context.Background(), db, nil, hub, coordinator.Options{
			Now: clock.Now,
		})
		require.NoError(t, err)

		t.Cleanup(func() {
			_ = c.Close()
		})

		return c
	}

	tabA := newTab()
	tabB := newTab()

	require.NoError(t, tabA.Start(context.Background(), "t1"))

	require.Eventually(t, func() bool {
		return tabB.GetStatus().ActiveTaskID == "t1"
	}, time.Second, 5*time.Millisecond,
		"tab B must learn about the start without polling")

	_, err := tabA.Stop(context.Background())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return tabB.GetStatus().ActiveTaskID == ""
	}, time.Second, 5*time.Millisecond)
}

func TestStatusFileFollowsTimerLifecycle(t *testing.T) {
	db := &dbMock{}
	clock := newFakeClock()
	statusPath := filepath.Join(t.TempDir(), "status.json")

	c, err := coordinator.New(context.Background(), db, nil, nil, coordinator.Options{
		Now:            clock.Now,
		StatusFilePath: statusPath,
	})
	require.NoError(t, err)

	defer c.Close()

	state, err := coordinator.ReadStatusFile(statusPath)
	require.NoError(t, err)
	assert.Nil(t, state, "a missing status file is not an error")

	require.NoError(t, c.Start(context.Background(), "t1"))

	state, err = coordinator.ReadStatusFile(statusPath)
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, "t1", state.TaskID)
	assert.True(t, state.StartTime.Equal(clock.Now()))

	_, err = c.Stop(context.Background())
	require.NoError(t, err)

	state, err = coordinator.ReadStatusFile(statusPath)
	require.NoError(t, err)
	assert.Nil(t, state, "the status file is removed on stop")
}

func TestCloseCheckpointsRunningTimer(t *testing.T) {
	db := &dbMock{}
	clock := newFakeClock()

	c, err := coordinator.New(context.Background(), db, nil, nil, coordinator.Options{
		Now: clock.Now,
	})
	require.NoError(t, err)

	require.NoError(t, c.Start(context.Background(), "t1"))

	clock.Advance(5 * time.Minute)

	require.NoError(t, c.Close())

	state := db.activeTimer()
	require.NotNil(t, state, "the record must survive shutdown for recovery")
	assert.Equal(t, clock.Now(), state.LastCheckpoint)
}
