// Package coordinator implements the per-tab timer state machine. Each
// open tab owns one Coordinator; all of them share the durable store,
// the background timekeeper, and the broadcast hub. The store record is
// the single source of truth. Two tabs racing to start timers both run
// the stop-what-is-active sequence, which is read-then-write: the race
// is known and tolerated via last-write-wins plus the staleness ceiling,
// since one human operates one surface at a time.
package coordinator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/kanbo-app/kanbo/broadcast"
	"github.com/kanbo-app/kanbo/internal/models"
	"github.com/kanbo-app/kanbo/internal/timeutil"
	"github.com/kanbo-app/kanbo/keeper"
	"github.com/kanbo-app/kanbo/store"
)

// Clock returns the current time. Injected so tests can simulate the
// passage of days.
type Clock func() time.Time

const (
	defaultCheckpointInterval = 30 * time.Second
	defaultStaleAfter         = 24 * time.Hour
	defaultKeeperTimeout      = time.Second
	defaultTickInterval       = time.Second
)

// Options configures a Coordinator. Zero values fall back to the
// documented defaults.
type Options struct {
	// Now is the clock used for all time arithmetic.
	Now Clock
	// OnTick is invoked at TickInterval while a timer is active and the
	// tab is visible, purely for display refresh.
	OnTick func(elapsedSeconds int)
	// StatusFilePath, when set, receives an advisory status snapshot on
	// every durable write so other processes can answer "is a timer
	// running" while this one holds the database lock.
	StatusFilePath     string
	CheckpointInterval time.Duration
	StaleAfter         time.Duration
	KeeperTimeout      time.Duration
	TickInterval       time.Duration
}

// Status is the coordinator's externally visible state.
type Status struct {
	ActiveTaskID string
	Status       models.TimerStatus
}

// Coordinator orchestrates the durable store, the timekeeper, and the
// broadcast hub on behalf of one tab.
type Coordinator struct {
	db     store.DB
	keeper keeper.Handle
	hub    *broadcast.Hub
	opts   Options

	mu      sync.Mutex
	state   *models.TimerState
	visible bool

	// pendingEntry survives a stop attempt whose AppendEntry succeeded
	// but whose DeleteTimer failed, so a retry does not append twice.
	pendingEntry *models.TimeEntry

	checkpointStop chan struct{}
	tickStop       chan struct{}
	unsubscribe    func()
	closed         bool
}

// New creates a Coordinator and runs the recovery path: a non-stale
// timer record is adopted and resumed, a stale one is evicted without
// producing a time entry. The keeper handle and hub may be nil; both are
// soft dependencies.
func New(
	ctx context.Context,
	db store.DB,
	kh keeper.Handle,
	hub *broadcast.Hub,
	opts Options,
) (*Coordinator, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}

	if opts.CheckpointInterval <= 0 {
		opts.CheckpointInterval = defaultCheckpointInterval
	}

	if opts.StaleAfter <= 0 {
		opts.StaleAfter = defaultStaleAfter
	}

	if opts.KeeperTimeout <= 0 {
		opts.KeeperTimeout = defaultKeeperTimeout
	}

	if opts.TickInterval <= 0 {
		opts.TickInterval = defaultTickInterval
	}

	c := &Coordinator{
		db:      db,
		keeper:  kh,
		hub:     hub,
		opts:    opts,
		visible: true,
	}

	if err := c.recover(ctx); err != nil {
		return nil, err
	}

	if hub != nil {
		events, cancel := hub.Subscribe()
		c.unsubscribe = cancel

		go c.watchBroadcasts(events)
	}

	return c, nil
}

// Start activates a timer for the given task. Any currently active timer
// is finalized first so at most one record is ever active. A store
// failure aborts the transition and leaves the previous state in place.
func (c *Coordinator) Start(ctx context.Context, taskID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != nil {
		if _, err := c.stopLocked(); err != nil {
			return errFailedToStart.Wrap(err)
		}
	}

	now := c.opts.Now()

	state := &models.TimerState{
		TaskID:         taskID,
		StartTime:      now,
		LastCheckpoint: now,
		Status:         models.StatusActive,
	}

	if err := c.db.SaveTimer(state); err != nil {
		return errFailedToStart.Wrap(err)
	}

	c.state = state

	c.postKeeper(keeper.StartTimer{TaskID: taskID, StartTime: now})
	c.publish(broadcast.Event{Type: broadcast.TimerStarted, TaskID: taskID})
	c.writeStatusFile()

	c.startCheckpointLoop()

	if c.visible {
		c.startTickLoop()
	}

	return nil
}

// Stop finalizes the active timer into a TimeEntry and deletes the timer
// record. Stopping while idle returns (nil, nil). If the entry cannot be
// appended the record is left intact so no time is silently lost.
func (c *Coordinator) Stop(ctx context.Context) (*models.TimeEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.stopLocked()
}

// stopLocked must be called with mu held.
func (c *Coordinator) stopLocked() (*models.TimeEntry, error) {
	if c.state == nil {
		return nil, nil
	}

	// Clear the checkpoint loop before touching the store so a late
	// checkpoint cannot resurrect the deleted record.
	c.stopCheckpointLoop()

	now := c.opts.Now()
	state := c.state

	appended := c.pendingEntry
	if appended == nil || appended.TaskID != state.TaskID ||
		!appended.StartTime.Equal(state.StartTime) {
		entry := &models.TimeEntry{
			TaskID:          state.TaskID,
			StartTime:       state.StartTime,
			EndTime:         now,
			DurationMinutes: timeutil.WholeMinutes(state.StartTime, now),
			IsManual:        false,
		}

		var err error

		appended, err = c.db.AppendEntry(entry)
		if err != nil {
			c.startCheckpointLoop()

			return nil, errFailedToStop.Wrap(err)
		}

		c.pendingEntry = appended
	}

	if err := c.db.DeleteTimer(state.TaskID); err != nil {
		c.startCheckpointLoop()

		return nil, errFailedToStop.Wrap(err)
	}

	c.pendingEntry = nil
	c.state = nil

	c.stopTickLoop()

	c.postKeeper(keeper.StopTimer{TaskID: state.TaskID})
	c.publish(broadcast.Event{Type: broadcast.TimerStopped, TaskID: state.TaskID})
	c.removeStatusFile()

	return appended, nil
}

// GetElapsedSeconds reports the running timer's elapsed time, recomputed
// from StartTime. With a task filter, a non-matching task yields 0.
func (c *Coordinator) GetElapsedSeconds(taskID ...string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == nil {
		return 0
	}

	if len(taskID) > 0 && taskID[0] != c.state.TaskID {
		return 0
	}

	elapsed := int(c.opts.Now().Sub(c.state.StartTime).Seconds())
	if elapsed < 0 {
		elapsed = 0
	}

	return elapsed
}

// GetStatus reports the active task (if any) and its status.
func (c *Coordinator) GetStatus() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == nil {
		return Status{}
	}

	return Status{
		ActiveTaskID: c.state.TaskID,
		Status:       c.state.Status,
	}
}

// SetVisible tells the coordinator whether its tab is rendering. Hiding
// fully stops the display scheduler; becoming visible re-reads the
// authoritative state before ticking resumes, so the displayed elapsed
// time reflects the whole hidden gap.
func (c *Coordinator) SetVisible(ctx context.Context, visible bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.visible == visible {
		return
	}

	c.visible = visible

	if !visible {
		c.stopTickLoop()
		return
	}

	c.reconcileLocked(ctx)

	if c.state != nil {
		c.startTickLoop()
	}
}

// Reconcile re-derives local state from the authoritative sources. Used
// when a broadcast arrives or a tab regains visibility.
func (c *Coordinator) Reconcile(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.reconcileLocked(ctx)
}

// reconcileLocked must be called with mu held.
func (c *Coordinator) reconcileLocked(ctx context.Context) {
	state, err := c.readState(ctx)
	if err != nil {
		slog.Error("reconcile: reading timer state failed",
			slog.Any("error", err))
		return
	}

	if state == nil {
		if c.state != nil {
			c.state = nil
			c.pendingEntry = nil

			c.stopCheckpointLoop()
			c.stopTickLoop()
		}

		return
	}

	if state.Stale(c.opts.Now(), c.opts.StaleAfter) {
		c.evictLocked(state)
		return
	}

	wasIdle := c.state == nil
	c.state = state

	if wasIdle {
		c.startCheckpointLoop()

		if c.visible {
			c.startTickLoop()
		}
	}
}

// recover runs the mount path: adopt a non-stale record, evict a stale
// one, otherwise stay idle.
func (c *Coordinator) recover(ctx context.Context) error {
	state, err := c.readState(ctx)
	if err != nil {
		return errFailedToRecover.Wrap(err)
	}

	if state == nil {
		return nil
	}

	now := c.opts.Now()

	if state.Stale(now, c.opts.StaleAfter) {
		c.mu.Lock()
		c.evictLocked(state)
		c.mu.Unlock()

		return nil
	}

	c.mu.Lock()
	c.state = state
	c.startCheckpointLoop()

	if c.visible {
		c.startTickLoop()
	}
	c.mu.Unlock()

	c.postKeeper(keeper.StartTimer{TaskID: state.TaskID, StartTime: state.StartTime})

	slog.Info("resumed timer from durable store",
		slog.String("task_id", state.TaskID),
		slog.Time("start_time", state.StartTime))

	return nil
}

// evictLocked discards an abandoned timer record. No time entry is
// produced: the elapsed time of a day-old timer is not trustworthy.
// Must be called with mu held.
func (c *Coordinator) evictLocked(state *models.TimerState) {
	if err := c.db.DeleteTimer(state.TaskID); err != nil {
		slog.Error("evicting stale timer failed",
			slog.String("task_id", state.TaskID),
			slog.Any("error", err))
		return
	}

	c.state = nil
	c.pendingEntry = nil

	c.postKeeper(keeper.StopTimer{TaskID: state.TaskID})
	c.removeStatusFile()

	slog.Info("evicted stale timer",
		slog.String("task_id", state.TaskID),
		slog.Time("start_time", state.StartTime))
}

// readState queries the keeper first and falls back to reading the store
// directly. A nil keeper reply is inconclusive, not authoritative: a
// freshly started keeper has seen no timers yet, so only the store can
// say whether a durable record exists.
func (c *Coordinator) readState(ctx context.Context) (*models.TimerState, error) {
	if c.keeper != nil && c.keeper.Ready() {
		state, err := c.queryKeeper(ctx)
		if err == nil && state != nil {
			return state, nil
		}

		if err != nil {
			slog.Warn("timekeeper query failed, falling back to store",
				slog.Any("error", err))
		}
	}

	return c.db.GetActiveTimer()
}

func (c *Coordinator) queryKeeper(ctx context.Context) (*models.TimerState, error) {
	reply := make(chan *models.TimerState, 1)

	if err := c.keeper.Post(keeper.StateRequest{Reply: reply}); err != nil {
		return nil, err
	}

	timeout := time.NewTimer(c.opts.KeeperTimeout)
	defer timeout.Stop()

	select {
	case state := <-reply:
		return state, nil
	case <-timeout.C:
		return nil, errKeeperTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// watchBroadcasts treats cross-tab events as wake-up signals and
// re-checks the store rather than trusting the payload.
func (c *Coordinator) watchBroadcasts(events <-chan broadcast.Event) {
	for range events {
		c.Reconcile(context.Background())
	}
}

// postKeeper notifies the timekeeper best-effort. The keeper is never a
// hard dependency, so failures are logged and swallowed.
func (c *Coordinator) postKeeper(msg keeper.Message) {
	if c.keeper == nil {
		return
	}

	if err := c.keeper.Post(msg); err != nil {
		slog.Warn("timekeeper notification failed", slog.Any("error", err))
	}
}

// publish broadcasts a timer event. Cross-tab consistency degrades to
// eventually-correct when delivery fails, so there is nothing to handle.
func (c *Coordinator) publish(evt broadcast.Event) {
	if c.hub == nil {
		return
	}

	c.hub.Publish(evt)
}

// startCheckpointLoop must be called with mu held.
func (c *Coordinator) startCheckpointLoop() {
	if c.checkpointStop != nil {
		return
	}

	stop := make(chan struct{})
	c.checkpointStop = stop

	go c.runCheckpointLoop(stop)
}

// stopCheckpointLoop must be called with mu held.
func (c *Coordinator) stopCheckpointLoop() {
	if c.checkpointStop == nil {
		return
	}

	close(c.checkpointStop)
	c.checkpointStop = nil
}

// runCheckpointLoop rewrites LastCheckpoint at a fixed cadence while the
// timer is active. Elapsed time is always recomputed from StartTime;
// checkpoints exist so external inspection can bound staleness more
// tightly than the 24h ceiling.
func (c *Coordinator) runCheckpointLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(c.opts.CheckpointInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.checkpoint()
		case <-stop:
			return
		}
	}
}

func (c *Coordinator) checkpoint() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == nil {
		return
	}

	c.state.LastCheckpoint = c.opts.Now()

	if err := c.db.SaveTimer(c.state); err != nil {
		slog.Error("timer checkpoint failed",
			slog.String("task_id", c.state.TaskID),
			slog.Any("error", err))
		return
	}

	c.writeStatusFile()
}

// startTickLoop must be called with mu held.
func (c *Coordinator) startTickLoop() {
	if c.tickStop != nil || c.opts.OnTick == nil {
		return
	}

	stop := make(chan struct{})
	c.tickStop = stop

	go c.runTickLoop(stop)
}

// stopTickLoop must be called with mu held.
func (c *Coordinator) stopTickLoop() {
	if c.tickStop == nil {
		return
	}

	close(c.tickStop)
	c.tickStop = nil
}

func (c *Coordinator) runTickLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(c.opts.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.opts.OnTick(c.GetElapsedSeconds())
		case <-stop:
			return
		}
	}
}

// Close persists the running timer one last time and releases the
// coordinator's loops and subscription. The persist is advisory: the
// recovery path tolerates a timer that was never checkpointed at
// shutdown.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true

	c.stopCheckpointLoop()
	c.stopTickLoop()

	if c.unsubscribe != nil {
		c.unsubscribe()
	}

	if c.state == nil {
		return nil
	}

	c.state.LastCheckpoint = c.opts.Now()

	if err := c.db.SaveTimer(c.state); err != nil {
		slog.Error("shutdown checkpoint failed", slog.Any("error", err))
	}

	c.writeStatusFile()

	return nil
}
