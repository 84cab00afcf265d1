// Package keeper runs the background timekeeper, a process-lifetime
// goroutine that holds the canonical view of the running timer while no
// tab is actively rendering. It is an optimization for background
// accuracy, never a hard dependency: coordinators fall back to reading
// the store directly whenever the keeper is absent or silent.
package keeper

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/kanbo-app/kanbo/internal/models"
)

// ErrUnavailable is returned by Post when the keeper is not accepting
// messages. Callers treat it as a signal to degrade, not as a failure.
var ErrUnavailable = errors.New("timekeeper is unavailable")

// Message is a request accepted by the keeper's inbox.
type Message interface {
	isMessage()
}

// StartTimer informs the keeper a timer has begun. Idempotent: repeating
// it for the same task changes nothing.
type StartTimer struct {
	StartTime time.Time
	TaskID    string
}

// StopTimer informs the keeper a timer has ended. Stopping a task with
// no running timer is a no-op.
type StopTimer struct {
	TaskID string
}

// StateRequest asks for the keeper's view of the active timer. The reply
// is nil when no timer is running. Reply must be buffered; the keeper
// never blocks on a slow receiver.
type StateRequest struct {
	Reply chan<- *models.TimerState
}

func (StartTimer) isMessage()   {}
func (StopTimer) isMessage()    {}
func (StateRequest) isMessage() {}

// Handle is the capability a coordinator holds to reach the keeper.
type Handle interface {
	// Post delivers a message at most once, without blocking.
	Post(msg Message) error
	// Ready reports whether the keeper is accepting messages.
	Ready() bool
}

// Keeper owns the timer fact between tab lifetimes. All state access
// happens on the run loop goroutine; the outside world only sees it
// through messages.
type Keeper struct {
	inbox    chan Message
	done     chan struct{}
	stopOnce sync.Once
	state    *models.TimerState
}

const inboxSize = 16

// New creates a keeper. Run must be called for messages to be consumed.
func New() *Keeper {
	return &Keeper{
		inbox: make(chan Message, inboxSize),
		done:  make(chan struct{}),
	}
}

// Start launches the keeper's run loop in its own goroutine.
func Start() *Keeper {
	k := New()

	go k.Run()

	return k
}

// Run consumes messages until Shutdown is called.
func (k *Keeper) Run() {
	for {
		select {
		case msg := <-k.inbox:
			k.handle(msg)
		case <-k.done:
			return
		}
	}
}

func (k *Keeper) handle(msg Message) {
	switch m := msg.(type) {
	case StartTimer:
		k.state = &models.TimerState{
			TaskID:         m.TaskID,
			StartTime:      m.StartTime,
			LastCheckpoint: m.StartTime,
			Status:         models.StatusActive,
		}
	case StopTimer:
		if k.state != nil && k.state.TaskID == m.TaskID {
			k.state = nil
		}
	case StateRequest:
		var state *models.TimerState
		if k.state != nil {
			s := *k.state
			state = &s
		}

		select {
		case m.Reply <- state:
		default:
			slog.Warn("timekeeper dropped a state response",
				slog.Bool("has_state", state != nil))
		}
	}
}

// Post delivers a message to the keeper without blocking. A full inbox
// or a stopped keeper yields ErrUnavailable.
func (k *Keeper) Post(msg Message) error {
	select {
	case <-k.done:
		return ErrUnavailable
	default:
	}

	select {
	case k.inbox <- msg:
		return nil
	default:
		return ErrUnavailable
	}
}

// Ready reports whether the keeper is still running.
func (k *Keeper) Ready() bool {
	select {
	case <-k.done:
		return false
	default:
		return true
	}
}

// Shutdown stops the run loop. Safe to call from multiple goroutines.
// The keeper holds no durable state, so there is nothing to flush.
func (k *Keeper) Shutdown() {
	k.stopOnce.Do(func() {
		close(k.done)
	})
}
