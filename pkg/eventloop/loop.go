package eventloop

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Task is a unit of work posted to a Loop. It always runs to completion on
// the loop's single goroutine — spec.md §5 "Handlers run to completion;
// there is no preemption".
type Task func(now time.Time)

// Clock abstracts wall-clock time so tests can drive the loop with a fake
// clock instead of real sleeps.
type Clock interface {
	Now() time.Time
	// After returns a channel that receives the current time once d has
	// elapsed (or immediately for a fake clock that has already been
	// advanced past the deadline).
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// RealClock is the production Clock backed by the OS.
var RealClock Clock = realClock{}

// Loop is the single-threaded cooperative event loop described in spec.md
// §5: a FIFO in-box of Tasks, plus a min-heap of Timers, processed by one
// goroutine. All per-node state mutation happens inside Tasks run by the
// same Loop, so it serialises naturally without additional locking.
type Loop struct {
	clock  Clock
	timers *TimerWheel
	inbox  chan Task
	log    zerolog.Logger
}

// NewLoop creates a Loop. inboxSize bounds how many outstanding Tasks may be
// queued before Post blocks; pick something generous (the package tests
// use small inboxes of 16 and never fill them).
func NewLoop(clock Clock, log zerolog.Logger, inboxSize int) *Loop {
	if clock == nil {
		clock = RealClock
	}
	if inboxSize <= 0 {
		inboxSize = 256
	}
	return &Loop{
		clock:  clock,
		timers: NewTimerWheel(),
		inbox:  make(chan Task, inboxSize),
		log:    log.With().Str("subsystem", "eventloop").Logger(),
	}
}

// Post enqueues a Task for execution on the loop's goroutine. Safe to call
// from any goroutine (e.g. a transport callback or a test driver); this is
// the only thread-safe entry point into otherwise single-threaded state.
func (l *Loop) Post(t Task) {
	l.inbox <- t
}

// ArmTimer schedules fn at "at" and returns a cancellable handle. Must only
// be called from inside a Task running on this Loop (or before Run starts).
func (l *Loop) ArmTimer(at time.Time, fn TimerFunc) TimerID {
	return l.timers.Arm(at, fn)
}

// CancelTimer cancels a previously armed timer; idempotent.
func (l *Loop) CancelTimer(id TimerID) {
	l.timers.Cancel(id)
}

// Reprogram cancels "existing" (if non-zero) and arms a fresh timer.
func (l *Loop) Reprogram(existing TimerID, at time.Time, fn TimerFunc) TimerID {
	return l.timers.Reprogram(existing, at, fn)
}

// Now returns the loop's notion of the current time.
func (l *Loop) Now() time.Time {
	return l.clock.Now()
}

// Run drains timers and processes inbox Tasks until ctx is cancelled. Per
// Design Notes §9, due timers are drained before each inbound message is
// processed, so a burst of expired timers never starves behind a single
// slow-arriving message and vice versa.
func (l *Loop) Run(ctx context.Context) {
	for {
		now := l.clock.Now()
		l.timers.DrainDue(now)

		var wait <-chan time.Time
		if at, ok := l.timers.NextDeadline(); ok {
			d := at.Sub(now)
			if d < 0 {
				d = 0
			}
			wait = l.clock.After(d)
		}

		select {
		case <-ctx.Done():
			return
		case task := <-l.inbox:
			l.timers.DrainDue(l.clock.Now())
			task(l.clock.Now())
		case <-wait:
			// loop back around; DrainDue will pick up whatever is due
		}
	}
}

// RunOnce drains due timers and processes exactly one pending inbox Task (if
// any) without blocking. Intended for deterministic unit tests that want to
// step the loop by hand alongside a fake Clock.
func (l *Loop) RunOnce() (ran bool) {
	now := l.clock.Now()
	l.timers.DrainDue(now)
	select {
	case task := <-l.inbox:
		task(l.clock.Now())
		l.timers.DrainDue(l.clock.Now())
		return true
	default:
		return false
	}
}
