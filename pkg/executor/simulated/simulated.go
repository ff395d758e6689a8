// Package simulated is the default concrete executor.Executor cmd/stars-node
// runs against. Actually executing a task is explicitly out of scope for
// the scheduling core (spec.md Non-goals: "executing the task itself" is
// the pack's job, not this module's), so there is no real task sandbox to
// ground this on; instead it simulates one task's wall-clock runtime as
// Description.Length seconds-of-reference-power, scaled by the node's own
// Power and config.ExecConfig.SecondsPerUnit, purely so a real binary has
// something runnable to report Finished/Aborted transitions from.
package simulated

import (
	"sync"
	"time"

	"github.com/jcelaya/stars/pkg/address"
	"github.com/jcelaya/stars/pkg/config"
	"github.com/jcelaya/stars/pkg/executor"
	"github.com/jcelaya/stars/pkg/taskmodel"
)

// Executor simulates task runtime with a single real-time timer per task.
// Run and Abort report their Running/Aborted transitions synchronously on
// the caller's goroutine; the Finished callback arrives on the timer's own
// goroutine. Callers (pkg/localsched) must therefore accept callbacks on
// either goroutine, which pkg/localsched satisfies by posting every
// callback onto the node's loop.
type Executor struct {
	secondsPerUnit float64
	power          float64

	mu     sync.Mutex
	nextID int64
}

var _ executor.Executor = (*Executor)(nil)

// New builds a simulated Executor. power is the node's own Capacity.Power
// (spec.md §3's worker resource triple); a faster node finishes the same
// Length sooner.
func New(cfg config.ExecConfig, power float64) *Executor {
	if power <= 0 {
		power = 1
	}
	return &Executor{secondsPerUnit: cfg.SecondsPerUnit, power: power}
}

func (e *Executor) CreateTask(owner address.Address, reqID, clientTaskID int64, desc taskmodel.Description, onChange executor.StateChangeFunc) executor.Handle {
	e.mu.Lock()
	e.nextID++
	id := e.nextID
	e.mu.Unlock()

	return &handle{
		taskID:   id,
		duration: e.runtime(desc),
		onChange: onChange,
	}
}

func (e *Executor) runtime(desc taskmodel.Description) time.Duration {
	seconds := desc.Length * e.secondsPerUnit / e.power
	if seconds <= 0 {
		seconds = e.secondsPerUnit
	}
	return time.Duration(seconds * float64(time.Second))
}

type handle struct {
	taskID   int64
	duration time.Duration
	onChange executor.StateChangeFunc

	mu      sync.Mutex
	timer   *time.Timer
	aborted bool
}

func (h *handle) Run() {
	h.onChange(h.taskID, taskmodel.Prepared, taskmodel.Running)

	h.mu.Lock()
	h.timer = time.AfterFunc(h.duration, h.finish)
	h.mu.Unlock()
}

func (h *handle) finish() {
	h.mu.Lock()
	if h.aborted {
		h.mu.Unlock()
		return
	}
	h.mu.Unlock()
	h.onChange(h.taskID, taskmodel.Running, taskmodel.Finished)
}

func (h *handle) Abort() {
	h.mu.Lock()
	if h.aborted {
		h.mu.Unlock()
		return
	}
	h.aborted = true
	if h.timer != nil {
		h.timer.Stop()
	}
	h.mu.Unlock()
	h.onChange(h.taskID, taskmodel.Running, taskmodel.Aborted)
}
