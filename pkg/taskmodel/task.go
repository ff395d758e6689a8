package taskmodel

import (
	"time"

	"github.com/jcelaya/stars/pkg/address"
)

// Task is spec.md's worker-side Task: a single unit of work admitted by a
// local scheduler, identified node-locally.
type Task struct {
	TaskID          int64 // node-local id, assigned by the local scheduler
	Owner           address.Address
	ClientRequestID int64
	ClientTaskID    int64
	Description     Description
	CreationTime    time.Time
	State           WorkerState
}

// Transition moves the task to next, enforcing the monotonic state rule
// (spec.md §3). It reports false without mutating state if the transition
// is illegal (the task is already terminal).
func (t *Task) Transition(next WorkerState) bool {
	if !t.State.CanTransitionTo(next) {
		return false
	}
	t.State = next
	return true
}
