// Package executor declares the narrow boundary the scheduling core uses to
// actually run a task (spec.md §6 "Executor"). The core never implements
// task execution itself; it only creates tasks, starts/aborts them, and
// reacts to state-change callbacks.
package executor

import (
	"github.com/jcelaya/stars/pkg/address"
	"github.com/jcelaya/stars/pkg/taskmodel"
)

// Handle is one executor-side task instance, returned by CreateTask.
type Handle interface {
	// Run starts the task. The executor reports the Running transition
	// via the StateChangeFunc supplied at CreateTask time.
	Run()
	// Abort requests cancellation; the executor reports the resulting
	// Aborted transition via the StateChangeFunc, same as any other
	// failure, possibly before Abort returns (the simulated executor does).
	Abort()
}

// StateChangeFunc is the single callback spec.md §6 allows the executor:
// Prepared -> Running -> {Finished, Aborted} only.
type StateChangeFunc func(taskID int64, old, next taskmodel.WorkerState)

// Executor creates and runs tasks on behalf of the local scheduler (C2).
type Executor interface {
	// CreateTask prepares (but does not start) a task for owner's
	// request, invoking onChange on every subsequent transition.
	CreateTask(owner address.Address, reqID, clientTaskID int64, desc taskmodel.Description, onChange StateChangeFunc) Handle
}
