package taskmodel

import (
	"time"

	"github.com/jcelaya/stars/pkg/address"
)

// SubmittedTask is one entry of a SubmissionRecord's task table.
type SubmittedTask struct {
	ClientTaskID   int64
	State          SubmissionTaskState
	AssignedWorker address.Address // zero value (address.Null) until Executing
	Description    Description
}

// RequestState tracks one outstanding search request (one TaskBag sent
// toward the father and not yet resolved).
type RequestState struct {
	RequestID int64
	TaskIDs   []int64
	SentAt    time.Time
	Retry     int
}

// SubmissionRecord is spec.md's per-application-instance bookkeeping held by
// the Submission Supervisor (C5). Tasks is kept as an insertion-ordered
// slice of ids plus a lookup index so iteration order matches submission
// order (the spec's "ordered map<clientTaskId, ...>").
type SubmissionRecord struct {
	AppID        string
	Requirements Description

	order []int64
	tasks map[int64]*SubmittedTask

	PendingRequests map[int64]*RequestState

	// FinalSlowness is populated once every task in the instance reaches
	// a terminal state and the application was not entirely aborted; it
	// is the supplemented-feature per-application slowness statistic
	// from SPEC_FULL.md Part D (grounded on the original's
	// StretchInformation/SlownessStatistics).
	FinalSlowness float64
	Finalized     bool
}

// NewSubmissionRecord creates an empty record for appID with numTasks
// client task ids allocated 0..numTasks-1, all starting Ready.
func NewSubmissionRecord(appID string, req Description, numTasks int) *SubmissionRecord {
	r := &SubmissionRecord{
		AppID:           appID,
		Requirements:    req,
		tasks:           make(map[int64]*SubmittedTask, numTasks),
		PendingRequests: make(map[int64]*RequestState),
	}
	for i := 0; i < numTasks; i++ {
		id := int64(i)
		r.order = append(r.order, id)
		r.tasks[id] = &SubmittedTask{ClientTaskID: id, State: Ready, Description: req}
	}
	return r
}

// Task returns the submitted task for clientTaskID, or nil if unknown.
func (r *SubmissionRecord) Task(clientTaskID int64) *SubmittedTask {
	return r.tasks[clientTaskID]
}

// Tasks returns every submitted task in submission order.
func (r *SubmissionRecord) Tasks() []*SubmittedTask {
	out := make([]*SubmittedTask, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.tasks[id])
	}
	return out
}

// TasksInState returns the client task ids currently in state s, in
// submission order.
func (r *SubmissionRecord) TasksInState(s SubmissionTaskState) []int64 {
	var out []int64
	for _, id := range r.order {
		if r.tasks[id].State == s {
			out = append(out, id)
		}
	}
	return out
}

// InFlightCount returns how many tasks are still Ready, Searching or
// Executing — the quantity spec.md §8 invariant 7 requires to be
// non-increasing absent aborts.
func (r *SubmissionRecord) InFlightCount() int {
	n := 0
	for _, id := range r.order {
		if r.tasks[id].State.InFlight() {
			n++
		}
	}
	return n
}

// Done reports whether every task has reached a terminal state.
func (r *SubmissionRecord) Done() bool {
	for _, id := range r.order {
		if r.tasks[id].State != TaskFinished && r.tasks[id].State != TaskAborted {
			return false
		}
	}
	return true
}
