// Package proto holds the small set of message structs exchanged between
// nodes outside the Availability Summary algebra itself (spec.md §3/§4):
// Accept, TaskMonitor and TaskBag travel between the Local Scheduler (C2),
// the Aggregating Dispatcher (C3/C4) and the Submission Supervisor (C5/C6).
// Keeping them here (rather than in any one component package) avoids an
// import cycle between those three.
package proto

import (
	"time"

	"github.com/jcelaya/stars/pkg/address"
	"github.com/jcelaya/stars/pkg/taskmodel"
)

// TaskBagMsg is a TaskBag in flight, spec.md §3/§4.4/§4.5.
type TaskBagMsg struct {
	Bag       taskmodel.Bag
	RequestID int64
}

// Accept is C2's reply to a ForWorker=true bag it admitted, spec.md §4.5
// step 3: "Accept(requestId, [first..last], heartbeatInterval)".
type Accept struct {
	RequestID         int64
	FirstTaskID       int64
	LastTaskID        int64
	HeartbeatInterval time.Duration
}

// Unplaced carries a bag the root Aggregating Dispatcher could not place
// on any child subtree back to the original requester (spec.md §4.4 step
// 5, IBP/DP only): node wiring sends this in place of a second
// TaskBagMsg hop, since the requester-side handling ("this attempt
// failed") is distinct from "please try to place this".
type Unplaced struct {
	Bag taskmodel.Bag
}

// MonitorEntry is one task's reported state inside a TaskMonitor message.
type MonitorEntry struct {
	ClientRequestID int64
	ClientTaskID    int64
	State           taskmodel.WorkerState
}

// TaskMonitor is the periodic heartbeat message from a worker to a distinct
// owner, listing every task's current state (spec.md §4.2 Monitoring,
// §4.6). HeartbeatInterval is re-advertised on every message so an
// asymmetric configuration converges to the worker's value (spec.md §4.6).
type TaskMonitor struct {
	Worker            address.Address
	HeartbeatInterval time.Duration
	Entries           []MonitorEntry
}
