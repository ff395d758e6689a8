package supervisor

import (
	"time"

	"github.com/jcelaya/stars/pkg/address"
	"github.com/jcelaya/stars/pkg/proto"
	"github.com/jcelaya/stars/pkg/taskmodel"
)

// OnTaskMonitor implements the submitter side of spec.md §4.2
// Monitoring/§4.6: apply each entry's Finished/Aborted transition, requeue
// an Aborted task with a fresh sendRequest, and refresh or cancel the
// liveness timer for worker depending on whether it still holds any
// Executing task for the owning app.
func (s *Supervisor) OnTaskMonitor(worker address.Address, msg proto.TaskMonitor) {
	touched := make(map[string]bool)

	for _, e := range msg.Entries {
		appID, ok := s.requestOwner[e.ClientRequestID]
		if !ok {
			continue
		}
		app, ok := s.apps[appID]
		if !ok {
			continue
		}
		t := app.record.Task(e.ClientTaskID)
		if t == nil || t.State != taskmodel.Executing || !t.AssignedWorker.Equal(worker) {
			continue
		}

		switch e.State {
		case taskmodel.Finished:
			t.State = taskmodel.TaskFinished
			app.remoteTasksPerWorker[worker]--
		case taskmodel.Aborted:
			t.State = taskmodel.Ready
			t.AssignedWorker = address.Null
			app.remoteTasksPerWorker[worker]--
			s.sendRequest(appID, 0)
		default:
			continue
		}
		touched[appID] = true
	}

	for appID := range touched {
		app := s.apps[appID]
		if app.remoteTasksPerWorker[worker] <= 0 {
			delete(app.remoteTasksPerWorker, worker)
			s.cancelHeartbeatDeadline(appID, worker)
		} else {
			s.armHeartbeatDeadline(appID, worker, msg.HeartbeatInterval)
		}
		s.finalizeIfDone(appID)
	}
}

// armHeartbeatDeadline installs or refreshes the 2.5x-heartbeat liveness
// timer for worker within appID's state (spec.md §4.6). interval is the
// value most recently advertised by that worker inside an Accept or
// TaskMonitor message; it falls back to this node's own configured
// heartbeat only if the worker has (unexpectedly) never advertised one.
func (s *Supervisor) armHeartbeatDeadline(appID string, worker address.Address, interval time.Duration) {
	app, ok := s.apps[appID]
	if !ok {
		return
	}
	if interval <= 0 {
		interval = s.heartbeat
	}
	deadline := time.Duration(2.5 * float64(interval))
	existing := app.heartbeatTimer[worker]
	app.heartbeatTimer[worker] = s.loop.Reprogram(existing, s.loop.Now().Add(deadline), func(now time.Time) {
		s.onHeartbeatDeadline(appID, worker)
	})
}

func (s *Supervisor) cancelHeartbeatDeadline(appID string, worker address.Address) {
	app, ok := s.apps[appID]
	if !ok {
		return
	}
	if id, ok := app.heartbeatTimer[worker]; ok {
		s.loop.CancelTimer(id)
		delete(app.heartbeatTimer, worker)
	}
}

// onHeartbeatDeadline implements spec.md §4.6's worker-death path: treat
// every task this app has Executing at worker as Aborted, re-ready it and
// retry, exactly as an explicit Aborted TaskMonitor entry would.
func (s *Supervisor) onHeartbeatDeadline(appID string, worker address.Address) {
	app, ok := s.apps[appID]
	if !ok {
		return
	}
	delete(app.heartbeatTimer, worker)
	delete(app.remoteTasksPerWorker, worker)

	var affected bool
	for _, t := range app.record.Tasks() {
		if t.State == taskmodel.Executing && t.AssignedWorker.Equal(worker) {
			t.State = taskmodel.Ready
			t.AssignedWorker = address.Null
			affected = true
		}
	}
	if s.metrics != nil {
		s.metrics.HeartbeatMisses.Add(1)
	}
	if affected {
		s.sendRequest(appID, 0)
	}
	s.finalizeIfDone(appID)
}
