// Package localsched implements the Local Scheduler (C2, spec.md §4.2): the
// single worker-side queue that admits TaskBags under one of four
// policies, drives task execution through the executor boundary, and
// publishes an Availability Summary upward.
package localsched

import (
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/jcelaya/stars/pkg/address"
	"github.com/jcelaya/stars/pkg/config"
	"github.com/jcelaya/stars/pkg/eventloop"
	"github.com/jcelaya/stars/pkg/executor"
	"github.com/jcelaya/stars/pkg/metrics"
	"github.com/jcelaya/stars/pkg/proto"
	"github.com/jcelaya/stars/pkg/summary"
	"github.com/jcelaya/stars/pkg/taskmodel"
)

// Capacity is a worker's static resource ceiling plus its processing power
// (spec.md §3's worker-side resource triple).
type Capacity struct {
	Memory int64
	Disk   int64
	Power  float64
}

type entry struct {
	task   *taskmodel.Task
	handle executor.Handle
}

// Scheduler is one node's Local Scheduler.
type Scheduler struct {
	log      zerolog.Logger
	metrics  *metrics.Registry
	loop     *eventloop.Loop
	exec     executor.Executor
	self     address.Address
	policy   Policy
	capacity Capacity

	rescheduleTimeout time.Duration
	heartbeat         time.Duration

	tasks      map[int64]*entry
	order      []int64 // node-local task ids, queue order (order[0] is the running/head task)
	nextTaskID int64

	rescheduleTimer eventloop.TimerID
	monitorTimers   map[address.Address]eventloop.TimerID

	fatherChanging  bool
	forwardDeferred bool
	nextSeq         uint32

	// Upward publishes the scheduler's latest Snapshot with the next
	// sequence number, spec.md §4.2 "forwards it upward with the next
	// sequence number via C3".
	Upward func(summary.Summary)
	// SendMonitor delivers one TaskMonitor message to owner, spec.md
	// §4.2 Monitoring / §4.6.
	SendMonitor func(owner address.Address, msg proto.TaskMonitor)
	// SendAccept delivers the Accept reply to a ForWorker bag's requester,
	// spec.md §4.5 step 3 ("Accept(requestId, [first..last],
	// heartbeatInterval)"), advertising this node's heartbeat interval per
	// spec.md §4.2's "must be advertised inside every Accept and Monitor
	// message".
	SendAccept func(dst address.Address, msg proto.Accept)
}

// New constructs a Scheduler for self, bound to loop's single goroutine.
func New(self address.Address, policy Policy, cap Capacity, cfg *config.Config, exec executor.Executor, loop *eventloop.Loop, log zerolog.Logger, reg *metrics.Registry) *Scheduler {
	return &Scheduler{
		log:               log.With().Str("component", "localsched").Uint64("node", self.Uint64()).Logger(),
		metrics:           reg,
		loop:              loop,
		exec:              exec,
		self:              self,
		policy:            policy,
		capacity:          cap,
		rescheduleTimeout: cfg.Scheduler.RescheduleTimeout,
		heartbeat:         cfg.Dispatch.Heartbeat,
		tasks:             make(map[int64]*entry),
		monitorTimers:     make(map[address.Address]eventloop.TimerID),
	}
}

// Offer implements spec.md §4.2's synchronous admission entry point: it
// returns how many tasks at the head of bag the node accepts under its
// policy. Must be called from the loop goroutine.
func (s *Scheduler) Offer(bag taskmodel.Bag) int64 {
	total := bag.Count()
	if total <= 0 {
		return 0
	}
	if !bag.MinRequirements.Fits(s.capacity.Memory, s.capacity.Disk) {
		return 0
	}

	var accepted int64
	switch s.policy {
	case IBP:
		if len(s.order) == 0 {
			accepted = 1
			if accepted > total {
				accepted = total
			}
		}
	case MMP:
		accepted = total
	case DP:
		accepted = s.admitDeadline(bag, total)
	case FSP:
		accepted = total
	}
	if accepted <= 0 {
		return 0
	}

	for i := int64(0); i < accepted; i++ {
		clientTaskID := bag.FirstTaskID + i
		s.admitOne(bag, clientTaskID)
	}

	if s.policy == FSP {
		s.resortBySlowness()
	}

	if bag.ForWorker && s.SendAccept != nil {
		s.SendAccept(bag.Requester, proto.Accept{
			RequestID:         bag.RequestID,
			FirstTaskID:       bag.FirstTaskID,
			LastTaskID:        bag.FirstTaskID + accepted - 1,
			HeartbeatInterval: s.heartbeat,
		})
	}

	s.afterChange()
	if s.metrics != nil {
		s.metrics.TasksAdmitted.WithLabelValues(s.policy.String()).Add(float64(accepted))
		if rejected := total - accepted; rejected > 0 {
			s.metrics.TasksRejected.WithLabelValues(s.policy.String()).Add(float64(rejected))
		}
	}
	return accepted
}

func (s *Scheduler) admitOne(bag taskmodel.Bag, clientTaskID int64) {
	s.nextTaskID++
	nodeID := s.nextTaskID
	t := &taskmodel.Task{
		TaskID:          nodeID,
		Owner:           bag.Requester,
		ClientRequestID: bag.RequestID,
		ClientTaskID:    clientTaskID,
		Description:     bag.MinRequirements,
		CreationTime:    s.loop.Now(),
		State:           taskmodel.Inactive,
	}
	t.Transition(taskmodel.Prepared)

	handle := s.exec.CreateTask(bag.Requester, bag.RequestID, clientTaskID, bag.MinRequirements, s.onExecutorChange(nodeID))
	s.tasks[nodeID] = &entry{task: t, handle: handle}
	s.order = append(s.order, nodeID)

	s.armMonitor(bag.Requester)
	s.maybeRunHead()
}

// admitDeadline implements the DP admission rule: insert the bag by
// deadline among the currently queued (non-running) tasks and check that
// every task, including the immovable running head, still meets its
// deadline under non-preemptive single-server execution.
func (s *Scheduler) admitDeadline(bag taskmodel.Bag, total int64) int64 {
	if s.capacity.Power <= 0 {
		return 0
	}
	now := s.loop.Now()

	type item struct {
		deadline time.Time
		length   float64
		movable  bool
	}
	var items []item
	for i, id := range s.order {
		t := s.tasks[id].task
		items = append(items, item{deadline: t.Description.Deadline, length: t.Description.Length, movable: i != 0})
	}
	for i := int64(0); i < total; i++ {
		items = append(items, item{deadline: bag.MinRequirements.Deadline, length: bag.MinRequirements.Length, movable: true})
	}

	head := 0
	if len(s.order) > 0 {
		head = 1 // items[0] is the immovable running task when a queue exists
	}
	movable := items[head:]
	sort.SliceStable(movable, func(i, j int) bool {
		return movable[i].deadline.Before(movable[j].deadline)
	})

	// the running head is immovable: its remaining work always goes first,
	// even if it is already running late.
	cursor := now
	if head == 1 {
		cursor = cursor.Add(time.Duration(items[0].length / s.capacity.Power * float64(time.Second)))
	}
	for _, it := range movable {
		cursor = cursor.Add(time.Duration(it.length / s.capacity.Power * float64(time.Second)))
		if !it.deadline.IsZero() && cursor.After(it.deadline) {
			return 0
		}
	}
	return total
}

// resortBySlowness reimplements spec.md §4.2's Fair-Slowness reordering:
// keep the running head fixed, reorder the rest by the pairwise break-even
// slowness rule. Minimising the maximum stretch S=(finish-release)/appLength
// on a single non-preemptive server is achieved by processing queued
// applications in non-decreasing order of length/appLength (a task that
// consumes little of its own deadline budget per unit of service should
// run first), the discrete analogue of the break-even S values between
// every pair of queued applications.
func (s *Scheduler) resortBySlowness() {
	if len(s.order) <= 1 {
		return
	}
	head := s.order[0]
	rest := append([]int64(nil), s.order[1:]...)
	sort.SliceStable(rest, func(i, j int) bool {
		a, b := s.tasks[rest[i]].task.Description, s.tasks[rest[j]].task.Description
		return breakEvenRatio(a) < breakEvenRatio(b)
	})
	s.order = append([]int64{head}, rest...)
}

func breakEvenRatio(d taskmodel.Description) float64 {
	if d.AppLength <= 0 {
		return d.Length
	}
	return d.Length / d.AppLength
}

// MinimumSlowness reports the maximum per-task slowness S=(finishTime-now)/
// length achieved by the current queue order, the observable spec.md's
// S2 scenario calls getMinimumSlowness(): walking the queue from its head,
// accumulating each task's own processing time (Length/Power) and dividing
// the running total by that task's own Length. Under FSP the queue is kept
// in the order that minimises this maximum (resortBySlowness); under any
// other policy it simply reports the value for whatever order the queue is
// currently in.
func (s *Scheduler) MinimumSlowness() float64 {
	if s.capacity.Power <= 0 || len(s.order) == 0 {
		return 0
	}
	var cumulative, worst float64
	for _, id := range s.order {
		length := s.tasks[id].task.Description.Length
		cumulative += length / s.capacity.Power
		if length <= 0 {
			continue
		}
		if slowness := cumulative / length; slowness > worst {
			worst = slowness
		}
	}
	return worst
}

func (s *Scheduler) maybeRunHead() {
	if len(s.order) == 0 {
		return
	}
	headID := s.order[0]
	e := s.tasks[headID]
	if e.task.State == taskmodel.Prepared {
		if e.task.Transition(taskmodel.Running) {
			e.handle.Run()
		}
	}
}

// onExecutorChange returns the StateChangeFunc bound to one node-local
// task id, the executor's single notification path (spec.md §6).
func (s *Scheduler) onExecutorChange(nodeID int64) executor.StateChangeFunc {
	return func(_ int64, _ taskmodel.WorkerState, next taskmodel.WorkerState) {
		s.loop.Post(func(now time.Time) {
			s.handleStateChange(nodeID, next)
		})
	}
}

func (s *Scheduler) handleStateChange(nodeID int64, next taskmodel.WorkerState) {
	e, ok := s.tasks[nodeID]
	if !ok {
		return
	}
	if !e.task.Transition(next) {
		return
	}

	// spec.md §4.2 failure handling: the local scheduler treats Aborted
	// identically to Finished for dequeue purposes, but still forwards
	// the terminal state to the owner: every accepted transition is sent
	// at once in a one-task monitor message below.
	owner, task := e.task.Owner, e.task
	if next.IsTerminal() {
		s.dequeue(nodeID)
		s.maybeRunHead()
	}
	s.sendMonitorFor(owner, []*taskmodel.Task{task})

	s.afterChange()
}

func (s *Scheduler) dequeue(nodeID int64) {
	owner := s.tasks[nodeID].task.Owner
	delete(s.tasks, nodeID)
	for i, id := range s.order {
		if id == nodeID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	if !s.hasTasksFor(owner) {
		if id, ok := s.monitorTimers[owner]; ok {
			s.loop.CancelTimer(id)
			delete(s.monitorTimers, owner)
		}
	}
}

func (s *Scheduler) hasTasksFor(owner address.Address) bool {
	for _, id := range s.order {
		if s.tasks[id].task.Owner.Equal(owner) {
			return true
		}
	}
	return false
}

// OnAbort implements spec.md §4.2's requester-initiated abort path:
// onAbort(requestId, taskIds).
func (s *Scheduler) OnAbort(requestID int64, clientTaskIDs []int64) {
	want := make(map[int64]bool, len(clientTaskIDs))
	for _, id := range clientTaskIDs {
		want[id] = true
	}
	for _, nodeID := range append([]int64(nil), s.order...) {
		e := s.tasks[nodeID]
		if e.task.ClientRequestID == requestID && want[e.task.ClientTaskID] {
			e.handle.Abort()
		}
	}
}

// afterChange implements the tail shared by every admission/state-change
// path in spec.md §4.2: reprogram the reschedule timer and, unless the
// node is currently father-changing, recompute and forward the snapshot.
func (s *Scheduler) afterChange() {
	horizon := eventloop.Jitter(s.rescheduleTimeout, 0.1)
	s.rescheduleTimer = s.loop.Reprogram(s.rescheduleTimer, s.loop.Now().Add(horizon), s.onReschedule)
	s.forward()
}

func (s *Scheduler) onReschedule(now time.Time) {
	s.forward()
	horizon := eventloop.Jitter(s.rescheduleTimeout, 0.1)
	s.rescheduleTimer = s.loop.Reprogram(0, now.Add(horizon), s.onReschedule)
}

func (s *Scheduler) forward() {
	if s.fatherChanging {
		s.forwardDeferred = true
		return
	}
	s.forwardDeferred = false
	if s.Upward == nil {
		return
	}
	s.nextSeq++
	s.Upward(s.Snapshot().WithSeq(s.nextSeq).WithFromScheduler(true))
}

// SetFatherChanging is called by the node's overlay-event wiring
// (onFatherChanging / onFatherChanged, spec.md §6) to suspend upward
// forwarding while the overlay restructures; spec.md §4.2 "but only if
// the node is not currently a father-changing participant".
func (s *Scheduler) SetFatherChanging(changing bool) {
	s.fatherChanging = changing
	if !changing && s.forwardDeferred {
		s.forward()
	}
}

func (s *Scheduler) armMonitor(owner address.Address) {
	if _, ok := s.monitorTimers[owner]; ok {
		return
	}
	s.scheduleMonitor(owner)
}

func (s *Scheduler) scheduleMonitor(owner address.Address) {
	horizon := eventloop.Jitter(s.heartbeat, 0.1)
	s.monitorTimers[owner] = s.loop.ArmTimer(s.loop.Now().Add(horizon), func(now time.Time) {
		s.fireMonitor(owner, now)
	})
}

func (s *Scheduler) fireMonitor(owner address.Address, now time.Time) {
	if !s.hasTasksFor(owner) {
		delete(s.monitorTimers, owner)
		return
	}
	var tasks []*taskmodel.Task
	for _, id := range s.order {
		if t := s.tasks[id].task; t.Owner.Equal(owner) {
			tasks = append(tasks, t)
		}
	}
	s.sendMonitorFor(owner, tasks)
	s.scheduleMonitor(owner)
}

func (s *Scheduler) sendMonitorFor(owner address.Address, tasks []*taskmodel.Task) {
	if s.SendMonitor == nil {
		return
	}
	entries := make([]proto.MonitorEntry, 0, len(tasks))
	for _, t := range tasks {
		entries = append(entries, proto.MonitorEntry{
			ClientRequestID: t.ClientRequestID,
			ClientTaskID:    t.ClientTaskID,
			State:           t.State,
		})
	}
	s.SendMonitor(owner, proto.TaskMonitor{
		Worker:            s.self,
		HeartbeatInterval: s.heartbeat,
		Entries:           entries,
	})
}

// Snapshot builds the Availability Summary for this node's current state in
// the variant fixed by its policy (spec.md §4.2 "snapshot() -> Summary").
func (s *Scheduler) Snapshot() summary.Summary {
	now := s.loop.Now()
	switch s.policy {
	case IBP:
		return summary.BasicFromWorker(len(s.order) == 0)
	case MMP:
		return summary.QueueBalancingFromWorker(
			float64(s.capacity.Memory), float64(s.capacity.Disk), s.capacity.Power, s.queueEnd(now))
	case DP:
		return summary.DeadlineFromWorker(
			float64(s.capacity.Memory), float64(s.capacity.Disk), s.capacity.Power,
			summary.NewLDeltaFromQueue(s.capacity.Power, now, s.queueDeadlines()))
	case FSP:
		return summary.SlownessFromWorker(
			float64(s.capacity.Memory), float64(s.capacity.Disk), s.capacity.Power,
			summary.NewZAFunction(s.effectivePower()))
	default:
		return summary.EmptyBasic()
	}
}

func (s *Scheduler) queueEnd(now time.Time) time.Time {
	if s.capacity.Power <= 0 {
		return now
	}
	remaining := 0.0
	for _, id := range s.order {
		remaining += s.tasks[id].task.Description.Length
	}
	return now.Add(time.Duration(remaining / s.capacity.Power * float64(time.Second)))
}

func (s *Scheduler) queueDeadlines() []time.Time {
	out := make([]time.Time, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.tasks[id].task.Description.Deadline)
	}
	return out
}

// effectivePower derates raw power by current backlog, so a busy node's
// Slowness summary reports less spare capacity than an idle one at the
// same Power, without modelling each queued task's individual ZAFunction
// contribution.
func (s *Scheduler) effectivePower() float64 {
	if len(s.order) == 0 {
		return s.capacity.Power
	}
	return s.capacity.Power / float64(1+len(s.order))
}
