package localsched_test

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/jcelaya/stars/pkg/address"
	"github.com/jcelaya/stars/pkg/config"
	"github.com/jcelaya/stars/pkg/eventloop"
	"github.com/jcelaya/stars/pkg/executor"
	"github.com/jcelaya/stars/pkg/localsched"
	"github.com/jcelaya/stars/pkg/proto"
	"github.com/jcelaya/stars/pkg/summary"
	"github.com/jcelaya/stars/pkg/taskmodel"
)

type fakeHandle struct {
	onChange executor.StateChangeFunc
	taskID   int64
}

func (h *fakeHandle) Run() {
	h.onChange(h.taskID, taskmodel.Prepared, taskmodel.Running)
}

func (h *fakeHandle) Abort() {
	h.onChange(h.taskID, taskmodel.Running, taskmodel.Aborted)
}

// Finish simulates the executor reporting the task has completed, the
// transition a real executor.Handle would report on its own once its
// simulated or real runtime elapses.
func (h *fakeHandle) Finish() {
	h.onChange(h.taskID, taskmodel.Running, taskmodel.Finished)
}

type fakeExecutor struct {
	nextID  int64
	handles []*fakeHandle
}

func (e *fakeExecutor) CreateTask(owner address.Address, reqID, clientTaskID int64, desc taskmodel.Description, onChange executor.StateChangeFunc) executor.Handle {
	e.nextID++
	h := &fakeHandle{onChange: onChange, taskID: e.nextID}
	e.handles = append(e.handles, h)
	return h
}

func newTestScheduler(t *testing.T, policy localsched.Policy) (*localsched.Scheduler, *fakeExecutor, *eventloop.Loop, *eventloop.FakeClock) {
	t.Helper()
	clock := eventloop.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	log := zerolog.Nop()
	loop := eventloop.NewLoop(clock, log, 16)
	exec := &fakeExecutor{}
	cfg := config.Default()
	sched := localsched.New(address.New(1), policy, localsched.Capacity{Memory: 1024, Disk: 1024, Power: 1}, cfg, exec, loop, log, nil)
	return sched, exec, loop, clock
}

func basicBag(first, last int64) taskmodel.Bag {
	return taskmodel.Bag{
		Requester:   address.New(2),
		RequestID:   42,
		FirstTaskID: first,
		LastTaskID:  last,
		MinRequirements: taskmodel.Description{
			Length: 10, MaxMemory: 1, MaxDisk: 1,
		},
	}
}

func TestIBPAcceptsOnlyOneIntoEmptyQueue(t *testing.T) {
	sched, _, _, _ := newTestScheduler(t, localsched.IBP)
	accepted := sched.Offer(basicBag(0, 4))
	require.Equal(t, int64(1), accepted)

	// queue is non-empty now: a second offer is entirely rejected
	accepted = sched.Offer(basicBag(5, 9))
	require.Equal(t, int64(0), accepted)
}

func TestMMPAcceptsFullBag(t *testing.T) {
	sched, _, _, _ := newTestScheduler(t, localsched.MMP)
	accepted := sched.Offer(basicBag(0, 4))
	require.Equal(t, int64(5), accepted)
}

func TestOfferRejectsWhenCapacityInsufficient(t *testing.T) {
	sched, _, _, _ := newTestScheduler(t, localsched.MMP)
	bag := basicBag(0, 0)
	bag.MinRequirements.MaxMemory = 1 << 40
	require.Equal(t, int64(0), sched.Offer(bag))
}

func TestSnapshotReflectsPolicyVariant(t *testing.T) {
	sched, _, _, _ := newTestScheduler(t, localsched.IBP)
	snap := sched.Snapshot()
	b, ok := snap.(interface{ FreeSlots() int })
	require.True(t, ok)
	require.Equal(t, 1, b.FreeSlots())
}

func TestOnAbortInvokesHandleAbort(t *testing.T) {
	sched, exec, loop, _ := newTestScheduler(t, localsched.MMP)
	sched.Offer(basicBag(0, 0))
	sched.OnAbort(42, []int64{0})
	require.NotEmpty(t, exec.handles)
	for loop.RunOnce() {
	}
}

func TestOfferSendsAcceptForForWorkerBag(t *testing.T) {
	sched, _, _, _ := newTestScheduler(t, localsched.MMP)
	var accepts []proto.Accept
	sched.SendAccept = func(dst address.Address, msg proto.Accept) {
		accepts = append(accepts, msg)
	}

	bag := basicBag(10, 14)
	bag.ForWorker = true
	accepted := sched.Offer(bag)
	require.Equal(t, int64(5), accepted)

	require.Len(t, accepts, 1)
	require.Equal(t, int64(10), accepts[0].FirstTaskID)
	require.Equal(t, int64(14), accepts[0].LastTaskID)
}

func TestOfferDoesNotSendAcceptWhenNotForWorker(t *testing.T) {
	sched, _, _, _ := newTestScheduler(t, localsched.MMP)
	var accepts []proto.Accept
	sched.SendAccept = func(dst address.Address, msg proto.Accept) {
		accepts = append(accepts, msg)
	}

	sched.Offer(basicBag(0, 4))
	require.Empty(t, accepts)
}

func TestMonitorFiresOnHeartbeat(t *testing.T) {
	sched, _, loop, clock := newTestScheduler(t, localsched.MMP)
	var received []proto.TaskMonitor
	sched.SendMonitor = func(owner address.Address, msg proto.TaskMonitor) {
		received = append(received, msg)
	}
	sched.Offer(basicBag(0, 0))

	clock.Advance(40 * time.Second)
	for loop.RunOnce() {
	}
	require.NotEmpty(t, received)
	require.Equal(t, address.New(1), received[0].Worker)
}

func TestDeadlinePolicyRejectsWhenUnschedulable(t *testing.T) {
	sched, _, _, clock := newTestScheduler(t, localsched.DP)
	tight := basicBag(0, 0)
	tight.MinRequirements.Length = 10 // 10s of work at Power=1
	tight.MinRequirements.Deadline = clock.Now().Add(5 * time.Second)
	require.Equal(t, int64(0), sched.Offer(tight))

	loose := basicBag(1, 1)
	loose.MinRequirements.Length = 10
	loose.MinRequirements.Deadline = clock.Now().Add(time.Hour)
	require.Equal(t, int64(1), sched.Offer(loose))
}

func TestFSPReordersQueueBySlownessBreakEven(t *testing.T) {
	sched, _, _, _ := newTestScheduler(t, localsched.FSP)

	longApp := basicBag(0, 0)
	longApp.MinRequirements.Length = 100
	longApp.MinRequirements.AppLength = 100 // ratio 1.0
	require.Equal(t, int64(1), sched.Offer(longApp))

	shortApp := basicBag(1, 1)
	shortApp.MinRequirements.Length = 10
	shortApp.MinRequirements.AppLength = 1000 // ratio 0.01, should not jump the running head
	require.Equal(t, int64(1), sched.Offer(shortApp))

	tinyApp := basicBag(2, 2)
	tinyApp.MinRequirements.Length = 5
	tinyApp.MinRequirements.AppLength = 5000 // ratio 0.001, jumps ahead of shortApp
	require.Equal(t, int64(1), sched.Offer(tinyApp))

	// Queue is now [longApp, tinyApp, shortApp] at Power 1: slowness
	// 100/100, 105/5, 115/10, maximum 21. Left in arrival order it would be
	// 23; with the head re-ranked too, 1.5.
	require.InEpsilon(t, 21.0, sched.MinimumSlowness(), 1e-9)

	snap := sched.Snapshot()
	require.Equal(t, summary.VariantSlowness, snap.Variant())
}

// TestFSPMinimumSlownessDropsAfterHeadTaskFinishes drives spec.md's S2
// scenario: a worker of power=1000 admits three single-task bags of length
// 900000, 400000 and 200000 (in that order, all at t=0). getMinimumSlowness
// must read ~0.0055 while all three are queued, then drop to ~0.0015 once
// the 900000 head task finishes and the queue re-settles on the remaining
// two.
func TestFSPMinimumSlownessDropsAfterHeadTaskFinishes(t *testing.T) {
	clock := eventloop.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	log := zerolog.Nop()
	loop := eventloop.NewLoop(clock, log, 16)
	exec := &fakeExecutor{}
	cfg := config.Default()
	sched := localsched.New(address.New(1), localsched.FSP,
		localsched.Capacity{Memory: 1 << 40, Disk: 1 << 40, Power: 1000}, cfg, exec, loop, log, nil)

	bag := func(requestID, length int64) taskmodel.Bag {
		return taskmodel.Bag{
			Requester:       address.New(2),
			RequestID:       requestID,
			FirstTaskID:     0,
			LastTaskID:      0,
			MinRequirements: taskmodel.Description{Length: float64(length), MaxMemory: 1, MaxDisk: 1},
		}
	}

	require.Equal(t, int64(1), sched.Offer(bag(1, 900000)))
	require.Equal(t, int64(1), sched.Offer(bag(2, 400000)))
	require.Equal(t, int64(1), sched.Offer(bag(3, 200000)))
	require.InEpsilon(t, 0.0055, sched.MinimumSlowness(), 0.01)

	require.Len(t, exec.handles, 3)
	exec.handles[0].Finish()
	for loop.RunOnce() {
	}
	require.InEpsilon(t, 0.0015, sched.MinimumSlowness(), 0.01)
}

func TestFatherChangingSuppressesForwardUntilResumed(t *testing.T) {
	sched, _, _, _ := newTestScheduler(t, localsched.MMP)
	var forwarded int
	sched.Upward = func(s summary.Summary) { forwarded++ }

	sched.SetFatherChanging(true)
	sched.Offer(basicBag(0, 0))
	require.Equal(t, 0, forwarded, "forward must be suppressed while father-changing")

	sched.SetFatherChanging(false)
	require.Equal(t, 1, forwarded, "deferred forward must flush exactly once on resume")
}
