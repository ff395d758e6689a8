package supervisor_test

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/jcelaya/stars/pkg/address"
	"github.com/jcelaya/stars/pkg/config"
	"github.com/jcelaya/stars/pkg/eventloop"
	"github.com/jcelaya/stars/pkg/proto"
	"github.com/jcelaya/stars/pkg/supervisor"
	"github.com/jcelaya/stars/pkg/taskmodel"
)

type sentBag struct {
	dst address.Address
	msg proto.TaskBagMsg
}

func newTestSupervisor(t *testing.T, father address.Address) (*supervisor.Supervisor, *eventloop.Loop, *eventloop.FakeClock, *[]sentBag) {
	t.Helper()
	clock := eventloop.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	log := zerolog.Nop()
	loop := eventloop.NewLoop(clock, log, 16)
	cfg := config.Default()
	cfg.Dispatch.RequestTimeout = 30 * time.Second
	cfg.Dispatch.SubmitRetries = 2
	cfg.Dispatch.MaxTasksPerRequest = 32
	cfg.Dispatch.Heartbeat = 10 * time.Second

	sent := &[]sentBag{}
	sup := supervisor.New(address.New(1), cfg, loop, log, nil)
	sup.SendBag = func(dst address.Address, msg proto.TaskBagMsg) {
		*sent = append(*sent, sentBag{dst: dst, msg: msg})
	}
	sup.FatherAddress = func() address.Address { return father }
	return sup, loop, clock, sent
}

func drain(loop *eventloop.Loop) {
	for loop.RunOnce() {
	}
}

func TestSubmitSendsInitialRequestCoveringAllTasks(t *testing.T) {
	sup, _, _, sent := newTestSupervisor(t, address.New(2))

	appID := sup.Submit(taskmodel.Description{Length: 1, MaxMemory: 1, MaxDisk: 1}, 4)

	require.Len(t, *sent, 1)
	bag := (*sent)[0].msg.Bag
	require.Equal(t, int64(0), bag.FirstTaskID)
	require.Equal(t, int64(3), bag.LastTaskID)
	require.True(t, bag.FromWorker)

	rec := sup.Record(appID)
	require.Len(t, rec.TasksInState(taskmodel.Searching), 4)
}

func TestOnAcceptMovesAcceptedRangeToExecuting(t *testing.T) {
	sup, _, _, sent := newTestSupervisor(t, address.New(2))
	appID := sup.Submit(taskmodel.Description{Length: 1, MaxMemory: 1, MaxDisk: 1}, 4)
	requestID := (*sent)[0].msg.RequestID

	worker := address.New(9)
	sup.OnAccept(worker, appID, proto.Accept{
		RequestID: requestID, FirstTaskID: 0, LastTaskID: 2, HeartbeatInterval: 10 * time.Second,
	})

	rec := sup.Record(appID)
	require.Len(t, rec.TasksInState(taskmodel.Executing), 3)
	require.Len(t, rec.TasksInState(taskmodel.Searching), 1, "task 3 was never covered by the Accept and stays Searching")
}

func TestRequestTimeoutRetriesThenAbandonsAfterBudget(t *testing.T) {
	sup, loop, clock, sent := newTestSupervisor(t, address.New(2))
	appID := sup.Submit(taskmodel.Description{Length: 1, MaxMemory: 1, MaxDisk: 1}, 1)
	require.Len(t, *sent, 1)

	// No Accept ever arrives: each requestTimeout retries until the
	// configured budget (2 retries) is exhausted.
	for i := 0; i < 3; i++ {
		clock.Advance(31 * time.Second)
		drain(loop)
	}

	require.Len(t, *sent, 3, "initial send + 2 retries, budget exhausted on the 3rd timeout")
	rec := sup.Record(appID)
	require.True(t, rec.Done())
	require.Len(t, rec.TasksInState(taskmodel.TaskAborted), 1)
}

func TestOnTaskMonitorFinishedCompletesApplication(t *testing.T) {
	var finished *taskmodel.SubmissionRecord
	sup, _, _, sent := newTestSupervisor(t, address.New(2))
	sup.OnAppFinished = func(appID string, record *taskmodel.SubmissionRecord) { finished = record }

	appID := sup.Submit(taskmodel.Description{Length: 1, MaxMemory: 1, MaxDisk: 1}, 2)
	requestID := (*sent)[0].msg.RequestID
	worker := address.New(9)
	sup.OnAccept(worker, appID, proto.Accept{RequestID: requestID, FirstTaskID: 0, LastTaskID: 1, HeartbeatInterval: 10 * time.Second})

	sup.OnTaskMonitor(worker, proto.TaskMonitor{
		Worker:            worker,
		HeartbeatInterval: 10 * time.Second,
		Entries: []proto.MonitorEntry{
			{ClientRequestID: requestID, ClientTaskID: 0, State: taskmodel.Finished},
			{ClientRequestID: requestID, ClientTaskID: 1, State: taskmodel.Finished},
		},
	})

	require.NotNil(t, finished)
	require.True(t, finished.Done())
}

func TestOnTaskMonitorAbortedRequeuesTask(t *testing.T) {
	sup, _, _, sent := newTestSupervisor(t, address.New(2))
	appID := sup.Submit(taskmodel.Description{Length: 1, MaxMemory: 1, MaxDisk: 1}, 1)
	requestID := (*sent)[0].msg.RequestID
	worker := address.New(9)
	sup.OnAccept(worker, appID, proto.Accept{RequestID: requestID, FirstTaskID: 0, LastTaskID: 0, HeartbeatInterval: 10 * time.Second})
	require.Len(t, sup.Record(appID).TasksInState(taskmodel.Executing), 1)

	sup.OnTaskMonitor(worker, proto.TaskMonitor{
		Worker: worker, HeartbeatInterval: 10 * time.Second,
		Entries: []proto.MonitorEntry{{ClientRequestID: requestID, ClientTaskID: 0, State: taskmodel.Aborted}},
	})

	require.Len(t, *sent, 2, "Aborted entry must trigger an immediate fresh sendRequest")
	require.Len(t, sup.Record(appID).TasksInState(taskmodel.Searching), 1)
}

func TestHeartbeatDeadlineReadiesExecutingTasksAndRetries(t *testing.T) {
	sup, loop, clock, sent := newTestSupervisor(t, address.New(2))
	appID := sup.Submit(taskmodel.Description{Length: 1, MaxMemory: 1, MaxDisk: 1}, 1)
	requestID := (*sent)[0].msg.RequestID
	worker := address.New(9)
	sup.OnAccept(worker, appID, proto.Accept{RequestID: requestID, FirstTaskID: 0, LastTaskID: 0, HeartbeatInterval: 10 * time.Second})
	require.Len(t, sup.Record(appID).TasksInState(taskmodel.Executing), 1)

	// 2.5x10s = 25s with no TaskMonitor in between: the worker is presumed
	// dead, its executing task is re-readied and retried.
	clock.Advance(26 * time.Second)
	drain(loop)

	require.Len(t, *sent, 2, "heartbeat deadline must trigger a fresh sendRequest")
	require.Len(t, sup.Record(appID).TasksInState(taskmodel.Searching), 1)
}

func TestFatherChangingDefersSendRequestUntilResumed(t *testing.T) {
	sup, _, _, sent := newTestSupervisor(t, address.New(2))

	sup.SetFatherChanging(true)
	sup.Submit(taskmodel.Description{Length: 1, MaxMemory: 1, MaxDisk: 1}, 1)
	require.Empty(t, *sent, "sendRequest must be buffered while the father is changing")

	sup.SetFatherChanging(false)
	require.Len(t, *sent, 1, "buffered request must flush exactly once on resume")
}
