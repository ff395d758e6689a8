package simulated_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jcelaya/stars/pkg/address"
	"github.com/jcelaya/stars/pkg/config"
	"github.com/jcelaya/stars/pkg/executor/simulated"
	"github.com/jcelaya/stars/pkg/taskmodel"
)

type transition struct {
	from, to taskmodel.WorkerState
}

func TestRunTransitionsPreparedToRunningThenFinished(t *testing.T) {
	var (
		mu          sync.Mutex
		transitions []transition
		done        = make(chan struct{})
	)
	onChange := func(taskID int64, from, to taskmodel.WorkerState) {
		mu.Lock()
		transitions = append(transitions, transition{from, to})
		mu.Unlock()
		if to.IsTerminal() {
			close(done)
		}
	}

	exec := simulated.New(config.ExecConfig{SecondsPerUnit: 0.01}, 1)
	h := exec.CreateTask(address.New(1), 1, 1, taskmodel.Description{Length: 1}, onChange)
	h.Run()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task never reached a terminal state")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []transition{
		{taskmodel.Prepared, taskmodel.Running},
		{taskmodel.Running, taskmodel.Finished},
	}, transitions)
}

func TestAbortStopsTheTimerAndIsIdempotent(t *testing.T) {
	var (
		mu          sync.Mutex
		transitions []transition
	)
	onChange := func(taskID int64, from, to taskmodel.WorkerState) {
		mu.Lock()
		transitions = append(transitions, transition{from, to})
		mu.Unlock()
	}

	exec := simulated.New(config.ExecConfig{SecondsPerUnit: 10}, 1)
	h := exec.CreateTask(address.New(1), 1, 1, taskmodel.Description{Length: 1}, onChange)
	h.Run()
	h.Abort()
	h.Abort()

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []transition{
		{taskmodel.Prepared, taskmodel.Running},
		{taskmodel.Running, taskmodel.Aborted},
	}, transitions)
}

func TestFasterNodePowerShortensRuntime(t *testing.T) {
	exec := simulated.New(config.ExecConfig{SecondsPerUnit: 1}, 4)

	done := make(chan struct{})
	start := time.Now()
	onChange := func(taskID int64, from, to taskmodel.WorkerState) {
		if to == taskmodel.Finished {
			close(done)
		}
	}

	h := exec.CreateTask(address.New(1), 1, 1, taskmodel.Description{Length: 1}, onChange)
	h.Run()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task never finished")
	}
	require.Less(t, time.Since(start), 500*time.Millisecond)
}
