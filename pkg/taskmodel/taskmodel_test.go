package taskmodel_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jcelaya/stars/pkg/address"
	"github.com/jcelaya/stars/pkg/taskmodel"
)

func TestBagSplitForcesFromWorkerFalse(t *testing.T) {
	b := taskmodel.Bag{
		Requester:   address.New(1),
		RequestID:   7,
		FirstTaskID: 0,
		LastTaskID:  9,
		FromWorker:  true,
	}
	sub := b.Split(0, 4)
	require.Equal(t, b.Requester, sub.Requester)
	require.Equal(t, b.RequestID, sub.RequestID)
	require.False(t, sub.FromWorker)
	require.EqualValues(t, 5, sub.Count())
}

func TestBagContains(t *testing.T) {
	b := taskmodel.Bag{FirstTaskID: 3, LastTaskID: 7}
	require.True(t, b.Contains(3))
	require.True(t, b.Contains(7))
	require.False(t, b.Contains(2))
	require.False(t, b.Contains(8))
}

func TestWorkerStateMonotonic(t *testing.T) {
	task := &taskmodel.Task{State: taskmodel.Inactive}
	require.True(t, task.Transition(taskmodel.Prepared))
	require.True(t, task.Transition(taskmodel.Running))
	require.True(t, task.Transition(taskmodel.Finished))
	require.False(t, task.Transition(taskmodel.Running), "no transitions out of a terminal state")
	require.Equal(t, taskmodel.Finished, task.State)
}

func TestSubmissionRecordInFlightCount(t *testing.T) {
	rec := taskmodel.NewSubmissionRecord("app-1", taskmodel.Description{NumTasks: 3}, 3)
	require.Equal(t, 3, rec.InFlightCount())
	require.False(t, rec.Done())

	rec.Task(0).State = taskmodel.TaskFinished
	require.Equal(t, 2, rec.InFlightCount())

	rec.Task(1).State = taskmodel.TaskAborted
	rec.Task(2).State = taskmodel.TaskFinished
	require.Equal(t, 0, rec.InFlightCount())
	require.True(t, rec.Done())
}

func TestSubmissionRecordPreservesOrder(t *testing.T) {
	rec := taskmodel.NewSubmissionRecord("app-2", taskmodel.Description{}, 5)
	ids := make([]int64, 0, 5)
	for _, task := range rec.Tasks() {
		ids = append(ids, task.ClientTaskID)
	}
	require.Equal(t, []int64{0, 1, 2, 3, 4}, ids)
}
