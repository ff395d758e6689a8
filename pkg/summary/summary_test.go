package summary_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jcelaya/stars/pkg/summary"
	"github.com/jcelaya/stars/pkg/taskmodel"
)

func TestBasicJoinAndQuery(t *testing.T) {
	a := summary.BasicFromWorker(true)
	b := summary.BasicFromWorker(false)
	joined := a.Join(b).(summary.Basic)

	require.Equal(t, 1, joined.Free)
	require.Equal(t, 1, joined.Busy)

	cands := joined.Query(taskmodel.Description{})
	require.Len(t, cands, 1)
}

func TestBasicJoinWithEmptyIsIdentity(t *testing.T) {
	a := summary.BasicFromWorker(true)
	joined := a.Join(summary.EmptyBasic())
	require.True(t, joined.Equal(a))
}

func TestQueueBalancingJoinConcatenatesClusters(t *testing.T) {
	now := time.Unix(1000, 0)
	a := summary.QueueBalancingFromWorker(4096, 1000, 1000, now)
	b := summary.QueueBalancingFromWorker(2048, 500, 500, now.Add(time.Minute))

	joined := a.Join(b)
	require.Equal(t, 2, joined.ClusterCount())
}

func TestQueueBalancingReduceBoundsClusterCount(t *testing.T) {
	now := time.Unix(1000, 0)
	s := summary.EmptyQueueBalancing()
	for i := 0; i < 10; i++ {
		s = s.Join(summary.QueueBalancingFromWorker(float64(1000+i), 500, 100, now.Add(time.Duration(i)*time.Second))).(summary.QueueBalancing)
	}
	require.Equal(t, 10, s.ClusterCount())

	reduced := s.Reduce(3, 8)
	require.LessOrEqual(t, reduced.ClusterCount(), 3)
}

func TestClusterFulfilmentIsConservative(t *testing.T) {
	now := time.Unix(1000, 0)
	a := summary.QueueBalancingFromWorker(4096, 1000, 1000, now)
	b := summary.QueueBalancingFromWorker(512, 100, 50, now.Add(time.Hour))
	joined := a.Join(b).(summary.QueueBalancing)
	reduced := joined.Reduce(1, 8).(summary.QueueBalancing)
	require.Len(t, reduced.Clusters, 1)

	// The merged cluster's conservative bound is the min across both
	// constituent points, so it must not claim more than the weakest
	// point actually has (spec.md §8 invariant 4).
	c := reduced.Clusters[0]
	require.LessOrEqual(t, c.Bound[0], 512.0)
	require.LessOrEqual(t, c.Bound[1], 100.0)
}

func TestDeadlineTasksFittable(t *testing.T) {
	now := time.Unix(0, 0)
	ld := summary.NewLDeltaFromQueue(1000, now, []time.Time{now.Add(1000 * time.Second)})
	d := summary.DeadlineFromWorker(4096, 1000, 1000, ld)

	cands := d.Query(taskmodel.Description{
		MaxMemory: 2048, MaxDisk: 500, Length: 100000,
		Deadline: now.Add(1000 * time.Second),
	})
	require.Len(t, cands, 1)
}

func TestSlownessMinimalStretch(t *testing.T) {
	za := summary.NewZAFunction(1000)
	s := summary.SlownessFromWorker(4096, 1000, 1000, za)
	cands := s.Query(taskmodel.Description{MaxMemory: 1, MaxDisk: 1, AppLength: 100})
	require.Len(t, cands, 1)
	require.GreaterOrEqual(t, cands[0].Score, 0.0)
}

func TestJoinWithEmptyIsIdentityAcrossVariants(t *testing.T) {
	now := time.Unix(0, 0)
	ld := summary.NewLDeltaFromQueue(1000, now, nil)
	za := summary.NewZAFunction(1000)

	cases := []summary.Summary{
		summary.QueueBalancingFromWorker(10, 10, 10, now),
		summary.DeadlineFromWorker(10, 10, 10, ld),
		summary.SlownessFromWorker(10, 10, 10, za),
	}
	empties := []summary.Summary{
		summary.EmptyQueueBalancing(),
		summary.EmptyDeadline(),
		summary.EmptySlowness(),
	}
	for i, s := range cases {
		joined := s.Join(empties[i])
		require.True(t, joined.Equal(s), "join with empty must be identity for variant %v", s.Variant())
	}
}

func TestJoinMismatchedVariantPanics(t *testing.T) {
	require.Panics(t, func() {
		summary.EmptyQueueBalancing().Join(summary.EmptyDeadline())
	})
}
