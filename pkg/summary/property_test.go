package summary_test

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/jcelaya/stars/pkg/summary"
)

// TestJoinIsAssociativeAndCommutative exercises spec.md §8 invariant 5:
// "(a.join(b)).join(c).equals(a.join(b.join(c))) after a deterministic
// canonicalisation" — Equal here performs that canonicalisation via
// set-equality over clusters, independent of concatenation order.
func TestJoinIsAssociativeAndCommutative(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	now := time.Unix(1_700_000_000, 0)
	point := func(mem, disk, power, queueOffset float64) summary.QueueBalancing {
		return summary.QueueBalancingFromWorker(mem, disk, power, now.Add(time.Duration(queueOffset)*time.Second))
	}

	gen4 := func() gopter.Gen {
		return gen.Float64Range(1, 10000).Map(func(v float64) [4]float64 {
			return [4]float64{v, v * 2, v / 2, v}
		})
	}

	properties.Property("join is associative", prop.ForAll(
		func(a, b, c [4]float64) bool {
			sa := point(a[0], a[1], a[2], a[3])
			sb := point(b[0], b[1], b[2], b[3])
			sc := point(c[0], c[1], c[2], c[3])

			left := sa.Join(sb).Join(sc)
			right := sa.Join(sb.Join(sc))
			return left.Equal(right)
		},
		gen4(), gen4(), gen4(),
	))

	properties.Property("join is commutative", prop.ForAll(
		func(a, b [4]float64) bool {
			sa := point(a[0], a[1], a[2], a[3])
			sb := point(b[0], b[1], b[2], b[3])
			return sa.Join(sb).Equal(sb.Join(sa))
		},
		gen4(), gen4(),
	))

	properties.Property("join with empty is identity", prop.ForAll(
		func(a [4]float64) bool {
			sa := point(a[0], a[1], a[2], a[3])
			return sa.Join(summary.EmptyQueueBalancing()).Equal(sa)
		},
		gen4(),
	))

	properties.TestingRun(t)
}

// TestReduceNeverExceedsClusterBudget exercises spec.md §8 invariant 3.
func TestReduceNeverExceedsClusterBudget(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	now := time.Unix(1_700_000_000, 0)

	properties.Property("reduce bounds cluster count", prop.ForAll(
		func(values []float64, budget int) bool {
			if budget < 1 {
				budget = 1
			}
			s := summary.EmptyQueueBalancing()
			for i, v := range values {
				s = s.Join(summary.QueueBalancingFromWorker(v, v, v, now.Add(time.Duration(i)*time.Second))).(summary.QueueBalancing)
			}
			reduced := s.Reduce(budget, 8)
			return reduced.ClusterCount() <= budget
		},
		gen.SliceOfN(12, gen.Float64Range(1, 1000)),
		gen.IntRange(1, 10),
	))

	properties.TestingRun(t)
}

// TestFulfilmentRoundTripsThroughJoinAndReduce exercises spec.md §8
// invariant 4 (conservative fulfilment) surviving a reduce pass.
func TestFulfilmentRoundTripsThroughJoinAndReduce(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	weak := summary.QueueBalancingFromWorker(256, 100, 50, now)
	strong := summary.QueueBalancingFromWorker(8192, 4000, 2000, now.Add(time.Hour))

	joined := weak.Join(strong).(summary.QueueBalancing)
	reduced := joined.Reduce(1, 8).(summary.QueueBalancing)

	if len(reduced.Clusters) != 1 {
		t.Fatalf("expected single merged cluster, got %d", len(reduced.Clusters))
	}
	c := reduced.Clusters[0]
	if c.Bound[0] > 256 || c.Bound[1] > 100 || c.Bound[2] > 50 {
		t.Fatalf("merged cluster claims more than its weakest constituent: %+v", c.Bound)
	}
}
