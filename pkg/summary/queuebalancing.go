package summary

import (
	"math"
	"time"

	"github.com/jcelaya/stars/pkg/taskmodel"
)

// qbDims is the (memory, disk, power, queueEnd) clustering vector for the
// QueueBalancing (MMP) variant, spec.md §4.1.
var qbDims = []DimSpec{
	{Kind: DimMin, Name: "memory"},
	{Kind: DimMin, Name: "disk"},
	{Kind: DimMin, Name: "power"},
	{Kind: DimMax, Name: "queueEnd"},
}

const (
	qbMemory = iota
	qbDisk
	qbPower
	qbQueueEnd
)

// QueueBalancing is the MMP availability summary: clustered
// (memory, disk, power, queueEnd) tuples (spec.md §4.1).
type QueueBalancing struct {
	meta
	Clusters []Cluster
}

var _ Summary = QueueBalancing{}

// EmptyQueueBalancing is the identity element for QueueBalancing.Join.
func EmptyQueueBalancing() QueueBalancing {
	return QueueBalancing{}
}

// QueueBalancingFromWorker builds the single-point summary one worker
// publishes: its current static capacities and its queue-end time.
func QueueBalancingFromWorker(memory, disk, power float64, queueEnd time.Time) QueueBalancing {
	c := clonePoint([]float64{memory, disk, power, float64(queueEnd.Unix())})
	return QueueBalancing{Clusters: []Cluster{c}}
}

func (q QueueBalancing) Variant() Variant { return VariantQueueBalancing }

func (q QueueBalancing) WithSeq(seq uint32) Summary {
	q.seq = seq
	return q
}

func (q QueueBalancing) WithFromScheduler(v bool) Summary {
	q.fromScheduler = v
	return q
}

func (q QueueBalancing) IsEmpty() bool {
	return len(q.Clusters) == 0
}

func (q QueueBalancing) Join(other Summary) Summary {
	o, ok := other.(QueueBalancing)
	if !ok {
		panic("summary: QueueBalancing.Join called with mismatched variant")
	}
	joined := make([]Cluster, 0, len(q.Clusters)+len(o.Clusters))
	joined = append(joined, cloneClusters(q.Clusters)...)
	joined = append(joined, cloneClusters(o.Clusters)...)
	return QueueBalancing{Clusters: joined}
}

func (q QueueBalancing) Reduce(maxClusters, maxPieces int) Summary {
	ranges := rangesFor(qbDims, q.Clusters)
	reduced := reduceClusters(qbDims, cloneClusters(q.Clusters), ranges, maxClusters)
	return QueueBalancing{meta: q.meta, Clusters: reduced}
}

func (q QueueBalancing) Query(req taskmodel.Description) []Candidate {
	need := []float64{float64(req.MaxMemory), float64(req.MaxDisk), 0, math.Inf(1)}
	var out []Candidate
	for _, c := range q.Clusters {
		if !c.Fulfills(qbDims, need) {
			continue
		}
		out = append(out, Candidate{Cluster: c, Score: c.Bound[qbQueueEnd]})
	}
	sortCandidatesAscending(out)
	return out
}

func (q QueueBalancing) Equal(other Summary) bool {
	o, ok := other.(QueueBalancing)
	if !ok {
		return false
	}
	return clustersEqual(qbDims, q.Clusters, o.Clusters)
}

func (q QueueBalancing) ClusterCount() int {
	return len(q.Clusters)
}

func (q QueueBalancing) EncodedSize() int {
	return 16 + len(q.Clusters)*len(qbDims)*16
}

// EarliestEnd implements SPEC_FULL.md Part D's carried-forward
// getAvailability(req, numTasks): a binary search over a candidate horizon
// for the earliest time this cluster could finish numTasks more tasks of
// req's length, given its aggregate power bound and current queue-end
// bound. Grounded on QueueBalancingInfo.cpp's getAvailability.
func (c Cluster) EarliestEnd(req taskmodel.Description, numTasks int) time.Time {
	power := c.Bound[qbPower]
	queueEnd := time.Unix(int64(c.Bound[qbQueueEnd]), 0)
	if power <= 0 || numTasks <= 0 {
		return queueEnd
	}
	work := req.Length * float64(numTasks)

	lo, hi := 0.0, work/power*2+1
	capacityAt := func(horizon float64) float64 {
		return power * horizon
	}
	for i := 0; i < 64 && hi-lo > 1e-6; i++ {
		mid := (lo + hi) / 2
		if capacityAt(mid) >= work {
			hi = mid
		} else {
			lo = mid
		}
	}
	return queueEnd.Add(time.Duration(hi * float64(time.Second)))
}

func sortCandidatesAscending(c []Candidate) {
	for i := 1; i < len(c); i++ {
		for j := i; j > 0 && c[j].Score < c[j-1].Score; j-- {
			c[j], c[j-1] = c[j-1], c[j]
		}
	}
}

func clustersEqual(specs []DimSpec, a, b []Cluster) bool {
	if len(a) != len(b) {
		return false
	}
	used := make([]bool, len(b))
	for _, ca := range a {
		matched := false
		for j, cb := range b {
			if used[j] {
				continue
			}
			if boundsEqual(ca.Bound, cb.Bound) && ca.Count == cb.Count {
				used[j] = true
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

func boundsEqual(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if math.Abs(a[i]-b[i]) > 1e-9 {
			return false
		}
	}
	return true
}
