package summary

import (
	"time"

	"github.com/jcelaya/stars/pkg/taskmodel"
)

// dpDims is the (memory, disk, power) clustering vector for the Deadline
// (DP) variant; the deadline horizon itself lives in each cluster's
// LDeltaFunction payload, not as a bucketed dimension (spec.md §4.1).
var dpDims = []DimSpec{
	{Kind: DimMin, Name: "memory"},
	{Kind: DimMin, Name: "disk"},
	{Kind: DimMin, Name: "power"},
}

const (
	dpMemory = iota
	dpDisk
	dpPower
)

// Deadline is the DP availability summary: clustered (memory, disk, power)
// tuples with a piecewise LDeltaFunction payload (spec.md §4.1).
type Deadline struct {
	meta
	Clusters []Cluster
}

var _ Summary = Deadline{}

// EmptyDeadline is the identity element for Deadline.Join.
func EmptyDeadline() Deadline {
	return Deadline{}
}

// DeadlineFromWorker builds the single-point summary one worker publishes.
func DeadlineFromWorker(memory, disk, power float64, ldelta *LDeltaFunction) Deadline {
	c := clonePoint([]float64{memory, disk, power})
	c.Payload = ldelta
	return Deadline{Clusters: []Cluster{c}}
}

func (d Deadline) Variant() Variant { return VariantDeadline }

func (d Deadline) WithSeq(seq uint32) Summary {
	d.seq = seq
	return d
}

func (d Deadline) WithFromScheduler(v bool) Summary {
	d.fromScheduler = v
	return d
}

func (d Deadline) IsEmpty() bool {
	return len(d.Clusters) == 0
}

func (d Deadline) Join(other Summary) Summary {
	o, ok := other.(Deadline)
	if !ok {
		panic("summary: Deadline.Join called with mismatched variant")
	}
	joined := make([]Cluster, 0, len(d.Clusters)+len(o.Clusters))
	joined = append(joined, cloneClusters(d.Clusters)...)
	joined = append(joined, cloneClusters(o.Clusters)...)
	return Deadline{Clusters: joined}
}

func (d Deadline) Reduce(maxClusters, maxPieces int) Summary {
	ranges := rangesFor(dpDims, d.Clusters)
	reduced := reduceClusters(dpDims, cloneClusters(d.Clusters), ranges, maxClusters)
	for i, c := range reduced {
		if ld, ok := c.Payload.(*LDeltaFunction); ok {
			reduced[i].Payload = ld.reducePayload(maxPieces)
		}
	}
	return Deadline{meta: d.meta, Clusters: reduced}
}

func (d Deadline) Query(req taskmodel.Description) []Candidate {
	need := []float64{float64(req.MaxMemory), float64(req.MaxDisk), 0}
	var out []Candidate
	for _, c := range d.Clusters {
		if !c.Fulfills(dpDims, need) {
			continue
		}
		ld, _ := c.Payload.(*LDeltaFunction)
		fittable := 0
		if req.HasDeadline() && req.Length > 0 {
			fittable = ld.TasksFittable(req.Deadline, req.Length)
		}
		// lower score ranks better: rank by largest slack-per-task
		// fittable count, so negate it.
		out = append(out, Candidate{Cluster: c, Score: -float64(fittable)})
	}
	sortCandidatesAscending(out)
	return out
}

func (d Deadline) Equal(other Summary) bool {
	o, ok := other.(Deadline)
	if !ok {
		return false
	}
	return clustersEqual(dpDims, d.Clusters, o.Clusters)
}

func (d Deadline) ClusterCount() int {
	return len(d.Clusters)
}

func (d Deadline) EncodedSize() int {
	size := 16
	for _, c := range d.Clusters {
		size += len(dpDims) * 16
		if ld, ok := c.Payload.(*LDeltaFunction); ok {
			size += ld.pieceCount() * 24
		}
	}
	return size
}

// TasksFittableBefore exposes the DP dispatch-descent ranking rule
// (spec.md §4.4): the largest number of tasks this candidate cluster can
// fit before deadline, inverted from its LDeltaFunction.
func (c Cluster) TasksFittableBefore(deadline time.Time, length float64) int {
	ld, ok := c.Payload.(*LDeltaFunction)
	if !ok {
		return 0
	}
	return ld.TasksFittable(deadline, length)
}
