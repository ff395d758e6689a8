package summary

import "math"

// DimKind says whether a clustered dimension's conservative bound is the
// minimum (resources: memory, disk, power) or the maximum (time horizons:
// queue-end, deadline horizon) across the cluster's constituent points,
// per spec.md §4.1.
type DimKind int

const (
	DimMin DimKind = iota
	DimMax
)

// DimSpec describes one dimension of the shared clustering vector: its
// name and conservative-bound direction. The range used for loss
// normalisation and bucket assignment is not stored here; it is passed
// alongside as a []Range parameter (Design Notes §9 "pass the range as a
// parameter... to eliminate the back-pointer entirely").
type DimSpec struct {
	Kind DimKind
	Name string
}

// crossBucketPenalty is the "+100 per crossed bucket" constant from
// spec.md §4.1.
const crossBucketPenalty = 100.0

// Range is the observed [min,max] extent of one dimension across a
// summary's clusters, used both to normalise loss for merge-cost ranking
// and to assign coarse buckets.
type Range struct {
	Min, Max float64
}

func (r Range) width() float64 {
	w := r.Max - r.Min
	if w <= 0 {
		return 1
	}
	return w
}

func (r Range) expand(v float64) Range {
	if v < r.Min {
		r.Min = v
	}
	if v > r.Max {
		r.Max = v
	}
	return r
}

func (r Range) bucket(v float64, buckets int) int {
	if buckets <= 1 {
		return 0
	}
	frac := (v - r.Min) / r.width()
	idx := int(frac * float64(buckets))
	if idx < 0 {
		idx = 0
	}
	if idx >= buckets {
		idx = buckets - 1
	}
	return idx
}

// ClusterPayload is the variant-specific data a cluster carries beyond the
// shared (bound, loss, count) vector: nil for Basic/QueueBalancing,
// *LDeltaFunction for Deadline, *ZAFunction for Slowness.
type ClusterPayload interface {
	// joinPayload combines two payloads belonging to clusters being
	// merged by mergeClusters during Reduce (Join itself only
	// concatenates clusters and never calls it).
	joinPayload(other ClusterPayload) ClusterPayload
	// reducePayload applies the variant's bounded piece reducer, used
	// only when Reduce merges clusters or trims pieces directly.
	reducePayload(maxPieces int) ClusterPayload
}

// Cluster is one entry of a summary's clustering vector (spec.md §4.1).
type Cluster struct {
	Bound   []float64
	Loss    []float64
	Count   int
	Payload ClusterPayload
}

func clonePoint(bound []float64) Cluster {
	loss := make([]float64, len(bound))
	b := make([]float64, len(bound))
	copy(b, bound)
	return Cluster{Bound: b, Loss: loss, Count: 1}
}

// Fulfills reports whether the cluster's conservative minima satisfy req's
// per-dimension requirement, checked dimension-by-dimension via specs. This
// is spec.md §8 invariant 4's conservative fulfilment test: if true here,
// every constituent point individually satisfies req too, because Bound is
// itself a conservative (min, for resources; max, for horizons) aggregate.
func (c Cluster) Fulfills(specs []DimSpec, need []float64) bool {
	for i, s := range specs {
		switch s.Kind {
		case DimMin:
			if c.Bound[i] < need[i] {
				return false
			}
		case DimMax:
			if c.Bound[i] > need[i] {
				return false
			}
		}
	}
	return true
}

// mergeClusters merges a and b into one cluster per spec.md §4.1: bounds
// are lifted per DimKind, and loss accumulates the extra conservatism the
// merge introduces for whichever side's bound had to move.
func mergeClusters(specs []DimSpec, a, b Cluster) Cluster {
	n := len(specs)
	out := Cluster{
		Bound: make([]float64, n),
		Loss:  make([]float64, n),
		Count: a.Count + b.Count,
	}
	for i, s := range specs {
		switch s.Kind {
		case DimMin:
			if a.Bound[i] <= b.Bound[i] {
				out.Bound[i] = a.Bound[i]
				out.Loss[i] = a.Loss[i] + b.Loss[i] + (b.Bound[i]-a.Bound[i])*float64(b.Count)
			} else {
				out.Bound[i] = b.Bound[i]
				out.Loss[i] = a.Loss[i] + b.Loss[i] + (a.Bound[i]-b.Bound[i])*float64(a.Count)
			}
		case DimMax:
			if a.Bound[i] >= b.Bound[i] {
				out.Bound[i] = a.Bound[i]
				out.Loss[i] = a.Loss[i] + b.Loss[i] + (a.Bound[i]-b.Bound[i])*float64(b.Count)
			} else {
				out.Bound[i] = b.Bound[i]
				out.Loss[i] = a.Loss[i] + b.Loss[i] + (b.Bound[i]-a.Bound[i])*float64(a.Count)
			}
		}
	}
	if a.Payload != nil && b.Payload != nil {
		out.Payload = a.Payload.joinPayload(b.Payload)
	} else if a.Payload != nil {
		out.Payload = a.Payload
	} else {
		out.Payload = b.Payload
	}
	return out
}

// mergeCost implements spec.md §4.1's cluster distance: the sum of
// per-dimension normalised losses introduced by the merge if it keeps both
// operands in the same coarse bucket along every dimension, otherwise a
// +100 penalty per crossed dimension added on top.
func mergeCost(specs []DimSpec, ranges []Range, buckets int, a, b Cluster) float64 {
	merged := mergeClusters(specs, a, b)
	cost := 0.0
	for i := range specs {
		extra := merged.Loss[i] - a.Loss[i] - b.Loss[i]
		cost += extra / ranges[i].width()
		if ranges[i].bucket(a.Bound[i], buckets) != ranges[i].bucket(b.Bound[i], buckets) {
			cost += crossBucketPenalty
		}
	}
	return cost
}

// bucketsFor implements "Bucket count per dimension is floor(N^(1/D))"
// from spec.md §4.1, floored at 1 per SPEC_FULL.md Part E decision 4.
func bucketsFor(maxClusters, dims int) int {
	if dims <= 0 {
		return 1
	}
	b := int(math.Floor(math.Pow(float64(maxClusters), 1.0/float64(dims))))
	if b < 1 {
		b = 1
	}
	return b
}

// reduceClusters runs spec.md §4.1's reduce(N): repeatedly merge the
// globally closest pair until at most maxClusters remain. Merges only ever
// happen here, never in join, "so that reduce is the single approximation
// point".
func reduceClusters(specs []DimSpec, clusters []Cluster, ranges []Range, maxClusters int) []Cluster {
	if maxClusters <= 0 {
		maxClusters = 1
	}
	buckets := bucketsFor(maxClusters, len(specs))
	for len(clusters) > maxClusters {
		bestI, bestJ := -1, -1
		bestCost := math.Inf(1)
		for i := 0; i < len(clusters); i++ {
			for j := i + 1; j < len(clusters); j++ {
				cost := mergeCost(specs, ranges, buckets, clusters[i], clusters[j])
				if cost < bestCost {
					bestCost = cost
					bestI, bestJ = i, j
				}
			}
		}
		merged := mergeClusters(specs, clusters[bestI], clusters[bestJ])
		next := make([]Cluster, 0, len(clusters)-1)
		for k, c := range clusters {
			if k == bestI || k == bestJ {
				continue
			}
			next = append(next, c)
		}
		next = append(next, merged)
		clusters = next
	}
	return clusters
}

// rangesFor computes the observed [min,max] extent of each dimension across
// clusters, used by mergeCost's normalisation.
func rangesFor(specs []DimSpec, clusters []Cluster) []Range {
	ranges := make([]Range, len(specs))
	for i := range specs {
		ranges[i] = Range{Min: math.Inf(1), Max: math.Inf(-1)}
	}
	for _, c := range clusters {
		for i := range specs {
			ranges[i] = ranges[i].expand(c.Bound[i])
		}
	}
	for i := range ranges {
		if math.IsInf(ranges[i].Min, 1) {
			ranges[i] = Range{Min: 0, Max: 1}
		}
	}
	return ranges
}

// cloneClusters deep-copies a cluster slice so Join/Reduce never alias the
// operands' backing arrays.
func cloneClusters(in []Cluster) []Cluster {
	out := make([]Cluster, len(in))
	for i, c := range in {
		bound := make([]float64, len(c.Bound))
		loss := make([]float64, len(c.Loss))
		copy(bound, c.Bound)
		copy(loss, c.Loss)
		out[i] = Cluster{Bound: bound, Loss: loss, Count: c.Count, Payload: c.Payload}
	}
	return out
}
