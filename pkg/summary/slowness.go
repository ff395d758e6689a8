package summary

import "github.com/jcelaya/stars/pkg/taskmodel"

// fspDims is the (memory, disk, power) clustering vector for the
// Slowness (FSP) variant; the stretch/app-length surface lives in each
// cluster's ZAFunction payload (spec.md §4.1).
var fspDims = []DimSpec{
	{Kind: DimMin, Name: "memory"},
	{Kind: DimMin, Name: "disk"},
	{Kind: DimMin, Name: "power"},
}

// Slowness is the FSP availability summary: clustered (memory, disk, power)
// tuples with a piecewise ZAFunction payload (spec.md §4.1).
type Slowness struct {
	meta
	Clusters []Cluster
}

var _ Summary = Slowness{}

// EmptySlowness is the identity element for Slowness.Join.
func EmptySlowness() Slowness {
	return Slowness{}
}

// SlownessFromWorker builds the single-point summary one worker publishes.
func SlownessFromWorker(memory, disk, power float64, za *ZAFunction) Slowness {
	c := clonePoint([]float64{memory, disk, power})
	c.Payload = za
	return Slowness{Clusters: []Cluster{c}}
}

func (s Slowness) Variant() Variant { return VariantSlowness }

func (s Slowness) WithSeq(seq uint32) Summary {
	s.seq = seq
	return s
}

func (s Slowness) WithFromScheduler(v bool) Summary {
	s.fromScheduler = v
	return s
}

func (s Slowness) IsEmpty() bool {
	return len(s.Clusters) == 0
}

func (s Slowness) Join(other Summary) Summary {
	o, ok := other.(Slowness)
	if !ok {
		panic("summary: Slowness.Join called with mismatched variant")
	}
	joined := make([]Cluster, 0, len(s.Clusters)+len(o.Clusters))
	joined = append(joined, cloneClusters(s.Clusters)...)
	joined = append(joined, cloneClusters(o.Clusters)...)
	return Slowness{Clusters: joined}
}

func (s Slowness) Reduce(maxClusters, maxPieces int) Summary {
	ranges := rangesFor(fspDims, s.Clusters)
	reduced := reduceClusters(fspDims, cloneClusters(s.Clusters), ranges, maxClusters)
	for i, c := range reduced {
		if za, ok := c.Payload.(*ZAFunction); ok {
			reduced[i].Payload = za.reducePayload(maxPieces)
		}
	}
	return Slowness{meta: s.meta, Clusters: reduced}
}

func (s Slowness) Query(req taskmodel.Description) []Candidate {
	need := []float64{float64(req.MaxMemory), float64(req.MaxDisk), 0}
	var out []Candidate
	for _, c := range s.Clusters {
		if !c.Fulfills(fspDims, need) {
			continue
		}
		za, _ := c.Payload.(*ZAFunction)
		stretch := posInf
		if za != nil && req.AppLength > 0 {
			stretch = za.MinimalStretchFor(req.AppLength, 1)
		}
		out = append(out, Candidate{Cluster: c, Score: stretch})
	}
	sortCandidatesAscending(out)
	return out
}

func (s Slowness) Equal(other Summary) bool {
	o, ok := other.(Slowness)
	if !ok {
		return false
	}
	return clustersEqual(fspDims, s.Clusters, o.Clusters)
}

func (s Slowness) ClusterCount() int {
	return len(s.Clusters)
}

func (s Slowness) EncodedSize() int {
	size := 16
	for _, c := range s.Clusters {
		size += len(fspDims) * 16
		if za, ok := c.Payload.(*ZAFunction); ok {
			size += za.pieceCount() * 32
		}
	}
	return size
}

// MinimalStretchFor exposes the FSP dispatch-descent ranking rule
// (spec.md §4.4): the slowness at which this candidate cluster could
// accept k more tasks of application length w.
func (c Cluster) MinimalStretchFor(w float64, k int) float64 {
	za, ok := c.Payload.(*ZAFunction)
	if !ok {
		return posInf
	}
	return za.MinimalStretchFor(w, k)
}
