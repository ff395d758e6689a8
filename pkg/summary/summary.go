// Package summary implements the Availability Summary sum type and its
// algebra (spec.md §4.1, component C1): four lossy, size-bounded
// representations of a subtree's resources and load, each supporting
// empty/fromWorker/join/reduce/query/equality.
package summary

import "github.com/jcelaya/stars/pkg/taskmodel"

// Variant tags which concrete availability-summary representation a
// Summary carries, mirroring the four policies named in spec.md §4.2.
type Variant int

const (
	// VariantBasic is the free/busy bitmask-equivalent used by the
	// Immediate (IBP) policy.
	VariantBasic Variant = iota
	// VariantQueueBalancing carries clustered (memory, disk, power,
	// queueEnd) tuples, used by the FCFS (MMP) policy.
	VariantQueueBalancing
	// VariantDeadline carries clustered tuples plus a per-cluster
	// LDeltaFunction, used by the Deadline (DP) policy.
	VariantDeadline
	// VariantSlowness carries clustered tuples plus a per-cluster
	// ZAFunction H(S,w), used by the Fair-Slowness (FSP) policy.
	VariantSlowness
)

func (v Variant) String() string {
	switch v {
	case VariantBasic:
		return "Basic"
	case VariantQueueBalancing:
		return "QueueBalancing"
	case VariantDeadline:
		return "Deadline"
	case VariantSlowness:
		return "Slowness"
	default:
		return "Unknown"
	}
}

// Candidate is one fulfilling cluster returned by Query, already ranked for
// the variant's natural priority order (spec.md §4.1 "Candidate clusters are
// returned in the variant's natural priority order").
type Candidate struct {
	Cluster Cluster
	// Score is the variant-specific ranking value; lower is better for
	// every variant in this implementation (earliest time, lowest
	// slowness, or negative free-slot count), so callers always sort
	// ascending.
	Score float64
}

// Summary is the shared capability set every availability-summary variant
// implements (spec.md §4.1 and Design Notes §9 "Polymorphic summaries").
type Summary interface {
	// Variant reports which concrete representation this value carries.
	Variant() Variant
	// Seq returns the emitter-assigned monotonic sequence number.
	Seq() uint32
	// WithSeq returns a copy carrying the given sequence number, used
	// when a dispatcher re-emits an aggregated summary upstream.
	WithSeq(seq uint32) Summary
	// FromScheduler distinguishes a worker's own emission (true) from a
	// dispatcher's aggregated re-emission (false).
	FromScheduler() bool
	// WithFromScheduler returns a copy carrying the given flag.
	WithFromScheduler(v bool) Summary
	// IsEmpty reports whether this is the identity element for Join.
	IsEmpty() bool
	// Join combines this summary with other, associatively and
	// commutatively up to cluster ordering (spec.md §8 invariant 5). It
	// panics if other is a different Variant — callers must never mix
	// variants, which would indicate a wiring bug, not a runtime
	// condition to recover from.
	Join(other Summary) Summary
	// Reduce runs the size-bounded lossy compression described in
	// spec.md §4.1, bringing cluster count down to at most maxClusters
	// and any piecewise payload down to at most maxPieces.
	Reduce(maxClusters, maxPieces int) Summary
	// Query returns the clusters that fulfil req, in the variant's
	// natural priority order.
	Query(req taskmodel.Description) []Candidate
	// Equal reports deep equality after canonicalisation (spec.md §8
	// invariant 5 "after a deterministic canonicalisation").
	Equal(other Summary) bool
	// ClusterCount reports the number of clusters currently held,
	// checked against maxClusters by spec.md §8 invariant 3.
	ClusterCount() int
	// EncodedSize estimates the wire size in bytes, consulted by the
	// dispatcher's bandwidth cap (spec.md §4.3).
	EncodedSize() int
}

// meta holds the two fields every variant carries per spec.md §3
// ("Every variant carries a sequence number ... and a fromScheduler flag").
type meta struct {
	seq           uint32
	fromScheduler bool
}

func (m meta) Seq() uint32          { return m.seq }
func (m meta) FromScheduler() bool { return m.fromScheduler }
