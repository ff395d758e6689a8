package summary

import "github.com/jcelaya/stars/pkg/taskmodel"

// Basic is the free/busy bitmask-equivalent summary variant used by the
// Immediate (IBP) policy (spec.md §3, §4.1). It tracks only aggregate slot
// counts; there is no clustering vector because a single free-slot count
// is already size-bounded.
type Basic struct {
	meta
	Free int
	Busy int
}

var _ Summary = Basic{}

// EmptyBasic is the identity element for Basic.Join.
func EmptyBasic() Basic {
	return Basic{}
}

// BasicFromWorker builds the Basic summary a worker publishes: one free
// slot if its queue is empty (the IBP admission rule accepts at most one
// task into an empty queue), otherwise fully busy.
func BasicFromWorker(queueEmpty bool) Basic {
	if queueEmpty {
		return Basic{Free: 1, Busy: 0}
	}
	return Basic{Free: 0, Busy: 1}
}

func (b Basic) Variant() Variant { return VariantBasic }

func (b Basic) WithSeq(seq uint32) Summary {
	b.seq = seq
	return b
}

func (b Basic) WithFromScheduler(v bool) Summary {
	b.fromScheduler = v
	return b
}

func (b Basic) IsEmpty() bool {
	return b.Free == 0 && b.Busy == 0
}

func (b Basic) Join(other Summary) Summary {
	o, ok := other.(Basic)
	if !ok {
		panic("summary: Basic.Join called with mismatched variant")
	}
	return Basic{Free: b.Free + o.Free, Busy: b.Busy + o.Busy}
}

// Reduce is a no-op for Basic: an aggregate pair of counters is already
// arbitrarily size-bounded, matching spec.md §4.1's "size-bounded" goal
// trivially for this variant.
func (b Basic) Reduce(maxClusters, maxPieces int) Summary {
	return b
}

func (b Basic) Query(req taskmodel.Description) []Candidate {
	if b.Free <= 0 {
		return nil
	}
	return []Candidate{{
		Cluster: Cluster{Bound: []float64{float64(b.Free)}, Count: b.Free},
		Score:   -float64(b.Free), // more free slots ranks better (lower score)
	}}
}

func (b Basic) Equal(other Summary) bool {
	o, ok := other.(Basic)
	return ok && o.Free == b.Free && o.Busy == b.Busy
}

func (b Basic) ClusterCount() int {
	if b.Free == 0 && b.Busy == 0 {
		return 0
	}
	return 1
}

func (b Basic) EncodedSize() int {
	// two varints plus the shared seq/flag header, a generous fixed
	// estimate since Basic's wire form never grows.
	return 16
}

// FreeSlots exposes the aggregate free-slot count for the IBP dispatch
// descent ranking rule (spec.md §4.4).
func (b Basic) FreeSlots() int {
	return b.Free
}
