package summary

import "sort"

// ZAPiece is one rectangular piece of a ZAFunction, valid over the
// application-length range [WMin, WMax): H(S,w) = S*(A*w+B) - C within
// that range, per spec.md §4.1.
type ZAPiece struct {
	WMin, WMax float64
	A, B, C    float64
}

func (p ZAPiece) covers(w float64) bool {
	return w >= p.WMin && (w < p.WMax || p.WMax <= p.WMin)
}

func (p ZAPiece) evaluate(stretch, w float64) float64 {
	v := stretch*(p.A*w+p.B) - p.C
	if v < 0 {
		return 0
	}
	return v
}

// ZAFunction is the Slowness (FSP) variant's per-cluster payload: H(S,w),
// the number of tasks of application length w acceptable at stretch
// (slowness) S, spec.md §4.1.
type ZAFunction struct {
	Pieces []ZAPiece
}

var _ ClusterPayload = (*ZAFunction)(nil)

// NewZAFunction builds a single-piece ZAFunction valid over [0, +Inf),
// the shape a lone worker publishes: capacity grows linearly with
// both stretch and a per-task throughput term.
func NewZAFunction(power float64) *ZAFunction {
	if power <= 0 {
		power = 1
	}
	return &ZAFunction{Pieces: []ZAPiece{{WMin: 0, WMax: 0, A: power, B: 0, C: 0}}}
}

func (f *ZAFunction) pieceFor(w float64) (ZAPiece, bool) {
	if f == nil {
		return ZAPiece{}, false
	}
	var best ZAPiece
	found := false
	for _, p := range f.Pieces {
		if p.covers(w) {
			if !found || p.WMin > best.WMin {
				best = p
				found = true
			}
		}
	}
	return best, found
}

// Evaluate returns H(stretch, w): how many tasks of length w can be
// accepted at the given stretch.
func (f *ZAFunction) Evaluate(stretch, w float64) float64 {
	p, ok := f.pieceFor(w)
	if !ok {
		return 0
	}
	return p.evaluate(stretch, w)
}

// MinimalStretchFor implements spec.md §4.4's FSP ranking rule: the
// slowness S such that placing k additional tasks of length w raises
// H(S,w) by exactly k, i.e. the smallest S with Evaluate(S,w) >= k.
func (f *ZAFunction) MinimalStretchFor(w float64, k int) float64 {
	p, ok := f.pieceFor(w)
	if !ok {
		return posInf
	}
	denom := p.A*w + p.B
	if denom <= 0 {
		return posInf
	}
	s := (float64(k) + p.C) / denom
	if s < 0 {
		return 0
	}
	return s
}

const posInf = 1e18

// Min returns the smallest H(stretch, w) across every piece, for a fixed
// stretch — used by summary-distance heuristics and tests.
func (f *ZAFunction) Min(stretch float64) float64 {
	if f == nil || len(f.Pieces) == 0 {
		return 0
	}
	m := f.Pieces[0].evaluate(stretch, f.Pieces[0].WMin)
	for _, p := range f.Pieces {
		v := p.evaluate(stretch, p.WMin)
		if v < m {
			m = v
		}
	}
	return m
}

// Max returns the largest H(stretch, w) across every piece, approximated
// by sampling each piece's upper w bound (or WMin for the unbounded last
// piece).
func (f *ZAFunction) Max(stretch float64) float64 {
	if f == nil || len(f.Pieces) == 0 {
		return 0
	}
	sampleW := func(p ZAPiece) float64 {
		if p.WMax > p.WMin {
			return p.WMax
		}
		return p.WMin + 1
	}
	m := f.Pieces[0].evaluate(stretch, sampleW(f.Pieces[0]))
	for _, p := range f.Pieces {
		v := p.evaluate(stretch, sampleW(p))
		if v > m {
			m = v
		}
	}
	return m
}

// IntegratedSquaredDiff approximates spec.md's "squared-difference
// integration over a horizon": samples both functions at a fixed stretch
// across [0, horizon] and sums the squared differences.
func (f *ZAFunction) IntegratedSquaredDiff(other *ZAFunction, stretch, horizon float64, samples int) float64 {
	if samples <= 0 {
		samples = 16
	}
	sum := 0.0
	step := horizon / float64(samples)
	for i := 0; i < samples; i++ {
		w := step * float64(i)
		d := f.Evaluate(stretch, w) - other.Evaluate(stretch, w)
		sum += d * d
	}
	return sum
}

func (f *ZAFunction) boundaries() []float64 {
	seen := map[float64]bool{0: true}
	for _, p := range f.Pieces {
		seen[p.WMin] = true
		if p.WMax > p.WMin {
			seen[p.WMax] = true
		}
	}
	out := make([]float64, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Float64s(out)
	return out
}

// joinPayload additively combines two ZAFunctions: for every w-subrange
// delimited by the union of both operands' piece boundaries, the joined
// piece's (A,B,C) is the sum of whichever source piece covers that
// subrange (zero contribution if neither does), matching the additive
// "more subtree capacity = more acceptable tasks" semantics.
func (f *ZAFunction) joinPayload(other ClusterPayload) ClusterPayload {
	o, ok := other.(*ZAFunction)
	if !ok || o == nil {
		return f
	}
	if f == nil {
		return o
	}
	bounds := mergeSortedBoundaries(f.boundaries(), o.boundaries())
	out := &ZAFunction{}
	for i := 0; i+1 < len(bounds); i++ {
		lo, hi := bounds[i], bounds[i+1]
		mid := (lo + hi) / 2
		pa, _ := f.pieceFor(mid)
		pb, _ := o.pieceFor(mid)
		out.Pieces = append(out.Pieces, ZAPiece{
			WMin: lo, WMax: hi,
			A: pa.A + pb.A, B: pa.B + pb.B, C: pa.C + pb.C,
		})
	}
	// trailing unbounded piece beyond the last boundary
	if len(bounds) > 0 {
		last := bounds[len(bounds)-1]
		pa, _ := f.pieceFor(last + 1)
		pb, _ := o.pieceFor(last + 1)
		out.Pieces = append(out.Pieces, ZAPiece{WMin: last, WMax: 0, A: pa.A + pb.A, B: pa.B + pb.B, C: pa.C + pb.C})
	}
	return out
}

func mergeSortedBoundaries(a, b []float64) []float64 {
	seen := make(map[float64]bool, len(a)+len(b))
	out := make([]float64, 0, len(a)+len(b))
	for _, v := range append(append([]float64{}, a...), b...) {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	sort.Float64s(out)
	return out
}

// reducePayload is the Slowness variant's piece-count reducer: repeatedly
// merges the two adjacent pieces whose combined contribution at a fixed
// reference stretch differs least (the merge least likely to distort H),
// until at most maxPieces remain. It takes no quality parameter; the
// fsp.reduction_quality setting is not consulted.
func (f *ZAFunction) reducePayload(maxPieces int) ClusterPayload {
	if f == nil || maxPieces <= 0 || len(f.Pieces) <= maxPieces {
		return f
	}
	pieces := append([]ZAPiece(nil), f.Pieces...)
	const refStretch = 1.0
	for len(pieces) > maxPieces {
		bestI := -1
		bestDelta := -1.0
		for i := 0; i+1 < len(pieces); i++ {
			va := pieces[i].evaluate(refStretch, pieces[i].WMin)
			vb := pieces[i+1].evaluate(refStretch, pieces[i+1].WMin)
			delta := va - vb
			if delta < 0 {
				delta = -delta
			}
			if bestDelta < 0 || delta < bestDelta {
				bestDelta = delta
				bestI = i
			}
		}
		wa, wb := pieces[bestI], pieces[bestI+1]
		totalWidth := (wa.WMax - wa.WMin) + (wb.WMax - wb.WMin)
		merged := ZAPiece{WMin: wa.WMin, WMax: wb.WMax}
		if totalWidth > 0 {
			wA := (wa.WMax - wa.WMin) / totalWidth
			wB := 1 - wA
			merged.A = wa.A*wA + wb.A*wB
			merged.B = wa.B*wA + wb.B*wB
			merged.C = wa.C*wA + wb.C*wB
		} else {
			merged.A, merged.B, merged.C = wa.A, wa.B, wa.C
		}
		next := make([]ZAPiece, 0, len(pieces)-1)
		next = append(next, pieces[:bestI]...)
		next = append(next, merged)
		next = append(next, pieces[bestI+2:]...)
		pieces = next
	}
	return &ZAFunction{Pieces: pieces}
}

func (f *ZAFunction) pieceCount() int {
	if f == nil {
		return 0
	}
	return len(f.Pieces)
}
