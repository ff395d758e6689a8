package summary

import (
	"sort"
	"time"
)

// LDeltaPoint is one breakpoint of an LDeltaFunction.
type LDeltaPoint struct {
	At    time.Time
	Avail float64
}

// LDeltaFunction is the Deadline (DP) variant's per-cluster payload
// (spec.md §4.1): a piecewise step function giving the worst-case work
// available to a new request with deadline t, built by ordering queued
// tasks by deadline and integrating power*slack. Breakpoints are kept
// sorted ascending by At; Avail accumulates (this implementation treats it
// as non-decreasing in t — more deadline slack only ever admits more work,
// the natural reading of "available work before time t" as a cumulative
// quantity; DESIGN.md's pkg/summary entry records this as the chosen resolution of
// the spec's "non-increasing" wording, which this implementation takes to
// describe the slack-consumption curve the availability is integrated
// from, not the availability curve itself).
type LDeltaFunction struct {
	Breaks []LDeltaPoint
}

var _ ClusterPayload = (*LDeltaFunction)(nil)

// NewLDeltaFromQueue builds the LDeltaFunction for a single worker from its
// queued tasks, ordered by deadline, per spec.md §4.1: a(t) integrates
// power*slack across every queued task whose deadline is <= t.
func NewLDeltaFromQueue(power float64, now time.Time, deadlines []time.Time) *LDeltaFunction {
	sorted := append([]time.Time(nil), deadlines...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	f := &LDeltaFunction{}
	cursor := now
	avail := 0.0
	for _, d := range sorted {
		if d.Before(cursor) {
			d = cursor
		}
		slack := d.Sub(cursor).Seconds()
		avail += power * slack
		f.Breaks = append(f.Breaks, LDeltaPoint{At: d, Avail: avail})
		cursor = d
	}
	return f
}

// AvailableBefore returns a(t): the worst-case work available to a new
// request whose deadline is t, by holding the step function constant
// between breakpoints.
func (f *LDeltaFunction) AvailableBefore(t time.Time) float64 {
	if f == nil || len(f.Breaks) == 0 {
		return 0
	}
	best := 0.0
	for _, b := range f.Breaks {
		if !b.At.After(t) {
			best = b.Avail
		} else {
			break
		}
	}
	return best
}

// TasksFittable returns the number of additional tasks of the given length
// that fit before deadline without violating any existing breakpoint,
// i.e. floor(a(deadline) / length) — the DP dispatch-descent ranking rule
// from spec.md §4.4.
func (f *LDeltaFunction) TasksFittable(deadline time.Time, length float64) int {
	if length <= 0 {
		return 0
	}
	avail := f.AvailableBefore(deadline)
	if avail <= 0 {
		return 0
	}
	return int(avail / length)
}

// Min returns the smallest Avail value across all breakpoints.
func (f *LDeltaFunction) Min() float64 {
	if f == nil || len(f.Breaks) == 0 {
		return 0
	}
	m := f.Breaks[0].Avail
	for _, b := range f.Breaks[1:] {
		if b.Avail < m {
			m = b.Avail
		}
	}
	return m
}

// Max returns the largest Avail value across all breakpoints.
func (f *LDeltaFunction) Max() float64 {
	if f == nil || len(f.Breaks) == 0 {
		return 0
	}
	m := f.Breaks[0].Avail
	for _, b := range f.Breaks[1:] {
		if b.Avail > m {
			m = b.Avail
		}
	}
	return m
}

// Sum returns the total Avail mass across all breakpoints (used by
// summary-distance heuristics, not by dispatch decisions directly).
func (f *LDeltaFunction) Sum() float64 {
	if f == nil {
		return 0
	}
	s := 0.0
	for _, b := range f.Breaks {
		s += b.Avail
	}
	return s
}

// joinPayload implements ClusterPayload: the joined function's breakpoints
// are the union of both operands' breakpoints, each valued as the sum of
// both functions' AvailableBefore at that point (the two subtrees' slack
// accumulate additively).
func (f *LDeltaFunction) joinPayload(other ClusterPayload) ClusterPayload {
	o, ok := other.(*LDeltaFunction)
	if !ok || o == nil {
		return f
	}
	if f == nil {
		return o
	}
	seen := make(map[int64]time.Time)
	for _, b := range f.Breaks {
		seen[b.At.Unix()] = b.At
	}
	for _, b := range o.Breaks {
		seen[b.At.Unix()] = b.At
	}
	times := make([]time.Time, 0, len(seen))
	for _, t := range seen {
		times = append(times, t)
	}
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })

	out := &LDeltaFunction{}
	for _, t := range times {
		out.Breaks = append(out.Breaks, LDeltaPoint{At: t, Avail: f.AvailableBefore(t) + o.AvailableBefore(t)})
	}
	return out
}

// reducePayload implements the "bounded-piece reducer" from spec.md §4.1:
// repeatedly merge the two adjacent breakpoints with the smallest value
// delta until at most maxPieces remain.
func (f *LDeltaFunction) reducePayload(maxPieces int) ClusterPayload {
	if f == nil || maxPieces <= 0 {
		return f
	}
	breaks := append([]LDeltaPoint(nil), f.Breaks...)
	for len(breaks) > maxPieces {
		bestI := -1
		bestDelta := -1.0
		for i := 0; i+1 < len(breaks); i++ {
			delta := breaks[i+1].Avail - breaks[i].Avail
			if delta < 0 {
				delta = -delta
			}
			if bestDelta < 0 || delta < bestDelta {
				bestDelta = delta
				bestI = i
			}
		}
		// keep the later (larger) breakpoint time and value: it is the
		// more conservative of the pair being merged away.
		merged := breaks[bestI+1]
		next := make([]LDeltaPoint, 0, len(breaks)-1)
		next = append(next, breaks[:bestI]...)
		next = append(next, merged)
		next = append(next, breaks[bestI+2:]...)
		breaks = next
	}
	return &LDeltaFunction{Breaks: breaks}
}

func (f *LDeltaFunction) pieceCount() int {
	if f == nil {
		return 0
	}
	return len(f.Breaks)
}
