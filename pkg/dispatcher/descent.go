package dispatcher

import (
	"math"
	"sort"

	"github.com/jcelaya/stars/pkg/address"
	"github.com/jcelaya/stars/pkg/proto"
	"github.com/jcelaya/stars/pkg/summary"
	"github.com/jcelaya/stars/pkg/taskmodel"
)

// OnTaskBag implements Dispatch Descent (C4, spec.md §4.4) for a bag
// arriving with ForWorker=false: it filters, ranks and greedily allocates
// the bag's tasks across the children whose summaries fulfil
// bag.MinRequirements, then forwards one sub-bag per child that received
// at least one task.
func (d *Dispatcher) OnTaskBag(bag taskmodel.Bag, requestID int64) {
	if d.dedup != nil {
		if d.dedup.SeenRecently(bag.Requester, requestID, d.loop.Now()) {
			return
		}
	}

	candidates := d.fulfillingChildren(bag.MinRequirements)
	assigned, remaining := d.allocate(candidates, bag)

	for _, addr := range d.sortedAssignedAddrs(assigned) {
		count := assigned[addr]
		if count <= 0 {
			continue
		}
		first := bag.FirstTaskID
		for _, a := range d.sortedAssignedAddrs(assigned) {
			if a == addr {
				break
			}
			first += assigned[a]
		}
		sub := bag.Split(first, first+count-1)
		sub.ForWorker = d.ovl.IsLeafChild(addr)
		d.bus.SendMessage(addr, proto.TaskBagMsg{Bag: sub, RequestID: requestID})
	}

	// A non-root dispatcher never re-ascends a remainder: descent is a
	// single downward pass with no backtracking, so anything this
	// branch's children couldn't absorb is left Searching at the
	// Submission Supervisor, whose requestTimeout (spec.md §4.5 step 4)
	// is what actually recovers it with a fresh sendRequest. Only the
	// root — the one dispatcher with nowhere further down to try —
	// bounces a remainder straight back via OnUnplaced.
	if remaining > 0 && d.father == nil {
		unplaced := bag.Split(bag.LastTaskID-remaining+1, bag.LastTaskID)
		switch d.variant {
		case summary.VariantBasic, summary.VariantDeadline:
			if d.OnUnplaced != nil {
				d.OnUnplaced(unplaced)
			}
		default:
			// MMP/FSP: silently drop; the requester's requestTimeout
			// recovers (spec.md §4.4 step 5).
		}
	}
}

func (d *Dispatcher) fulfillingChildren(req taskmodel.Description) map[address.Address]summary.Candidate {
	out := make(map[address.Address]summary.Candidate)
	for _, addr := range d.childOrder {
		l := d.children[addr]
		cands := l.received.Query(req)
		if len(cands) == 0 {
			continue
		}
		out[addr] = cands[0]
	}
	return out
}

func (d *Dispatcher) sortedAssignedAddrs(assigned map[address.Address]int64) []address.Address {
	out := make([]address.Address, 0, len(assigned))
	for a := range assigned {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// allocate implements spec.md §4.4 step 3: greedily assign one task at a
// time to the currently best-scoring candidate, re-scoring it after every
// assignment, until every task is placed or no candidate remains feasible.
func (d *Dispatcher) allocate(candidates map[address.Address]summary.Candidate, bag taskmodel.Bag) (map[address.Address]int64, int64) {
	assigned := make(map[address.Address]int64, len(candidates))
	capLimit := make(map[address.Address]int64, len(candidates))
	for addr, c := range candidates {
		capLimit[addr] = capacityLimit(d.variant, c, bag.MinRequirements)
	}

	remaining := bag.Count()
	branchMin := math.Inf(1)
	for remaining > 0 {
		bestAddr := address.Null
		bestScore := math.Inf(1)
		found := false
		for addr, c := range candidates {
			if lim, ok := capLimit[addr]; ok && lim >= 0 && assigned[addr] >= lim {
				continue
			}
			score := rescore(d.variant, c.Cluster, bag.MinRequirements, assigned[addr])
			if d.variant == summary.VariantSlowness && d.fsp.Discard && branchMin < math.Inf(1) && score > d.fsp.DiscardRatio*branchMin {
				continue
			}
			if !found || score < bestScore {
				bestScore = score
				bestAddr = addr
				found = true
			}
		}
		if !found {
			break
		}
		assigned[bestAddr]++
		remaining--
		if bestScore < branchMin {
			branchMin = bestScore
		}
	}
	return assigned, remaining
}

// capacityLimit returns the hard cap on tasks a candidate can receive
// before it becomes infeasible, or -1 for variants with no such cap
// (spec.md §4.4: IBP ranks by free-slot count, which is also its cap; DP's
// cap is the static tasks-fittable-before-deadline count; MMP and FSP rank
// without a hard cap, recovery of over-assignment is the requester's job).
func capacityLimit(variant summary.Variant, c summary.Candidate, req taskmodel.Description) int64 {
	switch variant {
	case summary.VariantBasic:
		if len(c.Cluster.Bound) == 0 {
			return 0
		}
		return int64(c.Cluster.Bound[0])
	case summary.VariantDeadline:
		return int64(c.Cluster.TasksFittableBefore(req.Deadline, req.Length))
	default:
		return -1
	}
}

func rescore(variant summary.Variant, c summary.Cluster, req taskmodel.Description, assigned int64) float64 {
	switch variant {
	case summary.VariantBasic:
		free := 0.0
		if len(c.Bound) > 0 {
			free = c.Bound[0]
		}
		return -(free - float64(assigned))
	case summary.VariantQueueBalancing:
		return float64(c.EarliestEnd(req, int(assigned)+1).Unix())
	case summary.VariantDeadline:
		fittable := c.TasksFittableBefore(req.Deadline, req.Length)
		return -float64(int64(fittable) - assigned)
	case summary.VariantSlowness:
		return c.MinimalStretchFor(req.AppLength, int(assigned)+1)
	default:
		return math.Inf(1)
	}
}
