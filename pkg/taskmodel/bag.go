package taskmodel

import "github.com/jcelaya/stars/pkg/address"

// Bag is spec.md's TaskBag (in flight): a range of task ids sharing one
// requester/requestId pair and one set of minimum requirements.
type Bag struct {
	Requester    address.Address
	RequestID    int64 // unique per requester, spec.md §3
	FirstTaskID  int64
	LastTaskID   int64
	MinRequirements Description
	// ForWorker is true when this message is the final assignment step;
	// otherwise it is a routing request still descending the tree.
	ForWorker bool
	// FromWorker is true only on the first hop from a submitter toward
	// its father; any routing split forces it back to false (spec.md §3).
	FromWorker bool
}

// Count returns how many task ids this bag spans.
func (b Bag) Count() int64 {
	if b.LastTaskID < b.FirstTaskID {
		return 0
	}
	return b.LastTaskID - b.FirstTaskID + 1
}

// Split carves out the sub-range [first, last] as a routing sub-bag: it
// shares Requester/RequestID with b but always has FromWorker forced false,
// per spec.md §3 ("in split sub-bags fromWorker is forced false").
func (b Bag) Split(first, last int64) Bag {
	sub := b
	sub.FirstTaskID = first
	sub.LastTaskID = last
	sub.FromWorker = false
	return sub
}

// Contains reports whether taskID falls within [FirstTaskID, LastTaskID].
func (b Bag) Contains(taskID int64) bool {
	return taskID >= b.FirstTaskID && taskID <= b.LastTaskID
}
