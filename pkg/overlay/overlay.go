// Package overlay declares the boundary between the scheduling core and
// whatever builds and maintains the aggregation tree (spec.md §6
// "Overlay"). Building and repairing the tree itself — peer discovery,
// father election, child attachment — is explicitly out of scope for the
// scheduling core; the core only reacts to the events this interface
// delivers.
package overlay

import "github.com/jcelaya/stars/pkg/address"

// ChildDiff describes how the child set changed on a structure commit,
// spec.md §6 "onStructureChanged(fatherChanged, childDiff)".
type ChildDiff struct {
	Added   []address.Address
	Removed []address.Address
}

// Events is the callback set the scheduling core registers with an
// Overlay implementation, spec.md §6: "the core subscribes to
// {onFatherChanging, onFatherChanged(changed), onStructureChanging,
// onStructureChanged(fatherChanged, childDiff)}". Plain function fields,
// not a wide interface, matching this lineage's preference for
// function-typed callbacks at integration seams (see pkg/localsched).
type Events struct {
	OnFatherChanging   func()
	OnFatherChanged    func(changed bool)
	OnStructureChanging func()
	OnStructureChanged func(fatherChanged bool, diff ChildDiff)
}

// Overlay exposes the current aggregation-tree position and lets the core
// subscribe to its mutations (spec.md §6).
type Overlay interface {
	FatherAddress() address.Address
	Children() []address.Address
	IsLeaf() bool
	// IsLeafChild reports whether addr (one of Children()) is itself a
	// worker with no further children, letting Dispatch Descent (spec.md
	// §4.4) mark the final hop forWorker=true (SPEC_FULL.md Part E
	// item 2). Not part of spec.md's literal §6 interface text, but
	// needed by any concrete overlay to answer a question §4.4 assumes
	// is answerable: "the dispatcher at the leaf's immediate parent sets
	// forWorker=true before forwarding to the leaf".
	IsLeafChild(addr address.Address) bool
	Subscribe(Events)
}
