// Package static implements overlay.Overlay from a fixed config.TreeConfig:
// one father, a set of children and which of those children are
// themselves leaf workers, all declared up front and immutable for the
// process lifetime. It exists only to make cmd/stars-node runnable
// against a real fixed-shape deployment; building and repairing the
// aggregation tree itself (peer discovery, father election, child
// attachment on failure) remains explicitly out of scope for this module
// (spec.md Non-goals) and is left to whatever concrete Overlay a real
// cluster-management layer supplies instead.
package static

import (
	"github.com/jcelaya/stars/pkg/address"
	"github.com/jcelaya/stars/pkg/config"
	"github.com/jcelaya/stars/pkg/overlay"
)

// Overlay is a static overlay.Overlay: FatherAddress and Children never
// change after New, so OnFatherChanging/OnFatherChanged/
// OnStructureChanging/OnStructureChanged are registered but never
// invoked. Subscribe accumulates every registration (rather than
// overwriting an earlier one), matching the multi-listener assumption
// pkg/node's wiring relies on.
type Overlay struct {
	father   address.Address
	children []address.Address
	leaves   map[address.Address]bool

	listeners []overlay.Events
}

var _ overlay.Overlay = (*Overlay)(nil)

// New builds a static Overlay from cfg.
func New(cfg config.TreeConfig) *Overlay {
	o := &Overlay{
		father: address.New(cfg.Father),
		leaves: make(map[address.Address]bool, len(cfg.LeafChildren)),
	}
	for _, id := range cfg.Children {
		o.children = append(o.children, address.New(id))
	}
	for _, id := range cfg.LeafChildren {
		o.leaves[address.New(id)] = true
	}
	return o
}

func (o *Overlay) FatherAddress() address.Address { return o.father }

func (o *Overlay) Children() []address.Address { return o.children }

func (o *Overlay) IsLeaf() bool { return len(o.children) == 0 }

func (o *Overlay) IsLeafChild(addr address.Address) bool { return o.leaves[addr] }

func (o *Overlay) Subscribe(e overlay.Events) {
	o.listeners = append(o.listeners, e)
}
