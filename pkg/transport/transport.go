// Package transport declares the reliable, in-order unicast boundary the
// scheduling core depends on (spec.md §6 "Transport"): "a reliable,
// in-order unicast to a pair (nodeAddress, port)". The core never opens a
// socket itself; a concrete Bus (e.g. pkg/transport/libp2pbus) is wired in
// at the node level.
package transport

import "github.com/jcelaya/stars/pkg/address"

// Message is any value a Bus can carry; concrete Bus implementations are
// responsible for encoding it on the wire. The scheduling core sends
// proto.Accept, proto.TaskMonitor, proto.TaskBagMsg and proto.Unplaced by
// value, and summary.Summary values.
type Message interface{}

// OnMessageFunc is the inbound delivery callback, spec.md §6
// "onMessage(src, msg)".
type OnMessageFunc func(src address.Address, msg Message)

// Bus is the reliable in-order unicast boundary.
type Bus interface {
	// SendMessage delivers msg to dst and reports the accounted wire size
	// in bytes, spec.md §6 "sendMessage(dst, msg) -> bytesAccounted" —
	// consulted by the Aggregating Dispatcher's bandwidth cap (§4.3).
	SendMessage(dst address.Address, msg Message) (bytesAccounted int, err error)
	// OnMessage registers the single inbound handler for this node.
	OnMessage(fn OnMessageFunc)
}
