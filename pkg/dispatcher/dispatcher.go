// Package dispatcher implements the Aggregating Dispatcher (C3, spec.md
// §4.3) and Dispatch Descent (C4, spec.md §4.4): the per-node relay that
// joins neighbour Availability Summaries into a leave-one-out view for
// every other neighbour, rate-limits how often it re-publishes upward, and
// routes incoming TaskBags down toward the best-fitting subtree.
package dispatcher

import (
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/jcelaya/stars/pkg/address"
	"github.com/jcelaya/stars/pkg/config"
	"github.com/jcelaya/stars/pkg/eventloop"
	"github.com/jcelaya/stars/pkg/metrics"
	"github.com/jcelaya/stars/pkg/overlay"
	"github.com/jcelaya/stars/pkg/summary"
	"github.com/jcelaya/stars/pkg/taskmodel"
	"github.com/jcelaya/stars/pkg/transport"
)

type neighborKind int

const (
	kindFather neighborKind = iota
	kindChild
	kindSelf
)

// link is one DispatcherLink, spec.md §4.3: "one DispatcherLink for the
// father plus one per child".
type link struct {
	addr     address.Address
	kind     neighborKind
	received summary.Summary // last message received from this neighbour (empty identity until first arrival)
	pending  summary.Summary // leave-one-out join computed by recompute()
	notified summary.Summary // last value actually sent to this neighbour
}

type bufferedSummary struct {
	src address.Address
	s   summary.Summary
}

// Dispatcher is one node's Aggregating Dispatcher + Dispatch Descent.
type Dispatcher struct {
	log     zerolog.Logger
	metrics *metrics.Registry
	loop    *eventloop.Loop
	bus     transport.Bus
	ovl     overlay.Overlay
	self    address.Address
	variant summary.Variant

	maxClusters int
	maxPieces   int

	father   *link
	children map[address.Address]*link
	childOrder []address.Address
	selfLink *link

	structureChanging bool
	buffered          []bufferedSummary

	limiter      *rate.Limiter
	notifyTimer  eventloop.TimerID
	notifyArmed  bool
	nextSeq      uint32

	dedup *dedupCache // only non-nil for VariantDeadline, spec.md §4.4

	fsp config.FSPConfig

	// OnUnplaced is invoked when this dispatcher is the root and a
	// TaskBag's tasks could not be placed on any child under IBP or DP
	// (spec.md §4.4 step 5, "return them to the requester"); left nil to
	// simply drop them, which is always valid for MMP/FSP.
	OnUnplaced func(bag taskmodel.Bag)
}

// New constructs a Dispatcher bound to self's node-local loop.
func New(self address.Address, variant summary.Variant, cfg *config.Config, ovl overlay.Overlay, bus transport.Bus, loop *eventloop.Loop, log zerolog.Logger, reg *metrics.Registry) *Dispatcher {
	bandwidth := cfg.Dispatch.UpdateBandwidth
	if bandwidth <= 0 {
		bandwidth = 1
	}
	burst := int(bandwidth * 2)
	if burst < 4096 {
		burst = 4096
	}
	d := &Dispatcher{
		log:         log.With().Str("component", "dispatcher").Uint64("node", self.Uint64()).Logger(),
		metrics:     reg,
		loop:        loop,
		bus:         bus,
		ovl:         ovl,
		self:        self,
		variant:     variant,
		maxClusters: cfg.Summary.AvailClusters,
		maxPieces:   maxPiecesFor(variant, cfg),
		children:    make(map[address.Address]*link),
		limiter:     rate.NewLimiter(rate.Limit(bandwidth), burst),
		fsp:         cfg.FSP,
		selfLink:    &link{kind: kindSelf, received: emptyFor(variant), pending: emptyFor(variant)},
	}
	if variant == summary.VariantDeadline {
		d.dedup = newDedupCache(cfg.Dispatch.DedupCacheSize, cfg.Dispatch.DedupCacheWindow)
	}
	d.resyncFromOverlay()
	ovl.Subscribe(overlay.Events{
		OnStructureChanging: d.OnStructureChanging,
		OnStructureChanged:  d.OnStructureChanged,
	})
	return d
}

func maxPiecesFor(v summary.Variant, cfg *config.Config) int {
	switch v {
	case summary.VariantDeadline:
		return cfg.Summary.DPPieces
	case summary.VariantSlowness:
		return cfg.Summary.FSPPieces
	default:
		return 0
	}
}

func emptyFor(v summary.Variant) summary.Summary {
	switch v {
	case summary.VariantBasic:
		return summary.EmptyBasic()
	case summary.VariantQueueBalancing:
		return summary.EmptyQueueBalancing()
	case summary.VariantDeadline:
		return summary.EmptyDeadline()
	case summary.VariantSlowness:
		return summary.EmptySlowness()
	default:
		return summary.EmptyBasic()
	}
}

func (d *Dispatcher) resyncFromOverlay() {
	fatherAddr := d.ovl.FatherAddress()
	if fatherAddr.IsNull() {
		d.father = nil
	} else if d.father == nil || !d.father.addr.Equal(fatherAddr) {
		d.father = &link{addr: fatherAddr, kind: kindFather, received: emptyFor(d.variant), pending: emptyFor(d.variant), notified: emptyFor(d.variant)}
	}

	want := make(map[address.Address]bool)
	for _, c := range d.ovl.Children() {
		want[c] = true
		if _, ok := d.children[c]; !ok {
			d.children[c] = &link{addr: c, kind: kindChild, received: emptyFor(d.variant), pending: emptyFor(d.variant), notified: emptyFor(d.variant)}
			d.childOrder = append(d.childOrder, c)
		}
	}
	kept := d.childOrder[:0]
	for _, c := range d.childOrder {
		if want[c] {
			kept = append(kept, c)
		} else {
			delete(d.children, c)
		}
	}
	d.childOrder = kept
}

// OnLocalSummary wires the Local Scheduler's Upward hook (spec.md §4.2):
// the node's own snapshot participates in recompute() exactly like a
// neighbour's received summary, but has no outbound link of its own.
func (d *Dispatcher) OnLocalSummary(s summary.Summary) {
	d.selfLink.received = s
	d.recompute()
	d.maybeNotify(d.loop.Now())
}

// OnSummary handles an incoming Summary from src, spec.md §4.3 steps 1-4.
func (d *Dispatcher) OnSummary(src address.Address, s summary.Summary) {
	if d.structureChanging {
		d.buffered = append(d.buffered, bufferedSummary{src: src, s: s})
		return
	}
	d.applyIncoming(src, s)
}

func (d *Dispatcher) applyIncoming(src address.Address, s summary.Summary) {
	l := d.linkFor(src)
	if l == nil {
		d.log.Warn().Stringer("src", src).Msg("summary from unknown neighbour, dropping as stale")
		return
	}
	if s.Seq() <= l.received.Seq() {
		return
	}
	l.received = s
	d.recompute()
	d.maybeNotify(d.loop.Now())
}

func (d *Dispatcher) linkFor(addr address.Address) *link {
	if d.father != nil && d.father.addr.Equal(addr) {
		return d.father
	}
	if c, ok := d.children[addr]; ok {
		return c
	}
	return nil
}

// recompute implements spec.md §4.3's "standard leave-one-out aggregation":
// link[X].pending := join of received summaries from all neighbours other
// than X (including the node's own local summary).
func (d *Dispatcher) recompute() {
	outbound := d.outboundLinks()
	for _, l := range outbound {
		joined := emptyFor(d.variant)
		for _, other := range d.allLinks() {
			if other == l {
				continue
			}
			if other.received.IsEmpty() {
				continue
			}
			joined = joined.Join(other.received)
		}
		l.pending = joined
	}
}

func (d *Dispatcher) outboundLinks() []*link {
	var out []*link
	if d.father != nil {
		out = append(out, d.father)
	}
	for _, addr := range d.childOrder {
		out = append(out, d.children[addr])
	}
	return out
}

func (d *Dispatcher) allLinks() []*link {
	out := d.outboundLinks()
	out = append(out, d.selfLink)
	return out
}

// maybeNotify implements spec.md §4.3's rate-limited upward/downward
// publish: for each neighbour whose pending differs from notified, reduce,
// assign the next sequence number, clear fromScheduler, and send; the
// round is bandwidth-accounted via a shared golang.org/x/time/rate
// Limiter standing in for the spec's nextAllowedSendTime field.
func (d *Dispatcher) maybeNotify(now time.Time) {
	if d.structureChanging {
		return
	}

	type pendingSend struct {
		l   *link
		msg summary.Summary
	}
	var toSend []pendingSend
	for _, l := range d.outboundLinks() {
		if l.pending.Equal(l.notified) {
			continue
		}
		toSend = append(toSend, pendingSend{l: l})
	}
	if len(toSend) == 0 {
		return
	}

	total := 0
	for i := range toSend {
		reduced := toSend[i].l.pending.Reduce(d.maxClusters, d.maxPieces)
		toSend[i].msg = reduced
		total += reduced.EncodedSize()
	}

	r := d.limiter.ReserveN(now, total)
	if !r.OK() {
		r.Cancel()
		// total exceeds the limiter's burst outright; send anyway rather
		// than wedge forever on a single oversized round.
	} else if delay := r.DelayFrom(now); delay > 0 {
		r.Cancel()
		d.scheduleRetry(now.Add(delay))
		return
	}

	d.nextSeq++
	for _, ps := range toSend {
		msg := ps.msg.WithSeq(d.nextSeq).WithFromScheduler(false)
		n, err := d.bus.SendMessage(ps.l.addr, msg)
		if err != nil {
			d.log.Warn().Err(err).Stringer("dst", ps.l.addr).Msg("send failed")
			continue
		}
		ps.l.notified = msg
		if d.metrics != nil {
			d.metrics.BytesSentUpstream.Add(float64(n))
			d.metrics.ClustersAfterReduce.WithLabelValues(d.variant.String()).Set(float64(msg.ClusterCount()))
		}
	}
}

// LinkSnapshot is a read-only view of one DispatcherLink, for the admin
// API (SPEC_FULL.md Part C) — never consulted by the scheduling core
// itself.
type LinkSnapshot struct {
	Addr     address.Address
	IsFather bool
	Received summary.Summary
	Pending  summary.Summary
}

// Snapshot reports every link's current state for read-only inspection.
func (d *Dispatcher) Snapshot() []LinkSnapshot {
	links := d.outboundLinks()
	out := make([]LinkSnapshot, 0, len(links))
	for _, l := range links {
		out = append(out, LinkSnapshot{
			Addr:     l.addr,
			IsFather: l.kind == kindFather,
			Received: l.received,
			Pending:  l.pending,
		})
	}
	return out
}

func (d *Dispatcher) scheduleRetry(at time.Time) {
	if d.notifyArmed {
		return
	}
	d.notifyArmed = true
	d.loop.ArmTimer(at, func(now time.Time) {
		d.notifyArmed = false
		d.maybeNotify(now)
	})
}

// OnStructureChanging implements spec.md §6's onStructureChanging
// subscription: suspend aggregation while the overlay mutates.
func (d *Dispatcher) OnStructureChanging() {
	d.structureChanging = true
}

// OnStructureChanged implements spec.md §4.3's structure-commit handling:
// resync the father/child link list, replay buffered summaries as if
// newly arrived, then recompute and maybeNotify.
func (d *Dispatcher) OnStructureChanged(fatherChanged bool, diff overlay.ChildDiff) {
	d.structureChanging = false
	d.resyncFromOverlay()
	if fatherChanged && d.father != nil {
		d.father.received = emptyFor(d.variant)
		d.father.notified = emptyFor(d.variant)
	}

	replay := d.buffered
	d.buffered = nil
	for _, b := range replay {
		d.applyIncoming(b.src, b.s)
	}

	d.recompute()
	d.maybeNotify(d.loop.Now())
}
