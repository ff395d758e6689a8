// Package node wires one STaRS node's C1-C6 components together: the
// Local Scheduler (pkg/localsched), the Aggregating Dispatcher plus
// Dispatch Descent (pkg/dispatcher) and the Submission Supervisor plus
// Heartbeat & Monitor (pkg/supervisor), bound to the external boundaries
// spec.md §6 names (pkg/transport, pkg/overlay, pkg/executor) and to the
// read-only admin surface (pkg/api). Every callback crosses these seams
// by posting onto the node's single eventloop.Loop goroutine, preserving
// the run-to-completion invariant spec.md §5 requires even though
// transport and API requests arrive on their own goroutines.
package node

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/jcelaya/stars/pkg/address"
	"github.com/jcelaya/stars/pkg/api"
	"github.com/jcelaya/stars/pkg/config"
	"github.com/jcelaya/stars/pkg/dispatcher"
	"github.com/jcelaya/stars/pkg/eventloop"
	"github.com/jcelaya/stars/pkg/executor"
	"github.com/jcelaya/stars/pkg/localsched"
	"github.com/jcelaya/stars/pkg/metrics"
	"github.com/jcelaya/stars/pkg/overlay"
	"github.com/jcelaya/stars/pkg/proto"
	"github.com/jcelaya/stars/pkg/summary"
	"github.com/jcelaya/stars/pkg/supervisor"
	"github.com/jcelaya/stars/pkg/taskmodel"
	"github.com/jcelaya/stars/pkg/transport"
)

// Node is one running STaRS node: one eventloop.Loop goroutine driving a
// Local Scheduler, an Aggregating Dispatcher and a Submission Supervisor,
// all bound to the same self address.Address.
type Node struct {
	log  zerolog.Logger
	cfg  *config.Config
	self address.Address

	loop *eventloop.Loop
	bus  transport.Bus
	ovl  overlay.Overlay

	Scheduler  *localsched.Scheduler
	Dispatcher *dispatcher.Dispatcher
	Supervisor *supervisor.Supervisor

	API *api.Server
}

// variantFor maps a node's admission Policy to the Availability Summary
// shape its Aggregating Dispatcher must join and its Local Scheduler must
// publish (spec.md §4.1's four variants are named one-to-one with the
// four policies of §4.2).
func variantFor(p localsched.Policy) summary.Variant {
	switch p {
	case localsched.IBP:
		return summary.VariantBasic
	case localsched.DP:
		return summary.VariantDeadline
	case localsched.FSP:
		return summary.VariantSlowness
	default:
		return summary.VariantQueueBalancing
	}
}

// New constructs a Node bound to cfg, the given overlay/transport/executor
// boundaries and a Prometheus registerer (nil uses an unregistered
// metrics.Registry, the register pkg/metrics's unit tests rely on). loop
// is supplied by the caller rather than built here, like every other
// component constructor in this module (localsched.New, dispatcher.New,
// supervisor.New all take a *eventloop.Loop parameter): a concrete Bus
// such as pkg/transport/libp2pbus.Bus must itself be constructed against
// this same loop before a Node exists, so the loop can't be an internal
// implementation detail of node.New. New does not start the loop or the
// admin API; call Run for that.
func New(cfg *config.Config, ovl overlay.Overlay, bus transport.Bus, exec executor.Executor, loop *eventloop.Loop, promReg prometheus.Registerer, log zerolog.Logger) (*Node, error) {
	policy, err := localsched.ParsePolicy(cfg.Node.Policy)
	if err != nil {
		return nil, fmt.Errorf("node: %w", err)
	}

	self := address.New(cfg.Node.ID)
	variant := variantFor(policy)

	var reg *metrics.Registry
	if promReg != nil {
		reg = metrics.NewRegistry(promReg)
	} else {
		reg = metrics.NewUnregistered()
	}

	sched := localsched.New(self, policy, localsched.Capacity{
		Memory: cfg.Node.Memory,
		Disk:   cfg.Node.Disk,
		Power:  cfg.Node.Power,
	}, cfg, exec, loop, log, reg)

	disp := dispatcher.New(self, variant, cfg, ovl, bus, loop, log, reg)

	sup := supervisor.New(self, cfg, loop, log, reg)

	n := &Node{
		log:        log.With().Str("component", "node").Uint64("node", cfg.Node.ID).Logger(),
		cfg:        cfg,
		self:       self,
		loop:       loop,
		bus:        bus,
		ovl:        ovl,
		Scheduler:  sched,
		Dispatcher: disp,
		Supervisor: sup,
	}

	n.API = api.New(cfg.API, sched, disp, sup, log)

	n.wire()

	return n, nil
}

// wire binds every cross-component callback (spec.md §6's external
// boundaries plus the C2<->C3<->C5 seams internal to one node), and
// installs the single inbound transport handler that demultiplexes
// arriving messages onto the loop goroutine by type.
func (n *Node) wire() {
	// Local Scheduler (C2) -> Aggregating Dispatcher (C3): the worker's
	// own snapshot feeds recompute() exactly like a neighbour's summary
	// (spec.md §4.2 "forwards it upward ... via C3"), and also drives the
	// admin API's /stream/summary websocket feed so a connected client
	// sees the same snapshot the dispatcher just joined.
	n.Scheduler.Upward = func(s summary.Summary) {
		n.Dispatcher.OnLocalSummary(s)
		n.API.PublishSummary(s)
	}

	// C2's Accept/TaskMonitor replies and C5's outbound TaskBag all name
	// a destination address.Address that may be this very node (a
	// single-node deployment, or a submitter that is also the root); in
	// that case deliver in-process instead of round-tripping the bus.
	n.Scheduler.SendAccept = func(dst address.Address, msg proto.Accept) {
		n.sendOrDeliver(dst, msg, func() { n.routeAccept(n.self, msg) })
	}
	n.Scheduler.SendMonitor = func(owner address.Address, msg proto.TaskMonitor) {
		n.sendOrDeliver(owner, msg, func() { n.Supervisor.OnTaskMonitor(n.self, msg) })
	}

	// Submission Supervisor (C5) -> Aggregating Dispatcher (C3): a bag
	// travels toward the father, or straight into this node's own
	// Dispatch Descent if this node is the tree root (FatherAddress
	// returns address.Null, spec.md §6).
	n.Supervisor.FatherAddress = n.ovl.FatherAddress
	n.Supervisor.SendBag = func(dst address.Address, msg proto.TaskBagMsg) {
		if dst.IsNull() {
			n.Dispatcher.OnTaskBag(msg.Bag, msg.RequestID)
			return
		}
		n.sendOrDeliver(dst, msg, func() { n.Dispatcher.OnTaskBag(msg.Bag, msg.RequestID) })
	}

	// Aggregating Dispatcher (C3/C4) root path: an unplaced bag goes back
	// to its requester (spec.md §4.4 step 5, IBP/DP only).
	n.Dispatcher.OnUnplaced = func(bag taskmodel.Bag) {
		n.sendOrDeliver(bag.Requester, proto.Unplaced{Bag: bag}, func() { n.Supervisor.RouteUnplaced(bag) })
	}

	// Overlay (spec.md §6) subscriptions the supervisor itself needs
	// beyond the dispatcher's own (registered inside dispatcher.New).
	n.ovl.Subscribe(overlay.Events{
		OnFatherChanging: func() { n.Supervisor.SetFatherChanging(true) },
		OnFatherChanged:  func(bool) { n.Supervisor.SetFatherChanging(false) },
	})

	n.bus.OnMessage(n.onMessage)
}

// sendOrDeliver routes a message to dst: in-process if dst is this node
// itself, otherwise over the transport Bus. local is invoked instead of
// bus.SendMessage when dst == self.
func (n *Node) sendOrDeliver(dst address.Address, msg transport.Message, local func()) {
	if dst.Equal(n.self) {
		local()
		return
	}
	if _, err := n.bus.SendMessage(dst, msg); err != nil {
		n.log.Warn().Err(err).Stringer("dst", dst).Msg("send failed")
	}
}

// routeAccept resolves an Accept's requestId back to its owning
// application before applying it, since the wire message itself carries
// no appId (spec.md §4.5 step 3).
func (n *Node) routeAccept(worker address.Address, msg proto.Accept) {
	n.Supervisor.RouteAccept(worker, msg)
}

// onMessage demultiplexes one inbound transport message by concrete type
// onto the correct component, then posts the handling onto the loop
// goroutine (spec.md §5: all state mutation happens on the single loop).
func (n *Node) onMessage(src address.Address, msg transport.Message) {
	switch m := msg.(type) {
	case proto.TaskBagMsg:
		n.loop.Post(func(_ time.Time) {
			if m.Bag.ForWorker {
				n.Scheduler.Offer(m.Bag)
				return
			}
			n.Dispatcher.OnTaskBag(m.Bag, m.RequestID)
		})
	case proto.Accept:
		n.loop.Post(func(_ time.Time) { n.routeAccept(src, m) })
	case proto.TaskMonitor:
		n.loop.Post(func(_ time.Time) { n.Supervisor.OnTaskMonitor(src, m) })
	case proto.Unplaced:
		n.loop.Post(func(_ time.Time) { n.Supervisor.RouteUnplaced(m.Bag) })
	case summary.Summary:
		n.loop.Post(func(_ time.Time) { n.Dispatcher.OnSummary(src, m) })
	default:
		n.log.Warn().Str("src", src.String()).Msgf("unrecognised message type %T", msg)
	}
}

// Submit accepts a new application on behalf of a local client, spec.md
// §4.5's submit(app) entry point; must be called from outside the loop
// goroutine, so it is posted like any other external event.
func (n *Node) Submit(req taskmodel.Description, numTasks int) <-chan string {
	out := make(chan string, 1)
	n.loop.Post(func(_ time.Time) {
		out <- n.Supervisor.Submit(req, numTasks)
		close(out)
	})
	return out
}

// Run drives the node's loop and admin API until ctx is cancelled.
func (n *Node) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	if n.API != nil {
		go func() { errCh <- n.API.Start(ctx) }()
	}
	n.loop.Run(ctx)
	select {
	case err := <-errCh:
		return err
	default:
		return nil
	}
}
