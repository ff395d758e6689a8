package libp2pbus

import (
	"encoding/json"
	"fmt"

	"github.com/jcelaya/stars/pkg/proto"
	"github.com/jcelaya/stars/pkg/summary"
	"github.com/jcelaya/stars/pkg/transport"
)

// envelope is the only thing that actually crosses a libp2p stream: a kind
// tag plus the JSON body of one of the scheduling core's message types
// (transport.Message is declared interface{} precisely so the core stays
// unaware of this). Summary values need their own kind because
// summary.Summary carries unexported meta fields and payload interfaces
// that encoding/json cannot round-trip on its own; see wireSummary below.
type envelope struct {
	Kind string          `json:"kind"`
	Body json.RawMessage `json:"body"`
}

const (
	kindTaskBag     = "taskbag"
	kindAccept      = "accept"
	kindTaskMonitor = "monitor"
	kindSummary     = "summary"
)

// encode turns one transport.Message into the bytes written to a stream.
func encode(msg transport.Message) ([]byte, error) {
	var kind string
	var body interface{}

	switch m := msg.(type) {
	case proto.TaskBagMsg:
		kind, body = kindTaskBag, m
	case *proto.TaskBagMsg:
		kind, body = kindTaskBag, *m
	case proto.Accept:
		kind, body = kindAccept, m
	case *proto.Accept:
		kind, body = kindAccept, *m
	case proto.TaskMonitor:
		kind, body = kindTaskMonitor, m
	case *proto.TaskMonitor:
		kind, body = kindTaskMonitor, *m
	case summary.Summary:
		kind, body = kindSummary, toWireSummary(m)
	default:
		return nil, fmt.Errorf("libp2pbus: unsupported message type %T", msg)
	}

	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("libp2pbus: marshalling %s body: %w", kind, err)
	}
	return json.Marshal(envelope{Kind: kind, Body: bodyBytes})
}

// decode is the inverse of encode, returning the same concrete value type
// encode accepted (by value, never a pointer, matching how the scheduling
// core's handlers already take proto.* arguments).
func decode(data []byte) (transport.Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("libp2pbus: unmarshalling envelope: %w", err)
	}

	switch env.Kind {
	case kindTaskBag:
		var m proto.TaskBagMsg
		if err := json.Unmarshal(env.Body, &m); err != nil {
			return nil, fmt.Errorf("libp2pbus: unmarshalling taskbag: %w", err)
		}
		return m, nil
	case kindAccept:
		var m proto.Accept
		if err := json.Unmarshal(env.Body, &m); err != nil {
			return nil, fmt.Errorf("libp2pbus: unmarshalling accept: %w", err)
		}
		return m, nil
	case kindTaskMonitor:
		var m proto.TaskMonitor
		if err := json.Unmarshal(env.Body, &m); err != nil {
			return nil, fmt.Errorf("libp2pbus: unmarshalling monitor: %w", err)
		}
		return m, nil
	case kindSummary:
		var w wireSummary
		if err := json.Unmarshal(env.Body, &w); err != nil {
			return nil, fmt.Errorf("libp2pbus: unmarshalling summary: %w", err)
		}
		return w.toSummary()
	default:
		return nil, fmt.Errorf("libp2pbus: unknown envelope kind %q", env.Kind)
	}
}

// wireSummary is the JSON-safe projection of a summary.Summary: its meta
// (Seq/FromScheduler) pulled out through the interface's own accessors
// since summary.meta is unexported, its Variant tag so the receiver knows
// which concrete type to rebuild, and its clusters with the payload
// decoded through a second Kind tag (ldelta/za/none) because
// summary.ClusterPayload is itself an interface.
type wireSummary struct {
	Variant       summary.Variant `json:"variant"`
	Seq           uint32          `json:"seq"`
	FromScheduler bool            `json:"fromScheduler"`
	Free          int             `json:"free,omitempty"`
	Busy          int             `json:"busy,omitempty"`
	Clusters      []wireCluster   `json:"clusters,omitempty"`
}

type wireCluster struct {
	Bound         []float64            `json:"bound"`
	Loss          []float64            `json:"loss"`
	Count         int                  `json:"count"`
	PayloadKind   string               `json:"payloadKind,omitempty"`
	LDelta        *summary.LDeltaFunction `json:"ldelta,omitempty"`
	ZA            *summary.ZAFunction     `json:"za,omitempty"`
}

func toWireClusters(cs []summary.Cluster) []wireCluster {
	out := make([]wireCluster, len(cs))
	for i, c := range cs {
		wc := wireCluster{Bound: c.Bound, Loss: c.Loss, Count: c.Count}
		switch p := c.Payload.(type) {
		case *summary.LDeltaFunction:
			wc.PayloadKind = "ldelta"
			wc.LDelta = p
		case *summary.ZAFunction:
			wc.PayloadKind = "za"
			wc.ZA = p
		}
		out[i] = wc
	}
	return out
}

func (wc wireCluster) toCluster() summary.Cluster {
	c := summary.Cluster{Bound: wc.Bound, Loss: wc.Loss, Count: wc.Count}
	switch wc.PayloadKind {
	case "ldelta":
		c.Payload = wc.LDelta
	case "za":
		c.Payload = wc.ZA
	}
	return c
}

func toWireSummary(s summary.Summary) wireSummary {
	w := wireSummary{
		Variant:       s.Variant(),
		Seq:           s.Seq(),
		FromScheduler: s.FromScheduler(),
	}
	switch v := s.(type) {
	case summary.Basic:
		w.Free, w.Busy = v.Free, v.Busy
	case summary.QueueBalancing:
		w.Clusters = toWireClusters(v.Clusters)
	case summary.Deadline:
		w.Clusters = toWireClusters(v.Clusters)
	case summary.Slowness:
		w.Clusters = toWireClusters(v.Clusters)
	}
	return w
}

func (w wireSummary) toSummary() (summary.Summary, error) {
	var s summary.Summary
	switch w.Variant {
	case summary.VariantBasic:
		s = summary.Basic{Free: w.Free, Busy: w.Busy}
	case summary.VariantQueueBalancing:
		clusters := make([]summary.Cluster, len(w.Clusters))
		for i, wc := range w.Clusters {
			clusters[i] = wc.toCluster()
		}
		s = summary.QueueBalancing{Clusters: clusters}
	case summary.VariantDeadline:
		clusters := make([]summary.Cluster, len(w.Clusters))
		for i, wc := range w.Clusters {
			clusters[i] = wc.toCluster()
		}
		s = summary.Deadline{Clusters: clusters}
	case summary.VariantSlowness:
		clusters := make([]summary.Cluster, len(w.Clusters))
		for i, wc := range w.Clusters {
			clusters[i] = wc.toCluster()
		}
		s = summary.Slowness{Clusters: clusters}
	default:
		return nil, fmt.Errorf("libp2pbus: unknown summary variant %d", w.Variant)
	}
	return s.WithSeq(w.Seq).WithFromScheduler(w.FromScheduler), nil
}
