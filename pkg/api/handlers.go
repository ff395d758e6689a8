package api

import (
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"

	"github.com/jcelaya/stars/pkg/summary"
	"github.com/jcelaya/stars/pkg/taskmodel"
)

// summaryJSON is the presentation projection of a summary.Summary. It is
// deliberately separate from pkg/transport/libp2pbus's wireSummary (which
// must round-trip exactly for the wire): this one only needs to render,
// not rebuild, so it skips the payload detail entirely and just reports
// what an operator cares about at a glance.
type summaryJSON struct {
	Variant       string `json:"variant"`
	Seq           uint32 `json:"seq"`
	FromScheduler bool   `json:"fromScheduler"`
	ClusterCount  int    `json:"clusterCount"`
	EncodedSize   int    `json:"encodedSize"`
}

func toSummaryJSON(s summary.Summary) summaryJSON {
	return summaryJSON{
		Variant:       s.Variant().String(),
		Seq:           s.Seq(),
		FromScheduler: s.FromScheduler(),
		ClusterCount:  s.ClusterCount(),
		EncodedSize:   s.EncodedSize(),
	}
}

// handleSummary reports this node's own current Local Scheduler snapshot
// (spec.md §4.2), the same value OnLocalSummary feeds the dispatcher.
func (s *Server) handleSummary(c *gin.Context) {
	if s.sched == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "scheduler not wired"})
		return
	}
	c.JSON(http.StatusOK, toSummaryJSON(s.sched.Snapshot()))
}

type linkJSON struct {
	Addr     string      `json:"addr"`
	IsFather bool        `json:"isFather"`
	Received summaryJSON `json:"received"`
	Pending  summaryJSON `json:"pending"`
}

// handleLinks reports the Aggregating Dispatcher's current link state
// (spec.md §4.3): one entry per father/child DispatcherLink.
func (s *Server) handleLinks(c *gin.Context) {
	if s.disp == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "dispatcher not wired"})
		return
	}
	links := s.disp.Snapshot()
	out := make([]linkJSON, len(links))
	for i, l := range links {
		out[i] = linkJSON{
			Addr:     l.Addr.String(),
			IsFather: l.IsFather,
			Received: toSummaryJSON(l.Received),
			Pending:  toSummaryJSON(l.Pending),
		}
	}
	c.JSON(http.StatusOK, out)
}

type taskJSON struct {
	ClientTaskID   int64  `json:"clientTaskId"`
	State          string `json:"state"`
	AssignedWorker string `json:"assignedWorker,omitempty"`
}

type submissionJSON struct {
	AppID         string     `json:"appId"`
	Finalized     bool       `json:"finalized"`
	FinalSlowness float64    `json:"finalSlowness,omitempty"`
	InFlightCount int        `json:"inFlightCount"`
	Tasks         []taskJSON `json:"tasks"`
}

func toSubmissionJSON(r *taskmodel.SubmissionRecord) submissionJSON {
	tasks := r.Tasks()
	out := make([]taskJSON, len(tasks))
	for i, t := range tasks {
		tj := taskJSON{ClientTaskID: t.ClientTaskID, State: t.State.String()}
		if !t.AssignedWorker.IsNull() {
			tj.AssignedWorker = t.AssignedWorker.String()
		}
		out[i] = tj
	}
	return submissionJSON{
		AppID:         r.AppID,
		Finalized:     r.Finalized,
		FinalSlowness: r.FinalSlowness,
		InFlightCount: r.InFlightCount(),
		Tasks:         out,
	}
}

// handleSubmissions lists every application this node's Submission
// Supervisor currently tracks (spec.md §4.5), sorted by appId for a stable
// listing across polls.
func (s *Server) handleSubmissions(c *gin.Context) {
	if s.sup == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "supervisor not wired"})
		return
	}
	ids := s.sup.AppIDs()
	sort.Strings(ids)
	out := make([]submissionJSON, 0, len(ids))
	for _, id := range ids {
		if r := s.sup.Record(id); r != nil {
			out = append(out, toSubmissionJSON(r))
		}
	}
	c.JSON(http.StatusOK, out)
}

// handleSubmission reports one application's full SubmissionRecord.
func (s *Server) handleSubmission(c *gin.Context) {
	if s.sup == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "supervisor not wired"})
		return
	}
	r := s.sup.Record(c.Param("appID"))
	if r == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown appId"})
		return
	}
	c.JSON(http.StatusOK, toSubmissionJSON(r))
}
