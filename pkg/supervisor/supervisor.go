// Package supervisor implements the Submission Supervisor (C5, spec.md
// §4.5): the submitter-side state machine that turns one submitted
// application into a sequence of TaskBag requests toward the father,
// tracks each task through Ready -> Searching -> Executing -> terminal,
// and retries on timeout up to a configured budget. The submitter side of
// Heartbeat & Monitor (C6, spec.md §4.6) lives alongside it in monitor.go,
// since both share the same per-app-instance state.
package supervisor

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jcelaya/stars/pkg/address"
	"github.com/jcelaya/stars/pkg/config"
	"github.com/jcelaya/stars/pkg/eventloop"
	"github.com/jcelaya/stars/pkg/metrics"
	"github.com/jcelaya/stars/pkg/proto"
	"github.com/jcelaya/stars/pkg/taskmodel"
)

// appState is the Submission Supervisor's per-application-instance
// bookkeeping, spec.md §4.5: a SubmissionRecord plus the two maps the spec
// calls out by name alongside it, "remoteTasksPerWorker" and
// "heartbeatTimer". These live here rather than inside
// taskmodel.SubmissionRecord itself so pkg/taskmodel stays free of an
// eventloop.TimerID dependency.
type appState struct {
	record *taskmodel.SubmissionRecord

	remoteTasksPerWorker map[address.Address]int
	heartbeatTimer       map[address.Address]eventloop.TimerID
	requestTimer         map[int64]eventloop.TimerID

	submittedAt time.Time
}

func newAppState(appID string, req taskmodel.Description, numTasks int, now time.Time) *appState {
	return &appState{
		record:               taskmodel.NewSubmissionRecord(appID, req, numTasks),
		remoteTasksPerWorker: make(map[address.Address]int),
		heartbeatTimer:       make(map[address.Address]eventloop.TimerID),
		requestTimer:         make(map[int64]eventloop.TimerID),
		submittedAt:          now,
	}
}

// Supervisor is one node's Submission Supervisor plus the submitter side
// of Heartbeat & Monitor.
type Supervisor struct {
	log     zerolog.Logger
	metrics *metrics.Registry
	loop    *eventloop.Loop
	self    address.Address

	maxTasksPerRequest int
	requestTimeout     time.Duration
	submitRetries      int
	heartbeat          time.Duration

	apps map[string]*appState

	// requestOwner maps a minted requestId back to its owning appId, since
	// a TaskMonitor entry names only a requestId (unique per requester,
	// not per app) and may arrive long after the request that placed the
	// task has been resolved out of PendingRequests.
	requestOwner map[int64]string

	fatherChanging bool
	deferred       []func()

	nextRequestID int64

	// SendBag delivers a TaskBag toward dst, spec.md §4.5 steps 1-2.
	SendBag func(dst address.Address, msg proto.TaskBagMsg)
	// FatherAddress reports the current father to route requests toward,
	// bound to the node's overlay (spec.md §6). A Null result means this
	// node is the tree root; node wiring decides what that means for
	// SendBag (typically a direct local Dispatcher.OnTaskBag call).
	FatherAddress func() address.Address
	// OnAppFinished reports a completed application's realised slowness,
	// the supplemented feature from SPEC_FULL.md Part D.
	OnAppFinished func(appID string, record *taskmodel.SubmissionRecord)
}

// New constructs a Supervisor bound to self's node-local loop.
func New(self address.Address, cfg *config.Config, loop *eventloop.Loop, log zerolog.Logger, reg *metrics.Registry) *Supervisor {
	return &Supervisor{
		log:                log.With().Str("component", "supervisor").Uint64("node", self.Uint64()).Logger(),
		metrics:            reg,
		loop:               loop,
		self:               self,
		maxTasksPerRequest: cfg.Dispatch.MaxTasksPerRequest,
		requestTimeout:     cfg.Dispatch.RequestTimeout,
		submitRetries:      cfg.Dispatch.SubmitRetries,
		heartbeat:          cfg.Dispatch.Heartbeat,
		apps:               make(map[string]*appState),
		requestOwner:       make(map[int64]string),
	}
}

// Submit implements spec.md §4.5's submit(app): mints a fresh appId,
// installs a SubmissionRecord for numTasks (all starting Ready) and issues
// the first sendRequest.
func (s *Supervisor) Submit(req taskmodel.Description, numTasks int) string {
	appID := uuid.NewString()
	s.apps[appID] = newAppState(appID, req, numTasks, s.loop.Now())
	s.sendRequest(appID, 0)
	return appID
}

// Record exposes the live SubmissionRecord for appID, mainly for the admin
// API and tests; nil if appID is unknown.
func (s *Supervisor) Record(appID string) *taskmodel.SubmissionRecord {
	app, ok := s.apps[appID]
	if !ok {
		return nil
	}
	return app.record
}

// AppIDs lists every application this Supervisor currently tracks, for the
// admin API's submission-table listing (SPEC_FULL.md Part C).
func (s *Supervisor) AppIDs() []string {
	out := make([]string, 0, len(s.apps))
	for id := range s.apps {
		out = append(out, id)
	}
	return out
}

// firstReadyRun finds the first maximal contiguous run of Ready task ids
// (submission order is ascending id order), capped at maxN. A bag's wire
// format names its tasks as a contiguous [first,last] range — the worker
// derives each admitted clientTaskId arithmetically from FirstTaskID — so
// a request can only ever cover a run of ids that are actually contiguous,
// not an arbitrary Ready subset.
func firstReadyRun(r *taskmodel.SubmissionRecord, maxN int) (first, last int64, ok bool) {
	ready := r.TasksInState(taskmodel.Ready)
	if len(ready) == 0 {
		return 0, 0, false
	}
	first = ready[0]
	last = first
	count := 1
	for _, id := range ready[1:] {
		if id != last+1 || count >= maxN {
			break
		}
		last = id
		count++
	}
	return first, last, true
}

// sendRequest implements spec.md §4.5 steps 1-2: collect up to
// maxTasksPerRequest contiguous Ready tasks, mint a fresh requestId, mark
// them Searching, arm a requestTimeout and forward the bag toward the
// father (or defer it if the overlay is currently restructuring).
func (s *Supervisor) sendRequest(appID string, retry int) {
	app, ok := s.apps[appID]
	if !ok {
		return
	}
	first, last, ok := firstReadyRun(app.record, s.maxTasksPerRequest)
	if !ok {
		s.finalizeIfDone(appID)
		return
	}

	s.nextRequestID++
	requestID := s.nextRequestID
	s.requestOwner[requestID] = appID

	taskIDs := make([]int64, 0, last-first+1)
	for id := first; id <= last; id++ {
		app.record.Task(id).State = taskmodel.Searching
		taskIDs = append(taskIDs, id)
	}
	app.record.PendingRequests[requestID] = &taskmodel.RequestState{
		RequestID: requestID,
		TaskIDs:   taskIDs,
		SentAt:    s.loop.Now(),
		Retry:     retry,
	}
	s.armRequestTimeout(appID, requestID)

	bag := taskmodel.Bag{
		Requester:       s.self,
		RequestID:       requestID,
		FirstTaskID:     first,
		LastTaskID:      last,
		MinRequirements: app.record.Requirements,
		FromWorker:      true,
	}
	s.dispatch(bag)
}

// RouteUnplaced implements the requester side of the root dispatcher's
// "return them to the requester" path (spec.md §4.4 step 5, IBP/DP only):
// resolve bag.RequestID back to its owning application and run the same
// retry/abandon logic a requestTimeout would, immediately rather than
// waiting out the timer for a request that has already failed to place.
func (s *Supervisor) RouteUnplaced(bag taskmodel.Bag) {
	appID, ok := s.requestOwner[bag.RequestID]
	if !ok {
		return
	}
	s.cancelRequestTimeout(appID, bag.RequestID)
	s.onRequestTimeout(appID, bag.RequestID)
}

func (s *Supervisor) dispatch(bag taskmodel.Bag) {
	if s.fatherChanging {
		s.deferred = append(s.deferred, func() { s.dispatch(bag) })
		return
	}
	if s.SendBag == nil {
		return
	}
	dst := address.Null
	if s.FatherAddress != nil {
		dst = s.FatherAddress()
	}
	s.SendBag(dst, proto.TaskBagMsg{Bag: bag, RequestID: bag.RequestID})
}

func (s *Supervisor) armRequestTimeout(appID string, requestID int64) {
	app := s.apps[appID]
	at := s.loop.Now().Add(s.requestTimeout)
	app.requestTimer[requestID] = s.loop.ArmTimer(at, func(now time.Time) {
		s.onRequestTimeout(appID, requestID)
	})
}

func (s *Supervisor) cancelRequestTimeout(appID string, requestID int64) {
	app, ok := s.apps[appID]
	if !ok {
		return
	}
	if id, ok := app.requestTimer[requestID]; ok {
		s.loop.CancelTimer(id)
		delete(app.requestTimer, requestID)
	}
}

// onRequestTimeout implements spec.md §4.5 step 4: tasks still Searching
// under requestID go back to Ready, and the request is retried
// (sendRequest with Retry+1) up to submitRetries, beyond which they are
// abandoned as permanently Aborted (spec.md §7's Fatal per-task kind).
func (s *Supervisor) onRequestTimeout(appID string, requestID int64) {
	app, ok := s.apps[appID]
	if !ok {
		return
	}
	rs, ok := app.record.PendingRequests[requestID]
	if !ok {
		return
	}
	delete(app.record.PendingRequests, requestID)
	delete(app.requestTimer, requestID)

	for _, id := range rs.TaskIDs {
		if t := app.record.Task(id); t != nil && t.State == taskmodel.Searching {
			t.State = taskmodel.Ready
		}
	}

	if rs.Retry < s.submitRetries {
		if s.metrics != nil {
			s.metrics.RetriesIssued.Add(1)
		}
		s.sendRequest(appID, rs.Retry+1)
		return
	}

	for _, id := range rs.TaskIDs {
		if t := app.record.Task(id); t != nil && t.State == taskmodel.Ready {
			t.State = taskmodel.TaskAborted
		}
	}
	s.finalizeIfDone(appID)
}

// RouteAccept resolves msg.RequestID back to its owning application before
// applying OnAccept, for transport-level delivery where the wire message
// carries only a requestId (spec.md §4.5 step 3's Accept has no appId
// field of its own).
func (s *Supervisor) RouteAccept(worker address.Address, msg proto.Accept) {
	appID, ok := s.requestOwner[msg.RequestID]
	if !ok {
		return
	}
	s.OnAccept(worker, appID, msg)
}

// OnAccept implements spec.md §4.5 step 3: a worker has admitted
// [msg.FirstTaskID, msg.LastTaskID] of requestID. Move those tasks
// Searching -> Executing, credit the worker's remoteTasksPerWorker and
// install/refresh its heartbeatDeadline liveness timer at 2.5x the
// interval the Accept itself advertises (spec.md §4.6: the worker's own
// value, so asymmetric configurations converge to it, not this node's
// local default).
func (s *Supervisor) OnAccept(worker address.Address, appID string, msg proto.Accept) {
	app, ok := s.apps[appID]
	if !ok {
		return
	}
	rs, ok := app.record.PendingRequests[msg.RequestID]
	if !ok {
		return
	}

	accepted := 0
	for id := msg.FirstTaskID; id <= msg.LastTaskID; id++ {
		t := app.record.Task(id)
		if t == nil || t.State != taskmodel.Searching {
			continue
		}
		t.State = taskmodel.Executing
		t.AssignedWorker = worker
		accepted++
	}
	if accepted > 0 {
		app.remoteTasksPerWorker[worker] += accepted
		s.armHeartbeatDeadline(appID, worker, msg.HeartbeatInterval)
	}

	// Anything in rs.TaskIDs outside [FirstTaskID,LastTaskID] was not
	// accepted by this worker; leave the request pending so its own
	// requestTimeout eventually re-readies and retries just that
	// remainder. Only once the whole range is covered is the request done.
	if msg.FirstTaskID <= rs.TaskIDs[0] && msg.LastTaskID >= rs.TaskIDs[len(rs.TaskIDs)-1] {
		delete(app.record.PendingRequests, msg.RequestID)
		s.cancelRequestTimeout(appID, msg.RequestID)
	}
}

func (s *Supervisor) computeFinalSlowness(app *appState) float64 {
	if app.record.Requirements.AppLength <= 0 {
		return 0
	}
	if len(app.record.TasksInState(taskmodel.TaskFinished)) == 0 {
		return 0
	}
	elapsed := s.loop.Now().Sub(app.submittedAt).Seconds()
	return elapsed / app.record.Requirements.AppLength
}

func (s *Supervisor) finalizeIfDone(appID string) {
	app, ok := s.apps[appID]
	if !ok || app.record.Finalized {
		return
	}
	if !app.record.Done() {
		return
	}
	app.record.Finalized = true
	app.record.FinalSlowness = s.computeFinalSlowness(app)
	if s.OnAppFinished != nil {
		s.OnAppFinished(appID, app.record)
	}
}

// SetFatherChanging mirrors localsched/dispatcher's own handling of the
// overlay's onFatherChanging/onFatherChanged events (spec.md §6): while
// true, every sendRequest is buffered instead of dispatched; on resume the
// buffer replays in order.
func (s *Supervisor) SetFatherChanging(changing bool) {
	s.fatherChanging = changing
	if changing {
		return
	}
	replay := s.deferred
	s.deferred = nil
	for _, fn := range replay {
		fn()
	}
}
