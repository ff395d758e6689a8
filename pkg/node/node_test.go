package node

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/jcelaya/stars/pkg/address"
	"github.com/jcelaya/stars/pkg/config"
	"github.com/jcelaya/stars/pkg/eventloop"
	"github.com/jcelaya/stars/pkg/executor"
	"github.com/jcelaya/stars/pkg/overlay"
	"github.com/jcelaya/stars/pkg/proto"
	"github.com/jcelaya/stars/pkg/summary"
	"github.com/jcelaya/stars/pkg/taskmodel"
	"github.com/jcelaya/stars/pkg/transport"
)

// fakeOverlay is a static aggregation-tree position that fans out every
// Subscribe call instead of overwriting a prior one, matching the
// multi-registration assumption recorded in DESIGN.md for this package
// (both dispatcher.New and Node.wire subscribe independently).
type fakeOverlay struct {
	father   address.Address
	children []address.Address
	leaves   map[address.Address]bool
	events   []overlay.Events
}

func (o *fakeOverlay) FatherAddress() address.Address       { return o.father }
func (o *fakeOverlay) Children() []address.Address          { return o.children }
func (o *fakeOverlay) IsLeaf() bool                          { return len(o.children) == 0 }
func (o *fakeOverlay) IsLeafChild(addr address.Address) bool { return o.leaves[addr] }
func (o *fakeOverlay) Subscribe(e overlay.Events)            { o.events = append(o.events, e) }

type sentMsg struct {
	dst address.Address
	msg transport.Message
}

type fakeBus struct {
	sent []sentMsg
}

func (b *fakeBus) SendMessage(dst address.Address, msg transport.Message) (int, error) {
	b.sent = append(b.sent, sentMsg{dst: dst, msg: msg})
	return 64, nil
}

func (b *fakeBus) OnMessage(fn transport.OnMessageFunc) {}

type fakeHandle struct {
	onChange executor.StateChangeFunc
	taskID   int64
}

func (h *fakeHandle) Run()   {}
func (h *fakeHandle) Abort() { h.onChange(h.taskID, taskmodel.Running, taskmodel.Aborted) }

type fakeExecutor struct {
	nextID  int64
	handles []*fakeHandle
}

func (e *fakeExecutor) CreateTask(owner address.Address, reqID, clientTaskID int64, desc taskmodel.Description, onChange executor.StateChangeFunc) executor.Handle {
	e.nextID++
	h := &fakeHandle{onChange: onChange, taskID: e.nextID}
	e.handles = append(e.handles, h)
	return h
}

func newTestNode(t *testing.T, id uint64, policy string, father address.Address, children ...address.Address) (*Node, *fakeOverlay, *fakeBus, *fakeExecutor) {
	t.Helper()
	cfg := config.Default()
	cfg.Node.ID = id
	cfg.Node.Policy = policy
	cfg.Node.Memory = 1024
	cfg.Node.Disk = 1024
	cfg.Node.Power = 1
	cfg.API.EnableWebsocket = false

	ovl := &fakeOverlay{father: father, children: children, leaves: map[address.Address]bool{}}
	bus := &fakeBus{}
	exec := &fakeExecutor{}
	loop := eventloop.NewLoop(nil, zerolog.Nop(), 16)

	n, err := New(cfg, ovl, bus, exec, loop, nil, zerolog.Nop())
	require.NoError(t, err)
	return n, ovl, bus, exec
}

func TestNewSubscribesOverlayTwice(t *testing.T) {
	_, ovl, _, _ := newTestNode(t, 1, "ibp", address.Null)
	// dispatcher.New registers its own structure-change handling, and
	// Node.wire registers a second set for the supervisor's father-change
	// handling: two independent Subscribe calls, not one overwriting the
	// other.
	require.Len(t, ovl.events, 2)
}

func TestSchedulerUpwardPublishesToFather(t *testing.T) {
	n, _, bus, _ := newTestNode(t, 1, "ibp", address.New(2))

	n.Scheduler.Upward(summary.BasicFromWorker(true))

	require.Len(t, bus.sent, 1)
	require.Equal(t, address.New(2), bus.sent[0].dst)
	_, ok := bus.sent[0].msg.(summary.Summary)
	require.True(t, ok)
}

func TestOnMessageTaskBagForWorkerOffersAndRepliesAccept(t *testing.T) {
	n, _, bus, exec := newTestNode(t, 1, "mmp", address.Null)

	bag := taskmodel.Bag{
		Requester:   address.New(5),
		RequestID:   9,
		FirstTaskID: 0,
		LastTaskID:  2,
		ForWorker:   true,
		MinRequirements: taskmodel.Description{
			Length: 1, MaxMemory: 1, MaxDisk: 1,
		},
	}

	n.onMessage(address.New(5), proto.TaskBagMsg{Bag: bag, RequestID: 9})
	require.True(t, n.loop.RunOnce())

	require.Len(t, exec.handles, 3)
	require.Len(t, bus.sent, 1)
	require.Equal(t, address.New(5), bus.sent[0].dst)
	accept, ok := bus.sent[0].msg.(proto.Accept)
	require.True(t, ok)
	require.Equal(t, int64(9), accept.RequestID)
	require.Equal(t, int64(0), accept.FirstTaskID)
	require.Equal(t, int64(2), accept.LastTaskID)
}

func TestOnMessageAcceptRoutesBackToOwningApplication(t *testing.T) {
	n, _, bus, _ := newTestNode(t, 1, "ibp", address.New(2))

	appID := n.Supervisor.Submit(taskmodel.Description{Length: 1, MaxMemory: 1, MaxDisk: 1}, 3)
	require.Len(t, bus.sent, 1)
	require.Equal(t, address.New(2), bus.sent[0].dst)
	reqMsg, ok := bus.sent[0].msg.(proto.TaskBagMsg)
	require.True(t, ok)

	n.onMessage(address.New(2), proto.Accept{
		RequestID:         reqMsg.RequestID,
		FirstTaskID:       0,
		LastTaskID:        2,
		HeartbeatInterval: 10 * time.Second,
	})
	require.True(t, n.loop.RunOnce())

	rec := n.Supervisor.Record(appID)
	require.NotNil(t, rec)
	require.Len(t, rec.TasksInState(taskmodel.Executing), 3)
	for _, task := range rec.Tasks() {
		require.Equal(t, address.New(2), task.AssignedWorker)
	}
}

func TestOnMessageUnplacedRoutesBackAndRetries(t *testing.T) {
	n, _, bus, _ := newTestNode(t, 1, "dp", address.New(2))

	appID := n.Supervisor.Submit(taskmodel.Description{Length: 1, MaxMemory: 1, MaxDisk: 1}, 2)
	require.Len(t, bus.sent, 1)
	reqMsg, ok := bus.sent[0].msg.(proto.TaskBagMsg)
	require.True(t, ok)

	n.onMessage(address.New(2), proto.Unplaced{Bag: reqMsg.Bag})
	require.True(t, n.loop.RunOnce())

	rec := n.Supervisor.Record(appID)
	require.NotNil(t, rec)
	// onRequestTimeout's immediate replay re-readies the tasks and issues
	// a fresh request (retry 1 of submitRetries), so a second TaskBagMsg
	// should have gone out toward the same father.
	require.Len(t, bus.sent, 2)
	require.Equal(t, address.New(2), bus.sent[1].dst)
}

func TestSendBagToNullFatherDispatchesLocally(t *testing.T) {
	n, _, bus, _ := newTestNode(t, 1, "ibp", address.Null)

	n.Supervisor.Submit(taskmodel.Description{Length: 1, MaxMemory: 1, MaxDisk: 1}, 1)

	// No father: the bag must never hit the transport, since this node is
	// the tree root and Dispatch Descent starts right here in-process.
	require.Empty(t, bus.sent)
}
