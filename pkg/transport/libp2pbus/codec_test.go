package libp2pbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jcelaya/stars/pkg/address"
	"github.com/jcelaya/stars/pkg/proto"
	"github.com/jcelaya/stars/pkg/summary"
	"github.com/jcelaya/stars/pkg/taskmodel"
)

func TestEncodeDecodeTaskBagMsg(t *testing.T) {
	in := proto.TaskBagMsg{
		Bag: taskmodel.Bag{
			Requester:       address.New(7),
			RequestID:       42,
			FirstTaskID:     0,
			LastTaskID:      9,
			MinRequirements: taskmodel.Description{Length: 1, MaxMemory: 512, MaxDisk: 1024},
			ForWorker:       true,
		},
		RequestID: 42,
	}

	data, err := encode(in)
	require.NoError(t, err)

	out, err := decode(data)
	require.NoError(t, err)
	got, ok := out.(proto.TaskBagMsg)
	require.True(t, ok)
	require.Equal(t, in, got)
}

func TestEncodeDecodeAccept(t *testing.T) {
	in := proto.Accept{RequestID: 3, FirstTaskID: 1, LastTaskID: 4, HeartbeatInterval: 30 * time.Second}

	data, err := encode(in)
	require.NoError(t, err)
	out, err := decode(data)
	require.NoError(t, err)
	got, ok := out.(proto.Accept)
	require.True(t, ok)
	require.Equal(t, in, got)
}

func TestEncodeDecodeTaskMonitor(t *testing.T) {
	in := proto.TaskMonitor{
		Worker:            address.New(5),
		HeartbeatInterval: 10 * time.Second,
		Entries: []proto.MonitorEntry{
			{ClientRequestID: 1, ClientTaskID: 2, State: taskmodel.Finished},
			{ClientRequestID: 1, ClientTaskID: 3, State: taskmodel.Aborted},
		},
	}

	data, err := encode(in)
	require.NoError(t, err)
	out, err := decode(data)
	require.NoError(t, err)
	got, ok := out.(proto.TaskMonitor)
	require.True(t, ok)
	require.Equal(t, in, got)
}

func TestEncodeDecodeBasicSummary(t *testing.T) {
	in := summary.BasicFromWorker(true).WithSeq(9).WithFromScheduler(true)

	data, err := encode(in)
	require.NoError(t, err)
	out, err := decode(data)
	require.NoError(t, err)
	got, ok := out.(summary.Basic)
	require.True(t, ok)
	require.True(t, in.Equal(got))
	require.Equal(t, uint32(9), got.Seq())
	require.True(t, got.FromScheduler())
}

func TestEncodeDecodeSlownessSummaryWithZAFunction(t *testing.T) {
	in := summary.SlownessFromWorker(2048, 4096, 1.5, summary.NewZAFunction(1.5)).WithSeq(3)

	data, err := encode(in)
	require.NoError(t, err)
	out, err := decode(data)
	require.NoError(t, err)
	got, ok := out.(summary.Slowness)
	require.True(t, ok)
	require.True(t, in.Equal(got))
}

func TestEncodeUnsupportedMessageType(t *testing.T) {
	_, err := encode("not a real message")
	require.Error(t, err)
}

func TestDecodeUnknownKind(t *testing.T) {
	_, err := decode([]byte(`{"kind":"bogus","body":{}}`))
	require.Error(t, err)
}
