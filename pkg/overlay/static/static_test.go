package static_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jcelaya/stars/pkg/address"
	"github.com/jcelaya/stars/pkg/config"
	"github.com/jcelaya/stars/pkg/overlay"
	"github.com/jcelaya/stars/pkg/overlay/static"
)

func TestNewBuildsFixedShapeFromConfig(t *testing.T) {
	o := static.New(config.TreeConfig{
		Father:       1,
		Children:     []uint64{2, 3},
		LeafChildren: []uint64{3},
	})

	require.Equal(t, address.New(1), o.FatherAddress())
	require.Equal(t, []address.Address{address.New(2), address.New(3)}, o.Children())
	require.False(t, o.IsLeaf())
	require.False(t, o.IsLeafChild(address.New(2)))
	require.True(t, o.IsLeafChild(address.New(3)))
}

func TestRootHasNoFatherAndIsLeafWithNoChildren(t *testing.T) {
	o := static.New(config.TreeConfig{})

	require.Equal(t, address.Null, o.FatherAddress())
	require.Empty(t, o.Children())
	require.True(t, o.IsLeaf())
}

func TestSubscribeFansOutToEveryRegistration(t *testing.T) {
	o := static.New(config.TreeConfig{Father: 1})

	var calls []int
	o.Subscribe(overlay.Events{
		OnFatherChanged: func(bool) { calls = append(calls, 1) },
	})
	o.Subscribe(overlay.Events{
		OnFatherChanged: func(bool) { calls = append(calls, 2) },
	})

	// The overlay is static: neither listener is ever invoked, but both
	// registrations must be retained rather than the second overwriting
	// the first.
	require.Empty(t, calls)
}
