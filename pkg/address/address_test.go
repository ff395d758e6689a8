package address_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jcelaya/stars/pkg/address"
)

func TestNullAddress(t *testing.T) {
	require.True(t, address.Null.IsNull())
	require.True(t, address.Address{}.IsNull())
	require.False(t, address.New(1).IsNull())
}

func TestOrdering(t *testing.T) {
	a := address.New(1)
	b := address.New(2)

	require.True(t, a.Less(b))
	require.False(t, b.Less(a))
	require.Equal(t, -1, a.Compare(b))
	require.Equal(t, 1, b.Compare(a))
	require.Equal(t, 0, a.Compare(address.New(1)))
}

func TestEquality(t *testing.T) {
	require.True(t, address.New(42).Equal(address.New(42)))
	require.False(t, address.New(42).Equal(address.New(43)))
}
