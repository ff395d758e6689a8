package dispatcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jcelaya/stars/pkg/address"
)

func TestDedupCacheSwallowsWithinWindow(t *testing.T) {
	c := newDedupCache(8, time.Minute)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	requester := address.New(1)

	require.False(t, c.SeenRecently(requester, 10, now))
	require.True(t, c.SeenRecently(requester, 10, now.Add(30*time.Second)))
}

func TestDedupCacheTreatsEntryOutsideWindowAsFresh(t *testing.T) {
	c := newDedupCache(8, time.Minute)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	requester := address.New(1)

	require.False(t, c.SeenRecently(requester, 10, now))
	require.False(t, c.SeenRecently(requester, 10, now.Add(2*time.Minute)))
}

func TestDedupCacheEvictsLeastRecentlyUsedPastCapacity(t *testing.T) {
	c := newDedupCache(2, time.Hour)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	requester := address.New(1)

	c.SeenRecently(requester, 1, now)
	c.SeenRecently(requester, 2, now)
	c.SeenRecently(requester, 3, now) // evicts requestID 1, the LRU entry

	require.False(t, c.SeenRecently(requester, 1, now), "evicted entry must be treated as unseen")
	require.True(t, c.SeenRecently(requester, 2, now))
	require.True(t, c.SeenRecently(requester, 3, now))
}

func TestDedupCacheDistinguishesByRequesterAndID(t *testing.T) {
	c := newDedupCache(8, time.Hour)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.False(t, c.SeenRecently(address.New(1), 10, now))
	require.False(t, c.SeenRecently(address.New(2), 10, now), "different requester, same requestID must not collide")
}
