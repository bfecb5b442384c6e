package endpoint

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLRUAddOrUpdateAndTryGet(t *testing.T) {
	c, err := NewLRU(2)
	require.NoError(t, err)

	_, ok := c.TryGet("alice")
	require.False(t, ok)

	c.AddOrUpdate("alice", Endpoint{IP: 0x7f000001, Port: 2234})
	ep, ok := c.TryGet("alice")
	require.True(t, ok)
	require.EqualValues(t, 2234, ep.Port)
}

func TestLRUEvictsLeastRecentlyUsed(t *testing.T) {
	c, err := NewLRU(1)
	require.NoError(t, err)

	c.AddOrUpdate("alice", Endpoint{IP: 1, Port: 1})
	c.AddOrUpdate("bob", Endpoint{IP: 2, Port: 2})

	_, ok := c.TryGet("alice")
	require.False(t, ok)

	_, ok = c.TryGet("bob")
	require.True(t, ok)
}

func TestLRUInvalidate(t *testing.T) {
	c, err := NewLRU(4)
	require.NoError(t, err)

	c.AddOrUpdate("alice", Endpoint{IP: 1, Port: 1})
	c.Invalidate("alice")

	_, ok := c.TryGet("alice")
	require.False(t, ok)
}

func TestOfflineSentinel(t *testing.T) {
	require.True(t, Endpoint{}.IsOffline())
	require.False(t, Endpoint{IP: 1}.IsOffline())
}

func TestNewLRUDefaultsNonPositiveCapacity(t *testing.T) {
	c, err := NewLRU(0)
	require.NoError(t, err)
	require.NotNil(t, c)
}
