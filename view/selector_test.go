package view_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maxpoletaev/cyclon/view"
)

func viewWithPeers(t *testing.T, addrs ...string) *view.View {
	t.Helper()

	v := view.NewView(self(), len(addrs))

	nodes := make([]view.NodeDescriptor, 0, len(addrs))
	for i, addr := range addrs {
		nodes = append(nodes, view.NewNodeDescriptor(addr, uint32(i)))
	}

	v.RxNodes(nodes)

	return v
}

func TestSubscriber_Tail(t *testing.T) {
	v := viewWithPeers(t, "10.0.0.2:4000", "10.0.0.3:4000", "10.0.0.4:4000")

	sub, err := v.CreateSubscriber("sub", view.Tail, nil)
	require.NoError(t, err)

	// The view orders received nodes as they arrived, so the last one
	// received (highest explicit age in this test) is the tail.
	nd, err := sub.Select()
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.4:4000", nd.Address())
}

func TestSubscriber_UniformRandomNoReplacement_CoversAllBeforeRepeating(t *testing.T) {
	v := viewWithPeers(t, "10.0.0.2:4000", "10.0.0.3:4000", "10.0.0.4:4000")

	sub, err := v.CreateSubscriber("sub", view.UniformRandomNoReplacement, nil)
	require.NoError(t, err)

	seen := make(map[string]int)

	for i := 0; i < 3; i++ {
		nd, err := sub.Select()
		require.NoError(t, err)
		seen[nd.Address()]++
	}

	assert.Len(t, seen, 3)

	for addr, count := range seen {
		assert.Equal(t, 1, count, "address %s selected more than once in one cycle", addr)
	}
}

func TestSubscriber_Logged(t *testing.T) {
	v := viewWithPeers(t, "10.0.0.2:4000")
	log := view.NewVectorLog()

	sub, err := v.CreateSubscriber("sub-1", view.LoggedUniformRandom, log)
	require.NoError(t, err)

	nd, err := sub.Select()
	require.NoError(t, err)

	entries := log.Snapshot()
	require.Len(t, entries, 1)
	assert.Equal(t, "sub-1", entries[0].SubscriberID)
	assert.Equal(t, nd.Address(), entries[0].Address)
}

func TestSubscriber_NotLogged_NoLogWrite(t *testing.T) {
	v := viewWithPeers(t, "10.0.0.2:4000")
	log := view.NewVectorLog()

	sub, err := v.CreateSubscriber("sub-1", view.UniformRandom, log)
	require.NoError(t, err)

	_, err = sub.Select()
	require.NoError(t, err)

	assert.Empty(t, log.Snapshot())
}

func TestSubscriber_Logged_RecordsEmptyAddressOnFailedSelect(t *testing.T) {
	v := view.NewView(self(), 8)
	log := view.NewVectorLog()

	sub, err := v.CreateSubscriber("sub-1", view.LoggedTail, log)
	require.NoError(t, err)

	_, err = sub.Select()
	assert.ErrorIs(t, err, view.ErrEmptyView)

	entries := log.Snapshot()
	require.Len(t, entries, 1)
	assert.Equal(t, "sub-1", entries[0].SubscriberID)
	assert.Equal(t, "", entries[0].Address)
}

func TestSubscriber_UniformRandomNoReplacement_NewPeerSelectableBeforeQueueRefill(t *testing.T) {
	v := view.NewView(self(), 8)

	v.RxNodes([]view.NodeDescriptor{
		view.NewNodeDescriptor("10.0.0.2:4000", 0),
		view.NewNodeDescriptor("10.0.0.3:4000", 1),
	})

	sub, err := v.CreateSubscriber("sub", view.UniformRandomNoReplacement, nil)
	require.NoError(t, err)

	// Draw one address, leaving one still pending in this cycle's queue.
	_, err = sub.Select()
	require.NoError(t, err)

	// A freshly added peer must become selectable immediately, within the
	// same cycle, rather than only after the queue next runs dry.
	require.NoError(t, v.ManualInsert(view.NewNodeDescriptor("10.0.0.4:4000", 0)))

	seen := make(map[string]int)
	for i := 0; i < 2; i++ {
		nd, err := sub.Select()
		require.NoError(t, err)
		seen[nd.Address()]++
	}

	assert.Contains(t, seen, "10.0.0.4:4000")

	for addr, count := range seen {
		assert.Equal(t, 1, count, "address %s selected more than once before the cycle completed", addr)
	}
}
