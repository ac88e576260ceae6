package gossip

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maxpoletaev/cyclon/view"
)

func testConfig(bindAddr string) *Config {
	conf := DefaultConfig()
	conf.BindAddr = bindAddr
	conf.ViewCapacity = 10
	conf.GossipInterval = time.Hour // no periodic rounds during a test
	conf.DialTimeout = time.Second
	conf.RequestTimeout = time.Second

	return conf
}

func TestService_StartStop(t *testing.T) {
	svc, err := New("127.0.0.1:0", testConfig("127.0.0.1:0"))
	require.NoError(t, err)

	require.NoError(t, svc.Enter(context.Background())) // no seeds, still marks entered

	require.NoError(t, svc.Start())
	assert.ErrorIs(t, svc.Start(), ErrAlreadyRunning)

	require.NoError(t, svc.Stop())
	assert.ErrorIs(t, svc.Stop(), ErrNotRunning)
}

func TestService_StartClient_RefusedBeforeEnter(t *testing.T) {
	svc, err := New("127.0.0.1:0", testConfig("127.0.0.1:0"))
	require.NoError(t, err)

	assert.ErrorIs(t, svc.StartClient(), ErrNotEntered)
}

func TestService_Enter_NoSeeds(t *testing.T) {
	svc, err := New("127.0.0.1:0", testConfig("127.0.0.1:0"))
	require.NoError(t, err)

	err = svc.Enter(context.Background())
	assert.NoError(t, err)

	assert.NoError(t, svc.StartClient())
	assert.NoError(t, svc.StopClient())
}

func TestService_Exit_ClearsEnteredAndStopsClient(t *testing.T) {
	svc, err := New("127.0.0.1:0", testConfig("127.0.0.1:0"))
	require.NoError(t, err)

	require.NoError(t, svc.Enter(context.Background()))
	require.NoError(t, svc.StartClient())

	require.NoError(t, svc.Exit())
	assert.ErrorIs(t, svc.StartClient(), ErrNotEntered)
}

func TestService_Enter_AggregatesFailuresButSucceedsOnOneJoin(t *testing.T) {
	confB := testConfig("127.0.0.1:0")
	svcB, err := New("node-b", confB)
	require.NoError(t, err)
	require.NoError(t, svcB.StartServer())
	defer svcB.StopServer()

	svcA, err := New("node-a", testConfig("127.0.0.1:0"))
	require.NoError(t, err)

	addrB := svcB.server.Addr().String()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err = svcA.Enter(ctx, "127.0.0.1:1", addrB)
	require.NoError(t, err) // one bad seed, one good seed: overall success

	assert.NoError(t, svcA.StartClient())
	assert.NoError(t, svcA.StopClient())
}

func TestService_PushPullView_EndToEnd(t *testing.T) {
	confA := testConfig("127.0.0.1:0")
	svcA, err := New("node-a", confA)
	require.NoError(t, err)
	require.NoError(t, svcA.Enter(context.Background()))
	require.NoError(t, svcA.Start())
	defer svcA.Stop()

	confB := testConfig("127.0.0.1:0")
	svcB, err := New("node-b", confB)
	require.NoError(t, err)
	require.NoError(t, svcB.Enter(context.Background()))
	require.NoError(t, svcB.Start())
	defer svcB.Stop()

	addrB := svcB.server.Addr().String()

	// Seed B's view directly, since its advertised address ("node-b") is
	// not actually dialable; the server it runs is reachable at addrB.
	require.NoError(t, svcB.View().ManualInsert(view.NewNodeDescriptor("some-other-peer", 0)))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	received, err := svcA.client.PushPullView(ctx, addrB, svcA.View().TxNodes())
	require.NoError(t, err)

	// B must have answered with at least its own descriptor (age 0) plus
	// whatever else it knew about.
	assert.NotEmpty(t, received)

	svcA.View().RxNodes(received)
	assert.Greater(t, svcA.View().Len(), 0)
}
