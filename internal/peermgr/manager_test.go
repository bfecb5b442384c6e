package peermgr

import (
	"context"
	"io"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/jpdillingham/Soulseek.NET-sub005/internal/diag"
	"github.com/jpdillingham/Soulseek.NET-sub005/internal/endpoint"
	"github.com/jpdillingham/Soulseek.NET-sub005/internal/messages"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeCache struct {
	endpoints map[string]endpoint.Endpoint
}

func (f *fakeCache) TryGet(username string) (endpoint.Endpoint, bool) {
	ep, ok := f.endpoints[username]
	return ep, ok
}
func (f *fakeCache) AddOrUpdate(username string, ep endpoint.Endpoint) {
	f.endpoints[username] = ep
}

func listenerEndpoint(t *testing.T, ln net.Listener) endpoint.Endpoint {
	t.Helper()
	_, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return endpoint.Endpoint{IP: 0x7f000001, Port: uint16(port)}
}

func TestGetOrAddMessageConnectionDialsAndCaches(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	cache := &fakeCache{endpoints: map[string]endpoint.Endpoint{"bob": listenerEndpoint(t, ln)}}
	mgr := New(Options{ConnectTimeout: time.Second, LocalUsername: "alice"}, cache, diag.New(zap.NewNop(), diag.Info, nil))

	ep, _ := cache.TryGet("bob")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	c1, err := mgr.GetOrAddMessageConnection(ctx, "bob", ep)
	require.NoError(t, err)
	require.NotNil(t, c1)

	serverSide := <-accepted
	defer serverSide.Close()

	isPeerInit, init, _, err := readHandshake(serverSide)
	require.NoError(t, err)
	require.True(t, isPeerInit)
	require.Equal(t, "alice", init.Username)
	require.Equal(t, messages.ConnectionTypePeer, init.ConnectionType)

	c2, err := mgr.GetOrAddMessageConnection(ctx, "bob", ep)
	require.NoError(t, err)
	require.Same(t, c1, c2)

	mgr.RemoveAndDisposeAll()
}

func TestResolveUserOffline(t *testing.T) {
	cache := &fakeCache{endpoints: map[string]endpoint.Endpoint{"ghost": endpoint.Offline}}
	mgr := New(Options{}, cache, diag.New(zap.NewNop(), diag.Info, nil))

	_, err := mgr.resolve("ghost")
	require.ErrorIs(t, err, ErrUserOffline)
}

func TestHandleIncomingAdoptsPeerInitAsMessageConnection(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()

	cache := &fakeCache{endpoints: map[string]endpoint.Endpoint{}}
	mgr := New(Options{LocalUsername: "alice"}, cache, diag.New(zap.NewNop(), diag.Info, nil))

	done := make(chan error, 1)
	go func() { done <- mgr.HandleIncoming(serverConn) }()

	require.NoError(t, sendPeerInit(clientConn, "bob", messages.ConnectionTypePeer, 0))
	require.NoError(t, <-done)

	mgr.mu.Lock()
	_, ok := mgr.messageConn["bob"]
	mgr.mu.Unlock()
	require.True(t, ok)

	mgr.RemoveAndDisposeAll()
}

func TestGlobalSemaphoreReleasedOnDisposal(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				io.Copy(io.Discard, c)
			}(conn)
		}
	}()

	cache := &fakeCache{endpoints: map[string]endpoint.Endpoint{
		"bob":   listenerEndpoint(t, ln),
		"carol": listenerEndpoint(t, ln),
	}}
	mgr := New(Options{ConnectTimeout: time.Second, MaxMessageConnections: 1, LocalUsername: "alice"}, cache, diag.New(zap.NewNop(), diag.Info, nil))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	ep, _ := cache.TryGet("bob")
	c1, err := mgr.GetOrAddMessageConnection(ctx, "bob", ep)
	require.NoError(t, err)

	require.False(t, mgr.globalSem.TryAcquire(1), "pool should be exhausted at capacity 1")

	require.True(t, mgr.TryInvalidateMessageConnectionCache("bob"))
	require.True(t, c1.Closed())

	require.True(t, mgr.globalSem.TryAcquire(1), "slot should be freed once the connection is disposed")
	mgr.globalSem.Release(1)

	ep2, _ := cache.TryGet("carol")
	c2, err := mgr.GetOrAddMessageConnection(ctx, "carol", ep2)
	require.NoError(t, err)
	require.NotNil(t, c2)

	mgr.RemoveAndDisposeAll()
}

func TestAdoptInitiatedDistributedRoutesToHandler(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()

	cache := &fakeCache{endpoints: map[string]endpoint.Endpoint{}}
	mgr := New(Options{LocalUsername: "alice"}, cache, diag.New(zap.NewNop(), diag.Info, nil))

	adopted := make(chan string, 1)
	mgr.OnDistributedConnection(func(name string, conn net.Conn) {
		adopted <- name
		conn.Close()
	})

	done := make(chan error, 1)
	go func() { done <- mgr.HandleIncoming(serverConn) }()

	require.NoError(t, sendPeerInit(clientConn, "dave", messages.ConnectionTypeDistributed, 0))
	require.NoError(t, <-done)

	select {
	case name := <-adopted:
		require.Equal(t, "dave", name)
	case <-time.After(time.Second):
		t.Fatal("expected distributed connection to reach the handler")
	}
}

func TestAdoptInitiatedDistributedClosesWithoutHandler(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()

	cache := &fakeCache{endpoints: map[string]endpoint.Endpoint{}}
	mgr := New(Options{LocalUsername: "alice"}, cache, diag.New(zap.NewNop(), diag.Info, nil))

	done := make(chan error, 1)
	go func() { done <- mgr.HandleIncoming(serverConn) }()

	require.NoError(t, sendPeerInit(clientConn, "dave", messages.ConnectionTypeDistributed, 0))
	require.Error(t, <-done)
}

func TestAdoptMessageConnectionFiresCallback(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	cache := &fakeCache{endpoints: map[string]endpoint.Endpoint{}}
	mgr := New(Options{LocalUsername: "alice"}, cache, diag.New(zap.NewNop(), diag.Info, nil))

	started := make(chan *Connection, 1)
	mgr.OnMessageConnection(func(c *Connection) { started <- c })

	pc := NewConnection("erin", KindMessage, serverConn)
	mgr.AdoptMessageConnection("erin", pc)

	select {
	case c := <-started:
		require.Same(t, pc, c)
	case <-time.After(time.Second):
		t.Fatal("expected OnMessageConnection callback")
	}

	mgr.mu.Lock()
	_, ok := mgr.messageConn["erin"]
	mgr.mu.Unlock()
	require.True(t, ok)
}

func TestHasAwaiterReflectsPendingAwait(t *testing.T) {
	cache := &fakeCache{endpoints: map[string]endpoint.Endpoint{}}
	mgr := New(Options{}, cache, diag.New(zap.NewNop(), diag.Info, nil))

	require.False(t, mgr.HasAwaiter("frank", 7))

	ctx, cancel := context.WithCancel(context.Background())
	go mgr.AwaitTransferConnection(ctx, "frank", 7)
	require.Eventually(t, func() bool { return mgr.HasAwaiter("frank", 7) }, time.Second, time.Millisecond)

	cancel()
	require.Eventually(t, func() bool { return !mgr.HasAwaiter("frank", 7) }, time.Second, time.Millisecond)
}

func TestAwaitTransferConnectionDeliveredByPierceFirewall(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()

	cache := &fakeCache{endpoints: map[string]endpoint.Endpoint{}}
	mgr := New(Options{}, cache, diag.New(zap.NewNop(), diag.Info, nil))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	resultCh := make(chan *Connection, 1)
	go func() {
		c, err := mgr.AwaitTransferConnection(ctx, "bob", 99)
		require.NoError(t, err)
		resultCh <- c
	}()

	time.Sleep(10 * time.Millisecond)
	go mgr.HandleIncoming(serverConn)
	require.NoError(t, sendPierceFirewall(clientConn, 99))

	select {
	case c := <-resultCh:
		require.NotNil(t, c)
	case <-time.After(time.Second):
		t.Fatal("expected transfer connection to be delivered")
	}

	mgr.RemoveAndDisposeAll()
}
