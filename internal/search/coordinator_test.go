package search

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jpdillingham/Soulseek.NET-sub005/internal/diag"
)

type recordingSender struct {
	network []string
	room    []string
	user    []string
	wish    []string
}

func (s *recordingSender) SendSearchRequest(token uint32, text string) error {
	s.network = append(s.network, text)
	return nil
}
func (s *recordingSender) SendRoomSearchRequest(room string, token uint32, text string) error {
	s.room = append(s.room, room+":"+text)
	return nil
}
func (s *recordingSender) SendUserSearchRequest(username string, token uint32, text string) error {
	s.user = append(s.user, username+":"+text)
	return nil
}
func (s *recordingSender) SendWishlistSearchRequest(token uint32, text string) error {
	s.wish = append(s.wish, text)
	return nil
}

func newTestCoordinator() (*Coordinator, *recordingSender) {
	sender := &recordingSender{}
	return NewCoordinator(sender, diag.New(zap.NewNop(), diag.Info, nil)), sender
}

func TestStartNetworkScopeSendsQuery(t *testing.T) {
	c, sender := newTestCoordinator()
	_, err := c.Start(context.Background(), "foo -bar b", 1, Scope{Kind: ScopeNetwork}, Options{}, nil, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"foo b -bar"}, sender.network)
}

func TestStartUserScopeSendsToEachUser(t *testing.T) {
	c, sender := newTestCoordinator()
	_, err := c.Start(context.Background(), "query", 2, Scope{Kind: ScopeUser, Users: []string{"a", "b"}}, Options{}, nil, nil)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"a:query", "b:query"}, sender.user)
}

func TestHandleResponseTerminatesAtResponseLimit(t *testing.T) {
	c, _ := newTestCoordinator()
	done := make(chan *Search, 1)
	s, err := c.Start(context.Background(), "q", 3, Scope{Kind: ScopeNetwork}, Options{ResponseLimit: 2}, nil, func(s *Search) { done <- s })
	require.NoError(t, err)

	terminated, ok := c.HandleResponse(3, Result{Username: "u1"})
	require.True(t, ok)
	require.False(t, terminated)

	terminated, ok = c.HandleResponse(3, Result{Username: "u2"})
	require.True(t, ok)
	require.True(t, terminated)

	select {
	case finished := <-done:
		require.Equal(t, s, finished)
		require.True(t, finished.State().Has(Completed))
		require.True(t, finished.State().Has(Succeeded))
	case <-time.After(time.Second):
		t.Fatal("expected onDone callback")
	}

	_, ok = c.HandleResponse(3, Result{Username: "u3"})
	require.False(t, ok, "search should no longer be tracked after termination")
}

func TestHandleResponseUnknownToken(t *testing.T) {
	c, _ := newTestCoordinator()
	_, ok := c.HandleResponse(999, Result{})
	require.False(t, ok)
}

func TestIdleTimeoutTerminatesSearch(t *testing.T) {
	c, _ := newTestCoordinator()
	done := make(chan struct{})
	_, err := c.Start(context.Background(), "q", 4, Scope{Kind: ScopeNetwork}, Options{IdleTimeout: 20 * time.Millisecond}, nil, func(*Search) { close(done) })
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected idle timeout to terminate search")
	}
}

func TestCancelTerminatesTrackedSearch(t *testing.T) {
	c, _ := newTestCoordinator()
	s, err := c.Start(context.Background(), "q", 5, Scope{Kind: ScopeNetwork}, Options{}, nil, nil)
	require.NoError(t, err)

	require.NoError(t, c.Cancel(5))
	require.True(t, s.State().Has(Cancelled))
	require.ErrorIs(t, c.Cancel(5), ErrUnknownToken)
}

func TestCancelAllTerminatesEverySearch(t *testing.T) {
	c, _ := newTestCoordinator()
	s1, _ := c.Start(context.Background(), "q1", 10, Scope{Kind: ScopeNetwork}, Options{}, nil, nil)
	s2, _ := c.Start(context.Background(), "q2", 11, Scope{Kind: ScopeNetwork}, Options{}, nil, nil)

	c.CancelAll()
	require.True(t, s1.State().Has(Cancelled))
	require.True(t, s2.State().Has(Cancelled))
}
