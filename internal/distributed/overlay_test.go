package distributed

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/jpdillingham/Soulseek.NET-sub005/internal/diag"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestOverlay(delay time.Duration, events chan Event) *Overlay {
	sink := func(ev Event) {
		select {
		case events <- ev:
		default:
		}
	}
	return New(Options{
		Enabled:                  true,
		AcceptChildren:           true,
		ChildLimit:               2,
		BranchRootPromotionDelay: delay,
		LocalUsername:            "alice",
	}, func(bool, uint32) error { return nil }, nil, sink, diag.New(zap.NewNop(), diag.Info, nil))
}

func TestPromotesToBranchRootAfterGracePeriod(t *testing.T) {
	events := make(chan Event, 8)
	o := newTestOverlay(20*time.Millisecond, events)
	o.Start()

	select {
	case ev := <-events:
		require.Equal(t, EventPromotedToBranchRoot, ev.Kind)
	case <-time.After(time.Second):
		t.Fatal("expected promotion event")
	}
	require.True(t, o.IsBranchRoot())
}

func TestAdoptChildRespectsLimit(t *testing.T) {
	events := make(chan Event, 8)
	o := newTestOverlay(time.Hour, events)
	o.promoteToBranchRoot()
	<-events // promotion event

	c1, c2 := net.Pipe()
	defer c1.Close()
	defer c2.Close()
	c3, c4 := net.Pipe()
	defer c3.Close()
	defer c4.Close()
	c5, c6 := net.Pipe()
	defer c5.Close()
	defer c6.Close()

	require.NoError(t, o.AdoptChild("bob", c2))
	require.NoError(t, o.AdoptChild("carol", c4))
	require.Error(t, o.AdoptChild("dave", c6))
}

func TestParentLostTriggersPromotion(t *testing.T) {
	events := make(chan Event, 8)
	o := newTestOverlay(time.Hour, events)

	c1, c2 := net.Pipe()
	defer c1.Close()
	o.adoptParent("bob", c2, 1)
	<-events // ParentAdopted

	require.True(t, o.HasParent())
	o.ParentLost()

	disconnected := <-events
	require.Equal(t, EventParentDisconnected, disconnected.Kind)
	promoted := <-events
	require.Equal(t, EventPromotedToBranchRoot, promoted.Kind)
	require.False(t, o.HasParent())
	require.True(t, o.IsBranchRoot())
}
