package transfer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAdmissionPerUserCapBlocksSecondUpload(t *testing.T) {
	a := newAdmission(10, 1, nil)

	ctx := context.Background()
	h1, err := a.Acquire(ctx, "bar", "one.flac")
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		h2, err := a.Acquire(ctx, "bar", "two.flac")
		require.NoError(t, err)
		close(acquired)
		h2.Release()
	}()

	select {
	case <-acquired:
		t.Fatal("second acquire should have blocked behind the per-user cap")
	case <-time.After(50 * time.Millisecond):
	}

	h1.Release()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second acquire should proceed after release")
	}
}

func TestAdmissionGlobalCap(t *testing.T) {
	a := newAdmission(1, 10, nil)
	ctx := context.Background()

	h1, err := a.Acquire(ctx, "alice", "a")
	require.NoError(t, err)

	ctx2, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
	defer cancel()
	_, err = a.Acquire(ctx2, "bob", "b")
	require.Error(t, err)

	h1.Release()
}

func TestAdmissionEnsurePresentSurvivesConcurrentCleanup(t *testing.T) {
	a := newAdmission(10, 1, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, err := a.Acquire(ctx, "carol", "f")
			require.NoError(t, err)
			h.Release()
		}()
	}
	wg.Wait()
}
