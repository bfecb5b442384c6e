package wait

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestCompleteResolvesWaiter(t *testing.T) {
	w := New()
	key := NewKey(1).WithStr1("alice")

	fut := w.Register(key)
	w.Complete(key, "result")

	val, err := fut.Await(context.Background())
	require.NoError(t, err)
	require.Equal(t, "result", val)
}

func TestThrowResolvesWaiter(t *testing.T) {
	w := New()
	key := NewKey(2)
	boom := errors.New("boom")

	fut := w.Register(key)
	w.Throw(key, boom)

	_, err := fut.Await(context.Background())
	require.ErrorIs(t, err, boom)
}

func TestCompleteNoopWithoutWaiter(t *testing.T) {
	w := New()
	w.Complete(NewKey(3), "nobody home")
	require.Equal(t, 0, w.Len())
}

func TestFIFOOrderingPerKey(t *testing.T) {
	w := New()
	key := NewKey(4)

	f1 := w.Register(key)
	f2 := w.Register(key)
	f3 := w.Register(key)

	w.Complete(key, 1)
	w.Complete(key, 2)
	w.Complete(key, 3)

	v1, _ := f1.Await(context.Background())
	v2, _ := f2.Await(context.Background())
	v3, _ := f3.Await(context.Background())
	require.Equal(t, []any{1, 2, 3}, []any{v1, v2, v3})
}

func TestDistinctKeysDoNotInterfere(t *testing.T) {
	w := New()
	a := NewKey(1).WithStr1("a")
	b := NewKey(1).WithStr1("b")

	fa := w.Register(a)
	fb := w.Register(b)

	w.Complete(b, "for-b")
	w.Complete(a, "for-a")

	va, _ := fa.Await(context.Background())
	vb, _ := fb.Await(context.Background())
	require.Equal(t, "for-a", va)
	require.Equal(t, "for-b", vb)
}

func TestTimeoutRemovesWaiterAndSubsequentWaitServesNext(t *testing.T) {
	w := New()
	key := NewKey(5)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	fut := w.Register(key)
	_, err := fut.Await(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, 0, w.Len())

	fut2 := w.Register(key)
	w.Complete(key, "second")
	val, err := fut2.Await(context.Background())
	require.NoError(t, err)
	require.Equal(t, "second", val)
}

func TestCancelRejectsAllForKey(t *testing.T) {
	w := New()
	key := NewKey(6)

	f1 := w.Register(key)
	f2 := w.Register(key)
	w.Cancel(key)

	_, err1 := f1.Await(context.Background())
	_, err2 := f2.Await(context.Background())
	require.ErrorIs(t, err1, context.Canceled)
	require.ErrorIs(t, err2, context.Canceled)
}

func TestCancelAllAcrossKeys(t *testing.T) {
	w := New()
	k1 := NewKey(1)
	k2 := NewKey(2).WithInt(7)

	f1 := w.Register(k1)
	f2 := w.Register(k2)
	w.CancelAll()

	_, err1 := f1.Await(context.Background())
	_, err2 := f2.Await(context.Background())
	require.ErrorIs(t, err1, context.Canceled)
	require.ErrorIs(t, err2, context.Canceled)
}

func TestWaitIndefinitelyOnlyResolvesExplicitly(t *testing.T) {
	w := New()
	key := NewKey(8)

	fut := w.Register(key)
	done := make(chan struct{})
	go func() {
		defer close(done)
		val, err := fut.Await(context.Background())
		require.NoError(t, err)
		require.Equal(t, "late", val)
	}()

	select {
	case <-done:
		t.Fatal("indefinite wait resolved before completion")
	case <-time.After(20 * time.Millisecond):
	}

	w.Complete(key, "late")
	<-done
}

func TestConcurrentWaitAndComplete(t *testing.T) {
	w := New()
	key := NewKey(9)
	const n = 50

	var wg sync.WaitGroup
	results := make([]any, n)
	for i := 0; i < n; i++ {
		fut := w.Register(key)
		wg.Add(1)
		go func(i int, f *Future) {
			defer wg.Done()
			v, err := f.Await(context.Background())
			require.NoError(t, err)
			results[i] = v
		}(i, fut)
	}
	for i := 0; i < n; i++ {
		w.Complete(key, i)
	}
	wg.Wait()

	seen := map[any]bool{}
	for _, r := range results {
		seen[r] = true
	}
	require.Len(t, seen, n)
}

func TestKeyEqualityRequiresSameDiscriminators(t *testing.T) {
	bare := NewKey(1)
	withStr := NewKey(1).WithStr1("")
	require.NotEqual(t, bare, withStr, "presence of a zero-valued discriminator must still distinguish keys")
}
