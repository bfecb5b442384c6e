// Package wait implements the correlation primitive that bridges inbound
// protocol messages to outstanding in-flight operations (the "waiter" of
// spec §4.2).
package wait

import (
	"context"
	"sync"
)

// Key is a composite correlation key: a message code plus up to three
// optional discriminators. Two keys are equal iff every component,
// including presence of the optional ones, is equal — Key is a plain
// comparable struct so it works directly as a map key.
type Key struct {
	Code    int
	Str1    string
	hasStr1 bool
	Str2    string
	hasStr2 bool
	Int     int
	hasInt  bool
}

// NewKey builds a bare key for a message code with no discriminators.
func NewKey(code int) Key {
	return Key{Code: code}
}

// WithStr1 returns a copy of k with the first string discriminator set.
func (k Key) WithStr1(s string) Key {
	k.Str1, k.hasStr1 = s, true
	return k
}

// WithStr2 returns a copy of k with the second string discriminator set.
func (k Key) WithStr2(s string) Key {
	k.Str2, k.hasStr2 = s, true
	return k
}

// WithInt returns a copy of k with the integer discriminator set.
func (k Key) WithInt(i int) Key {
	k.Int, k.hasInt = i, true
	return k
}

type outcome struct {
	value any
	err   error
}

type entry struct {
	resultCh chan outcome
}

// Waiter correlates inbound messages to pending operations via Key. A
// single Complete/Throw call resolves exactly one pending wait per key,
// FIFO with respect to registration order (spec §4.2, §5).
type Waiter struct {
	mu     sync.Mutex
	queues map[Key][]*entry
}

// New creates an empty Waiter. Callers apply their own default timeout by
// deriving ctx with context.WithTimeout before calling Wait; WaitIndefinitely
// (i.e. calling Wait with a ctx that only cancels, never times out) has no
// deadline of its own.
func New() *Waiter {
	return &Waiter{queues: make(map[Key][]*entry)}
}

// Future is a registered, not-yet-awaited wait. Splitting Register from
// Await lets a caller register the wait, write the correlating command to
// the socket, and only then block — preserving the happens-before
// relationship the spec requires to avoid a lost wakeup.
type Future struct {
	w   *Waiter
	key Key
	e   *entry
}

// Register enqueues a new pending completion for key and returns a handle
// to await it. At most the registration itself is synchronous; Await may
// be called later, even from a different goroutine.
func (w *Waiter) Register(key Key) *Future {
	e := &entry{resultCh: make(chan outcome, 1)}
	w.mu.Lock()
	w.queues[key] = append(w.queues[key], e)
	w.mu.Unlock()
	return &Future{w: w, key: key, e: e}
}

// Await blocks until the Future resolves via Complete, Throw, Cancel,
// CancelAll, or ctx being done. ctx.Err() (context.Canceled or
// context.DeadlineExceeded) is returned verbatim and is never wrapped.
func (f *Future) Await(ctx context.Context) (any, error) {
	select {
	case o := <-f.e.resultCh:
		return o.value, o.err
	case <-ctx.Done():
		if f.w.removeIfPresent(f.key, f.e) {
			return nil, ctx.Err()
		}
		// Already popped by a concurrent Complete/Throw/Cancel; prefer
		// that outcome over the context error since it already happened.
		o := <-f.e.resultCh
		return o.value, o.err
	}
}

func (w *Waiter) removeIfPresent(key Key, e *entry) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	q := w.queues[key]
	for i, qe := range q {
		if qe == e {
			w.queues[key] = append(q[:i:i], q[i+1:]...)
			if len(w.queues[key]) == 0 {
				delete(w.queues, key)
			}
			return true
		}
	}
	return false
}

// Wait registers and awaits key in one call, bounded by ctx.
func (w *Waiter) Wait(ctx context.Context, key Key) (any, error) {
	return w.Register(key).Await(ctx)
}

func (w *Waiter) popHead(key Key) *entry {
	w.mu.Lock()
	defer w.mu.Unlock()
	q := w.queues[key]
	if len(q) == 0 {
		return nil
	}
	e := q[0]
	rest := q[1:]
	if len(rest) == 0 {
		delete(w.queues, key)
	} else {
		w.queues[key] = rest
	}
	return e
}

// Complete resolves the head-of-queue pending wait for key with value. It
// silently no-ops if no wait is outstanding for key.
func (w *Waiter) Complete(key Key, value any) {
	if e := w.popHead(key); e != nil {
		e.resultCh <- outcome{value: value}
	}
}

// Throw resolves the head-of-queue pending wait for key with err. It
// silently no-ops if no wait is outstanding for key.
func (w *Waiter) Throw(key Key, err error) {
	if e := w.popHead(key); e != nil {
		e.resultCh <- outcome{err: err}
	}
}

// Cancel rejects every pending wait for key with context.Canceled.
func (w *Waiter) Cancel(key Key) {
	w.mu.Lock()
	q := w.queues[key]
	delete(w.queues, key)
	w.mu.Unlock()

	for _, e := range q {
		e.resultCh <- outcome{err: context.Canceled}
	}
}

// CancelAll rejects every pending wait across every key with
// context.Canceled. Used on server disconnection / client teardown.
func (w *Waiter) CancelAll() {
	w.mu.Lock()
	all := w.queues
	w.queues = make(map[Key][]*entry)
	w.mu.Unlock()

	for _, q := range all {
		for _, e := range q {
			e.resultCh <- outcome{err: context.Canceled}
		}
	}
}

// Len reports the number of pending waits across all keys. Intended for
// diagnostics and tests.
func (w *Waiter) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for _, q := range w.queues {
		n += len(q)
	}
	return n
}
