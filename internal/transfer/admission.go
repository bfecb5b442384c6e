package transfer

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// SlotGate is the embedder-supplied hook around upload admission (spec §6
// "Slot awaiter / slot released"). Acquire blocks until policy grants a
// slot; Release returns it.
type SlotGate interface {
	Acquire(ctx context.Context, username, filename string) error
	Release(username, filename string)
}

// noopSlotGate grants immediately, used when no embedder hook is supplied.
type noopSlotGate struct{}

func (noopSlotGate) Acquire(context.Context, string, string) error { return nil }
func (noopSlotGate) Release(string, string)                        {}

// NoopSlotGate is the default SlotGate.
var NoopSlotGate SlotGate = noopSlotGate{}

// admission implements the three-tier upload admission control of spec
// §4.7.2: per-user semaphore, external slot gate, global semaphore.
type admission struct {
	maxPerUser int64
	global     *semaphore.Weighted
	slots      SlotGate

	mu       sync.Mutex
	perUser  map[string]*semaphore.Weighted
}

// Admission is the exported handle type returned by NewAdmission, opaque
// to callers outside the package.
type Admission = admission

// NewAdmission is the exported form of newAdmission, for the Client facade
// to construct the upload admission controller passed into NewEngine.
func NewAdmission(maxGlobal, maxPerUser int64, slots SlotGate) *Admission {
	return newAdmission(maxGlobal, maxPerUser, slots)
}

// newAdmission builds an admission controller. maxGlobal/maxPerUser are
// spec §6's maximum_concurrent_uploads and
// maximum_concurrent_uploads_per_user.
func newAdmission(maxGlobal, maxPerUser int64, slots SlotGate) *admission {
	if slots == nil {
		slots = NoopSlotGate
	}
	return &admission{
		maxPerUser: maxPerUser,
		global:     semaphore.NewWeighted(maxGlobal),
		slots:      slots,
		perUser:    make(map[string]*semaphore.Weighted),
	}
}

// ensurePresent returns the per-user semaphore for username, creating one
// if absent. Spec §9 "Per-user semaphore map with cleanup-on-empty": the
// acquirer re-inserts before release to survive a concurrent cleanup.
func (a *admission) ensurePresent(username string) *semaphore.Weighted {
	a.mu.Lock()
	defer a.mu.Unlock()
	sem, ok := a.perUser[username]
	if !ok {
		sem = semaphore.NewWeighted(a.maxPerUser)
		a.perUser[username] = sem
	}
	return sem
}

// cleanupIfIdle removes username's semaphore entry if nothing holds it,
// called after release. A subsequent acquirer re-creates the entry via
// ensurePresent, which is always called before acquiring.
func (a *admission) cleanupIfIdle(username string, sem *semaphore.Weighted) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.perUser[username] == sem && sem.TryAcquire(a.maxPerUser) {
		sem.Release(a.maxPerUser)
		delete(a.perUser, username)
	}
}

// handle represents one held admission ticket; Release must be called
// exactly once regardless of outcome (spec §5 cancellation "release all
// acquired semaphores").
type handle struct {
	a        *admission
	username string
	filename string
	perUser  *semaphore.Weighted
	heldGlobal bool
	heldSlot   bool
	heldPerUser bool
}

// Acquire walks the three admission tiers in order, releasing whatever it
// already holds if a later tier fails or ctx is cancelled.
func (a *admission) Acquire(ctx context.Context, username, filename string) (*handle, error) {
	h := &handle{a: a, username: username, filename: filename}

	h.perUser = a.ensurePresent(username)
	if err := h.perUser.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	h.heldPerUser = true
	a.mu.Lock()
	if _, ok := a.perUser[username]; !ok {
		a.perUser[username] = h.perUser
	}
	a.mu.Unlock()

	if err := a.slots.Acquire(ctx, username, filename); err != nil {
		h.Release()
		return nil, err
	}
	h.heldSlot = true

	if err := a.global.Acquire(ctx, 1); err != nil {
		h.Release()
		return nil, err
	}
	h.heldGlobal = true

	return h, nil
}

// Release returns every tier this handle holds, in reverse acquisition
// order, and performs the per-user cleanup-on-empty optimisation.
func (h *handle) Release() {
	if h.heldGlobal {
		h.a.global.Release(1)
		h.heldGlobal = false
	}
	if h.heldSlot {
		h.a.slots.Release(h.username, h.filename)
		h.heldSlot = false
	}
	if h.heldPerUser {
		h.perUser.Release(1)
		h.heldPerUser = false
		h.a.cleanupIfIdle(h.username, h.perUser)
	}
}
