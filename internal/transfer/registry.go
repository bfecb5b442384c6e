package transfer

import "sync"

type userFile struct {
	username string
	filename string
}

// registry enforces spec §4.7.3's invariants: exactly one entry per local
// token while active, and a transfer cannot be in both directions'
// registries simultaneously. The two directions' registries share a single
// mutex (installed by newRegistryPair) so insert can check the companion
// registry's byUser map atomically with its own, without risking the
// lock-ordering deadlock a pair of independent mutexes would invite.
type registry struct {
	mu        *sync.Mutex
	byToken   map[uint32]*Transfer
	byUser    map[userFile]*Transfer
	companion *registry
}

// newRegistryPair builds the engine's download and upload registries,
// cross-wired so each can see the other's byUser entries.
func newRegistryPair() (downloads, uploads *registry) {
	mu := &sync.Mutex{}
	downloads = &registry{mu: mu, byToken: make(map[uint32]*Transfer), byUser: make(map[userFile]*Transfer)}
	uploads = &registry{mu: mu, byToken: make(map[uint32]*Transfer), byUser: make(map[userFile]*Transfer)}
	downloads.companion = uploads
	uploads.companion = downloads
	return downloads, uploads
}

// insert adds t if neither its token nor (user, filename) pair is already
// present in this registry or its companion, returning
// ErrDuplicateToken/ErrDuplicateTransfer otherwise.
func (r *registry) insert(t *Transfer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byToken[t.Token]; ok {
		return ErrDuplicateToken
	}
	key := userFile{username: t.Username, filename: t.Filename}
	if _, ok := r.byUser[key]; ok {
		return ErrDuplicateTransfer
	}
	if _, ok := r.companion.byUser[key]; ok {
		return ErrDuplicateTransfer
	}
	r.byToken[t.Token] = t
	r.byUser[key] = t
	return nil
}

func (r *registry) remove(t *Transfer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byToken, t.Token)
	delete(r.byUser, userFile{username: t.Username, filename: t.Filename})
}

func (r *registry) get(token uint32) (*Transfer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.byToken[token]
	return t, ok
}

// all returns a snapshot of every registered transfer, used to drain the
// registry on full teardown (spec §8 scenario 6 "transfer registries are
// drained with per-transfer Cancelled terminal states").
func (r *registry) all() []*Transfer {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Transfer, 0, len(r.byToken))
	for _, t := range r.byToken {
		out = append(out, t)
	}
	return out
}
