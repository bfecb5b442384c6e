// Package search implements the search coordinator (spec §4.8): issuing
// network/room/user/wishlist search requests and routing inbound
// search_response messages back to the owning search by token.
//
// Mirrors internal/transfer's split from the root soulseek package: the
// coordinator operates below the public API boundary, so it defines its own
// Scope/Options/State/Result types rather than importing the root package
// (which will import this one), and the Client facade mirrors completed
// searches into public soulseek.Search values as results arrive.
package search

import (
	"strings"
	"sync"
	"time"
)

// ScopeKind discriminates how a search is addressed.
type ScopeKind int

// Search scopes.
const (
	ScopeNetwork ScopeKind = iota
	ScopeRoom
	ScopeUser
	ScopeWishlist
)

// Scope addresses a search request.
type Scope struct {
	Kind  ScopeKind
	Room  string
	Users []string
}

// State is a bitset mirroring the public SearchState progression.
type State uint8

// Search states.
const (
	None State = 1 << iota
	Requested
	InProgress
	Completed
	Succeeded
	Errored
	Cancelled
)

// Has reports whether every bit in want is set in s.
func (s State) Has(want State) bool { return s&want == want }

// Options bounds a search's termination conditions.
type Options struct {
	ResponseLimit                    int
	FileLimit                        int
	IdleTimeout                      time.Duration
	Timeout                          time.Duration
	RemoveSingleCharacterSearchTerms bool
}

// File mirrors one shared-file entry within a Result.
type File struct {
	Filename   string
	Size       uint64
	Extension  string
	Attributes map[uint32]uint32
}

// Result is one peer's response to a search.
type Result struct {
	Username     string
	Token        uint32
	Files        []File
	FreeSlots    bool
	AverageSpeed uint32
	QueueLength  uint64
}

// Sender issues the outbound request for a given scope over the server
// session. Implemented by *session.Session.
type Sender interface {
	SendSearchRequest(token uint32, text string) error
	SendRoomSearchRequest(room string, token uint32, text string) error
	SendUserSearchRequest(username string, token uint32, text string) error
	SendWishlistSearchRequest(token uint32, text string) error
}

// Search tracks one outstanding search end to end.
type Search struct {
	Text  string
	Token uint32
	Scope Scope

	mu        sync.Mutex
	state     State
	responses []Result
	fileCount int

	idleTimer *time.Timer
	doneCh    chan struct{}
}

func newSearch(text string, token uint32, scope Scope) *Search {
	return &Search{Text: text, Token: token, Scope: scope, state: Requested}
}

// State returns the search's current state.
func (s *Search) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Responses returns a snapshot of responses received so far, in arrival
// order.
func (s *Search) Responses() []Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Result, len(s.responses))
	copy(out, s.responses)
	return out
}

func (s *Search) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// BuildQueryTerms splits text into the non-exclusion search terms and the
// exclusion terms (prefixed with '-'), per spec §4.8. If
// removeSingleCharTerms is set, single-character non-exclusion terms are
// dropped.
func BuildQueryTerms(text string, removeSingleCharTerms bool) (terms, exclusions []string) {
	for _, f := range strings.Fields(text) {
		if strings.HasPrefix(f, "-") && len(f) > 1 {
			exclusions = append(exclusions, f[1:])
			continue
		}
		if removeSingleCharTerms && len([]rune(f)) == 1 {
			continue
		}
		terms = append(terms, f)
	}
	return terms, exclusions
}

// BuildQueryText re-joins terms and exclusions into the wire search text.
func BuildQueryText(terms, exclusions []string) string {
	all := make([]string, 0, len(terms)+len(exclusions))
	all = append(all, terms...)
	for _, e := range exclusions {
		all = append(all, "-"+e)
	}
	return strings.Join(all, " ")
}
