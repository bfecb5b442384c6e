package soulseek

import (
	"sync"
	"time"
)

// SearchScopeKind discriminates the addressing mode of a search (spec §3
// "Scope").
type SearchScopeKind int

// Search scopes.
const (
	ScopeNetwork SearchScopeKind = iota
	ScopeRoom
	ScopeUser
	ScopeWishlist
)

// SearchScope addresses a search request. Room is populated only for
// ScopeRoom; Users only for ScopeUser.
type SearchScope struct {
	Kind  SearchScopeKind
	Room  string
	Users []string
}

// NetworkScope addresses every peer via the central server.
func NetworkScope() SearchScope { return SearchScope{Kind: ScopeNetwork} }

// RoomScope addresses the members of room.
func RoomScope(room string) SearchScope { return SearchScope{Kind: ScopeRoom, Room: room} }

// UserScope addresses exactly the listed usernames.
func UserScope(users ...string) SearchScope { return SearchScope{Kind: ScopeUser, Users: users} }

// WishlistScope addresses the server's periodic wishlist mechanism.
func WishlistScope() SearchScope { return SearchScope{Kind: ScopeWishlist} }

// SearchOptions bounds a search's termination conditions (spec §4.8
// "Termination").
type SearchOptions struct {
	ResponseLimit                    int
	FileLimit                        int
	IdleTimeout                      time.Duration
	Timeout                          time.Duration
	RemoveSingleCharacterSearchTerms bool
}

// DefaultSearchOptions returns conservative termination thresholds.
func DefaultSearchOptions() SearchOptions {
	return SearchOptions{
		ResponseLimit:                    100,
		FileLimit:                        10000,
		IdleTimeout:                      15 * time.Second,
		Timeout:                          5 * time.Minute,
		RemoveSingleCharacterSearchTerms: true,
	}
}

// SearchState is a bitset following spec §3 "Search" state progression.
type SearchState uint8

// Search states.
const (
	SearchNone SearchState = 1 << iota
	SearchRequested
	SearchInProgress
	SearchCompleted
	SearchSucceeded
	SearchErrored
	SearchCancelled
)

func (s SearchState) Has(want SearchState) bool { return s&want == want }

// SearchResultFile mirrors a single shared-file entry within a peer's
// response (messages.File carries the wire shape; this is the public
// facade type).
type SearchResultFile struct {
	Filename   string
	Size       uint64
	Extension  string
	Attributes map[uint32]uint32
}

// SearchResult is one peer's response to a Search (spec §4.8 "search_response
// messages from peers").
type SearchResult struct {
	Username     string
	Token        uint32
	Files        []SearchResultFile
	FreeSlots    bool
	AverageSpeed uint32
	QueueLength  uint64
}

// Search tracks one outstanding search operation end to end.
type Search struct {
	Text  string
	Token uint32
	Scope SearchScope

	mu        sync.Mutex
	state     SearchState
	responses []SearchResult
	fileCount int

	callback func(SearchResult)
}

func newSearch(text string, token uint32, scope SearchScope, cb func(SearchResult)) *Search {
	return &Search{Text: text, Token: token, Scope: scope, state: SearchRequested, callback: cb}
}

// State returns the search's current state.
func (s *Search) State() SearchState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Responses returns a snapshot of responses received so far, in arrival
// order.
func (s *Search) Responses() []SearchResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SearchResult, len(s.responses))
	copy(out, s.responses)
	return out
}

func (s *Search) setState(state SearchState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// addResponse appends r and reports whether a termination threshold (§4.8)
// was crossed, per the supplied options.
func (s *Search) addResponse(r SearchResult, opts SearchOptions) (done bool) {
	s.mu.Lock()
	s.responses = append(s.responses, r)
	s.fileCount += len(r.Files)
	reachedResponses := opts.ResponseLimit > 0 && len(s.responses) >= opts.ResponseLimit
	reachedFiles := opts.FileLimit > 0 && s.fileCount >= opts.FileLimit
	done = reachedResponses || reachedFiles
	if done {
		s.state = SearchCompleted | SearchSucceeded
	}
	cb := s.callback
	s.mu.Unlock()
	if cb != nil {
		cb(r)
	}
	return done
}

// BrowseResult is a peer's full shared-directory listing (spec §6
// "browse_response_resolver").
type BrowseResult struct {
	Directories []BrowseDirectory
}

// BrowseDirectory is one directory within a BrowseResult.
type BrowseDirectory struct {
	Name  string
	Files []SearchResultFile
}

// DirectoryResult answers a FolderContents request for a single directory.
type DirectoryResult struct {
	Name  string
	Files []SearchResultFile
}

// UserInfoResult answers an InfoRequest.
type UserInfoResult struct {
	Description   string
	HasPicture    bool
	Picture       []byte
	UploadSlots   int
	QueueLength   int
	HasFreeSlot   bool
}
