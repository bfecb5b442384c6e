package soulseek

import (
	"context"
	"fmt"

	"github.com/jpdillingham/Soulseek.NET-sub005/internal/search"
)

// Search issues a new search under scope and returns immediately with a
// handle that accumulates responses as they arrive (spec §4.8). Subscribe
// to EventSearchResponseReceived/EventSearchStateChanged, or poll
// Search.Responses and Search.State, to observe progress.
func (c *Client) Search(ctx context.Context, text string, scope SearchScope, opts SearchOptions) (*Search, error) {
	if !c.State().Has(StateLoggedIn) {
		return nil, NewError("Search", KindInvalidState, fmt.Errorf("not logged in"))
	}

	token := c.tokens.Next()
	pub := newSearch(text, token, scope, nil)

	internalScope := mapScope(scope)
	internalOpts := search.Options{
		ResponseLimit:                    opts.ResponseLimit,
		FileLimit:                        opts.FileLimit,
		IdleTimeout:                      opts.IdleTimeout,
		Timeout:                          opts.Timeout,
		RemoveSingleCharacterSearchTerms: opts.RemoveSingleCharacterSearchTerms,
	}

	_, err := c.searches.Start(ctx, text, token, internalScope, internalOpts,
		func(r search.Result) {
			pub.addResponse(mapSearchResult(r), opts)
			c.events.Publish(Event{Kind: EventSearchResponseReceived, Search: pub, Response: ptrSearchResult(mapSearchResult(r))})
		},
		func(s *search.Search) {
			pub.setState(mapSearchState(s.State()))
			c.events.Publish(Event{Kind: EventSearchStateChanged, Search: pub})
		},
	)
	if err != nil {
		pub.setState(SearchCompleted | SearchErrored)
		return pub, NewError("Search", KindConnection, err)
	}
	return pub, nil
}

// CancelSearch stops an in-flight search early.
func (c *Client) CancelSearch(s *Search) error {
	return c.searches.Cancel(s.Token)
}

func mapScope(s SearchScope) search.Scope {
	kind := map[SearchScopeKind]search.ScopeKind{
		ScopeNetwork:  search.ScopeNetwork,
		ScopeRoom:     search.ScopeRoom,
		ScopeUser:     search.ScopeUser,
		ScopeWishlist: search.ScopeWishlist,
	}[s.Kind]
	return search.Scope{Kind: kind, Room: s.Room, Users: s.Users}
}

func mapSearchState(s search.State) SearchState {
	var out SearchState
	add := func(bit search.State, pub SearchState) {
		if s.Has(bit) {
			out |= pub
		}
	}
	add(search.Requested, SearchRequested)
	add(search.InProgress, SearchInProgress)
	add(search.Completed, SearchCompleted)
	add(search.Succeeded, SearchSucceeded)
	add(search.Errored, SearchErrored)
	add(search.Cancelled, SearchCancelled)
	return out
}

func mapSearchResult(r search.Result) SearchResult {
	files := make([]SearchResultFile, len(r.Files))
	for i, f := range r.Files {
		files[i] = SearchResultFile{Filename: f.Filename, Size: f.Size, Extension: f.Extension, Attributes: f.Attributes}
	}
	return SearchResult{
		Username:     r.Username,
		Token:        r.Token,
		Files:        files,
		FreeSlots:    r.FreeSlots,
		AverageSpeed: r.AverageSpeed,
		QueueLength:  r.QueueLength,
	}
}

func ptrSearchResult(r SearchResult) *SearchResult { return &r }
