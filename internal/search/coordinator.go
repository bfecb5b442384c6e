package search

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jpdillingham/Soulseek.NET-sub005/internal/diag"
)

// ErrUnknownToken is returned by Cancel for a token the coordinator is not
// tracking (already completed, cancelled, or never issued); HandleResponse
// reports the same case as ok=false.
var ErrUnknownToken = fmt.Errorf("search: unknown token")

// Coordinator owns every in-flight Search, keyed by token, and routes
// inbound search_response messages to the right one (spec §4.8).
type Coordinator struct {
	sender Sender
	log    *diag.Emitter

	mu          sync.Mutex
	searches    map[uint32]*Search
	onResult    map[uint32]func(Result)
	onDone      map[uint32]func(*Search)
	optsByToken map[uint32]Options
}

// NewCoordinator builds a Coordinator bound to sender for issuing outbound
// requests.
func NewCoordinator(sender Sender, log *diag.Emitter) *Coordinator {
	return &Coordinator{
		sender:      sender,
		log:         log.With("search"),
		searches:    make(map[uint32]*Search),
		onResult:    make(map[uint32]func(Result)),
		onDone:      make(map[uint32]func(*Search)),
		optsByToken: make(map[uint32]Options),
	}
}

// Start issues a new search for text under scope, keyed by token. onResult
// (optional) is invoked synchronously for every response as it arrives;
// onDone (optional) is invoked exactly once when the search terminates,
// whether by limit, idle timeout, overall timeout, or explicit Cancel.
func (c *Coordinator) Start(ctx context.Context, text string, token uint32, scope Scope, opts Options, onResult func(Result), onDone func(*Search)) (*Search, error) {
	terms, exclusions := BuildQueryTerms(text, opts.RemoveSingleCharacterSearchTerms)
	queryText := BuildQueryText(terms, exclusions)

	s := newSearch(queryText, token, scope)

	c.mu.Lock()
	c.searches[token] = s
	c.onResult[token] = onResult
	c.onDone[token] = onDone
	c.optsByToken[token] = opts
	c.mu.Unlock()

	if err := c.send(scope, token, queryText); err != nil {
		c.finish(token, Completed|Errored)
		return s, fmt.Errorf("search: send request: %w", err)
	}

	c.armTimers(ctx, s, opts)
	return s, nil
}

func (c *Coordinator) send(scope Scope, token uint32, text string) error {
	switch scope.Kind {
	case ScopeNetwork:
		return c.sender.SendSearchRequest(token, text)
	case ScopeRoom:
		return c.sender.SendRoomSearchRequest(scope.Room, token, text)
	case ScopeUser:
		var firstErr error
		for _, u := range scope.Users {
			if err := c.sender.SendUserSearchRequest(u, token, text); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	case ScopeWishlist:
		return c.sender.SendWishlistSearchRequest(token, text)
	default:
		return fmt.Errorf("search: unrecognized scope kind %d", scope.Kind)
	}
}

// armTimers starts the overall-timeout and idle-timeout watchers for s. The
// idle timer is reset on every HandleResponse call; either firing (or ctx
// being cancelled) finishes the search.
func (c *Coordinator) armTimers(ctx context.Context, s *Search, opts Options) {
	if opts.IdleTimeout > 0 {
		s.mu.Lock()
		s.idleTimer = time.AfterFunc(opts.IdleTimeout, func() { c.finish(s.Token, Completed|Succeeded) })
		s.mu.Unlock()
	}

	if opts.Timeout > 0 || ctx.Done() != nil {
		go func() {
			var timeout <-chan time.Time
			if opts.Timeout > 0 {
				timer := time.NewTimer(opts.Timeout)
				defer timer.Stop()
				timeout = timer.C
			}
			select {
			case <-timeout:
				c.finish(s.Token, Completed|Succeeded)
			case <-ctx.Done():
				c.finish(s.Token, Completed|Cancelled)
			case <-s.done():
			}
		}()
	}
}

// done is a private signal channel closed once the search leaves the
// tracked map, letting armTimers' watcher goroutine exit promptly instead
// of leaking until its timer fires.
func (s *Search) done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doneCh == nil {
		s.doneCh = make(chan struct{})
	}
	return s.doneCh
}

// HandleResponse routes an inbound response to the search owning token. It
// reports terminated=true if this response caused termination, or ok=false
// if token is not tracked.
func (c *Coordinator) HandleResponse(token uint32, r Result) (terminated bool, ok bool) {
	c.mu.Lock()
	s, found := c.searches[token]
	cb := c.onResult[token]
	c.mu.Unlock()
	if !found {
		return false, false
	}

	s.mu.Lock()
	s.responses = append(s.responses, r)
	s.fileCount += len(r.Files)
	s.state = InProgress
	responseCount := len(s.responses)
	fileCount := s.fileCount
	s.mu.Unlock()

	if cb != nil {
		cb(r)
	}

	opts := c.optionsFor(token)
	reachedResponses := opts.ResponseLimit > 0 && responseCount >= opts.ResponseLimit
	reachedFiles := opts.FileLimit > 0 && fileCount >= opts.FileLimit
	if opts.IdleTimeout > 0 {
		s.mu.Lock()
		if s.idleTimer != nil {
			s.idleTimer.Reset(opts.IdleTimeout)
		}
		s.mu.Unlock()
	}

	if reachedResponses || reachedFiles {
		c.finish(token, Completed|Succeeded)
		return true, true
	}
	return false, true
}

// optionsFor is a thin accessor; options aren't stored on Search itself to
// keep Search free of coordinator-internal bookkeeping, so Start retains
// them in a side map.
func (c *Coordinator) optionsFor(token uint32) Options {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.optsByToken[token]
}

// Cancel terminates the search identified by token, if tracked.
func (c *Coordinator) Cancel(token uint32) error {
	c.mu.Lock()
	_, found := c.searches[token]
	c.mu.Unlock()
	if !found {
		return ErrUnknownToken
	}
	c.finish(token, Completed|Cancelled)
	return nil
}

// CancelAll terminates every tracked search (spec §8 teardown scenario).
func (c *Coordinator) CancelAll() {
	c.mu.Lock()
	tokens := make([]uint32, 0, len(c.searches))
	for tok := range c.searches {
		tokens = append(tokens, tok)
	}
	c.mu.Unlock()
	for _, tok := range tokens {
		c.finish(tok, Completed|Cancelled)
	}
}

func (c *Coordinator) finish(token uint32, state State) {
	c.mu.Lock()
	s, found := c.searches[token]
	done := c.onDone[token]
	if found {
		delete(c.searches, token)
		delete(c.onResult, token)
		delete(c.onDone, token)
		delete(c.optsByToken, token)
	}
	c.mu.Unlock()
	if !found {
		return
	}

	s.setState(state)
	s.mu.Lock()
	if s.idleTimer != nil {
		s.idleTimer.Stop()
	}
	if s.doneCh != nil {
		select {
		case <-s.doneCh:
		default:
			close(s.doneCh)
		}
	}
	s.mu.Unlock()

	if done != nil {
		done(s)
	}
}
