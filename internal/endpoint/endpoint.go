// Package endpoint resolves and caches peer network addresses (spec §6
// "Endpoint cache").
package endpoint

import (
	"fmt"
	"net"

	lru "github.com/hashicorp/golang-lru"
)

// Endpoint is an IPv4 address and TCP port pair, as reported by the server's
// GetPeerAddress response or a ConnectToPeer notification.
type Endpoint struct {
	IP   uint32
	Port uint16
}

// Offline is the sentinel Endpoint the server uses to mean "user has no
// reachable address" (spec §4.4 "If a peer appears offline (address
// 0.0.0.0)").
var Offline = Endpoint{}

// IsOffline reports whether e is the 0.0.0.0 sentinel.
func (e Endpoint) IsOffline() bool {
	return e == Offline
}

func (e Endpoint) String() string {
	ip := net.IPv4(byte(e.IP>>24), byte(e.IP>>16), byte(e.IP>>8), byte(e.IP))
	return fmt.Sprintf("%s:%d", ip, e.Port)
}

// Cache is the collaborator contract a Peer Connection Manager uses to
// resolve usernames to endpoints (spec §6). Implementations may be backed by
// an in-memory LRU, a persistent store, or anything else; lookups are
// serialized per username by the caller, not by the cache itself.
type Cache interface {
	TryGet(username string) (Endpoint, bool)
	AddOrUpdate(username string, ep Endpoint)
}

// LRU is the default Cache, an in-memory bounded cache with a pluggable
// eviction policy supplied by golang-lru (spec §3 glossary "cached with a
// pluggable eviction policy").
type LRU struct {
	cache *lru.Cache
}

// DefaultCapacity is used when NewLRU is called with a non-positive size.
const DefaultCapacity = 1024

// NewLRU builds an LRU-backed Cache holding up to capacity entries.
func NewLRU(capacity int) (*LRU, error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	c, err := lru.New(capacity)
	if err != nil {
		return nil, fmt.Errorf("endpoint: new lru cache: %w", err)
	}
	return &LRU{cache: c}, nil
}

// TryGet returns the cached endpoint for username, if present.
func (l *LRU) TryGet(username string) (Endpoint, bool) {
	v, ok := l.cache.Get(username)
	if !ok {
		return Endpoint{}, false
	}
	return v.(Endpoint), true
}

// AddOrUpdate inserts or overwrites the cached endpoint for username.
func (l *LRU) AddOrUpdate(username string, ep Endpoint) {
	l.cache.Add(username, ep)
}

// Invalidate evicts username from the cache, used on peer disconnect (spec
// §3 glossary "invalidated on peer disconnect").
func (l *LRU) Invalidate(username string) {
	l.cache.Remove(username)
}

// Len reports the number of cached entries, for diagnostics and tests.
func (l *LRU) Len() int {
	return l.cache.Len()
}
