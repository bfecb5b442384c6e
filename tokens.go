package soulseek

import (
	"go.uber.org/atomic"
)

// TokenGenerator produces the monotonically increasing 32-bit tokens used to
// correlate transfers, searches, and privilege notifications (spec §9
// "Token generation rollover"). It wraps around at the maximum positive
// int32 value rather than the full uint32 range, matching the source's
// signed-integer token space; duplicate detection on insert (done by the
// transfer/search registries, not here) is what actually guards against
// collisions after wraparound.
type TokenGenerator struct {
	next *atomic.Uint32
}

const maxToken uint32 = 1<<31 - 1

// NewTokenGenerator builds a generator starting at start (spec §6
// "starting_token").
func NewTokenGenerator(start uint32) *TokenGenerator {
	return &TokenGenerator{next: atomic.NewUint32(start)}
}

// Next returns the next token and advances the generator, wrapping to zero
// after maxToken.
func (g *TokenGenerator) Next() uint32 {
	for {
		cur := g.next.Load()
		next := cur + 1
		if cur == maxToken {
			next = 0
		}
		if g.next.CAS(cur, next) {
			return cur
		}
	}
}
