// Package ratelimit implements the global token-bucket admission gate
// described in spec §4.3: lock-free, integer tokens, integer-second
// refill granularity.
//
// Grounded on the teacher repo's minis/34-rate-limiter-token-bucket
// TokenBucket (atomic.Int64 tokens, CAS refill loop), collapsed from
// that mini's per-client map down to the single global bucket the
// scheduler needs.
package ratelimit

import (
	"sync/atomic"
	"time"
)

// Bucket is a token bucket admission gate. The zero value is not usable;
// construct with New.
type Bucket struct {
	tokens     atomic.Int64
	lastRefill atomic.Int64 // unix nanoseconds
	rate       int64        // tokens added per second
	maxTokens  int64
}

// New creates a Bucket starting full at max, refilling at rate tokens
// per second. max == 0 disables admission entirely: CheckAndConsume
// always returns false. rate == 0 disables refills only: the initial max
// tokens can still be consumed, after which CheckAndConsume returns false.
func New(rate, max int64) *Bucket {
	b := &Bucket{
		rate:      rate,
		maxTokens: max,
	}
	b.tokens.Store(max)
	b.lastRefill.Store(time.Now().UnixNano())
	return b
}

// CheckAndConsume runs a refill pass, then attempts to decrement tokens
// by one. Returns true on success, false on an empty bucket.
func (b *Bucket) CheckAndConsume() bool {
	b.refill()

	for {
		current := b.tokens.Load()
		if current <= 0 {
			return false
		}
		if b.tokens.CompareAndSwap(current, current-1) {
			return true
		}
		// Lost the race to another consumer; retry with the fresh value.
	}
}

// refill advances lastRefill and credits tokens for every whole second
// elapsed since the prior refill. A losing racer on the lastRefill CAS
// skips this refill pass entirely (the winner already accounted for the
// elapsed time).
func (b *Bucket) refill() {
	now := time.Now().UnixNano()
	last := b.lastRefill.Load()
	elapsed := now - last
	if elapsed <= int64(time.Second) {
		return
	}

	added := (elapsed / int64(time.Second)) * b.rate
	if added <= 0 {
		return
	}
	if !b.lastRefill.CompareAndSwap(last, now) {
		return
	}

	for {
		current := b.tokens.Load()
		next := current + added
		if next > b.maxTokens {
			next = b.maxTokens
		}
		if b.tokens.CompareAndSwap(current, next) {
			return
		}
	}
}

// Tokens reports the current token count, for metrics and tests.
func (b *Bucket) Tokens() int64 {
	return b.tokens.Load()
}
