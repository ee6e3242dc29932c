// Package nonce implements the per-sender monotonic nonce counter
// described in spec §4.2, safe for concurrent callers across distinct
// senders without contention.
package nonce

import (
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
)

// Allocator maps a sender address to a monotonically nondecreasing
// counter. The underlying sync.Map gives independent senders their own
// atomic counter, so two senders never block each other; a single
// sender's counter is only ever touched through its own atomic.Uint64,
// which is what keeps next_nonce serializable per sender.
type Allocator struct {
	counters sync.Map // common.Address -> *atomic.Uint64
}

// New creates an empty Allocator.
func New() *Allocator {
	return &Allocator{}
}

func (a *Allocator) counterFor(addr common.Address) *atomic.Uint64 {
	if v, ok := a.counters.Load(addr); ok {
		return v.(*atomic.Uint64)
	}
	fresh := new(atomic.Uint64)
	actual, _ := a.counters.LoadOrStore(addr, fresh)
	return actual.(*atomic.Uint64)
}

// NextNonce atomically returns the current counter value for addr and
// increments it. An unseen sender starts at 0.
func (a *Allocator) NextNonce(addr common.Address) uint64 {
	return a.counterFor(addr).Add(1) - 1
}

// PeekNonce returns the current counter for addr without mutating it.
// Returns 0 for an unseen sender.
func (a *Allocator) PeekNonce(addr common.Address) uint64 {
	if v, ok := a.counters.Load(addr); ok {
		return v.(*atomic.Uint64).Load()
	}
	return 0
}

// UpdateNonce forces the counter for addr to n, overriding whatever was
// there. Used at startup to seed from on-chain state, and after
// "nonce too low" feedback indicates the local counter has drifted.
func (a *Allocator) UpdateNonce(addr common.Address, n uint64) {
	a.counterFor(addr).Store(n)
}
