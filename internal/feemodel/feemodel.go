// Package feemodel implements the bounded rolling window of recently
// observed base fees described in spec §4.1: current fee, trend, and
// volatility over the last N samples.
package feemodel

import (
	"math"
	"sync"
)

// Model is a bounded in-order window of base fee samples. The zero value
// is not usable; construct with New.
//
// Concurrency: a single writer calls Update; any number of readers may
// call CurrentFee/Trend/Volatility concurrently and always observe a
// consistent snapshot of the window (never a partial update).
type Model struct {
	mu         sync.RWMutex
	fees       []uint64
	maxHistory int
}

// New creates a Model retaining at most maxHistory samples.
func New(maxHistory int) *Model {
	return &Model{
		fees:       make([]uint64, 0, maxHistory),
		maxHistory: maxHistory,
	}
}

// Update appends baseFee to the tail of the window, evicting the oldest
// sample once the window is at capacity.
func (m *Model) Update(baseFee uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.fees) >= m.maxHistory {
		// Shift left by one, dropping the head. The window is small
		// (capacity is configured, typically ~100), so this is cheap.
		copy(m.fees, m.fees[1:])
		m.fees = m.fees[:len(m.fees)-1]
	}
	m.fees = append(m.fees, baseFee)
}

// CurrentFee returns the most recently inserted sample, or 0 when empty.
func (m *Model) CurrentFee() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.fees) == 0 {
		return 0
	}
	return m.fees[len(m.fees)-1]
}

// Trend returns (last - first) / count, a signed per-sample rate-of-change
// proxy. Returns 0.0 with fewer than 2 samples.
func (m *Model) Trend() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.fees) < 2 {
		return 0.0
	}
	first := float64(m.fees[0])
	last := float64(m.fees[len(m.fees)-1])
	return (last - first) / float64(len(m.fees))
}

// Volatility returns the population standard deviation of the window.
// Returns 0.0 with fewer than 2 samples.
func (m *Model) Volatility() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := len(m.fees)
	if n < 2 {
		return 0.0
	}

	var sum float64
	for _, f := range m.fees {
		sum += float64(f)
	}
	mean := sum / float64(n)

	var sqDiff float64
	for _, f := range m.fees {
		d := float64(f) - mean
		sqDiff += d * d
	}
	variance := sqDiff / float64(n)
	return math.Sqrt(variance)
}

// Len reports the current window size, for metrics and tests.
func (m *Model) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.fees)
}
