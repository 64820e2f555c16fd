package mocks

import (
	"sync"

	"github.com/mcoot/dragonrealm/internal/dependencies/random"
)

// MockRandom replays queued values. Intn clamps each value into [0, n) so a
// queue written for one world size stays valid for another.
type MockRandom struct {
	mu      sync.Mutex
	results []int
	index   int
}

// Ensure MockRandom implements Random
var _ random.Random = (*MockRandom)(nil)

// NewMockRandom creates a new MockRandom
func NewMockRandom() *MockRandom {
	return &MockRandom{}
}

// Intn returns the next queued result, or 0 if none remaining
func (r *MockRandom) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n <= 0 || r.index >= len(r.results) {
		return 0
	}
	result := r.results[r.index]
	r.index++
	if result < 0 {
		return 0
	}
	if result >= n {
		return n - 1
	}
	return result
}

// QueueIntn adds values to the Intn result queue
func (r *MockRandom) QueueIntn(values ...int) {
	r.mu.Lock()
	r.results = append(r.results, values...)
	r.mu.Unlock()
}

// Reset clears all queued results
func (r *MockRandom) Reset() {
	r.mu.Lock()
	r.results = nil
	r.index = 0
	r.mu.Unlock()
}
