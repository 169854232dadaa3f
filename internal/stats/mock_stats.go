package stats

import (
	"sync"

	"github.com/stretchr/testify/mock"
)

// MockStatsUpdater records counter updates. Tests that don't care which
// counters move can allow any name with On("Incr", mock.Anything).
type MockStatsUpdater struct {
	mock.Mock

	mu     sync.Mutex
	counts map[string]int
}

var _ StatsProvider = (*MockStatsUpdater)(nil)

func (m *MockStatsUpdater) Incr(name string) {
	m.record("Incr", name)
	m.Called(name)
}

func (m *MockStatsUpdater) Decr(name string) {
	m.record("Decr", name)
	m.Called(name)
}

func (m *MockStatsUpdater) record(method, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.counts == nil {
		m.counts = make(map[string]int)
	}
	m.counts[method+" "+name]++
}

// Count returns how many times method was called with name. It is safe to
// call while other goroutines are still updating counters.
func (m *MockStatsUpdater) Count(method, name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[method+" "+name]
}
