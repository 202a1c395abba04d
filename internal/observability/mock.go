package observability

import (
	"sync"
	"time"
)

// MockMetricsRegistry records counter increments so tests can assert on them.
type MockMetricsRegistry struct {
	mu       sync.Mutex
	counters map[string]int
}

func (m *MockMetricsRegistry) inc(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counters == nil {
		m.counters = make(map[string]int)
	}
	m.counters[key]++
}

// Count returns how often the counter named key was incremented, e.g.
// "dispatch:success" or "blocks:missing".
func (m *MockMetricsRegistry) Count(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[key]
}

func (m *MockMetricsRegistry) IncrementRequests(endpoint, method, status string) {
	m.inc("requests:" + endpoint + ":" + status)
}
func (m *MockMetricsRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {}
func (m *MockMetricsRegistry) RecordPlaceholders(count int)                                         {}
func (m *MockMetricsRegistry) IncrementCollectionFailures()                                         { m.inc("collection:failure") }
func (m *MockMetricsRegistry) IncrementDispatch(outcome string)                                     { m.inc("dispatch:" + outcome) }
func (m *MockMetricsRegistry) RecordDispatchLatency(duration time.Duration)                         {}
func (m *MockMetricsRegistry) IncrementBlocks(result string)                                        { m.inc("blocks:" + result) }
func (m *MockMetricsRegistry) IncrementCodeSnippets(result string)                                  { m.inc("code:" + result) }
func (m *MockMetricsRegistry) IncrementSourceErrors(source string)                                  { m.inc("source:" + source) }
