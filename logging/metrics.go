package logging

import "sync"

// Metrics is a coarse counter registry shared by server components. Keys are
// free-form metric names; values are monotonic unless Store overwrites them.
type Metrics struct {
	mu       sync.RWMutex
	counters map[string]uint64
}

func (m *Metrics) TelemetryAdd(key string, delta uint64) {
	if m == nil || key == "" {
		return
	}
	m.mu.Lock()
	if m.counters == nil {
		m.counters = make(map[string]uint64)
	}
	m.counters[key] += delta
	m.mu.Unlock()
}

func (m *Metrics) TelemetryStore(key string, value uint64) {
	if m == nil || key == "" {
		return
	}
	m.mu.Lock()
	if m.counters == nil {
		m.counters = make(map[string]uint64)
	}
	m.counters[key] = value
	m.mu.Unlock()
}

// Snapshot copies the current counter values.
func (m *Metrics) Snapshot() map[string]uint64 {
	if m == nil {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	snapshot := make(map[string]uint64, len(m.counters))
	for key, value := range m.counters {
		snapshot[key] = value
	}
	return snapshot
}
