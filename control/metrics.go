// control/metrics.go
// Author: momentics <momentics@gmail.com>
//
// Scheduler metrics collector. Counters are published by the runtime and
// reactor on demand; the registry itself is thread-safe so snapshots can be
// read from a monitoring goroutine while the scheduler runs.

package control

import (
	"sync"
	"time"
)

// MetricsRegistry holds named scheduler/reactor counters.
type MetricsRegistry struct {
	mu      sync.RWMutex
	metrics map[string]any
	updated time.Time
}

// NewMetricsRegistry creates an empty registry.
func NewMetricsRegistry() *MetricsRegistry {
	return &MetricsRegistry{
		metrics: make(map[string]any),
	}
}

// Set sets or updates a metric key.
func (mr *MetricsRegistry) Set(key string, value any) {
	mr.mu.Lock()
	mr.metrics[key] = value
	mr.updated = time.Now()
	mr.mu.Unlock()
}

// Inc increments an int64 counter, creating it at delta if absent.
func (mr *MetricsRegistry) Inc(key string, delta int64) {
	mr.mu.Lock()
	if v, ok := mr.metrics[key].(int64); ok {
		mr.metrics[key] = v + delta
	} else {
		mr.metrics[key] = delta
	}
	mr.updated = time.Now()
	mr.mu.Unlock()
}

// GetSnapshot returns a copy of the latest metrics.
func (mr *MetricsRegistry) GetSnapshot() map[string]any {
	mr.mu.RLock()
	defer mr.mu.RUnlock()
	out := make(map[string]any, len(mr.metrics))
	for k, v := range mr.metrics {
		out[k] = v
	}
	return out
}

// Updated returns when the registry last changed.
func (mr *MetricsRegistry) Updated() time.Time {
	mr.mu.RLock()
	defer mr.mu.RUnlock()
	return mr.updated
}
