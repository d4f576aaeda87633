package utils

import (
	"sync"
	"time"
)

// Tracks performance metrics across the system
type MetricsCollector struct {
	mu           sync.RWMutex
	requestCount uint64
	errorCount   uint64

	// Maps operation name to list of latencies in nanoseconds
	operationTimes map[string][]int64

	systemStartTime time.Time
}

func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		operationTimes:  make(map[string][]int64),
		systemStartTime: time.Now(),
	}
}

func (mc *MetricsCollector) IncrementRequests() {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.requestCount++
}

func (mc *MetricsCollector) IncrementErrors() {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.errorCount++
}

func (mc *MetricsCollector) AddOperationLatency(operationName string, duration time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if _, exists := mc.operationTimes[operationName]; !exists {
		mc.operationTimes[operationName] = make([]int64, 0)
	}
	mc.operationTimes[operationName] = append(
		mc.operationTimes[operationName],
		duration.Nanoseconds(),
	)
}

// OperationCount returns how many samples were recorded for an operation.
func (mc *MetricsCollector) OperationCount(operationName string) int {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	return len(mc.operationTimes[operationName])
}

// MetricsSnapshot is a point-in-time view for the metrics endpoint.
type MetricsSnapshot struct {
	RequestCount uint64                   `json:"requestCount"`
	ErrorCount   uint64                   `json:"errorCount"`
	UptimeSec    float64                  `json:"uptimeSeconds"`
	Operations   map[string]OperationStat `json:"operations"`
}

type OperationStat struct {
	Count      int     `json:"count"`
	AvgLatency float64 `json:"avgLatencyMs"`
}

// Snapshot aggregates per-operation counts and average latencies.
func (mc *MetricsCollector) Snapshot() *MetricsSnapshot {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	snap := &MetricsSnapshot{
		RequestCount: mc.requestCount,
		ErrorCount:   mc.errorCount,
		UptimeSec:    time.Since(mc.systemStartTime).Seconds(),
		Operations:   make(map[string]OperationStat, len(mc.operationTimes)),
	}
	for name, samples := range mc.operationTimes {
		var total int64
		for _, ns := range samples {
			total += ns
		}
		stat := OperationStat{Count: len(samples)}
		if len(samples) > 0 {
			stat.AvgLatency = float64(total) / float64(len(samples)) / 1e6
		}
		snap.Operations[name] = stat
	}
	return snap
}

// Uptime reports how long the collector has been alive.
func (mc *MetricsCollector) Uptime() time.Duration {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	return time.Since(mc.systemStartTime)
}
