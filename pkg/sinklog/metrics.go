package sinklog

import (
	"fmt"

	"github.com/wayneeseguin/sinklog/internal/metrics"
	"github.com/wayneeseguin/sinklog/pkg/backends"
)

// Metrics is a point-in-time snapshot of a logger's counters
type Metrics = metrics.Metrics

// SinkMetrics describes one attached sink
type SinkMetrics = metrics.SinkMetrics

// Metrics returns a snapshot of the logger's counters, queue occupancy and
// per-sink statistics.
func (l *Logger) Metrics() Metrics {
	var depth, capacity int
	if l.queue != nil {
		depth, capacity = l.queue.depth(), l.queue.capacity()
	}

	l.sinksMu.RLock()
	sinks := make([]SinkMetrics, 0, len(l.sinks.list))
	for _, a := range l.sinks.list {
		sm := SinkMetrics{
			Name: a.name,
			Type: fmt.Sprintf("%T", a.sink),
		}
		if sp, ok := a.sink.(backends.StatsProvider); ok {
			st := sp.Stats()
			sm.BytesWritten = st.BytesWritten
			sm.Writes = st.WriteCount
			sm.Errors = st.ErrorCount
			sm.LastWrite = st.LastWrite
		}
		if m := rotationManager(a.sink); m != nil {
			sm.Rotations = m.Rotations()
		}
		sinks = append(sinks, sm)
	}
	l.sinksMu.RUnlock()

	return l.metrics.GetMetrics(depth, capacity, sinks)
}

// ResetMetrics zeroes the logger's counters. Sink statistics are unaffected.
func (l *Logger) ResetMetrics() {
	l.metrics.ResetMetrics()
}
