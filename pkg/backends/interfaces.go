package backends

import (
	"sync/atomic"
	"time"
)

// Named is implemented by sinks that can identify their destination in
// errors and metrics
type Named interface {
	Name() string
}

// Rotator is implemented by sinks that can rotate their file on demand
type Rotator interface {
	Rotate() (string, error)
}

// StatsProvider is implemented by sinks that count their writes
type StatsProvider interface {
	Stats() SinkStats
}

// SinkStats represents statistics for a sink
type SinkStats struct {
	Name         string
	WriteCount   uint64
	BytesWritten uint64
	ErrorCount   uint64
	LastWrite    time.Time
	LastError    time.Time
}

// counters tracks SinkStats with atomics so Stats never waits on a write
type counters struct {
	writes    atomic.Uint64
	bytes     atomic.Uint64
	errors    atomic.Uint64
	lastWrite atomic.Int64
	lastError atomic.Int64
}

func (c *counters) record(n int, err error) {
	now := time.Now().UnixNano()
	if err != nil {
		c.errors.Add(1)
		c.lastError.Store(now)
		return
	}
	c.writes.Add(1)
	c.bytes.Add(uint64(n))
	c.lastWrite.Store(now)
}

func (c *counters) snapshot(name string) SinkStats {
	s := SinkStats{
		Name:         name,
		WriteCount:   c.writes.Load(),
		BytesWritten: c.bytes.Load(),
		ErrorCount:   c.errors.Load(),
	}
	if ns := c.lastWrite.Load(); ns != 0 {
		s.LastWrite = time.Unix(0, ns)
	}
	if ns := c.lastError.Load(); ns != 0 {
		s.LastError = time.Unix(0, ns)
	}
	return s
}
