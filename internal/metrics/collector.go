package metrics

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/wayneeseguin/sinklog/pkg/types"
)

// Collector handles metrics collection for a logger.
type Collector struct {
	// Message counts by level
	messagesByLevel  sync.Map // map[types.Severity]*atomic.Uint64
	messagesFiltered atomic.Uint64
	messagesDropped  atomic.Uint64

	// Sink operations
	rotationCount atomic.Uint64
	bytesWritten  atomic.Uint64
	writeCount    atomic.Uint64

	// Error metrics
	errorCount     atomic.Uint64
	errorsBySource sync.Map // map[string]*atomic.Uint64

	// Dispatch timing
	totalWriteTime atomic.Int64 // nanoseconds
	maxWriteTime   atomic.Int64 // nanoseconds
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{}
}

// Metrics contains runtime metrics for the logger.
type Metrics struct {
	// Message counts by level name
	MessagesLogged   map[string]uint64 `json:"messages_logged"`
	MessagesFiltered uint64            `json:"messages_filtered"`
	MessagesDropped  uint64            `json:"messages_dropped"`

	// Queue metrics
	QueueDepth       int     `json:"queue_depth"`
	QueueCapacity    int     `json:"queue_capacity"`
	QueueUtilization float64 `json:"queue_utilization"`

	// Sink operations
	RotationCount uint64 `json:"rotation_count"`
	BytesWritten  uint64 `json:"bytes_written"`
	WriteCount    uint64 `json:"write_count"`

	// Error metrics
	ErrorCount     uint64            `json:"error_count"`
	ErrorsBySource map[string]uint64 `json:"errors_by_source"`

	// Dispatch timing
	AverageWriteTime time.Duration `json:"average_write_time"`
	MaxWriteTime     time.Duration `json:"max_write_time"`

	// Sink metrics
	SinkCount int           `json:"sink_count"`
	Sinks     []SinkMetrics `json:"sinks"`
}

// SinkMetrics contains metrics for a single sink.
type SinkMetrics struct {
	Name         string    `json:"name"`
	Type         string    `json:"type"`
	BytesWritten uint64    `json:"bytes_written"`
	Writes       uint64    `json:"writes"`
	Errors       uint64    `json:"errors"`
	Rotations    uint64    `json:"rotations"`
	LastWrite    time.Time `json:"last_write"`
}

// GetMetrics returns current metrics snapshot.
func (c *Collector) GetMetrics(queueDepth, queueCapacity int, sinks []SinkMetrics) Metrics {
	metrics := Metrics{
		MessagesLogged:   make(map[string]uint64),
		MessagesFiltered: c.messagesFiltered.Load(),
		MessagesDropped:  c.messagesDropped.Load(),
		QueueDepth:       queueDepth,
		QueueCapacity:    queueCapacity,
		RotationCount:    c.rotationCount.Load(),
		BytesWritten:     c.bytesWritten.Load(),
		WriteCount:       c.writeCount.Load(),
		ErrorCount:       c.errorCount.Load(),
		ErrorsBySource:   make(map[string]uint64),
		SinkCount:        len(sinks),
		Sinks:            sinks,
	}

	if metrics.QueueCapacity > 0 {
		metrics.QueueUtilization = float64(metrics.QueueDepth) / float64(metrics.QueueCapacity)
	}

	c.messagesByLevel.Range(func(key, value any) bool {
		if count := value.(*atomic.Uint64).Load(); count > 0 {
			metrics.MessagesLogged[key.(types.Severity).String()] = count
		}
		return true
	})

	c.errorsBySource.Range(func(key, value any) bool {
		if count := value.(*atomic.Uint64).Load(); count > 0 {
			metrics.ErrorsBySource[key.(string)] = count
		}
		return true
	})

	if writes := metrics.WriteCount; writes > 0 {
		metrics.AverageWriteTime = time.Duration(c.totalWriteTime.Load()) / time.Duration(writes)
	}
	metrics.MaxWriteTime = time.Duration(c.maxWriteTime.Load())

	return metrics
}

// ResetMetrics resets all metrics counters.
func (c *Collector) ResetMetrics() {
	c.messagesByLevel.Range(func(_, value any) bool {
		value.(*atomic.Uint64).Store(0)
		return true
	})
	c.errorsBySource.Range(func(_, value any) bool {
		value.(*atomic.Uint64).Store(0)
		return true
	})

	c.messagesFiltered.Store(0)
	c.messagesDropped.Store(0)
	c.rotationCount.Store(0)
	c.bytesWritten.Store(0)
	c.writeCount.Store(0)
	c.errorCount.Store(0)
	c.totalWriteTime.Store(0)
	c.maxWriteTime.Store(0)
}

// TrackMessageLogged increments the message counter for a level.
func (c *Collector) TrackMessageLogged(level types.Severity) {
	val, _ := c.messagesByLevel.LoadOrStore(level, &atomic.Uint64{})
	val.(*atomic.Uint64).Add(1)
}

// TrackMessageFiltered counts a message rejected by the threshold.
func (c *Collector) TrackMessageFiltered() {
	c.messagesFiltered.Add(1)
}

// TrackMessageDropped increments the dropped message counter.
func (c *Collector) TrackMessageDropped() {
	c.messagesDropped.Add(1)
}

// TrackRotation increments the rotation counter.
func (c *Collector) TrackRotation() {
	c.rotationCount.Add(1)
}

// TrackWrite records one delivery to a sink.
func (c *Collector) TrackWrite(bytes int, duration time.Duration) {
	c.bytesWritten.Add(uint64(bytes))
	c.writeCount.Add(1)
	c.totalWriteTime.Add(int64(duration))

	for {
		oldMax := c.maxWriteTime.Load()
		if int64(duration) <= oldMax {
			break
		}
		if c.maxWriteTime.CompareAndSwap(oldMax, int64(duration)) {
			break
		}
	}
}

// TrackError increments the error counter and tracks by source.
func (c *Collector) TrackError(source string) {
	c.errorCount.Add(1)
	val, _ := c.errorsBySource.LoadOrStore(source, &atomic.Uint64{})
	val.(*atomic.Uint64).Add(1)
}

// GetMessageCount returns the number of messages logged at a specific level.
func (c *Collector) GetMessageCount(level types.Severity) uint64 {
	if val, ok := c.messagesByLevel.Load(level); ok {
		return val.(*atomic.Uint64).Load()
	}
	return 0
}

// GetErrorCount returns the total error count.
func (c *Collector) GetErrorCount() uint64 {
	return c.errorCount.Load()
}

// GetErrorCountBySource returns the error count for a specific source.
func (c *Collector) GetErrorCountBySource(source string) uint64 {
	if val, ok := c.errorsBySource.Load(source); ok {
		return val.(*atomic.Uint64).Load()
	}
	return 0
}

// GetDroppedCount returns the number of messages lost to queue overflow.
func (c *Collector) GetDroppedCount() uint64 {
	return c.messagesDropped.Load()
}
