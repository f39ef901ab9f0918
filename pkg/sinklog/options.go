package sinklog

import (
	"fmt"
	"time"

	"github.com/wayneeseguin/sinklog/pkg/types"
)

// Option configures a Logger at construction time.
type Option func(*Config) error

// WithLevel sets the severity threshold
func WithLevel(level types.Severity) Option {
	return func(c *Config) error {
		c.Level = level
		return nil
	}
}

// WithFormatter sets the logger's default formatter
func WithFormatter(f types.Formatter) Option {
	return func(c *Config) error {
		if f == nil {
			return fmt.Errorf("%w: nil formatter", types.ErrInvalidConfig)
		}
		c.Formatter = f
		return nil
	}
}

// WithSink attaches a sink at construction time
func WithSink(sink types.Sink, opts ...SinkOption) Option {
	return func(c *Config) error {
		if sink == nil {
			return fmt.Errorf("%w: nil sink", types.ErrInvalidConfig)
		}
		a := SinkAttachment{Sink: sink}
		for _, opt := range opts {
			opt(&a)
		}
		c.Sinks = append(c.Sinks, a)
		return nil
	}
}

// WithAsync enables the background worker with a queue of the given
// capacity. A capacity of zero keeps the default.
func WithAsync(capacity int) Option {
	return func(c *Config) error {
		if capacity < 0 {
			return fmt.Errorf("%w: negative queue capacity %d", types.ErrInvalidConfig, capacity)
		}
		c.Async = true
		if capacity > 0 {
			c.QueueCapacity = capacity
		}
		return nil
	}
}

// WithWorkerInterval sets how long the worker sleeps between polls
func WithWorkerInterval(d time.Duration) Option {
	return func(c *Config) error {
		c.WorkerInterval = d
		return nil
	}
}

// WithOverflow sets the full-queue policy
func WithOverflow(p OverflowPolicy) Option {
	return func(c *Config) error {
		c.Overflow = p
		return nil
	}
}

// WithBlockTimeout bounds how long OverflowBlock waits; negative waits forever
func WithBlockTimeout(d time.Duration) Option {
	return func(c *Config) error {
		c.BlockTimeout = d
		return nil
	}
}

// WithShutdownMode sets whether Close drains or discards queued entries
func WithShutdownMode(m ShutdownMode) Option {
	return func(c *Config) error {
		c.Shutdown = m
		return nil
	}
}

// WithIsolatedLevels surrounds messages at these levels with blank lines
func WithIsolatedLevels(levels ...types.Severity) Option {
	return func(c *Config) error {
		c.IsolatedLevels = types.Mask(levels...)
		return nil
	}
}

// WithFlushPolicy sets when sinks are flushed after a write
func WithFlushPolicy(p FlushPolicy) Option {
	return func(c *Config) error {
		c.Flush = p
		return nil
	}
}

// WithErrorHandler sets the handler for asynchronous failures
func WithErrorHandler(h ErrorHandler) Option {
	return func(c *Config) error {
		c.ErrorHandler = h
		return nil
	}
}

// WithClock replaces the timestamp source
func WithClock(clock func() time.Time) Option {
	return func(c *Config) error {
		c.Clock = clock
		return nil
	}
}

// SinkOption adjusts a sink attachment.
type SinkOption func(*SinkAttachment)

// WithSinkFormatter renders this sink's lines with f instead of the logger
// formatter
func WithSinkFormatter(f types.Formatter) SinkOption {
	return func(a *SinkAttachment) {
		a.Formatter = f
	}
}

// WithExcludedLevels keeps messages at these levels away from the sink
func WithExcludedLevels(levels ...types.Severity) SinkOption {
	return func(a *SinkAttachment) {
		a.Excluded |= types.Mask(levels...)
	}
}
