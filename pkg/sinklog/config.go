package sinklog

import (
	"fmt"
	"strings"
	"time"

	"github.com/wayneeseguin/sinklog/pkg/formatters"
	"github.com/wayneeseguin/sinklog/pkg/types"
)

// Defaults applied by DefaultConfig and Validate.
const (
	DefaultLevel          = types.SeverityInfo
	DefaultQueueCapacity  = 1024
	DefaultWorkerInterval = 100 * time.Millisecond
	DefaultBlockTimeout   = time.Second
)

// OverflowPolicy selects what an asynchronous logger does when its queue is
// full.
type OverflowPolicy int

const (
	// OverflowBlock waits for space, up to Config.BlockTimeout
	OverflowBlock OverflowPolicy = iota
	// OverflowDropOldest evicts the oldest queued entry to make room
	OverflowDropOldest
	// OverflowDropNewest rejects the new entry
	OverflowDropNewest
)

// String returns the configuration name of the policy
func (p OverflowPolicy) String() string {
	switch p {
	case OverflowBlock:
		return "block"
	case OverflowDropOldest:
		return "drop-oldest"
	case OverflowDropNewest:
		return "drop-newest"
	}
	return fmt.Sprintf("overflow(%d)", int(p))
}

// ParseOverflowPolicy converts a configuration name into an OverflowPolicy
func ParseOverflowPolicy(s string) (OverflowPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "block":
		return OverflowBlock, nil
	case "drop-oldest", "drop_oldest":
		return OverflowDropOldest, nil
	case "drop-newest", "drop_newest", "drop":
		return OverflowDropNewest, nil
	}
	return 0, fmt.Errorf("%w: unknown overflow policy %q", types.ErrInvalidConfig, s)
}

// ShutdownMode selects what happens to queued entries on Close.
type ShutdownMode int

const (
	// ShutdownDrain writes every queued entry before closing sinks
	ShutdownDrain ShutdownMode = iota
	// ShutdownDiscard drops queued entries
	ShutdownDiscard
)

// String returns the configuration name of the mode
func (m ShutdownMode) String() string {
	if m == ShutdownDiscard {
		return "discard"
	}
	return "drain"
}

// ParseShutdownMode converts a configuration name into a ShutdownMode
func ParseShutdownMode(s string) (ShutdownMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "drain":
		return ShutdownDrain, nil
	case "discard":
		return ShutdownDiscard, nil
	}
	return 0, fmt.Errorf("%w: unknown shutdown mode %q", types.ErrInvalidConfig, s)
}

// SinkAttachment binds a sink to a logger together with its per-sink
// settings.
type SinkAttachment struct {
	Sink      types.Sink
	Formatter types.Formatter    // Overrides the logger formatter when set
	Excluded  types.SeverityMask // Levels this sink never receives
}

// Config contains everything needed to build a Logger.
type Config struct {
	Name      string
	Level     types.Severity  // Threshold; messages more verbose than this are filtered
	Formatter types.Formatter // Default formatter; nil selects the default pattern formatter
	Sinks     []SinkAttachment

	// Asynchronous mode
	Async          bool
	QueueCapacity  int
	WorkerInterval time.Duration // <0 waits without a timeout, 0 yields between polls
	Overflow       OverflowPolicy
	BlockTimeout   time.Duration // <0 blocks indefinitely
	Shutdown       ShutdownMode

	IsolatedLevels types.SeverityMask // Levels surrounded by blank lines
	Flush          FlushPolicy        // When sinks are flushed after a write
	ErrorHandler   ErrorHandler
	Clock          func() time.Time
}

// DefaultConfig returns a synchronous Info-level configuration without sinks.
func DefaultConfig() *Config {
	return &Config{
		Level:          DefaultLevel,
		Formatter:      formatters.NewPatternFormatter(""),
		QueueCapacity:  defaultQueueCapacity(),
		WorkerInterval: DefaultWorkerInterval,
		Overflow:       OverflowBlock,
		BlockTimeout:   DefaultBlockTimeout,
		Shutdown:       ShutdownDrain,
		Flush:          DefaultFlushPolicy(),
		ErrorHandler:   defaultErrorHandler(),
		Clock:          time.Now,
	}
}

// Validate checks the configuration and fills in defaults for zero values.
// It is called by NewWithConfig.
func (c *Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("%w: logger name is required", types.ErrInvalidConfig)
	}
	if c.Level == 0 {
		c.Level = DefaultLevel
	}
	if !validLevel(c.Level) {
		return fmt.Errorf("%w: invalid level %d", types.ErrInvalidConfig, uint32(c.Level))
	}
	if c.Formatter == nil {
		c.Formatter = formatters.NewPatternFormatter("")
	}
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = defaultQueueCapacity()
	}
	switch c.Overflow {
	case OverflowBlock, OverflowDropOldest, OverflowDropNewest:
	default:
		return fmt.Errorf("%w: %v", types.ErrInvalidConfig, c.Overflow)
	}
	if c.Shutdown != ShutdownDrain && c.Shutdown != ShutdownDiscard {
		return fmt.Errorf("%w: unknown shutdown mode %d", types.ErrInvalidConfig, int(c.Shutdown))
	}
	if err := c.Flush.validate(); err != nil {
		return err
	}
	if c.ErrorHandler == nil {
		c.ErrorHandler = defaultErrorHandler()
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	for i, a := range c.Sinks {
		if a.Sink == nil {
			return fmt.Errorf("%w: sink %d is nil", types.ErrInvalidConfig, i)
		}
	}
	return nil
}
