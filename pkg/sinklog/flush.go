package sinklog

import (
	"fmt"
	"strings"
	"time"

	"github.com/wayneeseguin/sinklog/pkg/types"
)

// DefaultFlushInterval is the Timed interval of DefaultFlushPolicy
const DefaultFlushInterval = time.Second

// FlushTrigger is a set of conditions under which sinks are flushed after a
// message has been written. Any matching trigger flushes.
type FlushTrigger uint8

// FlushManual never flushes on its own; only Flush, Close and the idle worker
// do
const FlushManual FlushTrigger = 0

const (
	// FlushInstant flushes after every message
	FlushInstant FlushTrigger = 1 << iota
	// FlushTimed flushes once Interval has passed since the last flush
	FlushTimed
	// FlushFilled flushes when the queue of an asynchronous logger is full
	FlushFilled
	// FlushLevelled flushes after a message at least as severe as Level
	FlushLevelled
	// FlushCustom flushes when the Custom callback returns true
	FlushCustom
)

var triggerNames = []struct {
	t    FlushTrigger
	name string
}{
	{FlushInstant, "instant"},
	{FlushTimed, "timed"},
	{FlushFilled, "filled"},
	{FlushLevelled, "levelled"},
	{FlushCustom, "custom"},
}

// Has reports whether every trigger in o is set
func (t FlushTrigger) Has(o FlushTrigger) bool {
	return o != 0 && t&o == o
}

// String lists the set triggers, joined by '|'
func (t FlushTrigger) String() string {
	if t == FlushManual {
		return "manual"
	}
	var names []string
	for _, tn := range triggerNames {
		if t.Has(tn.t) {
			names = append(names, tn.name)
		}
	}
	return strings.Join(names, "|")
}

// ParseFlushTriggers combines trigger names. An empty list or "manual" yields
// FlushManual.
func ParseFlushTriggers(names []string) (FlushTrigger, error) {
	var t FlushTrigger
	for _, raw := range names {
		name := strings.ToLower(strings.TrimSpace(raw))
		if name == "manual" {
			continue
		}
		if name == "levelled" || name == "leveled" || name == "level" {
			t |= FlushLevelled
			continue
		}
		found := false
		for _, tn := range triggerNames {
			if tn.name == name {
				t |= tn.t
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("%w: unknown flush trigger %q", types.ErrInvalidConfig, raw)
		}
	}
	return t, nil
}

// FlushPolicy decides when sinks are flushed after a write. It is evaluated
// on the caller's goroutine for synchronous loggers and on the worker for
// asynchronous ones.
type FlushPolicy struct {
	Triggers FlushTrigger
	Interval time.Duration               // FlushTimed
	Level    types.Severity              // FlushLevelled
	Custom   func(types.LogMessage) bool // FlushCustom
}

// DefaultFlushPolicy flushes after warnings and errors and at least once a
// second while messages keep arriving.
func DefaultFlushPolicy() FlushPolicy {
	return FlushPolicy{
		Triggers: FlushLevelled | FlushTimed,
		Interval: DefaultFlushInterval,
		Level:    types.SeverityWarning,
	}
}

// InstantFlushPolicy flushes after every message
func InstantFlushPolicy() FlushPolicy {
	return FlushPolicy{Triggers: FlushInstant}
}

// ManualFlushPolicy leaves flushing to Flush, Close and the idle worker
func ManualFlushPolicy() FlushPolicy {
	return FlushPolicy{}
}

func (p *FlushPolicy) validate() error {
	if p.Triggers&^(FlushInstant|FlushTimed|FlushFilled|FlushLevelled|FlushCustom) != 0 {
		return fmt.Errorf("%w: unknown flush triggers %#x", types.ErrInvalidConfig, uint8(p.Triggers))
	}
	if p.Triggers.Has(FlushTimed) && p.Interval <= 0 {
		return fmt.Errorf("%w: timed flush needs a positive interval", types.ErrInvalidConfig)
	}
	if p.Triggers.Has(FlushLevelled) && !validLevel(p.Level) {
		return fmt.Errorf("%w: invalid flush level %d", types.ErrInvalidConfig, uint32(p.Level))
	}
	if p.Triggers.Has(FlushCustom) && p.Custom == nil {
		return fmt.Errorf("%w: custom flush needs a callback", types.ErrInvalidConfig)
	}
	return nil
}

// flushDue evaluates the policy for a message that has just been written.
// Unformatted (SeverityNone) output never counts as severe.
func (l *Logger) flushDue(msg types.LogMessage) bool {
	p := &l.flushPolicy
	due := p.Triggers.Has(FlushInstant) ||
		(p.Triggers.Has(FlushLevelled) && msg.Level != types.SeverityNone && p.Level.Allows(msg.Level)) ||
		(p.Triggers.Has(FlushFilled) && l.queue != nil && l.queue.depth() >= l.queue.capacity()-1) ||
		(p.Triggers.Has(FlushTimed) && msg.Timestamp.Sub(time.Unix(0, l.lastFlush.Load())) >= p.Interval) ||
		(p.Triggers.Has(FlushCustom) && l.customFlush(msg))
	if due {
		l.lastFlush.Store(msg.Timestamp.UnixNano())
	}
	return due
}

func (l *Logger) customFlush(msg types.LogMessage) (due bool) {
	defer func() {
		if r := recover(); r != nil {
			due = false
		}
	}()
	return l.flushPolicy.Custom(msg)
}
