package testing

import (
	"errors"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/wayneeseguin/sinklog/pkg/types"
)

// Record is one line received by a MemorySink
type Record struct {
	Message  types.LogMessage
	Rendered string
}

// MemorySink keeps every line in memory
type MemorySink struct {
	mu      sync.Mutex
	records []Record
	flushes int
	closes  int
}

// NewMemorySink creates an empty MemorySink
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Print implements types.Sink
func (s *MemorySink) Print(msg types.LogMessage, rendered string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, Record{Message: msg, Rendered: rendered})
	return nil
}

// Flush implements types.Sink
func (s *MemorySink) Flush() error {
	s.mu.Lock()
	s.flushes++
	s.mu.Unlock()
	return nil
}

// Close implements types.Sink
func (s *MemorySink) Close() error {
	s.mu.Lock()
	s.closes++
	s.mu.Unlock()
	return nil
}

// Records returns a copy of the received lines
func (s *MemorySink) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Record(nil), s.records...)
}

// Lines returns the rendered text of every received line
func (s *MemorySink) Lines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	lines := make([]string, len(s.records))
	for i, r := range s.records {
		lines[i] = r.Rendered
	}
	return lines
}

// Texts returns the raw message text of every received line
func (s *MemorySink) Texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	texts := make([]string, len(s.records))
	for i, r := range s.records {
		texts[i] = r.Message.Text
	}
	return texts
}

// Len returns the number of received lines
func (s *MemorySink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Flushes returns how often Flush was called
func (s *MemorySink) Flushes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushes
}

// Closes returns how often Close was called
func (s *MemorySink) Closes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

// CountingFormatter renders "<LEVEL> <text>" and counts its calls
type CountingFormatter struct {
	calls atomic.Int64
	// Prefix is prepended to every line, to tell formatters apart
	Prefix string
}

// Format implements types.Formatter
func (f *CountingFormatter) Format(msg types.LogMessage) (string, error) {
	f.calls.Add(1)
	return f.Prefix + msg.Level.String() + " " + msg.Text, nil
}

// Calls returns how often Format ran
func (f *CountingFormatter) Calls() int64 {
	return f.calls.Load()
}

// ErrSinkFailure is returned by FailingSink
var ErrSinkFailure = errors.New("sink failure")

// FailingSink fails every operation
type FailingSink struct {
	attempts atomic.Int64
}

// Print implements types.Sink
func (s *FailingSink) Print(types.LogMessage, string) error {
	s.attempts.Add(1)
	return ErrSinkFailure
}

// Flush implements types.Sink
func (s *FailingSink) Flush() error { return ErrSinkFailure }

// Close implements types.Sink
func (s *FailingSink) Close() error { return nil }

// Attempts returns how often Print was called
func (s *FailingSink) Attempts() int64 { return s.attempts.Load() }

// PanickingSink panics on Print when the text contains Trigger
type PanickingSink struct {
	MemorySink
	Trigger string
}

// Print implements types.Sink
func (s *PanickingSink) Print(msg types.LogMessage, rendered string) error {
	if strings.Contains(msg.Text, s.Trigger) {
		panic("sink exploded on " + msg.Text)
	}
	return s.MemorySink.Print(msg, rendered)
}

// BlockingSink holds every Print until Release is called
type BlockingSink struct {
	MemorySink
	gate    chan struct{}
	once    sync.Once
	entered chan struct{}
}

// NewBlockingSink creates a BlockingSink that is initially closed
func NewBlockingSink() *BlockingSink {
	return &BlockingSink{gate: make(chan struct{}), entered: make(chan struct{}, 1024)}
}

// Print implements types.Sink
func (s *BlockingSink) Print(msg types.LogMessage, rendered string) error {
	select {
	case s.entered <- struct{}{}:
	default:
	}
	<-s.gate
	return s.MemorySink.Print(msg, rendered)
}

// Entered is signalled each time a Print starts waiting
func (s *BlockingSink) Entered() <-chan struct{} { return s.entered }

// Release lets every pending and future Print through
func (s *BlockingSink) Release() {
	s.once.Do(func() { close(s.gate) })
}
