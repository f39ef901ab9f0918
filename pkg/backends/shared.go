package backends

import (
	"sync"

	"github.com/wayneeseguin/sinklog/pkg/types"
)

// Shared lets several loggers write to one sink. Each logger that attaches
// it takes a reference and releases it with Close; the wrapped sink is closed
// when the last reference goes.
type Shared struct {
	sink types.Sink

	mu     sync.Mutex
	refs   int
	closed bool
}

// Share wraps sink for use by several loggers
func Share(sink types.Sink) *Shared {
	return &Shared{sink: sink}
}

// Unwrap returns the wrapped sink
func (s *Shared) Unwrap() types.Sink { return s.sink }

// Name implements Named when the wrapped sink does
func (s *Shared) Name() string {
	if n, ok := s.sink.(Named); ok {
		return n.Name()
	}
	return "shared"
}

// Retain takes a reference. Loggers call it when the sink is attached.
func (s *Shared) Retain() {
	s.mu.Lock()
	s.refs++
	s.mu.Unlock()
}

// Refs returns the number of outstanding references
func (s *Shared) Refs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refs
}

// Print implements types.Sink
func (s *Shared) Print(msg types.LogMessage, rendered string) error {
	return s.sink.Print(msg, rendered)
}

// Flush implements types.Sink
func (s *Shared) Flush() error {
	return s.sink.Flush()
}

// Close releases one reference and closes the wrapped sink with the last
func (s *Shared) Close() error {
	s.mu.Lock()
	if s.refs > 0 {
		s.refs--
	}
	last := s.refs == 0 && !s.closed
	if last {
		s.closed = true
	}
	s.mu.Unlock()

	if !last {
		return s.sink.Flush()
	}
	return s.sink.Close()
}

// Rotate forwards to the wrapped sink when it can rotate
func (s *Shared) Rotate() (string, error) {
	if r, ok := s.sink.(Rotator); ok {
		return r.Rotate()
	}
	return "", types.NewLogError(types.ErrLogRotation, "rotate", s.Name(), "sink does not rotate", nil)
}

// Stats forwards to the wrapped sink; a sink without statistics reports only
// its name
func (s *Shared) Stats() SinkStats {
	if sp, ok := s.sink.(StatsProvider); ok {
		return sp.Stats()
	}
	return SinkStats{Name: s.Name()}
}
