package backends

import (
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/wayneeseguin/sinklog/pkg/types"
)

// Defaults for LumberjackSink
const (
	DefaultLumberjackMaxSizeMB  = 100
	DefaultLumberjackMaxBackups = 7
)

// LumberjackOptions configures a LumberjackSink
type LumberjackOptions struct {
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
	LocalTime  bool
}

// LumberjackSink writes to a file that lumberjack rotates by size. Unlike
// RotatingFileSink it needs no policy: lumberjack rotates before a write that
// would exceed MaxSizeMB and names archives with a timestamp.
type LumberjackSink struct {
	mu     sync.Mutex
	logger *lumberjack.Logger

	counters
}

// NewLumberjackSink creates a size-rotated sink for path
func NewLumberjackSink(path string, opts LumberjackOptions) *LumberjackSink {
	if opts.MaxSizeMB <= 0 {
		opts.MaxSizeMB = DefaultLumberjackMaxSizeMB
	}
	if opts.MaxBackups < 0 {
		opts.MaxBackups = DefaultLumberjackMaxBackups
	}
	return &LumberjackSink{
		logger: &lumberjack.Logger{
			Filename:   path,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   opts.Compress,
			LocalTime:  opts.LocalTime,
		},
	}
}

// Name implements Named
func (s *LumberjackSink) Name() string { return s.logger.Filename }

// Stats implements StatsProvider
func (s *LumberjackSink) Stats() SinkStats { return s.snapshot(s.logger.Filename) }

// Print implements types.Sink
func (s *LumberjackSink) Print(_ types.LogMessage, rendered string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.logger.Write([]byte(rendered + "\n"))
	s.record(n, err)
	if err != nil {
		return types.NewLogError(types.ErrLogIO, "print", s.logger.Filename, "writing log line", err)
	}
	return nil
}

// Flush is a no-op: lumberjack writes straight to the file
func (s *LumberjackSink) Flush() error { return nil }

// Rotate closes the current file, archives it and opens a new one. The
// archive name is chosen by lumberjack and not reported.
func (s *LumberjackSink) Rotate() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.logger.Rotate(); err != nil {
		return "", types.NewLogError(types.ErrLogRotation, "rotate", s.logger.Filename, "lumberjack rotation", err)
	}
	return "", nil
}

// Close implements types.Sink
func (s *LumberjackSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.logger.Close(); err != nil {
		return types.NewLogError(types.ErrLogIO, "close", s.logger.Filename, "closing file", err)
	}
	return nil
}
