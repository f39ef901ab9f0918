package backends

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/wayneeseguin/sinklog/pkg/types"
)

// DefaultBufferSize for file operations
const DefaultBufferSize = 32 * 1024

// FileMode selects how an existing file is opened
type FileMode int

const (
	// ModeAppend keeps existing content
	ModeAppend FileMode = iota
	// ModeTruncate empties the file when it is first opened
	ModeTruncate
)

// ParseFileMode parses "append" or "truncate"
func ParseFileMode(s string) (FileMode, error) {
	switch s {
	case "", "append":
		return ModeAppend, nil
	case "truncate":
		return ModeTruncate, nil
	}
	return ModeAppend, types.NewLogError(types.ErrInvalidConfig, "config", "", "unknown file mode "+s, nil)
}

// FileOptions configures a FileSink
type FileOptions struct {
	Mode       FileMode
	BufferSize int

	// Lock takes an advisory lock on the file around each write so several
	// processes can share it
	Lock bool

	// BufferWhileClosed keeps lines printed while no file is open and writes
	// them once one is
	BufferWhileClosed bool

	// ConcludeWithNewline writes an empty line when the sink is closed
	ConcludeWithNewline bool
}

// FileOption configures a FileSink
type FileOption func(*FileOptions)

// WithMode sets the open mode
func WithMode(mode FileMode) FileOption {
	return func(o *FileOptions) { o.Mode = mode }
}

// WithBufferSize sets the write buffer size
func WithBufferSize(n int) FileOption {
	return func(o *FileOptions) { o.BufferSize = n }
}

// WithLock enables or disables the per-write file lock
func WithLock(enabled bool) FileOption {
	return func(o *FileOptions) { o.Lock = enabled }
}

// WithBufferWhileClosed keeps output printed while no file is open
func WithBufferWhileClosed(enabled bool) FileOption {
	return func(o *FileOptions) { o.BufferWhileClosed = enabled }
}

// WithConcludeWithNewline writes a trailing empty line on close
func WithConcludeWithNewline(enabled bool) FileOption {
	return func(o *FileOptions) { o.ConcludeWithNewline = enabled }
}

func defaultFileOptions() FileOptions {
	return FileOptions{
		BufferSize: DefaultBufferSize,
		Lock:       true,
	}
}

// FileSink writes lines to a file through a buffered writer
type FileSink struct {
	mu      sync.Mutex
	opts    FileOptions
	path    string
	file    *os.File
	writer  *bufio.Writer
	out     *fileWriter
	lock    *flock.Flock
	size    int64
	pending []string
	closed  bool

	counters
}

// NewFileSink opens path and returns a sink writing to it
func NewFileSink(path string, opts ...FileOption) (*FileSink, error) {
	s := newFileSink(opts)
	if err := s.open(path, s.opts.Mode); err != nil {
		return nil, err
	}
	return s, nil
}

// NewDetachedFileSink returns a sink with no file. Output printed before
// SetPath is buffered when BufferWhileClosed is set and rejected otherwise.
func NewDetachedFileSink(opts ...FileOption) *FileSink {
	return newFileSink(opts)
}

func newFileSink(opts []FileOption) *FileSink {
	o := defaultFileOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.BufferSize <= 0 {
		o.BufferSize = DefaultBufferSize
	}
	return &FileSink{opts: o}
}

// Name returns the file path
func (s *FileSink) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.path
}

// Size returns the bytes in the current file as seen by the sink
func (s *FileSink) Size() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

// Stats implements StatsProvider
func (s *FileSink) Stats() SinkStats {
	return s.snapshot(s.Name())
}

// Print implements types.Sink
func (s *FileSink) Print(_ types.LogMessage, rendered string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.print(rendered)
}

// SetPath closes the current file, if any, and continues in path. Lines
// buffered while no file was open are written first.
func (s *FileSink) SetPath(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return types.NewLogError(types.ErrLogIO, "open", path, "sink is closed", nil)
	}
	if s.file != nil {
		if err := s.closeFile(); err != nil {
			return types.NewLogError(types.ErrLogIO, "close", s.path, "closing previous file", err)
		}
	}
	return s.open(path, s.opts.Mode)
}

// Flush writes buffered output and syncs the file
func (s *FileSink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flush(true)
}

// Close flushes and closes the file. Closing twice is a no-op.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	var err error
	if s.file != nil && s.opts.ConcludeWithNewline {
		err = multierr.Append(err, s.write("\n"))
	}
	if s.file != nil {
		err = multierr.Append(err, s.closeFile())
	}
	s.pending = nil
	if err != nil {
		return types.NewLogError(types.ErrLogIO, "close", s.path, "closing file", err)
	}
	return nil
}

// print writes one line; s.mu must be held
func (s *FileSink) print(rendered string) error {
	if s.file == nil {
		if s.opts.BufferWhileClosed && !s.closed {
			s.pending = append(s.pending, rendered)
			return nil
		}
		err := types.NewLogError(types.ErrLogIO, "print", s.path, "no file open", nil)
		s.record(0, err)
		return err
	}

	line := rendered + "\n"
	if err := s.write(line); err != nil {
		s.record(0, err)
		return types.NewLogError(types.ErrLogIO, "print", s.path, "writing log line", err)
	}
	s.record(len(line), nil)
	return nil
}

func (s *FileSink) write(line string) error {
	if s.lock != nil {
		if err := s.lock.Lock(); err != nil {
			return errors.Wrap(err, "acquire lock")
		}
		defer func() {
			_ = s.lock.Unlock()
		}()
	}

	// a line never straddles two writes to the file
	if s.writer.Buffered() > 0 && len(line) > s.writer.Available() {
		if err := s.writer.Flush(); err != nil {
			s.writer.Reset(s.out)
			return err
		}
	}
	n, err := s.writer.WriteString(line)
	s.size += int64(n)
	if err != nil {
		s.writer.Reset(s.out)
	}
	return err
}

func (s *FileSink) flush(sync bool) error {
	if s.file == nil {
		return nil
	}
	if s.lock != nil && (s.writer.Buffered() > 0 || s.out.held()) {
		if err := s.lock.Lock(); err != nil {
			return types.NewLogError(types.ErrLogIO, "flush", s.path, "acquire lock", err)
		}
		defer func() {
			_ = s.lock.Unlock()
		}()
	}
	err := s.out.retry()
	if err == nil {
		err = s.writer.Flush()
	}
	if err != nil {
		s.writer.Reset(s.out)
		return types.NewLogError(types.ErrLogIO, "flush", s.path, "flushing buffer", err)
	}
	if sync {
		if err := s.file.Sync(); err != nil {
			return types.NewLogError(types.ErrLogIO, "flush", s.path, "syncing file", err)
		}
	}
	return nil
}

// open opens path and replays pending lines; s.mu must be held
func (s *FileSink) open(path string, mode FileMode) error {
	cleanPath := filepath.Clean(path)

	// #nosec G301 - log directories need to be accessible by other processes
	if err := os.MkdirAll(filepath.Dir(cleanPath), 0755); err != nil {
		return types.NewLogError(types.ErrLogIO, "open", cleanPath, "creating directory", err)
	}

	flags := os.O_CREATE | os.O_WRONLY | os.O_APPEND
	if mode == ModeTruncate {
		flags |= os.O_TRUNC
	}
	file, err := os.OpenFile(cleanPath, flags, 0644) // #nosec G302 - log files need to be readable
	if err != nil {
		return types.NewLogError(types.ErrLogIO, "open", cleanPath, "opening file", err)
	}

	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return types.NewLogError(types.ErrLogIO, "open", cleanPath, "stat file", err)
	}

	out := &fileWriter{dst: file}
	if s.out != nil {
		// bytes the previous file refused go to the new one first
		out.unwritten = s.out.unwritten
	}

	s.file = file
	s.out = out
	s.path = cleanPath
	s.size = info.Size() + int64(len(out.unwritten))
	if s.writer == nil {
		s.writer = bufio.NewWriterSize(out, s.opts.BufferSize)
	} else {
		s.writer.Reset(out)
	}
	if s.opts.Lock {
		s.lock = flock.New(cleanPath)
	}

	pending := s.pending
	s.pending = nil
	var errs error
	for _, line := range pending {
		errs = multierr.Append(errs, s.print(line))
	}
	return errs
}

// closeFile flushes and closes the handle; s.mu must be held
func (s *FileSink) closeFile() error {
	err := s.flush(false)
	if s.lock != nil {
		err = multierr.Append(err, s.lock.Close())
		s.lock = nil
	}
	if cerr := s.file.Close(); cerr != nil {
		err = multierr.Append(err, errors.Wrap(cerr, "close file"))
	}
	s.file = nil
	return err
}

// fileWriter passes writes to the file and keeps whatever the file refused.
// The kept bytes are written ahead of anything else on the next attempt, so a
// full disk delays output instead of losing it.
type fileWriter struct {
	dst       io.Writer
	unwritten []byte
}

func (w *fileWriter) held() bool { return len(w.unwritten) > 0 }

// retry writes the kept bytes
func (w *fileWriter) retry() error {
	if len(w.unwritten) == 0 {
		return nil
	}
	n, err := w.dst.Write(w.unwritten)
	w.unwritten = w.unwritten[n:]
	if len(w.unwritten) == 0 {
		w.unwritten = nil
	}
	return err
}

func (w *fileWriter) Write(p []byte) (int, error) {
	if err := w.retry(); err != nil {
		w.unwritten = append(w.unwritten, p...)
		return 0, err
	}
	n, err := w.dst.Write(p)
	if err != nil {
		w.unwritten = append(w.unwritten, p[n:]...)
	}
	return n, err
}

// WriteString keeps bufio from splitting a long line into buffer-sized writes
func (w *fileWriter) WriteString(s string) (int, error) {
	return w.Write([]byte(s))
}

// heldFile exposes a FileSink to the rotation manager while the sink's lock
// is held by the caller
type heldFile struct {
	s *FileSink
}

func (h heldFile) Path() string { return h.s.path }

func (h heldFile) CloseFile() error {
	if h.s.file == nil {
		return nil
	}
	return h.s.closeFile()
}

func (h heldFile) OpenFile() error {
	return h.s.open(h.s.path, ModeAppend)
}
