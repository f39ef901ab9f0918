package backends

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/wayneeseguin/sinklog/pkg/types"
)

// ColorMode controls level colouring on a StreamSink
type ColorMode int

const (
	// ColorAuto colours output when the writer is a terminal
	ColorAuto ColorMode = iota
	// ColorAlways colours output regardless of the writer
	ColorAlways
	// ColorNever writes plain text
	ColorNever
)

// ParseColorMode parses "auto", "always" or "never"
func ParseColorMode(s string) (ColorMode, error) {
	switch strings.ToLower(s) {
	case "", "auto":
		return ColorAuto, nil
	case "always":
		return ColorAlways, nil
	case "never":
		return ColorNever, nil
	}
	return ColorAuto, types.NewLogError(types.ErrInvalidConfig, "config", "", "unknown color mode "+s, nil)
}

// levelColors are ANSI palette indexes per severity
var levelColors = map[types.Severity]lipgloss.Color{
	types.SeverityError:   lipgloss.Color("9"),
	types.SeverityWarning: lipgloss.Color("11"),
	types.SeverityInfo:    lipgloss.Color("12"),
	types.SeverityVerbose: lipgloss.Color("8"),
}

// StreamSink writes lines to an io.Writer such as stdout or stderr
type StreamSink struct {
	mu     sync.Mutex
	w      io.Writer
	name   string
	owned  bool
	styles map[types.Severity]lipgloss.Style

	counters
}

// NewStreamSink creates a sink writing to w. The writer is not closed by the
// sink.
func NewStreamSink(w io.Writer, mode ColorMode) *StreamSink {
	return newStreamSink(w, "stream", mode, false)
}

// NewStdoutSink creates a sink writing to standard output
func NewStdoutSink(mode ColorMode) *StreamSink {
	return newStreamSink(os.Stdout, "stdout", mode, false)
}

// NewStderrSink creates a sink writing to standard error
func NewStderrSink(mode ColorMode) *StreamSink {
	return newStreamSink(os.Stderr, "stderr", mode, false)
}

// NewWriteCloserSink creates a sink that closes w when it is closed
func NewWriteCloserSink(w io.WriteCloser, name string, mode ColorMode) *StreamSink {
	return newStreamSink(w, name, mode, true)
}

func newStreamSink(w io.Writer, name string, mode ColorMode, owned bool) *StreamSink {
	s := &StreamSink{w: w, name: name, owned: owned}
	if mode == ColorNever {
		return s
	}

	r := lipgloss.NewRenderer(w)
	if mode == ColorAlways {
		r.SetColorProfile(termenv.ANSI)
	}
	if r.ColorProfile() == termenv.Ascii {
		return s
	}

	s.styles = make(map[types.Severity]lipgloss.Style, len(levelColors))
	for level, color := range levelColors {
		s.styles[level] = r.NewStyle().Foreground(color).TabWidth(lipgloss.NoTabConversion)
	}
	return s
}

// Name implements Named
func (s *StreamSink) Name() string { return s.name }

// Colored reports whether the sink writes escape sequences
func (s *StreamSink) Colored() bool { return s.styles != nil }

// Stats implements StatsProvider
func (s *StreamSink) Stats() SinkStats { return s.snapshot(s.name) }

// Print implements types.Sink. Unformatted messages are never coloured.
func (s *StreamSink) Print(msg types.LogMessage, rendered string) error {
	if style, ok := s.styles[msg.Level]; ok {
		rendered = colorize(style, rendered)
	}
	line := rendered + "\n"

	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := io.WriteString(s.w, line)
	s.record(n, err)
	if err != nil {
		return types.NewLogError(types.ErrLogIO, "print", s.name, "writing log line", err)
	}
	return nil
}

// colorize styles each line separately so multi-line messages are not padded
// to a common width
func colorize(style lipgloss.Style, text string) string {
	if !strings.Contains(text, "\n") {
		return style.Render(text)
	}
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if line != "" {
			lines[i] = style.Render(line)
		}
	}
	return strings.Join(lines, "\n")
}

// Flush flushes the writer when it buffers
func (s *StreamSink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if f, ok := s.w.(interface{ Flush() error }); ok {
		if err := f.Flush(); err != nil {
			return types.NewLogError(types.ErrLogIO, "flush", s.name, "flushing writer", err)
		}
	}
	return nil
}

// Close flushes the writer and closes it if the sink owns it
func (s *StreamSink) Close() error {
	if err := s.Flush(); err != nil {
		return err
	}
	if !s.owned {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.w.(io.Closer); ok {
		if err := c.Close(); err != nil {
			return types.NewLogError(types.ErrLogIO, "close", s.name, "closing writer", err)
		}
	}
	s.owned = false
	return nil
}
