package backends

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/wayneeseguin/sinklog/pkg/types"
)

type closeRecorder struct {
	bytes.Buffer
	closed bool
}

func (c *closeRecorder) Close() error {
	c.closed = true
	return nil
}

type brokenWriter struct{}

func (brokenWriter) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }

func TestStreamSink_Plain(t *testing.T) {
	var buf bytes.Buffer
	s := NewStreamSink(&buf, ColorNever)

	_ = s.Print(msg(types.SeverityError, "boom"), "[ERROR] boom")
	_ = s.Print(msg(types.SeverityNone, "raw"), "raw")

	if got := buf.String(); got != "[ERROR] boom\nraw\n" {
		t.Errorf("output = %q", got)
	}
	if s.Colored() {
		t.Error("ColorNever must not colour")
	}
}

func TestStreamSink_AutoOnNonTerminal(t *testing.T) {
	var buf bytes.Buffer
	s := NewStreamSink(&buf, ColorAuto)
	_ = s.Print(msg(types.SeverityError, "x"), "x")
	if buf.String() != "x\n" {
		t.Errorf("output = %q, want no escape codes for a non-terminal", buf.String())
	}
}

func TestStreamSink_Always(t *testing.T) {
	var buf bytes.Buffer
	s := NewStreamSink(&buf, ColorAlways)

	_ = s.Print(msg(types.SeverityError, "boom"), "boom")
	_ = s.Print(msg(types.SeverityNone, "raw"), "raw")
	_ = s.Print(msg(types.SeverityInfo, "a\tb\nc"), "a\tb\nc")

	lines := strings.Split(buf.String(), "\n")
	if !strings.Contains(lines[0], "\x1b[") || !strings.Contains(lines[0], "boom") {
		t.Errorf("error line not coloured: %q", lines[0])
	}
	if lines[1] != "raw" {
		t.Errorf("unformatted line coloured: %q", lines[1])
	}
	if !strings.Contains(lines[2], "a\tb") {
		t.Errorf("tab not preserved: %q", lines[2])
	}
	if strings.HasSuffix(strings.TrimSuffix(lines[3], "\x1b[0m"), " ") {
		t.Errorf("continuation line padded: %q", lines[3])
	}
}

func TestStreamSink_Errors(t *testing.T) {
	s := NewStreamSink(brokenWriter{}, ColorNever)
	err := s.Print(msg(types.SeverityInfo, "x"), "x")
	if !errors.Is(err, types.ErrLogIO) {
		t.Errorf("expected ErrLogIO, got %v", err)
	}
	if s.Stats().ErrorCount != 1 {
		t.Error("error not counted")
	}
}

func TestStreamSink_CloseOwned(t *testing.T) {
	w := &closeRecorder{}
	s := NewWriteCloserSink(w, "rec", ColorNever)
	_ = s.Close()
	if !w.closed {
		t.Error("owned writer should be closed")
	}

	w2 := &closeRecorder{}
	_ = NewStreamSink(w2, ColorNever).Close()
	if w2.closed {
		t.Error("borrowed writer must not be closed")
	}
}
