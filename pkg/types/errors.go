package types

import (
	"errors"
	"fmt"
	"time"
)

// Error kinds. A LogError matches its kind with errors.Is.
var (
	ErrLogIO              = errors.New("log I/O failure")
	ErrLogRotation        = errors.New("log rotation failure")
	ErrQueueSpaceExceeded = errors.New("log queue space exceeded")
	ErrFormat             = errors.New("log format failure")

	ErrLoggerClosed  = errors.New("logger is closed")
	ErrLoggerExists  = errors.New("logger already exists")
	ErrInvalidConfig = errors.New("invalid logger configuration")
)

// LogError is a failure raised while delivering log output.
type LogError struct {
	Op        string // Operation that failed: "print", "flush", "rotate", "enqueue", "format", "worker"
	Sink      string // Destination involved, if any
	Kind      error  // One of the Err* kind sentinels
	Message   string
	Err       error
	Timestamp time.Time
}

// NewLogError builds a LogError stamped with the current time.
func NewLogError(kind error, op, sink, message string, err error) *LogError {
	return &LogError{
		Op:        op,
		Sink:      sink,
		Kind:      kind,
		Message:   message,
		Err:       err,
		Timestamp: time.Now(),
	}
}

// Error implements the error interface.
func (e *LogError) Error() string {
	msg := e.Message
	if msg == "" && e.Kind != nil {
		msg = e.Kind.Error()
	}
	if e.Sink != "" {
		msg = fmt.Sprintf("%s %s: %s", e.Op, e.Sink, msg)
	} else if e.Op != "" {
		msg = fmt.Sprintf("%s: %s", e.Op, msg)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *LogError) Unwrap() error {
	return e.Err
}

// Is reports whether target is the kind of this error.
func (e *LogError) Is(target error) bool {
	return e.Kind != nil && target == e.Kind
}
