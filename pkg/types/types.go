package types

import (
	"os"
	"time"
)

// LogMessage is one log event. It is created once per log call and passed by
// value; nothing downstream of the logger modifies it.
type LogMessage struct {
	Text      string
	Level     Severity
	Timestamp time.Time
	Logger    string // Name of the logger that produced the message
	Seq       uint64 // Per-logger sequence number, starting at 1
}

// Sink owns an output destination and serialises writes to it.
type Sink interface {
	// Print writes the rendered text of msg followed by a line terminator.
	Print(msg LogMessage, rendered string) error

	// Flush pushes buffered output down to the operating system.
	Flush() error

	// Close flushes and releases the destination.
	Close() error
}

// Formatter renders a message into its final wire form. Implementations must
// be deterministic and free of side effects.
type Formatter interface {
	Format(msg LogMessage) (string, error)
}

// RotationPolicyArgs is the view a policy gets of a pending write. It is only
// valid for the duration of the NeedsRotation call.
type RotationPolicyArgs struct {
	Path     string // Current log file
	Size     int64  // Bytes currently in the file as seen by the sink
	Message  LogMessage
	Rendered string
}

// RotationPolicy decides when a file must be rotated.
type RotationPolicy interface {
	NeedsRotation(args RotationPolicyArgs) bool

	// Reset is called once a rotation has completed.
	Reset()
}

// Seeder is implemented by policies that derive their initial state from the
// file they are attached to.
type Seeder interface {
	Seed(info os.FileInfo)
}

// RotationContext describes the file being rotated.
type RotationContext struct {
	Path string
	Time time.Time
}

// RotationStrategy moves the current log file out of the way and reports
// where it went. An empty archive path means the file was discarded.
type RotationStrategy interface {
	Archive(ctx RotationContext) (string, error)
}
