package formatters

import (
	"strings"
	"time"

	"github.com/wayneeseguin/sinklog/pkg/types"
)

// FormatOptions controls the output of the structured formatters
type FormatOptions struct {
	TimestampFormat string
	TimeZone        *time.Location
	LevelFormat     LevelFormat
	Indent          int      // Spaces per indentation level; 0 keeps one entry per line
	Fields          []string // Fields to emit, in order; empty means DefaultFields
}

// LevelFormat defines level format options
type LevelFormat int

const (
	// LevelFormatName formats levels as their names (INFO, WARN, etc)
	LevelFormatName LevelFormat = iota
	// LevelFormatNameLower formats levels as lowercase names
	LevelFormatNameLower
	// LevelFormatSymbol formats levels as single-character symbols
	LevelFormatSymbol
)

// Field names understood by the JSON and XML formatters.
const (
	FieldTimestamp = "timestamp"
	FieldLevel     = "level"
	FieldLogger    = "logger"
	FieldMessage   = "message"
	FieldSeq       = "seq"
)

// DefaultFields is the field set used when FormatOptions.Fields is empty.
var DefaultFields = []string{FieldTimestamp, FieldLevel, FieldLogger, FieldMessage}

// DefaultFormatOptions returns default formatting options
func DefaultFormatOptions() FormatOptions {
	return FormatOptions{
		TimestampFormat: time.RFC3339Nano,
		TimeZone:        time.UTC,
		LevelFormat:     LevelFormatName,
	}
}

func (o FormatOptions) fields() []string {
	if len(o.Fields) == 0 {
		return DefaultFields
	}
	return o.Fields
}

func (o FormatOptions) timestamp(t time.Time) string {
	loc := o.TimeZone
	if loc == nil {
		loc = time.UTC
	}
	layout := o.TimestampFormat
	if layout == "" {
		layout = time.RFC3339Nano
	}
	return t.In(loc).Format(layout)
}

func formatLevel(level types.Severity, format LevelFormat) string {
	name := level.String()
	switch format {
	case LevelFormatNameLower:
		return strings.ToLower(name)
	case LevelFormatSymbol:
		return name[:1]
	}
	return name
}
