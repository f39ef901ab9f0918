package formatters

import (
	"fmt"
	"strings"
	"time"

	"github.com/wayneeseguin/sinklog/pkg/types"
)

// DefaultPattern is the layout used by NewPatternFormatter
const DefaultPattern = "[%l][%n][%Y-%m-%d %H:%M:%S.%N] %q"

// PatternFormatter substitutes %-tokens in a template.
//
// Message tokens:
//
//	%l  level name        %n  logger name       %q  message text
//
// Time tokens (taken from the message timestamp):
//
//	%Y  2024   %y  24     %m  01-12   %d  01-31   %j  001-366
//	%H  00-23  %I  01-12  %M  00-59   %S  00-59   %N  000-999 (ms)
//	%p  AM/PM  %a  Mon    %A  Monday  %b  Jan     %B  January
//	%Z  UTC    %z  -0700  %%  literal percent
//
// Any other token, and a trailing lone %, is copied to the output unchanged.
// Messages at SeverityNone are emitted verbatim.
type PatternFormatter struct {
	Pattern     string
	TimeZone    *time.Location
	LevelFormat LevelFormat
}

// NewPatternFormatter creates a pattern formatter; an empty pattern selects
// DefaultPattern
func NewPatternFormatter(pattern string) *PatternFormatter {
	if pattern == "" {
		pattern = DefaultPattern
	}
	return &PatternFormatter{
		Pattern:  pattern,
		TimeZone: time.Local,
	}
}

// Format formats a log message according to the pattern
func (f *PatternFormatter) Format(msg types.LogMessage) (string, error) {
	if msg.Level == types.SeverityNone {
		return msg.Text, nil
	}

	loc := f.TimeZone
	if loc == nil {
		loc = time.Local
	}
	t := msg.Timestamp.In(loc)

	var sb strings.Builder
	sb.Grow(len(f.Pattern) + len(msg.Text) + 32)

	p := f.Pattern
	for i := 0; i < len(p); i++ {
		c := p[i]
		if c != '%' || i+1 >= len(p) {
			sb.WriteByte(c)
			continue
		}
		i++
		if !f.expand(&sb, p[i], msg, t) {
			sb.WriteByte('%')
			sb.WriteByte(p[i])
		}
	}
	return sb.String(), nil
}

func (f *PatternFormatter) expand(sb *strings.Builder, token byte, msg types.LogMessage, t time.Time) bool {
	switch token {
	case 'l':
		sb.WriteString(formatLevel(msg.Level, f.LevelFormat))
	case 'n':
		sb.WriteString(msg.Logger)
	case 'q':
		sb.WriteString(msg.Text)
	case '%':
		sb.WriteByte('%')
	default:
		return WriteTimeToken(sb, token, t)
	}
	return true
}

// WriteTimeToken writes the strftime-style token for t and reports whether
// the token was recognised. Archive name patterns share it.
func WriteTimeToken(sb *strings.Builder, token byte, t time.Time) bool {
	switch token {
	case 'Y':
		fmt.Fprintf(sb, "%04d", t.Year())
	case 'y':
		fmt.Fprintf(sb, "%02d", t.Year()%100)
	case 'm':
		fmt.Fprintf(sb, "%02d", int(t.Month()))
	case 'd':
		fmt.Fprintf(sb, "%02d", t.Day())
	case 'j':
		fmt.Fprintf(sb, "%03d", t.YearDay())
	case 'H':
		fmt.Fprintf(sb, "%02d", t.Hour())
	case 'I':
		h := t.Hour() % 12
		if h == 0 {
			h = 12
		}
		fmt.Fprintf(sb, "%02d", h)
	case 'M':
		fmt.Fprintf(sb, "%02d", t.Minute())
	case 'S':
		fmt.Fprintf(sb, "%02d", t.Second())
	case 'N':
		fmt.Fprintf(sb, "%03d", t.Nanosecond()/int(time.Millisecond))
	case 'p':
		sb.WriteString(t.Format("PM"))
	case 'a':
		sb.WriteString(t.Format("Mon"))
	case 'A':
		sb.WriteString(t.Format("Monday"))
	case 'b':
		sb.WriteString(t.Format("Jan"))
	case 'B':
		sb.WriteString(t.Format("January"))
	case 'Z':
		sb.WriteString(t.Format("MST"))
	case 'z':
		sb.WriteString(t.Format("-0700"))
	default:
		return false
	}
	return true
}
