package types

import (
	"fmt"
	"strings"
)

// Severity is a log level. Values are single bits ordered by verbosity, so a
// lower value is more important.
type Severity uint32

const (
	// SeverityNone marks unformatted output.
	SeverityNone Severity = 1 << iota
	SeverityError
	SeverityWarning
	SeverityInfo
	SeverityVerbose
)

// SeverityMask is a set of severities.
type SeverityMask uint32

// MaskAll contains every severity.
const MaskAll = SeverityMask(SeverityNone | SeverityError | SeverityWarning | SeverityInfo | SeverityVerbose)

// Allows reports whether a message at level passes a logger whose threshold is s.
func (s Severity) Allows(level Severity) bool {
	return level != 0 && level <= s
}

// String returns the upper-case level name used in output.
func (s Severity) String() string {
	switch s {
	case SeverityNone:
		return "NONE"
	case SeverityError:
		return "ERROR"
	case SeverityWarning:
		return "WARN"
	case SeverityInfo:
		return "INFO"
	case SeverityVerbose:
		return "VERBOSE"
	default:
		return fmt.Sprintf("SEVERITY(%d)", uint32(s))
	}
}

// ParseSeverity converts a level name into a Severity.
func ParseSeverity(name string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "none":
		return SeverityNone, nil
	case "error":
		return SeverityError, nil
	case "warn", "warning":
		return SeverityWarning, nil
	case "info":
		return SeverityInfo, nil
	case "verbose", "debug":
		return SeverityVerbose, nil
	}
	return 0, fmt.Errorf("%w: unknown severity %q", ErrInvalidConfig, name)
}

// Mask builds a SeverityMask from levels.
func Mask(levels ...Severity) SeverityMask {
	var m SeverityMask
	for _, l := range levels {
		m |= SeverityMask(l)
	}
	return m
}

// Has reports whether level is in the mask.
func (m SeverityMask) Has(level Severity) bool {
	return level != 0 && m&SeverityMask(level) == SeverityMask(level)
}

// ParseMask parses a list of level names.
func ParseMask(names []string) (SeverityMask, error) {
	var m SeverityMask
	for _, n := range names {
		s, err := ParseSeverity(n)
		if err != nil {
			return 0, err
		}
		m |= SeverityMask(s)
	}
	return m, nil
}
