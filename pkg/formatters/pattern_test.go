package formatters

import (
	"testing"
	"time"

	"github.com/wayneeseguin/sinklog/pkg/types"
)

func TestPatternFormatter_Format(t *testing.T) {
	msg := types.LogMessage{
		Text:      "disk full",
		Level:     types.SeverityError,
		Timestamp: time.Date(2024, 3, 5, 9, 7, 3, 45*int(time.Millisecond), time.UTC),
		Logger:    "core",
	}

	tests := []struct {
		name    string
		pattern string
		want    string
	}{
		{"default", "", "[ERROR][core][2024-03-05 09:07:03.045] disk full"},
		{"message only", "%q", "disk full"},
		{"literal percent", "100%% %l", "100% ERROR"},
		{"unknown token", "%k %q", "%k disk full"},
		{"trailing percent", "%q %", "disk full %"},
		{"twelve hour", "%I:%M %p", "09:07 AM"},
		{"names", "%a %A %b %B", "Tue Tuesday Mar March"},
		{"short year and day of year", "%y/%j", "24/065"},
		{"zone", "%Z %z", "UTC +0000"},
		{"no tokens", "plain text", "plain text"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewPatternFormatter(tt.pattern)
			f.TimeZone = time.UTC
			got, err := f.Format(msg)
			if err != nil {
				t.Fatalf("Format() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Format() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPatternFormatter_Unformatted(t *testing.T) {
	f := NewPatternFormatter("[%l] %q")
	got, _ := f.Format(types.LogMessage{Text: "raw %l line", Level: types.SeverityNone})
	if got != "raw %l line" {
		t.Errorf("got %q, want verbatim text", got)
	}
}

func TestPatternFormatter_LevelFormat(t *testing.T) {
	f := NewPatternFormatter("%l")
	f.LevelFormat = LevelFormatSymbol
	got, _ := f.Format(types.LogMessage{Level: types.SeverityWarning})
	if got != "W" {
		t.Errorf("got %q, want W", got)
	}

	f.LevelFormat = LevelFormatNameLower
	got, _ = f.Format(types.LogMessage{Level: types.SeverityVerbose})
	if got != "verbose" {
		t.Errorf("got %q, want verbose", got)
	}
}

func TestPatternFormatter_TimeZone(t *testing.T) {
	loc := time.FixedZone("X", 2*3600)
	f := NewPatternFormatter("%H")
	f.TimeZone = loc
	got, _ := f.Format(types.LogMessage{Level: types.SeverityInfo, Timestamp: time.Date(2024, 1, 1, 22, 0, 0, 0, time.UTC)})
	if got != "00" {
		t.Errorf("got %q, want 00", got)
	}
}
