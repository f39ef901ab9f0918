package formatters

import (
	"encoding/xml"
	"strings"
	"testing"

	"github.com/wayneeseguin/sinklog/pkg/types"
)

type xmlEntry struct {
	XMLName   xml.Name `xml:"entry"`
	Timestamp string   `xml:"timestamp,attr"`
	Level     string   `xml:"level,attr"`
	Logger    string   `xml:"logger,attr"`
	Message   string   `xml:",chardata"`
}

func TestXMLFormatter_Parseable(t *testing.T) {
	inputs := []struct {
		name string
		text string
		want string
	}{
		{"plain", "hello", "hello"},
		{"markup", `<b>&"quoted"'</b>`, `<b>&"quoted"'</b>`},
		{"newlines", "line1\nline2\r\n", "line1\nline2\r\n"},
		{"control", "a\x00b\x01c", "a�b�c"},
		{"cdata end", "]]>", "]]>"},
		{"empty", "", ""},
	}

	f := NewXMLFormatter()
	for _, tt := range inputs {
		t.Run(tt.name, func(t *testing.T) {
			msg := types.LogMessage{Text: tt.text, Level: types.SeverityWarning, Timestamp: testTime, Logger: `we"ird<`}
			out, err := f.Format(msg)
			if err != nil {
				t.Fatalf("Format() error = %v", err)
			}

			var e xmlEntry
			if err := xml.Unmarshal([]byte(out), &e); err != nil {
				t.Fatalf("output %q does not parse: %v", out, err)
			}
			if e.Message != tt.want {
				t.Errorf("message = %q, want %q", e.Message, tt.want)
			}
			if e.Level != "WARN" {
				t.Errorf("level = %q, want WARN", e.Level)
			}
			if e.Logger != `we"ird<` {
				t.Errorf("logger = %q", e.Logger)
			}
		})
	}
}

func TestXMLFormatter_Nested(t *testing.T) {
	f := NewXMLFormatter()
	f.Options.Indent = 2
	f.Options.Fields = []string{FieldLevel, FieldMessage}

	out, err := f.Format(types.LogMessage{Text: "a < b", Level: types.SeverityError, Timestamp: testTime})
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	want := "<entry>\n  <level>ERROR</level>\n  <message>a &lt; b</message>\n</entry>"
	if out != want {
		t.Errorf("got %q, want %q", out, want)
	}

	var v struct {
		Level   string `xml:"level"`
		Message string `xml:"message"`
	}
	if err := xml.Unmarshal([]byte(out), &v); err != nil {
		t.Fatalf("nested output does not parse: %v", err)
	}
	if v.Message != "a < b" {
		t.Errorf("message = %q", v.Message)
	}
}

func TestXMLFormatter_NoMessageField(t *testing.T) {
	f := NewXMLFormatter()
	f.Element = "log"
	f.Options.Fields = []string{FieldLevel}

	out, err := f.Format(types.LogMessage{Text: "ignored", Level: types.SeverityInfo})
	if err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	if out != `<log level="INFO"/>` {
		t.Errorf("got %q", out)
	}
	if strings.Contains(out, "ignored") {
		t.Error("message should not be emitted")
	}
}
