package formatters

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/wayneeseguin/sinklog/pkg/types"
)

// JSONFormatter formats log messages as JSON, one object per message
type JSONFormatter struct {
	Options FormatOptions
}

// NewJSONFormatter creates a new JSON formatter
func NewJSONFormatter() *JSONFormatter {
	return &JSONFormatter{
		Options: DefaultFormatOptions(),
	}
}

// Format formats a log message as JSON. Keys are written in the order of
// Options.Fields so output is byte-for-byte reproducible.
func (f *JSONFormatter) Format(msg types.LogMessage) (string, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	for i, field := range f.Options.fields() {
		value, err := f.fieldValue(field, msg)
		if err != nil {
			return "", err
		}
		if i > 0 {
			buf.WriteByte(',')
		}
		key, _ := json.Marshal(field)
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')

	if f.Options.Indent <= 0 {
		return buf.String(), nil
	}

	var out bytes.Buffer
	if err := json.Indent(&out, buf.Bytes(), "", strings.Repeat(" ", f.Options.Indent)); err != nil {
		return "", types.NewLogError(types.ErrFormat, "format", "", "indenting JSON", err)
	}
	return out.String(), nil
}

func (f *JSONFormatter) fieldValue(field string, msg types.LogMessage) ([]byte, error) {
	var v any
	switch field {
	case FieldTimestamp:
		v = f.Options.timestamp(msg.Timestamp)
	case FieldLevel:
		v = formatLevel(msg.Level, f.Options.LevelFormat)
	case FieldLogger:
		v = msg.Logger
	case FieldMessage:
		// encoding/json escapes quotes and control characters and replaces
		// invalid UTF-8 with U+FFFD
		v = msg.Text
	case FieldSeq:
		v = msg.Seq
	default:
		return nil, types.NewLogError(types.ErrFormat, "format", "", fmt.Sprintf("unknown JSON field %q", field), nil)
	}

	data, err := json.Marshal(v)
	if err != nil {
		return nil, types.NewLogError(types.ErrFormat, "format", "", "encoding field "+field, err)
	}
	return data, nil
}

// WithFields sets the fields written, in order
func (f *JSONFormatter) WithFields(fields ...string) *JSONFormatter {
	f.Options.Fields = fields
	return f
}

// WithIndent pretty-prints each entry with n spaces per level
func (f *JSONFormatter) WithIndent(n int) *JSONFormatter {
	f.Options.Indent = n
	return f
}
