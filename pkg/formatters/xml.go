package formatters

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"

	"github.com/wayneeseguin/sinklog/pkg/types"
)

// DefaultXMLElement is the element name used for each entry
const DefaultXMLElement = "entry"

// XMLFormatter formats each message as a single XML element. Metadata goes
// into attributes and the message into character data:
//
//	<entry timestamp="2024-01-15T14:30:52Z" level="INFO" logger="app">started</entry>
//
// With Options.Indent > 0 every field becomes an indented child element.
type XMLFormatter struct {
	Options FormatOptions
	Element string
}

// NewXMLFormatter creates a new XML formatter
func NewXMLFormatter() *XMLFormatter {
	return &XMLFormatter{
		Options: DefaultFormatOptions(),
		Element: DefaultXMLElement,
	}
}

// Format renders msg as XML. Characters that XML 1.0 cannot carry, even as
// references, are replaced with U+FFFD by the escaper.
func (f *XMLFormatter) Format(msg types.LogMessage) (string, error) {
	element := f.Element
	if element == "" {
		element = DefaultXMLElement
	}

	var sb strings.Builder
	if f.Options.Indent > 0 {
		if err := f.writeNested(&sb, element, msg); err != nil {
			return "", err
		}
		return sb.String(), nil
	}

	sb.WriteByte('<')
	sb.WriteString(element)
	var body string
	hasBody := false
	for _, field := range f.Options.fields() {
		value, err := f.fieldValue(field, msg)
		if err != nil {
			return "", err
		}
		if field == FieldMessage {
			body, hasBody = value, true
			continue
		}
		sb.WriteByte(' ')
		sb.WriteString(field)
		sb.WriteString(`="`)
		if err := escape(&sb, value); err != nil {
			return "", err
		}
		sb.WriteByte('"')
	}

	if !hasBody {
		sb.WriteString("/>")
		return sb.String(), nil
	}

	sb.WriteByte('>')
	if err := escape(&sb, body); err != nil {
		return "", err
	}
	sb.WriteString("</")
	sb.WriteString(element)
	sb.WriteByte('>')
	return sb.String(), nil
}

func (f *XMLFormatter) writeNested(sb *strings.Builder, element string, msg types.LogMessage) error {
	indent := strings.Repeat(" ", f.Options.Indent)
	fmt.Fprintf(sb, "<%s>\n", element)
	for _, field := range f.Options.fields() {
		value, err := f.fieldValue(field, msg)
		if err != nil {
			return err
		}
		fmt.Fprintf(sb, "%s<%s>", indent, field)
		if err := escape(sb, value); err != nil {
			return err
		}
		fmt.Fprintf(sb, "</%s>\n", field)
	}
	fmt.Fprintf(sb, "</%s>", element)
	return nil
}

func (f *XMLFormatter) fieldValue(field string, msg types.LogMessage) (string, error) {
	switch field {
	case FieldTimestamp:
		return f.Options.timestamp(msg.Timestamp), nil
	case FieldLevel:
		return formatLevel(msg.Level, f.Options.LevelFormat), nil
	case FieldLogger:
		return msg.Logger, nil
	case FieldMessage:
		return msg.Text, nil
	case FieldSeq:
		return strconv.FormatUint(msg.Seq, 10), nil
	}
	return "", types.NewLogError(types.ErrFormat, "format", "", fmt.Sprintf("unknown XML field %q", field), nil)
}

func escape(sb *strings.Builder, s string) error {
	if err := xml.EscapeText(sb, []byte(s)); err != nil {
		return types.NewLogError(types.ErrFormat, "format", "", "escaping XML", err)
	}
	return nil
}
