package formatters

import (
	"github.com/wayneeseguin/sinklog/pkg/types"
)

// FormatterFunc adapts an ordinary function to the Formatter interface
type FormatterFunc func(msg types.LogMessage) (string, error)

// Format calls fn(msg). A plain error from the callback is reported as an
// ErrFormat failure.
func (fn FormatterFunc) Format(msg types.LogMessage) (string, error) {
	out, err := fn(msg)
	if err != nil {
		if le, ok := err.(*types.LogError); ok {
			return "", le
		}
		return "", types.NewLogError(types.ErrFormat, "format", "", "formatter callback failed", err)
	}
	return out, nil
}
