package sinklog

import (
	"fmt"
	"os"

	"github.com/wayneeseguin/sinklog/pkg/types"
)

// ErrorHandler receives failures that cannot be returned to a caller, such as
// sink errors raised on the worker goroutine.
type ErrorHandler func(err types.LogError)

// SilentErrorHandler discards all errors
var SilentErrorHandler ErrorHandler = func(types.LogError) {}

// StderrErrorHandler writes errors to stderr
var StderrErrorHandler ErrorHandler = func(err types.LogError) {
	fmt.Fprintf(os.Stderr, "sinklog error: %s\n", err.Error())
}

// report stamps err with the logger's metrics and hands it to the handler.
func (l *Logger) report(err *types.LogError) {
	l.metrics.TrackError(err.Op)
	if l.errorHandler != nil {
		l.errorHandler(*err)
	}
}

// record keeps err for the next Flush. Only the first maxRecordedErrors are
// kept; the rest are counted.
func (l *Logger) record(err error) {
	if err == nil {
		return
	}
	l.errMu.Lock()
	defer l.errMu.Unlock()
	if l.recorded >= maxRecordedErrors {
		l.omitted++
		return
	}
	l.recorded++
	l.pending = append(l.pending, err)
}

// takeErrors returns and clears the errors recorded since the last call.
func (l *Logger) takeErrors() []error {
	l.errMu.Lock()
	defer l.errMu.Unlock()
	errs := l.pending
	if l.omitted > 0 {
		errs = append(errs, fmt.Errorf("%d further errors omitted", l.omitted))
	}
	l.pending = nil
	l.recorded = 0
	l.omitted = 0
	return errs
}

const maxRecordedErrors = 100
