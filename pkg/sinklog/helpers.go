package sinklog

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// isTestMode detects if we're running under go test
func isTestMode() bool {
	for _, arg := range os.Args {
		if strings.HasPrefix(arg, "-test.") {
			return true
		}
	}

	if exe, err := os.Executable(); err == nil {
		if strings.HasSuffix(filepath.Base(exe), ".test") {
			return true
		}
	}
	return false
}

// defaultErrorHandler stays quiet under go test and writes to stderr otherwise
func defaultErrorHandler() ErrorHandler {
	if isTestMode() {
		return SilentErrorHandler
	}
	return StderrErrorHandler
}

// defaultQueueCapacity reads SINKLOG_QUEUE_CAPACITY, falling back to
// DefaultQueueCapacity
func defaultQueueCapacity() int {
	if value, ok := os.LookupEnv("SINKLOG_QUEUE_CAPACITY"); ok {
		if n, err := strconv.Atoi(value); err == nil && n > 0 {
			return n
		}
	}
	return DefaultQueueCapacity
}
