package testing

import (
	"os"
	"testing"
)

// Unit returns true if running in unit test mode. Long-running stress tests
// only run when SINKLOG_RUN_INTEGRATION_TESTS=true.
func Unit() bool {
	if os.Getenv("SINKLOG_UNIT_TESTS_ONLY") == "true" {
		return true
	}
	if os.Getenv("SINKLOG_RUN_INTEGRATION_TESTS") == "true" {
		return false
	}
	return true
}

// SkipIfUnit skips the test if running in unit test mode.
func SkipIfUnit(t *testing.T, message ...string) {
	t.Helper()
	if Unit() {
		msg := "Skipping integration test in unit mode"
		if len(message) > 0 {
			msg = message[0]
		}
		t.Skip(msg)
	}
}
