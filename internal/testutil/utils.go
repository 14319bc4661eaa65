package testutil

import (
	"log"
	"os"
	"testing"
)

// TestLogger returns a logger prefixed with the test name. Output moves to
// stderr once the test ends so late writes from background goroutines are
// not attributed to the next test.
func TestLogger(t *testing.T) *log.Logger {
	logger := log.New(os.Stdout, "["+t.Name()+"] ", log.LstdFlags|log.Lmicroseconds)
	t.Cleanup(func() {
		logger.SetOutput(os.Stderr)
	})
	return logger
}
