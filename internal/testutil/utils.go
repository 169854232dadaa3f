package testutil

import (
	"io"
	"log"
	"os"
	"testing"
)

// TestLogger returns a logger prefixed with the test name. Goroutines that
// outlive the test log to io.Discard.
func TestLogger(t testing.TB) *log.Logger {
	logger := log.New(os.Stdout, "["+t.Name()+"] ", log.LstdFlags|log.Lmsgprefix)
	t.Cleanup(func() {
		logger.SetOutput(io.Discard)
	})
	return logger
}
