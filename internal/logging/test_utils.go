package logging

import (
	"log/slog"
	"strings"
	"sync"
)

// TestLogCapture is a thread-safe log writer for test assertions.
type TestLogCapture struct {
	mu      sync.RWMutex
	entries []string
}

func NewTestLogCapture() *TestLogCapture {
	return &TestLogCapture{entries: make([]string, 0)}
}

func (c *TestLogCapture) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, string(p))
	return len(p), nil
}

// Logger returns a debug-level text logger writing into the capture.
func (c *TestLogCapture) Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(c, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// ContainsAll returns true if all substrings are found in the log entries.
func (c *TestLogCapture) ContainsAll(substrs ...string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, substr := range substrs {
		found := false
		for _, entry := range c.entries {
			if strings.Contains(entry, substr) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Entries returns a copy of all log entries.
func (c *TestLogCapture) Entries() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.entries...)
}

// CaptureDefault routes slog.Default into a fresh capture until the test
// finishes. Tests using it must not run in parallel.
func CaptureDefault(tb interface{ Cleanup(func()) }) *TestLogCapture {
	c := NewTestLogCapture()
	prev := slog.Default()
	slog.SetDefault(c.Logger())
	tb.Cleanup(func() { slog.SetDefault(prev) })
	return c
}
