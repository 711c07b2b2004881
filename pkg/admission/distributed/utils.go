package distributed

import (
	"crypto/rand"
	"fmt"
	"os"
	"time"
)

// generateInstanceID creates a unique identifier for this application instance.
func generateInstanceID() string {
	hostname, _ := os.Hostname()
	pid := os.Getpid()

	randomBytes := make([]byte, 4)
	_, _ = rand.Read(randomBytes)

	return fmt.Sprintf("%s-%d-%x-%d",
		hostname, pid, randomBytes, time.Now().Unix())
}

// windowIndex returns the ordinal of the clock-aligned window containing t.
func windowIndex(t time.Time, window time.Duration) int64 {
	return t.UnixMilli() / window.Milliseconds()
}

// windowStart returns the start of the clock-aligned window containing t.
func windowStart(t time.Time, window time.Duration) time.Time {
	return time.UnixMilli(windowIndex(t, window) * window.Milliseconds())
}

// windowResetAt returns the end of the clock-aligned window containing t.
func windowResetAt(t time.Time, window time.Duration) time.Time {
	return time.UnixMilli((windowIndex(t, window) + 1) * window.Milliseconds())
}
