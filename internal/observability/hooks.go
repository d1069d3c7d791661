package observability

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// CLIHooks feeds request events into the session collector and, at higher
// verbosity levels, writes trace lines to stderr.
//
// Levels: 0 silent, 1 retries and token refreshes, 2 every request.
type CLIHooks struct {
	mu        sync.Mutex
	level     int
	collector *SessionCollector
	out       io.Writer
}

// NewCLIHooks creates hooks wired to the given collector.
func NewCLIHooks(level int, collector *SessionCollector) *CLIHooks {
	return &CLIHooks{
		level:     level,
		collector: collector,
		out:       os.Stderr,
	}
}

// SetLevel changes the verbosity level.
func (h *CLIHooks) SetLevel(level int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.level = level
}

// SetOutput redirects trace output (for tests).
func (h *CLIHooks) SetOutput(w io.Writer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.out = w
}

func (h *CLIHooks) trace(minLevel int, format string, args ...any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.level >= minLevel {
		fmt.Fprintf(h.out, "[memctl] "+format+"\n", args...)
	}
}

// RequestFinished records a completed request attempt.
func (h *CLIHooks) RequestFinished(m RequestMetrics) {
	if h.collector != nil {
		h.collector.RecordRequest(m)
	}
	if m.Error != nil {
		h.trace(2, "%s %s → %v", m.Method, m.URL, m.Error)
		return
	}
	h.trace(2, "%s %s → %d (%s)", m.Method, m.URL, m.StatusCode, m.Duration.Round(time.Millisecond))
}

// RetryScheduled records a scheduled retry.
func (h *CLIHooks) RetryScheduled(method, url string, attempt int, err error) {
	if h.collector != nil {
		h.collector.RecordRetry()
	}
	h.trace(1, "retry %d for %s %s: %v", attempt, method, url, err)
}

// TokenRefreshed records a credential refresh triggered by a 401.
func (h *CLIHooks) TokenRefreshed() {
	if h.collector != nil {
		h.collector.RecordTokenRefresh()
	}
	h.trace(1, "access token refreshed")
}
