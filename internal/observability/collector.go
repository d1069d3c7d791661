// Package observability provides metrics collection and request tracing
// for CLI sessions.
package observability

import (
	"sync"
	"time"
)

// RequestMetrics holds timing and status information for a single HTTP request.
type RequestMetrics struct {
	Method     string
	URL        string
	Attempt    int
	StatusCode int
	Duration   time.Duration
	Error      error
}

// SessionMetrics aggregates metrics for an entire CLI session.
type SessionMetrics struct {
	StartTime      time.Time
	EndTime        time.Time
	TotalRequests  int
	TotalRetries   int
	TokenRefreshes int
	FailedRequests int
	TotalLatency   time.Duration
}

// SessionCollector accumulates metrics across a CLI session.
// It is safe for concurrent use and uses counters instead of unbounded slices.
type SessionCollector struct {
	mu sync.Mutex

	startTime      time.Time
	totalRequests  int
	totalRetries   int
	tokenRefreshes int
	failedRequests int
	totalLatency   time.Duration
}

// NewSessionCollector creates a new SessionCollector.
func NewSessionCollector() *SessionCollector {
	return &SessionCollector{startTime: time.Now()}
}

// RecordRequest records metrics for an HTTP request.
func (c *SessionCollector) RecordRequest(m RequestMetrics) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRequests++
	c.totalLatency += m.Duration
	if m.Error != nil {
		c.failedRequests++
	}
}

// RecordRetry records a retry event.
func (c *SessionCollector) RecordRetry() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRetries++
}

// RecordTokenRefresh records a credential refresh exchange.
func (c *SessionCollector) RecordTokenRefresh() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokenRefreshes++
}

// Summary returns a snapshot of the session metrics.
func (c *SessionCollector) Summary() SessionMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return SessionMetrics{
		StartTime:      c.startTime,
		EndTime:        time.Now(),
		TotalRequests:  c.totalRequests,
		TotalRetries:   c.totalRetries,
		TokenRefreshes: c.tokenRefreshes,
		FailedRequests: c.failedRequests,
		TotalLatency:   c.totalLatency,
	}
}
