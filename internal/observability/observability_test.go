package observability

import (
	"bytes"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCollectorCountsRequestsAndFailures(t *testing.T) {
	c := NewSessionCollector()

	c.RecordRequest(RequestMetrics{Method: "GET", Duration: 10 * time.Millisecond})
	c.RecordRequest(RequestMetrics{Method: "POST", Duration: 20 * time.Millisecond, Error: errors.New("boom")})
	c.RecordRetry()
	c.RecordTokenRefresh()

	s := c.Summary()
	assert.Equal(t, 2, s.TotalRequests)
	assert.Equal(t, 1, s.FailedRequests)
	assert.Equal(t, 1, s.TotalRetries)
	assert.Equal(t, 1, s.TokenRefreshes)
	assert.Equal(t, 30*time.Millisecond, s.TotalLatency)
	assert.False(t, s.EndTime.Before(s.StartTime))
}

func TestCollectorConcurrentUse(t *testing.T) {
	c := NewSessionCollector()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.RecordRequest(RequestMetrics{Duration: time.Millisecond})
			c.RecordTokenRefresh()
		}()
	}
	wg.Wait()

	s := c.Summary()
	assert.Equal(t, 50, s.TotalRequests)
	assert.Equal(t, 50, s.TokenRefreshes)
}

func TestHooksSilentAtLevelZero(t *testing.T) {
	var buf bytes.Buffer
	h := NewCLIHooks(0, NewSessionCollector())
	h.SetOutput(&buf)

	h.RequestFinished(RequestMetrics{Method: "GET", URL: "http://x", StatusCode: 200})
	h.RetryScheduled("GET", "http://x", 1, errors.New("try again"))
	h.TokenRefreshed()

	assert.Empty(t, buf.String())
}

func TestHooksLevelOneTracesRetriesAndRefreshes(t *testing.T) {
	var buf bytes.Buffer
	h := NewCLIHooks(1, NewSessionCollector())
	h.SetOutput(&buf)

	h.RequestFinished(RequestMetrics{Method: "GET", URL: "http://x", StatusCode: 200})
	assert.Empty(t, buf.String(), "level 1 should not trace plain requests")

	h.RetryScheduled("GET", "http://x", 2, errors.New("gateway error"))
	h.TokenRefreshed()

	out := buf.String()
	assert.Contains(t, out, "retry 2 for GET http://x")
	assert.Contains(t, out, "access token refreshed")
}

func TestHooksLevelTwoTracesEveryRequest(t *testing.T) {
	var buf bytes.Buffer
	h := NewCLIHooks(0, NewSessionCollector())
	h.SetOutput(&buf)
	h.SetLevel(2)

	h.RequestFinished(RequestMetrics{Method: "POST", URL: "http://x/api/v1/events", StatusCode: 201, Duration: 5 * time.Millisecond})
	assert.Contains(t, buf.String(), "POST http://x/api/v1/events")
	assert.Contains(t, buf.String(), "201")
}

func TestHooksFeedCollector(t *testing.T) {
	c := NewSessionCollector()
	h := NewCLIHooks(0, c)

	h.RequestFinished(RequestMetrics{Method: "GET"})
	h.RetryScheduled("GET", "http://x", 1, errors.New("x"))
	h.TokenRefreshed()

	s := c.Summary()
	assert.Equal(t, 1, s.TotalRequests)
	assert.Equal(t, 1, s.TotalRetries)
	assert.Equal(t, 1, s.TokenRefreshes)
}

func TestHooksNilCollector(t *testing.T) {
	var buf bytes.Buffer
	h := NewCLIHooks(1, nil)
	h.SetOutput(&buf)

	// Must not panic without a collector.
	h.RequestFinished(RequestMetrics{Method: "GET"})
	h.TokenRefreshed()
	assert.Contains(t, buf.String(), "access token refreshed")
}
