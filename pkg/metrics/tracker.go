package metrics

import (
	"strconv"
	"sync"
	"time"
)

// DefaultStatus is recorded when a tracked unit of work ends before any
// status was reported, e.g. a handler that panicked.
const DefaultStatus = "500"

// Tracker times one request and counts it exactly once under its final
// status.
//
//	tr := m.Track(r.Method, path)
//	defer tr.Done()
//	...
//	tr.Status(http.StatusOK)
type Tracker struct {
	m      *Metrics
	method string
	path   string
	start  time.Time
	status string
	once   sync.Once
}

// Track starts timing a request.
func (m *Metrics) Track(method, path string) *Tracker {
	return &Tracker{
		m:      m,
		method: method,
		path:   path,
		start:  time.Now(),
		status: DefaultStatus,
	}
}

// Status sets the status the request will be counted under.
func (t *Tracker) Status(code int) {
	t.status = strconv.Itoa(code)
}

// Done records latency and the count. Calls after the first are ignored.
func (t *Tracker) Done() {
	t.once.Do(func() {
		elapsed := time.Since(t.start).Seconds()
		t.m.HTTPRequestsTotal.WithLabelValues(t.method, t.path, t.status).Inc()
		t.m.HTTPRequestDuration.WithLabelValues(t.method, t.path).Observe(elapsed)
	})
}
