package reactord

import "sync/atomic"

// Metrics is a process-global bundle of atomic counters. Relaxed ordering is
// acceptable per spec: readers only ever observe a snapshot, never coordinate
// on individual increments.
type Metrics struct {
	accepted     atomic.Int64
	active       atomic.Int64
	closed       atomic.Int64
	bytesServed  atomic.Int64
	requests2xx  atomic.Int64
	requests4xx  atomic.Int64
	requests5xx  atomic.Int64
}

// MetricsSnapshot is a point-in-time read of Metrics, safe to copy and log.
type MetricsSnapshot struct {
	Accepted    int64
	Active      int64
	Closed      int64
	BytesServed int64
	Requests2xx int64
	Requests4xx int64
	Requests5xx int64
}

func (m *Metrics) onAccept() {
	m.accepted.Add(1)
	m.active.Add(1)
}

func (m *Metrics) onClose() {
	m.active.Add(-1)
	m.closed.Add(1)
}

func (m *Metrics) onResponse(status int, bytes int64) {
	m.bytesServed.Add(bytes)
	switch {
	case status >= 500:
		m.requests5xx.Add(1)
	case status >= 400:
		m.requests4xx.Add(1)
	default:
		m.requests2xx.Add(1)
	}
}

// Snapshot returns a consistent-enough (not atomic-as-a-whole) read of all counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Accepted:    m.accepted.Load(),
		Active:      m.active.Load(),
		Closed:      m.closed.Load(),
		BytesServed: m.bytesServed.Load(),
		Requests2xx: m.requests2xx.Load(),
		Requests4xx: m.requests4xx.Load(),
		Requests5xx: m.requests5xx.Load(),
	}
}
