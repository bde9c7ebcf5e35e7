package metrics

import (
	"sync/atomic"
	"time"
)

// Outcome is the result of one completed request execution.
type Outcome struct {
	Success       bool
	BytesSent     int64
	BytesReceived int64
	Elapsed       time.Duration
}

// RunStatistics is a point-in-time copy of a counter set.
type RunStatistics struct {
	TotalRequests      uint64 `json:"total_requests" yaml:"total_requests"`
	SuccessfulRequests uint64 `json:"successful_requests" yaml:"successful_requests"`
	FailedRequests     uint64 `json:"failed_requests" yaml:"failed_requests"`
	BytesSent          uint64 `json:"bytes_sent" yaml:"bytes_sent"`
	BytesReceived      uint64 `json:"bytes_received" yaml:"bytes_received"`
}

// SuccessRate returns the share of successful requests in percent.
func (s RunStatistics) SuccessRate() float64 {
	if s.TotalRequests == 0 {
		return 0
	}
	return float64(s.SuccessfulRequests) / float64(s.TotalRequests) * 100
}

// WindowSnapshot describes the traffic observed during one sampling window.
type WindowSnapshot struct {
	Requests       uint64
	Successes      uint64
	Failures       uint64
	BytesSent      uint64
	BytesReceived  uint64
	WindowDuration time.Duration
}

// RequestsPerSecond divides the window's requests by its actual duration.
func (w WindowSnapshot) RequestsPerSecond() float64 {
	return perSecond(w.Requests, w.WindowDuration)
}

// BytesSentPerSecond returns the upload rate over the window.
func (w WindowSnapshot) BytesSentPerSecond() float64 {
	return perSecond(w.BytesSent, w.WindowDuration)
}

// BytesReceivedPerSecond returns the download rate over the window.
func (w WindowSnapshot) BytesReceivedPerSecond() float64 {
	return perSecond(w.BytesReceived, w.WindowDuration)
}

// SuccessRate returns the share of successful requests in the window in percent.
func (w WindowSnapshot) SuccessRate() float64 {
	if w.Requests == 0 {
		return 0
	}
	return float64(w.Successes) / float64(w.Requests) * 100
}

func perSecond(v uint64, d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(v) / d.Seconds()
}

type counters struct {
	total         atomic.Uint64
	successes     atomic.Uint64
	failures      atomic.Uint64
	bytesSent     atomic.Uint64
	bytesReceived atomic.Uint64
}

// add bumps total last while drain swaps it first. A racing outcome may split
// across two windows but is never counted twice or dropped.
func (c *counters) add(o Outcome) {
	c.bytesSent.Add(nonNegative(o.BytesSent))
	c.bytesReceived.Add(nonNegative(o.BytesReceived))
	if o.Success {
		c.successes.Add(1)
	} else {
		c.failures.Add(1)
	}
	c.total.Add(1)
}

func (c *counters) load() RunStatistics {
	return RunStatistics{
		TotalRequests:      c.total.Load(),
		SuccessfulRequests: c.successes.Load(),
		FailedRequests:     c.failures.Load(),
		BytesSent:          c.bytesSent.Load(),
		BytesReceived:      c.bytesReceived.Load(),
	}
}

// drain swaps every field with zero. Updates that race with drain land in the
// next window.
func (c *counters) drain() RunStatistics {
	return RunStatistics{
		TotalRequests:      c.total.Swap(0),
		SuccessfulRequests: c.successes.Swap(0),
		FailedRequests:     c.failures.Swap(0),
		BytesSent:          c.bytesSent.Swap(0),
		BytesReceived:      c.bytesReceived.Swap(0),
	}
}

func nonNegative(v int64) uint64 {
	if v < 0 {
		return 0
	}
	return uint64(v)
}

// Aggregator records request outcomes into cumulative and windowed counters.
// RecordOutcome is safe for concurrent use; SnapshotAndReset expects a single caller.
type Aggregator struct {
	cumulative  counters
	window      counters
	latency     *latencyShards
	start       atomic.Int64
	windowStart atomic.Int64
	now         func() time.Time
}

// NewAggregator returns an Aggregator whose first window starts now.
func NewAggregator() *Aggregator {
	return newAggregatorWithClock(time.Now)
}

func newAggregatorWithClock(now func() time.Time) *Aggregator {
	a := &Aggregator{
		latency: newLatencyShards(),
		now:     now,
	}
	a.Start()
	return a
}

// Start marks the beginning of the run and of the first window.
func (a *Aggregator) Start() {
	ts := a.now().UnixNano()
	a.start.Store(ts)
	a.windowStart.Store(ts)
}

// RecordOutcome folds one completed request into both counter sets.
func (a *Aggregator) RecordOutcome(o Outcome) {
	a.window.add(o)
	a.cumulative.add(o)
	if o.Elapsed > 0 {
		a.latency.record(o.Elapsed)
	}
}

// SnapshotAndReset closes the current window and opens the next one.
func (a *Aggregator) SnapshotAndReset() WindowSnapshot {
	now := a.now().UnixNano()
	prev := a.windowStart.Swap(now)
	s := a.window.drain()
	return WindowSnapshot{
		Requests:       s.TotalRequests,
		Successes:      s.SuccessfulRequests,
		Failures:       s.FailedRequests,
		BytesSent:      s.BytesSent,
		BytesReceived:  s.BytesReceived,
		WindowDuration: time.Duration(now - prev),
	}
}

// Cumulative returns a copy of the run-wide counters without resetting them.
func (a *Aggregator) Cumulative() RunStatistics {
	return a.cumulative.load()
}

// Elapsed returns the time since Start.
func (a *Aggregator) Elapsed() time.Duration {
	return time.Duration(a.now().UnixNano() - a.start.Load())
}

// Latency merges the latency shards into a single distribution summary.
func (a *Aggregator) Latency() LatencyStats {
	return a.latency.snapshot()
}
