package output

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/torosent/rampfire/internal/control"
	"github.com/torosent/rampfire/internal/metrics"
)

// Sampler is the windowed view of the statistics aggregator.
type Sampler interface {
	SnapshotAndReset() metrics.WindowSnapshot
	Cumulative() metrics.RunStatistics
}

// Controller turns a window into a new target concurrency.
type Controller interface {
	Observe(snap metrics.WindowSnapshot, cumulative uint64) control.Decision
	ScaleDownActive() bool
}

// WindowObserver receives every window after the controller decided.
type WindowObserver interface {
	Observe(snap metrics.WindowSnapshot, target int, scaleDownActive bool)
}

// ProgressReporter samples the aggregator on a fixed period, prints a status
// line and drives the controller with the window.
type ProgressReporter struct {
	sampler    Sampler
	controller Controller
	observers  []WindowObserver
	logger     *zap.Logger
	interval   time.Duration
	writer     io.Writer
	now        func() time.Time
	done       chan struct{}
	finished   chan struct{}
	active     int32
	ticks      atomic.Int64
}

// NewProgressReporter creates a progress reporter that ticks at the given interval.
func NewProgressReporter(sampler Sampler, controller Controller, interval time.Duration, writer io.Writer, logger *zap.Logger, observers ...WindowObserver) *ProgressReporter {
	if writer == nil {
		writer = io.Discard
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &ProgressReporter{
		sampler:    sampler,
		controller: controller,
		observers:  observers,
		logger:     logger,
		interval:   interval,
		writer:     writer,
		now:        time.Now,
		done:       make(chan struct{}),
		finished:   make(chan struct{}),
	}
}

// Start begins ticking in a background goroutine.
func (p *ProgressReporter) Start() {
	if !atomic.CompareAndSwapInt32(&p.active, 0, 1) {
		return // already running
	}
	go p.run()
}

// Stop halts the reporter, waits for an in-progress tick to finish and then
// processes the trailing partial window, so every recorded outcome lands in
// exactly one window.
func (p *ProgressReporter) Stop() {
	if atomic.CompareAndSwapInt32(&p.active, 1, 0) {
		close(p.done)
		<-p.finished
		p.Tick()
	}
}

// Ticks reports how many windows were processed.
func (p *ProgressReporter) Ticks() int64 {
	return p.ticks.Load()
}

func (p *ProgressReporter) run() {
	defer close(p.finished)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.Tick()
		case <-p.done:
			return
		}
	}
}

// Tick processes one window. It is exported so callers can drive the
// reporter without a timer.
func (p *ProgressReporter) Tick() control.Decision {
	snap := p.sampler.SnapshotAndReset()
	cumulative := p.sampler.Cumulative()
	decision := p.controller.Observe(snap, cumulative.TotalRequests)

	fmt.Fprintln(p.writer, StatusLine(p.now(), snap, cumulative, decision.From))
	p.logDecision(decision)

	scaleDown := p.controller.ScaleDownActive()
	for _, o := range p.observers {
		if o != nil {
			o.Observe(snap, decision.To, scaleDown)
		}
	}
	p.ticks.Add(1)
	return decision
}

func (p *ProgressReporter) logDecision(d control.Decision) {
	switch d.Action {
	case control.ActionScaleUp:
		p.logger.Info(fmt.Sprintf("Scaling up to %d concurrent requests (+%d)", d.To, d.To-d.From),
			zap.Int("from", d.From), zap.Int("to", d.To))
	case control.ActionScaleDown:
		p.logger.Warn(fmt.Sprintf("Requests failing. Scaling down to %d concurrent requests", d.To),
			zap.Int("from", d.From), zap.Int("to", d.To))
	}
	if d.Rearmed {
		p.logger.Debug("scale-up re-armed", zap.Int("target", d.To))
	}
}

// StatusLine renders one window in the periodic report format.
func StatusLine(at time.Time, snap metrics.WindowSnapshot, cumulative metrics.RunStatistics, concurrent int) string {
	return fmt.Sprintf("[%s] Requests/sec: %.1f | Success/sec: %d (%.1f%%) | Failed/sec: %d | Total: %d | Concurrent: %d | Traffic: ↑ %s/s ↓ %s/s",
		at.Format("15:04:05"),
		snap.RequestsPerSecond(),
		snap.Successes,
		snap.SuccessRate(),
		snap.Failures,
		cumulative.TotalRequests,
		concurrent,
		FormatRate(snap.BytesSentPerSecond()),
		FormatRate(snap.BytesReceivedPerSecond()),
	)
}
