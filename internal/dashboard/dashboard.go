package dashboard

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"

	"github.com/torosent/rampfire/internal/metrics"
	"github.com/torosent/rampfire/internal/output"
)

const historyLimit = 100

// TestConfig holds load test configuration parameters for display.
type TestConfig struct {
	TargetURL   string        // Full target URL
	Concurrency int           // Initial concurrency target
	Step        int           // Additive increase per healthy window
	Max         int           // Concurrency ceiling (0 = unlimited)
	Duration    time.Duration // Test duration (0 = unlimited)
	Total       int           // Total requests to execute (0 = unlimited)
	Rate        int           // Requests per second (0 = unlimited)
	Timeout     time.Duration // Request timeout
	ConfigFile  string        // Path to config file if used
}

// Source exposes the run-wide figures the dashboard renders between windows.
type Source interface {
	Cumulative() metrics.RunStatistics
	Latency() metrics.LatencyStats
	Elapsed() time.Duration
}

type window struct {
	snap            metrics.WindowSnapshot
	target          int
	scaleDownActive bool
}

// Dashboard renders a live terminal UI for load test metrics.
type Dashboard struct {
	source       Source
	ctx          context.Context
	cancel       context.CancelFunc
	shutdownFunc func()
	wg           sync.WaitGroup
	mu           sync.Mutex

	// Widgets
	grid          *ui.Grid
	rpsSparkline  *widgets.SparklineGroup
	loadSparkline *widgets.SparklineGroup
	targetGauge   *widgets.Gauge
	summaryPara   *widgets.Paragraph
	windowPara    *widgets.Paragraph
	totalsPara    *widgets.Paragraph
	latencyPara   *widgets.Paragraph

	rpsHistory    []float64
	targetHistory []float64
	last          window
	observed      bool
	testConfig    TestConfig
}

// New creates a new Dashboard. shutdownFunc is invoked when the user presses q.
func New(source Source, cfg TestConfig, shutdownFunc func()) (*Dashboard, error) {
	if err := ui.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize termui: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	d := &Dashboard{
		source:        source,
		ctx:           ctx,
		cancel:        cancel,
		shutdownFunc:  shutdownFunc,
		rpsHistory:    make([]float64, 0, historyLimit),
		targetHistory: make([]float64, 0, historyLimit),
		testConfig:    cfg,
	}

	d.initWidgets()
	d.setupGrid()

	return d, nil
}

func (d *Dashboard) initWidgets() {
	rps := widgets.NewSparkline()
	rps.Title = "req/s"
	rps.LineColor = ui.ColorGreen
	rps.Data = []float64{0}
	d.rpsSparkline = widgets.NewSparklineGroup(rps)
	d.rpsSparkline.Title = "Throughput"
	d.rpsSparkline.BorderStyle.Fg = ui.ColorCyan

	load := widgets.NewSparkline()
	load.Title = "target"
	load.LineColor = ui.ColorYellow
	load.Data = []float64{0}
	d.loadSparkline = widgets.NewSparklineGroup(load)
	d.loadSparkline.Title = "Concurrency Target"
	d.loadSparkline.BorderStyle.Fg = ui.ColorCyan

	d.targetGauge = widgets.NewGauge()
	d.targetGauge.Title = "Concurrency"
	d.targetGauge.BarColor = ui.ColorBlue
	d.targetGauge.BorderStyle.Fg = ui.ColorCyan
	d.targetGauge.LabelStyle = ui.NewStyle(ui.ColorWhite)

	d.summaryPara = widgets.NewParagraph()
	d.summaryPara.Title = "Test Summary"
	d.summaryPara.Text = "Initializing..."
	d.summaryPara.BorderStyle.Fg = ui.ColorCyan

	d.windowPara = widgets.NewParagraph()
	d.windowPara.Title = "Last Window"
	d.windowPara.Text = "Waiting for data..."
	d.windowPara.BorderStyle.Fg = ui.ColorCyan

	d.totalsPara = widgets.NewParagraph()
	d.totalsPara.Title = "Totals"
	d.totalsPara.Text = "Waiting for data..."
	d.totalsPara.BorderStyle.Fg = ui.ColorCyan

	d.latencyPara = widgets.NewParagraph()
	d.latencyPara.Title = "Latency Stats"
	d.latencyPara.Text = formatLatency(metrics.LatencyStats{})
	d.latencyPara.BorderStyle.Fg = ui.ColorCyan
}

func (d *Dashboard) setupGrid() {
	termWidth, termHeight := ui.TerminalDimensions()

	d.grid = ui.NewGrid()
	d.grid.SetRect(0, 0, termWidth, termHeight)

	d.grid.Set(
		ui.NewRow(0.14,
			ui.NewCol(1.0, d.summaryPara),
		),
		ui.NewRow(0.12,
			ui.NewCol(1.0, d.targetGauge),
		),
		ui.NewRow(0.26,
			ui.NewCol(0.5, d.rpsSparkline),
			ui.NewCol(0.5, d.loadSparkline),
		),
		ui.NewRow(0.48,
			ui.NewCol(0.35, d.windowPara),
			ui.NewCol(0.35, d.totalsPara),
			ui.NewCol(0.30, d.latencyPara),
		),
	)
}

// Observe records one sampling window. It satisfies output.WindowObserver.
func (d *Dashboard) Observe(snap metrics.WindowSnapshot, target int, scaleDownActive bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.rpsHistory = appendHistory(d.rpsHistory, snap.RequestsPerSecond(), historyLimit)
	d.targetHistory = appendHistory(d.targetHistory, float64(target), historyLimit)
	d.last = window{snap: snap, target: target, scaleDownActive: scaleDownActive}
	d.observed = true
}

// Start begins the dashboard update loop.
func (d *Dashboard) Start() {
	d.wg.Add(1)
	go d.run()
}

// Stop stops the dashboard and restores the terminal.
func (d *Dashboard) Stop() {
	d.cancel()
	d.wg.Wait()
	ui.Close()
	// Give terminal time to restore
	time.Sleep(100 * time.Millisecond)
}

func (d *Dashboard) run() {
	defer d.wg.Done()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	uiEvents := ui.PollEvents()

	d.render()

	for {
		select {
		case <-d.ctx.Done():
			for len(uiEvents) > 0 {
				<-uiEvents
			}
			return
		case e := <-uiEvents:
			select {
			case <-d.ctx.Done():
				return
			default:
			}

			switch e.ID {
			case "q", "<C-c>":
				if d.shutdownFunc != nil {
					d.shutdownFunc()
				}
				// Stop cancels the context once the run has drained.
			case "<Resize>":
				payload := e.Payload.(ui.Resize)
				d.mu.Lock()
				d.grid.SetRect(0, 0, payload.Width, payload.Height)
				d.mu.Unlock()
				ui.Clear()
				d.render()
			}
		case <-ticker.C:
			d.update()
			d.render()
		}
	}
}

func (d *Dashboard) update() {
	stats := d.source.Cumulative()
	latency := d.source.Latency()
	elapsed := d.source.Elapsed()

	d.mu.Lock()
	defer d.mu.Unlock()

	d.summaryPara.Text = fmt.Sprintf(
		"Target: %s\n%s\nElapsed: %s | Total: %d | Success Rate: %.1f%%",
		d.testConfig.TargetURL,
		formatTestParams(d.testConfig),
		elapsed.Round(time.Second),
		stats.TotalRequests,
		stats.SuccessRate(),
	)
	d.totalsPara.Text = formatTotals(stats)
	d.latencyPara.Text = formatLatency(latency)

	if !d.observed {
		return
	}

	d.rpsSparkline.Sparklines[0].Data = d.rpsHistory
	d.loadSparkline.Sparklines[0].Data = d.targetHistory
	d.rpsSparkline.Title = fmt.Sprintf("Throughput | Current: %.1f req/s", d.last.snap.RequestsPerSecond())
	d.loadSparkline.Title = fmt.Sprintf("Concurrency Target | Current: %d", d.last.target)

	d.targetGauge.Percent = gaugePercent(d.last.target, d.testConfig.Max, d.targetHistory)
	d.targetGauge.Label = gaugeLabel(d.last.target, d.testConfig.Max, d.last.scaleDownActive)
	if d.last.scaleDownActive {
		d.targetGauge.BarColor = ui.ColorRed
	} else {
		d.targetGauge.BarColor = ui.ColorBlue
	}

	d.windowPara.Text = formatWindow(d.last.snap)
}

func (d *Dashboard) render() {
	d.mu.Lock()
	defer d.mu.Unlock()

	ui.Render(d.grid)
}

func appendHistory(history []float64, v float64, limit int) []float64 {
	history = append(history, v)
	if limit > 0 && len(history) > limit {
		history = history[len(history)-limit:]
	}
	return history
}

// gaugePercent scales the target against the ceiling, or against the
// highest target seen so far when the run is unbounded.
func gaugePercent(target, max int, history []float64) int {
	if target <= 0 {
		return 0
	}
	ceiling := float64(max)
	if ceiling <= 0 {
		for _, v := range history {
			if v > ceiling {
				ceiling = v
			}
		}
	}
	if ceiling <= 0 {
		return 0
	}
	pct := int(float64(target) / ceiling * 100)
	if pct > 100 {
		pct = 100
	}
	return pct
}

func gaugeLabel(target, max int, scaleDownActive bool) string {
	label := fmt.Sprintf("%d concurrent", target)
	if max > 0 {
		label = fmt.Sprintf("%d / %d concurrent", target, max)
	}
	if scaleDownActive {
		label += " (backing off)"
	}
	return label
}

func formatWindow(snap metrics.WindowSnapshot) string {
	return fmt.Sprintf(
		"Requests/sec:  %.1f\nSuccess/sec:   %d (%.1f%%)\nFailed/sec:    %d\nUpload:        %s/s\nDownload:      %s/s",
		snap.RequestsPerSecond(),
		snap.Successes,
		snap.SuccessRate(),
		snap.Failures,
		output.FormatRate(snap.BytesSentPerSecond()),
		output.FormatRate(snap.BytesReceivedPerSecond()),
	)
}

func formatTotals(stats metrics.RunStatistics) string {
	return fmt.Sprintf(
		"Total Requests:  %d\nSuccessful:      %d\nFailed:          %d\nData Sent:       %s\nData Received:   %s",
		stats.TotalRequests,
		stats.SuccessfulRequests,
		stats.FailedRequests,
		output.FormatBytes(stats.BytesSent),
		output.FormatBytes(stats.BytesReceived),
	)
}

func formatLatency(l metrics.LatencyStats) string {
	return fmt.Sprintf(
		"Min:  %.2fms\nMean: %.2fms\nP50:  %.2fms\nP90:  %.2fms\nP99:  %.2fms",
		l.MinMs,
		l.MeanMs,
		l.P50Ms,
		l.P90Ms,
		l.P99Ms,
	)
}

// formatTestParams formats the test configuration parameters for display.
func formatTestParams(cfg TestConfig) string {
	var parts []string

	if cfg.Concurrency > 0 {
		parts = append(parts, fmt.Sprintf("Start: %d", cfg.Concurrency))
	}
	if cfg.Step > 0 {
		parts = append(parts, fmt.Sprintf("Step: +%d", cfg.Step))
	}
	if cfg.Max > 0 {
		parts = append(parts, fmt.Sprintf("Max: %d", cfg.Max))
	}

	if cfg.Rate > 0 {
		parts = append(parts, fmt.Sprintf("Rate: %d/s", cfg.Rate))
	} else {
		parts = append(parts, "Rate: unlimited")
	}

	if cfg.Duration > 0 {
		parts = append(parts, fmt.Sprintf("Duration: %s", cfg.Duration))
	}
	if cfg.Total > 0 {
		parts = append(parts, fmt.Sprintf("Total: %d", cfg.Total))
	}
	if cfg.Timeout > 0 {
		parts = append(parts, fmt.Sprintf("Timeout: %s", cfg.Timeout))
	}

	// Config file (only show if used)
	if cfg.ConfigFile != "" {
		parts = append(parts, fmt.Sprintf("Config: %s", cfg.ConfigFile))
	}

	return strings.Join(parts, " | ")
}
