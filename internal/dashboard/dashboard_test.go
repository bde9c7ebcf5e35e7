package dashboard

import (
	"strings"
	"testing"
	"time"

	"github.com/torosent/rampfire/internal/metrics"
)

type fakeSource struct {
	stats   metrics.RunStatistics
	latency metrics.LatencyStats
	elapsed time.Duration
}

func (f fakeSource) Cumulative() metrics.RunStatistics { return f.stats }
func (f fakeSource) Latency() metrics.LatencyStats     { return f.latency }
func (f fakeSource) Elapsed() time.Duration            { return f.elapsed }

func newTestDashboard(src Source, cfg TestConfig) *Dashboard {
	d := &Dashboard{source: src, testConfig: cfg}
	d.initWidgets()
	return d
}

func TestAppendHistory(t *testing.T) {
	var h []float64
	for i := 1; i <= 5; i++ {
		h = appendHistory(h, float64(i), 3)
	}
	if len(h) != 3 {
		t.Fatalf("len = %d, want 3", len(h))
	}
	if h[0] != 3 || h[2] != 5 {
		t.Errorf("history = %v, want [3 4 5]", h)
	}
}

func TestGaugePercent(t *testing.T) {
	tests := []struct {
		name    string
		target  int
		max     int
		history []float64
		want    int
	}{
		{"zero target", 0, 10, nil, 0},
		{"bounded", 5, 10, nil, 50},
		{"bounded full", 10, 10, nil, 100},
		{"unbounded uses peak", 4, 0, []float64{2, 8, 4}, 50},
		{"unbounded no history", 4, 0, nil, 0},
		{"clamped", 12, 10, nil, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := gaugePercent(tt.target, tt.max, tt.history); got != tt.want {
				t.Errorf("gaugePercent(%d, %d) = %d, want %d", tt.target, tt.max, got, tt.want)
			}
		})
	}
}

func TestGaugeLabel(t *testing.T) {
	tests := []struct {
		target   int
		max      int
		backoff  bool
		expected string
	}{
		{4, 0, false, "4 concurrent"},
		{4, 16, false, "4 / 16 concurrent"},
		{2, 16, true, "2 / 16 concurrent (backing off)"},
	}
	for _, tt := range tests {
		if got := gaugeLabel(tt.target, tt.max, tt.backoff); got != tt.expected {
			t.Errorf("gaugeLabel(%d, %d, %v) = %q, want %q", tt.target, tt.max, tt.backoff, got, tt.expected)
		}
	}
}

func TestFormatWindow(t *testing.T) {
	snap := metrics.WindowSnapshot{
		Requests:       20,
		Successes:      15,
		Failures:       5,
		BytesSent:      512,
		BytesReceived:  4096,
		WindowDuration: time.Second,
	}
	text := formatWindow(snap)
	for _, want := range []string{"Requests/sec:  20.0", "Success/sec:   15 (75.0%)", "Failed/sec:    5", "Upload:        512 B/s", "Download:      4.00 KB/s"} {
		if !strings.Contains(text, want) {
			t.Errorf("expected %q in %q", want, text)
		}
	}
}

func TestFormatTestParams(t *testing.T) {
	tests := []struct {
		name     string
		config   TestConfig
		contains []string
		excludes []string
	}{
		{
			name: "basic config",
			config: TestConfig{
				Concurrency: 10,
				Step:        2,
				Rate:        100,
				Duration:    30 * time.Second,
			},
			contains: []string{"Start: 10", "Step: +2", "Rate: 100/s", "Duration: 30s"},
			excludes: []string{"Max:", "Total:"},
		},
		{
			name:     "unlimited rate",
			config:   TestConfig{Concurrency: 5},
			contains: []string{"Start: 5", "Rate: unlimited"},
		},
		{
			name:     "with ceiling",
			config:   TestConfig{Concurrency: 5, Max: 64},
			contains: []string{"Max: 64"},
		},
		{
			name:     "with config file",
			config:   TestConfig{Concurrency: 5, ConfigFile: "test.yml"},
			contains: []string{"Config: test.yml"},
		},
		{
			name:     "with total requests",
			config:   TestConfig{Concurrency: 5, Total: 1000},
			contains: []string{"Total: 1000"},
		},
		{
			name:     "with timeout",
			config:   TestConfig{Concurrency: 5, Timeout: 10 * time.Second},
			contains: []string{"Timeout: 10s"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := formatTestParams(tt.config)

			for _, s := range tt.contains {
				if !strings.Contains(result, s) {
					t.Errorf("expected result to contain %q, got %q", s, result)
				}
			}

			for _, s := range tt.excludes {
				if strings.Contains(result, s) {
					t.Errorf("expected result NOT to contain %q, got %q", s, result)
				}
			}
		})
	}
}

func TestObserveFeedsWidgets(t *testing.T) {
	src := fakeSource{
		stats: metrics.RunStatistics{
			TotalRequests:      40,
			SuccessfulRequests: 30,
			FailedRequests:     10,
			BytesSent:          2048,
			BytesReceived:      10,
		},
		latency: metrics.LatencyStats{P99Ms: 12.5},
		elapsed: 3 * time.Second,
	}
	d := newTestDashboard(src, TestConfig{TargetURL: "http://example.test", Max: 8})

	d.update()
	if d.windowPara.Text != "Waiting for data..." {
		t.Errorf("window paragraph should wait for the first window, got %q", d.windowPara.Text)
	}
	if !strings.Contains(d.summaryPara.Text, "Success Rate: 75.0%") {
		t.Errorf("summary = %q", d.summaryPara.Text)
	}

	d.Observe(metrics.WindowSnapshot{Requests: 10, Successes: 10, WindowDuration: time.Second}, 2, false)
	d.Observe(metrics.WindowSnapshot{Requests: 8, Successes: 4, Failures: 4, WindowDuration: time.Second}, 4, true)
	d.update()

	if got := d.rpsSparkline.Sparklines[0].Data; len(got) != 2 || got[1] != 8 {
		t.Errorf("rps history = %v", got)
	}
	if got := d.loadSparkline.Sparklines[0].Data; len(got) != 2 || got[1] != 4 {
		t.Errorf("target history = %v", got)
	}
	if d.targetGauge.Percent != 50 {
		t.Errorf("gauge percent = %d, want 50", d.targetGauge.Percent)
	}
	if d.targetGauge.Label != "4 / 8 concurrent (backing off)" {
		t.Errorf("gauge label = %q", d.targetGauge.Label)
	}
	if !strings.Contains(d.totalsPara.Text, "Data Sent:       2.00 KB") {
		t.Errorf("totals = %q", d.totalsPara.Text)
	}
	if !strings.Contains(d.latencyPara.Text, "P99:  12.50ms") {
		t.Errorf("latency = %q", d.latencyPara.Text)
	}
}
