package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/torosent/rampfire/internal/metrics"
	"github.com/torosent/rampfire/internal/threshold"
)

func sampleSummary() metrics.Summary {
	stats := metrics.RunStatistics{
		TotalRequests:      1200,
		SuccessfulRequests: 1140,
		FailedRequests:     60,
		BytesSent:          26400,
		BytesReceived:      3 * 1024 * 1024,
	}
	latency := metrics.LatencyStats{
		Count: 1200,
		Min:   2 * time.Millisecond,
		Mean:  12 * time.Millisecond,
		P50:   10 * time.Millisecond,
		P90:   25 * time.Millisecond,
		P99:   80 * time.Millisecond,
		Max:   120 * time.Millisecond,
	}
	s := metrics.Summarize("http://localhost:8080/", stats, latency, 90*time.Second)
	s.RunID = "01HZXRUNID"
	s.FinalTarget = 16
	return s
}

func TestPrintReportBasic(t *testing.T) {
	var buf bytes.Buffer
	PrintReport(&buf, sampleSummary(), nil)

	out := buf.String()
	for _, want := range []string{
		"Performance Test Results for http://localhost:8080/",
		"Test duration: 1.50 minutes",
		"Total requests: 1200",
		"Successful requests: 1140 (95.0%)",
		"Failed requests: 60",
		"Requests per second: 13.3",
		"Final concurrency: 16",
		"Total data sent: 25.78 KB",
		"Total data received: 3.00 MB",
		"P99:  80ms",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q\n%s", want, out)
		}
	}
	if strings.Contains(out, "Thresholds:") {
		t.Error("threshold section printed without thresholds")
	}
}

func TestPrintReportSkipsEmptyLatency(t *testing.T) {
	var buf bytes.Buffer
	PrintReport(&buf, metrics.Summarize("http://x", metrics.RunStatistics{}, metrics.LatencyStats{}, time.Second), nil)
	if strings.Contains(buf.String(), "Latency:") {
		t.Error("latency block printed for a run without requests")
	}
}

func TestPrintReportThresholds(t *testing.T) {
	ths, err := threshold.ParseMultiple([]string{"http_req_failed:rate < 0.01"})
	if err != nil {
		t.Fatalf("ParseMultiple() error = %v", err)
	}
	results := threshold.NewEvaluator(ths).Evaluate(sampleSummary())

	var buf bytes.Buffer
	PrintReport(&buf, sampleSummary(), results)
	if !strings.Contains(buf.String(), "✗ http_req_failed:rate < 0.01") {
		t.Errorf("missing failed threshold line:\n%s", buf.String())
	}
}

func TestPrintJSONReport(t *testing.T) {
	var buf bytes.Buffer
	if err := PrintJSONReport(&buf, sampleSummary(), nil); err != nil {
		t.Fatalf("PrintJSONReport() error = %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if decoded["total_requests"] != float64(1200) {
		t.Errorf("total_requests = %v", decoded["total_requests"])
	}
	if decoded["final_concurrency"] != float64(16) {
		t.Errorf("final_concurrency = %v", decoded["final_concurrency"])
	}
	if decoded["run_id"] != "01HZXRUNID" {
		t.Errorf("run_id = %v", decoded["run_id"])
	}
	if _, ok := decoded["thresholds"]; ok {
		t.Error("thresholds should be omitted when empty")
	}
}

func TestPrintYAMLReport(t *testing.T) {
	var buf bytes.Buffer
	results := []threshold.Result{{Raw: "http_requests:count > 1", Actual: 1200, Pass: true, Message: "ok"}}
	if err := PrintYAMLReport(&buf, sampleSummary(), results); err != nil {
		t.Fatalf("PrintYAMLReport() error = %v", err)
	}

	var decoded map[string]any
	if err := yaml.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid YAML: %v", err)
	}
	if decoded["successful_requests"] != 1140 {
		t.Errorf("successful_requests = %v", decoded["successful_requests"])
	}
	ths, ok := decoded["thresholds"].([]any)
	if !ok || len(ths) != 1 {
		t.Fatalf("thresholds = %v", decoded["thresholds"])
	}
}

func TestPrintFormats(t *testing.T) {
	for _, format := range []string{"", "text", "json", "YAML"} {
		var buf bytes.Buffer
		if err := Print(&buf, format, sampleSummary(), nil); err != nil {
			t.Errorf("Print(%q) error = %v", format, err)
		}
		if buf.Len() == 0 {
			t.Errorf("Print(%q) wrote nothing", format)
		}
	}
	if err := Print(&bytes.Buffer{}, "xml", sampleSummary(), nil); err == nil {
		t.Error("expected error for unknown format")
	}
}
