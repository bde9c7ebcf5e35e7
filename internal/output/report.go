package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/torosent/rampfire/internal/metrics"
	"github.com/torosent/rampfire/internal/threshold"
)

const rule = "-------------------------------------------"

// Report is the structured form of the final output.
type Report struct {
	metrics.Summary `yaml:",inline"`
	Thresholds      []threshold.Result `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`
}

// PrintReport outputs a human-readable summary report.
func PrintReport(w io.Writer, summary metrics.Summary, results []threshold.Result) {
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "Performance Test Results for %s\n", summary.Target)
	fmt.Fprintln(w, rule)
	if summary.RunID != "" {
		fmt.Fprintf(w, "Run ID: %s\n", summary.RunID)
	}
	fmt.Fprintf(w, "Test duration: %.2f minutes\n", summary.Duration.Minutes())
	fmt.Fprintf(w, "Total requests: %d\n", summary.TotalRequests)
	fmt.Fprintf(w, "Successful requests: %d (%.1f%%)\n", summary.SuccessfulRequests, summary.SuccessRate)
	fmt.Fprintf(w, "Failed requests: %d\n", summary.FailedRequests)
	fmt.Fprintf(w, "Requests per second: %.1f\n", summary.RequestsPerSec)
	fmt.Fprintf(w, "Final concurrency: %d\n", summary.FinalTarget)
	fmt.Fprintf(w, "Total data sent: %s\n", FormatBytes(summary.BytesSent))
	fmt.Fprintf(w, "Total data received: %s\n", FormatBytes(summary.BytesReceived))

	if summary.Latency.Count > 0 {
		l := summary.Latency
		fmt.Fprintln(w, "\nLatency:")
		fmt.Fprintf(w, "  Min:  %s\n", l.Min)
		fmt.Fprintf(w, "  Mean: %s\n", l.Mean)
		fmt.Fprintf(w, "  P50:  %s\n", l.P50)
		fmt.Fprintf(w, "  P90:  %s\n", l.P90)
		fmt.Fprintf(w, "  P99:  %s\n", l.P99)
		fmt.Fprintf(w, "  Max:  %s\n", l.Max)
	}

	if len(results) > 0 {
		fmt.Fprintln(w, "\nThresholds:")
		for _, r := range results {
			fmt.Fprintf(w, "  %s\n", r.Message)
		}
	}
	fmt.Fprintln(w, rule)
}

// PrintJSONReport outputs a JSON-formatted report.
func PrintJSONReport(w io.Writer, summary metrics.Summary, results []threshold.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(Report{Summary: summary, Thresholds: results})
}

// PrintYAMLReport outputs a YAML-formatted report.
func PrintYAMLReport(w io.Writer, summary metrics.Summary, results []threshold.Result) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(Report{Summary: summary, Thresholds: results}); err != nil {
		return err
	}
	return enc.Close()
}

// Print writes the report in the requested format: text, json or yaml.
func Print(w io.Writer, format string, summary metrics.Summary, results []threshold.Result) error {
	switch strings.ToLower(format) {
	case "", "text":
		PrintReport(w, summary, results)
		return nil
	case "json":
		return PrintJSONReport(w, summary, results)
	case "yaml":
		return PrintYAMLReport(w, summary, results)
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
}
