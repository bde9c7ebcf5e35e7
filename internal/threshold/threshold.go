// Package threshold evaluates pass/fail assertions against the final summary of a run.
package threshold

import (
	"fmt"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/torosent/rampfire/internal/metrics"
)

var thresholdPattern = regexp.MustCompile(`^([a-z_]+):([a-z0-9]+)\s*([<>=!]+)\s*([0-9.]+)$`)

// aggregates lists the aggregates each metric supports.
var aggregates = map[string][]string{
	"http_req_duration": {"p50", "p90", "p99", "avg", "min", "max"},
	"http_req_failed":   {"rate", "count"},
	"http_requests":     {"rate", "count"},
	"data_sent":         {"rate", "count"},
	"data_received":     {"rate", "count"},
	"concurrency":       {"final"},
}

// Threshold represents a performance assertion that can pass or fail.
type Threshold struct {
	Metric    string  // e.g., "http_req_duration", "http_req_failed"
	Aggregate string  // e.g., "p99", "avg", "rate", "count"
	Operator  string  // e.g., "<", "<=", ">", ">=", "=="
	Value     float64 // The threshold value to compare against
	Raw       string  // Original threshold string for display
}

// Result represents the outcome of evaluating a threshold.
type Result struct {
	Threshold Threshold `json:"-" yaml:"-"`
	Raw       string    `json:"threshold" yaml:"threshold"`
	Actual    float64   `json:"actual" yaml:"actual"`
	Pass      bool      `json:"pass" yaml:"pass"`
	Message   string    `json:"message" yaml:"message"`
}

// Evaluator evaluates thresholds against a run summary.
type Evaluator struct {
	thresholds []Threshold
}

// NewEvaluator creates a new threshold evaluator.
func NewEvaluator(thresholds []Threshold) *Evaluator {
	return &Evaluator{
		thresholds: thresholds,
	}
}

// Evaluate checks all thresholds against the provided summary.
func (e *Evaluator) Evaluate(summary metrics.Summary) []Result {
	if len(e.thresholds) == 0 {
		return nil
	}

	results := make([]Result, 0, len(e.thresholds))
	for _, t := range e.thresholds {
		results = append(results, e.evaluateOne(t, summary))
	}
	return results
}

// AllPassed reports whether every result passed. An empty set passes.
func AllPassed(results []Result) bool {
	for _, r := range results {
		if !r.Pass {
			return false
		}
	}
	return true
}

func (e *Evaluator) evaluateOne(t Threshold, summary metrics.Summary) Result {
	actual, err := extractMetricValue(t, summary)
	if err != nil {
		return Result{
			Threshold: t,
			Raw:       t.Raw,
			Pass:      false,
			Message:   fmt.Sprintf("error: %v", err),
		}
	}

	pass := compareValues(actual, t.Operator, t.Value)
	status := "✓"
	if !pass {
		status = "✗"
	}

	return Result{
		Threshold: t,
		Raw:       t.Raw,
		Actual:    actual,
		Pass:      pass,
		Message:   fmt.Sprintf("%s %s: %.2f %s %.2f", status, t.Raw, actual, t.Operator, t.Value),
	}
}

// Parse parses a threshold string into a Threshold struct.
// Supported formats:
// - "http_req_duration:p99 < 500"     (latency percentile in ms)
// - "http_req_duration:avg < 200"     (average latency in ms)
// - "http_req_failed:rate < 0.01"     (failure rate as decimal)
// - "http_req_failed:count < 10"      (failure count)
// - "http_requests:rate > 100"        (requests per second)
// - "data_received:rate > 1048576"    (bytes per second)
// - "concurrency:final >= 32"         (target concurrency when the run ended)
func Parse(s string) (Threshold, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Threshold{}, fmt.Errorf("empty threshold string")
	}

	matches := thresholdPattern.FindStringSubmatch(s)
	if matches == nil {
		return Threshold{}, fmt.Errorf("invalid threshold format: %q (expected format: metric:aggregate operator value, e.g., 'http_req_duration:p99 < 500')", s)
	}

	metric := matches[1]
	aggregate := matches[2]
	operator := matches[3]
	valueStr := matches[4]

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return Threshold{}, fmt.Errorf("invalid threshold value %q: %v", valueStr, err)
	}

	supported, ok := aggregates[metric]
	if !ok {
		return Threshold{}, fmt.Errorf("unsupported metric: %q (supported: %s)", metric, strings.Join(metricNames(), ", "))
	}
	if !slices.Contains(supported, aggregate) {
		return Threshold{}, fmt.Errorf("unsupported aggregate %q for %s (supported: %s)", aggregate, metric, strings.Join(supported, ", "))
	}
	if !isValidOperator(operator) {
		return Threshold{}, fmt.Errorf("unsupported operator: %q (supported: <, <=, >, >=, ==)", operator)
	}

	return Threshold{
		Metric:    metric,
		Aggregate: aggregate,
		Operator:  operator,
		Value:     value,
		Raw:       s,
	}, nil
}

// ParseMultiple parses multiple threshold strings.
func ParseMultiple(thresholds []string) ([]Threshold, error) {
	if len(thresholds) == 0 {
		return nil, nil
	}

	result := make([]Threshold, 0, len(thresholds))
	var errs []string

	for i, s := range thresholds {
		t, err := Parse(s)
		if err != nil {
			errs = append(errs, fmt.Sprintf("threshold[%d]: %v", i, err))
			continue
		}
		result = append(result, t)
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("threshold parsing errors: %s", strings.Join(errs, "; "))
	}

	return result, nil
}

func metricNames() []string {
	names := make([]string, 0, len(aggregates))
	for name := range aggregates {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func isValidOperator(operator string) bool {
	switch operator {
	case "<", "<=", ">", ">=", "==":
		return true
	default:
		return false
	}
}

func extractMetricValue(t Threshold, s metrics.Summary) (float64, error) {
	switch t.Metric {
	case "http_req_duration":
		return extractLatencyMetric(t.Aggregate, s.Latency)
	case "http_req_failed":
		return countOrRate(t, s.FailedRequests, func() float64 {
			if s.TotalRequests == 0 {
				return 0
			}
			return float64(s.FailedRequests) / float64(s.TotalRequests)
		})
	case "http_requests":
		return countOrRate(t, s.TotalRequests, func() float64 { return s.RequestsPerSec })
	case "data_sent":
		return countOrRate(t, s.BytesSent, func() float64 { return perSecond(s.BytesSent, s) })
	case "data_received":
		return countOrRate(t, s.BytesReceived, func() float64 { return perSecond(s.BytesReceived, s) })
	case "concurrency":
		if t.Aggregate != "final" {
			return 0, fmt.Errorf("unsupported aggregate %q for concurrency (use 'final')", t.Aggregate)
		}
		return float64(s.FinalTarget), nil
	default:
		return 0, fmt.Errorf("unknown metric: %s", t.Metric)
	}
}

func extractLatencyMetric(aggregate string, l metrics.LatencyStats) (float64, error) {
	switch aggregate {
	case "p50":
		return l.P50Ms, nil
	case "p90":
		return l.P90Ms, nil
	case "p99":
		return l.P99Ms, nil
	case "avg", "mean":
		return l.MeanMs, nil
	case "min":
		return l.MinMs, nil
	case "max":
		return l.MaxMs, nil
	default:
		return 0, fmt.Errorf("unsupported aggregate %q for http_req_duration", aggregate)
	}
}

func countOrRate(t Threshold, count uint64, rate func() float64) (float64, error) {
	switch t.Aggregate {
	case "count":
		return float64(count), nil
	case "rate":
		return rate(), nil
	default:
		return 0, fmt.Errorf("unsupported aggregate %q for %s (use 'count' or 'rate')", t.Aggregate, t.Metric)
	}
}

func perSecond(v uint64, s metrics.Summary) float64 {
	if s.Duration <= 0 {
		return 0
	}
	return float64(v) / s.Duration.Seconds()
}

func compareValues(actual float64, operator string, expected float64) bool {
	// Handle floating point comparison with small epsilon
	epsilon := 1e-9

	switch operator {
	case "<":
		return actual < expected
	case "<=":
		return actual <= expected || math.Abs(actual-expected) < epsilon
	case ">":
		return actual > expected
	case ">=":
		return actual >= expected || math.Abs(actual-expected) < epsilon
	case "==":
		return math.Abs(actual-expected) < epsilon
	default:
		return false
	}
}
