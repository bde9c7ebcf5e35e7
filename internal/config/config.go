package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

type OutputFormat string

const (
	OutputFormatText OutputFormat = "text"
	OutputFormatJSON OutputFormat = "json"
	OutputFormatYAML OutputFormat = "yaml"
)

type LogFormat string

const (
	LogFormatConsole LogFormat = "console"
	LogFormatJSON    LogFormat = "json"
)

// Defaults applied before config files, environment, flags and positional arguments.
const (
	DefaultDuration     = 60 * time.Second
	DefaultTimeout      = 30 * time.Second
	DefaultGracePeriod  = 5 * time.Second
	DefaultRearmWindows = 2
	DefaultLogLevel     = "info"
)

type Config struct {
	TargetURL      string            `mapstructure:"target"`
	Headers        map[string]string `mapstructure:"headers"`
	Duration       time.Duration     `mapstructure:"duration"`
	Concurrency    int               `mapstructure:"concurrency"` // initial target and scale-down floor
	Step           int               `mapstructure:"step"`
	MaxConcurrency int               `mapstructure:"max_concurrency"`
	RearmWindows   int               `mapstructure:"rearm_windows"`
	RearmRequests  int               `mapstructure:"rearm_requests"`
	Rate           int               `mapstructure:"rate"`
	Total          int               `mapstructure:"total"`
	Timeout        time.Duration     `mapstructure:"timeout"`
	GracePeriod    time.Duration     `mapstructure:"grace_period"`
	LogErrors      bool              `mapstructure:"log_errors"`
	LogLevel       string            `mapstructure:"log_level"`
	LogFormat      LogFormat         `mapstructure:"log_format"`
	Output         OutputFormat      `mapstructure:"output"`
	Dashboard      bool              `mapstructure:"dashboard"`
	MetricsAddr    string            `mapstructure:"metrics_addr"`
	Thresholds     []string          `mapstructure:"thresholds"`
	Tracing        TracingConfig     `mapstructure:"tracing"`
	ConfigFile     string            `mapstructure:"-"`
}

// TracingConfig controls OpenTelemetry export of per-request spans.
type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	Protocol    string  `mapstructure:"protocol"` // "grpc" or "http"
	Insecure    bool    `mapstructure:"insecure"`
	ServiceName string  `mapstructure:"service_name"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	Propagate   bool    `mapstructure:"propagate"`
}

// Enabled reports whether spans should be created at all.
func (t TracingConfig) Enabled() bool {
	return strings.TrimSpace(t.Endpoint) != "" || t.Propagate
}

// ShouldPropagate reports whether W3C trace headers are injected into requests.
func (t TracingConfig) ShouldPropagate() bool {
	return t.Propagate
}

type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(e.issues, "; "))
}

func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

func (c Config) Validate() error {
	var issues []string

	target := strings.TrimSpace(c.TargetURL)
	if target == "" {
		issues = append(issues, "target URL is required")
	} else if u, err := url.Parse(target); err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		issues = append(issues, fmt.Sprintf("target %q must be an absolute http(s) URL", target))
	}

	// Zero is a run that ends before the first request.
	if c.Duration < 0 {
		issues = append(issues, "duration must be >= 0")
	}
	if c.Concurrency < 1 {
		issues = append(issues, "concurrency must be >= 1")
	}
	if c.Step < 1 {
		issues = append(issues, "step must be >= 1")
	}
	if c.MaxConcurrency < 0 {
		issues = append(issues, "max-concurrency must be >= 0")
	} else if c.MaxConcurrency > 0 && c.MaxConcurrency < c.Concurrency {
		issues = append(issues, "max-concurrency must be >= concurrency")
	}
	if c.RearmWindows < 1 {
		issues = append(issues, "rearm-windows must be >= 1")
	}
	if c.RearmRequests < 0 {
		issues = append(issues, "rearm-requests must be >= 0")
	}
	if c.Rate < 0 {
		issues = append(issues, "rate must be >= 0")
	}
	if c.Total < 0 {
		issues = append(issues, "total must be >= 0")
	}
	if c.Timeout < 0 {
		issues = append(issues, "timeout must be >= 0")
	}
	if c.GracePeriod < 0 {
		issues = append(issues, "grace-period must be >= 0")
	}

	switch c.Output {
	case "", OutputFormatText, OutputFormatJSON, OutputFormatYAML:
	default:
		issues = append(issues, fmt.Sprintf("output %q is not supported (text, json, yaml)", c.Output))
	}
	switch c.LogFormat {
	case "", LogFormatConsole, LogFormatJSON:
	default:
		issues = append(issues, fmt.Sprintf("log-format %q is not supported (console, json)", c.LogFormat))
	}
	switch strings.ToLower(c.LogLevel) {
	case "", "debug", "info", "warn", "error":
	default:
		issues = append(issues, fmt.Sprintf("log-level %q is not supported (debug, info, warn, error)", c.LogLevel))
	}
	if c.Dashboard && c.Output != "" && c.Output != OutputFormatText {
		issues = append(issues, "dashboard and structured output are mutually exclusive")
	}

	issues = append(issues, validateHeaders(c.Headers)...)
	issues = append(issues, validateTracingConfig(c.Tracing)...)

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}
	return nil
}

// Warnings returns advisory messages that do not block a run.
func (c Config) Warnings() []string {
	var warnings []string
	if c.Concurrency > 500 {
		warnings = append(warnings, fmt.Sprintf("high initial concurrency configured (%d); ensure you have authorization to test the target system", c.Concurrency))
	}
	if c.MaxConcurrency == 0 {
		warnings = append(warnings, "no max-concurrency set; the controller keeps scaling up while the target stays healthy")
	}
	if c.Rate > 1000 {
		warnings = append(warnings, fmt.Sprintf("high spawn rate configured (%d/s)", c.Rate))
	}
	if c.Tracing.Insecure && c.Tracing.Endpoint != "" {
		warnings = append(warnings, "tracing exporter TLS is disabled")
	}
	return warnings
}

func validateHeaders(headers map[string]string) []string {
	var issues []string
	for key, value := range headers {
		if strings.TrimSpace(key) == "" || strings.ContainsAny(key, "\r\n:") {
			issues = append(issues, fmt.Sprintf("header key %q is invalid", key))
		}
		if strings.ContainsAny(value, "\r\n") {
			issues = append(issues, fmt.Sprintf("header %q has an invalid value", key))
		}
	}
	return issues
}

func validateTracingConfig(t TracingConfig) []string {
	var issues []string
	switch strings.ToLower(t.Protocol) {
	case "", "grpc", "http":
	default:
		issues = append(issues, fmt.Sprintf("tracing: protocol must be 'grpc' or 'http', got %q", t.Protocol))
	}
	if t.SampleRate < 0 || t.SampleRate > 1 {
		issues = append(issues, "tracing: sample_rate must be between 0.0 and 1.0")
	}
	return issues
}
