package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Usage is the positional synopsis shown in help and on configuration errors.
const Usage = "rampfire <url> [durationSeconds=60] [initialConcurrency=processorCount] [flags]"

// RegisterFlags registers all CLI flags to a cobra command.
func RegisterFlags(cmd *cobra.Command) {
	configureFlags(cmd.Flags())
}

// newFlagCommand creates a cobra command with all flags configured.
func newFlagCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           Usage,
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.SetOut(os.Stdout)
	configureFlags(cmd.Flags())
	return cmd
}

// configureFlags sets up all CLI flags on the provided flag set.
func configureFlags(flags *pflag.FlagSet) {
	// Target flags
	flags.String("target", "", "Target URL (alternative to the first positional argument)")
	flags.StringSlice("header", nil, "Additional request header in key=value form")
	flags.Duration("timeout", DefaultTimeout, "Per-request timeout")

	// Run control flags
	flags.DurationP("duration", "d", DefaultDuration, "How long to run the test (e.g. 30s, 2m)")
	flags.IntP("concurrency", "c", 0, "Initial concurrency and scale-down floor (0 means processor count)")
	flags.Int("step", 0, "Concurrency added after each clean window (0 means half the processor count)")
	flags.Int("max-concurrency", 0, "Upper bound for the target concurrency (0 means unbounded)")
	flags.Int("rearm-windows", DefaultRearmWindows, "Windows after a scale-down before scaling up is allowed again")
	flags.Int("rearm-requests", 0, "Re-arm scaling up each time the cumulative request count crosses a multiple of N (overrides rearm-windows)")
	flags.IntP("rate", "r", 0, "Maximum requests started per second (0 means unlimited)")
	flags.IntP("total", "t", 0, "Stop after this many requests were started (0 means unlimited)")
	flags.Duration("grace-period", DefaultGracePeriod, "Max time to wait for in-flight requests after the run ends")

	// Output flags
	flags.StringP("output", "o", string(OutputFormatText), "Final report format: text, json or yaml")
	flags.Bool("dashboard", false, "Show live terminal dashboard")
	flags.Bool("log-errors", false, "Log each failed request to stderr")
	flags.String("log-level", DefaultLogLevel, "Diagnostic log level: debug, info, warn, error")
	flags.String("log-format", string(LogFormatConsole), "Diagnostic log format: console or json")
	flags.String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	flags.StringSlice("threshold", nil, "Pass/fail threshold (repeatable, e.g. 'http_req_failed:rate < 0.01')")
	flags.String("config", "", "Path to configuration file (JSON or YAML)")

	// Tracing flags
	flags.String("tracing-endpoint", "", "OTLP endpoint for request spans")
	flags.String("tracing-protocol", "grpc", "OTLP protocol: grpc or http")
	flags.Bool("tracing-insecure", false, "Disable TLS for the OTLP exporter")
	flags.Float64("tracing-sample-rate", 1.0, "Fraction of requests traced (0.0-1.0)")
	flags.Bool("tracing-propagate", false, "Inject W3C trace context headers into requests")
}

// displayHelp prints the help message for a command.
func displayHelp(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Usage: %s\n\nFlags:\n", cmd.UseLine())
	fs := cmd.Flags()
	fs.SetOutput(out)
	fs.PrintDefaults()
}

// applyFlagOverrides applies command-line flag values to the config, overriding
// values from the config file and environment.
func applyFlagOverrides(cfg *Config, fs *pflag.FlagSet) error {
	var err error
	str := func(name string, dst *string) {
		if err != nil || !fs.Changed(name) {
			return
		}
		*dst, err = fs.GetString(name)
	}
	integer := func(name string, dst *int) {
		if err != nil || !fs.Changed(name) {
			return
		}
		*dst, err = fs.GetInt(name)
	}
	duration := func(name string, dst *time.Duration) {
		if err != nil || !fs.Changed(name) {
			return
		}
		*dst, err = fs.GetDuration(name)
	}
	boolean := func(name string, dst *bool) {
		if err != nil || !fs.Changed(name) {
			return
		}
		*dst, err = fs.GetBool(name)
	}

	str("target", &cfg.TargetURL)
	duration("timeout", &cfg.Timeout)
	duration("duration", &cfg.Duration)
	integer("concurrency", &cfg.Concurrency)
	integer("step", &cfg.Step)
	integer("max-concurrency", &cfg.MaxConcurrency)
	integer("rearm-windows", &cfg.RearmWindows)
	integer("rearm-requests", &cfg.RearmRequests)
	integer("rate", &cfg.Rate)
	integer("total", &cfg.Total)
	duration("grace-period", &cfg.GracePeriod)
	boolean("dashboard", &cfg.Dashboard)
	boolean("log-errors", &cfg.LogErrors)
	str("log-level", &cfg.LogLevel)
	str("metrics-addr", &cfg.MetricsAddr)
	str("tracing-endpoint", &cfg.Tracing.Endpoint)
	str("tracing-protocol", &cfg.Tracing.Protocol)
	boolean("tracing-insecure", &cfg.Tracing.Insecure)
	boolean("tracing-propagate", &cfg.Tracing.Propagate)
	if err != nil {
		return err
	}

	if fs.Changed("output") {
		val, err := fs.GetString("output")
		if err != nil {
			return err
		}
		cfg.Output = OutputFormat(strings.ToLower(strings.TrimSpace(val)))
	}
	if fs.Changed("log-format") {
		val, err := fs.GetString("log-format")
		if err != nil {
			return err
		}
		cfg.LogFormat = LogFormat(strings.ToLower(strings.TrimSpace(val)))
	}
	if fs.Changed("tracing-sample-rate") {
		val, err := fs.GetFloat64("tracing-sample-rate")
		if err != nil {
			return err
		}
		cfg.Tracing.SampleRate = val
	}
	if fs.Changed("header") {
		values, err := fs.GetStringSlice("header")
		if err != nil {
			return err
		}
		for _, raw := range values {
			key, value, err := parseHeader(raw)
			if err != nil {
				return err
			}
			cfg.Headers[key] = value
		}
	}
	if fs.Changed("threshold") {
		values, err := fs.GetStringSlice("threshold")
		if err != nil {
			return err
		}
		cfg.Thresholds = append(cfg.Thresholds, values...)
	}
	return nil
}

func parseHeader(raw string) (string, string, error) {
	key, value, ok := strings.Cut(raw, "=")
	if !ok {
		key, value, ok = strings.Cut(raw, ":")
	}
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return "", "", fmt.Errorf("header %q must be in key=value form", raw)
	}
	return key, strings.TrimSpace(value), nil
}
