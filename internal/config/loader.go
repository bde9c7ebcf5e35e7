package config

import (
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. RAMPFIRE_MAX_CONCURRENCY.
const EnvPrefix = "RAMPFIRE"

// Loader handles loading configuration from files, environment and command-line arguments.
type Loader struct {
	// ProcessorCount supplies the default initial concurrency; runtime.NumCPU when nil.
	ProcessorCount func() int
}

// ErrHelpRequested is returned when the user requests help via --help flag.
var ErrHelpRequested = errors.New("help requested")

// NewLoader creates a new configuration Loader.
func NewLoader() *Loader {
	return &Loader{ProcessorCount: runtime.NumCPU}
}

// Load resolves a Config. Precedence, lowest first: defaults, config file,
// environment, flags, positional arguments.
func (l Loader) Load(args []string) (*Config, error) {
	cmd := newFlagCommand()
	if err := cmd.Flags().Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
		return nil, err
	}

	flagSet := cmd.Flags()
	if wantsHelp, err := flagSet.GetBool("help"); err == nil && wantsHelp {
		displayHelp(cmd)
		return nil, ErrHelpRequested
	}

	configPath, err := flagSet.GetString("config")
	if err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configPath, err)
		}
	}

	cfg := &Config{
		Headers:      map[string]string{},
		Duration:     DefaultDuration,
		Timeout:      DefaultTimeout,
		GracePeriod:  DefaultGracePeriod,
		RearmWindows: DefaultRearmWindows,
		LogLevel:     DefaultLogLevel,
		LogFormat:    LogFormatConsole,
		Output:       OutputFormatText,
		Tracing:      TracingConfig{Protocol: "grpc", SampleRate: 1.0},
		ConfigFile:   configPath,
	}

	if err := applyConfigSettings(cfg, v); err != nil {
		return nil, err
	}
	if err := applyFlagOverrides(cfg, flagSet); err != nil {
		return nil, err
	}
	applyPositionalArgs(cfg, flagSet.Args())

	cfg.TargetURL = strings.TrimSpace(cfg.TargetURL)
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	cfg.Headers = canonicalHeaders(cfg.Headers)

	cpus := runtime.NumCPU()
	if l.ProcessorCount != nil {
		cpus = l.ProcessorCount()
	}
	if cfg.Concurrency == 0 {
		cfg.Concurrency = max(1, cpus)
	}
	if cfg.Step == 0 {
		cfg.Step = max(1, cpus/2)
	}

	return cfg, nil
}

// applyPositionalArgs maps <url> [durationSeconds] [initialConcurrency].
// Unparseable numbers keep the value resolved so far.
func applyPositionalArgs(cfg *Config, args []string) {
	if len(args) > 0 {
		cfg.TargetURL = args[0]
	}
	if len(args) > 1 {
		if d, ok := parsePositionalDuration(args[1]); ok {
			cfg.Duration = d
		}
	}
	if len(args) > 2 {
		if n, err := strconv.Atoi(strings.TrimSpace(args[2])); err == nil && n > 0 {
			cfg.Concurrency = n
		}
	}
}

func parsePositionalDuration(raw string) (time.Duration, bool) {
	raw = strings.TrimSpace(raw)
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second, true
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d, true
	}
	return 0, false
}

// applyConfigSettings applies settings from a config file or the environment.
func applyConfigSettings(cfg *Config, v *viper.Viper) error {
	if raw, ok := lookupSetting(v, "target", "url"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("target: %w", err)
		}
		cfg.TargetURL = val
	}

	if raw, ok := lookupSetting(v, "headers"); ok {
		hdrs, err := asStringMap(raw)
		if err != nil {
			return fmt.Errorf("headers: %w", err)
		}
		for k, val := range hdrs {
			cfg.Headers[k] = val
		}
	}

	durations := []struct {
		keys []string
		dst  *time.Duration
	}{
		{[]string{"duration"}, &cfg.Duration},
		{[]string{"timeout"}, &cfg.Timeout},
		{[]string{"grace_period", "graceperiod"}, &cfg.GracePeriod},
	}
	for _, d := range durations {
		if raw, ok := lookupSetting(v, d.keys...); ok {
			val, err := asDuration(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", d.keys[0], err)
			}
			*d.dst = val
		}
	}

	ints := []struct {
		keys []string
		dst  *int
	}{
		{[]string{"concurrency"}, &cfg.Concurrency},
		{[]string{"step"}, &cfg.Step},
		{[]string{"max_concurrency", "maxconcurrency"}, &cfg.MaxConcurrency},
		{[]string{"rearm_windows", "rearmwindows"}, &cfg.RearmWindows},
		{[]string{"rearm_requests", "rearmrequests"}, &cfg.RearmRequests},
		{[]string{"rate"}, &cfg.Rate},
		{[]string{"total"}, &cfg.Total},
	}
	for _, i := range ints {
		if raw, ok := lookupSetting(v, i.keys...); ok {
			val, err := asInt(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", i.keys[0], err)
			}
			*i.dst = val
		}
	}

	bools := []struct {
		keys []string
		dst  *bool
	}{
		{[]string{"log_errors", "logerrors"}, &cfg.LogErrors},
		{[]string{"dashboard"}, &cfg.Dashboard},
		{[]string{"tracing.insecure"}, &cfg.Tracing.Insecure},
		{[]string{"tracing.propagate"}, &cfg.Tracing.Propagate},
	}
	for _, b := range bools {
		if raw, ok := lookupSetting(v, b.keys...); ok {
			val, err := asBool(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", b.keys[0], err)
			}
			*b.dst = val
		}
	}

	strs := []struct {
		keys []string
		dst  *string
	}{
		{[]string{"log_level", "loglevel"}, &cfg.LogLevel},
		{[]string{"metrics_addr", "metricsaddr"}, &cfg.MetricsAddr},
		{[]string{"tracing.endpoint"}, &cfg.Tracing.Endpoint},
		{[]string{"tracing.protocol"}, &cfg.Tracing.Protocol},
		{[]string{"tracing.service_name"}, &cfg.Tracing.ServiceName},
	}
	for _, s := range strs {
		if raw, ok := lookupSetting(v, s.keys...); ok {
			val, err := asString(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", s.keys[0], err)
			}
			*s.dst = strings.TrimSpace(val)
		}
	}

	if raw, ok := lookupSetting(v, "log_format", "logformat"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("log_format: %w", err)
		}
		cfg.LogFormat = LogFormat(strings.ToLower(strings.TrimSpace(val)))
	}

	if raw, ok := lookupSetting(v, "output"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("output: %w", err)
		}
		cfg.Output = OutputFormat(strings.ToLower(strings.TrimSpace(val)))
	}

	if raw, ok := lookupSetting(v, "tracing.sample_rate"); ok {
		val, err := asFloat64(raw)
		if err != nil {
			return fmt.Errorf("tracing.sample_rate: %w", err)
		}
		cfg.Tracing.SampleRate = val
	}

	if raw, ok := lookupSetting(v, "thresholds"); ok {
		val, err := asStringSlice(raw)
		if err != nil {
			return fmt.Errorf("thresholds: %w", err)
		}
		cfg.Thresholds = val
	}

	return nil
}

func canonicalHeaders(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		key := strings.TrimSpace(k)
		if key == "" {
			out[k] = v
			continue
		}
		out[http.CanonicalHeaderKey(key)] = v
	}
	return out
}
