package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

func TestAsString(t *testing.T) {
	tests := []struct {
		input interface{}
		want  string
	}{
		{"hello", "hello"},
		{123, "123"},
		{true, "true"},
		{nil, ""},
		{[]byte("bytes"), "bytes"},
	}

	for _, tt := range tests {
		got, err := asString(tt.input)
		if err != nil {
			t.Errorf("asString(%v) error = %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("asString(%v) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestAsInt(t *testing.T) {
	tests := []struct {
		input interface{}
		want  int
	}{
		{123, 123},
		{"456", 456},
		{int64(789), 789},
		{float64(10.0), 10},
		{nil, 0},
	}

	for _, tt := range tests {
		got, err := asInt(tt.input)
		if err != nil {
			t.Errorf("asInt(%v) error = %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("asInt(%v) = %d, want %d", tt.input, got, tt.want)
		}
	}
}

func TestAsBool(t *testing.T) {
	tests := []struct {
		input interface{}
		want  bool
	}{
		{true, true},
		{"true", true},
		{"1", true},
		{false, false},
		{"false", false},
		{"0", false},
		{nil, false},
	}

	for _, tt := range tests {
		got, err := asBool(tt.input)
		if err != nil {
			t.Errorf("asBool(%v) error = %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("asBool(%v) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestAsDuration(t *testing.T) {
	tests := []struct {
		input interface{}
		want  time.Duration
	}{
		{time.Second, time.Second},
		{"1m", time.Minute},
		{10, 10 * time.Second}, // int treated as seconds
		{" 30 ", 30 * time.Second},
		{int64(5), 5 * time.Second},
		{nil, 0},
	}

	for _, tt := range tests {
		got, err := asDuration(tt.input)
		if err != nil {
			t.Errorf("asDuration(%v) error = %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("asDuration(%v) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestAsStringMapFromEnvString(t *testing.T) {
	got, err := asStringMap("X-One=1, X-Two: 2")
	if err != nil {
		t.Fatalf("asStringMap() error = %v", err)
	}
	if got["X-One"] != "1" || got["X-Two"] != "2" {
		t.Errorf("asStringMap() = %v", got)
	}
	if _, err := asStringMap("broken"); err == nil {
		t.Error("expected error for header without separator")
	}
}

func TestAsStringSlice(t *testing.T) {
	got, err := asStringSlice("http_req_failed:rate < 0.01")
	if err != nil || len(got) != 1 {
		t.Fatalf("asStringSlice(string) = %v, %v; want one element", got, err)
	}

	got, err = asStringSlice([]interface{}{"a:count > 1", "b:rate < 1"})
	if err != nil {
		t.Fatalf("asStringSlice() error = %v", err)
	}
	if len(got) != 2 || got[1] != "b:rate < 1" {
		t.Errorf("asStringSlice() = %v", got)
	}
}

func TestApplyConfigSettings(t *testing.T) {
	v := viper.New()
	v.Set("target", "http://example.com")
	v.Set("concurrency", 10)
	v.Set("step", 3)
	v.Set("max_concurrency", 64)
	v.Set("timeout", "5s")
	v.Set("output", "JSON")
	v.Set("headers", map[string]interface{}{"Content-Type": "application/json"})
	v.Set("tracing.endpoint", "localhost:4317")
	v.Set("tracing.sample_rate", 0.5)

	cfg := &Config{Headers: map[string]string{}}
	if err := applyConfigSettings(cfg, v); err != nil {
		t.Fatalf("applyConfigSettings() error = %v", err)
	}

	if cfg.TargetURL != "http://example.com" {
		t.Errorf("TargetURL = %q, want http://example.com", cfg.TargetURL)
	}
	if cfg.Concurrency != 10 || cfg.Step != 3 || cfg.MaxConcurrency != 64 {
		t.Errorf("Concurrency/Step/Max = %d/%d/%d, want 10/3/64", cfg.Concurrency, cfg.Step, cfg.MaxConcurrency)
	}
	if cfg.Timeout != 5*time.Second {
		t.Errorf("Timeout = %v, want 5s", cfg.Timeout)
	}
	if cfg.Output != OutputFormatJSON {
		t.Errorf("Output = %q, want json", cfg.Output)
	}
	if cfg.Headers["Content-Type"] != "application/json" {
		t.Errorf("Headers[Content-Type] = %q, want application/json", cfg.Headers["Content-Type"])
	}
	if cfg.Tracing.Endpoint != "localhost:4317" || cfg.Tracing.SampleRate != 0.5 {
		t.Errorf("Tracing = %+v", cfg.Tracing)
	}
}

func TestApplyConfigSettingsRejectsBadDuration(t *testing.T) {
	v := viper.New()
	v.Set("duration", "soon")
	if err := applyConfigSettings(&Config{Headers: map[string]string{}}, v); err == nil {
		t.Fatal("expected error for unparseable duration")
	}
}

func TestApplyFlagOverrides(t *testing.T) {
	cfg := &Config{
		Concurrency: 1,
		Headers:     map[string]string{},
	}

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	configureFlags(fs)

	args := []string{
		"--concurrency=5",
		"--rearm-requests=1000",
		"--header=X-Test=123",
		"--threshold=requests_failed:rate < 0.01",
	}
	if err := fs.Parse(args); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if err := applyFlagOverrides(cfg, fs); err != nil {
		t.Fatalf("applyFlagOverrides() error = %v", err)
	}

	if cfg.Concurrency != 5 {
		t.Errorf("Concurrency = %d, want 5", cfg.Concurrency)
	}
	if cfg.RearmRequests != 1000 {
		t.Errorf("RearmRequests = %d, want 1000", cfg.RearmRequests)
	}
	if cfg.Headers["X-Test"] != "123" {
		t.Errorf("Headers[X-Test] = %q, want 123", cfg.Headers["X-Test"])
	}
	if len(cfg.Thresholds) != 1 {
		t.Errorf("Thresholds = %v, want one entry", cfg.Thresholds)
	}
}

func fixedCPUs(n int) *Loader {
	return &Loader{ProcessorCount: func() int { return n }}
}

func TestLoader_LoadPositionalArgs(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		duration time.Duration
		conc     int
		step     int
	}{
		{"url only", []string{"http://example.com"}, DefaultDuration, 8, 4},
		{"url and seconds", []string{"http://example.com", "30"}, 30 * time.Second, 8, 4},
		{"all positionals", []string{"http://example.com", "10", "3"}, 10 * time.Second, 3, 4},
		{"go duration", []string{"http://example.com", "2m"}, 2 * time.Minute, 8, 4},
		{"zero duration", []string{"http://example.com", "0"}, 0, 8, 4},
		{"non-numeric falls back", []string{"http://example.com", "abc", "xyz"}, DefaultDuration, 8, 4},
		{"flag step wins", []string{"--step=2", "http://example.com"}, DefaultDuration, 8, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := fixedCPUs(8).Load(tt.args)
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if cfg.TargetURL != "http://example.com" {
				t.Errorf("TargetURL = %q", cfg.TargetURL)
			}
			if cfg.Duration != tt.duration {
				t.Errorf("Duration = %v, want %v", cfg.Duration, tt.duration)
			}
			if cfg.Concurrency != tt.conc {
				t.Errorf("Concurrency = %d, want %d", cfg.Concurrency, tt.conc)
			}
			if cfg.Step != tt.step {
				t.Errorf("Step = %d, want %d", cfg.Step, tt.step)
			}
		})
	}
}

func TestLoader_StepNeverZeroOnSingleCPU(t *testing.T) {
	cfg, err := fixedCPUs(1).Load([]string{"http://example.com"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Concurrency != 1 || cfg.Step != 1 {
		t.Errorf("Concurrency/Step = %d/%d, want 1/1", cfg.Concurrency, cfg.Step)
	}
}

func TestLoader_LoadDefaults(t *testing.T) {
	cfg, err := fixedCPUs(4).Load([]string{"http://example.com"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Timeout != DefaultTimeout || cfg.GracePeriod != DefaultGracePeriod {
		t.Errorf("Timeout/GracePeriod = %v/%v", cfg.Timeout, cfg.GracePeriod)
	}
	if cfg.RearmWindows != DefaultRearmWindows {
		t.Errorf("RearmWindows = %d, want %d", cfg.RearmWindows, DefaultRearmWindows)
	}
	if cfg.Output != OutputFormatText || cfg.LogFormat != LogFormatConsole || cfg.LogLevel != "info" {
		t.Errorf("Output/LogFormat/LogLevel = %q/%q/%q", cfg.Output, cfg.LogFormat, cfg.LogLevel)
	}
	if cfg.Tracing.SampleRate != 1.0 {
		t.Errorf("Tracing.SampleRate = %v, want 1.0", cfg.Tracing.SampleRate)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoader_LoadHelp(t *testing.T) {
	_, err := NewLoader().Load([]string{"--help"})
	if err != ErrHelpRequested {
		t.Fatalf("Load(--help) error = %v, want ErrHelpRequested", err)
	}
}

func TestLoader_LoadUnknownFlag(t *testing.T) {
	if _, err := NewLoader().Load([]string{"--bogus"}); err == nil {
		t.Fatal("expected error for unknown flag")
	}
}

func TestLoader_LoadFilePrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rampfire.yaml")
	body := strings.Join([]string{
		"target: http://from-file.example",
		"concurrency: 6",
		"step: 2",
		"duration: 45s",
		"headers:",
		"  x-api-key: secret",
		"thresholds:",
		"  - \"requests:rate > 10\"",
	}, "\n")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("RAMPFIRE_STEP", "5")

	cfg, err := fixedCPUs(2).Load([]string{"--config", path, "--concurrency=9"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.TargetURL != "http://from-file.example" {
		t.Errorf("TargetURL = %q, want file value", cfg.TargetURL)
	}
	if cfg.Duration != 45*time.Second {
		t.Errorf("Duration = %v, want 45s", cfg.Duration)
	}
	if cfg.Step != 5 {
		t.Errorf("Step = %d, want env override 5", cfg.Step)
	}
	if cfg.Concurrency != 9 {
		t.Errorf("Concurrency = %d, want flag override 9", cfg.Concurrency)
	}
	if cfg.Headers["X-Api-Key"] != "secret" {
		t.Errorf("Headers = %v, want canonical X-Api-Key", cfg.Headers)
	}
	if len(cfg.Thresholds) != 1 {
		t.Errorf("Thresholds = %v", cfg.Thresholds)
	}
	if cfg.ConfigFile != path {
		t.Errorf("ConfigFile = %q, want %q", cfg.ConfigFile, path)
	}

	cfg, err = fixedCPUs(2).Load([]string{"--config", path, "http://positional.example"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.TargetURL != "http://positional.example" {
		t.Errorf("TargetURL = %q, want positional to win", cfg.TargetURL)
	}
}

func TestLoader_LoadMissingConfigFile(t *testing.T) {
	_, err := NewLoader().Load([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml")})
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestLoader_MissingURLFailsValidation(t *testing.T) {
	cfg, err := fixedCPUs(2).Load(nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error without a target URL")
	}
}
