package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/torosent/rampfire/internal/config"
	"github.com/torosent/rampfire/internal/control"
	"github.com/torosent/rampfire/internal/dashboard"
	"github.com/torosent/rampfire/internal/httpclient"
	"github.com/torosent/rampfire/internal/logging"
	"github.com/torosent/rampfire/internal/metrics"
	"github.com/torosent/rampfire/internal/output"
	"github.com/torosent/rampfire/internal/runner"
	"github.com/torosent/rampfire/internal/threshold"
	"github.com/torosent/rampfire/internal/tracing"
)

const progressInterval = time.Second

// errThresholdsFailed is returned when at least one threshold did not pass.
var errThresholdsFailed = errors.New("one or more thresholds failed")

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run returns the process exit code: 1 for configuration errors and failed
// thresholds, 0 otherwise, including runs stopped early with Ctrl+C.
func run(args []string, stdout, stderr io.Writer) int {
	cfg, err := config.NewLoader().Load(args)
	if err != nil {
		if errors.Is(err, config.ErrHelpRequested) {
			return 0
		}
		printUsageError(stderr, err)
		return 1
	}
	if err := cfg.Validate(); err != nil {
		printUsageError(stderr, err)
		return 1
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := execute(ctx, cfg, stdout, stderr); err != nil {
		if !errors.Is(err, errThresholdsFailed) {
			fmt.Fprintf(stderr, "Error: %v\n", err)
		}
		return 1
	}
	return 0
}

func printUsageError(w io.Writer, err error) {
	fmt.Fprintf(w, "Error: %v\n", err)
	fmt.Fprintf(w, "Usage: %s\n", config.Usage)
}

func execute(ctx context.Context, cfg *config.Config, stdout, stderr io.Writer) error {
	logger, err := logging.New(cfg.LogLevel, string(cfg.LogFormat), stderr)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	for _, w := range cfg.Warnings() {
		logger.Warn(w)
	}

	parsed, err := threshold.ParseMultiple(cfg.Thresholds)
	if err != nil {
		return err
	}

	runID := ulid.Make().String()
	logger = logger.With(zap.String("run_id", runID))

	provider, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("tracing shutdown", zap.Error(err))
		}
	}()

	builder, err := httpclient.NewRequestBuilder(cfg.TargetURL, cfg.Headers)
	if err != nil {
		return err
	}

	aggregator := metrics.NewAggregator()
	controller := control.New(cfg.Concurrency, control.Config{
		Floor:         cfg.Concurrency,
		Step:          cfg.Step,
		Max:           cfg.MaxConcurrency,
		RearmWindows:  cfg.RearmWindows,
		RearmRequests: uint64(cfg.RearmRequests),
	})

	var execOpts []httpclient.ExecutorOption
	if provider.Enabled() {
		execOpts = append(execOpts, httpclient.WithTracer(provider.Tracer(), provider.ShouldPropagate()))
	}
	executor := httpclient.NewExecutor(httpclient.NewClient(cfg.Timeout), builder, aggregator, execOpts...)

	var requester runner.Requester = executor
	if cfg.LogErrors {
		requester = runner.WithLogging(requester, runner.ZapFailureLogger{Logger: logger})
	}

	exporter := metrics.NewExporter()
	observers := []output.WindowObserver{exporter}

	if cfg.MetricsAddr != "" {
		stopMetrics := serveMetrics(cfg.MetricsAddr, exporter.Handler(), logger)
		defer stopMetrics()
	}

	runCtx, stopRun := context.WithCancel(ctx)
	defer stopRun()

	var dash *dashboard.Dashboard
	if cfg.Dashboard {
		dash, err = dashboard.New(aggregator, dashboard.TestConfig{
			TargetURL:   cfg.TargetURL,
			Concurrency: cfg.Concurrency,
			Step:        cfg.Step,
			Max:         cfg.MaxConcurrency,
			Duration:    cfg.Duration,
			Total:       cfg.Total,
			Rate:        cfg.Rate,
			Timeout:     cfg.Timeout,
			ConfigFile:  cfg.ConfigFile,
		}, stopRun)
		if err != nil {
			return err
		}
		observers = append(observers, dash)
	}

	status := statusWriter(cfg, stdout, stderr)
	fmt.Fprintf(status, "Starting performance test for %s\n", cfg.TargetURL)
	fmt.Fprintf(status, "Test will run for %d seconds\n", int(cfg.Duration/time.Second))
	fmt.Fprintln(status, "Press Ctrl+C to stop the test early")
	fmt.Fprintln(status)
	fmt.Fprintf(status, "Detected %d processors. Starting with %d concurrent requests.\n", runtime.NumCPU(), cfg.Concurrency)

	if cfg.Duration == 0 {
		stopRun()
	}

	r := runner.New(runner.Options{
		Target:        controller,
		Requester:     requester,
		TotalRequests: cfg.Total,
		Duration:      cfg.Duration,
		RatePerSecond: cfg.Rate,
		GracePeriod:   cfg.GracePeriod,
		OnStateChange: func(from, to runner.State) {
			logger.Debug("scheduler state", zap.Stringer("from", from), zap.Stringer("to", to))
		},
	})

	progress := output.NewProgressReporter(aggregator, controller, progressInterval, status, logger, observers...)

	aggregator.Start()
	if dash != nil {
		dash.Start()
	}
	progress.Start()

	result := r.Run(runCtx)

	progress.Stop()
	if dash != nil {
		dash.Stop()
	}
	fmt.Fprintln(status)

	if result.Abandoned > 0 {
		logger.Warn("requests still in flight after grace period", zap.Int64("abandoned", result.Abandoned))
	}

	summary := metrics.Summarize(cfg.TargetURL, aggregator.Cumulative(), aggregator.Latency(), result.Duration)
	summary.RunID = runID
	summary.FinalTarget = controller.Target()

	var results []threshold.Result
	if len(parsed) > 0 {
		results = threshold.NewEvaluator(parsed).Evaluate(summary)
	}

	if err := output.Print(stdout, string(cfg.Output), summary, results); err != nil {
		return err
	}

	if !threshold.AllPassed(results) {
		return errThresholdsFailed
	}
	return nil
}

// statusWriter picks where the per-second status lines go: stdout for the
// text report, stderr when stdout carries JSON or YAML, nowhere under the
// dashboard.
func statusWriter(cfg *config.Config, stdout, stderr io.Writer) io.Writer {
	switch {
	case cfg.Dashboard:
		return io.Discard
	case cfg.Output == config.OutputFormatJSON || cfg.Output == config.OutputFormatYAML:
		return stderr
	default:
		return stdout
	}
}

func serveMetrics(addr string, handler http.Handler, logger *zap.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("serving metrics", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", zap.Error(err))
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
