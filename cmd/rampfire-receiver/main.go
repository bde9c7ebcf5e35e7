package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/torosent/rampfire/internal/config"
	"github.com/torosent/rampfire/internal/logging"
	"github.com/torosent/rampfire/internal/receiver"
	"github.com/torosent/rampfire/internal/tracing"
)

const (
	envPrefix      = "RAMPFIRE_RECEIVER"
	serviceName    = "rampfire-receiver"
	defaultAddr    = ":5240"
	defaultBaseURL = "http://localhost:5240"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cmd := newRootCommand(stdout, stderr)
	cmd.SetArgs(args)
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	root := &cobra.Command{
		Use:           serviceName,
		Short:         "Receiver that flags duplicate and skipped sequence counters",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	root.PersistentFlags().String("log-level", "info", "Diagnostic log level: debug, info, warn, error")
	root.PersistentFlags().String("log-format", "console", "Diagnostic log format: console or json")
	_ = v.BindPFlags(root.PersistentFlags())

	root.AddCommand(newServeCommand(v, stderr), newProbeCommand(v, stdout, stderr))
	return root
}

func newServeCommand(v *viper.Viper, stderr io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the receiver HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := logging.New(v.GetString("log-level"), v.GetString("log-format"), stderr)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			provider, err := tracing.Init(cmd.Context(), config.TracingConfig{
				Endpoint:    v.GetString("tracing-endpoint"),
				Protocol:    v.GetString("tracing-protocol"),
				Insecure:    v.GetBool("tracing-insecure"),
				ServiceName: serviceName,
				SampleRate:  1,
			})
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

			var tp trace.TracerProvider
			var opts []receiver.ServerOption
			if provider.Enabled() {
				tp = provider.TracerProvider()
				opts = append(opts, receiver.WithTracing(serviceName, tp))
			}

			store, closeStore, err := newStore(cmd.Context(), v.GetString("redis-addr"), v.GetString("redis-key"), tp)
			if err != nil {
				return err
			}
			defer closeStore()

			return receiver.NewServer(store, logger, opts...).Run(cmd.Context(), v.GetString("addr"))
		},
	}

	flags := cmd.Flags()
	flags.String("addr", defaultAddr, "Listen address")
	flags.String("redis-addr", "", "Share the seen-counter set through this Redis server (default in-memory)")
	flags.String("redis-key", receiver.DefaultRedisKey, "Redis key of the seen-counter set")
	flags.String("tracing-endpoint", "", "OTLP collector endpoint; enables server and Redis spans")
	flags.String("tracing-protocol", "grpc", "OTLP protocol: grpc or http")
	flags.Bool("tracing-insecure", false, "Disable TLS to the OTLP collector")
	_ = v.BindPFlags(flags)

	return cmd
}

// newStore picks the in-memory store unless a Redis address is given. A
// non-nil tp instruments the Redis client.
func newStore(ctx context.Context, addr, key string, tp trace.TracerProvider) (receiver.Store, func(), error) {
	if addr == "" {
		return receiver.NewMemoryStore(), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	if tp != nil {
		if err := redisotel.InstrumentTracing(client, redisotel.WithTracerProvider(tp)); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("instrument redis: %w", err)
		}
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("connect to redis %s: %w", addr, err)
	}
	return receiver.NewRedisStore(client, key), func() { _ = client.Close() }, nil
}

func newProbeCommand(v *viper.Viper, stdout, stderr io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Send a test sequence with a duplicate and a gap, then print the receiver's errors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := logging.New(v.GetString("log-level"), v.GetString("log-format"), stderr)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			return runProbe(cmd.Context(), v.GetString("url"), v.GetBool("watch"), stdout, logger)
		},
	}

	flags := cmd.Flags()
	flags.String("url", defaultBaseURL, "Receiver base URL")
	flags.Bool("watch", false, "Also subscribe to /errorHub and print pushed errors")
	_ = v.BindPFlags(flags)

	return cmd
}

func runProbe(ctx context.Context, baseURL string, watch bool, out io.Writer, logger *zap.Logger) error {
	probe := receiver.NewProbe(baseURL, out)

	var pushed chan receiver.ErrorRecord
	if watch {
		watcher := receiver.NewWatcher(baseURL)
		if err := watcher.Connect(ctx); err != nil {
			return err
		}
		defer watcher.Close()

		pushed = make(chan receiver.ErrorRecord, 16)
		go func() {
			defer close(pushed)
			for {
				rec, err := watcher.Next(ctx)
				if err != nil {
					logger.Debug("error hub closed", zap.Error(err))
					return
				}
				pushed <- rec
			}
		}()
	}

	records, err := probe.Run(ctx)
	if err != nil {
		return err
	}
	if pushed == nil {
		return nil
	}

	fmt.Fprintln(out, "\nPushed over /errorHub:")
	timeout := time.After(2 * time.Second)
	for seen := 0; seen < len(records); seen++ {
		select {
		case rec, ok := <-pushed:
			if !ok {
				return nil
			}
			fmt.Fprintf(out, "- Counter: %d, Error: %s\n", rec.Counter, rec.ErrorMessage)
		case <-timeout:
			logger.Warn("timed out waiting for pushed errors", zap.Int("received", seen), zap.Int("expected", len(records)))
			return nil
		case <-ctx.Done():
			return nil
		}
	}
	return nil
}
