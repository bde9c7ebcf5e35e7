package httpclient_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/torosent/rampfire/internal/httpclient"
	"github.com/torosent/rampfire/internal/metrics"
	"github.com/torosent/rampfire/internal/runner"
)

type recordingSink struct {
	mu       sync.Mutex
	outcomes []metrics.Outcome
}

func (r *recordingSink) RecordOutcome(o metrics.Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, o)
}

func (r *recordingSink) all() []metrics.Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]metrics.Outcome(nil), r.outcomes...)
}

func newExecutor(t *testing.T, target string, sink httpclient.Recorder, opts ...httpclient.ExecutorOption) *httpclient.Executor {
	t.Helper()
	builder, err := httpclient.NewRequestBuilder(target, nil)
	if err != nil {
		t.Fatalf("NewRequestBuilder() error = %v", err)
	}
	return httpclient.NewExecutor(httpclient.NewClient(2*time.Second), builder, sink, opts...)
}

func TestExecutorByteAccountingRoundTrip(t *testing.T) {
	sizes := []int{0, 1, 4096, 1 << 20}
	for _, size := range sizes {
		body := strings.Repeat("x", size)
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(body))
		}))

		sink := &recordingSink{}
		exec := newExecutor(t, server.URL+"/data", sink)
		outcome, err := exec.Execute(context.Background())
		server.Close()

		if err != nil {
			t.Fatalf("size %d: Execute() error = %v", size, err)
		}
		if outcome.BytesReceived != int64(size) {
			t.Errorf("size %d: BytesReceived = %d", size, outcome.BytesReceived)
		}
		if outcome.BytesSent != int64(len(server.URL+"/data")) {
			t.Errorf("size %d: BytesSent = %d, want URL length", size, outcome.BytesSent)
		}
		if !outcome.Success {
			t.Errorf("size %d: expected success", size)
		}
		if got := sink.all(); len(got) != 1 || got[0] != outcome {
			t.Errorf("size %d: recorded %v, want exactly the returned outcome", size, got)
		}
	}
}

func TestExecutorNon2xxIsFailure(t *testing.T) {
	tests := []struct {
		name   string
		status int
	}{
		{"redirect not followed", http.StatusNotModified},
		{"client error", http.StatusNotFound},
		{"server error", http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				if tt.status != http.StatusNotModified {
					_, _ = w.Write([]byte("  overloaded  "))
				}
			}))
			defer server.Close()

			sink := &recordingSink{}
			outcome, err := newExecutor(t, server.URL, sink).Execute(context.Background())

			var httpErr *runner.HTTPError
			if !errors.As(err, &httpErr) {
				t.Fatalf("expected *runner.HTTPError, got %v", err)
			}
			if httpErr.StatusCode != tt.status {
				t.Errorf("StatusCode = %d, want %d", httpErr.StatusCode, tt.status)
			}
			if outcome.Success {
				t.Error("non-2xx must not be a success")
			}
			if len(sink.all()) != 1 {
				t.Errorf("recorded %d outcomes, want 1", len(sink.all()))
			}
			if tt.status == http.StatusServiceUnavailable {
				if httpErr.Body != "overloaded" {
					t.Errorf("Body = %q, want trimmed snippet", httpErr.Body)
				}
				if outcome.BytesReceived != int64(len("  overloaded  ")) {
					t.Errorf("BytesReceived = %d", outcome.BytesReceived)
				}
			}
		})
	}
}

func TestExecutorErrorSnippetIsCapped(t *testing.T) {
	body := strings.Repeat("e", 5000)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(body))
	}))
	defer server.Close()

	outcome, err := newExecutor(t, server.URL, &recordingSink{}).Execute(context.Background())
	var httpErr *runner.HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected HTTPError, got %v", err)
	}
	if len(httpErr.Body) != 1024 {
		t.Errorf("snippet length = %d, want 1024", len(httpErr.Body))
	}
	if outcome.BytesReceived != 5000 {
		t.Errorf("BytesReceived = %d, want full body 5000", outcome.BytesReceived)
	}
}

func TestExecutorTransportErrorIsFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	target := server.URL
	server.Close()

	sink := &recordingSink{}
	outcome, err := newExecutor(t, target, sink).Execute(context.Background())
	if err == nil {
		t.Fatal("expected transport error")
	}
	recorded := sink.all()
	if len(recorded) != 1 {
		t.Fatalf("recorded %d outcomes, want 1", len(recorded))
	}
	if recorded[0].Success || recorded[0].BytesReceived != 0 {
		t.Errorf("transport failure recorded as %+v", recorded[0])
	}
	if outcome.BytesSent != int64(len(target)) {
		t.Errorf("BytesSent = %d, want %d", outcome.BytesSent, len(target))
	}
}

func TestExecutorCancellationNotRecorded(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	sink := &recordingSink{}
	exec := newExecutor(t, server.URL, sink)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- exec.Do(ctx) }()

	<-started
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Do() error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("executor did not abandon the request")
	}
	if got := sink.all(); len(got) != 0 {
		t.Fatalf("cancelled request recorded %d outcomes", len(got))
	}
}

func TestExecutorAlreadyCancelledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sink := &recordingSink{}
	if err := newExecutor(t, server.URL, sink).Do(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Do() error = %v, want context.Canceled", err)
	}
	if len(sink.all()) != 0 {
		t.Fatal("cancelled request must not be recorded")
	}
}

func TestExecutorPerRequestTimeoutIsFailure(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	builder, _ := httpclient.NewRequestBuilder(server.URL, nil)
	sink := &recordingSink{}
	exec := httpclient.NewExecutor(httpclient.NewClient(50*time.Millisecond), builder, sink)

	if err := exec.Do(context.Background()); err == nil {
		t.Fatal("expected timeout error")
	}
	recorded := sink.all()
	if len(recorded) != 1 || recorded[0].Success {
		t.Fatalf("timeout should record one failure, got %+v", recorded)
	}
}

func TestExecutorRecordsIntoAggregator(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("fail") != "" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	agg := metrics.NewAggregator()
	agg.Start()
	good := newExecutor(t, server.URL, agg)
	bad := newExecutor(t, server.URL+"?fail=1", agg)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() { defer wg.Done(); _ = good.Do(context.Background()) }()
		go func() { defer wg.Done(); _ = bad.Do(context.Background()) }()
	}
	wg.Wait()

	stats := agg.Cumulative()
	if stats.TotalRequests != 40 || stats.SuccessfulRequests != 20 || stats.FailedRequests != 20 {
		t.Fatalf("cumulative = %+v", stats)
	}
	if stats.BytesReceived != 40 {
		t.Errorf("BytesReceived = %d, want 40", stats.BytesReceived)
	}
}

func TestExecutorTracing(t *testing.T) {
	seen := make(chan string, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen <- r.Header.Get("Traceparent")
	}))
	defer server.Close()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	exec := newExecutor(t, server.URL, &recordingSink{}, httpclient.WithTracer(tp.Tracer("test"), false))
	if err := exec.Do(context.Background()); err != nil {
		t.Fatalf("Do() error = %v", err)
	}

	if len(exporter.GetSpans()) != 1 {
		t.Fatalf("got %d spans, want 1", len(exporter.GetSpans()))
	}
	if tp := <-seen; tp != "" {
		t.Errorf("trace context injected without propagation: %q", tp)
	}
}
