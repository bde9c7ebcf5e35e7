package httpclient

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/torosent/rampfire/internal/metrics"
	"github.com/torosent/rampfire/internal/runner"
	"github.com/torosent/rampfire/internal/tracing"
)

const maxLoggedBodyBytes = 1024

// Recorder receives exactly one outcome per completed execution.
type Recorder interface {
	RecordOutcome(o metrics.Outcome)
}

// Executor performs single GET requests and records their outcomes.
// It implements runner.Requester.
type Executor struct {
	client    *http.Client
	builder   *RequestBuilder
	recorder  Recorder
	tracer    trace.Tracer
	propagate bool
	now       func() time.Time
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithTracer wraps every request in a client span. With propagate set, the
// W3C trace context is injected into the outgoing headers.
func WithTracer(tracer trace.Tracer, propagate bool) ExecutorOption {
	return func(e *Executor) {
		e.tracer = tracer
		e.propagate = propagate
	}
}

// NewExecutor returns an Executor sending builder's request through client.
// A nil client means http.DefaultClient.
func NewExecutor(client *http.Client, builder *RequestBuilder, recorder Recorder, opts ...ExecutorOption) *Executor {
	if client == nil {
		client = http.DefaultClient
	}
	e := &Executor{
		client:   client,
		builder:  builder,
		recorder: recorder,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Do executes one request. Once ctx is cancelled Do returns ctx.Err() and
// records nothing; every other path records exactly one outcome.
func (e *Executor) Do(ctx context.Context) error {
	_, err := e.Execute(ctx)
	return err
}

// Execute is Do that also returns the recorded outcome.
func (e *Executor) Execute(ctx context.Context) (metrics.Outcome, error) {
	start := e.now()

	var span trace.Span
	if e.tracer != nil {
		ctx, span = tracing.StartRequestSpan(ctx, e.tracer, http.MethodGet, e.builder.Target())
	}

	req, err := e.builder.Build(ctx)
	if err != nil {
		return e.finish(ctx, span, metrics.Outcome{Elapsed: e.now().Sub(start)}, 0, err)
	}
	if e.propagate {
		tracing.InjectHTTPHeaders(ctx, req.Header)
	}

	sent := int64(len(req.URL.String()))

	resp, err := e.client.Do(req)
	if err != nil {
		return e.finish(ctx, span, metrics.Outcome{BytesSent: sent, Elapsed: e.now().Sub(start)}, 0, err)
	}
	defer resp.Body.Close()

	ok := resp.StatusCode >= 200 && resp.StatusCode < 300

	var snippet cappedBuffer
	var sink io.Writer = io.Discard
	if !ok {
		snippet.limit = maxLoggedBodyBytes
		sink = &snippet
	}
	received, readErr := io.Copy(sink, resp.Body)
	outcome := metrics.Outcome{
		BytesSent: sent,
		Elapsed:   e.now().Sub(start),
	}
	if readErr != nil {
		return e.finish(ctx, span, outcome, resp.StatusCode, readErr)
	}

	outcome.BytesReceived = received
	outcome.Success = ok

	var resultErr error
	if !ok {
		resultErr = &runner.HTTPError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(snippet.String()),
		}
	}
	return e.finish(ctx, span, outcome, resp.StatusCode, resultErr)
}

func (e *Executor) finish(ctx context.Context, span trace.Span, outcome metrics.Outcome, status int, err error) (metrics.Outcome, error) {
	if ctx.Err() != nil {
		// Abandoned by run cancellation, even if the exchange raced to completion.
		if span != nil {
			tracing.EndSpan(span, ctx.Err())
		}
		return metrics.Outcome{}, ctx.Err()
	}
	if err != nil {
		outcome.Success = false
	}
	if e.recorder != nil {
		e.recorder.RecordOutcome(outcome)
	}
	if span != nil {
		tracing.EndSpan(span, err, tracing.ResponseAttributes(status, outcome.BytesSent, outcome.BytesReceived)...)
	}
	return outcome, err
}

// cappedBuffer keeps the first limit bytes and reports every write as complete.
type cappedBuffer struct {
	limit int
	buf   []byte
}

func (c *cappedBuffer) Write(p []byte) (int, error) {
	if room := c.limit - len(c.buf); room > 0 {
		if len(p) < room {
			room = len(p)
		}
		c.buf = append(c.buf, p[:room]...)
	}
	return len(p), nil
}

func (c *cappedBuffer) String() string {
	return string(c.buf)
}
