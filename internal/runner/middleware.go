package runner

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// HTTPError represents an HTTP request failure with status details.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// FailureLogger logs failed requests.
type FailureLogger interface {
	LogFailure(err error)
}

// loggingRequester wraps a Requester with failure logging.
type loggingRequester struct {
	inner  Requester
	logger FailureLogger
}

// WithLogging wraps a Requester to log failures. Requests abandoned by
// cancellation are not logged.
func WithLogging(req Requester, logger FailureLogger) Requester {
	if logger == nil {
		return req
	}
	return &loggingRequester{
		inner:  req,
		logger: logger,
	}
}

func (l *loggingRequester) Do(ctx context.Context) error {
	err := l.inner.Do(ctx)
	if err != nil && ctx.Err() == nil {
		l.logger.LogFailure(err)
	}
	return err
}

// ZapFailureLogger logs each failure as a structured warning.
type ZapFailureLogger struct {
	Logger *zap.Logger
}

func (z ZapFailureLogger) LogFailure(err error) {
	if z.Logger == nil {
		return
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		z.Logger.Warn("request failed",
			zap.Int("status", httpErr.StatusCode),
			zap.String("body", httpErr.Body),
		)
		return
	}
	z.Logger.Warn("request failed", zap.Error(err))
}
