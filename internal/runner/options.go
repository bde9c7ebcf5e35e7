package runner

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// DefaultPollInterval bounds how stale the in-flight count may get between
// completion wake-ups.
const DefaultPollInterval = 10 * time.Millisecond

// Requester abstracts executing a single request operation.
// Implementations should return an error for failed requests and ctx.Err()
// for requests abandoned because ctx was cancelled.
type Requester interface {
	Do(ctx context.Context) error
}

// TargetSource publishes the desired number of in-flight requests.
type TargetSource interface {
	Target() int
}

// FixedTarget is a TargetSource that never changes.
type FixedTarget int

func (f FixedTarget) Target() int { return int(f) }

// Options configure the Runner.
type Options struct {
	Target         TargetSource                // desired in-flight count, read every iteration (required)
	Requester      Requester                   // request executor (required)
	TotalRequests  int                         // stop spawning after this many requests (0 means unlimited)
	Duration       time.Duration               // overall time limit (0 means until ctx is cancelled)
	RatePerSecond  int                         // spawn pacing (0 means unlimited)
	GracePeriod    time.Duration               // max wait for in-flight requests while draining
	PollInterval   time.Duration               // fallback wake-up cadence of the scheduling loop
	LimiterFactory func(rps int) *rate.Limiter // optional injection for tests
	OnStateChange  func(from, to State)        // optional observer of lifecycle transitions
}

func (o *Options) normalize() {
	if o.Target == nil {
		o.Target = FixedTarget(1)
	}
	if o.TotalRequests < 0 {
		o.TotalRequests = 0
	}
	if o.RatePerSecond < 0 {
		o.RatePerSecond = 0
	}
	if o.GracePeriod < 0 {
		o.GracePeriod = 0
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.LimiterFactory == nil {
		o.LimiterFactory = func(rps int) *rate.Limiter {
			if rps <= 0 {
				return nil
			}
			// Burst of one keeps spawning evenly spaced across the second.
			return rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}
