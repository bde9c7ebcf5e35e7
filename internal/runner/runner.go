package runner

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// State is the scheduler lifecycle position.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Result captures execution summary.
type Result struct {
	Total     int64         // requests dispatched
	Errors    int64         // requests that returned a non-cancellation error
	Abandoned int64         // requests still in flight when the grace period ran out
	Duration  time.Duration // time spent running and draining
}

// Runner keeps Target().Target() requests in flight until the run ends.
type Runner struct {
	opt      Options
	state    atomic.Int32
	inFlight atomic.Int64
}

func New(opt Options) *Runner {
	opt.normalize()
	return &Runner{opt: opt}
}

// State reports the current lifecycle state; safe for concurrent use.
func (r *Runner) State() State {
	return State(r.state.Load())
}

// InFlight reports the number of dispatched requests that have not returned.
func (r *Runner) InFlight() int64 {
	return r.inFlight.Load()
}

func (r *Runner) transition(to State) {
	from := State(r.state.Swap(int32(to)))
	if from != to && r.opt.OnStateChange != nil {
		r.opt.OnStateChange(from, to)
	}
}

// Run dispatches requests until Duration elapses, ctx is cancelled or the
// total cap is reached, then drains. Run may be called once.
func (r *Runner) Run(ctx context.Context) Result {
	start := time.Now()
	var total, errs atomic.Int64

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if r.opt.Duration > 0 {
		deadlineCtx, deadlineCancel := context.WithTimeout(runCtx, r.opt.Duration)
		defer deadlineCancel()
		runCtx = deadlineCtx
	}

	limiter := r.opt.LimiterFactory(r.opt.RatePerSecond)
	completed := make(chan struct{}, 1)
	var wg sync.WaitGroup

	dispatch := func() {
		total.Add(1)
		r.inFlight.Add(1)
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				r.inFlight.Add(-1)
				select {
				case completed <- struct{}{}:
				default:
				}
			}()
			if r.opt.Requester == nil {
				return
			}
			if err := r.opt.Requester.Do(runCtx); err != nil && !isCancellation(runCtx, err) {
				errs.Add(1)
			}
		}()
	}

	capped := func() bool {
		return r.opt.TotalRequests > 0 && total.Load() >= int64(r.opt.TotalRequests)
	}

	r.transition(StateRunning)

	ticker := time.NewTicker(r.opt.PollInterval)
	defer ticker.Stop()

loop:
	for runCtx.Err() == nil {
		if capped() {
			// Let the last dispatched requests finish before draining.
			if r.inFlight.Load() == 0 {
				break
			}
		} else {
			target := int64(max(1, r.opt.Target.Target()))
			for n := target - r.inFlight.Load(); n > 0 && !capped(); n-- {
				if limiter != nil {
					if err := limiter.Wait(runCtx); err != nil {
						break loop
					}
				}
				dispatch()
			}
		}

		select {
		case <-runCtx.Done():
		case <-completed:
		case <-ticker.C:
		}
	}

	r.transition(StateDraining)
	cancel()

	var abandoned int64
	if !waitTimeout(&wg, r.opt.GracePeriod) {
		abandoned = r.inFlight.Load()
	}

	r.transition(StateStopped)

	return Result{
		Total:     total.Load(),
		Errors:    errs.Load(),
		Abandoned: abandoned,
		Duration:  time.Since(start),
	}
}

func isCancellation(ctx context.Context, err error) bool {
	if ctx.Err() == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ctx.Err())
}

// waitTimeout reports whether wg finished within d.
func waitTimeout(wg *sync.WaitGroup, d time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	if d <= 0 {
		select {
		case <-done:
			return true
		default:
			return false
		}
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}
