// Package runner is the scheduling loop of a load run.
//
// A [Runner] keeps as many requests in flight as its [TargetSource] asks for.
// The target is re-read on every iteration; iterations are triggered by a
// request completing, by a short poll tick, or by cancellation. Spawning can
// be paced with a token bucket and capped at a total count.
//
//	r := runner.New(runner.Options{
//		Target:      controller,
//		Requester:   executor,
//		Duration:    time.Minute,
//		GracePeriod: 5 * time.Second,
//	})
//	result := r.Run(ctx)
//
// # Lifecycle
//
// A run moves through [StateRunning], [StateDraining] and [StateStopped].
// Draining starts when the duration elapses, ctx is cancelled or the total
// cap is reached; the shared request context is cancelled and Run waits at
// most GracePeriod for outstanding requests.
//
// # Requester Interface
//
//	type Requester interface {
//		Do(ctx context.Context) error
//	}
//
// Errors caused by cancellation are not counted as failures.
//
// # Middleware
//
//   - [WithLogging]: Log request failures
//
// The [HTTPError] type carries the status and a body snippet of non-2xx responses:
//
//	var httpErr *runner.HTTPError
//	if errors.As(err, &httpErr) {
//		fmt.Printf("Status: %d, Body: %s\n", httpErr.StatusCode, httpErr.Body)
//	}
package runner
