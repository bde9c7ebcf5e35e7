package control

import (
	"sync"
	"sync/atomic"

	"github.com/torosent/rampfire/internal/metrics"
)

// Controller owns the concurrency state for one run. Observe is called by a
// single reporter goroutine; Target and ScaleDownActive may be read from any
// goroutine.
type Controller struct {
	cfg Config

	mu    sync.Mutex
	state State

	target          atomic.Int64
	scaleDownActive atomic.Bool
}

// New returns a controller whose target starts at initial. The floor defaults
// to initial when cfg.Floor is unset.
func New(initial int, cfg Config) *Controller {
	if initial < 1 {
		initial = 1
	}
	if cfg.Floor < 1 {
		cfg.Floor = initial
	}
	cfg = cfg.normalized()
	c := &Controller{
		cfg:   cfg,
		state: State{Target: initial},
	}
	c.target.Store(int64(initial))
	return c
}

// Observe feeds one window into the policy and publishes the new target.
func (c *Controller) Observe(snap metrics.WindowSnapshot, cumulative uint64) Decision {
	c.mu.Lock()
	defer c.mu.Unlock()

	next, d := Decide(c.cfg, c.state, snap, cumulative)
	c.state = next
	c.target.Store(int64(next.Target))
	c.scaleDownActive.Store(next.ScaleDownActive)
	return d
}

// Target returns the number of requests the scheduler should keep in flight.
func (c *Controller) Target() int {
	return int(c.target.Load())
}

// ScaleDownActive reports whether scale-up is currently latched off.
func (c *Controller) ScaleDownActive() bool {
	return c.scaleDownActive.Load()
}

// Config returns the normalized policy parameters.
func (c *Controller) Config() Config {
	return c.cfg
}
