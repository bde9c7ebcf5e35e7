package control

import "github.com/torosent/rampfire/internal/metrics"

// Action names the effect of one controller tick.
type Action string

const (
	ActionHold      Action = "hold"
	ActionScaleUp   Action = "scale_up"
	ActionScaleDown Action = "scale_down"
)

// Config holds the policy parameters.
type Config struct {
	Floor int // lowest target a scale-down may reach; the starting concurrency
	Step  int // additive increment on a clean window
	Max   int // highest target a scale-up may reach (0 means unbounded)

	// RearmWindows clears the scale-down latch once this many ticks have
	// passed since the tick that set it. Ignored when RearmRequests > 0.
	RearmWindows int
	// RearmRequests clears the latch whenever the cumulative request count
	// crosses a multiple of this value.
	RearmRequests uint64
}

func (c Config) normalized() Config {
	if c.Floor < 1 {
		c.Floor = 1
	}
	if c.Step < 1 {
		c.Step = 1
	}
	if c.Max > 0 && c.Max < c.Floor {
		c.Max = c.Floor
	}
	if c.RearmWindows < 1 {
		c.RearmWindows = 1
	}
	return c
}

// State is the controller's evolving view of the run.
type State struct {
	Target          int
	ScaleDownActive bool

	windowsSinceLatch int
	lastRearmBucket   uint64
}

// Decision reports what one tick did.
type Decision struct {
	Action  Action
	From    int
	To      int
	Rearmed bool
}

// Decide applies one tick of the policy. cumulative is the run-wide request
// count at the time of the snapshot.
func Decide(cfg Config, st State, snap metrics.WindowSnapshot, cumulative uint64) (State, Decision) {
	cfg = cfg.normalized()
	d := Decision{Action: ActionHold, From: st.Target}
	latchedThisTick := false

	switch {
	case snap.Failures > 0 && !st.ScaleDownActive:
		st.ScaleDownActive = true
		st.windowsSinceLatch = 0
		st.Target = max(cfg.Floor, st.Target/2)
		d.Action = ActionScaleDown
		latchedThisTick = true
	case snap.Failures == 0 && snap.Requests > 0 && !st.ScaleDownActive:
		next := st.Target + cfg.Step
		if cfg.Max > 0 && next > cfg.Max {
			next = cfg.Max
		}
		if next != st.Target {
			st.Target = next
			d.Action = ActionScaleUp
		}
	}

	if st.ScaleDownActive && !latchedThisTick {
		st.windowsSinceLatch++
	}
	if st.ScaleDownActive && !latchedThisTick && shouldRearm(cfg, &st, cumulative) {
		st.ScaleDownActive = false
		st.windowsSinceLatch = 0
		d.Rearmed = true
	}
	if cfg.RearmRequests > 0 {
		st.lastRearmBucket = cumulative / cfg.RearmRequests
	}

	if st.Target < 1 {
		st.Target = 1
	}
	d.To = st.Target
	return st, d
}

func shouldRearm(cfg Config, st *State, cumulative uint64) bool {
	if cfg.RearmRequests > 0 {
		return cumulative/cfg.RearmRequests > st.lastRearmBucket
	}
	return st.windowsSinceLatch >= cfg.RearmWindows
}
