// Package control implements the adaptive concurrency policy of rampfire.
//
// Once per sampling window the reporter hands the latest
// [metrics.WindowSnapshot] to a [Controller]. The controller applies a coarse
// additive-increase / multiplicative-decrease rule:
//
//   - a window with failures halves the target, once per failure episode,
//     never going below the floor (the starting concurrency), and latches
//     scale-up off;
//   - a window with traffic and no failures adds Step to the target while
//     scale-up is not latched;
//   - an empty window changes nothing;
//   - the latch is cleared by the configured re-arm policy, independently of
//     whether the window succeeded.
//
// [Decide] is the pure policy; [Controller] owns the evolving [State] and
// publishes the target through an atomic so the scheduler can read it
// without locks.
package control
