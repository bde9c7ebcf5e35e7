// Package receiver implements the validation receiver: an HTTP endpoint that
// accepts {counter, runID} posts, flags duplicate and skipped counters, and
// exposes the flagged ones over GET /api/errors and a websocket hub. It is a
// test target for clients that must send a gap-free increasing sequence.
//
// The seen-counter set lives in a Store: MemoryStore for a single process or
// RedisStore to share one sequence across receivers.
package receiver
