package receiver

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrDuplicate marks a counter that was already received.
	ErrDuplicate = errors.New("duplicate counter")
	// ErrSkipped marks a counter that leaves a gap above the highest one received.
	ErrSkipped = errors.New("skipped counter")
)

// Data is the body accepted by POST /api/data.
type Data struct {
	Counter int    `json:"counter"`
	RunID   string `json:"runID"`
}

// ErrorRecord is one flagged counter as returned by GET /api/errors.
type ErrorRecord struct {
	Counter      int       `json:"counter"`
	RunID        string    `json:"runID"`
	ErrorMessage string    `json:"errorMessage"`
	Timestamp    time.Time `json:"timestamp"`
}

// SequenceError describes a duplicate or skipped counter.
// It unwraps to ErrDuplicate or ErrSkipped.
type SequenceError struct {
	Counter int
	RunID   string
	Message string
	kind    error
}

func (e *SequenceError) Error() string {
	return e.Message
}

func (e *SequenceError) Unwrap() error {
	return e.kind
}

// Record converts the error into the form kept in the error log.
func (e *SequenceError) Record(at time.Time) ErrorRecord {
	return ErrorRecord{
		Counter:      e.Counter,
		RunID:        e.RunID,
		ErrorMessage: e.Message,
		Timestamp:    at.UTC(),
	}
}

// Validator checks incoming counters against everything seen so far.
// The seen set spans all run ids for the lifetime of the store.
type Validator struct {
	store Store
}

// NewValidator returns a Validator backed by store.
func NewValidator(store Store) *Validator {
	return &Validator{store: store}
}

// Check records d.Counter and returns a *SequenceError when it is a duplicate
// or skips ahead of the highest counter seen. A skipped counter is still
// recorded; a duplicate leaves the store unchanged. Other errors come from
// the store.
func (v *Validator) Check(ctx context.Context, d Data) error {
	obs, err := v.store.Observe(ctx, d.Counter)
	if err != nil {
		return fmt.Errorf("observe counter %d: %w", d.Counter, err)
	}

	if obs.Duplicate {
		return &SequenceError{
			Counter: d.Counter,
			RunID:   d.RunID,
			Message: fmt.Sprintf("Duplicate counter value: %d for RunID: %s", d.Counter, d.RunID),
			kind:    ErrDuplicate,
		}
	}

	if obs.Seen > 0 && d.Counter > 1 && d.Counter > obs.Max+1 {
		return &SequenceError{
			Counter: d.Counter,
			RunID:   d.RunID,
			Message: fmt.Sprintf("Skipped counter values between %d and %d for RunID: %s", obs.Max, d.Counter, d.RunID),
			kind:    ErrSkipped,
		}
	}

	return nil
}

// Reset forgets every counter seen so far.
func (v *Validator) Reset(ctx context.Context) error {
	return v.store.Reset(ctx)
}
