package receiver

import "sync"

// ErrorLog accumulates flagged counters in arrival order.
type ErrorLog struct {
	mu      sync.RWMutex
	records []ErrorRecord
}

func (l *ErrorLog) Append(rec ErrorRecord) {
	l.mu.Lock()
	l.records = append(l.records, rec)
	l.mu.Unlock()
}

// List returns a copy of the records; never nil.
func (l *ErrorLog) List() []ErrorRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]ErrorRecord, len(l.records))
	copy(out, l.records)
	return out
}

func (l *ErrorLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}
