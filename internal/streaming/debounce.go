package streaming

import (
	"sync"
	"time"
)

// Debouncer rate-limits automated replies per call session. A transcript that
// arrives inside the interval is simply not responded to; it is never queued
// for later.
type Debouncer struct {
	minInterval time.Duration

	mu   sync.Mutex
	last map[string]time.Time
}

func NewDebouncer(minInterval time.Duration) *Debouncer {
	return &Debouncer{
		minInterval: minInterval,
		last:        map[string]time.Time{},
	}
}

// ShouldRespond reports whether a reply may be generated for the session at
// the given instant, and records the instant when it may. The first call for
// a session always passes.
func (d *Debouncer) ShouldRespond(sessionID string, now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	last, ok := d.last[sessionID]
	if ok && now.Sub(last) < d.minInterval {
		return false
	}
	d.last[sessionID] = now
	return true
}

// Forget drops the recorded state for a finished session.
func (d *Debouncer) Forget(sessionID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.last, sessionID)
}
