// Package healthcheck tracks reconciliation passes for the health endpoints.
package healthcheck

import (
	"sync"
	"time"
)

// Snapshot describes the latest pass.
type Snapshot struct {
	LastPassTime     *time.Time `json:"last_pass_time"`
	PassDurationMS   int64      `json:"pass_duration_ms"`
	ChecksRegistered int        `json:"checks_registered"`
	Level            string     `json:"level,omitempty"`
	Message          string     `json:"message,omitempty"`
}

// Tracker records pass timing and the resulting workload status.
type Tracker struct {
	mu       sync.RWMutex
	lastPass time.Time
	duration time.Duration
	checks   int
	level    string
	message  string
	ready    bool
}

// NewTracker constructs a new Tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// RecordPass updates pass timing and readiness.
func (t *Tracker) RecordPass(duration time.Duration, checks int, level, message string) {
	if t == nil {
		return
	}
	now := time.Now().UTC()
	t.mu.Lock()
	t.lastPass = now
	t.duration = duration
	t.checks = checks
	t.level = level
	t.message = message
	t.ready = true
	t.mu.Unlock()
}

// Snapshot returns the current tracker snapshot.
func (t *Tracker) Snapshot() Snapshot {
	if t == nil {
		return Snapshot{}
	}
	t.mu.RLock()
	defer t.mu.RUnlock()

	var last *time.Time
	if !t.lastPass.IsZero() {
		value := t.lastPass
		last = &value
	}
	return Snapshot{
		LastPassTime:     last,
		PassDurationMS:   int64(t.duration / time.Millisecond),
		ChecksRegistered: t.checks,
		Level:            t.level,
		Message:          t.message,
	}
}

// Ready reports whether at least one pass has completed.
func (t *Tracker) Ready() bool {
	if t == nil {
		return false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.ready
}

// Healthy reports whether the last pass completed within 2x the poll interval.
// A blocked workload is still healthy; the agent itself is working.
func (t *Tracker) Healthy(now time.Time, pollInterval time.Duration) bool {
	if t == nil || pollInterval <= 0 {
		return false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.lastPass.IsZero() {
		return false
	}
	return now.Sub(t.lastPass) <= 2*pollInterval
}
