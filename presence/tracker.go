package presence

import (
	"sync"
	"time"
)

// DefaultOnlineWindow is how long a single heartbeat keeps a user online
const DefaultOnlineWindow = 25 * time.Second

// Tracker remembers the last heartbeat of every user. Nothing is persisted;
// a restart makes everybody offline until their next heartbeat.
type Tracker struct {
	mu       sync.RWMutex
	lastSeen map[string]time.Time
	window   time.Duration
	now      func() time.Time
}

type Option func(*Tracker)

// WithClock replaces time.Now, mostly for tests
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

func WithWindow(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.window = d
		}
	}
}

func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{
		lastSeen: make(map[string]time.Time),
		window:   DefaultOnlineWindow,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Heartbeat records that userID is alive right now
func (t *Tracker) Heartbeat(userID string) {
	if userID == "" {
		return
	}
	now := t.now()
	t.mu.Lock()
	t.lastSeen[userID] = now
	t.mu.Unlock()
}

// IsOnline reports whether userID sent a heartbeat within the online window.
// The boundary is inclusive.
func (t *Tracker) IsOnline(userID string) bool {
	seen, ok := t.LastSeen(userID)
	if !ok {
		return false
	}
	return t.now().Sub(seen) <= t.window
}

// LastSeen returns the last heartbeat time, and false if there never was one
func (t *Tracker) LastSeen(userID string) (time.Time, bool) {
	t.mu.RLock()
	seen, ok := t.lastSeen[userID]
	t.mu.RUnlock()
	return seen, ok
}

// Compact forgets users whose last heartbeat is older than olderThan.
// Forgotten users report offline and no last-seen time.
func (t *Tracker) Compact(olderThan time.Duration) int {
	if olderThan < t.window {
		olderThan = t.window
	}
	cutoff := t.now().Add(-olderThan)

	t.mu.Lock()
	defer t.mu.Unlock()
	removed := 0
	for id, seen := range t.lastSeen {
		if seen.Before(cutoff) {
			delete(t.lastSeen, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of users with a recorded heartbeat
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.lastSeen)
}

func (t *Tracker) Window() time.Duration {
	return t.window
}
