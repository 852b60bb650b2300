package presence

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type manualClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *manualClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *manualClock) set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestHeartbeatWindow(t *testing.T) {
	clock := &manualClock{t: epoch}
	tracker := NewTracker(WithClock(clock.now))

	tracker.Heartbeat("u1")

	clock.set(epoch.Add(10 * time.Second))
	assert.True(t, tracker.IsOnline("u1"))

	clock.set(epoch.Add(30 * time.Second))
	assert.False(t, tracker.IsOnline("u1"))

	seen, ok := tracker.LastSeen("u1")
	require.True(t, ok)
	assert.Equal(t, epoch, seen)
}

func TestWindowBoundaryIsInclusive(t *testing.T) {
	clock := &manualClock{t: epoch}
	tracker := NewTracker(WithClock(clock.now))
	tracker.Heartbeat("u1")

	clock.set(epoch.Add(DefaultOnlineWindow))
	assert.True(t, tracker.IsOnline("u1"))

	clock.set(epoch.Add(DefaultOnlineWindow + time.Nanosecond))
	assert.False(t, tracker.IsOnline("u1"))
}

func TestHeartbeatRefreshesWindow(t *testing.T) {
	clock := &manualClock{t: epoch}
	tracker := NewTracker(WithClock(clock.now))
	tracker.Heartbeat("u1")

	clock.set(epoch.Add(20 * time.Second))
	tracker.Heartbeat("u1")

	clock.set(epoch.Add(40 * time.Second))
	assert.True(t, tracker.IsOnline("u1"))
}

func TestNeverSeenUser(t *testing.T) {
	tracker := NewTracker()

	assert.False(t, tracker.IsOnline("ghost"))
	_, ok := tracker.LastSeen("ghost")
	assert.False(t, ok)

	tracker.Heartbeat("")
	assert.Equal(t, 0, tracker.Len())
}

func TestCustomWindow(t *testing.T) {
	clock := &manualClock{t: epoch}
	tracker := NewTracker(WithClock(clock.now), WithWindow(5*time.Second))
	assert.Equal(t, 5*time.Second, tracker.Window())

	tracker.Heartbeat("u1")
	clock.set(epoch.Add(6 * time.Second))
	assert.False(t, tracker.IsOnline("u1"))

	assert.Equal(t, DefaultOnlineWindow, NewTracker(WithWindow(0)).Window())
}

func TestCompact(t *testing.T) {
	clock := &manualClock{t: epoch}
	tracker := NewTracker(WithClock(clock.now))
	tracker.Heartbeat("old")

	clock.set(epoch.Add(time.Hour))
	tracker.Heartbeat("fresh")

	removed := tracker.Compact(10 * time.Minute)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, tracker.Len())

	_, ok := tracker.LastSeen("old")
	assert.False(t, ok)
	assert.True(t, tracker.IsOnline("fresh"))
}

func TestCompactNeverDropsOnlineUsers(t *testing.T) {
	clock := &manualClock{t: epoch}
	tracker := NewTracker(WithClock(clock.now))
	tracker.Heartbeat("u1")

	clock.set(epoch.Add(20 * time.Second))
	assert.Equal(t, 0, tracker.Compact(time.Second))
	assert.True(t, tracker.IsOnline("u1"))
}

func TestConcurrentHeartbeats(t *testing.T) {
	tracker := NewTracker()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("user-%d", i%8)
			for j := 0; j < 100; j++ {
				tracker.Heartbeat(id)
				tracker.IsOnline(id)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 8, tracker.Len())
	for i := 0; i < 8; i++ {
		assert.True(t, tracker.IsOnline(fmt.Sprintf("user-%d", i)))
	}
}
