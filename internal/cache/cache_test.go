package cache

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestCache(size int, ttl time.Duration) (*LRUCache[string], *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	c := NewLRUCache[string](size, ttl)
	c.Now = clock.Now
	return c, clock
}

func TestLRUCache_Expiry(t *testing.T) {
	c, clock := newTestCache(10, time.Minute)
	c.Set("/expenses", "a")

	clock.Advance(59 * time.Second)
	v, ok := c.Get("/expenses")
	assert.True(t, ok)
	assert.Equal(t, "a", v)

	clock.Advance(time.Second)
	_, ok = c.Get("/expenses")
	assert.False(t, ok, "entry must expire exactly at its TTL")
	assert.Equal(t, 0, c.Size())
}

func TestLRUCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c, _ := newTestCache(2, time.Minute)
	c.Set("a", "1")
	c.Set("b", "2")
	c.Get("a")
	c.Set("c", "3")

	_, ok := c.Get("b")
	assert.False(t, ok)
	_, ok = c.Get("a")
	assert.True(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)
}

func TestLRUCache_ZeroTTLDisablesCaching(t *testing.T) {
	c, _ := newTestCache(2, 0)
	c.Set("a", "1")
	assert.Equal(t, 0, c.Size())
}

func TestLRUCache_CleanExpiredAndStats(t *testing.T) {
	c, clock := newTestCache(10, time.Minute)
	c.Set("a", "1")
	clock.Advance(30 * time.Second)
	c.Set("b", "2")
	clock.Advance(45 * time.Second)

	assert.Equal(t, 1, c.CleanExpired())
	c.Get("b")
	c.Get("a")
	assert.Equal(t, Stats{Size: 1, Hits: 1, Misses: 1}, c.Stats())

	c.Clear()
	assert.Equal(t, 0, c.Size())
}

func TestManager(t *testing.T) {
	m := NewManager(nil)
	var calls atomic.Int32
	m.Register(CleanerFunc(func() int {
		calls.Add(1)
		return 2
	}))
	assert.Equal(t, 2, m.SweepOnce())

	m.StartCleanup(5 * time.Millisecond)
	assert.Eventually(t, func() bool { return calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
	m.Stop()
	m.Stop()
}

func TestManager_StopWithoutStart(t *testing.T) {
	m := NewManager(nil)
	done := make(chan struct{})
	go func() {
		m.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked without a running cleanup")
	}
}
