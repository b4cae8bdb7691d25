package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRecorder struct {
	mu           sync.Mutex
	hits, misses int
}

func (r *countingRecorder) IncrementCacheHit() {
	r.mu.Lock()
	r.hits++
	r.mu.Unlock()
}

func (r *countingRecorder) IncrementCacheMiss() {
	r.mu.Lock()
	r.misses++
	r.mu.Unlock()
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestCache_GetSetExpire(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	rec := &countingRecorder{}
	c := NewCache[[]int](time.Minute, WithClock[[]int](clock.now), WithRecorder[[]int](rec))

	_, ok := c.Get("a")
	assert.False(t, ok)

	c.Set("a", []int{1, 2})
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, []int{1, 2}, v)

	clock.advance(2 * time.Minute)
	_, ok = c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Size())

	assert.Equal(t, 1, rec.hits)
	assert.Equal(t, 2, rec.misses)
}

func TestCache_DeletePrefixAndPurge(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	c := NewCache[string](time.Minute, WithClock[string](clock.now))

	c.Set("history:F1:10", "x")
	c.Set("history:F1:5", "y")
	c.Set("history:F2:10", "z")

	assert.Equal(t, 2, c.DeletePrefix("history:F1:"))
	assert.Equal(t, 1, c.Size())

	c.Set("other", "w")
	clock.advance(time.Hour)
	stats := c.Stats()
	assert.Equal(t, 2, stats["expired_items"])
	assert.Equal(t, 2, c.Purge())
	assert.Equal(t, 0, c.Size())

	c.Set("k", "v")
	c.Clear()
	assert.Equal(t, 0, c.Size())
}

func TestCache_CleanupStopsOnClose(t *testing.T) {
	c := NewCache[int](time.Millisecond, WithCleanupInterval[int](5*time.Millisecond))
	c.Set("k", 1)

	assert.Eventually(t, func() bool { return c.Size() == 0 }, time.Second, 5*time.Millisecond)
	c.Close()
	c.Close()
}

func TestCache_ConcurrentAccess(t *testing.T) {
	c := NewCache[int](time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := string(rune('a' + i%5))
			c.Set(key, i)
			c.Get(key)
			c.DeletePrefix("z")
		}(i)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Size(), 5)
}
