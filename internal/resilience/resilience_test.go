package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestCircuitBreakerTransitions(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 2, RecoveryTimeout: time.Minute, SuccessThreshold: 2})
	cb.now = clock.Now

	failing := func() error { return errors.New("predict failed") }
	ok := func() error { return nil }

	assert.Error(t, cb.Call(failing))
	assert.Equal(t, StateClosed, cb.State())
	assert.Error(t, cb.Call(failing))
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Call(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)

	clock.Advance(time.Minute + time.Second)
	require.NoError(t, cb.Call(ok))
	assert.Equal(t, StateHalfOpen, cb.State())
	require.NoError(t, cb.Call(ok))
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, RecoveryTimeout: time.Second})
	cb.now = clock.Now

	_ = cb.Call(func() error { return errors.New("x") })
	clock.Advance(2 * time.Second)
	_ = cb.Call(func() error { return errors.New("still broken") })

	assert.Equal(t, StateOpen, cb.State())
	assert.ErrorIs(t, cb.Call(func() error { return nil }), ErrCircuitOpen)
}

func TestCircuitBreakerRegistry(t *testing.T) {
	r := NewCircuitBreakerRegistry()
	a := r.GetOrCreate("ml-model", CircuitBreakerConfig{})
	b := r.GetOrCreate("ml-model", CircuitBreakerConfig{FailureThreshold: 99})
	assert.Same(t, a, b)

	stats := r.GetStats()
	require.Contains(t, stats, "ml-model")
	assert.Equal(t, "closed", stats["ml-model"].(map[string]interface{})["state"])
}

func TestDegradationLevels(t *testing.T) {
	dm := NewDegradationManager(DefaultDegradationConfig())
	dm.RegisterService("ml-model", nil)

	for i := 0; i < 4; i++ {
		dm.RecordRequest("ml-model", false)
	}
	health, ok := dm.GetServiceHealth("ml-model")
	require.True(t, ok)
	assert.Equal(t, LevelNormal, health.Level, "below MinRequests the level stays normal")

	dm.RecordError("ml-model", errors.New("artifact missing"))
	health, _ = dm.GetServiceHealth("ml-model")
	assert.Equal(t, LevelEmergency, health.Level)
	assert.Equal(t, "artifact missing", health.LastError)
	assert.False(t, dm.IsServiceAvailable("ml-model"))
	assert.False(t, dm.IsServiceAvailable("unknown"))

	dm.ResetService("ml-model")
	assert.True(t, dm.IsServiceAvailable("ml-model"))
}

func TestDegradationWindowRecovery(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	dm := NewDegradationManager(DefaultDegradationConfig())
	dm.now = clock.Now
	dm.RegisterService("database", nil)

	for i := 0; i < 10; i++ {
		dm.RecordRequest("database", i%2 == 0)
	}
	health, _ := dm.GetServiceHealth("database")
	assert.Equal(t, LevelEmergency, health.Level)

	clock.Advance(6 * time.Minute)
	dm.RecordRequest("database", true)
	health, _ = dm.GetServiceHealth("database")
	assert.Equal(t, int64(1), health.TotalRequests)
	assert.Equal(t, LevelNormal, health.Level)
}

func TestRunHealthChecks(t *testing.T) {
	dm := NewDegradationManager(DefaultDegradationConfig())
	dm.RegisterService("database", func(ctx context.Context) error { return nil })
	dm.RegisterService("redis", func(ctx context.Context) error { return errors.New("connection refused") })

	dm.RunHealthChecks(context.Background())

	all := dm.GetAllServiceHealth()
	assert.Equal(t, int64(0), all["database"].ErrorCount)
	assert.Equal(t, int64(1), all["redis"].ErrorCount)
	assert.Contains(t, all["redis"].LastError, "connection refused")
}
