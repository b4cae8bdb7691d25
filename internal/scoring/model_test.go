package scoring

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ZanzyTHEbar/farmer-credit-score/internal/resilience"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPredictor struct {
	out   float64
	err   error
	panic bool
}

func (s stubPredictor) Predict([]float64) (float64, error) {
	if s.panic {
		panic("corrupt weights")
	}
	return s.out, s.err
}

type stubAttributor struct {
	values []float64
	err    error
}

func (s stubAttributor) Attribute([]float64) ([]float64, error) {
	return s.values, s.err
}

func stubAttribution() []float64 {
	attr := make([]float64, FeatureCount)
	attr[NDVIMean] = 0.12
	attr[PastKCCDefaults] = -0.05
	attr[UPITxnFreq] = 0.03
	attr[LandArea] = 0.01
	return attr
}

func staticModel(p Predictor, a Attributor) ModelLoader {
	return func() (*Model, error) {
		return &Model{Predictor: p, Attributor: a, FeatureNames: FeatureNames(), Version: "test-1", Kind: "stub"}, nil
	}
}

type recorder struct {
	mu        sync.Mutex
	successes int
	errs      []error
}

func (r *recorder) RecordRequest(_ string, success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if success {
		r.successes++
	}
}

func (r *recorder) RecordError(_ string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func TestModelAdapterSuccess(t *testing.T) {
	rec := &recorder{}
	adapter := NewModelAdapter(
		NewModelHandle(staticModel(stubPredictor{out: 0.7234}, stubAttributor{values: stubAttribution()})),
		WithHealthRecorder(rec),
	)

	p := adapter.Predict(scenarioB())
	require.True(t, p.OK(), "%v", p.Err)
	assert.Equal(t, 72.3, p.Score)
	assert.Equal(t, "test-1", p.Version)
	assert.Equal(t, []Driver{
		{Key: NDVIMean, Feature: "Crop health (satellite)", Impact: 12.0, Explanation: "Strong crop health observed from satellite"},
		{Key: PastKCCDefaults, Feature: "Credit history", Impact: -5.0, Explanation: "0 default(s) in KCC history"},
		{Key: UPITxnFreq, Feature: "Digital transactions", Impact: 3.0, Explanation: "Active digital transaction history"},
	}, p.Drivers)
	assert.Equal(t, 1, rec.successes)
	assert.Empty(t, rec.errs)
}

func TestModelAdapterClampsScore(t *testing.T) {
	high := NewModelAdapter(NewModelHandle(staticModel(stubPredictor{out: 1.7}, stubAttributor{values: stubAttribution()})))
	low := NewModelAdapter(NewModelHandle(staticModel(stubPredictor{out: -0.2}, stubAttributor{values: stubAttribution()})))

	assert.Equal(t, 100.0, high.Predict(RawFeatures{}).Score)
	assert.Equal(t, 0.0, low.Predict(RawFeatures{}).Score)
}

func TestModelAdapterFailures(t *testing.T) {
	good := stubAttributor{values: stubAttribution()}

	tests := []struct {
		name   string
		loader ModelLoader
		target error
	}{
		{"nil loader", nil, ErrModelUnavailable},
		{"load error", func() (*Model, error) { return nil, errors.New("artifact missing") }, ErrModelUnavailable},
		{"loader panics", func() (*Model, error) { panic("bad artifact") }, ErrModelUnavailable},
		{"no predictor", staticModel(nil, good), ErrModelUnavailable},
		{"no attributor", staticModel(stubPredictor{out: 0.5}, nil), ErrNoAttributor},
		{"feature order mismatch", func() (*Model, error) {
			names := FeatureNames()
			names[0], names[1] = names[1], names[0]
			return &Model{Predictor: stubPredictor{out: 0.5}, Attributor: good, FeatureNames: names}, nil
		}, ErrFeatureOrder},
		{"predictor error", staticModel(stubPredictor{err: errors.New("inference failed")}, good), nil},
		{"predictor panics", staticModel(stubPredictor{panic: true}, good), nil},
		{"non-finite prediction", staticModel(stubPredictor{out: nanValue()}, good), ErrNonFinitePrediction},
		{"attributor error", staticModel(stubPredictor{out: 0.5}, stubAttributor{err: errors.New("explainer failed")}), nil},
		{"attribution length", staticModel(stubPredictor{out: 0.5}, stubAttributor{values: []float64{0.1}}), nil},
		{"non-finite attribution", staticModel(stubPredictor{out: 0.5}, stubAttributor{values: nanAttribution()}), ErrNonFinitePrediction},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{}
			p := NewModelAdapter(NewModelHandle(tt.loader), WithHealthRecorder(rec)).Predict(scenarioB())

			require.False(t, p.OK())
			if tt.target != nil {
				assert.ErrorIs(t, p.Err, tt.target)
			}
			assert.Zero(t, p.Score)
			assert.Nil(t, p.Drivers)
			assert.Len(t, rec.errs, 1)
		})
	}
}

func nanValue() float64 {
	zero := 0.0
	return zero / zero
}

func nanAttribution() []float64 {
	attr := stubAttribution()
	attr[CropType] = nanValue()
	return attr
}

func TestModelAdapterCircuitBreaker(t *testing.T) {
	calls := 0
	loader := func() (*Model, error) {
		return &Model{
			Predictor:    predictorFunc(func([]float64) (float64, error) { calls++; return 0, errors.New("down") }),
			Attributor:   stubAttributor{values: stubAttribution()},
			FeatureNames: FeatureNames(),
		}, nil
	}
	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{FailureThreshold: 2, RecoveryTimeout: time.Hour})
	adapter := NewModelAdapter(NewModelHandle(loader), WithCircuitBreaker(cb))

	for i := 0; i < 5; i++ {
		assert.False(t, adapter.Predict(RawFeatures{}).OK())
	}
	assert.Equal(t, 2, calls)
	assert.ErrorIs(t, adapter.Predict(RawFeatures{}).Err, resilience.ErrCircuitOpen)
}

type predictorFunc func([]float64) (float64, error)

func (f predictorFunc) Predict(x []float64) (float64, error) { return f(x) }

func TestModelHandleSingleFlight(t *testing.T) {
	var built int
	handle := NewModelHandle(func() (*Model, error) {
		built++
		time.Sleep(20 * time.Millisecond)
		return staticModel(stubPredictor{out: 0.5}, stubAttributor{values: stubAttribution()})()
	})

	const callers = 64
	models := make([]*Model, callers)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			m, err := handle.Get()
			assert.NoError(t, err)
			models[i] = m
		}(i)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int64(1), handle.Loads())
	assert.Equal(t, 1, built)
	for _, m := range models {
		assert.Same(t, models[0], m)
	}
	assert.True(t, handle.Loaded())
}

func TestModelHandleCachesFailureUntilReset(t *testing.T) {
	attempts := 0
	handle := NewModelHandle(func() (*Model, error) {
		attempts++
		if attempts == 1 {
			return nil, errors.New("not yet")
		}
		return staticModel(stubPredictor{out: 0.5}, stubAttributor{values: stubAttribution()})()
	})

	_, err := handle.Get()
	require.Error(t, err)
	_, err = handle.Get()
	require.Error(t, err)
	assert.Equal(t, int64(1), handle.Loads())
	assert.False(t, handle.Loaded())

	handle.Reset()
	m, err := handle.Get()
	require.NoError(t, err)
	assert.Equal(t, "test-1", m.Version)
	assert.Equal(t, int64(2), handle.Loads())
}
