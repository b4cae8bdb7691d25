package scoring

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/ZanzyTHEbar/farmer-credit-score/internal/resilience"
)

// ModelServiceName is the name the learned path reports health under
const ModelServiceName = "ml-model"

var (
	ErrModelUnavailable    = errors.New("model not loaded")
	ErrNoAttributor        = errors.New("model has no attribution explainer")
	ErrFeatureOrder        = errors.New("model feature order does not match extractor")
	ErrNonFinitePrediction = errors.New("model produced a non-finite value")
)

// Predictor is a trained regressor over the normalized feature vector. The
// prediction is on the 0-1 scale.
type Predictor interface {
	Predict(features []float64) (float64, error)
}

// Attributor returns one signed attribution per feature, on the 0-1 scale.
type Attributor interface {
	Attribute(features []float64) ([]float64, error)
}

// Model pairs a predictor with its explainer and the feature order both
// were built against.
type Model struct {
	Predictor    Predictor
	Attributor   Attributor
	FeatureNames []string
	Version      string
	Kind         string
}

// ModelLoader builds a Model, typically from an artifact on disk
type ModelLoader func() (*Model, error)

// ModelHandle owns one lazily loaded Model. The first Get runs the loader;
// concurrent callers wait and share its outcome, including a load error.
type ModelHandle struct {
	loader ModelLoader

	mu     sync.RWMutex
	loaded bool
	model  *Model
	err    error
	loads  atomic.Int64
}

// NewModelHandle binds a loader. A nil loader yields ErrModelUnavailable.
func NewModelHandle(loader ModelLoader) *ModelHandle {
	return &ModelHandle{loader: loader}
}

// Get returns the cached model, loading it on first use
func (h *ModelHandle) Get() (*Model, error) {
	h.mu.RLock()
	if h.loaded {
		m, err := h.model, h.err
		h.mu.RUnlock()
		return m, err
	}
	h.mu.RUnlock()

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.loaded {
		return h.model, h.err
	}

	h.model, h.err = h.load()
	h.loaded = true
	return h.model, h.err
}

func (h *ModelHandle) load() (m *Model, err error) {
	if h.loader == nil {
		return nil, ErrModelUnavailable
	}

	h.loads.Add(1)
	defer func() {
		if r := recover(); r != nil {
			m, err = nil, fmt.Errorf("model loader panicked: %v", r)
		}
	}()

	m, err = h.loader()
	if err == nil && m == nil {
		err = ErrModelUnavailable
	}
	return m, err
}

// Loaded reports whether a load has been attempted and succeeded
func (h *ModelHandle) Loaded() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.loaded && h.err == nil
}

// Loads returns how many times the loader has run
func (h *ModelHandle) Loads() int64 {
	return h.loads.Load()
}

// Reset drops the cached model so the next Get reloads it
func (h *ModelHandle) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.loaded = false
	h.model = nil
	h.err = nil
}

// Prediction is the outcome of one learned-model attempt. Err is set on
// failure, in which case Score and Drivers are zero.
type Prediction struct {
	Score   float64
	Drivers []Driver
	Version string
	Err     error
}

// OK reports whether the learned model produced the result
func (p Prediction) OK() bool {
	return p.Err == nil
}

func failed(err error) Prediction {
	return Prediction{Err: err}
}

// HealthRecorder receives the outcome of every learned-model attempt
type HealthRecorder interface {
	RecordRequest(serviceName string, success bool)
	RecordError(serviceName string, err error)
}

// ModelAdapter runs the learned path. It never panics and never returns a
// partial result.
type ModelAdapter struct {
	handle  *ModelHandle
	breaker *resilience.CircuitBreaker
	health  HealthRecorder
}

// AdapterOption configures a ModelAdapter
type AdapterOption func(*ModelAdapter)

// WithCircuitBreaker stops calling the model after repeated failures
func WithCircuitBreaker(cb *resilience.CircuitBreaker) AdapterOption {
	return func(a *ModelAdapter) { a.breaker = cb }
}

// WithHealthRecorder reports attempts to a degradation manager
func WithHealthRecorder(h HealthRecorder) AdapterOption {
	return func(a *ModelAdapter) { a.health = h }
}

// NewModelAdapter wraps a model handle
func NewModelAdapter(handle *ModelHandle, opts ...AdapterOption) *ModelAdapter {
	a := &ModelAdapter{handle: handle}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Handle returns the model handle the adapter reads from
func (a *ModelAdapter) Handle() *ModelHandle {
	return a.handle
}

// Predict scores raw input with the learned model
func (a *ModelAdapter) Predict(raw RawFeatures) Prediction {
	var p Prediction
	run := func() error {
		p = a.attempt(raw)
		return p.Err
	}

	var err error
	if a.breaker != nil {
		err = a.breaker.Call(run)
	} else {
		err = run()
	}

	if errors.Is(err, resilience.ErrCircuitOpen) {
		return failed(err)
	}
	if a.health != nil {
		if err != nil {
			a.health.RecordError(ModelServiceName, err)
		} else {
			a.health.RecordRequest(ModelServiceName, true)
		}
	}
	return p
}

func (a *ModelAdapter) attempt(raw RawFeatures) (p Prediction) {
	defer func() {
		if r := recover(); r != nil {
			p = failed(fmt.Errorf("model inference panicked: %v", r))
		}
	}()

	if a.handle == nil {
		return failed(ErrModelUnavailable)
	}

	m, err := a.handle.Get()
	if err != nil {
		return failed(fmt.Errorf("%w: %v", ErrModelUnavailable, err))
	}
	if m.Predictor == nil {
		return failed(ErrModelUnavailable)
	}
	if m.Attributor == nil {
		return failed(ErrNoAttributor)
	}
	if !slices.Equal(m.FeatureNames, featureNames[:]) {
		return failed(ErrFeatureOrder)
	}

	x := Extract(raw).Slice()

	out, err := m.Predictor.Predict(x)
	if err != nil {
		return failed(fmt.Errorf("model prediction failed: %w", err))
	}
	if math.IsNaN(out) || math.IsInf(out, 0) {
		return failed(ErrNonFinitePrediction)
	}

	attr, err := m.Attributor.Attribute(x)
	if err != nil {
		return failed(fmt.Errorf("model attribution failed: %w", err))
	}
	if len(attr) != FeatureCount {
		return failed(fmt.Errorf("model attribution returned %d values, want %d", len(attr), FeatureCount))
	}

	var impacts Impacts
	for i, v := range attr {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return failed(ErrNonFinitePrediction)
		}
		impacts[i] = v * 100
	}

	return Prediction{
		Score:   round1(clamp(out*100, 0, 100)),
		Drivers: Explain(impacts, raw),
		Version: m.Version,
	}
}
