package scoring

import (
	"fmt"
	"log/slog"
	"strings"
)

// Policy selects between the deterministic scorer and the learned model
type Policy string

const (
	PolicyDeterministicOnly Policy = "deterministic_only"
	PolicyPreferModel       Policy = "prefer_model"
)

// ParsePolicy accepts the two policy names, case-insensitively
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case PolicyDeterministicOnly:
		return PolicyDeterministicOnly, nil
	case PolicyPreferModel:
		return PolicyPreferModel, nil
	}
	return "", fmt.Errorf("unknown scoring policy %q", s)
}

// ModelType records which path produced a score
type ModelType string

const (
	ModelTypeML            ModelType = "ml"
	ModelTypeDeterministic ModelType = "deterministic"
)

// Band is the coarse risk bucket of a score
type Band string

const (
	BandLow    Band = "low"
	BandMedium Band = "medium"
	BandHigh   Band = "high"
)

// BandFor maps a score to its band: low below 40, medium below 70, else high
func BandFor(score float64) Band {
	switch {
	case score < 40:
		return BandLow
	case score < 70:
		return BandMedium
	default:
		return BandHigh
	}
}

// ScoreResult is the immutable outcome of one scoring call
type ScoreResult struct {
	Score     float64   `json:"score"`
	Band      Band      `json:"score_band"`
	Drivers   []Driver  `json:"drivers"`
	ModelType ModelType `json:"model_type"`
	// Version of the learned model, empty for deterministic results
	ModelVersion string `json:"-"`
}

// Service chooses a scoring path per call. It always returns a result.
type Service struct {
	adapter    *ModelAdapter
	logger     *slog.Logger
	onFallback func(error)
}

// ServiceOption configures a Service
type ServiceOption func(*Service)

// WithLogger sets the logger used for fallback warnings when no hook is set
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

// WithFallbackHook is called with the reason whenever prefer_model falls back.
// The hook replaces the built-in warning.
func WithFallbackHook(fn func(error)) ServiceOption {
	return func(s *Service) { s.onFallback = fn }
}

// NewService builds a scoring service. adapter may be nil, in which case
// prefer_model always falls back.
func NewService(adapter *ModelAdapter, opts ...ServiceOption) *Service {
	s := &Service{adapter: adapter, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Deterministic scores raw input with the weighted-sum reference scorer
func Deterministic(raw RawFeatures) ScoreResult {
	c := Contribute(Extract(raw))
	score := round1(clamp(c.Total(), 0, 100))

	return ScoreResult{
		Score:     score,
		Band:      BandFor(score),
		Drivers:   Explain(DeterministicImpacts(c), raw),
		ModelType: ModelTypeDeterministic,
	}
}

// Compute scores raw input under policy. model_type is ml only when the
// learned model produced both the score and the drivers.
func (s *Service) Compute(raw RawFeatures, policy Policy) ScoreResult {
	if policy != PolicyPreferModel {
		return Deterministic(raw)
	}

	var p Prediction
	if s.adapter == nil {
		p = failed(ErrModelUnavailable)
	} else {
		p = s.adapter.Predict(raw)
	}

	if !p.OK() {
		s.reportFallback(p.Err)
		return Deterministic(raw)
	}

	return ScoreResult{
		Score:        p.Score,
		Band:         BandFor(p.Score),
		Drivers:      p.Drivers,
		ModelType:    ModelTypeML,
		ModelVersion: p.Version,
	}
}

func (s *Service) reportFallback(reason error) {
	if s.onFallback != nil {
		s.onFallback(reason)
		return
	}
	s.logger.Warn("Learned model unavailable, using deterministic scorer", "reason", reason.Error())
}
