package model

import (
	"errors"
	"fmt"
	"slices"
)

// ErrNoArtifact is returned by a loader that has no artifact path configured
var ErrNoArtifact = errors.New("no model artifact configured")

// Linear is a linear regressor. Its attribution is exact:
// coef_i * (x_i - baseline_i), so prediction = intercept + coef.baseline + sum of attributions.
type Linear struct {
	intercept    float64
	coefficients []float64
	baseline     []float64
}

// NewLinear builds a linear model. A missing baseline is the neutral vector 0.5.
func NewLinear(intercept float64, coefficients, baseline []float64) *Linear {
	if len(baseline) == 0 {
		baseline = make([]float64, len(coefficients))
		for i := range baseline {
			baseline[i] = 0.5
		}
	}
	return &Linear{
		intercept:    intercept,
		coefficients: slices.Clone(coefficients),
		baseline:     slices.Clone(baseline),
	}
}

func (l *Linear) check(x []float64) error {
	if len(x) != len(l.coefficients) {
		return fmt.Errorf("linear model expects %d features, got %d", len(l.coefficients), len(x))
	}
	return nil
}

// Predict returns intercept + coef.x
func (l *Linear) Predict(x []float64) (float64, error) {
	if err := l.check(x); err != nil {
		return 0, err
	}

	y := l.intercept
	for i, c := range l.coefficients {
		y += c * x[i]
	}
	return y, nil
}

// Attribute returns each feature's deviation from the baseline, weighted
func (l *Linear) Attribute(x []float64) ([]float64, error) {
	if err := l.check(x); err != nil {
		return nil, err
	}

	out := make([]float64, len(x))
	for i, c := range l.coefficients {
		out[i] = c * (x[i] - l.baseline[i])
	}
	return out, nil
}
