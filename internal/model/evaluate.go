package model

import (
	"fmt"
	"math"

	"github.com/ZanzyTHEbar/farmer-credit-score/internal/scoring"
)

// Evaluation compares a learned model against the deterministic scorer,
// which serves as ground truth. All figures are on the 0-100 score scale.
type Evaluation struct {
	Samples int     `json:"samples"`
	MAE     float64 `json:"mae"`
	RMSE    float64 `json:"rmse"`
	R2      float64 `json:"r2"`
	MaxErr  float64 `json:"max_abs_error"`
	// BandAgreement is the share of samples whose band matches the reference
	BandAgreement float64 `json:"band_agreement"`
}

// Evaluate scores every sample with both paths
func Evaluate(m *scoring.Model, samples []scoring.RawFeatures) (Evaluation, error) {
	if m == nil || m.Predictor == nil {
		return Evaluation{}, scoring.ErrModelUnavailable
	}
	if len(samples) == 0 {
		return Evaluation{}, fmt.Errorf("no samples to evaluate")
	}

	truth := make([]float64, len(samples))
	var absSum, sqSum, maxErr, mean float64
	agree := 0

	for i, raw := range samples {
		v := scoring.Extract(raw)
		truth[i] = scoring.Score(v)
		mean += truth[i]

		out, err := m.Predictor.Predict(v.Slice())
		if err != nil {
			return Evaluation{}, fmt.Errorf("sample %d: %w", i, err)
		}
		pred := math.Round(math.Min(math.Max(out*100, 0), 100)*10) / 10

		diff := math.Abs(pred - truth[i])
		absSum += diff
		sqSum += diff * diff
		maxErr = math.Max(maxErr, diff)
		if scoring.BandFor(pred) == scoring.BandFor(truth[i]) {
			agree++
		}
	}

	n := float64(len(samples))
	mean /= n

	var ssTot float64
	for _, y := range truth {
		ssTot += (y - mean) * (y - mean)
	}

	r2 := 1.0
	switch {
	case ssTot > 0:
		r2 = 1 - sqSum/ssTot
	case sqSum > 0:
		r2 = 0
	}

	return Evaluation{
		Samples:       len(samples),
		MAE:           absSum / n,
		RMSE:          math.Sqrt(sqSum / n),
		R2:            r2,
		MaxErr:        maxErr,
		BandAgreement: float64(agree) / n,
	}, nil
}

// ReferenceArtifact returns the linear artifact that reproduces the deterministic
// scorer exactly: the weight table scaled to the 0-1 output range.
func ReferenceArtifact(version string) *Artifact {
	w := scoring.Weights()
	coef := make([]float64, scoring.FeatureCount)
	copy(coef, w[:])

	return &Artifact{
		Kind:         KindLinear,
		Version:      version,
		FeatureNames: scoring.FeatureNames(),
		Coefficients: coef,
	}
}
