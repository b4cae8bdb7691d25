package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scenarioB() RawFeatures {
	return RawFeatures{
		LandArea:              f64(2.0),
		CropType:              str("wheat"),
		LastYearYieldEst:      f64(3.0),
		NDVIMean:              f64(0.6),
		NDVITrend:             f64(0.05),
		RainfallAnomaly3Mo:    f64(0.0),
		PastKCCDefaults:       f64(0),
		UPITxnFreq:            f64(15),
		MarketPriceVolatility: f64(15.0),
		FPOMembershipFlag:     f64(0),
		DistanceToMandiKm:     f64(20.0),
	}
}

func neutralVector() Vector {
	var v Vector
	for i := range v {
		v[i] = 0.5
	}
	return v
}

func TestWeightsSumToOne(t *testing.T) {
	sum := 0.0
	for _, f := range Features() {
		w := Weight(f)
		assert.GreaterOrEqual(t, w, 0.0, f.String())
		sum += w
	}
	assert.InDelta(t, 1.0, sum, 1e-12)
}

func TestScore(t *testing.T) {
	var ones, zeros Vector
	for i := range ones {
		ones[i] = 1
	}

	tests := []struct {
		name     string
		vector   Vector
		expected float64
	}{
		{"all neutral", neutralVector(), 50.0},
		{"all best", ones, 100.0},
		{"all worst", zeros, 0.0},
		{"scenario B", Extract(scenarioB()), 54.6},
		{"documented defaults", Extract(RawFeatures{}), 49.2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Score(tt.vector))
		})
	}
}

func TestScoreIsPure(t *testing.T) {
	v := Extract(scenarioB())
	first := Score(v)
	for i := 0; i < 100; i++ {
		require.Equal(t, first, Score(v))
	}
}

func TestContributions(t *testing.T) {
	c := Contribute(Extract(scenarioB()))

	assert.InDelta(t, 15.0, c[PastKCCDefaults], 1e-9)
	assert.InDelta(t, 5.4, c[CropType], 1e-9)
	assert.InDelta(t, 0.0, c[LastYearYieldEst], 1e-9)
	assert.InDelta(t, 3.125, c[DistanceToMandiKm], 1e-9)
	assert.InDelta(t, 54.626, c.Total(), 1e-3)
}

func TestRound1(t *testing.T) {
	assert.Equal(t, 54.6, round1(54.626))
	assert.Equal(t, 0.2, round1(0.16))
	assert.Equal(t, -2.7, round1(-2.737))
	assert.False(t, signbit(round1(-0.04)), "negative zero must not leak into JSON")
}

func signbit(x float64) bool { return 1/x < 0 }

func BenchmarkExtractAndScore(b *testing.B) {
	raw := scenarioB()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = Score(Extract(raw))
	}
}

func BenchmarkDeterministic(b *testing.B) {
	raw := scenarioB()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = Deterministic(raw)
	}
}
