package scoring

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func f64(v float64) *float64 { return &v }
func str(s string) *string    { return &s }

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		value    float64
		min, max float64
		inverse  bool
		expected float64
	}{
		{"midpoint", 5, 0, 10, false, 0.5},
		{"lower bound", 0, 0, 10, false, 0},
		{"clamps below", -4, 0, 10, false, 0},
		{"clamps above", 25, 0, 10, false, 1},
		{"inverse", 2.5, 0, 10, true, 0.75},
		{"inverse clamps above", 99, 0, 10, true, 0},
		{"degenerate range", 123, 7, 7, false, 0.5},
		{"degenerate range inverse", -1, 7, 7, true, 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, Normalize(tt.value, tt.min, tt.max, tt.inverse), 1e-12)
		})
	}
}

func TestEncodeCrop(t *testing.T) {
	tests := []struct {
		crop     string
		expected float64
	}{
		{"rice", 0.8},
		{"wheat", 0.9},
		{"cotton", 0.7},
		{"maize", 0.75},
		{"  Wheat ", 0.9},
		{"sorghum", 0.7},
		{"", 0.7},
	}

	for _, tt := range tests {
		t.Run(tt.crop, func(t *testing.T) {
			assert.Equal(t, tt.expected, EncodeCrop(tt.crop))
		})
	}
}

func TestFeatureNamesOrder(t *testing.T) {
	assert.Equal(t, []string{
		"land_area", "crop_type", "last_year_yield_est", "ndvi_mean", "ndvi_trend",
		"rainfall_anomaly_3mo", "past_kcc_defaults", "upi_txn_freq",
		"market_price_volatility", "fpo_membership_flag", "distance_to_mandi_km",
	}, FeatureNames())
	assert.Equal(t, "ndvi_mean", NDVIMean.String())
	assert.Equal(t, "feature(42)", Feature(42).String())
}

func TestExtractScenarioB(t *testing.T) {
	v := Extract(scenarioB())

	expected := map[string]float64{
		"land_area":               1.5 / 9.5,
		"crop_type":               0.9,
		"last_year_yield_est":     0,
		"ndvi_mean":               0.4 / 0.7,
		"ndvi_trend":              0.2 / 0.3,
		"rainfall_anomaly_3mo":    1,
		"past_kcc_defaults":       1,
		"upi_txn_freq":            0.3,
		"market_price_volatility": 0.6,
		"fpo_membership_flag":     0,
		"distance_to_mandi_km":    0.625,
	}

	got := v.Map()
	require.Len(t, got, FeatureCount)
	for name, want := range expected {
		assert.InDelta(t, want, got[name], 1e-9, name)
	}
}

func TestExtractDefaults(t *testing.T) {
	assert.Equal(t, Extract(RawFeatures{}), Extract(RawFeatures{
		LandArea:              f64(DefaultLandArea),
		CropType:              str(DefaultCropType),
		LastYearYieldEst:      f64(DefaultLastYearYieldEst),
		NDVIMean:              f64(DefaultNDVIMean),
		NDVITrend:             f64(DefaultNDVITrend),
		RainfallAnomaly3Mo:    f64(DefaultRainfallAnomaly3Mo),
		PastKCCDefaults:       f64(DefaultPastKCCDefaults),
		UPITxnFreq:            f64(DefaultUPITxnFreq),
		MarketPriceVolatility: f64(DefaultMarketPriceVolatility),
		FPOMembershipFlag:     f64(DefaultFPOMembershipFlag),
		DistanceToMandiKm:     f64(DefaultDistanceToMandiKm),
	}))
}

func TestExtractYieldWithoutLand(t *testing.T) {
	for _, land := range []float64{0, -3} {
		v := Extract(RawFeatures{LandArea: f64(land), LastYearYieldEst: f64(12)})
		assert.Equal(t, 0.0, v[LastYearYieldEst])
		assert.Equal(t, 0.0, v[LandArea])
	}
}

func TestExtractRainfallIsSymmetric(t *testing.T) {
	wet := Extract(RawFeatures{RainfallAnomaly3Mo: f64(25)})
	dry := Extract(RawFeatures{RainfallAnomaly3Mo: f64(-25)})
	assert.InDelta(t, 0.5, wet[RainfallAnomaly3Mo], 1e-12)
	assert.Equal(t, wet[RainfallAnomaly3Mo], dry[RainfallAnomaly3Mo])
}

func TestExtractStaysInUnitInterval(t *testing.T) {
	extremes := []RawFeatures{
		{},
		{LandArea: f64(1e9), LastYearYieldEst: f64(-1e9), NDVIMean: f64(-5), NDVITrend: f64(9),
			RainfallAnomaly3Mo: f64(-1e6), PastKCCDefaults: f64(100), UPITxnFreq: f64(-1),
			MarketPriceVolatility: f64(-50), FPOMembershipFlag: f64(7), DistanceToMandiKm: f64(-10)},
		{LandArea: f64(0.0001), LastYearYieldEst: f64(1e6), NDVIMean: f64(math.Inf(1)),
			NDVITrend: f64(math.NaN()), CropType: str("unknown crop")},
	}

	for i, raw := range extremes {
		for f, value := range Extract(raw) {
			assert.GreaterOrEqual(t, value, 0.0, "case %d feature %s", i, Feature(f))
			assert.LessOrEqual(t, value, 1.0, "case %d feature %s", i, Feature(f))
		}
	}
}

func TestRawFeaturesFromMap(t *testing.T) {
	raw := RawFeaturesFromMap(map[string]any{
		"land_area":           "3.5",
		"crop_type":           "cotton",
		"past_kcc_defaults":   2,
		"fpo_membership_flag": true,
		"ndvi_mean":           "not a number",
		"upi_txn_freq":        math.NaN(),
		"farmer_name":         "ignored",
	})

	r := raw.Resolve()
	assert.Equal(t, 3.5, r.LandArea)
	assert.Equal(t, "cotton", r.CropType)
	assert.Equal(t, 2.0, r.PastKCCDefaults)
	assert.Equal(t, 1.0, r.FPOMembershipFlag)
	assert.Equal(t, DefaultNDVIMean, r.NDVIMean)
	assert.Equal(t, DefaultUPITxnFreq, r.UPITxnFreq)
}

func TestRawFeaturesUnmarshal(t *testing.T) {
	var fromJSON RawFeatures
	require.NoError(t, json.Unmarshal([]byte(`{"land_area": 2, "crop_type": "wheat", "upi_txn_freq": "15", "extra": [1,2]}`), &fromJSON))

	var fromYAML RawFeatures
	require.NoError(t, yaml.Unmarshal([]byte("land_area: 2\ncrop_type: wheat\nupi_txn_freq: 15\n"), &fromYAML))

	assert.Equal(t, fromJSON.Resolve(), fromYAML.Resolve())
	assert.Equal(t, 15.0, fromJSON.Resolve().UPITxnFreq)
	assert.Nil(t, fromJSON.NDVIMean)

	var bad RawFeatures
	assert.Error(t, json.Unmarshal([]byte(`[1,2,3]`), &bad))
}

func TestRawFeaturesOverlay(t *testing.T) {
	base := RawFeatures{LandArea: f64(3), CropType: str("wheat"), NDVIMean: f64(0.4)}
	patch := RawFeatures{NDVIMean: f64(0.8), UPITxnFreq: f64(25)}

	out := base.Overlay(patch)
	require.NotNil(t, out.LandArea)
	assert.Equal(t, 3.0, *out.LandArea)
	assert.Equal(t, "wheat", *out.CropType)
	assert.Equal(t, 0.8, *out.NDVIMean)
	assert.Equal(t, 25.0, *out.UPITxnFreq)
	assert.Nil(t, out.DistanceToMandiKm)

	assert.Equal(t, 0.4, *base.NDVIMean, "overlay must not mutate the receiver")
}
