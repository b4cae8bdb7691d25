package scoring

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Feature identifies one normalized input of the scorer. The iota order is
// the declared feature order: ties in driver ranking and the learned-model
// input layout both follow it.
type Feature int

const (
	LandArea Feature = iota
	CropType
	LastYearYieldEst
	NDVIMean
	NDVITrend
	RainfallAnomaly3Mo
	PastKCCDefaults
	UPITxnFreq
	MarketPriceVolatility
	FPOMembershipFlag
	DistanceToMandiKm

	FeatureCount = int(DistanceToMandiKm) + 1
)

var featureNames = [FeatureCount]string{
	LandArea:              "land_area",
	CropType:              "crop_type",
	LastYearYieldEst:      "last_year_yield_est",
	NDVIMean:              "ndvi_mean",
	NDVITrend:             "ndvi_trend",
	RainfallAnomaly3Mo:    "rainfall_anomaly_3mo",
	PastKCCDefaults:       "past_kcc_defaults",
	UPITxnFreq:            "upi_txn_freq",
	MarketPriceVolatility: "market_price_volatility",
	FPOMembershipFlag:     "fpo_membership_flag",
	DistanceToMandiKm:     "distance_to_mandi_km",
}

func (f Feature) String() string {
	if f < 0 || int(f) >= FeatureCount {
		return fmt.Sprintf("feature(%d)", int(f))
	}
	return featureNames[f]
}

// FeatureNames returns the feature names in declared order
func FeatureNames() []string {
	out := make([]string, FeatureCount)
	copy(out, featureNames[:])
	return out
}

// Features returns every feature in declared order
func Features() []Feature {
	out := make([]Feature, FeatureCount)
	for i := range out {
		out[i] = Feature(i)
	}
	return out
}

// Neutral defaults applied to absent inputs.
const (
	DefaultLandArea              = 2.0
	DefaultCropType              = "rice"
	DefaultLastYearYieldEst      = 3.0
	DefaultNDVIMean              = 0.5
	DefaultNDVITrend             = 0.0
	DefaultRainfallAnomaly3Mo    = 0.0
	DefaultPastKCCDefaults       = 0.0
	DefaultUPITxnFreq            = 10.0
	DefaultMarketPriceVolatility = 15.0
	DefaultFPOMembershipFlag     = 0.0
	DefaultDistanceToMandiKm     = 20.0
)

// RawFeatures is the pre-assembled farmer input. Nil fields are absent and
// resolve to the neutral defaults above.
type RawFeatures struct {
	LandArea              *float64 `json:"land_area,omitempty" yaml:"land_area,omitempty"`
	CropType              *string  `json:"crop_type,omitempty" yaml:"crop_type,omitempty"`
	LastYearYieldEst      *float64 `json:"last_year_yield_est,omitempty" yaml:"last_year_yield_est,omitempty"`
	NDVIMean              *float64 `json:"ndvi_mean,omitempty" yaml:"ndvi_mean,omitempty"`
	NDVITrend             *float64 `json:"ndvi_trend,omitempty" yaml:"ndvi_trend,omitempty"`
	RainfallAnomaly3Mo    *float64 `json:"rainfall_anomaly_3mo,omitempty" yaml:"rainfall_anomaly_3mo,omitempty"`
	PastKCCDefaults       *float64 `json:"past_kcc_defaults,omitempty" yaml:"past_kcc_defaults,omitempty"`
	UPITxnFreq            *float64 `json:"upi_txn_freq,omitempty" yaml:"upi_txn_freq,omitempty"`
	MarketPriceVolatility *float64 `json:"market_price_volatility,omitempty" yaml:"market_price_volatility,omitempty"`
	FPOMembershipFlag     *float64 `json:"fpo_membership_flag,omitempty" yaml:"fpo_membership_flag,omitempty"`
	DistanceToMandiKm     *float64 `json:"distance_to_mandi_km,omitempty" yaml:"distance_to_mandi_km,omitempty"`
}

// ResolvedFeatures is RawFeatures with every default applied
type ResolvedFeatures struct {
	LandArea              float64 `json:"land_area"`
	CropType              string  `json:"crop_type"`
	LastYearYieldEst      float64 `json:"last_year_yield_est"`
	NDVIMean              float64 `json:"ndvi_mean"`
	NDVITrend             float64 `json:"ndvi_trend"`
	RainfallAnomaly3Mo    float64 `json:"rainfall_anomaly_3mo"`
	PastKCCDefaults       float64 `json:"past_kcc_defaults"`
	UPITxnFreq            float64 `json:"upi_txn_freq"`
	MarketPriceVolatility float64 `json:"market_price_volatility"`
	FPOMembershipFlag     float64 `json:"fpo_membership_flag"`
	DistanceToMandiKm     float64 `json:"distance_to_mandi_km"`
}

func orDefault(p *float64, def float64) float64 {
	if p == nil || math.IsNaN(*p) || math.IsInf(*p, 0) {
		return def
	}
	return *p
}

// Resolve applies the neutral default to every absent field
func (r RawFeatures) Resolve() ResolvedFeatures {
	crop := DefaultCropType
	if r.CropType != nil {
		crop = *r.CropType
	}

	return ResolvedFeatures{
		LandArea:              orDefault(r.LandArea, DefaultLandArea),
		CropType:              crop,
		LastYearYieldEst:      orDefault(r.LastYearYieldEst, DefaultLastYearYieldEst),
		NDVIMean:              orDefault(r.NDVIMean, DefaultNDVIMean),
		NDVITrend:             orDefault(r.NDVITrend, DefaultNDVITrend),
		RainfallAnomaly3Mo:    orDefault(r.RainfallAnomaly3Mo, DefaultRainfallAnomaly3Mo),
		PastKCCDefaults:       orDefault(r.PastKCCDefaults, DefaultPastKCCDefaults),
		UPITxnFreq:            orDefault(r.UPITxnFreq, DefaultUPITxnFreq),
		MarketPriceVolatility: orDefault(r.MarketPriceVolatility, DefaultMarketPriceVolatility),
		FPOMembershipFlag:     orDefault(r.FPOMembershipFlag, DefaultFPOMembershipFlag),
		DistanceToMandiKm:     orDefault(r.DistanceToMandiKm, DefaultDistanceToMandiKm),
	}
}

// Overlay returns r with every field present in o replacing r's value
func (r RawFeatures) Overlay(o RawFeatures) RawFeatures {
	out := r
	for _, p := range []struct{ dst, src **float64 }{
		{&out.LandArea, &o.LandArea},
		{&out.LastYearYieldEst, &o.LastYearYieldEst},
		{&out.NDVIMean, &o.NDVIMean},
		{&out.NDVITrend, &o.NDVITrend},
		{&out.RainfallAnomaly3Mo, &o.RainfallAnomaly3Mo},
		{&out.PastKCCDefaults, &o.PastKCCDefaults},
		{&out.UPITxnFreq, &o.UPITxnFreq},
		{&out.MarketPriceVolatility, &o.MarketPriceVolatility},
		{&out.FPOMembershipFlag, &o.FPOMembershipFlag},
		{&out.DistanceToMandiKm, &o.DistanceToMandiKm},
	} {
		if *p.src != nil {
			*p.dst = *p.src
		}
	}
	if o.CropType != nil {
		out.CropType = o.CropType
	}
	return out
}

// RawFeaturesFromMap builds RawFeatures from a flat key/value mapping.
// Unknown keys are ignored. Values that cannot be read as a finite number
// are treated as absent.
func RawFeaturesFromMap(m map[string]any) RawFeatures {
	var r RawFeatures
	for key, value := range m {
		if key == "crop_type" {
			if s, ok := value.(string); ok {
				r.CropType = &s
			}
			continue
		}

		target := r.numericField(key)
		if target == nil {
			continue
		}
		if v, ok := toFloat(value); ok {
			*target = &v
		}
	}
	return r
}

func (r *RawFeatures) numericField(key string) **float64 {
	switch key {
	case "land_area":
		return &r.LandArea
	case "last_year_yield_est":
		return &r.LastYearYieldEst
	case "ndvi_mean":
		return &r.NDVIMean
	case "ndvi_trend":
		return &r.NDVITrend
	case "rainfall_anomaly_3mo":
		return &r.RainfallAnomaly3Mo
	case "past_kcc_defaults":
		return &r.PastKCCDefaults
	case "upi_txn_freq":
		return &r.UPITxnFreq
	case "market_price_volatility":
		return &r.MarketPriceVolatility
	case "fpo_membership_flag":
		return &r.FPOMembershipFlag
	case "distance_to_mandi_km":
		return &r.DistanceToMandiKm
	}
	return nil
}

func toFloat(value any) (float64, bool) {
	var f float64
	switch v := value.(type) {
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	case int64:
		f = float64(v)
	case uint64:
		f = float64(v)
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	case bool:
		if v {
			f = 1
		}
	default:
		return 0, false
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// UnmarshalJSON accepts the same loose value shapes as RawFeaturesFromMap
func (r *RawFeatures) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return err
	}
	*r = RawFeaturesFromMap(m)
	return nil
}

// UnmarshalYAML accepts the same loose value shapes as RawFeaturesFromMap
func (r *RawFeatures) UnmarshalYAML(node *yaml.Node) error {
	var m map[string]any
	if err := node.Decode(&m); err != nil {
		return err
	}
	*r = RawFeaturesFromMap(m)
	return nil
}

// Vector is the normalized feature vector, indexed by Feature
type Vector [FeatureCount]float64

// Get returns the value of one feature
func (v Vector) Get(f Feature) float64 {
	return v[f]
}

// Slice returns the values in declared order, the learned-model input layout
func (v Vector) Slice() []float64 {
	out := make([]float64, FeatureCount)
	copy(out, v[:])
	return out
}

// Map returns the vector keyed by feature name
func (v Vector) Map() map[string]float64 {
	out := make(map[string]float64, FeatureCount)
	for i, name := range featureNames {
		out[name] = v[i]
	}
	return out
}

// Normalize maps value from [min,max] onto [0,1], clamped. A degenerate
// range yields 0.5 whatever the value or direction.
func Normalize(value, min, max float64, inverse bool) float64 {
	if max == min {
		return 0.5
	}

	n := clamp((value-min)/(max-min), 0, 1)
	if inverse {
		return 1 - n
	}
	return n
}

// EncodeCrop returns the categorical score of a crop; unknown crops get 0.7
func EncodeCrop(crop string) float64 {
	if v, ok := cropEncoding[strings.ToLower(strings.TrimSpace(crop))]; ok {
		return v
	}
	return unknownCropScore
}

// Extract normalizes raw input into the fixed 11-feature vector. It never fails.
func Extract(raw RawFeatures) Vector {
	r := raw.Resolve()

	yieldPerHa := 0.0
	if r.LandArea > 0 {
		yieldPerHa = r.LastYearYieldEst / r.LandArea
	}

	var v Vector
	v[LandArea] = Normalize(r.LandArea, 0.5, 10.0, false)
	v[CropType] = EncodeCrop(r.CropType)
	v[LastYearYieldEst] = Normalize(yieldPerHa, 1.5, 5.0, false)
	v[NDVIMean] = Normalize(r.NDVIMean, 0.2, 0.9, false)
	v[NDVITrend] = Normalize(r.NDVITrend, -0.15, 0.15, false)
	v[RainfallAnomaly3Mo] = 1 - Normalize(math.Abs(r.RainfallAnomaly3Mo), 0, 50, false)
	v[PastKCCDefaults] = Normalize(r.PastKCCDefaults, 0, 3, true)
	v[UPITxnFreq] = Normalize(r.UPITxnFreq, 0, 50, false)
	v[MarketPriceVolatility] = Normalize(r.MarketPriceVolatility, 5, 30, true)
	v[FPOMembershipFlag] = clamp(r.FPOMembershipFlag, 0, 1)
	v[DistanceToMandiKm] = Normalize(r.DistanceToMandiKm, 2, 50, true)
	return v
}
