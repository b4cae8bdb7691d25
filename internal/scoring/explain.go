package scoring

import (
	"fmt"
	"math"
	"sort"
)

// MaxDrivers is the number of drivers attached to a score
const MaxDrivers = 3

// Driver is one ranked, human readable explanation of a score
type Driver struct {
	Key         Feature `json:"-"`
	Feature     string  `json:"feature"`
	Impact      float64 `json:"impact"`
	Explanation string  `json:"explanation"`
}

// Impacts are signed per-feature deviations on the 0-100 scale. Positive
// means better than neutral.
type Impacts [FeatureCount]float64

var descriptions = [FeatureCount]string{
	LandArea:              "Farm size",
	CropType:              "Crop category",
	LastYearYieldEst:      "Previous yield",
	NDVIMean:              "Crop health (satellite)",
	NDVITrend:             "Crop vigor trend",
	RainfallAnomaly3Mo:    "Rainfall pattern",
	PastKCCDefaults:       "Credit history",
	UPITxnFreq:            "Digital transactions",
	MarketPriceVolatility: "Price stability",
	FPOMembershipFlag:     "FPO membership",
	DistanceToMandiKm:     "Market access",
}

// Description returns the human label of a feature
func Description(f Feature) string {
	if f < 0 || int(f) >= FeatureCount {
		return f.String()
	}
	return descriptions[f]
}

type phrase func(positive bool, r ResolvedFeatures) string

func fixed(pos, neg string) phrase {
	return func(positive bool, _ ResolvedFeatures) string {
		if positive {
			return pos
		}
		return neg
	}
}

var phrases = map[Feature]phrase{
	NDVIMean:  fixed("Strong crop health observed from satellite", "Lower crop vigor detected from satellite"),
	NDVITrend: fixed("Improving crop health trend", "Declining crop vigor vs last season"),
	RainfallAnomaly3Mo: func(positive bool, r ResolvedFeatures) string {
		switch {
		case positive:
			return "Favorable rainfall pattern"
		case r.RainfallAnomaly3Mo > 0:
			return "Excess rainfall observed"
		default:
			return "Delayed rainfall observed"
		}
	},
	PastKCCDefaults: func(positive bool, r ResolvedFeatures) string {
		if positive {
			return "Clean credit history"
		}
		return fmt.Sprintf("%d default(s) in KCC history", int(r.PastKCCDefaults))
	},
	UPITxnFreq:            fixed("Active digital transaction history", "Limited digital payment activity"),
	LandArea:              fixed("Larger farm size", "Smaller farm size"),
	LastYearYieldEst:      fixed("Strong previous yield", "Lower yield in previous season"),
	MarketPriceVolatility: fixed("Stable crop prices", "High price volatility for crop"),
	FPOMembershipFlag:     fixed("Member of Farmer Producer Organization", "Not part of FPO network"),
	DistanceToMandiKm: func(positive bool, r ResolvedFeatures) string {
		if positive {
			return "Close to market"
		}
		return fmt.Sprintf("Far from mandi (%.1f km)", r.DistanceToMandiKm)
	},
	CropType: func(_ bool, r ResolvedFeatures) string {
		return "Growing " + r.CropType
	},
}

// Phrase renders the explanation of one feature for the given impact sign
func Phrase(f Feature, positive bool, r ResolvedFeatures) string {
	if p, ok := phrases[f]; ok {
		return p(positive, r)
	}
	if positive {
		return "Positive contribution from " + f.String()
	}
	return "Negative contribution from " + f.String()
}

// DeterministicImpacts measures each contribution against the contribution
// the feature would make at the neutral value 0.5.
func DeterministicImpacts(c Contributions) Impacts {
	var out Impacts
	for i := range c {
		out[i] = c[i] - 0.5*weights[i]*100
	}
	return out
}

// Rank orders features by descending absolute impact. Ties keep declared order.
func Rank(impacts Impacts) []Feature {
	order := Features()
	sort.SliceStable(order, func(i, j int) bool {
		return math.Abs(impacts[order[i]]) > math.Abs(impacts[order[j]])
	})
	return order
}

// Explain renders the top drivers. Deterministic impacts and learned-model
// attributions go through this same path.
func Explain(impacts Impacts, raw RawFeatures) []Driver {
	resolved := raw.Resolve()
	ranked := Rank(impacts)

	n := MaxDrivers
	if len(ranked) < n {
		n = len(ranked)
	}

	drivers := make([]Driver, 0, n)
	for _, f := range ranked[:n] {
		impact := impacts[f]
		drivers = append(drivers, Driver{
			Key:         f,
			Feature:     Description(f),
			Impact:      round1(impact),
			Explanation: Phrase(f, impact >= 0, resolved),
		})
	}
	return drivers
}
