package scoring

// weights in declared feature order; they sum to 1.0
var weights = [FeatureCount]float64{
	LandArea:              0.08,
	CropType:              0.06,
	LastYearYieldEst:      0.12,
	NDVIMean:              0.15,
	NDVITrend:             0.10,
	RainfallAnomaly3Mo:    0.08,
	PastKCCDefaults:       0.15,
	UPITxnFreq:            0.10,
	MarketPriceVolatility: 0.06,
	FPOMembershipFlag:     0.05,
	DistanceToMandiKm:     0.05,
}

var cropEncoding = map[string]float64{
	"rice":   0.8,
	"wheat":  0.9,
	"cotton": 0.7,
	"maize":  0.75,
}

const unknownCropScore = 0.7

// Weight returns the fixed weight of a feature
func Weight(f Feature) float64 {
	return weights[f]
}

// Weights returns a copy of the weight table in declared order
func Weights() [FeatureCount]float64 {
	return weights
}
