package scoring

import "math"

// Contributions holds per-feature weighted contributions on the 0-100 scale
type Contributions [FeatureCount]float64

// Total sums the contributions in declared order
func (c Contributions) Total() float64 {
	total := 0.0
	for _, v := range c {
		total += v
	}
	return total
}

// Contribute computes value*weight*100 for every feature
func Contribute(v Vector) Contributions {
	var c Contributions
	for i := range v {
		c[i] = v[i] * weights[i] * 100
	}
	return c
}

// Score is the deterministic reference score: the clamped weighted sum,
// rounded to one decimal.
func Score(v Vector) float64 {
	return round1(clamp(Contribute(v).Total(), 0, 100))
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

func round1(x float64) float64 {
	r := math.Round(x*10) / 10
	if r == 0 {
		return 0 // drop negative zero
	}
	return r
}
