package model

import (
	"fmt"

	"github.com/ZanzyTHEbar/farmer-credit-score/internal/scoring"
)

// Forest averages the leaf values of its trees. Attribution follows each
// decision path and credits the change in node value to the split feature,
// so prediction = mean root value + sum of attributions.
type Forest struct {
	Trees []Tree
}

func (f *Forest) check(x []float64) error {
	if len(x) != scoring.FeatureCount {
		return fmt.Errorf("forest expects %d features, got %d", scoring.FeatureCount, len(x))
	}
	if len(f.Trees) == 0 {
		return fmt.Errorf("forest has no trees")
	}
	return nil
}

// walk visits each (parent, child) edge on the decision path of x
func (t Tree) walk(x []float64, visit func(parent, child Node)) Node {
	node := t.Nodes[0]
	for !node.leaf() {
		next := node.Right
		if x[node.Feature] <= node.Threshold {
			next = node.Left
		}
		child := t.Nodes[next]
		if visit != nil {
			visit(node, child)
		}
		node = child
	}
	return node
}

// Predict returns the mean leaf value over all trees
func (f *Forest) Predict(x []float64) (float64, error) {
	if err := f.check(x); err != nil {
		return 0, err
	}

	sum := 0.0
	for _, t := range f.Trees {
		sum += t.walk(x, nil).Value
	}
	return sum / float64(len(f.Trees)), nil
}

// Attribute returns per-feature path contributions averaged over trees
func (f *Forest) Attribute(x []float64) ([]float64, error) {
	if err := f.check(x); err != nil {
		return nil, err
	}

	out := make([]float64, scoring.FeatureCount)
	for _, t := range f.Trees {
		t.walk(x, func(parent, child Node) {
			out[parent.Feature] += child.Value - parent.Value
		})
	}

	n := float64(len(f.Trees))
	for i := range out {
		out[i] /= n
	}
	return out, nil
}

// Bias returns the mean root value, the prediction with no evidence
func (f *Forest) Bias() float64 {
	if len(f.Trees) == 0 {
		return 0
	}
	sum := 0.0
	for _, t := range f.Trees {
		sum += t.Nodes[0].Value
	}
	return sum / float64(len(f.Trees))
}
