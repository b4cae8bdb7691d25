package model

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	apperrors "github.com/ZanzyTHEbar/farmer-credit-score/internal/errors"
	"github.com/ZanzyTHEbar/farmer-credit-score/internal/scoring"
)

const (
	KindLinear = "linear"
	KindForest = "forest"
)

// Artifact is the on-disk form of a trained model. Linear models use
// Intercept, Coefficients and Baseline; forests use Trees.
type Artifact struct {
	Kind         string    `json:"kind" yaml:"kind"`
	Version      string    `json:"version" yaml:"version"`
	FeatureNames []string  `json:"feature_names" yaml:"feature_names"`
	Intercept    float64   `json:"intercept,omitempty" yaml:"intercept,omitempty"`
	Coefficients []float64 `json:"coefficients,omitempty" yaml:"coefficients,omitempty"`
	Baseline     []float64 `json:"baseline,omitempty" yaml:"baseline,omitempty"`
	Trees        []Tree    `json:"trees,omitempty" yaml:"trees,omitempty"`
}

// Tree is a binary regression tree stored as a flat node array; node 0 is the root
type Tree struct {
	Nodes []Node `json:"nodes" yaml:"nodes"`
}

// Node is a split when Left and Right are set and a leaf when both are -1.
// Value holds the mean target of the training rows reaching the node.
type Node struct {
	Feature   int     `json:"feature" yaml:"feature"`
	Threshold float64 `json:"threshold" yaml:"threshold"`
	Left      int     `json:"left" yaml:"left"`
	Right     int     `json:"right" yaml:"right"`
	Value     float64 `json:"value" yaml:"value"`
}

func (n Node) leaf() bool {
	return n.Left < 0 && n.Right < 0
}

// Decode reads an artifact, choosing YAML for .yaml/.yml paths and JSON otherwise
func Decode(path string, data []byte) (*Artifact, error) {
	var a Artifact
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &a); err != nil {
			return nil, fmt.Errorf("failed to decode model artifact: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &a); err != nil {
			return nil, fmt.Errorf("failed to decode model artifact: %w", err)
		}
	}
	return &a, nil
}

// Validate checks the artifact against the extractor's feature layout
func (a *Artifact) Validate() error {
	if !slices.Equal(a.FeatureNames, scoring.FeatureNames()) {
		return fmt.Errorf("%w: got %v", scoring.ErrFeatureOrder, a.FeatureNames)
	}

	switch a.Kind {
	case KindLinear:
		if len(a.Coefficients) != scoring.FeatureCount {
			return fmt.Errorf("linear model has %d coefficients, want %d", len(a.Coefficients), scoring.FeatureCount)
		}
		if len(a.Baseline) != 0 && len(a.Baseline) != scoring.FeatureCount {
			return fmt.Errorf("linear model has %d baseline values, want %d", len(a.Baseline), scoring.FeatureCount)
		}
	case KindForest:
		if len(a.Trees) == 0 {
			return fmt.Errorf("forest model has no trees")
		}
		for i, tree := range a.Trees {
			if err := tree.validate(); err != nil {
				return fmt.Errorf("tree %d: %w", i, err)
			}
		}
	default:
		return fmt.Errorf("unknown model kind %q", a.Kind)
	}
	return nil
}

// children must point forward so every walk terminates
func (t Tree) validate() error {
	if len(t.Nodes) == 0 {
		return fmt.Errorf("empty tree")
	}
	for i, n := range t.Nodes {
		if n.leaf() {
			continue
		}
		if n.Feature < 0 || n.Feature >= scoring.FeatureCount {
			return fmt.Errorf("node %d splits on unknown feature %d", i, n.Feature)
		}
		for _, child := range []int{n.Left, n.Right} {
			if child <= i || child >= len(t.Nodes) {
				return fmt.Errorf("node %d has invalid child %d", i, child)
			}
		}
	}
	return nil
}

// Build turns a validated artifact into a scoring.Model
func (a *Artifact) Build() (*scoring.Model, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}

	m := &scoring.Model{
		FeatureNames: slices.Clone(a.FeatureNames),
		Version:      a.Version,
		Kind:         a.Kind,
	}

	switch a.Kind {
	case KindLinear:
		l := NewLinear(a.Intercept, a.Coefficients, a.Baseline)
		m.Predictor, m.Attributor = l, l
	case KindForest:
		f := &Forest{Trees: a.Trees}
		m.Predictor, m.Attributor = f, f
	}
	return m, nil
}

// Load reads, validates and builds the model at path
func Load(path string) (*scoring.Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.NewModelError("failed to read model artifact", err)
	}

	artifact, err := Decode(path, data)
	if err != nil {
		return nil, apperrors.NewModelError("model artifact is not valid", err)
	}

	m, err := artifact.Build()
	if err != nil {
		return nil, apperrors.NewModelError("model artifact is not usable", err)
	}
	return m, nil
}

// NewLoader binds path to a scoring.ModelLoader. An empty path never loads.
func NewLoader(path string) scoring.ModelLoader {
	return func() (*scoring.Model, error) {
		if strings.TrimSpace(path) == "" {
			return nil, ErrNoArtifact
		}
		return Load(path)
	}
}

// Save writes an artifact as indented JSON
func Save(path string, a *Artifact) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create model directory: %w", err)
	}

	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode model artifact: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
