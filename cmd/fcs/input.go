package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ZanzyTHEbar/farmer-credit-score/internal/scoring"
)

// readFeatures loads one feature set or a list of them. YAML is chosen by
// extension; "-" reads JSON from stdin. single reports whether the document
// held one object rather than a list.
func readFeatures(path string, stdin io.Reader) (samples []scoring.RawFeatures, single bool, err error) {
	var data []byte
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, false, fmt.Errorf("read %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		samples, single, err = decodeYAML(data)
	default:
		samples, single, err = decodeJSON(data)
	}
	if err != nil {
		return nil, false, fmt.Errorf("decode %s: %w", path, err)
	}
	if len(samples) == 0 {
		return nil, false, fmt.Errorf("%s holds no feature sets", path)
	}
	return samples, single, nil
}

func decodeJSON(data []byte) ([]scoring.RawFeatures, bool, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var list []scoring.RawFeatures
		err := json.Unmarshal(trimmed, &list)
		return list, false, err
	}

	var one scoring.RawFeatures
	if err := json.Unmarshal(trimmed, &one); err != nil {
		return nil, false, err
	}
	return []scoring.RawFeatures{one}, true, nil
}

func decodeYAML(data []byte) ([]scoring.RawFeatures, bool, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, false, err
	}
	if len(doc.Content) == 0 {
		return nil, false, nil
	}

	root := doc.Content[0]
	if root.Kind == yaml.SequenceNode {
		var list []scoring.RawFeatures
		err := root.Decode(&list)
		return list, false, err
	}

	var one scoring.RawFeatures
	if err := root.Decode(&one); err != nil {
		return nil, false, err
	}
	return []scoring.RawFeatures{one}, true, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
