package ml

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ArtifactVersion is the schema version written by Save.
const ArtifactVersion = 1

// artifact is the persisted form of a trained forest. It is written for
// audit and inspection; runs always retrain instead of loading it.
type artifact struct {
	Version       int              `json:"version"`
	Algorithm     string           `json:"algorithm"`
	TrainedAt     time.Time        `json:"trained_at"`
	Columns       []string         `json:"columns"`
	Rows          int              `json:"training_rows"`
	NumTrees      int              `json:"num_trees"`
	SampleSize    int              `json:"sample_size"`
	HeightLimit   int              `json:"height_limit"`
	Contamination float64          `json:"contamination"`
	Seed          int64            `json:"seed"`
	Offset        float64          `json:"offset"`
	Trees         []*IsolationTree `json:"trees"`
}

// Summary describes a trained or loaded model.
type Summary struct {
	Version       int
	TrainedAt     time.Time
	Columns       []string
	Rows          int
	NumTrees      int
	SampleSize    int
	HeightLimit   int
	Contamination float64
	Seed          int64
	Offset        float64
}

func (f *IsolationForest) artifact() *artifact {
	return &artifact{
		Version:       ArtifactVersion,
		Algorithm:     "isolation_forest",
		TrainedAt:     f.trainedAt,
		Columns:       f.columns,
		Rows:          f.rows,
		NumTrees:      len(f.trees),
		SampleSize:    f.sampleSize,
		HeightLimit:   f.maxDepth,
		Contamination: f.opts.Contamination,
		Seed:          f.opts.Seed,
		Offset:        f.offset,
		Trees:         f.trees,
	}
}

// MarshalJSON encodes the trained forest as an artifact.
func (f *IsolationForest) MarshalJSON() ([]byte, error) {
	if len(f.trees) == 0 {
		return nil, fmt.Errorf("model not trained")
	}
	return json.Marshal(f.artifact())
}

// Save writes the model artifact to path, replacing any previous one.
func (f *IsolationForest) Save(path string) error {
	data, err := f.MarshalJSON()
	if err != nil {
		return fmt.Errorf("marshal model: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create model directory: %w", err)
		}
	}
	// Write to a sibling temp file first so a crash never leaves half an artifact.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write model: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace model: %w", err)
	}
	return nil
}

// Digest returns the hex SHA-256 of the artifact bytes Save writes.
func (f *IsolationForest) Digest() (string, error) {
	data, err := f.MarshalJSON()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Summary returns the model's metadata.
func (f *IsolationForest) Summary() Summary {
	a := f.artifact()
	return Summary{
		Version:       a.Version,
		TrainedAt:     a.TrainedAt,
		Columns:       append([]string(nil), a.Columns...),
		Rows:          a.Rows,
		NumTrees:      a.NumTrees,
		SampleSize:    a.SampleSize,
		HeightLimit:   a.HeightLimit,
		Contamination: a.Contamination,
		Seed:          a.Seed,
		Offset:        a.Offset,
	}
}

// Load reads and validates a model artifact. The pipeline never scores with
// a loaded model; this exists for inspection.
func Load(path string) (*IsolationForest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model: %w", err)
	}

	var a artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("parse model %s: %w", path, err)
	}
	if a.Version != ArtifactVersion {
		return nil, fmt.Errorf("unsupported model version %d (want %d)", a.Version, ArtifactVersion)
	}
	if len(a.Columns) == 0 {
		return nil, fmt.Errorf("model has no feature columns")
	}
	if len(a.Trees) == 0 {
		return nil, fmt.Errorf("model has no trees")
	}
	for i, tree := range a.Trees {
		if err := validateTree(tree, len(a.Columns)); err != nil {
			return nil, fmt.Errorf("tree %d: %w", i, err)
		}
	}

	return &IsolationForest{
		trees: a.Trees,
		opts: Options{
			NumTrees:      a.NumTrees,
			SampleSize:    a.SampleSize,
			Contamination: a.Contamination,
			Seed:          a.Seed,
		},
		sampleSize: a.SampleSize,
		maxDepth:   a.HeightLimit,
		columns:    a.Columns,
		offset:     a.Offset,
		rows:       a.Rows,
		trainedAt:  a.TrainedAt,
	}, nil
}

func validateTree(t *IsolationTree, numFeatures int) error {
	if t == nil {
		return fmt.Errorf("missing node")
	}
	if t.IsLeaf {
		return nil
	}
	if t.SplitFeature < 0 || t.SplitFeature >= numFeatures {
		return fmt.Errorf("split feature %d out of range", t.SplitFeature)
	}
	if err := validateTree(t.Left, numFeatures); err != nil {
		return err
	}
	return validateTree(t.Right, numFeatures)
}
