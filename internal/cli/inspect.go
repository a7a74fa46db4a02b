package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Ashutosh6828/CloudSentry-AI/internal/analytics/features"
	"github.com/Ashutosh6828/CloudSentry-AI/internal/analytics/ml"
)

type modelReport struct {
	Path          string    `yaml:"path"`
	Digest        string    `yaml:"digest"`
	Version       int       `yaml:"version"`
	TrainedAt     time.Time `yaml:"trained_at"`
	Rows          int       `yaml:"rows"`
	Columns       []string  `yaml:"columns"`
	NumTrees      int       `yaml:"num_trees"`
	SampleSize    int       `yaml:"sample_size"`
	HeightLimit   int       `yaml:"height_limit"`
	Contamination float64   `yaml:"contamination"`
	Seed          int64     `yaml:"seed"`
	Offset        float64   `yaml:"offset"`

	Vocabulary *vocabularyReport `yaml:"vocabulary,omitempty"`
}

type vocabularyReport struct {
	Path        string         `yaml:"path"`
	RunID       string         `yaml:"run_id"`
	GeneratedAt time.Time      `yaml:"generated_at"`
	Values      map[string]int `yaml:"distinct_values"`
}

// inspectVocabulary summarizes the vocabulary next to the model. An absent
// file is not an error.
func inspectVocabulary(path string) (*vocabularyReport, error) {
	vocab, err := features.ReadVocabulary(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r := &vocabularyReport{
		Path:        path,
		RunID:       vocab.RunID,
		GeneratedAt: vocab.GeneratedAt,
		Values:      make(map[string]int, len(vocab.Columns)),
	}
	for _, c := range vocab.Columns {
		r.Values[c.Column] = len(c.Values)
	}
	return r, nil
}

// newInspectModelCmd prints the metadata of the last saved model and its
// vocabulary. The model is only read here; runs always retrain.
func newInspectModelCmd(a *app) *cobra.Command {
	var path, vocabPath string
	cmd := &cobra.Command{
		Use:   "inspect-model",
		Short: "Show the metadata of the saved model artifact",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if path == "" {
				path = a.cfg.Paths.Model
			}
			if vocabPath == "" {
				vocabPath = a.cfg.Paths.Vocabulary
			}
			forest, err := ml.Load(path)
			if err != nil {
				return fmt.Errorf("inspect-model: %w", err)
			}
			digest, err := forest.Digest()
			if err != nil {
				return fmt.Errorf("inspect-model: %w", err)
			}

			vocab, err := inspectVocabulary(vocabPath)
			if err != nil {
				return fmt.Errorf("inspect-model: %w", err)
			}

			s := forest.Summary()
			data, err := yaml.Marshal(modelReport{
				Path:          path,
				Digest:        digest,
				Version:       s.Version,
				TrainedAt:     s.TrainedAt,
				Rows:          s.Rows,
				Columns:       s.Columns,
				NumTrees:      s.NumTrees,
				SampleSize:    s.SampleSize,
				HeightLimit:   s.HeightLimit,
				Contamination: s.Contamination,
				Seed:          s.Seed,
				Offset:        s.Offset,
				Vocabulary:    vocab,
			})
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	cmd.Flags().StringVar(&path, "path", "", "model artifact to inspect (defaults to paths.model)")
	cmd.Flags().StringVar(&vocabPath, "vocabulary", "", "vocabulary artifact to summarize (defaults to paths.vocabulary)")
	return cmd
}
