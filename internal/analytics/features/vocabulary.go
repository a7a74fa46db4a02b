package features

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Vocabulary is the fitted categorical mapping of one run.
type Vocabulary struct {
	RunID       string             `yaml:"run_id"`
	GeneratedAt time.Time          `yaml:"generated_at"`
	Columns     []VocabularyColumn `yaml:"columns"`
}

// VocabularyColumn maps the values of one field to codes by position.
type VocabularyColumn struct {
	Field  string   `yaml:"field"`
	Column string   `yaml:"column"`
	Values []string `yaml:"values"`
}

// code returns the code of value in field, or -1 if unseen.
func (v *Vocabulary) code(field, value string) int {
	for _, c := range v.Columns {
		if c.Field != field {
			continue
		}
		for i, s := range c.Values {
			if s == value {
				return i
			}
		}
		return -1
	}
	return -1
}

// WriteVocabulary persists the vocabulary as YAML and returns the SHA-256 of
// the written bytes.
func WriteVocabulary(path string, vocab *Vocabulary) (string, error) {
	data, err := yaml.Marshal(vocab)
	if err != nil {
		return "", fmt.Errorf("marshal vocabulary: %w", err)
	}
	if err := writeFile(path, data); err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// ReadVocabulary loads a vocabulary written by WriteVocabulary.
func ReadVocabulary(path string) (*Vocabulary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read vocabulary: %w", err)
	}
	var vocab Vocabulary
	if err := yaml.Unmarshal(data, &vocab); err != nil {
		return nil, fmt.Errorf("parse vocabulary %s: %w", path, err)
	}
	return &vocab, nil
}

func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
