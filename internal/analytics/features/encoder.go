// Package features turns raw audit events into the numeric matrix the
// anomaly model trains on.
//
// Every configured categorical field that appears in the run becomes a
// "<field>_code" column holding the index of the value in the sorted list of
// distinct values seen in that run. The last column is the UTC hour of the
// event. Codes are local to a run: the same value may get a different code
// tomorrow, which is why the fitted vocabulary is written out alongside.
package features

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/Ashutosh6828/CloudSentry-AI/internal/ingest"
	"github.com/Ashutosh6828/CloudSentry-AI/internal/models"
)

const (
	// MissingValue replaces absent or null values before encoding.
	MissingValue = "missing"

	// CodeSuffix marks an encoded categorical column.
	CodeSuffix = "_code"

	// HourColumn is the hour-of-day feature.
	HourColumn = "hour"

	// LineColumn links a feature row back to its source line.
	LineColumn = "line"
)

// ErrMissingInput is shared with ingest so callers check a single sentinel.
var ErrMissingInput = ingest.ErrMissingInput

// Matrix is the encoded feature table.
type Matrix struct {
	Columns []string
	Rows    [][]float64
	Lines   []int // source line of each row
}

// Len returns the number of rows.
func (m *Matrix) Len() int {
	if m == nil {
		return 0
	}
	return len(m.Rows)
}

// Encoder encodes raw events with a fixed list of categorical fields.
type Encoder struct {
	fields []string
	logger *zap.Logger
}

// NewEncoder creates an encoder for the given dotted field paths.
func NewEncoder(fields []string, logger *zap.Logger) *Encoder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Encoder{
		fields: append([]string(nil), fields...),
		logger: logger,
	}
}

// Encode fits a vocabulary on events and returns the feature matrix.
// Empty input yields an empty matrix and vocabulary.
func (e *Encoder) Encode(events []models.RawEvent) (*Matrix, *Vocabulary) {
	vocab := &Vocabulary{}
	if len(events) == 0 {
		return &Matrix{}, vocab
	}

	// Resolve every configured field once per event.
	type column struct {
		field  string
		values []string
		codes  map[string]int
	}
	var cols []*column
	for _, field := range e.fields {
		values := make([]string, len(events))
		present := false
		for i, ev := range events {
			v, ok := lookup(ev.Fields, field)
			if ok {
				present = true
			}
			values[i] = canonical(v)
		}
		if !present {
			e.logger.Debug("categorical field absent from run", zap.String("field", field))
			continue
		}
		cols = append(cols, &column{field: field, values: values})
	}

	for _, c := range cols {
		distinct := make(map[string]struct{})
		for _, v := range c.values {
			distinct[v] = struct{}{}
		}
		sorted := make([]string, 0, len(distinct))
		for v := range distinct {
			sorted = append(sorted, v)
		}
		sort.Strings(sorted)

		c.codes = make(map[string]int, len(sorted))
		for i, v := range sorted {
			c.codes[v] = i
		}
		vocab.Columns = append(vocab.Columns, VocabularyColumn{
			Field:  c.field,
			Column: c.field + CodeSuffix,
			Values: sorted,
		})
	}

	m := &Matrix{
		Columns: make([]string, 0, len(cols)+1),
		Rows:    make([][]float64, len(events)),
		Lines:   make([]int, len(events)),
	}
	for _, c := range cols {
		m.Columns = append(m.Columns, c.field+CodeSuffix)
	}
	m.Columns = append(m.Columns, HourColumn)

	for i, ev := range events {
		row := make([]float64, 0, len(cols)+1)
		for _, c := range cols {
			row = append(row, float64(c.codes[c.values[i]]))
		}
		row = append(row, float64(ev.Hour()))
		m.Rows[i] = row
		m.Lines[i] = ev.Line
	}

	e.logger.Debug("encoded features",
		zap.Int("rows", len(m.Rows)),
		zap.Strings("columns", m.Columns),
	)
	return m, vocab
}

// lookup resolves a dotted path ("userIdentity.type") in a decoded record.
// A literal top-level key with the full dotted name takes precedence.
// ok reports whether the key exists, even if its value is null.
func lookup(fields map[string]interface{}, path string) (interface{}, bool) {
	if fields == nil {
		return nil, false
	}
	if v, ok := fields[path]; ok {
		return v, true
	}

	parts := strings.Split(path, ".")
	var cur interface{} = fields
	for _, p := range parts {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		cur, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// canonical returns the text a value is encoded by.
func canonical(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return MissingValue
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		if t {
			return "true"
		}
		return "false"
	case float64:
		return fmt.Sprintf("%v", t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(b)
	}
}
