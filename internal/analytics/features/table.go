package features

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

// TableError reports a feature table that cannot be used for training.
type TableError struct {
	Row    int // 1-based data row, 0 for header problems
	Column string
	Reason string
}

func (e *TableError) Error() string {
	switch {
	case e.Row > 0 && e.Column != "":
		return fmt.Sprintf("feature table row %d column %s: %s", e.Row, e.Column, e.Reason)
	case e.Row > 0:
		return fmt.Sprintf("feature table row %d: %s", e.Row, e.Reason)
	default:
		return fmt.Sprintf("feature table: %s", e.Reason)
	}
}

// WriteTable writes m as CSV: the line column followed by the feature columns.
func WriteTable(path string, m *Matrix) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := append([]string{LineColumn}, m.Columns...)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	record := make([]string, len(header))
	for i, row := range m.Rows {
		record = record[:0]
		record = append(record, strconv.Itoa(m.Lines[i]))
		for _, v := range row {
			record = append(record, strconv.FormatFloat(v, 'f', -1, 64))
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush feature table: %w", err)
	}

	return writeFile(path, buf.Bytes())
}

// ReadTable loads a feature table. Feature columns are every column whose
// name contains "_code", plus "hour", in header order. Other columns are
// ignored except "line".
func ReadTable(path string) (*Matrix, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", path, ErrMissingInput)
		}
		return nil, fmt.Errorf("open feature table: %w", err)
	}
	defer f.Close()

	m, err := readTable(f)
	if err != nil {
		if errors.Is(err, ErrMissingInput) {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return nil, err
	}
	return m, nil
}

func readTable(r io.Reader) (*Matrix, error) {
	cr := csv.NewReader(r)
	// Width is checked below so the error carries the row number.
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, ErrMissingInput
	}
	if err != nil {
		return nil, &TableError{Reason: fmt.Sprintf("malformed header: %v", err)}
	}

	// A header with no data rows is an empty table, whatever its columns.
	rec, err := cr.Read()
	if err == io.EOF {
		return nil, ErrMissingInput
	}

	lineIdx := -1
	hasHour := false
	var featIdx []int
	m := &Matrix{}
	for i, name := range header {
		name = strings.TrimSpace(name)
		switch {
		case name == LineColumn:
			lineIdx = i
		case strings.Contains(name, CodeSuffix) || name == HourColumn:
			featIdx = append(featIdx, i)
			m.Columns = append(m.Columns, name)
			if name == HourColumn {
				hasHour = true
			}
		}
	}
	if !hasHour {
		return nil, &TableError{Column: HourColumn, Reason: "missing hour column"}
	}
	if lineIdx < 0 {
		return nil, &TableError{Column: LineColumn, Reason: "missing line column"}
	}

	row := 0
	for ; err != io.EOF; rec, err = cr.Read() {
		row++
		if err != nil {
			return nil, &TableError{Row: row, Reason: fmt.Sprintf("malformed csv: %v", err)}
		}
		if len(rec) != len(header) {
			return nil, &TableError{Row: row, Reason: fmt.Sprintf("expected %d fields, got %d", len(header), len(rec))}
		}

		line, err := strconv.Atoi(strings.TrimSpace(rec[lineIdx]))
		if err != nil {
			return nil, &TableError{Row: row, Column: LineColumn, Reason: fmt.Sprintf("invalid line number %q", rec[lineIdx])}
		}

		values := make([]float64, len(featIdx))
		for j, idx := range featIdx {
			v, err := strconv.ParseFloat(strings.TrimSpace(rec[idx]), 64)
			if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, &TableError{Row: row, Column: header[idx], Reason: fmt.Sprintf("non-numeric value %q", rec[idx])}
			}
			values[j] = v
		}
		m.Rows = append(m.Rows, values)
		m.Lines = append(m.Lines, line)
	}

	if len(m.Rows) == 0 {
		return nil, ErrMissingInput
	}
	return m, nil
}
