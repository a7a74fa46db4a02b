package features

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Ashutosh6828/CloudSentry-AI/internal/models"
)

func event(t *testing.T, line int, ts string, raw string) models.RawEvent {
	t.Helper()
	var fields map[string]interface{}
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	require.NoError(t, dec.Decode(&fields))

	when, err := time.Parse(time.RFC3339, ts)
	require.NoError(t, err)
	return models.RawEvent{Line: line, EventTime: when, Fields: fields}
}

func TestEncodeSortedCodes(t *testing.T) {
	events := []models.RawEvent{
		event(t, 1, "2024-03-01T03:00:00Z", `{"eventName":"PutObject","eventSource":"s3.amazonaws.com","userIdentity":{"type":"IAMUser"}}`),
		event(t, 2, "2024-03-01T14:00:00Z", `{"eventName":"DeleteBucket","eventSource":"s3.amazonaws.com","userIdentity":{"type":"Root"}}`),
		event(t, 4, "2024-03-01T23:30:00Z", `{"eventName":"ListUsers","eventSource":"iam.amazonaws.com"}`),
	}

	enc := NewEncoder([]string{"eventName", "eventSource", "awsRegion", "userIdentity.type"}, zaptest.NewLogger(t))
	m, vocab := enc.Encode(events)

	// awsRegion is absent from every record, so it produces no column
	assert.Equal(t, []string{"eventName_code", "eventSource_code", "userIdentity.type_code", "hour"}, m.Columns)
	assert.Equal(t, []int{1, 2, 4}, m.Lines)

	// eventName sorted: DeleteBucket=0, ListUsers=1, PutObject=2
	// eventSource sorted: iam=0, s3=1
	// userIdentity.type sorted: IAMUser=0, Root=1, missing=2
	assert.Equal(t, [][]float64{
		{2, 1, 0, 3},
		{0, 1, 1, 14},
		{1, 0, 2, 23},
	}, m.Rows)

	require.Len(t, vocab.Columns, 3)
	assert.Equal(t, "userIdentity.type_code", vocab.Columns[2].Column)
	assert.Equal(t, []string{"IAMUser", "Root", MissingValue}, vocab.Columns[2].Values)
	assert.Equal(t, 2, vocab.code("userIdentity.type", MissingValue))
	assert.Equal(t, -1, vocab.code("userIdentity.type", "AssumedRole"))
	assert.Equal(t, -1, vocab.code("awsRegion", "us-east-1"))
}

func TestEncodeNullAndNonStringValues(t *testing.T) {
	events := []models.RawEvent{
		event(t, 1, "2024-03-01T01:00:00Z", `{"errorCode":null,"readOnly":true,"requestParameters":{"b":2,"a":1}}`),
		event(t, 2, "2024-03-01T02:00:00Z", `{"errorCode":"AccessDenied","readOnly":false,"requestParameters":[1,2]}`),
	}

	m, vocab := NewEncoder([]string{"errorCode", "readOnly", "requestParameters"}, nil).Encode(events)
	require.Len(t, m.Rows, 2)

	assert.Equal(t, []string{"AccessDenied", MissingValue}, vocab.Columns[0].Values)
	assert.Equal(t, []string{"false", "true"}, vocab.Columns[1].Values)
	assert.Equal(t, []string{`[1,2]`, `{"a":1,"b":2}`}, vocab.Columns[2].Values)
}

func TestEncodeIsDeterministic(t *testing.T) {
	events := []models.RawEvent{
		event(t, 1, "2024-03-01T01:00:00Z", `{"eventName":"B"}`),
		event(t, 2, "2024-03-01T02:00:00Z", `{"eventName":"A"}`),
		event(t, 3, "2024-03-01T03:00:00Z", `{"eventName":"C"}`),
	}
	enc := NewEncoder([]string{"eventName"}, nil)
	m1, _ := enc.Encode(events)
	m2, _ := enc.Encode(events)
	assert.Equal(t, m1, m2)
}

func TestEncodeEmpty(t *testing.T) {
	m, vocab := NewEncoder([]string{"eventName"}, nil).Encode(nil)
	assert.Equal(t, 0, m.Len())
	assert.Empty(t, vocab.Columns)
}

func TestTableRoundTrip(t *testing.T) {
	m := &Matrix{
		Columns: []string{"eventName_code", "userIdentity.type_code", "hour"},
		Rows:    [][]float64{{2, 0, 3}, {0, 1, 14}},
		Lines:   []int{1, 3},
	}
	path := filepath.Join(t.TempDir(), "out", "features.csv")
	require.NoError(t, WriteTable(path, m))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "line,eventName_code,userIdentity.type_code,hour\n1,2,0,3\n3,0,1,14\n", string(data))

	got, err := ReadTable(path)
	require.NoError(t, err)
	assert.Equal(t, m, got)
}

func TestReadTableSelectsFeatureColumns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "features.csv")
	content := "line,eventTime,eventName,eventName_code,hour\n1,2024-03-01T03:00:00Z,DeleteBucket,0,3\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	m, err := ReadTable(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"eventName_code", "hour"}, m.Columns)
	assert.Equal(t, [][]float64{{0, 3}}, m.Rows)
}

func TestReadTableErrors(t *testing.T) {
	tests := []struct {
		name        string
		content     *string
		wantMissing bool
		wantReason  string
	}{
		{name: "absent file", content: nil, wantMissing: true},
		{name: "empty file", content: strPtr(""), wantMissing: true},
		{name: "header only", content: strPtr("line,eventName_code,hour\n"), wantMissing: true},
		{name: "non-numeric cell", content: strPtr("line,eventName_code,hour\n1,abc,3\n"), wantReason: "non-numeric"},
		{name: "NaN cell", content: strPtr("line,eventName_code,hour\n1,NaN,3\n"), wantReason: "non-numeric"},
		{name: "missing hour", content: strPtr("line,eventName_code\n1,2\n"), wantReason: "missing hour column"},
		{name: "missing line", content: strPtr("eventName_code,hour\n2,3\n"), wantReason: "missing line column"},
		{name: "ragged row", content: strPtr("line,eventName_code,hour\n1,2\n"), wantReason: "expected 3 fields"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "features.csv")
			if tt.content != nil {
				require.NoError(t, os.WriteFile(path, []byte(*tt.content), 0644))
			}

			_, err := ReadTable(path)
			require.Error(t, err)
			if tt.wantMissing {
				assert.True(t, errors.Is(err, ErrMissingInput), "got %v", err)
				return
			}
			var te *TableError
			require.True(t, errors.As(err, &te), "got %T: %v", err, err)
			assert.Contains(t, te.Error(), tt.wantReason)
		})
	}
}

func TestVocabularyRoundTrip(t *testing.T) {
	vocab := &Vocabulary{
		RunID:       "run-1",
		GeneratedAt: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		Columns: []VocabularyColumn{
			{Field: "eventName", Column: "eventName_code", Values: []string{"A", "B"}},
		},
	}
	path := filepath.Join(t.TempDir(), "vocab.yaml")

	digest, err := WriteVocabulary(path, vocab)
	require.NoError(t, err)
	assert.Len(t, digest, 64)

	got, err := ReadVocabulary(path)
	require.NoError(t, err)
	assert.Equal(t, vocab, got)

	// same content, same digest
	again, err := WriteVocabulary(path, vocab)
	require.NoError(t, err)
	assert.Equal(t, digest, again)
}

func strPtr(s string) *string { return &s }
