package ingest

import (
	"bufio"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const sampleLog = `{"eventTime":"2024-03-01T03:15:00Z","eventName":"DeleteBucket","eventSource":"s3.amazonaws.com","awsRegion":"us-east-1","sourceIPAddress":"203.0.113.9","userIdentity":{"type":"IAMUser","userName":"alice","arn":"arn:aws:iam::123:user/alice","principalId":"AID1"},"managementEvent":true,"sessionCredentialFromConsole":"true"}

{"eventTime":"2024-03-01 14:05:09","eventName":"ListUsers","eventSource":"iam.amazonaws.com","errorCode":"AccessDenied"}
not json at all
{"eventName":"NoTime"}
{"eventTime":"yesterday","eventName":"BadTime"}
{"eventTime":"2024-03-01T23:59:59.123456Z","eventName":"CreateUser","eventSource":"signin.amazonaws.com","responseElements":{"user":{"userName":"mallory"}}}
`

func TestReadDecodesRecords(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)

	res, err := Read(strings.NewReader(sampleLog), zap.New(core))
	require.NoError(t, err)
	require.Len(t, res.Events, 3)
	assert.Equal(t, 3, res.Skipped)

	first := res.Events[0]
	assert.Equal(t, 1, first.Line)
	assert.Equal(t, "DeleteBucket", first.EventName)
	assert.Equal(t, "s3.amazonaws.com", first.EventSource)
	assert.Equal(t, "IAMUser", first.UserIdentityType)
	assert.Equal(t, "alice", first.UserIdentityUserName)
	assert.Equal(t, "arn:aws:iam::123:user/alice", first.UserIdentityARN)
	assert.Equal(t, 3, first.Hour())
	require.NotNil(t, first.ManagementEvent)
	assert.True(t, *first.ManagementEvent)
	require.NotNil(t, first.SessionCredentialFromConsole)
	assert.True(t, *first.SessionCredentialFromConsole)

	second := res.Events[1]
	assert.Equal(t, 3, second.Line, "blank lines still count toward line numbers")
	assert.Equal(t, time.Date(2024, 3, 1, 14, 5, 9, 0, time.UTC), second.EventTime)
	assert.Equal(t, "AccessDenied", second.ErrorCode)
	assert.Nil(t, second.ManagementEvent)

	third := res.Events[2]
	assert.Equal(t, 7, third.Line)
	assert.Equal(t, 23, third.Hour())
	assert.NotNil(t, third.ResponseElements)

	// one warning per skipped line, carrying the line number
	warnings := logs.FilterMessage("skipping malformed record").All()
	require.Len(t, warnings, 3)
	assert.Equal(t, int64(4), warnings[0].ContextMap()["line"])
	assert.Equal(t, int64(5), warnings[1].ContextMap()["line"])
	assert.Equal(t, int64(6), warnings[2].ContextMap()["line"])
}

func TestReadFileMissingInput(t *testing.T) {
	dir := t.TempDir()

	_, err := ReadFile(filepath.Join(dir, "absent.jsonl"), zap.NewNop())
	assert.True(t, errors.Is(err, ErrMissingInput))

	empty := filepath.Join(dir, "empty.jsonl")
	require.NoError(t, os.WriteFile(empty, nil, 0644))
	_, err = ReadFile(empty, zap.NewNop())
	assert.True(t, errors.Is(err, ErrMissingInput))
}

func TestReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "raw_logs.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(sampleLog), 0644))

	res, err := ReadFile(path, zap.NewNop())
	require.NoError(t, err)
	assert.Len(t, res.Events, 3)
}

func TestReadLargeRecord(t *testing.T) {
	big := strings.Repeat("x", 200*1024)
	line := `{"eventTime":"2024-03-01T10:00:00Z","eventName":"PutObject","requestParameters":{"blob":"` + big + `"}}`

	res, err := Read(strings.NewReader(line), zap.NewNop())
	require.NoError(t, err)
	require.Len(t, res.Events, 1)
	assert.Equal(t, "PutObject", res.Events[0].EventName)
}

func TestReadSkipsOversizedRecord(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	good := `{"eventTime":"2024-03-01T10:00:00Z","eventName":"GetObject"}`
	oversized := `{"eventTime":"2024-03-01T10:00:00Z","blob":"` + strings.Repeat("x", MaxLineSize) + `"}`
	input := good + "\n" + oversized + "\n" + good

	res, err := Read(strings.NewReader(input), zap.New(core))
	require.NoError(t, err)
	require.Len(t, res.Events, 2)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 1, res.Events[0].Line)
	assert.Equal(t, 3, res.Events[1].Line)

	warnings := logs.FilterMessage("skipping oversized record").All()
	require.Len(t, warnings, 1)
	assert.Equal(t, int64(2), warnings[0].ContextMap()["line"])
}

func TestReadLineAtLimit(t *testing.T) {
	br := bufio.NewReaderSize(strings.NewReader("abcd\nabcde\n\nxyz"), 16)

	data, tooLong, err := readLine(br, 4)
	require.NoError(t, err)
	assert.False(t, tooLong)
	assert.Equal(t, "abcd", string(data))

	data, tooLong, err = readLine(br, 4)
	require.NoError(t, err)
	assert.True(t, tooLong)
	assert.Nil(t, data)

	data, tooLong, err = readLine(br, 4)
	require.NoError(t, err)
	assert.False(t, tooLong)
	assert.Empty(t, data)

	data, _, err = readLine(br, 4)
	require.NoError(t, err)
	assert.Equal(t, "xyz", string(data))

	_, _, err = readLine(br, 4)
	assert.ErrorIs(t, err, io.EOF)
}

func TestReadFileNilLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "raw_logs.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(sampleLog), 0644))

	res, err := ReadFile(path, nil)
	require.NoError(t, err)
	assert.Len(t, res.Events, 3)
}

func TestEventHourIsUTC(t *testing.T) {
	res, err := Read(strings.NewReader(`{"eventTime":"2024-03-01T03:30:00+05:00","eventName":"ListUsers"}`), nil)
	require.NoError(t, err)
	require.Len(t, res.Events, 1)
	assert.Equal(t, 22, res.Events[0].Hour(), "offsets are normalized before the hour is taken")
}

func TestParseEventTime(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
		ok   bool
	}{
		{"2024-01-02T03:04:05Z", time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), true},
		{"2024-01-02T03:04:05+02:00", time.Date(2024, 1, 2, 1, 4, 5, 0, time.UTC), true},
		{"2024-01-02T03:04:05.5Z", time.Date(2024, 1, 2, 3, 4, 5, 500000000, time.UTC), true},
		{"2024-01-02 03:04:05", time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), true},
		{"2024-01-02T03:04:05", time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), true},
		{"01/02/2024", time.Time{}, false},
		{"", time.Time{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseEventTime(tt.in)
			if !tt.ok {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %v", got)
			assert.Equal(t, time.UTC, got.Location())
		})
	}
}
