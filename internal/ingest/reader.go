// Package ingest reads raw audit events from newline-delimited JSON.
package ingest

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Ashutosh6828/CloudSentry-AI/internal/models"
)

// MaxLineSize caps a single NDJSON record. Longer records are skipped.
// CloudTrail records with large request/response payloads routinely exceed
// bufio's 64 KiB default.
const MaxLineSize = 16 * 1024 * 1024

// ErrMissingInput is returned when the input file is absent or empty.
var ErrMissingInput = errors.New("input missing or empty")

// timeLayouts are the accepted eventTime formats. Zone-less layouts are UTC.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// Result holds the decoded events in file order.
type Result struct {
	Events  []models.RawEvent
	Skipped int
}

// ReadFile reads every well-formed record from path.
func ReadFile(path string, logger *zap.Logger) (*Result, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", path, ErrMissingInput)
		}
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.Size() == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrMissingInput)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	return Read(f, logger.With(zap.String("path", path)))
}

// Read decodes NDJSON records from r. Blank lines are ignored; malformed
// and oversized records are logged and skipped.
func Read(r io.Reader, logger *zap.Logger) (*Result, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	br := bufio.NewReaderSize(r, 64*1024)
	res := &Result{}
	line := 0
	for {
		data, tooLong, err := readLine(br, MaxLineSize)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read line %d: %w", line+1, err)
		}
		line++

		if tooLong {
			logger.Warn("skipping oversized record",
				zap.Int("line", line),
				zap.Int("max_bytes", MaxLineSize),
			)
			res.Skipped++
			continue
		}
		raw := bytes.TrimSpace(data)
		if len(raw) == 0 {
			continue
		}

		ev, err := decodeEvent(raw)
		if err != nil {
			logger.Warn("skipping malformed record",
				zap.Int("line", line),
				zap.String("reason", err.Error()),
			)
			res.Skipped++
			continue
		}
		ev.Line = line
		res.Events = append(res.Events, ev)
	}

	logger.Debug("ingested records",
		zap.Int("records", len(res.Events)),
		zap.Int("skipped", res.Skipped),
	)
	return res, nil
}

// readLine returns the next line without its terminator. A line longer than
// limit is consumed to its end and reported with tooLong set and no data.
func readLine(br *bufio.Reader, limit int) (data []byte, tooLong bool, err error) {
	for {
		chunk, isPrefix, err := br.ReadLine()
		if err != nil {
			if err == io.EOF && (data != nil || tooLong) {
				return data, tooLong, nil
			}
			return nil, false, err
		}
		if !tooLong {
			if len(data)+len(chunk) > limit {
				tooLong = true
				data = nil
			} else {
				data = append(data, chunk...)
			}
		}
		if !isPrefix {
			if data == nil && !tooLong {
				data = []byte{}
			}
			return data, tooLong, nil
		}
	}
}

func decodeEvent(raw []byte) (models.RawEvent, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var fields map[string]interface{}
	if err := dec.Decode(&fields); err != nil {
		return models.RawEvent{}, fmt.Errorf("invalid json: %w", err)
	}
	if fields == nil {
		return models.RawEvent{}, errors.New("record is not a json object")
	}

	ts, ok := fields["eventTime"].(string)
	if !ok {
		return models.RawEvent{}, errors.New("missing eventTime")
	}
	eventTime, err := ParseEventTime(ts)
	if err != nil {
		return models.RawEvent{}, err
	}

	ev := models.RawEvent{
		EventTime:          eventTime,
		EventName:          stringAt(fields, "eventName"),
		EventSource:        stringAt(fields, "eventSource"),
		AWSRegion:          stringAt(fields, "awsRegion"),
		SourceIPAddress:    stringAt(fields, "sourceIPAddress"),
		UserAgent:          stringAt(fields, "userAgent"),
		RecipientAccountID: stringAt(fields, "recipientAccountId"),
		VPCEndpointID:      stringAt(fields, "vpcEndpointId"),
		ErrorCode:          stringAt(fields, "errorCode"),
		ErrorMessage:       stringAt(fields, "errorMessage"),
		RequestID:          stringAt(fields, "requestID"),
		EventID:            stringAt(fields, "eventID"),
		ResponseElements:   fields["responseElements"],
		Fields:             fields,
	}
	if ident, ok := fields["userIdentity"].(map[string]interface{}); ok {
		ev.UserIdentityType = stringAt(ident, "type")
		ev.UserIdentityUserName = stringAt(ident, "userName")
		ev.UserIdentityARN = stringAt(ident, "arn")
		ev.UserIdentityPrincipalID = stringAt(ident, "principalId")
	}
	ev.ManagementEvent = boolAt(fields, "managementEvent")
	ev.SessionCredentialFromConsole = boolAt(fields, "sessionCredentialFromConsole")

	return ev, nil
}

// ParseEventTime parses an eventTime value in any accepted layout.
func ParseEventTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable eventTime %q", s)
}

func stringAt(m map[string]interface{}, key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

// boolAt accepts JSON booleans and the string forms CloudTrail sometimes emits.
func boolAt(m map[string]interface{}, key string) *bool {
	switch v := m[key].(type) {
	case bool:
		return &v
	case string:
		if b, err := strconv.ParseBool(v); err == nil {
			return &b
		}
	}
	return nil
}
