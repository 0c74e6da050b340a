package traffic

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// Record is one intercepted request as appended by the capture proxy.
type Record struct {
	SessionID   string          `json:"session_id"`
	Timestamp   Millis          `json:"timestamp"`
	Host        string          `json:"host"`
	Method      string          `json:"method"`
	URL         string          `json:"url"`
	Path        string          `json:"path"`
	Category    Category        `json:"classified_type,omitempty"`
	ActionGapMs int64           `json:"action_gap_ms"`
	Body        json.RawMessage `json:"body,omitempty"`

	// Seq is the record's position in the log, used to break timestamp ties.
	Seq int `json:"-"`
}

// Millis is a unix timestamp in milliseconds. It also decodes ISO-8601
// strings (with or without zone, local time assumed) and float seconds.
// Integer JSON numbers are always milliseconds.
type Millis int64

// Time converts to time.Time.
func (m Millis) Time() time.Time {
	return time.UnixMilli(int64(m))
}

// NowMillis returns the current time in unix milliseconds.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}

var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *Millis) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*m = 0
		return nil
	}

	if data[0] != '"' {
		// integers are milliseconds; fractional or exponent forms are
		// float seconds
		if !bytes.ContainsAny(data, ".eE") {
			n, err := strconv.ParseInt(string(data), 10, 64)
			if err != nil {
				return fmt.Errorf("invalid timestamp %s: %w", data, err)
			}
			*m = Millis(n)
			return nil
		}
		f, err := strconv.ParseFloat(string(data), 64)
		if err != nil {
			return fmt.Errorf("invalid timestamp %s: %w", data, err)
		}
		*m = Millis(math.Round(f * 1000))
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		*m = Millis(n)
		return nil
	}
	for _, layout := range isoLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			*m = Millis(t.UnixMilli())
			return nil
		}
	}
	return fmt.Errorf("invalid timestamp %q", s)
}
