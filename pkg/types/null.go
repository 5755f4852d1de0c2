package types

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// NullFloat is a numeric field that may be absent. The zero value is absent.
type NullFloat struct {
	Value float64
	Valid bool
}

// Float returns a present NullFloat. NaN and ±Inf are coerced to absent.
func Float(v float64) NullFloat {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return NullFloat{}
	}
	return NullFloat{Value: v, Valid: true}
}

// FloatPtr converts a nullable pointer (as scanned from a database) to a NullFloat.
func FloatPtr(p *float64) NullFloat {
	if p == nil {
		return NullFloat{}
	}
	return Float(*p)
}

// ParseFloat coerces free text to a NullFloat. Blank or unparseable text is absent.
func ParseFloat(s string) NullFloat {
	s = strings.TrimSpace(s)
	if s == "" {
		return NullFloat{}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return NullFloat{}
	}
	return Float(v)
}

// Or returns the value when present, def otherwise.
func (n NullFloat) Or(def float64) float64 {
	if !n.Valid {
		return def
	}
	return n.Value
}

func (n NullFloat) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.Value)
}

// UnmarshalJSON accepts a number, a numeric string, or null. Anything else
// decodes to absent rather than failing the whole record.
func (n *NullFloat) UnmarshalJSON(b []byte) error {
	*n = NullFloat{}
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err == nil {
		*n = Float(v)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*n = ParseFloat(s)
	}
	return nil
}

// NullTime is a timestamp that may be absent. The zero value is absent.
type NullTime struct {
	Time  time.Time
	Valid bool
}

// Time returns a present NullTime. The zero time.Time is treated as absent.
func Time(t time.Time) NullTime {
	if t.IsZero() {
		return NullTime{}
	}
	return NullTime{Time: t, Valid: true}
}

// TimePtr converts a nullable pointer (as scanned from a database) to a NullTime.
func TimePtr(p *time.Time) NullTime {
	if p == nil {
		return NullTime{}
	}
	return Time(*p)
}

// timeLayouts are tried in order by ParseTime. The last two are the layouts
// found in exported waste logs ("14-Feb-2025 18:30").
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"02-Jan-2006 15:04",
	"02-Jan-2006",
	"01/02/2006 15:04",
	"01/02/2006",
}

// ParseTime coerces free text to a NullTime. Blank or unparseable text is absent.
func ParseTime(s string) NullTime {
	s = strings.TrimSpace(s)
	if s == "" {
		return NullTime{}
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Time(t)
		}
	}
	return NullTime{}
}

// Day returns the timestamp truncated to midnight in its own location.
func (n NullTime) Day() time.Time {
	y, m, d := n.Time.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, n.Time.Location())
}

func (n NullTime) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.Time.Format(time.RFC3339))
}

// UnmarshalJSON accepts any layout understood by ParseTime, or null.
func (n *NullTime) UnmarshalJSON(b []byte) error {
	*n = NullTime{}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return nil
	}
	*n = ParseTime(s)
	return nil
}
