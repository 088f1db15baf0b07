package stats

import (
	"errors"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// ErrInvalidSnapshot is returned when a stats document is not a JSON object
var ErrInvalidSnapshot = errors.New("stats document is not a JSON object")

// Snapshot is one point-in-time getStats capture for a single peer connection.
// It maps report ids to report objects and is never mutated after parsing.
type Snapshot struct {
	// Timestamp is the capture time in milliseconds since the epoch, 0 if unknown
	Timestamp int64

	reports map[string]Report
	ids     []string
}

// ParseSnapshot builds a Snapshot from a getStats JSON object. Top-level members
// that are not objects (for example a compressed dump's "timestamp") are ignored.
func ParseSnapshot(data []byte, timestamp int64) (*Snapshot, error) {
	if !gjson.ValidBytes(data) {
		return nil, ErrInvalidSnapshot
	}

	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return nil, ErrInvalidSnapshot
	}

	s := &Snapshot{
		Timestamp: timestamp,
		reports:   make(map[string]Report),
	}

	root.ForEach(func(key, value gjson.Result) bool {
		if !value.IsObject() {
			return true
		}
		id := key.String()
		if _, dup := s.reports[id]; !dup {
			s.ids = append(s.ids, id)
		}
		s.reports[id] = Report{ID: id, data: value}
		return true
	})
	sort.Strings(s.ids)

	return s, nil
}

// Len returns the number of reports in the snapshot
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.ids)
}

// Report returns the report with the given id
func (s *Snapshot) Report(id string) (Report, bool) {
	if s == nil || id == "" {
		return Report{}, false
	}
	r, ok := s.reports[id]
	return r, ok
}

// Reports returns every report ordered by id
func (s *Snapshot) Reports() []Report {
	if s == nil {
		return nil
	}
	out := make([]Report, 0, len(s.ids))
	for _, id := range s.ids {
		out = append(out, s.reports[id])
	}
	return out
}

// ReportsOfType returns the reports whose type is one of types, ordered by id
func (s *Snapshot) ReportsOfType(types ...string) []Report {
	if s == nil {
		return nil
	}
	var out []Report
	for _, id := range s.ids {
		r := s.reports[id]
		t := r.Type()
		for _, want := range types {
			if t == want {
				out = append(out, r)
				break
			}
		}
	}
	return out
}

// Report is a single stats object inside a Snapshot.
// Accessors accept JSON numbers as well as the numeric strings of the legacy format;
// strings holding NaN or an infinity read as missing.
type Report struct {
	ID   string
	data gjson.Result
}

// Type returns the report's "type" member
func (r Report) Type() string {
	return r.data.Get("type").String()
}

// Has reports whether the member exists
func (r Report) Has(name string) bool {
	return r.data.Get(name).Exists()
}

// Keys returns the report's member names in document order
func (r Report) Keys() []string {
	var keys []string
	r.data.ForEach(func(key, _ gjson.Result) bool {
		keys = append(keys, key.String())
		return true
	})
	return keys
}

// Str returns a string member
func (r Report) Str(name string) (string, bool) {
	v := r.data.Get(name)
	if !v.Exists() || v.Type == gjson.Null {
		return "", false
	}
	return v.String(), true
}

// Float returns a numeric member
func (r Report) Float(name string) (float64, bool) {
	v := r.data.Get(name)
	switch v.Type {
	case gjson.Number:
		return v.Num, true
	case gjson.String:
		return parseFinite(v.Str)
	default:
		return 0, false
	}
}

// parseFinite parses a numeric string, rejecting NaN and infinities
func parseFinite(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// Int returns an integral member. Fractional values are truncated.
func (r Report) Int(name string) (int64, bool) {
	v := r.data.Get(name)
	switch v.Type {
	case gjson.Number:
		return v.Int(), true
	case gjson.String:
		s := strings.TrimSpace(v.Str)
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, true
		}
		f, ok := parseFinite(s)
		if !ok || f > math.MaxInt64 || f < math.MinInt64 {
			return 0, false
		}
		return int64(f), true
	default:
		return 0, false
	}
}

// Bool returns a boolean member; "true"/"false" strings are accepted
func (r Report) Bool(name string) (bool, bool) {
	v := r.data.Get(name)
	switch v.Type {
	case gjson.True:
		return true, true
	case gjson.False:
		return false, true
	case gjson.String:
		b, err := strconv.ParseBool(strings.ToLower(strings.TrimSpace(v.Str)))
		if err != nil {
			return false, false
		}
		return b, true
	default:
		return false, false
	}
}

// flag is Bool with a missing member treated as false
func (r Report) flag(name string) bool {
	b, _ := r.Bool(name)
	return b
}
