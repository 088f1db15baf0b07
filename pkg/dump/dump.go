package dump

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"

	jsoniter "github.com/json-iterator/go"
	"github.com/tidwall/gjson"

	"github.com/luongdev/rtcfeatures/pkg/connection"
	"github.com/luongdev/rtcfeatures/pkg/stats"
)

// UseNumber keeps counters exactly as captured when compressed reports are re-encoded
var json = jsoniter.Config{
	EscapeHTML:             true,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
	UseNumber:              true,
}.Froze()

// maxLineSize bounds a single dump line; getStats captures of large calls run to megabytes
const maxLineSize = 32 << 20

// Dump is the parsed content of an rtcstats dump file
type Dump struct {
	Connections []connection.Connection

	// Lines is the number of non-empty lines read
	Lines int
	// Entries is the number of getStats entries kept
	Entries int
	// Skipped counts well-formed lines that are not getStats entries
	Skipped int
	// Malformed counts lines that are not valid JSON
	Malformed int
}

// Snapshots returns the total number of snapshots over every connection
func (d *Dump) Snapshots() int {
	n := 0
	for _, c := range d.Connections {
		n += len(c.Snapshots)
	}
	return n
}

// Load parses the dump file at path
func Load(path string) (*Dump, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dump: %w", err)
	}
	defer f.Close()

	return Parse(f)
}

// Parse reads an rtcstats dump: one JSON array per line of the form
// [method, connectionId, value, timestamp]. Only getStats entries are kept and
// grouped per connection in order of first appearance.
func Parse(r io.Reader) (*Dump, error) {
	d := &Dump{}
	index := make(map[string]int)
	states := make(map[string]*state)

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		d.Lines++

		if !gjson.ValidBytes(line) {
			d.Malformed++
			continue
		}
		entry := gjson.ParseBytes(line)
		if !entry.IsArray() {
			// metadata such as the client identity line
			d.Skipped++
			continue
		}
		fields := entry.Array()
		if len(fields) < 3 || !isGetStats(fields[0].String()) {
			d.Skipped++
			continue
		}

		id := fields[1].String()
		var ts int64
		if len(fields) > 3 {
			ts = fields[3].Int()
		}

		st, ok := states[id]
		if !ok {
			st = newState()
			states[id] = st
			index[id] = len(d.Connections)
			d.Connections = append(d.Connections, connection.Connection{ID: id})
		}

		// An unusable value still occupies its place in the sequence
		snap, err := st.apply(fields[2], ts)
		if err != nil {
			snap = nil
		}
		c := &d.Connections[index[id]]
		c.Snapshots = append(c.Snapshots, snap)
		d.Entries++
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read dump: %w", err)
	}
	return d, nil
}

func isGetStats(method string) bool {
	return method == "getstats" || method == "getStats"
}

// state is the decompression state of one connection
type state struct {
	reports map[string]map[string]interface{}
}

func newState() *state {
	return &state{reports: make(map[string]map[string]interface{})}
}

// apply turns one getStats value into a snapshot. Values carrying a top-level
// "timestamp" are delta compressed: each report holds only the members that changed,
// and a report timestamp of 0 stands for the top-level one. Reports missing from a
// compressed value keep their previous members.
func (s *state) apply(value gjson.Result, lineTimestamp int64) (*stats.Snapshot, error) {
	if !value.IsObject() {
		return nil, stats.ErrInvalidSnapshot
	}

	top := value.Get("timestamp")
	if top.Type != gjson.Number {
		ts := lineTimestamp
		if ts == 0 {
			ts = latestReportTimestamp(value)
		}
		return stats.ParseSnapshot([]byte(value.Raw), ts)
	}
	base := top.Int()

	var delta map[string]interface{}
	if err := json.UnmarshalFromString(value.Raw, &delta); err != nil {
		return nil, err
	}
	delete(delta, "timestamp")

	for id, raw := range delta {
		report, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		prev, seen := s.reports[id]
		if ts, has := report["timestamp"]; (has && isZeroTimestamp(ts)) || (!has && !seen) {
			report["timestamp"] = base
		}
		if !seen {
			s.reports[id] = report
			continue
		}
		for k, v := range report {
			prev[k] = v
		}
	}

	data, err := json.Marshal(s.reports)
	if err != nil {
		return nil, err
	}
	return stats.ParseSnapshot(data, base)
}

func isZeroTimestamp(v interface{}) bool {
	switch t := v.(type) {
	case fmt.Stringer:
		return t.String() == "0"
	case float64:
		return t == 0
	default:
		return false
	}
}

// latestReportTimestamp returns the largest report timestamp, for uncompressed
// values logged without one
func latestReportTimestamp(value gjson.Result) int64 {
	var latest float64
	value.ForEach(func(_, report gjson.Result) bool {
		if ts := report.Get("timestamp"); ts.Type == gjson.Number && ts.Num > latest {
			latest = ts.Num
		}
		return true
	})
	return int64(latest)
}
