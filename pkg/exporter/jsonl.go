package exporter

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"

	jsoniter "github.com/json-iterator/go"

	"github.com/luongdev/rtcfeatures/pkg/features"
	"github.com/luongdev/rtcfeatures/pkg/store"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Line is one JSON-lines output row: a feature record tagged with its connection
type Line struct {
	DumpID       string `json:"dumpId,omitempty"`
	ConnectionID string `json:"connectionId"`
	features.FeatureRecord
}

// JSONLExporter writes one line per feature record
type JSONLExporter struct {
	mu sync.Mutex
	w  *bufio.Writer
}

// NewJSONLExporter creates an exporter writing to w
func NewJSONLExporter(w io.Writer) *JSONLExporter {
	return &JSONLExporter{w: bufio.NewWriter(w)}
}

func (e *JSONLExporter) Name() string {
	return "jsonl"
}

// Export writes every record of the result. Lines of one connection stay contiguous.
func (e *JSONLExporter) Export(_ context.Context, result *store.Result) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, r := range result.Records {
		data, err := json.Marshal(Line{
			DumpID:        result.DumpID,
			ConnectionID:  result.ConnectionID,
			FeatureRecord: r,
		})
		if err != nil {
			return fmt.Errorf("failed to encode record %d of %s: %w", r.Index, result.ConnectionID, err)
		}
		if _, err := e.w.Write(data); err != nil {
			return err
		}
		if err := e.w.WriteByte('\n'); err != nil {
			return err
		}
	}
	return e.w.Flush()
}

func (e *JSONLExporter) Start(context.Context) error {
	return nil
}

func (e *JSONLExporter) Stop(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.w.Flush()
}
