package store

import (
	"context"
	"errors"
	"sort"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/luongdev/rtcfeatures/pkg/calculator"
	"github.com/luongdev/rtcfeatures/pkg/features"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrNotFound is returned when no result is stored under the key
var ErrNotFound = errors.New("result not found")

// ResultStore persists extraction results with support for in-memory and Redis backends
type ResultStore interface {
	// Put stores one connection's result with TTL
	Put(ctx context.Context, result *Result, ttl time.Duration) error

	// Get retrieves one connection's result
	Get(ctx context.Context, dumpID, connectionID string) (*Result, error)

	// List returns every result of a dump ordered by connection id
	List(ctx context.Context, dumpID string) ([]*Result, error)

	// Delete removes every result of a dump
	Delete(ctx context.Context, dumpID string) error

	// Close closes the store connection
	Close() error
}

// Result is the extraction output for one peer connection of a dump
type Result struct {
	DumpID       string                   `json:"dumpId"`
	ConnectionID string                   `json:"connectionId"`
	Records      []features.FeatureRecord `json:"records"`
	Summary      calculator.QoSMetrics    `json:"summary"`
	Digest       uint64                   `json:"digest"`
	Error        string                   `json:"error,omitempty"`
	CreatedAt    time.Time                `json:"createdAt"`
}

func encode(r *Result) ([]byte, error) {
	return json.Marshal(r)
}

func decode(data []byte) (*Result, error) {
	var r Result
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func sortResults(rs []*Result) {
	sort.Slice(rs, func(i, j int) bool {
		return rs[i].ConnectionID < rs[j].ConnectionID
	})
}
