package exporter

import (
	"context"
	"fmt"
	"time"

	"github.com/luongdev/rtcfeatures/pkg/store"
)

// StoreExporter persists results in a ResultStore
type StoreExporter struct {
	store store.ResultStore
	ttl   time.Duration
}

// NewStoreExporter creates an exporter keeping results for ttl
func NewStoreExporter(s store.ResultStore, ttl time.Duration) *StoreExporter {
	return &StoreExporter{store: s, ttl: ttl}
}

func (e *StoreExporter) Name() string {
	return "store"
}

func (e *StoreExporter) Export(ctx context.Context, result *store.Result) error {
	if err := e.store.Put(ctx, result, e.ttl); err != nil {
		return fmt.Errorf("failed to store result of %s: %w", result.ConnectionID, err)
	}
	return nil
}

func (e *StoreExporter) Start(context.Context) error {
	return nil
}

// Stop leaves the store open; its owner closes it
func (e *StoreExporter) Stop(context.Context) error {
	return nil
}
