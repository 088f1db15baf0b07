package exporter

import (
	"context"
	"errors"

	"github.com/luongdev/rtcfeatures/pkg/metrics"
	"github.com/luongdev/rtcfeatures/pkg/store"
)

// FeatureExporter delivers extraction results of one connection
type FeatureExporter interface {
	// Name identifies the exporter in logs and metrics
	Name() string

	// Export sends one connection's result
	Export(ctx context.Context, result *store.Result) error

	// Start prepares the exporter
	Start(ctx context.Context) error

	// Stop flushes and stops the exporter
	Stop(ctx context.Context) error
}

type multiExporter struct {
	exporters []FeatureExporter
}

// Multi fans results out to every exporter. A failing exporter does not stop the others.
func Multi(exporters ...FeatureExporter) FeatureExporter {
	return &multiExporter{exporters: exporters}
}

func (m *multiExporter) Name() string {
	return "multi"
}

func (m *multiExporter) Export(ctx context.Context, result *store.Result) error {
	met := metrics.GetMetrics()
	var errs []error
	for _, e := range m.exporters {
		if err := e.Export(ctx, result); err != nil {
			met.IncrementResultsExported(e.Name(), "error")
			errs = append(errs, err)
			continue
		}
		met.IncrementResultsExported(e.Name(), "ok")
	}
	return errors.Join(errs...)
}

func (m *multiExporter) Start(ctx context.Context) error {
	for i, e := range m.exporters {
		if err := e.Start(ctx); err != nil {
			// Roll back the ones already started
			for _, started := range m.exporters[:i] {
				_ = started.Stop(ctx)
			}
			return err
		}
	}
	return nil
}

func (m *multiExporter) Stop(ctx context.Context) error {
	var errs []error
	for _, e := range m.exporters {
		if err := e.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
