package processor

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/luongdev/rtcfeatures/pkg/connection"
	"github.com/luongdev/rtcfeatures/pkg/dump"
	"github.com/luongdev/rtcfeatures/pkg/exporter"
	"github.com/luongdev/rtcfeatures/pkg/features"
	"github.com/luongdev/rtcfeatures/pkg/logger"
	"github.com/luongdev/rtcfeatures/pkg/metrics"
	"github.com/luongdev/rtcfeatures/pkg/store"
)

// DumpProcessor runs every connection of a dump through feature extraction
type DumpProcessor interface {
	// Process extracts all connections and returns their results ordered as in the dump.
	// extra options apply to this dump only, after the configured ones.
	Process(ctx context.Context, dumpID string, d *dump.Dump, extra ...features.Option) ([]*store.Result, error)

	// Start begins processing
	Start(ctx context.Context) error

	// Stop gracefully stops processing
	Stop() error
}

// Options configures a DumpProcessor
type Options struct {
	// Workers bounds how many connections are extracted at once
	Workers int
	// Extractor options applied to every connection
	Extractor []features.Option
}

type dumpProcessor struct {
	exporter exporter.FeatureExporter
	registry connection.Registry
	opts     Options
}

// NewDumpProcessor creates a new dump processor. exporter and registry may be nil.
func NewDumpProcessor(exp exporter.FeatureExporter, registry connection.Registry, opts Options) DumpProcessor {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	return &dumpProcessor{
		exporter: exp,
		registry: registry,
		opts:     opts,
	}
}

// Start begins processing
func (p *dumpProcessor) Start(ctx context.Context) error {
	if p.exporter != nil {
		if err := p.exporter.Start(ctx); err != nil {
			return fmt.Errorf("failed to start exporter: %w", err)
		}
	}
	logger.Info("Dump processor started with %d workers", p.opts.Workers)
	return nil
}

// Stop gracefully stops processing
func (p *dumpProcessor) Stop() error {
	if p.exporter != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := p.exporter.Stop(ctx); err != nil {
			logger.Error("Failed to stop exporter: %v", err)
		}
	}
	logger.Info("Dump processor stopped")
	return nil
}

// Process extracts every connection concurrently. Each connection owns its extractor,
// so nothing is shared between workers except the exporter and registry.
func (p *dumpProcessor) Process(ctx context.Context, dumpID string, d *dump.Dump, extra ...features.Option) ([]*store.Result, error) {
	if d == nil {
		return nil, fmt.Errorf("received nil dump")
	}

	m := metrics.GetMetrics()
	m.AddMalformedDumpLines(d.Malformed)

	logger.InfoWithFields(map[string]interface{}{
		"dump_id":     dumpID,
		"connections": len(d.Connections),
		"snapshots":   d.Snapshots(),
		"malformed":   d.Malformed,
	}, "Processing dump")

	opts := append(append([]features.Option{}, p.opts.Extractor...), extra...)
	results := make([]*store.Result, len(d.Connections))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Workers)
	for i := range d.Connections {
		i, conn := i, d.Connections[i]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = p.processConnection(gctx, dumpID, conn, opts)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		m.IncrementDumpsProcessed("cancelled")
		return nil, fmt.Errorf("dump %s: %w", dumpID, err)
	}

	m.IncrementDumpsProcessed("ok")
	return results, nil
}

func (p *dumpProcessor) processConnection(ctx context.Context, dumpID string, conn connection.Connection, opts []features.Option) *store.Result {
	m := metrics.GetMetrics()
	started := time.Now()
	m.ConnectionStarted()
	if p.registry != nil {
		p.registry.Begin(dumpID, conn.ID, len(conn.Snapshots))
	}

	result := &store.Result{
		DumpID:       dumpID,
		ConnectionID: conn.ID,
		CreatedAt:    started.UTC(),
	}

	e := features.NewExtractor(opts...)
	records, err := e.Extract(conn.Snapshots)
	outcome := "ok"
	if err != nil {
		outcome = "error"
		result.Error = err.Error()
		logger.WarnWithFields(map[string]interface{}{
			"dump_id":       dumpID,
			"connection_id": conn.ID,
			"error":         err.Error(),
		}, "Connection could not be extracted")
	} else {
		result.Records = records
		result.Summary = features.Summarize(records)
		if digest, derr := features.Digest(records); derr == nil {
			result.Digest = digest
		}
		for _, r := range records {
			if r.Extractable() {
				m.IncrementSnapshotsProcessed(r.Format.String())
				continue
			}
			m.IncrementUnextractable(r.Error)
		}
		m.AddCounterRollbacks(e.Counters().Rollbacks())
	}

	m.ConnectionFinished(outcome, time.Since(started))
	if p.registry != nil {
		p.registry.Finish(dumpID, conn.ID, len(result.Records), err)
	}

	logger.DebugWithFields(map[string]interface{}{
		"dump_id":       dumpID,
		"connection_id": conn.ID,
		"records":       len(result.Records),
		"extractable":   result.Summary.Extractable,
		"rollbacks":     e.Counters().Rollbacks(),
	}, "Connection extracted")

	if p.exporter != nil {
		if err := p.exporter.Export(ctx, result); err != nil {
			logger.WarnWithFields(map[string]interface{}{
				"dump_id":       dumpID,
				"connection_id": conn.ID,
				"exporter":      p.exporter.Name(),
				"error":         err.Error(),
			}, "Failed to export connection result")
		}
	}

	return result
}
