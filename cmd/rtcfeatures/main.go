package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/segmentio/ksuid"
	"github.com/spf13/pflag"

	"github.com/luongdev/rtcfeatures/pkg/config"
	"github.com/luongdev/rtcfeatures/pkg/connection"
	"github.com/luongdev/rtcfeatures/pkg/dump"
	"github.com/luongdev/rtcfeatures/pkg/exporter"
	"github.com/luongdev/rtcfeatures/pkg/logger"
	"github.com/luongdev/rtcfeatures/pkg/processor"
	"github.com/luongdev/rtcfeatures/pkg/server"
	"github.com/luongdev/rtcfeatures/pkg/stats"
	"github.com/luongdev/rtcfeatures/pkg/store"
)

// registryLimit bounds how many finished connections /health reports
const registryLimit = 1000

type options struct {
	configPath string
	dumpPath   string
	outputPath string
	format     string
}

func parseFlags(args []string) (*options, error) {
	opts := &options{}
	fs := pflag.NewFlagSet("rtcfeatures", pflag.ContinueOnError)
	fs.StringVarP(&opts.configPath, "config", "c", "", "path to YAML config file")
	fs.StringVarP(&opts.dumpPath, "dump", "d", "", "extract features from an rtcstats dump file and exit")
	fs.StringVarP(&opts.outputPath, "output", "o", "-", "JSON lines output for --dump, - for stdout")
	fs.StringVarP(&opts.format, "format", "f", "", "stats format hint: chrome_legacy, chrome_standard, firefox, safari, standard")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return opts, nil
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "rtcfeatures: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if opts.format != "" {
		if _, err := stats.ParseFormat(opts.format); err != nil {
			return err
		}
		cfg.Extraction.FormatHint = opts.format
	}

	logger.Configure(logger.ParseLogLevel(cfg.Logging.Level), cfg.Logging.Format)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.dumpPath != "" {
		return extractFile(ctx, cfg, opts, stdout)
	}
	return serve(ctx, cfg)
}

// extractFile runs one dump through extraction and writes JSON lines
func extractFile(ctx context.Context, cfg *config.Config, opts *options, stdout io.Writer) error {
	d, err := dump.Load(opts.dumpPath)
	if err != nil {
		return err
	}

	out := stdout
	if opts.outputPath != "" && opts.outputPath != "-" {
		f, err := os.Create(opts.outputPath)
		if err != nil {
			return fmt.Errorf("failed to create output: %w", err)
		}
		defer f.Close()
		out = f
	}

	p := processor.NewDumpProcessor(exporter.Multi(exporter.NewJSONLExporter(out)), nil, processor.Options{
		Workers:   cfg.Extraction.Workers,
		Extractor: cfg.ExtractorOptions(),
	})
	if err := p.Start(ctx); err != nil {
		return err
	}
	defer p.Stop()

	dumpID := ksuid.New().String()
	results, err := p.Process(ctx, dumpID, d)
	if err != nil {
		return err
	}

	failed := 0
	for _, r := range results {
		if r.Error != "" {
			failed++
		}
	}
	logger.InfoWithFields(map[string]interface{}{
		"dump_id":     dumpID,
		"file":        opts.dumpPath,
		"connections": len(results),
		"failed":      failed,
		"skipped":     d.Skipped,
		"malformed":   d.Malformed,
	}, "Dump extracted")
	return nil
}

func openStore(ctx context.Context, cfg *config.Config) (store.ResultStore, error) {
	if cfg.Storage.Type == "redis" {
		r := cfg.Storage.Redis
		return store.DialRedis(ctx, r.Addr(), r.Password, r.DB, r.KeyPrefix)
	}
	return store.NewMemoryStore(cfg.Extraction.ResultTTL), nil
}

// serve runs the HTTP server until the context is cancelled
func serve(ctx context.Context, cfg *config.Config) error {
	results, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open %s store: %w", cfg.Storage.Type, err)
	}
	defer results.Close()

	registry := connection.NewRegistry(registryLimit)
	p := processor.NewDumpProcessor(exporter.Multi(exporter.NewStoreExporter(results, cfg.Extraction.ResultTTL)), registry, processor.Options{
		Workers:   cfg.Extraction.Workers,
		Extractor: cfg.ExtractorOptions(),
	})
	if err := p.Start(ctx); err != nil {
		return err
	}
	defer p.Stop()

	srv := server.NewHTTPServer(cfg.HTTP.Port, cfg.HTTP.MaxBodyBytes, registry, p, results)
	if err := srv.Start(ctx); err != nil {
		return err
	}

	logger.InfoWithFields(map[string]interface{}{
		"port":    cfg.HTTP.Port,
		"storage": cfg.Storage.Type,
		"workers": cfg.Extraction.Workers,
	}, "rtcfeatures started")

	<-ctx.Done()
	logger.Info("Shutdown signal received")
	return srv.Stop()
}
