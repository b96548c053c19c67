package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/tobert/trace-analytics/internal/filereader"
	"github.com/tobert/trace-analytics/internal/query"
	"github.com/tobert/trace-analytics/internal/storage"
	"github.com/tobert/trace-analytics/internal/viz"
)

// analyzeOptions are the per-run knobs of the analyze command.
type analyzeOptions struct {
	Files     []string
	Service   string
	Bucket    time.Duration
	Limit     int
	TopK      int
	Waterfall int
}

// AnalyzeCommand returns the CLI command definition for the 'analyze' subcommand.
func AnalyzeCommand() *cli.Command {
	flags := append(commonFlags(),
		&cli.StringSliceFlag{
			Name:     "file",
			Aliases:  []string{"f"},
			Usage:    "OTLP JSONL trace file to load (repeatable)",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "service",
			Usage: "Also show dependencies and span types for this service",
		},
		&cli.StringFlag{
			Name:  "window",
			Usage: "Observation window for RPS, e.g. 5m (default: time span of the data)",
		},
		&cli.DurationFlag{
			Name:  "bucket",
			Usage: "Error trend bucket width; 0 shows the cumulative trend",
		},
		&cli.IntFlag{
			Name:  "limit",
			Usage: "Trace table rows, most recent first (0 for all)",
			Value: 20,
		},
		&cli.IntFlag{
			Name:  "top",
			Usage: "Operations listed under top errors",
			Value: 10,
		},
		&cli.IntFlag{
			Name:  "waterfall",
			Usage: "Render a waterfall for the N most recent traces",
		},
	)

	return &cli.Command{
		Name:      "analyze",
		Usage:     "Print analytics for OTLP JSONL trace files",
		ArgsUsage: " ",
		Description: `Loads OTLP JSONL files (as written by the collector file exporter) into an
in-memory span store and prints the trace table, latency histogram, operation
statistics, error trend and top error operations. Logs go to stderr.`,
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			opts := analyzeOptions{
				Files:     cmd.StringSlice("file"),
				Service:   cmd.String("service"),
				Bucket:    cmd.Duration("bucket"),
				Limit:     cmd.Int("limit"),
				TopK:      cmd.Int("top"),
				Waterfall: cmd.Int("waterfall"),
			}
			return runAnalyze(ctx, output(cmd), cfg, opts)
		},
	}
}

func runAnalyze(ctx context.Context, w io.Writer, cfg *Config, opts analyzeOptions) error {
	if opts.Bucket < 0 {
		return fmt.Errorf("bucket must not be negative")
	}
	if opts.TopK < 0 {
		return fmt.Errorf("top must not be negative")
	}
	window, err := cfg.Window()
	if err != nil {
		return err
	}

	logger, err := NewLogger(cfg.EffectiveLogLevel(), cfg.LogFormat)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	store := storage.NewSpanStore(cfg.SpanBufferSize, logger)
	for _, path := range opts.Files {
		res, err := filereader.LoadFile(ctx, path, store)
		if err != nil {
			return err
		}
		logger.Info("loaded trace file",
			zap.String("file", path),
			zap.Int("lines", res.Lines),
			zap.Int("skipped", res.Skipped))
	}

	queries := query.NewService(store, query.Options{MaxTraces: cfg.MaxTracesPerQuery, Logger: logger})
	all := storage.QueryFilter{}

	summaries, err := queries.Summaries(ctx, all)
	if err != nil {
		return err
	}
	stats := store.Stats()
	sections := []string{viz.Overview(viz.StoreStats{
		SpanCount:  stats.SpanCount,
		Capacity:   stats.Capacity,
		TraceCount: summaries.TraceCount,
		Truncated:  summaries.Truncated,
	})}
	if summaries.TraceCount == 0 {
		return writeSections(w, sections)
	}
	sections = append(sections, viz.TraceTable(summaries.Data, opts.Limit))

	hist, err := queries.LatencyHistogram(ctx, all)
	if err != nil {
		return err
	}
	sections = append(sections, viz.LatencyHistogram(hist.Data))

	ops, err := queries.Operations(ctx, all, window)
	if err != nil {
		return err
	}
	sections = append(sections, viz.OperationTable(ops.Data))

	trend, err := queries.ErrorTrend(ctx, all, opts.Bucket)
	if err != nil {
		return err
	}
	sections = append(sections, viz.ErrorTrend(trend.Data))

	top, err := queries.TopErrors(ctx, all, opts.TopK)
	if err != nil {
		return err
	}
	sections = append(sections, viz.TopErrors(top.Data))

	if opts.Service != "" {
		deps, err := queries.Dependencies(ctx, opts.Service, all)
		if err != nil {
			return err
		}
		sections = append(sections, viz.Dependencies(opts.Service, deps.Data))

		types, err := queries.SpanTypes(ctx, opts.Service, all)
		if err != nil {
			return err
		}
		sections = append(sections, viz.SpanTypes(opts.Service, types.Data))
	}

	if opts.Waterfall > 0 {
		traces, err := store.QueryTraces(ctx, storage.QueryFilter{Limit: opts.Waterfall})
		if err != nil {
			return err
		}
		sections = append(sections, viz.Waterfall(traces, 0))
	}

	return writeSections(w, sections)
}

// writeSections prints non-empty sections separated by a blank line.
func writeSections(w io.Writer, sections []string) error {
	first := true
	for _, s := range sections {
		if s == "" {
			continue
		}
		if !first {
			if _, err := io.WriteString(w, "\n"); err != nil {
				return err
			}
		}
		first = false
		if _, err := io.WriteString(w, s); err != nil {
			return err
		}
	}
	return nil
}
