package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/tobert/trace-analytics/internal/filereader"
	"github.com/tobert/trace-analytics/internal/httpapi"
	"github.com/tobert/trace-analytics/internal/mcpserver"
	"github.com/tobert/trace-analytics/internal/otlpreceiver"
	"github.com/tobert/trace-analytics/internal/query"
	"github.com/tobert/trace-analytics/internal/storage"
)

// ServeCommand returns the CLI command definition for the 'serve' subcommand.
// This command starts the OTLP gRPC receiver, the HTTP API and optionally
// the MCP stdio server.
func ServeCommand(version string) *cli.Command {
	flags := append(commonFlags(),
		&cli.StringFlag{
			Name:  "otlp-host",
			Usage: "OTLP server bind address (default 127.0.0.1)",
		},
		&cli.IntFlag{
			Name:  "otlp-port",
			Usage: "OTLP server port (0 for ephemeral)",
		},
		&cli.StringFlag{
			Name:  "http-host",
			Usage: "HTTP API bind address (default 127.0.0.1)",
		},
		&cli.IntFlag{
			Name:  "http-port",
			Usage: "HTTP API port (default 4380)",
		},
		&cli.StringSliceFlag{
			Name:  "watch-dir",
			Usage: "Directory of OTLP JSONL files to load and tail (repeatable)",
		},
		&cli.StringFlag{
			Name:  "otel-config",
			Usage: "OpenTelemetry Collector config; file/* exporter directories are watched",
		},
		&cli.BoolFlag{
			Name:  "active-only",
			Usage: "Only load traces.jsonl from watch dirs, skipping rotated files (default true)",
		},
		&cli.BoolFlag{
			Name:  "mcp",
			Usage: "Also serve MCP tools on stdio; the server exits when stdin closes",
		},
	)

	return &cli.Command{
		Name:  "serve",
		Usage: "Start the OTLP receiver and analytics API",
		Description: `Starts an OTLP gRPC receiver (localhost, ephemeral port by default), keeps
received spans in a fixed-size in-memory store and serves analytics over HTTP.
With --mcp the same views are exposed as MCP tools on stdio.`,
		Flags: flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runServe(ctx, cfg, version)
		},
	}
}

// runServe wires together all components: storage, OTLP receiver, file
// sources, HTTP API and the optional MCP server. It blocks until a signal
// arrives, the MCP client disconnects, or a component fails.
func runServe(ctx context.Context, cfg *Config, version string) error {
	logger, err := NewLogger(cfg.EffectiveLogLevel(), cfg.LogFormat)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Debug("configuration",
		zap.Int("span_buffer_size", cfg.SpanBufferSize),
		zap.Int("max_traces_per_query", cfg.MaxTracesPerQuery),
		zap.String("otlp_bind", net.JoinHostPort(cfg.OTLPHost, strconv.Itoa(cfg.OTLPPort))),
		zap.String("http_bind", net.JoinHostPort(cfg.HTTPHost, strconv.Itoa(cfg.HTTPPort))),
		zap.Strings("watch_dirs", cfg.WatchDirs),
		zap.Bool("mcp", cfg.MCP),
	)

	// 1. Span store and query service
	store := storage.NewSpanStore(cfg.SpanBufferSize, logger)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := query.NewMetrics(registry, func() float64 { return float64(store.Stats().SpansReceived) })

	queries := query.NewService(store, query.Options{
		MaxTraces: cfg.MaxTracesPerQuery,
		Logger:    logger,
		Metrics:   metrics,
	})

	// 2. OTLP gRPC receiver
	otlpServer, err := otlpreceiver.NewServer(otlpreceiver.Config{
		Host:   cfg.OTLPHost,
		Port:   cfg.OTLPPort,
		Logger: logger,
	}, store)
	if err != nil {
		return fmt.Errorf("failed to create OTLP server: %w", err)
	}
	defer otlpServer.StopWait()

	errCh := make(chan error, 3)
	go func() {
		if err := otlpServer.Start(ctx); err != nil {
			errCh <- fmt.Errorf("OTLP server error: %w", err)
		}
	}()

	endpoint := otlpServer.Endpoint()
	logger.Info("OTLP gRPC receiver listening",
		zap.String("endpoint", endpoint),
		zap.String("hint", "OTEL_EXPORTER_OTLP_ENDPOINT=http://"+endpoint),
	)

	// 3. File sources
	activeOnly := cfg.ActiveOnly == nil || *cfg.ActiveOnly
	for _, dir := range cfg.WatchDirs {
		source, err := filereader.New(filereader.Config{
			Directory:  dir,
			ActiveOnly: activeOnly,
			Logger:     logger,
		}, store)
		if err != nil {
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
		if err := source.Start(ctx); err != nil {
			source.Stop()
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
		defer source.Stop()
	}

	// 4. HTTP API
	api := httpapi.New(queries, store, httpapi.Options{Gatherer: registry, Logger: logger})
	httpAddr := net.JoinHostPort(cfg.HTTPHost, strconv.Itoa(cfg.HTTPPort))
	go func() {
		if err := api.ListenAndServe(ctx, httpAddr); err != nil {
			errCh <- fmt.Errorf("HTTP API error: %w", err)
		}
	}()

	// 5. MCP on stdio ends the process when the client goes away
	if cfg.MCP {
		mcpServer, err := mcpserver.NewServer(queries, store, otlpServer, mcpserver.ServerOptions{
			Version: version,
			Logger:  logger,
		})
		if err != nil {
			return fmt.Errorf("failed to create MCP server: %w", err)
		}
		go func() {
			err := mcpServer.Run(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("MCP server error: %w", err)
				return
			}
			stop()
		}()
	}

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		return nil
	case err := <-errCh:
		return err
	}
}
