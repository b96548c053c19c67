package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/tobert/trace-analytics/internal/demo"
)

// SendDemoCommand returns the CLI command definition for the 'send-demo' subcommand.
func SendDemoCommand() *cli.Command {
	return &cli.Command{
		Name:  "send-demo",
		Usage: "Send a synthetic checkout workload to an OTLP gRPC endpoint",
		Description: `Generates traces for a small shop (checkout calling payments, inventory,
redis and postgres) and exports them over OTLP/gRPC. Use the endpoint
printed by 'trace-analytics serve' or returned by the get_otlp_endpoint tool.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "endpoint",
				Usage:    "OTLP gRPC endpoint (host:port)",
				Required: true,
			},
			&cli.IntFlag{
				Name:  "traces",
				Usage: "Number of traces to send",
				Value: 100,
			},
			&cli.FloatFlag{
				Name:  "error-rate",
				Usage: "Probability that a payment fails, within [0, 1]",
				Value: 0.05,
			},
			&cli.Int64Flag{
				Name:  "seed",
				Usage: "Random seed for a reproducible workload (0 seeds from the clock)",
			},
			&cli.DurationFlag{
				Name:  "interval",
				Usage: "Gap between generated trace start times",
				Value: 100 * time.Millisecond,
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Enable debug logging",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			level := "warn"
			if cmd.Bool("verbose") {
				level = "debug"
			}
			logger, err := NewLogger(level, "console")
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			return runSendDemo(ctx, output(cmd), cmd.String("endpoint"), demo.Config{
				Traces:    cmd.Int("traces"),
				ErrorRate: cmd.Float("error-rate"),
				Seed:      cmd.Int64("seed"),
				Interval:  cmd.Duration("interval"),
			}, logger)
		},
	}
}

func runSendDemo(ctx context.Context, w io.Writer, endpoint string, cfg demo.Config, logger *zap.Logger) error {
	gen, err := demo.NewGenerator(cfg)
	if err != nil {
		return err
	}

	exporter, err := demo.NewExporter(endpoint, logger)
	if err != nil {
		return err
	}
	defer exporter.Close()

	sent, err := exporter.Export(ctx, gen.Generate())
	if err != nil {
		return fmt.Errorf("sent %d spans before failing: %w", sent, err)
	}

	_, err = fmt.Fprintf(w, "Sent %d traces (%d spans) to %s\n", gen.Traces(), sent, endpoint)
	return err
}
