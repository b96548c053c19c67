package main

import (
	"context"
	"fmt"
	"os"

	cliframework "github.com/urfave/cli/v3"

	"github.com/tobert/trace-analytics/internal/cli"
)

const version = "0.1.0-dev"

func main() {
	app := &cliframework.Command{
		Name:    "trace-analytics",
		Usage:   "In-memory OTLP trace analytics for agents and dashboards",
		Version: version,
		Commands: []*cliframework.Command{
			cli.ServeCommand(version),
			cli.AnalyzeCommand(),
			cli.SendDemoCommand(),
			cli.DoctorCommand(version),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "❌ error: %v\n", err)
		os.Exit(1)
	}
}
