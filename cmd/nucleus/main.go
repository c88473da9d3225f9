package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/nucleus/internal/logger"
)

func main() {
	app := &cli.Command{
		Name:   "nucleus",
		Usage:  "Batched top-p sampling and speculative draft verification",
		Flags:  loggingFlags(),
		Before: setupLogging,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return cli.ShowAppHelp(cmd)
		},
		Commands: []*cli.Command{
			serveCmd(),
			sampleCmd(),
			benchCmd(),
			versionCmd(),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setupLogging(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	cfg, err := LoadConfig()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "warning: ignoring config: %v\n", err)
	}
	loaded = cfg
	applyLoggingConfig(cmd, cfg)

	level := logLevel
	if debug {
		level = "debug"
	}
	log, err := logger.Setup(os.Stderr, level, logFormat)
	if err != nil {
		return ctx, cli.Exit(fmt.Sprintf("error: %v", err), 1)
	}
	return logger.WithContext(ctx, log), nil
}
