package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/nucleus/internal/logger"
	"github.com/samcharles93/nucleus/internal/sampler"
	"github.com/samcharles93/nucleus/internal/trace"
)

var (
	samplerKind string
	workers     int64
	pinnedHost  bool
	logLevel    string
	logFormat   string
	debug       bool
)

func samplerFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "sampler",
			Usage:       "sampler implementation (auto, " + sampler.Available() + ")",
			Value:       sampler.Auto,
			Destination: &samplerKind,
		},
		&cli.Int64Flag{
			Name:        "workers",
			Aliases:     []string{"j"},
			Usage:       "sampling worker goroutines (0 = GOMAXPROCS)",
			Destination: &workers,
		},
		&cli.BoolFlag{
			Name:        "pinned",
			Usage:       "lock the host transfer buffer in memory",
			Destination: &pinnedHost,
		},
	}
}

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json, text)",
			Value:       "pretty",
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
	}
}

// newSampler builds a sampler from the resolved sampler flags. rec may be nil.
func newSampler(ctx context.Context, rec trace.Recorder) (sampler.Sampler, error) {
	log := logger.FromContext(ctx)
	s, err := sampler.New(samplerKind, sampler.Options{
		Trace:      rec,
		Logger:     log,
		Workers:    int(workers),
		PinnedHost: pinnedHost,
	})
	if err != nil {
		return nil, cli.Exit("error: "+err.Error(), 1)
	}
	return s, nil
}
