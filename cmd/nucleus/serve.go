package main

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/nucleus/internal/api"
	"github.com/samcharles93/nucleus/internal/logger"
	"github.com/samcharles93/nucleus/internal/trace"
)

func serveCmd() *cli.Command {
	var (
		addr          string
		readTimeout   time.Duration
		traceRequests int64
	)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the sampling API over HTTP",
		Flags: append(samplerFlags(),
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "listen address",
				Value:       "127.0.0.1:8090",
				Destination: &addr,
			},
			&cli.DurationFlag{
				Name:        "read-timeout",
				Usage:       "read header timeout",
				Value:       30 * time.Second,
				Destination: &readTimeout,
			},
			&cli.Int64Flag{
				Name:        "trace-requests",
				Usage:       "number of recent requests whose trace events are kept (0 = unbounded)",
				Value:       1024,
				Destination: &traceRequests,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyServeConfig(cmd, loaded, &addr, &traceRequests)
			log := logger.FromContext(ctx)

			events := trace.NewMemoryRecorder(int(traceRequests))
			s, err := newSampler(ctx, trace.Multi{events, trace.NewLogRecorder(log)})
			if err != nil {
				return err
			}
			defer func() { _ = s.Close() }()

			server := api.NewServer(s, events, log)
			e := echo.New()
			e.Use(middleware.RequestLogger())
			e.Use(middleware.Recover())
			server.Register(e)
			log.Info("starting server", "address", addr, "sampler", s.Name())
			sc := echo.StartConfig{
				Address: addr,
				BeforeServeFunc: func(srv *http.Server) error {
					srv.ReadHeaderTimeout = readTimeout
					return nil
				},
			}
			return sc.Start(ctx, e)
		},
	}
}
