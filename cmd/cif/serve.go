package main

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/cif/internal/api"
	"github.com/samcharles93/cif/internal/config"
	"github.com/samcharles93/cif/internal/logger"
)

func serveCmd() *cli.Command {
	var (
		addr              string
		readHeaderTimeout time.Duration
		storeCapacity     int64
		maxBatch          int64
		maxFrames         int64
		maxBodyBytes      int64
	)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the predictor over HTTP",
		Flags: append(predictorFlags(),
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "listen address",
				Value:       config.DefaultServerAddress,
				Destination: &addr,
			},
			&cli.DurationFlag{
				Name:        "read-header-timeout",
				Usage:       "time allowed to read request headers",
				Value:       30 * time.Second,
				Destination: &readHeaderTimeout,
			},
			&cli.Int64Flag{
				Name:        "max-batch",
				Usage:       "maximum sequences per request",
				Value:       api.DefaultMaxBatch,
				Destination: &maxBatch,
			},
			&cli.Int64Flag{
				Name:        "max-frames",
				Usage:       "maximum padded frames per sequence (and mask max_len)",
				Value:       api.DefaultMaxFrames,
				Destination: &maxFrames,
			},
			&cli.Int64Flag{
				Name:        "max-body-bytes",
				Usage:       "maximum request body size",
				Value:       api.DefaultMaxBodyBytes,
				Destination: &maxBodyBytes,
			},
			&cli.Int64Flag{
				Name:        "store-capacity",
				Usage:       "number of predictions kept for GET /v1/cif/predictions/:id",
				Value:       api.DefaultStoreCapacity,
				Destination: &storeCapacity,
			},
		),
		Action: func(ctx context.Context, c *cli.Command) error {
			log := logger.FromContext(ctx)
			applyServeConfig(c, fileConfig, &addr)

			p, err := buildPredictor(ctx)
			if err != nil {
				return err
			}
			limits := api.Limits{
				MaxBatch:     int(maxBatch),
				MaxFrames:    int(maxFrames),
				MaxBodyBytes: maxBodyBytes,
			}
			server := api.NewServer(p, api.NewPredictionStore(int(storeCapacity)), limits, log)
			e := echo.New()
			e.Use(middleware.RequestLogger())
			e.Use(middleware.Recover())
			server.Register(e)
			log.Info("starting server", "address", addr, "threshold", p.Config().Threshold, "workers", p.Config().Workers,
				"max_batch", server.Limits().MaxBatch, "max_frames", server.Limits().MaxFrames)
			sc := echo.StartConfig{
				Address: addr,
				BeforeServeFunc: func(srv *http.Server) error {
					srv.ReadHeaderTimeout = readHeaderTimeout
					return nil
				},
			}
			return sc.Start(ctx, e)
		},
	}
}
