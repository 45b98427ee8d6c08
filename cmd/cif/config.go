package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/cif/internal/config"
	"github.com/samcharles93/cif/internal/logger"
	"github.com/samcharles93/cif/internal/predictor"
	"github.com/samcharles93/cif/internal/safetensors"
	"github.com/samcharles93/cif/internal/scorer"
)

// fileConfig holds the config file loaded by setup.
var fileConfig config.Config

// setup loads the config file and installs the logger in the command context.
func setup(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return ctx, err
	}
	fileConfig = cfg

	if cfg.LogLevel != "" && !cmd.IsSet("log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !cmd.IsSet("log-format") {
		logFormat = cfg.LogFormat
	}
	level := logger.ParseLevel(logLevel)
	if debug {
		level = logger.ParseLevel("debug")
	}
	return logger.WithContext(ctx, logger.ForFormat(os.Stderr, logFormat, level)), nil
}

// applyPredictorConfig applies config file defaults to predictor flags
// when the corresponding CLI flag was not explicitly set.
func applyPredictorConfig(c *cli.Command, cfg config.Config) {
	if cfg.WeightsPath != "" && !c.IsSet("weights") {
		weightsPath = cfg.WeightsPath
	}
	if cfg.WeightsPrefix != "" && !c.IsSet("weights-prefix") {
		weightsPrefix = cfg.WeightsPrefix
	}
	if cfg.LOrder != nil && !c.IsSet("l-order") {
		lOrder = int64(*cfg.LOrder)
	}
	if cfg.ROrder != nil && !c.IsSet("r-order") {
		rOrder = int64(*cfg.ROrder)
	}
	if cfg.Threshold != nil && !c.IsSet("threshold") {
		threshold = *cfg.Threshold
	}
	if cfg.SmoothFactor != nil && !c.IsSet("smooth-factor") {
		smoothFactor = *cfg.SmoothFactor
	}
	if cfg.NoiseThreshold != nil && !c.IsSet("noise-threshold") {
		noiseThreshold = *cfg.NoiseThreshold
	}
	if cfg.TailThreshold != nil && !c.IsSet("tail-threshold") {
		tailThreshold = *cfg.TailThreshold
	}
	if cfg.Workers != nil && !c.IsSet("workers") {
		workers = int64(*cfg.Workers)
	}
}

// applyServeConfig applies config file defaults to serve command variables.
func applyServeConfig(c *cli.Command, cfg config.Config, addr *string) {
	applyPredictorConfig(c, cfg)
	if cfg.ServerAddress != "" && !c.IsSet("addr") {
		*addr = cfg.ServerAddress
	}
}

func predictorConfig() predictor.Config {
	return predictor.Config{
		Threshold:      float32(threshold),
		SmoothFactor:   float32(smoothFactor),
		NoiseThreshold: float32(noiseThreshold),
		TailThreshold:  float32(tailThreshold),
		Workers:        int(workers),
	}
}

// buildPredictor loads the conv head from the weights file and wires it into
// a predictor using the resolved flag values.
func buildPredictor(ctx context.Context) (*predictor.Predictor, error) {
	log := logger.FromContext(ctx)
	if weightsPath == "" {
		return nil, fmt.Errorf("--weights is required (or set weights in %s)", configPath)
	}
	st, err := safetensors.Open(weightsPath)
	if err != nil {
		return nil, fmt.Errorf("open weights: %w", err)
	}
	defer func() { _ = st.Close() }()

	head, err := scorer.LoadConvHead(st, weightsPrefix, int(lOrder), int(rOrder))
	if err != nil {
		return nil, fmt.Errorf("load conv head: %w", err)
	}
	log.Debug("loaded weight head", "path", weightsPath, "dim", head.Dim(), "l_order", lOrder, "r_order", rOrder)

	return predictor.New(predictorConfig(), head, log)
}
