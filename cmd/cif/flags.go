package main

import (
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/cif/internal/config"
)

var (
	configPath string
	logLevel   string
	logFormat  string
	debug      bool

	weightsPath    string
	weightsPrefix  string
	lOrder         int64
	rOrder         int64
	threshold      float64
	smoothFactor   float64
	noiseThreshold float64
	tailThreshold  float64
	workers        int64
)

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:        "config",
		Usage:       "path to config.yaml",
		Value:       config.Path(),
		Destination: &configPath,
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

func predictorFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "weights",
			Aliases:     []string{"w"},
			Usage:       "safetensors file holding cif_conv1d and cif_output parameters",
			Destination: &weightsPath,
		},
		&cli.StringFlag{
			Name:        "weights-prefix",
			Usage:       "tensor name prefix inside the weights file (e.g. predictor.)",
			Destination: &weightsPrefix,
		},
		&cli.Int64Flag{
			Name:        "l-order",
			Usage:       "left context frames of the conv head",
			Value:       config.DefaultLOrder,
			Destination: &lOrder,
		},
		&cli.Int64Flag{
			Name:        "r-order",
			Usage:       "right context frames of the conv head",
			Value:       config.DefaultROrder,
			Destination: &rOrder,
		},
		&cli.Float64Flag{
			Name:        "threshold",
			Usage:       "firing threshold",
			Value:       config.DefaultThreshold,
			Destination: &threshold,
		},
		&cli.Float64Flag{
			Name:        "smooth-factor",
			Usage:       "multiplier applied to sigmoid scores",
			Value:       config.DefaultSmoothFactor,
			Destination: &smoothFactor,
		},
		&cli.Float64Flag{
			Name:        "noise-threshold",
			Usage:       "offset subtracted from scaled scores",
			Value:       config.DefaultNoiseThreshold,
			Destination: &noiseThreshold,
		},
		&cli.Float64Flag{
			Name:        "tail-threshold",
			Usage:       "weight placed on the synthetic trailing step",
			Value:       config.DefaultTailThreshold,
			Destination: &tailThreshold,
		},
		&cli.Int64Flag{
			Name:        "workers",
			Usage:       "goroutines scanning batch items (<= 1 is sequential)",
			Value:       1,
			Destination: &workers,
		},
	}
}
