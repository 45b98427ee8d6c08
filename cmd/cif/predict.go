package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/cif/internal/cif"
	"github.com/samcharles93/cif/internal/logger"
	"github.com/samcharles93/cif/internal/predictor"
	"github.com/samcharles93/cif/internal/safetensors"
	"github.com/samcharles93/cif/internal/tensor"
)

// predictionJSON is the --json rendering of a predictor output.
type predictionJSON struct {
	Tail       bool          `json:"tail"`
	Embeddings [][][]float32 `json:"embeddings"`
	Lengths    []int         `json:"lengths"`
	TokenNum   []float32     `json:"token_num"`
	TokenCount []int         `json:"token_count"`
	Alphas     [][]float32   `json:"alphas"`
	FireCurve  [][]float32   `json:"fire_curve"`
	Fired      [][]int       `json:"fired"`
}

func predictCmd() *cli.Command {
	var (
		featuresPath string
		hiddenName   string
		lengthsName  string
		maskName     string
		outPath      string
		outDType     string
		asJSON       bool
		tail         bool
	)

	return &cli.Command{
		Name:  "predict",
		Usage: "Run the predictor over hidden states stored in a safetensors file",
		Flags: append(predictorFlags(),
			&cli.StringFlag{
				Name:        "features",
				Aliases:     []string{"f"},
				Usage:       "safetensors file holding hidden [B,T,D] and lengths [B] or mask [B,T]",
				Required:    true,
				Destination: &featuresPath,
			},
			&cli.StringFlag{Name: "hidden-name", Usage: "hidden tensor name", Value: "hidden", Destination: &hiddenName},
			&cli.StringFlag{Name: "lengths-name", Usage: "lengths tensor name", Value: "lengths", Destination: &lengthsName},
			&cli.StringFlag{Name: "mask-name", Usage: "mask tensor name, used when lengths is absent", Value: "mask", Destination: &maskName},
			&cli.BoolFlag{
				Name:        "tail",
				Usage:       "append a trailing step so residual partial units can fire",
				Destination: &tail,
			},
			&cli.StringFlag{
				Name:        "out",
				Aliases:     []string{"o"},
				Usage:       "write results to this safetensors file",
				Destination: &outPath,
			},
			&cli.StringFlag{
				Name:        "dtype",
				Usage:       "float dtype of --out tensors (F32, F16, BF16)",
				Value:       "F32",
				Destination: &outDType,
			},
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "print results as JSON on stdout",
				Destination: &asJSON,
			},
		),
		Action: func(ctx context.Context, c *cli.Command) error {
			log := logger.FromContext(ctx)
			applyPredictorConfig(c, fileConfig)

			outDType = strings.ToUpper(outDType)
			switch outDType {
			case "F32", "F16", "BF16":
			default:
				return fmt.Errorf("unsupported --dtype %q", outDType)
			}

			p, err := buildPredictor(ctx)
			if err != nil {
				return err
			}
			hidden, mask, err := loadFeatures(featuresPath, hiddenName, lengthsName, maskName)
			if err != nil {
				return err
			}

			run := p.Predict
			if tail {
				run = p.PredictWithTail
			}
			out, err := run(ctx, hidden, mask)
			if err != nil {
				return err
			}
			log.Info("prediction complete", "batch", hidden.B, "frames", hidden.T, "width", out.Embeddings.T, "tail", tail)

			if outPath != "" {
				if err := writeOutput(outPath, outDType, out, tail, p.Config()); err != nil {
					return err
				}
				log.Info("wrote results", "path", outPath)
			}
			if asJSON || outPath == "" {
				return printJSON(os.Stdout, out, tail)
			}
			return nil
		},
	}
}

// loadFeatures reads hidden states and their validity from a features file.
// Lengths take precedence over a mask; with neither every frame is valid.
func loadFeatures(path, hiddenName, lengthsName, maskName string) (tensor.Batch, tensor.Mat, error) {
	st, err := safetensors.Open(path)
	if err != nil {
		return tensor.Batch{}, tensor.Mat{}, fmt.Errorf("open features: %w", err)
	}
	defer func() { _ = st.Close() }()

	hidden, err := tensor.LoadSafetensorsBatch(st, hiddenName)
	if err != nil {
		return tensor.Batch{}, tensor.Mat{}, err
	}

	if _, ok := st.Tensor(lengthsName); ok {
		lengths, _, err := st.ReadTensorInt(lengthsName)
		if err != nil {
			return tensor.Batch{}, tensor.Mat{}, err
		}
		if len(lengths) != hidden.B {
			return tensor.Batch{}, tensor.Mat{}, cif.InvalidArgument("%s has %d entries for batch %d", lengthsName, len(lengths), hidden.B)
		}
		mask, err := cif.SequenceMask(lengths, hidden.T)
		return hidden, mask, err
	}
	if _, ok := st.Tensor(maskName); ok {
		mask, err := tensor.LoadSafetensorsMask(st, maskName)
		return hidden, mask, err
	}

	lengths := make([]int, hidden.B)
	for b := range lengths {
		lengths[b] = hidden.T
	}
	mask, err := cif.SequenceMask(lengths, hidden.T)
	return hidden, mask, err
}

func writeOutput(path, dtype string, out *predictor.Output, tail bool, cfg predictor.Config) error {
	tensors := []safetensors.Tensor{
		{Name: "embeddings", DType: dtype, Shape: []int{out.Embeddings.B, out.Embeddings.T, out.Embeddings.D}, Data: out.Embeddings.Data},
		{Name: "lengths", DType: "I64", Shape: []int{len(out.Lengths)}, Ints: toInt64(out.Lengths)},
		{Name: "token_num", DType: dtype, Shape: []int{len(out.TokenNum)}, Data: out.TokenNum},
		{Name: "token_count", DType: "I64", Shape: []int{len(out.TokenCount)}, Ints: toInt64(out.TokenCount)},
		{Name: "alphas", DType: dtype, Shape: []int{out.Alphas.R, out.Alphas.C}, Data: out.Alphas.Data},
		{Name: "fire_curve", DType: dtype, Shape: []int{out.FireCurve.R, out.FireCurve.C}, Data: out.FireCurve.Data},
	}
	metadata := map[string]string{
		"tail":           strconv.FormatBool(tail),
		"threshold":      strconv.FormatFloat(float64(cfg.Threshold), 'g', -1, 32),
		"tail_threshold": strconv.FormatFloat(float64(cfg.TailThreshold), 'g', -1, 32),
	}
	return safetensors.WriteFile(path, tensors, metadata)
}

func printJSON(w io.Writer, out *predictor.Output, tail bool) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(predictionJSON{
		Tail:       tail,
		Embeddings: out.Embeddings.Nested(),
		Lengths:    out.Lengths,
		TokenNum:   out.TokenNum,
		TokenCount: out.TokenCount,
		Alphas:     out.Alphas.Rows(),
		FireCurve:  out.FireCurve.Rows(),
		Fired:      out.Fired,
	})
}

func toInt64(v []int) []int64 {
	out := make([]int64, len(v))
	for i, x := range v {
		out[i] = int64(x)
	}
	return out
}
