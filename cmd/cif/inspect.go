package main

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/cif/internal/safetensors"
)

func inspectCmd() *cli.Command {
	var (
		filePath     string
		tensorFilter string
		showMeta     bool
	)

	return &cli.Command{
		Name:  "inspect",
		Usage: "List the tensors of a safetensors file",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "file",
				Usage:       "path to .safetensors file",
				Destination: &filePath,
				Required:    true,
			},
			&cli.StringFlag{Name: "filter", Usage: "only show tensors whose name contains this", Destination: &tensorFilter},
			&cli.BoolFlag{Name: "metadata", Usage: "print the __metadata__ block", Destination: &showMeta},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			st, err := safetensors.Open(filePath)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "NAME\tDTYPE\tSHAPE\tBYTES")
			for _, name := range st.Names() {
				if tensorFilter != "" && !strings.Contains(name, tensorFilter) {
					continue
				}
				info, _ := st.Tensor(name)
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%v\t%d\n", name, info.DType, info.Shape, info.End-info.Start)
			}
			if err := tw.Flush(); err != nil {
				return err
			}

			if showMeta && len(st.Metadata) > 0 {
				fmt.Println()
				keys := make([]string, 0, len(st.Metadata))
				for k := range st.Metadata {
					keys = append(keys, k)
				}
				slices.Sort(keys)
				for _, k := range keys {
					fmt.Printf("%s: %s\n", k, st.Metadata[k])
				}
			}
			return nil
		},
	}
}
