package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/nucleus/internal/logger"
	"github.com/samcharles93/nucleus/internal/rng"
	"github.com/samcharles93/nucleus/internal/sampler"
	"github.com/samcharles93/nucleus/internal/tensor"
)

type sampleLine struct {
	Row   int     `json:"row"`
	Token int32   `json:"token"`
	Prob  float32 `json:"prob"`
}

func sampleCmd() *cli.Command {
	var (
		input       string
		rows        int64
		vocab       int64
		temperature float64
		topP        float64
		seed        int64
	)

	return &cli.Command{
		Name:  "sample",
		Usage: "Sample one token per probability row and print JSON lines",
		Flags: append(samplerFlags(),
			&cli.StringFlag{
				Name:        "input",
				Aliases:     []string{"i"},
				Usage:       "JSON file holding an array of probability rows (- for stdin); synthetic rows if empty",
				Destination: &input,
			},
			&cli.Int64Flag{
				Name:        "rows",
				Usage:       "synthetic batch rows",
				Value:       4,
				Destination: &rows,
			},
			&cli.Int64Flag{
				Name:        "vocab",
				Usage:       "synthetic vocabulary size",
				Value:       32000,
				Destination: &vocab,
			},
			&cli.Float64Flag{
				Name:        "temperature",
				Aliases:     []string{"temp", "t"},
				Usage:       "sampling temperature (below 1e-5 selects greedy)",
				Value:       1,
				Destination: &temperature,
			},
			&cli.Float64Flag{
				Name:        "top-p",
				Usage:       "nucleus probability mass",
				Value:       0.9,
				Destination: &topP,
			},
			&cli.Int64Flag{
				Name:        "seed",
				Usage:       "random seed (-1 = random); row i uses seed+i",
				Value:       -1,
				Destination: &seed,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applySampleConfig(cmd, loaded, &temperature, &topP, &seed)
			log := logger.FromContext(ctx)

			var probs *tensor.HostBatch
			if input != "" {
				b, err := readRows(input)
				if err != nil {
					return cli.Exit(fmt.Sprintf("error: read %s: %v", input, err), 1)
				}
				probs = b
			} else {
				if rows <= 0 || vocab <= 0 {
					return cli.Exit("error: --rows and --vocab must be positive", 1)
				}
				probs = syntheticBatch(rng.FromSeed(seed), int(rows), int(vocab), 8)
			}

			s, err := newSampler(ctx, nil)
			if err != nil {
				return err
			}
			defer func() { _ = s.Close() }()

			n, _ := probs.Shape()
			reqs := make([]sampler.Request, n)
			for i := range reqs {
				gen := rng.FromSeed(seed)
				if seed >= 0 {
					gen = rng.New(uint64(seed) + uint64(i))
				}
				reqs[i] = sampler.Request{
					ID:     fmt.Sprintf("row-%d", i),
					Config: sampler.GenerationConfig{Temperature: temperature, TopP: topP},
					RNG:    gen,
				}
			}

			var res sampler.SampleResult
			if err := sampler.Catch(func() {
				res = s.BatchSampleTokens(probs, reqs, sampler.SampleOptions{ChosenProbs: true})
			}); err != nil {
				return cli.Exit("error: "+err.Error(), 1)
			}
			log.Debug("sampled", "rows", n, "top_p", topP, "temperature", temperature)

			enc := json.NewEncoder(os.Stdout)
			for i, tok := range res.Tokens {
				if err := enc.Encode(sampleLine{Row: i, Token: tok, Prob: res.Probs[i]}); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func readRows(path string) (*tensor.HostBatch, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer func() { _ = f.Close() }()
		r = f
	}
	var rows [][]float32
	if err := json.NewDecoder(r).Decode(&rows); err != nil {
		return nil, err
	}
	return tensor.FromRows(rows)
}
