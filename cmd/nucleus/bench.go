package main

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/nucleus/internal/logger"
	"github.com/samcharles93/nucleus/internal/nucleus"
	"github.com/samcharles93/nucleus/internal/rng"
	"github.com/samcharles93/nucleus/internal/sampler"
	"github.com/samcharles93/nucleus/internal/tensor"
)

type discardTokens struct{}

func (discardTokens) CommitToken(int32) {}

func benchCmd() *cli.Command {
	var (
		rows       int64
		vocab      int64
		warmupRuns int64
		benchRuns  int64
		topP       float64
		draftLen   int64
		scale      float64
	)

	return &cli.Command{
		Name:  "bench",
		Usage: "Benchmark batch sampling and draft verification on synthetic distributions",
		Flags: append(samplerFlags(),
			&cli.Int64Flag{Name: "rows", Usage: "rows per batch", Value: 64, Destination: &rows},
			&cli.Int64Flag{Name: "vocab", Usage: "vocabulary size", Value: 32000, Destination: &vocab},
			&cli.Int64Flag{Name: "warmup", Usage: "number of warmup runs", Value: 2, Destination: &warmupRuns},
			&cli.Int64Flag{Name: "runs", Usage: "number of benchmark runs", Value: 10, Destination: &benchRuns},
			&cli.Float64Flag{Name: "top-p", Usage: "nucleus probability mass", Value: 0.9, Destination: &topP},
			&cli.Int64Flag{Name: "draft-len", Usage: "drafted tokens per request for verification (0 skips)", Value: 4, Destination: &draftLen},
			&cli.Float64Flag{Name: "scale", Usage: "logit scale of the synthetic rows", Value: 12, Destination: &scale},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applySamplerConfig(cmd, loaded)
			log := logger.FromContext(ctx)
			if rows <= 0 || vocab <= 0 || benchRuns <= 0 {
				return cli.Exit("error: --rows, --vocab and --runs must be positive", 1)
			}

			s, err := newSampler(ctx, nil)
			if err != nil {
				return err
			}
			defer func() { _ = s.Close() }()

			gen := rng.New(42)
			target := syntheticBatch(gen, int(rows), int(vocab), scale)
			draft := syntheticBatch(gen, int(rows), int(vocab), scale)
			cfg := sampler.GenerationConfig{Temperature: 1, TopP: topP}

			fmt.Println("=== Nucleus Benchmark ===")
			fmt.Printf("Sampler:  %s\n", s.Name())
			fmt.Printf("Batch:    %d x %d\n", rows, vocab)
			fmt.Printf("Top-p:    %.3f\n", topP)
			fmt.Printf("Drafts:   %d per request\n", draftLen)
			fmt.Printf("CPUs:     %d\n", runtime.NumCPU())
			fmt.Printf("GOMAXPROCS: %d\n", runtime.GOMAXPROCS(0))
			fmt.Println()

			type runResult struct {
				Sample   time.Duration
				Verify   time.Duration
				Accepted int
			}
			run := func() (runResult, error) {
				var r runResult
				err := sampler.Catch(func() {
					start := time.Now()
					s.BatchSampleTokens(target, sampleRequests(cfg, int(rows), gen), sampler.SampleOptions{})
					r.Sample = time.Since(start)
					if draftLen <= 0 {
						return
					}
					reqs := verifyRequests(cfg, draft, int(rows), int(draftLen), gen)
					start = time.Now()
					for _, acc := range s.BatchVerifyDraftTokens(target, reqs) {
						r.Accepted += len(acc)
					}
					r.Verify = time.Since(start)
				})
				return r, err
			}

			for i := range int(warmupRuns) {
				log.Info("warmup run", "run", i+1)
				if _, err := run(); err != nil {
					return cli.Exit(fmt.Sprintf("error: warmup run %d: %v", i+1, err), 1)
				}
			}

			results := make([]runResult, 0, benchRuns)
			for i := range int(benchRuns) {
				log.Info("benchmark run", "run", i+1)
				r, err := run()
				if err != nil {
					return cli.Exit(fmt.Sprintf("error: benchmark run %d: %v", i+1, err), 1)
				}
				results = append(results, r)
			}

			fmt.Println("=== Results ===")
			fmt.Printf("%-6s %12s %12s %12s %10s\n", "Run", "Sample", "Sample", "Verify", "Accepted")
			fmt.Printf("%-6s %12s %12s %12s %10s\n", "---", "", "rows/s", "", "")
			var sumRate float64
			for i, r := range results {
				rate := float64(rows) / r.Sample.Seconds()
				sumRate += rate
				fmt.Printf("%-6d %12s %12.0f %12s %10d\n", i+1, r.Sample.Round(time.Microsecond), rate, r.Verify.Round(time.Microsecond), r.Accepted)
			}
			fmt.Printf("\n%-6s %12s %12.0f\n", "Avg", "", sumRate/float64(len(results)))

			var mem runtime.MemStats
			runtime.ReadMemStats(&mem)
			fmt.Printf("\nMemory: %.1f MB alloc, %.1f MB sys\n",
				float64(mem.Alloc)/(1024*1024),
				float64(mem.Sys)/(1024*1024))
			return nil
		},
	}
}

func sampleRequests(cfg sampler.GenerationConfig, n int, gen *rng.Generator) []sampler.Request {
	reqs := make([]sampler.Request, n)
	for i := range reqs {
		reqs[i] = sampler.Request{
			ID:     fmt.Sprintf("bench-%d", i),
			Config: cfg,
			RNG:    rng.New(uint64(gen.Uniform() * (1 << 53))),
		}
	}
	return reqs
}

// verifyRequests splits rows target rows into requests of draftLen drafts
// each; drafted tokens are sampled from the draft batch.
func verifyRequests(cfg sampler.GenerationConfig, draft *tensor.HostBatch, rows, draftLen int, gen *rng.Generator) []sampler.VerifyRequest {
	_, vocab := draft.Shape()
	var reqs []sampler.VerifyRequest
	scratch := nucleus.NewScratch()
	for start := 0; start < rows; start += draftLen {
		n := min(draftLen, rows-start)
		steps := make([]sampler.DraftStep, n)
		for pos := range steps {
			row := draft.Data[(start+pos)*vocab : (start+pos+1)*vocab]
			res := nucleus.SampleTopP(row, 1, gen.Uniform(), scratch, nil)
			steps[pos] = sampler.DraftStep{Token: int32(res.Token), Prob: res.Prob, Dist: tensor.HostDist(row)}
		}
		reqs = append(reqs, sampler.VerifyRequest{
			Request: sampler.Request{ID: fmt.Sprintf("verify-%d", start), Config: cfg, RNG: rng.New(uint64(start))},
			State:   discardTokens{},
			Drafts:  steps,
		})
	}
	return reqs
}
