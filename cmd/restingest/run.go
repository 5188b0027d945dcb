package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Sternrassler/rest-ingest/pkg/config"
	"github.com/Sternrassler/rest-ingest/pkg/ingest"
	"github.com/Sternrassler/rest-ingest/pkg/logging"
	"github.com/Sternrassler/rest-ingest/pkg/retry"
)

// runSummary is printed as one JSON line per config.
type runSummary struct {
	Config     string `json:"config"`
	RunID      string `json:"run_id,omitempty"`
	Records    int    `json:"records"`
	Pages      int    `json:"pages"`
	OutputPath string `json:"output_path,omitempty"`
	MirrorKey  string `json:"mirror_key,omitempty"`
	DurationMS int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

type runOptions struct {
	concurrency  int
	retries      int
	retryBackoff time.Duration
	outputDir    string
}

func newRunCmd() *cobra.Command {
	opts := runOptions{}

	cmd := &cobra.Command{
		Use:   "run CONFIG...",
		Short: "Run one ingest per config document",
		Long: `Run one ingest per config document (JSON, or YAML by extension).

Examples:
  # Ingest a single endpoint
  restingest run configs/orders.json

  # Ingest several endpoints, two at a time, retrying transient failures
  restingest run --concurrency 2 --retries 3 configs/*.yaml`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigs(cmd.Context(), args, opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().IntVar(&opts.concurrency, "concurrency", 1, "number of configs ingested at once")
	cmd.Flags().IntVar(&opts.retries, "retries", 0, "retries per run for transient failures (5xx, 429, network)")
	cmd.Flags().DurationVar(&opts.retryBackoff, "retry-backoff", retry.DefaultConfig().InitialBackoff, "initial backoff between retries")
	cmd.Flags().StringVar(&opts.outputDir, "output-dir", "", "override output_dir of every config")
	return cmd
}

// runConfigs ingests every config in paths and writes one summary line per
// run to out. It fails when any run failed.
func runConfigs(ctx context.Context, paths []string, opts runOptions, out io.Writer) error {
	if opts.concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1 (got %d)", opts.concurrency)
	}
	if opts.retries < 0 {
		return fmt.Errorf("retries must not be negative (got %d)", opts.retries)
	}

	storeOpts, closeStore, err := runStoreOptions(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	pool, err := ants.NewPool(opts.concurrency)
	if err != nil {
		return fmt.Errorf("create worker pool: %w", err)
	}
	defer pool.Release()

	logger := logging.NewLogger("cli")
	enc := json.NewEncoder(out)

	var (
		mu     sync.Mutex
		failed int
		wg     sync.WaitGroup
	)
	report := func(s runSummary) {
		mu.Lock()
		defer mu.Unlock()
		if s.Error != "" {
			failed++
		}
		if err := enc.Encode(s); err != nil {
			logger.Warn().Err(err).Msg("Failed to write summary")
		}
	}

	for _, path := range paths {
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			report(ingestFile(ctx, path, opts, storeOpts, logging.ForConfig(logger, path)))
		})
		if err != nil {
			wg.Done()
			report(runSummary{Config: path, Error: fmt.Sprintf("schedule: %v", err)})
		}
	}
	wg.Wait()

	if failed > 0 {
		return fmt.Errorf("%d of %d runs failed", failed, len(paths))
	}
	return nil
}

// ingestFile loads one config and runs it, retrying transient failures.
func ingestFile(ctx context.Context, path string, opts runOptions, ingestOpts []ingest.Option, logger zerolog.Logger) runSummary {
	summary := runSummary{Config: path}

	cfg, err := config.FromJSON(path)
	if err == nil && opts.outputDir != "" {
		cfg.OutputDir, err = config.ResolvePath(opts.outputDir)
	}
	if err != nil {
		logger.Error().Err(err).Msg("Invalid config")
		summary.Error = err.Error()
		return summary
	}

	ing, err := ingest.New(cfg, append([]ingest.Option{ingest.WithLogger(logger)}, ingestOpts...)...)
	if err != nil {
		summary.Error = err.Error()
		return summary
	}
	defer ing.Close()

	logger.Debug().
		Str("url", ing.Config().URL()).
		Str("output_dir", ing.Config().OutputDir).
		Msg("Config loaded")

	retryCfg := retry.DefaultConfig()
	retryCfg.MaxAttempts = opts.retries + 1
	if opts.retryBackoff > 0 {
		retryCfg.InitialBackoff = opts.retryBackoff
	}

	var result *ingest.Result
	err = retry.Do(ctx, retryCfg, func(ctx context.Context) error {
		var err error
		result, err = ing.Ingest(ctx)
		return err
	})
	if err != nil {
		if errors.Is(err, retry.ErrExhausted) {
			logger.Error().Err(err).Int("attempts", retryCfg.MaxAttempts).Msg("Giving up")
		}
		summary.Error = err.Error()
		return summary
	}

	summary.RunID = result.RunID
	summary.Records = len(result.Records)
	summary.Pages = result.Pages
	summary.OutputPath = result.OutputPath
	summary.MirrorKey = result.MirrorKey
	summary.DurationMS = result.Duration.Milliseconds()
	return summary
}
