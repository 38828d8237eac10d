package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"text/tabwriter"

	"github.com/andresmejia3/reframe/internal/pipeline"
	"github.com/andresmejia3/reframe/internal/store"
	"github.com/andresmejia3/reframe/internal/worker"
	"github.com/spf13/cobra"
)

var (
	batchOpts    Options
	batchEngines int
	batchOutDir  string
)

var batchCmd = &cobra.Command{
	Use:   "batch <video>...",
	Short: "Rebuild several videos with parallel engines",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		if cmd.Flags().Changed("engines") {
			cfg.Engines = batchEngines
		}
		if err := applyOptions(cmd, batchOpts, &cfg); err != nil {
			return err
		}
		return runBatch(cmd.Context(), args)
	},
}

func init() {
	batchCmd.Flags().IntVarP(&batchEngines, "engines", "e", 1, "Number of videos processed concurrently")
	batchCmd.Flags().StringVarP(&batchOutDir, "out-dir", "o", "", "Directory for the candidates (default: beside each input)")
	addTuningFlags(batchCmd, &batchOpts)
	addOutputFlags(batchCmd, &batchOpts)
	// In batch mode --chart only enables charts; each one is named after its input.
	batchCmd.Flags().Lookup("chart").Usage = "Write <stem>_scores.png beside each pair of candidates when set to any value"

	rootCmd.AddCommand(batchCmd)
}

// lockedLedger serializes ledger writes; one pgx connection is not safe for concurrent use.
type lockedLedger struct {
	mu sync.Mutex
	l  pipeline.Ledger
}

func (l *lockedLedger) EnsureVideoMetadata(ctx context.Context, videoID, path string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.l.EnsureVideoMetadata(ctx, videoID, path)
}

func (l *lockedLedger) RecordRun(ctx context.Context, run store.Run) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.l.RecordRun(ctx, run)
}

// batchJobs derives output paths for every input and rejects collisions.
func batchJobs(inputs []string, outDir string, charts bool) ([]pipeline.Job, error) {
	jobs := make([]pipeline.Job, 0, len(inputs))
	seen := make(map[string]string)
	for _, in := range inputs {
		job := pipeline.Job{Input: in}
		dir := filepath.Dir(in)
		if outDir != "" {
			dir = outDir
		}
		base := filepath.Base(in)
		ext := filepath.Ext(base)
		stem := filepath.Join(dir, strings.TrimSuffix(base, ext))
		job.ForwardPath = stem + "_forward" + ext
		job.ReversePath = stem + "_reverse" + ext
		if charts {
			job.ScoreChart = stem + "_scores.png"
		}

		abs, _ := filepath.Abs(job.ForwardPath)
		if prev, ok := seen[abs]; ok {
			return nil, fmt.Errorf("%s and %s would write the same candidates in %s", prev, in, dir)
		}
		seen[abs] = in
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func runBatch(ctx context.Context, inputs []string) error {
	jobs, err := batchJobs(inputs, batchOutDir, cfg.ScoreChart != "")
	if err != nil {
		return err
	}
	for i := range jobs {
		jobs[i].Overwrite = batchOpts.Overwrite
	}
	if batchOutDir != "" {
		if err := os.MkdirAll(batchOutDir, 0o755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}

	var ledger pipeline.Ledger
	if DB != nil {
		ledger = &lockedLedger{l: DB}
	}
	// Interleaved bars from several engines are unreadable; log instead.
	showProgress := cfg.Engines == 1

	fmt.Fprintf(os.Stderr, "⚙️  Spawning %d Worker Engines for %d videos...\n", cfg.Engines, len(jobs))
	results := worker.Run(ctx, cfg.Engines, jobs, func(ctx context.Context, engine int, job pipeline.Job) (*pipeline.Result, error) {
		logger := log.With().Int("engine", engine).Logger()
		deps := pipelineDeps(showProgress)
		deps.Logger = &logger
		deps.Ledger = ledger

		res, err := pipeline.Run(ctx, job, cfg, deps)
		if err != nil {
			logger.Error().Err(err).Str("input", job.Input).Msg("rebuild failed")
			return nil, err
		}
		logger.Info().Str("input", job.Input).Dur("elapsed", res.Elapsed).Msg("rebuild complete")
		return res, nil
	})

	failed := 0
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "INPUT\tSTATUS\tKEPT\tFORWARD\tREVERSE\tRUN")
	fmt.Fprintln(w, "-----\t------\t----\t-------\t-------\t---")
	for i, r := range results {
		if r.Err != nil {
			failed++
			fmt.Fprintf(w, "%s\tfailed: %v\t-\t-\t-\t-\n", jobs[i].Input, r.Err)
			continue
		}
		runID := "-"
		if ledger != nil {
			runID = r.Value.RunID
		}
		fmt.Fprintf(w, "%s\tok\t%d/%d\t%s\t%s\t%s\n", jobs[i].Input, len(r.Value.Sequence), r.Value.FrameCount, r.Value.ForwardPath, r.Value.ReversePath, runID)
	}
	w.Flush()

	if failed > 0 {
		return fmt.Errorf("%d of %d videos failed", failed, len(jobs))
	}
	fmt.Fprintf(os.Stderr, "\n🏁 Batch Complete. Rebuilt %d videos.\n", len(jobs))
	return nil
}
