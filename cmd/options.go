package cmd

import (
	"github.com/andresmejia3/reframe/internal/config"
	"github.com/andresmejia3/reframe/internal/pipeline"
	"github.com/spf13/cobra"
)

// Options holds the reconstruction flags shared by rebuild, batch and analyze.
// Only flags the user actually set override the loaded configuration.
type Options struct {
	Bins            int
	FenceMultiplier float64
	TieBreak        string
	Seed            string
	CacheBudget     int64
	Codec           string
	ScoreChart      string
	Overwrite       bool
}

func addTuningFlags(cmd *cobra.Command, opts *Options) {
	d := config.Default()
	cmd.Flags().IntVar(&opts.Bins, "bins", d.Bins, "Histogram bins over [0,256) used for outlier scoring")
	cmd.Flags().Float64VarP(&opts.FenceMultiplier, "fence", "k", d.FenceMultiplier, "Tukey fence multiplier (threshold = Q1 - k*IQR)")
	cmd.Flags().StringVar(&opts.TieBreak, "tie-break", string(d.TieBreak), "Equal-distance winner: lowest, highest")
	cmd.Flags().StringVar(&opts.Seed, "seed", string(d.Seed), "Start frame selection: extremal, farthest-pair")
	cmd.Flags().Int64Var(&opts.CacheBudget, "cache-budget", d.CacheBudget, "Bytes of decoded frames held in memory before spilling to disk")
}

func addOutputFlags(cmd *cobra.Command, opts *Options) {
	cmd.Flags().StringVar(&opts.Codec, "codec", config.DefaultCodec, "ffmpeg video encoder for the candidates")
	cmd.Flags().StringVar(&opts.ScoreChart, "chart", "", "Write a PNG chart of correlation scores to this path")
	cmd.Flags().BoolVar(&opts.Overwrite, "overwrite", false, "Replace candidate files that already exist")
}

// applyOptions overlays the flags the user set on c and validates the result.
func applyOptions(cmd *cobra.Command, opts Options, c *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("bins") {
		c.Bins = opts.Bins
	}
	if flags.Changed("fence") {
		c.FenceMultiplier = opts.FenceMultiplier
	}
	if flags.Changed("tie-break") {
		c.TieBreak = config.TieBreak(opts.TieBreak)
	}
	if flags.Changed("seed") {
		c.Seed = config.Seed(opts.Seed)
	}
	if flags.Changed("cache-budget") {
		c.CacheBudget = opts.CacheBudget
	}
	if flags.Changed("codec") {
		c.Codec = opts.Codec
	}
	if flags.Changed("chart") {
		c.ScoreChart = opts.ScoreChart
	}
	return c.Validate()
}

// pipelineDeps builds the run dependencies from the global state.
func pipelineDeps(progress bool) pipeline.Deps {
	deps := pipeline.Deps{Logger: &log}
	if DB != nil {
		deps.Ledger = DB
	}
	if progress {
		deps.Progress = rootCmd.ErrOrStderr()
	}
	return deps
}
