package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/andresmejia3/reframe/internal/pipeline"
	"github.com/andresmejia3/reframe/internal/utils"
	"github.com/spf13/cobra"
)

var (
	rebuildOpts    Options
	rebuildInput   string
	rebuildForward string
	rebuildReverse string
)

var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Drop corrupted frames, recover the frame order and write forward and reverse candidates",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		if err := applyOptions(cmd, rebuildOpts, &cfg); err != nil {
			return err
		}
		return runRebuild(cmd.Context())
	},
}

func init() {
	rebuildCmd.Flags().StringVarP(&rebuildInput, "input", "i", "", "Path to the corrupted video")
	rebuildCmd.Flags().StringVarP(&rebuildForward, "forward", "f", "", "Forward candidate path (default: <input>_forward<ext>)")
	rebuildCmd.Flags().StringVarP(&rebuildReverse, "reverse", "r", "", "Reverse candidate path (default: <input>_reverse<ext>)")
	addTuningFlags(rebuildCmd, &rebuildOpts)
	addOutputFlags(rebuildCmd, &rebuildOpts)

	rebuildCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(rebuildCmd)
}

func runRebuild(ctx context.Context) error {
	job := pipeline.Job{
		Input:       rebuildInput,
		ForwardPath: rebuildForward,
		ReversePath: rebuildReverse,
		ScoreChart:  cfg.ScoreChart,
		Overwrite:   rebuildOpts.Overwrite,
	}
	if _, err := os.Stat(job.Input); err != nil {
		utils.ShowError("Cannot read input video", err, nil)
		return err
	}

	fmt.Fprintf(os.Stderr, "📼 Rebuilding %s\n", job.Input)
	res, err := pipeline.Run(ctx, job, cfg, pipelineDeps(true))
	if err != nil {
		reportRunError("Rebuild failed", err)
		return err
	}

	fmt.Fprintf(os.Stderr, "\n🏁 Kept %d of %d frames in %s.\n", len(res.Sequence), res.FrameCount, res.Elapsed.Round(time.Millisecond))
	fmt.Printf("forward\t%s\n", res.ForwardPath)
	fmt.Printf("reverse\t%s\n", res.ReversePath)
	if DB != nil {
		fmt.Printf("run\t%s\n", res.RunID)
		fmt.Fprintf(os.Stderr, "👉 Watch both and record the correct one with: reframe pick %s <forward|reverse>\n", res.RunID)
	}
	return nil
}

// reportRunError prints the boxed report, with ffmpeg logs when a subprocess failed.
func reportRunError(context string, err error) {
	var cmdErr *utils.CommandError
	if errors.As(err, &cmdErr) {
		utils.ShowError(context, err, cmdErr.Cmd)
		return
	}
	utils.ShowError(context, err, nil)
}
