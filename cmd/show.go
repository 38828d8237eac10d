package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/andresmejia3/reframe/internal/store"
	"github.com/andresmejia3/reframe/internal/utils"
	"github.com/spf13/cobra"
)

var showFrames bool

var showCmd = &cobra.Command{
	Use:         "show <run_id>",
	Short:       "Show the fence, recovered order and chosen candidate of a run",
	Args:        cobra.ExactArgs(1),
	Annotations: map[string]string{ledgerAnnotation: "required"},
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		run, err := DB.GetRun(cmd.Context(), args[0])
		if err != nil {
			utils.ShowError("Failed to load run", err, nil)
			return err
		}
		writeRun(cmd.OutOrStdout(), run, showFrames)
		return nil
	},
}

func init() {
	showCmd.Flags().BoolVar(&showFrames, "frames", false, "Include the per-frame score table")
	rootCmd.AddCommand(showCmd)
}

func writeRun(out io.Writer, r store.Run, frames bool) {
	chosen := r.Chosen
	if chosen == "" {
		chosen = "not picked yet"
	}
	fmt.Fprintf(out, "Run:        %s\n", r.ID)
	fmt.Fprintf(out, "Video:      %s (%s)\n", r.VideoPath, shortID(r.VideoID))
	fmt.Fprintf(out, "Created:    %s\n", r.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(out, "Frames:     %d decoded, %d kept\n", r.FrameCount, r.KeptCount)
	fmt.Fprintf(out, "Fence:      Q1=%.4f Q3=%.4f k=%.2f threshold=%.4f (%d bins)\n", r.Q1, r.Q3, r.FenceMultiplier, r.Threshold, r.Bins)
	fmt.Fprintf(out, "Chain:      seed=%s tie-break=%s\n", r.Seed, r.TieBreak)
	fmt.Fprintf(out, "Sequence:   %s\n", joinInts(r.Sequence))
	fmt.Fprintf(out, "Forward:    %s\n", r.ForwardPath)
	fmt.Fprintf(out, "Reverse:    %s\n", r.ReversePath)
	fmt.Fprintf(out, "Chosen:     %s\n", chosen)

	if !frames {
		return
	}
	fmt.Fprintln(out)
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "FRAME\tSCORE\tKEPT\tPOSITION")
	fmt.Fprintln(w, "-----\t-----\t----\t--------")
	for _, f := range r.Frames {
		pos := "-"
		if f.Position >= 0 {
			pos = fmt.Sprint(f.Position)
		}
		fmt.Fprintf(w, "%d\t%.4f\t%t\t%s\n", f.Index, f.Score, f.Kept, pos)
	}
	w.Flush()
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
