package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/andresmejia3/reframe/internal/store"
	"github.com/andresmejia3/reframe/internal/utils"
	"github.com/spf13/cobra"
)

var runsCmd = &cobra.Command{
	Use:         "runs",
	Short:       "List recorded reconstruction runs",
	Annotations: map[string]string{ledgerAnnotation: "required"},
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		runs, err := DB.ListRuns(cmd.Context())
		if err != nil {
			utils.ShowError("Failed to list runs", err, nil)
			return err
		}
		writeRuns(cmd.OutOrStdout(), runs)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runsCmd)
}

func writeRuns(out io.Writer, runs []store.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs found in database.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "RUN\tVIDEO\tKEPT\tCHOSEN\tCREATED")
	fmt.Fprintln(w, "---\t-----\t----\t------\t-------")

	for _, r := range runs {
		chosen := r.Chosen
		if chosen == "" {
			chosen = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%d/%d\t%s\t%s\n", r.ID, r.VideoPath, r.KeptCount, r.FrameCount, chosen, r.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	w.Flush()
}
