package cmd

import (
	"fmt"

	"github.com/andresmejia3/reframe/internal/materialize"
	"github.com/andresmejia3/reframe/internal/utils"
	"github.com/spf13/cobra"
)

var pickCmd = &cobra.Command{
	Use:         "pick <run_id> <forward|reverse>",
	Short:       "Record which candidate plays in the correct direction",
	Args:        cobra.ExactArgs(2),
	Annotations: map[string]string{ledgerAnnotation: "required"},
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		o, err := materialize.ParseOrientation(args[1])
		if err != nil {
			return err
		}
		if err := DB.ChooseOrientation(cmd.Context(), args[0], o.String()); err != nil {
			utils.ShowError("Failed to record choice", err, nil)
			return err
		}
		fmt.Printf("✅ Run %s marked as %s\n", args[0], o)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pickCmd)
}
