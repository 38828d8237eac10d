package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/andresmejia3/reframe/internal/utils"
	"github.com/spf13/cobra"
)

var (
	resetDB      bool
	resetOutputs bool
	resetYes     bool
)

var resetCmd = &cobra.Command{
	Use:         "reset",
	Short:       "Reset system state (Ledger, Candidate Videos)",
	Long:        "Clears all data. By default, it resets everything. Use flags to clear specific components.",
	Annotations: map[string]string{ledgerAnnotation: "required"},
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		// If no flags are set, default to clearing EVERYTHING
		if !resetDB && !resetOutputs {
			resetDB = true
			resetOutputs = true
		}

		reader := bufio.NewReader(cmd.InOrStdin())

		// Candidate paths live in the ledger, so collect them before dropping it.
		if resetOutputs {
			runs, err := DB.ListRuns(cmd.Context())
			if err != nil {
				utils.ShowError("Failed to list runs", err, nil)
				return err
			}
			var paths []string
			for _, r := range runs {
				paths = append(paths, r.ForwardPath, r.ReversePath)
			}
			if len(paths) > 0 && confirm(reader, fmt.Sprintf("⚠️  Are you sure you want to delete %d candidate videos?", len(paths))) {
				fmt.Println("🗑️  Clearing Candidate Videos...")
				for _, p := range paths {
					removeFile(p)
				}
			}
		}

		if resetDB {
			if confirm(reader, "⚠️  Are you sure you want to DROP all database tables?") {
				fmt.Println("🗑️  Clearing Database...")
				if err := DB.Reset(cmd.Context()); err != nil {
					utils.ShowError("Failed to reset database", err, nil)
					return err
				}
			}
		}

		fmt.Println("✨ System Reset Complete.")
		return nil
	},
}

func init() {
	resetCmd.Flags().BoolVar(&resetDB, "ledger", false, "Drop the PostgreSQL run ledger")
	resetCmd.Flags().BoolVar(&resetOutputs, "outputs", false, "Delete candidate videos recorded in the ledger")
	resetCmd.Flags().BoolVarP(&resetYes, "yes", "y", false, "Do not ask for confirmation")
	rootCmd.AddCommand(resetCmd)
}

func confirm(r *bufio.Reader, prompt string) bool {
	if resetYes {
		return true
	}
	fmt.Printf("%s [y/N]: ", prompt)
	res, err := r.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false
	}
	res = strings.TrimSpace(strings.ToLower(res))
	return res == "y" || res == "yes"
}

func removeFile(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "⚠️  Failed to remove %s: %v\n", path, err)
	}
}
