package main

import (
	"errors"

	"github.com/spf13/cobra"

	lode "github.com/lodekb/lode"
)

var checkRebuild bool

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify the keyword index matches the vector index",
	Long: `Checks that every embedded chunk is present in the FTS5 keyword
index and vice versa. With --rebuild, a drifted keyword index is
rebuilt from the chunk table.`,
	Args: cobra.NoArgs,
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().BoolVar(&checkRebuild, "rebuild", false, "rebuild the keyword index if drift is found")
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	err = a.store.CheckConsistency(ctx)
	if err == nil {
		cmd.Println("Indices are consistent.")
		return nil
	}
	if !errors.Is(err, lode.ErrIndexConsistency) {
		return err
	}

	cmd.Printf("Drift detected: %v\n", err)
	if !checkRebuild {
		cmd.Println("Run `lode check --rebuild` to repair.")
		return err
	}

	if err := a.store.RebuildKeywordIndex(ctx); err != nil {
		return err
	}
	cmd.Println("Keyword index rebuilt.")
	return a.store.CheckConsistency(ctx)
}
