package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var ingestForce bool

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Index new and changed documents from the source root",
	Long: `Walks the configured source root, compares content hashes against
the index, and ingests new and changed files. Documents deleted from
disk are removed from the index. A failure in one document never
aborts the run.`,
	Args: cobra.NoArgs,
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().BoolVar(&ingestForce, "force", false, "re-index unchanged documents too")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	report, err := a.ingestor.IngestDir(ctx, a.cfg.Source.Root, ingestForce)
	if err != nil {
		return fmt.Errorf("ingest %s: %w", a.cfg.Source.Root, err)
	}

	cmd.Printf("Ingested:  %d\n", report.Ingested)
	cmd.Printf("Updated:   %d\n", report.Updated)
	cmd.Printf("Unchanged: %d\n", report.Unchanged)
	cmd.Printf("Removed:   %d\n", report.Removed)

	if len(report.Failed) > 0 {
		cmd.Printf("Failed:    %d\n", len(report.Failed))
		for _, f := range report.Failed {
			cmd.Printf("  %s: %v\n", f.Path, f.Err)
		}
		return fmt.Errorf("%d documents failed", len(report.Failed))
	}
	return nil
}
