package main

import (
	"github.com/spf13/cobra"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze FILE",
	Short: "Show how a file would be indexed, without indexing it",
	Long: `Parses and chunks a single file and prints the content breakdown:
text, table, and image block counts, pages, and the parent/child
chunks ingestion would produce. Nothing is embedded or stored.`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	an, err := a.ingestor.Analyze(ctx, args[0])
	if err != nil {
		return err
	}

	cmd.Printf("File:     %s\n", an.Path)
	cmd.Printf("Format:   %s\n", an.Format)
	if an.Pages > 0 {
		cmd.Printf("Pages:    %d\n", an.Pages)
	}
	cmd.Printf("Blocks:   %d text, %d table, %d image\n", an.Texts, an.Tables, an.Images)
	cmd.Printf("Chunks:   %d parents, %d children\n", an.Parents, an.Children)
	return nil
}
