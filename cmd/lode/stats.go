package main

import (
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show index contents",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	stats, err := a.store.Stats(ctx)
	if err != nil {
		return err
	}

	cmd.Printf("Documents: %d\n", stats.Documents)
	cmd.Printf("Parents:   %d\n", stats.Parents)
	cmd.Printf("Children:  %d\n", stats.Children)
	cmd.Printf("Images:    %d\n", stats.Images)

	docs, err := a.store.ListDocuments(ctx)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		return nil
	}

	cmd.Println()
	for _, d := range docs {
		if d.PageCount > 0 {
			cmd.Printf("  %-10s %4d pages  %s\n", d.Format, d.PageCount, d.Path)
		} else {
			cmd.Printf("  %-10s            %s\n", d.Format, d.Path)
		}
	}
	return nil
}
