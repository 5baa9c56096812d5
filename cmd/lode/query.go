package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	lode "github.com/lodekb/lode"
)

var (
	queryTopK   int
	queryImages bool
)

var queryCmd = &cobra.Command{
	Use:   "query QUESTION",
	Short: "Answer a question from the knowledge base",
	Long: `Runs hybrid dense+keyword retrieval over the index, expands the
winning chunks to their surrounding context, and synthesizes a cited
answer with the configured chat model.`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().IntVarP(&queryTopK, "top-k", "k", 0, "number of retrieval hits (default from config)")
	queryCmd.Flags().BoolVar(&queryImages, "images", false, "list image files linked to the answer")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	var opts []lode.QueryOption
	if queryTopK > 0 {
		opts = append(opts, lode.QueryTopK(queryTopK))
	}
	if queryImages {
		opts = append(opts, lode.QueryWithImages())
	}

	result, err := a.engine.Query(ctx, args[0], opts...)
	if errors.Is(err, lode.ErrNoKnowledge) {
		return fmt.Errorf("the index is empty; run `lode ingest` first")
	}
	if err != nil {
		return err
	}

	cmd.Println(result.Answer)

	if len(result.Citations) > 0 {
		cmd.Println()
		cmd.Println("Sources:")
		for _, c := range result.Citations {
			switch {
			case c.PageEnd > c.PageStart:
				cmd.Printf("  %s (pages %d-%d)\n", c.Path, c.PageStart, c.PageEnd)
			case c.PageStart > 0:
				cmd.Printf("  %s (page %d)\n", c.Path, c.PageStart)
			default:
				cmd.Printf("  %s\n", c.Path)
			}
		}
	}

	if queryImages && len(result.Images) > 0 {
		cmd.Println()
		cmd.Println("Images:")
		for _, p := range result.Images {
			cmd.Printf("  %s\n", p)
		}
	}
	return nil
}
