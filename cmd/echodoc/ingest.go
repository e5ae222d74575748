package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <path|glob>...",
	Short: "Add documents to the index",
	Long: `Ingest chunks, embeds and indexes .txt, .md and .pdf files. Re-ingesting
a file replaces its chunks.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), cfg, logger, false)
	if err != nil {
		return err
	}
	defer a.Close()

	results, err := a.pipeline.IngestPaths(cmd.Context(), args)
	for _, res := range results {
		cmd.Printf("%s: %d chunks (%s)\n", res.SourceName, res.Chunks, res.DocumentID)
		if res.Summary != "" {
			cmd.Printf("  %s\n", res.Summary)
		}
	}
	if len(results) > 0 {
		if perr := a.persist(); perr != nil {
			return perr
		}
	}
	if err != nil {
		return fmt.Errorf("ingest: %w", err)
	}
	_ = a.notifier.Notify(cmd.Context(), fmt.Sprintf("%d documents indexed", len(results)))
	return nil
}
