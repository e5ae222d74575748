package main

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"echodoc/internal/logging"
	"echodoc/internal/tui"
)

var chatCmd = &cobra.Command{
	Use:   "chat [path|glob]...",
	Short: "Open the interactive chat",
	Long: `Chat opens a terminal conversation over the index. Paths given as
arguments are ingested first and their summaries shown in the header.`,
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	// Log lines would corrupt the alternate screen.
	a, err := newApp(ctx, cfg, logging.Discard(), true)
	if err != nil {
		return err
	}
	defer a.Close()

	var summaries []string
	if len(args) > 0 {
		results, err := a.pipeline.IngestPaths(ctx, args)
		if err != nil {
			return err
		}
		if err := a.persist(); err != nil {
			return err
		}
		for _, res := range results {
			if res.Summary != "" {
				summaries = append(summaries, res.Summary)
			}
		}
	}

	_, err = tea.NewProgram(tui.New(ctx, a.orchestrator, strings.Join(summaries, " ")), tea.WithAltScreen()).Run()
	return err
}
