package main

import (
	"strings"

	"github.com/spf13/cobra"

	"echodoc/internal/domain"
)

var showSources bool

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask one question about the indexed documents",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

func init() {
	askCmd.Flags().BoolVar(&showSources, "sources", false, "print the retrieved passages")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), cfg, logger, true)
	if err != nil {
		return err
	}
	defer a.Close()

	question := strings.Join(args, " ")
	if showSources {
		passages, err := a.retriever.Retrieve(cmd.Context(), question, 0)
		if err != nil {
			return err
		}
		for i, p := range passages {
			cmd.Printf("[%d] %.3f %s\n", i+1, p.Score, p.Metadata[domain.MetaSource])
		}
		if len(passages) > 0 {
			cmd.Println()
		}
	}

	history, err := a.orchestrator.Continue(cmd.Context(), domain.History{
		{Role: domain.RoleUser, Content: question},
	})
	if err != nil {
		return err
	}
	cmd.Println(history[len(history)-1].Content)
	return nil
}
