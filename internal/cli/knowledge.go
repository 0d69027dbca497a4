package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newKnowledgeCmd(open opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "knowledge",
		Short: "Add and query the agent's knowledge",
		Long: `Add entries to the knowledge store and run the same similarity query a
conversation turn would. With the memory backend entries last only for the
lifetime of the command.`,
	}
	cmd.AddCommand(newKnowledgeAddCmd(open), newKnowledgeQueryCmd(open))
	return cmd
}

func newKnowledgeAddCmd(open opener) *cobra.Command {
	var (
		category string
		meta     map[string]string
	)

	cmd := &cobra.Command{
		Use:   "add <content>",
		Short: "Add a knowledge entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := open(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			metadata := make(map[string]any, len(meta))
			for k, v := range meta {
				metadata[k] = v
			}
			id, err := app.Agent.AddKnowledge(cmd.Context(), category, args[0], metadata)
			if err != nil {
				return fmt.Errorf("adding knowledge: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Knowledge entry %d added.\n", id)
			return nil
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "knowledge category (defaults to the persona's)")
	cmd.Flags().StringToStringVar(&meta, "meta", nil, "metadata as key=value pairs")
	return cmd
}

func newKnowledgeQueryCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "query <text>",
		Short: "Find knowledge relevant to text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := open(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			results, err := app.Agent.QueryKnowledge(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(results) == 0 {
				fmt.Fprintf(out, "No knowledge found for %q.\n", args[0])
				return nil
			}

			fmt.Fprintf(out, "%d result(s) for %q:\n\n", len(results), args[0])
			fmt.Fprintf(out, "  %-6s %-9s %-12s %s\n", "ID", "RELEVANCE", "CATEGORY", "CONTENT")
			for _, r := range results {
				fmt.Fprintf(out, "  %-6d %-9.3f %-12s %s\n", r.ID, r.Relevance, r.Category, r.Content)
			}
			return nil
		},
	}
}
