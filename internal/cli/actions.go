package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newActionsCmd(open opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "actions",
		Short: "Inspect the actions the agent can dispatch",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List registered actions and their parameters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := open(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			out := cmd.OutOrStdout()
			schemas := app.Agent.Actions()
			if len(schemas) == 0 {
				fmt.Fprintf(out, "The %s persona has no actions.\n", app.Persona.Name)
				return nil
			}

			fmt.Fprintf(out, "%d action(s):\n\n", len(schemas))
			for _, s := range schemas {
				params := make([]string, 0, len(s.Parameters))
				for _, p := range s.Parameters {
					entry := p.Name + " " + p.Type
					if !p.Required {
						entry += " (optional)"
					}
					params = append(params, entry)
				}
				fmt.Fprintf(out, "  %-16s %s\n", s.Name, s.Description)
				fmt.Fprintf(out, "  %-16s %s\n", "", dimStyle.Render(strings.Join(params, ", ")))
			}
			return nil
		},
	})
	return cmd
}
