package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// demoQueries walk a lead from first contact to a booked demo.
var demoQueries = []struct {
	description string
	query       string
}{
	{
		description: "Initial greeting and product inquiry",
		query:       "Hi, I'm interested in your product",
	},
	{
		description: "Pricing question",
		query:       "How much does it cost?",
	},
	{
		description: "Lead details",
		query:       "I'm Ann from Acme, my email is ann@acme.example",
	},
	{
		description: "Demo request",
		query:       "Can we book a demo next Tuesday at 10am?",
	},
}

func newDemoCmd(open opener) *cobra.Command {
	var delay time.Duration

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run a scripted sales conversation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := open(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			agent := app.Agent

			cc, err := agent.StartConversation(ctx, "")
			if err != nil {
				return fmt.Errorf("start conversation: %w", err)
			}
			defer agent.EndConversation(ctx, cc.SessionID)

			for i, test := range demoQueries {
				fmt.Fprintln(out, titleStyle.Render(fmt.Sprintf("Test %d: %s", i+1, test.description)))
				fmt.Fprintln(out, userStyle.Render("you> ")+test.query)

				resp, err := agent.ProcessMessage(ctx, cc.SessionID, test.query)
				if err != nil {
					fmt.Fprintln(out, errorStyle.Render(describeError(err)))
				} else {
					fmt.Fprintln(out, renderReply(resp))
				}

				if delay > 0 && i < len(demoQueries)-1 {
					time.Sleep(delay)
				}
			}

			final, err := agent.Conversation(ctx, cc.SessionID)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, renderState(final))
			if !final.IsRequiredInfoComplete() {
				fmt.Fprintln(out, warnStyle.Render("still missing: "+fmt.Sprint(final.MissingInfo())))
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&delay, "delay", 500*time.Millisecond, "pause between turns")
	return cmd
}
