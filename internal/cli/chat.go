package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/chative-core/agentbuilder/internal/agent/graph"
	"github.com/chative-core/agentbuilder/internal/agent/model"
	errx "github.com/chative-core/agentbuilder/internal/core/error"
)

const chatHelp = "commands: /state shows the conversation, /reset starts over, /quit exits"

func newChatCmd(open opener) *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the agent interactively",
		Long: `Start a conversation and read messages from stdin, one per line.
` + chatHelp + `.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := open(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			return runChat(cmd.Context(), app.Agent, userID, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id for the conversation (random when empty)")
	return cmd
}

func runChat(ctx context.Context, agent *graph.Agent, userID string, in io.Reader, out io.Writer) error {
	cc, err := agent.StartConversation(ctx, userID)
	if err != nil {
		return fmt.Errorf("start conversation: %w", err)
	}
	fmt.Fprintln(out, titleStyle.Render(fmt.Sprintf("%s agent", agent.AgentType())))
	fmt.Fprintln(out, dimStyle.Render(fmt.Sprintf("session %s, %s", cc.SessionID, chatHelp)))

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, userStyle.Render("you> "))
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())

		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return agent.EndConversation(ctx, cc.SessionID)
		case "/state":
			snapshot, err := agent.Conversation(ctx, cc.SessionID)
			if err != nil {
				fmt.Fprintln(out, errorStyle.Render(describeError(err)))
				continue
			}
			fmt.Fprintln(out, renderState(snapshot))
			continue
		case "/reset":
			if err := agent.EndConversation(ctx, cc.SessionID); err != nil {
				return err
			}
			if cc, err = agent.StartConversation(ctx, cc.UserID); err != nil {
				return fmt.Errorf("start conversation: %w", err)
			}
			fmt.Fprintln(out, dimStyle.Render("session "+cc.SessionID))
			continue
		}

		resp, err := agent.ProcessMessage(ctx, cc.SessionID, line)
		if err != nil {
			fmt.Fprintln(out, errorStyle.Render(describeError(err)))
			continue
		}
		fmt.Fprintln(out, renderReply(resp))
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	return agent.EndConversation(ctx, cc.SessionID)
}

func renderReply(resp *model.ValidatedResponse) string {
	var b strings.Builder
	b.WriteString(agentStyle.Render("agent> "))
	b.WriteString(resp.Response)

	meta := fmt.Sprintf("state %s, confidence %.2f", valueOr(resp.NextState, "(unchanged)"), resp.Confidence)
	if len(resp.Actions) > 0 {
		names := make([]string, 0, len(resp.Actions))
		for _, a := range resp.Actions {
			names = append(names, a.Name)
		}
		meta += ", actions " + strings.Join(names, ", ")
	}
	b.WriteString("\n")
	b.WriteString(dimStyle.Render("  " + meta))
	return b.String()
}

func renderState(cc *model.ConversationContext) string {
	collected, _ := json.MarshalToString(cc.CollectedInfo)
	lines := []string{
		"state:     " + cc.CurrentState,
		"collected: " + collected,
		"missing:   " + strings.Join(cc.MissingInfo(), ", "),
		fmt.Sprintf("complete:  %t", cc.IsRequiredInfoComplete()),
		fmt.Sprintf("turns:     %d", len(cc.ConversationHistory)/2),
	}
	if cost, ok := cc.Metadata[graph.MetaTotalCostUSD]; ok {
		lines = append(lines, fmt.Sprintf("cost:      $%.6f", cost))
	}
	return panelStyle.Render(strings.Join(lines, "\n"))
}

// describeError turns a typed failure into a line for the user.
func describeError(err error) string {
	switch errx.KindOf(err) {
	case errx.ErrResponseContract, errx.ErrResponseParse:
		return "the model replied with something we can't trust: " + err.Error()
	case errx.ErrModelInvocation, errx.ErrKnowledgeRetrieval:
		return "the inference backend is unavailable: " + err.Error()
	case errx.ErrTimeout:
		return "timed out: " + err.Error()
	case errx.ErrSessionNotFound:
		return "the conversation no longer exists"
	default:
		return "error: " + err.Error()
	}
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
