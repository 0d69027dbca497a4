package personas

import (
	"context"
	_ "embed"
	"errors"

	"github.com/chative-core/agentbuilder/internal/agent/actions"
	logx "github.com/chative-core/agentbuilder/pkg/logger"
)

//go:embed sales.yaml
var salesYAML []byte

// Sales returns the built-in sales persona.
func Sales() (*Persona, error) {
	return Parse(salesYAML)
}

// FactRecorder stores facts extracted from a conversation.
type FactRecorder interface {
	RecordFact(ctx context.Context, userID, agentID, field, value string) error
}

type LeadArgs struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (LeadArgs) ActionDescription() string { return "Save lead information to the database" }

type DemoArgs struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

func (DemoArgs) ActionDescription() string { return "Schedule a product demonstration" }

var errNoCaller = errors.New("no conversation attached to the action context")

// RegisterSalesActions registers save_lead and schedule_demo. Both record
// what they receive as facts for the calling conversation's user.
func RegisterSalesActions(registry *actions.Registry, facts FactRecorder) {
	actions.Register(registry, "save_lead", func(ctx context.Context, args LeadArgs) (any, error) {
		caller, ok := actions.CallerFrom(ctx)
		if !ok {
			return nil, errNoCaller
		}
		if err := recordAll(ctx, facts, caller, [][2]string{{"name", args.Name}, {"email", args.Email}}); err != nil {
			return nil, err
		}
		logx.Info().Str("session_id", caller.SessionID).Str("lead", args.Name).Msg("lead saved")
		return map[string]any{"saved": true}, nil
	})

	actions.Register(registry, "schedule_demo", func(ctx context.Context, args DemoArgs) (any, error) {
		caller, ok := actions.CallerFrom(ctx)
		if !ok {
			return nil, errNoCaller
		}
		if err := recordAll(ctx, facts, caller, [][2]string{{"demo_date", args.Date}, {"demo_time", args.Time}}); err != nil {
			return nil, err
		}
		logx.Info().Str("session_id", caller.SessionID).Str("date", args.Date).Str("time", args.Time).Msg("demo scheduled")
		return map[string]any{"scheduled": true}, nil
	})
}

func recordAll(ctx context.Context, facts FactRecorder, caller actions.Caller, fields [][2]string) error {
	for _, f := range fields {
		if err := facts.RecordFact(ctx, caller.UserID, caller.AgentID, f[0], f[1]); err != nil {
			return err
		}
	}
	return nil
}
