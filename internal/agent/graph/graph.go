// Package graph runs one dialogue turn: the eino pipeline retrieves knowledge,
// builds the prompt, calls the model and validates its answer; the Agent then
// dispatches actions and commits the conversation.
package graph

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"

	"github.com/chative-core/agentbuilder/internal/agent/actions"
	"github.com/chative-core/agentbuilder/internal/agent/graph/conversations"
	"github.com/chative-core/agentbuilder/internal/agent/graph/nodes"
	"github.com/chative-core/agentbuilder/internal/agent/graph/observers"
	"github.com/chative-core/agentbuilder/internal/agent/graph/prompts"
	"github.com/chative-core/agentbuilder/internal/agent/knowledge"
	"github.com/chative-core/agentbuilder/internal/agent/model"
	errx "github.com/chative-core/agentbuilder/internal/core/error"
	logx "github.com/chative-core/agentbuilder/pkg/logger"
)

// Metadata keys the agent maintains on every conversation.
const (
	MetaTotalCostUSD = "total_cost_usd"
	MetaTotalTokens  = "total_tokens"
)

// Config holds everything needed to build an Agent.
type Config struct {
	// AgentType selects the system prompt, state prompts and action catalog.
	AgentType string
	// Category scopes knowledge retrieval. Defaults to AgentType.
	Category string

	ChatModel     einomodel.BaseChatModel
	ModelName     string
	Knowledge     *knowledge.Store
	Prompts       *prompts.Engine
	Actions       *actions.Registry
	Conversations *conversations.Manager

	// TurnTimeout bounds a whole ProcessMessage call. Zero disables it.
	TurnTimeout time.Duration
}

// GraphBuilder handles the construction of the turn pipeline graph.
type GraphBuilder struct {
	config *Config
	graph  *compose.Graph[model.TurnInput, *model.TurnOutput]
}

// Agent processes messages for one agent type.
type Agent struct {
	agentType     string
	category      string
	runnable      compose.Runnable[model.TurnInput, *model.TurnOutput]
	knowledge     *knowledge.Store
	actions       *actions.Registry
	conversations *conversations.Manager
	turnTimeout   time.Duration
}

// BuildAgent validates cfg, compiles the turn pipeline and returns the Agent.
func BuildAgent(ctx context.Context, cfg Config) (*Agent, error) {
	if cfg.AgentType == "" {
		return nil, errors.New("agent type is empty")
	}
	if cfg.ChatModel == nil {
		return nil, errors.New("chat model is nil")
	}
	if cfg.Knowledge == nil || cfg.Prompts == nil || cfg.Actions == nil || cfg.Conversations == nil {
		return nil, errors.New("agent dependencies are not properly initialized")
	}
	if cfg.Category == "" {
		cfg.Category = cfg.AgentType
	}

	runnable, err := BuildGraph(ctx, &cfg)
	if err != nil {
		return nil, err
	}

	logx.Debug().Str("agent_type", cfg.AgentType).Str("category", cfg.Category).Msg("Agent built successfully")
	return &Agent{
		agentType:     cfg.AgentType,
		category:      cfg.Category,
		runnable:      runnable,
		knowledge:     cfg.Knowledge,
		actions:       cfg.Actions,
		conversations: cfg.Conversations,
		turnTimeout:   cfg.TurnTimeout,
	}, nil
}

// BuildGraph constructs and returns the compiled turn pipeline.
func BuildGraph(ctx context.Context, config *Config) (compose.Runnable[model.TurnInput, *model.TurnOutput], error) {
	builder := &GraphBuilder{
		config: config,
		graph: compose.NewGraph[model.TurnInput, *model.TurnOutput](
			compose.WithGenLocalState(func(ctx context.Context) *model.TurnState {
				return &model.TurnState{}
			}),
		),
	}

	if err := builder.addNodes(); err != nil {
		return nil, err
	}
	if err := builder.addEdges(); err != nil {
		return nil, err
	}
	return builder.compile(ctx)
}

// addNodes adds all processing nodes to the graph
func (b *GraphBuilder) addNodes() error {
	steps := []error{
		b.graph.AddLambdaNode(nodes.NodeRetriever,
			nodes.NewRetrieverNode(b.config.Knowledge),
			compose.WithStatePreHandler(nodes.NewRetrieverPreHandler()),
			compose.WithStatePostHandler(nodes.NewRetrieverPostHandler()),
		),
		b.graph.AddLambdaNode(nodes.NodePromptBuilder,
			nodes.NewPromptBuilderNode(b.config.Prompts),
			compose.WithStatePostHandler(nodes.NewPromptBuilderPostHandler()),
		),
		b.graph.AddChatModelNode(nodes.NodeChatModel,
			nodes.NewChatModelNode(b.config.ChatModel),
			compose.WithStatePostHandler(nodes.NewChatModelPostHandler(b.config.ModelName)),
		),
		b.graph.AddLambdaNode(nodes.NodeValidator,
			nodes.NewValidatorNode(),
		),
	}
	if err := errors.Join(steps...); err != nil {
		logx.Error().Err(err).Msg("Error adding graph nodes")
		return fmt.Errorf("error adding graph nodes: %w", err)
	}
	return nil
}

// addEdges creates the main flow connections between nodes
func (b *GraphBuilder) addEdges() error {
	edges := [][2]string{
		{compose.START, nodes.NodeRetriever},
		{nodes.NodeRetriever, nodes.NodePromptBuilder},
		{nodes.NodePromptBuilder, nodes.NodeChatModel},
		{nodes.NodeChatModel, nodes.NodeValidator},
		{nodes.NodeValidator, compose.END},
	}

	for _, edge := range edges {
		if err := b.graph.AddEdge(edge[0], edge[1]); err != nil {
			logx.Error().Err(err).Str("from", edge[0]).Str("to", edge[1]).Msg("Error adding graph edge")
			return fmt.Errorf("error adding edge %s -> %s: %w", edge[0], edge[1], err)
		}
	}
	return nil
}

// compile finalizes and compiles the graph
func (b *GraphBuilder) compile(ctx context.Context) (compose.Runnable[model.TurnInput, *model.TurnOutput], error) {
	runnable, err := b.graph.Compile(ctx, compose.WithMaxRunSteps(10))
	if err != nil {
		logx.Error().Err(err).Msg("Error compiling graph")
		return nil, fmt.Errorf("error compiling graph: %w", err)
	}

	logx.Debug().Msg("Graph compiled successfully")
	return runnable, nil
}

func (a *Agent) AgentType() string { return a.agentType }

func (a *Agent) Category() string { return a.category }

// Actions returns the schemas of the actions the agent can dispatch.
func (a *Agent) Actions() []model.ActionSchema { return a.actions.List() }

// StartConversation opens a session with this agent. Empty userID gets a fresh id.
func (a *Agent) StartConversation(ctx context.Context, userID string) (*model.ConversationContext, error) {
	return a.conversations.Start(ctx, userID, a.agentType)
}

// Conversation returns a snapshot of the session.
func (a *Agent) Conversation(ctx context.Context, sessionID string) (*model.ConversationContext, error) {
	return a.conversations.Get(ctx, sessionID)
}

func (a *Agent) EndConversation(ctx context.Context, sessionID string) error {
	return a.conversations.End(ctx, sessionID)
}

// AddKnowledge stores content under category. Empty category means the agent's own.
func (a *Agent) AddKnowledge(ctx context.Context, category, content string, metadata map[string]any) (int64, error) {
	if category == "" {
		category = a.category
	}
	return a.knowledge.Add(ctx, category, content, metadata)
}

// QueryKnowledge runs the same retrieval a turn would for text.
func (a *Agent) QueryKnowledge(ctx context.Context, text string) ([]model.KnowledgeResult, error) {
	return a.knowledge.Query(ctx, text, a.category)
}

// ProcessMessage runs one turn on the session and returns the validated
// model response. The conversation is committed only when the turn fully
// succeeds; any error leaves it as it was.
//
// Error kinds:
//   - errx.ErrKnowledgeRetrieval, errx.ErrModelInvocation: a backend failed
//   - errx.ErrResponseParse, errx.ErrResponseContract: the model output was rejected
//   - errx.ErrTimeout: the turn or a backend call ran out of time
//   - errx.ErrSessionNotFound: unknown session
func (a *Agent) ProcessMessage(ctx context.Context, sessionID, message string) (*model.ValidatedResponse, error) {
	if a.turnTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.turnTimeout)
		defer cancel()
	}

	start := time.Now()
	var result *model.ValidatedResponse
	_, err := a.conversations.Update(ctx, sessionID, func(ctx context.Context, cc *model.ConversationContext) error {
		out, err := a.runTurn(ctx, cc, message)
		if err != nil {
			return err
		}
		a.apply(ctx, cc, message, out)
		result = out.Response
		return nil
	})
	if err != nil {
		logx.Error().Err(err).Str("session_id", sessionID).Msg("Error processing message")
		return nil, err
	}

	logx.Info().
		Str("session_id", sessionID).
		Str("next_state", result.NextState).
		Int("actions", len(result.Actions)).
		Dur("duration", time.Since(start)).
		Msg("Message processed")
	return result, nil
}

// runTurn executes the pipeline on a snapshot of cc.
func (a *Agent) runTurn(ctx context.Context, cc *model.ConversationContext, message string) (*model.TurnOutput, error) {
	ctx, nodeErr := nodes.WithErrorSink(ctx)
	out, err := a.runnable.Invoke(ctx, model.TurnInput{
		AgentType: a.agentType,
		Category:  a.category,
		Message:   message,
		Context:   cc.Clone(),
	}, compose.WithCallbacks(observers.NewAllCallbacks()))
	if err != nil {
		if cause := nodeErr(); cause != nil {
			return nil, cause
		}
		if errx.KindOf(err) != nil {
			return nil, err
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, errx.WithKind(errx.ErrTimeout, fmt.Errorf("turn pipeline: %w", err))
		}
		return nil, fmt.Errorf("turn pipeline: %w", err)
	}
	if out == nil || out.Response == nil {
		return nil, errx.WithKind(errx.ErrResponseParse, errors.New("turn pipeline produced no response"))
	}
	return out, nil
}

// apply folds a validated turn into cc: actions, facts, history, state,
// required info and cost. Action and fact failures are logged and skipped.
func (a *Agent) apply(ctx context.Context, cc *model.ConversationContext, message string, out *model.TurnOutput) {
	resp := out.Response

	a.dispatch(ctx, cc, resp.Actions)
	a.mergeFacts(ctx, cc)

	cc.AddMessage(model.RoleUser, message)
	cc.AddMessage(model.RoleAssistant, resp.Response)

	if resp.NextState != "" && resp.NextState != cc.CurrentState {
		logx.Debug().
			Str("session_id", cc.SessionID).
			Str("from", cc.CurrentState).
			Str("to", resp.NextState).
			Msg("State transition")
		cc.CurrentState = resp.NextState
	}

	cc.RequiredInfo = slices.Clone(resp.RequiredInformation)
	if cc.RequiredInfo == nil {
		cc.RequiredInfo = []string{}
	}

	if out.Usage != nil {
		if cc.Metadata == nil {
			cc.Metadata = map[string]any{}
		}
		cc.Metadata[MetaTotalCostUSD] = number(cc.Metadata[MetaTotalCostUSD]) + out.Usage.TotalCost
		cc.Metadata[MetaTotalTokens] = number(cc.Metadata[MetaTotalTokens]) + float64(out.Usage.TotalTokens)
	}
}

func (a *Agent) dispatch(ctx context.Context, cc *model.ConversationContext, calls []model.ActionCall) {
	actx := actions.WithCaller(ctx, actions.Caller{
		SessionID: cc.SessionID,
		UserID:    cc.UserID,
		AgentID:   cc.AgentID,
	})

	for _, call := range calls {
		if !a.actions.Has(call.Name) {
			logx.Warn().Str("session_id", cc.SessionID).Str("action", call.Name).Msg("Unknown action requested")
			continue
		}
		if _, err := a.actions.Execute(actx, call.Name, call.Parameters); err != nil {
			logx.Error().Err(err).Str("session_id", cc.SessionID).Str("action", call.Name).Msg("Error executing action")
		}
	}
}

func (a *Agent) mergeFacts(ctx context.Context, cc *model.ConversationContext) {
	facts, err := a.knowledge.FactsFor(ctx, cc.UserID, cc.AgentID)
	if err != nil {
		logx.Error().Err(err).Str("session_id", cc.SessionID).Msg("Error loading collected facts")
		return
	}
	for field, value := range facts {
		cc.UpdateCollectedInfo(field, value)
	}
}

// number reads a numeric metadata value, which may have been through JSON.
func number(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return 0
}
