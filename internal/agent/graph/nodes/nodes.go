// Package nodes holds the nodes and state handlers of the turn pipeline:
// Retriever -> PromptBuilder -> ChatModel -> Validator.
package nodes

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/chative-core/agentbuilder/internal/agent/graph/parsers"
	"github.com/chative-core/agentbuilder/internal/agent/graph/prompts"
	"github.com/chative-core/agentbuilder/internal/agent/model"
	errx "github.com/chative-core/agentbuilder/internal/core/error"
	logx "github.com/chative-core/agentbuilder/pkg/logger"
)

const (
	NodeRetriever     = "Retriever"
	NodePromptBuilder = "PromptBuilder"
	NodeChatModel     = "ChatModel"
	NodeValidator     = "Validator"
)

// Retriever finds knowledge relevant to a message within a category.
type Retriever interface {
	Query(ctx context.Context, text, category string) ([]model.KnowledgeResult, error)
}

// NewRetrieverPreHandler resets the turn state and records the input.
func NewRetrieverPreHandler() func(context.Context, model.TurnInput, *model.TurnState) (model.TurnInput, error) {
	return func(ctx context.Context, in model.TurnInput, s *model.TurnState) (model.TurnInput, error) {
		if in.Context == nil {
			return in, fail(ctx, errors.New("turn input has no conversation context"))
		}
		s.Input = in
		s.Knowledge = nil
		s.Prompt = ""
		s.Usage = nil
		return in, nil
	}
}

// NewRetrieverNode queries knowledge for the message, scoped to the agent's category.
func NewRetrieverNode(r Retriever) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, in model.TurnInput) ([]model.KnowledgeResult, error) {
		results, err := r.Query(ctx, in.Message, in.Category)
		if err != nil {
			logx.Error().
				Err(err).
				Str("session_id", in.Context.SessionID).
				Str("category", in.Category).
				Msg("Error retrieving knowledge")
			return nil, fail(ctx, err)
		}
		logx.Debug().
			Str("session_id", in.Context.SessionID).
			Str("category", in.Category).
			Int("results", len(results)).
			Msg("Knowledge retrieved")
		return results, nil
	})
}

func NewRetrieverPostHandler() func(context.Context, []model.KnowledgeResult, *model.TurnState) ([]model.KnowledgeResult, error) {
	return func(ctx context.Context, out []model.KnowledgeResult, s *model.TurnState) ([]model.KnowledgeResult, error) {
		s.Knowledge = out
		return out, nil
	}
}

// NewPromptBuilderNode renders the prompt document and pairs it with the
// fixed system message.
func NewPromptBuilderNode(engine *prompts.Engine) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, knowledge []model.KnowledgeResult) ([]*schema.Message, error) {
		var in model.TurnInput
		err := compose.ProcessState(ctx, func(_ context.Context, s *model.TurnState) error {
			in = s.Input
			return nil
		})
		if err != nil {
			return nil, fail(ctx, fmt.Errorf("failed to access state: %w", err))
		}

		doc := engine.Build(ctx, in.AgentType, in.Message, in.Context, knowledge)
		rendered, err := doc.Render()
		if err != nil {
			return nil, fail(ctx, err)
		}

		return []*schema.Message{
			schema.SystemMessage(prompts.SystemMessage),
			schema.UserMessage(rendered),
		}, nil
	})
}

func NewPromptBuilderPostHandler() func(context.Context, []*schema.Message, *model.TurnState) ([]*schema.Message, error) {
	return func(ctx context.Context, out []*schema.Message, s *model.TurnState) ([]*schema.Message, error) {
		if len(out) > 0 && out[len(out)-1] != nil {
			s.Prompt = out[len(out)-1].Content
		}
		return out, nil
	}
}

// NewChatModelPostHandler prices the model call and keeps the cost in state.
func NewChatModelPostHandler(modelName string) func(context.Context, *schema.Message, *model.TurnState) (*schema.Message, error) {
	return func(ctx context.Context, out *schema.Message, s *model.TurnState) (*schema.Message, error) {
		if out == nil || out.ResponseMeta == nil || out.ResponseMeta.Usage == nil {
			return out, nil
		}

		cost := model.ComputeCost(modelName, out.ResponseMeta.Usage)
		s.Usage = cost
		logx.Debug().
			Str("session_id", s.Input.Context.SessionID).
			Str("node", NodeChatModel).
			Str("model", modelName).
			Int("prompt_tokens", cost.PromptTokens).
			Int("completion_tokens", cost.CompletionTokens).
			Int("total_tokens", cost.TotalTokens).
			Float64("input_cost_usd", cost.InputCost).
			Float64("output_cost_usd", cost.OutputCost).
			Float64("total_cost_usd", cost.TotalCost).
			Msg("LLM usage")
		return out, nil
	}
}

// NewValidatorNode checks the raw model output against the response contract.
func NewValidatorNode() *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, msg *schema.Message) (*model.TurnOutput, error) {
		if msg == nil {
			return nil, fail(ctx, errx.WithKind(errx.ErrResponseParse, errors.New("model returned no message")))
		}

		resp, err := parsers.ParseResponse(msg.Content)
		if err != nil {
			logx.Error().Err(err).Msg("Error validating model response")
			return nil, fail(ctx, err)
		}

		out := &model.TurnOutput{Response: resp}
		err = compose.ProcessState(ctx, func(_ context.Context, s *model.TurnState) error {
			out.Knowledge = s.Knowledge
			out.Usage = s.Usage
			return nil
		})
		if err != nil {
			return nil, fail(ctx, fmt.Errorf("failed to access state: %w", err))
		}
		return out, nil
	})
}
