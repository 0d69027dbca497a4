package nodes

import (
	"context"
	"errors"
	"fmt"
	"testing"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chative-core/agentbuilder/internal/agent/model"
	errx "github.com/chative-core/agentbuilder/internal/core/error"
)

type stubModel struct {
	out *schema.Message
	err error
}

func (m *stubModel) Generate(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.Message, error) {
	return m.out, m.err
}

func (m *stubModel) Stream(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	if m.err != nil {
		return nil, m.err
	}
	return schema.StreamReaderFromArray([]*schema.Message{m.out}), nil
}

type callbackModel struct{ stubModel }

func (callbackModel) IsCallbacksEnabled() bool { return true }
func (callbackModel) GetType() string          { return "Stub" }

func TestChatModelNodeClassifiesErrors(t *testing.T) {
	ctx, firstErr := WithErrorSink(context.Background())

	_, err := NewChatModelNode(&stubModel{err: errors.New("connection refused")}).Generate(ctx, nil)
	assert.ErrorIs(t, err, errx.ErrModelInvocation)
	assert.ErrorIs(t, firstErr(), errx.ErrModelInvocation)

	_, err = NewChatModelNode(&stubModel{err: fmt.Errorf("post: %w", context.DeadlineExceeded)}).Generate(ctx, nil)
	assert.ErrorIs(t, err, errx.ErrTimeout)
	// the first failure wins
	assert.NotErrorIs(t, firstErr(), errx.ErrTimeout)

	_, err = NewChatModelNode(&stubModel{}).Generate(context.Background(), nil)
	assert.ErrorIs(t, err, errx.ErrModelInvocation)

	_, err = NewChatModelNode(&stubModel{err: errors.New("x")}).Stream(context.Background(), nil)
	assert.ErrorIs(t, err, errx.ErrModelInvocation)
}

func TestChatModelNodeDelegatesCallbacksAndType(t *testing.T) {
	plain := NewChatModelNode(&stubModel{}).(*chatModel)
	assert.False(t, plain.IsCallbacksEnabled())
	assert.Equal(t, "ChatModel", plain.GetType())

	wrapped := NewChatModelNode(&callbackModel{}).(*chatModel)
	assert.True(t, wrapped.IsCallbacksEnabled())
	assert.Equal(t, "Stub", wrapped.GetType())
}

func TestChatModelPostHandlerPricesUsage(t *testing.T) {
	state := &model.TurnState{Input: model.TurnInput{Context: model.NewConversationContext("s1", "u1", "sales")}}
	msg := schema.AssistantMessage("{}", nil)
	msg.ResponseMeta = &schema.ResponseMeta{Usage: &schema.TokenUsage{PromptTokens: 1000, CompletionTokens: 500, TotalTokens: 1500}}

	out, err := NewChatModelPostHandler("gpt-4o-mini")(context.Background(), msg, state)
	require.NoError(t, err)
	assert.Same(t, msg, out)
	require.NotNil(t, state.Usage)
	assert.InDelta(t, 0.00045, state.Usage.TotalCost, 1e-12)
	assert.Equal(t, 1500, state.Usage.TotalTokens)

	state.Usage = nil
	_, err = NewChatModelPostHandler("gpt-4o-mini")(context.Background(), schema.AssistantMessage("{}", nil), state)
	require.NoError(t, err)
	assert.Nil(t, state.Usage)
}

func TestRetrieverPreHandlerResetsState(t *testing.T) {
	state := &model.TurnState{Prompt: "stale", Usage: &model.UsageCost{}}
	in := model.TurnInput{Message: "hi", Context: model.NewConversationContext("s1", "u1", "sales")}

	_, err := NewRetrieverPreHandler()(context.Background(), in, state)
	require.NoError(t, err)
	assert.Equal(t, "hi", state.Input.Message)
	assert.Empty(t, state.Prompt)
	assert.Nil(t, state.Usage)

	_, err = NewRetrieverPreHandler()(context.Background(), model.TurnInput{}, state)
	assert.ErrorContains(t, err, "no conversation context")
}
