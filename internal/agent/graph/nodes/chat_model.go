package nodes

import (
	"context"
	"errors"

	"github.com/cloudwego/eino/components"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	errx "github.com/chative-core/agentbuilder/internal/core/error"
)

// chatModel classifies inference failures before they reach the graph.
type chatModel struct {
	inner einomodel.BaseChatModel
}

// NewChatModelNode wraps cm so its failures surface as ErrModelInvocation,
// or ErrTimeout when the deadline expired.
func NewChatModelNode(cm einomodel.BaseChatModel) einomodel.BaseChatModel {
	return &chatModel{inner: cm}
}

func (m *chatModel) Generate(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.Message, error) {
	out, err := m.inner.Generate(ctx, input, opts...)
	if err != nil {
		return nil, fail(ctx, errx.FromContext(errx.ErrModelInvocation, err))
	}
	if out == nil {
		return nil, fail(ctx, errx.WithKind(errx.ErrModelInvocation, errors.New("model returned no message")))
	}
	return out, nil
}

func (m *chatModel) Stream(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	out, err := m.inner.Stream(ctx, input, opts...)
	if err != nil {
		return nil, fail(ctx, errx.FromContext(errx.ErrModelInvocation, err))
	}
	return out, nil
}

func (m *chatModel) GetType() string {
	if t, ok := m.inner.(components.Typer); ok {
		return t.GetType()
	}
	return "ChatModel"
}

// IsCallbacksEnabled defers to the wrapped model so callbacks fire exactly once.
func (m *chatModel) IsCallbacksEnabled() bool {
	if c, ok := m.inner.(components.Checker); ok {
		return c.IsCallbacksEnabled()
	}
	return false
}
