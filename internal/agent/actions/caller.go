package actions

import "context"

// Caller identifies the conversation an action runs for.
type Caller struct {
	SessionID string
	UserID    string
	AgentID   string
}

type callerKey struct{}

// WithCaller attaches the calling conversation to ctx.
func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, c)
}

// CallerFrom returns the conversation attached by WithCaller.
func CallerFrom(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(callerKey{}).(Caller)
	return c, ok
}
