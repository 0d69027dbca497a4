package model

import (
	"context"
	"maps"
	"slices"
	"time"
)

// DefaultState is the state every new conversation starts in.
const DefaultState = "initial"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// HistoryEntry is a single turn in the conversation history.
type HistoryEntry struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ConversationContext is the per-session dialogue state.
//
// Only the orchestrator mutates a context, and only on a private copy that is
// committed after the model response passed validation.
type ConversationContext struct {
	SessionID           string         `json:"session_id"`
	UserID              string         `json:"user_id"`
	AgentID             string         `json:"agent_id"`
	CurrentState        string         `json:"current_state"`
	CollectedInfo       map[string]any `json:"collected_info"`
	RequiredInfo        []string       `json:"required_info"`
	ConversationHistory []HistoryEntry `json:"conversation_history"`
	LastInteraction     time.Time      `json:"last_interaction"`
	Metadata            map[string]any `json:"metadata"`
}

// NewConversationContext returns an empty context in DefaultState.
func NewConversationContext(sessionID, userID, agentID string) *ConversationContext {
	return &ConversationContext{
		SessionID:           sessionID,
		UserID:              userID,
		AgentID:             agentID,
		CurrentState:        DefaultState,
		CollectedInfo:       map[string]any{},
		RequiredInfo:        []string{},
		ConversationHistory: []HistoryEntry{},
		LastInteraction:     time.Now().UTC(),
		Metadata:            map[string]any{},
	}
}

// AddMessage appends a history entry and touches LastInteraction.
func (c *ConversationContext) AddMessage(role, content string) {
	now := time.Now().UTC()
	c.ConversationHistory = append(c.ConversationHistory, HistoryEntry{
		Role:      role,
		Content:   content,
		Timestamp: now,
	})
	c.LastInteraction = now
}

// UpdateCollectedInfo sets key in CollectedInfo, overwriting any previous value.
func (c *ConversationContext) UpdateCollectedInfo(key string, value any) {
	if c.CollectedInfo == nil {
		c.CollectedInfo = map[string]any{}
	}
	c.CollectedInfo[key] = value
}

// MissingInfo returns RequiredInfo minus the keys of CollectedInfo, keeping
// the order of RequiredInfo. It never returns nil.
func (c *ConversationContext) MissingInfo() []string {
	missing := make([]string, 0, len(c.RequiredInfo))
	for _, field := range c.RequiredInfo {
		if _, ok := c.CollectedInfo[field]; !ok {
			missing = append(missing, field)
		}
	}
	return missing
}

// IsRequiredInfoComplete reports whether every required field has been collected.
func (c *ConversationContext) IsRequiredInfoComplete() bool {
	return len(c.MissingInfo()) == 0
}

// RecentHistory returns a copy of at most the last n history entries.
func (c *ConversationContext) RecentHistory(n int) []HistoryEntry {
	h := c.ConversationHistory
	if n >= 0 && len(h) > n {
		h = h[len(h)-n:]
	}
	out := make([]HistoryEntry, len(h))
	copy(out, h)
	return out
}

// Clone returns a copy that shares no mutable state with c.
func (c *ConversationContext) Clone() *ConversationContext {
	if c == nil {
		return nil
	}
	cp := *c
	cp.CollectedInfo = maps.Clone(c.CollectedInfo)
	if cp.CollectedInfo == nil {
		cp.CollectedInfo = map[string]any{}
	}
	cp.RequiredInfo = slices.Clone(c.RequiredInfo)
	if cp.RequiredInfo == nil {
		cp.RequiredInfo = []string{}
	}
	cp.ConversationHistory = slices.Clone(c.ConversationHistory)
	if cp.ConversationHistory == nil {
		cp.ConversationHistory = []HistoryEntry{}
	}
	cp.Metadata = maps.Clone(c.Metadata)
	if cp.Metadata == nil {
		cp.Metadata = map[string]any{}
	}
	return &cp
}

// SessionStore persists conversation contexts by session id.
type SessionStore interface {
	// Get returns a copy of the stored context or an errx.ErrSessionNotFound error.
	Get(ctx context.Context, sessionID string) (*ConversationContext, error)

	// Save stores a copy of the context, replacing any previous version.
	Save(ctx context.Context, cc *ConversationContext) error

	// Delete removes the context. Deleting an unknown session is not an error.
	Delete(ctx context.Context, sessionID string) error
}
