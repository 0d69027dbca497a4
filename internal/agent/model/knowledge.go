package model

import (
	"context"
	"time"
)

// KnowledgeEntry is a stored piece of knowledge and its embedding.
type KnowledgeEntry struct {
	ID        int64          `json:"id"`
	Category  string         `json:"category"`
	Content   string         `json:"content"`
	Embedding []float64      `json:"embedding"`
	Metadata  map[string]any `json:"metadata"`
	CreatedAt time.Time      `json:"created_at"`
}

// KnowledgeResult is an entry admitted by a similarity query.
type KnowledgeResult struct {
	ID        int64          `json:"id"`
	Category  string         `json:"category"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata"`
	Relevance float64        `json:"relevance"`
}

// CollectedDatum is one extracted fact about a user, scoped to an agent.
type CollectedDatum struct {
	UserID    string    `json:"user_id"`
	AgentID   string    `json:"agent_id"`
	FieldName string    `json:"field_name"`
	Value     string    `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

type KnowledgeRepository interface {
	// Insert persists the entry, assigns entry.ID and returns it. IDs are
	// assigned monotonically starting at 1.
	Insert(ctx context.Context, entry *KnowledgeEntry) (int64, error)

	// List returns entries in insertion order. An empty category lists all.
	List(ctx context.Context, category string) ([]KnowledgeEntry, error)
}

type FactRepository interface {
	// AppendFact adds a datum to the log.
	AppendFact(ctx context.Context, datum CollectedDatum) error

	// ListFacts returns the data for a user/agent pair in append order.
	ListFacts(ctx context.Context, userID, agentID string) ([]CollectedDatum, error)
}
