// Package knowledge stores text knowledge with embeddings and answers
// similarity queries against it. It also keeps the append-only log of facts
// collected about users.
package knowledge

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sort"
	"time"

	"github.com/cloudwego/eino/components/embedding"

	"github.com/chative-core/agentbuilder/internal/agent/model"
	errx "github.com/chative-core/agentbuilder/internal/core/error"
	logx "github.com/chative-core/agentbuilder/pkg/logger"
)

// DefaultSimilarityThreshold is the minimum cosine similarity for an entry
// to be admitted into query results.
const DefaultSimilarityThreshold = 0.8

type Option func(*Store)

// WithThreshold overrides DefaultSimilarityThreshold.
func WithThreshold(threshold float64) Option {
	return func(s *Store) { s.threshold = threshold }
}

// WithClock overrides the clock used for CreatedAt and fact timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

type Store struct {
	entries   model.KnowledgeRepository
	facts     model.FactRepository
	embedder  embedding.Embedder
	threshold float64
	now       func() time.Time
}

func NewStore(entries model.KnowledgeRepository, facts model.FactRepository, embedder embedding.Embedder, opts ...Option) *Store {
	s := &Store{
		entries:   entries,
		facts:     facts,
		embedder:  embedder,
		threshold: DefaultSimilarityThreshold,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Threshold returns the admission threshold in use.
func (s *Store) Threshold() float64 { return s.threshold }

// Add embeds content and persists a new entry, returning its id.
func (s *Store) Add(ctx context.Context, category, content string, metadata map[string]any) (int64, error) {
	vec, err := s.embed(ctx, content)
	if err != nil {
		return 0, err
	}
	if metadata == nil {
		metadata = map[string]any{}
	}

	entry := &model.KnowledgeEntry{
		Category:  category,
		Content:   content,
		Embedding: vec,
		Metadata:  maps.Clone(metadata),
		CreatedAt: s.now(),
	}
	id, err := s.entries.Insert(ctx, entry)
	if err != nil {
		logx.Error().Err(err).Str("category", category).Msg("failed to persist knowledge entry")
		return 0, retrievalError("insert entry", err)
	}

	logx.Debug().Int64("knowledge_id", id).Str("category", category).Int("dims", len(vec)).Msg("knowledge added")
	return id, nil
}

// Query returns the entries whose similarity to text reaches the threshold,
// most relevant first. Entries with equal relevance keep insertion order.
// An empty category searches every category.
func (s *Store) Query(ctx context.Context, text, category string) ([]model.KnowledgeResult, error) {
	vec, err := s.embed(ctx, text)
	if err != nil {
		return nil, err
	}

	entries, err := s.entries.List(ctx, category)
	if err != nil {
		logx.Error().Err(err).Str("category", category).Msg("failed to list knowledge entries")
		return nil, retrievalError("list entries", err)
	}

	results := make([]model.KnowledgeResult, 0)
	for _, e := range entries {
		sim, err := CosineSimilarity(vec, e.Embedding)
		if err != nil {
			logx.Error().Err(err).Int64("knowledge_id", e.ID).Msg("cannot score knowledge entry")
			return nil, errx.WithKind(errx.ErrKnowledgeRetrieval, fmt.Errorf("score entry %d: %w", e.ID, err))
		}
		if !(sim >= s.threshold) {
			continue
		}
		results = append(results, model.KnowledgeResult{
			ID:        e.ID,
			Category:  e.Category,
			Content:   e.Content,
			Metadata:  e.Metadata,
			Relevance: sim,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Relevance > results[j].Relevance
	})

	logx.Debug().
		Str("category", category).
		Int("scanned", len(entries)).
		Int("admitted", len(results)).
		Float64("threshold", s.threshold).
		Msg("knowledge query")
	return results, nil
}

// RecordFact appends a collected datum for the user/agent pair.
func (s *Store) RecordFact(ctx context.Context, userID, agentID, field, value string) error {
	err := s.facts.AppendFact(ctx, model.CollectedDatum{
		UserID:    userID,
		AgentID:   agentID,
		FieldName: field,
		Value:     value,
		Timestamp: s.now(),
	})
	if err != nil {
		logx.Error().Err(err).Str("user_id", userID).Str("field", field).Msg("failed to record fact")
		return err
	}
	return nil
}

// FactsFor folds the fact log of a user/agent pair into a mapping. When a
// field was recorded more than once the latest entry wins.
func (s *Store) FactsFor(ctx context.Context, userID, agentID string) (map[string]string, error) {
	data, err := s.facts.ListFacts(ctx, userID, agentID)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(data))
	for _, d := range data {
		out[d.FieldName] = d.Value
	}
	return out, nil
}

func (s *Store) embed(ctx context.Context, text string) ([]float64, error) {
	vecs, err := s.embedder.EmbedStrings(ctx, []string{text})
	if err != nil {
		logx.Error().Err(err).Msg("embedding request failed")
		return nil, retrievalError("embed text", err)
	}
	if len(vecs) != 1 {
		return nil, errx.WithKind(errx.ErrKnowledgeRetrieval, fmt.Errorf("embedder returned %d vectors for 1 text", len(vecs)))
	}
	vec := vecs[0]
	if len(vec) == 0 {
		return nil, errx.WithKind(errx.ErrKnowledgeRetrieval, errors.New("embedder returned an empty vector"))
	}
	if _, err := maxAbs(vec); err != nil {
		return nil, errx.WithKind(errx.ErrKnowledgeRetrieval, fmt.Errorf("embed text: %w", err))
	}
	return vec, nil
}

// retrievalError classifies storage and embedding failures as retrieval
// errors. Deadline expiry becomes a timeout.
func retrievalError(op string, err error) error {
	wrapped := fmt.Errorf("%s: %w", op, err)
	if errors.Is(err, context.DeadlineExceeded) {
		return errx.WithKind(errx.ErrTimeout, fmt.Errorf("%w: %w", errx.ErrKnowledgeRetrieval, wrapped))
	}
	return errx.WithKind(errx.ErrKnowledgeRetrieval, wrapped)
}
