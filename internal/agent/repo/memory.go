package repo

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/chative-core/agentbuilder/internal/agent/model"
	errx "github.com/chative-core/agentbuilder/internal/core/error"
)

type MemoryKnowledgeRepository struct {
	mu      sync.RWMutex
	entries []model.KnowledgeEntry
	nextID  int64
}

func NewMemoryKnowledgeRepository() *MemoryKnowledgeRepository {
	return &MemoryKnowledgeRepository{nextID: 1}
}

func (r *MemoryKnowledgeRepository) Insert(ctx context.Context, entry *model.KnowledgeEntry) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	entry.ID = r.nextID
	r.nextID++
	r.entries = append(r.entries, copyEntry(*entry))
	return entry.ID, nil
}

func (r *MemoryKnowledgeRepository) List(ctx context.Context, category string) ([]model.KnowledgeEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]model.KnowledgeEntry, 0, len(r.entries))
	for _, e := range r.entries {
		if category != "" && e.Category != category {
			continue
		}
		out = append(out, copyEntry(e))
	}
	return out, nil
}

func copyEntry(e model.KnowledgeEntry) model.KnowledgeEntry {
	e.Embedding = slices.Clone(e.Embedding)
	e.Metadata = maps.Clone(e.Metadata)
	return e
}

type MemoryFactRepository struct {
	mu    sync.RWMutex
	facts map[string][]model.CollectedDatum
}

func NewMemoryFactRepository() *MemoryFactRepository {
	return &MemoryFactRepository{facts: map[string][]model.CollectedDatum{}}
}

func (r *MemoryFactRepository) AppendFact(ctx context.Context, datum model.CollectedDatum) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	key := factsKey(datum.UserID, datum.AgentID)
	r.facts[key] = append(r.facts[key], datum)
	return nil
}

func (r *MemoryFactRepository) ListFacts(ctx context.Context, userID, agentID string) ([]model.CollectedDatum, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.facts[factsKey(userID, agentID)]), nil
}

// MemorySessionStore keeps contexts in process. Values are cloned on the way
// in and out so callers never share state with the store.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*model.ConversationContext
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: map[string]*model.ConversationContext{}}
}

func (s *MemorySessionStore) Get(ctx context.Context, sessionID string) (*model.ConversationContext, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	cc, ok := s.sessions[sessionID]
	if !ok {
		return nil, errx.WithKind(errx.ErrSessionNotFound, fmt.Errorf("session %q", sessionID))
	}
	return cc.Clone(), nil
}

func (s *MemorySessionStore) Save(ctx context.Context, cc *model.ConversationContext) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[cc.SessionID] = cc.Clone()
	return nil
}

func (s *MemorySessionStore) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

var (
	_ model.KnowledgeRepository = (*MemoryKnowledgeRepository)(nil)
	_ model.FactRepository      = (*MemoryFactRepository)(nil)
	_ model.SessionStore        = (*MemorySessionStore)(nil)
)
