// Package conversations owns the lifecycle of conversation contexts and
// serializes work on each session.
package conversations

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/chative-core/agentbuilder/internal/agent/model"
	errx "github.com/chative-core/agentbuilder/internal/core/error"
	logx "github.com/chative-core/agentbuilder/pkg/logger"
)

// DefaultAgentID is used when a conversation is started without an agent.
const DefaultAgentID = "sales"

// DefaultLockTimeout bounds how long Update waits for a busy session.
const DefaultLockTimeout = 30 * time.Second

type Option func(*Manager)

// WithLockTimeout overrides DefaultLockTimeout. Non-positive values disable the bound.
func WithLockTimeout(d time.Duration) Option {
	return func(m *Manager) { m.lockTimeout = d }
}

// WithIDGenerator overrides uuid generation for session and user ids.
func WithIDGenerator(fn func() string) Option {
	return func(m *Manager) { m.newID = fn }
}

// Manager starts, loads and ends conversations, and runs updates against a
// session one at a time. Updates to different sessions run in parallel.
type Manager struct {
	store       model.SessionStore
	locks       *sessionLocks
	lockTimeout time.Duration
	newID       func() string
}

func NewManager(store model.SessionStore, opts ...Option) *Manager {
	m := &Manager{
		store:       store,
		locks:       newSessionLocks(),
		lockTimeout: DefaultLockTimeout,
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start creates and persists a new conversation. Empty userID gets a fresh
// id; empty agentID falls back to DefaultAgentID.
func (m *Manager) Start(ctx context.Context, userID, agentID string) (*model.ConversationContext, error) {
	if strings.TrimSpace(userID) == "" {
		userID = m.newID()
	}
	if strings.TrimSpace(agentID) == "" {
		agentID = DefaultAgentID
	}

	cc := model.NewConversationContext(m.newID(), userID, agentID)
	if err := m.store.Save(ctx, cc); err != nil {
		logx.Error().Err(err).Str("session_id", cc.SessionID).Msg("failed to start conversation")
		return nil, err
	}

	logx.Info().
		Str("session_id", cc.SessionID).
		Str("user_id", userID).
		Str("agent_id", agentID).
		Msg("conversation started")
	return cc.Clone(), nil
}

// Get returns a snapshot of the session. Mutating it has no effect on the store.
func (m *Manager) Get(ctx context.Context, sessionID string) (*model.ConversationContext, error) {
	return m.store.Get(ctx, sessionID)
}

// History returns at most the last n history entries of the session.
func (m *Manager) History(ctx context.Context, sessionID string, n int) ([]model.HistoryEntry, error) {
	cc, err := m.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return trimTail(cc.ConversationHistory, n), nil
}

// End removes the session once no update is running on it.
func (m *Manager) End(ctx context.Context, sessionID string) error {
	release, err := m.acquire(ctx, sessionID)
	if err != nil {
		return err
	}
	defer release()

	if _, err := m.store.Get(ctx, sessionID); err != nil {
		return err
	}
	if err := m.store.Delete(ctx, sessionID); err != nil {
		logx.Error().Err(err).Str("session_id", sessionID).Msg("failed to end conversation")
		return err
	}
	logx.Info().Str("session_id", sessionID).Msg("conversation ended")
	return nil
}

// Update runs fn on a private copy of the session while holding the session
// lock. The copy is saved only when fn succeeds and ctx is still live, so a
// failed or cancelled update leaves the stored context untouched.
func (m *Manager) Update(ctx context.Context, sessionID string, fn func(ctx context.Context, cc *model.ConversationContext) error) (*model.ConversationContext, error) {
	release, err := m.acquire(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	working, err := m.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if err := fn(ctx, working); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		logx.Warn().Err(err).Str("session_id", sessionID).Msg("update abandoned before commit")
		return nil, contextError(sessionID, err)
	}

	if err := m.store.Save(ctx, working); err != nil {
		logx.Error().Err(err).Str("session_id", sessionID).Msg("failed to commit conversation")
		return nil, err
	}
	return working.Clone(), nil
}

func (m *Manager) acquire(ctx context.Context, sessionID string) (func(), error) {
	lockCtx := ctx
	if m.lockTimeout > 0 {
		var cancel context.CancelFunc
		lockCtx, cancel = context.WithTimeout(ctx, m.lockTimeout)
		defer cancel()
	}

	release, err := m.locks.acquire(lockCtx, sessionID)
	if err != nil {
		logx.Warn().Err(err).Str("session_id", sessionID).Msg("session busy")
		return nil, contextError(sessionID, err)
	}
	return release, nil
}

func contextError(sessionID string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return errx.WithKind(errx.ErrTimeout, fmt.Errorf("session %q: %w", sessionID, err))
	}
	return fmt.Errorf("session %q: %w", sessionID, err)
}

// ====================== Helper function ======================
func trimTail[T any](items []T, n int) []T {
	if n < 0 || len(items) <= n {
		result := make([]T, len(items))
		copy(result, items)
		return result
	}
	source := items[len(items)-n:]
	result := make([]T, len(source))
	copy(result, source)
	return result
}
