package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/chative-core/agentbuilder/internal/agent/model"
	errx "github.com/chative-core/agentbuilder/internal/core/error"
	logx "github.com/chative-core/agentbuilder/pkg/logger"
)

// ================ Facts ================

type RedisFactRepository struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewRedisFactRepository(rdb redis.Cmdable, ttl time.Duration) *RedisFactRepository {
	return &RedisFactRepository{rdb: rdb, ttl: ttl}
}

func (r *RedisFactRepository) AppendFact(ctx context.Context, datum model.CollectedDatum) error {
	b, err := json.Marshal(datum)
	if err != nil {
		logx.Error().Err(err).Str("user_id", datum.UserID).Msg("failed to marshal fact")
		return fmt.Errorf("marshal fact: %w", err)
	}
	key := factsKey(datum.UserID, datum.AgentID)

	// append fact
	if err := r.rdb.RPush(ctx, key, b).Err(); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to push fact to redis")
		return errx.WrapRedis(err)
	}
	// extend TTL on touch
	if r.ttl > 0 {
		if ok, err := r.rdb.Expire(ctx, key, r.ttl).Result(); err != nil {
			logx.Error().Err(err).Str("key", key).Msg("failed to set expire")
			return errx.WrapRedis(err)
		} else if !ok {
			logx.Warn().Str("key", key).Dur("ttl", r.ttl).Msg("failed to set TTL on facts key")
		}
	}
	return nil
}

func (r *RedisFactRepository) ListFacts(ctx context.Context, userID, agentID string) ([]model.CollectedDatum, error) {
	key := factsKey(userID, agentID)

	rows, err := r.rdb.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []model.CollectedDatum{}, nil
		}
		logx.Error().Err(err).Str("key", key).Msg("failed to load facts from redis")
		return nil, errx.WrapRedis(err)
	}

	out := make([]model.CollectedDatum, 0, len(rows))
	for i, s := range rows {
		var d model.CollectedDatum
		if err := json.Unmarshal([]byte(s), &d); err != nil {
			logx.Error().Err(err).Str("key", key).Int("index", i).Msg("failed to unmarshal fact")
			return nil, fmt.Errorf("unmarshal fact at index %d: %w", i, err)
		}
		out = append(out, d)
	}
	return out, nil
}

// ================ Knowledge ================

// RedisKnowledgeRepository keeps entries as JSON in a single list. Ids come
// from INCR on a sequence key; RPUSH makes each entry visible atomically.
type RedisKnowledgeRepository struct {
	rdb redis.Cmdable
}

func NewRedisKnowledgeRepository(rdb redis.Cmdable) *RedisKnowledgeRepository {
	return &RedisKnowledgeRepository{rdb: rdb}
}

// insertKnowledgeScript allocates the id and appends the entry in one step,
// so list order always matches id order. The payload is marshalled with id 0,
// which jsoniter emits first.
var insertKnowledgeScript = redis.NewScript(`
local id = redis.call('INCR', KEYS[1])
local payload = string.gsub(ARGV[1], '^{"id":0,', '{"id":' .. id .. ',', 1)
redis.call('RPUSH', KEYS[2], payload)
return id
`)

func (r *RedisKnowledgeRepository) Insert(ctx context.Context, entry *model.KnowledgeEntry) (int64, error) {
	pending := *entry
	pending.ID = 0
	b, err := json.Marshal(&pending)
	if err != nil {
		return 0, fmt.Errorf("marshal knowledge entry: %w", err)
	}

	id, err := insertKnowledgeScript.Run(ctx, r.rdb, []string{knowledgeSeqKey, knowledgeEntriesKey}, b).Int64()
	if err != nil {
		logx.Error().Err(err).Str("key", knowledgeEntriesKey).Msg("failed to insert knowledge entry")
		return 0, errx.WrapRedis(err)
	}
	entry.ID = id
	return id, nil
}

func (r *RedisKnowledgeRepository) List(ctx context.Context, category string) ([]model.KnowledgeEntry, error) {
	rows, err := r.rdb.LRange(ctx, knowledgeEntriesKey, 0, -1).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		logx.Error().Err(err).Msg("failed to load knowledge entries from redis")
		return nil, errx.WrapRedis(err)
	}

	out := make([]model.KnowledgeEntry, 0, len(rows))
	for i, s := range rows {
		var e model.KnowledgeEntry
		if err := json.Unmarshal([]byte(s), &e); err != nil {
			logx.Error().Err(err).Int("index", i).Msg("failed to unmarshal knowledge entry")
			return nil, fmt.Errorf("unmarshal knowledge entry at index %d: %w", i, err)
		}
		if category != "" && e.Category != category {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// ================ Sessions ================

type RedisSessionStore struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewRedisSessionStore(rdb redis.Cmdable, ttl time.Duration) *RedisSessionStore {
	return &RedisSessionStore{rdb: rdb, ttl: ttl}
}

func (s *RedisSessionStore) Get(ctx context.Context, sessionID string) (*model.ConversationContext, error) {
	key := sessionKey(sessionID)
	raw, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, errx.WithKind(errx.ErrSessionNotFound, fmt.Errorf("session %q", sessionID))
		}
		logx.Error().Err(err).Str("key", key).Msg("failed to load session from redis")
		return nil, errx.WrapRedis(err)
	}

	cc := &model.ConversationContext{}
	if err := json.Unmarshal(raw, cc); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to unmarshal session")
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return cc.Clone(), nil
}

// Save writes the whole context and resets its TTL.
func (s *RedisSessionStore) Save(ctx context.Context, cc *model.ConversationContext) error {
	b, err := json.Marshal(cc)
	if err != nil {
		logx.Error().Err(err).Str("session_id", cc.SessionID).Msg("failed to marshal session")
		return fmt.Errorf("marshal session: %w", err)
	}
	key := sessionKey(cc.SessionID)
	if err := s.rdb.Set(ctx, key, b, s.ttl).Err(); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to save session to redis")
		return errx.WrapRedis(err)
	}
	return nil
}

func (s *RedisSessionStore) Delete(ctx context.Context, sessionID string) error {
	key := sessionKey(sessionID)
	if err := s.rdb.Del(ctx, key).Err(); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to delete session from redis")
		return errx.WrapRedis(err)
	}
	return nil
}

var (
	_ model.KnowledgeRepository = (*RedisKnowledgeRepository)(nil)
	_ model.FactRepository      = (*RedisFactRepository)(nil)
	_ model.SessionStore        = (*RedisSessionStore)(nil)
)
