package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/chative-core/agentbuilder/internal/agent/model"
	errx "github.com/chative-core/agentbuilder/internal/core/error"
	logx "github.com/chative-core/agentbuilder/pkg/logger"
)

const schemaDDL = `
CREATE TABLE IF NOT EXISTS knowledge_base (
	id         BIGSERIAL PRIMARY KEY,
	category   TEXT NOT NULL,
	content    TEXT NOT NULL,
	embedding  DOUBLE PRECISION[] NOT NULL,
	metadata   JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS knowledge_base_category_idx ON knowledge_base (category);

CREATE TABLE IF NOT EXISTS collected_data (
	id         BIGSERIAL PRIMARY KEY,
	user_id    TEXT NOT NULL,
	agent_id   TEXT NOT NULL,
	field_name TEXT NOT NULL,
	value      TEXT NOT NULL,
	timestamp  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS collected_data_user_agent_idx ON collected_data (user_id, agent_id);

CREATE TABLE IF NOT EXISTS conversation_sessions (
	session_id TEXT PRIMARY KEY,
	context    JSONB NOT NULL,
	expires_at TIMESTAMPTZ
);
`

// Migrate creates the tables used by the Postgres repositories.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schemaDDL); err != nil {
		logx.Error().Err(err).Msg("failed to migrate postgres schema")
		return errx.WrapPostgres(err)
	}
	return nil
}

// ================ Knowledge ================

type PostgresKnowledgeRepository struct {
	db *sql.DB
}

func NewPostgresKnowledgeRepository(db *sql.DB) *PostgresKnowledgeRepository {
	return &PostgresKnowledgeRepository{db: db}
}

func (r *PostgresKnowledgeRepository) Insert(ctx context.Context, entry *model.KnowledgeEntry) (int64, error) {
	meta, err := json.Marshal(entry.Metadata)
	if err != nil {
		return 0, fmt.Errorf("marshal metadata: %w", err)
	}

	err = r.db.QueryRowContext(ctx,
		`INSERT INTO knowledge_base (category, content, embedding, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		entry.Category, entry.Content, pq.Array(entry.Embedding), meta, entry.CreatedAt,
	).Scan(&entry.ID)
	if err != nil {
		logx.Error().Err(err).Str("category", entry.Category).Msg("failed to insert knowledge entry")
		return 0, errx.WrapPostgres(err)
	}
	return entry.ID, nil
}

func (r *PostgresKnowledgeRepository) List(ctx context.Context, category string) ([]model.KnowledgeEntry, error) {
	const base = `SELECT id, category, content, embedding, metadata, created_at FROM knowledge_base`
	var (
		rows *sql.Rows
		err  error
	)
	if category == "" {
		rows, err = r.db.QueryContext(ctx, base+` ORDER BY id`)
	} else {
		rows, err = r.db.QueryContext(ctx, base+` WHERE category = $1 ORDER BY id`, category)
	}
	if err != nil {
		logx.Error().Err(err).Str("category", category).Msg("failed to query knowledge entries")
		return nil, errx.WrapPostgres(err)
	}
	defer rows.Close()

	out := make([]model.KnowledgeEntry, 0)
	for rows.Next() {
		var (
			e    model.KnowledgeEntry
			meta []byte
		)
		if err := rows.Scan(&e.ID, &e.Category, &e.Content, pq.Array(&e.Embedding), &meta, &e.CreatedAt); err != nil {
			return nil, errx.WrapPostgres(err)
		}
		if err := json.Unmarshal(meta, &e.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata of entry %d: %w", e.ID, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errx.WrapPostgres(err)
	}
	return out, nil
}

// ================ Facts ================

type PostgresFactRepository struct {
	db *sql.DB
}

func NewPostgresFactRepository(db *sql.DB) *PostgresFactRepository {
	return &PostgresFactRepository{db: db}
}

func (r *PostgresFactRepository) AppendFact(ctx context.Context, d model.CollectedDatum) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO collected_data (user_id, agent_id, field_name, value, timestamp)
		 VALUES ($1, $2, $3, $4, $5)`,
		d.UserID, d.AgentID, d.FieldName, d.Value, d.Timestamp,
	)
	if err != nil {
		logx.Error().Err(err).Str("user_id", d.UserID).Str("field", d.FieldName).Msg("failed to insert fact")
		return errx.WrapPostgres(err)
	}
	return nil
}

func (r *PostgresFactRepository) ListFacts(ctx context.Context, userID, agentID string) ([]model.CollectedDatum, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id, agent_id, field_name, value, timestamp
		 FROM collected_data WHERE user_id = $1 AND agent_id = $2 ORDER BY id`,
		userID, agentID,
	)
	if err != nil {
		logx.Error().Err(err).Str("user_id", userID).Msg("failed to query facts")
		return nil, errx.WrapPostgres(err)
	}
	defer rows.Close()

	out := make([]model.CollectedDatum, 0)
	for rows.Next() {
		var d model.CollectedDatum
		if err := rows.Scan(&d.UserID, &d.AgentID, &d.FieldName, &d.Value, &d.Timestamp); err != nil {
			return nil, errx.WrapPostgres(err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, errx.WrapPostgres(err)
	}
	return out, nil
}

// ================ Sessions ================

type PostgresSessionStore struct {
	db  *sql.DB
	ttl time.Duration
}

func NewPostgresSessionStore(db *sql.DB, ttl time.Duration) *PostgresSessionStore {
	return &PostgresSessionStore{db: db, ttl: ttl}
}

func (s *PostgresSessionStore) Get(ctx context.Context, sessionID string) (*model.ConversationContext, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT context FROM conversation_sessions
		 WHERE session_id = $1 AND (expires_at IS NULL OR expires_at > now())`,
		sessionID,
	).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errx.WithKind(errx.ErrSessionNotFound, fmt.Errorf("session %q", sessionID))
		}
		logx.Error().Err(err).Str("session_id", sessionID).Msg("failed to load session from postgres")
		return nil, errx.WrapPostgres(err)
	}

	cc := &model.ConversationContext{}
	if err := json.Unmarshal(raw, cc); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return cc.Clone(), nil
}

func (s *PostgresSessionStore) Save(ctx context.Context, cc *model.ConversationContext) error {
	b, err := json.Marshal(cc)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	var expires sql.NullTime
	if s.ttl > 0 {
		expires = sql.NullTime{Time: time.Now().UTC().Add(s.ttl), Valid: true}
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO conversation_sessions (session_id, context, expires_at) VALUES ($1, $2, $3)
		 ON CONFLICT (session_id) DO UPDATE SET context = EXCLUDED.context, expires_at = EXCLUDED.expires_at`,
		cc.SessionID, b, expires,
	)
	if err != nil {
		logx.Error().Err(err).Str("session_id", cc.SessionID).Msg("failed to save session to postgres")
		return errx.WrapPostgres(err)
	}
	return nil
}

func (s *PostgresSessionStore) Delete(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM conversation_sessions WHERE session_id = $1`, sessionID); err != nil {
		logx.Error().Err(err).Str("session_id", sessionID).Msg("failed to delete session from postgres")
		return errx.WrapPostgres(err)
	}
	return nil
}

var (
	_ model.KnowledgeRepository = (*PostgresKnowledgeRepository)(nil)
	_ model.FactRepository      = (*PostgresFactRepository)(nil)
	_ model.SessionStore        = (*PostgresSessionStore)(nil)
)
