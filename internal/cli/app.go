package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/chative-core/agentbuilder/internal/agent/actions"
	"github.com/chative-core/agentbuilder/internal/agent/graph"
	"github.com/chative-core/agentbuilder/internal/agent/graph/conversations"
	"github.com/chative-core/agentbuilder/internal/agent/graph/prompts"
	"github.com/chative-core/agentbuilder/internal/agent/knowledge"
	"github.com/chative-core/agentbuilder/internal/agent/llm"
	"github.com/chative-core/agentbuilder/internal/agent/model"
	"github.com/chative-core/agentbuilder/internal/agent/personas"
	"github.com/chative-core/agentbuilder/internal/agent/repo"
	logx "github.com/chative-core/agentbuilder/pkg/logger"
)

// builtinActions maps persona names to the actions they ship with.
var builtinActions = map[string]func(*actions.Registry, personas.FactRecorder){
	"sales": personas.RegisterSalesActions,
}

// App is a fully wired agent and the resources it holds.
type App struct {
	Config  AppConfig
	Persona *personas.Persona
	Agent   *graph.Agent

	closers []func() error
}

// Close releases storage connections.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

type storage struct {
	knowledge model.KnowledgeRepository
	facts     model.FactRepository
	sessions  model.SessionStore
}

// Bootstrap wires storage, providers, the persona and the agent. A nil
// providers builds them from cfg. An empty personaPath uses the built-in
// sales persona.
func Bootstrap(ctx context.Context, cfg AppConfig, personaPath string, providers *llm.Providers) (*App, error) {
	durations, err := cfg.Durations()
	if err != nil {
		return nil, err
	}

	persona, err := loadPersona(personaPath)
	if err != nil {
		return nil, err
	}

	app := &App{Config: cfg, Persona: persona}
	store, err := app.openStorage(ctx, cfg, durations)
	if err != nil {
		_ = app.Close()
		return nil, err
	}

	if providers == nil {
		providers, err = llm.NewProviders(ctx, cfg.LLM, cfg.Embedding, cfg.Keys)
		if err != nil {
			_ = app.Close()
			return nil, err
		}
	}

	knowledgeStore := knowledge.NewStore(store.knowledge, store.facts, providers.Embedder,
		knowledge.WithThreshold(cfg.Knowledge.SimilarityThreshold),
	)

	registry := actions.NewRegistry()
	if register, ok := builtinActions[persona.Name]; ok {
		register(registry, knowledgeStore)
	}
	engine := prompts.NewEngine(prompts.WithHistoryWindow(cfg.Conversation.HistoryWindow))
	persona.Install(engine, registry)

	agent, err := graph.BuildAgent(ctx, graph.Config{
		AgentType:     persona.Name,
		Category:      persona.Category,
		ChatModel:     providers.ChatModel,
		ModelName:     providers.ModelName,
		Knowledge:     knowledgeStore,
		Prompts:       engine,
		Actions:       registry,
		Conversations: conversations.NewManager(store.sessions, conversations.WithLockTimeout(durations.LockTimeout)),
		TurnTimeout:   durations.TurnTimeout,
	})
	if err != nil {
		_ = app.Close()
		return nil, err
	}
	app.Agent = agent

	if strings.EqualFold(cfg.StorageBackend, BackendMemory) || cfg.Knowledge.Seed {
		n, err := persona.Seed(ctx, knowledgeStore)
		if err != nil {
			_ = app.Close()
			return nil, err
		}
		logx.Debug().Str("persona", persona.Name).Int("entries", n).Msg("seed knowledge added")
	}

	logx.Info().
		Str("persona", persona.Name).
		Str("storage", cfg.StorageBackend).
		Str("llm_provider", cfg.LLM.Provider).
		Str("llm_model", providers.ModelName).
		Msg("agent ready")
	return app, nil
}

func loadPersona(path string) (*personas.Persona, error) {
	if path == "" {
		return personas.Sales()
	}
	return personas.Load(path)
}

func (a *App) openStorage(ctx context.Context, cfg AppConfig, d Durations) (*storage, error) {
	switch strings.ToLower(cfg.StorageBackend) {
	case BackendMemory, "":
		return &storage{
			knowledge: repo.NewMemoryKnowledgeRepository(),
			facts:     repo.NewMemoryFactRepository(),
			sessions:  repo.NewMemorySessionStore(),
		}, nil

	case BackendRedis:
		rdb, err := cfg.Redis.New(ctx)
		if err != nil {
			logx.Error().Err(err).Msg("Failed to initialise Redis client")
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		a.closers = append(a.closers, rdb.Close)
		return &storage{
			knowledge: repo.NewRedisKnowledgeRepository(rdb),
			facts:     repo.NewRedisFactRepository(rdb, d.FactTTL),
			sessions:  repo.NewRedisSessionStore(rdb, d.SessionTTL),
		}, nil

	case BackendPostgres:
		db, err := cfg.Postgres.New(ctx)
		if err != nil {
			logx.Error().Err(err).Msg("Failed to initialise Postgres pool")
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		if err := repo.Migrate(ctx, db); err != nil {
			return nil, err
		}
		return &storage{
			knowledge: repo.NewPostgresKnowledgeRepository(db),
			facts:     repo.NewPostgresFactRepository(db),
			sessions:  repo.NewPostgresSessionStore(db, d.SessionTTL),
		}, nil

	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}
