package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/chative-core/agentbuilder/internal/agent/model"
	"github.com/chative-core/agentbuilder/internal/core"
	pkgpostgres "github.com/chative-core/agentbuilder/pkg/postgres"
	pkgredis "github.com/chative-core/agentbuilder/pkg/redis"
)

const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// AppConfig defines all configurable parameters of the agent, sourced from
// environment variables (loaded from .env for local runs).
type AppConfig struct {
	Environment core.Environment `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string           `envconfig:"LOG_LEVEL"`

	// Infrastructure
	StorageBackend string `envconfig:"STORAGE_BACKEND" default:"memory"`
	Redis          pkgredis.Config
	Postgres       pkgpostgres.Config

	// Providers
	LLM       model.LLMConfig
	Embedding model.EmbeddingConfig
	Keys      model.ProviderKeys

	// Agent
	Knowledge    model.KnowledgeConfig
	Conversation model.ConversationConfig
}

// Durations are the parsed duration settings of AppConfig.
type Durations struct {
	SessionTTL  time.Duration
	FactTTL     time.Duration
	LockTimeout time.Duration
	TurnTimeout time.Duration
}

// LoadConfig loads envFile when it exists and binds the environment.
func LoadConfig(envFile string) (AppConfig, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return AppConfig{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return AppConfig{}, fmt.Errorf("failed to process environment config: %w", err)
	}
	return cfg, nil
}

// Durations parses the duration strings of the configuration.
func (c AppConfig) Durations() (Durations, error) {
	var d Durations
	fields := []struct {
		name  string
		value string
		dst   *time.Duration
	}{
		{"CONVERSATION_TTL", c.Conversation.TTL, &d.SessionTTL},
		{"KNOWLEDGE_FACT_TTL", c.Knowledge.FactTTL, &d.FactTTL},
		{"CONVERSATION_LOCK_TIMEOUT", c.Conversation.LockTimeout, &d.LockTimeout},
		{"CONVERSATION_TURN_TIMEOUT", c.Conversation.TurnTimeout, &d.TurnTimeout},
	}
	for _, f := range fields {
		if f.value == "" {
			continue
		}
		v, err := time.ParseDuration(f.value)
		if err != nil {
			return Durations{}, fmt.Errorf("invalid %s %q: %w", f.name, f.value, err)
		}
		*f.dst = v
	}
	return d, nil
}
