package model

// ================ Config ================
type ConversationConfig struct {
	TTL           string `envconfig:"CONVERSATION_TTL" default:"24h"`
	HistoryWindow int    `envconfig:"CONVERSATION_HISTORY_WINDOW" default:"5"`
	LockTimeout   string `envconfig:"CONVERSATION_LOCK_TIMEOUT" default:"30s"`
	TurnTimeout   string `envconfig:"CONVERSATION_TURN_TIMEOUT" default:"60s"`
}

type LLMConfig struct {
	Provider    string  `envconfig:"LLM_PROVIDER" default:"gemini"`
	Model       string  `envconfig:"LLM_MODEL" default:"gemini-2.5-flash"`
	MaxTokens   int     `envconfig:"LLM_MAX_TOKENS" default:"150"`
	Temperature float32 `envconfig:"LLM_TEMPERATURE" default:"0.7"`
}

type EmbeddingConfig struct {
	Provider string `envconfig:"EMBEDDING_PROVIDER" default:"gemini"`
	Model    string `envconfig:"EMBEDDING_MODEL" default:"text-embedding-004"`
}

type KnowledgeConfig struct {
	SimilarityThreshold float64 `envconfig:"KNOWLEDGE_SIMILARITY_THRESHOLD" default:"0.8"`
	// FactTTL bounds how long collected facts live in Redis after the last write.
	FactTTL string `envconfig:"KNOWLEDGE_FACT_TTL" default:"720h"`
	// Seed adds the persona's seed knowledge on startup. The memory backend always seeds.
	Seed bool `envconfig:"KNOWLEDGE_SEED" default:"false"`
}

type ProviderKeys struct {
	GeminiAPIKey    string `envconfig:"GEMINI_API_KEY"`
	GeminiBaseURL   string `envconfig:"GEMINI_BASE_URL"`
	OpenAIAPIKey    string `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL   string `envconfig:"OPENAI_BASE_URL"`
	AnthropicAPIKey string `envconfig:"ANTHROPIC_API_KEY"`
}
