package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/cloudwego/eino/components/embedding"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chative-core/agentbuilder/internal/agent/llm"
)

const leadReply = `{"response":"Thanks Ann, I saved your details.","actions":[{"name":"save_lead","parameters":{"name":"Ann","email":"ann@acme.example"}}],"required_information":["name","email"],"next_state":"qualifying","confidence":0.92}`

type replyModel struct{ reply string }

func (m *replyModel) Generate(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.Message, error) {
	out := schema.AssistantMessage(m.reply, nil)
	out.ResponseMeta = &schema.ResponseMeta{Usage: &schema.TokenUsage{PromptTokens: 100, CompletionTokens: 20, TotalTokens: 120}}
	return out, nil
}

func (m *replyModel) Stream(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, _ := m.Generate(ctx, input, opts...)
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

// keywordEmbedder puts pricing and demo texts on their own axes.
type keywordEmbedder struct{}

func (keywordEmbedder) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, t := range texts {
		lower := strings.ToLower(t)
		switch {
		case strings.Contains(lower, "cost") || strings.Contains(lower, "pric"):
			out[i] = []float64{1, 0, 0}
		case strings.Contains(lower, "demo"):
			out[i] = []float64{0, 1, 0}
		default:
			out[i] = []float64{0, 0, 1}
		}
	}
	return out, nil
}

func fakeProviders() *llm.Providers {
	return &llm.Providers{
		ChatModel: &replyModel{reply: leadReply},
		ModelName: "gpt-4o-mini",
		Embedder:  keywordEmbedder{},
	}
}

func fixedProviders(p *llm.Providers) appFactory {
	return func(ctx context.Context, cfg AppConfig, personaPath string) (*App, error) {
		return Bootstrap(ctx, cfg, personaPath, p)
	}
}

func testConfig(t *testing.T) AppConfig {
	t.Helper()
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	cfg.StorageBackend = BackendMemory
	return cfg
}

func run(t *testing.T, stdin string, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(fixedProviders(fakeProviders()))
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append(args, "--env-file", filepath.Join(t.TempDir(), "missing.env")))
	require.NoError(t, cmd.ExecuteContext(context.Background()))
	return out.String()
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, 150, cfg.LLM.MaxTokens)
	assert.InDelta(t, 0.7, cfg.LLM.Temperature, 1e-6)
	assert.InDelta(t, 0.8, cfg.Knowledge.SimilarityThreshold, 1e-9)
	assert.Equal(t, 5, cfg.Conversation.HistoryWindow)

	d, err := cfg.Durations()
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, d.SessionTTL)
	assert.Equal(t, 30*time.Second, d.LockTimeout)
}

func TestLoadConfigFromEnvFile(t *testing.T) {
	keys := []string{"LLM_MODEL", "STORAGE_BACKEND", "CONVERSATION_TTL"}
	t.Cleanup(func() {
		for _, k := range keys {
			os.Unsetenv(k)
		}
	})

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("LLM_MODEL=gpt-4o-mini\nSTORAGE_BACKEND=redis\nCONVERSATION_TTL=90m\n"), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.Equal(t, BackendRedis, cfg.StorageBackend)

	d, err := cfg.Durations()
	require.NoError(t, err)
	assert.Equal(t, 90*time.Minute, d.SessionTTL)
}

func TestDurationsRejectsGarbage(t *testing.T) {
	cfg := testConfig(t)
	cfg.Conversation.TurnTimeout = "soon"
	_, err := cfg.Durations()
	assert.ErrorContains(t, err, "CONVERSATION_TURN_TIMEOUT")
}

func TestBootstrapMemorySeedsKnowledge(t *testing.T) {
	app, err := Bootstrap(context.Background(), testConfig(t), "", fakeProviders())
	require.NoError(t, err)
	defer app.Close()

	assert.Equal(t, "sales", app.Persona.Name)
	results, err := app.Agent.QueryKnowledge(context.Background(), "How much does it cost?")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Our product pricing starts at $99/month", results[0].Content)
}

func TestBootstrapRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.StorageBackend = BackendRedis
	cfg.Redis.URL = "redis://" + mr.Addr()
	cfg.Knowledge.Seed = true

	app, err := Bootstrap(context.Background(), cfg, "", fakeProviders())
	require.NoError(t, err)
	defer app.Close()

	cc, err := app.Agent.StartConversation(context.Background(), "u1")
	require.NoError(t, err)
	_, err = app.Agent.ProcessMessage(context.Background(), cc.SessionID, "I'm Ann")
	require.NoError(t, err)

	after, err := app.Agent.Conversation(context.Background(), cc.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "qualifying", after.CurrentState)
	assert.Equal(t, "Ann", after.CollectedInfo["name"])
	assert.Equal(t, "ann@acme.example", after.CollectedInfo["email"])
	assert.True(t, after.IsRequiredInfoComplete())
	assert.True(t, mr.Exists("facts:u1:sales"))
}

func TestBootstrapErrors(t *testing.T) {
	cfg := testConfig(t)
	cfg.StorageBackend = "cassandra"
	_, err := Bootstrap(context.Background(), cfg, "", fakeProviders())
	assert.ErrorContains(t, err, "unknown storage backend")

	_, err = Bootstrap(context.Background(), testConfig(t), filepath.Join(t.TempDir(), "none.yaml"), fakeProviders())
	assert.ErrorContains(t, err, "read persona")
}

func TestBootstrapCustomPersonaHasNoBuiltinActions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "support.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: support\nsystem_prompt: You help customers.\n"), 0o600))

	out := run(t, "", "actions", "list", "--persona", path)
	assert.Contains(t, out, "The support persona has no actions.")
}

func TestActionsList(t *testing.T) {
	out := run(t, "", "actions", "list")
	assert.Contains(t, out, "2 action(s)")
	assert.Contains(t, out, "save_lead")
	assert.Contains(t, out, "Save lead information to the database")
	assert.Contains(t, out, "schedule_demo")
}

func TestKnowledgeCommands(t *testing.T) {
	out := run(t, "", "knowledge", "add", "Annual plans get two months free", "--meta", "source=faq")
	assert.Contains(t, out, "Knowledge entry 4 added.")

	out = run(t, "", "knowledge", "query", "what does it cost?")
	assert.Contains(t, out, "1 result(s)")
	assert.Contains(t, out, "Our product pricing starts at $99/month")

	out = run(t, "", "knowledge", "query", "something else", "--persona", writePersona(t, "name: empty\n"))
	assert.Contains(t, out, "No knowledge found")
}

func TestChat(t *testing.T) {
	out := run(t, "hello\n\n/state\n/quit\n", "chat", "--user", "u1")
	assert.Contains(t, out, "sales agent")
	assert.Contains(t, out, "Thanks Ann, I saved your details.")
	assert.Contains(t, out, "state qualifying, confidence 0.92, actions save_lead")
	assert.Contains(t, out, "state:     qualifying")
	assert.Contains(t, out, "complete:  true")
	assert.Contains(t, out, "cost:")
}

func TestDemo(t *testing.T) {
	out := run(t, "", "demo", "--delay", "0")
	for i := 1; i <= len(demoQueries); i++ {
		assert.Contains(t, out, demoQueries[i-1].description)
	}
	assert.Contains(t, out, "turns:     4")
	assert.NotContains(t, out, "still missing")
}

func TestVersion(t *testing.T) {
	SetVersionInfo("1.2.3", "abc1234", "2026-01-01")
	defer SetVersionInfo("dev", "none", "unknown")

	out := run(t, "", "version")
	assert.Contains(t, out, "agentbuilder 1.2.3")
	assert.Contains(t, out, "commit: abc1234")
}

func TestUnknownCommand(t *testing.T) {
	cmd := NewRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"nonexistent-command"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown command")
}

func writePersona(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "persona.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}
