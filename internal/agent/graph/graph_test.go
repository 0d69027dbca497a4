package graph

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/embedding"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chative-core/agentbuilder/internal/agent/actions"
	"github.com/chative-core/agentbuilder/internal/agent/graph/conversations"
	"github.com/chative-core/agentbuilder/internal/agent/graph/prompts"
	"github.com/chative-core/agentbuilder/internal/agent/knowledge"
	"github.com/chative-core/agentbuilder/internal/agent/model"
	"github.com/chative-core/agentbuilder/internal/agent/repo"
	errx "github.com/chative-core/agentbuilder/internal/core/error"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const qualifyingReply = `{"response":"Great, may I have your name?","actions":[],"required_information":["name","email"],"next_state":"qualifying","confidence":0.9}`

// scriptedModel replies with its script in order, repeating the last entry.
type scriptedModel struct {
	mu      sync.Mutex
	replies []string
	err     error
	block   bool
	delay   time.Duration
	usage   *schema.TokenUsage
	inputs  [][]*schema.Message

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func (m *scriptedModel) Generate(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.Message, error) {
	n := m.inFlight.Add(1)
	defer m.inFlight.Add(-1)
	for {
		cur := m.maxInFlight.Load()
		if n <= cur || m.maxInFlight.CompareAndSwap(cur, n) {
			break
		}
	}

	m.mu.Lock()
	m.inputs = append(m.inputs, input)
	idx := len(m.inputs) - 1
	m.mu.Unlock()

	if m.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	if m.err != nil {
		return nil, m.err
	}

	reply := m.replies[min(idx, len(m.replies)-1)]
	out := schema.AssistantMessage(reply, nil)
	if m.usage != nil {
		usage := *m.usage
		out.ResponseMeta = &schema.ResponseMeta{FinishReason: "stop", Usage: &usage}
	}
	return out, nil
}

func (m *scriptedModel) Stream(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func (m *scriptedModel) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.inputs)
}

// fakeEmbedder maps known texts to fixed vectors and everything else to {0,0,1}.
type fakeEmbedder struct {
	vectors map[string][]float64
	err     error
}

func (e *fakeEmbedder) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float64, len(texts))
	for i, t := range texts {
		if v, ok := e.vectors[t]; ok {
			out[i] = v
			continue
		}
		out[i] = []float64{0, 0, 1}
	}
	return out, nil
}

type fixture struct {
	agent    *Agent
	model    *scriptedModel
	embedder *fakeEmbedder
	store    *knowledge.Store
	registry *actions.Registry
	sessions model.SessionStore
}

func newFixture(t *testing.T, cm *scriptedModel, opts ...func(*Config)) *fixture {
	t.Helper()

	embedder := &fakeEmbedder{vectors: map[string][]float64{
		"Our product pricing starts at $99/month": {1, 0, 0},
		"what's the price?":                       {0.99, 0.1, 0},
	}}
	store := knowledge.NewStore(repo.NewMemoryKnowledgeRepository(), repo.NewMemoryFactRepository(), embedder)
	sessions := repo.NewMemorySessionStore()
	registry := actions.NewRegistry()
	engine := prompts.NewEngine()
	engine.RegisterSystemPrompt("sales", "You are an AI sales assistant.")

	cfg := Config{
		AgentType:     "sales",
		ChatModel:     cm,
		ModelName:     "gpt-4o-mini",
		Knowledge:     store,
		Prompts:       engine,
		Actions:       registry,
		Conversations: conversations.NewManager(sessions, conversations.WithLockTimeout(5*time.Second)),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	agent, err := BuildAgent(context.Background(), cfg)
	require.NoError(t, err)
	return &fixture{agent: agent, model: cm, embedder: embedder, store: store, registry: registry, sessions: sessions}
}

func (f *fixture) start(t *testing.T) *model.ConversationContext {
	t.Helper()
	cc, err := f.agent.StartConversation(context.Background(), "u1")
	require.NoError(t, err)
	return cc
}

func (f *fixture) load(t *testing.T, sessionID string) *model.ConversationContext {
	t.Helper()
	cc, err := f.agent.Conversation(context.Background(), sessionID)
	require.NoError(t, err)
	return cc
}

func TestBuildAgentValidatesConfig(t *testing.T) {
	_, err := BuildAgent(context.Background(), Config{})
	assert.ErrorContains(t, err, "agent type")

	_, err = BuildAgent(context.Background(), Config{AgentType: "sales"})
	assert.ErrorContains(t, err, "chat model")

	_, err = BuildAgent(context.Background(), Config{AgentType: "sales", ChatModel: &scriptedModel{}})
	assert.ErrorContains(t, err, "dependencies")
}

func TestProcessMessageAdvancesStateAndHistory(t *testing.T) {
	f := newFixture(t, &scriptedModel{replies: []string{qualifyingReply}})
	ctx := context.Background()
	_, err := f.agent.AddKnowledge(ctx, "", "Our product pricing starts at $99/month", nil)
	require.NoError(t, err)

	cc := f.start(t)
	require.Equal(t, model.DefaultState, cc.CurrentState)

	resp, err := f.agent.ProcessMessage(ctx, cc.SessionID, "what's the price?")
	require.NoError(t, err)
	assert.Equal(t, "Great, may I have your name?", resp.Response)
	assert.Equal(t, "qualifying", resp.NextState)
	assert.InDelta(t, 0.9, resp.Confidence, 1e-9)

	after := f.load(t, cc.SessionID)
	require.Len(t, after.ConversationHistory, 2)
	assert.Equal(t, model.RoleUser, after.ConversationHistory[0].Role)
	assert.Equal(t, "what's the price?", after.ConversationHistory[0].Content)
	assert.Equal(t, model.RoleAssistant, after.ConversationHistory[1].Role)
	assert.Equal(t, "Great, may I have your name?", after.ConversationHistory[1].Content)
	assert.Equal(t, "qualifying", after.CurrentState)
	assert.Equal(t, []string{"name", "email"}, after.RequiredInfo)
	assert.Equal(t, []string{"name", "email"}, after.MissingInfo())

	// the model saw the system message and the prompt document with the knowledge
	require.Equal(t, 1, f.model.calls())
	input := f.model.inputs[0]
	require.Len(t, input, 2)
	assert.Equal(t, schema.System, input[0].Role)
	assert.Equal(t, prompts.SystemMessage, input[0].Content)

	var doc prompts.Document
	require.NoError(t, json.Unmarshal([]byte(input[1].Content), &doc))
	assert.Equal(t, "what's the price?", doc.UserMessage)
	assert.Equal(t, "You are an AI sales assistant.", doc.System)
	require.Len(t, doc.Knowledge, 1)
	assert.Equal(t, int64(1), doc.Knowledge[0].ID)
	assert.Empty(t, doc.Context.ConversationHistory)
}

func TestEmptyNextStateKeepsState(t *testing.T) {
	f := newFixture(t, &scriptedModel{replies: []string{
		qualifyingReply,
		`{"response":"ok","actions":[],"required_information":[],"next_state":"","confidence":0.5}`,
	}})
	ctx := context.Background()
	cc := f.start(t)

	_, err := f.agent.ProcessMessage(ctx, cc.SessionID, "hi")
	require.NoError(t, err)
	_, err = f.agent.ProcessMessage(ctx, cc.SessionID, "tell me more")
	require.NoError(t, err)

	after := f.load(t, cc.SessionID)
	assert.Equal(t, "qualifying", after.CurrentState)
	assert.Empty(t, after.RequiredInfo)
	assert.NotNil(t, after.RequiredInfo)
	assert.Len(t, after.ConversationHistory, 4)
}

func TestRejectedResponseLeavesContextUnchanged(t *testing.T) {
	cases := []struct {
		name  string
		reply string
		kind  error
		field string
	}{
		{
			name:  "missing confidence",
			reply: `{"response":"hi","actions":[],"required_information":[],"next_state":"s1"}`,
			kind:  errx.ErrResponseContract,
			field: "confidence",
		},
		{
			name:  "mistyped actions",
			reply: `{"response":"hi","actions":{},"required_information":[],"next_state":"s1","confidence":1}`,
			kind:  errx.ErrResponseContract,
			field: "actions",
		},
		{
			name:  "not json",
			reply: "Sure! Happy to help.",
			kind:  errx.ErrResponseParse,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, &scriptedModel{replies: []string{tc.reply}})
			var ran atomic.Int32
			actions.Register(f.registry, "ping", func(ctx context.Context, args map[string]any) (any, error) {
				ran.Add(1)
				return nil, nil
			})
			cc := f.start(t)

			_, err := f.agent.ProcessMessage(context.Background(), cc.SessionID, "hello")
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.kind)
			if tc.field != "" {
				field, ok := errx.FieldOf(err)
				require.True(t, ok)
				assert.Equal(t, tc.field, field)
			}

			after := f.load(t, cc.SessionID)
			assert.Empty(t, after.ConversationHistory)
			assert.Equal(t, model.DefaultState, after.CurrentState)
			assert.Equal(t, cc.RequiredInfo, after.RequiredInfo)
			assert.Zero(t, ran.Load())
		})
	}
}

func TestActionFailuresAreContained(t *testing.T) {
	reply := `{"response":"Saved!","actions":[
		{"name":"teleport","parameters":{}},
		{"name":"save_lead","parameters":{"name":"Ann"}},
		{"name":"explode","parameters":{}},
		{"name":"save_lead","parameters":{"name":"Ann","email":"a@x.com"}}
	],"required_information":[],"next_state":"scheduling","confidence":0.8}`
	f := newFixture(t, &scriptedModel{replies: []string{reply}})

	type lead struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	var saved []string
	actions.Register(f.registry, "save_lead", func(ctx context.Context, args lead) (any, error) {
		saved = append(saved, args.Name+" <"+args.Email+">")
		return nil, nil
	})
	actions.Register(f.registry, "explode", func(ctx context.Context, args map[string]any) (any, error) {
		panic("boom")
	})

	cc := f.start(t)
	resp, err := f.agent.ProcessMessage(context.Background(), cc.SessionID, "I'm Ann, a@x.com")
	require.NoError(t, err)
	assert.Len(t, resp.Actions, 4)
	assert.Equal(t, []string{"Ann <a@x.com>"}, saved)

	after := f.load(t, cc.SessionID)
	assert.Len(t, after.ConversationHistory, 2)
	assert.Equal(t, "scheduling", after.CurrentState)
}

func TestActionFactsMergeIntoCollectedInfo(t *testing.T) {
	reply := `{"response":"Thanks Ann","actions":[{"name":"remember_name","parameters":{"value":"Ann"}}],"required_information":["name","email"],"next_state":"qualifying","confidence":0.9}`
	f := newFixture(t, &scriptedModel{replies: []string{reply}})

	type rememberArgs struct {
		Value string `json:"value"`
	}
	var caller actions.Caller
	actions.Register(f.registry, "remember_name", func(ctx context.Context, args rememberArgs) (any, error) {
		c, ok := actions.CallerFrom(ctx)
		if !ok {
			return nil, errors.New("no caller")
		}
		caller = c
		return nil, f.store.RecordFact(ctx, c.UserID, c.AgentID, "name", args.Value)
	})

	cc := f.start(t)
	_, err := f.agent.ProcessMessage(context.Background(), cc.SessionID, "I'm Ann")
	require.NoError(t, err)

	assert.Equal(t, actions.Caller{SessionID: cc.SessionID, UserID: "u1", AgentID: "sales"}, caller)
	after := f.load(t, cc.SessionID)
	assert.Equal(t, "Ann", after.CollectedInfo["name"])
	assert.Equal(t, []string{"email"}, after.MissingInfo())
	assert.False(t, after.IsRequiredInfoComplete())
}

func TestUsageCostAccumulates(t *testing.T) {
	cm := &scriptedModel{
		replies: []string{qualifyingReply},
		usage:   &schema.TokenUsage{PromptTokens: 1000, CompletionTokens: 500, TotalTokens: 1500},
	}
	f := newFixture(t, cm)
	cc := f.start(t)

	for i := 0; i < 2; i++ {
		_, err := f.agent.ProcessMessage(context.Background(), cc.SessionID, "hi")
		require.NoError(t, err)
	}

	after := f.load(t, cc.SessionID)
	assert.InDelta(t, 2*0.00045, after.Metadata[MetaTotalCostUSD], 1e-12)
	assert.InDelta(t, 3000, after.Metadata[MetaTotalTokens], 1e-9)
}

func TestModelFailureIsModelInvocation(t *testing.T) {
	f := newFixture(t, &scriptedModel{err: errors.New("503 overloaded")})
	cc := f.start(t)

	_, err := f.agent.ProcessMessage(context.Background(), cc.SessionID, "hello")
	require.Error(t, err)
	assert.ErrorIs(t, err, errx.ErrModelInvocation)
	assert.ErrorContains(t, err, "503 overloaded")

	after := f.load(t, cc.SessionID)
	assert.Empty(t, after.ConversationHistory)
	assert.Equal(t, model.DefaultState, after.CurrentState)
}

func TestRetrievalFailureAbortsBeforeModel(t *testing.T) {
	f := newFixture(t, &scriptedModel{replies: []string{qualifyingReply}})
	f.embedder.err = errors.New("embedding service down")
	cc := f.start(t)

	_, err := f.agent.ProcessMessage(context.Background(), cc.SessionID, "hello")
	require.Error(t, err)
	assert.ErrorIs(t, err, errx.ErrKnowledgeRetrieval)
	assert.Zero(t, f.model.calls())
	assert.Empty(t, f.load(t, cc.SessionID).ConversationHistory)
}

func TestNonFiniteQueryEmbeddingIsRetrievalError(t *testing.T) {
	f := newFixture(t, &scriptedModel{replies: []string{qualifyingReply}})
	f.embedder.vectors["hello"] = []float64{math.NaN(), 1, 0}
	cc := f.start(t)

	_, err := f.agent.ProcessMessage(context.Background(), cc.SessionID, "hello")
	require.Error(t, err)
	assert.ErrorIs(t, err, errx.ErrKnowledgeRetrieval)
	assert.Zero(t, f.model.calls())
	assert.Empty(t, f.load(t, cc.SessionID).ConversationHistory)
}

func TestTurnTimeout(t *testing.T) {
	f := newFixture(t, &scriptedModel{block: true}, func(c *Config) {
		c.TurnTimeout = 50 * time.Millisecond
	})
	cc := f.start(t)

	_, err := f.agent.ProcessMessage(context.Background(), cc.SessionID, "hello")
	require.Error(t, err)
	assert.ErrorIs(t, err, errx.ErrTimeout)

	after := f.load(t, cc.SessionID)
	assert.Empty(t, after.ConversationHistory)
	assert.Equal(t, model.DefaultState, after.CurrentState)
}

func TestUnknownSession(t *testing.T) {
	f := newFixture(t, &scriptedModel{replies: []string{qualifyingReply}})
	_, err := f.agent.ProcessMessage(context.Background(), "missing", "hello")
	assert.ErrorIs(t, err, errx.ErrSessionNotFound)
	assert.Zero(t, f.model.calls())
}

func TestSameSessionIsSerialized(t *testing.T) {
	cm := &scriptedModel{replies: []string{qualifyingReply}, delay: 5 * time.Millisecond}
	f := newFixture(t, cm)
	cc := f.start(t)

	const turns = 8
	var wg sync.WaitGroup
	errs := make(chan error, turns)
	for i := 0; i < turns; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.agent.ProcessMessage(context.Background(), cc.SessionID, "hi")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	assert.Equal(t, int32(1), cm.maxInFlight.Load())
	after := f.load(t, cc.SessionID)
	assert.Len(t, after.ConversationHistory, 2*turns)
	for i, h := range after.ConversationHistory {
		want := model.RoleUser
		if i%2 == 1 {
			want = model.RoleAssistant
		}
		assert.Equal(t, want, h.Role)
	}
}

func TestDifferentSessionsRunInParallel(t *testing.T) {
	cm := &scriptedModel{replies: []string{qualifyingReply}, delay: 50 * time.Millisecond}
	f := newFixture(t, cm)

	const sessions = 4
	ids := make([]string, sessions)
	for i := range ids {
		ids[i] = f.start(t).SessionID
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.agent.ProcessMessage(context.Background(), id, "hi")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Greater(t, cm.maxInFlight.Load(), int32(1))
}

func TestQueryKnowledgeUsesAgentCategory(t *testing.T) {
	f := newFixture(t, &scriptedModel{replies: []string{qualifyingReply}}, func(c *Config) {
		c.Category = "pricing"
	})
	ctx := context.Background()

	id, err := f.agent.AddKnowledge(ctx, "", "Our product pricing starts at $99/month", nil)
	require.NoError(t, err)
	_, err = f.agent.AddKnowledge(ctx, "support", "Our product pricing starts at $99/month", nil)
	require.NoError(t, err)

	results, err := f.agent.QueryKnowledge(ctx, "what's the price?")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, id, results[0].ID)
	assert.Equal(t, "pricing", results[0].Category)
	assert.Greater(t, results[0].Relevance, 0.8)
}

func TestEndConversation(t *testing.T) {
	f := newFixture(t, &scriptedModel{replies: []string{qualifyingReply}})
	cc := f.start(t)

	require.NoError(t, f.agent.EndConversation(context.Background(), cc.SessionID))
	_, err := f.agent.Conversation(context.Background(), cc.SessionID)
	assert.ErrorIs(t, err, errx.ErrSessionNotFound)
	assert.Equal(t, "sales", f.agent.AgentType())
}
