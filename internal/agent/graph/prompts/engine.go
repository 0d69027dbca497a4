// Package prompts assembles the structured prompt document sent to the chat
// model for each turn.
package prompts

import (
	"context"
	"sync"

	jsoniter "github.com/json-iterator/go"

	"github.com/chative-core/agentbuilder/internal/agent/model"
	logx "github.com/chative-core/agentbuilder/pkg/logger"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DefaultHistoryWindow is how many trailing history entries a prompt carries.
const DefaultHistoryWindow = 5

// SystemMessage is sent as the system turn alongside every prompt document.
const SystemMessage = "You are an AI assistant following strict response format."

// Variables supplied to state templates.
const (
	VarCollectedInfo = "collected_info"
	VarMissingInfo   = "missing_info"
	VarCurrentState  = "current_state"
)

type EngineOption func(*Engine)

// WithHistoryWindow overrides DefaultHistoryWindow. Non-positive values are ignored.
func WithHistoryWindow(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.historyWindow = n
		}
	}
}

// Engine holds per-agent system prompts, per-state templates and the action
// catalog advertised to the model. Registration is last-write-wins per key.
type Engine struct {
	mu            sync.RWMutex
	system        map[string]string
	states        map[string]map[string]*Template
	catalog       map[string][]model.ActionSchema
	historyWindow int
}

func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		system:        map[string]string{},
		states:        map[string]map[string]*Template{},
		catalog:       map[string][]model.ActionSchema{},
		historyWindow: DefaultHistoryWindow,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) RegisterSystemPrompt(agentType, text string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.system[agentType] = text
}

func (e *Engine) RegisterStatePrompt(agentType, state string, tpl *Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.states[agentType] == nil {
		e.states[agentType] = map[string]*Template{}
	}
	e.states[agentType][state] = tpl
}

// RegisterActions sets the actions advertised to agentType's model.
func (e *Engine) RegisterActions(agentType string, actions []model.ActionSchema) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.catalog[agentType] = actions
}

// Build assembles the prompt document for one turn. An unregistered agent
// type gets an empty system prompt. A state template that fails to format
// contributes its error text instead of failing the build.
func (e *Engine) Build(ctx context.Context, agentType, message string, cc *model.ConversationContext, knowledge []model.KnowledgeResult) *Document {
	e.mu.RLock()
	system := e.system[agentType]
	tpl := e.states[agentType][cc.CurrentState]
	actions := e.catalog[agentType]
	e.mu.RUnlock()

	if knowledge == nil {
		knowledge = []model.KnowledgeResult{}
	}
	collected := cc.CollectedInfo
	if collected == nil {
		collected = map[string]any{}
	}
	missing := cc.MissingInfo()

	doc := &Document{
		System: system,
		Context: DocumentContext{
			CurrentState:         cc.CurrentState,
			CollectedInformation: collected,
			MissingInformation:   missing,
			ConversationHistory:  cc.RecentHistory(e.historyWindow),
		},
		Knowledge:        knowledge,
		UserMessage:      message,
		ResponseFormat:   DefaultResponseFormat,
		AvailableActions: actions,
	}

	if tpl != nil {
		doc.StateSpecific = e.formatState(ctx, tpl, cc.SessionID, cc.CurrentState, collected, missing)
	}
	return doc
}

func (e *Engine) formatState(ctx context.Context, tpl *Template, sessionID, state string, collected map[string]any, missing []string) string {
	collectedJSON, _ := json.MarshalToString(collected)
	missingJSON, _ := json.MarshalToString(missing)

	out, err := tpl.Format(ctx, map[string]any{
		VarCollectedInfo: collectedJSON,
		VarMissingInfo:   missingJSON,
		VarCurrentState:  state,
	})
	if err != nil {
		logx.Warn().
			Err(err).
			Str("session_id", sessionID).
			Str("state", state).
			Msg("state template failed to format, embedding error text")
		return err.Error()
	}
	return out
}
