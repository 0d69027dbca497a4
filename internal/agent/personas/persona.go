// Package personas loads agent personas (system prompt, per-state prompts and
// seed knowledge) from YAML and installs them into the prompt engine.
package personas

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/chative-core/agentbuilder/internal/agent/actions"
	"github.com/chative-core/agentbuilder/internal/agent/graph/prompts"
	logx "github.com/chative-core/agentbuilder/pkg/logger"
)

type StatePrompt struct {
	Template string   `yaml:"template"`
	Required []string `yaml:"required"`
}

type SeedEntry struct {
	Content  string         `yaml:"content"`
	Metadata map[string]any `yaml:"metadata"`
}

// Persona describes one agent type. Category scopes knowledge retrieval and
// defaults to Name.
type Persona struct {
	Name          string                 `yaml:"name"`
	Category      string                 `yaml:"category"`
	SystemPrompt  string                 `yaml:"system_prompt"`
	StatePrompts  map[string]StatePrompt `yaml:"state_prompts"`
	SeedKnowledge []SeedEntry            `yaml:"seed_knowledge"`
}

// KnowledgeAdder is the part of the knowledge store Seed needs.
type KnowledgeAdder interface {
	Add(ctx context.Context, category, content string, metadata map[string]any) (int64, error)
}

// Parse decodes a persona definition.
func Parse(data []byte) (*Persona, error) {
	var p Persona
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode persona: %w", err)
	}
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return nil, errors.New("persona name is required")
	}
	if strings.TrimSpace(p.Category) == "" {
		p.Category = p.Name
	}
	for state, sp := range p.StatePrompts {
		if strings.TrimSpace(sp.Template) == "" {
			return nil, fmt.Errorf("persona %q: state %q has an empty template", p.Name, state)
		}
	}
	return &p, nil
}

// Load reads a persona definition from path.
func Load(path string) (*Persona, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read persona: %w", err)
	}
	return Parse(data)
}

// Install registers the persona's prompts and advertises every action in
// registry to its model. Call it after the actions are registered.
func (p *Persona) Install(engine *prompts.Engine, registry *actions.Registry) {
	engine.RegisterSystemPrompt(p.Name, p.SystemPrompt)
	for state, sp := range p.StatePrompts {
		engine.RegisterStatePrompt(p.Name, state, prompts.NewTemplate(sp.Template, sp.Required...))
	}
	engine.RegisterActions(p.Name, registry.List())

	logx.Debug().
		Str("persona", p.Name).
		Int("state_prompts", len(p.StatePrompts)).
		Int("actions", len(registry.List())).
		Msg("persona installed")
}

// Seed adds the persona's seed knowledge under its category, in file order.
func (p *Persona) Seed(ctx context.Context, store KnowledgeAdder) (int, error) {
	for i, entry := range p.SeedKnowledge {
		if _, err := store.Add(ctx, p.Category, entry.Content, entry.Metadata); err != nil {
			return i, fmt.Errorf("seed %q knowledge entry %d: %w", p.Name, i, err)
		}
	}
	return len(p.SeedKnowledge), nil
}
