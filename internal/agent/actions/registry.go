// Package actions holds the registry of named actions the model may ask the
// agent to run. Arguments are bound and validated against the action's
// declared parameters before the handler is invoked.
package actions

import (
	"context"
	"fmt"
	"maps"
	"reflect"
	"slices"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/chative-core/agentbuilder/internal/agent/model"
	errx "github.com/chative-core/agentbuilder/internal/core/error"
	logx "github.com/chative-core/agentbuilder/pkg/logger"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DefaultDescription is used when neither the registration nor the argument
// type supplies one.
const DefaultDescription = "No description provided"

// Describer is implemented by argument types that document their action.
type Describer interface {
	ActionDescription() string
}

// Handler is the typed body of an action.
type Handler[T any] func(ctx context.Context, args T) (any, error)

type descriptor struct {
	name        string
	description string
	spec        paramSpec
	invoke      func(ctx context.Context, args map[string]any) (any, error)
}

// Registry maps action names to handlers. It is the single source of truth
// for whether an action exists. Safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	actions map[string]*descriptor
	order   []string
}

func NewRegistry() *Registry {
	return &Registry{actions: map[string]*descriptor{}}
}

// Register stores fn under name, replacing any previous registration.
// Parameters are derived from T: exported fields are required unless they are
// pointers or tagged omitempty. Untagged embedded structs are flattened.
func Register[T any](r *Registry, name string, fn Handler[T], description ...string) {
	var zero T
	desc := ""
	if len(description) > 0 {
		desc = description[0]
	}
	if desc == "" {
		if d, ok := any(zero).(Describer); ok {
			desc = d.ActionDescription()
		}
	}
	if desc == "" {
		desc = DefaultDescription
	}

	d := &descriptor{
		name:        name,
		description: desc,
		spec:        deriveParams(reflect.TypeOf((*T)(nil)).Elem()),
		invoke: func(ctx context.Context, args map[string]any) (any, error) {
			var bound T
			raw, err := json.Marshal(args)
			if err != nil {
				return nil, errx.WithKind(errx.ErrActionValidation, fmt.Errorf("encode parameters: %w", err))
			}
			if err := json.Unmarshal(raw, &bound); err != nil {
				return nil, errx.WithKind(errx.ErrActionValidation, fmt.Errorf("bind parameters: %w", err))
			}
			return fn(ctx, bound)
		},
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.actions[name]; !exists {
		r.order = append(r.order, name)
	}
	r.actions[name] = d
}

// Has reports whether an action is registered under name.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.actions[name]
	return ok
}

// Execute validates args against the action's parameters and runs it.
//
// Error kinds:
//   - errx.ErrActionLookup: name is not registered
//   - errx.ErrActionValidation: binding failed; the handler was not invoked
//   - errx.ErrActionExecution: the handler returned an error or panicked
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (result any, err error) {
	r.mu.RLock()
	d, ok := r.actions[name]
	r.mu.RUnlock()

	log := logx.Component("actions")
	if !ok {
		log.Warn().Str("action", name).Msg("action not found in registry")
		return nil, errx.WithKind(errx.ErrActionLookup, fmt.Errorf("action %q not found in registry", name))
	}
	if args == nil {
		args = map[string]any{}
	}

	if err := d.spec.validate(args); err != nil {
		log.Error().Err(err).Str("action", name).Msg("action validation failed")
		return nil, err
	}

	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Str("action", name).Msgf("panic recovered: %v", rec)
			result = nil
			err = errx.WithKind(errx.ErrActionExecution, fmt.Errorf("action %q panicked: %v", name, rec))
		}
	}()

	result, err = d.invoke(ctx, args)
	if err != nil {
		if errx.KindOf(err) == errx.ErrActionValidation {
			log.Error().Err(err).Str("action", name).Msg("action validation failed")
			return nil, err
		}
		log.Error().Err(err).Str("action", name).Msg("action execution failed")
		return nil, errx.WithKind(errx.ErrActionExecution, fmt.Errorf("action %q: %w", name, err))
	}

	log.Debug().Str("action", name).Dur("duration", time.Since(start)).Msg("action executed")
	return result, nil
}

// Schema returns the outward description of the named action.
func (r *Registry) Schema(name string) (model.ActionSchema, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.actions[name]
	if !ok {
		return model.ActionSchema{}, errx.WithKind(errx.ErrActionLookup, fmt.Errorf("action %q not found in registry", name))
	}
	return d.schema(), nil
}

// List returns the schemas of all actions in registration order.
func (r *Registry) List() []model.ActionSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.ActionSchema, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.actions[name].schema())
	}
	return out
}

func (d *descriptor) schema() model.ActionSchema {
	required := map[string]string{}
	for _, p := range d.spec.params {
		if p.Required {
			required[p.Name] = p.Type
		}
	}
	return model.ActionSchema{
		Name:               d.name,
		Description:        d.description,
		RequiredParameters: required,
		Parameters:         slices.Clone(d.spec.params),
	}
}

func sortedKeys(m map[string]any) []string {
	return slices.Sorted(maps.Keys(m))
}
