// Package tools maps tool names to executable handlers and to the schema
// descriptions the model consumes. A registry is populated once at startup
// per agent persona and is read-only afterwards, so it is safe to share
// across concurrent turns.
package tools

import (
	"context"

	"github.com/salonkit/concierge/pkg/llm"
	"github.com/salonkit/concierge/pkg/registry"
)

type Registry struct {
	base *registry.BaseRegistry[Tool]
}

func NewRegistry() *Registry {
	return &Registry{
		base: registry.NewBaseRegistry[Tool](),
	}
}

// Register adds a tool under its definition name. Re-registering the exact
// same instance is a no-op; a different instance under the same name is a
// RegistrationError.
func (r *Registry) Register(t Tool) error {
	if t == nil {
		return &RegistrationError{Message: "tool cannot be nil"}
	}

	def := t.Definition()
	if def.Name == "" {
		return &RegistrationError{Message: "tool name cannot be empty"}
	}
	if ft, ok := t.(*FuncTool); ok && ft.Handler == nil {
		return &RegistrationError{Tool: def.Name, Message: "handler cannot be nil"}
	}

	if existing, ok := r.base.Get(def.Name); ok {
		if existing == t {
			return nil
		}
		return &RegistrationError{Tool: def.Name, Message: "already registered with a different handler"}
	}

	return r.base.Register(def.Name, t)
}

// RegisterAll registers each tool, stopping at the first failure.
func (r *Registry) RegisterAll(toolset ...Tool) error {
	for _, t := range toolset {
		if err := r.Register(t); err != nil {
			return err
		}
	}
	return nil
}

// SchemaForAll projects every registered tool into the endpoint wire format,
// ordered by name. Pure read; no side effects.
func (r *Registry) SchemaForAll() []llm.ToolSchema {
	items := r.base.List()
	if len(items) == 0 {
		return nil
	}

	schemas := make([]llm.ToolSchema, 0, len(items))
	for _, t := range items {
		schemas = append(schemas, t.Definition().Schema())
	}
	return schemas
}

// Invoke executes the named tool. Handler errors propagate untouched — in
// particular the escalation signal, which must cross this boundary intact.
func (r *Registry) Invoke(ctx context.Context, name string, inv Invocation) (string, error) {
	t, ok := r.base.Get(name)
	if !ok {
		return "", &UnknownToolError{Tool: name}
	}
	return t.Execute(ctx, inv)
}

// Names lists registered tool names in lexical order.
func (r *Registry) Names() []string {
	return r.base.Names()
}

func (r *Registry) Count() int {
	return r.base.Count()
}
