package tools

import (
	"context"
	"sort"

	"github.com/salonkit/concierge/pkg/llm"
)

// Parameter describes one tool argument for the model-facing schema.
type Parameter struct {
	Type        string   `json:"type"`
	Description string   `json:"description"`
	Required    bool     `json:"required"`
	Enum        []string `json:"enum,omitempty"`
}

// Definition is the model-facing description of a tool.
type Definition struct {
	Name        string               `json:"name"`
	Description string               `json:"description"`
	Parameters  map[string]Parameter `json:"parameters,omitempty"`
}

// Invocation carries the decoded arguments plus caller-side context that is
// passed through to tools but never sent to the model.
type Invocation struct {
	Args map[string]any
	// ChatID identifies the conversation channel (e.g. a Telegram chat).
	ChatID string
	// Message is the user message that started the turn.
	Message string
}

// Tool is an executable action the model may call. Register tools as
// pointers: the registry relies on interface comparability to detect
// idempotent re-registration.
type Tool interface {
	Definition() Definition
	Execute(ctx context.Context, inv Invocation) (string, error)
}

// Schema projects the definition into the endpoint's function wire format.
func (d Definition) Schema() llm.ToolSchema {
	properties := make(map[string]any, len(d.Parameters))
	required := make([]string, 0, len(d.Parameters))

	names := make([]string, 0, len(d.Parameters))
	for name := range d.Parameters {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		param := d.Parameters[name]
		prop := map[string]any{
			"type":        param.Type,
			"description": param.Description,
		}
		if len(param.Enum) > 0 {
			prop["enum"] = param.Enum
		}
		properties[name] = prop
		if param.Required {
			required = append(required, name)
		}
	}

	return llm.ToolSchema{
		Type:        "function",
		Name:        d.Name,
		Description: d.Description,
		Parameters: map[string]any{
			"type":                 "object",
			"properties":           properties,
			"required":             required,
			"additionalProperties": false,
		},
		Strict: true,
	}
}

// HandlerFunc is the calling convention for function-backed tools.
type HandlerFunc func(ctx context.Context, inv Invocation) (string, error)

// FuncTool adapts a plain function to the Tool interface.
type FuncTool struct {
	Def     Definition
	Handler HandlerFunc
}

func NewFuncTool(def Definition, handler HandlerFunc) *FuncTool {
	return &FuncTool{Def: def, Handler: handler}
}

func (t *FuncTool) Definition() Definition {
	return t.Def
}

func (t *FuncTool) Execute(ctx context.Context, inv Invocation) (string, error) {
	return t.Handler(ctx, inv)
}
