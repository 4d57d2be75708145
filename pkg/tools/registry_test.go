package tools

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/salonkit/concierge/pkg/escalation"
)

func echoTool(name string) *FuncTool {
	return NewFuncTool(Definition{
		Name:        name,
		Description: "echoes its input",
		Parameters: map[string]Parameter{
			"text": {Type: "string", Description: "text to echo", Required: true},
		},
	}, func(ctx context.Context, inv Invocation) (string, error) {
		return argString(inv.Args, "text"), nil
	})
}

func TestRegistry_RegisterAndInvoke(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(echoTool("echo")))

	out, err := r.Invoke(context.Background(), "echo", Invocation{Args: map[string]any{"text": "hi"}})
	require.NoError(t, err)
	assert.Equal(t, "hi", out)
	assert.Equal(t, 1, r.Count())
}

func TestRegistry_IdempotentSameInstance(t *testing.T) {
	r := NewRegistry()
	tool := echoTool("echo")

	require.NoError(t, r.Register(tool))
	require.NoError(t, r.Register(tool))
	assert.Equal(t, 1, r.Count())
}

func TestRegistry_ConflictDifferentInstance(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(echoTool("echo")))

	err := r.Register(echoTool("echo"))
	require.Error(t, err)

	var regErr *RegistrationError
	require.ErrorAs(t, err, &regErr)
	assert.Equal(t, "echo", regErr.Tool)
}

func TestRegistry_RejectsInvalidTools(t *testing.T) {
	r := NewRegistry()

	assert.Error(t, r.Register(nil))
	assert.Error(t, r.Register(&FuncTool{Def: Definition{Name: ""}}))
	assert.Error(t, r.Register(&FuncTool{Def: Definition{Name: "broken"}}))
}

func TestRegistry_InvokeUnknown(t *testing.T) {
	r := NewRegistry()

	_, err := r.Invoke(context.Background(), "missing", Invocation{})
	require.Error(t, err)

	var unknown *UnknownToolError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "missing", unknown.Tool)
}

func TestRegistry_SchemaForAll(t *testing.T) {
	r := NewRegistry()
	assert.Nil(t, r.SchemaForAll())

	require.NoError(t, r.RegisterAll(echoTool("b_tool"), echoTool("a_tool")))

	schemas := r.SchemaForAll()
	require.Len(t, schemas, 2)
	assert.Equal(t, "a_tool", schemas[0].Name)
	assert.Equal(t, "b_tool", schemas[1].Name)
	assert.Equal(t, "function", schemas[0].Type)
	assert.True(t, schemas[0].Strict)

	params := schemas[0].Parameters
	assert.Equal(t, "object", params["type"])
	assert.Equal(t, []string{"text"}, params["required"])
	assert.Equal(t, false, params["additionalProperties"])
}

func TestRegistry_HandlerErrorsPropagateUntouched(t *testing.T) {
	r := NewRegistry()
	boom := fmt.Errorf("backend unavailable")
	require.NoError(t, r.Register(NewFuncTool(Definition{Name: "failing"},
		func(ctx context.Context, inv Invocation) (string, error) {
			return "", boom
		})))

	_, err := r.Invoke(context.Background(), "failing", Invocation{})
	assert.True(t, errors.Is(err, boom))
}

func TestCallManagerTool_RaisesEscalation(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(NewCallManagerTool(func(chatID string) []escalation.TranscriptEntry {
		return []escalation.TranscriptEntry{{Role: "user", Content: "I want a human"}}
	})))

	_, err := r.Invoke(context.Background(), "CallManager", Invocation{
		Args:   map[string]any{"reason": "client asked for a person"},
		ChatID: "42",
	})
	require.Error(t, err)

	sig, ok := escalation.From(err)
	require.True(t, ok)
	assert.Equal(t, escalation.DefaultUserMessage, sig.UserMessage)
	assert.Contains(t, sig.ManagerAlert, "client asked for a person")
	assert.Contains(t, sig.ManagerAlert, "tg://user?id=42")
	assert.Contains(t, sig.ManagerAlert, "I want a human")
}
