// Package orchestrator drives one conversation turn: it loops model rounds,
// executes the tool directives each round emits, and feeds the paired results
// back until the model answers in text or the round budget runs out.
// Conversation history lives behind the endpoint's continuation token, so the
// loop itself is stateless between turns.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/salonkit/concierge/pkg/escalation"
	"github.com/salonkit/concierge/pkg/llm"
	"github.com/salonkit/concierge/pkg/observability"
	"github.com/salonkit/concierge/pkg/tools"
)

// DefaultMaxRounds bounds the model-call loop within a single turn.
const DefaultMaxRounds = 10

// ModelClient is the single endpoint operation the loop needs.
// *llm.Client satisfies it.
type ModelClient interface {
	CreateResponse(ctx context.Context, req llm.ResponseRequest) (*llm.Response, error)
}

// ToolExecutor is the registry surface the loop needs. *tools.Registry
// satisfies it.
type ToolExecutor interface {
	Invoke(ctx context.Context, name string, inv tools.Invocation) (string, error)
	SchemaForAll() []llm.ToolSchema
}

// TurnInput is one user message plus the conversation identity it belongs to.
type TurnInput struct {
	// ConversationID keys the continuation token and is handed to tools as
	// the chat id.
	ConversationID string
	Message        string
	// PreviousResponseID is the continuation token from the last completed
	// turn; empty for a fresh conversation.
	PreviousResponseID string
}

// ToolCallRecord is one executed directive. Failed executions are recorded
// with the error text as the result; an escalating call is never recorded.
type ToolCallRecord struct {
	Name   string
	CallID string
	Args   string // raw JSON as emitted by the model
	Result string
}

// Result is the outcome of one turn. Exactly one of Reply and Escalation is
// meaningful; an exhausted budget leaves both empty.
type Result struct {
	Reply      string
	ResponseID string
	Rounds     int
	ToolCalls  []ToolCallRecord
	Escalation *escalation.Signal
}

type Orchestrator struct {
	name            string
	instructions    string
	client          ModelClient
	tools           ToolExecutor
	maxRounds       int
	maxOutputTokens int
	temperature     *float64
	metrics         *observability.Metrics
	logger          *slog.Logger
}

type Option func(*Orchestrator)

func WithMaxRounds(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxRounds = n
		}
	}
}

// WithMaxOutputTokens overrides the model client's default output budget
// for this persona.
func WithMaxOutputTokens(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxOutputTokens = n
		}
	}
}

// WithTemperature overrides the model client's default temperature for this
// persona; nil keeps the default.
func WithTemperature(t *float64) Option {
	return func(o *Orchestrator) { o.temperature = t }
}

func WithMetrics(m *observability.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithName labels the orchestrator in logs and metrics, typically with the
// conversation stage it serves.
func WithName(name string) Option {
	return func(o *Orchestrator) { o.name = name }
}

func New(instructions string, client ModelClient, registry ToolExecutor, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		name:         "default",
		instructions: instructions,
		client:       client,
		tools:        registry,
		maxRounds:    DefaultMaxRounds,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// RunTurn executes one user turn to completion. A non-nil error means the
// endpoint failed mid-turn; the returned Result is still valid and carries
// whatever tool calls completed. Escalation and budget exhaustion are normal
// outcomes, reported through Result with a nil error.
func (o *Orchestrator) RunTurn(ctx context.Context, in TurnInput) (*Result, error) {
	result := &Result{ResponseID: in.PreviousResponseID}
	toolSchemas := o.tools.SchemaForAll()
	input := []llm.InputItem{llm.UserMessage(in.Message)}

	for round := 1; round <= o.maxRounds; round++ {
		result.Rounds = round

		start := time.Now()
		resp, err := o.client.CreateResponse(ctx, llm.ResponseRequest{
			Instructions:       o.instructions,
			Input:              input,
			Tools:              toolSchemas,
			PreviousResponseID: result.ResponseID,
			MaxOutputTokens:    o.maxOutputTokens,
			Temperature:        o.temperature,
		})
		o.metrics.RecordModelCall(time.Since(start))
		if err != nil {
			o.metrics.RecordTurn(o.name, "error", round)
			o.logger.Error("model round failed",
				"agent", o.name, "round", round, "error", err)
			return result, fmt.Errorf("turn round %d: %w", round, err)
		}

		if resp.ID != "" {
			result.ResponseID = resp.ID
		} else {
			o.logger.Warn("response carries no id, keeping previous continuation token",
				"agent", o.name, "round", round)
		}

		// Text wins over directives: a round that carries both is a final
		// answer, and any directives alongside it are discarded.
		if reply := resp.OutputText(); reply != "" {
			result.Reply = reply
			o.metrics.RecordTurn(o.name, "reply", round)
			return result, nil
		}

		calls := resp.ToolCalls()
		if len(calls) == 0 {
			o.metrics.RecordTurn(o.name, "reply", round)
			return result, nil
		}

		next := make([]llm.InputItem, 0, len(calls)*2)
		for _, call := range calls {
			output, sig, err := o.executeCall(ctx, call, in)
			if sig != nil {
				result.Escalation = sig
				result.Reply = sig.UserMessage
				o.metrics.RecordTurn(o.name, "escalated", round)
				o.logger.Info("turn escalated to manager",
					"agent", o.name, "tool", call.Name, "round", round)
				return result, nil
			}
			if err != nil {
				output = fmt.Sprintf("Error: %v", err)
			}

			result.ToolCalls = append(result.ToolCalls, ToolCallRecord{
				Name:   call.Name,
				CallID: call.CallID,
				Args:   call.Arguments,
				Result: output,
			})
			next = append(next,
				llm.FunctionCall(call.CallID, call.Name, call.Arguments),
				llm.FunctionCallOutput(call.CallID, output),
			)
		}
		input = next
	}

	o.metrics.RecordTurn(o.name, "exhausted", o.maxRounds)
	o.logger.Warn("round budget exhausted without a final answer",
		"agent", o.name, "max_rounds", o.maxRounds, "conversation", in.ConversationID)
	return result, nil
}

// executeCall decodes one directive's arguments and runs the tool. The
// escalation signal is separated from ordinary failures here so the caller
// never stringifies it into a record.
func (o *Orchestrator) executeCall(ctx context.Context, call llm.ToolCall, in TurnInput) (string, *escalation.Signal, error) {
	args := map[string]any{}
	if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
		o.logger.Warn("tool arguments are not valid JSON, substituting empty arguments",
			"agent", o.name, "tool", call.Name, "error", err)
		args = map[string]any{}
	}

	output, err := o.tools.Invoke(ctx, call.Name, tools.Invocation{
		Args:    args,
		ChatID:  in.ConversationID,
		Message: in.Message,
	})
	o.metrics.RecordToolExecution(call.Name, err)
	if err != nil {
		if sig, ok := escalation.From(err); ok {
			return "", sig, nil
		}
		o.logger.Warn("tool execution failed",
			"agent", o.name, "tool", call.Name, "error", err)
		return "", nil, err
	}
	return output, nil, nil
}
