// Package llm is the stateless transport toward the Responses API endpoint.
// It owns the wire format and nothing else: one HTTP call per model round,
// explicit (de)serialization, no retries and no conversation state. History
// lives server-side behind the previous_response_id continuation token.
package llm

import "fmt"

// InputItem is one entry of the request "input" array. The first round of a
// turn sends a single role/content entry; later rounds send alternating
// function_call / function_call_output entries echoing the previous round.
type InputItem struct {
	Type      string `json:"type,omitempty"` // "function_call" | "function_call_output"; empty for role messages
	Role      string `json:"role,omitempty"`
	Content   string `json:"content,omitempty"`
	CallID    string `json:"call_id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
	Output    string `json:"output,omitempty"`
}

// UserMessage builds the round-one input entry.
func UserMessage(text string) InputItem {
	return InputItem{Role: "user", Content: text}
}

// FunctionCall echoes a directive back to the endpoint. The call id must be
// returned unchanged so the endpoint can pair it with its output entry.
func FunctionCall(callID, name, argumentsJSON string) InputItem {
	return InputItem{
		Type:      "function_call",
		CallID:    callID,
		Name:      name,
		Arguments: argumentsJSON,
	}
}

// FunctionCallOutput carries one tool result, paired by call id.
func FunctionCallOutput(callID, output string) InputItem {
	return InputItem{
		Type:   "function_call_output",
		CallID: callID,
		Output: output,
	}
}

// ToolSchema describes one callable tool in the endpoint's function format.
type ToolSchema struct {
	Type        string         `json:"type"` // always "function"
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
	Strict      bool           `json:"strict,omitempty"`
}

type wireRequest struct {
	Model              string       `json:"model"`
	Instructions       string       `json:"instructions"`
	PreviousResponseID string       `json:"previous_response_id,omitempty"`
	Input              []InputItem  `json:"input,omitempty"`
	Tools              []ToolSchema `json:"tools,omitempty"`
	MaxOutputTokens    int          `json:"max_output_tokens"`
	Temperature        float64      `json:"temperature"`
}

// ResponseRequest is one model round. Zero MaxOutputTokens and nil
// Temperature fall back to the client defaults.
type ResponseRequest struct {
	Instructions       string
	Input              []InputItem
	Tools              []ToolSchema
	PreviousResponseID string
	MaxOutputTokens    int
	Temperature        *float64
}

// ContentPart is a typed fragment of an output message.
type ContentPart struct {
	Type string `json:"type"` // "output_text" among others
	Text string `json:"text,omitempty"`
}

// OutputItem is one entry of the response "output" array: either a message
// wrapper holding text content or a function_call directive.
type OutputItem struct {
	Type      string        `json:"type"`
	Content   []ContentPart `json:"content,omitempty"`
	Name      string        `json:"name,omitempty"`
	CallID    string        `json:"call_id,omitempty"`
	Arguments string        `json:"arguments,omitempty"`
}

// Response is the decoded endpoint reply for one round.
type Response struct {
	ID     string       `json:"id"`
	Output []OutputItem `json:"output"`
}

// ToolCall is a model-emitted directive to execute a named tool. Arguments
// stay JSON-encoded; decoding is the orchestrator's concern.
type ToolCall struct {
	Name      string
	CallID    string
	Arguments string
}

// OutputText returns the final textual answer, or "" when the round produced
// none (directives only, or an empty response).
func (r *Response) OutputText() string {
	for _, item := range r.Output {
		if item.Type == "function_call" {
			continue
		}
		for _, part := range item.Content {
			if part.Type == "output_text" && part.Text != "" {
				return part.Text
			}
		}
	}
	return ""
}

// ToolCalls extracts function-call directives in emission order.
func (r *Response) ToolCalls() []ToolCall {
	var calls []ToolCall
	for _, item := range r.Output {
		if item.Type != "function_call" {
			continue
		}
		args := item.Arguments
		if args == "" {
			args = "{}"
		}
		calls = append(calls, ToolCall{
			Name:      item.Name,
			CallID:    item.CallID,
			Arguments: args,
		})
	}
	return calls
}

// TransportError is a failed round: network failure, non-2xx status, or an
// undecodable body. It is fatal for the round; retrying is a caller concern.
type TransportError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("responses api: status %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("responses api: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
