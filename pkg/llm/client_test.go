package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(baseURL string) *Client {
	return NewClient(Config{
		BaseURL:         baseURL,
		APIKey:          "test-key",
		Project:         "folder-1",
		Model:           "gpt://folder-1/yandexgpt/latest",
		MaxOutputTokens: 800,
		Temperature:     0.1,
	})
}

func TestCreateResponse_WireFormat(t *testing.T) {
	var captured map[string]any
	var gotAuth, gotFolder string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/responses", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		gotFolder = r.Header.Get("x-folder-id")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		json.NewEncoder(w).Encode(map[string]any{"id": "resp_1", "output": []any{}})
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	resp, err := client.CreateResponse(context.Background(), ResponseRequest{
		Instructions:       "be helpful",
		Input:              []InputItem{UserMessage("hello")},
		Tools:              []ToolSchema{{Type: "function", Name: "GetCategories", Description: "d", Parameters: map[string]any{"type": "object"}}},
		PreviousResponseID: "resp_0",
	})
	require.NoError(t, err)
	assert.Equal(t, "resp_1", resp.ID)

	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, "folder-1", gotFolder)

	assert.Equal(t, "gpt://folder-1/yandexgpt/latest", captured["model"])
	assert.Equal(t, "be helpful", captured["instructions"])
	assert.Equal(t, "resp_0", captured["previous_response_id"])
	assert.Equal(t, float64(800), captured["max_output_tokens"])
	assert.InDelta(t, 0.1, captured["temperature"], 1e-9)

	input, ok := captured["input"].([]any)
	require.True(t, ok)
	require.Len(t, input, 1)
	first := input[0].(map[string]any)
	assert.Equal(t, "user", first["role"])
	assert.Equal(t, "hello", first["content"])

	tools, ok := captured["tools"].([]any)
	require.True(t, ok)
	require.Len(t, tools, 1)
	tool := tools[0].(map[string]any)
	assert.Equal(t, "function", tool["type"])
	assert.Equal(t, "GetCategories", tool["name"])
}

func TestCreateResponse_ToolRoundTripInput(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		json.NewEncoder(w).Encode(map[string]any{"id": "resp_2", "output": []any{}})
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	_, err := client.CreateResponse(context.Background(), ResponseRequest{
		Instructions: "x",
		Input: []InputItem{
			FunctionCall("call_1", "GetServices", `{"category_id":7}`),
			FunctionCallOutput("call_1", "haircut, manicure"),
		},
	})
	require.NoError(t, err)

	input := captured["input"].([]any)
	require.Len(t, input, 2)

	call := input[0].(map[string]any)
	assert.Equal(t, "function_call", call["type"])
	assert.Equal(t, "call_1", call["call_id"])
	assert.Equal(t, "GetServices", call["name"])
	assert.Equal(t, `{"category_id":7}`, call["arguments"])

	output := input[1].(map[string]any)
	assert.Equal(t, "function_call_output", output["type"])
	assert.Equal(t, "call_1", output["call_id"])
	assert.Equal(t, "haircut, manicure", output["output"])

	// previous_response_id omitted when empty
	_, hasPrev := captured["previous_response_id"]
	assert.False(t, hasPrev)
}

func TestCreateResponse_TransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad folder", http.StatusForbidden)
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	_, err := client.CreateResponse(context.Background(), ResponseRequest{Instructions: "x"})
	require.Error(t, err)

	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, http.StatusForbidden, terr.StatusCode)
	assert.Contains(t, terr.Body, "bad folder")
}

func TestResponse_OutputText(t *testing.T) {
	resp := &Response{
		Output: []OutputItem{
			{Type: "function_call", Name: "GetCategories", CallID: "c1"},
			{Type: "message", Content: []ContentPart{
				{Type: "refusal", Text: "no"},
				{Type: "output_text", Text: "Here are our categories"},
			}},
		},
	}
	assert.Equal(t, "Here are our categories", resp.OutputText())

	empty := &Response{Output: []OutputItem{{Type: "function_call"}}}
	assert.Equal(t, "", empty.OutputText())
}

func TestResponse_ToolCalls_OrderAndDefaults(t *testing.T) {
	resp := &Response{
		Output: []OutputItem{
			{Type: "function_call", Name: "A", CallID: "c1", Arguments: `{"x":1}`},
			{Type: "message"},
			{Type: "function_call", Name: "B", CallID: "c2"},
		},
	}

	calls := resp.ToolCalls()
	require.Len(t, calls, 2)
	assert.Equal(t, "A", calls[0].Name)
	assert.Equal(t, `{"x":1}`, calls[0].Arguments)
	assert.Equal(t, "B", calls[1].Name)
	assert.Equal(t, "{}", calls[1].Arguments)
}
