package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/salonkit/concierge/pkg/httpclient"
)

// Config carries the endpoint coordinates and model defaults.
type Config struct {
	BaseURL         string
	APIKey          string
	Project         string // folder/project id sent as x-folder-id
	Model           string
	MaxOutputTokens int
	Temperature     float64
	Timeout         time.Duration
}

// Client issues one-shot requests against the Responses API. It holds no
// conversation state and performs no retries; a transport failure is fatal
// for the round and surfaces to the caller as a *TransportError.
type Client struct {
	cfg  Config
	http *httpclient.Client
}

func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}

	return &Client{
		cfg: cfg,
		http: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: timeout}),
			// One shot per round; the retry wrapper above run_turn owns retries.
			httpclient.WithMaxRetries(0),
		),
	}
}

// CreateResponse performs one model round. A missing response id is logged
// at warn level and otherwise tolerated: conversation memory degrades but
// the round still counts.
func (c *Client) CreateResponse(ctx context.Context, req ResponseRequest) (*Response, error) {
	wire := wireRequest{
		Model:              c.cfg.Model,
		Instructions:       req.Instructions,
		PreviousResponseID: req.PreviousResponseID,
		Input:              req.Input,
		Tools:              req.Tools,
		MaxOutputTokens:    c.cfg.MaxOutputTokens,
		Temperature:        c.cfg.Temperature,
	}
	if req.MaxOutputTokens > 0 {
		wire.MaxOutputTokens = req.MaxOutputTokens
	}
	if req.Temperature != nil {
		wire.Temperature = *req.Temperature
	}

	body, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/responses", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	if c.cfg.Project != "" {
		httpReq.Header.Set("x-folder-id", c.cfg.Project)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			respBody, _ := io.ReadAll(resp.Body)
			return nil, &TransportError{StatusCode: resp.StatusCode, Body: string(respBody), Err: err}
		}
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, &TransportError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Err: fmt.Errorf("failed to read response: %w", err)}
	}

	var response Response
	if err := json.Unmarshal(respBody, &response); err != nil {
		return nil, &TransportError{Err: fmt.Errorf("failed to unmarshal response: %w", err)}
	}

	if response.ID == "" {
		slog.Warn("Response id missing; conversation memory will not advance", "model", c.cfg.Model)
	}

	return &response, nil
}
