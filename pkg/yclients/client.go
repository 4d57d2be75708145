// Package yclients is the REST client for the salon booking backend. The
// backend is an opaque external system: this package only moves JSON and
// maps transport failures to errors; business interpretation happens in the
// tool handlers.
package yclients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/salonkit/concierge/pkg/httpclient"
)

const defaultBaseURL = "https://api.yclients.com/api/v1"

type Config struct {
	BaseURL    string
	AuthHeader string // full Authorization header value: "Bearer <partner>, User <user>"
	CompanyID  string
	Timeout    time.Duration
	MaxRetries int
}

type Client struct {
	cfg  Config
	http *httpclient.Client
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.AuthHeader == "" {
		return nil, fmt.Errorf("yclients: auth header is required")
	}
	if cfg.CompanyID == "" {
		return nil, fmt.Errorf("yclients: company id is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		cfg: cfg,
		http: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: timeout}),
			httpclient.WithMaxRetries(cfg.MaxRetries),
			httpclient.WithHeaderParser(httpclient.ParseRetryAfterHeaders),
		),
	}, nil
}

// envelope is the standard YCLIENTS response wrapper.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Meta    struct {
		Message string `json:"message"`
	} `json:"meta"`
}

// APIError is a request the backend rejected (success=false or non-2xx).
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("yclients: status %d: %s", e.StatusCode, e.Message)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, payload, out any) error {
	var body io.Reader
	var raw []byte
	if payload != nil {
		var err error
		raw, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("yclients: marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	endpoint := c.cfg.BaseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("yclients: build request: %w", err)
	}
	if raw != nil {
		req.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(raw)), nil
		}
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/vnd.yclients.v2+json")
	req.Header.Set("Authorization", c.cfg.AuthHeader)

	resp, err := c.http.Do(req)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			respBody, _ := io.ReadAll(resp.Body)
			return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
		}
		return fmt.Errorf("yclients: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("yclients: read response: %w", err)
	}

	// DELETE answers 2xx with no body; there is no envelope to check.
	if len(respBody) == 0 {
		return nil
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return fmt.Errorf("yclients: decode response: %w", err)
	}
	if !env.Success {
		return &APIError{StatusCode: resp.StatusCode, Message: env.Meta.Message}
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("yclients: decode data: %w", err)
		}
	}
	return nil
}

type Category struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
}

type Service struct {
	ID         int64  `json:"id"`
	Title      string `json:"title"`
	CategoryID int64  `json:"category_id"`
	PriceMin   int64  `json:"price_min"`
	PriceMax   int64  `json:"price_max"`
	Duration   int    `json:"duration"` // seconds
}

type Master struct {
	ID             int64  `json:"id"`
	Name           string `json:"name"`
	Specialization string `json:"specialization"`
}

type Slot struct {
	Time     string `json:"time"`     // "14:30"
	Datetime string `json:"datetime"` // ISO 8601
}

type Record struct {
	ID       int64  `json:"id"`
	Datetime string `json:"datetime"`
	Comment  string `json:"comment"`
	Services []struct {
		ID    int64  `json:"id"`
		Title string `json:"title"`
	} `json:"services"`
	Staff struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	} `json:"staff"`
}

type BookingRequest struct {
	PhoneNumber string
	FullName    string
	ServiceID   int64
	StaffID     int64
	Datetime    string // ISO 8601
	Comment     string
}

// Categories lists service categories for the company.
func (c *Client) Categories(ctx context.Context) ([]Category, error) {
	var out []Category
	path := fmt.Sprintf("/company/%s/service_categories", c.cfg.CompanyID)
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Services lists services, optionally filtered by category.
func (c *Client) Services(ctx context.Context, categoryID int64) ([]Service, error) {
	query := url.Values{}
	if categoryID > 0 {
		query.Set("category_id", fmt.Sprint(categoryID))
	}
	var out []Service
	path := fmt.Sprintf("/company/%s/services", c.cfg.CompanyID)
	if err := c.do(ctx, http.MethodGet, path, query, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Staff lists the company's masters.
func (c *Client) Staff(ctx context.Context) ([]Master, error) {
	var out []Master
	path := fmt.Sprintf("/company/%s/staff", c.cfg.CompanyID)
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FreeSlots lists bookable times for a master on a date (YYYY-MM-DD).
func (c *Client) FreeSlots(ctx context.Context, masterID int64, date string, serviceID int64) ([]Slot, error) {
	query := url.Values{}
	if serviceID > 0 {
		query.Set("service_ids[]", fmt.Sprint(serviceID))
	}
	var out []Slot
	path := fmt.Sprintf("/book_times/%s/%d/%s", c.cfg.CompanyID, masterID, date)
	if err := c.do(ctx, http.MethodGet, path, query, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateBooking books a service and returns the created record.
func (c *Client) CreateBooking(ctx context.Context, req BookingRequest) (*Record, error) {
	payload := map[string]any{
		"phone":    req.PhoneNumber,
		"fullname": req.FullName,
		"comment":  req.Comment,
		"services": []map[string]any{{"id": req.ServiceID}},
		"staff_id": req.StaffID,
		"datetime": req.Datetime,
	}
	var out Record
	path := fmt.Sprintf("/records/%s", c.cfg.CompanyID)
	if err := c.do(ctx, http.MethodPost, path, nil, payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ClientRecords lists upcoming records for a client found by phone.
func (c *Client) ClientRecords(ctx context.Context, clientID int64) ([]Record, error) {
	query := url.Values{}
	query.Set("client_id", fmt.Sprint(clientID))
	var out []Record
	path := fmt.Sprintf("/records/%s", c.cfg.CompanyID)
	if err := c.do(ctx, http.MethodGet, path, query, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FindClientByPhone resolves a client id from a phone number, comparing by
// digits only. Returns 0 when no client matches.
func (c *Client) FindClientByPhone(ctx context.Context, phone string) (int64, error) {
	payload := map[string]any{"fields": []string{"id", "phone"}, "search": phone}
	var out []struct {
		ID    int64  `json:"id"`
		Phone string `json:"phone"`
	}
	path := fmt.Sprintf("/company/%s/clients/search", c.cfg.CompanyID)
	if err := c.do(ctx, http.MethodPost, path, nil, payload, &out); err != nil {
		return 0, err
	}

	needle := digitsOnly(phone)
	for _, cl := range out {
		if digitsOnly(cl.Phone) == needle {
			return cl.ID, nil
		}
	}
	return 0, nil
}

// CancelRecord deletes a booking.
func (c *Client) CancelRecord(ctx context.Context, recordID int64) error {
	path := fmt.Sprintf("/record/%s/%d", c.cfg.CompanyID, recordID)
	return c.do(ctx, http.MethodDelete, path, nil, nil, nil)
}

// RescheduleRecord moves a booking to a new datetime.
func (c *Client) RescheduleRecord(ctx context.Context, recordID int64, datetime string) (*Record, error) {
	payload := map[string]any{"datetime": datetime}
	var out Record
	path := fmt.Sprintf("/record/%s/%d", c.cfg.CompanyID, recordID)
	if err := c.do(ctx, http.MethodPut, path, nil, payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
