package boardsim

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/okian/boardcheck/internal/domain/audit"
	"github.com/okian/boardcheck/internal/domain/mlconfig"
)

// ErrThrottled is returned when the service answers 429.
var ErrThrottled = errors.New("service throttled the request")

// APIError is a non-2xx answer from the service.
type APIError struct {
	Status  int
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return "boardcheck: http " + strconv.Itoa(e.Status)
	}
	return fmt.Sprintf("boardcheck: http %d %s: %s", e.Status, e.Code, e.Message)
}

// Client talks to the boardcheck HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient builds a client for baseURL with the given request timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// Health checks GET /healthz.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil)
}

// Verify submits an event to POST /verifications and returns its audit record.
func (c *Client) Verify(ctx context.Context, e Event) (audit.Record, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodPost, "/verifications", e, &raw); err != nil {
		return audit.Record{}, err
	}
	return audit.Unmarshal(raw)
}

// Enqueue submits an event to POST /events.
func (c *Client) Enqueue(ctx context.Context, e Event) (Ack, error) {
	var ack Ack
	err := c.do(ctx, http.MethodPost, "/events", e, &ack)
	return ack, err
}

// Decision fetches GET /decisions/{id}.
func (c *Client) Decision(ctx context.Context, recordID string) (audit.Record, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/decisions/"+recordID, nil, &raw); err != nil {
		return audit.Record{}, err
	}
	return audit.Unmarshal(raw)
}

// Configs lists every stored configuration version.
func (c *Client) Configs(ctx context.Context) ([]mlconfig.ModelConfig, error) {
	var out []mlconfig.ModelConfig
	err := c.do(ctx, http.MethodGet, "/configs", nil, &out)
	return out, err
}

// ActiveConfig fetches the active configuration.
func (c *Client) ActiveConfig(ctx context.Context) (mlconfig.ModelConfig, error) {
	var out mlconfig.ModelConfig
	err := c.do(ctx, http.MethodGet, "/configs/active", nil, &out)
	return out, err
}

// Config fetches one configuration version.
func (c *Client) Config(ctx context.Context, version int) (mlconfig.ModelConfig, error) {
	var out mlconfig.ModelConfig
	err := c.do(ctx, http.MethodGet, "/configs/"+strconv.Itoa(version), nil, &out)
	return out, err
}

// CreateConfig posts a draft configuration as raw JSON.
func (c *Client) CreateConfig(ctx context.Context, draft json.RawMessage) (mlconfig.ModelConfig, error) {
	var out mlconfig.ModelConfig
	err := c.do(ctx, http.MethodPost, "/configs", draft, &out)
	return out, err
}

// DuplicateConfig copies version into a new inactive version.
func (c *Client) DuplicateConfig(ctx context.Context, version int, description string) (mlconfig.ModelConfig, error) {
	var body any
	if description != "" {
		body = map[string]string{"description": description}
	}
	var out mlconfig.ModelConfig
	err := c.do(ctx, http.MethodPost, "/configs/"+strconv.Itoa(version)+"/duplicate", body, &out)
	return out, err
}

// ActivateConfig makes version the active configuration.
func (c *Client) ActivateConfig(ctx context.Context, version int) error {
	return c.do(ctx, http.MethodPost, "/configs/"+strconv.Itoa(version)+"/activate", nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%s %s: %w", method, path, ErrThrottled)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		_ = json.Unmarshal(data, apiErr)
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
