// Package chainpilot is a thin Go client for the ChainPilot HTTP API.
package chainpilot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"
)

// DefaultHTTPTimeout is used by clients created without a custom http.Client.
// Model calls behind /chat can take a while, so it is longer than a plain REST timeout.
const DefaultHTTPTimeout = 60 * time.Second

// Client wraps the HTTP interactions with the ChainPilot REST API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

// Intent is the action detected for a chat prompt.
type Intent struct {
	Action     string `json:"action"`
	Parameters []any  `json:"parameters"`
}

// ChatResult is the routed outcome of a /chat call. Only the field matching
// Kind is populated; chain receipts are left as raw JSON.
type ChatResult struct {
	Intent   Intent          `json:"intent"`
	Kind     string          `json:"kind"`
	Analysis map[string]any  `json:"analysis,omitempty"`
	Bridge   json.RawMessage `json:"bridge,omitempty"`
	Balance  json.RawMessage `json:"balance,omitempty"`
	Transfer json.RawMessage `json:"transfer,omitempty"`
	Answer   string          `json:"answer,omitempty"`
}

// TaskSubmission represents the payload required to create a new task.
type TaskSubmission struct {
	ID       string         `json:"id,omitempty"`
	Kind     string         `json:"kind"`
	Prompt   string         `json:"prompt"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Task is the server side view of an asynchronous conversation job.
type Task struct {
	ID         string         `json:"id"`
	Kind       string         `json:"kind"`
	Prompt     string         `json:"prompt"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Status     string         `json:"status"`
	Attempts   int            `json:"attempts"`
	MaxRetries int            `json:"max_retries"`
	LastError  string         `json:"last_error,omitempty"`
	ErrorCode  string         `json:"error_code,omitempty"`
	Terminal   bool           `json:"terminal,omitempty"`
	Result     map[string]any `json:"result,omitempty"`
	CreatedAt  int64          `json:"created_at"`
	UpdatedAt  int64          `json:"updated_at"`
}

// Done reports whether the task reached succeeded or failed.
func (t Task) Done() bool {
	return t.Status == "succeeded" || t.Status == "failed"
}

// APIError represents server side validation or internal errors.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("chainpilot api error (%d): %s - %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("chainpilot api error (%d): %s", e.StatusCode, e.Message)
}

// NewClient instantiates a client for the ChainPilot API. When httpClient is
// nil, a default client with DefaultHTTPTimeout is used.
func NewClient(rawURL string, httpClient *http.Client) (*Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}, nil
}

type promptPayload struct {
	Prompt string `json:"prompt"`
}

// Chat sends a free-form prompt and returns the routed result.
func (c *Client) Chat(ctx context.Context, prompt string) (ChatResult, error) {
	var result ChatResult
	if err := c.post(ctx, "/chat", promptPayload{Prompt: prompt}, &result); err != nil {
		return ChatResult{}, err
	}
	return result, nil
}

// LaunchpadChat extracts token launch parameters from a prompt.
func (c *Client) LaunchpadChat(ctx context.Context, prompt string) (map[string]any, error) {
	var result map[string]any
	if err := c.post(ctx, "/launchpadChat", promptPayload{Prompt: prompt}, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// SentimentAnalysis asks for a market sentiment read based on the latest feed.
func (c *Client) SentimentAnalysis(ctx context.Context, prompt string) (map[string]any, error) {
	var result map[string]any
	if err := c.post(ctx, "/sentimentAnalysis", promptPayload{Prompt: prompt}, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// SubmitTask queues a conversation for asynchronous processing.
func (c *Client) SubmitTask(ctx context.Context, submission TaskSubmission) (Task, error) {
	var created Task
	if err := c.post(ctx, "/api/v1/tasks", submission, &created); err != nil {
		return Task{}, err
	}
	return created, nil
}

// GetTask fetches task details by identifier.
func (c *Client) GetTask(ctx context.Context, taskID string) (Task, error) {
	var detail Task
	if err := c.get(ctx, "/api/v1/tasks/"+taskID, &detail); err != nil {
		return Task{}, err
	}
	return detail, nil
}

// WaitTask polls GetTask until the task is done or ctx expires.
func (c *Client) WaitTask(ctx context.Context, taskID string, interval time.Duration) (Task, error) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		detail, err := c.GetTask(ctx, taskID)
		if err != nil {
			return Task{}, err
		}
		if detail.Done() {
			return detail, nil
		}
		select {
		case <-ctx.Done():
			return detail, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) post(ctx context.Context, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	rel := &url.URL{Path: path.Join(c.baseURL.Path, endpoint)}
	u := c.baseURL.ResolveReference(rel)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := APIError{StatusCode: resp.StatusCode}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read error response: %w", err)
		}
		if len(data) > 0 {
			if err := json.Unmarshal(data, &struct {
				Error *APIError `json:"error"`
			}{Error: &apiErr}); err != nil {
				_ = json.Unmarshal(data, &apiErr)
			}
		}
		if apiErr.Message == "" {
			apiErr.Message = string(bytes.TrimSpace(data))
		}
		return &apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
