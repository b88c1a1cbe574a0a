package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	xerrors "ChainPilot/internal/errors"
	"ChainPilot/internal/llm"
)

func TestCompleteJoinsTextBlocks(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("X-Api-Key") != "secret" {
			t.Errorf("api key header missing")
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":          "msg_1",
			"type":        "message",
			"role":        "assistant",
			"model":       "claude-test",
			"stop_reason": "end_turn",
			"content": []map[string]any{
				{"type": "text", "text": "```json\n{\"sentiment\": true}"},
				{"type": "text", "text": "\n```"},
			},
			"usage": map[string]any{"input_tokens": 20, "output_tokens": 9},
		})
	}))
	defer srv.Close()

	client, err := NewClient(Config{APIKey: "secret", BaseURL: srv.URL, Model: "claude-test", Timeout: time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req := llm.Prompt("you are a market analyst", "how is the feed?")
	req.JSONMode = true
	resp, err := client.Complete(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "```json\n{\"sentiment\": true}\n```" {
		t.Fatalf("unexpected content %q", resp.Content)
	}
	if resp.Model != "claude-test" || resp.PromptTokens != 20 || resp.CompletionTokens != 9 {
		t.Fatalf("unexpected response metadata: %+v", resp)
	}
	if _, ok := body["system"]; !ok {
		t.Fatalf("expected system prompt to be sent")
	}
	if body["model"] != "claude-test" {
		t.Fatalf("unexpected model %v", body["model"])
	}
}

func TestCompleteServerErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"api_error","message":"overloaded"}}`))
	}))
	defer srv.Close()

	client, err := NewClient(Config{APIKey: "secret", BaseURL: srv.URL, Timeout: time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err = client.Complete(context.Background(), llm.Prompt("", "hi"))
	if xerrors.CodeOf(err) != xerrors.CodeUpstreamFailure || !xerrors.RetryableError(err) {
		t.Fatalf("expected retryable upstream failure, got %v", err)
	}
}

func TestNewClientRequiresKey(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Fatalf("expected error without api key")
	}
}
