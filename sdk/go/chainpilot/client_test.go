package chainpilot

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestChatDecodesRoutedResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Fatalf("unexpected method: %s", r.Method)
		}
		var body promptPayload
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("unexpected body: %v", err)
		}
		if body.Prompt != "analyze uniswap" {
			t.Fatalf("unexpected prompt: %q", body.Prompt)
		}
		_, _ = w.Write([]byte(`{"intent":{"action":"analyze","parameters":[]},"kind":"analysis","analysis":{"tvl":"5b"}}`))
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, srv.Client())
	require.NoError(t, err)

	result, err := client.Chat(context.Background(), "analyze uniswap")
	require.NoError(t, err)
	require.Equal(t, "analysis", result.Kind)
	require.Equal(t, "analyze", result.Intent.Action)
	require.Equal(t, "5b", result.Analysis["tvl"])
}

func TestLaunchpadChatSurfacesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/launchpadChat" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":{"code":"UNPROCESSABLE_RESPONSE","message":"model output unusable"}}`))
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, srv.Client())
	require.NoError(t, err)

	_, err = client.LaunchpadChat(context.Background(), "launch a token")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	require.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	require.Equal(t, "UNPROCESSABLE_RESPONSE", apiErr.Code)
	require.Equal(t, "model output unusable", apiErr.Message)
}

func TestSubmitAndWaitTask(t *testing.T) {
	var polls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/tasks", func(w http.ResponseWriter, r *http.Request) {
		var submission TaskSubmission
		if err := json.NewDecoder(r.Body).Decode(&submission); err != nil {
			t.Fatalf("unexpected body: %v", err)
		}
		if submission.Kind != "sentiment" {
			t.Fatalf("unexpected kind: %q", submission.Kind)
		}
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(Task{ID: "task-1", Kind: submission.Kind, Status: "pending"})
	})
	mux.HandleFunc("GET /api/v1/tasks/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "task-1" {
			t.Fatalf("unexpected id: %s", r.PathValue("id"))
		}
		status := "running"
		var result map[string]any
		if polls.Add(1) >= 3 {
			status = "succeeded"
			result = map[string]any{"sentiment": "bullish"}
		}
		_ = json.NewEncoder(w).Encode(Task{ID: "task-1", Status: status, Result: result})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client, err := NewClient(srv.URL, srv.Client())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	created, err := client.SubmitTask(ctx, TaskSubmission{Kind: "sentiment", Prompt: "market mood?"})
	require.NoError(t, err)
	require.Equal(t, "pending", created.Status)

	done, err := client.WaitTask(ctx, created.ID, 10*time.Millisecond)
	require.NoError(t, err)
	require.True(t, done.Done())
	require.Equal(t, "bullish", done.Result["sentiment"])
	require.EqualValues(t, 3, polls.Load())
}

func TestGetTaskNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "missing", http.StatusNotFound)
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL+"/", srv.Client())
	require.NoError(t, err)

	_, err = client.GetTask(context.Background(), "nope")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	require.Equal(t, "missing", apiErr.Message)
}
