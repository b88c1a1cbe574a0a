package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"ChainPilot/internal/agent"
	"ChainPilot/internal/config"
	xerrors "ChainPilot/internal/errors"
	"ChainPilot/internal/extract"
	"ChainPilot/internal/launchpad"
	"ChainPilot/internal/storage/mysql"
	"ChainPilot/internal/task"
)

type fakeAgent struct {
	chatErr error
	prompts []string
}

func (f *fakeAgent) Chat(_ context.Context, prompt string) (*agent.ChatResult, error) {
	f.prompts = append(f.prompts, prompt)
	if f.chatErr != nil {
		return nil, f.chatErr
	}
	return &agent.ChatResult{Kind: agent.KindAnswer, Answer: "hello", Intent: agent.Intent{Action: agent.ActionOther}}, nil
}

func (f *fakeAgent) LaunchpadChat(_ context.Context, prompt string) (extract.Object, error) {
	f.prompts = append(f.prompts, prompt)
	return extract.Object{"name": "Agentonic", "symbol": "AGT", "owner": nil}, nil
}

func (f *fakeAgent) SentimentAnalysis(_ context.Context, prompt string) (extract.Object, error) {
	f.prompts = append(f.prompts, prompt)
	return nil, xerrors.Wrap(xerrors.CodeUnprocessableResponse, extract.ErrNoJSON, "模型输出无法解析为 JSON")
}

func (f *fakeAgent) History(context.Context, int) ([]mysql.ConversationRecord, error) {
	return []mysql.ConversationRecord{{ID: 1, Endpoint: agent.EndpointChat, Prompt: "hi"}}, nil
}

type fakeLauncher struct {
	deployed []launchpad.DeployRequest
}

func (f *fakeLauncher) Deploy(_ context.Context, req launchpad.DeployRequest) (*launchpad.DeployResult, error) {
	f.deployed = append(f.deployed, req)
	return &launchpad.DeployResult{Mode: launchpad.ModeOnchain, ContractAddress: "0xabc", Confirmed: true}, nil
}

func (f *fakeLauncher) Mint(context.Context, launchpad.MintRequest) (*launchpad.MintResult, error) {
	return nil, xerrors.New(xerrors.CodeChainFailure, "execution reverted")
}

func newTestServer(t *testing.T, deps Dependencies) http.Handler {
	t.Helper()
	return NewServer(config.ServerConfig{Address: ":0"}, deps).Handler()
}

func do(t *testing.T, handler http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorDetail {
	t.Helper()
	var body errorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v (%s)", err, rec.Body.String())
	}
	return body.Error
}

func TestConversationEndpoints(t *testing.T) {
	ag := &fakeAgent{}
	handler := newTestServer(t, Dependencies{Agent: ag})

	rec := do(t, handler, http.MethodPost, "/chat", `{"prompt":"hi there"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("chat: unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	var chat agent.ChatResult
	if err := json.Unmarshal(rec.Body.Bytes(), &chat); err != nil {
		t.Fatalf("decode chat: %v", err)
	}
	if chat.Kind != agent.KindAnswer || chat.Answer != "hello" {
		t.Fatalf("unexpected chat result: %+v", chat)
	}

	rec = do(t, handler, http.MethodPost, "/launchpadChat", `{"prompt":"launch AGT"}`)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"owner":null`) {
		t.Fatalf("launchpadChat: unexpected response %d: %s", rec.Code, rec.Body.String())
	}

	rec = do(t, handler, http.MethodPost, "/sentimentAnalysis", `{"prompt":"mood"}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("sentiment: expected 422, got %d", rec.Code)
	}
	if detail := decodeError(t, rec); detail.Code != string(xerrors.CodeUnprocessableResponse) {
		t.Fatalf("unexpected error code %q", detail.Code)
	}

	rec = do(t, handler, http.MethodGet, "/api/v1/conversations?limit=5", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"endpoint":"chat"`) {
		t.Fatalf("conversations: unexpected response %d: %s", rec.Code, rec.Body.String())
	}

	if diff := cmp.Diff([]string{"hi there", "launch AGT", "mood"}, ag.prompts); diff != "" {
		t.Fatalf("prompts mismatch (-want +got):\n%s", diff)
	}
}

func TestRequestValidation(t *testing.T) {
	handler := newTestServer(t, Dependencies{Agent: &fakeAgent{}, Launchpad: &fakeLauncher{}})

	cases := map[string]struct {
		path string
		body string
	}{
		"malformed json": {"/chat", `{"prompt":`},
		"missing prompt": {"/chat", `{}`},
		"empty prompt":   {"/launchpadChat", `{"prompt":""}`},
		"missing symbol": {"/deployContract", `{"name":"Agentonic","initialSupply":1000}`},
		"missing amount": {"/mintTokens", `{"contractAddress":"0xabc","recipient":"0xdef"}`},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			rec := do(t, handler, http.MethodPost, tc.path, tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
			}
			if detail := decodeError(t, rec); detail.Code != string(xerrors.CodeInvalidArgument) {
				t.Fatalf("unexpected error code %q", detail.Code)
			}
		})
	}
}

func TestLaunchpadEndpoints(t *testing.T) {
	launcher := &fakeLauncher{}
	handler := newTestServer(t, Dependencies{Launchpad: launcher})

	rec := do(t, handler, http.MethodPost, "/deployContract", `{"name":"Agentonic","symbol":"AGT","initialSupply":1000,"maxSupply":5000}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("deploy: unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	want := []launchpad.DeployRequest{{Name: "Agentonic", Symbol: "AGT", InitialSupply: "1000", MaxSupply: "5000"}}
	if diff := cmp.Diff(want, launcher.deployed); diff != "" {
		t.Fatalf("deploy request mismatch (-want +got):\n%s", diff)
	}

	rec = do(t, handler, http.MethodPost, "/mintTokens", `{"contractAddress":"0xabc","recipient":"0xdef","amount":"10"}`)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("mint: expected 502, got %d", rec.Code)
	}
}

func TestUnconfiguredComponents(t *testing.T) {
	handler := newTestServer(t, Dependencies{})

	for _, path := range []string{"/chat", "/postTweet", "/deployContract"} {
		body := `{"prompt":"x","content":"x","name":"a","symbol":"b","initialSupply":1}`
		rec := do(t, handler, http.MethodPost, path, body)
		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("%s: expected 503, got %d", path, rec.Code)
		}
	}

	rec := do(t, handler, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz: expected 200, got %d", rec.Code)
	}
	rec = do(t, handler, http.MethodGet, "/chat", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET /chat: expected 405, got %d", rec.Code)
	}
}

func TestTaskEndpoints(t *testing.T) {
	store := task.NewMemoryStore()
	svc := task.NewService(store, task.NewMemoryQueue(8), 3)
	handler := newTestServer(t, Dependencies{Tasks: svc})

	rec := do(t, handler, http.MethodPost, "/api/v1/tasks", `{"id":"job-1","kind":"launchpad","prompt":"launch AGT"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("create: unexpected status %d: %s", rec.Code, rec.Body.String())
	}

	if err := store.MarkSucceeded(context.Background(), "job-1", map[string]any{"symbol": "AGT"}); err != nil {
		t.Fatalf("mark succeeded: %v", err)
	}

	rec = do(t, handler, http.MethodGet, "/api/v1/tasks/job-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("detail: unexpected status %d", rec.Code)
	}
	var got task.Task
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode task: %v", err)
	}
	if got.Status != task.StatusSucceeded || got.Result["symbol"] != "AGT" {
		t.Fatalf("unexpected task: %+v", got)
	}

	rec = do(t, handler, http.MethodGet, "/api/v1/tasks/missing", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing task: expected 404, got %d", rec.Code)
	}
	if detail := decodeError(t, rec); detail.Code != string(task.CodeTaskNotFound) {
		t.Fatalf("unexpected error code %q", detail.Code)
	}

	rec = do(t, handler, http.MethodGet, "/api/v1/tasks?status=succeeded&kind=launchpad,chat", "")
	var listed []task.Task
	if err := json.Unmarshal(rec.Body.Bytes(), &listed); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(listed) != 1 || listed[0].ID != "job-1" {
		t.Fatalf("unexpected list: %+v", listed)
	}

	rec = do(t, handler, http.MethodPost, "/api/v1/tasks", `{"kind":"swap","prompt":"x"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid kind: expected 400, got %d", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	handler := newTestServer(t, Dependencies{})

	req := httptest.NewRequest(http.MethodOptions, "/chat", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Fatalf("unexpected allow origin %q", got)
	}
	if rec.Header().Get("Access-Control-Allow-Credentials") != "true" {
		t.Fatal("credentials must be allowed")
	}
}
