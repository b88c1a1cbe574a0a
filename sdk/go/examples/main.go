package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"time"

	"ChainPilot/sdk/go/chainpilot"
)

func main() {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /chat", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(chainpilot.ChatResult{
			Intent: chainpilot.Intent{Action: "other"},
			Kind:   "answer",
			Answer: "gm",
		})
	})
	mux.HandleFunc("POST /api/v1/tasks", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(chainpilot.Task{ID: "task-demo", Kind: "launchpad", Status: "pending"})
	})
	mux.HandleFunc("GET /api/v1/tasks/task-demo", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(chainpilot.Task{
			ID:     "task-demo",
			Kind:   "launchpad",
			Status: "succeeded",
			Result: map[string]any{"name": "Demo", "symbol": "DMO", "owner": nil},
		})
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	client, err := chainpilot.NewClient(srv.URL, srv.Client())
	if err != nil {
		panic(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	reply, err := client.Chat(ctx, "gm")
	if err != nil {
		panic(err)
	}
	fmt.Printf("chat kind=%s answer=%s\n", reply.Kind, reply.Answer)

	created, err := client.SubmitTask(ctx, chainpilot.TaskSubmission{Kind: "launchpad", Prompt: "launch Demo (DMO)"})
	if err != nil {
		panic(err)
	}
	fmt.Printf("submitted task %s (status=%s)\n", created.ID, created.Status)

	done, err := client.WaitTask(ctx, created.ID, 100*time.Millisecond)
	if err != nil {
		panic(err)
	}
	fmt.Printf("task %s finished with result=%v\n", done.ID, done.Result)
}
