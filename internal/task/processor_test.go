package task

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ChainPilot/internal/agent"
	xerrors "ChainPilot/internal/errors"
	"ChainPilot/internal/extract"
	"ChainPilot/internal/observability/alerting"
)

func startProcessor(t *testing.T, executor Executor, opts ...ProcessorOption) (*Service, context.CancelFunc) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)

	store := NewMemoryStore()
	queue := NewMemoryQueue(1024)
	service := NewService(store, queue, 3)
	processor := NewProcessor(executor, store, queue, queue, opts...)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := processor.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("processor exited: %v", err)
		}
	}()
	return service, func() {
		cancel()
		<-done
	}
}

func waitFor(t *testing.T, service *Service, id string) *Task {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	task, err := service.WaitUntilCompleted(ctx, id, 5*time.Millisecond)
	require.NoError(t, err)
	return task
}

func TestProcessorHandlesConcurrentTasks(t *testing.T) {
	var processed atomic.Int32
	executor := ExecutorFunc(func(ctx context.Context, task *Task) (map[string]any, error) {
		select {
		case <-time.After(5 * time.Millisecond):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		processed.Add(1)
		return map[string]any{"prompt": task.Prompt}, nil
	})
	service, stop := startProcessor(t, executor, WithWorkerCount(8))
	defer stop()

	total := 200
	ids := make([]string, 0, total)
	for i := 0; i < total; i++ {
		task, err := service.Submit(context.Background(), Request{Kind: KindChat, Prompt: fmt.Sprintf("prompt-%d", i)})
		require.NoError(t, err)
		ids = append(ids, task.ID)
	}

	for i, id := range ids {
		task := waitFor(t, service, id)
		require.Equal(t, StatusSucceeded, task.Status)
		require.Equal(t, fmt.Sprintf("prompt-%d", i), task.Result["prompt"])
	}
	require.EqualValues(t, total, processed.Load())
}

func TestProcessorRetriesRetryableErrors(t *testing.T) {
	var calls atomic.Int32
	executor := ExecutorFunc(func(context.Context, *Task) (map[string]any, error) {
		if calls.Add(1) < 3 {
			return nil, xerrors.New(xerrors.CodeUpstreamFailure, "rate limited")
		}
		return map[string]any{"ok": true}, nil
	})
	service, stop := startProcessor(t, executor)
	defer stop()

	submitted, err := service.Submit(context.Background(), Request{Kind: KindSentiment, Prompt: "mood"})
	require.NoError(t, err)

	task := waitFor(t, service, submitted.ID)
	require.Equal(t, StatusSucceeded, task.Status)
	require.Equal(t, 3, task.Attempts)
	require.Empty(t, task.ErrorCode)
}

func TestProcessorStopsOnNonRetryableErrors(t *testing.T) {
	var calls atomic.Int32
	executor := ExecutorFunc(func(context.Context, *Task) (map[string]any, error) {
		calls.Add(1)
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "bad recipient")
	})
	service, stop := startProcessor(t, executor)
	defer stop()

	submitted, err := service.Submit(context.Background(), Request{Kind: KindChat, Prompt: "send"})
	require.NoError(t, err)

	task := waitFor(t, service, submitted.ID)
	require.Equal(t, StatusFailed, task.Status)
	require.Equal(t, string(xerrors.CodeInvalidArgument), task.ErrorCode)
	require.Equal(t, 1, task.Attempts)
	require.EqualValues(t, 1, calls.Load())
}

func TestProcessorSkipsRedeliveredTerminalTask(t *testing.T) {
	var calls atomic.Int32
	executor := ExecutorFunc(func(context.Context, *Task) (map[string]any, error) {
		calls.Add(1)
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "bad recipient")
	})
	store := NewMemoryStore()
	queue := NewMemoryQueue(4)
	processor := NewProcessor(executor, store, queue, queue)

	ctx := context.Background()
	require.NoError(t, store.Create(ctx, &Task{ID: "transfer-1", Kind: KindChat, Prompt: "send 1 eth", Status: StatusPending, MaxRetries: 3}))

	require.NoError(t, processor.handle(ctx, "transfer-1"))
	first, err := store.Get(ctx, "transfer-1")
	require.NoError(t, err)
	require.Equal(t, StatusFailed, first.Status)
	require.True(t, first.Terminal)
	require.Equal(t, 1, first.Attempts)

	// 同一消息再次投递时不应重复执行。
	require.NoError(t, processor.handle(ctx, "transfer-1"))
	require.EqualValues(t, 1, calls.Load())

	again, err := store.Get(ctx, "transfer-1")
	require.NoError(t, err)
	require.Equal(t, 1, again.Attempts)
	require.Equal(t, string(xerrors.CodeInvalidArgument), again.ErrorCode)
}

func TestProcessorRecoveryFallback(t *testing.T) {
	executor := ExecutorFunc(func(context.Context, *Task) (map[string]any, error) {
		return nil, errors.New("boom")
	})
	recovery := RecoveryFunc(func(_ context.Context, task *Task, cause error) (map[string]any, error) {
		return map[string]any{"kind": "answer", "answer": "service degraded"}, nil
	})
	service, stop := startProcessor(t, executor, WithRecoveryHandler(recovery))
	defer stop()

	submitted, err := service.Submit(context.Background(), Request{Kind: KindChat, Prompt: "hello"})
	require.NoError(t, err)

	task := waitFor(t, service, submitted.ID)
	require.Equal(t, StatusSucceeded, task.Status)
	require.Equal(t, 3, task.Attempts, "plain errors are retried before the fallback applies")
	require.Equal(t, "service degraded", task.Result["answer"])
	require.Contains(t, task.Result["degraded_reason"], "boom")
}

type alertFunc func(ctx context.Context, event alerting.Event) error

func (f alertFunc) Notify(ctx context.Context, event alerting.Event) error { return f(ctx, event) }

func TestProcessorAlertsOnTerminalFailure(t *testing.T) {
	events := make(chan alerting.Event, 4)
	dispatcher := alertFunc(func(_ context.Context, event alerting.Event) error {
		events <- event
		return nil
	})
	executor := ExecutorFunc(func(_ context.Context, task *Task) (map[string]any, error) {
		if task.Kind == KindLaunchpad {
			return nil, xerrors.New(xerrors.CodeInvalidArgument, "missing symbol")
		}
		return nil, xerrors.New(xerrors.CodeUpstreamFailure, "model unreachable")
	})
	service, stop := startProcessor(t, executor, WithAlertDispatcher(dispatcher))
	defer stop()

	exhausted, err := service.Submit(context.Background(), Request{Kind: KindSentiment, Prompt: "mood"})
	require.NoError(t, err)
	task := waitFor(t, service, exhausted.ID)
	require.Equal(t, StatusFailed, task.Status)

	select {
	case event := <-events:
		require.Equal(t, CodeTaskExhausted, event.Code)
		require.Equal(t, exhausted.ID, event.TaskID)
		require.Equal(t, 3, event.Attempts)
		require.Contains(t, event.Message, "model unreachable")
	case <-time.After(2 * time.Second):
		t.Fatal("expected an alert for exhausted retries")
	}

	// 参数错误属于调用方问题，不告警。
	rejected, err := service.Submit(context.Background(), Request{Kind: KindLaunchpad, Prompt: "launch"})
	require.NoError(t, err)
	require.Equal(t, StatusFailed, waitFor(t, service, rejected.ID).Status)
	select {
	case event := <-events:
		t.Fatalf("unexpected alert %+v", event)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestServiceSubmitValidatesAndDeduplicates(t *testing.T) {
	store := NewMemoryStore()
	queue := NewMemoryQueue(8)
	service := NewService(store, queue, 0)
	ctx := context.Background()

	_, err := service.Submit(ctx, Request{Kind: "swap", Prompt: "x"})
	require.Equal(t, CodeTaskValidation, xerrors.CodeOf(err))
	_, err = service.Submit(ctx, Request{Kind: KindChat, Prompt: "   "})
	require.Equal(t, CodeTaskValidation, xerrors.CodeOf(err))

	first, err := service.Submit(ctx, Request{ID: "job-1", Kind: " Launchpad ", Prompt: "launch AGT"})
	require.NoError(t, err)
	require.Equal(t, KindLaunchpad, first.Kind)
	require.Equal(t, 3, first.MaxRetries)

	second, err := service.Submit(ctx, Request{ID: "job-1", Kind: KindChat, Prompt: "other"})
	require.NoError(t, err)
	require.Equal(t, "launch AGT", second.Prompt)
	require.Len(t, queue.ch, 1, "duplicate submissions must not be published twice")

	_, err = service.Get(ctx, "missing")
	require.True(t, errors.Is(err, ErrTaskNotFound))
}

type fakeConversations struct {
	mu      sync.Mutex
	prompts []string
}

func (f *fakeConversations) Chat(_ context.Context, prompt string) (*agent.ChatResult, error) {
	f.seen(prompt)
	return &agent.ChatResult{Kind: agent.KindAnswer, Answer: "hi", Intent: agent.Intent{Action: agent.ActionOther}}, nil
}

func (f *fakeConversations) LaunchpadChat(_ context.Context, prompt string) (extract.Object, error) {
	f.seen(prompt)
	return extract.Object{"name": "Agentonic", "owner": nil}, nil
}

func (f *fakeConversations) SentimentAnalysis(_ context.Context, prompt string) (extract.Object, error) {
	f.seen(prompt)
	return nil, xerrors.New(xerrors.CodeUnprocessableResponse, "")
}

func (f *fakeConversations) seen(prompt string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
}

func TestAgentExecutorDispatchesByKind(t *testing.T) {
	conv := &fakeConversations{}
	executor := NewAgentExecutor(conv)
	ctx := context.Background()

	chat, err := executor.Execute(ctx, &Task{Kind: KindChat, Prompt: "hello"})
	require.NoError(t, err)
	require.Equal(t, "answer", chat["kind"])
	require.Equal(t, "hi", chat["answer"])

	launch, err := executor.Execute(ctx, &Task{Kind: KindLaunchpad, Prompt: "launch"})
	require.NoError(t, err)
	require.Equal(t, "Agentonic", launch["name"])

	_, err = executor.Execute(ctx, &Task{Kind: KindSentiment, Prompt: "mood"})
	require.Equal(t, xerrors.CodeUnprocessableResponse, xerrors.CodeOf(err))

	_, err = executor.Execute(ctx, &Task{Kind: "swap"})
	require.Equal(t, CodeTaskValidation, xerrors.CodeOf(err))

	require.Equal(t, []string{"hello", "launch", "mood"}, conv.prompts)
}
