package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	xerrors "ChainPilot/internal/errors"
)

func fastRetry(max uint64) RetryOptions {
	return RetryOptions{MaxRetries: max, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}
}

func TestRetryingClientRecoversFromRetryableErrors(t *testing.T) {
	calls := 0
	stub := ClientFunc(func(ctx context.Context, req Request) (*Response, error) {
		calls++
		if calls < 3 {
			return nil, xerrors.New(xerrors.CodeUpstreamFailure, "rate limited")
		}
		return &Response{Content: "ok"}, nil
	})

	resp, err := NewRetrying(stub, fastRetry(5)).Complete(context.Background(), Prompt("", "hi"))
	require.NoError(t, err)
	require.Equal(t, "ok", resp.Content)
	require.Equal(t, 3, calls)
}

func TestRetryingClientStopsOnPermanentErrors(t *testing.T) {
	calls := 0
	stub := ClientFunc(func(ctx context.Context, req Request) (*Response, error) {
		calls++
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "bad model")
	})

	_, err := NewRetrying(stub, fastRetry(5)).Complete(context.Background(), Prompt("", "hi"))
	require.Error(t, err)
	require.Equal(t, xerrors.CodeInvalidArgument, xerrors.CodeOf(err))
	require.Equal(t, 1, calls)
}

func TestRetryingClientGivesUpAfterMaxRetries(t *testing.T) {
	calls := 0
	boom := errors.New("connection reset")
	stub := ClientFunc(func(ctx context.Context, req Request) (*Response, error) {
		calls++
		return nil, xerrors.Wrap(xerrors.CodeUpstreamFailure, boom, "")
	})

	_, err := NewRetrying(stub, fastRetry(2)).Complete(context.Background(), Prompt("", "hi"))
	require.ErrorIs(t, err, boom)
	require.Equal(t, 3, calls)
}

func TestLastUserMessage(t *testing.T) {
	req := Request{Messages: []Message{
		{Role: RoleUser, Content: "first"},
		{Role: RoleAssistant, Content: "answer"},
		{Role: RoleUser, Content: "second"},
	}}
	require.Equal(t, "second", req.LastUserMessage())
	require.Empty(t, Request{}.LastUserMessage())
}
