package llm

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	xerrors "ChainPilot/internal/errors"
	"ChainPilot/internal/observability/metrics"
	"ChainPilot/pkg/logger"
)

// RetryOptions 控制可重试错误的退避策略。
type RetryOptions struct {
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func (o RetryOptions) withDefaults() RetryOptions {
	if o.InitialInterval <= 0 {
		o.InitialInterval = 500 * time.Millisecond
	}
	if o.MaxInterval <= 0 {
		o.MaxInterval = 5 * time.Second
	}
	return o
}

// RetryingClient 在可重试错误上按指数退避重新调用下游客户端。
type RetryingClient struct {
	next Client
	opts RetryOptions
}

// NewRetrying 包装客户端。MaxRetries 为 0 时不重试。
func NewRetrying(next Client, opts RetryOptions) *RetryingClient {
	return &RetryingClient{next: next, opts: opts.withDefaults()}
}

// Complete 实现 Client 接口。不可重试的错误会立即返回。
func (c *RetryingClient) Complete(ctx context.Context, req Request) (*Response, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.opts.InitialInterval
	policy.MaxInterval = c.opts.MaxInterval
	policy.MaxElapsedTime = 0

	var resp *Response
	operation := func() error {
		out, err := c.next.Complete(ctx, req)
		if err != nil {
			if !xerrors.RetryableError(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		resp = out
		return nil
	}
	notify := func(err error, wait time.Duration) {
		logger.Named("llm").Warn("retrying chat completion", "error", err, "wait", wait)
	}

	b := backoff.WithContext(backoff.WithMaxRetries(policy, c.opts.MaxRetries), ctx)
	if err := backoff.RetryNotify(operation, b, notify); err != nil {
		return nil, err
	}
	return resp, nil
}

// InstrumentedClient 记录每次调用的耗时与结果。
type InstrumentedClient struct {
	provider string
	next     Client
}

// Instrument 为客户端添加指标采集。
func Instrument(provider string, next Client) *InstrumentedClient {
	return &InstrumentedClient{provider: provider, next: next}
}

// Complete 实现 Client 接口。
func (c *InstrumentedClient) Complete(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	resp, err := c.next.Complete(ctx, req)
	metrics.ObserveLLMCall(c.provider, err, time.Since(start))
	return resp, err
}
