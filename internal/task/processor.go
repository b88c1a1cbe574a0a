package task

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"

	xerrors "ChainPilot/internal/errors"
	"ChainPilot/internal/observability/alerting"
	"ChainPilot/internal/observability/metrics"
	"ChainPilot/pkg/logger"
)

// Processor 负责从队列消费任务并交给执行器。
type Processor struct {
	executor    Executor
	store       Store
	consumer    Consumer
	producer    Producer
	workerCount int
	logger      *slog.Logger
	recovery    RecoveryHandler
	alerts      alerting.Dispatcher
}

// ProcessorOption 定义可选配置。
type ProcessorOption func(*Processor)

// WithProcessorLogger 指定日志输出。
func WithProcessorLogger(logger *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		p.logger = logger
	}
}

// WithWorkerCount 设置消费协程数量。
func WithWorkerCount(workers int) ProcessorOption {
	return func(p *Processor) {
		if workers > 0 {
			p.workerCount = workers
		}
	}
}

// WithRecoveryHandler 配置失败补偿策略。
func WithRecoveryHandler(handler RecoveryHandler) ProcessorOption {
	return func(p *Processor) {
		p.recovery = handler
	}
}

// WithAlertDispatcher 配置任务终止失败时的告警渠道。
func WithAlertDispatcher(dispatcher alerting.Dispatcher) ProcessorOption {
	return func(p *Processor) {
		p.alerts = dispatcher
	}
}

// NewProcessor 构造 Processor。
func NewProcessor(executor Executor, store Store, consumer Consumer, producer Producer, opts ...ProcessorOption) *Processor {
	p := &Processor{
		executor:    executor,
		store:       store,
		consumer:    consumer,
		producer:    producer,
		workerCount: 1,
		logger:      logger.Named("task"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	if p.logger == nil {
		p.logger = logger.Named("task")
	}
	return p
}

// Start 启动任务处理循环，直到 ctx 取消。
func (p *Processor) Start(ctx context.Context) error {
	if p.consumer == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "未配置任务消费者")
	}
	return p.consumer.Consume(ctx, p.workerCount, p.handle)
}

func (p *Processor) handle(ctx context.Context, taskID string) error {
	if p.store == nil || p.executor == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "处理器未初始化")
	}
	task, err := p.store.Claim(ctx, taskID)
	if err != nil {
		if stdErrors.Is(err, ErrTaskNotFound) || stdErrors.Is(err, ErrTaskCompleted) ||
			stdErrors.Is(err, ErrTaskExhausted) || stdErrors.Is(err, ErrTaskConflict) {
			p.logger.Debug("skipping task", "task_id", taskID, "reason", err.Error())
			return nil
		}
		p.logger.Error("failed to claim task", "task_id", taskID, "error", err)
		return err
	}
	metrics.ObserveTask(string(task.Kind), string(StatusRunning))

	result, execErr := p.executor.Execute(ctx, task)
	if execErr != nil {
		return p.handleExecutionFailure(ctx, task, execErr)
	}
	return p.complete(ctx, task, result, "任务执行成功")
}

// complete 写入成功结果；写入失败时把任务标记为失败并重新排队。
func (p *Processor) complete(ctx context.Context, task *Task, result map[string]any, auditMsg string) error {
	if err := p.store.MarkSucceeded(ctx, task.ID, result); err != nil {
		p.logger.Error("failed to mark task succeeded", "task_id", task.ID, "error", err)
		if storeErr := p.store.MarkFailed(ctx, task.ID, CodeTaskProcessing, err.Error(), false); storeErr != nil {
			return storeErr
		}
		if pubErr := p.producer.Publish(ctx, task.ID); pubErr != nil {
			return xerrors.Wrap(CodeTaskPublish, pubErr, fmt.Sprintf("任务 %s 在标记成功失败后重投失败", task.ID))
		}
		return nil
	}
	metrics.ObserveTask(string(task.Kind), string(StatusSucceeded))
	logger.Audit().Info(auditMsg,
		slog.String("task_id", task.ID),
		slog.String("kind", string(task.Kind)),
		slog.Int("attempts", task.Attempts),
	)
	return nil
}

func (p *Processor) handleExecutionFailure(ctx context.Context, task *Task, execErr error) error {
	if _, ok := xerrors.From(execErr); !ok {
		execErr = xerrors.Wrap(CodeTaskProcessing, execErr, "任务执行失败")
	}
	code := xerrors.CodeOf(execErr)
	retryable := xerrors.RetryableError(execErr)
	terminal := task.Attempts >= task.MaxRetries || !retryable

	if terminal && p.recovery != nil {
		fallback, recErr := p.recovery.Recover(ctx, task, execErr)
		switch {
		case recErr != nil:
			p.logger.Error("task compensation failed", "task_id", task.ID,
				"error", xerrors.Wrap(CodeTaskCompensate, recErr, "任务补偿失败"))
		case fallback != nil:
			if _, ok := fallback["degraded_reason"]; !ok {
				fallback["degraded_reason"] = execErr.Error()
			}
			return p.complete(ctx, task, fallback, "任务降级完成")
		}
	}

	if storeErr := p.store.MarkFailed(ctx, task.ID, code, execErr.Error(), terminal); storeErr != nil {
		p.logger.Error("failed to mark task failed", "task_id", task.ID, "error", storeErr)
		return storeErr
	}
	metrics.ObserveTask(string(task.Kind), string(StatusFailed))
	logger.Audit().Warn("任务执行失败",
		slog.String("task_id", task.ID),
		slog.String("kind", string(task.Kind)),
		slog.Bool("terminal", terminal),
		slog.String("error", execErr.Error()),
		slog.String("error_code", string(code)),
		slog.Int("attempts", task.Attempts),
		slog.Int("max_retries", task.MaxRetries),
	)

	if terminal {
		p.alert(ctx, task, execErr, retryable)
		return nil
	}
	if pubErr := p.producer.Publish(ctx, task.ID); pubErr != nil {
		return xerrors.Wrap(CodeTaskPublish, pubErr, fmt.Sprintf("任务 %s 重投失败", task.ID))
	}
	p.logger.Debug("task requeued", "task_id", task.ID, "attempts", task.Attempts)
	return nil
}

// alert 在任务最终失败时发送告警。可重试错误耗尽次数时按 TASK_RETRIES_EXHAUSTED 上报。
func (p *Processor) alert(ctx context.Context, task *Task, execErr error, exhausted bool) {
	if p.alerts == nil {
		return
	}
	cause := execErr
	if exhausted {
		cause = xerrors.Wrap(CodeTaskExhausted, execErr, "任务重试次数耗尽")
	}
	if !alerting.ShouldAlert(cause) {
		return
	}
	event := alerting.EventFromError("task", cause)
	event.TaskID = task.ID
	event.Attempts = task.Attempts
	event.MaxRetries = task.MaxRetries
	if err := p.alerts.Notify(context.WithoutCancel(ctx), event); err != nil {
		p.logger.Warn("failed to deliver task alert", "task_id", task.ID, "error", err)
	}
}
