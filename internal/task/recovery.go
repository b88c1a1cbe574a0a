package task

import "context"

// RecoveryHandler 定义了在任务执行失败时的补偿策略。
type RecoveryHandler interface {
	// Recover 尝试根据失败原因进行降级。
	// 返回的结果将作为降级结果写入任务；若返回 nil 则继续按照失败流程处理。
	Recover(ctx context.Context, task *Task, cause error) (map[string]any, error)
}

// RecoveryFunc 允许以函数实现 RecoveryHandler。
type RecoveryFunc func(ctx context.Context, task *Task, cause error) (map[string]any, error)

// Recover 实现 RecoveryHandler 接口。
func (f RecoveryFunc) Recover(ctx context.Context, task *Task, cause error) (map[string]any, error) {
	return f(ctx, task, cause)
}
