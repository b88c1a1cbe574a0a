package task

import (
	"context"
	"encoding/json"

	"ChainPilot/internal/agent"
	xerrors "ChainPilot/internal/errors"
	"ChainPilot/internal/extract"
)

// Executor 执行单个任务并返回可持久化的结果。
type Executor interface {
	Execute(ctx context.Context, task *Task) (map[string]any, error)
}

// ExecutorFunc 允许以函数实现 Executor。
type ExecutorFunc func(ctx context.Context, task *Task) (map[string]any, error)

// Execute 实现 Executor 接口。
func (f ExecutorFunc) Execute(ctx context.Context, task *Task) (map[string]any, error) {
	return f(ctx, task)
}

// Conversations 是处理器依赖的 Agent 能力。
type Conversations interface {
	Chat(ctx context.Context, prompt string) (*agent.ChatResult, error)
	LaunchpadChat(ctx context.Context, prompt string) (extract.Object, error)
	SentimentAnalysis(ctx context.Context, prompt string) (extract.Object, error)
}

// AgentExecutor 按任务类型把任务分派给 Agent。
type AgentExecutor struct {
	agent Conversations
}

// NewAgentExecutor 创建 AgentExecutor。
func NewAgentExecutor(ag Conversations) *AgentExecutor {
	return &AgentExecutor{agent: ag}
}

// Execute 实现 Executor 接口。
func (e *AgentExecutor) Execute(ctx context.Context, task *Task) (map[string]any, error) {
	if e == nil || e.agent == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置 Agent")
	}
	switch task.Kind {
	case KindChat:
		result, err := e.agent.Chat(ctx, task.Prompt)
		if err != nil {
			return nil, err
		}
		return toMap(result)
	case KindLaunchpad:
		obj, err := e.agent.LaunchpadChat(ctx, task.Prompt)
		return map[string]any(obj), err
	case KindSentiment:
		obj, err := e.agent.SentimentAnalysis(ctx, task.Prompt)
		return map[string]any(obj), err
	default:
		return nil, xerrors.New(CodeTaskValidation, "未知的任务类型: "+string(task.Kind))
	}
}

func toMap(value any) (map[string]any, error) {
	encoded, err := json.Marshal(value)
	if err != nil {
		return nil, xerrors.Wrap(CodeTaskProcessing, err, "编码任务结果失败")
	}
	var out map[string]any
	if err := json.Unmarshal(encoded, &out); err != nil {
		return nil, xerrors.Wrap(CodeTaskProcessing, err, "编码任务结果失败")
	}
	return out, nil
}
