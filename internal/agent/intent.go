package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	xerrors "ChainPilot/internal/errors"
	"ChainPilot/internal/extract"
	"ChainPilot/internal/llm"
)

// 支持的意图动作。
const (
	ActionGetBalance = "get-balance"
	ActionTransfer   = "transfer"
	ActionBridge     = "bridge"
	ActionAnalyze    = "analyze"
	ActionOther      = "other"
)

// Intent 是意图识别的结果。
type Intent struct {
	Action     string `json:"action"`
	Parameters []any  `json:"parameters"`
}

// DetectIntent 让模型以 JSON 模式给出动作与参数，未知动作归为 other。
func (a *Agent) DetectIntent(ctx context.Context, prompt string) (Intent, error) {
	if strings.TrimSpace(prompt) == "" {
		return Intent{}, xerrors.New(xerrors.CodeInvalidArgument, "prompt 不能为空")
	}

	req := llm.Prompt(intentSystemPrompt, prompt)
	req.JSONMode = true
	out, err := a.completeAndExtract(ctx, a.intentClient, req, extract.Generic())
	if err != nil {
		return Intent{}, err
	}
	return intentFrom(out.object), nil
}

func intentFrom(obj extract.Object) Intent {
	action, _ := obj["action"].(string)
	intent := Intent{Action: normalizeAction(action)}
	if params, ok := obj["parameters"].([]any); ok {
		intent.Parameters = params
	}
	return intent
}

func normalizeAction(action string) string {
	switch strings.ToLower(strings.TrimSpace(action)) {
	case ActionGetBalance, "balance", "get_balance":
		return ActionGetBalance
	case ActionTransfer:
		return ActionTransfer
	case ActionBridge:
		return ActionBridge
	case ActionAnalyze, "analyze-defi", "analyse":
		return ActionAnalyze
	default:
		return ActionOther
	}
}

// Param 以字符串形式返回第 i 个参数，数字保持原始文本。
func (i Intent) Param(index int) (string, bool) {
	if index < 0 || index >= len(i.Parameters) {
		return "", false
	}
	var text string
	switch value := i.Parameters[index].(type) {
	case nil:
		return "", false
	case string:
		text = value
	case json.Number:
		text = value.String()
	case float64:
		text = fmt.Sprintf("%g", value)
	default:
		text = fmt.Sprint(value)
	}
	text = strings.TrimSpace(text)
	return text, text != ""
}
