package agent

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"

	xerrors "ChainPilot/internal/errors"
	"ChainPilot/internal/extract"
	"ChainPilot/internal/llm"
	"ChainPilot/internal/storage/mysql"
)

var validate = validator.New()

// launchpadSlots 是发行参数中必须出现的键。
type launchpadSlots struct {
	Name   string `validate:"required"`
	Symbol string `validate:"required"`
}

// LaunchpadChat 从自然语言中抽取代币发行参数，并把空的 owner 归一化为 null。
func (a *Agent) LaunchpadChat(ctx context.Context, prompt string) (extract.Object, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "prompt 不能为空")
	}

	req := llm.Prompt(launchpadSystemPrompt, prompt)
	req.JSONMode = true
	out, err := a.completeAndExtract(ctx, a.llmClient, req, extract.Launchpad())
	rec := mysql.ConversationRecord{Endpoint: EndpointLaunchpad, Prompt: prompt, Reply: out.raw, Strategy: out.strategy}
	if err != nil {
		a.record(ctx, rec, nil, err)
		return nil, err
	}

	slots := launchpadSlots{}
	slots.Name, _ = out.object["name"].(string)
	slots.Symbol, _ = out.object["symbol"].(string)
	if err := validate.Struct(slots); err != nil {
		err = xerrors.Wrap(xerrors.CodeUnprocessableResponse, err, "模型未给出代币名称或符号")
		a.record(ctx, rec, out.object, err)
		return nil, err
	}

	obj := extract.NormalizeOwner(out.object)
	a.record(ctx, rec, obj, nil)
	return obj, nil
}
