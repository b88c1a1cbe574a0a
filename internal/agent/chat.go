package agent

import (
	"context"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"ChainPilot/internal/bridge"
	xerrors "ChainPilot/internal/errors"
	"ChainPilot/internal/extract"
	"ChainPilot/internal/knowledge"
	"ChainPilot/internal/llm"
	"ChainPilot/internal/storage/mysql"
	"ChainPilot/internal/web3"
)

// ChatResult 的类型。
const (
	KindAnalysis = "analysis"
	KindBridge   = "bridge"
	KindBalance  = "balance"
	KindTransfer = "transfer"
	KindAnswer   = "answer"
)

// BalanceResult 是余额查询结果。
type BalanceResult struct {
	Chain   string `json:"chain"`
	Address string `json:"address"`
	Wei     string `json:"wei"`
	Ether   string `json:"ether"`
}

// TransferResult 是原生币转账结果。
type TransferResult struct {
	Chain       string `json:"chain"`
	TxHash      string `json:"txHash"`
	From        string `json:"from"`
	To          string `json:"to"`
	Amount      string `json:"amount"`
	ExplorerURL string `json:"explorerUrl,omitempty"`
}

// ChatResult 汇总一次对话的路由结果，只有与 Kind 对应的字段会被填充。
type ChatResult struct {
	Intent   Intent          `json:"intent"`
	Kind     string          `json:"kind"`
	Analysis extract.Object  `json:"analysis,omitempty"`
	Bridge   *bridge.Receipt `json:"bridge,omitempty"`
	Balance  *BalanceResult  `json:"balance,omitempty"`
	Transfer *TransferResult `json:"transfer,omitempty"`
	Answer   string          `json:"answer,omitempty"`
}

// Chat 识别意图并路由到对应的处理流程，参数不完整时退化为普通问答。
func (a *Agent) Chat(ctx context.Context, prompt string) (*ChatResult, error) {
	intent, err := a.DetectIntent(ctx, prompt)
	switch {
	case xerrors.CodeOf(err) == xerrors.CodeUnprocessableResponse:
		a.log.Warn("intent reply unusable, treating as a normal query", "error", err)
		intent = Intent{Action: ActionOther}
	case err != nil:
		a.record(ctx, mysql.ConversationRecord{Endpoint: EndpointChat, Prompt: prompt}, nil, err)
		return nil, err
	}

	result := &ChatResult{Intent: intent}
	rec := mysql.ConversationRecord{Endpoint: EndpointChat, Prompt: prompt, Intent: intent.Action}

	var handled bool
	switch intent.Action {
	case ActionAnalyze:
		handled, err = a.analyze(ctx, prompt, result, &rec)
	case ActionBridge:
		handled, err = a.bridgeFromIntent(ctx, intent, result)
	case ActionGetBalance:
		handled, err = a.balanceFromIntent(ctx, intent, result)
	case ActionTransfer:
		handled, err = a.transferFromIntent(ctx, intent, result)
	}
	if err == nil && !handled {
		err = a.answer(ctx, prompt, result, &rec)
	}
	if err != nil {
		a.record(ctx, rec, nil, err)
		return nil, err
	}

	a.record(ctx, rec, result, nil)
	return result, nil
}

func (a *Agent) analyze(ctx context.Context, prompt string, result *ChatResult, rec *mysql.ConversationRecord) (bool, error) {
	system := defiAnalysisSystemPrompt
	if a.knowledge != nil {
		system = withKnowledge(system, knowledge.Cards(a.knowledge.Query(prompt, ActionAnalyze)))
	}
	req := llm.Prompt(system, prompt)
	req.JSONMode = true

	out, err := a.completeAndExtract(ctx, a.llmClient, req, extract.Generic())
	rec.Reply = out.raw
	rec.Strategy = out.strategy
	if err != nil {
		return true, err
	}
	result.Kind = KindAnalysis
	result.Analysis = out.object
	return true, nil
}

func (a *Agent) bridgeFromIntent(ctx context.Context, intent Intent, result *ChatResult) (bool, error) {
	amount, okAmount := intent.Param(2)
	recipient, okRecipient := intent.Param(3)
	if a.bridge == nil || !okAmount || !okRecipient {
		a.log.Info("bridge intent without usable parameters, answering instead", "parameters", intent.Parameters)
		return false, nil
	}
	receipt, err := a.bridge.Bridge(ctx, bridge.Request{Amount: amount, Recipient: recipient})
	if err != nil {
		return true, err
	}
	result.Kind = KindBridge
	result.Bridge = receipt
	return true, nil
}

func (a *Agent) balanceFromIntent(ctx context.Context, intent Intent, result *ChatResult) (bool, error) {
	if a.chains == nil {
		return false, nil
	}
	address, ok := intent.Param(0)
	switch {
	case ok && common.IsHexAddress(address):
	case a.chains.Signer() != nil:
		address = a.chains.Signer().Address().Hex()
	default:
		return false, nil
	}

	client, err := a.chains.Resolve("")
	if err != nil {
		return true, err
	}
	account := common.HexToAddress(address)
	wei, err := client.Balance(ctx, account)
	if err != nil {
		return true, err
	}
	result.Kind = KindBalance
	result.Balance = &BalanceResult{
		Chain:   client.Name(),
		Address: account.Hex(),
		Wei:     wei.String(),
		Ether:   web3.FormatEther(wei),
	}
	return true, nil
}

func (a *Agent) transferFromIntent(ctx context.Context, intent Intent, result *ChatResult) (bool, error) {
	if a.chains == nil || a.chains.Signer() == nil {
		return false, nil
	}
	to, okTo := intent.Param(0)
	amount, okAmount := intent.Param(1)
	if !okTo || !okAmount || !common.IsHexAddress(to) {
		return false, nil
	}
	value, err := web3.ParseEther(amount)
	if err != nil || value.Sign() == 0 {
		return false, nil
	}

	client, err := a.chains.Resolve("")
	if err != nil {
		return true, err
	}
	tx, err := client.Transfer(ctx, a.chains.Signer(), common.HexToAddress(to), value)
	if err != nil {
		return true, err
	}
	result.Kind = KindTransfer
	result.Transfer = &TransferResult{
		Chain:       client.Name(),
		TxHash:      tx.Hash.Hex(),
		From:        tx.From.Hex(),
		To:          tx.To.Hex(),
		Amount:      web3.FormatEther(value),
		ExplorerURL: tx.ExplorerURL,
	}
	return true, nil
}

func (a *Agent) answer(ctx context.Context, prompt string, result *ChatResult, rec *mysql.ConversationRecord) error {
	resp, err := a.complete(ctx, a.llmClient, llm.Prompt(normalQuerySystemPrompt, prompt))
	if err != nil {
		return err
	}
	rec.Reply = resp.Content
	result.Kind = KindAnswer
	result.Answer = strings.TrimSpace(resp.Content)
	return nil
}
