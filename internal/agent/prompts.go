package agent

import (
	"fmt"
	"strings"

	"ChainPilot/internal/llm"
	"ChainPilot/internal/relay"
)

const strictJSONInstruction = "Your previous reply could not be parsed. Answer again with exactly one JSON object and nothing else: no prose, no markdown fences, double-quoted keys and strings."

const intentSystemPrompt = `Context: You find the action that matches the user's query together with its parameters.
Instructions:
- Pick exactly one action from this list: ["get-balance", "transfer", "bridge", "analyze", "other"].
- Reply with a JSON object {"action": "<action>", "parameters": [...]}.
- get-balance: ["<address>"] (the address may be omitted to use the operator account).
- transfer: ["<recipient address>", "<amount in native units>"].
- bridge: ["<source network>", "<destination network>", "<amount>", "<recipient address>"], for example ["sonic", "ethereum", "1", "0x1234567890123456789012345678901234567890"].
- analyze: [] for any question that asks to compare, evaluate or optimise DeFi protocols, yields or swaps.
- other: [] for everything else. This is a normal query.`

const defiAnalysisSystemPrompt = `Context: You are an expert DeFi optimizer with a strong focus on statistics and risk analysis.
Instructions:
- Analyze the user's query about DeFi protocols and give a step-by-step plan.
- Include total slippage, net gains, safe and recommended protocols, estimated time and potential fees.
- Never answer "None" or "N/A". Give the best current estimate instead.
- Give proper links for the protocols.
Reply with a JSON object of this shape:
{
  "protocol_name": "string",
  "protocol_description": "string",
  "protocol_steps": [{"step_number": 1, "description": "string", "estimated_time": "string", "potential_fees": "string"}],
  "protocol_link": "string",
  "estimated_slippage": "string",
  "slippage insights": "string",
  "overall_benefit": "string",
  "risks": ["string"],
  "alternative_protocols": ["string"]
}`

const normalQuerySystemPrompt = `Context: You are an expert DeFi optimizer. Answer the user's question about DeFi, tokens or chains with concrete numbers where you can.`

const launchpadSystemPrompt = `Context: You help users launch a token.
Instructions:
- Read the user's message and fill the token launch slots.
- Reply with a JSON object {"name": "string", "symbol": "string", "initialSupply": number, "maxSupply": number, "owner": "string"}.
- symbol is the upper-case ticker. Supplies are whole tokens without decimals.
- If the user did not give an owner address use "None". If a supply is missing choose a sensible default and keep maxSupply >= initialSupply.`

const sentimentSystemPrompt = `Context: You are a crypto market analyst who only answers in JSON.
Instructions:
- Read the recent posts below and the user's question.
- Reply with one JSON object that can be loaded directly, containing at least {"sentiment": "bullish" | "bearish" | "neutral"}.
- Add "summary" (string), "tokens" (list of mentioned tickers) and "confidence" (0 to 1).`

// withKnowledge 将知识卡片追加到系统提示词。
func withKnowledge(system string, cards []llm.KnowledgeCard) string {
	if len(cards) == 0 {
		return system
	}
	var b strings.Builder
	b.WriteString(system)
	b.WriteString("\n\nReference notes:\n")
	for _, card := range cards {
		fmt.Fprintf(&b, "- %s: %s\n", card.Title, card.Content)
	}
	return b.String()
}

// withPosts 将社交动态附加到系统提示词。
func withPosts(system string, posts []relay.Post) string {
	var b strings.Builder
	b.WriteString(system)
	b.WriteString("\n\nRecent posts:\n")
	for _, post := range posts {
		text := strings.ReplaceAll(strings.TrimSpace(post.Text), "\n", " ")
		if post.CreatedAt != "" {
			fmt.Fprintf(&b, "- [%s] %s\n", post.CreatedAt, text)
			continue
		}
		fmt.Fprintf(&b, "- %s\n", text)
	}
	return b.String()
}
