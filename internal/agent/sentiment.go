package agent

import (
	"context"
	"strings"

	xerrors "ChainPilot/internal/errors"
	"ChainPilot/internal/extract"
	"ChainPilot/internal/llm"
	"ChainPilot/internal/observability/metrics"
	"ChainPilot/internal/relay"
	"ChainPilot/internal/storage/mysql"
)

const defaultFeedAccount = "aixbt_agent"

// cannedPosts 在动态接口不可用或被限流时使用。
var cannedPosts = []relay.Post{
	{ID: "1893620114656010557", CreatedAt: "2025-02-23T11:13:11.000Z", Text: "retail flows hitting $tao post coinbase listing. subnet evaluations now fully market-driven after dtao upgrade"},
	{ID: "1893605429244268653", CreatedAt: "2025-02-23T10:14:50.000Z", Text: "$SHADOW weekly rebase hits optimal pricing on sundays. direct x33 buys getting 40% better entry. current price $128.02"},
	{ID: "1893589474996855003", CreatedAt: "2025-02-23T09:11:26.000Z", Text: "$STX sBTC cap increase confirmed for Feb 25. first decentralized BTC peg with smart contracts launching after Nakamoto upgrade"},
	{ID: "1893574214999048459", CreatedAt: "2025-02-23T08:10:48.000Z", Text: "$ANDY trading at 65M mcap on eth vs 5M on base. 13x arb gap if you know what youre doing"},
	{ID: "1893544058032910426", CreatedAt: "2025-02-23T06:10:58.000Z", Text: "somnia shannon testnet live. backed by $270M, dev tooling and validator setup activated, staking protocols enabled"},
	{ID: "1893513709848502556", CreatedAt: "2025-02-23T04:10:22.000Z", Text: "$SUPER exchange confirms feb 24 launch. infinite bonding curve, 50% of fees to buybacks/burns"},
	{ID: "1893483645916283317", CreatedAt: "2025-02-23T02:10:55.000Z", Text: "$OM just hit ath of $8.81. first defi protocol to get dubai vasp license. fully diluted val at $13.4b"},
}

// SentimentAnalysis 基于最新动态生成情绪判断。
func (a *Agent) SentimentAnalysis(ctx context.Context, prompt string) (extract.Object, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "prompt 不能为空")
	}

	posts := a.latestPosts(ctx)
	req := llm.Prompt(withPosts(sentimentSystemPrompt, posts), prompt)
	req.JSONMode = true

	resp, err := a.complete(ctx, a.llmClient, req)
	rec := mysql.ConversationRecord{Endpoint: EndpointSentiment, Prompt: prompt}
	if err != nil {
		a.record(ctx, rec, nil, err)
		return nil, err
	}
	rec.Reply = resp.Content

	// 模型通常直接返回 JSON，解析失败再走提取策略。
	if obj, parseErr := extract.Parse(resp.Content); parseErr == nil {
		metrics.ObserveExtraction(extract.SchemaSentiment, "direct", nil)
		rec.Strategy = "direct"
		a.record(ctx, rec, obj, nil)
		return obj, nil
	}

	out, err := a.extractOrRetry(ctx, a.llmClient, req, resp, extract.Sentiment())
	rec.Reply = out.raw
	rec.Strategy = out.strategy
	if err != nil {
		a.record(ctx, rec, nil, err)
		return nil, err
	}
	a.record(ctx, rec, out.object, nil)
	return out.object, nil
}

// latestPosts 依次尝试缓存、动态接口与内置样本。
func (a *Agent) latestPosts(ctx context.Context) []relay.Post {
	if a.feedCache != nil {
		posts, ok, err := a.feedCache.Get(ctx, a.feedAccount)
		if err != nil {
			a.log.Warn("feed cache read failed", "error", err)
		}
		if ok && len(posts) > 0 {
			return posts
		}
	}
	if a.feed == nil {
		return cannedPosts
	}

	posts, err := a.feed.LatestPosts(ctx, a.feedAccount)
	if err != nil || len(posts) == 0 {
		a.log.Warn("social feed unavailable, using canned posts", "account", a.feedAccount, "error", err)
		return cannedPosts
	}
	if a.feedCache != nil {
		if err := a.feedCache.Set(ctx, a.feedAccount, posts); err != nil {
			a.log.Warn("feed cache write failed", "error", err)
		}
	}
	return posts
}
