package agent

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"log/slog"
	"time"

	"ChainPilot/internal/bridge"
	xerrors "ChainPilot/internal/errors"
	"ChainPilot/internal/extract"
	"ChainPilot/internal/knowledge"
	"ChainPilot/internal/llm"
	"ChainPilot/internal/observability/metrics"
	"ChainPilot/internal/relay"
	"ChainPilot/internal/storage/mysql"
	feedcache "ChainPilot/internal/storage/redis"
	"ChainPilot/internal/web3"
	"ChainPilot/pkg/logger"
)

// 会话记录中使用的端点名称。
const (
	EndpointChat      = "chat"
	EndpointLaunchpad = "launchpad"
	EndpointSentiment = "sentiment"
)

// Chains 提供链客户端与签名身份。
type Chains interface {
	Resolve(name string) (web3.Client, error)
	Signer() *web3.Signer
}

// Bridger 执行跨链转账。
type Bridger interface {
	Bridge(ctx context.Context, req bridge.Request) (*bridge.Receipt, error)
}

// FeedSource 拉取社交账号的最新动态。
type FeedSource interface {
	LatestPosts(ctx context.Context, account string) ([]relay.Post, error)
}

// Agent 协调大模型、链上操作与外部服务，是系统的业务核心。
type Agent struct {
	llmClient     llm.Client
	intentClient  llm.Client
	chains        Chains
	bridge        Bridger
	knowledge     knowledge.Provider
	conversations mysql.ConversationRepository
	feed          FeedSource
	feedCache     feedcache.FeedCache
	feedAccount   string
	temperature   float32
	llmTimeout    time.Duration
	log           *slog.Logger
}

// Option 定义可选的 Agent 配置。
type Option func(*Agent)

// WithIntentClient 为意图识别指定独立的模型客户端。
func WithIntentClient(client llm.Client) Option {
	return func(a *Agent) {
		a.intentClient = client
	}
}

// WithChains 配置链客户端注册表，用于余额查询与转账。
func WithChains(chains Chains) Option {
	return func(a *Agent) {
		a.chains = chains
	}
}

// WithBridge 配置跨链服务。
func WithBridge(b Bridger) Option {
	return func(a *Agent) {
		a.bridge = b
	}
}

// WithKnowledgeProvider 配置知识库，用于在 DeFi 分析前补充上下文。
func WithKnowledgeProvider(provider knowledge.Provider) Option {
	return func(a *Agent) {
		a.knowledge = provider
	}
}

// WithConversationRepository 配置会话记录仓库。
func WithConversationRepository(repo mysql.ConversationRepository) Option {
	return func(a *Agent) {
		a.conversations = repo
	}
}

// WithFeed 配置情绪分析使用的动态来源、缓存与账号。
func WithFeed(source FeedSource, cache feedcache.FeedCache, account string) Option {
	return func(a *Agent) {
		a.feed = source
		a.feedCache = cache
		a.feedAccount = account
	}
}

// WithTemperature 设置生成温度。
func WithTemperature(temperature float32) Option {
	return func(a *Agent) {
		a.temperature = temperature
	}
}

// WithLLMTimeout 设置单次调用大模型的超时时间。
func WithLLMTimeout(timeout time.Duration) Option {
	return func(a *Agent) {
		if timeout < 0 {
			timeout = 0
		}
		a.llmTimeout = timeout
	}
}

// New 创建一个 Agent。
func New(llmClient llm.Client, opts ...Option) *Agent {
	ag := &Agent{
		llmClient:   llmClient,
		feedAccount: defaultFeedAccount,
		log:         logger.Named("agent"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(ag)
		}
	}
	if ag.intentClient == nil {
		ag.intentClient = ag.llmClient
	}
	if ag.feedAccount == "" {
		ag.feedAccount = defaultFeedAccount
	}
	return ag
}

// History 返回最近的会话记录。
func (a *Agent) History(ctx context.Context, limit int) ([]mysql.ConversationRecord, error) {
	if a.conversations == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置会话仓库")
	}
	return a.conversations.ListLatest(ctx, limit)
}

// complete 调用大模型并统一超时与错误码。
func (a *Agent) complete(ctx context.Context, client llm.Client, req llm.Request) (*llm.Response, error) {
	if client == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置大模型客户端")
	}
	if req.Temperature == 0 {
		req.Temperature = a.temperature
	}

	llmCtx := ctx
	if a.llmTimeout > 0 {
		var cancel context.CancelFunc
		llmCtx, cancel = context.WithTimeout(ctx, a.llmTimeout)
		defer cancel()
	}

	resp, err := client.Complete(llmCtx, req)
	if err != nil {
		if stdErrors.Is(err, context.DeadlineExceeded) {
			return nil, xerrors.Wrap(xerrors.CodeTimeout, err, "大模型推理超时")
		}
		if _, ok := xerrors.From(err); ok {
			return nil, err
		}
		return nil, xerrors.Wrap(xerrors.CodeUpstreamFailure, err, "大模型推理失败")
	}
	return resp, nil
}

// extraction 记录一次结构化输出的提取过程。
type extraction struct {
	object   extract.Object
	raw      string
	strategy string
}

// completeAndExtract 调用模型并提取 JSON。
func (a *Agent) completeAndExtract(ctx context.Context, client llm.Client, req llm.Request, extractor *extract.Extractor) (extraction, error) {
	resp, err := a.complete(ctx, client, req)
	if err != nil {
		return extraction{}, err
	}
	return a.extractOrRetry(ctx, client, req, resp, extractor)
}

// extractOrRetry 从已有回复中提取 JSON，失败时带着更严格的指令重新提问一次。
func (a *Agent) extractOrRetry(ctx context.Context, client llm.Client, req llm.Request, resp *llm.Response, extractor *extract.Extractor) (extraction, error) {
	obj, strategy, err := extractor.ExtractWithStrategy(resp.Content)
	metrics.ObserveExtraction(extractor.Schema(), strategy, err)
	if err == nil {
		return extraction{object: obj, raw: resp.Content, strategy: strategy}, nil
	}

	var extractionErr *extract.ExtractionError
	if !stdErrors.As(err, &extractionErr) {
		return extraction{raw: resp.Content}, err
	}
	a.log.Warn("model reply held no JSON, re-prompting", "schema", extractor.Schema(), "tried", extractionErr.Tried)

	retry := req
	retry.Messages = append(append([]llm.Message(nil), req.Messages...),
		llm.Message{Role: llm.RoleAssistant, Content: resp.Content},
		llm.Message{Role: llm.RoleUser, Content: strictJSONInstruction},
	)
	retry.JSONMode = true

	second, err := a.complete(ctx, client, retry)
	if err != nil {
		return extraction{raw: resp.Content}, err
	}
	obj, strategy, err = extractor.ExtractWithStrategy(second.Content)
	metrics.ObserveExtraction(extractor.Schema(), strategy, err)
	if err != nil {
		return extraction{raw: second.Content}, xerrors.Wrap(xerrors.CodeUnprocessableResponse, err, "模型输出无法解析为 JSON",
			xerrors.WithMetadata("schema", extractor.Schema()))
	}
	return extraction{object: obj, raw: second.Content, strategy: strategy}, nil
}

// record 写入会话记录，失败只记录日志。
func (a *Agent) record(ctx context.Context, rec mysql.ConversationRecord, result any, err error) {
	if a.conversations == nil {
		return
	}
	if result != nil {
		if encoded, marshalErr := json.Marshal(result); marshalErr == nil {
			rec.Result = string(encoded)
		}
	}
	if err != nil {
		rec.ErrorCode = string(xerrors.CodeOf(err))
	}
	rec.CreatedAt = time.Now().Unix()
	if saveErr := a.conversations.Save(context.WithoutCancel(ctx), rec); saveErr != nil {
		a.log.Error("failed to record conversation", "endpoint", rec.Endpoint, "error", saveErr)
	}
}
