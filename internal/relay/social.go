package relay

import (
	"context"
	"strings"
	"time"

	xerrors "ChainPilot/internal/errors"
)

const socialConnection = "twitter"

// Post 是社交平台上的一条动态。
type Post struct {
	ID                  string   `json:"id"`
	Text                string   `json:"text"`
	CreatedAt           string   `json:"created_at,omitempty"`
	EditHistoryTweetIDs []string `json:"edit_history_tweet_ids,omitempty"`
}

type agentAction struct {
	Connection string `json:"connection"`
	Action     string `json:"action"`
	Params     []any  `json:"params"`
}

// SocialClient 调用社交代理服务的 /agent/action 接口。
type SocialClient struct {
	http httpClient
}

// NewSocialClient 创建客户端，baseURL 形如 http://localhost:8000。
func NewSocialClient(baseURL string, timeout time.Duration) *SocialClient {
	return &SocialClient{http: newHTTPClient("social agent", baseURL, timeout)}
}

// LatestPosts 拉取账号最近的动态。结果为空通常意味着平台限流，调用方应回退到缓存。
func (c *SocialClient) LatestPosts(ctx context.Context, account string) ([]Post, error) {
	account = strings.TrimSpace(account)
	if account == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "账号不能为空")
	}
	var resp struct {
		Result []Post `json:"result"`
	}
	err := c.http.postJSON(ctx, "/agent/action", agentAction{
		Connection: socialConnection,
		Action:     "get-latest-tweets",
		Params:     []any{account},
	}, &resp)
	if err != nil {
		return nil, err
	}
	if len(resp.Result) == 0 {
		return nil, xerrors.New(xerrors.CodeUpstreamFailure, "社交服务未返回动态，可能已被限流")
	}
	return resp.Result, nil
}

// Publish 发布一条动态并原样返回服务响应。
func (c *SocialClient) Publish(ctx context.Context, content string) (map[string]any, error) {
	if strings.TrimSpace(content) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "动态内容不能为空")
	}
	resp := map[string]any{}
	err := c.http.postJSON(ctx, "/agent/action", agentAction{
		Connection: socialConnection,
		Action:     "post-tweet",
		Params:     []any{content},
	}, &resp)
	if err != nil {
		return nil, err
	}
	return resp, nil
}
