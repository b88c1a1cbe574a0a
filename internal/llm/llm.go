package llm

import (
	"context"
	"strings"
)

// Role 表示消息发送方。
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message 是一轮对话消息。
type Message struct {
	Role    Role
	Content string
}

// Request 描述一次对话补全请求。
type Request struct {
	System      string
	Messages    []Message
	JSONMode    bool
	Temperature float32
	MaxTokens   int
}

// Response 是模型返回的原始文本与用量信息。
type Response struct {
	Content          string
	Model            string
	PromptTokens     int
	CompletionTokens int
}

// KnowledgeCard 表示提供给大模型的知识切片，帮助生成更加准确的回复。
type KnowledgeCard struct {
	Title   string
	Content string
}

// Client 定义了调用大模型的统一接口。
type Client interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// ClientFunc 允许以函数实现 Client，常用于测试桩。
type ClientFunc func(ctx context.Context, req Request) (*Response, error)

// Complete 实现 Client 接口。
func (f ClientFunc) Complete(ctx context.Context, req Request) (*Response, error) {
	return f(ctx, req)
}

// Prompt 构造仅包含一条用户消息的请求。
func Prompt(system, user string) Request {
	return Request{
		System:   strings.TrimSpace(system),
		Messages: []Message{{Role: RoleUser, Content: user}},
	}
}

// LastUserMessage 返回请求中最后一条用户消息。
func (r Request) LastUserMessage() string {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == RoleUser {
			return r.Messages[i].Content
		}
	}
	return ""
}
