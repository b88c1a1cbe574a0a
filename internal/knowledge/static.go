package knowledge

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"ChainPilot/internal/llm"
)

// Provider 定义知识库检索的通用接口。
type Provider interface {
	Query(prompt, intent string) []Snippet
}

// Snippet 描述可供大模型引用的一段协议资料。
type Snippet struct {
	Title    string   `json:"title" yaml:"title"`
	Content  string   `json:"content" yaml:"content"`
	Link     string   `json:"link,omitempty" yaml:"link,omitempty"`
	Keywords []string `json:"keywords" yaml:"keywords"`
	Tags     []string `json:"tags" yaml:"tags"`
}

// StaticProvider 在固定条目上做关键字匹配。
type StaticProvider struct {
	items      []Snippet
	maxResults int
}

// NewStaticProvider 创建静态知识库实例。
func NewStaticProvider(items []Snippet, maxResults int) *StaticProvider {
	if maxResults <= 0 {
		maxResults = 3
	}
	return &StaticProvider{
		items:      items,
		maxResults: maxResults,
	}
}

// NewDefaultProvider 使用内置的 DeFi 协议资料。
func NewDefaultProvider() *StaticProvider {
	return NewStaticProvider(DefaultSnippets(), 3)
}

// LoadStaticProvider 从 JSON 或 YAML 文件加载知识条目。
func LoadStaticProvider(path string, maxResults int) (*StaticProvider, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("知识库文件路径不能为空")
	}

	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("读取知识库文件失败: %w", err)
	}

	var entries []Snippet
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(content, &entries)
	default:
		err = json.Unmarshal(content, &entries)
	}
	if err != nil {
		return nil, fmt.Errorf("解析知识库文件失败: %w", err)
	}

	return NewStaticProvider(entries, maxResults), nil
}

// Query 根据用户输入和意图进行匹配，没有关键字的条目总是命中。
func (p *StaticProvider) Query(prompt, intent string) []Snippet {
	if p == nil {
		return nil
	}

	prompt = strings.ToLower(strings.TrimSpace(prompt))
	intent = strings.ToLower(strings.TrimSpace(intent))

	results := make([]Snippet, 0, p.maxResults)
	for _, item := range p.items {
		if matches(item, prompt, intent) {
			results = append(results, item)
			if len(results) >= p.maxResults {
				break
			}
		}
	}
	return results
}

// Cards 将检索结果转换为大模型请求中的知识卡片。
func Cards(snippets []Snippet) []llm.KnowledgeCard {
	cards := make([]llm.KnowledgeCard, 0, len(snippets))
	for _, snippet := range snippets {
		content := snippet.Content
		if snippet.Link != "" {
			content += " (" + snippet.Link + ")"
		}
		cards = append(cards, llm.KnowledgeCard{Title: snippet.Title, Content: content})
	}
	return cards
}

func matches(snippet Snippet, prompt, intent string) bool {
	if len(snippet.Keywords) == 0 && len(snippet.Tags) == 0 {
		return true
	}
	for _, keyword := range snippet.Keywords {
		if containsTerm(keyword, prompt, intent) {
			return true
		}
	}
	for _, tag := range snippet.Tags {
		if containsTerm(tag, prompt, intent) {
			return true
		}
	}
	return false
}

func containsTerm(term, prompt, intent string) bool {
	normalized := strings.ToLower(strings.TrimSpace(term))
	if normalized == "" {
		return false
	}
	return strings.Contains(prompt, normalized) || intent == normalized
}

var _ Provider = (*StaticProvider)(nil)
