package pythonbridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	xerrors "ChainPilot/internal/errors"
	"ChainPilot/internal/llm"
)

// Client 通过调用本地 Python 脚本实现大模型推理，便于接入私有模型 SDK。
type Client struct {
	pythonExec string
	scriptPath string
	workingDir string
}

// NewClient 创建 Python Bridge 客户端。
func NewClient(pythonExec, scriptPath, workingDir string) (*Client, error) {
	if scriptPath == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "未指定 Python 脚本路径")
	}
	if pythonExec == "" {
		pythonExec = "python3"
	}
	return &Client{
		pythonExec: pythonExec,
		scriptPath: scriptPath,
		workingDir: workingDir,
	}, nil
}

type bridgeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type bridgeRequest struct {
	System      string          `json:"system,omitempty"`
	Messages    []bridgeMessage `json:"messages"`
	JSONMode    bool            `json:"json_mode"`
	Temperature float32         `json:"temperature,omitempty"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Timestamp   int64           `json:"timestamp"`
}

type bridgeResponse struct {
	Content string `json:"content"`
	Model   string `json:"model"`
	Error   string `json:"error"`
}

// Complete 通过 stdin 传入请求 JSON，并从 stdout 读取 {"content": ...}。
func (c *Client) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	payload := bridgeRequest{
		System:      req.System,
		Messages:    make([]bridgeMessage, 0, len(req.Messages)),
		JSONMode:    req.JSONMode,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Timestamp:   time.Now().Unix(),
	}
	for _, msg := range req.Messages {
		payload.Messages = append(payload.Messages, bridgeMessage{Role: string(msg.Role), Content: msg.Content})
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("序列化请求失败: %w", err)
	}

	command := exec.CommandContext(ctx, c.pythonExec, c.scriptPath)
	if c.workingDir != "" {
		command.Dir = c.workingDir
	}
	command.Stdin = bytes.NewReader(encoded)

	var stdout, stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, xerrors.Wrap(xerrors.CodeTimeout, ctx.Err(), "Python 脚本执行超时")
		}
		return nil, xerrors.Wrap(xerrors.CodeUpstreamFailure, err,
			fmt.Sprintf("执行 Python 脚本失败, stderr=%s", strings.TrimSpace(stderr.String())))
	}

	var resp bridgeResponse
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeUpstreamFailure, err, "解析 Python 输出失败", xerrors.WithRetryable(false))
	}
	if resp.Error != "" {
		return nil, xerrors.New(xerrors.CodeUpstreamFailure, resp.Error)
	}
	if strings.TrimSpace(resp.Content) == "" {
		return nil, xerrors.New(xerrors.CodeUpstreamFailure, "Python 脚本返回内容为空")
	}

	return &llm.Response{Content: resp.Content, Model: resp.Model}, nil
}

// ResolveScriptPath 根据工作目录推导脚本绝对路径。
func ResolveScriptPath(baseDir, script string) string {
	if script == "" {
		return ""
	}
	if filepath.IsAbs(script) {
		return script
	}
	if baseDir == "" {
		return script
	}
	return filepath.Join(baseDir, script)
}
