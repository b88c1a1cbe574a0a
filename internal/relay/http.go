package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	xerrors "ChainPilot/internal/errors"
)

const defaultTimeout = 30 * time.Second

type httpClient struct {
	baseURL    string
	httpClient *http.Client
	service    string
}

func newHTTPClient(service, baseURL string, timeout time.Duration) httpClient {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return httpClient{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: &http.Client{Timeout: timeout},
		service:    service,
	}
}

func (c httpClient) postJSON(ctx context.Context, path string, payload, out any) error {
	if c.baseURL == "" {
		return xerrors.New(xerrors.CodeInitializationFailure, fmt.Sprintf("%s 地址未配置", c.service))
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("序列化 %s 请求失败: %w", c.service, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("构建 %s 请求失败: %w", c.service, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return xerrors.Wrap(xerrors.CodeTimeout, err, fmt.Sprintf("请求 %s 超时", c.service))
		}
		return xerrors.Wrap(xerrors.CodeUpstreamFailure, err, fmt.Sprintf("请求 %s 失败", c.service))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		message := fmt.Sprintf("%s 返回错误状态 %d: %s", c.service, resp.StatusCode, strings.TrimSpace(string(detail)))
		retryable := resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests
		return xerrors.New(xerrors.CodeUpstreamFailure, message,
			xerrors.WithRetryable(retryable),
			xerrors.WithMetadata("status", fmt.Sprint(resp.StatusCode)))
	}

	if out == nil {
		return nil
	}
	decoder := json.NewDecoder(resp.Body)
	decoder.UseNumber()
	if err := decoder.Decode(out); err != nil {
		return xerrors.Wrap(xerrors.CodeUpstreamFailure, err, fmt.Sprintf("解析 %s 响应失败", c.service), xerrors.WithRetryable(false))
	}
	return nil
}
