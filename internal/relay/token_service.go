package relay

import (
	"context"
	"encoding/json"
	"time"
)

// TokenDeployRequest 是代币服务 /deploy 的请求体。
type TokenDeployRequest struct {
	Name          string      `json:"name"`
	Symbol        string      `json:"symbol"`
	InitialAmount json.Number `json:"initialAmount"`
}

// TokenTransferRequest 是代币服务 /transfer 的请求体。
type TokenTransferRequest struct {
	ContractAddress  string      `json:"contractAddress"`
	Recipient        string      `json:"recipient"`
	Amount           json.Number `json:"amount"`
	ContractCodeHash string      `json:"contractCodeHash"`
}

// TokenServiceClient 调用外部代币服务完成部署与转账。
type TokenServiceClient struct {
	http httpClient
}

// NewTokenServiceClient 创建代币服务客户端。
func NewTokenServiceClient(baseURL string, timeout time.Duration) *TokenServiceClient {
	return &TokenServiceClient{http: newHTTPClient("token service", baseURL, timeout)}
}

// Deploy 部署新代币并原样返回服务响应。
func (c *TokenServiceClient) Deploy(ctx context.Context, req TokenDeployRequest) (map[string]any, error) {
	resp := map[string]any{}
	if err := c.http.postJSON(ctx, "/deploy", req, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// Transfer 铸造或转移代币并原样返回服务响应。
func (c *TokenServiceClient) Transfer(ctx context.Context, req TokenTransferRequest) (map[string]any, error) {
	resp := map[string]any{}
	if err := c.http.postJSON(ctx, "/transfer", req, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}
