package launchpad

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"

	"ChainPilot/internal/config"
	xerrors "ChainPilot/internal/errors"
	"ChainPilot/internal/relay"
	"ChainPilot/internal/web3"
	"ChainPilot/pkg/logger"
)

// 部署模式。
const (
	ModeOnchain = "onchain"
	ModeRelay   = "relay"
)

// Chains 提供链客户端与签名身份。
type Chains interface {
	Resolve(name string) (web3.Client, error)
	Signer() *web3.Signer
}

// TokenService 是外部代币服务的抽象。
type TokenService interface {
	Deploy(ctx context.Context, req relay.TokenDeployRequest) (map[string]any, error)
	Transfer(ctx context.Context, req relay.TokenTransferRequest) (map[string]any, error)
}

// DeployRequest 描述代币部署参数，供应量以整币为单位。
type DeployRequest struct {
	Name          string      `json:"name" validate:"required"`
	Symbol        string      `json:"symbol" validate:"required"`
	InitialSupply json.Number `json:"initialSupply" validate:"required"`
	MaxSupply     json.Number `json:"maxSupply,omitempty"`
	Owner         string      `json:"owner,omitempty"`
}

// DeployResult 是部署结果，relay 模式下 Relay 保存外部服务的原始响应。
type DeployResult struct {
	Mode            string         `json:"mode"`
	Chain           string         `json:"chain,omitempty"`
	ContractAddress string         `json:"contractAddress,omitempty"`
	TxHash          string         `json:"txHash,omitempty"`
	ExplorerURL     string         `json:"explorerUrl,omitempty"`
	Confirmed       bool           `json:"confirmed"`
	Relay           map[string]any `json:"relay,omitempty"`
}

// MintRequest 描述铸币参数，数量以整币为单位。
type MintRequest struct {
	ContractAddress  string      `json:"contractAddress" validate:"required"`
	Recipient        string      `json:"recipient" validate:"required"`
	Amount           json.Number `json:"amount" validate:"required"`
	ContractCodeHash string      `json:"contractCodeHash,omitempty"`
}

// MintResult 是铸币结果。
type MintResult struct {
	Mode        string         `json:"mode"`
	Chain       string         `json:"chain,omitempty"`
	TxHash      string         `json:"txHash,omitempty"`
	ExplorerURL string         `json:"explorerUrl,omitempty"`
	Confirmed   bool           `json:"confirmed"`
	Relay       map[string]any `json:"relay,omitempty"`
}

// Options 控制服务行为。
type Options struct {
	Mode           string
	Chain          string
	Artifact       *web3.Artifact
	WaitReceipt    bool
	ReceiptTimeout time.Duration
	// GasLimit 为 0 时由节点估算。
	GasLimit uint64
}

// Service 负责代币部署与铸造。
type Service struct {
	opts   Options
	chains Chains
	tokens TokenService
	log    *slog.Logger
}

// NewService 根据配置创建服务，onchain 模式下会加载合约产物。
func NewService(cfg config.LaunchpadConfig, chains Chains, tokens TokenService) (*Service, error) {
	opts := Options{
		Mode:           cfg.Mode,
		Chain:          cfg.Chain,
		WaitReceipt:    cfg.WaitReceipt,
		ReceiptTimeout: cfg.ReceiptTimeout(),
	}
	if opts.Mode != ModeRelay && strings.TrimSpace(cfg.ArtifactPath) != "" {
		artifact, err := web3.LoadArtifact(cfg.ArtifactPath)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "加载代币合约产物失败")
		}
		opts.Artifact = &artifact
	}
	return New(opts, chains, tokens), nil
}

// New 使用显式参数创建服务。
func New(opts Options, chains Chains, tokens TokenService) *Service {
	if opts.Mode == "" {
		opts.Mode = ModeOnchain
	}
	if opts.ReceiptTimeout <= 0 {
		opts.ReceiptTimeout = 2 * time.Minute
	}
	return &Service{opts: opts, chains: chains, tokens: tokens, log: logger.Named("launchpad")}
}

// Mode 返回当前部署模式。
func (s *Service) Mode() string {
	return s.opts.Mode
}

// Deploy 部署新代币。
func (s *Service) Deploy(ctx context.Context, req DeployRequest) (*DeployResult, error) {
	name := strings.TrimSpace(req.Name)
	symbol := strings.TrimSpace(req.Symbol)
	if name == "" || symbol == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "代币名称和符号不能为空")
	}

	if s.opts.Mode == ModeRelay {
		return s.deployViaRelay(ctx, name, symbol, req.InitialSupply)
	}

	initial, err := tokenAmount("initialSupply", req.InitialSupply)
	if err != nil {
		return nil, err
	}
	maxSupply := initial
	if req.MaxSupply != "" {
		if maxSupply, err = tokenAmount("maxSupply", req.MaxSupply); err != nil {
			return nil, err
		}
	}
	if maxSupply.Cmp(initial) < 0 {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "maxSupply 不能小于 initialSupply")
	}

	client, auth, err := s.transactor(ctx)
	if err != nil {
		return nil, err
	}

	deployed, err := client.DeployContract(ctx, auth, s.opts.Artifact.ABI, s.opts.Artifact.Bytecode, name, symbol, initial, maxSupply)
	if err != nil {
		return nil, err
	}
	result := &DeployResult{
		Mode:            ModeOnchain,
		Chain:           client.Name(),
		ContractAddress: deployed.ContractAddress.Hex(),
		TxHash:          deployed.Transaction.Hash().Hex(),
		ExplorerURL:     deployed.ExplorerURL,
	}
	s.log.Info("token deployment submitted", "chain", result.Chain, "symbol", symbol, "contract", result.ContractAddress, "tx", result.TxHash)

	if s.opts.WaitReceipt {
		if err := s.waitMined(ctx, client, deployed.Transaction.Hash()); err != nil {
			return nil, err
		}
		result.Confirmed = true
	}
	return result, nil
}

// Mint 向接收方铸造代币。
func (s *Service) Mint(ctx context.Context, req MintRequest) (*MintResult, error) {
	if s.opts.Mode == ModeRelay {
		return s.mintViaRelay(ctx, req)
	}

	if !common.IsHexAddress(req.ContractAddress) {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("合约地址非法: %q", req.ContractAddress))
	}
	if !common.IsHexAddress(req.Recipient) {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("接收地址非法: %q", req.Recipient))
	}
	amount, err := tokenAmount("amount", req.Amount)
	if err != nil {
		return nil, err
	}

	client, auth, err := s.transactor(ctx)
	if err != nil {
		return nil, err
	}

	tx, err := client.Transact(ctx, auth, common.HexToAddress(req.ContractAddress), s.opts.Artifact.ABI, "mint", common.HexToAddress(req.Recipient), amount)
	if err != nil {
		return nil, err
	}
	result := &MintResult{
		Mode:        ModeOnchain,
		Chain:       client.Name(),
		TxHash:      tx.Hash.Hex(),
		ExplorerURL: tx.ExplorerURL,
	}
	s.log.Info("token mint submitted", "chain", result.Chain, "contract", req.ContractAddress, "tx", result.TxHash)

	if s.opts.WaitReceipt {
		if err := s.waitMined(ctx, client, tx.Hash); err != nil {
			return nil, err
		}
		result.Confirmed = true
	}
	return result, nil
}

func (s *Service) deployViaRelay(ctx context.Context, name, symbol string, initial json.Number) (*DeployResult, error) {
	if s.tokens == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置代币服务")
	}
	if _, err := tokenAmount("initialSupply", initial); err != nil {
		return nil, err
	}
	resp, err := s.tokens.Deploy(ctx, relay.TokenDeployRequest{Name: name, Symbol: symbol, InitialAmount: initial})
	if err != nil {
		return nil, err
	}
	return &DeployResult{Mode: ModeRelay, Relay: resp}, nil
}

func (s *Service) mintViaRelay(ctx context.Context, req MintRequest) (*MintResult, error) {
	if s.tokens == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置代币服务")
	}
	if strings.TrimSpace(req.ContractAddress) == "" || strings.TrimSpace(req.Recipient) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "合约地址和接收地址不能为空")
	}
	if _, err := tokenAmount("amount", req.Amount); err != nil {
		return nil, err
	}
	resp, err := s.tokens.Transfer(ctx, relay.TokenTransferRequest{
		ContractAddress:  req.ContractAddress,
		Recipient:        req.Recipient,
		Amount:           req.Amount,
		ContractCodeHash: req.ContractCodeHash,
	})
	if err != nil {
		return nil, err
	}
	return &MintResult{Mode: ModeRelay, Relay: resp}, nil
}

func (s *Service) transactor(ctx context.Context) (web3.Client, *bind.TransactOpts, error) {
	if s.opts.Artifact == nil {
		return nil, nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置代币合约产物 (launchpad.artifact_path)")
	}
	if s.chains == nil {
		return nil, nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置链客户端")
	}
	signer := s.chains.Signer()
	if signer == nil {
		return nil, nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置签名私钥")
	}
	client, err := s.chains.Resolve(s.opts.Chain)
	if err != nil {
		return nil, nil, err
	}
	chainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, nil, err
	}
	auth, err := signer.TransactOpts(ctx, chainID)
	if err != nil {
		return nil, nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "创建交易签名器失败")
	}
	auth.GasLimit = s.opts.GasLimit
	return client, auth, nil
}

func (s *Service) waitMined(ctx context.Context, client web3.Client, hash common.Hash) error {
	waitCtx, cancel := context.WithTimeout(ctx, s.opts.ReceiptTimeout)
	defer cancel()
	if _, err := client.WaitMined(waitCtx, hash); err != nil {
		if waitCtx.Err() != nil && ctx.Err() == nil {
			return xerrors.Wrap(xerrors.CodeTimeout, err, "等待交易回执超时", xerrors.WithMetadata("tx", hash.Hex()))
		}
		return err
	}
	return nil
}

// tokenAmount 将整币数量按 18 位精度换算为最小单位。
func tokenAmount(field string, value json.Number) (*big.Int, error) {
	raw := strings.TrimSpace(value.String())
	if raw == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("%s 不能为空", field))
	}
	amount, err := web3.ParseUnits(raw, web3.TokenDecimals)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, fmt.Sprintf("%s 非法", field))
	}
	if amount.Sign() == 0 {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("%s 必须大于 0", field))
	}
	return amount, nil
}
