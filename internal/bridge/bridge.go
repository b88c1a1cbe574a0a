package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"ChainPilot/internal/config"
	xerrors "ChainPilot/internal/errors"
	"ChainPilot/internal/web3"
	"ChainPilot/pkg/logger"
)

// Chains 提供按名称解析链客户端以及共享签名身份的能力。
type Chains interface {
	Resolve(name string) (web3.Client, error)
	Signer() *web3.Signer
}

// Request 描述一次跨链请求，链名为空时使用配置的默认值。
type Request struct {
	Source      string `json:"source,omitempty"`
	Destination string `json:"destination,omitempty"`
	Amount      string `json:"amount" validate:"required"`
	Recipient   string `json:"recipient" validate:"required"`
}

// Leg 是跨链中的一笔链上交易。
type Leg struct {
	Chain       string `json:"chain"`
	TxHash      string `json:"txHash"`
	ExplorerURL string `json:"explorerUrl,omitempty"`
}

// Receipt 汇总锁定与释放两笔交易。
type Receipt struct {
	Amount    string `json:"amount"`
	Recipient string `json:"recipient"`
	Lock      Leg    `json:"lock"`
	Release   Leg    `json:"release"`
}

// Service 执行两段式跨链转账。
type Service struct {
	chains      Chains
	source      string
	destination string
	log         *slog.Logger
}

// NewService 创建跨链服务。
func NewService(chains Chains, cfg config.BridgeConfig) *Service {
	return &Service{
		chains:      chains,
		source:      strings.TrimSpace(cfg.SourceChain),
		destination: strings.TrimSpace(cfg.DestinationChain),
		log:         logger.Named("bridge"),
	}
}

// Bridge 先在源链完成锁定交易，再在目标链向接收方释放等额资产。
func (s *Service) Bridge(ctx context.Context, req Request) (*Receipt, error) {
	if s == nil || s.chains == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置跨链服务")
	}
	signer := s.chains.Signer()
	if signer == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置签名私钥，无法跨链")
	}

	recipient := strings.TrimSpace(req.Recipient)
	if !common.IsHexAddress(recipient) {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("接收地址非法: %q", req.Recipient))
	}
	amount, err := web3.ParseEther(req.Amount)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "跨链金额非法")
	}
	if amount.Sign() == 0 {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "跨链金额必须大于 0")
	}

	source, err := s.chains.Resolve(firstNonEmpty(req.Source, s.source))
	if err != nil {
		return nil, err
	}
	destination, err := s.chains.Resolve(firstNonEmpty(req.Destination, s.destination))
	if err != nil {
		return nil, err
	}
	if source.Name() == destination.Name() {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("源链与目标链不能相同: %s", source.Name()))
	}

	lock, err := source.Transfer(ctx, signer, signer.Address(), amount)
	if err != nil {
		return nil, err
	}
	s.log.Info("bridge lock submitted", "chain", source.Name(), "tx", lock.Hash.Hex(), "amount", req.Amount)

	release, err := destination.Transfer(ctx, signer, common.HexToAddress(recipient), amount)
	if err != nil {
		s.log.Error("bridge release failed after lock", "lock_tx", lock.Hash.Hex(), "error", err)
		return nil, xerrors.Wrap(xerrors.CodeChainFailure, err, "目标链释放失败",
			xerrors.WithMetadata("lock_tx", lock.Hash.Hex()),
			xerrors.WithMetadata("lock_chain", source.Name()),
		)
	}
	s.log.Info("bridge release submitted", "chain", destination.Name(), "tx", release.Hash.Hex(), "recipient", recipient)

	return &Receipt{
		Amount:    web3.FormatEther(amount),
		Recipient: common.HexToAddress(recipient).Hex(),
		Lock:      legOf(source.Name(), lock),
		Release:   legOf(destination.Name(), release),
	}, nil
}

func legOf(chain string, tx web3.TxResult) Leg {
	return Leg{Chain: chain, TxHash: tx.Hash.Hex(), ExplorerURL: tx.ExplorerURL}
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
