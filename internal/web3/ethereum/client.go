package ethereum

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/ethclient/simulated"
	gethrpc "github.com/ethereum/go-ethereum/rpc"

	xerrors "ChainPilot/internal/errors"
	"ChainPilot/internal/observability/metrics"
	"ChainPilot/internal/web3"
)

const transferGasLimit = 21000

// Config describes how to construct an EVM compatible client.
type Config struct {
	Name          string
	RPCURL        string
	WSURL         string
	BatchRPCURL   string
	ChainID       int64
	ExplorerTxURL string
	Notes         string
}

// Backend is the subset of go-ethereum client methods used by Client. Both
// *ethclient.Client and simulated.Client satisfy it.
type Backend interface {
	bind.ContractBackend
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*coretypes.Receipt, error)
}

// Client implements the web3.Client interface for EVM compatible chains.
type Client struct {
	name        string
	notes       string
	explorerURL string
	rpcClient   *gethrpc.Client
	batchClient *gethrpc.Client
	wsClient    *ethclient.Client
	backend     Backend
	eventClient logSubscriber
	commit      func()

	mu      sync.Mutex
	chainID *big.Int
	sendMu  sync.Mutex
}

// logSubscriber mirrors the subset of methods required for log subscriptions.
type logSubscriber interface {
	SubscribeFilterLogs(ctx context.Context, q gethcore.FilterQuery, ch chan<- coretypes.Log) (gethcore.Subscription, error)
}

// NewClient dials the configured RPC endpoints and returns a ready-to-use client.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	rpcURL := strings.TrimSpace(cfg.RPCURL)
	if rpcURL == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "未配置以太坊 RPC 地址")
	}

	rpcClient, err := gethrpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeChainFailure, err, "连接以太坊节点失败")
	}

	eth := ethclient.NewClient(rpcClient)

	batchClient := rpcClient
	if batchURL := strings.TrimSpace(cfg.BatchRPCURL); batchURL != "" && batchURL != rpcURL {
		batchClient, err = gethrpc.DialContext(ctx, batchURL)
		if err != nil {
			rpcClient.Close()
			return nil, xerrors.Wrap(xerrors.CodeChainFailure, err, "连接批量交易节点失败")
		}
	}

	client := &Client{
		name:        cfg.Name,
		notes:       cfg.Notes,
		explorerURL: cfg.ExplorerTxURL,
		rpcClient:   rpcClient,
		batchClient: batchClient,
		backend:     eth,
		eventClient: eth,
	}
	if cfg.ChainID > 0 {
		client.chainID = big.NewInt(cfg.ChainID)
	}
	if wsURL := strings.TrimSpace(cfg.WSURL); wsURL != "" {
		if wsRPC, wsErr := gethrpc.DialContext(ctx, wsURL); wsErr == nil {
			client.wsClient = ethclient.NewClient(wsRPC)
			client.eventClient = client.wsClient
		}
	}
	return client, nil
}

// NewSimulatedClient wraps a go-ethereum simulated backend. Every submitted
// transaction is mined immediately.
func NewSimulatedClient(name string, sim *simulated.Backend) *Client {
	backend := sim.Client()
	return &Client{
		name:        name,
		notes:       "simulated backend",
		backend:     backend,
		eventClient: backend,
		commit:      func() { sim.Commit() },
	}
}

// Name returns the registry name of the chain.
func (c *Client) Name() string {
	return c.name
}

// Close releases network connections held by the client.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.wsClient != nil {
		c.wsClient.Close()
		c.wsClient = nil
	}
	if c.batchClient != nil && c.batchClient != c.rpcClient {
		c.batchClient.Close()
	}
	if c.rpcClient != nil {
		c.rpcClient.Close()
	}
	c.rpcClient = nil
	c.batchClient = nil
}

// ChainID returns the configured chain id, querying the node once when unset.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.chainID != nil {
		return new(big.Int).Set(c.chainID), nil
	}
	id, err := c.backend.ChainID(ctx)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeChainFailure, err, "获取链 ID 失败")
	}
	c.chainID = id
	return new(big.Int).Set(id), nil
}

// FetchChainSnapshot gathers lightweight metadata from the chain.
func (c *Client) FetchChainSnapshot(ctx context.Context) (web3.ChainSnapshot, error) {
	chainID, err := c.ChainID(ctx)
	if err != nil {
		return web3.ChainSnapshot{}, err
	}
	blockNumber, err := c.backend.BlockNumber(ctx)
	if err != nil {
		return web3.ChainSnapshot{}, xerrors.Wrap(xerrors.CodeChainFailure, err, "获取最新区块高度失败")
	}
	return web3.ChainSnapshot{
		Name:        c.name,
		ChainID:     toHexBig(chainID),
		BlockNumber: fmt.Sprintf("0x%x", blockNumber),
		Notes:       c.notes,
	}, nil
}

// Balance returns the latest balance of account in wei.
func (c *Client) Balance(ctx context.Context, account common.Address) (*big.Int, error) {
	balance, err := c.backend.BalanceAt(ctx, account, nil)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeChainFailure, err, "查询余额失败")
	}
	return balance, nil
}

// Transfer signs and submits a legacy native-value transfer using the node's
// suggested gas price.
func (c *Client) Transfer(ctx context.Context, signer *web3.Signer, to common.Address, amount *big.Int) (result web3.TxResult, err error) {
	defer func() { metrics.ObserveChainTransaction(c.name, "transfer", err) }()

	if signer == nil {
		return web3.TxResult{}, xerrors.New(xerrors.CodeInitializationFailure, "未配置签名私钥")
	}
	if amount == nil || amount.Sign() < 0 {
		return web3.TxResult{}, xerrors.New(xerrors.CodeInvalidArgument, "转账金额非法")
	}
	chainID, err := c.ChainID(ctx)
	if err != nil {
		return web3.TxResult{}, err
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	from := signer.Address()
	nonce, err := c.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return web3.TxResult{}, xerrors.Wrap(xerrors.CodeChainFailure, err, "查询 nonce 失败")
	}
	gasPrice, err := c.backend.SuggestGasPrice(ctx)
	if err != nil {
		return web3.TxResult{}, xerrors.Wrap(xerrors.CodeChainFailure, err, "获取 gas 价格失败")
	}

	tx := coretypes.NewTx(&coretypes.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    amount,
		Gas:      transferGasLimit,
		GasPrice: gasPrice,
	})
	signed, err := signer.SignTx(tx, chainID)
	if err != nil {
		return web3.TxResult{}, xerrors.Wrap(xerrors.CodeChainFailure, err, "签名交易失败", xerrors.WithRetryable(false))
	}
	if err := c.backend.SendTransaction(ctx, signed); err != nil {
		return web3.TxResult{}, xerrors.Wrap(xerrors.CodeChainFailure, err, "发送交易失败")
	}
	c.mine()

	return web3.TxResult{
		Chain:       c.name,
		Hash:        signed.Hash(),
		From:        from,
		To:          to,
		Value:       new(big.Int).Set(amount),
		ExplorerURL: web3.ExplorerURL(c.explorerURL, signed.Hash()),
	}, nil
}

// DeployContract sends the contract creation transaction using the provided
// transact opts and bytecode.
func (c *Client) DeployContract(ctx context.Context, auth *bind.TransactOpts, abiJSON string, bytecode []byte, params ...any) (result web3.DeploymentResult, err error) {
	defer func() { metrics.ObserveChainTransaction(c.name, "deploy", err) }()

	if auth == nil {
		return web3.DeploymentResult{}, xerrors.New(xerrors.CodeInitializationFailure, "未提供交易签名器")
	}
	if len(bytecode) == 0 {
		return web3.DeploymentResult{}, xerrors.New(xerrors.CodeInvalidArgument, "合约字节码不能为空")
	}

	parsedABI, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return web3.DeploymentResult{}, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "解析 ABI 失败")
	}

	opts := *auth
	opts.Context = ctx

	c.sendMu.Lock()
	address, tx, _, err := bind.DeployContract(&opts, parsedABI, bytecode, c.backend, params...)
	if err == nil {
		c.mine()
	}
	c.sendMu.Unlock()
	if err != nil {
		return web3.DeploymentResult{}, xerrors.Wrap(xerrors.CodeChainFailure, err, "部署合约失败")
	}

	return web3.DeploymentResult{
		ContractAddress: address,
		Transaction:     tx,
		ExplorerURL:     web3.ExplorerURL(c.explorerURL, tx.Hash()),
	}, nil
}

// Transact invokes a state-changing contract method.
func (c *Client) Transact(ctx context.Context, auth *bind.TransactOpts, contract common.Address, abiJSON, method string, params ...any) (result web3.TxResult, err error) {
	defer func() { metrics.ObserveChainTransaction(c.name, method, err) }()

	if auth == nil {
		return web3.TxResult{}, xerrors.New(xerrors.CodeInitializationFailure, "未提供交易签名器")
	}
	parsedABI, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return web3.TxResult{}, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "解析 ABI 失败")
	}
	if _, ok := parsedABI.Methods[method]; !ok {
		return web3.TxResult{}, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("ABI 中不存在方法 %s", method))
	}

	opts := *auth
	opts.Context = ctx
	bound := bind.NewBoundContract(contract, parsedABI, c.backend, c.backend, c.backend)

	c.sendMu.Lock()
	tx, err := bound.Transact(&opts, method, params...)
	if err == nil {
		c.mine()
	}
	c.sendMu.Unlock()
	if err != nil {
		return web3.TxResult{}, xerrors.Wrap(xerrors.CodeChainFailure, err, fmt.Sprintf("调用合约方法 %s 失败", method))
	}

	return web3.TxResult{
		Chain:       c.name,
		Hash:        tx.Hash(),
		From:        opts.From,
		To:          contract,
		Value:       tx.Value(),
		ExplorerURL: web3.ExplorerURL(c.explorerURL, tx.Hash()),
	}, nil
}

// WaitMined blocks until the transaction is included and reports a reverted
// receipt as an error.
func (c *Client) WaitMined(ctx context.Context, hash common.Hash) (*coretypes.Receipt, error) {
	receipt, err := bind.WaitMinedHash(ctx, c.backend, hash)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeChainFailure, err, "等待交易上链失败")
	}
	if receipt.Status != coretypes.ReceiptStatusSuccessful {
		return receipt, xerrors.New(xerrors.CodeChainFailure, fmt.Sprintf("交易 %s 执行失败", hash.Hex()), xerrors.WithRetryable(false))
	}
	return receipt, nil
}

// SubscribeEvents attaches a log subscription to the chain.
func (c *Client) SubscribeEvents(ctx context.Context, query gethcore.FilterQuery) (*web3.EventSubscription, error) {
	if c.eventClient == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "当前客户端不支持事件订阅")
	}

	logs := make(chan coretypes.Log, 64)
	sub, err := c.eventClient.SubscribeFilterLogs(ctx, query, logs)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeChainFailure, err, "订阅事件失败")
	}
	return web3.NewEventSubscription(logs, sub), nil
}

// SendBatchTransactions broadcasts multiple signed transactions in a single
// RPC batch call when possible.
func (c *Client) SendBatchTransactions(ctx context.Context, txs []*coretypes.Transaction) ([]common.Hash, error) {
	if len(txs) == 0 {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "没有可发送的交易")
	}

	if c.batchClient == nil {
		hashes := make([]common.Hash, 0, len(txs))
		for _, tx := range txs {
			if err := c.backend.SendTransaction(ctx, tx); err != nil {
				return nil, xerrors.Wrap(xerrors.CodeChainFailure, err, "发送交易失败")
			}
			c.mine()
			hashes = append(hashes, tx.Hash())
		}
		return hashes, nil
	}

	hashes := make([]common.Hash, len(txs))
	elems := make([]gethrpc.BatchElem, len(txs))
	for i, tx := range txs {
		raw, err := tx.MarshalBinary()
		if err != nil {
			return nil, fmt.Errorf("序列化交易失败: %w", err)
		}
		elems[i] = gethrpc.BatchElem{
			Method: "eth_sendRawTransaction",
			Args:   []any{"0x" + hex.EncodeToString(raw)},
			Result: &hashes[i],
		}
	}

	if err := c.batchClient.BatchCallContext(ctx, elems); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeChainFailure, err, "批量发送交易失败")
	}
	var errs []error
	for i := range elems {
		if elems[i].Error != nil {
			errs = append(errs, fmt.Errorf("交易 %d 发送失败: %w", i, elems[i].Error))
		}
	}
	if len(errs) > 0 {
		return hashes, xerrors.Wrap(xerrors.CodeChainFailure, errors.Join(errs...), "部分交易发送失败")
	}
	return hashes, nil
}

func (c *Client) mine() {
	if c.commit != nil {
		c.commit()
	}
}

func toHexBig(n *big.Int) string {
	if n == nil {
		return "0x0"
	}
	return "0x" + n.Text(16)
}
