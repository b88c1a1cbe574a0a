package provider

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"ChainPilot/internal/config"
	xerrors "ChainPilot/internal/errors"
	"ChainPilot/internal/web3"
	"ChainPilot/internal/web3/ethereum"
	"ChainPilot/pkg/logger"
)

// Registry manages a set of chain clients keyed by human readable names and
// the signing identity shared by all of them.
type Registry struct {
	defaultChain string
	clients      map[string]web3.Client
	signer       *web3.Signer
}

// NewRegistry loads chain definitions and instantiates concrete clients.
func NewRegistry(ctx context.Context, cfg config.Web3Config) (*Registry, error) {
	defs, err := web3.LoadChainDefinitions(cfg.ChainConfig)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "加载链配置失败")
	}

	clients := make(map[string]web3.Client)
	for name, chain := range defs.Chains {
		chainType := strings.ToLower(strings.TrimSpace(chain.Type))
		if chainType == "" {
			chainType = "evm"
		}
		switch chainType {
		case "evm":
			client, err := ethereum.NewClient(ctx, ethereum.Config{
				Name:          name,
				RPCURL:        chain.RPCURL,
				WSURL:         chain.WSURL,
				BatchRPCURL:   chain.BatchRPCURL,
				ChainID:       chain.ChainID,
				ExplorerTxURL: chain.ExplorerTxURL,
				Notes:         chain.Description,
			})
			if err != nil {
				closeAll(clients)
				return nil, fmt.Errorf("初始化链 %s 失败: %w", name, err)
			}
			clients[name] = client
		default:
			closeAll(clients)
			return nil, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("链 %s 使用了不支持的类型 %s", name, chain.Type))
		}
	}

	if len(clients) == 0 && strings.TrimSpace(cfg.RPCURL) != "" {
		client, err := ethereum.NewClient(ctx, ethereum.Config{Name: "default", RPCURL: cfg.RPCURL})
		if err != nil {
			return nil, err
		}
		clients["default"] = client
		if cfg.DefaultChain == "" {
			cfg.DefaultChain = "default"
		}
	}

	var signer *web3.Signer
	if key := cfg.PrivateKey(); key != "" {
		signer, err = web3.ParseSigner(key)
		if err != nil {
			closeAll(clients)
			return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "加载签名私钥失败")
		}
	} else {
		logger.Named("web3").Warn("signing key not configured, transfers and deployments are disabled", "env", cfg.PrivateKeyEnv)
	}

	return New(cfg.DefaultChain, clients, signer)
}

// New assembles a registry from pre-built clients.
func New(defaultChain string, clients map[string]web3.Client, signer *web3.Signer) (*Registry, error) {
	if len(clients) == 0 {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置任何链的 RPC 端点")
	}
	if defaultChain == "" {
		names := make([]string, 0, len(clients))
		for name := range clients {
			names = append(names, name)
		}
		sort.Strings(names)
		defaultChain = names[0]
	}
	if _, ok := clients[defaultChain]; !ok {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("默认链 %s 未在配置中找到", defaultChain))
	}
	return &Registry{defaultChain: defaultChain, clients: clients, signer: signer}, nil
}

// DefaultClient returns the client configured as default chain.
func (r *Registry) DefaultClient() (web3.Client, error) {
	return r.Resolve("")
}

// Resolve returns the named client, or the default chain when name is empty.
func (r *Registry) Resolve(name string) (web3.Client, error) {
	if r == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未初始化的链客户端注册表")
	}
	if name == "" {
		name = r.defaultChain
	}
	client, ok := r.clients[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		client, ok = r.clients[name]
	}
	if !ok {
		return nil, xerrors.New(xerrors.CodeNotFound, fmt.Sprintf("链 %s 未在注册表中", name))
	}
	return client, nil
}

// Client returns the chain client identified by name.
func (r *Registry) Client(name string) (web3.Client, bool) {
	if r == nil {
		return nil, false
	}
	client, ok := r.clients[name]
	return client, ok
}

// Signer returns the shared signing identity, or nil when none is configured.
func (r *Registry) Signer() *web3.Signer {
	if r == nil {
		return nil
	}
	return r.signer
}

// DefaultChain returns the name of the default chain.
func (r *Registry) DefaultChain() string {
	if r == nil {
		return ""
	}
	return r.defaultChain
}

// Close releases all clients managed by the registry.
func (r *Registry) Close() {
	if r == nil {
		return
	}
	closeAll(r.clients)
}

// Chains returns the list of registered chain names.
func (r *Registry) Chains() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.clients))
	for name := range r.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func closeAll(clients map[string]web3.Client) {
	for name, client := range clients {
		if client != nil {
			client.Close()
		}
		delete(clients, name)
	}
}
