package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"ChainPilot/internal/agent"
	"ChainPilot/internal/api"
	"ChainPilot/internal/bridge"
	"ChainPilot/internal/config"
	"ChainPilot/internal/knowledge"
	"ChainPilot/internal/launchpad"
	"ChainPilot/internal/llm"
	"ChainPilot/internal/llm/anthropic"
	"ChainPilot/internal/llm/openai"
	"ChainPilot/internal/llm/pythonbridge"
	"ChainPilot/internal/observability/alerting"
	"ChainPilot/internal/observability/metrics"
	"ChainPilot/internal/relay"
	"ChainPilot/internal/storage/mysql"
	feedcache "ChainPilot/internal/storage/redis"
	"ChainPilot/internal/task"
	"ChainPilot/internal/web3/provider"
	"ChainPilot/pkg/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "启动 HTTP 服务与任务处理器",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func loadConfig() (*config.Config, error) {
	path := strings.TrimSpace(configPath)
	if path == "" {
		path = config.ResolvePath()
	}
	return config.Load(path)
}

func runServe(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: cfg.Logging.OutputPaths,
		Rotation: logger.RotationConfig{
			MaxSizeMB:  cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
			MaxAgeDays: cfg.Logging.MaxAgeDays,
		},
		Audit: logger.AuditConfig{
			Enabled:    cfg.Logging.Audit.Enabled,
			Path:       cfg.Logging.Audit.Path,
			MaxSizeMB:  cfg.Logging.Audit.MaxSizeMB,
			MaxBackups: cfg.Logging.Audit.MaxBackups,
			MaxAgeDays: cfg.Logging.Audit.MaxAgeDays,
		},
	}); err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	log := logger.Named("chainpilotd")

	if err := os.MkdirAll(cfg.Runtime.DataDir, 0o755); err != nil {
		return err
	}

	llmClient, err := newLLMClient(cfg.LLM, cfg.LLM.Model)
	if err != nil {
		return err
	}
	opts := []agent.Option{
		agent.WithTemperature(cfg.LLM.Temperature),
		agent.WithLLMTimeout(cfg.LLM.Timeout()),
		agent.WithKnowledgeProvider(knowledge.NewDefaultProvider()),
	}
	if model := strings.TrimSpace(cfg.LLM.IntentModel); model != "" && model != cfg.LLM.Model {
		intentClient, err := newLLMClient(cfg.LLM, model)
		if err != nil {
			return err
		}
		opts = append(opts, agent.WithIntentClient(intentClient))
	}

	conversations, closeConversations, err := mysql.NewConversationRepository(ctx, cfg.Storage.Conversations)
	if err != nil {
		return err
	}
	defer func() { _ = closeConversations() }()
	opts = append(opts, agent.WithConversationRepository(conversations))

	cache, err := feedcache.New(ctx, cfg.Storage.Redis, cfg.Social.CacheTTL())
	if err != nil {
		return err
	}
	defer cache.Close()

	deps := api.Dependencies{}
	var tokens launchpad.TokenService
	if base := strings.TrimSpace(cfg.Social.BaseURL); base != "" {
		social := relay.NewSocialClient(base, cfg.Social.Timeout())
		opts = append(opts, agent.WithFeed(social, cache, cfg.Social.Account))
		deps.Social = social
	} else {
		opts = append(opts, agent.WithFeed(nil, cache, cfg.Social.Account))
	}
	if base := strings.TrimSpace(cfg.Launchpad.TokenServiceURL); base != "" {
		tokens = relay.NewTokenServiceClient(base, cfg.Social.Timeout())
	}

	// 链不可用时仍然提供问答与分析，涉及链上操作的接口返回 503。
	var chains launchpad.Chains
	registry, err := provider.NewRegistry(ctx, cfg.Web3)
	if err != nil {
		log.Warn("chain registry unavailable, on-chain features disabled", "error", err)
	} else {
		defer registry.Close()
		chains = registry
		opts = append(opts,
			agent.WithChains(registry),
			agent.WithBridge(bridge.NewService(registry, cfg.Bridge)),
		)
	}

	if chains != nil || cfg.Launchpad.Mode == launchpad.ModeRelay {
		launcher, err := launchpad.NewService(cfg.Launchpad, chains, tokens)
		if err != nil {
			return err
		}
		deps.Launchpad = launcher
	}

	ag := agent.New(llmClient, opts...)
	deps.Agent = ag

	store, err := task.NewStore(ctx, cfg.Storage.TaskStore)
	if err != nil {
		return err
	}
	queue, err := task.NewQueue(ctx, cfg.Queue, cfg.Storage.Redis)
	if err != nil {
		_ = store.Close()
		return err
	}
	tasks := task.NewService(store, queue, cfg.Queue.MaxRetries)
	defer func() {
		if err := tasks.Close(); err != nil {
			log.Error("failed to close task service", "error", err)
		}
	}()
	deps.Tasks = tasks

	processorOpts := []task.ProcessorOption{task.WithWorkerCount(cfg.Queue.Workers)}
	if cfg.Alerting.Enabled {
		notifiers := []alerting.Notifier{&alerting.LogNotifier{}}
		if url := strings.TrimSpace(cfg.Alerting.WebhookURL); url != "" {
			notifiers = append(notifiers, &alerting.WebhookNotifier{
				URL:    url,
				Client: &http.Client{Timeout: cfg.Alerting.Timeout()},
			})
		}
		processorOpts = append(processorOpts, task.WithAlertDispatcher(alerting.NewFanout(notifiers...)))
	}
	processor := task.NewProcessor(task.NewAgentExecutor(ag), store, queue, queue, processorOpts...)
	server := api.NewServer(cfg.Server, deps)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return processor.Start(groupCtx)
	})
	group.Go(func() error {
		return server.Start(groupCtx)
	})
	if cfg.Metrics.Enabled && strings.TrimSpace(cfg.Metrics.Address) != "" {
		group.Go(func() error {
			return metrics.StartServer(groupCtx, cfg.Metrics.Address)
		})
	}

	log.Info("chainpilotd started", "address", cfg.Server.Address, "llm", cfg.LLM.Provider, "queue", cfg.Queue.Driver)
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("chainpilotd stopped")
	return nil
}

// newLLMClient 按 provider 创建客户端，并叠加指标与重试。
func newLLMClient(cfg config.LLMConfig, model string) (llm.Client, error) {
	var (
		client llm.Client
		err    error
	)
	switch cfg.Provider {
	case "openai":
		client, err = openai.NewClient(openai.Config{
			APIKey:  cfg.APIKey(),
			BaseURL: cfg.BaseURL,
			Model:   model,
			Timeout: cfg.Timeout(),
		})
	case "anthropic":
		client, err = anthropic.NewClient(anthropic.Config{
			APIKey:  cfg.APIKey(),
			BaseURL: cfg.BaseURL,
			Model:   model,
			Timeout: cfg.Timeout(),
		})
	case "python_bridge":
		script := pythonbridge.ResolveScriptPath(cfg.Python.WorkingDir, cfg.Python.ScriptPath)
		client, err = pythonbridge.NewClient(cfg.Python.PythonExecutable, script, cfg.Python.WorkingDir)
	default:
		return nil, fmt.Errorf("未知的大模型 provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return llm.NewRetrying(llm.Instrument(cfg.Provider, client), llm.RetryOptions{
		MaxRetries: uint64(cfg.MaxRetries),
	}), nil
}
