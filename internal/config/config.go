package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// EnvConfigPath 指定配置文件路径的环境变量。
const EnvConfigPath = "CHAINPILOT_CONFIG"

// DefaultPath 是未设置环境变量时使用的配置文件。
const DefaultPath = "configs/chainpilot.json"

var validate = validator.New()

// Config 描述了 ChainPilot 在启动阶段需要加载的核心配置。
type Config struct {
	Server    ServerConfig    `json:"server"`
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Queue     QueueConfig     `json:"queue"`
	LLM       LLMConfig       `json:"llm"`
	Web3      Web3Config      `json:"web3"`
	Bridge    BridgeConfig    `json:"bridge"`
	Launchpad LaunchpadConfig `json:"launchpad"`
	Social    SocialConfig    `json:"social"`
	Metrics   MetricsConfig   `json:"metrics"`
	Alerting  AlertingConfig  `json:"alerting"`
	Runtime   RuntimeConfig   `json:"runtime"`
}

// ServerConfig 控制 API 服务的监听地址等参数。
type ServerConfig struct {
	Address             string   `json:"address" validate:"required"`
	ReadTimeoutSeconds  int      `json:"read_timeout_seconds" validate:"gte=0"`
	WriteTimeoutSeconds int      `json:"write_timeout_seconds" validate:"gte=0"`
	CORSOrigins         []string `json:"cors_origins"`
}

// LoggingConfig 对应 pkg/logger 的配置。
type LoggingConfig struct {
	Level       string      `json:"level" validate:"omitempty,oneof=debug info warn warning error"`
	Format      string      `json:"format" validate:"omitempty,oneof=json text"`
	OutputPaths []string    `json:"output_paths"`
	MaxSizeMB   int         `json:"max_size_mb"`
	MaxBackups  int         `json:"max_backups"`
	MaxAgeDays  int         `json:"max_age_days"`
	Audit       AuditConfig `json:"audit"`
}

// AuditConfig 控制审计日志。
type AuditConfig struct {
	Enabled    bool   `json:"enabled"`
	Path       string `json:"path" validate:"required_if=Enabled true"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
}

// StorageConfig 统一描述 MySQL、Redis 等后端的连接信息。
type StorageConfig struct {
	Conversations ConversationStoreConfig `json:"conversations"`
	TaskStore     TaskStoreConfig         `json:"task_store"`
	Redis         RedisConfig             `json:"redis"`
}

// ConversationStoreConfig 描述对话记录的存储方式。
type ConversationStoreConfig struct {
	Driver     string `json:"driver" validate:"oneof=file mysql"`
	DSN        string `json:"dsn" validate:"required_if=Driver mysql"`
	Path       string `json:"path"`
	MaxRecords int    `json:"max_records" validate:"gte=0"`
}

// TaskStoreConfig 描述异步任务的持久化方式。
type TaskStoreConfig struct {
	Driver string `json:"driver" validate:"oneof=memory mysql"`
	DSN    string `json:"dsn" validate:"required_if=Driver mysql"`
}

// RedisConfig 描述 Redis 连接，Address 为空时不启用。
type RedisConfig struct {
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// QueueConfig 描述任务队列与 worker 数量。
type QueueConfig struct {
	Driver      string `json:"driver" validate:"oneof=memory redis rabbitmq"`
	Buffer      int    `json:"buffer" validate:"gte=0"`
	RedisKey    string `json:"redis_key"`
	RabbitMQURL string `json:"rabbitmq_url" validate:"required_if=Driver rabbitmq"`
	RabbitQueue string `json:"rabbitmq_queue"`
	Workers     int    `json:"workers" validate:"gte=0"`
	MaxRetries  int    `json:"max_retries" validate:"gte=0"`
}

// LLMConfig 用于配置大模型推理的调用方式。
type LLMConfig struct {
	Provider       string             `json:"provider" validate:"oneof=openai anthropic python_bridge"`
	Model          string             `json:"model"`
	IntentModel    string             `json:"intent_model"`
	BaseURL        string             `json:"base_url"`
	APIKeyEnv      string             `json:"api_key_env"`
	TimeoutSeconds int                `json:"timeout_seconds" validate:"gte=0"`
	MaxRetries     int                `json:"max_retries" validate:"gte=0"`
	Temperature    float32            `json:"temperature" validate:"gte=0,lte=2"`
	Python         PythonBridgeConfig `json:"python_bridge"`
}

// PythonBridgeConfig 描述通过 Python 脚本完成推理时所需的信息。
type PythonBridgeConfig struct {
	PythonExecutable string `json:"python_executable"`
	ScriptPath       string `json:"script_path"`
	WorkingDir       string `json:"working_dir"`
}

// Web3Config 包含访问区块链节点所需的信息。
type Web3Config struct {
	RPCURL        string `json:"rpc_url"`
	ChainConfig   string `json:"chain_config"`
	DefaultChain  string `json:"default_chain"`
	PrivateKeyEnv string `json:"private_key_env"`
}

// BridgeConfig 描述跨链桥的默认源链与目标链。
type BridgeConfig struct {
	SourceChain      string `json:"source_chain"`
	DestinationChain string `json:"destination_chain"`
}

// LaunchpadConfig 描述代币发行方式。
type LaunchpadConfig struct {
	Mode               string `json:"mode" validate:"oneof=onchain relay"`
	Chain              string `json:"chain"`
	ArtifactPath       string `json:"artifact_path"`
	TokenServiceURL    string `json:"token_service_url" validate:"required_if=Mode relay"`
	WaitReceipt        bool   `json:"wait_receipt"`
	ReceiptTimeoutSecs int    `json:"receipt_timeout_seconds" validate:"gte=0"`
}

// SocialConfig 描述社交动态来源。
type SocialConfig struct {
	BaseURL         string `json:"base_url" validate:"omitempty,url"`
	Account         string `json:"account"`
	CacheTTLSeconds int    `json:"cache_ttl_seconds" validate:"gte=0"`
	TimeoutSeconds  int    `json:"timeout_seconds" validate:"gte=0"`
}

// MetricsConfig 控制 Prometheus 指标暴露。Address 为空时挂载到 API 服务。
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Address string `json:"address"`
}

// AlertingConfig 控制任务最终失败时的告警。WebhookURL 为空时只写审计日志。
type AlertingConfig struct {
	Enabled        bool   `json:"enabled"`
	WebhookURL     string `json:"webhook_url" validate:"omitempty,url"`
	TimeoutSeconds int    `json:"timeout_seconds" validate:"gte=0"`
}

// RuntimeConfig 用于放置运行时的通用参数。
type RuntimeConfig struct {
	DataDir string `json:"data_dir"`
}

// ResolvePath 返回环境变量指定的配置路径或默认路径。
func ResolvePath() string {
	if path := strings.TrimSpace(os.Getenv(EnvConfigPath)); path != "" {
		return path
	}
	return DefaultPath
}

// Load 负责解析指定路径的 JSON 配置文件。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("配置文件路径为空")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开配置文件失败: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.applyDefaults(filepath.Dir(path))

	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("配置校验失败: %w", err)
	}
	return &cfg, nil
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":5001"
	}
	if c.Server.ReadTimeoutSeconds == 0 {
		c.Server.ReadTimeoutSeconds = 30
	}
	if c.Server.WriteTimeoutSeconds == 0 {
		c.Server.WriteTimeoutSeconds = 120
	}
	if len(c.Server.CORSOrigins) == 0 {
		c.Server.CORSOrigins = []string{"*"}
	}

	if c.Runtime.DataDir == "" {
		c.Runtime.DataDir = filepath.Join(baseDir, "data")
	} else {
		c.Runtime.DataDir = resolve(baseDir, c.Runtime.DataDir)
	}

	if c.Logging.Audit.Path != "" {
		c.Logging.Audit.Path = resolve(baseDir, c.Logging.Audit.Path)
	}

	if c.Storage.Conversations.Driver == "" {
		c.Storage.Conversations.Driver = "file"
	}
	if c.Storage.Conversations.Path == "" {
		c.Storage.Conversations.Path = filepath.Join(c.Runtime.DataDir, "conversations.log")
	} else {
		c.Storage.Conversations.Path = resolve(baseDir, c.Storage.Conversations.Path)
	}
	if c.Storage.TaskStore.Driver == "" {
		c.Storage.TaskStore.Driver = "memory"
	}

	if c.Queue.Driver == "" {
		c.Queue.Driver = "memory"
	}
	if c.Queue.Buffer == 0 {
		c.Queue.Buffer = 128
	}
	if c.Queue.RedisKey == "" {
		c.Queue.RedisKey = "chainpilot:tasks"
	}
	if c.Queue.RabbitQueue == "" {
		c.Queue.RabbitQueue = "chainpilot.tasks"
	}
	if c.Queue.Workers == 0 {
		c.Queue.Workers = 4
	}
	if c.Queue.MaxRetries == 0 {
		c.Queue.MaxRetries = 3
	}

	if c.LLM.Provider == "" {
		c.LLM.Provider = "openai"
	}
	if c.LLM.APIKeyEnv == "" {
		switch c.LLM.Provider {
		case "anthropic":
			c.LLM.APIKeyEnv = "ANTHROPIC_API_KEY"
		default:
			c.LLM.APIKeyEnv = "OPENAI_API_KEY"
		}
	}
	if c.LLM.TimeoutSeconds == 0 {
		c.LLM.TimeoutSeconds = 60
	}
	if c.LLM.MaxRetries == 0 {
		c.LLM.MaxRetries = 2
	}
	if c.LLM.Python.PythonExecutable == "" {
		c.LLM.Python.PythonExecutable = "python3"
	}
	if c.LLM.Python.WorkingDir == "" {
		c.LLM.Python.WorkingDir = baseDir
	} else {
		c.LLM.Python.WorkingDir = resolve(baseDir, c.LLM.Python.WorkingDir)
	}

	if c.Web3.ChainConfig != "" {
		c.Web3.ChainConfig = resolve(baseDir, c.Web3.ChainConfig)
	}
	if c.Web3.PrivateKeyEnv == "" {
		c.Web3.PrivateKeyEnv = "PRIVATE_KEY"
	}

	if c.Launchpad.Mode == "" {
		c.Launchpad.Mode = "onchain"
	}
	if c.Launchpad.ArtifactPath != "" {
		c.Launchpad.ArtifactPath = resolve(baseDir, c.Launchpad.ArtifactPath)
	}
	if c.Launchpad.ReceiptTimeoutSecs == 0 {
		c.Launchpad.ReceiptTimeoutSecs = 120
	}

	if c.Social.Account == "" {
		c.Social.Account = "aixbt_agent"
	}
	if c.Social.CacheTTLSeconds == 0 {
		c.Social.CacheTTLSeconds = 900
	}
	if c.Social.TimeoutSeconds == 0 {
		c.Social.TimeoutSeconds = 15
	}

	if c.Alerting.TimeoutSeconds == 0 {
		c.Alerting.TimeoutSeconds = 10
	}
}

func resolve(baseDir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

// APIKey 从 api_key_env 指定的环境变量读取大模型密钥。
func (c LLMConfig) APIKey() string {
	return strings.TrimSpace(os.Getenv(c.APIKeyEnv))
}

// Timeout 返回大模型调用超时。
func (c LLMConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// PrivateKey 从 private_key_env 指定的环境变量读取签名私钥，可能为空。
func (c Web3Config) PrivateKey() string {
	return strings.TrimSpace(os.Getenv(c.PrivateKeyEnv))
}

// CacheTTL 返回社交动态缓存时长。
func (c SocialConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// Timeout 返回社交服务请求超时。
func (c SocialConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ReceiptTimeout 返回等待交易回执的最长时间。
func (c LaunchpadConfig) ReceiptTimeout() time.Duration {
	return time.Duration(c.ReceiptTimeoutSecs) * time.Second
}

// Timeout 返回告警 webhook 的请求超时。
func (c AlertingConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}
