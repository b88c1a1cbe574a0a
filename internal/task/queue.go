package task

import (
	"context"
	"strings"

	"ChainPilot/internal/config"
	xerrors "ChainPilot/internal/errors"
	"ChainPilot/internal/storage/mysql"
)

// Handler 处理来自消息队列的任务 ID。
type Handler func(ctx context.Context, taskID string) error

// Producer 负责向队列投递任务。
type Producer interface {
	Publish(ctx context.Context, taskID string) error
	Close() error
}

// Consumer 负责从队列中消费任务。
type Consumer interface {
	Consume(ctx context.Context, workerCount int, handler Handler) error
	Close() error
}

// Queue 同时具备生产者与消费者能力。
type Queue interface {
	Producer
	Consumer
}

// NewQueue 按配置选择队列实现。Redis 队列复用存储配置中的 Redis 连接信息。
func NewQueue(ctx context.Context, cfg config.QueueConfig, redisCfg config.RedisConfig) (Queue, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "memory":
		return NewMemoryQueue(cfg.Buffer), nil
	case "redis":
		return NewRedisQueue(ctx, RedisQueueConfig{
			Address:  redisCfg.Address,
			Password: redisCfg.Password,
			DB:       redisCfg.DB,
			Key:      cfg.RedisKey,
		})
	case "rabbitmq":
		return NewRabbitMQQueue(RabbitMQConfig{
			URL:      cfg.RabbitMQURL,
			Queue:    cfg.RabbitQueue,
			Prefetch: cfg.Workers,
			Durable:  true,
		})
	default:
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "未知的队列驱动: "+cfg.Driver)
	}
}

// NewStore 按配置选择任务存储。
func NewStore(ctx context.Context, cfg config.TaskStoreConfig) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "memory":
		return NewMemoryStore(), nil
	case "mysql":
		return NewMySQLStore(ctx, mysql.Config{DSN: cfg.DSN})
	default:
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "未知的任务存储驱动: "+cfg.Driver)
	}
}
