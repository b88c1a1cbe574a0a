package redis

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"ChainPilot/internal/config"
	xerrors "ChainPilot/internal/errors"
	"ChainPilot/internal/relay"
)

const keyPrefix = "chainpilot:feed:"

// FeedCache 保存每个账号最近一次成功拉取的动态。
type FeedCache interface {
	Get(ctx context.Context, account string) ([]relay.Post, bool, error)
	Set(ctx context.Context, account string, posts []relay.Post) error
	Close() error
}

// New 根据 Redis 配置选择实现，未配置地址时退回进程内缓存。
func New(ctx context.Context, cfg config.RedisConfig, ttl time.Duration) (FeedCache, error) {
	if strings.TrimSpace(cfg.Address) == "" {
		return NewMemoryFeedCache(ttl), nil
	}
	return NewRedisFeedCache(ctx, cfg, ttl)
}

// RedisFeedCache 将动态以 JSON 形式写入 Redis 并设置过期时间。
type RedisFeedCache struct {
	client *goredis.Client
	ttl    time.Duration
}

// NewRedisFeedCache 创建 Redis 缓存并检查连通性。
func NewRedisFeedCache(ctx context.Context, cfg config.RedisConfig, ttl time.Duration) (*RedisFeedCache, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "连接 Redis 失败")
	}
	return &RedisFeedCache{client: client, ttl: ttl}, nil
}

// Get 读取缓存，键不存在时返回 false。
func (c *RedisFeedCache) Get(ctx context.Context, account string) ([]relay.Post, bool, error) {
	raw, err := c.client.Get(ctx, keyPrefix+account).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取动态缓存失败")
	}
	var posts []relay.Post
	if err := json.Unmarshal(raw, &posts); err != nil {
		_ = c.client.Del(ctx, keyPrefix+account).Err()
		return nil, false, nil
	}
	return posts, true, nil
}

// Set 写入缓存。
func (c *RedisFeedCache) Set(ctx context.Context, account string, posts []relay.Post) error {
	encoded, err := json.Marshal(posts)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "序列化动态失败")
	}
	if err := c.client.Set(ctx, keyPrefix+account, encoded, c.ttl).Err(); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入动态缓存失败")
	}
	return nil
}

// Close 关闭 Redis 连接。
func (c *RedisFeedCache) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

type memoryEntry struct {
	posts     []relay.Post
	expiresAt time.Time
}

// MemoryFeedCache 是进程内实现，过期条目在读取时淘汰。
type MemoryFeedCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]memoryEntry
}

// NewMemoryFeedCache 创建进程内缓存，ttl 为零表示永不过期。
func NewMemoryFeedCache(ttl time.Duration) *MemoryFeedCache {
	return &MemoryFeedCache{ttl: ttl, now: time.Now, entries: make(map[string]memoryEntry)}
}

// Get 返回未过期的缓存副本。
func (c *MemoryFeedCache) Get(_ context.Context, account string) ([]relay.Post, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[account]
	if !ok {
		return nil, false, nil
	}
	if !entry.expiresAt.IsZero() && !c.now().Before(entry.expiresAt) {
		delete(c.entries, account)
		return nil, false, nil
	}
	return append([]relay.Post(nil), entry.posts...), true, nil
}

// Set 覆盖账号的缓存。
func (c *MemoryFeedCache) Set(_ context.Context, account string, posts []relay.Post) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := memoryEntry{posts: append([]relay.Post(nil), posts...)}
	if c.ttl > 0 {
		entry.expiresAt = c.now().Add(c.ttl)
	}
	c.entries[account] = entry
	return nil
}

// Close 对进程内缓存无操作。
func (c *MemoryFeedCache) Close() error { return nil }
