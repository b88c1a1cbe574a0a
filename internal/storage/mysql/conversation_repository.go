package mysql

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"ChainPilot/internal/config"
	xerrors "ChainPilot/internal/errors"
)

// DefaultMaxRecords 是文件仓库在内存中保留的最近记录数。
const DefaultMaxRecords = 512

// ConversationRecord 表示一次对话请求及其模型输出的落库结构。
type ConversationRecord struct {
	ID        int64  `json:"id,omitempty"`
	Endpoint  string `json:"endpoint"`
	Prompt    string `json:"prompt"`
	Intent    string `json:"intent,omitempty"`
	Reply     string `json:"reply"`
	Result    string `json:"result,omitempty"`
	Strategy  string `json:"strategy,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`
	CreatedAt int64  `json:"created_at"`
}

// ConversationRepository 抽象对话记录的持久化接口。
type ConversationRepository interface {
	Save(ctx context.Context, record ConversationRecord) error
	ListLatest(ctx context.Context, limit int) ([]ConversationRecord, error)
}

// NewConversationRepository 根据配置选择文件或 MySQL 实现。
func NewConversationRepository(ctx context.Context, cfg config.ConversationStoreConfig) (ConversationRepository, func() error, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "file":
		repo, err := NewFileConversationRepository(cfg.Path, cfg.MaxRecords)
		if err != nil {
			return nil, nil, err
		}
		return repo, func() error { return nil }, nil
	case "mysql":
		repo, err := NewSQLConversationRepository(ctx, Config{DSN: cfg.DSN})
		if err != nil {
			return nil, nil, err
		}
		return repo, repo.Close, nil
	default:
		return nil, nil, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("不支持的会话存储驱动: %s", cfg.Driver))
	}
}

// FileConversationRepository 以 JSON Lines 追加写文件，并在内存中保留最近的记录。
type FileConversationRepository struct {
	mu         sync.RWMutex
	path       string
	maxRecords int
	nextID     int64
	records    []ConversationRecord
}

// NewFileConversationRepository 创建文件仓库并从已有日志恢复。
func NewFileConversationRepository(path string, maxRecords int) (*FileConversationRepository, error) {
	if strings.TrimSpace(path) == "" {
		path = filepath.Join("data", "conversations.log")
	}
	if maxRecords <= 0 {
		maxRecords = DefaultMaxRecords
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "创建数据目录失败")
	}
	repo := &FileConversationRepository{path: path, maxRecords: maxRecords}
	if err := repo.loadFromDisk(); err != nil {
		return nil, err
	}
	return repo, nil
}

// Save 以追加写的方式记录对话。
func (f *FileConversationRepository) Save(_ context.Context, record ConversationRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextID++
	record.ID = f.nextID

	encoded, err := json.Marshal(record)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "序列化会话记录失败")
	}

	file, err := os.OpenFile(f.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "打开会话日志失败")
	}
	defer file.Close()

	if _, err := file.Write(append(encoded, '\n')); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入会话日志失败")
	}

	f.records = append([]ConversationRecord{record}, f.records...)
	if len(f.records) > f.maxRecords {
		f.records = f.records[:f.maxRecords]
	}
	return nil
}

// ListLatest 返回最近的记录，按写入时间倒序。
func (f *FileConversationRepository) ListLatest(_ context.Context, limit int) ([]ConversationRecord, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if limit <= 0 || limit > len(f.records) {
		limit = len(f.records)
	}
	results := make([]ConversationRecord, limit)
	copy(results, f.records[:limit])
	return results, nil
}

func (f *FileConversationRepository) loadFromDisk() error {
	file, err := os.OpenFile(f.path, os.O_RDONLY|os.O_CREATE, 0o644)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取会话日志失败")
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	var restored []ConversationRecord
	for scanner.Scan() {
		var record ConversationRecord
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			continue
		}
		if record.ID > f.nextID {
			f.nextID = record.ID
		}
		restored = append([]ConversationRecord{record}, restored...)
	}
	if err := scanner.Err(); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析会话日志失败")
	}

	if len(restored) > f.maxRecords {
		restored = restored[:f.maxRecords]
	}
	f.records = restored
	return nil
}

// SQLConversationRepository 使用 MySQL 存储对话记录。
type SQLConversationRepository struct {
	db *sql.DB
}

// NewSQLConversationRepository 创建连接池并执行迁移。
func NewSQLConversationRepository(ctx context.Context, cfg Config) (*SQLConversationRepository, error) {
	db, err := OpenAndMigrate(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &SQLConversationRepository{db: db}, nil
}

const insertConversationSQL = `INSERT INTO conversations
    (endpoint, prompt, intent, reply, result, strategy, error_code, created_at)
    VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

const listConversationsSQL = `SELECT id, endpoint, prompt, intent, reply, result, strategy, error_code, created_at
    FROM conversations ORDER BY id DESC LIMIT ?`

// Save 将对话记录写入 MySQL。
func (s *SQLConversationRepository) Save(ctx context.Context, record ConversationRecord) error {
	if _, err := s.db.ExecContext(ctx, insertConversationSQL,
		record.Endpoint,
		record.Prompt,
		record.Intent,
		record.Reply,
		record.Result,
		record.Strategy,
		record.ErrorCode,
		record.CreatedAt,
	); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入会话记录失败")
	}
	return nil
}

// ListLatest 查询最近的若干条对话记录。
func (s *SQLConversationRepository) ListLatest(ctx context.Context, limit int) ([]ConversationRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, listConversationsSQL, limit)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询会话记录失败")
	}
	defer rows.Close()

	var records []ConversationRecord
	for rows.Next() {
		var (
			record ConversationRecord
			result sql.NullString
		)
		if err := rows.Scan(&record.ID, &record.Endpoint, &record.Prompt, &record.Intent, &record.Reply, &result, &record.Strategy, &record.ErrorCode, &record.CreatedAt); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析会话记录失败")
		}
		record.Result = result.String
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历会话记录失败")
	}
	return records, nil
}

// Close 关闭底层数据库连接。
func (s *SQLConversationRepository) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
