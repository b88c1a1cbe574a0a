package migrations

import "embed"

// Files 暴露会话记录与任务状态表的 SQL 迁移文件。
//
//go:embed *.sql
var Files embed.FS
