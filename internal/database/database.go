package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/iabetor/pipervoice/internal/logger"
	_ "modernc.org/sqlite"
)

// DB 是合成历史使用的 SQLite 数据库连接。
type DB struct {
	*sql.DB
	path string
}

// DefaultPath 返回默认的数据库路径 ~/.pipervoice/history.db，取不到主目录时使用当前目录。
func DefaultPath() string {
	home, _ := os.UserHomeDir()
	if home == "" {
		return filepath.Join(".pipervoice-data", "history.db")
	}
	return filepath.Join(home, ".pipervoice", "history.db")
}

// Open 打开或创建数据库。
// dbPath: 数据库文件路径，如果为空则使用 DefaultPath
func Open(dbPath string) (*DB, error) {
	if dbPath == "" {
		dbPath = DefaultPath()
	}

	// 确保目录存在
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("创建数据库目录失败: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}

	// 设置 WAL 模式
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("设置 WAL 模式失败: %w", err)
	}

	logger.Infof("[database] 数据库已打开: %s", dbPath)

	return &DB{DB: db, path: dbPath}, nil
}

// Path 返回数据库文件路径。
func (db *DB) Path() string {
	return db.path
}

// Migrate 运行数据库迁移。
func (db *DB) Migrate() error {
	migrations := []string{
		// 合成历史表
		`CREATE TABLE IF NOT EXISTS synthesis_history (
			id TEXT PRIMARY KEY,
			mode TEXT NOT NULL,
			model TEXT NOT NULL,
			speaker INTEGER DEFAULT 0,
			text TEXT NOT NULL,
			num_samples INTEGER DEFAULT 0,
			chunks INTEGER DEFAULT 0,
			sample_rate INTEGER NOT NULL,
			declared_rate INTEGER NOT NULL,
			speed REAL DEFAULT 1.0,
			output_path TEXT DEFAULT '',
			duration_ms INTEGER DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
	}

	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("数据库迁移失败: %w", err)
		}
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_synthesis_history_created ON synthesis_history(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_synthesis_history_model ON synthesis_history(model)`,
	}
	for _, idx := range indexes {
		if _, err := db.Exec(idx); err != nil {
			logger.Warnf("[database] 创建索引失败: %v", err)
		}
	}

	logger.Debugf("[database] 数据库迁移完成")
	return nil
}

// Close 关闭数据库连接。
func (db *DB) Close() error {
	if db.DB != nil {
		return db.DB.Close()
	}
	return nil
}
