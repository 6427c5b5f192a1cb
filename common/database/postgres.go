package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/AnishVcode/senior-launcher/common/config"

	_ "github.com/lib/pq"
)

// 连接池默认值（配置为 0 时使用）
const (
	defaultMaxConns        = 10
	defaultMaxIdle         = 5
	defaultConnMaxLifetime = 30 * time.Minute
)

// NewPostgresDB 创建 PostgreSQL 连接池并在 ctx 内确认可用
func NewPostgresDB(ctx context.Context, cfg *config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	maxConns, maxIdle := cfg.MaxConns, cfg.MaxIdle
	if maxConns <= 0 {
		maxConns = defaultMaxConns
	}
	if maxIdle <= 0 {
		maxIdle = defaultMaxIdle
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(defaultConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database %s:%d/%s: %w", cfg.Host, cfg.Port, cfg.Database, err)
	}

	return db, nil
}

// Close 关闭数据库连接（nil 安全）
func Close(db *sql.DB) error {
	if db == nil {
		return nil
	}
	return db.Close()
}
