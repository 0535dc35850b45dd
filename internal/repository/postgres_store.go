package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"
)

// querier *sql.DB 与 *sql.Tx 的公共子集，
// 让同一套查询函数既能直连也能在事务内使用
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// PostgresStore 基于 PostgreSQL 的持久层实现
// 级联所有权（session → readings → alerts）由外键 ON DELETE CASCADE 保证
type PostgresStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresStore 创建 PostgreSQL 存储
func NewPostgresStore(db *sql.DB, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{
		db:     db,
		logger: logger,
	}
}

// pgIngestTx 摄取事务（包装 *sql.Tx）
type pgIngestTx struct {
	tx *sql.Tx
}

// InIngestTx 在单个数据库事务内执行 fn
// fn 返回错误时回滚，否则提交；提交/回滚由数据库保证原子性
func (s *PostgresStore) InIngestTx(ctx context.Context, fn func(tx IngestTx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin ingest transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(&pgIngestTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit ingest transaction: %w", err)
	}
	return nil
}
