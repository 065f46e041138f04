package persistence

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/spec-kit/ticket-bot/internal/config"
)

// Local wraps the embedded SQLite database used for single-node deployments.
type Local struct {
	DB *gorm.DB
}

// NewLocal opens (creating if needed) the SQLite file at cfg.Path.
// The pool is pinned to one connection: SQLite has a single writer, and ":memory:"
// databases are per-connection.
func NewLocal(cfg config.LocalConfig, zl *zap.Logger) (*Local, error) {
	db, err := gorm.Open(sqlite.Open(cfg.Path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.Exec("PRAGMA journal_mode=WAL").Error; err != nil {
		zl.Warn("unable to enable sqlite WAL", zap.Error(err))
	}
	zl.Info("opened local database", zap.String("path", cfg.Path))
	return &Local{DB: db}, nil
}

// Close releases the underlying connection.
func (l *Local) Close() {
	if l == nil || l.DB == nil {
		return
	}
	if sqlDB, err := l.DB.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

// Ping verifies the database is reachable.
func (l *Local) Ping(ctx context.Context) error {
	if l == nil || l.DB == nil {
		return errors.New("local database not configured")
	}
	sqlDB, err := l.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
