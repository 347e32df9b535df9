// Package history keeps a SQLite journal of every query run.
package history

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Run is one journal row.
type Run struct {
	ID         int64     `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	RunID      string    `gorm:"column:run_id;not null;uniqueIndex" json:"run_id"`
	Brand      string    `gorm:"column:brand;index" json:"brand"`
	File       string    `gorm:"column:file" json:"file"`
	Username   string    `gorm:"column:username;index" json:"username"`
	Outcome    string    `gorm:"column:outcome;not null;index" json:"outcome"`
	Message    string    `gorm:"column:message" json:"message,omitempty"`
	Rows       int       `gorm:"column:rows" json:"rows"`
	DurationMs int64     `gorm:"column:duration_ms" json:"duration_ms"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime;index" json:"created_at"`
}

// TableName pins the table name.
func (Run) TableName() string { return "query_runs" }

// Store is the history database.
type Store struct {
	db *gorm.DB
}

// Open opens (and migrates) the history database at dsn.
func Open(dsn string, log logger.Interface) (*Store, error) {
	if dsn != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
	}
	if log == nil {
		log = logger.Discard
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: log})
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	if err := db.AutoMigrate(&Run{}); err != nil {
		return nil, fmt.Errorf("migrate history: %w", err)
	}
	return &Store{db: db}, nil
}

// Record appends a run.
func (s *Store) Record(ctx context.Context, run *Run) error {
	if err := s.db.WithContext(ctx).Create(run).Error; err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

// Recent returns up to limit runs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	var runs []Run
	if err := s.db.WithContext(ctx).Order("created_at desc").Order("id desc").Limit(limit).Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
