// File: internal/storage/sqlite.go
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/smartdevs17/rsk-contract-deployer/internal/models"
	"github.com/smartdevs17/rsk-contract-deployer/pkg/utils"
)

// SQLiteStorage implements Storage interface using SQLite
type SQLiteStorage struct {
	db         *sql.DB
	config     *StorageConfig
	logger     *logrus.Logger
	migrations []*Migration
	queries    deploymentQueries
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(config *StorageConfig) *SQLiteStorage {
	return &SQLiteStorage{
		config:     config,
		logger:     utils.GetLogger(),
		migrations: GetSQLiteMigrations(),
	}
}

// Connect establishes database connection
func (s *SQLiteStorage) Connect() error {
	// Ensure directory exists
	dir := filepath.Dir(s.config.ConnectionString)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return utils.WrapError(utils.ErrCodeDatabase, "Failed to create database directory", err)
		}
	}

	db, err := sql.Open("sqlite", s.config.ConnectionString)
	if err != nil {
		return utils.WrapError(utils.ErrCodeDatabase, "Failed to open SQLite database", err)
	}

	// Configure connection pool
	if s.config.MaxConnections > 0 {
		db.SetMaxOpenConns(s.config.MaxConnections)
		db.SetMaxIdleConns(s.config.MaxConnections / 2)
	}
	db.SetConnMaxLifetime(s.config.MaxIdleTime)

	// Enable WAL mode for better concurrency with the API server
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return utils.WrapError(utils.ErrCodeDatabase, "Failed to enable WAL mode", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return utils.WrapError(utils.ErrCodeDatabase, "Failed to set busy timeout", err)
	}

	s.db = db
	s.logger.WithField("path", s.config.ConnectionString).Info("SQLite database connected")

	return nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		s.logger.Debug("SQLite database connection closed")
		return err
	}
	return nil
}

// Ping checks database connectivity
func (s *SQLiteStorage) Ping() error {
	if s.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected")
	}
	return s.db.Ping()
}

// Migrate runs database migrations
func (s *SQLiteStorage) Migrate() error {
	if s.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected")
	}

	for _, migration := range s.migrations {
		s.logger.WithFields(logrus.Fields{
			"version":     migration.Version,
			"description": migration.Description,
		}).Debug("Applying migration")

		if _, err := s.db.Exec(migration.SQL); err != nil {
			return utils.WrapError(utils.ErrCodeDatabase,
				fmt.Sprintf("Migration %s failed", migration.Version), err)
		}
	}

	for _, migration := range s.migrations {
		if _, err := s.db.Exec(`INSERT OR IGNORE INTO migrations (version, description) VALUES (?, ?)`,
			migration.Version, migration.Description); err != nil {
			return utils.WrapError(utils.ErrCodeDatabase, "Failed to record migration", err)
		}
	}

	s.logger.Debug("Database migrations completed")
	return nil
}

// SaveDeployment appends a deployment to the history
func (s *SQLiteStorage) SaveDeployment(ctx context.Context, entry *models.HistoryEntry) error {
	if s.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected")
	}

	id, err := s.queries.insert(ctx, s.db, entry)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return utils.WrapError(utils.ErrCodeValidation, "Deployment already recorded", err)
		}
		return utils.WrapError(utils.ErrCodeDatabase, "Failed to save deployment", err)
	}
	entry.ID = id

	s.logger.WithFields(logrus.Fields{
		"id":      id,
		"tx_hash": entry.TransactionHash,
	}).Debug("Deployment saved to history")
	return nil
}

// GetDeployment returns the deployment created by txHash
func (s *SQLiteStorage) GetDeployment(ctx context.Context, txHash string) (*models.HistoryEntry, error) {
	return s.queries.get(ctx, s.db, txHash)
}

// ListDeployments returns deployments newest first
func (s *SQLiteStorage) ListDeployments(ctx context.Context, filter models.DeploymentFilter) ([]*models.HistoryEntry, error) {
	return s.queries.list(ctx, s.db, filter)
}

// CountDeployments counts deployments matching filter
func (s *SQLiteStorage) CountDeployments(ctx context.Context, filter models.DeploymentFilter) (int64, error) {
	return s.queries.count(ctx, s.db, filter)
}

// GetLatestDeployment returns the newest deployment on network
func (s *SQLiteStorage) GetLatestDeployment(ctx context.Context, network string) (*models.HistoryEntry, error) {
	return s.queries.latest(ctx, s.db, network)
}

// GetStorageStats returns deployment counts
func (s *SQLiteStorage) GetStorageStats(ctx context.Context) (*StorageStats, error) {
	return s.queries.stats(ctx, s.db)
}
