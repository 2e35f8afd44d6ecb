package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/rsk-contract-deployer/internal/models"
	"github.com/smartdevs17/rsk-contract-deployer/pkg/utils"
)

// uniqueViolation is the PostgreSQL error code for unique_violation
const uniqueViolation = "23505"

// PostgreSQLStorage implements Storage interface using PostgreSQL
type PostgreSQLStorage struct {
	db         *sql.DB
	config     *StorageConfig
	logger     *logrus.Logger
	migrations []*Migration
	queries    deploymentQueries
}

// NewPostgreSQLStorage creates a new PostgreSQL storage instance
func NewPostgreSQLStorage(config *StorageConfig) *PostgreSQLStorage {
	return &PostgreSQLStorage{
		config:     config,
		logger:     utils.GetLogger(),
		migrations: GetPostgresMigrations(),
		queries:    deploymentQueries{numbered: true},
	}
}

// Connect establishes database connection
func (p *PostgreSQLStorage) Connect() error {
	connector, err := pq.NewConnector(p.config.ConnectionString)
	if err != nil {
		return utils.WrapError(utils.ErrCodeDatabase, "Invalid PostgreSQL connection string", err)
	}
	db := sql.OpenDB(connector)

	// Configure connection pool
	if p.config.MaxConnections > 0 {
		db.SetMaxOpenConns(p.config.MaxConnections)
		db.SetMaxIdleConns(p.config.MaxConnections / 2)
	}
	db.SetConnMaxLifetime(p.config.MaxIdleTime)

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return utils.WrapError(utils.ErrCodeDatabase, "Failed to ping PostgreSQL database", err)
	}

	p.db = db
	p.logger.Info("PostgreSQL database connected")

	return nil
}

// Close closes the database connection
func (p *PostgreSQLStorage) Close() error {
	if p.db != nil {
		err := p.db.Close()
		p.db = nil
		p.logger.Debug("PostgreSQL database connection closed")
		return err
	}
	return nil
}

// Ping checks database connectivity
func (p *PostgreSQLStorage) Ping() error {
	if p.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected")
	}
	return p.db.Ping()
}

// Migrate runs database migrations
func (p *PostgreSQLStorage) Migrate() error {
	if p.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected")
	}

	for _, migration := range p.migrations {
		p.logger.WithFields(logrus.Fields{
			"version":     migration.Version,
			"description": migration.Description,
		}).Debug("Applying migration")

		if _, err := p.db.Exec(migration.SQL); err != nil {
			return utils.WrapError(utils.ErrCodeDatabase,
				fmt.Sprintf("Migration %s failed", migration.Version), err)
		}
	}

	for _, migration := range p.migrations {
		if _, err := p.db.Exec(`INSERT INTO migrations (version, description) VALUES ($1, $2)
			ON CONFLICT (version) DO NOTHING`, migration.Version, migration.Description); err != nil {
			return utils.WrapError(utils.ErrCodeDatabase, "Failed to record migration", err)
		}
	}

	p.logger.Debug("Database migrations completed")
	return nil
}

// SaveDeployment appends a deployment to the history
func (p *PostgreSQLStorage) SaveDeployment(ctx context.Context, entry *models.HistoryEntry) error {
	if p.db == nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database not connected")
	}

	id, err := p.queries.insert(ctx, p.db, entry)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return utils.WrapError(utils.ErrCodeValidation, "Deployment already recorded", err)
		}
		return utils.WrapError(utils.ErrCodeDatabase, "Failed to save deployment", err)
	}
	entry.ID = id
	return nil
}

// GetDeployment returns the deployment created by txHash
func (p *PostgreSQLStorage) GetDeployment(ctx context.Context, txHash string) (*models.HistoryEntry, error) {
	return p.queries.get(ctx, p.db, txHash)
}

// ListDeployments returns deployments newest first
func (p *PostgreSQLStorage) ListDeployments(ctx context.Context, filter models.DeploymentFilter) ([]*models.HistoryEntry, error) {
	return p.queries.list(ctx, p.db, filter)
}

// CountDeployments counts deployments matching filter
func (p *PostgreSQLStorage) CountDeployments(ctx context.Context, filter models.DeploymentFilter) (int64, error) {
	return p.queries.count(ctx, p.db, filter)
}

// GetLatestDeployment returns the newest deployment on network
func (p *PostgreSQLStorage) GetLatestDeployment(ctx context.Context, network string) (*models.HistoryEntry, error) {
	return p.queries.latest(ctx, p.db, network)
}

// GetStorageStats returns deployment counts
func (p *PostgreSQLStorage) GetStorageStats(ctx context.Context) (*StorageStats, error) {
	return p.queries.stats(ctx, p.db)
}
