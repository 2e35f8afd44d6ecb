// File: internal/storage/storage.go
package storage

import (
	"context"
	"time"

	"github.com/smartdevs17/rsk-contract-deployer/internal/models"
)

// Storage defines the deployment history operations
type Storage interface {
	// Connection management
	Connect() error
	Close() error
	Ping() error
	Migrate() error

	// Deployment history
	SaveDeployment(ctx context.Context, entry *models.HistoryEntry) error
	GetDeployment(ctx context.Context, txHash string) (*models.HistoryEntry, error)
	ListDeployments(ctx context.Context, filter models.DeploymentFilter) ([]*models.HistoryEntry, error)
	CountDeployments(ctx context.Context, filter models.DeploymentFilter) (int64, error)
	GetLatestDeployment(ctx context.Context, network string) (*models.HistoryEntry, error)

	// Statistics
	GetStorageStats(ctx context.Context) (*StorageStats, error)
}

// StorageStats provides storage statistics
type StorageStats struct {
	TotalDeployments   int64            `json:"total_deployments"`
	DeploymentsByChain map[string]int64 `json:"deployments_by_network"`
	LatestDeployment   *time.Time       `json:"latest_deployment,omitempty"`
}

// StorageConfig holds storage configuration
type StorageConfig struct {
	Type             string        `json:"type"`
	ConnectionString string        `json:"connection_string"`
	MaxConnections   int           `json:"max_connections"`
	MaxIdleTime      time.Duration `json:"max_idle_time"`
}
