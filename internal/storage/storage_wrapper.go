package storage

import (
	"context"
	"time"

	"github.com/smartdevs17/rsk-contract-deployer/internal/metrics"
	"github.com/smartdevs17/rsk-contract-deployer/internal/models"
)

// StorageWithMetrics wraps a storage implementation with metrics
type StorageWithMetrics struct {
	Storage
	metricsManager *metrics.Manager
}

// NewStorageWithMetrics creates a storage wrapper with metrics
func NewStorageWithMetrics(storage Storage, metricsManager *metrics.Manager) *StorageWithMetrics {
	return &StorageWithMetrics{
		Storage:        storage,
		metricsManager: metricsManager,
	}
}

func (s *StorageWithMetrics) record(operation string, start time.Time, err error) {
	if s.metricsManager == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	s.metricsManager.GetPrometheusMetrics().RecordDatabaseOperation(operation, "deployments", status, time.Since(start))
}

// SaveDeployment saves a deployment and records metrics
func (s *StorageWithMetrics) SaveDeployment(ctx context.Context, entry *models.HistoryEntry) error {
	start := time.Now()
	err := s.Storage.SaveDeployment(ctx, entry)
	s.record("insert", start, err)
	return err
}

// GetDeployment gets a deployment and records metrics
func (s *StorageWithMetrics) GetDeployment(ctx context.Context, txHash string) (*models.HistoryEntry, error) {
	start := time.Now()
	entry, err := s.Storage.GetDeployment(ctx, txHash)
	s.record("select", start, err)
	return entry, err
}

// ListDeployments lists deployments and records metrics
func (s *StorageWithMetrics) ListDeployments(ctx context.Context, filter models.DeploymentFilter) ([]*models.HistoryEntry, error) {
	start := time.Now()
	entries, err := s.Storage.ListDeployments(ctx, filter)
	s.record("list", start, err)
	return entries, err
}
