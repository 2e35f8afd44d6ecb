package connection

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/rsk-contract-deployer/internal/config"
	"github.com/smartdevs17/rsk-contract-deployer/internal/metrics"
	"github.com/smartdevs17/rsk-contract-deployer/pkg/utils"
)

// ConnectionManager dials the configured node, falling back to backup nodes
type ConnectionManager struct {
	config         *config.NetworkConfig
	client         *ethclient.Client
	mu             sync.RWMutex
	logger         *logrus.Logger
	stats          ConnectionStats
	metricsManager *metrics.Manager
}

// ConnectionStats holds connection statistics
type ConnectionStats struct {
	ConnectAttempts uint64    `json:"connect_attempts"`
	FailedAttempts  uint64    `json:"failed_attempts"`
	CurrentURL      string    `json:"current_url"`
	LastConnectedAt time.Time `json:"last_connected_at"`
	ChainID         int64     `json:"chain_id"`
	LatestBlock     uint64    `json:"latest_block"`
}

// NewConnectionManager creates a new connection manager
func NewConnectionManager(cfg *config.NetworkConfig, metricsManager *metrics.Manager) *ConnectionManager {
	return &ConnectionManager{
		config:         cfg,
		logger:         utils.GetLogger(),
		metricsManager: metricsManager,
		stats: ConnectionStats{
			CurrentURL: cfg.NodeURL,
		},
	}
}

// Connect returns the current client, dialing the nodes if necessary
func (cm *ConnectionManager) Connect(ctx context.Context) (*ethclient.Client, error) {
	cm.mu.RLock()
	client := cm.client
	cm.mu.RUnlock()
	if client != nil {
		return client, nil
	}

	cm.mu.Lock()
	defer cm.mu.Unlock()
	if cm.client != nil {
		return cm.client, nil
	}

	urls := append([]string{cm.config.NodeURL}, cm.config.BackupNodes...)
	attempts := cm.config.RetryAttempts
	if attempts <= 0 {
		attempts = 1
	}

	for attempt := 0; attempt < attempts; attempt++ {
		for _, url := range urls {
			cm.stats.ConnectAttempts++
			cm.logger.WithFields(logrus.Fields{"url": url, "attempt": attempt + 1}).Debug("Attempting connection")

			client, err := cm.dialWithTimeout(ctx, url)
			if err != nil {
				cm.recordFailure(url, "dial_failed", err)
				continue
			}

			chainID, err := cm.verifyChain(ctx, client)
			if err != nil {
				client.Close()
				cm.recordFailure(url, "chain_check_failed", err)
				if utils.CodeOf(err) == utils.ErrCodeConfiguration {
					return nil, err
				}
				continue
			}

			cm.client = client
			cm.stats.CurrentURL = url
			cm.stats.LastConnectedAt = time.Now()
			cm.stats.ChainID = chainID

			cm.logger.WithFields(logrus.Fields{
				"url":      url,
				"chain_id": chainID,
				"network":  cm.config.Name,
			}).Info("Connected to node")
			return client, nil
		}

		if attempt < attempts-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(cm.config.RetryDelay):
			}
		}
	}

	return nil, utils.NewAppError(utils.ErrCodeConnection, "Failed to connect to any node",
		"All connection attempts exhausted")
}

// dialWithTimeout creates a connection with timeout
func (cm *ConnectionManager) dialWithTimeout(ctx context.Context, url string) (*ethclient.Client, error) {
	timeout := cm.config.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return ethclient.DialContext(dialCtx, url)
}

// verifyChain checks that the node serves the configured chain. A mismatch is a
// configuration error and is not retried against other nodes.
func (cm *ConnectionManager) verifyChain(ctx context.Context, client *ethclient.Client) (int64, error) {
	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	chainID, err := client.ChainID(checkCtx)
	if err != nil {
		return 0, err
	}
	if cm.config.ChainID > 0 && chainID.Int64() != cm.config.ChainID {
		return 0, utils.NewAppError(utils.ErrCodeConfiguration, "Chain ID mismatch",
			fmt.Sprintf("expected %d, got %d", cm.config.ChainID, chainID.Int64()))
	}
	return chainID.Int64(), nil
}

func (cm *ConnectionManager) recordFailure(url, errorType string, err error) {
	cm.stats.FailedAttempts++
	cm.logger.WithFields(logrus.Fields{"url": url, "error": err}).Warn("Connection failed")
	if cm.metricsManager != nil {
		cm.metricsManager.GetPrometheusMetrics().RecordConnectionError(url, errorType)
	}
}

// HealthCheck verifies the node still answers and updates the latest block
func (cm *ConnectionManager) HealthCheck(ctx context.Context) error {
	client, err := cm.Connect(ctx)
	if err != nil {
		return err
	}

	blockNumber, err := client.BlockNumber(ctx)
	if err != nil {
		return utils.WrapError(utils.ErrCodeConnection, "Failed to get latest block", err)
	}

	cm.mu.Lock()
	cm.stats.LatestBlock = blockNumber
	cm.mu.Unlock()
	return nil
}

// IsConnected returns whether the manager holds a client
func (cm *ConnectionManager) IsConnected() bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.client != nil
}

// Close closes the connection
func (cm *ConnectionManager) Close() error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.client != nil {
		cm.client.Close()
		cm.client = nil
		cm.logger.Debug("Connection manager closed")
	}
	return nil
}

// Stats returns connection statistics
func (cm *ConnectionManager) Stats() ConnectionStats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.stats
}
