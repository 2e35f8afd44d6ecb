package connection

import (
	"context"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartdevs17/rsk-contract-deployer/internal/config"
	"github.com/smartdevs17/rsk-contract-deployer/internal/metrics"
	"github.com/smartdevs17/rsk-contract-deployer/pkg/utils"
)

type ethService struct {
	chainID int64
	head    uint64
}

func (s *ethService) ChainId() *hexutil.Big {
	return (*hexutil.Big)(big.NewInt(s.chainID))
}

func (s *ethService) BlockNumber() hexutil.Uint64 {
	return hexutil.Uint64(s.head)
}

type node struct {
	url  string
	hits *atomic.Int64
}

// startNode serves eth_chainId and eth_blockNumber over HTTP
func startNode(t *testing.T, chainID int64, head uint64) node {
	t.Helper()

	srv := rpc.NewServer()
	require.NoError(t, srv.RegisterName("eth", &ethService{chainID: chainID, head: head}))

	hits := new(atomic.Int64)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		srv.ServeHTTP(w, r)
	}))
	t.Cleanup(func() {
		ts.Close()
		srv.Stop()
	})
	return node{url: ts.URL, hits: hits}
}

// deadURL returns an address nothing listens on
func deadURL(t *testing.T) string {
	t.Helper()
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()
	return url
}

func networkConfig(primary string, backups ...string) *config.NetworkConfig {
	return &config.NetworkConfig{
		Name:           "rsk-testnet",
		NodeURL:        primary,
		BackupNodes:    backups,
		ChainID:        31,
		RequestTimeout: 2 * time.Second,
		RetryAttempts:  2,
		RetryDelay:     time.Millisecond,
	}
}

func TestConnectFallsBackToBackupNode(t *testing.T) {
	backup := startNode(t, 31, 42)
	cm := NewConnectionManager(networkConfig(deadURL(t), backup.url), metrics.NewManager())
	defer cm.Close()
	ctx := context.Background()

	client, err := cm.Connect(ctx)
	require.NoError(t, err)
	require.NotNil(t, client)
	assert.True(t, cm.IsConnected())

	stats := cm.Stats()
	assert.Equal(t, backup.url, stats.CurrentURL)
	assert.Equal(t, int64(31), stats.ChainID)
	assert.Equal(t, uint64(2), stats.ConnectAttempts)
	assert.Equal(t, uint64(1), stats.FailedAttempts)

	require.NoError(t, cm.HealthCheck(ctx))
	assert.Equal(t, uint64(42), cm.Stats().LatestBlock)

	again, err := cm.Connect(ctx)
	require.NoError(t, err)
	assert.Same(t, client, again)
	assert.Equal(t, uint64(2), cm.Stats().ConnectAttempts, "connected manager does not dial again")

	require.NoError(t, cm.Close())
	assert.False(t, cm.IsConnected())

	t.Logf("✓ Connected through backup %s", stats.CurrentURL)
}

func TestConnectChainIDMismatchStops(t *testing.T) {
	primary := startNode(t, 30, 1)
	backup := startNode(t, 31, 1)
	cm := NewConnectionManager(networkConfig(primary.url, backup.url), metrics.NewManager())

	_, err := cm.Connect(context.Background())
	require.Error(t, err)
	assert.Equal(t, utils.ErrCodeConfiguration, utils.CodeOf(err))
	assert.Contains(t, err.Error(), "expected 31, got 30")

	assert.Positive(t, primary.hits.Load())
	assert.Zero(t, backup.hits.Load(), "a chain mismatch must not fall through to backups")
	assert.False(t, cm.IsConnected())
}

func TestConnectExhaustsRetries(t *testing.T) {
	cm := NewConnectionManager(networkConfig(deadURL(t), deadURL(t)), metrics.NewManager())

	_, err := cm.Connect(context.Background())
	require.Error(t, err)
	assert.Equal(t, utils.ErrCodeConnection, utils.CodeOf(err))

	stats := cm.Stats()
	assert.Equal(t, uint64(4), stats.ConnectAttempts, "two nodes, two rounds")
	assert.Equal(t, uint64(4), stats.FailedAttempts)
	assert.False(t, cm.IsConnected())
}

func TestConnectCancelledBetweenRounds(t *testing.T) {
	cfg := networkConfig(deadURL(t))
	cfg.RetryDelay = time.Minute
	cm := NewConnectionManager(cfg, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := cm.Connect(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
