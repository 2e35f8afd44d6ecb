package connection

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/rsk-contract-deployer/internal/metrics"
	"github.com/smartdevs17/rsk-contract-deployer/internal/models"
	"github.com/smartdevs17/rsk-contract-deployer/pkg/utils"
)

// ChainClient wraps a Backend with RPC metrics and transaction status polling
type ChainClient struct {
	backend        Backend
	metricsManager *metrics.Manager
	logger         *logrus.Logger
}

// NewChainClient creates a new client wrapper
func NewChainClient(backend Backend, metricsManager *metrics.Manager) *ChainClient {
	return &ChainClient{
		backend:        backend,
		metricsManager: metricsManager,
		logger:         utils.GetLogger(),
	}
}

var _ Backend = (*ChainClient)(nil)

func (c *ChainClient) observe(method string, start time.Time, err error) {
	if c.metricsManager == nil {
		return
	}
	status := "success"
	if err != nil && !errors.Is(err, ethereum.NotFound) {
		status = "error"
	}
	c.metricsManager.GetPrometheusMetrics().RecordRPCRequest(method, status, time.Since(start))
}

// ChainID returns the chain id of the node
func (c *ChainClient) ChainID(ctx context.Context) (*big.Int, error) {
	start := time.Now()
	id, err := c.backend.ChainID(ctx)
	c.observe("eth_chainId", start, err)
	return id, err
}

// BlockNumber returns the latest block number
func (c *ChainClient) BlockNumber(ctx context.Context) (uint64, error) {
	start := time.Now()
	n, err := c.backend.BlockNumber(ctx)
	c.observe("eth_blockNumber", start, err)
	return n, err
}

// BalanceAt returns the balance of account
func (c *ChainClient) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	start := time.Now()
	balance, err := c.backend.BalanceAt(ctx, account, blockNumber)
	c.observe("eth_getBalance", start, err)
	return balance, err
}

// PendingNonceAt returns the next nonce including pending transactions
func (c *ChainClient) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	start := time.Now()
	nonce, err := c.backend.PendingNonceAt(ctx, account)
	c.observe("eth_getTransactionCount", start, err)
	return nonce, err
}

// SuggestGasPrice returns the node's gas price suggestion
func (c *ChainClient) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	start := time.Now()
	price, err := c.backend.SuggestGasPrice(ctx)
	c.observe("eth_gasPrice", start, err)
	return price, err
}

// EstimateGas estimates the gas needed for a call
func (c *ChainClient) EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error) {
	start := time.Now()
	gas, err := c.backend.EstimateGas(ctx, call)
	c.observe("eth_estimateGas", start, err)
	return gas, err
}

// SendTransaction broadcasts a signed transaction
func (c *ChainClient) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	start := time.Now()
	err := c.backend.SendTransaction(ctx, tx)
	c.observe("eth_sendRawTransaction", start, err)
	return err
}

// TransactionReceipt returns the receipt of a mined transaction
func (c *ChainClient) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	start := time.Now()
	receipt, err := c.backend.TransactionReceipt(ctx, txHash)
	c.observe("eth_getTransactionReceipt", start, err)
	return receipt, err
}

// TransactionByHash returns a transaction and whether it is still pending
func (c *ChainClient) TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error) {
	start := time.Now()
	tx, pending, err := c.backend.TransactionByHash(ctx, hash)
	c.observe("eth_getTransactionByHash", start, err)
	return tx, pending, err
}

// TransactionStatus takes one observation of a transaction. The inclusion block
// counts as the first confirmation.
func (c *ChainClient) TransactionStatus(ctx context.Context, txHash common.Hash) (*models.TransactionStatus, error) {
	receipt, err := c.TransactionReceipt(ctx, txHash)
	if err != nil && !errors.Is(err, ethereum.NotFound) {
		return nil, utils.WrapError(utils.ErrCodeBlockchain, "Failed to get transaction receipt", err)
	}

	if receipt == nil {
		_, _, err := c.TransactionByHash(ctx, txHash)
		if errors.Is(err, ethereum.NotFound) {
			return &models.TransactionStatus{State: models.TxStateUnknown}, nil
		}
		if err != nil {
			return nil, utils.WrapError(utils.ErrCodeBlockchain, "Failed to get transaction", err)
		}
		// Either still in the pool or mined without an indexed receipt yet
		return &models.TransactionStatus{State: models.TxStatePending}, nil
	}

	head, err := c.BlockNumber(ctx)
	if err != nil {
		return nil, utils.WrapError(utils.ErrCodeBlockchain, "Failed to get latest block number", err)
	}

	status := &models.TransactionStatus{
		State:           models.TxStateMined,
		GasUsed:         receipt.GasUsed,
		ContractAddress: receipt.ContractAddress,
	}
	if receipt.BlockNumber != nil {
		status.BlockNumber = receipt.BlockNumber.Uint64()
	}
	if head >= status.BlockNumber {
		status.Confirmations = head - status.BlockNumber + 1
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		status.State = models.TxStateReverted
	}

	c.logger.WithFields(logrus.Fields{
		"tx_hash":       txHash.Hex(),
		"block":         status.BlockNumber,
		"head":          head,
		"confirmations": status.Confirmations,
	}).Debug("Transaction status observed")

	return status, nil
}
