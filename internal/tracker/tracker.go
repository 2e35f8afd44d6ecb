// Package tracker waits for submitted transactions to reach a confirmation depth.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/rsk-contract-deployer/internal/metrics"
	"github.com/smartdevs17/rsk-contract-deployer/internal/models"
	"github.com/smartdevs17/rsk-contract-deployer/pkg/utils"
)

// Poller takes a single observation of a transaction
type Poller interface {
	TransactionStatus(ctx context.Context, txHash common.Hash) (*models.TransactionStatus, error)
}

// Config controls polling behaviour
type Config struct {
	PollInterval time.Duration
	// Timeout bounds the whole wait; zero waits until the context ends
	Timeout time.Duration
	// MaxUnknownPolls is how many consecutive polls may find a never-seen
	// transaction unknown before it is declared dropped; zero disables the limit
	MaxUnknownPolls int
}

// ConfirmationTracker polls a Poller until a transaction is deep enough
type ConfirmationTracker struct {
	poller         Poller
	config         Config
	metricsManager *metrics.Manager
	logger         *logrus.Logger
}

// NewConfirmationTracker creates a new tracker
func NewConfirmationTracker(poller Poller, cfg Config, metricsManager *metrics.Manager) *ConfirmationTracker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	return &ConfirmationTracker{
		poller:         poller,
		config:         cfg,
		metricsManager: metricsManager,
		logger:         utils.GetLogger(),
	}
}

// Wait blocks until tx is mined with at least depth confirmations. It never
// returns a ConfirmedTransaction below depth.
func (t *ConfirmationTracker) Wait(ctx context.Context, tx *models.PendingTransaction, depth uint64) (*models.ConfirmedTransaction, error) {
	if depth < 1 {
		depth = 1
	}

	waitCtx := ctx
	if t.config.Timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, t.config.Timeout)
		defer cancel()
	}

	ticker := time.NewTicker(t.config.PollInterval)
	defer ticker.Stop()

	logger := t.logger.WithFields(logrus.Fields{
		"tx_hash": tx.Hash.Hex(),
		"depth":   depth,
	})
	logger.Info("Waiting for confirmations")

	var (
		seen         bool
		unknownPolls int
		highest      uint64
		lastBlock    uint64
	)

	for {
		status, err := t.poller.TransactionStatus(waitCtx, tx.Hash)
		switch {
		case err != nil && waitCtx.Err() == nil:
			logger.WithError(err).Warn("Failed to poll transaction status, retrying")
		case err == nil:
			t.recordPoll(status)

			switch status.State {
			case models.TxStateUnknown:
				if seen {
					return nil, utils.NewAppError(utils.ErrCodeTransactionDropped,
						"Transaction disappeared from the network",
						fmt.Sprintf("tx %s was replaced or reorganized out", tx.Hash.Hex()))
				}
				unknownPolls++
				if t.config.MaxUnknownPolls > 0 && unknownPolls >= t.config.MaxUnknownPolls {
					return nil, utils.NewAppError(utils.ErrCodeTransactionDropped,
						"Transaction not known to the network",
						fmt.Sprintf("tx %s unknown after %d polls", tx.Hash.Hex(), unknownPolls))
				}

			case models.TxStatePending:
				seen = true
				unknownPolls = 0
				logger.Debug("Transaction pending")

			case models.TxStateReverted:
				return nil, utils.NewAppError(utils.ErrCodeTransactionReverted, "Transaction reverted",
					fmt.Sprintf("tx %s failed in block %d", tx.Hash.Hex(), status.BlockNumber))

			case models.TxStateMined:
				seen = true
				unknownPolls = 0
				if status.Confirmations < highest || (lastBlock != 0 && status.BlockNumber != lastBlock) {
					logger.WithFields(logrus.Fields{
						"previous_block":         lastBlock,
						"block":                  status.BlockNumber,
						"previous_confirmations": highest,
						"confirmations":          status.Confirmations,
					}).Warn("Confirmation count went backwards, possible reorganization")
				}
				if status.Confirmations > highest {
					highest = status.Confirmations
				}
				lastBlock = status.BlockNumber

				logger.WithFields(logrus.Fields{
					"block":         status.BlockNumber,
					"confirmations": status.Confirmations,
				}).Debug("Transaction mined")

				if status.Confirmations >= depth {
					pending := *tx
					block := status.BlockNumber
					pending.BlockNumber = &block
					return &models.ConfirmedTransaction{
						Pending:         &pending,
						BlockNumber:     status.BlockNumber,
						Confirmations:   status.Confirmations,
						GasUsed:         status.GasUsed,
						ContractAddress: status.ContractAddress,
						ConfirmedAt:     time.Now().UTC(),
					}, nil
				}
			}
		}

		select {
		case <-waitCtx.Done():
			return nil, t.stopError(ctx, tx)
		case <-ticker.C:
		}
	}
}

// stopError tells an interrupt from a timeout
func (t *ConfirmationTracker) stopError(parent context.Context, tx *models.PendingTransaction) error {
	if parent.Err() != nil {
		return utils.WrapError(utils.ErrCodeInterrupted, "Confirmation wait interrupted", parent.Err())
	}
	return utils.WrapError(utils.ErrCodeConfirmationTimeout,
		fmt.Sprintf("Transaction %s not confirmed within %s", tx.Hash.Hex(), t.config.Timeout),
		context.DeadlineExceeded)
}

func (t *ConfirmationTracker) recordPoll(status *models.TransactionStatus) {
	if t.metricsManager == nil {
		return
	}
	t.metricsManager.GetPrometheusMetrics().RecordConfirmationPoll(string(status.State), status.Confirmations)
}

// IsStopped reports whether err ended a wait without a verdict on the transaction
func IsStopped(err error) bool {
	code := utils.CodeOf(err)
	return code == utils.ErrCodeInterrupted || code == utils.ErrCodeConfirmationTimeout ||
		errors.Is(err, context.Canceled)
}
