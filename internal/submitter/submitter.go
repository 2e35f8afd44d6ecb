// Package submitter sends the contract-creation transaction.
package submitter

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/rsk-contract-deployer/internal/artifact"
	"github.com/smartdevs17/rsk-contract-deployer/internal/connection"
	"github.com/smartdevs17/rsk-contract-deployer/internal/metrics"
	"github.com/smartdevs17/rsk-contract-deployer/internal/models"
	"github.com/smartdevs17/rsk-contract-deployer/pkg/utils"
)

// TxSubmitter signs and broadcasts transactions
type TxSubmitter interface {
	Submit(ctx context.Context, req connection.TxRequest) (*models.PendingTransaction, error)
}

// Submitter deploys a single compiled contract
type Submitter struct {
	transactor       TxSubmitter
	fallbackGasLimit uint64
	metricsManager   *metrics.Manager
	logger           *logrus.Logger
}

// NewSubmitter creates a new deployment submitter
func NewSubmitter(transactor TxSubmitter, fallbackGasLimit uint64, metricsManager *metrics.Manager) *Submitter {
	return &Submitter{
		transactor:       transactor,
		fallbackGasLimit: fallbackGasLimit,
		metricsManager:   metricsManager,
		logger:           utils.GetLogger(),
	}
}

// Submit sends the creation transaction for art. The returned contract carries
// the address derived from sender and nonce and is not confirmed yet. A send
// with an unknown outcome returns the pending transaction and contract along
// with the error.
func (s *Submitter) Submit(ctx context.Context, account *models.SigningAccount, name string, art *artifact.Artifact, constructorArgs []byte) (*models.PendingTransaction, *models.DeployedContract, error) {
	if art == nil {
		return nil, nil, utils.NewAppError(utils.ErrCodeSubmissionRejected, "No compiled artifact to deploy", name)
	}

	code, err := art.CreationCode(constructorArgs)
	if err != nil {
		return nil, nil, utils.WrapError(utils.ErrCodeSubmissionRejected, "Invalid creation code", err)
	}

	s.logger.WithFields(logrus.Fields{
		"contract":   name,
		"code_bytes": len(code),
		"deployer":   account.Address.Hex(),
	}).Info("Deploying contract")

	pending, err := s.transactor.Submit(ctx, connection.TxRequest{
		Data:             code,
		FallbackGasLimit: s.fallbackGasLimit,
	})
	if err != nil && pending == nil {
		if ctx.Err() != nil {
			return nil, nil, utils.WrapError(utils.ErrCodeInterrupted, "Deployment interrupted before broadcast", err)
		}
		return nil, nil, utils.WrapError(utils.ErrCodeSubmissionRejected, "Network rejected the deployment transaction", err)
	}

	contract := &models.DeployedContract{
		Name:       name,
		Address:    crypto.CreateAddress(pending.From, pending.Nonce),
		CreationTx: pending,
		ABI:        art.ABI(),
		RawABI:     art.RawABI,
	}

	// The node may hold the transaction, so the caller gets the hash to check
	if err != nil {
		code := utils.ErrCodeSubmissionUncertain
		if ctx.Err() != nil {
			code = utils.ErrCodeInterrupted
		}
		return pending, contract, utils.WrapError(code, "Deployment transaction may have been broadcast", err)
	}

	s.logger.WithFields(logrus.Fields{
		"contract":         name,
		"contract_address": contract.Address.Hex(),
		"tx_hash":          pending.Hash.Hex(),
		"gas_limit":        pending.GasLimit,
	}).Info("Deployment transaction submitted")

	return pending, contract, nil
}

// Finalize returns the confirmed contract handle. The receipt's contract address
// wins over the provisional one if the two disagree.
func (s *Submitter) Finalize(provisional *models.DeployedContract, confirmed *models.ConfirmedTransaction) *models.DeployedContract {
	contract := *provisional
	contract.CreationTx = confirmed.Pending
	contract.Confirmed = true

	if confirmed.ContractAddress != (common.Address{}) && confirmed.ContractAddress != provisional.Address {
		s.logger.WithFields(logrus.Fields{
			"provisional_address": provisional.Address.Hex(),
			"receipt_address":     confirmed.ContractAddress.Hex(),
		}).Warn("Receipt contract address differs from the derived address")
		contract.Address = confirmed.ContractAddress
	}

	if s.metricsManager != nil {
		s.metricsManager.GetPrometheusMetrics().RecordDeployedContract(confirmed.BlockNumber, confirmed.GasUsed)
	}

	s.logger.WithFields(logrus.Fields{
		"contract_address": contract.Address.Hex(),
		"block":            confirmed.BlockNumber,
		"confirmations":    confirmed.Confirmations,
	}).Info("Contract confirmed")

	return &contract
}
