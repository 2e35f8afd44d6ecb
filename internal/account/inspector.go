package account

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/rsk-contract-deployer/internal/metrics"
	"github.com/smartdevs17/rsk-contract-deployer/internal/models"
	"github.com/smartdevs17/rsk-contract-deployer/pkg/utils"
)

// BalanceReader reads account balances from the network
type BalanceReader interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// AddressProvider resolves the signing address
type AddressProvider interface {
	Address() common.Address
}

// Inspector takes the one-time snapshot of the signing account
type Inspector struct {
	reader         BalanceReader
	signer         AddressProvider
	minBalance     *big.Int
	metricsManager *metrics.Manager
	logger         *logrus.Logger
}

// NewInspector creates an inspector. A nil signer makes Inspect fail with
// ACCOUNT_UNAVAILABLE.
func NewInspector(reader BalanceReader, signer AddressProvider, minBalance *big.Int, metricsManager *metrics.Manager) *Inspector {
	return &Inspector{
		reader:         reader,
		signer:         signer,
		minBalance:     minBalance,
		metricsManager: metricsManager,
		logger:         utils.GetLogger(),
	}
}

// Inspect returns the signing account with its current balance. A balance below
// the configured minimum only produces a warning.
func (i *Inspector) Inspect(ctx context.Context) (*models.SigningAccount, error) {
	if i.signer == nil {
		return nil, utils.NewAppError(utils.ErrCodeAccountUnavailable, "No signing account available",
			"configure deployer.private_key or DEPLOYER_PRIVATE_KEY")
	}

	address := i.signer.Address()
	if address == (common.Address{}) {
		return nil, utils.NewAppError(utils.ErrCodeAccountUnavailable, "Signing account has no address")
	}

	start := time.Now()
	balance, err := i.reader.BalanceAt(ctx, address, nil)
	if err != nil {
		return nil, utils.WrapError(utils.ErrCodeAccountUnavailable, "Failed to read account balance", err)
	}

	account := &models.SigningAccount{Address: address, Balance: balance}

	i.logger.WithFields(logrus.Fields{
		"address":  address.Hex(),
		"balance":  utils.FormatEther(balance),
		"duration": time.Since(start),
	}).Info("Deploying with account")

	if i.metricsManager != nil {
		f, _ := new(big.Float).SetInt(balance).Float64()
		i.metricsManager.GetPrometheusMetrics().UpdateDeployerBalance(f)
	}

	if i.minBalance != nil && balance.Cmp(i.minBalance) < 0 {
		i.logger.WithFields(logrus.Fields{
			"address":     address.Hex(),
			"balance":     utils.FormatEther(balance),
			"min_balance": utils.FormatEther(i.minBalance),
		}).Warn("Low balance, make sure the account can pay for the deployment")
	}

	return account, nil
}
