// Package configurator runs the fault-isolated follow-up transactions against a
// freshly deployed contract.
package configurator

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/rsk-contract-deployer/internal/config"
	"github.com/smartdevs17/rsk-contract-deployer/internal/connection"
	"github.com/smartdevs17/rsk-contract-deployer/internal/metrics"
	"github.com/smartdevs17/rsk-contract-deployer/internal/models"
	"github.com/smartdevs17/rsk-contract-deployer/pkg/utils"
)

// InclusionDepth is the confirmation depth a configuration step waits for
const InclusionDepth = 1

// Step is one named configuration action
type Step interface {
	Name() string
	Build(contract *models.DeployedContract) (connection.TxRequest, error)
}

// TxSubmitter signs and broadcasts transactions
type TxSubmitter interface {
	Submit(ctx context.Context, req connection.TxRequest) (*models.PendingTransaction, error)
}

// Waiter waits for a transaction to reach a depth
type Waiter interface {
	Wait(ctx context.Context, tx *models.PendingTransaction, depth uint64) (*models.ConfirmedTransaction, error)
}

// AuthorizeVerifierStep calls authorizeVerifier(address) on the contract
type AuthorizeVerifierStep struct {
	Label    string
	Verifier common.Address
}

func (s AuthorizeVerifierStep) Name() string {
	return s.Label
}

func (s AuthorizeVerifierStep) Build(contract *models.DeployedContract) (connection.TxRequest, error) {
	if _, ok := contract.ABI.Methods["authorizeVerifier"]; !ok {
		return connection.TxRequest{}, fmt.Errorf("contract abi has no authorizeVerifier method")
	}
	data, err := contract.ABI.Pack("authorizeVerifier", s.Verifier)
	if err != nil {
		return connection.TxRequest{}, fmt.Errorf("pack authorizeVerifier: %w", err)
	}
	to := contract.Address
	return connection.TxRequest{To: &to, Data: data}, nil
}

// Plan returns the ordered step list for setup. The deployer comes first.
func Plan(setup config.SetupConfig, deployer common.Address) []Step {
	var steps []Step
	seen := make(map[common.Address]bool)

	if setup.AuthorizeDeployer {
		steps = append(steps, AuthorizeVerifierStep{Label: "authorize deployer as verifier", Verifier: deployer})
		seen[deployer] = true
	}
	for _, addr := range setup.AdditionalVerifiers {
		verifier := common.HexToAddress(addr)
		if seen[verifier] {
			continue
		}
		seen[verifier] = true
		steps = append(steps, AuthorizeVerifierStep{
			Label:    fmt.Sprintf("authorize verifier %s", verifier.Hex()),
			Verifier: verifier,
		})
	}
	return steps
}

// Configurator executes steps in order, isolating each failure
type Configurator struct {
	transactor     TxSubmitter
	waiter         Waiter
	metricsManager *metrics.Manager
	logger         *logrus.Logger
}

// NewConfigurator creates a new configurator
func NewConfigurator(transactor TxSubmitter, waiter Waiter, metricsManager *metrics.Manager) *Configurator {
	return &Configurator{
		transactor:     transactor,
		waiter:         waiter,
		metricsManager: metricsManager,
		logger:         utils.GetLogger(),
	}
}

// Run executes every step and returns one outcome per step. It never fails as
// a whole; once ctx ends the remaining steps are reported as failed.
func (c *Configurator) Run(ctx context.Context, contract *models.DeployedContract, steps []Step) []models.StepOutcome {
	outcomes := make([]models.StepOutcome, 0, len(steps))
	for _, step := range steps {
		outcome := c.runStep(ctx, contract, step)
		outcomes = append(outcomes, outcome)

		if c.metricsManager != nil {
			c.metricsManager.GetPrometheusMetrics().RecordConfigurationStep(step.Name(), string(outcome.Status))
		}
	}
	return outcomes
}

func (c *Configurator) runStep(ctx context.Context, contract *models.DeployedContract, step Step) (outcome models.StepOutcome) {
	start := time.Now()
	outcome = models.StepOutcome{Name: step.Name()}
	logger := c.logger.WithField("step", step.Name())

	fail := func(err error) models.StepOutcome {
		outcome.Status = models.StepFailed
		outcome.Err = utils.WrapError(utils.ErrCodeConfigurationStepFailed, "Configuration step failed", err)
		outcome.Reason = err.Error()
		outcome.Duration = time.Since(start)
		logger.WithFields(logrus.Fields{
			"kind":    utils.ErrCodeConfigurationStepFailed,
			"tx_hash": outcome.TxHash,
			"reason":  outcome.Reason,
		}).Warn("Configuration step failed, continuing")
		return outcome
	}

	defer func() {
		if r := recover(); r != nil {
			outcome = fail(fmt.Errorf("step panicked: %v", r))
		}
	}()

	if err := ctx.Err(); err != nil {
		return fail(fmt.Errorf("not attempted: %w", err))
	}

	req, err := step.Build(contract)
	if err != nil {
		return fail(err)
	}

	pending, err := c.transactor.Submit(ctx, req)
	if pending != nil {
		outcome.TxHash = pending.Hash.Hex()
	}
	if err != nil {
		return fail(err)
	}
	logger.WithField("tx_hash", outcome.TxHash).Debug("Configuration transaction submitted")

	if _, err := c.waiter.Wait(ctx, pending, InclusionDepth); err != nil {
		return fail(err)
	}

	outcome.Status = models.StepSucceeded
	outcome.Duration = time.Since(start)
	logger.WithField("tx_hash", outcome.TxHash).Info("Configuration step succeeded")
	return outcome
}
