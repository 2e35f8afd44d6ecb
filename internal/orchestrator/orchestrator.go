// Package orchestrator sequences a single contract deployment and applies the
// fatal/non-fatal policy to the outcome of every step.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/rsk-contract-deployer/internal/artifact"
	"github.com/smartdevs17/rsk-contract-deployer/internal/config"
	"github.com/smartdevs17/rsk-contract-deployer/internal/configurator"
	"github.com/smartdevs17/rsk-contract-deployer/internal/metrics"
	"github.com/smartdevs17/rsk-contract-deployer/internal/models"
	"github.com/smartdevs17/rsk-contract-deployer/internal/record"
	"github.com/smartdevs17/rsk-contract-deployer/internal/verification"
	"github.com/smartdevs17/rsk-contract-deployer/pkg/utils"
)

// AccountInspector reads the signing account
type AccountInspector interface {
	Inspect(ctx context.Context) (*models.SigningAccount, error)
}

// Submitter sends the creation transaction and finalizes the contract handle
type Submitter interface {
	Submit(ctx context.Context, account *models.SigningAccount, name string, art *artifact.Artifact, constructorArgs []byte) (*models.PendingTransaction, *models.DeployedContract, error)
	Finalize(provisional *models.DeployedContract, confirmed *models.ConfirmedTransaction) *models.DeployedContract
}

// Waiter waits for a confirmation depth
type Waiter interface {
	Wait(ctx context.Context, tx *models.PendingTransaction, depth uint64) (*models.ConfirmedTransaction, error)
}

// StepRunner runs the post-deployment configuration
type StepRunner interface {
	Run(ctx context.Context, contract *models.DeployedContract, steps []configurator.Step) []models.StepOutcome
}

// RecordWriter persists the deployment outputs
type RecordWriter interface {
	Write(network string, account *models.SigningAccount, contract *models.DeployedContract, confirmed *models.ConfirmedTransaction) (*record.Result, error)
}

// HistoryStore keeps every deployment record
type HistoryStore interface {
	SaveDeployment(ctx context.Context, entry *models.HistoryEntry) error
}

// Verifier requests source verification
type Verifier interface {
	Enabled() bool
	Verify(ctx context.Context, req verification.Request) (*verification.Receipt, error)
}

// Deps are the collaborators of a run. History and Verifier are optional.
type Deps struct {
	Inspector    AccountInspector
	Submitter    Submitter
	Tracker      Waiter
	Configurator StepRunner
	Writer       RecordWriter
	History      HistoryStore
	Verifier     Verifier
	Metrics      *metrics.Manager
}

// Options describe the deployment
type Options struct {
	Network         string
	ChainID         int64
	ContractName    string
	Artifact        *artifact.Artifact
	ConstructorArgs []byte
	Confirmations   uint64
	Setup           config.SetupConfig
}

// Result is the outcome of a run
type Result struct {
	State       State
	FailedKind  string
	Err         error
	Account     *models.SigningAccount
	Pending     *models.PendingTransaction
	Contract    *models.DeployedContract
	Confirmed   *models.ConfirmedTransaction
	Steps       []models.StepOutcome
	Record      *models.DeploymentRecord
	Output      *record.Result
	Receipt     *verification.Receipt
	Warnings    []error
	Transitions []State
	ExitCode    int
	Duration    time.Duration
}

// Orchestrator runs one deployment
type Orchestrator struct {
	deps   Deps
	opts   Options
	logger *logrus.Logger
}

// New creates a new orchestrator
func New(deps Deps, opts Options) *Orchestrator {
	if opts.Confirmations < 1 {
		opts.Confirmations = 1
	}
	return &Orchestrator{
		deps:   deps,
		opts:   opts,
		logger: utils.GetLogger(),
	}
}

// Run executes Start → AccountChecked → Submitted → Confirmed → Configured →
// RecordWritten → (Verified) → Done, stopping in Failed on a fatal error.
func (o *Orchestrator) Run(ctx context.Context) (res *Result) {
	start := time.Now()
	res = &Result{State: StateStart, Transitions: []State{StateStart}}

	defer func() {
		if r := recover(); r != nil {
			o.fail(res, utils.NewAppError(utils.ErrCodeInternal, "Unhandled panic during deployment", fmt.Sprint(r)).WithStackTrace())
		}
		res.Duration = time.Since(start)
		o.finish(res)
	}()

	// Account
	stageStart := time.Now()
	account, err := o.deps.Inspector.Inspect(ctx)
	o.observe("inspect", stageStart, err)
	if err != nil {
		o.fail(res, err)
		return res
	}
	res.Account = account
	o.transition(res, StateAccountChecked)

	// Submission
	stageStart = time.Now()
	pending, provisional, err := o.deps.Submitter.Submit(ctx, account, o.opts.ContractName, o.opts.Artifact, o.opts.ConstructorArgs)
	o.observe("submit", stageStart, err)
	if err != nil {
		if pending != nil {
			res.Pending, res.Contract = pending, provisional
			o.logManualCheck(pending, provisional)
		}
		o.fail(res, err)
		return res
	}
	res.Pending, res.Contract = pending, provisional
	o.transition(res, StateSubmitted)
	o.logger.WithFields(logrus.Fields{
		"contract_address": provisional.Address.Hex(),
		"tx_hash":          pending.Hash.Hex(),
	}).Info("Contract submitted, address is provisional until confirmed")

	// Confirmation
	stageStart = time.Now()
	confirmed, err := o.deps.Tracker.Wait(ctx, pending, o.opts.Confirmations)
	o.observe("confirm", stageStart, err)
	if err != nil {
		o.logManualCheck(pending, provisional)
		o.fail(res, err)
		return res
	}
	res.Confirmed = confirmed
	res.Contract = o.deps.Submitter.Finalize(provisional, confirmed)
	o.transition(res, StateConfirmed)

	// Configuration
	stageStart = time.Now()
	res.Steps = o.deps.Configurator.Run(ctx, res.Contract, configurator.Plan(o.opts.Setup, account.Address))
	o.observe("configure", stageStart, nil)
	for _, step := range res.Steps {
		if !step.Succeeded() {
			o.warn(res, step.Err)
		}
	}
	o.transition(res, StateConfigured)

	// Record
	stageStart = time.Now()
	out, err := o.deps.Writer.Write(o.opts.Network, account, res.Contract, confirmed)
	o.observe("record", stageStart, err)
	if out != nil {
		res.Output = out
		res.Record = out.Record
		for _, warning := range out.Warnings {
			o.warn(res, warning)
		}
	}
	if err != nil {
		o.fail(res, err)
		return res
	}
	o.transition(res, StateRecordWritten)
	o.saveHistory(ctx, res)

	// Verification
	if o.deps.Verifier != nil && o.deps.Verifier.Enabled() {
		stageStart = time.Now()
		receipt, err := o.deps.Verifier.Verify(ctx, verification.Request{
			Network:         o.opts.Network,
			ChainID:         o.opts.ChainID,
			Address:         res.Contract.Address,
			ContractName:    o.opts.ContractName,
			SourceName:      o.opts.Artifact.SourceName,
			ConstructorArgs: o.opts.ConstructorArgs,
		})
		o.observe("verify", stageStart, err)
		if err != nil {
			if utils.CodeOf(err) != utils.ErrCodeVerificationFailed {
				err = utils.WrapError(utils.ErrCodeVerificationFailed, "Source verification failed", err)
			}
			o.warn(res, err)
		} else {
			res.Receipt = receipt
			o.transition(res, StateVerified)
		}
	}

	o.transition(res, StateDone)
	return res
}

func (o *Orchestrator) observe(stage string, start time.Time, err error) {
	if o.deps.Metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failed"
	}
	o.deps.Metrics.GetPrometheusMetrics().RecordStage(stage, status, time.Since(start))
}

func (o *Orchestrator) transition(res *Result, next State) {
	o.logger.WithFields(logrus.Fields{"from": res.State, "to": next}).Debug("Deployment state changed")
	res.State = next
	res.Transitions = append(res.Transitions, next)
}

func (o *Orchestrator) warn(res *Result, err error) {
	if err == nil {
		return
	}
	res.Warnings = append(res.Warnings, err)
	o.logger.WithFields(logrus.Fields{
		"kind":     utils.CodeOf(err),
		"severity": NonFatal.String(),
	}).Warnf("Warning: %v", err)
}

func (o *Orchestrator) fail(res *Result, err error) {
	severity := Classify(err)
	if severity == NonFatal {
		severity = Fatal
	}
	kind := utils.CodeOf(err)
	if kind == "" {
		kind = utils.ErrCodeInternal
	}

	res.Err = err
	res.FailedKind = kind
	res.ExitCode = 1
	o.transition(res, StateFailed)

	fields := logrus.Fields{
		"kind":     kind,
		"severity": severity.String(),
		"state":    res.Transitions[len(res.Transitions)-2],
	}
	if res.Pending != nil {
		fields["tx_hash"] = res.Pending.Hash.Hex()
	}
	if res.Contract != nil {
		fields["contract_address"] = res.Contract.Address.Hex()
	}

	if severity == FatalAfterCommit {
		o.logger.WithFields(fields).Errorf(
			"Contract %s is deployed (tx %s) but the deployment record was not saved, recover manually: %v",
			res.Contract.Address.Hex(), res.Pending.Hash.Hex(), err)
		return
	}
	o.logger.WithFields(fields).Errorf("Deployment failed: %v", err)
}

// logManualCheck points the operator at a transaction that may be on chain
// without a record. Resubmitting could deploy a second copy.
func (o *Orchestrator) logManualCheck(pending *models.PendingTransaction, provisional *models.DeployedContract) {
	o.logger.WithFields(logrus.Fields{
		"tx_hash":             pending.Hash.Hex(),
		"provisional_address": provisional.Address.Hex(),
	}).Error("Transaction submitted but not recorded, check the transaction hash manually")
}

func (o *Orchestrator) saveHistory(ctx context.Context, res *Result) {
	if o.deps.History == nil || res.Record == nil {
		return
	}

	failed := 0
	for _, step := range res.Steps {
		if !step.Succeeded() {
			failed++
		}
	}
	entry := &models.HistoryEntry{
		ContractName:     o.opts.ContractName,
		DeploymentRecord: *res.Record,
		FailedSteps:      failed,
	}
	if err := o.deps.History.SaveDeployment(ctx, entry); err != nil {
		o.warn(res, utils.WrapError(utils.ErrCodeHistoryWriteFailed, "Failed to save deployment history", err))
	}
}

func (o *Orchestrator) finish(res *Result) {
	outcome := "success"
	if res.State == StateFailed {
		outcome = res.FailedKind
	}
	if o.deps.Metrics != nil {
		o.deps.Metrics.GetPrometheusMetrics().RecordDeployment(o.opts.Network, outcome)
	}
	o.logger.WithFields(logrus.Fields{
		"state":     res.State,
		"exit_code": res.ExitCode,
		"warnings":  len(res.Warnings),
		"duration":  res.Duration,
	}).Debug("Deployment run finished")
}
