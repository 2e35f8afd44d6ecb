// File: cmd/deployer/app.go
package main

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/rsk-contract-deployer/internal/account"
	"github.com/smartdevs17/rsk-contract-deployer/internal/artifact"
	"github.com/smartdevs17/rsk-contract-deployer/internal/config"
	"github.com/smartdevs17/rsk-contract-deployer/internal/configurator"
	"github.com/smartdevs17/rsk-contract-deployer/internal/connection"
	"github.com/smartdevs17/rsk-contract-deployer/internal/metrics"
	"github.com/smartdevs17/rsk-contract-deployer/internal/notification"
	"github.com/smartdevs17/rsk-contract-deployer/internal/orchestrator"
	"github.com/smartdevs17/rsk-contract-deployer/internal/record"
	"github.com/smartdevs17/rsk-contract-deployer/internal/storage"
	"github.com/smartdevs17/rsk-contract-deployer/internal/submitter"
	"github.com/smartdevs17/rsk-contract-deployer/internal/tracker"
	"github.com/smartdevs17/rsk-contract-deployer/internal/verification"
	"github.com/smartdevs17/rsk-contract-deployer/pkg/utils"
)

// Application holds the components of one deployment run
type Application struct {
	config     *config.Config
	logger     *logrus.Logger
	metrics    *metrics.Manager
	connection *connection.ConnectionManager
	client     *connection.ChainClient
	signer     *account.LocalSigner
	storage    storage.Storage
	artifact   *artifact.Artifact
}

// NewApplication initializes logging and metrics. Network and storage are
// opened by the commands that need them.
func NewApplication(cfg *config.Config) (*Application, error) {
	logCfg := cfg.Logging
	if err := utils.InitLogger(logCfg.Level, logCfg.Format, logCfg.Output, logCfg.File); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	app := &Application{
		config:  cfg,
		logger:  utils.GetLogger(),
		metrics: metrics.NewManager(),
	}

	if expected, mismatch := cfg.Network.NameMismatch(); mismatch {
		app.logger.WithFields(logrus.Fields{
			"network":           cfg.Network.Name,
			"chain_id":          cfg.Network.ChainID,
			"expected_chain_id": expected,
		}).Warn("Network name does not match the configured chain id, the record will carry the name as configured")
	}
	return app, nil
}

// loadArtifact reads the compiled contract; a missing artifact stops the run
// before anything is sent
func (app *Application) loadArtifact() error {
	path := app.config.Contract.ResolveArtifactPath()
	art, err := artifact.Load(path)
	if err != nil {
		return fmt.Errorf("failed to load compiled artifact %s (compile the contract first): %w", path, err)
	}
	app.artifact = art
	app.logger.WithFields(logrus.Fields{
		"contract": app.config.Contract.Name,
		"artifact": path,
	}).Debug("Artifact loaded")
	return nil
}

func (app *Application) initializeConnection(ctx context.Context) error {
	app.connection = connection.NewConnectionManager(&app.config.Network, app.metrics)

	client, err := app.connection.Connect(ctx)
	if err != nil {
		app.metrics.GetPrometheusMetrics().UpdateComponentHealth("connection", false)
		return fmt.Errorf("failed to connect to node: %w", err)
	}
	if err := app.connection.HealthCheck(ctx); err != nil {
		app.metrics.GetPrometheusMetrics().UpdateComponentHealth("connection", false)
		return fmt.Errorf("node health check failed: %w", err)
	}
	app.metrics.GetPrometheusMetrics().UpdateComponentHealth("connection", true)

	stats := app.connection.Stats()
	app.logger.WithFields(logrus.Fields{
		"url":          stats.CurrentURL,
		"chain_id":     stats.ChainID,
		"latest_block": stats.LatestBlock,
		"attempts":     stats.ConnectAttempts,
	}).Info("Node ready")

	app.client = connection.NewChainClient(client, app.metrics)
	return nil
}

func (app *Application) initializeSigner() error {
	if app.config.Deployer.PrivateKey == "" {
		return nil
	}
	signer, err := account.NewLocalSigner(app.config.Deployer.PrivateKey, app.config.Network.ChainID)
	if err != nil {
		return fmt.Errorf("invalid deployer private key: %w", err)
	}
	app.signer = signer
	return nil
}

// initializeStorage opens the history database. History is optional, so a
// failure here is logged and the run continues without it.
func (app *Application) initializeStorage() {
	if !app.config.Storage.Enabled {
		return
	}

	store, err := app.openStorage()
	if err != nil {
		app.logger.WithError(err).Warn("Deployment history unavailable, continuing without it")
		app.metrics.GetPrometheusMetrics().UpdateComponentHealth("storage", false)
		return
	}
	app.metrics.GetPrometheusMetrics().UpdateComponentHealth("storage", true)
	app.storage = store
}

func (app *Application) openStorage() (storage.Storage, error) {
	store, err := storage.NewStorage(&app.config.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage: %w", err)
	}
	if err := store.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to storage: %w", err)
	}
	if err := store.Migrate(); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to run storage migrations: %w", err)
	}
	return storage.NewStorageWithMetrics(store, app.metrics), nil
}

func (app *Application) recordPaths() record.Paths {
	return record.Paths{
		Record:     app.config.Output.RecordPath,
		Descriptor: app.config.DescriptorPath(),
		Artifact:   app.config.Contract.ResolveArtifactPath(),
	}
}

// orchestrator wires the deployment components around the connected client
func (app *Application) orchestrator(skipVerify bool) (*orchestrator.Orchestrator, error) {
	cfg := app.config

	constructorArgs, err := utils.DecodeHexBytes(cfg.Contract.ConstructorArgs)
	if err != nil {
		return nil, fmt.Errorf("invalid constructor args: %w", err)
	}
	minBalance, err := utils.ParseEther(cfg.Deployer.MinBalance)
	if err != nil {
		return nil, fmt.Errorf("invalid min balance: %w", err)
	}

	// Interfaces stay nil without a key so the inspector reports the account as unavailable
	var (
		addresses account.AddressProvider
		txSigner  connection.Signer
	)
	if app.signer != nil {
		addresses, txSigner = app.signer, app.signer
	}

	transactor := connection.NewTransactor(app.client, txSigner, cfg.Deployer.GasBufferPercent)
	trackerCfg := tracker.Config{
		PollInterval:    cfg.Deployer.PollInterval,
		Timeout:         cfg.Deployer.ConfirmationTimeout,
		MaxUnknownPolls: cfg.Deployer.MaxUnknownPolls,
	}
	confirmations := tracker.NewConfirmationTracker(app.client, trackerCfg, app.metrics)

	deps := orchestrator.Deps{
		Inspector:    account.NewInspector(app.client, addresses, minBalance, app.metrics),
		Submitter:    submitter.NewSubmitter(transactor, cfg.Deployer.FallbackGasLimit, app.metrics),
		Tracker:      confirmations,
		Configurator: configurator.NewConfigurator(transactor, confirmations, app.metrics),
		Writer:       record.NewWriter(app.recordPaths()),
		Metrics:      app.metrics,
	}
	if app.storage != nil {
		deps.History = app.storage
	}
	if !skipVerify {
		deps.Verifier = verification.NewEtherscanVerifier(cfg.Verification)
	}

	return orchestrator.New(deps, orchestrator.Options{
		Network:         cfg.Network.Name,
		ChainID:         cfg.Network.ChainID,
		ContractName:    cfg.Contract.Name,
		Artifact:        app.artifact,
		ConstructorArgs: constructorArgs,
		Confirmations:   cfg.Deployer.Confirmations,
		Setup:           cfg.Setup,
	}), nil
}

// exportMetrics writes the run's metrics for a node_exporter textfile collector
func (app *Application) exportMetrics() {
	if !app.config.Metrics.Enabled || app.config.Metrics.TextfilePath == "" {
		return
	}
	// The manager logs the failure; metrics never affect the exit status
	_ = app.metrics.WriteTextfile(app.config.Metrics.TextfilePath)
}

// notify reports the outcome to the operator webhook. It runs after the deployment
// context may have been cancelled, so it uses its own deadline.
func (app *Application) notify(res *orchestrator.Result) {
	notifier := notification.NewWebhookNotifier(app.config.Notification)
	if !notifier.Enabled() {
		return
	}

	outcome := notification.Outcome{
		Network:      app.config.Network.Name,
		ContractName: app.config.Contract.Name,
		State:        string(res.State),
		Kind:         res.FailedKind,
	}
	if res.Err != nil {
		outcome.Error = res.Err.Error()
		outcome.Severity = orchestrator.Classify(res.Err).String()
	}
	if res.Contract != nil {
		outcome.ContractAddress = res.Contract.Address.Hex()
	}
	if res.Pending != nil {
		outcome.TransactionHash = res.Pending.Hash.Hex()
	}
	for _, warning := range res.Warnings {
		outcome.Warnings = append(outcome.Warnings, warning.Error())
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := notifier.Notify(ctx, outcome); err != nil {
		app.logger.WithError(err).Warn("Failed to notify operators")
	}
}

// Stop releases the network and storage handles
func (app *Application) Stop() {
	if app.storage != nil {
		if err := app.storage.Close(); err != nil {
			app.logger.WithError(err).Error("Failed to close storage")
		}
	}
	if app.connection != nil && app.connection.IsConnected() {
		if err := app.connection.Close(); err != nil {
			app.logger.WithError(err).Error("Failed to close connection")
		}
	}
}

func formatBalance(wei *big.Int) string {
	if wei == nil {
		return "unknown"
	}
	return utils.FormatEther(wei)
}
