package orchestrator

import (
	"context"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartdevs17/rsk-contract-deployer/internal/account"
	"github.com/smartdevs17/rsk-contract-deployer/internal/artifact"
	"github.com/smartdevs17/rsk-contract-deployer/internal/chaintest"
	"github.com/smartdevs17/rsk-contract-deployer/internal/config"
	"github.com/smartdevs17/rsk-contract-deployer/internal/configurator"
	"github.com/smartdevs17/rsk-contract-deployer/internal/connection"
	"github.com/smartdevs17/rsk-contract-deployer/internal/metrics"
	"github.com/smartdevs17/rsk-contract-deployer/internal/models"
	"github.com/smartdevs17/rsk-contract-deployer/internal/record"
	"github.com/smartdevs17/rsk-contract-deployer/internal/submitter"
	"github.com/smartdevs17/rsk-contract-deployer/internal/tracker"
	"github.com/smartdevs17/rsk-contract-deployer/internal/verification"
	"github.com/smartdevs17/rsk-contract-deployer/pkg/utils"
)

type harness struct {
	t        *testing.T
	dir      string
	backend  *chaintest.Backend
	signer   *account.LocalSigner
	paths    record.Paths
	hook     *logtest.Hook
	history  *memoryHistory
	verifier *fakeVerifier
	poller   tracker.Poller
	deps     Deps
	opts     Options
}

type memoryHistory struct {
	entries []*models.HistoryEntry
	err     error
}

func (m *memoryHistory) SaveDeployment(ctx context.Context, entry *models.HistoryEntry) error {
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, entry)
	return nil
}

type fakeVerifier struct {
	enabled bool
	err     error
	calls   []verification.Request
}

func (f *fakeVerifier) Enabled() bool { return f.enabled }

func (f *fakeVerifier) Verify(ctx context.Context, req verification.Request) (*verification.Receipt, error) {
	f.calls = append(f.calls, req)
	if f.err != nil {
		return nil, f.err
	}
	return &verification.Receipt{GUID: "guid-1", Message: "OK"}, nil
}

func newHarness(t *testing.T, balance *big.Int) *harness {
	t.Helper()

	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	previous := utils.Logger
	utils.Logger = logger
	t.Cleanup(func() { utils.Logger = previous })

	signer, err := account.NewLocalSigner(chaintest.TestPrivateKey, 31)
	require.NoError(t, err)

	dir := t.TempDir()
	h := &harness{
		t:        t,
		dir:      dir,
		backend:  chaintest.NewBackend(31, signer.Address(), balance),
		signer:   signer,
		hook:     hook,
		history:  &memoryHistory{},
		verifier: &fakeVerifier{},
		paths: record.Paths{
			Record:     filepath.Join(dir, "deployment-info.json"),
			Descriptor: filepath.Join(dir, "contracts", "FakeProductIdentification.json"),
			Artifact:   chaintest.WriteArtifact(t, filepath.Join(dir, "artifacts")),
		},
	}

	art, err := artifact.Load(h.paths.Artifact)
	require.NoError(t, err)
	h.opts = Options{
		Network:       "rsk-testnet",
		ChainID:       31,
		ContractName:  "FakeProductIdentification",
		Artifact:      art,
		Confirmations: 3,
		Setup:         config.SetupConfig{AuthorizeDeployer: true},
	}
	return h
}

// build wires the real components around the in-memory chain
func (h *harness) build() *Orchestrator {
	mm := metrics.NewManager()
	client := connection.NewChainClient(h.backend, mm)
	transactor := connection.NewTransactor(client, h.signer, 20)

	var poller tracker.Poller = client
	if h.poller != nil {
		poller = h.poller
	}
	trackerCfg := tracker.Config{PollInterval: time.Millisecond, Timeout: 5 * time.Second, MaxUnknownPolls: 50}
	minBalance, _ := utils.ParseEther("0.1")

	var inspector AccountInspector = account.NewInspector(client, h.signer, minBalance, mm)
	if h.deps.Inspector != nil {
		inspector = h.deps.Inspector
	}

	h.deps = Deps{
		Inspector:    inspector,
		Submitter:    submitter.NewSubmitter(transactor, 6_000_000, mm),
		Tracker:      tracker.NewConfirmationTracker(poller, trackerCfg, mm),
		Configurator: configurator.NewConfigurator(transactor, tracker.NewConfirmationTracker(client, trackerCfg, mm), mm),
		Writer:       record.NewWriter(h.paths),
		History:      h.history,
		Verifier:     h.verifier,
		Metrics:      mm,
	}
	return New(h.deps, h.opts)
}

func (h *harness) contractAddress() common.Address {
	return crypto.CreateAddress(h.signer.Address(), 0)
}

func (h *harness) entriesAt(level logrus.Level) []logrus.Entry {
	var entries []logrus.Entry
	for _, e := range h.hook.AllEntries() {
		if e.Level == level {
			entries = append(entries, *e)
		}
	}
	return entries
}

func oneEther() *big.Int {
	return big.NewInt(1e18)
}

func TestRunHappyPath(t *testing.T) {
	h := newHarness(t, oneEther())

	res := h.build().Run(context.Background())
	require.NoError(t, res.Err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, StateDone, res.State)
	assert.Equal(t, []State{StateStart, StateAccountChecked, StateSubmitted, StateConfirmed,
		StateConfigured, StateRecordWritten, StateDone}, res.Transitions)

	assert.GreaterOrEqual(t, res.Confirmed.Confirmations, uint64(3))
	assert.True(t, res.Contract.Confirmed)
	assert.Equal(t, h.contractAddress(), res.Contract.Address)
	require.Len(t, res.Steps, 1)
	assert.True(t, res.Steps[0].Succeeded())
	assert.Empty(t, res.Warnings)

	saved, err := record.ReadRecord(h.paths.Record)
	require.NoError(t, err)
	assert.Equal(t, res.Pending.Hash.Hex(), saved.TransactionHash)
	assert.Equal(t, "rsk-testnet", saved.Network)
	assert.Equal(t, h.contractAddress().Hex(), saved.ContractAddress)
	assert.Equal(t, h.signer.Address().Hex(), saved.DeployerAddress)

	descriptor, err := record.ReadDescriptor(h.paths.Descriptor)
	require.NoError(t, err)
	assert.Equal(t, saved.ContractAddress, descriptor.Address)

	require.Len(t, h.history.entries, 1)
	assert.Equal(t, *saved, h.history.entries[0].DeploymentRecord)
	assert.Empty(t, h.verifier.calls, "verification disabled without a credential")

	// creation + authorizeVerifier
	assert.Equal(t, 2, h.backend.SentCount())
	t.Logf("✓ Deployed %s in tx %s", saved.ContractAddress, saved.TransactionHash)
}

func TestRunInsufficientFunds(t *testing.T) {
	h := newHarness(t, big.NewInt(1_000_000))

	res := h.build().Run(context.Background())
	assert.Equal(t, 1, res.ExitCode)
	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, utils.ErrCodeSubmissionRejected, res.FailedKind)
	assert.ErrorIs(t, res.Err, chaintest.ErrInsufficientFunds)
	assert.Equal(t, []State{StateStart, StateAccountChecked, StateFailed}, res.Transitions)

	assert.NoFileExists(t, h.paths.Record)
	assert.NoFileExists(t, h.paths.Descriptor)
	assert.Empty(t, h.history.entries)

	errorsLogged := h.entriesAt(logrus.ErrorLevel)
	require.NotEmpty(t, errorsLogged)
	assert.Equal(t, utils.ErrCodeSubmissionRejected, errorsLogged[len(errorsLogged)-1].Data["kind"])

	var lowBalanceWarned bool
	for _, e := range h.entriesAt(logrus.WarnLevel) {
		if strings.Contains(e.Message, "Low balance") {
			lowBalanceWarned = true
		}
	}
	assert.True(t, lowBalanceWarned)
}

func TestRunConfigurationStepFailureIsNonFatal(t *testing.T) {
	h := newHarness(t, oneEther())
	h.backend.RejectTo[h.contractAddress()] = errors.New("execution reverted: caller is not the owner")

	res := h.build().Run(context.Background())
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, StateDone, res.State)
	assert.Contains(t, res.Transitions, StateRecordWritten)

	require.Len(t, res.Steps, 1)
	assert.Equal(t, models.StepFailed, res.Steps[0].Status)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, utils.ErrCodeConfigurationStepFailed, utils.CodeOf(res.Warnings[0]))
	assert.FileExists(t, h.paths.Record)

	var stepLogged bool
	for _, e := range h.entriesAt(logrus.WarnLevel) {
		if e.Data["step"] == "authorize deployer as verifier" {
			stepLogged = true
		}
	}
	assert.True(t, stepLogged, "failed step must be logged as a warning")
	assert.Equal(t, 1, h.history.entries[0].FailedSteps)
}

func TestRunArtifactMissingAtWrite(t *testing.T) {
	h := newHarness(t, oneEther())
	require.NoError(t, os.Remove(h.paths.Artifact))

	res := h.build().Run(context.Background())
	assert.Equal(t, 0, res.ExitCode)
	assert.NoFileExists(t, h.paths.Descriptor)

	saved, err := record.ReadRecord(h.paths.Record)
	require.NoError(t, err)
	assert.NotEmpty(t, saved.ContractAddress)
	assert.NotEmpty(t, saved.DeployerAddress)
	assert.NotEmpty(t, saved.DeploymentDate)
	assert.NotNil(t, saved.BlockNumber)
	assert.NotEmpty(t, saved.GasUsed)
	assert.Equal(t, res.Pending.Hash.Hex(), saved.TransactionHash)

	require.Len(t, res.Warnings, 1)
	assert.Equal(t, utils.ErrCodeArtifactMissing, utils.CodeOf(res.Warnings[0]))
}

func TestRunPersistenceError(t *testing.T) {
	h := newHarness(t, oneEther())
	blocker := filepath.Join(h.dir, "readonly")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))
	h.paths.Record = filepath.Join(blocker, "deployment-info.json")

	res := h.build().Run(context.Background())
	assert.NotEqual(t, 0, res.ExitCode)
	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, utils.ErrCodePersistence, res.FailedKind)
	assert.Equal(t, FatalAfterCommit, Classify(res.Err))
	assert.Empty(t, h.history.entries)

	address := h.contractAddress().Hex()
	txHash := res.Pending.Hash.Hex()

	var found bool
	for _, e := range h.entriesAt(logrus.ErrorLevel) {
		if e.Data["severity"] != "manual_recovery_required" {
			continue
		}
		found = true
		assert.Equal(t, address, e.Data["contract_address"])
		assert.Equal(t, txHash, e.Data["tx_hash"])
		assert.Contains(t, e.Message, address)
		assert.Contains(t, e.Message, txHash)
	}
	assert.True(t, found, "persistence failure must be logged for manual recovery")
}

func TestRunInterruptedDuringConfirmation(t *testing.T) {
	h := newHarness(t, oneEther())
	h.poller = &chaintest.ScriptedPoller{Script: []chaintest.ScriptStep{chaintest.State(models.TxStatePending)}}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	res := h.build().Run(ctx)
	assert.Equal(t, 1, res.ExitCode)
	assert.Equal(t, utils.ErrCodeInterrupted, res.FailedKind)
	assert.Equal(t, []State{StateStart, StateAccountChecked, StateSubmitted, StateFailed}, res.Transitions)
	assert.NoFileExists(t, h.paths.Record)

	var manualCheck bool
	for _, e := range h.entriesAt(logrus.ErrorLevel) {
		if strings.Contains(e.Message, "check the transaction hash manually") {
			manualCheck = true
			assert.Equal(t, res.Pending.Hash.Hex(), e.Data["tx_hash"])
		}
	}
	assert.True(t, manualCheck)
}

func TestRunSendTimeoutKeepsTransactionHash(t *testing.T) {
	h := newHarness(t, oneEther())
	h.backend.AcceptErr = context.DeadlineExceeded

	res := h.build().Run(context.Background())
	assert.Equal(t, 1, res.ExitCode)
	assert.Equal(t, utils.ErrCodeSubmissionUncertain, res.FailedKind)
	assert.Equal(t, []State{StateStart, StateAccountChecked, StateFailed}, res.Transitions)
	assert.NoFileExists(t, h.paths.Record)

	require.Equal(t, 1, h.backend.SentCount(), "the node accepted the transaction")
	require.NotNil(t, res.Pending)
	txHash := h.backend.Sent[0].Hash().Hex()
	assert.Equal(t, txHash, res.Pending.Hash.Hex())
	assert.Equal(t, h.contractAddress(), res.Contract.Address)

	var manualCheck bool
	for _, e := range h.entriesAt(logrus.ErrorLevel) {
		if strings.Contains(e.Message, "check the transaction hash manually") {
			manualCheck = true
			assert.Equal(t, txHash, e.Data["tx_hash"])
			assert.Equal(t, h.contractAddress().Hex(), e.Data["provisional_address"])
		}
	}
	assert.True(t, manualCheck)

	failure := h.entriesAt(logrus.ErrorLevel)
	assert.Equal(t, txHash, failure[len(failure)-1].Data["tx_hash"])
}

func TestRunDroppedTransaction(t *testing.T) {
	h := newHarness(t, oneEther())
	h.poller = &chaintest.ScriptedPoller{Script: []chaintest.ScriptStep{
		chaintest.State(models.TxStatePending),
		chaintest.State(models.TxStateUnknown),
	}}

	res := h.build().Run(context.Background())
	assert.Equal(t, 1, res.ExitCode)
	assert.Equal(t, utils.ErrCodeTransactionDropped, res.FailedKind)
	assert.NoFileExists(t, h.paths.Record)
}

func TestRunAccountUnavailable(t *testing.T) {
	h := newHarness(t, oneEther())
	h.deps.Inspector = account.NewInspector(h.backend, nil, nil, nil)

	res := h.build().Run(context.Background())
	assert.Equal(t, 1, res.ExitCode)
	assert.Equal(t, utils.ErrCodeAccountUnavailable, res.FailedKind)
	assert.Equal(t, 0, h.backend.SentCount())
}

type panickingInspector struct{}

func (panickingInspector) Inspect(ctx context.Context) (*models.SigningAccount, error) {
	panic("boom")
}

func TestRunRecoversFromPanic(t *testing.T) {
	h := newHarness(t, oneEther())
	h.deps.Inspector = panickingInspector{}

	res := h.build().Run(context.Background())
	assert.Equal(t, 1, res.ExitCode)
	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, utils.ErrCodeInternal, res.FailedKind)

	var appErr *utils.AppError
	require.ErrorAs(t, res.Err, &appErr)
	assert.Contains(t, appErr.StackTrace, "panickingInspector")
}

func TestRunVerification(t *testing.T) {
	t.Run("accepted", func(t *testing.T) {
		h := newHarness(t, oneEther())
		h.verifier.enabled = true
		h.opts.ConstructorArgs = []byte{0x01}

		res := h.build().Run(context.Background())
		assert.Equal(t, 0, res.ExitCode)
		assert.Equal(t, []State{StateStart, StateAccountChecked, StateSubmitted, StateConfirmed,
			StateConfigured, StateRecordWritten, StateVerified, StateDone}, res.Transitions)
		require.Len(t, h.verifier.calls, 1)

		req := h.verifier.calls[0]
		assert.Equal(t, "rsk-testnet", req.Network)
		assert.Equal(t, int64(31), req.ChainID)
		assert.Equal(t, res.Contract.Address, req.Address)
		assert.Equal(t, []byte{0x01}, req.ConstructorArgs)
		assert.Equal(t, "guid-1", res.Receipt.GUID)
	})

	t.Run("failure is ignored", func(t *testing.T) {
		h := newHarness(t, oneEther())
		h.verifier.enabled = true
		h.verifier.err = errors.New("explorer unavailable")

		res := h.build().Run(context.Background())
		assert.Equal(t, 0, res.ExitCode)
		assert.Equal(t, StateDone, res.State)
		assert.NotContains(t, res.Transitions, StateVerified)
		require.Len(t, res.Warnings, 1)
		assert.Equal(t, utils.ErrCodeVerificationFailed, utils.CodeOf(res.Warnings[0]))
	})
}

func TestRunHistoryFailureIsNonFatal(t *testing.T) {
	h := newHarness(t, oneEther())
	h.history.err = errors.New("database is locked")

	res := h.build().Run(context.Background())
	assert.Equal(t, 0, res.ExitCode)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, utils.ErrCodeHistoryWriteFailed, utils.CodeOf(res.Warnings[0]))
}

func TestClassify(t *testing.T) {
	assert.Equal(t, Fatal, Classify(utils.NewAppError(utils.ErrCodeSubmissionRejected, "x")))
	assert.Equal(t, Fatal, Classify(utils.NewAppError(utils.ErrCodeTransactionDropped, "x")))
	assert.Equal(t, NonFatal, Classify(utils.NewAppError(utils.ErrCodeArtifactMissing, "x")))
	assert.Equal(t, NonFatal, Classify(utils.NewAppError(utils.ErrCodeConfigurationStepFailed, "x")))
	assert.Equal(t, FatalAfterCommit, Classify(utils.NewAppError(utils.ErrCodePersistence, "x")))
	assert.Equal(t, Fatal, Classify(errors.New("unclassified")))
	assert.True(t, StateDone.Terminal())
	assert.False(t, StateConfigured.Terminal())
}
