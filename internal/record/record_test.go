package record

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartdevs17/rsk-contract-deployer/internal/chaintest"
	"github.com/smartdevs17/rsk-contract-deployer/internal/models"
	"github.com/smartdevs17/rsk-contract-deployer/pkg/utils"
)

func fixtures() (*models.SigningAccount, *models.DeployedContract, *models.ConfirmedTransaction) {
	account := &models.SigningAccount{Address: common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")}
	pending := &models.PendingTransaction{Hash: common.HexToHash("0x9f2c1e0b7c1d3a1f3e5b7d9c1a3e5f7b9d1c3e5a7b9d1f3e5c7a9b1d3f5e7a9b")}
	contract := &models.DeployedContract{
		Name:       "FakeProductIdentification",
		Address:    common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3"),
		CreationTx: pending,
		Confirmed:  true,
	}
	confirmed := &models.ConfirmedTransaction{
		Pending:       pending,
		BlockNumber:   6_123_456,
		Confirmations: 3,
		GasUsed:       18_446_744_073_709_551_615, // larger than a float64 can hold exactly
	}
	return account, contract, confirmed
}

func newTestWriter(dir, artifactPath string) *Writer {
	w := NewWriter(Paths{
		Record:     filepath.Join(dir, "deployment-info.json"),
		Descriptor: filepath.Join(dir, "contracts", "FakeProductIdentification.json"),
		Artifact:   artifactPath,
	})
	w.now = func() time.Time {
		return time.Date(2026, 3, 14, 15, 9, 26, 535_000_000, time.FixedZone("UTC-3", -3*3600))
	}
	return w
}

func TestWriteRoundTrip(t *testing.T) {
	dir := t.TempDir()
	artifactPath := chaintest.WriteArtifact(t, filepath.Join(dir, "artifacts"))
	account, contract, confirmed := fixtures()

	result, err := newTestWriter(dir, artifactPath).Write("rsk-testnet", account, contract, confirmed)
	require.NoError(t, err)
	assert.True(t, result.DescriptorWritten)
	assert.Empty(t, result.Warnings)

	loaded, err := ReadRecord(result.RecordPath)
	require.NoError(t, err)
	assert.Equal(t, *result.Record, *loaded)
	assert.Equal(t, "18446744073709551615", loaded.GasUsed)
	assert.Equal(t, "2026-03-14T18:09:26.535Z", loaded.DeploymentDate)
	assert.Equal(t, "rsk-testnet", loaded.Network)
	assert.Equal(t, confirmed.Pending.Hash.Hex(), loaded.TransactionHash)
	require.NotNil(t, loaded.BlockNumber)
	assert.Equal(t, uint64(6_123_456), *loaded.BlockNumber)

	descriptor, err := ReadDescriptor(result.DescriptorPath)
	require.NoError(t, err)
	assert.Equal(t, contract.Address.Hex(), descriptor.Address)
	var abiEntries []map[string]interface{}
	require.NoError(t, json.Unmarshal(descriptor.ABI, &abiEntries))
	assert.Len(t, abiEntries, 3)

	t.Logf("✓ Record and descriptor round-tripped")
}

func TestWriteRecordFieldNames(t *testing.T) {
	dir := t.TempDir()
	account, contract, confirmed := fixtures()

	result, err := newTestWriter(dir, filepath.Join(dir, "missing.json")).Write("rsk-testnet", account, contract, confirmed)
	require.NoError(t, err)

	data, err := os.ReadFile(result.RecordPath)
	require.NoError(t, err)
	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &raw))
	for _, key := range []string{"network", "contractAddress", "deployerAddress", "deploymentDate", "blockNumber", "gasUsed", "transactionHash"} {
		assert.Contains(t, raw, key)
	}
	assert.IsType(t, "", raw["gasUsed"])
}

func TestWriteWithoutArtifact(t *testing.T) {
	dir := t.TempDir()
	account, contract, confirmed := fixtures()

	result, err := newTestWriter(dir, filepath.Join(dir, "artifacts", "nope.json")).Write("rsk-testnet", account, contract, confirmed)
	require.NoError(t, err)

	assert.False(t, result.DescriptorWritten)
	require.Len(t, result.Warnings, 1)
	assert.Equal(t, utils.ErrCodeArtifactMissing, utils.CodeOf(result.Warnings[0]))
	assert.NoFileExists(t, result.DescriptorPath)

	loaded, err := ReadRecord(result.RecordPath)
	require.NoError(t, err)
	assert.Equal(t, contract.Address.Hex(), loaded.ContractAddress)
	assert.Equal(t, account.Address.Hex(), loaded.DeployerAddress)
	assert.NotEmpty(t, loaded.DeploymentDate)
}

func TestWriteOverwritesPreviousRecord(t *testing.T) {
	dir := t.TempDir()
	account, contract, confirmed := fixtures()
	w := newTestWriter(dir, "")

	_, err := w.Write("rsk-testnet", account, contract, confirmed)
	require.NoError(t, err)

	contract.Address = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	result, err := w.Write("rsk-testnet", account, contract, confirmed)
	require.NoError(t, err)

	loaded, err := ReadRecord(result.RecordPath)
	require.NoError(t, err)
	assert.Equal(t, contract.Address.Hex(), loaded.ContractAddress)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, entry := range entries {
		assert.NotContains(t, entry.Name(), ".tmp")
	}
}

func TestWritePersistenceError(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))
	account, contract, confirmed := fixtures()

	w := NewWriter(Paths{
		Record:     filepath.Join(blocker, "deployment-info.json"),
		Descriptor: filepath.Join(dir, "contracts", "FakeProductIdentification.json"),
		Artifact:   chaintest.WriteArtifact(t, filepath.Join(dir, "artifacts")),
	})

	result, err := w.Write("rsk-testnet", account, contract, confirmed)
	require.Error(t, err)
	assert.Equal(t, utils.ErrCodePersistence, utils.CodeOf(err))
	require.NotNil(t, result)
	assert.Equal(t, contract.Address.Hex(), result.Record.ContractAddress)
}
