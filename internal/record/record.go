// Package record persists the deployment record and the contract descriptor.
package record

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/rsk-contract-deployer/internal/artifact"
	"github.com/smartdevs17/rsk-contract-deployer/internal/models"
	"github.com/smartdevs17/rsk-contract-deployer/pkg/utils"
)

// DateFormat is ISO-8601 with millisecond precision, always rendered in UTC
const DateFormat = "2006-01-02T15:04:05.000Z07:00"

// Paths locates the inputs and outputs of the writer
type Paths struct {
	Record     string
	Descriptor string
	Artifact   string
}

// Result describes what was written. Warnings hold non-fatal failures.
type Result struct {
	Record            *models.DeploymentRecord
	RecordPath        string
	DescriptorPath    string
	DescriptorWritten bool
	Warnings          []error
}

// Writer writes the outputs of a successful deployment
type Writer struct {
	paths  Paths
	now    func() time.Time
	logger *logrus.Logger
}

// NewWriter creates a new record writer
func NewWriter(paths Paths) *Writer {
	return &Writer{
		paths:  paths,
		now:    time.Now,
		logger: utils.GetLogger(),
	}
}

// Build assembles the record for a confirmed deployment
func Build(network string, account *models.SigningAccount, contract *models.DeployedContract, confirmed *models.ConfirmedTransaction, at time.Time) *models.DeploymentRecord {
	block := confirmed.BlockNumber
	return &models.DeploymentRecord{
		Network:         network,
		ContractAddress: contract.Address.Hex(),
		DeployerAddress: account.Address.Hex(),
		DeploymentDate:  at.UTC().Format(DateFormat),
		BlockNumber:     &block,
		GasUsed:         strconv.FormatUint(confirmed.GasUsed, 10),
		TransactionHash: confirmed.Pending.Hash.Hex(),
	}
}

// Write persists the descriptor and then the record. A missing artifact or a
// descriptor failure is returned as a warning; only a record failure is an error.
func (w *Writer) Write(network string, account *models.SigningAccount, contract *models.DeployedContract, confirmed *models.ConfirmedTransaction) (*Result, error) {
	rec := Build(network, account, contract, confirmed, w.now())
	result := &Result{
		Record:         rec,
		RecordPath:     w.paths.Record,
		DescriptorPath: w.paths.Descriptor,
	}

	if warning := w.writeDescriptor(contract); warning != nil {
		result.Warnings = append(result.Warnings, warning)
		w.logger.WithFields(logrus.Fields{
			"kind":     utils.CodeOf(warning),
			"artifact": w.paths.Artifact,
			"reason":   warning.Error(),
		}).Warn("Contract descriptor not written")
	} else {
		result.DescriptorWritten = true
		w.logger.WithField("path", w.paths.Descriptor).Info("Contract ABI saved")
	}

	if err := writeJSON(w.paths.Record, rec); err != nil {
		return result, utils.WrapError(utils.ErrCodePersistence, "Failed to write deployment record", err)
	}
	w.logger.WithField("path", w.paths.Record).Info("Deployment record saved")

	return result, nil
}

func (w *Writer) writeDescriptor(contract *models.DeployedContract) error {
	art, err := artifact.Load(w.paths.Artifact)
	if err != nil {
		if errors.Is(err, artifact.ErrNotFound) {
			return utils.WrapError(utils.ErrCodeArtifactMissing, "Interface description not found", err)
		}
		return utils.WrapError(utils.ErrCodeArtifactMissing, "Interface description unreadable", err)
	}

	descriptor := models.ContractDescriptor{
		Address: contract.Address.Hex(),
		ABI:     art.RawABI,
	}
	if err := writeJSON(w.paths.Descriptor, descriptor); err != nil {
		return utils.WrapError(utils.ErrCodeDescriptorWriteFailed, "Failed to write contract descriptor", err)
	}
	return nil
}

// writeJSON replaces path atomically with the indented JSON encoding of v
func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	return os.Rename(tmp.Name(), path)
}

// ReadRecord loads a deployment record file
func ReadRecord(path string) (*models.DeploymentRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rec models.DeploymentRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode deployment record: %w", err)
	}
	return &rec, nil
}

// ReadDescriptor loads a contract descriptor file
func ReadDescriptor(path string) (*models.ContractDescriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var descriptor models.ContractDescriptor
	if err := json.Unmarshal(data, &descriptor); err != nil {
		return nil, fmt.Errorf("decode contract descriptor: %w", err)
	}
	return &descriptor, nil
}
