package models

import "time"

// DeploymentRecord is the durable description of a finished deployment.
// Field names and order form the on-disk contract read by frontends.
type DeploymentRecord struct {
	Network         string  `json:"network" db:"network"`
	ContractAddress string  `json:"contractAddress" db:"contract_address"`
	DeployerAddress string  `json:"deployerAddress" db:"deployer_address"`
	DeploymentDate  string  `json:"deploymentDate" db:"deployment_date"`
	BlockNumber     *uint64 `json:"blockNumber" db:"block_number"`
	GasUsed         string  `json:"gasUsed" db:"gas_used"`
	TransactionHash string  `json:"transactionHash" db:"transaction_hash"`
}

// DeploymentFilter for querying the deployment history
type DeploymentFilter struct {
	Network         *string `json:"network,omitempty"`
	ContractAddress *string `json:"contract_address,omitempty"`
	Limit           int     `json:"limit,omitempty"`
	Offset          int     `json:"offset,omitempty"`
}

// HistoryEntry is a deployment record as kept in the history database
type HistoryEntry struct {
	ID           int64  `json:"id" db:"id"`
	ContractName string `json:"contractName" db:"contract_name"`
	DeploymentRecord
	FailedSteps int       `json:"failedSteps" db:"failed_steps"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
}
