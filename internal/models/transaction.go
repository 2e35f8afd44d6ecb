package models

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// PendingTransaction is a submitted transaction that has not reached its
// required confirmation depth yet
type PendingTransaction struct {
	Hash        common.Hash     `json:"hash"`
	From        common.Address  `json:"from"`
	To          *common.Address `json:"to"` // nil for contract creation
	Nonce       uint64          `json:"nonce"`
	GasLimit    uint64          `json:"gas_limit"`
	GasPrice    *big.Int        `json:"gas_price"`
	BlockNumber *uint64         `json:"block_number,omitempty"`
	SubmittedAt time.Time       `json:"submitted_at"`
}

// IsContractCreation reports whether the transaction has no recipient
func (p *PendingTransaction) IsContractCreation() bool {
	return p.To == nil
}

// ConfirmedTransaction is a pending transaction that reached its required depth
type ConfirmedTransaction struct {
	Pending         *PendingTransaction `json:"pending"`
	BlockNumber     uint64              `json:"block_number"`
	Confirmations   uint64              `json:"confirmations"`
	GasUsed         uint64              `json:"gas_used"`
	ContractAddress common.Address      `json:"contract_address"`
	ConfirmedAt     time.Time           `json:"confirmed_at"`
}

// TxState is the lifecycle state reported by a status poll
type TxState string

const (
	TxStateUnknown  TxState = "unknown"  // not known to the node at all
	TxStatePending  TxState = "pending"  // known, not mined
	TxStateMined    TxState = "mined"    // mined with a successful receipt
	TxStateReverted TxState = "reverted" // mined, execution failed
)

// TransactionStatus is one observation of a transaction by the network collaborator
type TransactionStatus struct {
	State           TxState        `json:"state"`
	BlockNumber     uint64         `json:"block_number"`
	Confirmations   uint64         `json:"confirmations"`
	GasUsed         uint64         `json:"gas_used"`
	ContractAddress common.Address `json:"contract_address"`
}
