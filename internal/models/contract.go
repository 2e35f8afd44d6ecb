package models

import (
	"encoding/json"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// DeployedContract is the contract instantiated by the creation transaction.
// The address is derived from sender and nonce at submission time and must not be
// used until Confirmed is set.
type DeployedContract struct {
	Name       string              `json:"name"`
	Address    common.Address      `json:"address"`
	CreationTx *PendingTransaction `json:"creation_tx"`
	ABI        abi.ABI             `json:"-"`
	RawABI     json.RawMessage     `json:"abi,omitempty"`
	Confirmed  bool                `json:"confirmed"`
}

// ContractDescriptor is the {address, abi} file consumed by frontends
type ContractDescriptor struct {
	Address string          `json:"address"`
	ABI     json.RawMessage `json:"abi"`
}
