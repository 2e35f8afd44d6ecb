package models

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// SigningAccount is a read-once snapshot of the deployer account
type SigningAccount struct {
	Address common.Address `json:"address"`
	Balance *big.Int       `json:"balance"`
}
