package utils

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/params"
)

var weiPerEther = new(big.Float).SetInt(big.NewInt(params.Ether))

// IsValidAddress checks if a string is a valid Ethereum address
func IsValidAddress(address string) bool {
	return common.IsHexAddress(address)
}

// NormalizeAddress normalizes an address to lowercase with 0x prefix
func NormalizeAddress(address string) string {
	if !strings.HasPrefix(address, "0x") {
		address = "0x" + address
	}
	return strings.ToLower(address)
}

// FormatEther renders a wei amount in ether units
func FormatEther(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	f := new(big.Float).SetInt(wei)
	f.Quo(f, weiPerEther)
	s := f.Text('f', 18)
	s = strings.TrimRight(s, "0")
	s = strings.TrimSuffix(s, ".")
	if s == "" || s == "-" {
		return "0"
	}
	return s
}

// ParseEther converts a decimal ether amount such as "0.1" into wei. Digits
// below one wei are dropped.
func ParseEther(amount string) (*big.Int, error) {
	r, ok := new(big.Rat).SetString(strings.TrimSpace(amount))
	if !ok {
		return nil, fmt.Errorf("invalid ether amount %q", amount)
	}
	if r.Sign() < 0 {
		return nil, fmt.Errorf("negative ether amount %q", amount)
	}
	r.Mul(r, new(big.Rat).SetInt(big.NewInt(params.Ether)))
	return new(big.Int).Quo(r.Num(), r.Denom()), nil
}

// DecodeHexBytes decodes an optional 0x-prefixed hex string
func DecodeHexBytes(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		s = "0x" + s
	}
	return hexutil.Decode(s)
}
