package config

import "strings"

// knownNetworks maps well-known network names to their chain ids
var knownNetworks = map[string][]int64{
	"rsk-mainnet": {30},
	"rsk-testnet": {31},
	"rsk-regtest": {33},
	"mainnet":     {1},
	"sepolia":     {11155111},
	"holesky":     {17000},
	"hardhat":     {31337},
	"localhost":   {31337, 1337},
}

// NameMismatch reports whether the configured network name is a well-known name
// that belongs to a different chain id than the configured one. Unknown names
// are never reported.
func (n *NetworkConfig) NameMismatch() (expected []int64, mismatch bool) {
	ids, ok := knownNetworks[strings.ToLower(n.Name)]
	if !ok {
		return nil, false
	}
	for _, id := range ids {
		if id == n.ChainID {
			return ids, false
		}
	}
	return ids, true
}
