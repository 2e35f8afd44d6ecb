package chaintest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

// TestPrivateKey is a well-known development key; never fund it on a real network
const TestPrivateKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

// ArtifactJSON is a minimal Hardhat artifact exposing authorizeVerifier(address)
const ArtifactJSON = `{
  "_format": "hh-sol-artifact-1",
  "contractName": "FakeProductIdentification",
  "sourceName": "contracts/Project.sol",
  "abi": [
    {"inputs": [], "stateMutability": "nonpayable", "type": "constructor"},
    {"inputs": [{"internalType": "address", "name": "_verifier", "type": "address"}],
     "name": "authorizeVerifier", "outputs": [], "stateMutability": "nonpayable", "type": "function"},
    {"inputs": [{"internalType": "address", "name": "", "type": "address"}],
     "name": "authorizedVerifiers", "outputs": [{"internalType": "bool", "name": "", "type": "bool"}],
     "stateMutability": "view", "type": "function"}
  ],
  "bytecode": "0x6080604052348015600f57600080fd5b50603f80601d6000396000f3fe6080604052600080fdfea164736f6c6343000813000a"
}`

// WriteArtifact writes ArtifactJSON under dir using the Hardhat layout and
// returns its path
func WriteArtifact(t testing.TB, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "contracts", "Project.sol", "FakeProductIdentification.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(ArtifactJSON), 0o644))
	return path
}

// TestAddress returns the address of TestPrivateKey
func TestAddress(t testing.TB) common.Address {
	t.Helper()
	key, err := crypto.HexToECDSA(TestPrivateKey)
	require.NoError(t, err)
	return crypto.PubkeyToAddress(key.PublicKey)
}
