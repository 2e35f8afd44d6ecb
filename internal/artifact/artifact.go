// Package artifact reads compiled contract artifacts produced by Hardhat or Foundry.
package artifact

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/smartdevs17/rsk-contract-deployer/pkg/utils"
)

// ErrNotFound is returned when no artifact exists at the given path
var ErrNotFound = errors.New("artifact not found")

// Artifact is a compiled contract with its interface description and creation code
type Artifact struct {
	ContractName string          `json:"contractName,omitempty"`
	SourceName   string          `json:"sourceName,omitempty"`
	RawABI       json.RawMessage `json:"abi"`
	Bytecode     Bytecode        `json:"bytecode"`

	parsed *abi.ABI
}

// Bytecode accepts both "0x..." and {"object": "0x..."} encodings
type Bytecode struct {
	hex string
}

// UnmarshalJSON handles both string and object bytecode formats.
func (b *Bytecode) UnmarshalJSON(data []byte) error {
	// Hardhat
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		b.hex = s
		return nil
	}

	// Foundry
	var obj struct {
		Object string `json:"object"`
	}
	if err := json.Unmarshal(data, &obj); err == nil {
		b.hex = obj.Object
		return nil
	}

	return fmt.Errorf("bytecode must be a string or object with 'object' field")
}

// MarshalJSON marshals the bytecode as a string.
func (b Bytecode) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.hex)
}

// String returns the bytecode hex string.
func (b Bytecode) String() string {
	return b.hex
}

// Bytes decodes the creation code
func (b Bytecode) Bytes() ([]byte, error) {
	h := b.hex
	if !strings.HasPrefix(h, "0x") {
		h = "0x" + h
	}
	if h == "0x" {
		return nil, fmt.Errorf("empty bytecode")
	}
	return hexutil.Decode(h)
}

// Load reads and validates an artifact file
func Load(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("read artifact %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes artifact JSON and parses its ABI
func Parse(data []byte) (*Artifact, error) {
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("decode artifact: %w", err)
	}
	if len(a.RawABI) == 0 {
		return nil, fmt.Errorf("artifact has no abi")
	}
	parsed, err := abi.JSON(bytes.NewReader(a.RawABI))
	if err != nil {
		return nil, fmt.Errorf("parse abi: %w", err)
	}
	a.parsed = &parsed
	return &a, nil
}

// ABI returns the parsed interface description
func (a *Artifact) ABI() abi.ABI {
	if a.parsed == nil {
		return abi.ABI{}
	}
	return *a.parsed
}

// CreationCode returns the bytecode followed by the ABI-encoded constructor arguments
func (a *Artifact) CreationCode(constructorArgs []byte) ([]byte, error) {
	code, err := a.Bytecode.Bytes()
	if err != nil {
		return nil, utils.WrapError(utils.ErrCodeValidation, "Invalid creation bytecode", err)
	}
	data := make([]byte, 0, len(code)+len(constructorArgs))
	data = append(data, code...)
	return append(data, constructorArgs...), nil
}
