// Package chaintest provides in-memory chain fakes for tests.
package chaintest

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/smartdevs17/rsk-contract-deployer/internal/models"
)

// ErrInsufficientFunds mirrors the node's rejection message
var ErrInsufficientFunds = errors.New("insufficient funds for gas * price + value")

// Backend is an in-memory chain. Sent transactions are mined into the next block
// and every receipt lookup produces one new block.
type Backend struct {
	mu sync.Mutex

	ChainIDValue *big.Int
	Balances     map[common.Address]*big.Int
	Nonces       map[common.Address]uint64
	GasPrice     *big.Int
	GasEstimate  uint64

	EstimateErr error
	BalanceErr  error
	// SendErr rejects every transaction; RejectTo rejects only calls to that address
	SendErr  error
	RejectTo map[common.Address]error
	// AcceptErr is returned after the transaction was accepted, like a
	// timeout that fires once the node already has it
	AcceptErr error
	// RevertTo makes calls to the address mine with a failed receipt
	RevertTo map[common.Address]bool

	Head     uint64
	Sent     []*types.Transaction
	receipts map[common.Hash]*types.Receipt
}

// NewBackend creates a backend for chainID with a single funded account
func NewBackend(chainID int64, funded common.Address, balance *big.Int) *Backend {
	return &Backend{
		ChainIDValue: big.NewInt(chainID),
		Balances:     map[common.Address]*big.Int{funded: balance},
		Nonces:       map[common.Address]uint64{},
		GasPrice:     big.NewInt(60_000_000),
		GasEstimate:  1_500_000,
		RejectTo:     map[common.Address]error{},
		RevertTo:     map[common.Address]bool{},
		Head:         100,
		receipts:     map[common.Hash]*types.Receipt{},
	}
}

func (b *Backend) ChainID(ctx context.Context) (*big.Int, error) {
	return new(big.Int).Set(b.ChainIDValue), nil
}

func (b *Backend) BlockNumber(ctx context.Context) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.Head, nil
}

func (b *Backend) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.BalanceErr != nil {
		return nil, b.BalanceErr
	}
	if bal, ok := b.Balances[account]; ok {
		return new(big.Int).Set(bal), nil
	}
	return big.NewInt(0), nil
}

func (b *Backend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.Nonces[account], nil
}

func (b *Backend) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return new(big.Int).Set(b.GasPrice), nil
}

func (b *Backend) EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error) {
	if b.EstimateErr != nil {
		return 0, b.EstimateErr
	}
	return b.GasEstimate, nil
}

func (b *Backend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.SendErr != nil {
		return b.SendErr
	}
	if tx.To() != nil {
		if err, ok := b.RejectTo[*tx.To()]; ok {
			return err
		}
	}

	from, err := types.Sender(types.LatestSignerForChainID(b.ChainIDValue), tx)
	if err != nil {
		return err
	}
	cost := new(big.Int).Mul(tx.GasPrice(), new(big.Int).SetUint64(tx.Gas()))
	if bal := b.Balances[from]; bal == nil || bal.Cmp(cost) < 0 {
		return ErrInsufficientFunds
	}
	if tx.Nonce() != b.Nonces[from] {
		return errors.New("nonce too low")
	}
	b.Nonces[from]++

	receipt := &types.Receipt{
		Status:      types.ReceiptStatusSuccessful,
		TxHash:      tx.Hash(),
		GasUsed:     tx.Gas() * 3 / 4,
		BlockNumber: new(big.Int).SetUint64(b.Head + 1),
	}
	if tx.To() == nil {
		receipt.ContractAddress = crypto.CreateAddress(from, tx.Nonce())
	} else if b.RevertTo[*tx.To()] {
		receipt.Status = types.ReceiptStatusFailed
	}
	b.receipts[tx.Hash()] = receipt
	b.Sent = append(b.Sent, tx)
	return b.AcceptErr
}

func (b *Backend) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Head++
	receipt, ok := b.receipts[txHash]
	if !ok || receipt.BlockNumber.Uint64() > b.Head {
		return nil, ethereum.NotFound
	}
	return receipt, nil
}

func (b *Backend) TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, tx := range b.Sent {
		if tx.Hash() == hash {
			_, mined := b.receipts[hash]
			return tx, !mined, nil
		}
	}
	return nil, false, ethereum.NotFound
}

// SentCount returns the number of accepted transactions
func (b *Backend) SentCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.Sent)
}

// ScriptedPoller replays a fixed sequence of observations, repeating the last
// one once the script is exhausted.
type ScriptedPoller struct {
	mu     sync.Mutex
	Script []ScriptStep
	Calls  int
}

// ScriptStep is one scripted poll result
type ScriptStep struct {
	Status *models.TransactionStatus
	Err    error
}

// Mined returns a successful observation at block with n confirmations
func Mined(block, n uint64) ScriptStep {
	return ScriptStep{Status: &models.TransactionStatus{
		State:         models.TxStateMined,
		BlockNumber:   block,
		Confirmations: n,
		GasUsed:       21000,
	}}
}

// State returns an observation with only a state
func State(state models.TxState) ScriptStep {
	return ScriptStep{Status: &models.TransactionStatus{State: state}}
}

// Failure returns a transient poll error
func Failure(err error) ScriptStep {
	return ScriptStep{Err: err}
}

func (p *ScriptedPoller) TransactionStatus(ctx context.Context, txHash common.Hash) (*models.TransactionStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.Script) == 0 {
		return &models.TransactionStatus{State: models.TxStateUnknown}, nil
	}
	i := p.Calls
	if i >= len(p.Script) {
		i = len(p.Script) - 1
	}
	p.Calls++

	step := p.Script[i]
	if step.Err != nil {
		return nil, step.Err
	}
	status := *step.Status
	return &status, nil
}

// CallCount returns how many polls were made
func (p *ScriptedPoller) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Calls
}
