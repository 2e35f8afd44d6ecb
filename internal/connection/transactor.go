package connection

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/rsk-contract-deployer/internal/models"
	"github.com/smartdevs17/rsk-contract-deployer/pkg/utils"
)

// ErrMaybeBroadcast marks a send that failed after the node may already have
// received the transaction
var ErrMaybeBroadcast = errors.New("transaction may have been broadcast")

// Signer signs transactions on behalf of one account
type Signer interface {
	Address() common.Address
	SignTransaction(ctx context.Context, tx *types.Transaction) (*types.Transaction, error)
}

// TxRequest describes a transaction to build and submit
type TxRequest struct {
	To    *common.Address // nil for contract creation
	Data  []byte
	Value *big.Int

	// FallbackGasLimit is used when estimation fails. Zero makes an
	// estimation failure an error.
	FallbackGasLimit uint64
}

// Transactor builds, signs, and broadcasts transactions from one signer
type Transactor struct {
	backend          Backend
	signer           Signer
	gasBufferPercent uint64
	logger           *logrus.Logger
}

// NewTransactor creates a new transactor
func NewTransactor(backend Backend, signer Signer, gasBufferPercent uint64) *Transactor {
	return &Transactor{
		backend:          backend,
		signer:           signer,
		gasBufferPercent: gasBufferPercent,
		logger:           utils.GetLogger(),
	}
}

// Submit signs and broadcasts req. The returned error describes which stage failed.
// When the send fails with an unknown outcome the pending transaction is returned
// together with an error wrapping ErrMaybeBroadcast.
func (t *Transactor) Submit(ctx context.Context, req TxRequest) (*models.PendingTransaction, error) {
	from := t.signer.Address()
	value := req.Value
	if value == nil {
		value = big.NewInt(0)
	}

	nonce, err := t.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("get nonce: %w", err)
	}

	gasPrice, err := t.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("get gas price: %w", err)
	}

	gasLimit, err := t.backend.EstimateGas(ctx, ethereum.CallMsg{
		From:     from,
		To:       req.To,
		GasPrice: gasPrice,
		Value:    value,
		Data:     req.Data,
	})
	if err != nil {
		if req.FallbackGasLimit == 0 {
			return nil, fmt.Errorf("estimate gas: %w", err)
		}
		gasLimit = req.FallbackGasLimit
		t.logger.WithFields(logrus.Fields{
			"gas_limit": gasLimit,
			"error":     err,
		}).Warn("Gas estimation failed, using fallback gas limit")
	} else {
		gasLimit = gasLimit * (100 + t.gasBufferPercent) / 100
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       req.To,
		Value:    value,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     req.Data,
	})

	signedTx, err := t.signer.SignTransaction(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}

	sendErr := t.backend.SendTransaction(ctx, signedTx)
	if sendErr != nil && !outcomeUnknown(sendErr) {
		return nil, fmt.Errorf("send transaction: %w", sendErr)
	}

	pending := &models.PendingTransaction{
		Hash:        signedTx.Hash(),
		From:        from,
		To:          req.To,
		Nonce:       nonce,
		GasLimit:    gasLimit,
		GasPrice:    gasPrice,
		SubmittedAt: time.Now().UTC(),
	}

	if sendErr != nil {
		t.logger.WithFields(logrus.Fields{
			"tx_hash": pending.Hash.Hex(),
			"nonce":   nonce,
			"error":   sendErr,
		}).Warn("Send failed after the transaction may have reached the node")
		return pending, fmt.Errorf("send transaction: %w: %w", ErrMaybeBroadcast, sendErr)
	}

	t.logger.WithFields(logrus.Fields{
		"tx_hash":   pending.Hash.Hex(),
		"nonce":     nonce,
		"gas_limit": gasLimit,
		"gas_price": gasPrice.String(),
	}).Debug("Transaction submitted")

	return pending, nil
}

// outcomeUnknown reports whether a send error leaves open that the node accepted
// the transaction. Errors answered by the node itself are rejections.
func outcomeUnknown(err error) bool {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return false
	}
	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode >= http.StatusInternalServerError
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
