package account

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartdevs17/rsk-contract-deployer/internal/chaintest"
	"github.com/smartdevs17/rsk-contract-deployer/internal/metrics"
	"github.com/smartdevs17/rsk-contract-deployer/pkg/utils"
)

func TestNewLocalSigner(t *testing.T) {
	plain, err := NewLocalSigner(chaintest.TestPrivateKey, 31)
	require.NoError(t, err)
	prefixed, err := NewLocalSigner("0x"+chaintest.TestPrivateKey, 31)
	require.NoError(t, err)

	assert.Equal(t, chaintest.TestAddress(t), plain.Address())
	assert.Equal(t, plain.Address(), prefixed.Address())
	assert.Equal(t, int64(31), plain.ChainID().Int64())

	_, err = NewLocalSigner("not-a-key", 31)
	assert.Error(t, err)
}

func TestInspect(t *testing.T) {
	signer, err := NewLocalSigner(chaintest.TestPrivateKey, 31)
	require.NoError(t, err)
	minBalance, err := utils.ParseEther("0.1")
	require.NoError(t, err)

	t.Run("funded", func(t *testing.T) {
		backend := chaintest.NewBackend(31, signer.Address(), big.NewInt(1e18))
		acct, err := NewInspector(backend, signer, minBalance, metrics.NewManager()).Inspect(context.Background())
		require.NoError(t, err)
		assert.Equal(t, signer.Address(), acct.Address)
		assert.Equal(t, "1", utils.FormatEther(acct.Balance))
	})

	t.Run("low balance is advisory", func(t *testing.T) {
		backend := chaintest.NewBackend(31, signer.Address(), big.NewInt(1e15))
		acct, err := NewInspector(backend, signer, minBalance, nil).Inspect(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 0, acct.Balance.Cmp(big.NewInt(1e15)))
	})

	t.Run("no signer", func(t *testing.T) {
		backend := chaintest.NewBackend(31, signer.Address(), big.NewInt(1e18))
		_, err := NewInspector(backend, nil, minBalance, nil).Inspect(context.Background())
		require.Error(t, err)
		assert.Equal(t, utils.ErrCodeAccountUnavailable, utils.CodeOf(err))
	})

	t.Run("balance read fails", func(t *testing.T) {
		backend := chaintest.NewBackend(31, signer.Address(), big.NewInt(1e18))
		backend.BalanceErr = errors.New("unauthorized")
		_, err := NewInspector(backend, signer, minBalance, nil).Inspect(context.Background())
		require.Error(t, err)
		assert.Equal(t, utils.ErrCodeAccountUnavailable, utils.CodeOf(err))
	})
}
