package chain

import (
	"bytes"
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradegate/internal/config"
)

const (
	testAddr = "0x1111111111111111111111111111111111111111"
	testTx   = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
)

type fakeBackend struct {
	mu       sync.Mutex
	balance  *big.Int
	stable   *big.Int
	lastCall ethereum.CallMsg
	receipt  *types.Receipt
	head     uint64
	// receipts become visible after this many lookups
	hideFor int
	lookups int
}

func (f *fakeBackend) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	return f.balance, nil
}

func (f *fakeBackend) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	f.mu.Lock()
	f.lastCall = msg
	f.mu.Unlock()
	return common.LeftPadBytes(f.stable.Bytes(), 32), nil
}

func (f *fakeBackend) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	if f.receipt == nil || f.lookups <= f.hideFor {
		return nil, ethereum.NotFound
	}
	return f.receipt, nil
}

func (f *fakeBackend) BlockNumber(ctx context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.head, nil
}

func testConfig() config.ChainConfig {
	return config.ChainConfig{StableToken: "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174", StableDecimals: 6, NativeDecimals: 18}
}

func TestBalances(t *testing.T) {
	wei, _ := new(big.Int).SetString("1500000000000000000", 10)
	fb := &fakeBackend{balance: wei, stable: big.NewInt(250_500_000)}
	c := NewClient(fb, testConfig(), nil)

	native, err := c.NativeBalance(context.Background(), testAddr)
	require.NoError(t, err)
	assert.Equal(t, "1.5", native.String())

	stable, err := c.StableBalance(context.Background(), testAddr)
	require.NoError(t, err)
	assert.Equal(t, "250.5", stable.String())
	assert.True(t, bytes.HasPrefix(fb.lastCall.Data, balanceOfSelector))
	assert.Len(t, fb.lastCall.Data, 36)
	assert.Equal(t, common.HexToAddress(testConfig().StableToken), *fb.lastCall.To)

	_, err = c.NativeBalance(context.Background(), "not-an-address")
	assert.Error(t, err)
}

func TestWaitForConfirmation_Confirmed(t *testing.T) {
	fb := &fakeBackend{
		receipt: &types.Receipt{Status: types.ReceiptStatusSuccessful, GasUsed: 21000, BlockNumber: big.NewInt(100)},
		head:    101,
		hideFor: 2,
	}
	c := NewClient(fb, testConfig(), nil)
	r, err := c.WaitForConfirmation(context.Background(), testTx, 2, time.Second, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, uint64(21000), r.GasUsed)
	assert.Equal(t, uint64(2), r.Confirmations)
	assert.Equal(t, 3, fb.lookups)
}

func TestWaitForConfirmation_Reverted(t *testing.T) {
	fb := &fakeBackend{receipt: &types.Receipt{Status: types.ReceiptStatusFailed, BlockNumber: big.NewInt(5)}, head: 5}
	c := NewClient(fb, testConfig(), nil)
	_, err := c.WaitForConfirmation(context.Background(), testTx, 1, time.Second, time.Millisecond)
	assert.ErrorIs(t, err, ErrReverted)
}

func TestWaitForConfirmation_Timeout(t *testing.T) {
	fb := &fakeBackend{}
	c := NewClient(fb, testConfig(), nil)
	_, err := c.WaitForConfirmation(context.Background(), testTx, 1, 20*time.Millisecond, 2*time.Millisecond)
	assert.ErrorIs(t, err, ErrUnconfirmed)

	// Not enough blocks on top counts as unconfirmed too.
	fb = &fakeBackend{receipt: &types.Receipt{Status: types.ReceiptStatusSuccessful, BlockNumber: big.NewInt(10)}, head: 10}
	c = NewClient(fb, testConfig(), nil)
	_, err = c.WaitForConfirmation(context.Background(), testTx, 3, 20*time.Millisecond, 2*time.Millisecond)
	assert.ErrorIs(t, err, ErrUnconfirmed)
}

func TestWaitForConfirmation_BadHash(t *testing.T) {
	c := NewClient(&fakeBackend{}, testConfig(), nil)
	_, err := c.WaitForConfirmation(context.Background(), "0x1234", 1, time.Second, time.Millisecond)
	assert.Error(t, err)
}
