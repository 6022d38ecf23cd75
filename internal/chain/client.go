package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tradegate/internal/config"
)

var (
	ErrReverted    = errors.New("chain: transaction reverted")
	ErrUnconfirmed = errors.New("chain: transaction not confirmed before timeout")
)

// balanceOf(address)
var balanceOfSelector = []byte{0x70, 0xa0, 0x82, 0x31}

// Backend is the subset of the JSON-RPC client used here. *ethclient.Client
// satisfies it.
type Backend interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

type Receipt struct {
	TxHash        string `json:"txHash"`
	BlockNumber   uint64 `json:"blockNumber"`
	GasUsed       uint64 `json:"gasUsed"`
	Confirmations uint64 `json:"confirmations"`
}

type Client struct {
	backend        Backend
	stableToken    common.Address
	stableDecimals int32
	nativeDecimals int32
	logger         *zap.Logger
}

func Dial(ctx context.Context, cfg config.ChainConfig, logger *zap.Logger) (*Client, error) {
	url := strings.TrimSpace(cfg.RPCURL)
	if url == "" {
		return nil, fmt.Errorf("chain: rpc url is required")
	}
	ec, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("chain: dial: %w", err)
	}
	return NewClient(ec, cfg, logger), nil
}

func NewClient(backend Backend, cfg config.ChainConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	stableDecimals := cfg.StableDecimals
	if stableDecimals <= 0 {
		stableDecimals = 6
	}
	nativeDecimals := cfg.NativeDecimals
	if nativeDecimals <= 0 {
		nativeDecimals = 18
	}
	return &Client{
		backend:        backend,
		stableToken:    common.HexToAddress(cfg.StableToken),
		stableDecimals: stableDecimals,
		nativeDecimals: nativeDecimals,
		logger:         logger,
	}
}

// NativeBalance is the gas asset balance in whole units.
func (c *Client) NativeBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	addr, err := parseAddress(address)
	if err != nil {
		return decimal.Zero, err
	}
	wei, err := c.backend.BalanceAt(ctx, addr, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("chain: native balance: %w", err)
	}
	return decimal.NewFromBigInt(wei, -c.nativeDecimals), nil
}

// StableBalance reads the ERC-20 balance of the configured stable token.
func (c *Client) StableBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	addr, err := parseAddress(address)
	if err != nil {
		return decimal.Zero, err
	}
	data := make([]byte, 0, 36)
	data = append(data, balanceOfSelector...)
	data = append(data, common.LeftPadBytes(addr.Bytes(), 32)...)
	to := c.stableToken
	out, err := c.backend.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("chain: stable balance: %w", err)
	}
	if len(out) == 0 {
		return decimal.Zero, fmt.Errorf("chain: stable balance: empty result from %s", to.Hex())
	}
	return decimal.NewFromBigInt(new(big.Int).SetBytes(out), -c.stableDecimals), nil
}

// WaitForConfirmation polls for the receipt of txHash until it has at least
// minConfirmations blocks on top (counting its own) or timeout passes.
func (c *Client) WaitForConfirmation(ctx context.Context, txHash string, minConfirmations uint64, timeout, interval time.Duration) (Receipt, error) {
	if !isTxHash(txHash) {
		return Receipt{}, fmt.Errorf("chain: invalid tx hash %q", txHash)
	}
	if minConfirmations == 0 {
		minConfirmations = 1
	}
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	hash := common.HexToHash(txHash)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		rcpt, done, err := c.checkReceipt(ctx, hash, minConfirmations)
		if done || err != nil {
			return rcpt, err
		}
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return Receipt{TxHash: txHash}, ErrUnconfirmed
			}
			return Receipt{TxHash: txHash}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) checkReceipt(ctx context.Context, hash common.Hash, minConfirmations uint64) (Receipt, bool, error) {
	rcpt, err := c.backend.TransactionReceipt(ctx, hash)
	if err != nil {
		if !errors.Is(err, ethereum.NotFound) && ctx.Err() == nil {
			c.logger.Debug("chain: receipt lookup failed", zap.String("tx_hash", hash.Hex()), zap.Error(err))
		}
		return Receipt{}, false, nil
	}
	if rcpt == nil {
		return Receipt{}, false, nil
	}
	out := Receipt{TxHash: hash.Hex(), GasUsed: rcpt.GasUsed}
	if rcpt.BlockNumber != nil {
		out.BlockNumber = rcpt.BlockNumber.Uint64()
	}
	if rcpt.Status == types.ReceiptStatusFailed {
		return out, true, ErrReverted
	}
	head, err := c.backend.BlockNumber(ctx)
	if err != nil {
		return out, false, nil
	}
	if head >= out.BlockNumber {
		out.Confirmations = head - out.BlockNumber + 1
	}
	return out, out.Confirmations >= minConfirmations, nil
}

func parseAddress(raw string) (common.Address, error) {
	raw = strings.TrimSpace(raw)
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("chain: invalid address %q", raw)
	}
	return common.HexToAddress(raw), nil
}

func isTxHash(raw string) bool {
	raw = strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	if len(raw) != 64 {
		return false
	}
	for _, r := range raw {
		if !strings.ContainsRune("0123456789abcdefABCDEF", r) {
			return false
		}
	}
	return true
}
