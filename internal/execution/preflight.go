package execution

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"tradegate/internal/domain"
)

// preflight checks the wallet can pay for gas and, for buys, for the order
// itself. Sells spend outcome tokens, not the stable asset.
func (e *Engine) preflight(ctx context.Context, req domain.TradeExecutionRequest) (domain.ExecutionErrorCode, error) {
	addr := e.Signer.Address()
	native, err := e.Chain.NativeBalance(ctx, addr)
	if err != nil {
		return domain.ErrCodeExecutionFailed, fmt.Errorf("preflight: %w", err)
	}
	minGas := decimal.NewFromFloat(e.config().MinGasBalance)
	if native.LessThan(minGas) {
		return domain.ErrCodeInsufficientGas, fmt.Errorf("gas balance %s below minimum %s", native, minGas)
	}
	if req.Direction != domain.DirectionBuy {
		return "", nil
	}
	stable, err := e.Chain.StableBalance(ctx, addr)
	if err != nil {
		return domain.ErrCodeExecutionFailed, fmt.Errorf("preflight: %w", err)
	}
	if stable.LessThan(req.SizeUSD) {
		return domain.ErrCodeInsufficientBalance, fmt.Errorf("stable balance %s below order size %s", stable, req.SizeUSD)
	}
	return "", nil
}
