package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"tradegate/internal/models"
)

type TradeRepository interface {
	InsertTrade(ctx context.Context, item *models.Trade) error
	GetTradeByID(ctx context.Context, id string) (*models.Trade, error)
	ListTrades(ctx context.Context, params ListTradesParams) ([]models.Trade, error)
	// TransitionTrade applies update only while the current status is one of
	// from. It reports whether the row changed; false means another writer
	// moved the trade first.
	TransitionTrade(ctx context.Context, id string, from []string, update TradeUpdate) (bool, error)
	IncrementTradeRetry(ctx context.Context, id string) (int, error)
	SetTradeRealizedPnL(ctx context.Context, id string, pnl decimal.Decimal) error
	SumRealizedPnLSince(ctx context.Context, since time.Time) (decimal.Decimal, error)
	// ListFilledTradesByMarket returns the newest filled trades first.
	ListFilledTradesByMarket(ctx context.Context, marketID string, limit int) ([]models.Trade, error)
}

type PositionRepository interface {
	GetPositionByTokenID(ctx context.Context, tokenID string) (*models.Position, error)
	UpsertPosition(ctx context.Context, item *models.Position) error
	ListOpenPositions(ctx context.Context) ([]models.Position, error)
	SumOpenCostBasisByMarket(ctx context.Context, marketID string) (decimal.Decimal, error)
	CountOpenPositions(ctx context.Context) (int64, error)
}

type PortfolioRepository interface {
	GetPortfolio(ctx context.Context) (*models.Portfolio, error)
	SavePortfolio(ctx context.Context, item *models.Portfolio) error
	UpsertPortfolioSnapshot(ctx context.Context, item *models.PortfolioSnapshot) error
	// ListPortfolioSnapshots returns up to limit snapshots, oldest first.
	ListPortfolioSnapshots(ctx context.Context, limit int) ([]models.PortfolioSnapshot, error)
}

type StrategyScoreRepository interface {
	ListStrategyScores(ctx context.Context) ([]models.StrategyScore, error)
	GetStrategyScore(ctx context.Context, strategyID string) (*models.StrategyScore, error)
	UpsertStrategyScore(ctx context.Context, item *models.StrategyScore) error
}

type RiskEventRepository interface {
	InsertRiskEvent(ctx context.Context, item *models.RiskEvent) error
	ListRiskEvents(ctx context.Context, params ListRiskEventsParams) ([]models.RiskEvent, error)
}

type SettingsRepository interface {
	GetSystemSettingByKey(ctx context.Context, key string) (*models.SystemSetting, error)
	UpsertSystemSetting(ctx context.Context, item *models.SystemSetting) error
}

type Repository interface {
	TradeRepository
	PositionRepository
	PortfolioRepository
	StrategyScoreRepository
	RiskEventRepository
	SettingsRepository

	// WithTx runs fn against a repository bound to one transaction.
	WithTx(ctx context.Context, fn func(tx Repository) error) error
}

// TradeUpdate lists the mutable trade columns. Nil fields are left as is.
type TradeUpdate struct {
	Status        string
	Price         *decimal.Decimal
	TxHash        *string
	VenueOrderID  *string
	FilledPrice   *decimal.Decimal
	FilledSizeUSD *decimal.Decimal
	Slippage      *decimal.Decimal
	GasUsed       *uint64
	ErrorCode     *string
	ErrorMessage  *string
	SubmittedAt   *time.Time
	FilledAt      *time.Time
	CancelledAt   *time.Time
}

// Apply copies the set fields onto item.
func (u TradeUpdate) Apply(item *models.Trade) {
	if item == nil {
		return
	}
	if u.Status != "" {
		item.Status = u.Status
	}
	if u.Price != nil {
		item.Price = *u.Price
	}
	if u.TxHash != nil {
		item.TxHash = *u.TxHash
	}
	if u.VenueOrderID != nil {
		item.VenueOrderID = *u.VenueOrderID
	}
	if u.FilledPrice != nil {
		v := *u.FilledPrice
		item.FilledPrice = &v
	}
	if u.FilledSizeUSD != nil {
		v := *u.FilledSizeUSD
		item.FilledSizeUSD = &v
	}
	if u.Slippage != nil {
		v := *u.Slippage
		item.Slippage = &v
	}
	if u.GasUsed != nil {
		item.GasUsed = *u.GasUsed
	}
	if u.ErrorCode != nil {
		item.ErrorCode = *u.ErrorCode
	}
	if u.ErrorMessage != nil {
		item.ErrorMessage = *u.ErrorMessage
	}
	if u.SubmittedAt != nil {
		v := *u.SubmittedAt
		item.SubmittedAt = &v
	}
	if u.FilledAt != nil {
		v := *u.FilledAt
		item.FilledAt = &v
	}
	if u.CancelledAt != nil {
		v := *u.CancelledAt
		item.CancelledAt = &v
	}
}

// Columns renders the update as a gorm column map.
func (u TradeUpdate) Columns(now time.Time) map[string]any {
	out := map[string]any{"updated_at": now}
	if u.Status != "" {
		out["status"] = u.Status
	}
	if u.Price != nil {
		out["price"] = *u.Price
	}
	if u.TxHash != nil {
		out["tx_hash"] = *u.TxHash
	}
	if u.VenueOrderID != nil {
		out["venue_order_id"] = *u.VenueOrderID
	}
	if u.FilledPrice != nil {
		out["filled_price"] = *u.FilledPrice
	}
	if u.FilledSizeUSD != nil {
		out["filled_size_usd"] = *u.FilledSizeUSD
	}
	if u.Slippage != nil {
		out["slippage"] = *u.Slippage
	}
	if u.GasUsed != nil {
		out["gas_used"] = *u.GasUsed
	}
	if u.ErrorCode != nil {
		out["error_code"] = *u.ErrorCode
	}
	if u.ErrorMessage != nil {
		out["error_message"] = *u.ErrorMessage
	}
	if u.SubmittedAt != nil {
		out["submitted_at"] = *u.SubmittedAt
	}
	if u.FilledAt != nil {
		out["filled_at"] = *u.FilledAt
	}
	if u.CancelledAt != nil {
		out["cancelled_at"] = *u.CancelledAt
	}
	return out
}

type ListTradesParams struct {
	Limit    int
	Offset   int
	Status   *string
	MarketID *string
	Since    *time.Time
	OrderBy  string
	Asc      *bool
}

type ListRiskEventsParams struct {
	Limit     int
	Offset    int
	Severity  *string
	EventType *string
	MarketID  *string
	Since     *time.Time
}
