package execution

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tradegate/internal/chain"
	"tradegate/internal/client/venue"
	"tradegate/internal/config"
	"tradegate/internal/domain"
	"tradegate/internal/models"
	"tradegate/internal/repository"
	"tradegate/internal/wallet"
)

var (
	ErrTradeNotFound  = errors.New("execution: trade not found")
	ErrInvalidRequest = errors.New("execution: invalid request")
	ErrNotConfigured  = errors.New("execution: live trading is not configured")

	errCancelled = errors.New("trade cancelled while executing")
)

// Chain is the on-chain view the engine needs. *chain.Client satisfies it.
type Chain interface {
	NativeBalance(ctx context.Context, address string) (decimal.Decimal, error)
	StableBalance(ctx context.Context, address string) (decimal.Decimal, error)
	WaitForConfirmation(ctx context.Context, txHash string, minConfirmations uint64, timeout, interval time.Duration) (chain.Receipt, error)
}

// Venue is the order book. *venue.Client satisfies it.
type Venue interface {
	GetPrice(ctx context.Context, tokenID, side string) (decimal.Decimal, error)
	PlaceOrder(ctx context.Context, req venue.PlaceOrderRequest) (*venue.OrderResult, error)
}

// OrderSigner is the wallet. *wallet.Signer satisfies it.
type OrderSigner interface {
	Address() string
	SignOrder(p wallet.OrderParams) (wallet.SignedOrder, error)
}

// Settler books a filled trade into positions and the portfolio.
type Settler interface {
	Settle(ctx context.Context, trade models.Trade) error
}

// activeStatuses are the states a trade can still leave.
var activeStatuses = []string{models.TradeStatusPending, models.TradeStatusSubmitted}

type Engine struct {
	Config        config.ExecutorConfig
	SignatureType int
	NativeSymbol  string

	Trades  repository.TradeRepository
	Settler Settler
	Signer  OrderSigner
	Chain   Chain
	Venue   Venue
	Clock   Clock
	Logger  *zap.Logger

	rngMu sync.Mutex
	rng   *rand.Rand
}

func NewEngine(cfg config.ExecutorConfig, trades repository.TradeRepository, logger *zap.Logger) *Engine {
	seed := uint64(time.Now().UnixNano())
	return &Engine{
		Config: cfg,
		Trades: trades,
		Clock:  SystemClock(),
		Logger: logger,
		rng:    rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// Seed makes simulated fills reproducible.
func (e *Engine) Seed(seed uint64) {
	e.rngMu.Lock()
	e.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	e.rngMu.Unlock()
}

// ExecuteTrade persists a PENDING trade and drives it to FILLED, FAILED or
// CANCELLED. Business failures come back as an unsuccessful result with a nil
// error; a non-nil error means the request was invalid or storage failed.
func (e *Engine) ExecuteTrade(ctx context.Context, req domain.TradeExecutionRequest) (domain.TradeExecutionResult, error) {
	req, err := normalizeRequest(req)
	if err != nil {
		return domain.TradeExecutionResult{}, err
	}
	cfg := e.config()
	if req.MaxSlippageBps == 0 {
		req.MaxSlippageBps = cfg.DefaultMaxSlippageBps
	}
	if !cfg.Simulation && (e.Signer == nil || e.Chain == nil || e.Venue == nil) {
		return domain.TradeExecutionResult{}, ErrNotConfigured
	}

	trade := &models.Trade{
		ID:             uuid.NewString(),
		MarketID:       req.MarketID,
		TokenID:        req.TokenID,
		Side:           string(req.Side),
		Direction:      string(req.Direction),
		OrderType:      string(req.OrderType),
		SizeUSD:        req.SizeUSD,
		LimitPrice:     req.LimitPrice,
		MaxSlippageBps: req.MaxSlippageBps,
		StrategyID:     req.StrategyID,
		StrategyIDs:    models.EncodeStrategyIDs(append([]string{req.StrategyID}, req.StrategyIDs...)),
		Confidence:     req.Confidence,
		Status:         models.TradeStatusPending,
		Simulated:      cfg.Simulation,
		CreatedAt:      e.clock().Now(),
	}
	if err := e.Trades.InsertTrade(ctx, trade); err != nil {
		return domain.TradeExecutionResult{}, fmt.Errorf("execution: persist trade: %w", err)
	}
	log := e.logger().With(
		zap.String("trade_id", trade.ID),
		zap.String("market_id", trade.MarketID),
		zap.String("direction", trade.Direction),
		zap.String("size_usd", trade.SizeUSD.String()),
	)
	log.Info("executor: trade accepted", zap.Bool("simulated", cfg.Simulation))

	if cfg.Simulation {
		return e.simulate(ctx, trade.ID, req, log)
	}
	return e.executeLive(ctx, trade.ID, req, log)
}

func (e *Engine) executeLive(ctx context.Context, tradeID string, req domain.TradeExecutionRequest, log *zap.Logger) (domain.TradeExecutionResult, error) {
	cfg := e.config()
	// The record has to reach a terminal state even when the caller goes away.
	final := context.WithoutCancel(ctx)

	if code, err := e.preflight(ctx, req); err != nil {
		return e.fail(final, tradeID, code, err, log)
	}

	quote, err := e.Venue.GetPrice(ctx, req.TokenID, string(req.Direction))
	if err != nil {
		return e.fail(final, tradeID, domain.ErrCodePriceUnavailable, fmt.Errorf("price for token %s: %w", req.TokenID, err), log)
	}
	if !quote.IsPositive() || quote.GreaterThan(decimal.NewFromInt(1)) {
		return e.fail(final, tradeID, domain.ErrCodePriceUnavailable, fmt.Errorf("price for token %s out of range: %s", req.TokenID, quote), log)
	}

	orderPrice := quote
	reference := quote
	switch {
	case req.OrderType == domain.OrderTypeLimit:
		orderPrice = *req.LimitPrice
		reference = *req.LimitPrice
	case req.LimitPrice != nil:
		reference = *req.LimitPrice
		if bps := slippageBps(reference, quote); bps > int64(req.MaxSlippageBps) {
			return e.fail(final, tradeID, domain.ErrCodeSlippageExceeded,
				fmt.Errorf("quote %s is %d bps from %s, max %d", quote, bps, reference, req.MaxSlippageBps), log)
		}
	}
	ok, err := e.Trades.TransitionTrade(ctx, tradeID, []string{models.TradeStatusPending}, repository.TradeUpdate{Price: &orderPrice})
	if err != nil {
		return e.fail(final, tradeID, domain.ErrCodeExecutionFailed, err, log)
	}
	if !ok {
		return e.current(final, tradeID)
	}

	policy := RetryPolicy{MaxRetries: cfg.MaxRetries, BaseDelay: cfg.BaseDelay}
	var receipt chain.Receipt
	attempts, runErr := policy.Run(ctx, e.clock(),
		func(retry int, err error) {
			count, ierr := e.Trades.IncrementTradeRetry(final, tradeID)
			if ierr != nil {
				log.Warn("executor: record retry failed", zap.Error(ierr))
			}
			log.Warn("executor: attempt failed, retrying",
				zap.Int("retry", retry),
				zap.Int("retry_count", count),
				zap.Duration("delay", policy.Delay(retry)),
				zap.Error(err))
		},
		func(ctx context.Context, n int) (Outcome, error) {
			r, outcome, err := e.attempt(ctx, tradeID, req, orderPrice)
			if outcome == OutcomeSuccess {
				receipt = r
			}
			return outcome, err
		})
	if runErr != nil {
		if errors.Is(runErr, errCancelled) {
			log.Info("executor: trade cancelled during execution, result discarded")
			return e.current(final, tradeID)
		}
		log.Warn("executor: attempts exhausted", zap.Int("attempts", attempts))
		return e.fail(final, tradeID, domain.ErrCodeExecutionFailed, runErr, log)
	}

	filledAt := e.clock().Now()
	filled := req.SizeUSD
	slippage := orderPrice.Sub(reference).Abs().Div(reference).Round(6)
	txHash := receipt.TxHash
	ok, err = e.Trades.TransitionTrade(final, tradeID, activeStatuses, repository.TradeUpdate{
		Status:        models.TradeStatusFilled,
		TxHash:        &txHash,
		FilledPrice:   &orderPrice,
		FilledSizeUSD: &filled,
		Slippage:      &slippage,
		GasUsed:       &receipt.GasUsed,
		FilledAt:      &filledAt,
	})
	if err != nil {
		return domain.TradeExecutionResult{}, fmt.Errorf("execution: record fill: %w", err)
	}
	if !ok {
		log.Warn("executor: trade left active state before fill was recorded, result discarded")
		return e.current(final, tradeID)
	}
	log.Info("executor: trade filled",
		zap.String("tx_hash", txHash),
		zap.String("price", orderPrice.String()),
		zap.Uint64("gas_used", receipt.GasUsed),
		zap.Int("attempts", attempts))
	return e.settle(final, tradeID, log)
}

// attempt signs, submits and waits for one order.
func (e *Engine) attempt(ctx context.Context, tradeID string, req domain.TradeExecutionRequest, price decimal.Decimal) (chain.Receipt, Outcome, error) {
	cfg := e.config()
	now := e.clock().Now()
	ttl := cfg.OrderTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	signed, err := e.Signer.SignOrder(wallet.OrderParams{
		TokenID:       req.TokenID,
		Side:          string(req.Direction),
		SizeUSD:       req.SizeUSD,
		Price:         price,
		Expiration:    now.Add(ttl),
		FeeRateBps:    cfg.FeeRateBps,
		SignatureType: e.SignatureType,
	})
	if err != nil {
		return chain.Receipt{}, OutcomeFatal, fmt.Errorf("sign order: %w", err)
	}
	// Fill-or-kill: an unmatched order never rests, so resubmitting cannot
	// double the position.
	placed, err := e.Venue.PlaceOrder(ctx, venue.PlaceOrderRequest{Order: signed, OrderType: "FOK"})
	if err != nil {
		return chain.Receipt{}, classifyVenueError(err), fmt.Errorf("submit order: %w", err)
	}
	txHash := placed.TxHash()
	ok, err := e.Trades.TransitionTrade(ctx, tradeID, activeStatuses, repository.TradeUpdate{
		Status:       models.TradeStatusSubmitted,
		VenueOrderID: &placed.OrderID,
		TxHash:       &txHash,
		SubmittedAt:  &now,
	})
	if err != nil {
		return chain.Receipt{}, OutcomeRetry, fmt.Errorf("record submission: %w", err)
	}
	if !ok {
		return chain.Receipt{}, OutcomeFatal, errCancelled
	}
	if txHash == "" {
		return chain.Receipt{}, OutcomeRetry, fmt.Errorf("order %s not matched (status %q)", placed.OrderID, placed.Status)
	}
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	receipt, err := e.Chain.WaitForConfirmation(ctx, txHash, cfg.MinConfirmations, cfg.ConfirmTimeout, interval)
	if err != nil {
		if ctx.Err() != nil {
			return chain.Receipt{}, OutcomeFatal, ctx.Err()
		}
		return chain.Receipt{}, OutcomeRetry, fmt.Errorf("confirm %s: %w", txHash, err)
	}
	if receipt.TxHash == "" {
		receipt.TxHash = txHash
	}
	return receipt, OutcomeSuccess, nil
}

func classifyVenueError(err error) Outcome {
	var rejected *venue.RejectedError
	if errors.As(err, &rejected) {
		return OutcomeFatal
	}
	var apiErr *venue.APIError
	if errors.As(err, &apiErr) && !apiErr.Temporary() {
		return OutcomeFatal
	}
	return OutcomeRetry
}

// CancelOrder moves a trade from PENDING to CANCELLED. It reports false when
// the trade had already left PENDING.
func (e *Engine) CancelOrder(ctx context.Context, tradeID string) (bool, error) {
	tradeID = strings.TrimSpace(tradeID)
	t, err := e.Trades.GetTradeByID(ctx, tradeID)
	if err != nil {
		return false, err
	}
	if t == nil {
		return false, ErrTradeNotFound
	}
	now := e.clock().Now()
	code := string(domain.ErrCodeCancelled)
	msg := "cancelled by request"
	ok, err := e.Trades.TransitionTrade(ctx, tradeID, []string{models.TradeStatusPending}, repository.TradeUpdate{
		Status:       models.TradeStatusCancelled,
		ErrorCode:    &code,
		ErrorMessage: &msg,
		CancelledAt:  &now,
	})
	if err != nil {
		return false, err
	}
	if ok {
		e.logger().Info("executor: trade cancelled", zap.String("trade_id", tradeID))
	}
	return ok, nil
}

func (e *Engine) GetTrade(ctx context.Context, tradeID string) (domain.TradeRecord, error) {
	t, err := e.Trades.GetTradeByID(ctx, strings.TrimSpace(tradeID))
	if err != nil {
		return domain.TradeRecord{}, err
	}
	if t == nil {
		return domain.TradeRecord{}, ErrTradeNotFound
	}
	return recordFromTrade(*t), nil
}

func (e *Engine) ListTrades(ctx context.Context, params repository.ListTradesParams) ([]domain.TradeRecord, error) {
	items, err := e.Trades.ListTrades(ctx, params)
	if err != nil {
		return nil, err
	}
	out := make([]domain.TradeRecord, 0, len(items))
	for _, t := range items {
		out = append(out, recordFromTrade(t))
	}
	return out, nil
}

// Wallet reports the signing address and balances. The key never leaves the
// signer.
func (e *Engine) Wallet(ctx context.Context) (domain.WalletInfo, error) {
	info := domain.WalletInfo{
		Simulation:    e.config().Simulation,
		NativeSymbol:  e.NativeSymbol,
		NativeBalance: decimal.Zero,
		StableBalance: decimal.Zero,
	}
	if e.Signer == nil {
		return info, nil
	}
	info.Address = e.Signer.Address()
	if e.Chain == nil {
		return info, nil
	}
	native, err := e.Chain.NativeBalance(ctx, info.Address)
	if err != nil {
		return info, err
	}
	stable, err := e.Chain.StableBalance(ctx, info.Address)
	if err != nil {
		return info, err
	}
	info.NativeBalance = native
	info.StableBalance = stable
	return info, nil
}

func (e *Engine) fail(ctx context.Context, tradeID string, code domain.ExecutionErrorCode, cause error, log *zap.Logger) (domain.TradeExecutionResult, error) {
	msg := cause.Error()
	codeStr := string(code)
	ok, err := e.Trades.TransitionTrade(ctx, tradeID, activeStatuses, repository.TradeUpdate{
		Status:       models.TradeStatusFailed,
		ErrorCode:    &codeStr,
		ErrorMessage: &msg,
	})
	if err != nil {
		return domain.TradeExecutionResult{}, fmt.Errorf("execution: record failure: %w", err)
	}
	if ok {
		log.Warn("executor: trade failed", zap.String("code", codeStr), zap.Error(cause))
	}
	return e.current(ctx, tradeID)
}

func (e *Engine) settle(ctx context.Context, tradeID string, log *zap.Logger) (domain.TradeExecutionResult, error) {
	t, err := e.Trades.GetTradeByID(ctx, tradeID)
	if err != nil {
		return domain.TradeExecutionResult{}, err
	}
	if t == nil {
		return domain.TradeExecutionResult{}, ErrTradeNotFound
	}
	if e.Settler != nil {
		// The fill stands even if booking it fails; settlement is retried by
		// the operator from the trade record.
		if err := e.Settler.Settle(ctx, *t); err != nil {
			log.Error("executor: settlement failed", zap.Error(err))
		}
	}
	return resultFromTrade(*t), nil
}

func (e *Engine) current(ctx context.Context, tradeID string) (domain.TradeExecutionResult, error) {
	t, err := e.Trades.GetTradeByID(ctx, tradeID)
	if err != nil {
		return domain.TradeExecutionResult{}, err
	}
	if t == nil {
		return domain.TradeExecutionResult{}, ErrTradeNotFound
	}
	return resultFromTrade(*t), nil
}

func (e *Engine) config() config.ExecutorConfig {
	cfg := e.Config
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = 60 * time.Second
	}
	if cfg.MinConfirmations == 0 {
		cfg.MinConfirmations = 1
	}
	if cfg.DefaultMaxSlippageBps <= 0 {
		cfg.DefaultMaxSlippageBps = 200
	}
	if cfg.SimDefaultPrice <= 0 || cfg.SimDefaultPrice >= 1 {
		cfg.SimDefaultPrice = 0.5
	}
	return cfg
}

func (e *Engine) clock() Clock {
	if e.Clock == nil {
		return SystemClock()
	}
	return e.Clock
}

func (e *Engine) logger() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

func normalizeRequest(req domain.TradeExecutionRequest) (domain.TradeExecutionRequest, error) {
	req.MarketID = strings.TrimSpace(req.MarketID)
	req.TokenID = strings.TrimSpace(req.TokenID)
	req.Side = domain.Side(strings.ToUpper(strings.TrimSpace(string(req.Side))))
	req.Direction = domain.Direction(strings.ToUpper(strings.TrimSpace(string(req.Direction))))
	req.OrderType = domain.OrderType(strings.ToUpper(strings.TrimSpace(string(req.OrderType))))
	if req.OrderType == "" {
		req.OrderType = domain.OrderTypeMarket
	}
	switch {
	case req.MarketID == "":
		return req, fmt.Errorf("%w: marketId is required", ErrInvalidRequest)
	case req.TokenID == "":
		return req, fmt.Errorf("%w: tokenId is required", ErrInvalidRequest)
	case !req.Side.Valid():
		return req, fmt.Errorf("%w: side must be YES or NO", ErrInvalidRequest)
	case !req.Direction.Valid():
		return req, fmt.Errorf("%w: direction must be BUY or SELL", ErrInvalidRequest)
	case req.OrderType != domain.OrderTypeMarket && req.OrderType != domain.OrderTypeLimit:
		return req, fmt.Errorf("%w: orderType must be MARKET or LIMIT", ErrInvalidRequest)
	case !req.SizeUSD.IsPositive():
		return req, fmt.Errorf("%w: sizeUsd must be > 0", ErrInvalidRequest)
	case req.MaxSlippageBps < 0:
		return req, fmt.Errorf("%w: maxSlippageBps must be >= 0", ErrInvalidRequest)
	case req.OrderType == domain.OrderTypeLimit && req.LimitPrice == nil:
		return req, fmt.Errorf("%w: limitPrice is required for LIMIT orders", ErrInvalidRequest)
	}
	if req.LimitPrice != nil && (!req.LimitPrice.IsPositive() || req.LimitPrice.GreaterThan(decimal.NewFromInt(1))) {
		return req, fmt.Errorf("%w: limitPrice must be in (0, 1]", ErrInvalidRequest)
	}
	return req, nil
}

// slippageBps is |quote-reference| / reference in basis points, rounded up.
func slippageBps(reference, quote decimal.Decimal) int64 {
	if !reference.IsPositive() {
		return 0
	}
	return quote.Sub(reference).Abs().Div(reference).Mul(decimal.NewFromInt(10_000)).Ceil().IntPart()
}

func resultFromTrade(t models.Trade) domain.TradeExecutionResult {
	out := domain.TradeExecutionResult{
		Success:       t.Status == models.TradeStatusFilled,
		TradeID:       t.ID,
		Status:        t.Status,
		TxHash:        t.TxHash,
		FilledPrice:   decimal.Zero,
		FilledSizeUSD: decimal.Zero,
		Slippage:      decimal.Zero,
		GasUsed:       t.GasUsed,
		RetryCount:    t.RetryCount,
		Simulated:     t.Simulated,
		ErrorCode:     domain.ExecutionErrorCode(t.ErrorCode),
		Error:         t.ErrorMessage,
		CompletedAt:   t.UpdatedAt,
	}
	if t.FilledPrice != nil {
		out.FilledPrice = *t.FilledPrice
	}
	if t.FilledSizeUSD != nil {
		out.FilledSizeUSD = *t.FilledSizeUSD
	}
	if t.Slippage != nil {
		out.Slippage = *t.Slippage
	}
	switch {
	case t.FilledAt != nil:
		out.CompletedAt = *t.FilledAt
	case t.CancelledAt != nil:
		out.CompletedAt = *t.CancelledAt
	}
	if t.Status == models.TradeStatusCancelled && out.ErrorCode == "" {
		out.ErrorCode = domain.ErrCodeCancelled
	}
	return out
}

func recordFromTrade(t models.Trade) domain.TradeRecord {
	return domain.TradeRecord{
		TradeExecutionResult: resultFromTrade(t),
		MarketID:             t.MarketID,
		TokenID:              t.TokenID,
		Side:                 domain.Side(t.Side),
		Direction:            domain.Direction(t.Direction),
		OrderType:            domain.OrderType(t.OrderType),
		SizeUSD:              t.SizeUSD,
		Price:                t.Price,
		LimitPrice:           t.LimitPrice,
		MaxSlippageBps:       t.MaxSlippageBps,
		StrategyID:           t.StrategyID,
		StrategyIDs:          models.DecodeStrategyIDs(t.StrategyIDs),
		Confidence:           t.Confidence,
		VenueOrderID:         t.VenueOrderID,
		RealizedPnL:          t.RealizedPnL,
		CreatedAt:            t.CreatedAt,
		SubmittedAt:          t.SubmittedAt,
	}
}
