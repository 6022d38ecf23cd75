// Package memory is an in-process repository. It backs tests and the
// db.driver=memory backtest mode; nothing survives a restart.
package memory

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"tradegate/internal/models"
	"tradegate/internal/repository"
)

type Store struct {
	mu   sync.RWMutex
	txMu sync.Mutex

	trades     map[string]models.Trade
	positions  map[string]models.Position
	portfolio  *models.Portfolio
	snapshots  map[string]models.PortfolioSnapshot
	scores     map[string]models.StrategyScore
	riskEvents []models.RiskEvent
	settings   map[string]models.SystemSetting

	nextPositionID uint64
	nextEventID    uint64
	nextSettingID  uint64
}

func New() *Store {
	return &Store{
		trades:    map[string]models.Trade{},
		positions: map[string]models.Position{},
		snapshots: map[string]models.PortfolioSnapshot{},
		scores:    map[string]models.StrategyScore{},
		settings:  map[string]models.SystemSetting{},
	}
}

var _ repository.Repository = (*Store)(nil)

// WithTx serializes transactional callers. Writes are not rolled back on
// error.
func (s *Store) WithTx(ctx context.Context, fn func(tx repository.Repository) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return fn(s)
}

func (s *Store) InsertTrade(ctx context.Context, item *models.Trade) error {
	if item == nil {
		return nil
	}
	now := time.Now().UTC()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = now
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trades[item.ID] = *item
	return nil
}

func (s *Store) GetTradeByID(ctx context.Context, id string) (*models.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.trades[strings.TrimSpace(id)]
	if !ok {
		return nil, nil
	}
	return &item, nil
}

func (s *Store) ListTrades(ctx context.Context, params repository.ListTradesParams) ([]models.Trade, error) {
	s.mu.RLock()
	items := make([]models.Trade, 0, len(s.trades))
	for _, it := range s.trades {
		if params.Status != nil && *params.Status != "" && !strings.EqualFold(it.Status, *params.Status) {
			continue
		}
		if params.MarketID != nil && *params.MarketID != "" && it.MarketID != *params.MarketID {
			continue
		}
		if params.Since != nil && it.CreatedAt.Before(*params.Since) {
			continue
		}
		items = append(items, it)
	}
	s.mu.RUnlock()
	asc := params.Asc != nil && *params.Asc
	sort.SliceStable(items, func(i, j int) bool {
		if asc {
			return items[i].CreatedAt.Before(items[j].CreatedAt)
		}
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
	return page(items, params.Offset, params.Limit, 100), nil
}

func (s *Store) TransitionTrade(ctx context.Context, id string, from []string, update repository.TradeUpdate) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.trades[id]
	if !ok || !slices.Contains(from, item.Status) {
		return false, nil
	}
	update.Apply(&item)
	item.UpdatedAt = time.Now().UTC()
	s.trades[id] = item
	return true, nil
}

func (s *Store) IncrementTradeRetry(ctx context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.trades[id]
	if !ok {
		return 0, nil
	}
	item.RetryCount++
	item.UpdatedAt = time.Now().UTC()
	s.trades[id] = item
	return item.RetryCount, nil
}

func (s *Store) SetTradeRealizedPnL(ctx context.Context, id string, pnl decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.trades[id]
	if !ok {
		return nil
	}
	item.RealizedPnL = &pnl
	s.trades[id] = item
	return nil
}

func (s *Store) SumRealizedPnLSince(ctx context.Context, since time.Time) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sum := decimal.Zero
	for _, it := range s.trades {
		if it.Status != models.TradeStatusFilled || it.FilledAt == nil || it.FilledAt.Before(since) {
			continue
		}
		if it.RealizedPnL != nil {
			sum = sum.Add(*it.RealizedPnL)
		}
	}
	return sum, nil
}

func (s *Store) ListFilledTradesByMarket(ctx context.Context, marketID string, limit int) ([]models.Trade, error) {
	s.mu.RLock()
	var items []models.Trade
	for _, it := range s.trades {
		if it.MarketID == marketID && it.Status == models.TradeStatusFilled {
			items = append(items, it)
		}
	}
	s.mu.RUnlock()
	sort.SliceStable(items, func(i, j int) bool {
		return filledAt(items[i]).After(filledAt(items[j]))
	})
	return page(items, 0, limit, 50), nil
}

func (s *Store) GetPositionByTokenID(ctx context.Context, tokenID string) (*models.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.positions[strings.TrimSpace(tokenID)]
	if !ok {
		return nil, nil
	}
	return &item, nil
}

func (s *Store) UpsertPosition(ctx context.Context, item *models.Position) error {
	if item == nil || strings.TrimSpace(item.TokenID) == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.positions[item.TokenID]; ok {
		item.ID = existing.ID
		item.CreatedAt = existing.CreatedAt
	} else {
		s.nextPositionID++
		item.ID = s.nextPositionID
		item.CreatedAt = time.Now().UTC()
	}
	item.UpdatedAt = time.Now().UTC()
	s.positions[item.TokenID] = *item
	return nil
}

func (s *Store) ListOpenPositions(ctx context.Context) ([]models.Position, error) {
	s.mu.RLock()
	var items []models.Position
	for _, it := range s.positions {
		if it.Status == models.PositionStatusOpen {
			items = append(items, it)
		}
	}
	s.mu.RUnlock()
	sort.SliceStable(items, func(i, j int) bool { return items[i].OpenedAt.Before(items[j].OpenedAt) })
	return items, nil
}

func (s *Store) SumOpenCostBasisByMarket(ctx context.Context, marketID string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sum := decimal.Zero
	for _, it := range s.positions {
		if it.MarketID == marketID && it.Status == models.PositionStatusOpen {
			sum = sum.Add(it.CostBasis)
		}
	}
	return sum, nil
}

func (s *Store) CountOpenPositions(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, it := range s.positions {
		if it.Status == models.PositionStatusOpen {
			n++
		}
	}
	return n, nil
}

func (s *Store) GetPortfolio(ctx context.Context) (*models.Portfolio, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.portfolio == nil {
		return nil, nil
	}
	out := *s.portfolio
	return &out, nil
}

func (s *Store) SavePortfolio(ctx context.Context, item *models.Portfolio) error {
	if item == nil {
		return nil
	}
	item.ID = models.PortfolioID
	item.UpdatedAt = time.Now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *item
	s.portfolio = &cp
	return nil
}

func (s *Store) UpsertPortfolioSnapshot(ctx context.Context, item *models.PortfolioSnapshot) error {
	if item == nil || item.SnapshotDate.IsZero() {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[item.SnapshotDate.UTC().Format("2006-01-02")] = *item
	return nil
}

func (s *Store) ListPortfolioSnapshots(ctx context.Context, limit int) ([]models.PortfolioSnapshot, error) {
	s.mu.RLock()
	items := make([]models.PortfolioSnapshot, 0, len(s.snapshots))
	for _, it := range s.snapshots {
		items = append(items, it)
	}
	s.mu.RUnlock()
	sort.SliceStable(items, func(i, j int) bool { return items[i].SnapshotDate.Before(items[j].SnapshotDate) })
	if limit > 0 && len(items) > limit {
		items = items[len(items)-limit:]
	}
	return items, nil
}

func (s *Store) ListStrategyScores(ctx context.Context) ([]models.StrategyScore, error) {
	s.mu.RLock()
	items := make([]models.StrategyScore, 0, len(s.scores))
	for _, it := range s.scores {
		items = append(items, it)
	}
	s.mu.RUnlock()
	sort.SliceStable(items, func(i, j int) bool { return items[i].StrategyID < items[j].StrategyID })
	return items, nil
}

func (s *Store) GetStrategyScore(ctx context.Context, strategyID string) (*models.StrategyScore, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.scores[strings.TrimSpace(strategyID)]
	if !ok {
		return nil, nil
	}
	return &item, nil
}

func (s *Store) UpsertStrategyScore(ctx context.Context, item *models.StrategyScore) error {
	if item == nil || strings.TrimSpace(item.StrategyID) == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	item.UpdatedAt = time.Now().UTC()
	s.scores[item.StrategyID] = *item
	return nil
}

func (s *Store) InsertRiskEvent(ctx context.Context, item *models.RiskEvent) error {
	if item == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextEventID++
	item.ID = s.nextEventID
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	s.riskEvents = append(s.riskEvents, *item)
	return nil
}

func (s *Store) ListRiskEvents(ctx context.Context, params repository.ListRiskEventsParams) ([]models.RiskEvent, error) {
	s.mu.RLock()
	var items []models.RiskEvent
	for i := len(s.riskEvents) - 1; i >= 0; i-- {
		it := s.riskEvents[i]
		if params.Severity != nil && *params.Severity != "" && !strings.EqualFold(it.Severity, *params.Severity) {
			continue
		}
		if params.EventType != nil && *params.EventType != "" && !strings.EqualFold(it.EventType, *params.EventType) {
			continue
		}
		if params.MarketID != nil && *params.MarketID != "" && it.MarketID != *params.MarketID {
			continue
		}
		if params.Since != nil && it.CreatedAt.Before(*params.Since) {
			continue
		}
		items = append(items, it)
	}
	s.mu.RUnlock()
	return page(items, params.Offset, params.Limit, 100), nil
}

func (s *Store) GetSystemSettingByKey(ctx context.Context, key string) (*models.SystemSetting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.settings[strings.TrimSpace(key)]
	if !ok {
		return nil, nil
	}
	return &item, nil
}

func (s *Store) UpsertSystemSetting(ctx context.Context, item *models.SystemSetting) error {
	if item == nil || strings.TrimSpace(item.Key) == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.settings[item.Key]; ok {
		item.ID = existing.ID
		item.CreatedAt = existing.CreatedAt
	} else {
		s.nextSettingID++
		item.ID = s.nextSettingID
	}
	item.UpdatedAt = time.Now().UTC()
	s.settings[item.Key] = *item
	return nil
}

func filledAt(t models.Trade) time.Time {
	if t.FilledAt != nil {
		return *t.FilledAt
	}
	return t.CreatedAt
}

func page[T any](items []T, offset, limit, fallback int) []T {
	if limit <= 0 {
		limit = fallback
	}
	if limit > 500 {
		limit = 500
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return nil
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}
