package risk

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"tradegate/internal/config"
	"tradegate/internal/domain"
	"tradegate/internal/models"
	"tradegate/internal/repository"
)

// KillSwitchSettingKey is the system_settings key holding the kill switch.
const KillSwitchSettingKey = "risk.kill_switch"

type KillSwitchState struct {
	Active    bool      `json:"active"`
	Reason    string    `json:"reason,omitempty"`
	Actor     string    `json:"actor,omitempty"`
	ChangedAt time.Time `json:"changedAt"`
}

type DrawdownReading struct {
	DailyPnL decimal.Decimal      `json:"dailyPnl"`
	Percent  float64              `json:"dailyPnlPercent"`
	State    domain.DrawdownState `json:"state"`
}

// DrawdownMonitor classifies same-day P&L and owns the persisted kill switch.
// Nothing here ever clears the switch except Reset.
type DrawdownMonitor struct {
	Config   config.RiskConfig
	Trades   repository.TradeRepository
	Settings repository.SettingsRepository
	Events   repository.RiskEventRepository
	Notifier Notifier
	Logger   *zap.Logger

	Now func() time.Time
}

// Measure recomputes today's drawdown from realized P&L of filled trades.
// When the caller's snapshot reports a larger move, that one is used.
func (d *DrawdownMonitor) Measure(ctx context.Context, portfolio domain.PortfolioState) (DrawdownReading, error) {
	now := d.now()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	realized := decimal.Zero
	if d.Trades != nil {
		sum, err := d.Trades.SumRealizedPnLSince(ctx, dayStart)
		if err != nil {
			return DrawdownReading{}, fmt.Errorf("daily pnl: %w", err)
		}
		realized = sum
	}
	reading := DrawdownReading{DailyPnL: realized}
	if portfolio.TotalCapital.IsPositive() {
		reading.Percent = realized.Div(portfolio.TotalCapital).Mul(decimal.NewFromInt(100)).InexactFloat64()
	}
	if math.Abs(portfolio.DailyPnLPercent) > math.Abs(reading.Percent) {
		reading.Percent = portfolio.DailyPnLPercent
		reading.DailyPnL = portfolio.DailyPnL
	}
	reading.State = d.Classify(reading.Percent)
	return reading, nil
}

func (d *DrawdownMonitor) Classify(pct float64) domain.DrawdownState {
	cfg := d.config()
	// Percentages are compared after rounding away float noise so that an
	// exact 3.00% lands in the kill band.
	abs := math.Round(math.Abs(pct)*1e9) / 1e9
	switch {
	case abs >= cfg.KillSwitchDrawdownPct:
		return domain.DrawdownKillSwitch
	case abs >= cfg.PreservationDrawdownPct:
		return domain.DrawdownCapitalPreservation
	default:
		return domain.DrawdownNormal
	}
}

func (d *DrawdownMonitor) KillSwitch(ctx context.Context) (KillSwitchState, error) {
	if d.Settings == nil {
		return KillSwitchState{}, nil
	}
	item, err := d.Settings.GetSystemSettingByKey(ctx, KillSwitchSettingKey)
	if err != nil {
		return KillSwitchState{}, fmt.Errorf("read kill switch: %w", err)
	}
	if item == nil || len(item.Value) == 0 {
		return KillSwitchState{}, nil
	}
	var state KillSwitchState
	if err := json.Unmarshal(item.Value, &state); err != nil {
		// An unreadable switch is treated as tripped.
		return KillSwitchState{Active: true, Reason: "unreadable kill switch setting"}, nil
	}
	return state, nil
}

// Trip activates the switch after a drawdown breach. Already-active switches
// are left untouched.
func (d *DrawdownMonitor) Trip(ctx context.Context, reading DrawdownReading, marketID string) (KillSwitchState, error) {
	current, err := d.KillSwitch(ctx)
	if err != nil {
		return current, err
	}
	if current.Active {
		return current, nil
	}
	state := KillSwitchState{
		Active:    true,
		Reason:    fmt.Sprintf("daily drawdown %.2f%% breached %.2f%%", reading.Percent, d.config().KillSwitchDrawdownPct),
		Actor:     "drawdown_monitor",
		ChangedAt: d.now(),
	}
	if err := d.save(ctx, state); err != nil {
		return current, err
	}
	recordEvent(ctx, d.Events, d.Notifier, d.Logger, models.RiskEvent{
		EventType: models.RiskEventKillSwitchTripped,
		Severity:  models.SeverityCritical,
		MarketID:  marketID,
		Reasons:   jsonValue([]string{string(domain.ReasonDailyDrawdownBreach)}),
		Context: jsonValue(map[string]any{
			"daily_pnl":         reading.DailyPnL.StringFixed(2),
			"daily_pnl_percent": reading.Percent,
			"threshold_percent": d.config().KillSwitchDrawdownPct,
		}),
	})
	if d.Logger != nil {
		d.Logger.Error("risk: kill switch tripped",
			zap.Float64("daily_pnl_percent", reading.Percent),
			zap.String("market_id", marketID),
		)
	}
	return state, nil
}

// Activate is the manual admin halt.
func (d *DrawdownMonitor) Activate(ctx context.Context, actor, reason string) (KillSwitchState, error) {
	state := KillSwitchState{Active: true, Reason: strings.TrimSpace(reason), Actor: actor, ChangedAt: d.now()}
	if state.Reason == "" {
		state.Reason = "manual activation"
	}
	if err := d.save(ctx, state); err != nil {
		return KillSwitchState{}, err
	}
	recordEvent(ctx, d.Events, d.Notifier, d.Logger, models.RiskEvent{
		EventType: models.RiskEventKillSwitchManual,
		Severity:  models.SeverityCritical,
		Reasons:   jsonValue([]string{string(domain.ReasonKillSwitchActive)}),
		Context:   jsonValue(map[string]any{"actor": actor, "reason": state.Reason}),
	})
	if d.Logger != nil {
		d.Logger.Warn("risk: kill switch activated", zap.String("actor", actor), zap.String("reason", state.Reason))
	}
	return state, nil
}

// Reset is the only way back to trading after a trip.
func (d *DrawdownMonitor) Reset(ctx context.Context, actor, reason string) (KillSwitchState, error) {
	state := KillSwitchState{Active: false, Reason: strings.TrimSpace(reason), Actor: actor, ChangedAt: d.now()}
	if state.Reason == "" {
		state.Reason = "manual reset"
	}
	if err := d.save(ctx, state); err != nil {
		return KillSwitchState{}, err
	}
	recordEvent(ctx, d.Events, d.Notifier, d.Logger, models.RiskEvent{
		EventType: models.RiskEventKillSwitchReset,
		Severity:  models.SeverityInfo,
		Context:   jsonValue(map[string]any{"actor": actor, "reason": state.Reason}),
	})
	if d.Logger != nil {
		d.Logger.Info("risk: kill switch reset", zap.String("actor", actor))
	}
	return state, nil
}

func (d *DrawdownMonitor) save(ctx context.Context, state KillSwitchState) error {
	if d.Settings == nil {
		return fmt.Errorf("kill switch: no settings store")
	}
	raw, err := json.Marshal(state)
	if err != nil {
		return err
	}
	item := &models.SystemSetting{
		Key:         KillSwitchSettingKey,
		Value:       datatypes.JSON(raw),
		Description: "risk gate kill switch",
		UpdatedAt:   state.ChangedAt,
	}
	if err := d.Settings.UpsertSystemSetting(ctx, item); err != nil {
		return fmt.Errorf("persist kill switch: %w", err)
	}
	return nil
}

func (d *DrawdownMonitor) now() time.Time {
	if d.Now != nil {
		return d.Now().UTC()
	}
	return time.Now().UTC()
}

func (d *DrawdownMonitor) config() config.RiskConfig {
	return withDefaults(d.Config)
}
