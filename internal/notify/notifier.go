package notify

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"

	"tradegate/internal/models"
)

const sendTimeout = 2 * time.Second

// Notifier forwards risk events as PaaS log entries. Delivery is best
// effort: failures are logged and never reach the caller.
type Notifier struct {
	Client *Client
	Agent  string
	Logger *zap.Logger
}

func (n *Notifier) Notify(ctx context.Context, ev models.RiskEvent) {
	if n == nil || !n.Client.Enabled() {
		return
	}
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sendTimeout)
	defer cancel()
	if err := n.Client.send(sendCtx, riskEntry(n.agent(), ev)); err != nil && n.Logger != nil {
		n.Logger.Warn("notify: forward risk event failed", zap.String("event_type", ev.EventType), zap.Error(err))
	}
}

// riskEntry maps a risk event onto a log entry. Optional fields are left out
// when empty; JSON columns that do not decode are dropped.
func riskEntry(agent string, ev models.RiskEvent) entry {
	details := map[string]any{
		"event_type": ev.EventType,
		"severity":   ev.Severity,
		"created_at": ev.CreatedAt.UTC().Format(time.RFC3339),
	}
	if ev.MarketID != "" {
		details["market_id"] = ev.MarketID
	}
	if ev.StrategyID != "" {
		details["strategy_id"] = ev.StrategyID
	}
	if v := decodeJSON(ev.Reasons); v != nil {
		details["reasons"] = v
	}
	if v := decodeJSON(ev.Context); v != nil {
		details["context"] = v
	}
	return entry{
		Agent:   agent,
		Action:  "risk_" + strings.ToLower(ev.EventType),
		Level:   levelFromSeverity(ev.Severity),
		Details: details,
	}
}

func (n *Notifier) agent() string {
	if a := strings.TrimSpace(n.Agent); a != "" {
		return a
	}
	return "tradegate-risk"
}

func levelFromSeverity(s string) string {
	switch s {
	case models.SeverityCritical:
		return "error"
	case models.SeverityWarning:
		return "warn"
	default:
		return "info"
	}
}

func decodeJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	return v
}
