package risk

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"tradegate/internal/models"
	"tradegate/internal/repository"
)

// Notifier receives CRITICAL risk events for out-of-band delivery.
type Notifier interface {
	Notify(ctx context.Context, event models.RiskEvent)
}

// recordEvent persists ev and forwards it when critical. A failed insert is
// logged; the decision that produced the event stands.
func recordEvent(ctx context.Context, repo repository.RiskEventRepository, notifier Notifier, logger *zap.Logger, ev models.RiskEvent) {
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	if repo != nil {
		if err := repo.InsertRiskEvent(ctx, &ev); err != nil && logger != nil {
			logger.Warn("risk: persist event failed", zap.String("event_type", ev.EventType), zap.Error(err))
		}
	}
	if ev.Severity == models.SeverityCritical && notifier != nil {
		notifier.Notify(ctx, ev)
	}
}

func jsonValue(v any) datatypes.JSON {
	raw, err := json.Marshal(v)
	if err != nil {
		return datatypes.JSON([]byte(`null`))
	}
	return datatypes.JSON(raw)
}
