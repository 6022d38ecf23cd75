package main

import (
	"context"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"tradegate/internal/app"
	cronrunner "tradegate/internal/cron"
	"tradegate/internal/handler"
	"tradegate/internal/notify"
	"tradegate/internal/risk"
	"tradegate/internal/service"
)

func main() {
	a, err := app.Load("riskgate")
	if err != nil {
		panic(err)
	}
	defer a.Close()
	logger := a.Logger
	cfg := a.Config

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.OpenStore(ctx); err != nil {
		logger.Fatal("storage init failed", zap.Error(err))
	}
	guard, err := a.Guard()
	if err != nil {
		logger.Fatal("auth init failed", zap.Error(err))
	}
	store := a.Cache(ctx)

	nc := a.NotifyClient(ctx)
	var notifier risk.Notifier
	if nc != nil {
		notifier = &notify.Notifier{Client: nc, Agent: cfg.Notify.Agent, Logger: logger}
	}

	portfolio := &service.PortfolioService{
		Repo:           a.Repo,
		InitialCapital: a.InitialCapital(),
		Flags:          a.Settings,
		Logger:         logger,
	}
	if _, err := portfolio.Ensure(ctx); err != nil {
		logger.Fatal("portfolio init failed", zap.Error(err))
	}

	gate := risk.NewGate(cfg.Risk, a.Repo, store, notifier, logger)
	riskHandler := &handler.RiskHandler{
		Gate: gate,
		MonteCarlo: &risk.MonteCarlo{
			Snapshots:   a.Repo,
			HistoryDays: cfg.Risk.MonteCarloHistoryDays,
			Logger:      logger,
		},
		Portfolio: portfolio,
		Events:    a.Repo,
		Guard:     guard,
		Logger:    logger,
	}

	engine := a.Router(nc, guard, handler.RiskRoutes, nil)
	riskHandler.Register(engine)

	cronRunner := cronrunner.New(logger, ctx)
	if _, err := cronRunner.Add("portfolio_snapshot", cfg.Risk.SnapshotSchedule, service.SnapshotJob(portfolio, logger)); err != nil {
		logger.Warn("cron register portfolio snapshot failed", zap.Error(err))
	}
	cronRunner.Start()
	defer cronRunner.Stop()

	a.Serve(ctx, engine)
}
