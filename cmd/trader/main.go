package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"tradegate/internal/app"
	"tradegate/internal/auth"
	"tradegate/internal/client/services"
	"tradegate/internal/client/venue"
	"tradegate/internal/consensus"
	cronrunner "tradegate/internal/cron"
	"tradegate/internal/service"
	"tradegate/internal/strategy"
)

func main() {
	a, err := app.Load("trader")
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
	var tokens services.TokenSource
	if !guard.Disabled {
		tokens = &auth.TokenSource{JWT: guard.JWT, Service: auth.ServiceTrader}
	}

	svcHTTP := &http.Client{Timeout: cfg.Services.Timeout}
	riskClient := services.NewRiskGateClient(cfg.Services.RiskGateURL, svcHTTP, tokens)
	execClient := services.NewExecutorClient(cfg.Services.ExecutorURL, svcHTTP, tokens)
	market := venue.NewClient(nil, cfg.Venue)

	strategies := strategy.FromConfig(cfg.Trader.Strategies)
	engine := &consensus.Engine{Config: cfg.Consensus, Scores: a.Repo, Weights: strategy.Set(strategies), Logger: logger}
	if err := engine.EnsureStrategies(ctx, strategy.IDs(strategies)); err != nil {
		logger.Warn("seed strategy scores failed", zap.Error(err))
	}
	if err := service.LoadWeights(ctx, a.Repo, strategies); err != nil {
		logger.Warn("load strategy weights failed", zap.Error(err))
	}
	reflectJob := &service.ReflectJob{Consensus: engine, Strategies: strategies, Flags: a.Settings, Logger: logger}

	cycle := &service.TradingCycle{
		Markets:    cfg.Trader.Markets,
		Strategies: strategies,
		Consensus:  engine,
		Risk:       riskClient,
		Executor:   execClient,
		Prices:     market,
		Portfolio: &service.PortfolioService{
			Repo:           a.Repo,
			InitialCapital: a.InitialCapital(),
			Flags:          a.Settings,
			Logger:         logger,
		},
		Flags:    a.Settings,
		Interval: cfg.Trader.PriceInterval,
		Timeout:  cfg.Trader.CycleTimeout,
		Logger:   logger,
	}
	if len(cycle.Markets) == 0 {
		logger.Warn("no markets configured; cycles will be empty")
	}

	cronRunner := cronrunner.New(logger, ctx)
	if _, err := cronRunner.Add("trading_cycle", cfg.Trader.Schedule, cycle.Trigger); err != nil {
		logger.Fatal("cron register trading cycle failed", zap.Error(err))
	}
	if _, err := cronRunner.Add("self_reflect", cfg.Trader.ReflectSchedule, reflectJob.Run); err != nil {
		logger.Warn("cron register self reflection failed", zap.Error(err))
	}
	cronRunner.Start()
	defer cronRunner.Stop()

	checks := map[string]func(context.Context) error{
		"riskgate": func(ctx context.Context) error {
			_, err := riskClient.PortfolioRisk(ctx)
			return err
		},
	}
	router := a.Router(a.NotifyClient(ctx), guard, nil, checks)
	a.Serve(ctx, router)
}
