package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"tradegate/internal/app"
	"tradegate/internal/chain"
	"tradegate/internal/client/venue"
	"tradegate/internal/consensus"
	"tradegate/internal/execution"
	"tradegate/internal/handler"
	"tradegate/internal/service"
	"tradegate/internal/wallet"
)

func main() {
	a, err := app.Load("executor")
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

	engine := execution.NewEngine(cfg.Executor, a.Repo, logger)
	engine.SignatureType = cfg.Chain.SignatureType
	engine.NativeSymbol = cfg.Chain.NativeAssetSymbol
	engine.Settler = &service.Settlement{
		Repo: a.Repo,
		Outcomes: &consensus.Engine{
			Config: cfg.Consensus,
			Scores: a.Repo,
			Logger: logger,
		},
		InitialCapital: a.InitialCapital(),
		Logger:         logger,
	}

	vc := venue.NewClient(nil, cfg.Venue)
	engine.Venue = vc

	checks := map[string]func(context.Context) error{}
	box, err := wallet.NewSecretBoxFromEnv()
	if err != nil && !errors.Is(err, wallet.ErrNoEncryptionKey) {
		logger.Fatal("settings encryption key invalid", zap.Error(err))
	}
	hexKey, err := wallet.LoadKey(ctx, cfg.Wallet, a.Repo, box)
	switch {
	case err == nil:
		signer, err := wallet.NewSigner(hexKey, wallet.Domain{
			Name:              cfg.Chain.ExchangeName,
			Version:           cfg.Chain.ExchangeVersion,
			ChainID:           cfg.Chain.ChainID,
			VerifyingContract: cfg.Chain.ExchangeContract,
		})
		if err != nil {
			logger.Fatal("wallet key invalid", zap.Error(err))
		}
		defer signer.Close()
		engine.Signer = signer
		vc.WithAddress(signer.Address())
		logger.Info("wallet loaded", zap.String("address", signer.Address()))
	case cfg.Executor.Simulation && (errors.Is(err, wallet.ErrNoKey) || errors.Is(err, wallet.ErrNoEncryptionKey)):
		logger.Warn("no wallet key; running simulation only")
	default:
		logger.Fatal("wallet key unavailable", zap.Error(err))
	}

	if engine.Signer != nil || !cfg.Executor.Simulation {
		cc, err := chain.Dial(ctx, cfg.Chain, logger)
		if err != nil {
			if !cfg.Executor.Simulation {
				logger.Fatal("chain dial failed", zap.Error(err))
			}
			logger.Warn("chain dial failed; balances unavailable", zap.Error(err))
		} else {
			engine.Chain = cc
			if engine.Signer != nil {
				addr := engine.Signer.Address()
				checks["chain"] = func(ctx context.Context) error {
					_, err := cc.NativeBalance(ctx, addr)
					return err
				}
			}
		}
	}
	logger.Info("executor configured", zap.Bool("simulation", cfg.Executor.Simulation))

	execHandler := &handler.ExecutionHandler{Engine: engine, Guard: guard, Logger: logger}
	router := a.Router(a.NotifyClient(ctx), guard, handler.ExecutionRoutes, checks)
	execHandler.Register(router)

	a.Serve(ctx, router)
}
