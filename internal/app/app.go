// Package app holds the process setup shared by the three binaries: config,
// logging, profiling, storage, auth and the HTTP server lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/grafana/pyroscope-go"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"tradegate/docs"
	"tradegate/internal/auth"
	"tradegate/internal/cache"
	"tradegate/internal/config"
	"tradegate/internal/db"
	"tradegate/internal/handler"
	"tradegate/internal/logger"
	"tradegate/internal/notify"
	"tradegate/internal/repository"
	gormrepository "tradegate/internal/repository/gorm"
	"tradegate/internal/repository/memory"
	"tradegate/internal/service"
)

// App is one running service.
type App struct {
	Name     string
	Config   config.Config
	Logger   *zap.Logger
	DB       *db.DB
	Repo     repository.Repository
	Settings *service.SystemSettingsService

	profiler *pyroscope.Profiler
	closers  []func() error
}

// Load reads config from TG_CONFIG (default config/config.yaml). TG_ENV_ONLY
// skips the file and uses defaults plus TG_* variables.
func Load(name string) (*App, error) {
	cfgPath := os.Getenv("TG_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}
	envOnly := false
	if raw := os.Getenv("TG_ENV_ONLY"); raw != "" {
		envOnly = strings.EqualFold(raw, "true") || raw == "1"
	}
	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		return nil, err
	}
	log, err := logger.New(cfg.Log, name)
	if err != nil {
		return nil, err
	}
	a := &App{Name: name, Config: cfg, Logger: log}
	a.startProfiler()
	return a, nil
}

func (a *App) startProfiler() {
	addr := strings.TrimSpace(a.Config.Profiling.ServerAddress)
	if addr == "" {
		return
	}
	p, err := pyroscope.Start(pyroscope.Config{
		ApplicationName: a.Config.Profiling.ApplicationName + "." + a.Name,
		ServerAddress:   addr,
		Tags:            map[string]string{"env": a.Config.App.Env},
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseObjects,
			pyroscope.ProfileInuseSpace,
		},
	})
	if err != nil {
		a.Logger.Warn("pyroscope start failed", zap.Error(err))
		return
	}
	a.profiler = p
}

// OpenStore connects the configured backend and seeds feature switches.
func (a *App) OpenStore(ctx context.Context) error {
	if strings.EqualFold(strings.TrimSpace(a.Config.DB.Driver), "memory") {
		a.Repo = memory.New()
		a.Logger.Warn("using in-memory storage; state is lost on restart")
	} else {
		conn, err := db.Open(a.Config.DB)
		if err != nil {
			return fmt.Errorf("db open: %w", err)
		}
		a.DB = conn
		a.closers = append(a.closers, func() error { return db.Close(conn) })
		if err := db.SetTimezone(conn, a.Config.DB.Timezone); err != nil {
			a.Logger.Warn("failed to set timezone", zap.Error(err))
		}
		if err := db.AutoMigrate(conn); err != nil {
			return fmt.Errorf("auto-migrate: %w", err)
		}
		a.Repo = gormrepository.New(conn.Gorm)
	}
	a.Settings = &service.SystemSettingsService{Repo: a.Repo}
	if err := a.Settings.EnsureDefaultSwitches(ctx); err != nil {
		a.Logger.Warn("init default system switches failed", zap.Error(err))
	}
	return nil
}

// Cache returns redis when redis.addr is set and an in-process cache
// otherwise.
func (a *App) Cache(ctx context.Context) cache.Store {
	addr := strings.TrimSpace(a.Config.Redis.Addr)
	if addr == "" {
		return cache.NewMemoryStore()
	}
	rs := cache.NewRedisStore(&redis.Options{
		Addr:     addr,
		Password: a.Config.Redis.Password,
		DB:       a.Config.Redis.DB,
	}, "tradegate:"+a.Name+":")
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rs.Ping(pingCtx); err != nil {
		a.Logger.Warn("redis unreachable, using in-process cache", zap.Error(err))
		_ = rs.Close()
		return cache.NewMemoryStore()
	}
	a.closers = append(a.closers, rs.Close)
	return rs
}

// Guard builds the route guard. A missing secret is fatal unless auth is
// explicitly disabled.
func (a *App) Guard() (auth.Guard, error) {
	if a.Config.Auth.Disabled {
		a.Logger.Warn("auth disabled; every caller is trusted")
		return auth.Guard{Disabled: true}, nil
	}
	j, err := auth.New(a.Config.Auth.Secret, a.Config.Auth.TokenTTL)
	if err != nil {
		return auth.Guard{}, err
	}
	return auth.Guard{JWT: j}, nil
}

// InitialCapital is the configured starting bankroll.
func (a *App) InitialCapital() decimal.Decimal {
	return decimal.NewFromFloat(a.Config.Risk.InitialCapital)
}

// NotifyClient logs in to the log endpoint. It returns nil when notify is
// not configured or the login fails.
func (a *App) NotifyClient(ctx context.Context) *notify.Client {
	c := &notify.Client{BaseURL: a.Config.Notify.BaseURL, APIKey: a.Config.Notify.APIKey}
	if !c.Enabled() {
		return nil
	}
	loginCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := c.Login(loginCtx); err != nil {
		a.Logger.Warn("notify login failed (notifications disabled)", zap.Error(err))
		return nil
	}
	a.Logger.Info("notify login ok")
	return c
}

// Router returns a gin engine with recovery, CORS, the write audit, health,
// switches, docs and swagger routes already mounted.
func (a *App) Router(nc *notify.Client, guard auth.Guard, routes []string, checks map[string]func(context.Context) error) *gin.Engine {
	if strings.EqualFold(a.Config.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware())
	if nc != nil {
		engine.Use(notify.WriteAuditMiddleware(nc, a.Config.Notify.Agent, a.Logger))
	}

	health := &handler.HealthHandler{Checks: checks}
	if a.DB != nil {
		health.DB = a.DB.Gorm
	}
	health.Register(engine)
	(&handler.SwitchHandler{Settings: a.Settings, Guard: guard}).Register(engine)
	handler.RegisterDocs(engine, a.Name, append(append([]string{}, routes...), handler.SwitchRoutes...))
	docs.SwaggerInfo.Title = "Tradegate " + a.Name
	engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	return engine
}

// Serve runs the HTTP server until ctx is cancelled or the listener fails,
// then shuts down gracefully.
func (a *App) Serve(ctx context.Context, h http.Handler) {
	srv := &http.Server{
		Addr:              a.Config.Server.HTTPAddr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info("http server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.Logger.Info("shutdown requested")
	case err := <-errCh:
		a.Logger.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

// Close releases storage, cache and profiler in reverse order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.Logger.Warn("close failed", zap.Error(err))
		}
	}
	if a.profiler != nil {
		_ = a.profiler.Stop()
	}
	_ = a.Logger.Sync()
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
