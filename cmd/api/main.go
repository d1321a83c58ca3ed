package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/ehr-chainview/internal/config"
	"github.com/jwalitptl/ehr-chainview/internal/contract"
	"github.com/jwalitptl/ehr-chainview/internal/eventlog"
	"github.com/jwalitptl/ehr-chainview/internal/handler"
	adminHandler "github.com/jwalitptl/ehr-chainview/internal/handler/admin"
	authHandler "github.com/jwalitptl/ehr-chainview/internal/handler/auth"
	doctorHandler "github.com/jwalitptl/ehr-chainview/internal/handler/doctor"
	hospitalHandler "github.com/jwalitptl/ehr-chainview/internal/handler/hospital"
	orgHandler "github.com/jwalitptl/ehr-chainview/internal/handler/org"
	patientHandler "github.com/jwalitptl/ehr-chainview/internal/handler/patient"
	"github.com/jwalitptl/ehr-chainview/internal/middleware"
	"github.com/jwalitptl/ehr-chainview/internal/model"
	"github.com/jwalitptl/ehr-chainview/internal/refresh"
	"github.com/jwalitptl/ehr-chainview/internal/repository/postgres"
	"github.com/jwalitptl/ehr-chainview/internal/router"
	accessService "github.com/jwalitptl/ehr-chainview/internal/service/access"
	adminService "github.com/jwalitptl/ehr-chainview/internal/service/admin"
	analyticsService "github.com/jwalitptl/ehr-chainview/internal/service/analytics"
	auditService "github.com/jwalitptl/ehr-chainview/internal/service/audit"
	authService "github.com/jwalitptl/ehr-chainview/internal/service/auth"
	dashboardService "github.com/jwalitptl/ehr-chainview/internal/service/dashboard"
	hospitalService "github.com/jwalitptl/ehr-chainview/internal/service/hospital"
	orgService "github.com/jwalitptl/ehr-chainview/internal/service/org"
	researchService "github.com/jwalitptl/ehr-chainview/internal/service/research"
	roleService "github.com/jwalitptl/ehr-chainview/internal/service/role"
	"github.com/jwalitptl/ehr-chainview/internal/statestore"
	"github.com/jwalitptl/ehr-chainview/internal/txn"
	"github.com/jwalitptl/ehr-chainview/internal/views"
	"github.com/jwalitptl/ehr-chainview/pkg/auth"
	"github.com/jwalitptl/ehr-chainview/pkg/logger"
	"github.com/jwalitptl/ehr-chainview/pkg/messaging/redis"
	"github.com/jwalitptl/ehr-chainview/pkg/metrics"
	"github.com/jwalitptl/ehr-chainview/pkg/validator"
)

func main() {
	configPath := flag.String("config", "", "path to config.yml")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	lg := logger.NewLogger(&logger.Config{
		Level:      logger.ParseLevel(cfg.Log.Level),
		TimeFormat: time.RFC3339,
		Console:    cfg.Log.Console,
	})
	log.Logger = *lg.Zerolog()
	zl := lg.Zerolog()

	if err := validator.RegisterGin(); err != nil {
		log.Fatal().Err(err).Msg("failed to register validators")
	}

	m := metrics.NewMetrics("ehr", "chainview", nil)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Chain provider, shared by every view and the relayer
	client, err := ethclient.DialContext(ctx, cfg.Chain.RPCURL)
	if err != nil {
		log.Fatal().Err(err).Str("rpc_url", cfg.Chain.RPCURL).Msg("failed to dial chain provider")
	}
	defer client.Close()

	contracts, err := contract.NewClient(client, cfg.Contracts.Deployment())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to bind contracts")
	}

	watcher := refresh.NewWatcher(client, refresh.WatcherConfig{
		PollInterval:    cfg.Chain.PollInterval,
		UseSubscription: cfg.Chain.Subscribes(),
		MaxFailures:     cfg.Chain.BreakerFailures,
		RetryTimeout:    cfg.Chain.BreakerTimeout,
	}, zl, m)
	go func() {
		if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("Head watcher stopped")
		}
	}()

	registry := refresh.NewRegistry(watcher, cfg.Refresh.IdleUnmount, zl, m)
	defer registry.Close()

	// Outbox for relayed transactions
	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()
	outboxRepo := postgres.NewOutboxRepository(db)

	relayer := txn.NewRelayer(client, outboxRepo, txn.RelayerConfig{ReceiptTimeout: cfg.Chain.ReceiptTimeout}, lg, m)

	rt := &views.Runtime{
		Head: client,
		Fetcher: eventlog.NewFetcher(client, eventlog.Config{
			MaxBlockSpan: cfg.Chain.MaxBlockSpan,
			Concurrency:  cfg.Chain.FetchWorkers,
			QueryTimeout: cfg.Chain.CallTimeout,
		}, zl, m),
		Readers:    contracts.Readers(),
		Deployment: cfg.Contracts.Deployment(),
		Registry:   registry,
		Watcher:    watcher,
		Executor:   txn.NewExecutor(txn.NewGuard(), relayer),
		StoreOptions: statestore.Options{
			LiveConcurrency: cfg.Refresh.LiveWorkers,
			LiveTimeout:     cfg.Chain.CallTimeout,
			LiveCacheTTL:    cfg.Refresh.LiveCacheTTL,
		},
		ViewTimeout: cfg.Refresh.ViewTimeout,
		DeployBlock: cfg.Contracts.DeployBlock,
		AuditLimit:  cfg.Refresh.AuditLimit,
		Logger:      zl,
		Metrics:     m,
	}

	if cfg.Refresh.PublishSnapshot {
		broker, err := redis.NewRedisBroker(cfg.Redis.ToBrokerConfig(), zl)
		if err != nil {
			log.Warn().Err(err).Msg("Redis unavailable, view snapshots will not be published")
		} else {
			defer broker.Close()
			rt.Publisher = broker
		}
	}

	// Services
	jwtSvc := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Issuer, time.Duration(cfg.JWT.ExpiryHours)*time.Hour)
	authSvc := authService.NewService(jwtSvc, contracts.Readers(), authService.Config{
		AdminWallets: cfg.Auth.AdminAddresses(),
		NonceTTL:     cfg.Auth.NonceTTL,
	}, lg)
	hospitalSvc := hospitalService.NewService(rt)
	roleSvc := roleService.NewService(rt)
	adminSvc := adminService.NewService(rt)
	accessSvc := accessService.NewService(rt)
	researchSvc := researchService.NewService(rt)
	auditSvc := auditService.NewService(rt, client)
	dashboardSvc := dashboardService.NewService(rt)
	analyticsSvc := analyticsService.NewService(rt, client)
	orgSvc := orgService.NewService(rt)

	gin.SetMode(gin.ReleaseMode)
	r := router.NewRouter(middleware.NewAuthMiddleware(jwtSvc), watcher, router.Handlers{
		Health:    handler.NewHandler(watcher, nil),
		Auth:      authHandler.NewHandler(authSvc),
		Admin:     adminHandler.NewHandler(hospitalSvc, roleSvc, adminSvc, auditSvc, dashboardSvc, analyticsSvc),
		Hospital:  hospitalHandler.NewHandler(hospitalSvc),
		Doctor:    doctorHandler.NewHandler(accessSvc),
		Patient:   patientHandler.NewHandler(accessSvc, researchSvc),
		Insurance: orgHandler.NewHandler(model.AdminInsurance, orgSvc),
		Research:  orgHandler.NewHandler(model.AdminResearch, orgSvc),
	}, router.RouterConfig{
		RateLimitEnabled: cfg.RateLimit.Enabled,
		RateLimit:        rate.Limit(cfg.RateLimit.RequestsPerSecond),
		RateBurst:        cfg.RateLimit.Burst,
		CORSConfig:       middleware.DefaultCORSConfig(cfg.Security.AllowedOrigins...),
		RequestTimeout:   cfg.Server.RequestTimeout,
		MetricsPrefix:    "ehr_http",
	})
	r.Setup()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Str("rpc_url", cfg.Chain.RPCURL).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited")
}
