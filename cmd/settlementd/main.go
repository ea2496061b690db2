package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"kyde/internal/auth"
	"kyde/internal/config"
	cronrunner "kyde/internal/cron"
	"kyde/internal/db"
	"kyde/internal/handler"
	"kyde/internal/logger"
	"kyde/internal/payout"
	gormrepository "kyde/internal/repository/gorm"
	"kyde/internal/service"

	_ "kyde/docs"
)

// @title KYDE Settlement API
// @version 1.0
// @description End-of-day netting and monthly settlement for energy communities.
func main() {
	cfgPath := os.Getenv("KYDE_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("KYDE_ENV_ONLY"); envOnlyRaw != "" {
		envOnly = strings.EqualFold(envOnlyRaw, "true") || envOnlyRaw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	logger, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	dbConn, err := db.Open(cfg.DB)
	if err != nil {
		logger.Fatal("db open failed", zap.Error(err))
	}
	defer db.Close(dbConn)

	if err := db.SetTimezone(dbConn, cfg.DB.Timezone); err != nil {
		logger.Warn("failed to set timezone", zap.Error(err))
	}
	if err := db.AutoMigrate(dbConn); err != nil {
		logger.Fatal("auto-migrate failed", zap.Error(err))
	}

	fixedCost, err := decimal.NewFromString(cfg.Settlement.FixedCostEUR)
	if err != nil {
		logger.Fatal("invalid settlement.fixed_cost_eur", zap.Error(err))
	}
	variableRate, err := decimal.NewFromString(cfg.Settlement.VariableCostRate)
	if err != nil {
		logger.Fatal("invalid settlement.variable_cost_rate", zap.Error(err))
	}

	store := gormrepository.New(dbConn.Gorm)
	policyService := &service.PolicyService{Repo: store, Logger: logger}
	participantService := &service.ParticipantService{Repo: store, KeySeed: cfg.Auth.KeySeed, Logger: logger}
	eventService := &service.EventService{Repo: store, Policies: policyService, Logger: logger}
	closingService := &service.ClosingService{
		Repo:             store,
		Policies:         policyService,
		Dispatcher:       &payout.LogDispatcher{Logger: logger},
		Logger:           logger,
		FixedCostEUR:     fixedCost,
		VariableCostRate: variableRate,
	}
	statementService := &service.StatementService{Repo: store}

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(auth.RequestIDMiddleware())
	engine.Use(auth.RequestLogMiddleware(logger))
	engine.Use(auth.RequireAPIKeyMiddleware(cfg.Auth.APIKey))

	healthHandler := &handler.HealthHandler{DB: dbConn.Gorm}
	healthHandler.Register(engine)
	participantHandler := &handler.ParticipantHandler{Participants: participantService}
	participantHandler.Register(engine)
	policyHandler := &handler.PolicyHandler{Policies: policyService}
	policyHandler.Register(engine)
	eventHandler := &handler.EventHandler{Events: eventService}
	eventHandler.Register(engine)
	dayHandler := &handler.DayHandler{Closing: closingService, Repo: store}
	dayHandler.Register(engine)
	cycleHandler := &handler.CycleHandler{Closing: closingService, Statements: statementService, Repo: store}
	cycleHandler.Register(engine)

	engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: engine,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var runner *cronrunner.Runner
	if cfg.Cron.Enabled {
		if cfg.Settlement.PolicyVersion == "" {
			logger.Fatal("cron enabled but settlement.policy_version is empty")
		}
		runner = cronrunner.New(logger, ctx)
		if _, err := runner.Add(cfg.Cron.DayClose, cronrunner.DayCloseJob(closingService, cfg.Settlement.PolicyVersion, logger)); err != nil {
			logger.Fatal("schedule day close failed", zap.Error(err))
		}
		runner.Start()
		defer runner.Stop()
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}
