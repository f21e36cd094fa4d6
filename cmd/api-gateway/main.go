package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	_ "github.com/Elvismn/Scholalink3.0/api/swagger"
	"github.com/Elvismn/Scholalink3.0/internal/handler"
	"github.com/Elvismn/Scholalink3.0/internal/repository"
	"github.com/Elvismn/Scholalink3.0/internal/server"
	"github.com/Elvismn/Scholalink3.0/internal/service"
	"github.com/Elvismn/Scholalink3.0/pkg/cache"
	"github.com/Elvismn/Scholalink3.0/pkg/config"
	"github.com/Elvismn/Scholalink3.0/pkg/database"
	"github.com/Elvismn/Scholalink3.0/pkg/logger"
	"github.com/Elvismn/Scholalink3.0/pkg/password"
)

// @title Scholalink API
// @version 3.0.0
// @description Authentication and role based access control for the Scholalink school platform
// @BasePath /
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close()

	if err := database.Migrate(ctx, db); err != nil {
		logr.Fatal("failed to migrate schema", zap.Error(err))
	}

	var redisClient *redis.Client
	if cfg.UserStats.CacheEnabled {
		redisClient, err = cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, user stats cache disabled", zap.Error(err))
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	metrics := service.NewMetricsService()
	validate := service.NewValidator()
	hasher := password.NewHasher(cfg.Security.BcryptCost)

	users := repository.NewUserRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	statsCache := service.NewCacheService(cacheRepo, metrics, cfg.UserStats.CacheTTL, logr, redisClient != nil)

	tokens := service.NewTokenService(service.TokenConfig{Secret: cfg.JWT.Secret, Issuer: cfg.JWT.Issuer})
	authService := service.NewAuthService(users, tokens, hasher, validate, logr, metrics, statsCache)
	userService := service.NewUserService(users, hasher, statsCache, validate, logr)

	ready := map[string]handler.ReadinessCheck{"postgres": db.PingContext}
	if redisClient != nil {
		ready["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	r := server.NewRouter(server.Deps{
		Config:  cfg,
		Logger:  logr,
		Auth:    authService,
		Users:   userService,
		Metrics: metrics,
		Ready:   ready,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}
