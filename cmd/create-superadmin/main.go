package main

import (
	"context"
	"flag"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/Elvismn/Scholalink3.0/internal/repository"
	"github.com/Elvismn/Scholalink3.0/internal/service"
	"github.com/Elvismn/Scholalink3.0/pkg/config"
	"github.com/Elvismn/Scholalink3.0/pkg/database"
	"github.com/Elvismn/Scholalink3.0/pkg/logger"
	"github.com/Elvismn/Scholalink3.0/pkg/password"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	var (
		email   string
		secret  string
		timeout time.Duration
	)
	flag.StringVar(&email, "email", cfg.Bootstrap.SuperAdminEmail, "Super admin email")
	flag.StringVar(&secret, "password", cfg.Bootstrap.SuperAdminPassword, "Super admin password")
	flag.DurationVar(&timeout, "timeout", 30*time.Second, "Overall timeout")
	flag.Parse()

	if secret == "" {
		log.Fatal("a password is required: pass -password or set SUPERADMIN_PASSWORD")
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close()

	if err := database.Migrate(ctx, db); err != nil {
		logr.Fatal("failed to migrate schema", zap.Error(err))
	}

	users := service.NewUserService(repository.NewUserRepository(db), password.NewHasher(cfg.Security.BcryptCost), nil, service.NewValidator(), logr)
	created, err := users.BootstrapSuperAdmin(ctx, email, secret)
	if err != nil {
		logr.Fatal("failed to create super admin", zap.Error(err))
	}
	if !created {
		logr.Info("super admin already exists, nothing to do")
		return
	}
	logr.Info("super admin created", zap.String("email", repository.NormalizeEmail(email)))
}
