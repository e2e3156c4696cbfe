// Command dealctl administers a deal desk database.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	appAlert "github.com/dealdesk/dealdesk/internal/application/alert"
	appAudit "github.com/dealdesk/dealdesk/internal/application/audit"
	appAuth "github.com/dealdesk/dealdesk/internal/application/auth"
	"github.com/dealdesk/dealdesk/internal/config"
	"github.com/dealdesk/dealdesk/internal/infrastructure/postgres"
	"github.com/dealdesk/dealdesk/internal/infrastructure/sse"
)

// services is what the commands operate on.
type services struct {
	auth   *appAuth.Service
	alerts *appAlert.Service
}

// opener connects to storage. migrate reports applied migration names.
type opener struct {
	services func(ctx context.Context) (*services, func(), error)
	migrate  func(ctx context.Context) ([]string, error)
}

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger().Level(zerolog.WarnLevel)
	if err := newRootCmd(postgresOpener(logger)).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func postgresOpener(logger zerolog.Logger) opener {
	return opener{
		services: func(ctx context.Context) (*services, func(), error) {
			cfg, err := config.Load()
			if err != nil {
				return nil, nil, err
			}
			pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, postgres.WithMaxConns(cfg.DBMaxConns))
			if err != nil {
				return nil, nil, err
			}
			tx := postgres.NewTransactor(pool)
			auditSvc := appAudit.NewService(postgres.NewAuditRepository(pool), logger, nil)
			router, err := appAlert.NewRouter(appAlert.DefaultRules())
			if err != nil {
				pool.Close()
				return nil, nil, err
			}
			return &services{
				auth: appAuth.NewService(postgres.NewOperatorRepository(pool), postgres.NewSessionRepository(pool),
					tx, auditSvc, cfg.SessionTTL, logger),
				alerts: appAlert.NewService(postgres.NewAlertRepository(pool), sse.NewHub(nil), router,
					tx, auditSvc, nil, logger),
			}, pool.Close, nil
		},
		migrate: func(ctx context.Context) ([]string, error) {
			cfg, err := config.Load()
			if err != nil {
				return nil, err
			}
			pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, postgres.WithMaxConns(cfg.DBMaxConns))
			if err != nil {
				return nil, err
			}
			defer pool.Close()
			return postgres.RunMigrations(ctx, pool, cfg.MigrationsDir)
		},
	}
}
