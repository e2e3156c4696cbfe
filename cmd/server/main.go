package main

import (
	"context"
	"encoding/hex"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	httpapi "github.com/dealdesk/dealdesk/internal/api/http"
	appAlert "github.com/dealdesk/dealdesk/internal/application/alert"
	appAudit "github.com/dealdesk/dealdesk/internal/application/audit"
	appAuth "github.com/dealdesk/dealdesk/internal/application/auth"
	appDeal "github.com/dealdesk/dealdesk/internal/application/deal"
	appInvoice "github.com/dealdesk/dealdesk/internal/application/invoice"
	appSigning "github.com/dealdesk/dealdesk/internal/application/signing"
	appWebhook "github.com/dealdesk/dealdesk/internal/application/webhook"
	"github.com/dealdesk/dealdesk/internal/config"
	"github.com/dealdesk/dealdesk/internal/domain/alert"
	"github.com/dealdesk/dealdesk/internal/domain/audit"
	"github.com/dealdesk/dealdesk/internal/domain/contract"
	"github.com/dealdesk/dealdesk/internal/domain/deal"
	"github.com/dealdesk/dealdesk/internal/domain/invoice"
	"github.com/dealdesk/dealdesk/internal/domain/operator"
	"github.com/dealdesk/dealdesk/internal/domain/session"
	"github.com/dealdesk/dealdesk/internal/domain/signature"
	"github.com/dealdesk/dealdesk/internal/infrastructure/docusign"
	"github.com/dealdesk/dealdesk/internal/infrastructure/keystore"
	"github.com/dealdesk/dealdesk/internal/infrastructure/memory"
	"github.com/dealdesk/dealdesk/internal/infrastructure/metrics"
	"github.com/dealdesk/dealdesk/internal/infrastructure/nativesign"
	"github.com/dealdesk/dealdesk/internal/infrastructure/postgres"
	"github.com/dealdesk/dealdesk/internal/infrastructure/sse"
	"github.com/dealdesk/dealdesk/internal/infrastructure/storage"
)

type transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type repositories struct {
	deals      deal.Repository
	contracts  contract.Repository
	signatures signature.Repository
	invoices   invoice.Repository
	audit      audit.Repository
	alerts     alert.Repository
	operators  operator.Repository
	sessions   session.Repository
	tx         transactor
	close      func()
}

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		logger = logger.Level(level)
	}

	ctx := context.Background()
	repos, err := openRepositories(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("storage", cfg.Storage).Msg("storage init failed")
	}
	defer repos.close()

	// infrastructure
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.MustNewMetrics(reg)
	sseHub := sse.NewHub(m)
	defer sseHub.Stop()

	secrets, err := keystore.New(cfg.WebhookSecret, cfg.WebhookSecrets)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid webhook secrets")
	}
	if !secrets.Configured() {
		logger.Warn().Msg("no webhook secret configured: signature webhooks are accepted without authentication")
	}

	providers, err := buildProviders(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("signature provider init failed")
	}
	if _, err := providers.Get(""); err != nil {
		logger.Fatal().Err(err).Strs("available", providers.Names()).Msg("default signature provider is not registered")
	}

	documents, err := buildDocumentStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("document storage init failed")
	}

	rules := appAlert.DefaultRules()
	if len(cfg.AlertRules) > 0 {
		rules = rules[:0]
		for _, r := range cfg.AlertRules {
			rules = append(rules, appAlert.Rule{Name: r.Name, Condition: r.Condition, Group: r.Group})
		}
	}
	alertRouter, err := appAlert.NewRouter(rules)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid alert rules")
	}

	// services
	auditSvc := appAudit.NewService(repos.audit, logger, loadHexKey(cfg.AuditSigningKey))
	alertSvc := appAlert.NewService(repos.alerts, sseHub, alertRouter, repos.tx, auditSvc, m, logger)
	invoiceSvc := appInvoice.NewService(repos.invoices, repos.deals, repos.tx, auditSvc, m, logger)
	dealSvc := appDeal.NewService(repos.deals, repos.tx, invoiceSvc, alertSvc, auditSvc, m, logger)
	signingSvc := appSigning.NewService(repos.signatures, repos.contracts, repos.deals, repos.tx,
		providers, documents, alertSvc, auditSvc, m, logger)
	authSvc := appAuth.NewService(repos.operators, repos.sessions, repos.tx, auditSvc, cfg.SessionTTL, logger)

	if err := bootstrapAdmin(ctx, cfg, authSvc, logger); err != nil {
		logger.Fatal().Err(err).Msg("admin bootstrap failed")
	}

	// API server
	apiServer := httpapi.NewServer(dealSvc, signingSvc, invoiceSvc, alertSvc, auditSvc, authSvc,
		appWebhook.NewAuthenticator(secrets, cfg.WebhookTimestampTolerance), providers, logger,
		httpapi.Options{
			SessionCookieName:   cfg.SessionCookieName,
			SessionCookieSecure: cfg.SessionCookieSecure,
			CORSOrigins:         cfg.CORSOrigins,
			MetricsHandler:      promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			MaxWebhookBody:      int64(cfg.WebhookMaxBodyMB) << 20,
		})

	httpServer := &http.Server{
		Addr:        cfg.ServerAddr,
		Handler:     apiServer.Router(),
		ReadTimeout: 15 * time.Second,
		// No write timeout: the alert stream is long-lived; other routes
		// carry a 30s handler timeout.
		IdleTimeout: 60 * time.Second,
	}

	// background loops
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			if _, err := authSvc.PurgeExpired(context.Background()); err != nil {
				logger.Warn().Err(err).Msg("session purge failed")
			}
		}
	}()

	// start server
	go func() {
		logger.Info().
			Str("addr", cfg.ServerAddr).
			Str("storage", cfg.Storage).
			Strs("providers", providers.Names()).
			Msg("http server started")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	// graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(ctxShutdown)
}

func openRepositories(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*repositories, error) {
	if cfg.Storage == "memory" {
		logger.Warn().Msg("using in-memory storage: data is lost on restart")
		store := memory.NewStore()
		return &repositories{
			deals:      store.Deals(),
			contracts:  store.Contracts(),
			signatures: store.Signatures(),
			invoices:   store.Invoices(),
			audit:      store.Audit(),
			alerts:     store.Alerts(),
			operators:  store.Operators(),
			sessions:   store.Sessions(),
			tx:         store,
			close:      func() {},
		}, nil
	}

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, postgres.WithMaxConns(cfg.DBMaxConns))
	if err != nil {
		return nil, err
	}
	applied, err := postgres.RunMigrations(ctx, pool, cfg.MigrationsDir)
	if err != nil {
		pool.Close()
		return nil, err
	}
	if len(applied) > 0 {
		logger.Info().Strs("migrations", applied).Msg("applied migrations")
	}
	return &repositories{
		deals:      postgres.NewDealRepository(pool),
		contracts:  postgres.NewContractRepository(pool),
		signatures: postgres.NewSignatureRepository(pool),
		invoices:   postgres.NewInvoiceRepository(pool),
		audit:      postgres.NewAuditRepository(pool),
		alerts:     postgres.NewAlertRepository(pool),
		operators:  postgres.NewOperatorRepository(pool),
		sessions:   postgres.NewSessionRepository(pool),
		tx:         postgres.NewTransactor(pool),
		close:      pool.Close,
	}, nil
}

func buildProviders(cfg *config.Config) (*signature.Registry, error) {
	client := &http.Client{Timeout: cfg.DocuSign.HTTPTimeout}

	var tokens docusign.TokenSource = docusign.StaticToken(cfg.DocuSign.AccessToken)
	if cfg.DocuSign.UsesJWT() {
		pemKey, err := os.ReadFile(cfg.DocuSign.PrivateKeyPath)
		if err != nil {
			return nil, err
		}
		src, err := docusign.NewJWTTokenSource(cfg.DocuSign.IntegrationKey, cfg.DocuSign.UserID, cfg.DocuSign.AuthServer, pemKey, client)
		if err != nil {
			return nil, err
		}
		tokens = src
	}

	return signature.NewRegistry(cfg.SignatureProvider,
		docusign.New(cfg.DocuSign.BaseURL, cfg.DocuSign.AccountID, tokens, client),
		nativesign.New(cfg.NativeSignDocumentURL, client),
	), nil
}

func buildDocumentStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (appSigning.DocumentStore, error) {
	if !cfg.Minio.Enabled() {
		logger.Warn().Msg("MINIO_ENDPOINT not set: signed documents are kept in memory")
		return memory.NewDocumentStore(), nil
	}
	store, err := storage.NewMinioStore(cfg.Minio, logger)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := store.EnsureBucket(ctx); err != nil {
		// Signing still works; document storage failures are recoverable.
		logger.Error().Err(err).Str("bucket", cfg.Minio.Bucket).Msg("document bucket unavailable")
	}
	return store, nil
}

func bootstrapAdmin(ctx context.Context, cfg *config.Config, authSvc *appAuth.Service, logger zerolog.Logger) error {
	if cfg.BootstrapAdminPassword == "" {
		return nil
	}
	has, err := authSvc.HasOperators(ctx)
	if err != nil || has {
		return err
	}
	o, err := authSvc.CreateOperator(ctx, cfg.BootstrapAdminUsername, cfg.BootstrapAdminPassword, operator.RoleAdmin, nil, "system:bootstrap")
	if err != nil {
		return err
	}
	logger.Info().Str("username", o.Username).Msg("bootstrapped admin operator")
	return nil
}

func loadHexKey(hexStr string) []byte {
	if hexStr == "" {
		return nil
	}
	b, err := hex.DecodeString(hexStr)
	if err != nil {
		return nil
	}
	return b
}
