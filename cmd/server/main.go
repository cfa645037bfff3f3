package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/2001118301/bullying-detection-system/internal/analysis"
	"github.com/2001118301/bullying-detection-system/internal/api"
	"github.com/2001118301/bullying-detection-system/internal/api/handler"
	"github.com/2001118301/bullying-detection-system/internal/config"
	"github.com/2001118301/bullying-detection-system/internal/email"
	"github.com/2001118301/bullying-detection-system/internal/evidence"
	"github.com/2001118301/bullying-detection-system/internal/health"
	"github.com/2001118301/bullying-detection-system/internal/identity"
	"github.com/2001118301/bullying-detection-system/internal/ledger"
	"github.com/2001118301/bullying-detection-system/internal/reports"
	"github.com/2001118301/bullying-detection-system/internal/users"
)

func main() {
	fs := pflag.NewFlagSet("server", pflag.ExitOnError)
	cfgFile := fs.String("config", "", "path to config file (default: configs/incident.yaml or ./incident.yaml)")
	config.RegisterFlags(fs)
	fs.Parse(os.Args[1:]) //nolint:errcheck

	cfg, err := config.Load(*cfgFile, fs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync() //nolint:errcheck

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server exited with error", zap.Error(err))
	}
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log.level %q: %w", level, err)
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	return zcfg.Build()
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Ledger ───────────────────────────────────────────────────────────────
	store, closeStore, err := openStore(ctx, cfg.Ledger, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	chain, err := ledger.Open(ctx, store, logger,
		ledger.WithSLAPolicy(ledger.SLAPolicy{Window: cfg.Ledger.SLAWindow}),
		ledger.WithAppendHook(handler.RecordLedgerAppend),
	)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	handler.SetLedgerBlocks(chain.Len())

	// ── Identity ─────────────────────────────────────────────────────────────
	sessions, err := identity.NewSessionIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		return fmt.Errorf("session issuer: %w", err)
	}

	// ── Email Sender ─────────────────────────────────────────────────────────
	var mailer email.Sender
	if cfg.Email.SMTPHost != "" {
		mailer = email.NewSMTPSender(email.SMTPConfig{
			Host:     cfg.Email.SMTPHost,
			Port:     cfg.Email.SMTPPort,
			Username: cfg.Email.SMTPUsername,
			Password: cfg.Email.SMTPPassword,
			From:     cfg.Email.FromAddress,
		})
		logger.Info("SMTP email sender configured", zap.String("host", cfg.Email.SMTPHost))
	} else {
		mailer = email.NewNoopSender(logger)
		logger.Info("email sender: noop (set email.smtp_host to enable SMTP)")
	}

	// ── Wire up layers ───────────────────────────────────────────────────────
	uploads, err := evidence.NewStore(cfg.Upload.Dir)
	if err != nil {
		return err
	}

	userSvc := users.NewUserService(chain, logger)
	reportSvc := reports.NewReportService(chain, uploads,
		analysis.NewRuleBasedTextAnalyzer(), analysis.NewEvidenceAnalyzer(), logger)
	reportSvc.SetNotifier(mailer, cfg.Notify.ValidatorEmail)

	auth := handler.NewAuthenticator(sessions, userSvc, logger)
	ledgerH := handler.NewLedgerHandler(chain, logger)

	// ── Integrity checker ────────────────────────────────────────────────────
	if cfg.Ledger.CheckInterval > 0 {
		checker := health.New(chain, store, health.Config{
			CheckInterval: cfg.Ledger.CheckInterval,
			FailThreshold: cfg.Ledger.CheckFailThreshold,
		}, logger)
		checker.SetMetricsRecord(handler.RecordIntegrityCheck)
		if to := cfg.Notify.ValidatorEmail; to != "" {
			checker.SetAlert(func(ctx context.Context, err error) {
				msg := email.Message{
					To:      to,
					Subject: "Incident ledger integrity check failing",
					Body:    "The persisted ledger no longer matches the served chain:\n\n" + err.Error() + "\n",
				}
				if serr := mailer.Send(ctx, msg); serr != nil {
					logger.Warn("integrity alert email failed", zap.Error(serr))
				}
			})
		}
		ledgerH.SetReadiness(checker.Status)
		go checker.Start(ctx)
		logger.Info("ledger integrity checker started", zap.Duration("interval", cfg.Ledger.CheckInterval))
	}

	// ── HTTP Router ──────────────────────────────────────────────────────────
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.NewRouter(ctx, api.Options{
		CORSOrigins:    cfg.Server.CORSOrigins,
		RateLimitRPS:   cfg.Server.RateLimitRPS,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		FrontendDir:    cfg.Server.FrontendDir,
	}, api.Handlers{
		Auth:     handler.NewAuthHandler(userSvc, sessions, logger),
		Reports:  handler.NewReportHandler(reportSvc, auth, logger),
		Ledger:   ledgerH,
		Evidence: handler.NewEvidenceHandler(uploads),
	}, logger)

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP listening", zap.Int("port", cfg.Server.Port))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// ── Graceful shutdown ────────────────────────────────────────────────────
	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("http listen: %w", err)
	}
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown error", zap.Error(err))
	}

	logger.Info("server stopped", zap.Int("blocks", chain.Len()), zap.String("root", chain.Root()))
	return nil
}

// openStore builds the configured ledger backend and a function releasing it.
func openStore(ctx context.Context, cfg config.LedgerConfig, logger *zap.Logger) (ledger.Store, func(), error) {
	switch cfg.Backend {
	case config.BackendPostgres:
		db, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		if err := db.Ping(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("ping postgres: %w", err)
		}
		store := ledger.NewPostgresStore(db, logger)
		if err := store.Migrate(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("migrate ledger schema: %w", err)
		}
		logger.Info("ledger backend: postgres")
		return store, db.Close, nil
	default:
		logger.Info("ledger backend: file", zap.String("path", cfg.Path))
		return ledger.NewFileStore(cfg.Path), func() {}, nil
	}
}
