package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/skyward-school/skyward/assets"
	"github.com/skyward-school/skyward/internal"
	"github.com/skyward-school/skyward/internal/auth"
	authdb "github.com/skyward-school/skyward/internal/auth/db"
	"github.com/skyward-school/skyward/internal/db"
	"github.com/skyward-school/skyward/internal/db/migrate"
	"github.com/skyward-school/skyward/internal/email"
	"github.com/skyward-school/skyward/internal/email/mailgun"
	"github.com/skyward-school/skyward/internal/email/postmark"
	"github.com/skyward-school/skyward/internal/email/sendgrid"
	"github.com/skyward-school/skyward/internal/email/smtp"
	"github.com/skyward-school/skyward/internal/email/view"
	"github.com/skyward-school/skyward/internal/krypto"
	"github.com/skyward-school/skyward/internal/reset"
	resetdb "github.com/skyward-school/skyward/internal/reset/db"
	"github.com/skyward-school/skyward/internal/web"
	"github.com/skyward-school/skyward/migrations"
	"golang.org/x/sync/errgroup"
)

// emailHTTPTimeout bounds calls to the email provider APIs.
const emailHTTPTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Stderr))
}

func run(ctx context.Context, w io.Writer) int {
	logger := slog.New(slog.NewTextHandler(w, nil))

	// Variables that are already set take precedence over the file.
	if envFile, ok := os.LookupEnv("ENV_FILE"); ok {
		err := godotenv.Load(envFile)
		if err != nil {
			logger.Error("failed to load env file", "file", envFile, "error", err)
			return 1
		}
		logger.Info("loaded env file", "file", envFile)
	}

	cfg, err := configFromEnv()
	if err != nil {
		logger.Error("failed to get config from environment, service unavailable", "error", err)
		return 1
	}

	pools, err := db.OpenPools(cfg.db.file)
	if err != nil {
		logger.Error("failed to open database", "file", cfg.db.file, "error", err)
		return 1
	}
	defer func() {
		err := pools.Close()
		if err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}()

	if cfg.db.migrate {
		logger.Info("attempting to migrate database", "file", cfg.db.file)

		ran, err := migrate.RunFS(ctx, pools.Write, migrations.FS, migrate.Metadata{
			AppVersion: internal.Build.Version(),
			Timestamp:  time.Now().UTC(),
		})
		if err != nil {
			logger.Error("failed to migrate database", "error", err)
			return 1
		}

		for _, m := range ran {
			logger.Info("migration ran", "sequence", m.Sequence, "filename", m.Filename)
		}
	}

	encryptor, err := krypto.NewEncryptor(cfg.db.encryptionKeys)
	if err != nil {
		logger.Error("failed to create encryptor", "error", err)
		return 1
	}

	authService, err := auth.NewService(
		authdb.New(pools.Read, pools.Write, encryptor, cfg.db.blindIndexSalt),
		func(err error) {
			logger.Error("error in auth service", "error", err)
		},
	)
	if err != nil {
		logger.Error("failed to create auth service", "error", err)
		return 1
	}

	sender, err := emailSender(cfg.email, logger)
	if err != nil {
		logger.Error("failed to create email sender", "driver", cfg.email.driver, "error", err)
		return 1
	}

	emailService := email.NewService(view.NewFSRenderer(assets.EmailFS), sender, cfg.email.service)

	hasher := reset.NewHasher()
	if cfg.reset.codeHashKey != nil {
		hasher = reset.NewKeyedHasher(*cfg.reset.codeHashKey)
	}

	resetService := reset.NewService(
		resetdb.New(pools.Read, pools.Write, encryptor, cfg.db.blindIndexSalt),
		hasher,
		emailService,
		authService,
		cfg.reset.service,
	)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	handler, err := web.NewServer(&web.ServerDeps{
		Logger:       logger,
		AuthService:  authService,
		ResetService: resetService,
		Registry:     registry,
	}, cfg.http.server)
	if err != nil {
		logger.Error("failed to create web server", "error", err)
		return 1
	}

	srv := &http.Server{
		Addr:         cfg.http.addr,
		ReadTimeout:  cfg.http.readTimeout,
		WriteTimeout: cfg.http.writeTimeout,
		IdleTimeout:  cfg.http.idleTimeout,
		Handler:      handler,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	// We need to run two tasks concurrently:
	// - Listen and serving of the HTTP server.
	// - Waiting for a signal to stop the server.

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting http server",
			"addr", cfg.http.addr,
			"emailDriver", cfg.email.driver,
			"build", internal.Build,
		)
		// ListenAndServe always returns a non-nil error,
		// g will cancel gCtx when an error is returned, so
		// this will also stop the other goroutine.
		return srv.ListenAndServe()
	})

	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("stopping http server")

		shutCtx, cancel := context.WithTimeout(context.Background(), cfg.http.shutdownTimeout)
		defer cancel()

		return srv.Shutdown(shutCtx)
	})

	err = g.Wait()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server stopped with error", "error", err)
		return 1
	}

	logger.Info("http server stopped successfully")

	return 0
}

// emailSender creates the sender for the configured driver.
func emailSender(cfg emailConfig, logger *slog.Logger) (email.Sender, error) {
	client := &http.Client{Timeout: emailHTTPTimeout}

	switch cfg.driver {
	case driverSMTP:
		return smtp.NewSender(cfg.smtp)
	case driverSendgrid:
		return sendgrid.NewSender(client, cfg.sendgrid), nil
	case driverPostmark:
		return postmark.NewSender(client, cfg.postmark), nil
	case driverMailgun:
		return mailgun.NewSender(client, cfg.mailgun), nil
	default:
		return email.NewLogSender(logger), nil
	}
}
