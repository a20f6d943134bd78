// Package main runs the keyword notification service.
//
// Publishers post content over HTTP; every subscriber with a running session
// is matched against it and notified in their feed and by email.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"keyword-notifier/database"
	"keyword-notifier/email"
	"keyword-notifier/identity"
	"keyword-notifier/keywords"
	"keyword-notifier/publish"
	"keyword-notifier/registry"
	"keyword-notifier/server"
	"keyword-notifier/session"
	"keyword-notifier/storage"
	"keyword-notifier/transport"
)

const shutdownTimeout = 15 * time.Second

// backend is everything the service persists.
type backend interface {
	publish.Store
	registry.Store
	identity.Store
}

func main() {
	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if cfg == nil {
		return
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Service failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config, logger *slog.Logger) error {
	store, closeStore, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	provider, err := newMailProvider(ctx, cfg, logger)
	if err != nil {
		return err
	}
	dispatcher, err := email.NewDispatcher(email.New(provider, logger, cfg.BaseURL), cfg.MailWorkers, cfg.MailQueue, logger)
	if err != nil {
		return err
	}

	extractor := keywords.New()
	if cfg.StopWords != "" {
		extra, err := keywords.LoadStopWords(cfg.StopWords)
		if err != nil {
			return err
		}
		extractor = keywords.New(extra...)
		logger.Info("Loaded extra stop words", "path", cfg.StopWords, "count", len(extra))
	}

	bus := transport.NewHub(cfg.BufferSize, logger)
	reg := registry.New(store, logger)
	directory := identity.New(store, logger)

	sessions := session.NewManager(&session.Config{
		Registry:    reg,
		Bus:         bus,
		Mailer:      dispatcher,
		Contacts:    directory,
		Logger:      logger,
		Topic:       cfg.Topic,
		PollTimeout: cfg.PollTimeout,
		GracePeriod: cfg.GracePeriod,
	})

	srv := server.New(&server.Config{
		Sessions:     sessions,
		Registry:     reg,
		Publisher:    publish.New(store, bus, extractor, cfg.Topic, logger),
		Contacts:     directory,
		Logger:       logger,
		PublishLimit: cfg.PublishLimit,
	}).HTTPServer(cfg.Port)

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", "port", cfg.Port, "storage", cfg.Storage, "mail", cfg.Mail)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown requested")
	case err := <-serveErr:
		runErr = fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown incomplete", "error", err)
	}
	sessions.CloseAll()
	if err := dispatcher.Close(cfg.GracePeriod); err != nil {
		logger.Warn("Mail dispatcher did not drain", "error", err)
	}
	if err := bus.Close(); err != nil {
		logger.Warn("Failed to close bus", "error", err)
	}

	logger.Info("Shutdown complete")
	return runErr
}

// openBackend returns the configured store and a function releasing it.
func openBackend(ctx context.Context, cfg *config, logger *slog.Logger) (backend, func(), error) {
	switch cfg.Storage {
	case backendSQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
			return nil, nil, fmt.Errorf("create database directory: %w", err)
		}
		db, err := database.Open(cfg.SQLitePath, logger)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("Using SQLite storage", "path", cfg.SQLitePath)
		return db, func() {
			if err := db.Close(); err != nil {
				logger.Warn("Failed to close database", "error", err)
			}
		}, nil

	case backendGCS:
		client, err := gcs.NewClient(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("initialize storage client: %w", err)
		}
		logger.Info("Using Cloud Storage", "bucket", cfg.Bucket)
		return storage.New(client, cfg.Bucket, "", []byte(cfg.Salt), logger), func() {
			if err := client.Close(); err != nil {
				logger.Warn("Failed to close storage client", "error", err)
			}
		}, nil

	default:
		if err := os.MkdirAll(cfg.LocalStorage, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create local storage directory: %w", err)
		}
		logger.Info("Running in local development mode", "storage_path", cfg.LocalStorage)
		return storage.New(nil, "", cfg.LocalStorage, []byte(cfg.Salt), logger), func() {}, nil
	}
}

func newMailProvider(ctx context.Context, cfg *config, logger *slog.Logger) (email.Provider, error) {
	switch cfg.Mail {
	case mailBrevo:
		logger.Info("Using Brevo for email", "from", cfg.MailFrom)
		return email.NewBrevoProvider(cfg.BrevoAPIKey, cfg.MailFrom, cfg.MailFromName, logger), nil
	case mailGmail:
		svc, err := initGmailService(ctx, cfg.GoogleCreds)
		if err != nil {
			if cfg.Storage == backendGCS {
				return nil, fmt.Errorf("initialize Gmail service: %w", err)
			}
			logger.Warn("Failed to initialize Gmail service, using mock email", "error", err)
			return email.NewMockProvider(logger), nil
		}
		return email.NewGmailProvider(svc, logger), nil
	default:
		logger.Info("Mock email mode enabled")
		return email.NewMockProvider(logger), nil
	}
}

// isCloudRun checks if we're running in a GCP environment by querying the metadata server.
func isCloudRun(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://metadata.google.internal/computeMetadata/v1/project/project-id", nil)
	if err != nil {
		return false
	}
	req.Header.Set("Metadata-Flavor", "Google")

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	return resp.StatusCode == http.StatusOK
}

func initGmailService(ctx context.Context, credsJSON string) (*gmail.Service, error) {
	// Explicit credentials win over the environment.
	if credsJSON != "" {
		return gmail.NewService(ctx, option.WithCredentialsJSON([]byte(credsJSON)))
	}

	// On Cloud Run the service account's Application Default Credentials are used.
	// It needs the gmail.send scope.
	if isCloudRun(ctx) {
		return gmail.NewService(ctx)
	}

	return nil, errors.New("google credentials required when not running in Cloud Run")
}
