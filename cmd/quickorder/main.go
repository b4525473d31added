package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hanko-field/quickorder/internal/di"
	"github.com/hanko-field/quickorder/internal/handlers"
	"github.com/hanko-field/quickorder/internal/platform/config"
	"github.com/hanko-field/quickorder/internal/platform/observability"
	"github.com/hanko-field/quickorder/internal/platform/secrets"
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()
	logger := baseLogger.Named("quickorder")

	resolver := &lazySecretResolver{projectID: secretsProjectID(), logger: logger.Named("secrets")}
	defer func() {
		if err := resolver.Close(); err != nil {
			logger.Warn("secret resolver close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx, config.WithSecretResolver(resolver))
	if err != nil {
		var invalid *config.ValidationError
		if errors.As(err, &invalid) {
			logger.Fatal("invalid configuration", zap.Strings("fields", invalid.Fields()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	if cfg.Observability.LogLevel != "" {
		if leveled, err := observability.NewLogger(cfg.Observability.LogLevel); err == nil {
			baseLogger = leveled
			logger = baseLogger.Named("quickorder")
		}
	}

	container, err := di.NewContainer(ctx, cfg, logger, buildInfo(startedAt))
	if err != nil {
		logger.Fatal("failed to initialise container", zap.Error(err))
	}

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      container.Router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("quick order api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
	if err := container.Close(shutdownCtx); err != nil {
		logger.Warn("container close error", zap.Error(err))
	}
}

func buildInfo(started time.Time) handlers.BuildInfo {
	version := strings.TrimSpace(os.Getenv("API_BUILD_VERSION"))
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(os.Getenv("API_BUILD_COMMIT_SHA"))
	if commit == "" {
		commit = "unknown"
	}
	environment := strings.TrimSpace(os.Getenv("API_ENVIRONMENT"))
	if environment == "" {
		environment = "local"
	}
	return handlers.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: environment,
		StartedAt:   started,
	}
}

func secretsProjectID() string {
	for _, key := range []string{"API_SECRETS_PROJECT_ID", "API_FIRESTORE_PROJECT_ID", "GOOGLE_CLOUD_PROJECT"} {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return v
		}
	}
	return ""
}

// lazySecretResolver only dials Secret Manager once a secret reference is actually resolved.
type lazySecretResolver struct {
	projectID string
	logger    *zap.Logger

	once     sync.Once
	resolver *secrets.Resolver
	err      error
}

func (l *lazySecretResolver) ResolveSecret(ctx context.Context, ref string) (string, error) {
	l.once.Do(func() {
		l.resolver, l.err = secrets.NewResolver(ctx, l.projectID, secrets.WithLogger(l.logger))
	})
	if l.err != nil {
		return "", l.err
	}
	return l.resolver.ResolveSecret(ctx, ref)
}

func (l *lazySecretResolver) Close() error {
	if l.resolver == nil {
		return nil
	}
	return l.resolver.Close()
}
