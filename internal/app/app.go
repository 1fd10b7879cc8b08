// Package app wires configuration, stores, and routes into a running HTTP
// server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Cleroy288/secure-ai-agent-gateway/internal/adminapi"
	"github.com/Cleroy288/secure-ai-agent-gateway/internal/audit"
	"github.com/Cleroy288/secure-ai-agent-gateway/internal/config"
	"github.com/Cleroy288/secure-ai-agent-gateway/internal/httpserver"
	"github.com/Cleroy288/secure-ai-agent-gateway/internal/telemetry"
	"github.com/Cleroy288/secure-ai-agent-gateway/pkg/agentstore"
	"github.com/Cleroy288/secure-ai-agent-gateway/pkg/pipeline"
	"github.com/Cleroy288/secure-ai-agent-gateway/pkg/ratelimit"
	"github.com/Cleroy288/secure-ai-agent-gateway/pkg/registry"
	"github.com/Cleroy288/secure-ai-agent-gateway/pkg/userstore"
	"github.com/Cleroy288/secure-ai-agent-gateway/pkg/vault"
)

// Run reads stores from disk, wires the admission pipeline and admin API,
// and serves until ctx is canceled.
func Run(ctx context.Context, cfg *config.Config) error {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting gateway", "listen", cfg.ListenAddr())

	services, err := registry.Load(cfg.ServicesConfigPath)
	if err != nil {
		return fmt.Errorf("loading service registry: %w", err)
	}

	credVault, err := vault.Load(cfg.CredentialsPath, cfg.EncryptionKey, logger)
	if err != nil {
		return fmt.Errorf("loading credential vault: %w", err)
	}

	users, err := userstore.Load(cfg.UsersPath)
	if err != nil {
		return fmt.Errorf("loading user store: %w", err)
	}

	agents, err := agentstore.Load(cfg.AgentsPath)
	if err != nil {
		return fmt.Errorf("loading agent store: %w", err)
	}

	limiter := ratelimit.New()
	metricsReg := telemetry.NewMetricsRegistry(telemetry.All()...)

	sessionTTL := time.Duration(cfg.SessionTTLSecs) * time.Second
	admin := adminapi.New(users, agents, services, sessionTTL)
	auditHandler := audit.NewHandler(logger)

	pipe := pipeline.New(agents, services, credVault, limiter, http.DefaultClient, logger)

	srv := httpserver.NewServer(cfg, logger, metricsReg)
	admin.Routes(srv.Router)
	srv.Router.Get("/audit", auditHandler.Query)
	srv.Router.HandleFunc("/api/{service}/*", pipe.Handler)

	httpSrv := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      srv,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("gateway listening", "addr", cfg.ListenAddr())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down gateway")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
