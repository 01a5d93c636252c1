package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	authimpl "github.com/foxseedlab/voicememo/external/auth"
	configloader "github.com/foxseedlab/voicememo/external/config"
	documentimpl "github.com/foxseedlab/voicememo/external/document"
	repositoryimpl "github.com/foxseedlab/voicememo/external/repository"
	transcriberimpl "github.com/foxseedlab/voicememo/external/transcriber"
	transportimpl "github.com/foxseedlab/voicememo/external/transport"
	webhookimpl "github.com/foxseedlab/voicememo/external/webhook"
	"github.com/foxseedlab/voicememo/internal/auth"
	"github.com/foxseedlab/voicememo/internal/config"
	"github.com/foxseedlab/voicememo/internal/metrics"
	"github.com/foxseedlab/voicememo/internal/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/do/v2"
	"golang.org/x/sync/errgroup"
)

const (
	credentialCheckTimeout = 10 * time.Second
	httpShutdownTimeout    = 15 * time.Second
	readHeaderTimeout      = 10 * time.Second
)

func main() {
	slog.Info("startup: loading configuration")
	cfg := mustLoadConfig()
	initLogger(cfg)
	slog.Info("startup: configuration loaded", "env", cfg.Env, "auth_mode", cfg.GoogleAuthMode)

	slog.Info("startup: building dependency graph")
	injector := setupDI(cfg)

	if err := runServer(cfg, injector); err != nil {
		slog.Error("server stopped with error", "error", err)
		shutdownInjector(injector)
		os.Exit(1)
	}
	shutdownInjector(injector)
}

func mustLoadConfig() *config.Config {
	cfg, err := configloader.Load()
	if err != nil {
		slog.Error("config validation failed", "error", err)
		os.Exit(1)
	}
	return cfg
}

func initLogger(cfg *config.Config) {
	logLevel := slog.LevelInfo
	if cfg.IsDevelopment() {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))
}

func setupDI(cfg *config.Config) do.Injector {
	injector := do.New()

	do.ProvideValue(injector, cfg)
	metrics.RegisterDI(injector)
	authimpl.RegisterDI(injector)
	repositoryimpl.RegisterDI(injector)
	documentimpl.RegisterDI(injector)
	transcriberimpl.RegisterDI(injector)
	webhookimpl.RegisterDI(injector)
	session.RegisterDI(injector)
	transportimpl.RegisterDI(injector)

	return injector
}

func runServer(cfg *config.Config, injector do.Injector) error {
	provider, err := do.Invoke[auth.Provider](injector)
	if err != nil {
		return err
	}
	checkCredentials(provider)

	wsServer, err := do.Invoke[*transportimpl.Server](injector)
	if err != nil {
		return err
	}
	registry, err := do.Invoke[*prometheus.Registry](injector)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Sessions run on hijacked connections, which Shutdown does not track;
	// they watch this context instead.
	sessionCtx, cancelSessions := context.WithCancel(context.Background())
	defer cancelSessions()

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           transportimpl.NewMux(wsServer, authimpl.NewHTTPHandler(provider), registry),
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return sessionCtx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("startup: http server listening", "addr", cfg.HTTPAddr, "session_path", transportimpl.SessionPath)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")
		cancelSessions()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// checkCredentials only warns: sessions re-check and close with 4001.
func checkCredentials(provider auth.Provider) {
	ctx, cancel := context.WithTimeout(context.Background(), credentialCheckTimeout)
	defer cancel()
	if err := provider.Authorize(ctx); err != nil {
		slog.Warn("startup: google credentials are not usable yet; sign in via /login", "error", err)
		return
	}
	slog.Info("startup: google credentials verified")
}

func shutdownInjector(injector do.Injector) {
	if report := injector.Shutdown(); report != nil && len(report.Errors) > 0 {
		slog.Error("dependency shutdown reported errors", "error", report.Error())
	}
}
