package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/sandai/arena/src/domain/shared"
	"github.com/sandai/arena/src/infra/config"
	"github.com/sandai/arena/src/infra/logging"
)

func main() {
	var (
		configPath  = flag.String("config", "", "path to a YAML config file")
		printConfig = flag.Bool("print-config", false, "print the effective config and exit")
		issueFor    = flag.String("issue-token", "", "print a bearer token for this user id and exit")
		issueRole   = flag.String("role", "", "role claim for -issue-token")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	auth := &Authenticator{Secret: []byte(cfg.Auth.Secret), Issuer: cfg.Auth.Issuer, AdminRole: cfg.Auth.AdminRole}
	switch {
	case *printConfig:
		out, err := cfg.YAML()
		if err != nil {
			fmt.Fprintf(os.Stderr, "render config: %v\n", err)
			os.Exit(1)
		}
		_, _ = os.Stdout.Write(out)
		return
	case *issueFor != "":
		token, err := auth.Issue(shared.UserID(*issueFor), *issueRole, 24*time.Hour)
		if err != nil {
			fmt.Fprintf(os.Stderr, "issue token: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(token)
		return
	}

	logger, closeLog, err := logging.New(logging.Options{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
		File:        cfg.Log.File,
		MaxSizeMB:   cfg.Log.MaxSizeMB,
		MaxBackups:  cfg.Log.MaxBackups,
		MaxAgeDays:  cfg.Log.MaxAgeDays,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	if err := run(cfg, auth, logger); err != nil {
		logger.Error("arena stopped", zap.Error(err))
		closeLog()
		os.Exit(1)
	}
}

func run(cfg *config.Config, auth *Authenticator, logger *zap.Logger) error {
	baseCtx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	app, err := buildApplication(baseCtx, cfg, logger)
	if err != nil {
		return fmt.Errorf("build application: %w", err)
	}
	if err := app.start(baseCtx); err != nil {
		_ = app.shutdown(context.Background())
		return fmt.Errorf("start application: %w", err)
	}

	server := NewServer(ServerConfig{
		Logger:         logger.Named("http"),
		Auth:           auth,
		Engine:         app.engine,
		Escrow:         app.escrow,
		Tournaments:    app.tournaments,
		Ledger:         app.ledger,
		Profiles:       app.directory,
		Registry:       app.registry,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
	})

	httpServer := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      server.Handler(),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("arena API listening",
			zap.String("addr", cfg.HTTP.Address),
			zap.String("storage", cfg.Storage.Driver))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-baseCtx.Done():
	case runErr = <-serveErr:
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
	if err := app.shutdown(shutdownCtx); err != nil {
		logger.Error("application shutdown", zap.Error(err))
	}
	return runErr
}
