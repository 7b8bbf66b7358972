package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"infosage/internal/config"
	server "infosage/internal/http"
	"infosage/internal/verify"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and web UI",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadRuntime()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	svc, err := verify.New(cfg, logger)
	if err != nil {
		return err
	}

	warnMissingCredential(cfg, logger)

	s := server.NewServer(cfg, svc, logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- s.Listen() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}

func warnMissingCredential(cfg *config.Config, logger *zap.Logger) {
	if cfg.LLM.HasCredential() {
		return
	}
	logger.Warn("LLM credential not configured; verification requests will fail",
		zap.String("provider", cfg.LLM.Provider),
		zap.String("env", cfg.LLM.CredentialEnv()))
}
