package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"mei-diagnostic/internal/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Expose diagnostics over HTTP",
	Long: `Starts the HTTP surface:

  POST /diagnostics/{cnpj}   run a fresh diagnostic
  GET  /diagnostics/{cnpj}   latest stored snapshot
  GET  /healthz              liveness`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default server.host:server.port)")
}

func runServe(cmd *cobra.Command, args []string) error {
	engine, closeFn, err := newEngine()
	if err != nil {
		return err
	}
	defer closeFn()

	addr := serveAddr
	if addr == "" {
		addr = cfg.Server.Addr()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := server.New(engine, logger)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe(addr) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down http surface")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		logger.Warn("unclean shutdown", zap.Error(err))
	}
	return <-errCh
}
