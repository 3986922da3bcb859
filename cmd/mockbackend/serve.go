package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"boletodesk/internal/logging"
	"boletodesk/internal/mockbackend"
)

const shutdownTimeout = 5 * time.Second

func newServeCommand() *cobra.Command {
	var addr string
	var logLevel string
	var logFormat string
	var tokenTTL time.Duration

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the backend API under /api/v1",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logging.New(logging.Options{Level: logLevel, Format: logFormat, Console: cmd.ErrOrStderr()})
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			server := mockbackend.New(
				mockbackend.WithLogger(logger),
				mockbackend.WithTokenTTL(tokenTTL),
			)

			listener, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("listen %s: %w", addr, err)
			}
			httpServer := &http.Server{
				Handler:           server.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Serving on http://%s/api/v1\n", listener.Addr())
			fmt.Fprintf(out, "Log in with: boletodesk login --email %s --password %s\n", mockbackend.DefaultEmail, mockbackend.DefaultPassword)
			return serve(cmd.Context(), httpServer, listener, logger)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8000", "Listen address")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	cmd.Flags().StringVar(&logFormat, "log-format", "console", "Log format (console or json)")
	cmd.Flags().DurationVar(&tokenTTL, "token-ttl", 8*time.Hour, "Lifetime of issued access tokens")
	return cmd
}

// serve runs srv until ctx is cancelled, then shuts it down gracefully.
func serve(ctx context.Context, srv *http.Server, listener net.Listener, logger *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(listener)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down", logging.String(logging.FieldEventType, "shutdown"))
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
