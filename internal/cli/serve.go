package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/forPelevin/hlshorts/internal/api"
	"github.com/forPelevin/hlshorts/internal/config"
	"github.com/forPelevin/hlshorts/internal/logging"
	"github.com/forPelevin/hlshorts/internal/pipeline"
	"github.com/forPelevin/hlshorts/internal/session"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand(g *globals) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the upload and generation HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return err
			}
			logger, err := newLogger(cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config)")
	return cmd
}

func openStore(cfg *config.Config) (session.Store, error) {
	switch cfg.Server.StoreDriver {
	case "sqlite":
		return session.OpenSQLite(cfg.Server.StorePath)
	case "memory", "":
		return session.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Server.StoreDriver)
	}
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	reg := session.NewRegistry(store, cfg.Paths.SessionsDir)
	if n, err := reg.Recover(ctx); err != nil {
		return fmt.Errorf("recover sessions: %w", err)
	} else if n > 0 {
		logger.Warn("sessions interrupted by a previous run marked as failed", slog.Int("count", n))
	}

	p, err := pipeline.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer p.Close()

	gin.SetMode(gin.ReleaseMode)
	srv := api.NewServer(ctx, reg, p, logging.WithComponent(logger, "api"), api.Options{
		MaxUploadBytes:   cfg.Server.MaxUploadMB << 20,
		DefaultMaxShorts: cfg.Analysis.MaxShorts,
	})
	httpSrv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http api listening",
			slog.String("addr", cfg.Server.Addr),
			slog.String("store", cfg.Server.StoreDriver),
			slog.Bool("analysis", p.AnalysisEnabled()),
		)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", slog.String("error", err.Error()))
	}
	srv.Wait()
	return nil
}
