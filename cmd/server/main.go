package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"webterm/internal/backend"
	"webterm/internal/logging"
	"webterm/internal/realtime"
	"webterm/internal/session"
	"webterm/internal/watcher"
)

const shutdownTimeout = 5 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "webterm-server",
		Short:         "Serve browser consoles backed by a remote execution service",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			v, err := newViper(cmd.Flags())
			if err != nil {
				return err
			}
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := run(ctx, cfg, log); err != nil {
				log.WithError(err).Error("server stopped")
				return err
			}
			return nil
		},
	}
	registerFlags(cmd.Flags())
	return cmd
}

func run(ctx context.Context, cfg Config, log *logrus.Logger) error {
	client := backend.New(cfg.BackendURL)
	sessMgr := session.NewManager(cfg.MaxSessions, client, log, cfg.consoleOptions()...)
	defer sessMgr.Shutdown()

	rtServer := realtime.New(sessMgr, cfg.StaticDir, log)

	if cfg.WatchStatic && cfg.StaticDir != "" {
		assetWatch := watcher.New(cfg.StaticDir, rtServer.OnAssetsChanged, log)
		if err := assetWatch.Start(); err != nil {
			log.WithError(err).Warn("static asset watcher disabled")
		} else {
			defer assetWatch.Close()
		}
	}

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: rtServer.Handler(),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithFields(logrus.Fields{
			"addr":    fmt.Sprintf("http://localhost:%d", cfg.Port),
			"backend": client.BaseURL(),
		}).Info("webterm server running")
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
