package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/openmusicplayer/bilimusic/internal/api"
	"github.com/openmusicplayer/bilimusic/internal/auth"
	"github.com/openmusicplayer/bilimusic/internal/config"
	"github.com/openmusicplayer/bilimusic/internal/library"
	"github.com/openmusicplayer/bilimusic/internal/relay"
	"github.com/openmusicplayer/bilimusic/internal/tags"
	"github.com/openmusicplayer/bilimusic/internal/validators"
	"github.com/openmusicplayer/bilimusic/internal/websocket"
)

const shutdownTimeout = 15 * time.Second

func serveCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the download scheduler behind the HTTP control API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cfg.ServerAddr, "addr", cfg.ServerAddr, "listen address")
	flags.IntVar(&cfg.MaxParallel, "parallel", cfg.MaxParallel, "maximum concurrent downloads (0 = unlimited)")
	flags.StringSliceVar(&cfg.CORSOrigins, "cors-origin", cfg.CORSOrigins, "allowed CORS origin, repeatable")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}

	var authService *auth.Service
	if cfg.AuthEnabled() {
		if authService, err = auth.NewService(cfg.ControlPassword, cfg.JWTSecret); err != nil {
			a.Close(ctx)
			return fmt.Errorf("failed to set up authentication: %w", err)
		}
	} else {
		a.log.Warn(ctx, "CONTROL_PASSWORD not set, the control API is unauthenticated")
	}

	lib, err := library.New(cfg.DownloadDir, tags.NewID3Port())
	if err != nil {
		a.Close(ctx)
		return err
	}

	hub := websocket.NewHub().WithMetrics(a.metrics)
	go hub.Run()
	a.relay.Add(relay.NewHubSink(hub))
	a.start(ctx)

	rc := api.RouterConfig{
		Jobs:        a.scheduler,
		DownloadDir: cfg.DownloadDir,
		Library:     lib,
		Lyrics:      a.lyricsMatcher(),
		Auth:        authService,
		Hub:         hub,
		Health:      a.healthChecker(version),
		Metrics:     a.metrics,
		Validators:  validators.DefaultRegistry(),
		CORSOrigins: cfg.CORSOrigins,
	}
	if a.history != nil {
		rc.History = a.history
	}

	srv := &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           api.NewRouter(rc),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.log.Info(ctx, "server listening", map[string]interface{}{
			"addr":         cfg.ServerAddr,
			"download_dir": cfg.DownloadDir,
			"auth":         authService != nil,
		})
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err = <-serveErr:
	case <-ctx.Done():
		a.log.Info(context.Background(), "shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
		a.log.Warn(shutdownCtx, "http shutdown incomplete", map[string]interface{}{"error": shutdownErr.Error()})
	}
	a.Close(shutdownCtx)
	hub.Stop()

	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}
