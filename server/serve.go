package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"screen-relay-server/internal/capture"
	"screen-relay-server/internal/config"
	"screen-relay-server/internal/relay"
)

// app holds the long-lived components behind the HTTP server.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	manager  *capture.Manager
	registry *relay.Registry
	relay    *relay.Server
}

func newApp(cfg *config.Config, spawner capture.Spawner, logger *slog.Logger) *app {
	manager := capture.NewManager(spawner, capture.Options{
		ChunkSize:  cfg.Capture.ReadChunkSize,
		FrameQueue: cfg.Capture.FrameQueue,
	}, logger)

	registry := relay.NewRegistry(manager, relay.Options{
		ClientBuffer:  cfg.Relay.ClientBuffer,
		PingInterval:  cfg.Relay.PingInterval(),
		ReadDeadline:  cfg.Relay.ReadDeadline(),
		WriteDeadline: cfg.Relay.WriteDeadline(),
		ReadLimit:     cfg.Relay.ReadLimit,
	}, logger)

	fallback := capture.Target{Host: cfg.Target.Host, Port: cfg.Target.Port}

	return &app{
		cfg:      cfg,
		logger:   logger,
		manager:  manager,
		registry: registry,
		relay:    relay.NewServer(registry, manager.Frames(), fallback, logger),
	}
}

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the relay server (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, ctx)
		},
	}
}

func runServe(cmd *cobra.Command, ctx *commandContext) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	logger, err := ctx.logger(cfg)
	if err != nil {
		return err
	}

	statuses := capture.CheckBinaries(capture.Requirements(cfg.Capture))
	if err := capture.MissingBinaries(statuses); err != nil {
		return err
	}

	if ctx.configPath != "" {
		logger.Debug("configuration loaded", slog.String("path", ctx.configPath))
	}

	runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a := newApp(cfg, capture.NewCommandSpawner(cfg.Capture), logger)
	return a.run(runCtx)
}

// run serves HTTP until ctx is cancelled, then disconnects viewers, stops the
// capture pipeline, and shuts the listener down.
func (a *app) run(ctx context.Context) error {
	if a.logger.Enabled(ctx, slog.LevelDebug) {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	listener, err := net.Listen("tcp", a.cfg.Server.Bind)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", a.cfg.Server.Bind, err)
	}

	srv := &http.Server{
		Handler:           a.router(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	distributeCtx, cancelDistribute := context.WithCancel(ctx)
	defer cancelDistribute()
	go a.relay.Run(distributeCtx)

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("screen relay listening",
			slog.String("addr", listener.Addr().String()),
			slog.String("screen_path", a.cfg.Server.ScreenPath),
			slog.String("default_target", capture.Target{Host: a.cfg.Target.Host, Port: a.cfg.Target.Port}.String()),
		)
		serveErr <- srv.Serve(listener)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		a.relay.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}

	a.logger.Info("shutting down")
	a.relay.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http: %w", err)
	}

	a.logger.Info("server exited")
	return nil
}
