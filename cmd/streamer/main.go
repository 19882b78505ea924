package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/Bigdez55/Elson-TB2-sub005/internal/cache"
	"github.com/Bigdez55/Elson-TB2-sub005/internal/config"
	"github.com/Bigdez55/Elson-TB2-sub005/internal/dispatch"
	"github.com/Bigdez55/Elson-TB2-sub005/internal/httpapi"
	"github.com/Bigdez55/Elson-TB2-sub005/internal/middleware"
	"github.com/Bigdez55/Elson-TB2-sub005/internal/protocol"
	"github.com/Bigdez55/Elson-TB2-sub005/internal/realtime"
	"github.com/Bigdez55/Elson-TB2-sub005/internal/session"
	"github.com/Bigdez55/Elson-TB2-sub005/internal/store"
	"github.com/Bigdez55/Elson-TB2-sub005/internal/subscription"
	"github.com/Bigdez55/Elson-TB2-sub005/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/streamer.local.yaml", "path to config file")
	flag.Parse()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting streamer",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"stream_url", cfg.Realtime.URL,
		"server_port", cfg.Server.Port,
		"default_mode", cfg.Trading.DefaultMode,
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("streamer failed", "error", err)
		os.Exit(1)
	}
	logger.Info("streamer stopped")
}

func run(cfg *config.StreamerConfig, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tokens := session.FromSettings(cfg.Session.Token, cfg.Session.TokenEnv, cfg.Session.TokenFile)

	disp := dispatch.New(logger)
	manager := realtime.NewManager(realtime.Config{
		URL:                  cfg.Realtime.URL,
		AuthRequired:         *cfg.Realtime.AuthRequired,
		HeartbeatInterval:    cfg.Realtime.HeartbeatInterval,
		ReconnectInterval:    cfg.Realtime.ReconnectInterval,
		MaxReconnectAttempts: cfg.Realtime.MaxReconnectAttempts,
		HandshakeTimeout:     cfg.Realtime.HandshakeTimeout,
		WriteTimeout:         cfg.Realtime.WriteTimeout,
		BufferSize:           cfg.Realtime.BufferSize,
	}, tokens, disp, logger)

	subs := subscription.NewRegistry(manager, logger)
	st := store.New(protocol.Mode(cfg.Trading.DefaultMode))
	c := cache.New(logger)
	sync := middleware.New(manager, subs, disp, st, c, logger)

	server, err := httpapi.NewServer(httpapi.Config{
		Port:    cfg.Server.Port,
		Manager: manager,
		Subs:    subs,
		Disp:    disp,
		Store:   st,
	})
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting status server", "port", cfg.Server.Port)
		return server.Start(ctx)
	})
	g.Go(func() error {
		if err := sync.Run(ctx); err != nil {
			// Terminal auth failure or exhausted reconnects should stop the
			// process; operators restart with fresh credentials.
			return err
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
