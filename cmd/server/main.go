package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/dice-arena-backend/internal/config"
	"github.com/DoyleJ11/dice-arena-backend/internal/gateway"
	"github.com/DoyleJ11/dice-arena-backend/internal/httpapi"
	"github.com/DoyleJ11/dice-arena-backend/internal/hub"
	"github.com/DoyleJ11/dice-arena-backend/internal/identity"
	"github.com/DoyleJ11/dice-arena-backend/internal/logging"
	"github.com/DoyleJ11/dice-arena-backend/internal/ratelimit"
	"github.com/DoyleJ11/dice-arena-backend/internal/ws"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogDev)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var limiter ratelimit.Limiter = ratelimit.Nop{}
	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient, err = ratelimit.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			// keep serving without flood control rather than refusing to start
			logger.Warn("redis unavailable, event rate limiting disabled", zap.Error(err))
		} else {
			limiter = ratelimit.NewRedis(redisClient, cfg.EventRateLimit, cfg.EventRateWindow)
			logger.Info("event rate limiting enabled",
				zap.Int("limit", cfg.EventRateLimit),
				zap.Duration("window", cfg.EventRateWindow))
		}
	}

	registry := identity.NewRegistry()
	h := hub.NewHub(ctx, registry, logger, hub.Config{
		Grace:             cfg.RoomGracePeriod,
		DefaultMaxPlayers: cfg.DefaultMaxPlayers,
		MaxPlayersLimit:   cfg.MaxPlayersLimit,
	})
	g := gateway.New(h, registry, limiter, logger, cfg.BcryptCost)

	// Build the router *with* the hub injected
	handler := httpapi.SetupRoutes(httpapi.Deps{
		Hub:      h,
		Registry: registry,
		Gateway:  g,
		Logger:   logger,
		WS:       ws.Options{OriginPatterns: cfg.AllowedOrigins, OutboxSize: cfg.OutboxSize},
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		// websocket handlers outlive Shutdown, so tie them to the signal context
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		logger.Info("listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	eg.Go(func() error {
		<-egCtx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		var errs error
		errs = multierr.Append(errs, srv.Shutdown(shutdownCtx))
		h.Close()
		if redisClient != nil {
			errs = multierr.Append(errs, redisClient.Close())
		}
		return errs
	})

	if err := eg.Wait(); err != nil {
		return err
	}
	logger.Info("server stopped")
	return nil
}
