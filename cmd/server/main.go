package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"secure.vault/config"
	"secure.vault/internal/access"
	"secure.vault/internal/api"
	"secure.vault/internal/crypto"
	"secure.vault/internal/store"

	"github.com/redis/go-redis/v9"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("config error", "error", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg)
	slog.SetDefault(logger)

	st, err := initStore(cfg)
	if err != nil {
		logger.Error("store initialization failed", "store", cfg.Store.Type, "error", err)
		os.Exit(1)
	}
	defer st.Close()

	codec, err := crypto.NewCodec(cfg.Crypto.Secret)
	if err != nil {
		logger.Error("codec initialization failed", "error", err)
		os.Exit(1)
	}

	engine := access.New(st, codec,
		access.WithLogger(logger),
		access.WithIssuer(cfg.TOTP.Issuer),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go access.NewSweeper(engine, cfg.Sweep.Interval, logger).Run(ctx)

	router := api.SetupRouter(engine, st, cfg, logger)

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.Info("server starting",
		"addr", cfg.Addr(),
		"store", cfg.Store.Type,
		"sweepInterval", cfg.Sweep.Interval,
		"adminRoutes", cfg.Admin.Token != "",
	)

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", "error", err)
	}
}

func initStore(cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Type {
	case "redis":
		st, err := store.NewRedisStore(&redis.Options{
			Addr:     cfg.Store.Redis.Addr,
			Password: cfg.Store.Redis.Password,
			DB:       cfg.Store.Redis.DB,
		}, store.RedisOptions{
			KeyPrefix:   cfg.Store.Redis.KeyPrefix,
			ExpiryGrace: cfg.Store.Redis.ExpiryGrace,
		})
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		return store.NewMemoryStore(), nil
	}
}

func setupLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch cfg.Log.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Log.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
