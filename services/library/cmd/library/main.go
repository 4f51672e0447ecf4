package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"libraryhub/internal/keylock"
	"libraryhub/internal/ratelimit"
	"libraryhub/internal/util"
	"libraryhub/services/library/internal/app"
	"libraryhub/services/library/internal/config"
	"libraryhub/services/library/internal/server"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)
	lockTTL, err := config.ParseLockTTL(cfg.LockTTL)
	if err != nil {
		log.Fatalf("failed to parse lock ttl: %v", err)
	}
	proxies, err := util.NewTrustedProxies(cfg.TrustedProxyCIDRs)
	if err != nil {
		log.Fatalf("failed to parse trusted proxies: %v", err)
	}

	var locker keylock.Locker
	if cfg.RedisAddr != "" {
		redisLocker, err := keylock.NewRedisLocker(keylock.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			TTL:      lockTTL,
		})
		if err != nil {
			log.Fatalf("failed to init redis locker: %v", err)
		}
		locker = redisLocker
	}

	appCore, err := app.New(app.Config{
		StoreDriver:        cfg.StoreDriver,
		DatabaseURL:        cfg.DatabaseURL,
		Locker:             locker,
		DefaultCustodianID: cfg.DefaultCustodianID,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}
	defer func() {
		if err := appCore.Close(); err != nil {
			logger.Warn("close app failed", "err", err)
		}
	}()

	serverCfg := server.Config{App: appCore, TrustedProxies: proxies}
	if cfg.LendingRateLimitPerMinute > 0 {
		limiter, err := ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, "", cfg.LendingRateLimitPerMinute, time.Minute)
		if err != nil {
			log.Fatalf("failed to init rate limiter: %v", err)
		}
		defer limiter.Close()
		serverCfg.Limiter = limiter
	}

	httpServer, err := server.New(serverCfg)
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("library server listening", "addr", addr, "store", cfg.StoreDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		slog.Info("library server shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		logger.Error("server error", "err", err)
	}
}
