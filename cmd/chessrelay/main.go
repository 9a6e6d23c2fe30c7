package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"chessrelay/internal/config"
	"chessrelay/internal/live"
	"chessrelay/internal/match"
	"chessrelay/internal/obslog"
	"chessrelay/internal/server"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	logger := obslog.L()
	defer logger.Sync()

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal("invalid REDIS_URL", zap.Error(err))
	}
	rdb := redis.NewClient(redisOpts)
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		cancel()
		logger.Fatal("redis unreachable", zap.Error(err))
	}
	cancel()

	var store match.Store
	if cfg.DatabaseURL != "" {
		pgStore, err := match.NewPostgresStore(cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("postgres init error", zap.Error(err))
		}
		defer pgStore.Close()
		store = pgStore
	} else {
		logger.Warn("DATABASE_URL not set, match records are in-memory only")
		store = match.NewMemoryStore()
	}

	matches := match.NewController(store)
	liveMgr := live.NewManager(rdb, matches, cfg.OfflineAfter(), cfg.AutoResignAfter())

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: server.New(matches, liveMgr).Router(),
	}

	go func() {
		logger.Info("listening", zap.String("addr", cfg.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http server error", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
	_ = rdb.Close()
}
