// Command chartstream runs the streaming service: live candle
// websockets, historical REST, and live regression over one listener.
package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"chartstream/config"
	"chartstream/internal/api"
	"chartstream/internal/history"
	"chartstream/internal/livereg"
	"chartstream/internal/logger"
	"chartstream/internal/metrics"
	"chartstream/internal/stream"
	"chartstream/internal/tickcache"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	logger.Init("chartstream", slog.LevelInfo)
	log.Println("[chartstream] starting...")

	cfg := config.Load()
	met := metrics.NewDefault()

	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	cache := tickcache.New(rdb)

	os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755)
	store, err := history.Open(cfg.SQLitePath)
	if err != nil {
		log.Fatalf("[chartstream] sqlite init failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	manager := stream.NewManager(cache, met, cfg.SweepInterval)
	go manager.Run(ctx)

	lr := livereg.NewService(cache, store, met, cfg.CalcInterval, cfg.HistoryDays)
	lr.SetBaseContext(ctx)

	server := api.NewServer(manager, lr, store, cache, met)
	httpSrv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: server.Router(),
	}

	go func() {
		log.Printf("[chartstream] listening on %s", cfg.ListenAddr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[chartstream] http server failed: %v", err)
		}
	}()

	<-sigCh
	log.Println("[chartstream] shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[chartstream] http shutdown: %v", err)
	}

	lr.Close()
	if err := store.Close(); err != nil {
		log.Printf("[chartstream] sqlite close: %v", err)
	}
	if err := rdb.Close(); err != nil {
		log.Printf("[chartstream] redis close: %v", err)
	}
	log.Println("[chartstream] shutdown complete")
}
