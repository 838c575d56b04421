// Command tickfeed is a synthetic tick publisher for running the service
// without a real ingestion pipeline. Generates a random walk per
// symbol, appends every tick to the intraday cache list, and publishes
// it on the live tick channel.
//
// Config (env vars):
//
//	REDIS_ADDR        redis address (default: "localhost:6379")
//	REDIS_PASSWORD    redis password (default: "")
//	FEED_SYMBOLS      comma-separated symbols (default: "@NQ#")
//	FEED_INTERVAL_MS  milliseconds between ticks (default: "100")
//	FEED_BASE_PRICE   starting price (default: "20000")
//	FEED_CACHE_MAX    max entries kept in each cache list (default: "2000000")
package main

import (
	"context"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"chartstream/internal/model"
	"chartstream/internal/tickcache"
)

type walker struct {
	symbol string
	price  float64
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	addr := getEnv("REDIS_ADDR", "localhost:6379")
	password := getEnv("REDIS_PASSWORD", "")
	symbols := strings.Split(getEnv("FEED_SYMBOLS", "@NQ#"), ",")
	intervalMS := getEnvInt("FEED_INTERVAL_MS", 100)
	basePrice := getEnvInt("FEED_BASE_PRICE", 20000)
	cacheMax := getEnvInt("FEED_CACHE_MAX", 2000000)

	rdb := goredis.NewClient(&goredis.Options{Addr: addr, Password: password})
	defer rdb.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	walkers := make([]*walker, 0, len(symbols))
	for _, s := range symbols {
		if s = strings.TrimSpace(s); s != "" {
			walkers = append(walkers, &walker{symbol: s, price: float64(basePrice)})
		}
	}
	log.Printf("[tickfeed] publishing %d symbols every %dms to %s", len(walkers), intervalMS, addr)

	ticker := time.NewTicker(time.Duration(intervalMS) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[tickfeed] stopped")
			return
		case <-ticker.C:
			for _, w := range walkers {
				if err := publishTick(ctx, rdb, w, cacheMax); err != nil {
					log.Printf("[tickfeed] publish %s: %v", w.symbol, err)
				}
			}
		}
	}
}

func publishTick(ctx context.Context, rdb *goredis.Client, w *walker, cacheMax int) error {
	// Random walk with a slight mean reversion so prices stay sane.
	w.price += w.price * (rand.Float64() - 0.5) * 0.0004

	tick := model.Tick{
		Price:     float64(int(w.price*100)) / 100,
		Volume:    int64(1 + rand.Intn(50)),
		Timestamp: float64(time.Now().UnixMicro()) / 1e6,
	}
	payload := tick.JSON()

	pipe := rdb.Pipeline()
	pipe.RPush(ctx, tickcache.CacheKey(w.symbol), payload)
	pipe.LTrim(ctx, tickcache.CacheKey(w.symbol), int64(-cacheMax), -1)
	pipe.Publish(ctx, tickcache.ChannelKey(w.symbol), payload)
	_, err := pipe.Exec(ctx)
	return err
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
