package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/ariefcatur/atee-topup/internal/config"
	kafkax "github.com/ariefcatur/atee-topup/internal/kafka"
	"github.com/ariefcatur/atee-topup/internal/platform"
	"github.com/ariefcatur/atee-topup/internal/redisx"
	"github.com/ariefcatur/atee-topup/internal/stock"
)

func main() {
	configPath := flag.String("config", "config", "directory holding config.yaml")
	flag.Parse()

	_ = godotenv.Load()
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	platform.SetupLogger(cfg.Log)

	brokers := cfg.Kafka.BrokerList()
	if len(brokers) == 0 {
		log.Fatal().Msg("stock worker needs kafka.brokers")
	}
	if cfg.Remote.Driver != "postgres" {
		log.Fatal().Str("driver", cfg.Remote.Driver).Msg("stock worker follows the postgres change feed")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rdb, err := redisx.Connect(ctx, cfg.Local.RedisAddr)
	if err != nil {
		log.Fatal().Err(err).Msg("redis")
	}
	defer rdb.Close()

	local, closeLocal, err := platform.OpenLocal(ctx, cfg.Local)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open local cache")
	}
	defer closeLocal()

	rem, closeRemote, err := platform.OpenRemote(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open remote store")
	}
	defer closeRemote()

	store := platform.NewSyncStore(local, rem, cfg.Outbox)
	if err := store.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start outbox")
	}
	defer func() { _ = store.Close() }()

	svc := &stock.Service{Store: store, Dedup: redisx.NewDeduper(rdb, "stock")}
	cons := kafkax.NewConsumer(kafkax.ConsumerConfig{
		Brokers: brokers,
		GroupID: cfg.Stock.Group,
		Topic:   cfg.Kafka.Topic,
		Workers: cfg.Stock.Workers,
	})

	go func() {
		log.Info().Str("group", cfg.Stock.Group).Str("topic", cfg.Kafka.Topic).
			Int("workers", cfg.Stock.Workers).Msg("stock consumer started")
		if err := cons.Start(ctx, svc.HandleDocumentChanged); err != nil {
			log.Error().Err(err).Msg("consumer exit")
			cancel()
		}
	}()

	// graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	log.Info().Msg("shutting down consumer...")
	cancel()

	flushCtx, cancelFlush := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelFlush()
	store.Flush(flushCtx)
}
