// Package platform builds the storage backends and the sync store from config.
package platform

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/ariefcatur/atee-topup/internal/config"
	"github.com/ariefcatur/atee-topup/internal/docstore"
	"github.com/ariefcatur/atee-topup/internal/fallback"
	kafkax "github.com/ariefcatur/atee-topup/internal/kafka"
	"github.com/ariefcatur/atee-topup/internal/localstore"
	"github.com/ariefcatur/atee-topup/internal/mongostore"
	"github.com/ariefcatur/atee-topup/internal/postgres"
	"github.com/ariefcatur/atee-topup/internal/redisx"
	"github.com/ariefcatur/atee-topup/internal/remote"
	"github.com/ariefcatur/atee-topup/internal/remote/memory"
	"github.com/ariefcatur/atee-topup/internal/syncstore"
)

// SetupLogger configures the global zerolog logger.
func SetupLogger(cfg config.LogConfig) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.Format == "json" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
		return
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
}

// OpenLocal returns the local cache and a func releasing it.
func OpenLocal(ctx context.Context, cfg config.LocalConfig) (localstore.Store, func(), error) {
	switch cfg.Driver {
	case "redis":
		rdb, err := redisx.Connect(ctx, cfg.RedisAddr)
		if err != nil {
			return nil, nil, err
		}
		return redisx.NewLocalStore(rdb), func() { _ = rdb.Close() }, nil
	case "memory", "":
		return localstore.NewMemory(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown local driver %q", cfg.Driver)
	}
}

// OpenRemote returns the remote document store and a func releasing it.
func OpenRemote(ctx context.Context, cfg *config.Config) (remote.Store, func(), error) {
	switch cfg.Remote.Driver {
	case "postgres":
		return openDocstore(ctx, cfg)
	case "mongo":
		db, err := mongostore.Connect(ctx, cfg.Remote.Mongo.URI, cfg.Remote.Mongo.Database)
		if err != nil {
			return nil, nil, err
		}
		return mongostore.New(db), func() { _ = db.Client().Disconnect(context.Background()) }, nil
	case "memory", "":
		log.Warn().Msg("using the in-memory remote store, data is lost on exit")
		return memory.New(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown remote driver %q", cfg.Remote.Driver)
	}
}

func openDocstore(ctx context.Context, cfg *config.Config) (remote.Store, func(), error) {
	pg := cfg.Remote.Postgres
	pool, err := postgres.Connect(ctx, pg.DSN, postgres.PoolConfig{MaxConns: pg.MaxConns, MinConns: pg.MinConns})
	if err != nil {
		return nil, nil, err
	}
	if err := docstore.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, err
	}

	opts := []docstore.Option{
		docstore.WithPollInterval(pg.PollInterval),
		docstore.WithProducerName(cfg.Service.Name),
	}
	closers := []func(){pool.Close}

	if brokers := cfg.Kafka.BrokerList(); len(brokers) > 0 {
		prod := kafkax.NewProducer(brokers, cfg.Kafka.Topic, cfg.Kafka.ProducerBuffer)
		prod.Start(context.Background())
		topic := cfg.Kafka.Topic
		opts = append(opts,
			docstore.WithPublisher(prod),
			docstore.WithFeed(func(group string) docstore.Feed {
				return kafkax.NewConsumer(kafkax.ConsumerConfig{
					Brokers:     brokers,
					GroupID:     group,
					Topic:       topic,
					Workers:     1,
					StartOffset: kafkago.LastOffset,
				})
			}),
		)
		closers = append([]func(){func() {
			prod.Close()
			prod.WaitClosed()
		}}, closers...)
	} else {
		log.Info().Dur("interval", pg.PollInterval).Msg("kafka not configured, subscriptions poll postgres")
	}

	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}
	return docstore.New(pool, opts...), closeAll, nil
}

// NewSyncStore wires the cache, the remote store and the built-in catalogue.
func NewSyncStore(local localstore.Store, rem remote.Store, cfg config.OutboxConfig) *syncstore.SyncStore {
	oc := syncstore.DefaultOutboxConfig()
	if cfg.SweepInterval > 0 {
		oc.SweepInterval = cfg.SweepInterval
	}
	if cfg.MaxAttempts > 0 {
		oc.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.InitialBackoff > 0 {
		oc.InitialBackoff = cfg.InitialBackoff
	}
	if cfg.MaxBackoff > 0 {
		oc.MaxBackoff = cfg.MaxBackoff
	}
	if cfg.Retain > 0 {
		oc.Retain = cfg.Retain
	}
	return syncstore.New(local, rem, fallback.New(time.Now()), syncstore.WithOutboxConfig(oc))
}
