package kafka

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
)

// Handler returns nil only when the message is fully processed and its
// offset may be committed.
type Handler func(ctx context.Context, m kafka.Message) error

type ConsumerConfig struct {
	Brokers []string
	GroupID string
	Topic   string
	Workers int
	// StartOffset applies when the group has no committed offset yet.
	// kafka.FirstOffset or kafka.LastOffset; zero means FirstOffset.
	StartOffset int64
}

type Consumer struct {
	r       *kafka.Reader
	topic   string
	workers int
}

func NewConsumer(cfg ConsumerConfig) *Consumer {
	start := cfg.StartOffset
	if start == 0 {
		start = kafka.FirstOffset
	}
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		GroupID:        cfg.GroupID,
		Topic:          cfg.Topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		MaxWait:        500 * time.Millisecond,
		StartOffset:    start,
		CommitInterval: 0, // manual commit
	})
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	return &Consumer{r: r, topic: cfg.Topic, workers: workers}
}

// Start dispatches messages to the worker pool until ctx is done.
// A message whose handler fails is logged and left uncommitted.
func (c *Consumer) Start(ctx context.Context, h Handler) error {
	defer c.r.Close()

	jobs := make(chan kafka.Message, 1024)
	var wg sync.WaitGroup
	for i := 0; i < c.workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for m := range jobs {
				if err := h(ctx, m); err != nil {
					log.Error().Err(err).Str("topic", c.topic).Int("worker", id).
						Int64("offset", m.Offset).Msg("handler failed")
					time.Sleep(200 * time.Millisecond) // backoff ringan
					continue
				}
				// commit hanya kalau handler sukses
				if err := c.r.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
					log.Warn().Err(err).Str("topic", c.topic).Int64("offset", m.Offset).Msg("commit failed")
				}
			}
		}(i)
	}
	stop := func() {
		close(jobs)
		wg.Wait()
	}

	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			stop()
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		select {
		case jobs <- m:
		case <-ctx.Done():
			stop()
			return nil
		}
	}
}
