// Package docstore keeps documents as JSONB rows in PostgreSQL and announces
// every change on a Kafka topic so subscribers can refresh.
package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/ariefcatur/atee-topup/internal/kafka"
	"github.com/ariefcatur/atee-topup/internal/remote"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	collection TEXT NOT NULL,
	id         TEXT NOT NULL,
	body       JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (collection, id)
);
CREATE INDEX IF NOT EXISTS documents_collection_updated_idx ON documents (collection, updated_at DESC);
`

type Publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header) error
}

// Feed delivers change events; *kafka.Consumer satisfies it.
type Feed interface {
	Start(ctx context.Context, h kafkax.Handler) error
}

// FeedFactory opens a feed under its own consumer group.
type FeedFactory func(groupID string) Feed

type Option func(*Store)

func WithPublisher(p Publisher) Option { return func(s *Store) { s.pub = p } }

func WithFeed(f FeedFactory) Option { return func(s *Store) { s.newFeed = f } }

// WithPollInterval sets how often subscriptions without a feed re-read the table.
func WithPollInterval(d time.Duration) Option { return func(s *Store) { s.poll = d } }

func WithProducerName(name string) Option { return func(s *Store) { s.producer = name } }

type Store struct {
	db       *pgxpool.Pool
	pub      Publisher
	newFeed  FeedFactory
	poll     time.Duration
	producer string
}

var _ remote.Store = (*Store)(nil)

func New(db *pgxpool.Pool, opts ...Option) *Store {
	s := &Store{db: db, poll: 5 * time.Second, producer: "atee-docstore"}
	for _, o := range opts {
		o(s)
	}
	return s
}

func Migrate(ctx context.Context, db *pgxpool.Pool) error {
	if _, err := db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate documents: %w", err)
	}
	return nil
}

func (s *Store) FetchAll(ctx context.Context, collection string) ([]json.RawMessage, error) {
	rows, err := s.db.Query(ctx,
		`SELECT body FROM documents WHERE collection = $1 ORDER BY updated_at DESC, id`, collection)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", collection, err)
	}
	defer rows.Close()

	docs := []json.RawMessage{}
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", collection, err)
		}
		docs = append(docs, json.RawMessage(body))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", collection, err)
	}
	return docs, nil
}

func (s *Store) Upsert(ctx context.Context, collection, id string, doc json.RawMessage) error {
	var stored []byte
	err := s.db.QueryRow(ctx, `
		INSERT INTO documents (collection, id, body, created_at, updated_at)
		VALUES ($1, $2, $3::jsonb, NOW(), NOW())
		ON CONFLICT (collection, id) DO UPDATE SET body = EXCLUDED.body, updated_at = NOW()
		RETURNING body`, collection, id, string(doc)).Scan(&stored)
	if err != nil {
		return fmt.Errorf("failed to upsert %s/%s: %w", collection, id, err)
	}
	s.announce(collection, id, OpUpsert, stored)
	return nil
}

func (s *Store) Merge(ctx context.Context, collection, id string, patch json.RawMessage) error {
	var stored []byte
	err := s.db.QueryRow(ctx, `
		UPDATE documents SET body = body || $3::jsonb, updated_at = NOW()
		WHERE collection = $1 AND id = $2
		RETURNING body`, collection, id, string(patch)).Scan(&stored)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("failed to merge %s/%s: %w", collection, id, remote.ErrNotFound)
		}
		return fmt.Errorf("failed to merge %s/%s: %w", collection, id, err)
	}
	s.announce(collection, id, OpMerge, stored)
	return nil
}

func (s *Store) announce(collection, id string, op Op, doc []byte) {
	if s.pub == nil {
		return
	}
	ev := newChangeEvent(s.producer, time.Now(), DocumentChangedPayload{
		Collection: collection, ID: id, Op: op, Doc: doc,
	})
	if err := s.pub.Publish(PartitionKey(collection), kafkax.MustMarshal(ev), eventHeaders()...); err != nil {
		log.Warn().Err(err).Str("collection", collection).Str("id", id).Msg("change event not published")
	}
}

// Subscribe pushes the collection, then refetches it on every change event
// for it. Without a feed the table is polled instead.
func (s *Store) Subscribe(ctx context.Context, collection string, push remote.PushFunc) (remote.Subscription, error) {
	docs, err := s.FetchAll(ctx, collection)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	push(docs)

	if s.newFeed == nil {
		go s.pollLoop(ctx, collection, docs, push)
	} else {
		feed := s.newFeed("atee-sub-" + uuid.NewString())
		go func() {
			err := feed.Start(ctx, s.changeHandler(collection, push))
			if err != nil {
				log.Error().Err(err).Str("collection", collection).Msg("change feed stopped")
			}
		}()
	}
	return remote.SubscriptionFunc(func() error {
		cancel()
		return nil
	}), nil
}

func (s *Store) changeHandler(collection string, push remote.PushFunc) kafkax.Handler {
	return func(ctx context.Context, m kafkago.Message) error {
		_, change, ok, err := DecodeChange(m)
		if err != nil {
			// undecodable events are skipped, not retried
			log.Warn().Err(err).Int64("offset", m.Offset).Msg("bad change event")
			return nil
		}
		if !ok || change.Collection != collection {
			return nil
		}
		docs, err := s.FetchAll(ctx, collection)
		if err != nil {
			return err
		}
		push(docs)
		return nil
	}
}

func (s *Store) pollLoop(ctx context.Context, collection string, last []json.RawMessage, push remote.PushFunc) {
	t := time.NewTicker(s.poll)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		docs, err := s.FetchAll(ctx, collection)
		if err != nil {
			if ctx.Err() == nil {
				log.Warn().Err(err).Str("collection", collection).Msg("poll failed")
			}
			continue
		}
		if sameDocs(last, docs) {
			continue
		}
		last = docs
		push(docs)
	}
}

func sameDocs(a, b []json.RawMessage) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !bytes.Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}
