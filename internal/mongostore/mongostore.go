// Package mongostore is a remote.Store with one MongoDB collection per
// document collection. Subscriptions follow change streams.
package mongostore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ariefcatur/atee-topup/internal/remote"
)

var errNoID = errors.New("document has no _id")

func Connect(ctx context.Context, uri, database string) (*mongo.Database, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}
	return client.Database(database), nil
}

type Store struct {
	db   *mongo.Database
	poll time.Duration
}

var _ remote.Store = (*Store)(nil)

func New(db *mongo.Database) *Store {
	return &Store{db: db, poll: 5 * time.Second}
}

func (s *Store) FetchAll(ctx context.Context, collection string) ([]json.RawMessage, error) {
	cursor, err := s.db.Collection(collection).Find(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve %s: %w", collection, err)
	}
	defer cursor.Close(ctx)

	docs := []json.RawMessage{}
	for cursor.Next(ctx) {
		doc, err := toJSON(cursor.Current)
		if err != nil {
			log.Warn().Err(err).Str("collection", collection).Msg("skipping undecodable document")
			continue
		}
		docs = append(docs, doc)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to retrieve %s: %w", collection, err)
	}
	return docs, nil
}

func (s *Store) Upsert(ctx context.Context, collection, id string, doc json.RawMessage) error {
	d, err := fromJSON(doc)
	if err != nil {
		return fmt.Errorf("failed to encode %s/%s: %w", collection, id, err)
	}
	d = append(bson.D{{Key: "_id", Value: id}}, d...)
	_, err = s.db.Collection(collection).ReplaceOne(ctx, bson.M{"_id": id}, d, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to upsert %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *Store) Merge(ctx context.Context, collection, id string, patch json.RawMessage) error {
	d, err := fromJSON(patch)
	if err != nil {
		return fmt.Errorf("failed to encode %s/%s: %w", collection, id, err)
	}
	if len(d) == 0 {
		return nil
	}
	res, err := s.db.Collection(collection).UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": d})
	if err != nil {
		return fmt.Errorf("failed to merge %s/%s: %w", collection, id, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("failed to merge %s/%s: %w", collection, id, remote.ErrNotFound)
	}
	return nil
}

// Subscribe pushes the collection, then refetches it after every change
// stream event. Deployments without change streams (standalone servers)
// are polled instead.
func (s *Store) Subscribe(ctx context.Context, collection string, push remote.PushFunc) (remote.Subscription, error) {
	docs, err := s.FetchAll(ctx, collection)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	push(docs)

	stream, err := s.db.Collection(collection).Watch(ctx, mongo.Pipeline{})
	if err != nil {
		log.Warn().Err(err).Str("collection", collection).Msg("change stream unavailable, polling")
		go s.pollLoop(ctx, collection, docs, push)
	} else {
		go s.watchLoop(ctx, collection, stream, push)
	}
	return remote.SubscriptionFunc(func() error {
		cancel()
		return nil
	}), nil
}

func (s *Store) watchLoop(ctx context.Context, collection string, stream *mongo.ChangeStream, push remote.PushFunc) {
	defer stream.Close(context.Background())
	for stream.Next(ctx) {
		docs, err := s.FetchAll(ctx, collection)
		if err != nil {
			log.Warn().Err(err).Str("collection", collection).Msg("refetch after change failed")
			continue
		}
		push(docs)
	}
	if err := stream.Err(); err != nil && ctx.Err() == nil {
		log.Error().Err(err).Str("collection", collection).Msg("change stream stopped")
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
			continue
		}
		if equal(last, docs) {
			continue
		}
		last = docs
		push(docs)
	}
}

// toJSON renders a stored document as relaxed extended JSON without _id.
func toJSON(raw bson.Raw) (json.RawMessage, error) {
	var d bson.D
	if err := bson.Unmarshal(raw, &d); err != nil {
		return nil, err
	}
	out := make(bson.D, 0, len(d))
	seen := false
	for _, e := range d {
		if e.Key == "_id" {
			seen = true
			continue
		}
		out = append(out, e)
	}
	if !seen {
		return nil, errNoID
	}
	b, err := bson.MarshalExtJSON(out, false, false)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(b), nil
}

func fromJSON(doc json.RawMessage) (bson.D, error) {
	var d bson.D
	if err := bson.UnmarshalExtJSON(doc, false, &d); err != nil {
		return nil, err
	}
	out := d[:0]
	for _, e := range d {
		if e.Key != "_id" {
			out = append(out, e)
		}
	}
	return out, nil
}

func equal(a, b []json.RawMessage) bool {
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
