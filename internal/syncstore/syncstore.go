// Package syncstore serves collections cache-first and reconciles them with
// the remote store. Local writes land immediately; remote writes go through
// a durable outbox.
package syncstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ariefcatur/atee-topup/internal/docjson"
	"github.com/ariefcatur/atee-topup/internal/localstore"
	"github.com/ariefcatur/atee-topup/internal/model"
	"github.com/ariefcatur/atee-topup/internal/pkg/lock"
	"github.com/ariefcatur/atee-topup/internal/remote"
)

var ErrReservedCollection = errors.New("collection name is reserved")

// Fallback supplies built-in documents when nothing is cached.
type Fallback interface {
	Collection(name string) []json.RawMessage
}

type noFallback struct{}

func (noFallback) Collection(string) []json.RawMessage { return []json.RawMessage{} }

type Option func(*SyncStore)

func WithClock(now func() time.Time) Option {
	return func(s *SyncStore) { s.now = now }
}

func WithOutboxConfig(cfg OutboxConfig) Option {
	return func(s *SyncStore) { s.outboxCfg = cfg }
}

// Receipt identifies the outbox entry created by a write.
type Receipt struct {
	EntryID    string `json:"entryId"`
	Collection string `json:"collection"`
	DocID      string `json:"docId"`
}

// SyncStore is the only writer of the local store.
type SyncStore struct {
	local     localstore.Store
	remote    remote.Store
	fallback  Fallback
	locks     *lock.KeyLock
	outbox    *Outbox
	outboxCfg OutboxConfig
	now       func() time.Time
}

func New(local localstore.Store, rem remote.Store, fb Fallback, opts ...Option) *SyncStore {
	if fb == nil {
		fb = noFallback{}
	}
	s := &SyncStore{
		local:     local,
		remote:    rem,
		fallback:  fb,
		locks:     lock.New(),
		outboxCfg: DefaultOutboxConfig(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.outbox = newOutbox(local, rem, s.outboxCfg, s.now)
	return s
}

// Start resumes undelivered writes and starts the background sweep.
func (s *SyncStore) Start(ctx context.Context) error {
	return s.outbox.Start(ctx)
}

func (s *SyncStore) Close() error {
	return s.outbox.Stop()
}

// Snapshot returns the cached collection, or the fallback when the cache has
// no parseable entry.
func (s *SyncStore) Snapshot(ctx context.Context, collection string) []json.RawMessage {
	if docs, ok := s.cached(ctx, collection); ok {
		return docs
	}
	return s.fallback.Collection(collection)
}

// Subscribe calls onData with the snapshot before returning, then again on
// every remote push. Calls are serialized. The returned func detaches the
// remote listener and may be called more than once.
func (s *SyncStore) Subscribe(ctx context.Context, collection string, onData func([]json.RawMessage)) (unsubscribe func()) {
	var mu sync.Mutex
	deliver := func(docs []json.RawMessage) {
		mu.Lock()
		defer mu.Unlock()
		defer func() {
			if r := recover(); r != nil {
				log.Error().Str("component", "syncstore").Str("collection", collection).
					Interface("panic", r).Msg("subscriber callback panicked")
			}
		}()
		onData(docs)
	}

	deliver(s.Snapshot(ctx, collection))

	subCtx, cancel := context.WithCancel(ctx)
	go func() {
		sub, err := s.remote.Subscribe(subCtx, collection, func(docs []json.RawMessage) {
			if subCtx.Err() != nil {
				return
			}
			if docs == nil {
				docs = []json.RawMessage{}
			}
			deliver(s.replace(subCtx, collection, docs))
		})
		if err != nil {
			log.Warn().Err(err).Str("component", "syncstore").Str("collection", collection).
				Msg("remote subscription unavailable, serving local data")
			return
		}
		<-subCtx.Done()
		if err := sub.Close(); err != nil {
			log.Debug().Err(err).Str("collection", collection).Msg("close remote subscription")
		}
	}()

	var once sync.Once
	return func() { once.Do(cancel) }
}

// FetchOnce reads the collection from the remote store. Non-empty results are
// cached with undelivered local writes kept on top. On failure the local view
// is returned instead.
func (s *SyncStore) FetchOnce(ctx context.Context, collection string) []json.RawMessage {
	docs, err := s.remote.FetchAll(ctx, collection)
	if err != nil {
		log.Warn().Err(err).Str("component", "syncstore").Str("collection", collection).
			Msg("remote fetch failed, serving local data")
		return s.Snapshot(ctx, collection)
	}
	if len(docs) > 0 {
		return s.replace(ctx, collection, docs)
	}
	return []json.RawMessage{}
}

// Write stores entity (which must carry an id) locally, replacing the entry
// with the same id or prepending it, and queues a remote upsert.
func (s *SyncStore) Write(ctx context.Context, collection string, entity any) (Receipt, error) {
	if collection == outboxCollection {
		return Receipt{}, ErrReservedCollection
	}
	doc, id, err := docjson.Encode(entity)
	if err != nil {
		return Receipt{}, err
	}

	s.locks.Lock(collection)
	defer s.locks.Unlock(collection)

	s.store(ctx, collection, docjson.Prepend(s.Snapshot(ctx, collection), doc))
	e := s.outbox.Enqueue(ctx, Entry{Collection: collection, DocID: id, Op: OpUpsert, Body: doc})
	return Receipt{EntryID: e.ID, Collection: collection, DocID: id}, nil
}

// Merge overlays fields on the cached document when present and queues a
// remote partial update.
func (s *SyncStore) Merge(ctx context.Context, collection, id string, fields map[string]any) (Receipt, error) {
	if collection == outboxCollection {
		return Receipt{}, ErrReservedCollection
	}
	if id == "" {
		return Receipt{}, docjson.ErrMissingID
	}
	patch, err := json.Marshal(fields)
	if err != nil {
		return Receipt{}, fmt.Errorf("failed to encode fields: %w", err)
	}

	s.locks.Lock(collection)
	defer s.locks.Unlock(collection)

	docs := s.Snapshot(ctx, collection)
	if i := docjson.Index(docs, id); i >= 0 {
		merged, err := docjson.Overlay(docs[i], patch)
		if err != nil {
			log.Warn().Err(err).Str("collection", collection).Str("id", id).Msg("local merge skipped")
		} else {
			docs[i] = merged
			s.store(ctx, collection, docs)
		}
	}
	e := s.outbox.Enqueue(ctx, Entry{Collection: collection, DocID: id, Op: OpMerge, Body: patch})
	return Receipt{EntryID: e.ID, Collection: collection, DocID: id}, nil
}

// Settings returns the global settings record, the first record, or the
// built-in one, in that order.
func (s *SyncStore) Settings(ctx context.Context) model.SystemSettings {
	list := List[model.SystemSettings](ctx, s, model.CollectionSettings)
	if len(list) == 0 {
		list = docjson.Decode[model.SystemSettings](s.fallback.Collection(model.CollectionSettings))
	}
	for _, st := range list {
		if st.ID == model.SettingsID {
			return st
		}
	}
	if len(list) > 0 {
		return list[0]
	}
	return model.SystemSettings{ID: model.SettingsID}
}

// Flush delivers due outbox entries now and reports how many were confirmed.
func (s *SyncStore) Flush(ctx context.Context) int {
	return s.outbox.Flush(ctx)
}

func (s *SyncStore) WriteStatus(ctx context.Context, entryID string) (Entry, bool) {
	return s.outbox.Get(ctx, entryID)
}

func (s *SyncStore) PendingWrites(ctx context.Context) []Entry {
	return s.outbox.Pending(ctx)
}

func (s *SyncStore) cached(ctx context.Context, collection string) ([]json.RawMessage, bool) {
	raw, ok, err := s.local.Get(ctx, localstore.Key(collection))
	if err != nil {
		log.Warn().Err(err).Str("component", "syncstore").Str("collection", collection).Msg("local read failed")
		return nil, false
	}
	if !ok {
		return nil, false
	}
	docs, err := docjson.List(raw)
	if err != nil {
		log.Warn().Err(err).Str("component", "syncstore").Str("collection", collection).Msg("cached entry unparseable")
		return nil, false
	}
	return docs, true
}

// replace caches a remote view of the collection. Writes still waiting in the
// outbox are replayed over it so a refresh never hides them.
func (s *SyncStore) replace(ctx context.Context, collection string, docs []json.RawMessage) []json.RawMessage {
	s.locks.Lock(collection)
	defer s.locks.Unlock(collection)
	docs = s.withPending(ctx, collection, docs)
	s.store(ctx, collection, docs)
	return docs
}

func (s *SyncStore) withPending(ctx context.Context, collection string, docs []json.RawMessage) []json.RawMessage {
	pending := s.outbox.pendingFor(ctx, collection)
	if len(pending) == 0 {
		return docs
	}
	out := append([]json.RawMessage{}, docs...)
	for _, e := range pending {
		if e.Op != OpMerge {
			out = docjson.Prepend(out, e.Body)
			continue
		}
		i := docjson.Index(out, e.DocID)
		if i < 0 {
			continue
		}
		if merged, err := docjson.Overlay(out[i], e.Body); err == nil {
			out[i] = merged
		}
	}
	return out
}

// store must be called with the collection lock held.
func (s *SyncStore) store(ctx context.Context, collection string, docs []json.RawMessage) {
	raw, err := json.Marshal(docs)
	if err != nil {
		log.Error().Err(err).Str("collection", collection).Msg("encode collection")
		return
	}
	if err := s.local.Set(ctx, localstore.Key(collection), raw); err != nil {
		log.Warn().Err(err).Str("component", "syncstore").Str("collection", collection).Msg("local write failed")
	}
}
