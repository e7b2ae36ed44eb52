// Package memory is an in-process remote.Store for tests and offline development.
package memory

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/ariefcatur/atee-topup/internal/docjson"
	"github.com/ariefcatur/atee-topup/internal/remote"
)

const subscriberBuffer = 16

type subscriber struct {
	ch   chan []json.RawMessage
	done chan struct{}
	once sync.Once
}

func (s *subscriber) stop() { s.once.Do(func() { close(s.done) }) }

type Store struct {
	mu      sync.Mutex
	docs    map[string][]json.RawMessage
	subs    map[string]map[int]*subscriber
	nextSub int
	failing error
}

func New() *Store {
	return &Store{
		docs: make(map[string][]json.RawMessage),
		subs: make(map[string]map[int]*subscriber),
	}
}

// SetFailing makes every call return err until it is called with nil.
func (s *Store) SetFailing(err error) {
	s.mu.Lock()
	s.failing = err
	s.mu.Unlock()
}

func (s *Store) FetchAll(_ context.Context, collection string) ([]json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing != nil {
		return nil, s.failing
	}
	return s.snapshotLocked(collection), nil
}

func (s *Store) Subscribe(ctx context.Context, collection string, push remote.PushFunc) (remote.Subscription, error) {
	s.mu.Lock()
	if s.failing != nil {
		err := s.failing
		s.mu.Unlock()
		return nil, err
	}
	sub := &subscriber{ch: make(chan []json.RawMessage, subscriberBuffer), done: make(chan struct{})}
	id := s.nextSub
	s.nextSub++
	if s.subs[collection] == nil {
		s.subs[collection] = make(map[int]*subscriber)
	}
	s.subs[collection][id] = sub
	sub.ch <- s.snapshotLocked(collection)
	s.mu.Unlock()

	closeSub := func() error {
		s.mu.Lock()
		delete(s.subs[collection], id)
		s.mu.Unlock()
		sub.stop()
		return nil
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				_ = closeSub()
				return
			case <-sub.done:
				return
			case docs := <-sub.ch:
				select {
				case <-sub.done:
					return
				default:
				}
				push(docs)
			}
		}
	}()

	return remote.SubscriptionFunc(closeSub), nil
}

func (s *Store) Upsert(_ context.Context, collection, id string, doc json.RawMessage) error {
	s.mu.Lock()
	if s.failing != nil {
		err := s.failing
		s.mu.Unlock()
		return err
	}
	if docjson.ID(doc) != id {
		var err error
		if doc, err = docjson.Overlay(doc, idPatch(id)); err != nil {
			s.mu.Unlock()
			return err
		}
	}
	s.docs[collection] = docjson.Append(s.docs[collection], doc)
	s.notifyLocked(collection)
	return nil
}

func (s *Store) Merge(_ context.Context, collection, id string, patch json.RawMessage) error {
	s.mu.Lock()
	if s.failing != nil {
		err := s.failing
		s.mu.Unlock()
		return err
	}
	docs := s.docs[collection]
	i := docjson.Index(docs, id)
	if i < 0 {
		s.mu.Unlock()
		return remote.ErrNotFound
	}
	merged, err := docjson.Overlay(docs[i], patch)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.docs[collection] = docjson.Append(docs, merged)
	s.notifyLocked(collection)
	return nil
}

// notifyLocked unlocks s.mu before handing snapshots to subscribers.
func (s *Store) notifyLocked(collection string) {
	snap := s.snapshotLocked(collection)
	subs := make([]*subscriber, 0, len(s.subs[collection]))
	for _, sub := range s.subs[collection] {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		select {
		case sub.ch <- snap:
		case <-sub.done:
		}
	}
}

func (s *Store) snapshotLocked(collection string) []json.RawMessage {
	out := make([]json.RawMessage, len(s.docs[collection]))
	copy(out, s.docs[collection])
	return out
}

func idPatch(id string) json.RawMessage {
	raw, _ := json.Marshal(map[string]string{"id": id})
	return raw
}
