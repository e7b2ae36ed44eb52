// Package remote describes the shared document store the local cache reconciles against.
package remote

import (
	"context"
	"encoding/json"
	"errors"
)

var (
	ErrUnavailable = errors.New("remote store unavailable")
	ErrNotFound    = errors.New("document not found")
)

// PushFunc receives the full current contents of a collection.
type PushFunc func(docs []json.RawMessage)

type Subscription interface {
	Close() error
}

// SubscriptionFunc adapts a plain func to Subscription.
type SubscriptionFunc func() error

func (f SubscriptionFunc) Close() error { return f() }

// Store is keyed by collection and entity id. Documents are JSON objects
// carrying their own "id".
type Store interface {
	FetchAll(ctx context.Context, collection string) ([]json.RawMessage, error)
	// Subscribe pushes the current contents once, then again after every change,
	// until ctx is done or the subscription is closed.
	Subscribe(ctx context.Context, collection string, push PushFunc) (Subscription, error)
	Upsert(ctx context.Context, collection, id string, doc json.RawMessage) error
	// Merge sets the top-level fields of patch on an existing document.
	Merge(ctx context.Context, collection, id string, patch json.RawMessage) error
}
