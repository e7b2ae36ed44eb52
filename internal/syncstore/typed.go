package syncstore

import (
	"context"
	"encoding/json"

	"github.com/ariefcatur/atee-topup/internal/docjson"
)

// Reader is the read side of SyncStore.
type Reader interface {
	Snapshot(ctx context.Context, collection string) []json.RawMessage
}

// List decodes the local view of a collection, skipping malformed documents.
func List[T any](ctx context.Context, r Reader, collection string) []T {
	return docjson.Decode[T](r.Snapshot(ctx, collection))
}

// Find returns the document with the given id from the local view.
func Find[T any](ctx context.Context, r Reader, collection, id string) (T, bool) {
	var zero T
	docs := r.Snapshot(ctx, collection)
	i := docjson.Index(docs, id)
	if i < 0 {
		return zero, false
	}
	var v T
	if err := json.Unmarshal(docs[i], &v); err != nil {
		return zero, false
	}
	return v, true
}

// Fetcher can also refresh a collection from the remote store.
type Fetcher interface {
	Reader
	FetchOnce(ctx context.Context, collection string) []json.RawMessage
}

// FindFresh is Find, refreshing the collection once on a local miss.
func FindFresh[T any](ctx context.Context, f Fetcher, collection, id string) (T, bool) {
	if v, ok := Find[T](ctx, f, collection, id); ok {
		return v, true
	}
	f.FetchOnce(ctx, collection)
	return Find[T](ctx, f, collection, id)
}

// ListFresh refreshes the collection, then lists the local view. When the
// remote is empty or unreachable the local view is kept.
func ListFresh[T any](ctx context.Context, f Fetcher, collection string) []T {
	f.FetchOnce(ctx, collection)
	return List[T](ctx, f, collection)
}
