package syncstore

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/atee-topup/internal/docjson"
	"github.com/ariefcatur/atee-topup/internal/fallback"
	"github.com/ariefcatur/atee-topup/internal/localstore"
	"github.com/ariefcatur/atee-topup/internal/model"
	"github.com/ariefcatur/atee-topup/internal/remote/memory"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *fakeClock { return &fakeClock{t: time.UnixMilli(1_700_000_000_000)} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	local  *localstore.Memory
	remote *memory.Store
	clock  *fakeClock
	store  *SyncStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{local: localstore.NewMemory(), remote: memory.New(), clock: newClock()}
	f.store = New(f.local, f.remote, fallback.New(f.clock.Now()),
		WithClock(f.clock.Now),
		WithOutboxConfig(OutboxConfig{InitialBackoff: time.Second, MaxBackoff: 8 * time.Second, MaxAttempts: 3}),
	)
	return f
}

func (f *fixture) cached(t *testing.T, collection string) []json.RawMessage {
	t.Helper()
	raw, ok, err := f.local.Get(context.Background(), localstore.Key(collection))
	require.NoError(t, err)
	require.True(t, ok, "expected %s to be cached", collection)
	docs, err := docjson.List(raw)
	require.NoError(t, err)
	return docs
}

type recorder struct {
	mu    sync.Mutex
	calls [][]json.RawMessage
}

func (r *recorder) onData(docs []json.RawMessage) {
	r.mu.Lock()
	r.calls = append(r.calls, docs)
	r.mu.Unlock()
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func (r *recorder) last() []json.RawMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[len(r.calls)-1]
}

func TestSubscribeEmptyCollectionThenRemotePush(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec := &recorder{}

	unsubscribe := f.store.Subscribe(ctx, "widgets", rec.onData)
	defer unsubscribe()

	// first call happens before Subscribe returns
	require.Equal(t, 1, rec.count())
	assert.Empty(t, rec.last())

	require.NoError(t, f.remote.Upsert(ctx, "widgets", "w1", json.RawMessage(`{"id":"w1","name":"gear"}`)))

	require.Eventually(t, func() bool {
		return rec.count() >= 2 && len(rec.last()) == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.JSONEq(t, `{"id":"w1","name":"gear"}`, string(rec.last()[0]))

	cached := f.cached(t, "widgets")
	require.Len(t, cached, 1)
	assert.Equal(t, "w1", docjson.ID(cached[0]))
}

func TestSubscribeServesCacheBeforeFallback(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.remote.SetFailing(errors.New("offline"))
	require.NoError(t, f.local.Set(ctx, localstore.Key(model.CollectionGames), []byte(`[{"id":"x"}]`)))

	rec := &recorder{}
	unsubscribe := f.store.Subscribe(ctx, model.CollectionGames, rec.onData)
	defer unsubscribe()

	require.Equal(t, 1, rec.count())
	require.Len(t, rec.last(), 1)
	assert.Equal(t, "x", docjson.ID(rec.last()[0]))
}

func TestSubscribeFallsBackOnUnparseableCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.remote.SetFailing(errors.New("offline"))
	require.NoError(t, f.local.Set(ctx, localstore.Key(model.CollectionGames), []byte(`{broken`)))

	rec := &recorder{}
	unsubscribe := f.store.Subscribe(ctx, model.CollectionGames, rec.onData)
	defer unsubscribe()

	assert.Len(t, rec.last(), 12)
}

func TestSubscribeRecoversCallbackPanic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var calls int
	var mu sync.Mutex
	unsubscribe := f.store.Subscribe(ctx, "widgets", func(docs []json.RawMessage) {
		mu.Lock()
		calls++
		mu.Unlock()
		if len(docs) > 0 {
			panic("render failed")
		}
	})
	defer unsubscribe()

	require.NoError(t, f.remote.Upsert(ctx, "widgets", "w1", json.RawMessage(`{"id":"w1"}`)))
	require.Eventually(t, func() bool {
		raw, ok, _ := f.local.Get(ctx, localstore.Key("widgets"))
		return ok && string(raw) != "[]"
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, f.remote.Upsert(ctx, "widgets", "w2", json.RawMessage(`{"id":"w2"}`)))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls >= 3
	}, 2*time.Second, 5*time.Millisecond)
}

func TestUnsubscribeStopsPushes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec := &recorder{}

	unsubscribe := f.store.Subscribe(ctx, "widgets", rec.onData)
	require.Eventually(t, func() bool { return rec.count() >= 2 }, 2*time.Second, 5*time.Millisecond)

	unsubscribe()
	unsubscribe()
	time.Sleep(20 * time.Millisecond)
	before := rec.count()

	require.NoError(t, f.remote.Upsert(ctx, "widgets", "w1", json.RawMessage(`{"id":"w1"}`)))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, before, rec.count())
}

func TestWritePrependsAndReplacesByID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.store.Write(ctx, model.CollectionOrders, model.Order{ID: "AT-10000001", Amount: 10, Status: model.StatusPending})
	require.NoError(t, err)
	_, err = f.store.Write(ctx, model.CollectionOrders, model.Order{ID: "AT-10000002", Amount: 20, Status: model.StatusPending})
	require.NoError(t, err)
	_, err = f.store.Write(ctx, model.CollectionOrders, model.Order{ID: "AT-10000001", Amount: 11, Status: model.StatusPaid})
	require.NoError(t, err)

	orders := List[model.Order](ctx, f.store, model.CollectionOrders)
	require.Len(t, orders, 2)
	assert.Equal(t, "AT-10000002", orders[0].ID)
	assert.Equal(t, "AT-10000001", orders[1].ID)
	assert.Equal(t, 11.0, orders[1].Amount)
	assert.Equal(t, model.StatusPaid, orders[1].Status)
}

func TestWriteOnFallbackCollectionKeepsBuiltIns(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	game, ok := Find[model.Game](ctx, f.store, model.CollectionGames, "1")
	require.True(t, ok)
	game.SoldCount++
	_, err := f.store.Write(ctx, model.CollectionGames, game)
	require.NoError(t, err)

	games := List[model.Game](ctx, f.store, model.CollectionGames)
	assert.Len(t, games, 12)
	got, _ := Find[model.Game](ctx, f.store, model.CollectionGames, "1")
	assert.Equal(t, 100, got.SoldCount)
}

func TestWriteRejectsMissingIDAndReservedCollection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.store.Write(ctx, model.CollectionOrders, model.Order{})
	assert.ErrorIs(t, err, docjson.ErrMissingID)

	_, err = f.store.Write(ctx, "outbox", map[string]string{"id": "x"})
	assert.ErrorIs(t, err, ErrReservedCollection)
}

func TestMergeOverlaysCachedDocument(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.store.Write(ctx, model.CollectionOrders, model.Order{ID: "AT-1", Status: model.StatusPending, CreatedAt: 1_700_000_000_123})
	require.NoError(t, err)
	_, err = f.store.Merge(ctx, model.CollectionOrders, "AT-1", map[string]any{"status": model.StatusPaid, "adminNote": "checked"})
	require.NoError(t, err)

	o, ok := Find[model.Order](ctx, f.store, model.CollectionOrders, "AT-1")
	require.True(t, ok)
	assert.Equal(t, model.StatusPaid, o.Status)
	assert.Equal(t, "checked", o.AdminNote)
	assert.Equal(t, int64(1_700_000_000_123), o.CreatedAt)

	require.Equal(t, 2, f.store.Flush(ctx))
	docs, err := f.remote.FetchAll(ctx, model.CollectionOrders)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	var remoteOrder model.Order
	require.NoError(t, json.Unmarshal(docs[0], &remoteOrder))
	assert.Equal(t, model.StatusPaid, remoteOrder.Status)
}

func TestFetchOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("empty remote is not cached", func(t *testing.T) {
		docs := f.store.FetchOnce(ctx, model.CollectionGames)
		assert.Empty(t, docs)
		_, ok, _ := f.local.Get(ctx, localstore.Key(model.CollectionGames))
		assert.False(t, ok)
	})

	t.Run("non-empty remote is cached", func(t *testing.T) {
		require.NoError(t, f.remote.Upsert(ctx, model.CollectionGames, "g1", json.RawMessage(`{"id":"g1"}`)))
		docs := f.store.FetchOnce(ctx, model.CollectionGames)
		require.Len(t, docs, 1)
		assert.Len(t, f.cached(t, model.CollectionGames), 1)
	})

	t.Run("failure serves the cache", func(t *testing.T) {
		f.remote.SetFailing(errors.New("offline"))
		defer f.remote.SetFailing(nil)
		docs := f.store.FetchOnce(ctx, model.CollectionGames)
		require.Len(t, docs, 1)
		assert.Equal(t, "g1", docjson.ID(docs[0]))
	})

	t.Run("failure without cache serves the fallback", func(t *testing.T) {
		f.remote.SetFailing(errors.New("offline"))
		defer f.remote.SetFailing(nil)
		docs := f.store.FetchOnce(ctx, model.CollectionPackages)
		assert.NotEmpty(t, docs)
	})
}

func TestFetchOnceKeepsUndeliveredWrites(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.remote.Upsert(ctx, model.CollectionOrders, "AT-1", json.RawMessage(`{"id":"AT-1","status":"PENDING"}`)))
	_, err := f.store.Write(ctx, model.CollectionOrders, map[string]any{"id": "AT-2", "status": "PENDING"})
	require.NoError(t, err)
	_, err = f.store.Merge(ctx, model.CollectionOrders, "AT-1", map[string]any{"status": "PAID"})
	require.NoError(t, err)

	docs := f.store.FetchOnce(ctx, model.CollectionOrders)
	require.Len(t, docs, 2)
	assert.Equal(t, "AT-2", docjson.ID(docs[0]))
	orders := docjson.Decode[model.Order](f.cached(t, model.CollectionOrders))
	require.Len(t, orders, 2)
	assert.Equal(t, model.StatusPaid, orders[1].Status)

	// once delivered, the remote view stands on its own
	assert.Equal(t, 2, f.store.Flush(ctx))
	docs = f.store.FetchOnce(ctx, model.CollectionOrders)
	assert.Len(t, docs, 2)
}

func TestSettings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.Equal(t, model.SettingsID, f.store.Settings(ctx).ID)
	assert.Equal(t, "@ATEETOPUP", f.store.Settings(ctx).ContactLine)

	require.NoError(t, f.local.Set(ctx, localstore.Key(model.CollectionSettings),
		[]byte(`[{"id":"other","contactLine":"@first"},{"id":"global","contactLine":"@global"}]`)))
	assert.Equal(t, "@global", f.store.Settings(ctx).ContactLine)

	require.NoError(t, f.local.Set(ctx, localstore.Key(model.CollectionSettings), []byte(`[{"id":"other","contactLine":"@first"}]`)))
	assert.Equal(t, "@first", f.store.Settings(ctx).ContactLine)

	require.NoError(t, f.local.Set(ctx, localstore.Key(model.CollectionSettings), []byte(`[]`)))
	assert.Equal(t, "@ATEETOPUP", f.store.Settings(ctx).ContactLine)
}
