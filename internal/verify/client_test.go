package verify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/atee-topup/internal/model"
)

type catalog map[string][]json.RawMessage

func (c catalog) Snapshot(_ context.Context, collection string) []json.RawMessage {
	return c[collection]
}

func doc(t *testing.T, v any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}

func newTestClient(cat catalog) *Client {
	cfg := DefaultConfig()
	cfg.Timeout = 2 * time.Second
	return NewClient(cat, cfg)
}

func TestVerify_ExtractsName(t *testing.T) {
	var gotPath, gotHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		gotHeader = r.Header.Get("X-Api-Key")
		_, _ = w.Write([]byte(`{"data":{"name":"Steve"}}`))
	}))
	defer srv.Close()

	c := newTestClient(nil)
	name, ok := c.Verify(context.Background(), model.APIConfig{
		ID:           "cfg1",
		Endpoint:     srv.URL + "/players/{id}",
		Headers:      `{"X-Api-Key":"secret"}`,
		ResponsePath: "data.name",
	}, "user 1")

	assert.True(t, ok)
	assert.Equal(t, "Steve", name)
	assert.Equal(t, "/players/user%201", gotPath)
	assert.Equal(t, "secret", gotHeader)
}

func TestVerify_FillsFirstPlaceholderOnly(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(`{"name":"Alex"}`))
	}))
	defer srv.Close()

	name, ok := newTestClient(nil).Verify(context.Background(), model.APIConfig{
		ID: "cfg1", Endpoint: srv.URL + "/players/{id}/{id}", ResponsePath: "name",
	}, "42")
	assert.True(t, ok)
	assert.Equal(t, "Alex", name)
	assert.Equal(t, "/players/42/{id}", gotPath)
}

func TestVerify_MissingPathIsMiss(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error":"nope"}`))
	}))
	defer srv.Close()

	c := newTestClient(nil)
	name, ok := c.Verify(context.Background(), model.APIConfig{
		ID: "cfg1", Endpoint: srv.URL + "/{id}", ResponsePath: "data.name",
	}, "42")
	assert.False(t, ok)
	assert.Empty(t, name)
}

func TestVerify_Misses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/404":
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"data":{"name":"Steve"}}`))
		case "/html":
			_, _ = w.Write([]byte(`<html></html>`))
		default:
			_, _ = w.Write([]byte(`{"data":{"name":"Steve"}}`))
		}
	}))
	defer srv.Close()

	tests := []struct {
		name    string
		cfg     model.APIConfig
		subject string
	}{
		{"non 2xx", model.APIConfig{ID: "a", Endpoint: srv.URL + "/404", ResponsePath: "data.name"}, "1"},
		{"not json", model.APIConfig{ID: "b", Endpoint: srv.URL + "/html", ResponsePath: "data.name"}, "1"},
		{"bad headers", model.APIConfig{ID: "c", Endpoint: srv.URL + "/ok", Headers: "{", ResponsePath: "data.name"}, "1"},
		{"unsupported method", model.APIConfig{ID: "d", Endpoint: srv.URL + "/ok", Method: "DELETE", ResponsePath: "data.name"}, "1"},
		{"empty subject", model.APIConfig{ID: "e", Endpoint: srv.URL + "/ok", ResponsePath: "data.name"}, ""},
		{"unreachable", model.APIConfig{ID: "f", Endpoint: "http://127.0.0.1:1/{id}", ResponsePath: "data.name"}, "1"},
	}
	c := newTestClient(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := c.Verify(context.Background(), tt.cfg, tt.subject)
			assert.False(t, ok)
		})
	}
}

func TestVerify_PostMethod(t *testing.T) {
	var method string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		_, _ = w.Write([]byte(`{"username":"ann"}`))
	}))
	defer srv.Close()

	name, ok := newTestClient(nil).Verify(context.Background(), model.APIConfig{
		ID: "p", Endpoint: srv.URL + "/{id}", Method: "post", ResponsePath: "username",
	}, "9")
	require.True(t, ok)
	assert.Equal(t, "ann", name)
	assert.Equal(t, http.MethodPost, method)
}

func TestVerify_BreakerOpensOnServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newTestClient(nil)
	cfg := model.APIConfig{ID: "flaky", Endpoint: srv.URL + "/{id}", ResponsePath: "name"}
	for i := 0; i < 6; i++ {
		_, ok := c.Verify(context.Background(), cfg, "1")
		assert.False(t, ok)
	}
	assert.Equal(t, int32(3), hits.Load())
}

func TestVerify_ClientErrorsKeepBreakerClosed(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := newTestClient(nil)
	cfg := model.APIConfig{ID: "strict", Endpoint: srv.URL + "/{id}", ResponsePath: "name"}
	for i := 0; i < 5; i++ {
		c.Verify(context.Background(), cfg, "1")
	}
	assert.Equal(t, int32(5), hits.Load())
}

func TestVerifyPlayer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"name":"Steve"}}`))
	}))
	defer srv.Close()

	cat := catalog{
		model.CollectionGames: {
			doc(t, model.Game{ID: "g1", IsVerifyEnabled: true, APIConfigID: "api1"}),
			doc(t, model.Game{ID: "g2", IsVerifyEnabled: false, APIConfigID: "api1"}),
			doc(t, model.Game{ID: "g3", IsVerifyEnabled: true, APIConfigID: "missing"}),
		},
		model.CollectionAPIConfigs: {
			doc(t, model.APIConfig{ID: "api1", Endpoint: srv.URL + "/{id}", Method: "GET", ResponsePath: "data.name"}),
		},
	}
	c := newTestClient(cat)

	name, ok := c.VerifyPlayer(context.Background(), "g1", "123")
	assert.True(t, ok)
	assert.Equal(t, "Steve", name)

	for _, id := range []string{"g2", "g3", "unknown"} {
		_, ok := c.VerifyPlayer(context.Background(), id, "123")
		assert.False(t, ok, id)
	}
}
