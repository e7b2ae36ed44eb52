package httpx

import (
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/ariefcatur/atee-topup/internal/model"
)

const streamHeartbeat = 25 * time.Second

var readableCollections = []string{
	model.CollectionGames,
	model.CollectionPackages,
	model.CollectionPromos,
	model.CollectionCoupons,
	model.CollectionAPIConfigs,
	model.CollectionSettings,
	model.CollectionReviews,
	model.CollectionOrders,
	model.CollectionInstallments,
	model.CollectionForms,
	model.CollectionUsers,
}

// getCollection serves the local view; ?fresh=1 asks the remote first.
func (h *Handler) getCollection(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if !slices.Contains(readableCollections, name) {
		writeError(w, http.StatusNotFound, "unknown collection")
		return
	}
	if r.URL.Query().Get("fresh") == "1" {
		writeJSON(w, http.StatusOK, h.Store.FetchOnce(r.Context(), name))
		return
	}
	writeJSON(w, http.StatusOK, h.Store.Snapshot(r.Context(), name))
}

// streamCollection sends the collection as server-sent events, first from
// the cache and then after every remote change.
func (h *Handler) streamCollection(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if !slices.Contains(readableCollections, name) {
		writeError(w, http.StatusNotFound, "unknown collection")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	// only the latest snapshot matters to a slow reader
	updates := make(chan []json.RawMessage, 1)
	unsubscribe := h.Store.Subscribe(r.Context(), name, func(docs []json.RawMessage) {
		select {
		case <-updates:
		default:
		}
		updates <- docs
	})
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(streamHeartbeat)
	defer heartbeat.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
		case docs := <-updates:
			body, err := json.Marshal(docs)
			if err != nil {
				log.Ctx(r.Context()).Error().Err(err).Str("collection", name).Msg("encode snapshot")
				continue
			}
			if _, err := fmt.Fprintf(w, "event: snapshot\ndata: %s\n\n", body); err != nil {
				return
			}
		}
		flusher.Flush()
	}
}

func (h *Handler) listOutbox(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Store.PendingWrites(r.Context()))
}

func (h *Handler) getOutboxEntry(w http.ResponseWriter, r *http.Request) {
	e, ok := h.Store.WriteStatus(r.Context(), chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	writeJSON(w, http.StatusOK, e)
}
