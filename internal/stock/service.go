// Package stock keeps each game's sold counter in step with completed orders.
package stock

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/ariefcatur/atee-topup/internal/docjson"
	"github.com/ariefcatur/atee-topup/internal/docstore"
	"github.com/ariefcatur/atee-topup/internal/model"
	"github.com/ariefcatur/atee-topup/internal/syncstore"
)

type Store interface {
	FetchOnce(ctx context.Context, collection string) []json.RawMessage
	Merge(ctx context.Context, collection, id string, fields map[string]any) (syncstore.Receipt, error)
}

// Deduper remembers which orders were already counted.
type Deduper interface {
	Claim(ctx context.Context, id string) (bool, error)
	Release(ctx context.Context, id string) error
}

type Service struct {
	Store Store
	Dedup Deduper
}

// HandleDocumentChanged is installed as the change-feed consumer handler.
func (s *Service) HandleDocumentChanged(ctx context.Context, m kafkago.Message) error {
	env, change, ok, err := docstore.DecodeChange(m)
	if err != nil {
		log.Warn().Err(err).Int64("offset", m.Offset).Msg("stock: bad change event")
		return nil
	}
	if !ok || change.Collection != model.CollectionOrders {
		return nil
	}

	order, err := s.order(ctx, change)
	if err != nil {
		return err
	}
	if order == nil || order.Status != model.StatusSuccess {
		return nil
	}
	return s.Count(ctx, *order, env.EventID)
}

// Count adds a completed order to the sold counters once.
func (s *Service) Count(ctx context.Context, order model.Order, eventID string) error {
	claimed, err := s.Dedup.Claim(ctx, order.ID)
	if err != nil {
		return fmt.Errorf("failed to claim order %s: %w", order.ID, err)
	}
	if !claimed {
		return nil
	}

	if err := s.bump(ctx, SoldUnits(order)); err != nil {
		if rerr := s.Dedup.Release(ctx, order.ID); rerr != nil {
			log.Error().Err(rerr).Str("order_id", order.ID).Msg("stock: release claim")
		}
		return err
	}
	log.Info().Str("order_id", order.ID).Str("event_id", eventID).Msg("stock: order counted")
	return nil
}

func (s *Service) bump(ctx context.Context, units map[string]int) error {
	games := docjson.Decode[model.Game](s.Store.FetchOnce(ctx, model.CollectionGames))
	byID := make(map[string]model.Game, len(games))
	for _, g := range games {
		byID[g.ID] = g
	}
	for gameID, n := range units {
		g, ok := byID[gameID]
		if !ok {
			log.Warn().Str("game_id", gameID).Msg("stock: unknown game, not counted")
			continue
		}
		if _, err := s.Store.Merge(ctx, model.CollectionGames, gameID, map[string]any{"soldCount": g.SoldCount + n}); err != nil {
			return fmt.Errorf("failed to bump sold count of %s: %w", gameID, err)
		}
	}
	return nil
}

// order prefers the document carried by the event and falls back to the store.
func (s *Service) order(ctx context.Context, change docstore.DocumentChangedPayload) (*model.Order, error) {
	if len(change.Doc) > 0 {
		var o model.Order
		if err := json.Unmarshal(change.Doc, &o); err != nil {
			return nil, fmt.Errorf("decode order %s: %w", change.ID, err)
		}
		return &o, nil
	}
	docs := s.Store.FetchOnce(ctx, model.CollectionOrders)
	i := docjson.Index(docs, change.ID)
	if i < 0 {
		return nil, nil
	}
	var o model.Order
	if err := json.Unmarshal(docs[i], &o); err != nil {
		return nil, fmt.Errorf("decode order %s: %w", change.ID, err)
	}
	return &o, nil
}

// SoldUnits counts one unit per cart line, or one for a single-package order.
func SoldUnits(o model.Order) map[string]int {
	units := map[string]int{}
	if len(o.Items) > 0 {
		for _, it := range o.Items {
			if it.GameID != "" {
				units[it.GameID]++
			}
		}
		return units
	}
	if o.GameID != "" {
		units[o.GameID]++
	}
	return units
}
