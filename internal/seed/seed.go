// Package seed copies the built-in catalogue into an empty remote store.
package seed

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/ariefcatur/atee-topup/internal/docjson"
	"github.com/ariefcatur/atee-topup/internal/remote"
)

type Catalog interface {
	Collections() []string
	Collection(name string) []json.RawMessage
}

// Run upserts the catalogue into each collection that has no documents yet
// and returns how many documents were written. Collections with data are left alone.
func Run(ctx context.Context, rem remote.Store, cat Catalog) (int, error) {
	written := 0
	for _, name := range cat.Collections() {
		existing, err := rem.FetchAll(ctx, name)
		if err != nil {
			return written, fmt.Errorf("failed to read %s: %w", name, err)
		}
		if len(existing) > 0 {
			log.Info().Str("collection", name).Int("docs", len(existing)).Msg("seed: already populated, skipped")
			continue
		}
		for _, doc := range cat.Collection(name) {
			id := docjson.ID(doc)
			if id == "" {
				log.Warn().Str("collection", name).Msg("seed: document without id skipped")
				continue
			}
			if err := rem.Upsert(ctx, name, id, doc); err != nil {
				return written, fmt.Errorf("failed to seed %s/%s: %w", name, id, err)
			}
			written++
		}
		log.Info().Str("collection", name).Msg("seed: collection seeded")
	}
	return written, nil
}
