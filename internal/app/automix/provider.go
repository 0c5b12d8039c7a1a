// Package automix provides radio continuation sourced from the catalog.
package automix

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"resono/internal/app/resolver"
	"resono/internal/domain/track"
)

// Provider fetches pages of related tracks for a seed track.
type Provider struct {
	catalog  resolver.CatalogClient
	pageSize int
}

// NewProvider creates a new automix provider.
func NewProvider(catalog resolver.CatalogClient, pageSize int) *Provider {
	return &Provider{catalog: catalog, pageSize: pageSize}
}

// NextPage fetches one page of continuation items seeded on the given
// track. The seed itself and everything in excludeIDs are filtered out so
// the ending track is never re-queued immediately after itself.
func (p *Provider) NextPage(ctx context.Context, seed track.ID, excludeIDs map[track.ID]bool) ([]track.QueueItem, error) {
	exclude := make(map[track.ID]bool, len(excludeIDs)+1)
	for id, v := range excludeIDs {
		exclude[id] = v
	}
	exclude[seed] = true

	tracks, err := p.catalog.GetContinuation(ctx, seed, exclude, p.pageSize)
	if err != nil {
		return nil, errors.Wrapf(err, "continuation fetch for %s", seed)
	}

	items := make([]track.QueueItem, 0, len(tracks))
	now := time.Now()
	for _, t := range tracks {
		// The catalog is asked to exclude these, but a misbehaving page is
		// still filtered here
		if t.ID == seed || excludeIDs[t.ID] {
			continue
		}
		items = append(items, track.QueueItem{
			Track:   t,
			Source:  track.SourceAutomix,
			AddedAt: now,
		})
	}

	zlog.Debug().Msgf("automix: fetched continuation page: seed=%s items=%d", seed, len(items))
	return items, nil
}
