// Package resolver resolves track IDs to short-lived playable stream URLs.
//
// Resolution is cache-first: a non-expired cache entry short-circuits the
// external catalog call. Refreshes triggered by playback errors go through
// a per-track retry ledger so a permanently broken stream cannot cause a
// retry storm.
package resolver

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"resono/internal/domain/stream"
	"resono/internal/domain/track"
	"resono/internal/infra/metrics"
)

// CatalogClient is the external catalog collaborator.
type CatalogClient interface {
	// GetPlaybackDescriptor resolves a playable stream for the track.
	GetPlaybackDescriptor(ctx context.Context, id track.ID, quality stream.Quality, avoidCodecs []stream.Codec) (*stream.Descriptor, error)
	// GetContinuation fetches one page of related tracks for radio
	// continuation, excluding the given IDs.
	GetContinuation(ctx context.Context, seed track.ID, excludeIDs map[track.ID]bool, limit int) ([]track.Track, error)
}

// MetadataStore is the on-device metadata collaborator, consumed as a
// key-value lookup by track ID.
type MetadataStore interface {
	Get(ctx context.Context, id track.ID) (*track.Metadata, error)
	Upsert(ctx context.Context, md track.Metadata) error
	UpsertFormat(ctx context.Context, fr stream.FormatRecord) error
}

// Config holds resolver configuration.
type Config struct {
	Quality          stream.Quality
	RecoveryWindow   time.Duration // Rolling window for the retry ledger
	MaxRecoveryTries int           // Allowed refreshes per window
}

// Resolver resolves and caches stream descriptors.
type Resolver struct {
	catalog CatalogClient
	meta    MetadataStore
	metrics *metrics.Metrics

	cache  *streamCache
	ledger *recoveryLedger

	quality stream.Quality
	// Derived once from device codec capability, not re-derived per resolve
	avoidCodecs []stream.Codec

	now func() time.Time
}

// New creates a new resolver.
func New(catalog CatalogClient, meta MetadataStore, caps stream.DeviceCaps, cfg Config, m *metrics.Metrics) *Resolver {
	return &Resolver{
		catalog:     catalog,
		meta:        meta,
		metrics:     m,
		cache:       newStreamCache(),
		ledger:      newRecoveryLedger(cfg.RecoveryWindow, cfg.MaxRecoveryTries),
		quality:     cfg.Quality,
		avoidCodecs: caps.AvoidCodecs(),
		now:         time.Now,
	}
}

// Resolve returns a playable descriptor for the track, from cache when the
// cached URL has not expired, otherwise via the external catalog.
func (r *Resolver) Resolve(ctx context.Context, id track.ID) (stream.Descriptor, error) {
	now := r.now()
	if d, ok := r.cache.get(id, now); ok {
		if r.metrics != nil {
			r.metrics.IncCacheHit()
		}
		return d, nil
	}
	return r.resolveRemote(ctx, id)
}

// Recover refreshes the stream URL after a playback error. The cached URL
// is dropped and re-resolved, subject to the retry ledger; when the ledger
// refuses, ErrRecoveryExhausted is returned and the caller escalates to its
// skip/stop policy.
func (r *Resolver) Recover(ctx context.Context, id track.ID) (stream.Descriptor, error) {
	if !r.ledger.markAndCheck(id, r.now()) {
		if r.metrics != nil {
			r.metrics.IncRecoveryRefused()
		}
		return stream.Descriptor{}, errors.Wrapf(ErrRecoveryExhausted, "track %s", id)
	}

	r.cache.invalidate(id)
	return r.resolveRemote(ctx, id)
}

// ClearRecovery removes the track's ledger entry. Called once playback of
// the recovered stream actually succeeds; resolution success alone must not
// reset the bound, or a broken stream would be refreshed forever.
func (r *Resolver) ClearRecovery(id track.ID) {
	r.ledger.clear(id)
}

// Invalidate drops the cached descriptor for a track.
func (r *Resolver) Invalidate(id track.ID) {
	r.cache.invalidate(id)
}

// ResolveAsync prefetches a descriptor in the background, warming the cache
// for an upcoming track. Failures are logged only.
func (r *Resolver) ResolveAsync(ctx context.Context, id track.ID) {
	go func() {
		if _, err := r.Resolve(ctx, id); err != nil {
			zlog.Debug().Msgf("resolver: prefetch failed: track=%s error=%v", id, err)
		}
	}()
}

func (r *Resolver) resolveRemote(ctx context.Context, id track.ID) (stream.Descriptor, error) {
	d, err := r.catalog.GetPlaybackDescriptor(ctx, id, r.quality, r.avoidCodecs)
	if err != nil {
		kind := Classify(err)
		if r.metrics != nil {
			r.metrics.IncResolution("error")
		}
		return stream.Descriptor{}, newError(kind, id, err)
	}
	if d == nil || d.URL == "" {
		if r.metrics != nil {
			r.metrics.IncResolution("no_stream")
		}
		return stream.Descriptor{}, newError(KindNoStreamAvailable, id, nil)
	}

	r.cache.put(*d)
	if r.metrics != nil {
		r.metrics.IncResolution("ok")
	}

	// Upsert format and any missing metadata without blocking the caller
	go r.upsertRecords(*d)

	return *d, nil
}

// upsertRecords stores the format record and backfills missing metadata.
// Best-effort: failures are logged and swallowed.
func (r *Resolver) upsertRecords(d stream.Descriptor) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := r.meta.UpsertFormat(ctx, d.Format()); err != nil {
		zlog.Warn().Msgf("resolver: format upsert failed: track=%s error=%v", d.TrackID, err)
	}

	md, err := r.meta.Get(ctx, d.TrackID)
	if err != nil {
		zlog.Warn().Msgf("resolver: metadata lookup failed: track=%s error=%v", d.TrackID, err)
		return
	}
	if md != nil {
		return
	}
	if err := r.meta.Upsert(ctx, track.Metadata{ID: d.TrackID}); err != nil {
		zlog.Warn().Msgf("resolver: metadata upsert failed: track=%s error=%v", d.TrackID, err)
	}
}
