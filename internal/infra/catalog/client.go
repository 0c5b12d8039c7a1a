// Package catalog provides the HTTP catalog client and the on-device
// metadata store.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"resono/internal/app/resolver"
	"resono/internal/domain/stream"
	"resono/internal/domain/track"
)

// Config holds catalog client configuration.
type Config struct {
	BaseURL    string
	TimeoutSec int
}

// Client is an HTTP implementation of the catalog collaborator. It speaks a
// plain JSON API; vendor-specific catalog integrations live behind the same
// interface elsewhere.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a catalog client.
func NewClient(cfg Config) *Client {
	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// streamResponse is the catalog's stream resolution payload.
type streamResponse struct {
	URL           string   `json:"url"`
	Codec         string   `json:"codec"`
	BitrateKbps   int      `json:"bitrate_kbps"`
	SampleRateHz  int      `json:"sample_rate_hz"`
	ContentLength int64    `json:"content_length"`
	LoudnessDb    *float64 `json:"loudness_db"`
	TTLSec        int      `json:"ttl_sec"`
}

// trackResponse is the catalog's track payload.
type trackResponse struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Artists     []string `json:"artists"`
	Album       string   `json:"album"`
	AlbumArtURL string   `json:"album_art_url"`
	DurationMs  int64    `json:"duration_ms"`
	Explicit    bool     `json:"explicit"`
	IsVideo     bool     `json:"is_video"`
}

// GetPlaybackDescriptor implements resolver.CatalogClient.
func (c *Client) GetPlaybackDescriptor(ctx context.Context, id track.ID, quality stream.Quality, avoidCodecs []stream.Codec) (*stream.Descriptor, error) {
	q := url.Values{}
	q.Set("quality", string(quality))
	if len(avoidCodecs) > 0 {
		avoid := make([]string, 0, len(avoidCodecs))
		for _, codec := range avoidCodecs {
			avoid = append(avoid, string(codec))
		}
		q.Set("avoid", strings.Join(avoid, ","))
	}

	var resp streamResponse
	if err := c.getJSON(ctx, fmt.Sprintf("/tracks/%s/stream", url.PathEscape(string(id))), q, &resp); err != nil {
		return nil, err
	}
	if resp.URL == "" {
		// Resolver maps an empty descriptor to "no stream available"
		return nil, nil
	}

	return &stream.Descriptor{
		TrackID:       id,
		URL:           resp.URL,
		Codec:         stream.Codec(resp.Codec),
		BitrateKbps:   resp.BitrateKbps,
		SampleRateHz:  resp.SampleRateHz,
		ContentLength: resp.ContentLength,
		LoudnessDb:    resp.LoudnessDb,
		ExpiresAt:     time.Now().Add(time.Duration(resp.TTLSec) * time.Second),
	}, nil
}

// GetContinuation implements resolver.CatalogClient.
func (c *Client) GetContinuation(ctx context.Context, seed track.ID, excludeIDs map[track.ID]bool, limit int) ([]track.Track, error) {
	q := url.Values{}
	q.Set("limit", fmt.Sprintf("%d", limit))
	if len(excludeIDs) > 0 {
		exclude := make([]string, 0, len(excludeIDs))
		for id := range excludeIDs {
			exclude = append(exclude, string(id))
		}
		q.Set("exclude", strings.Join(exclude, ","))
	}

	var resp []trackResponse
	if err := c.getJSON(ctx, fmt.Sprintf("/tracks/%s/related", url.PathEscape(string(seed))), q, &resp); err != nil {
		return nil, err
	}

	tracks := make([]track.Track, 0, len(resp))
	for _, t := range resp {
		tracks = append(tracks, track.Track{
			ID:          track.ID(t.ID),
			Title:       t.Title,
			Artists:     t.Artists,
			Album:       t.Album,
			AlbumArtURL: t.AlbumArtURL,
			Duration:    time.Duration(t.DurationMs) * time.Millisecond,
			Explicit:    t.Explicit,
			IsVideo:     t.IsVideo,
		})
	}
	return tracks, nil
}

// getJSON performs a GET and decodes the JSON body. Non-2xx statuses are
// returned as resolver.HTTPError so they classify correctly.
func (c *Client) getJSON(ctx context.Context, path string, q url.Values, out any) error {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return errors.Wrap(err, "build catalog request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "catalog request")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &resolver.HTTPError{Status: resp.StatusCode}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "decode catalog response")
	}
	return nil
}
