// Package rest exposes the playback engine's command and observation
// surface over HTTP.
package rest

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	zlog "github.com/rs/zerolog/log"

	"resono/internal/app/effects"
	"resono/internal/app/engine"
	"resono/internal/app/queue"
	"resono/internal/domain/track"
	"resono/internal/infra/metrics"
)

// Handler translates HTTP requests onto the state machine and queue engine.
type Handler struct {
	machine *engine.Machine
	queue   *queue.Engine
	metrics *metrics.Metrics
}

// NewHandler creates the HTTP handler. Metrics may be nil (tests).
func NewHandler(m *engine.Machine, q *queue.Engine, met *metrics.Metrics) *Handler {
	return &Handler{machine: m, queue: q, metrics: met}
}

// Router builds the chi router for all endpoints.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Post("/play", h.Play)
	r.Post("/pause", h.Pause)
	r.Post("/skip", h.Skip)
	r.Post("/shuffle", h.Shuffle)
	r.Post("/repeat", h.Repeat)
	r.Post("/eq", h.ApplyEq)
	r.Get("/status", h.Status)
	r.Get("/queue", h.Queue)

	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics.Handler(func() {
			h.metrics.SetQueueLength(h.queue.Len())
		}))
	}
	return r
}

// trackPayload is the wire form of a track in play requests and queue
// responses.
type trackPayload struct {
	ID          string   `json:"id"`
	Title       string   `json:"title,omitempty"`
	Artists     []string `json:"artists,omitempty"`
	Album       string   `json:"album,omitempty"`
	AlbumArtURL string   `json:"album_art_url,omitempty"`
	DurationMs  int64    `json:"duration_ms,omitempty"`
	Explicit    bool     `json:"explicit,omitempty"`
	IsVideo     bool     `json:"is_video,omitempty"`
	Source      string   `json:"source,omitempty"`
}

type playRequest struct {
	Tracks     []trackPayload `json:"tracks"`
	StartIndex int            `json:"start_index"`
	HasPages   bool           `json:"has_pages"`
}

type eqRequest struct {
	Enabled             bool  `json:"enabled"`
	BandLevelsMilliBel  []int `json:"band_levels_millibel"`
	OutputGainMilliBel  int   `json:"output_gain_millibel"`
	BassBoostStrength   int   `json:"bass_boost"`
	VirtualizerStrength int   `json:"virtualizer"`
	LoudnessEnabled     bool  `json:"loudness_enabled"`
}

// Play handles POST /play. With a body it loads the given queue and starts
// it; without one it resumes playback.
func (h *Handler) Play(w http.ResponseWriter, r *http.Request) {
	var req playRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		// No body means resume
		h.machine.Play()
		w.WriteHeader(http.StatusAccepted)
		return
	}

	if len(req.Tracks) == 0 {
		h.machine.Play()
		w.WriteHeader(http.StatusAccepted)
		return
	}

	items := make([]track.QueueItem, 0, len(req.Tracks))
	now := time.Now()
	for _, p := range req.Tracks {
		if p.ID == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		items = append(items, track.QueueItem{
			Track: track.Track{
				ID:          track.ID(p.ID),
				Title:       p.Title,
				Artists:     p.Artists,
				Album:       p.Album,
				AlbumArtURL: p.AlbumArtURL,
				Duration:    time.Duration(p.DurationMs) * time.Millisecond,
				Explicit:    p.Explicit,
				IsVideo:     p.IsVideo,
			},
			Source:  track.SourceUser,
			AddedAt: now,
		})
	}

	if req.StartIndex < 0 || req.StartIndex >= len(items) {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	zlog.Info().Msgf("rest: play queue: tracks=%d start=%d", len(items), req.StartIndex)
	h.machine.PlayQueue(queue.Load{
		Items:      items,
		StartIndex: req.StartIndex,
		HasPages:   req.HasPages,
	})
	w.WriteHeader(http.StatusAccepted)
}

// Pause handles POST /pause.
func (h *Handler) Pause(w http.ResponseWriter, _ *http.Request) {
	h.machine.Pause()
	w.WriteHeader(http.StatusAccepted)
}

// Skip handles POST /skip.
func (h *Handler) Skip(w http.ResponseWriter, _ *http.Request) {
	h.machine.SkipNext()
	w.WriteHeader(http.StatusAccepted)
}

// Shuffle handles POST /shuffle.
func (h *Handler) Shuffle(w http.ResponseWriter, _ *http.Request) {
	h.machine.ToggleShuffle()
	writeJSON(w, map[string]any{"shuffled": h.queue.Shuffled()})
}

// Repeat handles POST /repeat, cycling off → all → one.
func (h *Handler) Repeat(w http.ResponseWriter, _ *http.Request) {
	mode := h.machine.ToggleRepeat()
	writeJSON(w, map[string]any{"repeat": mode.String()})
}

// ApplyEq handles POST /eq.
func (h *Handler) ApplyEq(w http.ResponseWriter, r *http.Request) {
	var req eqRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	h.machine.ApplyEqSettings(effects.Settings{
		Enabled:             req.Enabled,
		BandLevelsMilliBel:  req.BandLevelsMilliBel,
		OutputGainMilliBel:  req.OutputGainMilliBel,
		BassBoostStrength:   req.BassBoostStrength,
		VirtualizerStrength: req.VirtualizerStrength,
		LoudnessEnabled:     req.LoudnessEnabled,
	})
	w.WriteHeader(http.StatusAccepted)
}

// Status handles GET /status.
func (h *Handler) Status(w http.ResponseWriter, _ *http.Request) {
	st := h.machine.Status()
	writeJSON(w, map[string]any{
		"state":               st.State.String(),
		"waiting_for_network": st.WaitingForNetwork,
		"recovering_stream":   st.RecoveringStream,
		"track_id":            st.TrackID,
		"position_ms":         st.PositionMs,
		"volume":              st.Volume,
	})
}

// Queue handles GET /queue.
func (h *Handler) Queue(w http.ResponseWriter, _ *http.Request) {
	items := h.queue.Items()
	payload := make([]trackPayload, 0, len(items))
	for _, item := range items {
		payload = append(payload, trackPayload{
			ID:          string(item.Track.ID),
			Title:       item.Track.Title,
			Artists:     item.Track.Artists,
			Album:       item.Track.Album,
			AlbumArtURL: item.Track.AlbumArtURL,
			DurationMs:  item.Track.Duration.Milliseconds(),
			Explicit:    item.Track.Explicit,
			IsVideo:     item.Track.IsVideo,
			Source:      string(item.Source),
		})
	}

	writeJSON(w, map[string]any{
		"items":   payload,
		"current": h.queue.CurrentIndex(),
		"shuffle": h.queue.Shuffled(),
		"repeat":  h.queue.Repeat().String(),
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zlog.Debug().Msgf("rest: response encode failed: %v", err)
	}
}
