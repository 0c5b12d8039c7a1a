package filter

import (
	"resono/internal/domain/track"
	"resono/internal/infra/settings"
)

// HideExplicitFilter drops explicit tracks when the hide-explicit setting
// is on. The setting is read at ingestion time, so an already-built queue
// is not retroactively filtered.
type HideExplicitFilter struct {
	settings settings.Source
}

// NewHideExplicitFilter creates a new hide-explicit filter.
func NewHideExplicitFilter(src settings.Source) *HideExplicitFilter {
	return &HideExplicitFilter{settings: src}
}

func (f *HideExplicitFilter) Name() string {
	return "hide_explicit_filter"
}

func (f *HideExplicitFilter) Description() string {
	return "Drops explicit tracks when hide-explicit is enabled"
}

func (f *HideExplicitFilter) Keep(item track.QueueItem) bool {
	if !settings.GetBool(f.settings, settings.KeyHideExplicit, false) {
		return true
	}
	return !item.Track.Explicit
}
