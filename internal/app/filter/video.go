package filter

import (
	"resono/internal/domain/track"
	"resono/internal/infra/settings"
)

// HideVideoFilter drops video-backed items when the audio-only setting is
// on.
type HideVideoFilter struct {
	settings settings.Source
}

// NewHideVideoFilter creates a new hide-video filter.
func NewHideVideoFilter(src settings.Source) *HideVideoFilter {
	return &HideVideoFilter{settings: src}
}

func (f *HideVideoFilter) Name() string {
	return "hide_video_filter"
}

func (f *HideVideoFilter) Description() string {
	return "Drops video items when audio-only playback is enabled"
}

func (f *HideVideoFilter) Keep(item track.QueueItem) bool {
	if !settings.GetBool(f.settings, settings.KeyHideVideo, false) {
		return true
	}
	return !item.Track.IsVideo
}
