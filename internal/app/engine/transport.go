package engine

import (
	"resono/internal/domain/track"
)

// Transport is the port to the audio player pipeline. It is exclusively
// owned by the state machine; no other component holds a reference.
type Transport interface {
	// Prepare loads the stream URL into the pipeline. The duration hint
	// comes from catalog metadata; implementations that learn the real
	// duration from the stream may ignore it.
	Prepare(url string, durationHintMs int64) error
	Play() error
	Pause() error
	Stop() error
	SeekTo(positionMs int64) error
	SetVolume(v float64) error
	// PositionMs reports the current playback position.
	PositionMs() int64
	// AudioSessionID identifies the pipeline instance for effect binding.
	AudioSessionID() int
}

// PresenceSink receives now-playing and finished notifications.
// Best-effort collaborators: failures are logged and swallowed.
type PresenceSink interface {
	NotifyNowPlaying(t track.Track, positionMs int64) error
	NotifyFinished(t track.Track, startMs, endMs int64) error
}
