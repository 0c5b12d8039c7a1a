package effects

import (
	"encoding/binary"
	"sync/atomic"
)

// Crossfader applies a sample-accurate linear fade-out to the tail of a
// track. Only 16-bit little-endian PCM is supported; anything else passes
// through untouched. The duration is atomic: settings changes may race the
// pipeline calling ApplyTail.
type Crossfader struct {
	durationMs   atomic.Int64
	sampleRateHz int
	channels     int
}

// NewCrossfader creates a crossfader for the given output format.
func NewCrossfader(sampleRateHz, channels int) *Crossfader {
	return &Crossfader{sampleRateHz: sampleRateHz, channels: channels}
}

// SetDurationMs sets the crossfade duration. Zero disables the fade.
func (c *Crossfader) SetDurationMs(ms int) {
	if ms < 0 {
		ms = 0
	}
	c.durationMs.Store(int64(ms))
}

// DurationMs returns the configured crossfade duration.
func (c *Crossfader) DurationMs() int {
	return int(c.durationMs.Load())
}

// FadeSamples returns the fade window length in frames.
func (c *Crossfader) FadeSamples() int {
	return c.DurationMs() * c.sampleRateHz / 1000
}

// FactorAt returns the amplitude factor at frame offset k within a fade
// window of total frames: 1 − k/total. Factor is 1.0 at k=0 and reaches 0
// at k=total.
func FactorAt(k, total int) float64 {
	if total <= 0 {
		return 1.0
	}
	f := 1.0 - float64(k)/float64(total)
	if f < 0 {
		return 0
	}
	return f
}

// ApplyTail fades out the last FadeSamples frames of the buffer in place.
// A no-op when the duration is zero or the format is not 16-bit PCM
// (bitsPerSample != 16).
func (c *Crossfader) ApplyTail(pcm []byte, bitsPerSample int) {
	total := c.FadeSamples()
	if total <= 0 || bitsPerSample != 16 || c.channels <= 0 {
		return
	}

	frameBytes := 2 * c.channels
	frames := len(pcm) / frameBytes
	if frames == 0 {
		return
	}

	fadeFrames := min(total, frames)
	startFrame := frames - fadeFrames

	for f := 0; f < fadeFrames; f++ {
		// Offset within the fade window; short buffers start mid-window so
		// the fade still ends at zero
		k := total - fadeFrames + f
		factor := FactorAt(k, total)

		base := (startFrame + f) * frameBytes
		for ch := 0; ch < c.channels; ch++ {
			off := base + 2*ch
			sample := int16(binary.LittleEndian.Uint16(pcm[off : off+2]))
			scaled := int16(float64(sample) * factor)
			binary.LittleEndian.PutUint16(pcm[off:off+2], uint16(scaled))
		}
	}
}
