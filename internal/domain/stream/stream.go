// Package stream provides the stream descriptor value types.
package stream

import (
	"time"

	"resono/internal/domain/track"
)

// Codec identifies an audio codec reported by the catalog.
type Codec string

const (
	CodecOpus Codec = "opus"
	CodecAAC  Codec = "aac"
	CodecMP3  Codec = "mp3"
	CodecFLAC Codec = "flac"
)

// Quality is the requested playback quality tier.
type Quality string

const (
	QualityLow    Quality = "low"
	QualityMedium Quality = "medium"
	QualityHigh   Quality = "high"
)

// Descriptor describes a resolved, short-lived playable stream.
// A descriptor is immutable once created; a refresh produces a new one.
type Descriptor struct {
	TrackID       track.ID
	URL           string
	Codec         Codec
	BitrateKbps   int
	SampleRateHz  int
	ContentLength int64
	LoudnessDb    *float64 // Loudness metadata in dB, nil when not reported
	ExpiresAt     time.Time
}

// Expired reports whether the descriptor's URL is past its TTL.
func (d *Descriptor) Expired(now time.Time) bool {
	return !now.Before(d.ExpiresAt)
}

// FormatRecord is the playable-format record upserted into the metadata
// store after a successful resolution.
type FormatRecord struct {
	TrackID       track.ID
	Codec         Codec
	BitrateKbps   int
	SampleRateHz  int
	ContentLength int64
	LoudnessDb    *float64
}

// Format extracts the persistable format record from a descriptor.
func (d *Descriptor) Format() FormatRecord {
	return FormatRecord{
		TrackID:       d.TrackID,
		Codec:         d.Codec,
		BitrateKbps:   d.BitrateKbps,
		SampleRateHz:  d.SampleRateHz,
		ContentLength: d.ContentLength,
		LoudnessDb:    d.LoudnessDb,
	}
}

// DeviceCaps reports which codecs the device can decode. The avoid set
// handed to the catalog is derived from this once at startup.
type DeviceCaps struct {
	Supported []Codec
}

// AvoidCodecs returns the codecs from the known set that the device cannot
// decode.
func (c DeviceCaps) AvoidCodecs() []Codec {
	known := []Codec{CodecOpus, CodecAAC, CodecMP3, CodecFLAC}
	supported := make(map[Codec]bool, len(c.Supported))
	for _, s := range c.Supported {
		supported[s] = true
	}
	avoid := make([]Codec, 0)
	for _, k := range known {
		if !supported[k] {
			avoid = append(avoid, k)
		}
	}
	return avoid
}
