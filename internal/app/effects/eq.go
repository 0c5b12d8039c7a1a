// Package effects provides the audio signal chain: equalizer, bass boost,
// virtualizer, loudness normalization and crossfade, reconciled against the
// capabilities of the active audio session.
package effects

import (
	"math"
)

// Capabilities describes what the session's equalizer hardware reports.
// Re-queried whenever the audio session changes.
type Capabilities struct {
	BandCount         int
	MinLevelMilliBel  int
	MaxLevelMilliBel  int
	CenterFreqsHz     []int
	SystemPresetNames []string
}

// Settings is the user-declared effect configuration. Band levels may have
// been imported from a different device, so their length is not guaranteed
// to match the hardware band count.
type Settings struct {
	Enabled            bool
	BandLevelsMilliBel []int
	OutputGainMilliBel int
	BassBoostStrength  int
	VirtualizerStrength int
	LoudnessEnabled    bool
}

// ResampleBands maps user band levels of arbitrary length onto the
// hardware band count using index-based linear interpolation, clamping the
// result to the capability level range.
//
// Target band i of targetCount maps to source position
// pos = i*(len(src)-1)/(targetCount-1), interpolating between floor(pos)
// and ceil(pos). Zero source bands yield all-zero output; a single source
// band is broadcast.
func ResampleBands(src []int, targetCount, minLevelMb, maxLevelMb int) []int {
	if targetCount <= 0 {
		return nil
	}

	out := make([]int, targetCount)
	switch len(src) {
	case 0:
		return out
	case 1:
		for i := range out {
			out[i] = clampLevel(src[0], minLevelMb, maxLevelMb)
		}
		return out
	}

	if targetCount == 1 {
		out[0] = clampLevel(src[0], minLevelMb, maxLevelMb)
		return out
	}

	for i := 0; i < targetCount; i++ {
		pos := float64(i) * float64(len(src)-1) / float64(targetCount-1)
		lo := int(math.Floor(pos))
		hi := int(math.Ceil(pos))
		frac := pos - float64(lo)

		level := float64(src[lo])*(1-frac) + float64(src[hi])*frac
		out[i] = clampLevel(int(math.Round(level)), minLevelMb, maxLevelMb)
	}
	return out
}

func clampLevel(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
