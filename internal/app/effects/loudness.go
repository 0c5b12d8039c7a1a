package effects

import "math"

// maxLoudnessGain caps the normalization boost at +3 dB to prevent
// clipping.
const maxLoudnessGain = 1.4125375446227544 // 10^(3/20)

// LoudnessGain returns the target gain factor 10^(−loudnessDb/20) for
// loudness normalization. Returns 1.0 (no-op) when normalization is
// disabled or the track carries no loudness metadata; boosts are capped at
// +3 dB.
func LoudnessGain(loudnessDb *float64, enabled bool) float64 {
	if !enabled || loudnessDb == nil {
		return 1.0
	}

	factor := math.Pow(10, -*loudnessDb/20)
	if factor > maxLoudnessGain {
		return maxLoudnessGain
	}
	return factor
}
