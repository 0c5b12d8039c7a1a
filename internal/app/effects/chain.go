package effects

import (
	"sync"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

// Device is the port to the platform audio-effect units.
type Device interface {
	// Open binds the effect units to an audio session.
	Open(sessionID int) (Session, error)
}

// Session is a set of effect units bound to one audio session. Each setter
// may fail independently; a failure affects that effect only.
type Session interface {
	Capabilities() (Capabilities, error)
	SetEqualizerEnabled(enabled bool) error
	SetBandLevel(band, levelMilliBel int) error
	SetOutputGain(milliBel int) error
	SetBassBoost(strength int) error
	SetVirtualizer(strength int) error
	SetLoudnessGain(factor float64) error
	Release()
}

// Chain reconciles user effect settings against the capabilities of the
// active audio session and owns the crossfade shaper.
type Chain struct {
	mu sync.Mutex

	device    Device
	session   Session
	sessionID int
	caps      Capabilities

	lastSettings *Settings
	crossfader   *Crossfader
}

// NewChain creates an effects chain. The chain is inert until the first
// audio session is announced.
func NewChain(device Device, sampleRateHz, channels int) *Chain {
	return &Chain{
		device:     device,
		crossfader: NewCrossfader(sampleRateHz, channels),
	}
}

// OnAudioSessionChanged releases the effects bound to the previous session,
// rebinds to the new one, re-queries capabilities and reapplies the
// last-seen settings.
func (c *Chain) OnAudioSessionChanged(sessionID int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session != nil {
		c.session.Release()
		c.session = nil
	}
	c.sessionID = sessionID

	session, err := c.device.Open(sessionID)
	if err != nil {
		return errors.Wrapf(err, "failed to bind effects to session %d", sessionID)
	}
	c.session = session

	caps, err := session.Capabilities()
	if err != nil {
		zlog.Warn().Msgf("effects: capability query failed: session=%d error=%v", sessionID, err)
		caps = Capabilities{}
	}
	c.caps = caps

	if c.lastSettings != nil {
		c.applyLocked(*c.lastSettings)
	}
	return nil
}

// Capabilities returns the capabilities of the bound session.
func (c *Chain) Capabilities() Capabilities {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.caps
}

// ApplySettings reconciles the user settings onto the bound session. Each
// effect is fault-isolated: a setting the hardware rejects is logged and
// the remaining effects are still applied.
func (c *Chain) ApplySettings(s Settings) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lastSettings = &s
	if c.session == nil {
		return
	}
	c.applyLocked(s)
}

func (c *Chain) applyLocked(s Settings) {
	if err := c.session.SetEqualizerEnabled(s.Enabled); err != nil {
		zlog.Warn().Msgf("effects: enable failed: error=%v", err)
	}

	if s.Enabled && c.caps.BandCount > 0 {
		levels := ResampleBands(s.BandLevelsMilliBel, c.caps.BandCount, c.caps.MinLevelMilliBel, c.caps.MaxLevelMilliBel)
		for band, level := range levels {
			if err := c.session.SetBandLevel(band, level); err != nil {
				zlog.Warn().Msgf("effects: band level failed: band=%d level=%d error=%v", band, level, err)
			}
		}
		if err := c.session.SetOutputGain(s.OutputGainMilliBel); err != nil {
			zlog.Warn().Msgf("effects: output gain failed: error=%v", err)
		}
	}

	if err := c.session.SetBassBoost(s.BassBoostStrength); err != nil {
		zlog.Warn().Msgf("effects: bass boost failed: error=%v", err)
	}
	if err := c.session.SetVirtualizer(s.VirtualizerStrength); err != nil {
		zlog.Warn().Msgf("effects: virtualizer failed: error=%v", err)
	}
}

// ApplyTrackLoudness applies loudness normalization for the current track's
// metadata. Best-effort like the other effects.
func (c *Chain) ApplyTrackLoudness(loudnessDb *float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		return
	}
	enabled := c.lastSettings != nil && c.lastSettings.LoudnessEnabled
	factor := LoudnessGain(loudnessDb, enabled)
	if err := c.session.SetLoudnessGain(factor); err != nil {
		zlog.Warn().Msgf("effects: loudness gain failed: factor=%.3f error=%v", factor, err)
	}
}

// SetCrossfadeDurationMs updates the crossfade duration.
func (c *Chain) SetCrossfadeDurationMs(ms int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.crossfader.SetDurationMs(ms)
}

// Crossfader returns the crossfade shaper.
func (c *Chain) Crossfader() *Crossfader {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.crossfader
}

// Release unbinds from the current session.
func (c *Chain) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session != nil {
		c.session.Release()
		c.session = nil
	}
	c.caps = Capabilities{}
}
