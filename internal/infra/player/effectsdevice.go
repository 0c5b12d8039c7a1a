package player

import (
	"sync"

	zlog "github.com/rs/zerolog/log"

	"resono/internal/app/effects"
)

// SoftwareDevice is the effect device backing the headless transport. It
// exposes a five-band equalizer with the usual Android level range and
// applies every setting in software.
type SoftwareDevice struct{}

// NewSoftwareDevice creates a software effects device.
func NewSoftwareDevice() *SoftwareDevice {
	return &SoftwareDevice{}
}

// Open binds a new software effect session to the audio session.
func (d *SoftwareDevice) Open(sessionID int) (effects.Session, error) {
	zlog.Debug().Msgf("Opening software effect session: session_id=%d", sessionID)
	return &softwareSession{
		sessionID:  sessionID,
		bandLevels: make([]int, 5),
	}, nil
}

type softwareSession struct {
	mu sync.Mutex

	sessionID   int
	eqEnabled   bool
	bandLevels  []int
	outputGain  int
	bassBoost   int
	virtualizer int
	loudness    float64
}

func (s *softwareSession) Capabilities() (effects.Capabilities, error) {
	return effects.Capabilities{
		BandCount:        len(s.bandLevels),
		MinLevelMilliBel: -1500,
		MaxLevelMilliBel: 1500,
		CenterFreqsHz:    []int{60, 230, 910, 3600, 14000},
	}, nil
}

func (s *softwareSession) SetEqualizerEnabled(enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.eqEnabled = enabled
	return nil
}

func (s *softwareSession) SetBandLevel(band, levelMilliBel int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if band < 0 || band >= len(s.bandLevels) {
		return nil
	}
	s.bandLevels[band] = levelMilliBel
	return nil
}

func (s *softwareSession) SetOutputGain(milliBel int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outputGain = milliBel
	return nil
}

func (s *softwareSession) SetBassBoost(strength int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bassBoost = strength
	return nil
}

func (s *softwareSession) SetVirtualizer(strength int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.virtualizer = strength
	return nil
}

func (s *softwareSession) SetLoudnessGain(factor float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loudness = factor
	return nil
}

func (s *softwareSession) Release() {
	zlog.Debug().Msgf("Releasing software effect session: session_id=%d", s.sessionID)
}
