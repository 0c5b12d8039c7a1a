// Package settings provides the reactive user settings source.
//
// The engine treats user settings as an external key→value collaborator:
// it holds the last-seen value for each key and reacts to change
// notifications rather than polling.
package settings

import (
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"
	zlog "github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Well-known setting keys.
const (
	KeyCrossfadeMs     = "crossfade_ms"
	KeyEqEnabled       = "eq_enabled"
	KeyEqBandLevels    = "eq_band_levels" // comma-separated milliBel values
	KeyEqOutputGain    = "eq_output_gain"
	KeyBassBoost       = "bass_boost"
	KeyVirtualizer     = "virtualizer"
	KeyLoudnessNorm    = "loudness_normalization"
	KeyHideExplicit    = "hide_explicit"
	KeyHideVideo       = "hide_video"
	KeyAutoSkipOnError = "auto_skip_on_error"
	KeyPersistentQueue = "persistent_queue"
)

// Source is a reactive key→value settings collaborator.
type Source interface {
	// Get returns the raw value for a key.
	Get(key string) (string, bool)
	// Subscribe registers a callback invoked on every key change.
	// The returned function removes the subscription.
	Subscribe(fn func(key, value string)) func()
}

// GetBool reads a boolean setting with a default.
func GetBool(s Source, key string, def bool) bool {
	v, ok := s.Get(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// GetInt reads an integer setting with a default.
func GetInt(s Source, key string, def int) int {
	v, ok := s.Get(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// MemorySource is an in-memory Source, used by tests and as the base for
// the file-backed source.
type MemorySource struct {
	mu     sync.RWMutex
	values map[string]string

	subMu  sync.Mutex
	subs   map[int]func(key, value string)
	nextID int
}

// NewMemorySource creates a memory source with the given initial values.
func NewMemorySource(values map[string]string) *MemorySource {
	v := make(map[string]string, len(values))
	for k, val := range values {
		v[k] = val
	}
	return &MemorySource{
		values: v,
		subs:   make(map[int]func(key, value string)),
	}
}

// Get implements Source.
func (s *MemorySource) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// Subscribe implements Source.
func (s *MemorySource) Subscribe(fn func(key, value string)) func() {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.subs, id)
	}
}

// Set updates a key and notifies subscribers if the value changed.
func (s *MemorySource) Set(key, value string) {
	s.mu.Lock()
	old, existed := s.values[key]
	s.values[key] = value
	s.mu.Unlock()

	if existed && old == value {
		return
	}
	s.notify(key, value)
}

func (s *MemorySource) notify(key, value string) {
	s.subMu.Lock()
	fns := make([]func(key, value string), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(key, value)
	}
}

// FileSource is a Source backed by a YAML file, reloaded on change via
// fsnotify.
type FileSource struct {
	*MemorySource

	path    string
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewFileSource loads the settings file and starts watching it for changes.
func NewFileSource(path string) (*FileSource, error) {
	values, err := loadFile(path)
	if err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create settings watcher")
	}
	if err := watcher.Add(path); err != nil {
		_ = watcher.Close()
		return nil, errors.Wrap(err, "failed to watch settings file")
	}

	s := &FileSource{
		MemorySource: NewMemorySource(values),
		path:         path,
		watcher:      watcher,
		done:         make(chan struct{}),
	}
	go s.watch()
	return s, nil
}

// Close stops the file watcher.
func (s *FileSource) Close() error {
	close(s.done)
	return s.watcher.Close()
}

func (s *FileSource) watch() {
	for {
		select {
		case <-s.done:
			return
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			s.reload()
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			zlog.Warn().Msgf("settings: watcher error: %v", err)
		}
	}
}

func (s *FileSource) reload() {
	values, err := loadFile(s.path)
	if err != nil {
		zlog.Warn().Msgf("settings: reload failed, keeping last-seen values: %v", err)
		return
	}
	for k, v := range values {
		s.Set(k, v)
	}
}

// loadFile parses the settings YAML into flat string values.
func loadFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read settings file")
	}

	raw := make(map[string]any)
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, "failed to parse settings file")
	}

	values := make(map[string]string, len(raw))
	for k, v := range raw {
		values[k] = fmt.Sprintf("%v", v)
	}
	return values, nil
}
