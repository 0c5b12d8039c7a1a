package engine

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	zlog "github.com/rs/zerolog/log"

	"resono/internal/app/broadcast"
	"resono/internal/app/effects"
	"resono/internal/app/persist"
	"resono/internal/app/queue"
	"resono/internal/app/resolver"
	"resono/internal/domain/stream"
	"resono/internal/domain/track"
	"resono/internal/infra/metrics"
	"resono/internal/infra/settings"
)

// duckFactor is the volume multiplier applied on transient focus loss with
// ducking allowed.
const duckFactor = 0.20

// snapshotDebounce bounds how often track transitions may trigger a
// persistence write on top of the periodic tickers.
const snapshotDebounce = 2 * time.Second

// Config holds state machine configuration.
type Config struct {
	MaxConsecutiveErrors    int           // Runaway skip-loop guard
	SnapshotInterval        time.Duration // Unconditional persistence ticker
	PlayingSnapshotInterval time.Duration // Extra ticker while playing
}

// Deps are the machine's collaborators.
type Deps struct {
	Queue       *queue.Engine
	Resolver    *resolver.Resolver
	Effects     *effects.Chain
	Transport   Transport
	Settings    settings.Source
	Store       *persist.Store
	Broadcaster *broadcast.Broadcaster
	Metrics     *metrics.Metrics
	Presence    []PresenceSink
	// Connectivity delivers connected(true)/disconnected(false) transitions.
	Connectivity <-chan bool
}

// Machine is the playback state machine. All state mutation happens on the
// run loop; public methods post events onto it.
type Machine struct {
	mu sync.RWMutex

	queue     *queue.Engine
	res       *resolver.Resolver
	effects   *effects.Chain
	transport Transport
	settings  settings.Source
	store     *persist.Store
	caster    *broadcast.Broadcaster
	metrics   *metrics.Metrics
	presence  []PresenceSink
	connectCh <-chan bool

	config Config
	events chan event

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	unsubscribe func()

	// Loop-owned state, mutated only while holding mu inside handle
	state             State
	waitingForNetwork bool
	recoveringStream  bool
	current           track.QueueItem
	hasTrack          bool
	playIntent        bool
	consecutiveErrors int
	playSeq           uint64
	resumePositionMs  int64

	pausedByFocusLoss bool
	ducked            bool
	volume            float64

	trackStartMs int64
	lastSnapshot time.Time
}

// NewMachine creates a playback state machine. Call Start to begin
// processing events.
func NewMachine(cfg Config, deps Deps) *Machine {
	ctx, cancel := context.WithCancel(context.Background())
	return &Machine{
		queue:     deps.Queue,
		res:       deps.Resolver,
		effects:   deps.Effects,
		transport: deps.Transport,
		settings:  deps.Settings,
		store:     deps.Store,
		caster:    deps.Broadcaster,
		metrics:   deps.Metrics,
		presence:  deps.Presence,
		connectCh: deps.Connectivity,
		config:    cfg,
		events:    make(chan event, 64),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		state:     StateIdle,
		volume:    1.0,
	}
}

// Start launches the run loop, the connectivity watcher and the settings
// subscription, and applies the initial effect settings.
func (m *Machine) Start() {
	if m.settings != nil {
		m.applyEffectSettings()
		m.unsubscribe = m.settings.Subscribe(m.onSettingChanged)
	}
	if m.connectCh != nil {
		go m.watchConnectivity()
	}
	go m.run()
}

// Close tears the machine down: outstanding async work observes the
// cancelled context and its results are discarded by the closed loop.
func (m *Machine) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
	m.cancel()
	<-m.done
	if ps, ok := m.prepareSnapshot(); ok {
		m.writeSnapshot(ps)
	}
	m.effects.Release()
	m.queue.Close()
}

// Play starts or resumes playback.
func (m *Machine) Play() {
	m.post(event{typ: evPlay})
}

// PlayQueue loads a new queue and starts playback at its start index.
func (m *Machine) PlayQueue(l queue.Load) {
	m.post(event{typ: evLoadQueue, load: &l})
}

// Pause pauses playback.
func (m *Machine) Pause() {
	m.post(event{typ: evPause})
}

// SkipNext advances to the next queue item.
func (m *Machine) SkipNext() {
	m.post(event{typ: evSkip})
}

// Stop stops playback and clears the play intent.
func (m *Machine) Stop() {
	m.post(event{typ: evStop})
}

// SeekToIndex jumps to the given queue index and plays it.
func (m *Machine) SeekToIndex(index int) {
	m.post(event{typ: evSeek, index: index})
}

// ToggleShuffle toggles queue shuffle. The anchor invariant is handled by
// the queue engine.
func (m *Machine) ToggleShuffle() {
	m.queue.ToggleShuffle()
}

// ToggleRepeat cycles the repeat mode off → all → one.
func (m *Machine) ToggleRepeat() queue.RepeatMode {
	next := (m.queue.Repeat() + 1) % 3
	m.queue.SetRepeat(next)
	return next
}

// ApplyEqSettings applies an explicit equalizer settings payload,
// bypassing the settings source.
func (m *Machine) ApplyEqSettings(s effects.Settings) {
	m.effects.ApplySettings(s)
}

// OnPlayerEnded is called by the transport when the current track finishes.
func (m *Machine) OnPlayerEnded() {
	m.post(event{typ: evPlayerEnded})
}

// OnPlayerError is called by the transport on a playback error.
func (m *Machine) OnPlayerError(err error) {
	m.post(event{typ: evPlayerError, err: err})
}

// OnFocusChanged feeds an audio-focus transition into the machine.
func (m *Machine) OnFocusChanged(f FocusEvent) {
	m.post(event{typ: evFocus, focus: f})
}

// Status returns the externally observable machine state.
func (m *Machine) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	pos := m.resumePositionMs
	if m.state == StatePlaying || m.state == StatePaused {
		pos = m.transport.PositionMs()
	}
	return Status{
		State:             m.state,
		WaitingForNetwork: m.waitingForNetwork,
		RecoveringStream:  m.recoveringStream,
		TrackID:           string(m.current.Track.ID),
		PositionMs:        pos,
		Volume:            m.volume,
		ConsecutiveErrors: m.consecutiveErrors,
	}
}

func (m *Machine) post(ev event) {
	select {
	case m.events <- ev:
	case <-m.ctx.Done():
	}
}

func (m *Machine) run() {
	defer close(m.done)

	snapTicker := time.NewTicker(m.config.SnapshotInterval)
	defer snapTicker.Stop()
	playTicker := time.NewTicker(m.config.PlayingSnapshotInterval)
	defer playTicker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case ev := <-m.events:
			m.handle(ev)
		case <-snapTicker.C:
			m.saveSnapshot()
		case <-playTicker.C:
			m.mu.RLock()
			playing := m.state == StatePlaying
			m.mu.RUnlock()
			if playing {
				m.saveSnapshot()
			}
		}
	}
}

// handle is the single dispatch point: every transition of the machine goes
// through here, on the run loop, under the state lock.
func (m *Machine) handle(ev event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	zlog.Debug().Msgf("engine: event: type=%s state=%s", ev.typ, m.state)

	switch ev.typ {
	case evPlay:
		m.handlePlayLocked()
	case evLoadQueue:
		m.handleLoadQueueLocked(*ev.load)
	case evPause:
		m.handlePauseLocked()
	case evSkip:
		m.advanceLocked()
	case evSeek:
		if item, ok := m.queue.Seek(ev.index); ok {
			m.startTrackLocked(item, 0)
		}
	case evStop:
		m.stopLocked(StateIdle)
	case evPlayerEnded:
		m.handleTrackEndedLocked()
	case evPlayerError:
		m.handlePlaybackErrorLocked(ev.err)
	case evResolved:
		m.handleResolvedLocked(ev)
	case evRecovered:
		m.handleRecoveredLocked(ev)
	case evFocus:
		m.handleFocusLocked(ev.focus)
	case evNetworkUp:
		m.handleNetworkUpLocked()
	case evNetworkDown:
		zlog.Debug().Msg("engine: connectivity lost")
	}
}

func (m *Machine) handlePlayLocked() {
	m.playIntent = true
	m.consecutiveErrors = 0

	switch m.state {
	case StatePlaying:
		return
	case StatePaused:
		if err := m.transport.Play(); err != nil {
			m.handlePlaybackErrorLocked(err)
			return
		}
		m.pausedByFocusLoss = false
		m.setStateLocked(StatePlaying)
	default:
		if m.hasTrack {
			m.startTrackLocked(m.current, m.resumePositionMs)
			return
		}
		if item, ok := m.queue.Current(); ok {
			m.startTrackLocked(item, 0)
		}
	}
}

func (m *Machine) handleLoadQueueLocked(l queue.Load) {
	m.queue.LoadQueue(l)
	m.playIntent = true
	m.consecutiveErrors = 0
	m.broadcastLocked(broadcast.Event{Type: broadcast.EventQueueChanged})

	if item, ok := m.queue.Current(); ok {
		m.startTrackLocked(item, 0)
	}
}

func (m *Machine) handlePauseLocked() {
	if m.state != StatePlaying {
		return
	}
	if err := m.transport.Pause(); err != nil {
		zlog.Warn().Msgf("engine: pause failed: %v", err)
	}
	m.playIntent = false
	m.pausedByFocusLoss = false
	m.setStateLocked(StatePaused)
}

// startTrackLocked begins async resolution for the item. A later start
// bumps the play sequence so stale resolution results are discarded.
func (m *Machine) startTrackLocked(item track.QueueItem, positionMs int64) {
	m.current = item
	m.hasTrack = true
	m.waitingForNetwork = false
	m.recoveringStream = false
	m.resumePositionMs = positionMs
	m.playSeq++
	seq := m.playSeq
	m.setStateLocked(StateBuffering)

	go func() {
		d, err := m.res.Resolve(m.ctx, item.Track.ID)
		m.post(event{typ: evResolved, seq: seq, desc: d, err: err, positionMs: positionMs})
	}()
}

func (m *Machine) handleResolvedLocked(ev event) {
	if ev.seq != m.playSeq {
		// A later start superseded this resolution
		return
	}
	if ev.err != nil {
		m.handlePlaybackErrorLocked(ev.err)
		return
	}
	m.startPreparedLocked(ev.desc, ev.positionMs)
}

// startPreparedLocked hands the resolved stream to the transport and moves
// to Playing. A successful start resets the consecutive-error counter; the
// recovery ledger is cleared only on natural track end, since a broken
// stream can start fine and fail seconds in.
func (m *Machine) startPreparedLocked(d stream.Descriptor, positionMs int64) {
	if err := m.transport.Prepare(d.URL, m.current.Track.Duration.Milliseconds()); err != nil {
		m.handlePlaybackErrorLocked(err)
		return
	}

	if err := m.effects.OnAudioSessionChanged(m.transport.AudioSessionID()); err != nil {
		zlog.Warn().Msgf("engine: effect rebind failed: %v", err)
	}
	m.effects.ApplyTrackLoudness(d.LoudnessDb)

	if positionMs > 0 {
		if err := m.transport.SeekTo(positionMs); err != nil {
			zlog.Warn().Msgf("engine: seek failed: position=%d error=%v", positionMs, err)
		}
	}
	if err := m.transport.Play(); err != nil {
		m.handlePlaybackErrorLocked(err)
		return
	}

	m.consecutiveErrors = 0
	m.trackStartMs = positionMs
	m.recoveringStream = false
	m.waitingForNetwork = false
	m.setStateLocked(StatePlaying)
	m.broadcastLocked(broadcast.Event{Type: broadcast.EventTrackChanged, TrackID: m.current.Track.ID})

	t := m.current.Track
	for _, sink := range m.presence {
		go func(s PresenceSink) {
			if err := s.NotifyNowPlaying(t, positionMs); err != nil {
				zlog.Debug().Msgf("engine: now-playing notify failed: %v", err)
			}
		}(sink)
	}
}

// handleTrackEndedLocked runs the end-of-track pipeline: presence
// notifications, the automix low-water check, a debounced snapshot, then
// advancement. The advance is posted after the continuation check so a
// freshly appended page is visible to it.
func (m *Machine) handleTrackEndedLocked() {
	if !m.hasTrack {
		return
	}

	ended := m.current
	endMs := m.transport.PositionMs()
	startMs := m.trackStartMs

	// Completing the track is the durable success that resets its
	// recovery bound
	m.res.ClearRecovery(ended.Track.ID)

	for _, sink := range m.presence {
		go func(s PresenceSink) {
			if err := s.NotifyFinished(ended.Track, startMs, endMs); err != nil {
				zlog.Debug().Msgf("engine: finished notify failed: %v", err)
			}
		}(sink)
	}

	m.snapshotDebouncedLocked()

	go func() {
		m.queue.CheckContinuation(m.ctx, ended.Track.ID)
		m.post(event{typ: evSkip})
	}()
}

// advanceLocked moves to the next queue item per the repeat mode, ending
// playback when the queue is exhausted.
func (m *Machine) advanceLocked() {
	item, ok := m.queue.Advance()
	if !ok {
		m.stopLocked(StateEnded)
		return
	}
	m.startTrackLocked(item, 0)
}

func (m *Machine) stopLocked(final State) {
	if err := m.transport.Stop(); err != nil {
		zlog.Warn().Msgf("engine: stop failed: %v", err)
	}
	m.playIntent = false
	m.waitingForNetwork = false
	m.recoveringStream = false
	m.pausedByFocusLoss = false
	m.resumePositionMs = 0
	m.setStateLocked(final)
}

// handlePlaybackErrorLocked classifies the failure and picks one of three
// paths: wait for the network, recover the stream through the bounded
// ledger, or escalate to the skip/stop policy.
func (m *Machine) handlePlaybackErrorLocked(err error) {
	kind := resolver.Classify(err)
	if m.metrics != nil {
		m.metrics.IncPlaybackError(kind.String())
	}
	zlog.Warn().Msgf("engine: playback error: track=%s kind=%s error=%v", m.current.Track.ID, kind, err)
	m.broadcastLocked(broadcast.Event{Type: broadcast.EventError, TrackID: m.current.Track.ID, Message: kind.String()})

	switch kind {
	case resolver.KindNetworkUnavailable:
		m.enterNetworkWaitLocked()
	case resolver.KindStreamExpiredOrRejected:
		m.startRecoveryLocked()
	default:
		m.applySkipStopPolicyLocked()
	}
}

func (m *Machine) enterNetworkWaitLocked() {
	if m.state == StatePlaying {
		m.resumePositionMs = m.transport.PositionMs()
		if err := m.transport.Pause(); err != nil {
			zlog.Debug().Msgf("engine: pause on network loss failed: %v", err)
		}
	}
	m.waitingForNetwork = true
	m.setStateLocked(StateBuffering)
}

// startRecoveryLocked drops the cached URL and re-resolves through the
// retry ledger, resuming at the interrupted position on success.
func (m *Machine) startRecoveryLocked() {
	if m.recoveringStream {
		return
	}
	pos := m.resumePositionMs
	if m.state == StatePlaying {
		pos = m.transport.PositionMs()
	}
	m.recoveringStream = true
	m.resumePositionMs = pos
	seq := m.playSeq
	id := m.current.Track.ID
	m.setStateLocked(StateBuffering)

	go func() {
		d, err := m.res.Recover(m.ctx, id)
		m.post(event{typ: evRecovered, seq: seq, desc: d, err: err, positionMs: pos})
	}()
}

func (m *Machine) handleRecoveredLocked(ev event) {
	if ev.seq != m.playSeq {
		return
	}
	m.recoveringStream = false

	if ev.err != nil {
		if resolver.Classify(ev.err) == resolver.KindNetworkUnavailable {
			m.enterNetworkWaitLocked()
			return
		}
		// Ledger refused or the refresh itself failed
		zlog.Warn().Msgf("engine: recovery failed: track=%s error=%v", m.current.Track.ID, ev.err)
		m.applySkipStopPolicyLocked()
		return
	}
	m.startPreparedLocked(ev.desc, ev.positionMs)
}

// applySkipStopPolicyLocked escalates a terminal track failure: auto-skip
// to the next item when enabled, bounded by the system-wide consecutive
// error cap, otherwise stop and wait for the user.
func (m *Machine) applySkipStopPolicyLocked() {
	m.consecutiveErrors++

	if m.consecutiveErrors >= m.config.MaxConsecutiveErrors {
		zlog.Error().Msgf("engine: stopping after %d consecutive errors", m.consecutiveErrors)
		m.broadcastLocked(broadcast.Event{Type: broadcast.EventError, Message: "playback stopped after repeated errors"})
		m.stopLocked(StateIdle)
		return
	}

	autoSkip := true
	if m.settings != nil {
		autoSkip = settings.GetBool(m.settings, settings.KeyAutoSkipOnError, true)
	}
	if autoSkip {
		if m.metrics != nil {
			m.metrics.IncAutoSkip()
		}
		m.advanceLocked()
		return
	}

	// Stop-and-wait policy: keep the current track so an explicit Play
	// retries it
	if err := m.transport.Stop(); err != nil {
		zlog.Debug().Msgf("engine: stop failed: %v", err)
	}
	m.playIntent = false
	m.setStateLocked(StateIdle)
}

// handleFocusLocked is the audio-focus sub-machine.
func (m *Machine) handleFocusLocked(f FocusEvent) {
	switch f {
	case FocusLoss, FocusLossTransient:
		if m.state == StatePlaying {
			if err := m.transport.Pause(); err != nil {
				zlog.Debug().Msgf("engine: focus pause failed: %v", err)
			}
			m.pausedByFocusLoss = true
			m.setStateLocked(StatePaused)
		}
	case FocusLossTransientCanDuck:
		m.ducked = true
		if err := m.transport.SetVolume(m.volume * duckFactor); err != nil {
			zlog.Debug().Msgf("engine: duck failed: %v", err)
		}
	case FocusGain, FocusGainTransient:
		if m.ducked {
			m.ducked = false
			if err := m.transport.SetVolume(m.volume); err != nil {
				zlog.Debug().Msgf("engine: volume restore failed: %v", err)
			}
		}
		if m.pausedByFocusLoss && m.playIntent {
			m.pausedByFocusLoss = false
			if err := m.transport.Play(); err != nil {
				m.handlePlaybackErrorLocked(err)
				return
			}
			m.setStateLocked(StatePlaying)
		}
	}
}

func (m *Machine) handleNetworkUpLocked() {
	if !m.waitingForNetwork {
		return
	}
	m.waitingForNetwork = false
	if m.playIntent && m.hasTrack {
		zlog.Info().Msgf("engine: network restored, resuming: track=%s position=%d", m.current.Track.ID, m.resumePositionMs)
		m.startTrackLocked(m.current, m.resumePositionMs)
	}
}

func (m *Machine) watchConnectivity() {
	for {
		select {
		case <-m.ctx.Done():
			return
		case up, ok := <-m.connectCh:
			if !ok {
				return
			}
			if up {
				m.post(event{typ: evNetworkUp})
			} else {
				m.post(event{typ: evNetworkDown})
			}
		}
	}
}

// setStateLocked updates the state and broadcasts the change.
func (m *Machine) setStateLocked(s State) {
	if m.state == s {
		return
	}
	m.state = s
	m.broadcastLocked(broadcast.Event{Type: broadcast.EventStateChanged, State: s.String(), TrackID: m.current.Track.ID})
}

func (m *Machine) broadcastLocked(ev broadcast.Event) {
	if m.caster == nil {
		return
	}
	go m.caster.Broadcast(ev)
}

// onSettingChanged reacts to settings source notifications.
func (m *Machine) onSettingChanged(key, value string) {
	switch key {
	case settings.KeyCrossfadeMs:
		ms, err := strconv.Atoi(value)
		if err != nil {
			zlog.Warn().Msgf("engine: invalid crossfade duration: %q", value)
			return
		}
		m.effects.SetCrossfadeDurationMs(ms)
	case settings.KeyEqEnabled, settings.KeyEqBandLevels, settings.KeyEqOutputGain,
		settings.KeyBassBoost, settings.KeyVirtualizer, settings.KeyLoudnessNorm:
		m.applyEffectSettings()
	}
	if m.caster != nil {
		go m.caster.Broadcast(broadcast.Event{Type: broadcast.EventSettingsChanged, Message: key})
	}
}

// applyEffectSettings reconciles the settings source onto the effects chain.
func (m *Machine) applyEffectSettings() {
	levels := parseBandLevels(m.settingValue(settings.KeyEqBandLevels))
	m.effects.ApplySettings(effects.Settings{
		Enabled:             settings.GetBool(m.settings, settings.KeyEqEnabled, false),
		BandLevelsMilliBel:  levels,
		OutputGainMilliBel:  settings.GetInt(m.settings, settings.KeyEqOutputGain, 0),
		BassBoostStrength:   settings.GetInt(m.settings, settings.KeyBassBoost, 0),
		VirtualizerStrength: settings.GetInt(m.settings, settings.KeyVirtualizer, 0),
		LoudnessEnabled:     settings.GetBool(m.settings, settings.KeyLoudnessNorm, false),
	})
	m.effects.SetCrossfadeDurationMs(settings.GetInt(m.settings, settings.KeyCrossfadeMs, 0))
}

func (m *Machine) settingValue(key string) string {
	v, _ := m.settings.Get(key)
	return v
}

// parseBandLevels parses a comma-separated milliBel list; malformed entries
// invalidate the whole value.
func parseBandLevels(s string) []int {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	levels := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			zlog.Warn().Msgf("engine: invalid eq band levels: %q", s)
			return nil
		}
		levels = append(levels, n)
	}
	return levels
}
