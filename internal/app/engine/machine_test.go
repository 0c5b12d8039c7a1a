package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resono/internal/app/effects"
	"resono/internal/app/filter"
	"resono/internal/app/persist"
	"resono/internal/app/queue"
	"resono/internal/app/resolver"
	"resono/internal/domain/stream"
	"resono/internal/domain/track"
	"resono/internal/infra/blob"
	"resono/internal/infra/settings"
)

// nullSession accepts every effect setting.
type nullSession struct{}

func (nullSession) Capabilities() (effects.Capabilities, error) {
	return effects.Capabilities{BandCount: 5, MinLevelMilliBel: -1500, MaxLevelMilliBel: 1500}, nil
}
func (nullSession) SetEqualizerEnabled(bool) error { return nil }
func (nullSession) SetBandLevel(int, int) error    { return nil }
func (nullSession) SetOutputGain(int) error        { return nil }
func (nullSession) SetBassBoost(int) error         { return nil }
func (nullSession) SetVirtualizer(int) error       { return nil }
func (nullSession) SetLoudnessGain(float64) error  { return nil }
func (nullSession) Release()                       {}

type nullDevice struct{}

func (nullDevice) Open(int) (effects.Session, error) { return nullSession{}, nil }

func newTestEffects() *effects.Chain {
	return effects.NewChain(nullDevice{}, 44100, 2)
}

// fakeTransport records pipeline calls.
type fakeTransport struct {
	mu       sync.Mutex
	prepared []string
	seeks    []int64
	volume   float64
	position int64
	playing  bool
	stopped  bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{volume: 1.0}
}

func (t *fakeTransport) Prepare(url string, _ int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.prepared = append(t.prepared, url)
	return nil
}

func (t *fakeTransport) Play() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.playing = true
	t.stopped = false
	return nil
}

func (t *fakeTransport) Pause() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.playing = false
	return nil
}

func (t *fakeTransport) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.playing = false
	t.stopped = true
	return nil
}

func (t *fakeTransport) SeekTo(positionMs int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seeks = append(t.seeks, positionMs)
	t.position = positionMs
	return nil
}

func (t *fakeTransport) SetVolume(v float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.volume = v
	return nil
}

func (t *fakeTransport) PositionMs() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.position
}

func (t *fakeTransport) AudioSessionID() int { return 1 }

func (t *fakeTransport) preparedCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.prepared)
}

func (t *fakeTransport) lastPrepared() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.prepared) == 0 {
		return ""
	}
	return t.prepared[len(t.prepared)-1]
}

func (t *fakeTransport) currentVolume() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.volume
}

func (t *fakeTransport) setPosition(ms int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.position = ms
}

// fakeCatalog serves descriptors; individual tracks can be made to fail.
type fakeCatalog struct {
	mu       sync.Mutex
	calls    int
	failWith error
	failN    int // fail this many calls, then succeed
}

func (f *fakeCatalog) GetPlaybackDescriptor(_ context.Context, id track.ID, _ stream.Quality, _ []stream.Codec) (*stream.Descriptor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failWith != nil && (f.failN == 0 || f.calls <= f.failN) {
		return nil, f.failWith
	}
	return &stream.Descriptor{
		TrackID:   id,
		URL:       fmt.Sprintf("https://cdn.example/%s?n=%d", id, f.calls),
		Codec:     stream.CodecOpus,
		ExpiresAt: time.Now().Add(time.Hour),
	}, nil
}

func (f *fakeCatalog) GetContinuation(context.Context, track.ID, map[track.ID]bool, int) ([]track.Track, error) {
	return nil, nil
}

func (f *fakeCatalog) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeMeta is a no-op metadata store.
type fakeMeta struct{}

func (fakeMeta) Get(context.Context, track.ID) (*track.Metadata, error) { return nil, nil }
func (fakeMeta) Upsert(context.Context, track.Metadata) error           { return nil }
func (fakeMeta) UpsertFormat(context.Context, stream.FormatRecord) error {
	return nil
}

// netErr satisfies net.Error for network classification.
type netErr struct{}

func (netErr) Error() string   { return "network unreachable" }
func (netErr) Timeout() bool   { return true }
func (netErr) Temporary() bool { return true }

func makeItems(ids ...string) []track.QueueItem {
	items := make([]track.QueueItem, 0, len(ids))
	for _, id := range ids {
		items = append(items, track.QueueItem{
			Track:   track.Track{ID: track.ID(id), Title: id, Duration: 3 * time.Minute},
			Source:  track.SourceUser,
			AddedAt: time.Now(),
		})
	}
	return items
}

type testRig struct {
	machine   *Machine
	transport *fakeTransport
	catalog   *fakeCatalog
	settings  *settings.MemorySource
	queue     *queue.Engine
	store     *persist.Store
	connectCh chan bool
}

func newTestRig(t *testing.T, catalog *fakeCatalog) *testRig {
	t.Helper()

	res := resolver.New(catalog, fakeMeta{}, stream.DeviceCaps{}, resolver.Config{
		Quality:          stream.QualityHigh,
		RecoveryWindow:   45 * time.Second,
		MaxRecoveryTries: 2,
	}, nil)

	q := queue.NewEngine(queue.Config{
		WindowBefore:    20,
		WindowAfter:     50,
		SettleDelay:     10 * time.Millisecond,
		LowWaterPaged:   5,
		LowWaterNoPages: 3,
	}, filter.NewChain(), nil, res)

	src := settings.NewMemorySource(map[string]string{
		settings.KeyAutoSkipOnError: "true",
		settings.KeyPersistentQueue: "false",
	})

	transport := newFakeTransport()
	connectCh := make(chan bool, 4)
	store := persist.NewStore(blob.NewMemoryStore())

	m := NewMachine(Config{
		MaxConsecutiveErrors:    5,
		SnapshotInterval:        time.Hour,
		PlayingSnapshotInterval: time.Hour,
	}, Deps{
		Queue:        q,
		Resolver:     res,
		Effects:      newTestEffects(),
		Transport:    transport,
		Settings:     src,
		Store:        store,
		Connectivity: connectCh,
	})
	m.Start()
	t.Cleanup(m.Close)

	return &testRig{
		machine:   m,
		transport: transport,
		catalog:   catalog,
		settings:  src,
		queue:     q,
		store:     store,
		connectCh: connectCh,
	}
}

func waitForState(t *testing.T, m *Machine, s State) {
	t.Helper()
	require.Eventually(t, func() bool {
		return m.Status().State == s
	}, 2*time.Second, 5*time.Millisecond, "expected state %s, got %s", s, m.Status().State)
}

func TestPlayQueueStartsPlayback(t *testing.T) {
	rig := newTestRig(t, &fakeCatalog{})

	rig.machine.PlayQueue(queue.Load{Items: makeItems("a", "b", "c")})
	waitForState(t, rig.machine, StatePlaying)

	st := rig.machine.Status()
	assert.Equal(t, "a", st.TrackID)
	assert.Contains(t, rig.transport.lastPrepared(), "https://cdn.example/a")
	assert.Zero(t, st.ConsecutiveErrors)
}

func TestPauseAndResume(t *testing.T) {
	rig := newTestRig(t, &fakeCatalog{})
	rig.machine.PlayQueue(queue.Load{Items: makeItems("a")})
	waitForState(t, rig.machine, StatePlaying)

	rig.machine.Pause()
	waitForState(t, rig.machine, StatePaused)

	rig.machine.Play()
	waitForState(t, rig.machine, StatePlaying)
	// Resume does not re-resolve
	assert.Equal(t, 1, rig.catalog.callCount())
}

func TestSkipAdvancesToNextTrack(t *testing.T) {
	rig := newTestRig(t, &fakeCatalog{})
	rig.machine.PlayQueue(queue.Load{Items: makeItems("a", "b")})
	waitForState(t, rig.machine, StatePlaying)

	rig.machine.SkipNext()
	require.Eventually(t, func() bool {
		return rig.machine.Status().TrackID == "b" && rig.machine.Status().State == StatePlaying
	}, 2*time.Second, 5*time.Millisecond)
}

func TestTrackEndAdvancesAndEndsQueue(t *testing.T) {
	rig := newTestRig(t, &fakeCatalog{})
	rig.machine.PlayQueue(queue.Load{Items: makeItems("a", "b")})
	waitForState(t, rig.machine, StatePlaying)

	rig.machine.OnPlayerEnded()
	require.Eventually(t, func() bool {
		st := rig.machine.Status()
		return st.TrackID == "b" && st.State == StatePlaying
	}, 2*time.Second, 5*time.Millisecond)

	rig.machine.OnPlayerEnded()
	waitForState(t, rig.machine, StateEnded)
}

func TestExpiredStreamIsRecoveredAtSamePosition(t *testing.T) {
	rig := newTestRig(t, &fakeCatalog{})
	rig.machine.PlayQueue(queue.Load{Items: makeItems("a")})
	waitForState(t, rig.machine, StatePlaying)
	require.Equal(t, 1, rig.catalog.callCount())

	rig.transport.setPosition(61500)
	rig.machine.OnPlayerError(&resolver.HTTPError{Status: 403})

	// Cache is dropped, a fresh URL is prepared, playback resumes at the
	// interrupted position
	require.Eventually(t, func() bool {
		return rig.transport.preparedCount() == 2 && rig.machine.Status().State == StatePlaying
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, rig.catalog.callCount())
	assert.Contains(t, rig.transport.seeks, int64(61500))
	assert.False(t, rig.machine.Status().RecoveringStream)
}

func TestExhaustedRecoverySkipsToNextTrack(t *testing.T) {
	rig := newTestRig(t, &fakeCatalog{})
	rig.machine.PlayQueue(queue.Load{Items: makeItems("a", "b")})
	waitForState(t, rig.machine, StatePlaying)

	// Two recoveries within the window are allowed, the third is refused
	// and escalates to auto-skip
	for i := 0; i < 3; i++ {
		rig.machine.OnPlayerError(&resolver.HTTPError{Status: 403})
		require.Eventually(t, func() bool {
			st := rig.machine.Status()
			return st.State == StatePlaying && !st.RecoveringStream
		}, 2*time.Second, 5*time.Millisecond)
	}

	assert.Equal(t, "b", rig.machine.Status().TrackID)
}

func TestRunawayErrorLoopStopsEngine(t *testing.T) {
	catalog := &fakeCatalog{failWith: errors.New("decoder exploded")}
	rig := newTestRig(t, catalog)

	ids := make([]string, 10)
	for i := range ids {
		ids[i] = fmt.Sprintf("t-%d", i)
	}
	rig.machine.PlayQueue(queue.Load{Items: makeItems(ids...)})

	// Unknown errors auto-skip until the consecutive-error cap stops the
	// engine entirely
	require.Eventually(t, func() bool {
		return rig.catalog.callCount() == 5 && rig.machine.Status().State == StateIdle
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 5, rig.machine.Status().ConsecutiveErrors)

	// The engine stays stopped until an explicit user action
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 5, rig.catalog.callCount())
}

func TestStopAndWaitPolicy(t *testing.T) {
	catalog := &fakeCatalog{failWith: errors.New("decoder exploded")}
	rig := newTestRig(t, catalog)
	rig.settings.Set(settings.KeyAutoSkipOnError, "false")

	rig.machine.PlayQueue(queue.Load{Items: makeItems("a", "b")})

	// One attempt, no auto-skip
	require.Eventually(t, func() bool {
		return rig.catalog.callCount() == 1 && rig.machine.Status().State == StateIdle
	}, 2*time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, rig.catalog.callCount())
	assert.Equal(t, "a", rig.machine.Status().TrackID)
}

func TestNetworkLossWaitsAndResumes(t *testing.T) {
	catalog := &fakeCatalog{failWith: netErr{}, failN: 1}
	rig := newTestRig(t, catalog)

	rig.machine.PlayQueue(queue.Load{Items: makeItems("a")})

	require.Eventually(t, func() bool {
		return rig.machine.Status().WaitingForNetwork
	}, 2*time.Second, 5*time.Millisecond)

	rig.connectCh <- true

	waitForState(t, rig.machine, StatePlaying)
	assert.False(t, rig.machine.Status().WaitingForNetwork)
	assert.Equal(t, 2, rig.catalog.callCount())
}

func TestFocusDuckAndRestore(t *testing.T) {
	rig := newTestRig(t, &fakeCatalog{})
	rig.machine.PlayQueue(queue.Load{Items: makeItems("a")})
	waitForState(t, rig.machine, StatePlaying)

	rig.machine.OnFocusChanged(FocusLossTransientCanDuck)
	require.Eventually(t, func() bool {
		return rig.transport.currentVolume() == 0.20
	}, 2*time.Second, 5*time.Millisecond)
	// Ducking does not pause
	assert.Equal(t, StatePlaying, rig.machine.Status().State)

	rig.machine.OnFocusChanged(FocusGain)
	require.Eventually(t, func() bool {
		return rig.transport.currentVolume() == 1.0
	}, 2*time.Second, 5*time.Millisecond)
}

func TestFocusLossPausesAndGainResumes(t *testing.T) {
	rig := newTestRig(t, &fakeCatalog{})
	rig.machine.PlayQueue(queue.Load{Items: makeItems("a")})
	waitForState(t, rig.machine, StatePlaying)

	rig.machine.OnFocusChanged(FocusLossTransient)
	waitForState(t, rig.machine, StatePaused)

	rig.machine.OnFocusChanged(FocusGain)
	waitForState(t, rig.machine, StatePlaying)
}

func TestFocusGainDoesNotResumeUserPause(t *testing.T) {
	rig := newTestRig(t, &fakeCatalog{})
	rig.machine.PlayQueue(queue.Load{Items: makeItems("a")})
	waitForState(t, rig.machine, StatePlaying)

	rig.machine.Pause()
	waitForState(t, rig.machine, StatePaused)

	rig.machine.OnFocusChanged(FocusGain)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, StatePaused, rig.machine.Status().State)
}

func TestSnapshotRestoreAcrossMachines(t *testing.T) {
	blobs := blob.NewMemoryStore()
	store := persist.NewStore(blobs)
	require.NoError(t, store.SaveQueue(persist.QueueSnapshot{
		Items:   makeItems("a", "b", "c"),
		Current: 1,
		Repeat:  int(queue.RepeatAll),
	}))
	require.NoError(t, store.SavePlayer(persist.PlayerSnapshot{
		TrackID:    "b",
		PositionMs: 42000,
		Volume:     0.8,
	}))

	rig := newTestRig(t, &fakeCatalog{})
	restored := NewMachine(Config{
		MaxConsecutiveErrors:    5,
		SnapshotInterval:        time.Hour,
		PlayingSnapshotInterval: time.Hour,
	}, Deps{
		Queue:     rig.queue,
		Resolver:  resolver.New(rig.catalog, fakeMeta{}, stream.DeviceCaps{}, resolver.Config{RecoveryWindow: time.Minute, MaxRecoveryTries: 2}, nil),
		Effects:   newTestEffects(),
		Transport: newFakeTransport(),
		Settings:  settings.NewMemorySource(nil),
		Store:     persist.NewStore(blobs),
	})
	restored.RestoreFromSnapshots()

	st := restored.Status()
	assert.Equal(t, "b", st.TrackID)
	assert.Equal(t, int64(42000), st.PositionMs)
	assert.Equal(t, queue.RepeatAll, rig.queue.Repeat())
	assert.Equal(t, StateIdle, st.State)
}

func TestNilSettingsDefaultsToAutoSkip(t *testing.T) {
	catalog := &fakeCatalog{}
	res := resolver.New(catalog, fakeMeta{}, stream.DeviceCaps{}, resolver.Config{
		Quality:          stream.QualityHigh,
		RecoveryWindow:   45 * time.Second,
		MaxRecoveryTries: 2,
	}, nil)
	q := queue.NewEngine(queue.Config{
		WindowBefore:  20,
		WindowAfter:   50,
		SettleDelay:   10 * time.Millisecond,
		LowWaterPaged: 5,
	}, filter.NewChain(), nil, res)
	transport := newFakeTransport()

	// No settings source wired at all
	m := NewMachine(Config{
		MaxConsecutiveErrors:    5,
		SnapshotInterval:        time.Hour,
		PlayingSnapshotInterval: time.Hour,
	}, Deps{
		Queue:     q,
		Resolver:  res,
		Effects:   newTestEffects(),
		Transport: transport,
	})
	m.Start()
	t.Cleanup(m.Close)

	m.PlayQueue(queue.Load{Items: makeItems("a", "b")})
	waitForState(t, m, StatePlaying)

	// A terminal error falls back to the default auto-skip policy
	m.OnPlayerError(errors.New("decoder exploded"))
	require.Eventually(t, func() bool {
		st := m.Status()
		return st.TrackID == "b" && st.State == StatePlaying
	}, 2*time.Second, 5*time.Millisecond)
}
