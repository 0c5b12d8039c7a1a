package settings

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorySource_GetSet(t *testing.T) {
	s := NewMemorySource(map[string]string{KeyCrossfadeMs: "3000"})

	v, ok := s.Get(KeyCrossfadeMs)
	assert.True(t, ok)
	assert.Equal(t, "3000", v)

	_, ok = s.Get(KeyHideExplicit)
	assert.False(t, ok)

	assert.Equal(t, 3000, GetInt(s, KeyCrossfadeMs, 0))
	assert.Equal(t, 7, GetInt(s, "missing", 7))
	assert.True(t, GetBool(s, "missing", true))
}

func TestMemorySource_SubscribeNotifiesOnChange(t *testing.T) {
	s := NewMemorySource(nil)

	var gotKey, gotValue string
	calls := 0
	unsub := s.Subscribe(func(key, value string) {
		gotKey, gotValue = key, value
		calls++
	})

	s.Set(KeyHideExplicit, "true")
	assert.Equal(t, KeyHideExplicit, gotKey)
	assert.Equal(t, "true", gotValue)
	assert.Equal(t, 1, calls)

	// Same value does not re-notify
	s.Set(KeyHideExplicit, "true")
	assert.Equal(t, 1, calls)

	unsub()
	s.Set(KeyHideExplicit, "false")
	assert.Equal(t, 1, calls)
}

func TestFileSource_LoadAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("crossfade_ms: 2000\nhide_explicit: false\n"), 0644))

	s, err := NewFileSource(path)
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, 2000, GetInt(s, KeyCrossfadeMs, 0))
	assert.False(t, GetBool(s, KeyHideExplicit, true))

	changed := make(chan string, 4)
	s.Subscribe(func(key, value string) {
		changed <- key + "=" + value
	})

	require.NoError(t, os.WriteFile(path, []byte("crossfade_ms: 5000\nhide_explicit: false\n"), 0644))

	select {
	case got := <-changed:
		assert.Equal(t, "crossfade_ms=5000", got)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for settings change notification")
	}
	assert.Equal(t, 5000, GetInt(s, KeyCrossfadeMs, 0))
}
