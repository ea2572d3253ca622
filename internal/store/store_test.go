package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/samlabs/sam-gateway/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "state.json"))
}

func TestDefaults(t *testing.T) {
	s := newTestStore(t)

	assert.Equal(t, types.PhaseIdle, s.Phase())
	assert.Zero(t, s.AudioLevel())
	assert.False(t, s.IntroSeen())

	platform, account := s.Identity()
	assert.Equal(t, DefaultPlatform, platform)
	assert.Zero(t, account)
}

func TestIdentityPersistsAcrossRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")

	s := New(path)
	require.NoError(t, s.SetIdentity(types.PlatformSoundCloud, 42))
	s.SetPhase(types.PhaseSpeaking)
	s.SetIntroSeen(true)

	restored := New(path)
	require.NoError(t, restored.Load())

	platform, account := restored.Identity()
	assert.Equal(t, types.PlatformSoundCloud, platform)
	assert.Equal(t, int64(42), account)

	// Only the identity subset survives a restart.
	assert.Equal(t, types.PhaseIdle, restored.Phase())
	assert.False(t, restored.IntroSeen())
}

func TestLoadMissingFileIsNotAnError(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Load())
}

func TestLoadRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	s := New(path)
	assert.Error(t, s.Load())
}

func TestAudioLevelClamped(t *testing.T) {
	s := newTestStore(t)

	s.SetAudioLevel(1.7)
	assert.Equal(t, 1.0, s.AudioLevel())

	s.SetAudioLevel(-0.3)
	assert.Equal(t, 0.0, s.AudioLevel())
}

func TestUpdatesSignalCoalesces(t *testing.T) {
	s := newTestStore(t)

	s.SetPhase(types.PhaseListening)
	s.SetPhase(types.PhaseThinking)
	s.Touch()

	// Many writes collapse into a single pending notification.
	select {
	case <-s.Updates():
	default:
		t.Fatal("expected a pending update signal")
	}
	select {
	case <-s.Updates():
		t.Fatal("expected signal to be coalesced")
	default:
	}
}

func TestAudioLevelDoesNotSignal(t *testing.T) {
	s := newTestStore(t)

	s.SetAudioLevel(0.5)
	select {
	case <-s.Updates():
		t.Fatal("level writes must not signal watchers")
	default:
	}
}
