// Package store holds the process-wide session state shared between the
// conversation controller and the web interface. It is the only shared
// mutable state in the gateway; each field has a single writer.
package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/samlabs/sam-gateway/internal/types"
	"github.com/samlabs/sam-gateway/internal/util"
)

// DefaultPlatform is used until a platform-connection flow selects one.
const DefaultPlatform = types.PlatformSpotify

// persistedState is the subset of session state that survives restarts.
// Phase, audio level and intro state always reset on startup.
type persistedState struct {
	ActivePlatform string `json:"active_platform"`
	AccountID      int64  `json:"account_id,omitempty"`
}

// Store is the session state container. It is safe for concurrent use.
type Store struct {
	mu sync.RWMutex

	phase          types.Phase
	audioLevel     float64
	activePlatform string
	accountID      int64
	introSeen      bool

	filePath string
	updates  chan struct{}
}

// New creates a Store with default values, persisting the identity
// subset to filePath.
func New(filePath string) *Store {
	return &Store{
		phase:          types.PhaseIdle,
		activePlatform: DefaultPlatform,
		filePath:       filePath,
		updates:        make(chan struct{}, 1),
	}
}

// Load restores the persisted identity subset from disk. A missing
// state file is not an error; a fresh session starts with defaults.
func (s *Store) Load() error {
	data, err := os.ReadFile(s.filePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return util.WrapError("read session state", err)
	}

	var p persistedState
	if err := json.Unmarshal(data, &p); err != nil {
		return util.WrapError("parse session state", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ActivePlatform != "" {
		s.activePlatform = p.ActivePlatform
	}
	s.accountID = p.AccountID
	return nil
}

// saveLocked persists the identity subset. Caller must hold s.mu.
func (s *Store) saveLocked() error {
	data, err := json.MarshalIndent(persistedState{
		ActivePlatform: s.activePlatform,
		AccountID:      s.accountID,
	}, "", "  ")
	if err != nil {
		return util.WrapError("marshal session state", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.filePath), 0o755); err != nil {
		return util.WrapError("create state directory", err)
	}

	if err := os.WriteFile(s.filePath, data, 0o600); err != nil {
		return util.WrapError("write session state", err)
	}

	return nil
}

// Updates returns a coalesced change signal. Receivers get at most one
// pending notification regardless of how many writes occurred.
func (s *Store) Updates() <-chan struct{} {
	return s.updates
}

// Touch signals watchers that derived session state changed without
// modifying a store field.
func (s *Store) Touch() {
	s.signal()
}

// signal notifies watchers of a state change without blocking.
func (s *Store) signal() {
	select {
	case s.updates <- struct{}{}:
	default:
	}
}

// SetPhase updates the conversational phase. Only the conversation
// controller writes this field.
func (s *Store) SetPhase(p types.Phase) {
	s.mu.Lock()
	s.phase = p
	s.mu.Unlock()
	s.signal()
}

// Phase returns the current conversational phase.
func (s *Store) Phase() types.Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase
}

// SetAudioLevel publishes the instantaneous loudness in [0,1]. The
// level is a live gauge sampled by the web server on its own tick, so
// writes do not signal watchers.
func (s *Store) SetAudioLevel(level float64) {
	if level < 0 {
		level = 0
	} else if level > 1 {
		level = 1
	}
	s.mu.Lock()
	s.audioLevel = level
	s.mu.Unlock()
}

// AudioLevel returns the last published loudness.
func (s *Store) AudioLevel() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.audioLevel
}

// SetIdentity records the selected platform and account and persists
// them across restarts.
func (s *Store) SetIdentity(platform string, accountID int64) error {
	s.mu.Lock()
	s.activePlatform = platform
	s.accountID = accountID
	err := s.saveLocked()
	s.mu.Unlock()
	s.signal()
	return err
}

// Identity returns the active platform and account ID. An account ID of
// zero means no account is known.
func (s *Store) Identity() (platform string, accountID int64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activePlatform, s.accountID
}

// SetIntroSeen marks the landing intro as seen for this run.
func (s *Store) SetIntroSeen(seen bool) {
	s.mu.Lock()
	s.introSeen = seen
	s.mu.Unlock()
	s.signal()
}

// IntroSeen reports whether the landing intro was seen this run.
func (s *Store) IntroSeen() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.introSeen
}
