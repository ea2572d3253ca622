// Package types provides shared type definitions used across the gateway.
package types

// Phase is the assistant's conversational state. Exactly one phase is
// active at a time; transitions go through the conversation controller.
type Phase string

// Conversational phases.
const (
	PhaseIdle      Phase = "IDLE"
	PhaseListening Phase = "LISTENING"
	PhaseThinking  Phase = "THINKING"
	PhaseSpeaking  Phase = "SPEAKING"
)

// Action outcomes reported by the backend for a turn.
const (
	OutcomeSuccess = "SUCCESS"
	OutcomeError   = "ERROR"
	OutcomeNeutral = "NEUTRAL"
)

// Command timing tags. AFTER_TTS commands are held until the spoken
// reply finishes playing.
const (
	TimingImmediate = "IMMEDIATE"
	TimingAfterTTS  = "AFTER_TTS"
)

// Platform identifiers.
const (
	PlatformSpotify    = "spotify"
	PlatformSoundCloud = "soundcloud"
)

// Command is a backend-decided action, optionally deferred until after
// speech playback.
type Command struct {
	Type   string         `json:"type"`
	Params map[string]any `json:"params,omitempty"`
	Timing string         `json:"timing,omitempty"`
}

// TrackInfo is ephemeral display data for a played song or playlist.
type TrackInfo struct {
	Title        string `json:"title"`
	Subtitle     string `json:"subtitle"`
	Type         string `json:"type"` // "song" or "playlist"
	Image        string `json:"image,omitempty"`
	PermalinkURL string `json:"permalink_url,omitempty"`
}

// ActionResult is one heterogeneous result object from a turn's
// action_data list. At most one entry carries track info.
type ActionResult struct {
	TrackInfo *TrackInfo `json:"track_info,omitempty"`
}

// TurnResponse is the unit exchanged per conversational turn.
type TurnResponse struct {
	SessionID     string         `json:"session_id,omitempty"`
	ActionOutcome string         `json:"action_outcome"`
	Reply         string         `json:"reply"`
	AudioBase64   string         `json:"audio_base64,omitempty"`
	ActionData    []ActionResult `json:"action_data,omitempty"`
	Platform      string         `json:"platform,omitempty"`
	Command       *Command       `json:"command,omitempty"`
	Result        any            `json:"result,omitempty"` // Raw result for direct actions (e.g. get_volume)
}

// FirstTrackInfo returns the first non-empty track_info entry from
// action_data, or nil if the turn carried none.
func (r *TurnResponse) FirstTrackInfo() *TrackInfo {
	for _, a := range r.ActionData {
		if a.TrackInfo != nil && a.TrackInfo.Title != "" {
			return a.TrackInfo
		}
	}
	return nil
}

// PlatformStatus is the backend's connection/device report for a
// platform account.
type PlatformStatus struct {
	IsConnected     bool   `json:"is_connected"`
	HasActiveDevice *bool  `json:"has_active_device,omitempty"`
	AccountID       int64  `json:"account_id,omitempty"`
	UserID          string `json:"user_id,omitempty"`
	Reason          string `json:"reason,omitempty"`
}

// VersionInfo contains version and update information for the frontend.
type VersionInfo struct {
	Current     string `json:"current"`              // Current version
	Latest      string `json:"latest,omitempty"`     // Latest available version
	UpdateAvail bool   `json:"update_available"`     // Update is available
	Commit      string `json:"commit,omitempty"`     // Git commit hash
	BuildTime   string `json:"build_time,omitempty"` // Build timestamp
}

// WSStateResponse is sent to clients whenever session state changes and
// periodically as a heartbeat.
type WSStateResponse struct {
	Type           string      `json:"type"` // "state"
	Phase          Phase       `json:"phase"`
	Platform       string      `json:"platform"`
	AccountID      int64       `json:"account_id,omitempty"`
	IntroSeen      bool        `json:"intro_seen"`
	DeviceWarning  bool        `json:"device_warning"`
	NowPlaying     *TrackInfo  `json:"now_playing,omitempty"`
	ShowWidget     bool        `json:"show_widget"`
	WidgetTrackURL string      `json:"widget_track_url,omitempty"`
	Version        VersionInfo `json:"version"`
}

// WSLevelResponse is sent to clients with live loudness updates.
type WSLevelResponse struct {
	Type  string  `json:"type"`  // "level"
	Level float64 `json:"level"` // Normalized loudness in [0,1]
}

// WSToastResponse is an ephemeral user-visible notification.
type WSToastResponse struct {
	Type    string `json:"type"` // "toast"
	ID      string `json:"id"`
	Message string `json:"message"`
	Level   string `json:"level"` // "info" or "error"
}

// WSWidgetCommand asks the browser page hosting the embed widget to
// perform a widget operation.
type WSWidgetCommand struct {
	Type   string `json:"type"`             // "widget/set-volume" or "widget/get-volume"
	ID     string `json:"id,omitempty"`     // Correlation ID for get-volume
	Volume int    `json:"volume,omitempty"` // Target volume for set-volume
}
