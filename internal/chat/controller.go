// Package chat implements the conversation controller, the heart of
// the gateway. It owns the turn lifecycle: capturing voice or text,
// exchanging it with the assistant backend, sequencing synthesized
// speech with audio ducking, and resolving deferred playback commands.
package chat

import (
	"context"
	"encoding/base64"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/samlabs/sam-gateway/internal/api"
	"github.com/samlabs/sam-gateway/internal/notify"
	"github.com/samlabs/sam-gateway/internal/store"
	"github.com/samlabs/sam-gateway/internal/types"
	"github.com/samlabs/sam-gateway/internal/util"
)

// User-facing failure messages. The backend's detail message is
// preferred when it supplies one.
const (
	msgSendFailed    = "Failed to send message."
	msgVoiceFailed   = "Failed to process voice."
	msgMicFailed     = "Microphone access failed."
	msgExecuteFailed = "Failed to execute command."
	msgActionFailed  = "The action could not be completed."
	msgNotSupported  = "That action is not supported."
)

// fallbackAccountID stands in when no account is selected yet; the
// backend maps it to its shared demo account.
const fallbackAccountID = 1

// timings are the controller's fixed delays, overridable in tests.
type timings struct {
	replyReadDelay     time.Duration // hold a display-only reply before returning to IDLE
	trackPromoteDelay  time.Duration // gap between speech end and the now-playing reveal
	widgetShowDuration time.Duration // how long the now-playing widget stays up
	warningSafety      time.Duration // upper bound on the device-warning banner
}

func defaultTimings() timings {
	return timings{
		replyReadDelay:     2000 * time.Millisecond,
		trackPromoteDelay:  1500 * time.Millisecond,
		widgetShowDuration: 4000 * time.Millisecond,
		warningSafety:      5 * time.Second,
	}
}

// Backend is the slice of the assistant API the controller drives.
type Backend interface {
	SendText(ctx context.Context, text, platform string, accountID int64, sessionID string) (*types.TurnResponse, error)
	UploadAudio(ctx context.Context, clip []byte, platform string, accountID int64, sessionID string) (*types.TurnResponse, error)
	ExecuteAction(ctx context.Context, cmd *types.Command, platform string, accountID int64, sessionID string) (*types.TurnResponse, error)
	PlatformStatus(ctx context.Context, platform string, accountID int64) (*types.PlatformStatus, error)
	SynthesizeSpeech(ctx context.Context, text string) ([]byte, error)
}

// Recorder captures one voice clip per Start/Stop bracket.
type Recorder interface {
	Start() error
	Stop() ([]byte, error)
}

// Speaker plays a synthesized clip to completion.
type Speaker interface {
	Play(ctx context.Context, clip []byte) error
}

// AudioDucker lowers and restores platform playback around speech.
type AudioDucker interface {
	Duck(ctx context.Context, platform string, accountID int64)
	Unduck(ctx context.Context, platform string, accountID int64)
}

// LevelMonitor publishes live mic loudness while listening.
type LevelMonitor interface {
	Start()
	Stop()
}

// Notifier delivers ephemeral user-visible notifications.
type Notifier interface {
	Toast(message string, level notify.Level)
}

// ClipArchiver stores voice clips off-process, best-effort.
type ClipArchiver interface {
	Enabled() bool
	StoreClip(ctx context.Context, sessionID string, clip []byte) error
}

// Controller runs the conversational turn lifecycle. All public
// methods are safe for concurrent use; the phase machine rejects
// overlapping turns.
type Controller struct {
	store    *store.Store
	backend  Backend
	recorder Recorder
	speaker  Speaker
	ducker   AudioDucker
	monitor  LevelMonitor
	toasts   Notifier
	archiver ClipArchiver

	fsm         *machine
	timing      timings
	warningText string

	mu             sync.Mutex
	sessionID      string
	pendingCommand *types.Command
	pendingTrack   *types.TrackInfo
	nowPlaying     *types.TrackInfo
	showWidget     bool
	widgetTrackURL string
	deviceWarning  bool
	checkedDevices map[string]bool
	checkCancel    context.CancelFunc
	promoteTimer   *time.Timer
	hideTimer      *time.Timer
	idleTimer      *time.Timer
}

// Options configures a Controller.
type Options struct {
	Store    *store.Store
	Backend  Backend
	Recorder Recorder
	Speaker  Speaker
	Ducker   AudioDucker
	Monitor  LevelMonitor
	Notifier Notifier
	Archiver ClipArchiver // optional; nil disables clip archival

	// DeviceWarningText is spoken when the platform is connected but
	// has no active playback device.
	DeviceWarningText string
}

// New creates a conversation controller.
func New(opts Options) *Controller {
	return &Controller{
		store:          opts.Store,
		backend:        opts.Backend,
		recorder:       opts.Recorder,
		speaker:        opts.Speaker,
		ducker:         opts.Ducker,
		monitor:        opts.Monitor,
		toasts:         opts.Notifier,
		archiver:       opts.Archiver,
		fsm:            newMachine(opts.Store),
		timing:         defaultTimings(),
		warningText:    opts.DeviceWarningText,
		checkedDevices: make(map[string]bool),
	}
}

// Interact handles the single voice-interaction control: it starts
// listening from IDLE, finishes the recording from LISTENING, and is
// ignored while a turn is being processed or spoken.
func (c *Controller) Interact(ctx context.Context) {
	switch c.fsm.phase() {
	case types.PhaseIdle:
		c.StartListening(ctx)
	case types.PhaseListening:
		c.StopListening(ctx)
	}
}

// StartListening acquires the microphone and begins live level
// monitoring. A failure to open the device notifies the user and
// returns the session to IDLE.
func (c *Controller) StartListening(ctx context.Context) {
	if err := c.fsm.transition(types.PhaseListening); err != nil {
		slog.Debug("ignoring listen request", "error", err)
		return
	}

	if err := c.recorder.Start(); err != nil {
		slog.Warn("failed to start voice capture", "error", err)
		c.toasts.Toast(msgMicFailed, notify.LevelError)
		c.fsm.forceIdle()
		return
	}
	c.monitor.Start()
}

// StopListening finalizes the recording and submits it as a voice
// turn. The clip is finalized before any network work begins, so a
// backend failure never loses the captured audio prematurely.
func (c *Controller) StopListening(ctx context.Context) {
	if err := c.fsm.transition(types.PhaseThinking); err != nil {
		slog.Debug("ignoring stop request", "error", err)
		return
	}
	c.monitor.Stop()

	clip, err := c.recorder.Stop()
	if err != nil {
		slog.Warn("failed to finalize recording", "error", err)
		c.toasts.Toast(msgVoiceFailed, notify.LevelError)
		c.fsm.forceIdle()
		return
	}
	c.archiveClip(clip)

	platform, account := c.store.Identity()
	if account == 0 {
		account = fallbackAccountID
	}
	resp, err := c.backend.UploadAudio(ctx, clip, platform, account, c.session())
	if err != nil {
		c.turnFailed(err, msgVoiceFailed)
		return
	}
	c.finishTurn(ctx, resp)
}

// SubmitText runs a typed-text turn. Empty input and input without a
// selected account are ignored, as is input arriving mid-turn.
func (c *Controller) SubmitText(ctx context.Context, text string) {
	text = strings.TrimSpace(text)
	platform, account := c.store.Identity()
	if text == "" || account == 0 {
		return
	}

	if err := c.fsm.transition(types.PhaseThinking); err != nil {
		slog.Debug("ignoring text while busy", "phase", c.fsm.phase())
		return
	}

	resp, err := c.backend.SendText(ctx, text, platform, account, c.session())
	if err != nil {
		c.turnFailed(err, msgSendFailed)
		return
	}
	c.finishTurn(ctx, resp)
}

// turnFailed reports a failed turn and returns the session to IDLE.
// The backend's detail message wins over the generic fallback.
func (c *Controller) turnFailed(err error, fallback string) {
	slog.Warn("turn failed", "error", err)
	msg := api.Detail(err)
	if msg == "" {
		msg = fallback
	}
	c.toasts.Toast(msg, notify.LevelError)
	c.fsm.forceIdle()
}

// finishTurn applies one backend response: session adoption, outcome
// notification, deferred-command staging, track staging, and the
// reply's speech or display sequencing.
func (c *Controller) finishTurn(ctx context.Context, resp *types.TurnResponse) {
	if resp == nil {
		c.fsm.forceIdle()
		return
	}
	c.adoptSession(resp.SessionID)
	c.notifyOutcome(resp)

	var deferred *types.Command
	if resp.Command != nil && resp.Command.Timing == types.TimingAfterTTS {
		deferred = resp.Command
		c.setPending(deferred)
	}

	if track := resp.FirstTrackInfo(); track != nil {
		c.stageTrack(track, resp.Platform)
	}

	switch {
	case resp.Reply != "" && resp.AudioBase64 != "":
		c.speak(ctx, resp.AudioBase64, deferred)
	case resp.Reply != "":
		// Display-only reply: hold THINKING long enough to read it.
		c.scheduleIdle()
	default:
		c.fsm.forceIdle()
	}
}

// speak ducks playback, plays the synthesized reply, then unwinds:
// IDLE, level reset, volume restore, and command resolution. Ducking
// completes its initiation before playback starts; restoration is
// initiated at speech end but not awaited.
func (c *Controller) speak(ctx context.Context, audioB64 string, own *types.Command) {
	clip, err := base64.StdEncoding.DecodeString(audioB64)
	if err != nil {
		slog.Warn("failed to decode speech audio", "error", err)
		c.fsm.forceIdle()
		return
	}

	platform, account := c.store.Identity()
	c.ducker.Duck(ctx, platform, account)

	if err := c.fsm.transition(types.PhaseSpeaking); err != nil {
		slog.Warn("cannot start speech", "error", err)
		c.ducker.Unduck(ctx, platform, account)
		c.fsm.forceIdle()
		return
	}

	go func() {
		playErr := c.speaker.Play(ctx, clip)

		c.fsm.forceIdle()
		c.store.SetAudioLevel(0)
		c.ducker.Unduck(ctx, platform, account)
		c.promoteTrack()

		if playErr != nil {
			slog.Warn("speech playback failed", "error", playErr)
			return
		}
		c.resolveCommands(ctx, own)
	}()
}

// scheduleIdle returns the session to IDLE after the reply-read delay.
func (c *Controller) scheduleIdle() {
	c.mu.Lock()
	if c.idleTimer != nil {
		c.idleTimer.Stop()
	}
	c.idleTimer = time.AfterFunc(c.timing.replyReadDelay, c.fsm.forceIdle)
	c.mu.Unlock()
}

// notifyOutcome surfaces a failed action outcome. The spoken reply is
// shown verbatim when present; otherwise the message distinguishes
// unsupported actions from plain failures.
func (c *Controller) notifyOutcome(resp *types.TurnResponse) {
	if resp.ActionOutcome != types.OutcomeError {
		return
	}
	msg := resp.Reply
	if msg == "" {
		msg = msgActionFailed
		if strings.Contains(strings.ToLower(resp.Reply), "not support") {
			msg = msgNotSupported
		}
	}
	c.toasts.Toast(msg, notify.LevelError)
}

// resolveCommands runs after speech ends. The turn's own deferred
// command takes priority: it executes and any previously pending
// command is dropped without executing. Otherwise the pending slot is
// drained.
func (c *Controller) resolveCommands(ctx context.Context, own *types.Command) {
	cmd := c.takePending()
	if own != nil {
		cmd = own
	}
	if cmd == nil {
		return
	}

	platform, account := c.store.Identity()
	if account == 0 {
		account = fallbackAccountID
	}
	if _, err := c.backend.ExecuteAction(ctx, cmd, platform, account, c.session()); err != nil {
		slog.Warn("deferred command failed", "command", cmd.Type, "error", err)
		msg := api.Detail(err)
		if msg == "" {
			msg = msgExecuteFailed
		}
		c.toasts.Toast(msg, notify.LevelError)
	}
}

// setPending stages a deferred command. The slot holds one command;
// a newer one replaces an unexecuted older one.
func (c *Controller) setPending(cmd *types.Command) {
	c.mu.Lock()
	c.pendingCommand = cmd
	c.mu.Unlock()
}

// takePending drains the deferred-command slot.
func (c *Controller) takePending() *types.Command {
	c.mu.Lock()
	defer c.mu.Unlock()
	cmd := c.pendingCommand
	c.pendingCommand = nil
	return cmd
}

// stageTrack records a turn's track info for promotion after speech.
// SoundCloud permalinks also retarget the embed widget.
func (c *Controller) stageTrack(track *types.TrackInfo, platform string) {
	active, _ := c.store.Identity()
	if platform == "" {
		platform = active
	}

	c.mu.Lock()
	c.pendingTrack = track
	touched := false
	if platform == types.PlatformSoundCloud && track.PermalinkURL != "" {
		c.widgetTrackURL = track.PermalinkURL
		touched = true
	}
	c.mu.Unlock()
	if touched {
		c.store.Touch()
	}
}

// promoteTrack moves the staged track to now-playing after a short
// delay, shows the widget, and schedules its hide. Runs on every
// speech end; a turn without a staged track is a no-op.
func (c *Controller) promoteTrack() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pendingTrack == nil {
		return
	}
	track := c.pendingTrack
	c.pendingTrack = nil

	if c.promoteTimer != nil {
		c.promoteTimer.Stop()
	}
	c.promoteTimer = time.AfterFunc(c.timing.trackPromoteDelay, func() {
		c.mu.Lock()
		c.nowPlaying = track
		c.showWidget = true
		if c.hideTimer != nil {
			c.hideTimer.Stop()
		}
		c.hideTimer = time.AfterFunc(c.timing.widgetShowDuration, func() {
			c.mu.Lock()
			c.showWidget = false
			c.mu.Unlock()
			c.store.Touch()
		})
		c.mu.Unlock()
		c.store.Touch()
	})
}

// archiveClip uploads the clip off the turn's critical path. Archival
// failures never affect the conversation.
func (c *Controller) archiveClip(clip []byte) {
	if c.archiver == nil || !c.archiver.Enabled() {
		return
	}
	session := c.session()
	go util.LogBestEffort(func() error {
		return c.archiver.StoreClip(context.Background(), session, clip)
	}, "archive voice clip")
}

// adoptSession records the backend's conversation session ID. It is
// held in memory only and threaded into subsequent turns.
func (c *Controller) adoptSession(id string) {
	if id == "" {
		return
	}
	c.mu.Lock()
	c.sessionID = id
	c.mu.Unlock()
}

func (c *Controller) session() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// SetIdentity switches the active platform and account, cancelling any
// device check for the previous identity and starting one for the new.
// deviceHint carries device availability when the caller already knows
// it, skipping the status round-trip.
func (c *Controller) SetIdentity(ctx context.Context, platform string, accountID int64, deviceHint *bool) error {
	c.CancelDeviceCheck()
	if err := c.store.SetIdentity(platform, accountID); err != nil {
		return err
	}
	c.CheckDevice(ctx, deviceHint)
	return nil
}

// View is the controller-owned slice of page-rendered state.
type View struct {
	DeviceWarning  bool
	NowPlaying     *types.TrackInfo
	ShowWidget     bool
	WidgetTrackURL string
}

// View returns a snapshot of the controller's display state.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return View{
		DeviceWarning:  c.deviceWarning,
		NowPlaying:     c.nowPlaying,
		ShowWidget:     c.showWidget,
		WidgetTrackURL: c.widgetTrackURL,
	}
}

// Close releases controller resources on shutdown.
func (c *Controller) Close() {
	c.CancelDeviceCheck()
	c.monitor.Stop()

	c.mu.Lock()
	for _, t := range []*time.Timer{c.promoteTimer, c.hideTimer, c.idleTimer} {
		if t != nil {
			t.Stop()
		}
	}
	c.mu.Unlock()
}
