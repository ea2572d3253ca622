package chat

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/samlabs/sam-gateway/internal/types"
)

// CheckDevice verifies that the active platform has a playback device
// and, when it is connected but device-less, shows a warning banner
// and speaks the configured warning. Each platform+account pair is
// checked at most once per process run; starting a new check cancels
// the previous one. deviceHint short-circuits the status call when the
// connection callback already reported device availability.
//
// Only Spotify needs the check: the embed widget is its own device.
func (c *Controller) CheckDevice(ctx context.Context, deviceHint *bool) {
	platform, account := c.store.Identity()
	if platform != types.PlatformSpotify || account == 0 {
		return
	}
	key := fmt.Sprintf("%s/%d", platform, account)

	c.mu.Lock()
	if c.checkedDevices[key] {
		c.mu.Unlock()
		return
	}
	c.checkedDevices[key] = true
	if c.checkCancel != nil {
		c.checkCancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	c.checkCancel = cancel
	c.mu.Unlock()

	go c.runDeviceCheck(ctx, platform, account, deviceHint)
}

// CancelDeviceCheck aborts any in-flight device check, hides the
// banner, and resets the phase in case the warning was mid-speech.
// No-op when no check is running.
func (c *Controller) CancelDeviceCheck() {
	c.mu.Lock()
	cancel := c.checkCancel
	c.checkCancel = nil
	c.mu.Unlock()
	if cancel == nil {
		return
	}

	cancel()
	c.setDeviceWarning(false)
	c.fsm.forceIdle()
}

// runDeviceCheck is the cancellable body of one device check. The
// context is re-checked after every asynchronous step so a superseded
// check never touches shared state late.
func (c *Controller) runDeviceCheck(ctx context.Context, platform string, account int64, hint *bool) {
	status := &types.PlatformStatus{IsConnected: true, HasActiveDevice: hint}
	if hint == nil {
		var err error
		status, err = c.backend.PlatformStatus(ctx, platform, account)
		if err != nil {
			slog.Warn("device check failed", "platform", platform, "error", err)
			return
		}
		if ctx.Err() != nil {
			return
		}
	}

	if !status.IsConnected || status.HasActiveDevice == nil || *status.HasActiveDevice {
		c.setDeviceWarning(false)
		return
	}

	slog.Info("no active playback device", "platform", platform, "account", account)
	c.setDeviceWarning(true)

	// Safety net: the banner never outlives this bound, even if
	// synthesis or playback hangs.
	safety := time.AfterFunc(c.timing.warningSafety, func() {
		if ctx.Err() == nil {
			c.setDeviceWarning(false)
		}
	})

	clip, err := c.backend.SynthesizeSpeech(ctx, c.warningText)
	if err != nil {
		// Banner stays until the safety timer clears it.
		slog.Warn("failed to synthesize device warning", "error", err)
		return
	}
	if ctx.Err() != nil {
		safety.Stop()
		return
	}

	if err := c.fsm.transitionFrom(types.PhaseIdle, types.PhaseSpeaking); err != nil {
		// A turn is underway; skip the spoken warning.
		slog.Debug("skipping spoken device warning", "error", err)
		return
	}
	if err := c.speaker.Play(ctx, clip); err != nil {
		slog.Warn("device warning playback failed", "error", err)
	}
	c.fsm.forceIdle()
	c.store.SetAudioLevel(0)

	if ctx.Err() != nil {
		return
	}
	safety.Stop()
	c.setDeviceWarning(false)
}

// setDeviceWarning flips the banner state and notifies watchers.
func (c *Controller) setDeviceWarning(on bool) {
	c.mu.Lock()
	changed := c.deviceWarning != on
	c.deviceWarning = on
	c.mu.Unlock()
	if changed {
		c.store.Touch()
	}
}
