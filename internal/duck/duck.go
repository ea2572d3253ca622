// Package duck lowers background platform playback volume while the
// assistant listens and speaks, and restores it afterward. Ducking is a
// UX nicety, not a correctness requirement: every failure here is
// logged and treated as a no-op.
package duck

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/samlabs/sam-gateway/internal/types"
	"github.com/samlabs/sam-gateway/internal/util"
)

const (
	// SpotifyDuckVolume is the ducked volume for the first-party API.
	SpotifyDuckVolume = 40
	// SpotifyDefaultVolume restores playback when no snapshot exists.
	SpotifyDefaultVolume = 80
	// WidgetDefaultVolume restores the embed widget when no snapshot
	// exists or the widget does not answer in time.
	WidgetDefaultVolume = 100

	// settleDelay lets the asynchronous volume change take effect
	// before speech playback begins.
	settleDelay = 100 * time.Millisecond
	// widgetReadTimeout bounds the widget's async volume callback.
	widgetReadTimeout = 200 * time.Millisecond
)

// ActionClient is the slice of the backend client used for first-party
// volume control.
type ActionClient interface {
	ExecuteAction(ctx context.Context, cmd *types.Command, platform string, accountID int64, sessionID string) (*types.TurnResponse, error)
}

// WidgetControl is the embed widget's volume control surface: a
// synchronous setter and a callback-based getter.
type WidgetControl interface {
	SetVolume(percent int)
	GetVolume(callback func(int))
}

// Ducker snapshots and restores platform volume around speech. The
// pre-duck snapshot is owned exclusively by this type.
type Ducker struct {
	actions ActionClient
	widget  WidgetControl

	mu            sync.Mutex
	preDuckVolume *int
}

// New creates a Ducker. widget may be nil when no embed page is bound;
// widget reads then fall back to the default volume.
func New(actions ActionClient, widget WidgetControl) *Ducker {
	return &Ducker{actions: actions, widget: widget}
}

// Duck lowers the active platform's volume, snapshotting the current
// volume first when it can be read. It never fails: ducking errors are
// logged and swallowed.
func (d *Ducker) Duck(ctx context.Context, platform string, accountID int64) {
	switch {
	case platform == types.PlatformSpotify && accountID != 0:
		d.duckSpotify(ctx, accountID)
	case platform == types.PlatformSoundCloud:
		d.duckWidget()
	}
}

// duckSpotify reads the current volume best-effort, then issues the
// duck and waits briefly for the side effect to settle.
func (d *Ducker) duckSpotify(ctx context.Context, accountID int64) {
	resp, err := d.actions.ExecuteAction(ctx, &types.Command{Type: "get_volume", Params: map[string]any{}},
		types.PlatformSpotify, accountID, "")
	if err != nil {
		// Non-fatal: restore will use the documented default.
		slog.Warn("failed to read volume before ducking", "error", err)
	} else if vol, ok := resultVolume(resp); ok {
		d.setSnapshot(vol)
		slog.Debug("saved pre-duck volume", "volume", vol)
	}

	go d.setSpotifyVolume(ctx, accountID, SpotifyDuckVolume, "duck volume")

	select {
	case <-time.After(settleDelay):
	case <-ctx.Done():
	}
}

// duckWidget snapshots the widget volume, defaulting when the widget
// does not answer, then mutes it. Partial ducking is not supported by
// the embed, so the duck is a full mute.
func (d *Ducker) duckWidget() {
	vol := d.widgetVolume()
	d.setSnapshot(vol)
	slog.Debug("saved pre-duck widget volume", "volume", vol)
	if d.widget != nil {
		d.widget.SetVolume(0)
	}
}

// Unduck restores the platform volume to the pre-duck snapshot, or the
// per-platform default when none was captured. The snapshot is cleared
// either way. Restoration is initiated, not awaited.
func (d *Ducker) Unduck(ctx context.Context, platform string, accountID int64) {
	switch {
	case platform == types.PlatformSpotify && accountID != 0:
		restore := d.takeSnapshot(SpotifyDefaultVolume)
		go d.setSpotifyVolume(ctx, accountID, restore, "restore volume")
	case platform == types.PlatformSoundCloud:
		restore := d.takeSnapshot(WidgetDefaultVolume)
		if d.widget != nil {
			d.widget.SetVolume(restore)
		}
	}
}

// setSpotifyVolume issues a fire-and-forget set_volume action.
func (d *Ducker) setSpotifyVolume(ctx context.Context, accountID int64, volume int, op string) {
	util.LogBestEffort(func() error {
		_, err := d.actions.ExecuteAction(ctx, &types.Command{
			Type:   "set_volume",
			Params: map[string]any{"volume": volume},
		}, types.PlatformSpotify, accountID, "")
		return err
	}, op)
}

// widgetVolume reads the widget volume through its callback interface,
// bounded by a timeout. Timing out is a normal fallback, not an error.
func (d *Ducker) widgetVolume() int {
	if d.widget == nil {
		return WidgetDefaultVolume
	}

	ch := make(chan int, 1)
	d.widget.GetVolume(func(vol int) {
		select {
		case ch <- vol:
		default:
		}
	})

	select {
	case vol := <-ch:
		return vol
	case <-time.After(widgetReadTimeout):
		return WidgetDefaultVolume
	}
}

func (d *Ducker) setSnapshot(vol int) {
	d.mu.Lock()
	d.preDuckVolume = &vol
	d.mu.Unlock()
}

// takeSnapshot returns the snapshot or fallback, clearing the snapshot.
func (d *Ducker) takeSnapshot(fallback int) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	vol := fallback
	if d.preDuckVolume != nil {
		vol = *d.preDuckVolume
	}
	d.preDuckVolume = nil
	return vol
}

// resultVolume coerces the backend's get_volume result into an integer
// volume.
func resultVolume(resp *types.TurnResponse) (int, bool) {
	if resp == nil || resp.Result == nil {
		return 0, false
	}
	switch v := resp.Result.(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return int(f), true
		}
	}
	return 0, false
}
