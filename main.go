// Package main provides a headless voice-assistant gateway that fronts
// a music-assistant backend: it records the microphone, exchanges turns
// with the backend, speaks replies while ducking platform playback, and
// serves a web interface for control and visuals.
//
// Usage:
//
//	sam-gateway [-config path/to/config.json]
//
// If -config is not specified, the gateway looks for config.json in the
// same directory as the binary.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/samlabs/sam-gateway/internal/api"
	"github.com/samlabs/sam-gateway/internal/archive"
	"github.com/samlabs/sam-gateway/internal/audio"
	"github.com/samlabs/sam-gateway/internal/chat"
	"github.com/samlabs/sam-gateway/internal/config"
	"github.com/samlabs/sam-gateway/internal/duck"
	"github.com/samlabs/sam-gateway/internal/notify"
	"github.com/samlabs/sam-gateway/internal/player"
	"github.com/samlabs/sam-gateway/internal/server"
	"github.com/samlabs/sam-gateway/internal/store"
	"github.com/samlabs/sam-gateway/internal/util"
	"github.com/samlabs/sam-gateway/internal/voice"
	"github.com/samlabs/sam-gateway/internal/widget"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (default: config.json next to binary)")
	showVersion := flag.Bool("version", false, "Print version information and exit")
	flag.Parse()

	if *showVersion {
		slog.Info("version info", "version", Version, "commit", Commit, "build_time", BuildTime)
		return
	}

	if *configPath == "" {
		execPath, err := os.Executable()
		if err != nil {
			slog.Error("failed to get executable path", "error", err)
			os.Exit(1)
		}
		*configPath = filepath.Join(filepath.Dir(execPath), "config.json")
	}

	slog.Info("using config file", "path", *configPath)

	cfg := config.New(*configPath)
	if err := cfg.Load(); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	snap := cfg.Snapshot()

	// Session state persists next to the config file.
	st := store.New(filepath.Join(filepath.Dir(*configPath), "state.json"))
	if err := st.Load(); err != nil {
		slog.Warn("failed to restore session state", "error", err)
	}

	backend := api.New(api.Options{
		BaseURL:      snap.BackendURL,
		ClientID:     snap.BackendClientID,
		ClientSecret: snap.BackendClientSecret,
		TokenURL:     snap.BackendTokenURL,
	})

	mic := &audio.DeviceSource{Device: snap.AudioInput}
	recorder := voice.NewRecorder(mic)
	monitor := audio.NewMonitor(recorder.Tap(), st.SetAudioLevel)
	speaker := player.New(&audio.DevicePlayer{}, st.SetAudioLevel)

	hub := widget.NewHub()
	toasts := notify.NewHub()
	ducker := duck.New(backend, hub)
	archiver := archive.New(snap.Archive)

	ctrl := chat.New(chat.Options{
		Store:             st,
		Backend:           backend,
		Recorder:          recorder,
		Speaker:           speaker,
		Ducker:            ducker,
		Monitor:           monitor,
		Notifier:          toasts,
		Archiver:          archiver,
		DeviceWarningText: snap.DeviceWarningText,
	})

	commands := server.NewCommandHandler(ctrl, st, backend, hub, archiver)
	srv := NewServer(cfg, st, ctrl, hub, toasts, commands)

	// A restored identity gets its device check on startup.
	ctrl.CheckDevice(context.Background(), nil)

	// Start web server.
	httpServer := srv.Start()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, util.ShutdownSignals()...)
	<-sigChan

	slog.Info("shutting down")

	// Stop update fan-out and version checker goroutines.
	srv.Stop()

	// Shut down HTTP server.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	ctrl.Close()

	slog.Info("shutdown complete")
}
