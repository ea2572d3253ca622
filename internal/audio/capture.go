package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"runtime"

	"github.com/samlabs/sam-gateway/internal/util"
)

// ErrNoAudioDevice is returned when no audio device is available.
var ErrNoAudioDevice = errors.New("no audio device found")

// Source provides a PCM capture stream. The gateway treats the
// microphone as a capability provider so tests can inject fakes.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}

// Sink accepts a PCM playback stream.
type Sink interface {
	Open(ctx context.Context, sampleRate, channels int) (io.WriteCloser, error)
}

// DeviceSource captures S16LE PCM from the system microphone by running
// the platform capture tool (arecord on Linux, ffmpeg elsewhere).
type DeviceSource struct {
	Device string // Device identifier; empty uses the platform default
}

// Open starts the capture process and returns its PCM output stream.
func (s *DeviceSource) Open(ctx context.Context) (io.ReadCloser, error) {
	name, args, err := captureCommand(s.Device)
	if err != nil {
		return nil, err
	}
	return startStreamingRead(ctx, name, args)
}

// DevicePlayer plays S16LE PCM through the system output by running the
// platform playback tool (aplay on Linux, ffplay elsewhere).
type DevicePlayer struct{}

// Open starts the playback process and returns its PCM input stream.
func (p *DevicePlayer) Open(ctx context.Context, sampleRate, channels int) (io.WriteCloser, error) {
	name, args := playbackCommand(sampleRate, channels)
	return startStreamingWrite(ctx, name, args)
}

// captureCommand returns the capture tool invocation for this platform.
func captureCommand(device string) (string, []string, error) {
	switch runtime.GOOS {
	case "linux":
		if device == "" {
			device = "default"
		}
		return "arecord", []string{
			"-D", device,
			"-f", "S16_LE",
			"-r", fmt.Sprint(SampleRate),
			"-c", fmt.Sprint(Channels),
			"-t", "raw",
			"-q",
			"-",
		}, nil
	case "darwin":
		if device == "" {
			device = ":0"
		}
		return "ffmpeg", ffmpegCaptureArgs("avfoundation", device), nil
	case "windows":
		if device == "" {
			return "", nil, ErrNoAudioDevice
		}
		return "ffmpeg", ffmpegCaptureArgs("dshow", "audio="+device), nil
	default:
		return "", nil, fmt.Errorf("audio capture not supported on %s", runtime.GOOS)
	}
}

// ffmpegCaptureArgs builds FFmpeg arguments to capture raw S16LE PCM.
func ffmpegCaptureArgs(format, input string) []string {
	return []string{
		"-hide_banner", "-loglevel", "error",
		"-f", format,
		"-i", input,
		"-ar", fmt.Sprint(SampleRate),
		"-ac", fmt.Sprint(Channels),
		"-f", "s16le",
		"-",
	}
}

// playbackCommand returns the playback tool invocation for this platform.
func playbackCommand(sampleRate, channels int) (string, []string) {
	if runtime.GOOS == "linux" {
		return "aplay", []string{
			"-f", "S16_LE",
			"-r", fmt.Sprint(sampleRate),
			"-c", fmt.Sprint(channels),
			"-t", "raw",
			"-q",
			"-",
		}
	}
	return "ffplay", []string{
		"-hide_banner", "-loglevel", "error",
		"-autoexit", "-nodisp",
		"-f", "s16le",
		"-ar", fmt.Sprint(sampleRate),
		"-ch_layout", fmt.Sprint(channels) + "c",
		"-i", "-",
	}
}

// processStream couples a process pipe with its command so Close tears
// down both.
type processStream struct {
	pipe   io.Closer
	cmd    *exec.Cmd
	stderr *bytes.Buffer
}

func (p *processStream) Close() error {
	err := p.pipe.Close()
	if p.cmd.Process != nil {
		if killErr := p.cmd.Process.Kill(); killErr != nil {
			slog.Debug("audio process kill", "error", killErr)
		}
	}
	_ = p.cmd.Wait() //nolint:errcheck // killed processes report an expected error
	if tail := util.ExtractLastError(p.stderr.String()); tail != "" {
		slog.Debug("capture process stderr", "tail", tail)
	}
	return err
}

type readStream struct {
	io.Reader
	processStream
}

// writeStream closes stdin and waits for the process to drain its
// buffer, so playback finishes before Close returns. Cancelling the
// context kills the process instead.
type writeStream struct {
	io.Writer
	pipe   io.Closer
	cmd    *exec.Cmd
	stderr *bytes.Buffer
}

func (w *writeStream) Close() error {
	err := w.pipe.Close()
	if waitErr := w.cmd.Wait(); waitErr != nil && err == nil {
		if tail := util.ExtractLastError(w.stderr.String()); tail != "" {
			waitErr = fmt.Errorf("%w: %s", waitErr, tail)
		}
		err = waitErr
	}
	return err
}

// startStreamingRead starts a process and returns its stdout as a stream.
func startStreamingRead(ctx context.Context, name string, args []string) (io.ReadCloser, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", name, err)
	}
	return &readStream{Reader: stdout, processStream: processStream{pipe: stdout, cmd: cmd, stderr: stderr}}, nil
}

// startStreamingWrite starts a process and returns its stdin as a stream.
func startStreamingWrite(ctx context.Context, name string, args []string) (io.WriteCloser, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", name, err)
	}
	return &writeStream{Writer: stdin, pipe: stdin, cmd: cmd, stderr: stderr}, nil
}
