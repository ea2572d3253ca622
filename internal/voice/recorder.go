// Package voice records microphone input into a single encoded clip
// per capture session, bracketed by Start and Stop. The live stream
// can be tapped for loudness analysis while recording.
package voice

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/samlabs/sam-gateway/internal/audio"
)

// Recorder errors.
var (
	ErrAlreadyRecording = errors.New("recording already in progress")
	ErrNotRecording     = errors.New("recorder not started")
)

// Recorder captures one voice clip at a time from a capture source.
// It is safe for concurrent use.
type Recorder struct {
	source audio.Source

	mu     sync.Mutex
	cancel context.CancelFunc
	stream io.ReadCloser
	buf    *bytes.Buffer
	tap    *io.PipeWriter
	done   chan struct{}
}

// NewRecorder creates a recorder reading from source.
func NewRecorder(source audio.Source) *Recorder {
	return &Recorder{source: source}
}

// Start acquires the microphone and begins buffering PCM. It fails if a
// recording is already in progress or the device cannot be opened.
func (r *Recorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stream != nil {
		return ErrAlreadyRecording
	}

	ctx, cancel := context.WithCancel(context.Background())
	stream, err := r.source.Open(ctx)
	if err != nil {
		cancel()
		return err
	}

	buf := &bytes.Buffer{}
	done := make(chan struct{})
	r.cancel = cancel
	r.stream = stream
	r.buf = buf
	r.done = done

	go r.capture(stream, buf, done)

	return nil
}

// capture copies the stream into the clip buffer, forwarding each
// chunk to the analysis tap when one is attached.
func (r *Recorder) capture(stream io.Reader, buf *bytes.Buffer, done chan<- struct{}) {
	defer close(done)

	chunk := make([]byte, audio.FrameSize)
	for {
		n, err := stream.Read(chunk)
		if n > 0 {
			buf.Write(chunk[:n])
			r.forwardTap(chunk[:n])
		}
		if err != nil {
			slog.Debug("voice capture stream ended", "error", err)
			return
		}
	}
}

// Stop finalizes the clip, releases the microphone, and returns the
// recording as a WAV-encoded clip.
func (r *Recorder) Stop() ([]byte, error) {
	r.mu.Lock()
	cancel := r.cancel
	stream := r.stream
	buf := r.buf
	tap := r.tap
	done := r.done
	r.cancel = nil
	r.stream = nil
	r.buf = nil
	r.tap = nil
	r.done = nil
	r.mu.Unlock()

	if stream == nil {
		return nil, ErrNotRecording
	}

	cancel()
	if err := stream.Close(); err != nil {
		slog.Debug("capture stream close error", "error", err)
	}
	<-done
	if tap != nil {
		_ = tap.Close() //nolint:errcheck // pipe close cannot fail meaningfully
	}

	return audio.EncodeWAV(buf.Bytes(), audio.SampleRate, audio.Channels), nil
}

// Recording reports whether a capture session is in progress.
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stream != nil
}

// Tap returns a capture source fed by the live recording stream. Its
// Open fails when no recording is in progress, which lets a level
// monitor fall back to synthetic levels instead of fighting the
// microphone device for a second capture process.
func (r *Recorder) Tap() audio.Source {
	return tapSource{r}
}

type tapSource struct {
	r *Recorder
}

func (t tapSource) Open(ctx context.Context) (io.ReadCloser, error) {
	return t.r.openTap()
}

// openTap attaches an analysis pipe to the in-progress recording. A
// new tap replaces any previous one.
func (r *Recorder) openTap() (io.ReadCloser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stream == nil {
		return nil, ErrNotRecording
	}

	pr, pw := io.Pipe()
	if r.tap != nil {
		_ = r.tap.Close() //nolint:errcheck // pipe close cannot fail meaningfully
	}
	r.tap = pw
	return pr, nil
}

// forwardTap writes a captured chunk to the analysis tap, detaching it
// on failure so a closed monitor never stalls the recording.
func (r *Recorder) forwardTap(chunk []byte) {
	r.mu.Lock()
	tap := r.tap
	r.mu.Unlock()
	if tap == nil {
		return
	}

	if _, err := tap.Write(chunk); err != nil {
		r.mu.Lock()
		if r.tap == tap {
			r.tap = nil
		}
		r.mu.Unlock()
	}
}
