package voice

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/samlabs/sam-gateway/internal/audio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chunkSource serves a fixed PCM payload and then blocks until closed,
// like a live microphone stream. A non-nil gate defers the payload
// until the test releases it; delivered closes once the capture loop
// has consumed the whole payload.
type chunkSource struct {
	payload   []byte
	openErr   error
	gate      chan struct{}
	delivered chan struct{}
}

func (s *chunkSource) Open(ctx context.Context) (io.ReadCloser, error) {
	if s.openErr != nil {
		return nil, s.openErr
	}
	pr, pw := io.Pipe()
	go func() {
		if s.gate != nil {
			<-s.gate
		}
		_, _ = pw.Write(s.payload)
		if s.delivered != nil {
			close(s.delivered)
		}
		<-ctx.Done()
		_ = pw.Close()
	}()
	return pr, nil
}

func waitDelivered(t *testing.T, delivered <-chan struct{}) {
	t.Helper()
	select {
	case <-delivered:
	case <-time.After(2 * time.Second):
		t.Fatal("capture loop never consumed the payload")
	}
}

func TestRecorderProducesWAVClip(t *testing.T) {
	pcm := []byte{0x01, 0x02, 0x03, 0x04}
	src := &chunkSource{payload: pcm, delivered: make(chan struct{})}
	r := NewRecorder(src)

	require.NoError(t, r.Start())
	assert.True(t, r.Recording())

	waitDelivered(t, src.delivered)

	clip, err := r.Stop()
	require.NoError(t, err)
	assert.False(t, r.Recording())

	got, rate, channels, err := audio.DecodeWAV(clip)
	require.NoError(t, err)
	assert.Equal(t, pcm, got)
	assert.Equal(t, audio.SampleRate, rate)
	assert.Equal(t, audio.Channels, channels)
}

func TestRecorderRejectsDoubleStart(t *testing.T) {
	r := NewRecorder(&chunkSource{})

	require.NoError(t, r.Start())
	assert.ErrorIs(t, r.Start(), ErrAlreadyRecording)

	_, err := r.Stop()
	require.NoError(t, err)
}

func TestStopWithoutStart(t *testing.T) {
	r := NewRecorder(&chunkSource{})

	_, err := r.Stop()
	assert.ErrorIs(t, err, ErrNotRecording)
}

func TestStartFailsWhenDeviceUnavailable(t *testing.T) {
	r := NewRecorder(&chunkSource{openErr: errors.New("device busy")})

	err := r.Start()
	require.Error(t, err)
	assert.False(t, r.Recording())
}

func TestTapReceivesLiveStream(t *testing.T) {
	pcm := []byte{0xAA, 0xBB, 0xCC, 0xDD}
	gate := make(chan struct{})
	r := NewRecorder(&chunkSource{payload: pcm, gate: gate})
	require.NoError(t, r.Start())

	tap, err := r.Tap().Open(context.Background())
	require.NoError(t, err)
	defer tap.Close()
	close(gate)

	got := make([]byte, len(pcm))
	_, err = io.ReadFull(tap, got)
	require.NoError(t, err)
	assert.Equal(t, pcm, got)

	_, err = r.Stop()
	require.NoError(t, err)
}

func TestTapRequiresActiveRecording(t *testing.T) {
	r := NewRecorder(&chunkSource{})

	_, err := r.Tap().Open(context.Background())
	assert.ErrorIs(t, err, ErrNotRecording)
}

func TestClosedTapDoesNotStallRecording(t *testing.T) {
	pcm := make([]byte, audio.FrameSize*2)
	src := &chunkSource{payload: pcm, delivered: make(chan struct{})}
	r := NewRecorder(src)
	require.NoError(t, r.Start())

	tap, err := r.Tap().Open(context.Background())
	require.NoError(t, err)
	require.NoError(t, tap.Close())

	waitDelivered(t, src.delivered)

	clip, err := r.Stop()
	require.NoError(t, err)
	got, _, _, err := audio.DecodeWAV(clip)
	require.NoError(t, err)
	assert.Len(t, got, len(pcm))
}
