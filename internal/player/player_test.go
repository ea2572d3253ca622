package player

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/samlabs/sam-gateway/internal/audio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memorySink struct {
	mu      sync.Mutex
	buf     bytes.Buffer
	openErr error
	rate    int
	ch      int
}

type memoryStream struct {
	sink *memorySink
}

func (s *memorySink) Open(_ context.Context, sampleRate, channels int) (io.WriteCloser, error) {
	if s.openErr != nil {
		return nil, s.openErr
	}
	s.mu.Lock()
	s.rate = sampleRate
	s.ch = channels
	s.mu.Unlock()
	return &memoryStream{sink: s}, nil
}

func (m *memoryStream) Write(p []byte) (int, error) {
	m.sink.mu.Lock()
	defer m.sink.mu.Unlock()
	return m.sink.buf.Write(p)
}

func (m *memoryStream) Close() error { return nil }

func TestPlayStreamsWholeClipAndResetsLevel(t *testing.T) {
	pcm := make([]byte, audio.FrameSize*2+100)
	for i := range pcm {
		pcm[i] = byte(i)
	}
	clip := audio.EncodeWAV(pcm, audio.SampleRate, audio.Channels)

	sink := &memorySink{}
	var levels []float64
	p := New(sink, func(v float64) { levels = append(levels, v) })

	require.NoError(t, p.Play(context.Background(), clip))

	assert.Equal(t, pcm, sink.buf.Bytes())
	assert.Equal(t, audio.SampleRate, sink.rate)
	assert.Equal(t, audio.Channels, sink.ch)

	// One level per frame, then the final reset to zero.
	require.NotEmpty(t, levels)
	assert.Zero(t, levels[len(levels)-1])
}

func TestPlayRejectsGarbage(t *testing.T) {
	p := New(&memorySink{}, func(float64) {})

	err := p.Play(context.Background(), []byte("not audio"))
	assert.ErrorIs(t, err, audio.ErrNotWAV)
}

func TestPlaySurfacesSinkFailure(t *testing.T) {
	sink := &memorySink{openErr: errors.New("no output device")}
	var last float64
	p := New(sink, func(v float64) { last = v })

	clip := audio.EncodeWAV(make([]byte, 16), audio.SampleRate, audio.Channels)
	err := p.Play(context.Background(), clip)

	require.Error(t, err)
	assert.Zero(t, last, "level must reset on the error path too")
}

func TestPlayHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := New(&memorySink{}, func(float64) {})
	clip := audio.EncodeWAV(make([]byte, audio.FrameSize*4), audio.SampleRate, audio.Channels)

	err := p.Play(ctx, clip)
	assert.ErrorIs(t, err, context.Canceled)
}
