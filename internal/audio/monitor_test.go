package audio

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pipeSource serves a fresh pipe per Open, or fails when broken.
type pipeSource struct {
	broken bool

	mu sync.Mutex
	pw *io.PipeWriter
}

func (s *pipeSource) Open(_ context.Context) (io.ReadCloser, error) {
	if s.broken {
		return nil, errors.New("device unavailable")
	}
	pr, pw := io.Pipe()
	s.mu.Lock()
	s.pw = pw
	s.mu.Unlock()
	return pr, nil
}

func (s *pipeSource) write(t *testing.T, p []byte) {
	t.Helper()
	s.mu.Lock()
	pw := s.pw
	s.mu.Unlock()
	_, err := pw.Write(p)
	require.NoError(t, err)
}

type levelSink struct {
	mu     sync.Mutex
	levels []float64
}

func (l *levelSink) publish(v float64) {
	l.mu.Lock()
	l.levels = append(l.levels, v)
	l.mu.Unlock()
}

func (l *levelSink) last() (float64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.levels) == 0 {
		return 0, false
	}
	return l.levels[len(l.levels)-1], true
}

func (l *levelSink) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.levels)
}

func TestMonitorPublishesFrameLevels(t *testing.T) {
	src := &pipeSource{}
	sink := &levelSink{}
	m := NewMonitor(src, sink.publish)

	m.Start()
	defer m.Stop()

	src.write(t, make([]byte, FrameSize))

	require.Eventually(t, func() bool {
		return sink.count() >= 1
	}, 2*time.Second, 2*time.Millisecond)
	last, ok := sink.last()
	require.True(t, ok)
	assert.Zero(t, last)
}

func TestMonitorStopResetsLevelToZero(t *testing.T) {
	src := &pipeSource{}
	sink := &levelSink{}
	m := NewMonitor(src, sink.publish)

	m.Start()
	m.Stop()

	last, ok := sink.last()
	require.True(t, ok, "Stop must publish a final level")
	assert.Zero(t, last)
}

func TestMonitorStopIsIdempotent(t *testing.T) {
	m := NewMonitor(&pipeSource{}, func(float64) {})

	m.Stop()
	m.Start()
	m.Stop()
	m.Stop()
}

func TestMonitorFallsBackToSyntheticLevels(t *testing.T) {
	sink := &levelSink{}
	m := NewMonitor(&pipeSource{broken: true}, sink.publish)

	m.Start()
	defer m.Stop()

	require.Eventually(t, func() bool {
		return sink.count() >= 2
	}, 2*time.Second, 5*time.Millisecond)

	last, _ := sink.last()
	assert.Greater(t, last, 0.0)
	assert.LessOrEqual(t, last, 0.7)
}

func TestMonitorDoubleStartIsNoOp(t *testing.T) {
	src := &pipeSource{}
	m := NewMonitor(src, func(float64) {})

	m.Start()
	m.Start()
	m.Stop()
}
