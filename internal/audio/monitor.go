package audio

import (
	"context"
	"io"
	"log/slog"
	"math/rand"
	"sync"
	"time"
)

// fallbackInterval paces the synthetic level signal used when real
// capture analysis cannot be set up.
const fallbackInterval = 100 * time.Millisecond

// Monitor samples a capture source and publishes a live loudness level
// while listening. If the source cannot be opened it falls back to a
// synthetic randomized signal so dependent visuals stay responsive.
type Monitor struct {
	source  Source
	publish func(float64)

	mu      sync.Mutex
	cancel  context.CancelFunc
	stream  io.ReadCloser
	done    chan struct{}
	running bool
}

// NewMonitor creates a level monitor that reads from source and
// publishes normalized loudness via publish.
func NewMonitor(source Source, publish func(float64)) *Monitor {
	return &Monitor{source: source, publish: publish}
}

// Start begins live level sampling. Starting an already-running monitor
// is a no-op.
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})
	m.running = true

	stream, err := m.source.Open(ctx)
	if err != nil {
		slog.Warn("mic analysis unavailable, using synthetic levels", "error", err)
		go m.runFallback(ctx, m.done)
		return
	}
	m.stream = stream
	go m.runAnalysis(ctx, stream, m.done)
}

// runAnalysis publishes one level per captured frame until cancelled.
func (m *Monitor) runAnalysis(ctx context.Context, stream io.Reader, done chan<- struct{}) {
	defer close(done)

	frame := make([]byte, FrameSize)
	for {
		if ctx.Err() != nil {
			return
		}
		n, err := io.ReadFull(stream, frame)
		if n > 0 {
			m.publish(Level(frame[:n]))
		}
		if err != nil {
			return
		}
	}
}

// runFallback publishes randomized levels on a fixed interval.
func (m *Monitor) runFallback(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(fallbackInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.publish(rand.Float64()*0.5 + 0.2)
		}
	}
}

// Stop tears down level sampling: cancels the sampling loop, releases
// the capture stream, and resets the published level to zero. Every
// step runs even if an earlier one fails, and calling Stop repeatedly
// is safe.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	stream := m.stream
	done := m.done
	m.cancel = nil
	m.stream = nil
	m.done = nil
	m.running = false
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if stream != nil {
		if err := stream.Close(); err != nil {
			slog.Debug("capture stream close error", "error", err)
		}
	}
	if done != nil {
		<-done
	}
	m.publish(0)
}
