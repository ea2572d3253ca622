// Package player plays synthesized speech clips through an audio sink
// while publishing live loudness for the avatar visuals.
package player

import (
	"context"
	"sync"

	"github.com/samlabs/sam-gateway/internal/audio"
	"github.com/samlabs/sam-gateway/internal/util"
)

// Player streams WAV clips to a sink. One clip plays at a time; the
// internal lock prevents attaching two metering loops to the output.
type Player struct {
	sink    audio.Sink
	publish func(float64)
	mu      sync.Mutex
}

// New creates a player writing to sink and publishing loudness via
// publish.
func New(sink audio.Sink, publish func(float64)) *Player {
	return &Player{sink: sink, publish: publish}
}

// Play decodes a WAV clip and streams it to the sink frame by frame,
// publishing the loudness of each frame. The published level is reset
// to zero on every exit path: completion, error, or cancellation.
func (p *Player) Play(ctx context.Context, clip []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	defer p.publish(0)

	pcm, sampleRate, channels, err := audio.DecodeWAV(clip)
	if err != nil {
		return util.WrapError("decode speech clip", err)
	}

	out, err := p.sink.Open(ctx, sampleRate, channels)
	if err != nil {
		return util.WrapError("open audio output", err)
	}

	for off := 0; off < len(pcm); off += audio.FrameSize {
		if err := ctx.Err(); err != nil {
			_ = out.Close() //nolint:errcheck // cancellation already reported
			return err
		}

		end := min(off+audio.FrameSize, len(pcm))
		frame := pcm[off:end]
		if _, err := out.Write(frame); err != nil {
			_ = out.Close() //nolint:errcheck // write error already reported
			return util.WrapError("write audio output", err)
		}
		p.publish(audio.Level(frame))
	}

	// Close waits for the sink to drain, so playback has finished by
	// the time Play returns.
	return util.WrapError("finish playback", out.Close())
}
