// Package audio provides loudness analysis and capture/playback
// plumbing for the gateway's microphone and speech pipelines.
package audio

import "encoding/binary"

const (
	// MaxSampleValue is the maximum absolute value for 16-bit signed audio.
	MaxSampleValue = 32768.0

	// ReferenceCeiling normalizes mean sample energy into [0,1].
	// Conversational speech peaks near the top of the range.
	ReferenceCeiling = MaxSampleValue / 2

	// FrameSize is the number of bytes analyzed per level sample.
	FrameSize = 2048

	// SampleRate and Channels define the capture PCM format (S16LE).
	SampleRate = 16000
	Channels   = 1
)

// Level computes the normalized loudness of an S16LE PCM frame: mean
// absolute sample energy against the reference ceiling, clamped to
// [0,1]. An empty or truncated frame reads as silence.
func Level(frame []byte) float64 {
	n := len(frame) &^ 1
	if n == 0 {
		return 0
	}

	var sum float64
	for i := 0; i+1 < n; i += 2 {
		sample := int16(binary.LittleEndian.Uint16(frame[i:]))
		v := float64(sample)
		if v < 0 {
			v = -v
		}
		sum += v
	}

	level := sum / float64(n/2) / ReferenceCeiling
	return min(level, 1)
}
