package audio

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	pcm := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06}

	clip := EncodeWAV(pcm, SampleRate, Channels)
	require.Len(t, clip, 44+len(pcm))

	got, rate, channels, err := DecodeWAV(clip)
	require.NoError(t, err)
	assert.Equal(t, pcm, got)
	assert.Equal(t, SampleRate, rate)
	assert.Equal(t, Channels, channels)
}

func TestDecodeRejectsNonWAV(t *testing.T) {
	_, _, _, err := DecodeWAV([]byte("definitely not audio data, just text"))
	assert.ErrorIs(t, err, ErrNotWAV)

	_, _, _, err = DecodeWAV(nil)
	assert.ErrorIs(t, err, ErrNotWAV)
}

func TestDecodeRejectsCompressedFormat(t *testing.T) {
	clip := EncodeWAV([]byte{0, 0}, SampleRate, Channels)
	binary.LittleEndian.PutUint16(clip[20:22], 7) // mu-law

	_, _, _, err := DecodeWAV(clip)
	assert.ErrorContains(t, err, "unsupported WAV format")
}

func TestDecodeWalksExtraChunks(t *testing.T) {
	pcm := []byte{0x10, 0x20}
	clip := EncodeWAV(pcm, 44100, 2)

	// Insert a LIST chunk between fmt and data.
	list := append([]byte("LIST"), 0x04, 0x00, 0x00, 0x00, 'I', 'N', 'F', 'O')
	withList := append(append(append([]byte{}, clip[:36]...), list...), clip[36:]...)
	binary.LittleEndian.PutUint32(withList[4:8], uint32(len(withList)-8))

	got, rate, channels, err := DecodeWAV(withList)
	require.NoError(t, err)
	assert.Equal(t, pcm, got)
	assert.Equal(t, 44100, rate)
	assert.Equal(t, 2, channels)
}

func TestLevelSilence(t *testing.T) {
	assert.Zero(t, Level(nil))
	assert.Zero(t, Level(make([]byte, FrameSize)))
	assert.Zero(t, Level([]byte{0x01})) // truncated sample
}

func TestLevelFullScaleClamps(t *testing.T) {
	frame := make([]byte, FrameSize)
	for i := 0; i+1 < len(frame); i += 2 {
		binary.LittleEndian.PutUint16(frame[i:], 0x7FFF)
	}
	assert.Equal(t, 1.0, Level(frame))
}

func TestLevelMidRange(t *testing.T) {
	frame := make([]byte, 4)
	up, down := int16(8192), int16(-8192)
	binary.LittleEndian.PutUint16(frame[0:], uint16(up))
	binary.LittleEndian.PutUint16(frame[2:], uint16(down))

	assert.InDelta(t, 0.5, Level(frame), 0.001)
}
