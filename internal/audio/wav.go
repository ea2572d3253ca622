package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const wavHeaderSize = 44

// ErrNotWAV is returned when clip data is not a RIFF/WAVE container.
var ErrNotWAV = errors.New("not a WAV clip")

// EncodeWAV wraps raw S16LE PCM in a minimal RIFF/WAVE container.
func EncodeWAV(pcm []byte, sampleRate, channels int) []byte {
	byteRate := sampleRate * channels * 2
	blockAlign := channels * 2

	buf := make([]byte, wavHeaderSize+len(pcm))
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+len(pcm)))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16) // PCM chunk size
	binary.LittleEndian.PutUint16(buf[20:22], 1)  // PCM format
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], 16) // Bits per sample
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(len(pcm)))
	copy(buf[wavHeaderSize:], pcm)
	return buf
}

// DecodeWAV extracts PCM data and format from a RIFF/WAVE clip. Only
// 16-bit PCM is supported; other encodings return an error.
func DecodeWAV(clip []byte) (pcm []byte, sampleRate, channels int, err error) {
	if len(clip) < wavHeaderSize || string(clip[0:4]) != "RIFF" || string(clip[8:12]) != "WAVE" {
		return nil, 0, 0, ErrNotWAV
	}

	// Walk chunks; fmt and data are not guaranteed to sit at fixed offsets.
	pos := 12
	var haveFmt bool
	for pos+8 <= len(clip) {
		id := string(clip[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(clip[pos+4 : pos+8]))
		body := pos + 8
		if body+size > len(clip) {
			size = len(clip) - body
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, 0, 0, fmt.Errorf("short fmt chunk: %d bytes", size)
			}
			format := binary.LittleEndian.Uint16(clip[body : body+2])
			if format != 1 {
				return nil, 0, 0, fmt.Errorf("unsupported WAV format %d", format)
			}
			channels = int(binary.LittleEndian.Uint16(clip[body+2 : body+4]))
			sampleRate = int(binary.LittleEndian.Uint32(clip[body+4 : body+8]))
			haveFmt = true
		case "data":
			pcm = clip[body : body+size]
		}

		pos = body + size
		if size%2 == 1 {
			pos++ // Chunks are word-aligned
		}
	}

	if !haveFmt || pcm == nil {
		return nil, 0, 0, ErrNotWAV
	}
	return pcm, sampleRate, channels, nil
}
