package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// bitsPerSample is fixed: all PCM handled here is 16-bit signed little-endian.
const bitsPerSample = 16

// RMS returns the root-mean-square energy of a 16-bit LE PCM buffer, in the
// same units as sample values (0 to 32767). Buffers shorter than one sample
// yield 0.
func RMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		v := float64(int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2])))
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}

// DurationMs returns the playback duration in milliseconds of byteLen bytes
// of 16-bit PCM at the given sample rate and channel count. Invalid inputs
// yield 0.
func DurationMs(byteLen, sampleRate, channels int) int {
	if sampleRate <= 0 || channels <= 0 {
		return 0
	}
	bytesPerSec := sampleRate * channels * (bitsPerSample / 8)
	return byteLen * 1000 / bytesPerSec
}

// EncodeWAV wraps raw 16-bit LE PCM in a RIFF/WAV container.
func EncodeWAV(pcm []byte, sampleRate, channels int) []byte {
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8
	dataSize := len(pcm)

	buf := make([]byte, 44+dataSize)

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16) // PCM fmt chunk size
	binary.LittleEndian.PutUint16(buf[20:22], 1)  // PCM format
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], bitsPerSample)

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	copy(buf[44:], pcm)

	return buf
}

// WAVInfo describes the format of a decoded WAV file.
type WAVInfo struct {
	SampleRate int
	Channels   int
}

// DecodeWAV extracts 16-bit PCM data and format info from a RIFF/WAV buffer.
// Only uncompressed 16-bit PCM is supported.
func DecodeWAV(data []byte) ([]byte, WAVInfo, error) {
	if len(data) < 44 {
		return nil, WAVInfo{}, errors.New("audio: wav data too short")
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, WAVInfo{}, errors.New("audio: not a RIFF/WAVE file")
	}

	var info WAVInfo
	var pcm []byte
	sawFmt := false

	// Walk the chunk list; fmt and data may be separated by others (LIST, ...).
	off := 12
	for off+8 <= len(data) {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8
		if body+size > len(data) {
			size = len(data) - body
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, WAVInfo{}, errors.New("audio: fmt chunk too short")
			}
			format := binary.LittleEndian.Uint16(data[body : body+2])
			if format != 1 {
				return nil, WAVInfo{}, fmt.Errorf("audio: unsupported wav format %d (want PCM)", format)
			}
			bps := binary.LittleEndian.Uint16(data[body+14 : body+16])
			if bps != bitsPerSample {
				return nil, WAVInfo{}, fmt.Errorf("audio: unsupported bit depth %d (want 16)", bps)
			}
			info.Channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			info.SampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			sawFmt = true
		case "data":
			pcm = data[body : body+size]
		}

		// Chunks are word-aligned.
		off = body + size
		if size%2 == 1 {
			off++
		}
	}

	if !sawFmt {
		return nil, WAVInfo{}, errors.New("audio: missing fmt chunk")
	}
	if pcm == nil {
		return nil, WAVInfo{}, errors.New("audio: missing data chunk")
	}
	return pcm, info, nil
}
