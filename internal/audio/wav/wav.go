// Package wav reads and writes the RIFF/WAVE headers of PCM audio files.
package wav

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const formatPCM = 1

var (
	ErrNotWAV = errors.New("not a RIFF/WAVE file")
	ErrNotPCM = errors.New("only PCM WAV files are supported")
)

// Header describes a PCM WAV file. DataOffset is where the samples start.
type Header struct {
	AudioFormat   uint16
	Channels      uint16
	SampleRate    uint32
	BitsPerSample uint16
	DataOffset    int64
	DataSize      uint32
}

// Duration of the sample data in milliseconds.
func (h Header) DurationMs() int64 {
	bytesPerSec := int64(h.SampleRate) * int64(h.Channels) * int64(h.BitsPerSample) / 8
	if bytesPerSec == 0 {
		return 0
	}
	return int64(h.DataSize) * 1000 / bytesPerSec
}

// ReadHeader walks the chunks up to "data". r is left positioned at the
// first sample.
func ReadHeader(r io.Reader) (Header, error) {
	var h Header

	riff := make([]byte, 12)
	if _, err := io.ReadFull(r, riff); err != nil {
		return h, fmt.Errorf("%w: %v", ErrNotWAV, err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return h, ErrNotWAV
	}

	offset := int64(12)
	seenFmt := false
	chunk := make([]byte, 8)
	for {
		if _, err := io.ReadFull(r, chunk); err != nil {
			return h, fmt.Errorf("%w: missing data chunk", ErrNotWAV)
		}
		offset += 8
		id := string(chunk[0:4])
		size := binary.LittleEndian.Uint32(chunk[4:8])

		switch id {
		case "fmt ":
			if size < 16 {
				return h, fmt.Errorf("%w: short fmt chunk", ErrNotWAV)
			}
			body := make([]byte, size)
			if _, err := io.ReadFull(r, body); err != nil {
				return h, fmt.Errorf("%w: %v", ErrNotWAV, err)
			}
			h.AudioFormat = binary.LittleEndian.Uint16(body[0:2])
			h.Channels = binary.LittleEndian.Uint16(body[2:4])
			h.SampleRate = binary.LittleEndian.Uint32(body[4:8])
			h.BitsPerSample = binary.LittleEndian.Uint16(body[14:16])
			seenFmt = true
		case "data":
			if !seenFmt {
				return h, fmt.Errorf("%w: data before fmt chunk", ErrNotWAV)
			}
			if h.AudioFormat != formatPCM {
				return h, ErrNotPCM
			}
			h.DataOffset = offset
			h.DataSize = size
			return h, nil
		default:
			if _, err := io.CopyN(io.Discard, r, int64(size)); err != nil {
				return h, fmt.Errorf("%w: %v", ErrNotWAV, err)
			}
		}
		offset += int64(size)
		// chunks are word aligned
		if size%2 == 1 {
			if _, err := io.CopyN(io.Discard, r, 1); err != nil {
				return h, fmt.Errorf("%w: %v", ErrNotWAV, err)
			}
			offset++
		}
	}
}

// Encode wraps pcm in a canonical 44-byte PCM header.
func Encode(sampleRate uint32, channels, bitsPerSample uint16, pcm []byte) []byte {
	blockAlign := channels * bitsPerSample / 8
	var buf bytes.Buffer
	buf.Grow(44 + len(pcm))
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(formatPCM))
	binary.Write(&buf, binary.LittleEndian, channels)
	binary.Write(&buf, binary.LittleEndian, sampleRate)
	binary.Write(&buf, binary.LittleEndian, sampleRate*uint32(blockAlign))
	binary.Write(&buf, binary.LittleEndian, blockAlign)
	binary.Write(&buf, binary.LittleEndian, bitsPerSample)
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)
	return buf.Bytes()
}
