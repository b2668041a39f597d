// Package audio encodes and inspects 16-bit PCM WAV payloads.
package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

const headerSize = 44

// WAVHeader is the canonical 44-byte PCM header.
type WAVHeader struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32  // file size - 8
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32  // 16 for PCM
	AudioFormat   uint16  // 1 for PCM
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32
}

// Info describes a parsed WAV payload. DataOffset and DataSize locate the
// sample bytes inside the original slice.
type Info struct {
	AudioFormat   int
	Channels      int
	SampleRate    int
	BitsPerSample int
	DataOffset    int
	DataSize      int
}

func (i Info) Duration() time.Duration {
	bytesPerSecond := i.SampleRate * i.Channels * i.BitsPerSample / 8
	if bytesPerSecond <= 0 {
		return 0
	}
	return time.Duration(int64(i.DataSize) * int64(time.Second) / int64(bytesPerSecond))
}

var ErrNotWAV = errors.New("audio: not a RIFF/WAVE payload")

// EncodePCM16 wraps little-endian mono 16-bit samples in a WAV container.
func EncodePCM16(pcm []byte, sampleRate int) ([]byte, error) {
	if len(pcm) == 0 {
		return nil, fmt.Errorf("audio: cannot encode empty pcm")
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("audio: sample rate must be positive, got %d", sampleRate)
	}
	if len(pcm)%2 != 0 {
		return nil, fmt.Errorf("audio: odd pcm length %d for 16-bit samples", len(pcm))
	}
	const channels, bits = 1, 16
	dataSize := uint32(len(pcm))
	header := WAVHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + dataSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1,
		NumChannels:   channels,
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate) * channels * bits / 8,
		BlockAlign:    channels * bits / 8,
		BitsPerSample: bits,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}
	buf := bytes.NewBuffer(make([]byte, 0, headerSize+len(pcm)))
	if err := binary.Write(buf, binary.LittleEndian, header); err != nil {
		return nil, fmt.Errorf("audio: write header: %w", err)
	}
	buf.Write(pcm)
	return buf.Bytes(), nil
}

// Parse walks the RIFF chunks, so extra chunks such as LIST before "data" are
// tolerated. A data size running past the payload is clamped.
func Parse(data []byte) (Info, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return Info{}, ErrNotWAV
	}
	var info Info
	haveFmt := false
	for off := 12; off+8 <= len(data); {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8
		switch id {
		case "fmt ":
			if size < 16 || body+16 > len(data) {
				return Info{}, fmt.Errorf("audio: truncated fmt chunk")
			}
			info.AudioFormat = int(binary.LittleEndian.Uint16(data[body:]))
			info.Channels = int(binary.LittleEndian.Uint16(data[body+2:]))
			info.SampleRate = int(binary.LittleEndian.Uint32(data[body+4:]))
			info.BitsPerSample = int(binary.LittleEndian.Uint16(data[body+14:]))
			haveFmt = true
		case "data":
			if !haveFmt {
				return Info{}, fmt.Errorf("audio: data chunk before fmt chunk")
			}
			if body+size > len(data) {
				size = len(data) - body
			}
			info.DataOffset = body
			info.DataSize = size
			return info, nil
		}
		off = body + size + size%2
	}
	return Info{}, fmt.Errorf("audio: missing data chunk")
}

// Duration reports the playback length of a WAV payload.
func Duration(data []byte) (time.Duration, error) {
	info, err := Parse(data)
	if err != nil {
		return 0, err
	}
	return info.Duration(), nil
}

// PCM returns the sample bytes of a WAV payload without copying.
func PCM(data []byte) ([]byte, Info, error) {
	info, err := Parse(data)
	if err != nil {
		return nil, Info{}, err
	}
	return data[info.DataOffset : info.DataOffset+info.DataSize], info, nil
}
