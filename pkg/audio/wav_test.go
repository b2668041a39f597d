package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
	"time"
)

func TestEncodeAndParseRoundTrip(t *testing.T) {
	pcm := make([]byte, 32000) // 1s at 16kHz mono 16-bit
	for i := range pcm {
		pcm[i] = byte(i)
	}
	wav, err := EncodePCM16(pcm, 16000)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(wav) != headerSize+len(pcm) {
		t.Fatalf("unexpected size %d", len(wav))
	}
	body, info, err := PCM(wav)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if info.SampleRate != 16000 || info.Channels != 1 || info.BitsPerSample != 16 || info.AudioFormat != 1 {
		t.Fatalf("unexpected info %+v", info)
	}
	if !bytes.Equal(body, pcm) {
		t.Fatalf("pcm mismatch")
	}
	if d := info.Duration(); d != time.Second {
		t.Fatalf("expected 1s, got %v", d)
	}
}

func TestEncodeRejectsBadInput(t *testing.T) {
	if _, err := EncodePCM16(nil, 16000); err == nil {
		t.Fatalf("expected error for empty pcm")
	}
	if _, err := EncodePCM16([]byte{1, 2}, 0); err == nil {
		t.Fatalf("expected error for zero sample rate")
	}
	if _, err := EncodePCM16([]byte{1, 2, 3}, 16000); err == nil {
		t.Fatalf("expected error for odd length")
	}
}

func TestParseSkipsExtraChunks(t *testing.T) {
	wav, err := EncodePCM16(make([]byte, 2205*2), 22050)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	// insert a LIST chunk with an odd size between fmt and data
	list := []byte{'L', 'I', 'S', 'T', 0, 0, 0, 0, 'a', 'b', 'c', 0}
	binary.LittleEndian.PutUint32(list[4:8], 3)
	withList := append(append(append([]byte{}, wav[:36]...), list...), wav[36:]...)

	d, err := Duration(withList)
	if err != nil {
		t.Fatalf("duration: %v", err)
	}
	if d != 100*time.Millisecond {
		t.Fatalf("expected 100ms, got %v", d)
	}
}

func TestParseRejectsNonWAV(t *testing.T) {
	if _, err := Parse([]byte("ID3 not a wav file")); !errors.Is(err, ErrNotWAV) {
		t.Fatalf("expected ErrNotWAV, got %v", err)
	}
}
