package vad

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Classifier decides whether a single PCM frame contains speech.
type Classifier interface {
	IsSpeech(frame []byte, sampleRate int) (bool, error)
}

// ClassifierFunc adapts a plain function to Classifier.
type ClassifierFunc func(frame []byte, sampleRate int) (bool, error)

func (f ClassifierFunc) IsSpeech(frame []byte, sampleRate int) (bool, error) {
	return f(frame, sampleRate)
}

// DefaultEnergyThreshold is the RMS level (on the int16 scale) above which a
// frame counts as voiced.
const DefaultEnergyThreshold = 500.0

// EnergyClassifier is an RMS gate over 16-bit little-endian mono PCM.
type EnergyClassifier struct {
	Threshold float64
}

func NewEnergyClassifier(threshold float64) EnergyClassifier {
	if threshold <= 0 {
		threshold = DefaultEnergyThreshold
	}
	return EnergyClassifier{Threshold: threshold}
}

func (c EnergyClassifier) IsSpeech(frame []byte, sampleRate int) (bool, error) {
	if len(frame) == 0 || len(frame)%2 != 0 {
		return false, fmt.Errorf("energy classifier: frame of %d bytes is not 16-bit aligned", len(frame))
	}
	return RMS(frame) > c.Threshold, nil
}

// RMS returns the root mean square of 16-bit little-endian samples.
func RMS(frame []byte) float64 {
	n := len(frame) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		s := float64(int16(binary.LittleEndian.Uint16(frame[2*i:])))
		sum += s * s
	}
	return math.Sqrt(sum / float64(n))
}
