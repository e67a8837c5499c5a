// Package audio holds the PCM math and buffering shared by capture and
// playback. All audio on the realtime channel is mono 16 kHz signed 16-bit
// little-endian PCM.
package audio

import (
	"math"
	"sync"
)

// Config describes a PCM stream layout.
type Config struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
}

// DefaultConfig returns the channel's canonical format: mono, 16 kHz,
// 16-bit.
func DefaultConfig() Config {
	return Config{
		SampleRate:    16000,
		Channels:      1,
		BitsPerSample: 16,
	}
}

// BytesPerSecond returns the stream's data rate.
func (c Config) BytesPerSecond() int {
	return c.SampleRate * c.Channels * c.BitsPerSample / 8
}

// DurationMS returns how many milliseconds of audio the given byte count
// holds.
func (c Config) DurationMS(bytes int) int {
	bps := c.BytesPerSecond()
	if bps == 0 {
		return 0
	}
	return bytes * 1000 / bps
}

// BytesForDuration returns the byte count for the given duration in
// milliseconds.
func (c Config) BytesForDuration(ms int) int {
	return c.BytesPerSecond() * ms / 1000
}

// perceptualGain scales raw RMS into a level that tracks perceived
// loudness for meter display. Speech RMS rarely exceeds 0.25 of full
// scale, so raw values would pin the meter near the bottom.
const perceptualGain = 4.0

// RMSEnergy computes the root-mean-square of a chunk of 16-bit LE PCM,
// normalized to [0, 1]. A trailing odd byte is ignored.
func RMSEnergy(pcm []byte) float64 {
	samples := len(pcm) / 2
	if samples == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < samples*2; i += 2 {
		s := int16(uint16(pcm[i]) | uint16(pcm[i+1])<<8)
		v := float64(s) / 32768.0
		sum += v * v
	}
	return math.Sqrt(sum / float64(samples))
}

// PeakAmplitude returns the largest absolute sample in the chunk,
// normalized to [0, 1].
func PeakAmplitude(pcm []byte) float64 {
	samples := len(pcm) / 2
	var peak float64
	for i := 0; i < samples*2; i += 2 {
		s := int16(uint16(pcm[i]) | uint16(pcm[i+1])<<8)
		v := math.Abs(float64(s) / 32768.0)
		if v > peak {
			peak = v
		}
	}
	return peak
}

// Level converts a chunk into a meter level in [0, 1] by applying the
// perceptual gain to its RMS energy.
func Level(pcm []byte) float64 {
	l := RMSEnergy(pcm) * perceptualGain
	if l > 1 {
		return 1
	}
	return l
}

// Buffer accumulates PCM bytes across chunk boundaries. It is safe for
// concurrent use.
type Buffer struct {
	mu  sync.Mutex
	buf []byte
}

// Write appends a chunk.
func (b *Buffer) Write(chunk []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, chunk...)
}

// Len returns the buffered byte count.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buf)
}

// Drain returns everything buffered so far and resets the buffer.
func (b *Buffer) Drain() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.buf
	b.buf = nil
	return out
}

// Reset discards all buffered audio.
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = nil
}
