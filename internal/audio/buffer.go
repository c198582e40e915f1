package audio

import (
	"sync"
	"time"
)

// Buffer accumulates raw PCM samples for one session between inference
// passes. It is bounded: after any append the sample count never exceeds
// maxDuration * sampleRate, enforced by trimming the oldest samples. Frames
// arrive as 16-bit little-endian PCM bytes; an odd trailing byte is carried
// over to the next append so sample boundaries survive arbitrary framing.
type Buffer struct {
	sampleRate  int
	maxDuration time.Duration

	mu       sync.Mutex
	samples  []int16
	carry    byte
	hasCarry bool
}

// NewBuffer creates a buffer capped at maxDuration of audio.
func NewBuffer(sampleRate int, maxDuration time.Duration) *Buffer {
	return &Buffer{
		sampleRate:  sampleRate,
		maxDuration: maxDuration,
		samples:     make([]int16, 0, sampleRate*2),
	}
}

// Append decodes a PCM16LE frame into samples and enforces the cap.
func (b *Buffer) Append(pcm []byte) {
	if len(pcm) == 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.hasCarry {
		b.samples = append(b.samples, int16(b.carry)|int16(pcm[0])<<8)
		pcm = pcm[1:]
		b.hasCarry = false
	}
	for len(pcm) >= 2 {
		b.samples = append(b.samples, int16(pcm[0])|int16(pcm[1])<<8)
		pcm = pcm[2:]
	}
	if len(pcm) == 1 {
		b.carry = pcm[0]
		b.hasCarry = true
	}

	b.trimLocked(b.maxDuration)
}

// Samples returns a copy of the buffered samples for an inference pass.
func (b *Buffer) Samples() []int16 {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]int16, len(b.samples))
	copy(out, b.samples)
	return out
}

// Len returns the buffered sample count.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.samples)
}

// Duration returns how much audio is currently buffered.
func (b *Buffer) Duration() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.durationLocked()
}

// TrimToLast drops everything except the most recent d of audio, keeping
// tail context for the next pass while bounding memory and recompute cost.
func (b *Buffer) TrimToLast(d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.trimLocked(d)
}

// Reset discards all buffered audio.
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.samples = b.samples[:0]
	b.hasCarry = false
}

// MaxSamples returns the hard cap in samples.
func (b *Buffer) MaxSamples() int {
	return int(b.maxDuration.Seconds() * float64(b.sampleRate))
}

func (b *Buffer) durationLocked() time.Duration {
	return time.Duration(len(b.samples)) * time.Second / time.Duration(b.sampleRate)
}

func (b *Buffer) trimLocked(keep time.Duration) {
	max := int(keep.Seconds() * float64(b.sampleRate))
	if max < 0 {
		max = 0
	}
	if len(b.samples) <= max {
		return
	}
	drop := len(b.samples) - max
	copy(b.samples, b.samples[drop:])
	b.samples = b.samples[:max]
}
