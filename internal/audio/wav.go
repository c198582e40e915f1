package audio

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"
)

const (
	wavNumChannels   = 1
	wavBitsPerSample = 16
	wavHeaderSize    = 44
)

// WAVWriter is an append-only recording sink for one session. Frames are
// written incrementally as they arrive; the RIFF and data chunk sizes are
// patched when the file is closed, matching how call recordings are produced
// while the caller is still speaking.
type WAVWriter struct {
	path       string
	sampleRate int

	mu      sync.Mutex
	file    *os.File
	written uint32
	closed  bool
}

// NewWAVWriter creates path and writes a provisional mono/16-bit header.
func NewWAVWriter(path string, sampleRate int) (*WAVWriter, error) {
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create recording file: %w", err)
	}

	w := &WAVWriter{path: path, sampleRate: sampleRate, file: f}
	if err := w.writeHeader(0); err != nil {
		f.Close()
		os.Remove(path)
		return nil, err
	}
	return w, nil
}

// Path returns the recording file path.
func (w *WAVWriter) Path() string {
	return w.path
}

// WriteFrames appends raw PCM16LE bytes to the recording.
func (w *WAVWriter) WriteFrames(pcm []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return fmt.Errorf("recording %s: %w", w.path, os.ErrClosed)
	}
	n, err := w.file.Write(pcm)
	w.written += uint32(n)
	if err != nil {
		return fmt.Errorf("write recording frames: %w", err)
	}
	return nil
}

// Close patches the header sizes and closes the file. Safe to call more
// than once; later calls are no-ops.
func (w *WAVWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true

	if _, err := w.file.Seek(0, 0); err != nil {
		w.file.Close()
		return fmt.Errorf("seek recording header: %w", err)
	}
	if err := w.writeHeader(w.written); err != nil {
		w.file.Close()
		return err
	}
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("close recording file: %w", err)
	}
	return nil
}

func (w *WAVWriter) writeHeader(dataSize uint32) error {
	byteRate := uint32(w.sampleRate * wavNumChannels * wavBitsPerSample / 8)
	blockAlign := uint16(wavNumChannels * wavBitsPerSample / 8)

	header := make([]byte, 0, wavHeaderSize)
	header = append(header, "RIFF"...)
	header = binary.LittleEndian.AppendUint32(header, 36+dataSize)
	header = append(header, "WAVE"...)
	header = append(header, "fmt "...)
	header = binary.LittleEndian.AppendUint32(header, 16)
	header = binary.LittleEndian.AppendUint16(header, 1) // PCM
	header = binary.LittleEndian.AppendUint16(header, wavNumChannels)
	header = binary.LittleEndian.AppendUint32(header, uint32(w.sampleRate))
	header = binary.LittleEndian.AppendUint32(header, byteRate)
	header = binary.LittleEndian.AppendUint16(header, blockAlign)
	header = binary.LittleEndian.AppendUint16(header, wavBitsPerSample)
	header = append(header, "data"...)
	header = binary.LittleEndian.AppendUint32(header, dataSize)

	if _, err := w.file.Write(header); err != nil {
		return fmt.Errorf("write recording header: %w", err)
	}
	return nil
}
