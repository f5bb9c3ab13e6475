package waveform

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	// BitDepth is the only sample width written
	BitDepth = 16

	formatPCM = 1
)

// Writer appends interleaved 16-bit PCM to a RIFF/WAVE stream and patches
// the chunk sizes on Close. A Writer is owned by a single goroutine.
type Writer struct {
	path     string
	channels int

	out     io.WriteSeeker
	encoder *wav.Encoder
	buf     *goaudio.IntBuffer

	frames int
	closed bool
}

// Option configures a Writer
type Option func(*Writer)

// WithMetadata stores a LIST/INFO chunk with the given software tag and comment
// when the file is finalized
func WithMetadata(software, comment string) Option {
	return func(w *Writer) {
		if software == "" && comment == "" {
			return
		}
		w.encoder.Metadata = &wav.Metadata{
			Software:     software,
			Comments:     comment,
			CreationDate: time.Now().Format("2006-01-02"),
		}
	}
}

// Open creates path and writes the WAVE header for the given format
func Open(path string, sampleRate, channels int, opts ...Option) (*Writer, error) {
	if err := validateFormat(sampleRate, channels); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOpen, err)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOpen, err)
	}

	w, err := NewWriter(f, sampleRate, channels, opts...)
	if err != nil {
		f.Close()
		os.Remove(path)
		return nil, err
	}
	w.path = path

	slog.Debug("Waveform writer opened", "path", path, "sample_rate", sampleRate, "channels", channels)
	return w, nil
}

// NewWriter writes the WAVE header to out and returns a Writer appending to it.
// If out implements io.Closer it is closed by Close.
func NewWriter(out io.WriteSeeker, sampleRate, channels int, opts ...Option) (*Writer, error) {
	if err := validateFormat(sampleRate, channels); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOpen, err)
	}

	w := &Writer{
		channels: channels,
		out:      out,
		encoder:  wav.NewEncoder(out, sampleRate, BitDepth, channels, formatPCM),
		buf: &goaudio.IntBuffer{
			Format: &goaudio.Format{
				NumChannels: channels,
				SampleRate:  sampleRate,
			},
			SourceBitDepth: BitDepth,
		},
	}
	for _, opt := range opts {
		opt(w)
	}

	// An empty buffer makes the encoder emit RIFF, fmt and the data chunk
	// header now rather than on the first real write.
	if err := w.encoder.Write(w.buf); err != nil {
		return nil, fmt.Errorf("%w: writing header: %w", ErrOpen, err)
	}

	return w, nil
}

func validateFormat(sampleRate, channels int) error {
	if sampleRate <= 0 {
		return fmt.Errorf("sample rate must be > 0, got %d", sampleRate)
	}
	if channels <= 0 || channels > 0xFFFF {
		return fmt.Errorf("channel count out of range: %d", channels)
	}
	return nil
}

// WriteInterleaved appends samples laid out ch0, ch1, ..., chN-1, ch0, ...
func (w *Writer) WriteInterleaved(samples []int16) error {
	if w.closed {
		return ErrClosed
	}
	if len(samples)%w.channels != 0 {
		return fmt.Errorf("%w: %d samples for %d channels", ErrMisaligned, len(samples), w.channels)
	}
	if len(samples) == 0 {
		return nil
	}

	if cap(w.buf.Data) < len(samples) {
		w.buf.Data = make([]int, len(samples))
	}
	w.buf.Data = w.buf.Data[:len(samples)]
	for i, s := range samples {
		w.buf.Data[i] = int(s)
	}

	if err := w.encoder.Write(w.buf); err != nil {
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}
	w.frames += len(samples) / w.channels
	return nil
}

// Close finalizes the chunk sizes and releases the stream. Calling Close
// more than once is a no-op.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	encErr := w.encoder.Close()

	var closeErr error
	if c, ok := w.out.(io.Closer); ok {
		closeErr = c.Close()
	}

	if encErr != nil {
		return fmt.Errorf("%w: finalizing header: %w", ErrClose, encErr)
	}
	if closeErr != nil {
		return fmt.Errorf("%w: %w", ErrClose, closeErr)
	}

	slog.Debug("Waveform writer closed", "path", w.path, "frames", w.frames)
	return nil
}

// Frames returns the number of frames written so far
func (w *Writer) Frames() int {
	return w.frames
}
