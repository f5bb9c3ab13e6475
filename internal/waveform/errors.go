package waveform

import "errors"

var (
	// ErrOpen is returned when the destination cannot be created or its header written.
	ErrOpen = errors.New("waveform: open failed")

	// ErrWrite is returned when sample data cannot be appended.
	ErrWrite = errors.New("waveform: write failed")

	// ErrClose is returned when the header cannot be finalized. The file may
	// still be readable by tools that ignore chunk sizes.
	ErrClose = errors.New("waveform: close failed")

	// ErrClosed is returned by writes after Close.
	ErrClosed = errors.New("waveform: writer closed")

	// ErrMisaligned is returned when a sample batch is not a whole number of frames.
	ErrMisaligned = errors.New("waveform: sample count is not a multiple of the channel count")
)
