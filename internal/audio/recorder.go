package audio

import (
	"errors"
	"time"
)

// Status represents the current state of a recording session
type Status string

const (
	StatusIdle      Status = "IDLE"
	StatusArmed     Status = "ARMED"
	StatusRecording Status = "RECORDING"
	StatusStopping  Status = "STOPPING"
)

var (
	// ErrAlreadyRecording is returned by Start while a take is in progress
	ErrAlreadyRecording = errors.New("recording already in progress")

	// ErrNotRecording is returned by Stop when there is nothing to stop
	ErrNotRecording = errors.New("no recording in progress")
)

// SessionInfo contains information about the current recording session
type SessionInfo struct {
	ID            string    `json:"id"`
	OutputFile    string    `json:"output_file"`
	StartTime     time.Time `json:"start_time"`
	SampleRate    int       `json:"sample_rate"`
	ChannelCount  int       `json:"channel_count"`
	FramesWritten int64     `json:"frames_written"`
	Overflows     uint64    `json:"overflows"`

	// Buffered is the number of frames waiting for the next drain
	Buffered    int           `json:"buffered"`
	DrainPeriod time.Duration `json:"drain_period"`
}

// Recorder is the contract the host integration layer drives
type Recorder interface {
	Start(path string) error
	Stop() error
	Toggle(path string) error

	// Tick is called once per audio tick from the real-time path
	Tick(values []float32) bool

	// Status and information
	IsRecording() bool
	Status() (Status, *SessionInfo)
	LastError() error
	Overflows() uint64
}
