package audio

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/audiolibrelab/multirec/internal/capture"
	"github.com/audiolibrelab/multirec/internal/waveform"
	"github.com/google/uuid"
)

const (
	minDrainPeriod = time.Millisecond
	maxDrainPeriod = time.Second
)

// SessionConfig fixes the format of every take recorded by a Session
type SessionConfig struct {
	SampleRate int
	Channels   int

	// Capacity is the number of frames buffered between drains
	Capacity int

	// LineLevel is the host signal level mapped to digital full scale
	LineLevel float32

	// DrainPeriod overrides the derived wake-up period when > 0
	DrainPeriod time.Duration

	// Software is stored in the file's INFO chunk when set
	Software string
}

// sampleWriter is the part of waveform.Writer the drain worker needs
type sampleWriter interface {
	WriteInterleaved(samples []int16) error
	Close() error
}

// Session records frames pushed from a real-time producer into a waveform
// file. The producer only ever calls Tick; everything that can block runs on
// the session's drain goroutine.
type Session struct {
	cfg    SessionConfig
	queue  *capture.FrameQueue
	period time.Duration

	openWriter func(path string, sampleRate, channels int) (sampleWriter, error)

	// lifecycle serializes Start and Stop, and is held across the join
	lifecycle sync.Mutex

	mu            sync.RWMutex
	status        Status
	info          *SessionInfo
	lastErr       error
	stopChan      chan struct{}
	doneChan      chan struct{}
	overflowStart uint64

	framesWritten atomic.Int64
}

var _ Recorder = (*Session)(nil)

// NewSession validates cfg and preallocates the frame queue
func NewSession(cfg SessionConfig) (*Session, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be > 0, got %d", cfg.SampleRate)
	}
	if cfg.Capacity == 0 {
		cfg.Capacity = capture.DefaultCapacity
	}
	if cfg.LineLevel <= 0 {
		cfg.LineLevel = capture.DefaultLineLevel
	}

	queue, err := capture.NewFrameQueue(cfg.Capacity, cfg.Channels)
	if err != nil {
		return nil, fmt.Errorf("failed to create frame queue: %w", err)
	}
	// Nothing is accepted until a take starts
	queue.Seal()

	s := &Session{
		cfg:    cfg,
		queue:  queue,
		period: DrainPeriod(cfg.Capacity, cfg.SampleRate, cfg.DrainPeriod),
		status: StatusIdle,
	}
	s.openWriter = s.openWaveform
	return s, nil
}

// DrainPeriod returns how often the drain worker wakes: half the time the
// producer needs to fill the queue, unless override is positive.
func DrainPeriod(capacity, sampleRate int, override time.Duration) time.Duration {
	if override > 0 {
		return override
	}
	if capacity <= 0 || sampleRate <= 0 {
		return maxDrainPeriod
	}
	period := time.Duration(capacity) * time.Second / time.Duration(sampleRate) / 2
	return min(max(period, minDrainPeriod), maxDrainPeriod)
}

func (s *Session) openWaveform(path string, sampleRate, channels int) (sampleWriter, error) {
	var opts []waveform.Option
	if s.cfg.Software != "" {
		opts = append(opts, waveform.WithMetadata(s.cfg.Software, ""))
	}
	return waveform.Open(path, sampleRate, channels, opts...)
}

// Start opens path and begins accepting frames. An empty path means the
// user cancelled and is not an error. Start blocks while a previous take is
// still being finalized.
func (s *Session) Start(path string) error {
	if path == "" {
		slog.Debug("Start ignored, no destination chosen")
		return nil
	}

	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.waitForStopping()

	s.mu.Lock()
	if s.status != StatusIdle {
		status := s.status
		s.mu.Unlock()
		return fmt.Errorf("%w (state %s)", ErrAlreadyRecording, status)
	}
	s.status = StatusArmed
	s.lastErr = nil
	s.mu.Unlock()

	writer, err := s.openWriter(path, s.cfg.SampleRate, s.cfg.Channels)
	if err != nil {
		s.mu.Lock()
		s.status = StatusIdle
		s.lastErr = err
		s.mu.Unlock()
		slog.Error("Failed to open recording", "path", path, "error", err)
		return err
	}

	id := uuid.NewString()
	logger := slog.Default().With("session", id)
	info := &SessionInfo{
		ID:           id,
		OutputFile:   path,
		StartTime:    time.Now(),
		SampleRate:   s.cfg.SampleRate,
		ChannelCount: s.cfg.Channels,
		DrainPeriod:  s.period,
	}
	stop := make(chan struct{})
	done := make(chan struct{})

	s.framesWritten.Store(0)
	s.queue.Reset()

	s.mu.Lock()
	s.info = info
	s.stopChan = stop
	s.doneChan = done
	s.overflowStart = s.queue.Overflows()
	s.status = StatusRecording
	s.mu.Unlock()

	go s.drainWorker(writer, stop, done, logger)

	logger.Info("Recording started", "path", path, "sample_rate", s.cfg.SampleRate,
		"channels", s.cfg.Channels, "drain_period", s.period)
	return nil
}

// waitForStopping joins a drain worker that is shutting itself down after a
// write failure
func (s *Session) waitForStopping() {
	s.mu.RLock()
	stopping := s.status == StatusStopping
	done := s.doneChan
	s.mu.RUnlock()

	if stopping && done != nil {
		<-done
	}
}

// Stop seals the queue, lets the drain worker write everything buffered,
// and waits for the file to be finalized. It returns the take's write or
// close error, if any.
func (s *Session) Stop() error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.mu.Lock()
	if s.status != StatusRecording && s.status != StatusStopping {
		s.mu.Unlock()
		return ErrNotRecording
	}
	stop, done := s.stopChan, s.doneChan
	s.status = StatusStopping
	s.mu.Unlock()

	slog.Debug("Stopping recording...")

	// The producer is refused from here on; everything it pushed before is drained below
	s.queue.Seal()
	close(stop)
	<-done

	s.mu.RLock()
	err := s.lastErr
	s.mu.RUnlock()
	return err
}

// Toggle starts a take when idle and stops it otherwise, like a record button
func (s *Session) Toggle(path string) error {
	if s.IsRecording() {
		return s.Stop()
	}
	return s.Start(path)
}

// Tick hands one frame to the session. It never blocks on I/O and returns
// false if the frame was not recorded.
func (s *Session) Tick(values []float32) bool {
	return s.queue.Push(values)
}

// drainWorker owns writer until it returns
func (s *Session) drainWorker(writer sampleWriter, stop, done chan struct{}, logger *slog.Logger) {
	defer close(done)

	ticker := time.NewTicker(s.period)
	defer ticker.Stop()

	var scratch []int16
	seen := s.queue.Overflows()
	var err error

	for {
		select {
		case <-stop:
			_, err = s.flush(writer, scratch)
			s.reportOverflows(logger, seen)
			if err != nil {
				s.abort(writer, err, logger)
				return
			}
			s.finish(writer, logger)
			return

		case <-ticker.C:
			scratch, err = s.flush(writer, scratch)
			seen = s.reportOverflows(logger, seen)
			if err != nil {
				s.abort(writer, err, logger)
				return
			}
		}
	}
}

// flush drains the queue and writes whatever it held
func (s *Session) flush(writer sampleWriter, scratch []int16) ([]int16, error) {
	if s.queue.IsFull() {
		slog.Debug("Frame queue full at drain", "period", s.period)
	}
	frames := s.queue.DrainAll()
	if len(frames) == 0 {
		return scratch, nil
	}

	scratch = capture.ConvertInto(scratch, frames, s.cfg.Channels, s.cfg.LineLevel)
	if err := writer.WriteInterleaved(scratch); err != nil {
		return scratch, err
	}
	s.framesWritten.Add(int64(len(frames)))
	return scratch, nil
}

func (s *Session) reportOverflows(logger *slog.Logger, seen uint64) uint64 {
	total := s.queue.Overflows()
	if total > seen {
		logger.Warn("Frame queue overflow, frames dropped", "dropped", total-seen, "total", total)
	}
	return total
}

// abort handles a write failure: the stream is broken, so buffered frames
// are discarded and the writer is closed best-effort
func (s *Session) abort(writer sampleWriter, err error, logger *slog.Logger) {
	s.queue.Seal()

	s.mu.Lock()
	s.status = StatusStopping
	s.lastErr = err
	s.mu.Unlock()

	logger.Error("Recording aborted after write failure", "error", err)

	if closeErr := writer.Close(); closeErr != nil {
		logger.Warn("Failed to close broken recording", "error", closeErr)
	}
	if lost := s.queue.DrainAll(); len(lost) > 0 {
		logger.Warn("Discarded buffered frames after write failure", "frames", len(lost))
	}

	s.reset()
}

// finish closes the writer after the final drain
func (s *Session) finish(writer sampleWriter, logger *slog.Logger) {
	closeErr := writer.Close()

	s.mu.Lock()
	if closeErr != nil {
		s.lastErr = closeErr
	}
	s.mu.Unlock()

	if closeErr != nil {
		logger.Error("Failed to finalize recording", "error", closeErr)
	} else {
		logger.Info("Recording completed", "frames", s.framesWritten.Load())
	}

	s.reset()
}

func (s *Session) reset() {
	s.mu.Lock()
	s.status = StatusIdle
	s.info = nil
	s.mu.Unlock()
}

// Wait blocks until the current drain worker, if any, has exited
func (s *Session) Wait() {
	s.mu.RLock()
	done := s.doneChan
	s.mu.RUnlock()

	if done != nil {
		<-done
	}
}

// Done returns a channel closed when the latest take's drain worker exits,
// or nil if no take was ever started
func (s *Session) Done() <-chan struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doneChan
}

// IsRecording reports whether frames are currently being accepted
func (s *Session) IsRecording() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status == StatusRecording
}

// Status returns the current state and a copy of the session info
func (s *Session) Status() (Status, *SessionInfo) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var infoCopy *SessionInfo
	if s.info != nil {
		c := *s.info
		c.FramesWritten = s.framesWritten.Load()
		c.Overflows = s.queue.Overflows() - s.overflowStart
		c.Buffered = s.queue.Len()
		infoCopy = &c
	}
	return s.status, infoCopy
}

// LastError returns the error of the most recent take, or nil
func (s *Session) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// Overflows returns the total number of frames dropped on a full queue
func (s *Session) Overflows() uint64 {
	return s.queue.Overflows()
}

// FramesWritten returns the number of frames written in the current or last take
func (s *Session) FramesWritten() int64 {
	return s.framesWritten.Load()
}
