package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/audiolibrelab/multirec/internal/audio"
	"github.com/audiolibrelab/multirec/internal/config"
	"github.com/audiolibrelab/multirec/internal/play"
	"github.com/audiolibrelab/multirec/internal/waveform"
)

// TakeExtension is the file extension of every recorded take
const TakeExtension = ".wav"

// Service represents the core multirec service interface
type Service interface {
	// Recording operations
	StartRecording(take string) error
	StopRecording() error
	ToggleRecording(take string) error
	GetRecordingStatus() (RecordingStatus, *RecordingSession)

	// Playback operations
	Play(take string) error

	// Configuration operations
	LoadProfile(profile string) error
	GetConfig() *config.Config

	// Information operations
	GetTakeInfo(take string) (*TakeInfo, error)
	ListTakes() ([]TakeFile, error)
	GetLastError() string
	Overflows() uint64

	Close() error
}

// RecordingStatus represents the current recording state
type RecordingStatus string

const (
	StatusIdle      RecordingStatus = "IDLE"
	StatusArmed     RecordingStatus = "ARMED"
	StatusRecording RecordingStatus = "RECORDING"
	StatusStopping  RecordingStatus = "STOPPING"
	StatusError     RecordingStatus = "ERROR"
)

// RecordingSession contains information about the current recording session
type RecordingSession struct {
	ID            string    `json:"id"`
	TakeName      string    `json:"take_name"`
	StartTime     time.Time `json:"start_time"`
	OutputFile    string    `json:"output_file"`
	SampleRate    int       `json:"sample_rate"`
	ChannelCount  int       `json:"channel_count"`
	ChannelNames  []string  `json:"channel_names"`
	FramesWritten int64     `json:"frames_written"`
	Overflows     uint64    `json:"overflows"`
	Buffered      int       `json:"buffered"`
	DrainPeriod   string    `json:"drain_period"`
}

// TakeInfo contains file path information for a take
type TakeInfo struct {
	CleanName  string         `json:"clean_name" yaml:"clean_name"`
	OutputFile string         `json:"output_file" yaml:"output_file"`
	Exists     bool           `json:"exists" yaml:"exists"`
	File       *waveform.Info `json:"file,omitempty" yaml:"file,omitempty"`
}

// TakeFile contains information about a recorded take on disk
type TakeFile struct {
	Name         string    `json:"name"`
	Path         string    `json:"path"`
	Size         int64     `json:"size"`
	SizeHuman    string    `json:"size_human"`
	ModTime      time.Time `json:"mod_time"`
	ModTimeHuman string    `json:"mod_time_human"`
	Duration     string    `json:"duration,omitempty"`
	Channels     int       `json:"channels,omitempty"`
	SampleRate   int       `json:"sample_rate,omitempty"`
	StreamURL    string    `json:"stream_url"`
}

// SourceFactory builds the signal source feeding a take
type SourceFactory func(cfg *config.Config) (audio.Source, error)

func defaultSourceFactory(cfg *config.Config) (audio.Source, error) {
	src, err := audio.NewSource(cfg)
	if err != nil {
		return nil, err
	}
	return src, nil
}

// MultirecService is the main service implementation. It owns one recording
// session and runs the sample clock for the life of each take.
type MultirecService struct {
	// mu guards the fields below and serializes start/stop/profile changes
	mu         sync.Mutex
	cfg        *config.Config
	configFile string
	session    *audio.Session
	newSource  SourceFactory
	takeName   string

	cancelClock context.CancelFunc
	clockDone   chan struct{}

	// Error tracking
	lastError      string
	lastErrorMutex sync.RWMutex
}

// Option configures a MultirecService
type Option func(*MultirecService)

// WithSourceFactory replaces the generator-based signal source
func WithSourceFactory(f SourceFactory) Option {
	return func(s *MultirecService) {
		s.newSource = f
	}
}

// New creates a new multirec service instance
func New(cfg *config.Config, configFile string, opts ...Option) (*MultirecService, error) {
	session, err := newSession(cfg)
	if err != nil {
		return nil, err
	}

	s := &MultirecService{
		cfg:        cfg,
		configFile: configFile,
		session:    session,
		newSource:  defaultSourceFactory,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func newSession(cfg *config.Config) (*audio.Session, error) {
	session, err := audio.NewSession(audio.SessionConfig{
		SampleRate:  cfg.Audio.SampleRate,
		Channels:    len(cfg.Channels),
		Capacity:    cfg.Buffer.CapacityFrames,
		LineLevel:   float32(cfg.Audio.LineLevel),
		DrainPeriod: cfg.DrainPeriod(),
		Software:    cfg.Output.SoftwareTag,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create recording session: %w", err)
	}
	return session, nil
}

// TakePath resolves a take name to its file in the output directory
func (s *MultirecService) TakePath(take string) (string, error) {
	cleanName := cleanFileName(take)
	if cleanName == "" {
		return "", fmt.Errorf("invalid take name: %q", take)
	}
	return filepath.Join(s.GetConfig().Output.Directory, cleanName+TakeExtension), nil
}

// StartRecording opens the take's file and starts feeding it from the clock
func (s *MultirecService) StartRecording(take string) error {
	slog.Debug("Service.StartRecording called", "take", take)
	s.clearLastError()

	s.mu.Lock()
	defer s.mu.Unlock()

	path, err := s.takePathLocked(take)
	if err != nil {
		s.setLastError(err.Error())
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		err = fmt.Errorf("failed to create output directory: %w", err)
		s.setLastError(err.Error())
		return err
	}

	src, err := s.newSource(s.cfg)
	if err != nil {
		err = fmt.Errorf("failed to create signal source: %w", err)
		s.setLastError(err.Error())
		return err
	}

	session := s.session

	// A take that aborted on its own may still have its clock winding down
	if !session.IsRecording() {
		s.stopClockLocked()
	}

	if err := session.Start(path); err != nil {
		s.setLastError(fmt.Sprintf("Failed to start recording: %v", err))
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	clockDone := make(chan struct{})
	clock := audio.NewClock(s.cfg.Audio.SampleRate)

	go func() {
		defer close(clockDone)
		if err := clock.Run(ctx, src, session.Tick); err != nil {
			slog.Error("Sample clock failed", "error", err)
		}
		slog.Debug("Sample clock stopped", "ticks", clock.Ticks(), "rejected", clock.Rejected())
	}()

	// The drain worker can end the take on its own after a write failure
	go s.watchTake(session, session.Done(), cancel)

	s.takeName = take
	s.cancelClock = cancel
	s.clockDone = clockDone

	slog.Info("Recording take", "take", take, "path", path)
	return nil
}

func (s *MultirecService) watchTake(session *audio.Session, done <-chan struct{}, cancelClock context.CancelFunc) {
	if done == nil {
		return
	}
	<-done
	cancelClock()

	if err := session.LastError(); err != nil && errors.Is(err, waveform.ErrWrite) {
		s.setLastError(fmt.Sprintf("Recording aborted: %v", err))
	}
}

// StopRecording stops the current take and finalizes its file
func (s *MultirecService) StopRecording() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.session.Stop()
	s.stopClockLocked()

	// Nothing to stop: keep the error of a take that aborted on its own
	if errors.Is(err, audio.ErrNotRecording) {
		return err
	}
	if err != nil {
		s.setLastError(fmt.Sprintf("Failed to stop recording: %v", err))
		return err
	}

	s.clearLastError()
	slog.Info("Take finalized", "take", s.takeName, "frames", s.session.FramesWritten())
	return nil
}

func (s *MultirecService) stopClockLocked() {
	if s.cancelClock != nil {
		s.cancelClock()
		<-s.clockDone
		s.cancelClock = nil
		s.clockDone = nil
	}
}

// ToggleRecording starts a take when idle and stops the current one otherwise
func (s *MultirecService) ToggleRecording(take string) error {
	if s.currentSession().IsRecording() {
		return s.StopRecording()
	}
	return s.StartRecording(take)
}

// GetRecordingStatus returns the current recording status and session info
func (s *MultirecService) GetRecordingStatus() (RecordingStatus, *RecordingSession) {
	s.mu.Lock()
	session, cfg, takeName := s.session, s.cfg, s.takeName
	s.mu.Unlock()

	status, info := session.Status()

	var svcStatus RecordingStatus
	switch status {
	case audio.StatusIdle:
		svcStatus = StatusIdle
		// The session error is set before the drain worker exits, ahead of watchTake
		if s.GetLastError() != "" || session.LastError() != nil {
			svcStatus = StatusError
		}
	case audio.StatusArmed:
		svcStatus = StatusArmed
	case audio.StatusRecording:
		svcStatus = StatusRecording
	case audio.StatusStopping:
		svcStatus = StatusStopping
	}

	var svcSession *RecordingSession
	if info != nil {
		svcSession = &RecordingSession{
			ID:            info.ID,
			TakeName:      takeName,
			StartTime:     info.StartTime,
			OutputFile:    info.OutputFile,
			SampleRate:    info.SampleRate,
			ChannelCount:  info.ChannelCount,
			ChannelNames:  cfg.ChannelNames(),
			FramesWritten: info.FramesWritten,
			Overflows:     info.Overflows,
			Buffered:      info.Buffered,
			DrainPeriod:   info.DrainPeriod.String(),
		}
	}

	return svcStatus, svcSession
}

// Play plays a finished take
func (s *MultirecService) Play(take string) error {
	path, err := s.TakePath(take)
	if err != nil {
		return err
	}
	return play.New().Play(path)
}

// LoadProfile loads a new configuration profile
func (s *MultirecService) LoadProfile(profile string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session.IsRecording() {
		return fmt.Errorf("cannot switch profile while recording")
	}

	newCfg, err := config.LoadWithProfile(s.configFile, profile)
	if err != nil {
		return fmt.Errorf("failed to load profile '%s': %w", profile, err)
	}

	session, err := newSession(newCfg)
	if err != nil {
		return err
	}

	s.cfg = newCfg
	s.session = session
	slog.Info("Profile loaded", "profile", profile, "channels", len(newCfg.Channels))
	return nil
}

// GetConfig returns the current configuration
func (s *MultirecService) GetConfig() *config.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// GetTakeInfo returns file path information for a take, and its header if recorded
func (s *MultirecService) GetTakeInfo(take string) (*TakeInfo, error) {
	path, err := s.TakePath(take)
	if err != nil {
		return nil, err
	}

	info := &TakeInfo{
		CleanName:  cleanFileName(take),
		OutputFile: path,
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return info, nil
		}
		return nil, err
	}
	info.Exists = true

	fileInfo, err := waveform.Inspect(path)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect %s: %w", path, err)
	}
	info.File = fileInfo
	return info, nil
}

// ListTakes returns all recorded takes in the output directory, newest first
func (s *MultirecService) ListTakes() ([]TakeFile, error) {
	dir := s.GetConfig().Output.Directory

	files, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []TakeFile{}, nil
		}
		return nil, fmt.Errorf("failed to read output directory: %w", err)
	}

	takes := []TakeFile{}
	for _, file := range files {
		if file.IsDir() || !strings.EqualFold(filepath.Ext(file.Name()), TakeExtension) {
			continue
		}

		info, err := file.Info()
		if err != nil {
			slog.Warn("Failed to get file info", "file", file.Name(), "error", err)
			continue
		}

		path := filepath.Join(dir, file.Name())
		take := TakeFile{
			Name:         file.Name(),
			Path:         path,
			Size:         info.Size(),
			SizeHuman:    formatBytes(info.Size()),
			ModTime:      info.ModTime(),
			ModTimeHuman: info.ModTime().Format("2006-01-02 15:04:05"),
			StreamURL:    fmt.Sprintf("/api/takes/stream/%s", file.Name()),
		}

		// A take still being recorded has no final sizes yet
		if header, err := waveform.Inspect(path); err == nil {
			take.Duration = header.Duration.String()
			take.Channels = header.Channels
			take.SampleRate = header.SampleRate
		} else {
			slog.Debug("Skipping header of unreadable take", "file", file.Name(), "error", err)
		}

		takes = append(takes, take)
	}

	sort.Slice(takes, func(i, j int) bool {
		return takes[i].ModTime.After(takes[j].ModTime)
	})

	return takes, nil
}

// Monitor logs the progress of the take in progress every interval, warns
// about frames dropped since the previous report, and reports a take that
// ended in error once. It returns when ctx is done.
func (s *MultirecService) Monitor(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("monitor interval must be > 0, got %v", interval)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastOverflows uint64
	var reported string

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		status, session := s.GetRecordingStatus()
		switch {
		case session != nil:
			slog.Info("Take progress", "take", session.TakeName, "status", status,
				"frames", session.FramesWritten, "buffered", session.Buffered, "overflows", session.Overflows)
			if session.Overflows > lastOverflows {
				slog.Warn("Frames dropped since last report", "take", session.TakeName,
					"dropped", session.Overflows-lastOverflows)
			}
			lastOverflows = session.Overflows
			reported = ""

		case status == StatusError:
			if msg := s.GetLastError(); msg != reported {
				slog.Warn("Recorder in error state", "error", msg)
				reported = msg
			}
			lastOverflows = 0

		default:
			lastOverflows = 0
		}
	}
}

// Overflows returns the number of frames dropped on a full queue
func (s *MultirecService) Overflows() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.Overflows()
}

// Close stops any take in progress, or waits for one that is aborting
func (s *MultirecService) Close() error {
	session := s.currentSession()
	if !session.IsRecording() {
		session.Wait()
		s.mu.Lock()
		s.stopClockLocked()
		s.mu.Unlock()
		return nil
	}
	err := s.StopRecording()
	if errors.Is(err, audio.ErrNotRecording) {
		return nil
	}
	return err
}

func (s *MultirecService) currentSession() *audio.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

func (s *MultirecService) takePathLocked(take string) (string, error) {
	cleanName := cleanFileName(take)
	if cleanName == "" {
		return "", fmt.Errorf("invalid take name: %q", take)
	}
	return filepath.Join(s.cfg.Output.Directory, cleanName+TakeExtension), nil
}

// Helper functions

func cleanFileName(name string) string {
	// Remove special characters and replace spaces with underscores
	// Allows: letters, numbers, spaces, hyphens, underscores
	name = strings.TrimSuffix(name, TakeExtension)
	var result strings.Builder
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == ' ' || r == '-' || r == '_' {
			result.WriteRune(r)
		}
	}
	return strings.ReplaceAll(strings.TrimSpace(result.String()), " ", "_")
}

// CleanFileName exposes the take name sanitiser to the CLI
func CleanFileName(name string) string {
	return cleanFileName(name)
}

// GetLastError returns the last error message (thread-safe). A take that
// aborted is reported even before watchTake has recorded it.
func (s *MultirecService) GetLastError() string {
	s.lastErrorMutex.RLock()
	msg := s.lastError
	s.lastErrorMutex.RUnlock()

	if msg == "" {
		if err := s.currentSession().LastError(); err != nil {
			msg = fmt.Sprintf("Recording aborted: %v", err)
		}
	}
	return msg
}

// setLastError sets the last error message (thread-safe)
func (s *MultirecService) setLastError(err string) {
	s.lastErrorMutex.Lock()
	defer s.lastErrorMutex.Unlock()
	s.lastError = err

	slog.Error("Service error occurred", "error_message", err)
}

// clearLastError clears the last error message (thread-safe)
func (s *MultirecService) clearLastError() {
	s.lastErrorMutex.Lock()
	defer s.lastErrorMutex.Unlock()
	s.lastError = ""
}

// formatBytes formats bytes in human readable format
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
