package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/audiolibrelab/multirec/internal/audio"
	"github.com/audiolibrelab/multirec/internal/config"
	"github.com/audiolibrelab/multirec/internal/service"
	"github.com/spf13/viper"
)

const (
	streamPrefix    = "/api/takes/stream/"
	shutdownTimeout = 5 * time.Second
)

// Server is the HTTP remote control for the recorder
type Server struct {
	service    service.Service
	configFile string
	port       string
}

// StatusResponse represents the JSON response for status endpoint
type StatusResponse struct {
	Status      string                    `json:"status"`
	IsRecording bool                      `json:"is_recording"`
	Message     string                    `json:"message,omitempty"`
	LastError   string                    `json:"last_error,omitempty"`
	Overflows   uint64                    `json:"overflows"`
	Session     *service.RecordingSession `json:"session,omitempty"`
	Config      *ResolvedConfigInfo       `json:"resolved_config"`
}

// ResolvedConfigInfo contains configuration information for the UI
type ResolvedConfigInfo struct {
	OutputDir   string        `json:"output_dir"`
	SampleRate  int           `json:"sample_rate"`
	LineLevel   float64       `json:"line_level"`
	Capacity    int           `json:"capacity_frames"`
	DrainPeriod string        `json:"drain_period"`
	Channels    []ChannelInfo `json:"channels"`
}

// ChannelInfo describes one configured channel
type ChannelInfo struct {
	Name        string  `json:"name"`
	Signal      string  `json:"signal"`
	Frequency   float64 `json:"frequency,omitempty"`
	Amplitude   float64 `json:"amplitude"`
	Inheritance string  `json:"inheritance"` // "inherited" or "profile-specific"
}

// SourceInfo describes a signal kind the recorder can generate
type SourceInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Periodic    bool   `json:"periodic"`
}

// TakesResponse represents the JSON response for the takes endpoint
type TakesResponse struct {
	Takes     []service.TakeFile `json:"takes"`
	Directory string             `json:"directory"`
	Count     int                `json:"count"`
}

// GenericResponse is the body of every command endpoint
type GenericResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// New creates a server around svc. configFile is used to list profiles and
// may be empty when the built-in configuration is in use.
func New(svc service.Service, configFile string, port string) *Server {
	return &Server{
		service:    svc,
		configFile: configFile,
		port:       port,
	}
}

// Handler returns the server's routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/start", s.handleStartRecording)
	mux.HandleFunc("/stop", s.handleStopRecording)
	mux.HandleFunc("/toggle", s.handleToggleRecording)
	mux.HandleFunc("/sources", s.handleSources)
	mux.HandleFunc("/config/profiles", s.handleProfiles)
	mux.HandleFunc("/config/select", s.handleSelectProfile)
	mux.HandleFunc("/api/takes", s.handleTakes)
	mux.HandleFunc(streamPrefix, s.handleTakeStream)
	return mux
}

// Start serves until ctx is cancelled, then shuts down gracefully and
// finalizes any take in progress
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + s.port,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	localIP := getLocalIP()
	slog.Info("Starting multirec web server",
		"port", s.port,
		"local_url", fmt.Sprintf("http://%s:%s", localIP, s.port),
		"localhost_url", fmt.Sprintf("http://localhost:%s", s.port))

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.ListenAndServe()
	}()

	select {
	case err := <-errChan:
		s.service.Close()
		return err
	case <-ctx.Done():
	}

	slog.Info("Shutting down web server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := srv.Shutdown(shutdownCtx)
	if closeErr := s.service.Close(); closeErr != nil {
		slog.Error("Failed to finalize take on shutdown", "error", closeErr)
	}
	if err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Write([]byte(indexHTML))
}

const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>multirec</title>
</head>
<body>
    <h1>multirec</h1>
    <ul>
        <li>POST /start (take=name) - Start recording</li>
        <li>POST /stop - Stop recording</li>
        <li>POST /toggle (take=name) - Start or stop</li>
        <li>GET /status - Get status</li>
        <li>GET /sources - Signal kinds</li>
        <li>GET /config/profiles - List profiles</li>
        <li>POST /config/select (profile=name) - Switch profile</li>
        <li>GET /api/takes - List takes</li>
    </ul>
</body>
</html>`

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	status, session := s.service.GetRecordingStatus()

	response := StatusResponse{
		Status:      string(status),
		IsRecording: status == service.StatusRecording,
		Message:     s.generateStatusMessage(status, session),
		LastError:   s.service.GetLastError(),
		Overflows:   s.service.Overflows(),
		Session:     session,
		Config:      resolvedConfigInfo(s.service.GetConfig()),
	}

	writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleStartRecording(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	take, ok := s.takeFromForm(w, r)
	if !ok {
		return
	}

	if err := s.service.StartRecording(take); err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, audio.ErrAlreadyRecording) {
			code = http.StatusConflict
		}
		s.sendErrorResponse(w, code, fmt.Sprintf("Failed to start recording: %v", err),
			"operation", "start_recording", "take", take)
		return
	}

	writeJSON(w, http.StatusOK, GenericResponse{
		Success: true,
		Message: fmt.Sprintf("Recording %s", take),
	})
}

func (s *Server) handleStopRecording(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	if err := s.service.StopRecording(); err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, audio.ErrNotRecording) {
			code = http.StatusConflict
		}
		s.sendErrorResponse(w, code, fmt.Sprintf("Failed to stop recording: %v", err),
			"operation", "stop_recording")
		return
	}

	writeJSON(w, http.StatusOK, GenericResponse{Success: true, Message: "Recording stopped"})
}

func (s *Server) handleToggleRecording(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	status, _ := s.service.GetRecordingStatus()
	take := ""
	if status != service.StatusRecording {
		var ok bool
		if take, ok = s.takeFromForm(w, r); !ok {
			return
		}
	}

	if err := s.service.ToggleRecording(take); err != nil {
		s.sendErrorResponse(w, http.StatusInternalServerError, fmt.Sprintf("Toggle failed: %v", err),
			"operation", "toggle_recording")
		return
	}

	newStatus, _ := s.service.GetRecordingStatus()
	writeJSON(w, http.StatusOK, GenericResponse{Success: true, Message: string(newStatus)})
}

// takeFromForm reads and checks the take name, answering 400 when unusable
func (s *Server) takeFromForm(w http.ResponseWriter, r *http.Request) (string, bool) {
	if err := r.ParseForm(); err != nil {
		s.sendErrorResponse(w, http.StatusBadRequest, "Invalid form data")
		return "", false
	}

	take := strings.TrimSpace(r.FormValue("take"))
	if take == "" {
		take = "take_" + time.Now().Format("20060102_150405")
	}
	if service.CleanFileName(take) == "" {
		s.sendErrorResponse(w, http.StatusBadRequest, fmt.Sprintf("Invalid take name: %q", take))
		return "", false
	}
	return take, true
}

func (s *Server) handleSources(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	sources := []SourceInfo{}
	for _, kind := range audio.SourceKinds() {
		sources = append(sources, SourceInfo{
			Name:        kind.Name,
			Description: kind.Description,
			Periodic:    kind.Periodic,
		})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sources":  sources,
		"channels": resolvedConfigInfo(s.service.GetConfig()).Channels,
	})
}

func (s *Server) handleProfiles(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"profiles": s.getAvailableProfiles(),
	})
}

func (s *Server) handleSelectProfile(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	if err := r.ParseForm(); err != nil {
		s.sendErrorResponse(w, http.StatusBadRequest, "Invalid form data")
		return
	}
	profile := strings.TrimSpace(r.FormValue("profile"))
	if profile == "" {
		s.sendErrorResponse(w, http.StatusBadRequest, "Profile name is required")
		return
	}

	if err := s.service.LoadProfile(profile); err != nil {
		s.sendErrorResponse(w, http.StatusConflict, err.Error(),
			"operation", "select_profile", "profile", profile)
		return
	}

	writeJSON(w, http.StatusOK, GenericResponse{
		Success: true,
		Message: fmt.Sprintf("Profile '%s' loaded", profile),
	})
}

// getAvailableProfiles reads profile names with a private viper instance so
// the global configuration is left alone
func (s *Server) getAvailableProfiles() []string {
	profiles := []string{}
	if s.configFile == "" {
		return profiles
	}

	v := viper.New()
	v.SetConfigFile(s.configFile)
	if err := v.ReadInConfig(); err != nil {
		slog.Debug("Failed to read config file for profiles", "error", err)
		return profiles
	}

	var rootConfig config.RootConfig
	if err := v.Unmarshal(&rootConfig); err != nil {
		slog.Debug("Failed to unmarshal config for profiles", "error", err)
		return profiles
	}
	for name := range rootConfig.Configs {
		profiles = append(profiles, name)
	}
	sort.Strings(profiles)
	return profiles
}

func (s *Server) handleTakes(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	takes, err := s.service.ListTakes()
	if err != nil {
		s.sendErrorResponse(w, http.StatusInternalServerError, err.Error(), "operation", "list_takes")
		return
	}

	writeJSON(w, http.StatusOK, TakesResponse{
		Takes:     takes,
		Directory: s.service.GetConfig().Output.Directory,
		Count:     len(takes),
	})
}

func (s *Server) handleTakeStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	filename := strings.TrimPrefix(r.URL.Path, streamPrefix)
	if filename == "" {
		http.Error(w, "Filename required", http.StatusBadRequest)
		return
	}

	// Validate filename (prevent path traversal)
	if strings.Contains(filename, "..") || strings.Contains(filename, "/") || strings.Contains(filename, "\\") {
		http.Error(w, "Invalid filename", http.StatusBadRequest)
		return
	}
	if !strings.EqualFold(filepath.Ext(filename), service.TakeExtension) {
		http.Error(w, "File type not supported", http.StatusForbidden)
		return
	}

	filePath := filepath.Join(s.service.GetConfig().Output.Directory, filename)
	file, err := os.Open(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			http.Error(w, "File not found", http.StatusNotFound)
		} else {
			http.Error(w, "Error accessing file", http.StatusInternalServerError)
		}
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		http.Error(w, "Error accessing file", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "audio/wav")
	http.ServeContent(w, r, filename, info.ModTime(), file)
}

func resolvedConfigInfo(cfg *config.Config) *ResolvedConfigInfo {
	channels := make([]ChannelInfo, len(cfg.Channels))
	for i, ch := range cfg.Channels {
		inheritance := "profile-specific"
		if cfg.Inheritance != nil {
			if chInheritance, exists := cfg.Inheritance.Channels[ch.Name]; exists && chInheritance.Signal == "inherited" {
				inheritance = "inherited"
			}
		}

		channels[i] = ChannelInfo{
			Name:        ch.Name,
			Signal:      ch.Signal,
			Frequency:   ch.Frequency,
			Amplitude:   ch.Amplitude,
			Inheritance: inheritance,
		}
	}

	return &ResolvedConfigInfo{
		OutputDir:   cfg.Output.Directory,
		SampleRate:  cfg.Audio.SampleRate,
		LineLevel:   cfg.Audio.LineLevel,
		Capacity:    cfg.Buffer.CapacityFrames,
		DrainPeriod: audio.DrainPeriod(cfg.Buffer.CapacityFrames, cfg.Audio.SampleRate, cfg.DrainPeriod()).String(),
		Channels:    channels,
	}
}

// generateStatusMessage creates appropriate status messages based on current state
func (s *Server) generateStatusMessage(status service.RecordingStatus, session *service.RecordingSession) string {
	switch status {
	case service.StatusArmed:
		return "Opening take file"
	case service.StatusRecording:
		if session != nil {
			return fmt.Sprintf("Recording in progress - %s", session.TakeName)
		}
		return "Recording in progress"
	case service.StatusStopping:
		return "Finalizing take"
	case service.StatusError:
		if errorDetails := s.service.GetLastError(); errorDetails != "" {
			return errorDetails
		}
		return "An error occurred during the operation"
	default:
		return ""
	}
}

func requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	writeJSON(w, http.StatusMethodNotAllowed, GenericResponse{Error: "Method not allowed"})
	return false
}

func writeJSON(w http.ResponseWriter, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Debug("Failed to encode response", "error", err)
	}
}

// sendErrorResponse logs the error and sends a JSON error response to the client
func (s *Server) sendErrorResponse(w http.ResponseWriter, statusCode int, errorMsg string, logContext ...interface{}) {
	logFields := []interface{}{"error_message", errorMsg, "status_code", statusCode}
	logFields = append(logFields, logContext...)
	slog.Error("Sending error response to client", logFields...)

	writeJSON(w, statusCode, GenericResponse{Error: errorMsg})
}

func getLocalIP() string {
	// Try to connect to a remote address to determine local IP
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "localhost"
	}
	defer conn.Close()

	localAddr := conn.LocalAddr().(*net.UDPAddr)
	return localAddr.IP.String()
}
