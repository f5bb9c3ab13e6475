package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestMergeConfigs_SelectionAndFallback(t *testing.T) {
	base := &Config{
		Audio: AudioConfig{
			SampleRate: 48000,
			LineLevel:  5.0,
		},
		Buffer: BufferConfig{CapacityFrames: 4096},
		Channels: []Channel{
			{Name: "left", Signal: SignalSine, Frequency: 440, Amplitude: 5.0},
			{Name: "right", Signal: SignalSine, Frequency: 660, Amplitude: 5.0},
			{Name: "hiss", Signal: SignalNoise, Amplitude: 0.5},
			{Name: "dc", Signal: SignalConstant, Amplitude: 1.0},
		},
		Output: OutputConfig{
			Directory:   "~/Audio/Default",
			SoftwareTag: "multirec",
		},
	}

	// Profile only lists some channels and overrides some settings
	profile := &Config{
		Audio: AudioConfig{
			SampleRate: 96000,
		},
		Channels: []Channel{
			{Name: "left", Signal: SignalSquare, Frequency: 110, Amplitude: 2.0},
			{Name: "hiss", Amplitude: 0},
		},
		Output: OutputConfig{
			Directory: "~/Audio/Studio",
		},
	}

	result := mergeConfigs(base, profile)

	// Only the 2 channels listed in the profile
	if len(result.Channels) != 2 {
		t.Fatalf("Expected 2 channels, got %d", len(result.Channels))
	}

	left := result.Channels[0]
	if left.Name != "left" || left.Signal != SignalSquare || left.Frequency != 110 || left.Amplitude != 2.0 {
		t.Errorf("Left channel incorrect: got %+v", left)
	}

	hiss := result.Channels[1]
	if hiss.Name != "hiss" || hiss.Signal != SignalNoise {
		t.Errorf("Hiss channel incorrect: got %+v", hiss)
	}
	if hiss.Amplitude != 0 {
		t.Errorf("Expected hiss amplitude 0 (profile-specific), got %.1f", hiss.Amplitude)
	}

	if result.Audio.SampleRate != 96000 {
		t.Errorf("Expected sample rate 96000, got %d", result.Audio.SampleRate)
	}
	if result.Audio.LineLevel != 5.0 {
		t.Errorf("Expected line level 5.0, got %.1f", result.Audio.LineLevel)
	}
	if result.Buffer.CapacityFrames != 4096 {
		t.Errorf("Expected inherited capacity 4096, got %d", result.Buffer.CapacityFrames)
	}

	if result.Output.Directory != "~/Audio/Studio" {
		t.Errorf("Expected directory '~/Audio/Studio', got %s", result.Output.Directory)
	}
	if result.Output.SoftwareTag != "multirec" {
		t.Errorf("Expected software tag 'multirec', got %s", result.Output.SoftwareTag)
	}

	if result.Inheritance == nil {
		t.Fatal("Inheritance tracking not initialized")
	}
	if result.Inheritance.Audio.SampleRate != "profile-specific" {
		t.Errorf("Expected sample rate to be profile-specific, got %s", result.Inheritance.Audio.SampleRate)
	}
	if result.Inheritance.Audio.LineLevel != "inherited" {
		t.Errorf("Expected line level to be inherited, got %s", result.Inheritance.Audio.LineLevel)
	}
	if result.Inheritance.Buffer.Capacity != "inherited" {
		t.Errorf("Expected capacity to be inherited, got %s", result.Inheritance.Buffer.Capacity)
	}

	leftInheritance := result.Inheritance.Channels["left"]
	if leftInheritance.Signal != "profile-specific" || leftInheritance.Frequency != "profile-specific" {
		t.Errorf("Expected left channel to be profile-specific, got %+v", leftInheritance)
	}

	hissInheritance := result.Inheritance.Channels["hiss"]
	if hissInheritance.Signal != "inherited" {
		t.Errorf("Expected hiss signal to be inherited, got %s", hissInheritance.Signal)
	}
	if hissInheritance.Amplitude != "profile-specific" {
		t.Errorf("Expected hiss amplitude to be profile-specific (explicitly 0), got %s", hissInheritance.Amplitude)
	}
}

func TestMergeConfigs_ProfileOnly(t *testing.T) {
	profile := &Config{
		Audio: AudioConfig{
			SampleRate: 48000,
			LineLevel:  10.0,
		},
		Channels: []Channel{
			{Name: "kick", Signal: SignalSquare, Frequency: 60, Amplitude: 3.0},
		},
		Output: OutputConfig{
			Directory: "/tmp/recordings",
		},
	}

	result := mergeConfigs(nil, profile)

	if result.Audio.SampleRate != 48000 || result.Audio.LineLevel != 10.0 {
		t.Errorf("Audio config not preserved: %+v", result.Audio)
	}
	if len(result.Channels) != 1 || result.Channels[0].Name != "kick" {
		t.Errorf("Channels not preserved: %+v", result.Channels)
	}
	if result.Channels[0].Amplitude != 3.0 {
		t.Errorf("Channel amplitude not preserved: %+v", result.Channels)
	}
	if result.Output.Directory != "/tmp/recordings" {
		t.Errorf("Output config not preserved: %+v", result.Output)
	}
}

func TestMergeConfigs_FrequencyFallback(t *testing.T) {
	base := &Config{
		Channels: []Channel{
			{Name: "lead", Signal: SignalSaw, Frequency: 220, Amplitude: 4.0},
		},
	}
	profile := &Config{
		Channels: []Channel{
			{Name: "lead", Amplitude: 1.0},
		},
	}

	result := mergeConfigs(base, profile)

	lead := result.Channels[0]
	if lead.Signal != SignalSaw || lead.Frequency != 220 {
		t.Errorf("Expected signal and frequency inherited, got %+v", lead)
	}
	if lead.Amplitude != 1.0 {
		t.Errorf("Expected amplitude 1.0, got %.1f", lead.Amplitude)
	}
	if inh := result.Inheritance.Channels["lead"]; inh.Frequency != "inherited" {
		t.Errorf("Expected frequency to be inherited, got %s", inh.Frequency)
	}
}

func TestMergeConfigs_EmptyProfile(t *testing.T) {
	base := &Config{
		Channels: []Channel{
			{Name: "left", Signal: SignalSine, Frequency: 440},
			{Name: "right", Signal: SignalSine, Frequency: 660},
		},
	}

	result := mergeConfigs(base, &Config{Channels: []Channel{}})

	// Selection model: only profile channels are used
	if len(result.Channels) != 0 {
		t.Errorf("Expected 0 channels, got %d", len(result.Channels))
	}
}

func TestExpandPath(t *testing.T) {
	homeDir, _ := os.UserHomeDir()

	tests := []struct {
		input    string
		expected string
	}{
		{"~/Audio/multirec", filepath.Join(homeDir, "Audio", "multirec")},
		{"/absolute/path", "/absolute/path"},
		{"relative/path", "relative/path"},
		{"~", "~"}, // Should not expand bare tilde
	}

	for _, test := range tests {
		result := expandPath(test.input)
		if result != test.expected {
			t.Errorf("expandPath(%q) = %q, expected %q", test.input, result, test.expected)
		}
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Audio:    AudioConfig{SampleRate: 44100, LineLevel: 5.0},
			Buffer:   BufferConfig{CapacityFrames: 1024},
			Channels: []Channel{{Name: "a", Signal: SignalSine, Frequency: 440, Amplitude: 1}},
		}
	}

	tests := []struct {
		name        string
		mutate      func(*Config)
		expectedErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"sample rate too low", func(c *Config) { c.Audio.SampleRate = 4000 }, "audio.sample_rate must be between"},
		{"sample rate too high", func(c *Config) { c.Audio.SampleRate = 384000 }, "audio.sample_rate must be between"},
		{"negative line level", func(c *Config) { c.Audio.LineLevel = -1 }, "audio.line_level must be >= 0"},
		{"small capacity", func(c *Config) { c.Buffer.CapacityFrames = 10 }, "buffer.capacity_frames must be >= 64"},
		{"negative drain period", func(c *Config) { c.Buffer.DrainPeriodMs = -5 }, "buffer.drain_period_ms must be >= 0"},
		{"no channels", func(c *Config) { c.Channels = nil }, "between 1 and 32 channels"},
		{"too many channels", func(c *Config) {
			c.Channels = nil
			for i := 0; i < 33; i++ {
				c.Channels = append(c.Channels, Channel{Name: strings.Repeat("c", i+1), Signal: SignalSilence})
			}
		}, "between 1 and 32 channels"},
		{"duplicate names", func(c *Config) { c.Channels = append(c.Channels, c.Channels[0]) }, "duplicate name 'a'"},
		{"unknown signal", func(c *Config) { c.Channels[0].Signal = "triangle" }, "unknown signal 'triangle'"},
		{"zero frequency", func(c *Config) { c.Channels[0].Frequency = 0 }, "'frequency' must be > 0"},
		{"negative amplitude", func(c *Config) { c.Channels[0].Amplitude = -1 }, "'amplitude' must be >= 0"},
		{"noise without frequency", func(c *Config) {
			c.Channels[0] = Channel{Name: "n", Signal: SignalNoise, Amplitude: 1}
		}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := Validate(cfg)

			if tt.expectedErr == "" {
				if err != nil {
					t.Errorf("Expected no error, got: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Expected error containing '%s', got none", tt.expectedErr)
			}
			if !strings.Contains(err.Error(), tt.expectedErr) {
				t.Errorf("Expected error containing '%s', got: %v", tt.expectedErr, err)
			}
		})
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if err := Validate(cfg); err != nil {
		t.Fatalf("Default config must validate: %v", err)
	}

	// Callers may modify their copy freely
	cfg.Channels[0].Amplitude = 0
	if Default().Channels[0].Amplitude == 0 {
		t.Error("Default() must return an independent copy")
	}
}

func TestDrainPeriod(t *testing.T) {
	cfg := &Config{Buffer: BufferConfig{DrainPeriodMs: 250}}
	if cfg.DrainPeriod() != 250*time.Millisecond {
		t.Errorf("Expected 250ms, got %v", cfg.DrainPeriod())
	}
	if (&Config{}).DrainPeriod() != 0 {
		t.Error("Expected zero drain period when unset")
	}
}

func TestGlobalsRecordingsDirectory(t *testing.T) {
	configContent := `
active_config: test
globals:
    output:
        recordings_directory: /global/recordings
definitions:
    channels:
        - id: osc
          name: osc
          signal: sine
          frequency: 440
          amplitude: 5.0
configs:
    test:
        channels:
            - ref: osc
        output:
            directory: /profile/recordings
            software_tag: studio-rig
`

	cfg, err := LoadWithProfile(createTempConfig(t, configContent), "test")
	if err != nil {
		t.Fatalf("Failed to load configuration: %v", err)
	}

	// Global recordings directory overrides profile directory
	if cfg.Output.Directory != "/global/recordings" {
		t.Errorf("Expected directory '/global/recordings' from globals, got '%s'", cfg.Output.Directory)
	}
	if cfg.Output.SoftwareTag != "studio-rig" {
		t.Errorf("Expected software tag 'studio-rig' from profile, got '%s'", cfg.Output.SoftwareTag)
	}
}

func TestLoadWithProfile_DefaultsAndMerge(t *testing.T) {
	configContent := `
active_config: live
logging:
    file: /tmp/multirec-test.log
definitions:
    channels:
        - id: osc_a
          name: left
          signal: sine
          frequency: 440
          amplitude: 5.0
        - id: osc_b
          name: right
          signal: saw
          frequency: 220
          amplitude: 5.0
configs:
    default:
        audio:
            sample_rate: 48000
        buffer:
            capacity_frames: 2048
        channels:
            - ref: osc_a
            - ref: osc_b
        output:
            directory: /data/takes
    live:
        channels:
            - ref: osc_b
              amplitude: 2.5
`

	cfg, err := LoadWithProfile(createTempConfig(t, configContent), "")
	if err != nil {
		t.Fatalf("Failed to load configuration: %v", err)
	}

	if cfg.Audio.SampleRate != 48000 {
		t.Errorf("Expected sample rate inherited from default, got %d", cfg.Audio.SampleRate)
	}
	if cfg.Audio.LineLevel != DefaultLevel {
		t.Errorf("Expected built-in line level, got %.1f", cfg.Audio.LineLevel)
	}
	if cfg.Buffer.CapacityFrames != 2048 {
		t.Errorf("Expected capacity 2048, got %d", cfg.Buffer.CapacityFrames)
	}
	if len(cfg.Channels) != 1 || cfg.Channels[0].Name != "right" || cfg.Channels[0].Amplitude != 2.5 {
		t.Errorf("Unexpected channels: %+v", cfg.Channels)
	}
	if cfg.Output.Directory != "/data/takes" {
		t.Errorf("Expected directory '/data/takes', got '%s'", cfg.Output.Directory)
	}
	if cfg.Output.SoftwareTag != "multirec" {
		t.Errorf("Expected default software tag, got '%s'", cfg.Output.SoftwareTag)
	}
	if cfg.Logging.File != "/tmp/multirec-test.log" {
		t.Errorf("Expected logging file, got '%s'", cfg.Logging.File)
	}
	if cfg.Inheritance == nil || cfg.Inheritance.Audio.SampleRate != "inherited" {
		t.Errorf("Expected inheritance tracking, got %+v", cfg.Inheritance)
	}
}

func TestLoadWithProfile_MissingProfile(t *testing.T) {
	configContent := `
definitions:
    channels:
        - id: osc
          name: osc
          signal: silence
configs:
    default:
        channels:
            - ref: osc
`

	_, err := LoadWithProfile(createTempConfig(t, configContent), "nope")
	if err == nil || !strings.Contains(err.Error(), "configuration profile 'nope' not found") {
		t.Errorf("Expected missing profile error, got: %v", err)
	}

	if _, err := LoadWithProfile("", ""); err == nil {
		t.Error("Expected error for empty config file")
	}
}

func TestUpdateActiveConfig(t *testing.T) {
	configContent := `
active_config: default
definitions:
    channels:
        - id: osc
          name: osc
          signal: silence
configs:
    default:
        channels:
            - ref: osc
    studio:
        channels:
            - ref: osc
`
	configFile := createTempConfig(t, configContent)

	if err := UpdateActiveConfig(configFile, "studio"); err != nil {
		t.Fatalf("UpdateActiveConfig failed: %v", err)
	}

	rootConfig, err := ValidateConfigurationFormat(configFile)
	if err != nil {
		t.Fatalf("Failed to re-read config: %v", err)
	}
	if rootConfig.ActiveConfig != "studio" {
		t.Errorf("Expected active_config 'studio', got '%s'", rootConfig.ActiveConfig)
	}

	if err := UpdateActiveConfig(configFile, "missing"); err == nil {
		t.Error("Expected error for unknown profile")
	}

	names, err := ProfileNames(configFile)
	if err != nil {
		t.Fatalf("ProfileNames failed: %v", err)
	}
	if len(names) != 2 || names[0] != "default" || names[1] != "studio" {
		t.Errorf("Unexpected profile names: %v", names)
	}
}
