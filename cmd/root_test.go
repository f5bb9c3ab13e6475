package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/audiolibrelab/multirec/internal/config"
	"github.com/audiolibrelab/multirec/internal/service"
)

func resetFlags(t *testing.T) {
	t.Helper()
	savedFile, savedProfile := cfgFile, profile
	cfgFile, profile = "", ""
	t.Cleanup(func() { cfgFile, profile = savedFile, savedProfile })
}

func TestLoadConfig_DefaultsWithoutFile(t *testing.T) {
	resetFlags(t)
	t.Setenv("HOME", t.TempDir())

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	if want := config.Default(); len(cfg.Channels) != len(want.Channels) || cfg.Audio.SampleRate != want.Audio.SampleRate {
		t.Errorf("Expected built-in defaults, got %+v", cfg)
	}
	if cfgFile != "" {
		t.Errorf("Expected no config file after fallback, got %q", cfgFile)
	}

	// serve builds its service from the same fallback
	svc, err := service.New(cfg, cfgFile)
	if err != nil {
		t.Fatalf("service.New with defaults failed: %v", err)
	}
	svc.Close()
}

func TestLoadConfig_MissingExplicitFile(t *testing.T) {
	resetFlags(t)
	cfgFile = filepath.Join(t.TempDir(), "missing.yaml")

	if _, err := loadConfig(); err == nil {
		t.Error("Expected error for a missing --config file")
	}
}

func TestLoadConfig_ProfileWithoutFile(t *testing.T) {
	resetFlags(t)
	t.Setenv("HOME", t.TempDir())
	profile = "studio"

	if _, err := loadConfig(); err == nil {
		t.Error("Expected error for a profile without a config file")
	}
}

func TestLoadConfig_DefaultPathIsRead(t *testing.T) {
	resetFlags(t)
	home := t.TempDir()
	t.Setenv("HOME", home)

	content := `
active_config: default
definitions:
    channels:
        - id: mono
          name: mono
          signal: sine
          frequency: 440
          amplitude: 1
configs:
    default:
        audio:
            sample_rate: 8000
        channels:
            - ref: mono
`
	if err := os.MkdirAll(filepath.Join(home, ".config"), 0755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	path := filepath.Join(home, ".config", "multirec.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	if len(cfg.Channels) != 1 || cfg.Audio.SampleRate != 8000 {
		t.Errorf("Expected the file's profile, got %+v", cfg)
	}
	if cfgFile != path {
		t.Errorf("Expected config file %s, got %s", path, cfgFile)
	}
}

func TestRootCommands(t *testing.T) {
	for _, name := range []string{"record", "run", "play", "info", "config", "sources", "serve"} {
		found, _, err := rootCmd.Find([]string{name})
		if err != nil || found == rootCmd || found.Name() != name {
			t.Errorf("Expected %s to be registered on the root command", name)
		}
	}
}
