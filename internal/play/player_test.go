package play

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func fakeLookPath(available ...string) func(string) (string, error) {
	return func(name string) (string, error) {
		for _, a := range available {
			if a == name {
				return "/usr/bin/" + name, nil
			}
		}
		return "", errors.New("not found")
	}
}

func TestCommand_PlayerPreference(t *testing.T) {
	tests := []struct {
		name      string
		available []string
		wantArgs  []string
	}{
		{"vlc first", []string{"aplay", "vlc", "mpv"}, []string{"vlc", "--play-and-exit", "take.wav"}},
		{"mpv", []string{"mpv", "aplay"}, []string{"mpv", "--no-video", "take.wav"}},
		{"ffplay", []string{"ffplay"}, []string{"ffplay", "-nodisp", "-autoexit", "take.wav"}},
		{"aplay plays wav", []string{"aplay"}, []string{"aplay", "take.wav"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Player{lookPath: fakeLookPath(tt.available...)}
			cmd, err := p.Command("take.wav")
			if err != nil {
				t.Fatalf("Command failed: %v", err)
			}
			if len(cmd.Args) != len(tt.wantArgs) {
				t.Fatalf("Expected args %v, got %v", tt.wantArgs, cmd.Args)
			}
			for i := range tt.wantArgs {
				if cmd.Args[i] != tt.wantArgs[i] {
					t.Errorf("Arg %d: expected %q, got %q", i, tt.wantArgs[i], cmd.Args[i])
				}
			}
		})
	}
}

func TestCommand_NoPlayer(t *testing.T) {
	p := &Player{lookPath: fakeLookPath()}
	if _, err := p.Command("take.wav"); err == nil {
		t.Error("Expected error when no player is installed")
	}
}

func TestPlay_MissingFile(t *testing.T) {
	p := &Player{lookPath: fakeLookPath("aplay")}
	err := p.Play(filepath.Join(t.TempDir(), "missing.wav"))
	if err == nil {
		t.Fatal("Expected error for missing file")
	}
	if _, statErr := os.Stat("missing.wav"); statErr == nil {
		t.Error("Play must not create the file")
	}
}
