package play

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
)

// Players lists the supported external players in order of preference
var Players = []string{"vlc", "mpv", "ffplay", "aplay"}

type Player struct {
	lookPath func(string) (string, error)
}

func New() *Player {
	return &Player{lookPath: exec.LookPath}
}

// Play plays a finished take through the first available external player
func (p *Player) Play(path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("audio file not found: %s", path)
	}

	cmd, err := p.Command(path)
	if err != nil {
		return err
	}

	fmt.Printf("Playing: %s\n", path)
	slog.Debug("Starting player", "command", strings.Join(cmd.Args, " "))

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("playback failed with %s: %w", cmd.Args[0], err)
	}

	fmt.Println("Playback completed")
	return nil
}

// Command builds the player invocation for path without running it
func (p *Player) Command(path string) (*exec.Cmd, error) {
	player, err := p.findAudioPlayer()
	if err != nil {
		return nil, fmt.Errorf("no suitable audio player found: %w", err)
	}

	switch player {
	case "vlc":
		return exec.Command("vlc", "--play-and-exit", path), nil
	case "mpv":
		return exec.Command("mpv", "--no-video", path), nil
	case "ffplay":
		return exec.Command("ffplay", "-nodisp", "-autoexit", path), nil
	case "aplay":
		return exec.Command("aplay", path), nil
	default:
		return nil, fmt.Errorf("unsupported player: %s", player)
	}
}

func (p *Player) findAudioPlayer() (string, error) {
	for _, player := range Players {
		if _, err := p.lookPath(player); err == nil {
			return player, nil
		}
	}

	return "", fmt.Errorf("no audio player found (tried: %s)", strings.Join(Players, ", "))
}
