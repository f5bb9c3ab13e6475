package audio

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/audiolibrelab/multirec/internal/config"
	"github.com/audiolibrelab/multirec/internal/waveform"
)

// counterSource emits the tick index on every channel
type counterSource struct {
	channels int
	n        float32
}

func (c *counterSource) Channels() int { return c.channels }

func (c *counterSource) Fill(dst []float32) {
	for i := range dst {
		dst[i] = c.n
	}
	c.n++
}

func TestClock_Limit(t *testing.T) {
	clock := &Clock{SampleRate: 100000, Block: 10, Limit: 25}
	src := &counterSource{channels: 2}

	var got []float32
	err := clock.Run(context.Background(), src, func(frame []float32) bool {
		got = append(got, frame[0])
		return len(got)%5 != 0
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if clock.Ticks() != 25 {
		t.Errorf("Expected 25 ticks, got %d", clock.Ticks())
	}
	if len(got) != 25 {
		t.Fatalf("Expected 25 sink calls, got %d", len(got))
	}
	for i, v := range got {
		if v != float32(i) {
			t.Fatalf("Tick %d delivered %f", i, v)
		}
	}
	if clock.Rejected() != 5 {
		t.Errorf("Expected 5 rejected ticks, got %d", clock.Rejected())
	}
}

func TestClock_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	clock := NewClock(8000)
	err := clock.Run(ctx, &counterSource{channels: 1}, func([]float32) bool { return true })
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	// At most one block runs before the context is observed
	if clock.Ticks() > uint64(clock.Block) {
		t.Errorf("Expected at most %d ticks, got %d", clock.Block, clock.Ticks())
	}
}

func TestClock_PacesAgainstWallTime(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	clock := NewClock(8000)
	if err := clock.Run(ctx, &counterSource{channels: 1}, func([]float32) bool { return true }); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// ~800 ticks in 100ms; allow generous scheduling slack
	if ticks := clock.Ticks(); ticks < 200 || ticks > 2000 {
		t.Errorf("Expected roughly 800 ticks, got %d", ticks)
	}
}

func TestClock_InvalidSampleRate(t *testing.T) {
	clock := &Clock{}
	if err := clock.Run(context.Background(), &counterSource{channels: 1}, func([]float32) bool { return true }); err == nil {
		t.Error("Expected error for zero sample rate")
	}
}

func TestClock_DrivesSession(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clocked.wav")
	cfg := &config.Config{
		Audio: config.AudioConfig{SampleRate: 8000},
		Channels: []config.Channel{
			{Name: "a", Signal: config.SignalSine, Frequency: 440, Amplitude: 5},
			{Name: "b", Signal: config.SignalNoise, Amplitude: 1},
		},
	}

	src, err := NewSource(cfg)
	if err != nil {
		t.Fatalf("NewSource failed: %v", err)
	}
	s := newTestSession(t, SessionConfig{SampleRate: 8000, Channels: 2, Capacity: 8192})
	if err := s.Start(path); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	clock := &Clock{SampleRate: 8000, Block: 80, Limit: 400}
	if err := clock.Run(context.Background(), src, s.Tick); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	info, err := waveform.Inspect(path)
	if err != nil {
		t.Fatalf("Inspect failed: %v", err)
	}
	if info.Frames != 400 {
		t.Errorf("Expected 400 frames, got %d", info.Frames)
	}
}
