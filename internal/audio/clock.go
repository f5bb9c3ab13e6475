package audio

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// maxLagBlocks is how far the clock may fall behind wall time before it
// gives up catching up and restarts its schedule
const maxLagBlocks = 10

// Clock stands in for the host's audio callback: it calls a sink once per
// sample tick, in blocks paced against wall time.
type Clock struct {
	SampleRate int

	// Block is the number of ticks generated back to back before sleeping
	Block int

	// Limit stops the clock after that many ticks when > 0
	Limit uint64

	ticks    atomic.Uint64
	rejected atomic.Uint64
}

// NewClock creates a clock running 10ms blocks at sampleRate
func NewClock(sampleRate int) *Clock {
	return &Clock{
		SampleRate: sampleRate,
		Block:      max(sampleRate/100, 1),
	}
}

// Run fills one frame from src per tick and hands it to sink until ctx is
// done or Limit is reached. The frame is reused, so sink must copy it.
func (c *Clock) Run(ctx context.Context, src Source, sink func([]float32) bool) error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be > 0, got %d", c.SampleRate)
	}
	block := c.Block
	if block <= 0 {
		block = max(c.SampleRate/100, 1)
	}
	blockDuration := time.Duration(block) * time.Second / time.Duration(c.SampleRate)

	frame := make([]float32, src.Channels())
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	start := time.Now()
	var blocks int64

	slog.Debug("Clock started", "sample_rate", c.SampleRate, "block", block, "channels", len(frame))

	for {
		for i := 0; i < block; i++ {
			if c.Limit > 0 && c.ticks.Load() >= c.Limit {
				return nil
			}
			src.Fill(frame)
			if !sink(frame) {
				c.rejected.Add(1)
			}
			c.ticks.Add(1)
		}
		blocks++

		wait := time.Until(start.Add(time.Duration(blocks) * blockDuration))
		if wait < -maxLagBlocks*blockDuration {
			slog.Warn("Clock fell behind wall time, resynchronizing", "lag", -wait)
			start = time.Now()
			blocks = 0
			wait = 0
		}

		if wait <= 0 {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			continue
		}

		timer.Reset(wait)
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}
	}
}

// Ticks returns the number of ticks issued so far
func (c *Clock) Ticks() uint64 {
	return c.ticks.Load()
}

// Rejected returns the number of ticks the sink refused
func (c *Clock) Rejected() uint64 {
	return c.rejected.Load()
}
