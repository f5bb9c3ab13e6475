package waveform

import (
	"fmt"
	"os"
	"time"

	"github.com/go-audio/wav"
)

// Info describes a finished waveform file
type Info struct {
	Path       string        `json:"path" yaml:"path"`
	SampleRate int           `json:"sample_rate" yaml:"sample_rate"`
	Channels   int           `json:"channels" yaml:"channels"`
	BitDepth   int           `json:"bit_depth" yaml:"bit_depth"`
	Frames     int           `json:"frames" yaml:"frames"`
	Duration   time.Duration `json:"duration" yaml:"duration"`
	Size       int64         `json:"size" yaml:"size"`
}

// Inspect reads the header of a WAVE file without loading its samples
func Inspect(path string) (*Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("not a valid WAVE file: %s", path)
	}
	if err := dec.FwdToPCM(); err != nil {
		return nil, fmt.Errorf("locating PCM data in %s: %w", path, err)
	}

	info := &Info{
		Path:       path,
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
		BitDepth:   int(dec.BitDepth),
		Size:       stat.Size(),
	}
	if frameBytes := info.Channels * info.BitDepth / 8; frameBytes > 0 {
		info.Frames = dec.PCMSize / frameBytes
	}
	if info.SampleRate > 0 {
		info.Duration = time.Duration(info.Frames) * time.Second / time.Duration(info.SampleRate)
	}

	return info, nil
}

// ReadSamples loads the whole PCM payload of a WAVE file as interleaved samples
func ReadSamples(path string) ([]int16, *Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, nil, fmt.Errorf("not a valid WAVE file: %s", path)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, nil, fmt.Errorf("reading PCM data from %s: %w", path, err)
	}

	samples := make([]int16, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = int16(v)
	}

	info := &Info{
		Path:       path,
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
		BitDepth:   int(dec.BitDepth),
	}
	if info.Channels > 0 {
		info.Frames = len(samples) / info.Channels
	}
	if info.SampleRate > 0 {
		info.Duration = time.Duration(info.Frames) * time.Second / time.Duration(info.SampleRate)
	}
	return samples, info, nil
}

// Peak returns the largest absolute sample per channel
func Peak(samples []int16, channels int) []int {
	if channels <= 0 {
		return nil
	}
	peaks := make([]int, channels)
	for i, s := range samples {
		v := int(s)
		if v < 0 {
			v = -v
		}
		if ch := i % channels; v > peaks[ch] {
			peaks[ch] = v
		}
	}
	return peaks
}
