package audio

import (
	"fmt"
	"hash/fnv"
	"math"
	"math/rand/v2"
	"strings"

	"github.com/audiolibrelab/multirec/internal/config"
)

// SourceKind describes one signal kind the generators support
type SourceKind struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Periodic    bool   `json:"periodic"`
}

// Source produces one frame of host-level samples per tick
type Source interface {
	Channels() int

	// Fill writes one value per channel into dst
	Fill(dst []float32)
}

// Generator produces the next value of a single channel
type Generator interface {
	Next() float32
}

// SourceKinds returns the supported signal kinds
func SourceKinds() []SourceKind {
	descriptions := map[string]string{
		config.SignalSine:     "sine wave at the channel frequency",
		config.SignalSquare:   "square wave, 50% duty cycle",
		config.SignalSaw:      "rising sawtooth",
		config.SignalNoise:    "uniform white noise",
		config.SignalSilence:  "all zeros",
		config.SignalConstant: "DC offset equal to the amplitude",
	}

	kinds := make([]SourceKind, 0, len(descriptions))
	for _, name := range config.SignalKinds() {
		kinds = append(kinds, SourceKind{
			Name:        name,
			Description: descriptions[name],
			Periodic:    config.IsPeriodic(name),
		})
	}
	return kinds
}

// MultiSource drives one generator per channel
type MultiSource struct {
	names      []string
	generators []Generator
}

// NewSource creates a source with one generator per configured channel
func NewSource(cfg *config.Config) (*MultiSource, error) {
	if len(cfg.Channels) == 0 {
		return nil, fmt.Errorf("no channels configured")
	}

	src := &MultiSource{}
	for i, ch := range cfg.Channels {
		gen, err := NewGenerator(ch.Signal, ch.Frequency, ch.Amplitude, cfg.Audio.SampleRate, seedFor(ch.Name, i))
		if err != nil {
			return nil, fmt.Errorf("channel[%d] '%s': %w", i, ch.Name, err)
		}
		src.names = append(src.names, ch.Name)
		src.generators = append(src.generators, gen)
	}
	return src, nil
}

// seedFor derives a stable noise seed from the channel name and position
func seedFor(name string, index int) uint64 {
	h := fnv.New64a()
	h.Write([]byte(name))
	return h.Sum64() + uint64(index)
}

func (m *MultiSource) Channels() int {
	return len(m.generators)
}

// Names returns the channel names in frame order
func (m *MultiSource) Names() []string {
	return m.names
}

func (m *MultiSource) Fill(dst []float32) {
	for i, g := range m.generators {
		if i >= len(dst) {
			return
		}
		dst[i] = g.Next()
	}
}

// NewGenerator creates a generator of the given kind
func NewGenerator(kind string, frequency, amplitude float64, sampleRate int, seed uint64) (Generator, error) {
	kind = strings.ToLower(kind)

	if config.IsPeriodic(kind) {
		if sampleRate <= 0 {
			return nil, fmt.Errorf("sample rate must be > 0, got %d", sampleRate)
		}
		if frequency <= 0 {
			return nil, fmt.Errorf("frequency must be > 0 for %s, got %.2f", kind, frequency)
		}
		return &oscillator{
			kind:      kind,
			step:      frequency / float64(sampleRate),
			amplitude: amplitude,
		}, nil
	}

	switch kind {
	case config.SignalNoise:
		return &noise{
			rng:       rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
			amplitude: amplitude,
		}, nil
	case config.SignalSilence:
		return constant(0), nil
	case config.SignalConstant:
		return constant(amplitude), nil
	default:
		return nil, fmt.Errorf("unknown signal kind '%s'", kind)
	}
}

// oscillator is a phase accumulator shared by the periodic kinds
type oscillator struct {
	kind      string
	phase     float64 // [0, 1)
	step      float64
	amplitude float64
}

func (o *oscillator) Next() float32 {
	var v float64
	switch o.kind {
	case config.SignalSine:
		v = math.Sin(2 * math.Pi * o.phase)
	case config.SignalSquare:
		if o.phase < 0.5 {
			v = 1
		} else {
			v = -1
		}
	case config.SignalSaw:
		v = 2*o.phase - 1
	}

	o.phase += o.step
	o.phase -= math.Floor(o.phase)
	return float32(o.amplitude * v)
}

type noise struct {
	rng       *rand.Rand
	amplitude float64
}

func (n *noise) Next() float32 {
	return float32(n.amplitude * (2*n.rng.Float64() - 1))
}

type constant float64

func (c constant) Next() float32 {
	return float32(c)
}
