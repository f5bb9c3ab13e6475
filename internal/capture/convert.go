package capture

import "math"

// DefaultLineLevel is the host signal level that maps to digital full scale
const DefaultLineLevel float32 = 5.0

// fullScale maps -lineLevel to the most negative sample; +lineLevel clips
// one step short of it
const fullScale = 32768.0

// Convert scales frames by lineLevel and quantizes them to interleaved
// signed 16-bit samples. Short frames are padded with silence and long
// frames truncated to channels.
func Convert(frames []Frame, channels int, lineLevel float32) []int16 {
	if channels <= 0 {
		return nil
	}
	return ConvertInto(make([]int16, len(frames)*channels), frames, channels, lineLevel)
}

// ConvertInto is Convert writing into dst, which is grown if too small.
// It returns the filled slice.
func ConvertInto(dst []int16, frames []Frame, channels int, lineLevel float32) []int16 {
	if channels <= 0 {
		return dst[:0]
	}
	n := len(frames) * channels
	if cap(dst) < n {
		dst = make([]int16, n)
	}
	dst = dst[:n]

	level := 1.0
	if lineLevel > 0 {
		level = float64(lineLevel)
	}

	i := 0
	for _, frame := range frames {
		for ch := 0; ch < channels; ch++ {
			if ch < len(frame) {
				dst[i] = quantize(float64(frame[ch]) / level * fullScale)
			} else {
				dst[i] = 0
			}
			i++
		}
	}
	return dst
}

// ToFloat maps a 16-bit sample back to host line level
func ToFloat(sample int16, lineLevel float32) float32 {
	if lineLevel <= 0 {
		lineLevel = 1
	}
	return float32(float64(sample) / fullScale * float64(lineLevel))
}

func quantize(v float64) int16 {
	if math.IsNaN(v) {
		return 0
	}
	v = math.Round(v)
	if v >= math.MaxInt16 {
		return math.MaxInt16
	}
	if v <= math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}
