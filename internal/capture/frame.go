package capture

// Frame holds one sample per channel captured at the same tick.
type Frame []float32

// Channels returns the number of samples in the frame
func (f Frame) Channels() int {
	return len(f)
}

// MaxChannels is the widest frame a queue accepts
const MaxChannels = 32

// DefaultCapacity is the number of frames buffered between drains
const DefaultCapacity = 32 * 1024
