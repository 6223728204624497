package domain

// Stereo is the channel count of every Block.
const Stereo = 2

// Block is interleaved stereo audio: L0 R0 L1 R1 ...
type Block []float64

func NewBlock(frames int) Block {
	if frames < 0 {
		frames = 0
	}
	return make(Block, frames*Stereo)
}

func (b Block) Frames() int {
	return len(b) / Stereo
}

func (b Block) Clone() Block {
	out := make(Block, len(b))
	copy(out, b)
	return out
}

// Fit returns a block of exactly frames frames, truncating or padding with silence.
func (b Block) Fit(frames int) Block {
	if b.Frames() == frames && len(b) == frames*Stereo {
		return b
	}
	out := NewBlock(frames)
	copy(out, b)
	return out
}

// Planar splits the block into left and right channels.
func (b Block) Planar() (left, right []float64) {
	n := b.Frames()
	left = make([]float64, n)
	right = make([]float64, n)
	for i := range n {
		left[i] = b[i*Stereo]
		right[i] = b[i*Stereo+1]
	}
	return left, right
}

// FromPlanar interleaves two channels; the shorter one bounds the length.
func FromPlanar(left, right []float64) Block {
	n := min(len(left), len(right))
	out := NewBlock(n)
	for i := range n {
		out[i*Stereo] = left[i]
		out[i*Stereo+1] = right[i]
	}
	return out
}

// FromInterleaved converts device samples with the given channel count to stereo.
// Mono is duplicated into both sides; channels past the second are dropped.
func FromInterleaved(in []float32, channels int) Block {
	if channels <= 0 {
		return Block{}
	}
	frames := len(in) / channels
	out := NewBlock(frames)
	for i := range frames {
		l := float64(in[i*channels])
		r := l
		if channels > 1 {
			r = float64(in[i*channels+1])
		}
		out[i*Stereo] = l
		out[i*Stereo+1] = r
	}
	return out
}

// WriteInterleaved copies the block into a device buffer with the given channel count.
// A mono device receives the average of both sides; extra device channels are silenced.
func (b Block) WriteInterleaved(out []float32, channels int) {
	if channels <= 0 {
		return
	}
	frames := min(len(out)/channels, b.Frames())
	for i := range frames {
		l, r := b[i*Stereo], b[i*Stereo+1]
		base := i * channels
		if channels == 1 {
			out[base] = float32((l + r) * 0.5)
			continue
		}
		out[base] = float32(l)
		out[base+1] = float32(r)
		for c := 2; c < channels; c++ {
			out[base+c] = 0
		}
	}
	clear(out[frames*channels:])
}
