package types

// Frame is one decoded grayscale frame, identified by its position in the source.
type Frame struct {
	Index int    // Original decode position
	Pix   []byte // Row-major intensity samples, width*height bytes
}

// Histogram is the intensity distribution of one Frame.
type Histogram []float64

// VideoInfo describes the first video stream of a source file.
type VideoInfo struct {
	Width      int
	Height     int
	FrameRate  string  // ffprobe rational, e.g. "30000/1001"
	FPS        float64 // FrameRate evaluated
	FrameCount int     // 0 when the container does not say
}

// FrameSize returns the byte length of one rgb24 frame.
func (v VideoInfo) FrameSize() int {
	return v.Width * v.Height * 3
}
