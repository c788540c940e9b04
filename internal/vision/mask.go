package vision

// Mask is a binary motion grid with the same dimensions as the frame it was
// computed from.
type Mask struct {
	Width  int
	Height int
	Bits   []bool
}

// NewMask allocates an all-off mask.
func NewMask(width, height int) *Mask {
	return &Mask{
		Width:  width,
		Height: height,
		Bits:   make([]bool, width*height),
	}
}

// At reports whether pixel (x, y) is on. Out-of-range coordinates are off.
func (m *Mask) At(x, y int) bool {
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return false
	}
	return m.Bits[y*m.Width+x]
}

// Set turns pixel (x, y) on or off.
func (m *Mask) Set(x, y int, on bool) {
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return
	}
	m.Bits[y*m.Width+x] = on
}

// SetBox turns on every pixel inside box.
func (m *Mask) SetBox(box BoundingBox) {
	box = box.Clip(m.Width, m.Height)
	for y := box.Y; y < box.Y+box.Height; y++ {
		for x := box.X; x < box.X+box.Width; x++ {
			m.Bits[y*m.Width+x] = true
		}
	}
}

// Count returns the number of on pixels.
func (m *Mask) Count() int {
	n := 0
	for _, b := range m.Bits {
		if b {
			n++
		}
	}
	return n
}
