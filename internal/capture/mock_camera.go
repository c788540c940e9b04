package capture

import (
	"sync"

	"github.com/ayusman/dockwatch/internal/vision"
)

// MockSource plays back in-memory frames for testing.
type MockSource struct {
	id      string
	frames  []*vision.Frame
	index   int
	loop    bool
	mu      sync.Mutex
	running bool
	opens   int
}

var _ Source = (*MockSource)(nil)

// NewMockSource creates a source that returns copies of frames in order.
func NewMockSource(id string, frames []*vision.Frame, loop bool) *MockSource {
	return &MockSource{
		id:     id,
		frames: frames,
		loop:   loop,
	}
}

func (c *MockSource) ID() string { return c.id }

func (c *MockSource) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = true
	c.index = 0
	c.opens++
	return nil
}

func (c *MockSource) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = false
	return nil
}

// ReadFrame returns the next frame. Once a non-looping source is exhausted
// it keeps returning ErrNoFrame.
func (c *MockSource) ReadFrame() (*vision.Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return nil, ErrCameraNotOpen
	}

	if c.index >= len(c.frames) {
		if !c.loop || len(c.frames) == 0 {
			return nil, ErrNoFrame
		}
		c.index = 0
	}

	frame := c.frames[c.index].Clone()
	c.index++
	return frame, nil
}

func (c *MockSource) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Opens returns how many times Open was called.
func (c *MockSource) Opens() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opens
}

// SetFrames replaces the frame sequence and restarts playback.
func (c *MockSource) SetFrames(frames []*vision.Frame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = frames
	c.index = 0
}

// Reset restarts playback from the beginning.
func (c *MockSource) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.index = 0
}
