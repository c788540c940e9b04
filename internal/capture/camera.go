// Package capture provides frame sources backed by GoCV (OpenCV) and the
// drawing helpers used for evidence stills and the live stream.
package capture

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/dockwatch/internal/vision"
)

// Default camera settings
const (
	DefaultFPS    = 15
	DefaultWidth  = 640
	DefaultHeight = 480

	readRetryDelay = 100 * time.Millisecond

	// DefaultCloseTimeout bounds how long Close waits for a blocked read.
	DefaultCloseTimeout = 2 * time.Second
)

var (
	// ErrCameraNotOpen is returned when reading from a source that is not open.
	ErrCameraNotOpen = errors.New("camera is not open")
	// ErrNoFrame is returned when no new frame has arrived since the last read.
	ErrNoFrame = errors.New("no frame available")
	// ErrCloseTimeout is returned by Close when the grab goroutine is still
	// stuck in a read. The device is released once that read returns.
	ErrCloseTimeout = errors.New("camera close timed out")
)

// Source yields decoded frames for one camera. ReadFrame must not block: it
// returns the newest frame that has not been read yet, or ErrNoFrame.
type Source interface {
	Open() error
	Close() error
	ReadFrame() (*vision.Frame, error)
	ID() string
	IsOpen() bool
}

// Camera reads from a device index, a video file or a stream URL. A
// background goroutine grabs frames continuously and keeps only the newest.
type Camera struct {
	id     string
	source string

	closeTimeout time.Duration

	mu      sync.Mutex
	fps     int
	capture *gocv.VideoCapture
	running bool
	stopCh  chan struct{}
	done    chan struct{}

	latest *vision.Frame
	fresh  bool
	// dropped counts frames replaced before they were read.
	dropped uint64
}

var _ Source = (*Camera)(nil)

// NewCamera creates a camera for id. source is a device index such as "0",
// a file path, or a stream URL such as rtsp://host/path.
func NewCamera(id, source string) *Camera {
	return &Camera{
		id:           id,
		source:       source,
		fps:          DefaultFPS,
		closeTimeout: DefaultCloseTimeout,
	}
}

// ID returns the camera id.
func (c *Camera) ID() string {
	return c.id
}

// Source returns the configured device index, path or URL.
func (c *Camera) Source() string {
	return c.source
}

// Open starts capturing. Opening an open camera is a no-op.
func (c *Camera) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil
	}

	device, isDevice := deviceIndex(c.source)

	var capture *gocv.VideoCapture
	var err error
	if isDevice {
		capture, err = gocv.OpenVideoCapture(device)
	} else {
		capture, err = gocv.OpenVideoCapture(c.source)
	}
	if err != nil {
		return fmt.Errorf("open %s: %w", c.source, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return fmt.Errorf("open %s: %w", c.source, ErrCameraNotOpen)
	}

	if isDevice {
		capture.Set(gocv.VideoCaptureFrameWidth, DefaultWidth)
		capture.Set(gocv.VideoCaptureFrameHeight, DefaultHeight)
		capture.Set(gocv.VideoCaptureFPS, float64(c.fps))
	}

	// files are read as fast as decoding allows unless paced
	var pace time.Duration
	if isFile(c.source) {
		pace = time.Second / time.Duration(c.fps)
	}

	c.capture = capture
	c.running = true
	c.fresh = false
	c.latest = nil
	c.stopCh = make(chan struct{})
	c.done = make(chan struct{})

	go c.grab(capture, isFile(c.source), pace, c.stopCh, c.done)

	return nil
}

// grab reads frames until stop is closed. File sources rewind at the end.
func (c *Camera) grab(vc *gocv.VideoCapture, rewind bool, pace time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	mat := gocv.NewMat()
	defer mat.Close()

	for {
		select {
		case <-stop:
			return
		default:
		}

		if ok := vc.Read(&mat); !ok || mat.Empty() {
			if rewind {
				vc.Set(gocv.VideoCapturePosFrames, 0)
			}
			if !sleep(stop, readRetryDelay) {
				return
			}
			continue
		}

		frame, err := vision.MatToFrame(mat, time.Now())
		if err == nil {
			c.mu.Lock()
			if c.fresh {
				c.dropped++
			}
			c.latest = frame
			c.fresh = true
			c.mu.Unlock()
		}

		if pace > 0 && !sleep(stop, pace) {
			return
		}
	}
}

// Close stops the grab goroutine and releases the capture device. A read
// blocked on a dead stream does not hold Close past the close timeout; the
// camera is closed either way and ErrCloseTimeout is returned.
func (c *Camera) Close() error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	close(c.stopCh)
	capture, done := c.capture, c.done
	c.capture = nil
	c.running = false
	c.latest = nil
	c.fresh = false
	c.mu.Unlock()

	timer := time.NewTimer(c.closeTimeout)
	defer timer.Stop()

	select {
	case <-done:
		return release(capture)
	case <-timer.C:
		go func() {
			<-done
			release(capture)
		}()
		return fmt.Errorf("close %s: %w", c.source, ErrCloseTimeout)
	}
}

func release(vc *gocv.VideoCapture) error {
	if vc == nil {
		return nil
	}
	return vc.Close()
}

// ReadFrame returns the newest unread frame. It never waits for the device.
func (c *Camera) ReadFrame() (*vision.Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return nil, ErrCameraNotOpen
	}
	if !c.fresh {
		return nil, ErrNoFrame
	}

	c.fresh = false
	return c.latest, nil
}

// Dropped returns how many frames were overwritten before being read.
func (c *Camera) Dropped() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}

// SetFPS sets the requested capture rate. Values <= 0 are ignored.
func (c *Camera) SetFPS(fps int) {
	if fps <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.fps = fps
	if c.capture != nil {
		c.capture.Set(gocv.VideoCaptureFPS, float64(fps))
	}
}

// FPS returns the requested capture rate.
func (c *Camera) FPS() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fps
}

// IsOpen reports whether the camera is capturing.
func (c *Camera) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func deviceIndex(source string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(source))
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func isFile(source string) bool {
	if _, ok := deviceIndex(source); ok {
		return false
	}
	return !strings.Contains(source, "://")
}

func sleep(stop <-chan struct{}, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-stop:
		return false
	case <-t.C:
		return true
	}
}
