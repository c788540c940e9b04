// Package testdata builds synthetic frame sequences for tests.
package testdata

import (
	"time"

	"github.com/ayusman/dockwatch/internal/vision"
)

// Default synthetic frame size.
const (
	FrameWidth  = 200
	FrameHeight = 150
)

// Blob is a solid rectangle painted onto a black frame.
type Blob struct {
	Box   vision.BoundingBox
	Value uint8
}

// BlankFrame returns a black 3-channel frame.
func BlankFrame(width, height int, ts time.Time) *vision.Frame {
	return vision.NewFrame(width, height, 3, ts)
}

// FrameWith returns a black 3-channel frame with the blobs painted in order.
func FrameWith(width, height int, ts time.Time, blobs ...Blob) *vision.Frame {
	f := BlankFrame(width, height, ts)
	for _, b := range blobs {
		f.Fill(b.Box, b.Value)
	}
	return f
}

// TwoBlobSequence returns three frames: an empty background, then blobs A
// and B, then A shifted right by 5 pixels and repainted at a different
// intensity while B stays put. Frames are stamped t0, t0+1s and t0+2s.
//
// Differencing the second frame yields boxes A and B; differencing the third
// yields a single 25x20 box around A's old and new positions.
func TwoBlobSequence(t0 time.Time) []*vision.Frame {
	a := vision.BoundingBox{X: 20, Y: 20, Width: 20, Height: 20}
	b := vision.BoundingBox{X: 120, Y: 80, Width: 20, Height: 20}
	shifted := a
	shifted.X += 5

	return []*vision.Frame{
		BlankFrame(FrameWidth, FrameHeight, t0),
		FrameWith(FrameWidth, FrameHeight, t0.Add(time.Second), Blob{Box: a, Value: 200}, Blob{Box: b, Value: 200}),
		FrameWith(FrameWidth, FrameHeight, t0.Add(2*time.Second), Blob{Box: shifted, Value: 100}, Blob{Box: b, Value: 200}),
	}
}

// FlickerSequence returns n frames in which box alternates between black and
// bright, starting black, spaced interval apart from start. Every frame after
// the first differs from its predecessor exactly over box.
func FlickerSequence(box vision.BoundingBox, n int, start time.Time, interval time.Duration) []*vision.Frame {
	frames := make([]*vision.Frame, n)
	for i := range frames {
		ts := start.Add(time.Duration(i) * interval)
		if i%2 == 0 {
			frames[i] = BlankFrame(FrameWidth, FrameHeight, ts)
			continue
		}
		frames[i] = FrameWith(FrameWidth, FrameHeight, ts, Blob{Box: box, Value: 255})
	}
	return frames
}
