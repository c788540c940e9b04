// Package vision implements the per-pixel stages of the detection pipeline:
// frame differencing, region-of-interest filtering and connected-component
// extraction. It works on plain byte buffers so it can be exercised without
// OpenCV; conversion from gocv matrices lives in the capture package.
package vision

import (
	"errors"
	"time"
)

// ErrInvalidFrame is returned when a frame has no pixels or inconsistent dimensions.
var ErrInvalidFrame = errors.New("invalid frame")

// Frame is a decoded video frame. Pix holds Width*Height*Channels bytes in
// row-major order with interleaved channels.
type Frame struct {
	Width     int
	Height    int
	Channels  int
	Pix       []uint8
	Timestamp time.Time
}

// NewFrame allocates a zeroed frame.
func NewFrame(width, height, channels int, ts time.Time) *Frame {
	if width < 0 || height < 0 || channels < 0 {
		return &Frame{Timestamp: ts}
	}
	return &Frame{
		Width:     width,
		Height:    height,
		Channels:  channels,
		Pix:       make([]uint8, width*height*channels),
		Timestamp: ts,
	}
}

// Valid reports whether the frame has positive dimensions and a buffer that matches them.
func (f *Frame) Valid() bool {
	if f == nil || f.Width <= 0 || f.Height <= 0 || f.Channels <= 0 {
		return false
	}
	return len(f.Pix) == f.Width*f.Height*f.Channels
}

// SameShape reports whether two frames can be compared pixel by pixel.
func (f *Frame) SameShape(other *Frame) bool {
	if f == nil || other == nil {
		return false
	}
	return f.Width == other.Width && f.Height == other.Height && f.Channels == other.Channels
}

// Clone returns a deep copy of the frame.
func (f *Frame) Clone() *Frame {
	if f == nil {
		return nil
	}
	c := *f
	c.Pix = make([]uint8, len(f.Pix))
	copy(c.Pix, f.Pix)
	return &c
}

// Offset returns the index of the first channel of pixel (x, y).
func (f *Frame) Offset(x, y int) int {
	return (y*f.Width + x) * f.Channels
}

// Fill sets every channel of the pixels inside box to value. The box is
// clipped to the frame.
func (f *Frame) Fill(box BoundingBox, value uint8) {
	box = box.Clip(f.Width, f.Height)
	for y := box.Y; y < box.Y+box.Height; y++ {
		for x := box.X; x < box.X+box.Width; x++ {
			o := f.Offset(x, y)
			for c := 0; c < f.Channels; c++ {
				f.Pix[o+c] = value
			}
		}
	}
}

// Point is a 2D coordinate in frame pixel space.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// BoundingBox is an axis-aligned rectangle in frame pixel coordinates.
type BoundingBox struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Area returns width*height.
func (b BoundingBox) Area() int {
	return b.Width * b.Height
}

// Center returns the centroid of the box.
func (b BoundingBox) Center() Point {
	return Point{
		X: float64(b.X) + float64(b.Width)/2,
		Y: float64(b.Y) + float64(b.Height)/2,
	}
}

// Clip restricts the box to a width x height frame.
func (b BoundingBox) Clip(width, height int) BoundingBox {
	x0, y0 := max(b.X, 0), max(b.Y, 0)
	x1, y1 := min(b.X+b.Width, width), min(b.Y+b.Height, height)
	if x1 <= x0 || y1 <= y0 {
		return BoundingBox{X: x0, Y: y0}
	}
	return BoundingBox{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
}
