package capture

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/dockwatch/internal/track"
	"github.com/ayusman/dockwatch/internal/vision"
)

// Overlay colours (RGBA; gocv converts to BGR when drawing)
var (
	LoiteringColor = color.RGBA{R: 255, G: 0, B: 0, A: 255}
	TrackColor     = color.RGBA{R: 0, G: 255, B: 0, A: 255}
	ROIColor       = color.RGBA{R: 255, G: 200, B: 0, A: 255}
)

// Overlay describes what RenderOverlay draws on top of a frame.
type Overlay struct {
	ROI      vision.Polygon
	Objects  []track.Object
	Mask     *vision.Mask
	ShowMask bool
	Now      time.Time
}

// ComposeEvidence draws boxes around the loitering objects only and returns
// the frame as JPEG. The frame itself is not modified.
func ComposeEvidence(frame *vision.Frame, objects []track.Object, now time.Time) ([]byte, error) {
	mat, err := vision.FrameToMat(frame)
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	for _, obj := range objects {
		if !obj.Loitering {
			continue
		}
		label := fmt.Sprintf("loitering %ds", int(obj.Age(now).Seconds()))
		drawBox(&mat, obj.Box.Bounds(), LoiteringColor, label)
	}

	return encodeJPEG(mat)
}

// RenderOverlay draws the ROI outline, every tracked box and optionally the
// motion mask, and returns the result as JPEG.
func RenderOverlay(frame *vision.Frame, o Overlay) ([]byte, error) {
	if o.ShowMask && o.Mask != nil {
		frame = TintMask(frame, o.Mask)
	}

	mat, err := vision.FrameToMat(frame)
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	if o.ROI.Restricts() {
		drawPolygon(&mat, o.ROI, ROIColor)
	}

	for _, obj := range o.Objects {
		c := TrackColor
		label := ""
		if obj.Loitering {
			c = LoiteringColor
			label = fmt.Sprintf("loitering %ds", int(obj.Age(o.Now).Seconds()))
		}
		drawBox(&mat, obj.Box.Bounds(), c, label)
	}

	return encodeJPEG(mat)
}

// TintMask returns a copy of frame with motion pixels blended towards red.
// Frames are in OpenCV channel order, so red is the third channel. A mask
// of a different size is ignored.
func TintMask(frame *vision.Frame, mask *vision.Mask) *vision.Frame {
	out := frame.Clone()
	if mask == nil || mask.Width != frame.Width || mask.Height != frame.Height {
		return out
	}

	red := 2
	if frame.Channels < 3 {
		red = 0
	}
	for i, on := range mask.Bits {
		if !on {
			continue
		}
		o := i * frame.Channels
		for c := 0; c < min(frame.Channels, 3); c++ {
			if c == red {
				out.Pix[o+c] = uint8((int(out.Pix[o+c]) + 255) / 2)
			} else {
				out.Pix[o+c] = out.Pix[o+c] / 2
			}
		}
	}
	return out
}

// EncodeFrame returns frame as JPEG without any drawing.
func EncodeFrame(frame *vision.Frame) ([]byte, error) {
	mat, err := vision.FrameToMat(frame)
	if err != nil {
		return nil, err
	}
	defer mat.Close()
	return encodeJPEG(mat)
}

func drawBox(mat *gocv.Mat, b vision.BoundingBox, c color.RGBA, label string) {
	gocv.Rectangle(mat, image.Rect(b.X, b.Y, b.X+b.Width, b.Y+b.Height), c, 2)
	if label != "" {
		gocv.PutText(mat, label, image.Pt(b.X, max(b.Y-4, 10)), gocv.FontHersheySimplex, 0.4, c, 1)
	}
}

func drawPolygon(mat *gocv.Mat, p vision.Polygon, c color.RGBA) {
	pts := make([]image.Point, len(p))
	for i, v := range p {
		pts[i] = image.Pt(int(math.Round(v.X)), int(math.Round(v.Y)))
	}
	pv := gocv.NewPointsVectorFromPoints([][]image.Point{pts})
	defer pv.Close()
	gocv.Polylines(mat, pv, true, c, 2)
}

func encodeJPEG(mat gocv.Mat) ([]byte, error) {
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, mat)
	if err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	defer buf.Close()

	return append([]byte(nil), buf.GetBytes()...), nil
}
