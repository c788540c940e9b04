package vision

import (
	"fmt"
	"time"

	"gocv.io/x/gocv"
)

// MatToFrame copies an 8-bit Mat (1, 3 or 4 channels) into a Frame.
func MatToFrame(mat gocv.Mat, ts time.Time) (*Frame, error) {
	if mat.Empty() {
		return nil, ErrInvalidFrame
	}

	mt, err := matType(mat.Channels())
	if err != nil {
		return nil, err
	}
	if mat.Type() != mt {
		return nil, fmt.Errorf("%w: unsupported mat type %v", ErrInvalidFrame, mat.Type())
	}

	src := mat
	if !mat.IsContinuous() {
		src = mat.Clone()
		defer src.Close()
	}

	return &Frame{
		Width:     src.Cols(),
		Height:    src.Rows(),
		Channels:  src.Channels(),
		Pix:       src.ToBytes(),
		Timestamp: ts,
	}, nil
}

// FrameToMat copies a Frame into a new Mat. The caller closes it.
func FrameToMat(f *Frame) (gocv.Mat, error) {
	view, err := matView(f)
	if err != nil {
		return gocv.NewMat(), err
	}
	defer view.Close()

	// detach from the Go buffer
	return view.Clone(), nil
}

// matView wraps the frame's pixels without detaching them. It must be closed
// before f.Pix is modified.
func matView(f *Frame) (gocv.Mat, error) {
	if !f.Valid() {
		return gocv.NewMat(), ErrInvalidFrame
	}

	mt, err := matType(f.Channels)
	if err != nil {
		return gocv.NewMat(), err
	}
	return gocv.NewMatFromBytes(f.Height, f.Width, mt, f.Pix)
}

func matType(channels int) (gocv.MatType, error) {
	switch channels {
	case 1:
		return gocv.MatTypeCV8UC1, nil
	case 3:
		return gocv.MatTypeCV8UC3, nil
	case 4:
		return gocv.MatTypeCV8UC4, nil
	default:
		return 0, fmt.Errorf("%w: %d channels", ErrInvalidFrame, channels)
	}
}
