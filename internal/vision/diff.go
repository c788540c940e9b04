package vision

import "gocv.io/x/gocv"

// DiffResult is the outcome of comparing one frame against its predecessor.
type DiffResult struct {
	// Mask is nil when there was no comparable previous frame.
	Mask *Mask
	// MotionPixels counts in-region pixels whose mean channel difference
	// exceeded the threshold.
	MotionPixels int
	// SampledPixels counts pixels inside the region of interest.
	SampledPixels int
	// Bootstrapped is set when the frame only seeded the previous-frame buffer.
	Bootstrapped bool
}

// MotionPercent returns MotionPixels as a percentage of SampledPixels.
func (r DiffResult) MotionPercent() float64 {
	if r.SampledPixels == 0 {
		return 0
	}
	return float64(r.MotionPixels) / float64(r.SampledPixels) * 100.0
}

// Differencer compares each frame with the previous one and flags pixels
// inside the region of interest whose mean absolute channel difference
// exceeds a threshold. It is not safe for concurrent use; the pipeline owns
// it under its own lock.
type Differencer struct {
	threshold float64
	roi       Polygon

	// roiMask caches roi membership (0 or 255) for the current frame size.
	roiMask []byte
	maskW   int
	maskH   int

	prev *Frame
}

// NewDifferencer creates a Differencer with the given per-pixel threshold (0-255).
func NewDifferencer(threshold float64, roi Polygon) *Differencer {
	if threshold < 0 {
		threshold = 0
	}
	return &Differencer{
		threshold: threshold,
		roi:       roi,
	}
}

// Diff compares frame with the stored previous frame and then stores frame
// as the new previous frame.
//
// An invalid frame returns ErrInvalidFrame and leaves the previous frame
// untouched. When there is no previous frame, or its dimensions differ, the
// result is Bootstrapped with no mask and zero counts.
func (d *Differencer) Diff(frame *Frame) (DiffResult, error) {
	if !frame.Valid() {
		return DiffResult{}, ErrInvalidFrame
	}

	if d.prev == nil || !d.prev.SameShape(frame) {
		d.prev = frame.Clone()
		return DiffResult{Bootstrapped: true}, nil
	}

	res, err := d.compare(frame)
	if err != nil {
		return DiffResult{}, err
	}

	copy(d.prev.Pix, frame.Pix)
	d.prev.Timestamp = frame.Timestamp

	return res, nil
}

// compare thresholds the per-pixel channel sum of |frame - prev| against
// threshold*channels, which is the mean test without the division, and
// restricts the result to the region of interest.
func (d *Differencer) compare(frame *Frame) (DiffResult, error) {
	cur, err := matView(frame)
	if err != nil {
		return DiffResult{}, err
	}
	defer cur.Close()

	prev, err := matView(d.prev)
	if err != nil {
		return DiffResult{}, err
	}
	defer prev.Close()

	delta := gocv.NewMat()
	defer delta.Close()
	gocv.AbsDiff(cur, prev, &delta)

	// float sums keep the strict comparison exact
	deltaF := gocv.NewMat()
	defer deltaF.Close()
	delta.ConvertTo(&deltaF, gocv.MatTypeCV32F)

	sum := deltaF
	if frame.Channels > 1 {
		kernel := gocv.Ones(1, frame.Channels, gocv.MatTypeCV32F)
		defer kernel.Close()

		summed := gocv.NewMat()
		defer summed.Close()
		gocv.Transform(deltaF, &summed, kernel)
		sum = summed
	}

	limit := float32(d.threshold * float64(frame.Channels))
	hitsF := gocv.NewMat()
	defer hitsF.Close()
	gocv.Threshold(sum, &hitsF, limit, 255, gocv.ThresholdBinary)

	hits := gocv.NewMat()
	defer hits.Close()
	hitsF.ConvertTo(&hits, gocv.MatTypeCV8U)

	res := DiffResult{SampledPixels: frame.Width * frame.Height}

	if roi := d.regionMask(frame.Width, frame.Height); roi != nil {
		roiMat, err := gocv.NewMatFromBytes(frame.Height, frame.Width, gocv.MatTypeCV8UC1, roi)
		if err != nil {
			return DiffResult{}, err
		}
		defer roiMat.Close()

		inside := gocv.NewMat()
		defer inside.Close()
		gocv.BitwiseAnd(hits, roiMat, &inside)
		inside.CopyTo(&hits)

		res.SampledPixels = gocv.CountNonZero(roiMat)
	}

	res.MotionPixels = gocv.CountNonZero(hits)
	res.Mask = maskFromBytes(frame.Width, frame.Height, hits.ToBytes())
	return res, nil
}

func maskFromBytes(width, height int, data []byte) *Mask {
	mask := NewMask(width, height)
	for i, v := range data {
		if i < len(mask.Bits) && v != 0 {
			mask.Bits[i] = true
		}
	}
	return mask
}

// regionMask returns the cached ROI membership grid for the frame size,
// or nil when the ROI does not restrict.
func (d *Differencer) regionMask(width, height int) []byte {
	if !d.roi.Restricts() {
		return nil
	}
	if d.roiMask == nil || d.maskW != width || d.maskH != height {
		inside := d.roi.Mask(width, height)
		d.roiMask = make([]byte, len(inside))
		for i, in := range inside {
			if in {
				d.roiMask[i] = 255
			}
		}
		d.maskW, d.maskH = width, height
	}
	return d.roiMask
}

// SetThreshold changes the per-pixel threshold. Negative values are ignored.
func (d *Differencer) SetThreshold(threshold float64) {
	if threshold < 0 {
		return
	}
	d.threshold = threshold
}

// Threshold returns the current per-pixel threshold.
func (d *Differencer) Threshold() float64 {
	return d.threshold
}

// SetROI replaces the region of interest and drops the cached membership grid.
func (d *Differencer) SetROI(roi Polygon) {
	d.roi = roi
	d.roiMask = nil
}

// ROI returns the current region of interest.
func (d *Differencer) ROI() Polygon {
	return d.roi
}

// Reset discards the previous frame so the next Diff bootstraps.
func (d *Differencer) Reset() {
	d.prev = nil
}

// HasPrevious reports whether a previous frame is stored.
func (d *Differencer) HasPrevious() bool {
	return d.prev != nil
}
