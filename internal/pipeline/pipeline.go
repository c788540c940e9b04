// Package pipeline runs one detection pass per frame: differencing inside the
// region of interest, component extraction, tracking, loitering
// classification and dwell accumulation. After each pass it publishes an
// immutable Snapshot for readers.
package pipeline

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/ayusman/dockwatch/internal/heatmap"
	"github.com/ayusman/dockwatch/internal/track"
	"github.com/ayusman/dockwatch/internal/vision"
)

// Options are the session-wide tracking settings.
type Options struct {
	// MinFrames is the redetection count a track must exceed to loiter.
	MinFrames int
	// Retention selects how long unseen tracks survive a sweep.
	Retention track.RetentionMode
	// CellSize is the dwell grid cell side in pixels.
	CellSize int
}

// Result describes one processed frame.
type Result struct {
	Bootstrapped  bool
	MotionPixels  int
	SampledPixels int
	MotionPercent float64
	// MotionActive is set when MotionPercent reached MinAreaPercent.
	MotionActive bool
	Boxes        []vision.BoundingBox
	Matched      int
	Created      int
	Loitering    bool
	Transition   track.Transition
}

// Snapshot is the state published after a pass or sweep. Its fields must
// not be modified.
type Snapshot struct {
	SourceID      string
	Sequence      uint64
	Timestamp     time.Time
	Frame         *vision.Frame
	Mask          *vision.Mask
	Boxes         []vision.BoundingBox
	Objects       []track.Object
	Loitering     bool
	MotionPercent float64
	MotionActive  bool
	Dwell         []heatmap.CellCount
	DwellMax      int
	CellSize      int
	Config        DetectionConfig
	ROI           vision.Polygon
}

// LoiteringObjects returns the objects currently flagged as loitering.
func (s *Snapshot) LoiteringObjects() []track.Object {
	var out []track.Object
	for _, obj := range s.Objects {
		if obj.Loitering {
			out = append(out, obj)
		}
	}
	return out
}

// Pipeline owns the previous frame, the tracks and the dwell grid. All
// mutation happens under one lock; readers use Snapshot.
type Pipeline struct {
	mu         sync.Mutex
	opts       Options
	sourceID   string
	cfg        DetectionConfig
	differ     *vision.Differencer
	tracker    *track.Tracker
	classifier *track.Classifier
	dwell      *heatmap.Grid

	// last pass output, kept for snapshots published by Sweep
	lastFrame  *vision.Frame
	lastMask   *vision.Mask
	lastBoxes  []vision.BoundingBox
	lastResult Result

	seq      uint64
	snapshot atomic.Pointer[Snapshot]
}

// New creates a pipeline for sourceID with the given detection settings.
func New(sourceID string, cfg DetectionConfig, roi vision.Polygon, opts Options) *Pipeline {
	if opts.Retention == "" {
		opts.Retention = track.RetentionNormal
	}
	cfg = cfg.Normalize()
	p := &Pipeline{
		opts:       opts,
		sourceID:   sourceID,
		cfg:        cfg,
		differ:     vision.NewDifferencer(cfg.Threshold, roi),
		tracker:    track.NewTracker(),
		classifier: track.NewClassifier(opts.MinFrames, cfg.LoiteringThreshold()),
		dwell:      heatmap.NewGrid(opts.CellSize),
	}
	p.publishLocked(time.Time{})
	return p
}

// Process runs one pass over frame. An invalid frame returns
// vision.ErrInvalidFrame and changes nothing.
func (p *Pipeline) Process(frame *vision.Frame, now time.Time) (Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	diff, err := p.differ.Diff(frame)
	if err != nil {
		return Result{}, err
	}

	res := Result{
		Bootstrapped:  diff.Bootstrapped,
		MotionPixels:  diff.MotionPixels,
		SampledPixels: diff.SampledPixels,
		MotionPercent: diff.MotionPercent(),
	}

	if !diff.Bootstrapped {
		res.MotionActive = res.SampledPixels > 0 && res.MotionPercent >= p.cfg.MinAreaPercent
		res.Boxes = vision.ExtractComponents(diff.Mask, p.cfg.MinComponentSize)

		stats := p.tracker.Update(res.Boxes, now)
		res.Matched, res.Created = stats.Matched, stats.Created
		p.dwell.Add(res.Boxes...)
	}

	res.Loitering, res.Transition = p.classifier.ClassifyTracker(p.tracker, now)

	p.lastFrame = frame.Clone()
	p.lastMask = diff.Mask
	p.lastBoxes = res.Boxes
	p.lastResult = res
	p.publishLocked(now)

	return res, nil
}

// Sweep drops tracks unseen for longer than the retention window and
// recomputes the aggregate loitering signal.
func (p *Pipeline) Sweep(now time.Time) (int, track.Transition) {
	p.mu.Lock()
	defer p.mu.Unlock()

	removed := p.tracker.Sweep(now, p.opts.Retention.Window())
	aggregate, transition := p.classifier.ClassifyTracker(p.tracker, now)
	p.lastResult.Loitering = aggregate
	p.publishLocked(now)
	return removed, transition
}

// SwitchSource discards every piece of per-source state and starts over
// with the given camera settings.
func (p *Pipeline) SwitchSource(sourceID string, cfg DetectionConfig, roi vision.Polygon) {
	p.mu.Lock()
	defer p.mu.Unlock()

	cfg = cfg.Normalize()
	p.sourceID = sourceID
	p.cfg = cfg
	p.differ = vision.NewDifferencer(cfg.Threshold, roi)
	p.tracker.Reset()
	p.classifier = track.NewClassifier(p.opts.MinFrames, cfg.LoiteringThreshold())
	p.dwell.Reset()
	p.lastFrame, p.lastMask, p.lastBoxes = nil, nil, nil
	p.lastResult = Result{}
	p.publishLocked(time.Time{})
}

// UpdateConfig applies new detection settings to the running source.
// Tracks and the previous frame are kept.
func (p *Pipeline) UpdateConfig(cfg DetectionConfig) {
	p.mu.Lock()
	defer p.mu.Unlock()

	cfg = cfg.Normalize()
	p.cfg = cfg
	p.differ.SetThreshold(cfg.Threshold)
	p.classifier.Threshold = cfg.LoiteringThreshold()
	p.publishLocked(p.currentTime())
}

// UpdateROI replaces the region of interest for the running source.
func (p *Pipeline) UpdateROI(roi vision.Polygon) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.differ.SetROI(roi)
	p.publishLocked(p.currentTime())
}

// Config returns the active detection settings.
func (p *Pipeline) Config() DetectionConfig {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg
}

// SourceID returns the active source.
func (p *Pipeline) SourceID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sourceID
}

// Snapshot returns the most recently published state. It never returns nil.
func (p *Pipeline) Snapshot() *Snapshot {
	return p.snapshot.Load()
}

func (p *Pipeline) currentTime() time.Time {
	if s := p.snapshot.Load(); s != nil {
		return s.Timestamp
	}
	return time.Time{}
}

func (p *Pipeline) publishLocked(now time.Time) {
	p.seq++
	res := p.lastResult
	p.snapshot.Store(&Snapshot{
		SourceID:      p.sourceID,
		Sequence:      p.seq,
		Timestamp:     now,
		Frame:         p.lastFrame,
		Mask:          p.lastMask,
		Boxes:         p.lastBoxes,
		Objects:       p.tracker.Objects(),
		Loitering:     res.Loitering,
		MotionPercent: res.MotionPercent,
		MotionActive:  res.MotionActive,
		Dwell:         p.dwell.Cells(),
		DwellMax:      p.dwell.Max(),
		CellSize:      p.dwell.CellSize(),
		Config:        p.cfg,
		ROI:           p.differ.ROI(),
	})
}
