// Package track associates per-frame motion boxes with tracked objects and
// classifies long-lived objects as loitering.
package track

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/dockwatch/internal/vision"
)

// Matching constants. They were tuned empirically on dock footage; proximity
// dominates size similarity.
const (
	// DistanceWeight scales the centroid distance in the match score.
	DistanceWeight = 2.0
	// SizeDiffWeight scales the size-difference ratio in the match score.
	SizeDiffWeight = 20.0
	// ProximityGateFactor multiplies the mean box side to form the match gate.
	ProximityGateFactor = 2.5
	// SmoothingAlpha is the weight given to a new detection when it is
	// blended into the matched track.
	SmoothingAlpha = 0.5
)

// RetentionMode selects how long an unseen object is kept.
type RetentionMode string

const (
	// RetentionNormal drops objects unseen for more than 10 seconds.
	RetentionNormal RetentionMode = "normal"
	// RetentionPersistent drops objects unseen for more than 20 seconds.
	RetentionPersistent RetentionMode = "persistent"
)

// Window returns the retention window for the mode. Unknown modes fall back to normal.
func (m RetentionMode) Window() time.Duration {
	if m == RetentionPersistent {
		return 20 * time.Second
	}
	return 10 * time.Second
}

// ParseRetentionMode validates a mode name.
func ParseRetentionMode(s string) (RetentionMode, error) {
	switch RetentionMode(s) {
	case RetentionNormal, RetentionPersistent:
		return RetentionMode(s), nil
	case "":
		return RetentionNormal, nil
	default:
		return "", fmt.Errorf("unknown retention mode %q", s)
	}
}

// Rect is a smoothed bounding box with fractional coordinates.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// RectFromBox converts an integer bounding box.
func RectFromBox(b vision.BoundingBox) Rect {
	return Rect{X: float64(b.X), Y: float64(b.Y), Width: float64(b.Width), Height: float64(b.Height)}
}

// Center returns the centroid.
func (r Rect) Center() vision.Point {
	return vision.Point{X: r.X + r.Width/2, Y: r.Y + r.Height/2}
}

// Area returns width*height.
func (r Rect) Area() float64 {
	return r.Width * r.Height
}

// Bounds rounds the rect to integer pixel coordinates.
func (r Rect) Bounds() vision.BoundingBox {
	return vision.BoundingBox{
		X:      int(math.Round(r.X)),
		Y:      int(math.Round(r.Y)),
		Width:  int(math.Round(r.Width)),
		Height: int(math.Round(r.Height)),
	}
}

// blend applies exponential smoothing per coordinate.
func (r Rect) blend(next Rect, alpha float64) Rect {
	return Rect{
		X:      alpha*next.X + (1-alpha)*r.X,
		Y:      alpha*next.Y + (1-alpha)*r.Y,
		Width:  alpha*next.Width + (1-alpha)*r.Width,
		Height: alpha*next.Height + (1-alpha)*r.Height,
	}
}

// Object is a tracked moving region.
type Object struct {
	ID                string    `json:"id"`
	Box               Rect      `json:"box"`
	FirstDetectedAt   time.Time `json:"firstDetectedAt"`
	LastSeenAt        time.Time `json:"lastSeenAt"`
	ConsecutiveFrames int       `json:"consecutiveFrames"`
	Loitering         bool      `json:"loitering"`
}

// Age returns how long the object has been tracked as of now.
func (o *Object) Age(now time.Time) time.Duration {
	return now.Sub(o.FirstDetectedAt)
}

// UpdateStats summarises one Update call.
type UpdateStats struct {
	Matched int
	Created int
}

// Tracker keeps the live object list. It is not safe for concurrent use.
type Tracker struct {
	objects []*Object
	newID   func() string
}

// NewTracker creates an empty tracker that names objects with random UUIDs.
func NewTracker() *Tracker {
	return &Tracker{
		newID: func() string { return uuid.New().String() },
	}
}

// Update associates this frame's boxes with live objects.
//
// Matching is greedy in box order: each box takes the gate-passing object
// with the lowest score among objects not already matched this frame. There
// is no global reassignment, so the order of boxes can change the outcome.
// Unmatched boxes start new objects. Objects that are not matched are left
// alone; only Sweep removes them. LastSeenAt only moves forward, so it never
// precedes FirstDetectedAt.
func (t *Tracker) Update(boxes []vision.BoundingBox, now time.Time) UpdateStats {
	var stats UpdateStats
	claimed := make(map[*Object]bool, len(t.objects))

	for _, box := range boxes {
		candidate := RectFromBox(box)

		var best *Object
		bestScore := math.Inf(1)
		for _, obj := range t.objects {
			if claimed[obj] {
				continue
			}
			score, ok := matchScore(candidate, obj.Box)
			if ok && score < bestScore {
				best, bestScore = obj, score
			}
		}

		if best != nil {
			claimed[best] = true
			best.Box = best.Box.blend(candidate, SmoothingAlpha)
			best.ConsecutiveFrames++
			// out-of-order timestamps never move LastSeenAt back
			if now.After(best.LastSeenAt) {
				best.LastSeenAt = now
			}
			stats.Matched++
			continue
		}

		obj := &Object{
			ID:                t.newID(),
			Box:               candidate,
			FirstDetectedAt:   now,
			LastSeenAt:        now,
			ConsecutiveFrames: 1,
		}
		t.objects = append(t.objects, obj)
		claimed[obj] = true
		stats.Created++
	}

	return stats
}

// matchScore returns the weighted score of pairing a candidate with a track
// and whether the pair passes the proximity gate.
func matchScore(candidate, track Rect) (float64, bool) {
	cc, tc := candidate.Center(), track.Center()
	distance := math.Hypot(cc.X-tc.X, cc.Y-tc.Y)

	meanSide := (candidate.Width + candidate.Height + track.Width + track.Height) / 4
	if distance >= ProximityGateFactor*meanSide {
		return 0, false
	}

	return DistanceWeight*distance + SizeDiffWeight*sizeDiffRatio(candidate, track), true
}

// sizeDiffRatio is |areaA - areaB| / max(areaA, areaB), in [0, 1].
func sizeDiffRatio(a, b Rect) float64 {
	areaA, areaB := a.Area(), b.Area()
	larger := math.Max(areaA, areaB)
	if larger == 0 {
		return 0
	}
	return math.Abs(areaA-areaB) / larger
}

// Sweep removes objects whose time since LastSeenAt exceeds window and
// returns how many were removed.
func (t *Tracker) Sweep(now time.Time, window time.Duration) int {
	kept := t.objects[:0]
	removed := 0
	for _, obj := range t.objects {
		if now.Sub(obj.LastSeenAt) > window {
			removed++
			continue
		}
		kept = append(kept, obj)
	}
	for i := len(kept); i < len(t.objects); i++ {
		t.objects[i] = nil
	}
	t.objects = kept
	return removed
}

// Objects returns copies of the live objects in creation order.
func (t *Tracker) Objects() []Object {
	out := make([]Object, len(t.objects))
	for i, obj := range t.objects {
		out[i] = *obj
	}
	return out
}

// Len returns the number of live objects.
func (t *Tracker) Len() int {
	return len(t.objects)
}

// Reset drops every object.
func (t *Tracker) Reset() {
	t.objects = nil
}

// live exposes the mutable objects to the classifier.
func (t *Tracker) live() []*Object {
	return t.objects
}
