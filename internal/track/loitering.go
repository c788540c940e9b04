package track

import "time"

// Loitering defaults.
const (
	DefaultMinFrames          = 5
	DefaultLoiteringThreshold = 45 * time.Second
)

// Transition describes a change of the aggregate loitering signal.
type Transition int

const (
	// NoChange means the aggregate kept its previous value.
	NoChange Transition = iota
	// Started means the aggregate went from false to true.
	Started
	// Stopped means the aggregate went from true to false.
	Stopped
)

func (t Transition) String() string {
	switch t {
	case Started:
		return "started"
	case Stopped:
		return "stopped"
	default:
		return "none"
	}
}

// Classifier promotes long-lived, frequently redetected objects to loitering
// and keeps the aggregate signal so only transitions are reported.
type Classifier struct {
	MinFrames int
	Threshold time.Duration

	active bool
}

// NewClassifier creates a classifier. Non-positive arguments use the defaults.
func NewClassifier(minFrames int, threshold time.Duration) *Classifier {
	if minFrames <= 0 {
		minFrames = DefaultMinFrames
	}
	if threshold <= 0 {
		threshold = DefaultLoiteringThreshold
	}
	return &Classifier{MinFrames: minFrames, Threshold: threshold}
}

// Qualifies reports whether obj meets the loitering rule at now.
func (c *Classifier) Qualifies(obj *Object, now time.Time) bool {
	return obj.ConsecutiveFrames > c.MinFrames && obj.Age(now) >= c.Threshold
}

// Classify marks qualifying objects as loitering. An object that is already
// loitering stays loitering. It returns the aggregate value and how it changed
// since the previous call.
func (c *Classifier) Classify(objects []*Object, now time.Time) (bool, Transition) {
	aggregate := false
	for _, obj := range objects {
		if !obj.Loitering && c.Qualifies(obj, now) {
			obj.Loitering = true
		}
		if obj.Loitering {
			aggregate = true
		}
	}
	return aggregate, c.publish(aggregate)
}

// ClassifyTracker runs Classify over the tracker's live objects.
func (c *Classifier) ClassifyTracker(t *Tracker, now time.Time) (bool, Transition) {
	return c.Classify(t.live(), now)
}

// Active returns the last published aggregate.
func (c *Classifier) Active() bool {
	return c.active
}

// Reset clears the aggregate without reporting a transition.
func (c *Classifier) Reset() {
	c.active = false
}

func (c *Classifier) publish(aggregate bool) Transition {
	if aggregate == c.active {
		return NoChange
	}
	c.active = aggregate
	if aggregate {
		return Started
	}
	return Stopped
}
