// Package alert turns loitering onsets into warnings. A warning carries a
// JPEG still with the loitering objects highlighted and is handed to a
// Notifier.
package alert

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ayusman/dockwatch/internal/capture"
	"github.com/ayusman/dockwatch/internal/logger"
	"github.com/ayusman/dockwatch/internal/pipeline"
	"github.com/ayusman/dockwatch/internal/track"
	"github.com/ayusman/dockwatch/internal/vision"
)

// DefaultCooldown is the minimum time between automatic warnings.
const DefaultCooldown = 60 * time.Second

var (
	// ErrInFlight is returned when a warning is already being sent.
	ErrInFlight = errors.New("warning already in flight")
	// ErrNoEvidence is returned when no frame has been processed yet.
	ErrNoEvidence = errors.New("no frame available for evidence")
)

// Event is a warning handed to a Notifier.
type Event struct {
	CameraID  string
	Timestamp time.Time
	Manual    bool
	// Image is the JPEG evidence still.
	Image   []byte
	Objects []track.Object
}

// Notifier delivers warnings.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// ComposeFunc renders the evidence still.
type ComposeFunc func(frame *vision.Frame, objects []track.Object, now time.Time) ([]byte, error)

// Result records the outcome of the last warning.
type Result struct {
	At       time.Time `json:"at"`
	CameraID string    `json:"cameraId"`
	Manual   bool      `json:"manual"`
	Error    string    `json:"error,omitempty"`
}

// Dispatcher sends a warning when the aggregate loitering signal rises,
// provided auto-warn is on, the cooldown has elapsed and no warning is in
// flight. Manual warnings skip the edge and cooldown checks.
type Dispatcher struct {
	notifier Notifier
	compose  ComposeFunc
	log      *logger.Logger
	timeout  time.Duration

	autoWarn atomic.Bool
	inFlight atomic.Bool

	mu          sync.Mutex
	cooldown    time.Duration
	loitering   bool
	lastWarning time.Time
	lastResult  *Result

	wg sync.WaitGroup
}

// NewDispatcher creates a dispatcher with auto-warn enabled. A non-positive
// cooldown uses DefaultCooldown; timeout bounds each Notify call.
func NewDispatcher(notifier Notifier, cooldown, timeout time.Duration, log *logger.Logger) *Dispatcher {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	d := &Dispatcher{
		notifier: notifier,
		compose:  capture.ComposeEvidence,
		log:      log,
		timeout:  timeout,
		cooldown: cooldown,
	}
	d.autoWarn.Store(true)
	return d
}

// SetComposer replaces the evidence renderer.
func (d *Dispatcher) SetComposer(fn ComposeFunc) {
	d.compose = fn
}

// Observe inspects a published snapshot. On a rising edge that passes the
// auto-warn, cooldown and in-flight checks it starts an asynchronous warning
// and returns true.
func (d *Dispatcher) Observe(snap *pipeline.Snapshot) bool {
	if snap == nil {
		return false
	}

	d.mu.Lock()
	rising := snap.Loitering && !d.loitering
	d.loitering = snap.Loitering
	if !rising || !d.autoWarn.Load() {
		d.mu.Unlock()
		return false
	}
	if !d.lastWarning.IsZero() && snap.Timestamp.Sub(d.lastWarning) < d.cooldown {
		d.mu.Unlock()
		d.log.Debug("warning suppressed by cooldown", "camera", snap.SourceID)
		return false
	}
	d.mu.Unlock()

	if !d.inFlight.CompareAndSwap(false, true) {
		return false
	}

	ev, err := d.buildEvent(snap, false)
	if err != nil {
		d.inFlight.Store(false)
		d.log.Warn("failed to build warning", "camera", snap.SourceID, "error", err)
		return false
	}

	d.markSent(ev.Timestamp)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer d.inFlight.Store(false)
		d.deliver(context.Background(), ev)
	}()
	return true
}

// Trigger sends a warning for snap now, ignoring the edge and cooldown
// checks. It blocks until the notifier returns.
func (d *Dispatcher) Trigger(ctx context.Context, snap *pipeline.Snapshot) error {
	if !d.inFlight.CompareAndSwap(false, true) {
		return ErrInFlight
	}
	defer d.inFlight.Store(false)

	if snap == nil {
		return ErrNoEvidence
	}
	ev, err := d.buildEvent(snap, true)
	if err != nil {
		return err
	}

	d.markSent(ev.Timestamp)
	return d.deliver(ctx, ev)
}

func (d *Dispatcher) buildEvent(snap *pipeline.Snapshot, manual bool) (Event, error) {
	if snap.Frame == nil {
		return Event{}, ErrNoEvidence
	}

	ts := snap.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	img, err := d.compose(snap.Frame, snap.Objects, ts)
	if err != nil {
		return Event{}, err
	}

	return Event{
		CameraID:  snap.SourceID,
		Timestamp: ts,
		Manual:    manual,
		Image:     img,
		Objects:   snap.LoiteringObjects(),
	}, nil
}

func (d *Dispatcher) markSent(at time.Time) {
	d.mu.Lock()
	d.lastWarning = at
	d.mu.Unlock()
}

func (d *Dispatcher) deliver(ctx context.Context, ev Event) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	err := d.notifier.Notify(ctx, ev)

	res := &Result{At: ev.Timestamp, CameraID: ev.CameraID, Manual: ev.Manual}
	if err != nil {
		res.Error = err.Error()
		d.log.Error("warning delivery failed", "camera", ev.CameraID, "manual", ev.Manual, "error", err)
	} else {
		d.log.Info("warning sent", "camera", ev.CameraID, "manual", ev.Manual, "objects", len(ev.Objects))
	}

	d.mu.Lock()
	d.lastResult = res
	d.mu.Unlock()
	return err
}

// Reset forgets the edge state, e.g. after a camera switch. The cooldown
// keeps running.
func (d *Dispatcher) Reset() {
	d.mu.Lock()
	d.loitering = false
	d.mu.Unlock()
}

// SetAutoWarn enables or disables automatic warnings.
func (d *Dispatcher) SetAutoWarn(on bool) {
	d.autoWarn.Store(on)
}

// AutoWarn reports whether automatic warnings are enabled.
func (d *Dispatcher) AutoWarn() bool {
	return d.autoWarn.Load()
}

// InFlight reports whether a warning is being sent.
func (d *Dispatcher) InFlight() bool {
	return d.inFlight.Load()
}

// LastResult returns the outcome of the most recent warning, or nil.
func (d *Dispatcher) LastResult() *Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lastResult == nil {
		return nil
	}
	r := *d.lastResult
	return &r
}

// Wait blocks until asynchronous warnings have finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
