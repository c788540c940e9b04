// Package app wires the frame source, the detection pipeline, the alert
// dispatcher and the store into the running loitering monitor.
package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ayusman/dockwatch/internal/alert"
	"github.com/ayusman/dockwatch/internal/capture"
	"github.com/ayusman/dockwatch/internal/logger"
	"github.com/ayusman/dockwatch/internal/pipeline"
	"github.com/ayusman/dockwatch/internal/store"
	"github.com/ayusman/dockwatch/internal/track"
	"github.com/ayusman/dockwatch/internal/vision"
)

// Loop timing defaults.
const (
	DefaultFrameInterval = 50 * time.Millisecond
	DefaultSweepInterval = 2 * time.Second
	// reopenInterval limits how often a closed source is reopened.
	reopenInterval = 5 * time.Second
)

// ErrNoCamera is returned by Tick before a camera has been selected.
var ErrNoCamera = errors.New("no camera selected")

// SourceOpener creates the frame source for a registered camera.
type SourceOpener func(cam *store.Camera) capture.Source

// Config holds configuration options for the application.
type Config struct {
	Store      *store.Store
	Dispatcher *alert.Dispatcher
	Log        *logger.Logger

	FrameInterval time.Duration
	SweepInterval time.Duration
	Pipeline      pipeline.Options

	// DefaultCamera is registered on Restore when missing.
	DefaultCamera store.Camera
	// Disabled starts with detection switched off.
	Disabled bool

	// OpenSource defaults to a GoCV camera.
	OpenSource SourceOpener
}

// App is the main application that runs detection on the active camera.
type App struct {
	config     Config
	log        *logger.Logger
	store      *store.Store
	dispatcher *alert.Dispatcher
	pipeline   *pipeline.Pipeline
	openSource SourceOpener

	enabled atomic.Bool

	// mu serialises ticks, sweeps and camera switches.
	mu           sync.Mutex
	camera       *store.Camera
	source       capture.Source
	motionActive bool
	lastReopen   time.Time

	cbMu        sync.RWMutex
	onLoitering func(cameraID string, loitering bool)
	onCamera    func(cam store.Camera)

	runMu  sync.Mutex
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates a new App. No camera is active until Restore or SelectCamera.
func New(config Config) *App {
	if config.FrameInterval <= 0 {
		config.FrameInterval = DefaultFrameInterval
	}
	if config.SweepInterval <= 0 {
		config.SweepInterval = DefaultSweepInterval
	}
	log := config.Log
	if log == nil {
		log = logger.NewNopLogger()
	}
	open := config.OpenSource
	if open == nil {
		open = func(cam *store.Camera) capture.Source {
			return capture.NewCamera(cam.ID, cam.Source)
		}
	}

	a := &App{
		config:     config,
		log:        log.Named("app"),
		store:      config.Store,
		dispatcher: config.Dispatcher,
		openSource: open,
		pipeline:   pipeline.New("", pipeline.DefaultDetectionConfig(), nil, config.Pipeline),
	}
	a.enabled.Store(!config.Disabled)
	return a
}

// OnLoiteringChange registers a callback for aggregate loitering transitions.
func (a *App) OnLoiteringChange(fn func(cameraID string, loitering bool)) {
	a.cbMu.Lock()
	defer a.cbMu.Unlock()
	a.onLoitering = fn
}

// OnCameraChange registers a callback for camera switches.
func (a *App) OnCameraChange(fn func(cam store.Camera)) {
	a.cbMu.Lock()
	defer a.cbMu.Unlock()
	a.onCamera = fn
}

// Restore registers the default camera if needed, reselects the camera that
// was active last time and restores the auto-warn setting.
func (a *App) Restore() error {
	def := a.config.DefaultCamera
	if def.ID != "" {
		if _, err := a.store.Cameras().GetByID(def.ID); errors.Is(err, store.ErrNotFound) {
			if def.Name == "" {
				def.Name = def.ID
			}
			if err := a.store.Cameras().Create(&def); err != nil {
				return fmt.Errorf("register default camera: %w", err)
			}
			a.log.Info("registered default camera", "camera", def.ID, "source", def.Source)
		} else if err != nil {
			return fmt.Errorf("load default camera: %w", err)
		}
	}

	if a.dispatcher != nil {
		v, err := a.store.Settings().GetOr(store.SettingAutoWarn, strconv.FormatBool(a.dispatcher.AutoWarn()))
		if err != nil {
			return err
		}
		if on, err := strconv.ParseBool(v); err == nil {
			a.dispatcher.SetAutoWarn(on)
		}
	}

	id, err := a.store.Settings().GetOr(store.SettingActiveCamera, def.ID)
	if err != nil {
		return err
	}
	if id == "" {
		return nil
	}

	err = a.SelectCamera(id)
	if errors.Is(err, store.ErrNotFound) && id != def.ID && def.ID != "" {
		a.log.Warn("last active camera is gone, using default", "camera", id)
		return a.SelectCamera(def.ID)
	}
	return err
}

// SelectCamera switches detection to the registered camera id. Tracks, dwell
// counts and the previous frame of the old camera are discarded.
func (a *App) SelectCamera(id string) error {
	cam, err := a.store.Cameras().GetByID(id)
	if err != nil {
		return fmt.Errorf("camera %s: %w", id, err)
	}

	cfg, roi, err := a.store.Detection().Load(id)
	if err != nil {
		if !errors.Is(err, pipeline.ErrConfigParse) {
			return fmt.Errorf("load detection settings for %s: %w", id, err)
		}
		a.log.Warn("stored detection settings unreadable, using defaults", "camera", id, "error", err)
	}

	src := a.openSource(cam)
	if err := src.Open(); err != nil {
		// ticks keep retrying
		a.log.Warn("failed to open camera", "camera", id, "source", cam.Source, "error", err)
	}

	a.mu.Lock()
	old := a.source
	a.source = src
	a.camera = cam
	a.motionActive = false
	a.lastReopen = time.Now()
	a.pipeline.SwitchSource(id, cfg, roi)
	if a.dispatcher != nil {
		a.dispatcher.Reset()
	}
	a.mu.Unlock()

	if old != nil {
		if err := old.Close(); err != nil {
			a.log.Warn("error closing camera", "camera", old.ID(), "error", err)
		}
	}

	if err := a.store.Settings().Set(store.SettingActiveCamera, id); err != nil {
		a.log.Warn("failed to remember active camera", "camera", id, "error", err)
	}
	a.log.Info("camera selected", "camera", id, "name", cam.Name, "threshold", cfg.Threshold, "roiPoints", len(roi))

	a.cbMu.RLock()
	cb := a.onCamera
	a.cbMu.RUnlock()
	if cb != nil {
		cb(*cam)
	}
	return nil
}

// Tick reads one frame and runs a detection pass. now is used when the
// frame carries no timestamp. A missing or invalid frame skips the pass.
func (a *App) Tick(now time.Time) (pipeline.Result, error) {
	if !a.enabled.Load() {
		return pipeline.Result{}, nil
	}

	a.mu.Lock()
	if a.source == nil {
		a.mu.Unlock()
		return pipeline.Result{}, ErrNoCamera
	}

	frame, err := a.source.ReadFrame()
	if err != nil {
		if errors.Is(err, capture.ErrCameraNotOpen) {
			a.reopenLocked(now)
		}
		a.mu.Unlock()
		a.log.Debug("frame unavailable", "camera", a.pipeline.SourceID(), "error", err)
		return pipeline.Result{}, err
	}

	at := frame.Timestamp
	if at.IsZero() {
		at = now
	}
	res, err := a.pipeline.Process(frame, at)
	if err != nil {
		a.mu.Unlock()
		a.log.Debug("frame skipped", "camera", a.pipeline.SourceID(), "error", err)
		return res, err
	}

	cameraID := a.pipeline.SourceID()
	if res.MotionActive != a.motionActive {
		a.motionActive = res.MotionActive
		if res.MotionActive {
			a.log.Info("motion started", "camera", cameraID, "percent", res.MotionPercent)
		} else {
			a.log.Info("motion stopped", "camera", cameraID)
		}
	}
	a.mu.Unlock()

	a.publish(cameraID, res.Transition, len(res.Boxes))
	return res, nil
}

// Sweep drops stale tracks and reclassifies.
func (a *App) Sweep(now time.Time) int {
	a.mu.Lock()
	removed, tr := a.pipeline.Sweep(now)
	cameraID := a.pipeline.SourceID()
	a.mu.Unlock()

	if removed > 0 {
		a.log.Debug("stale tracks removed", "camera", cameraID, "removed", removed)
	}
	a.publish(cameraID, tr, 0)
	return removed
}

// publish reports a loitering transition and lets the dispatcher inspect
// the latest snapshot.
func (a *App) publish(cameraID string, tr track.Transition, boxes int) {
	if tr != track.NoChange {
		loitering := tr == track.Started
		a.log.Info("loitering "+tr.String(), "camera", cameraID, "boxes", boxes)

		a.cbMu.RLock()
		cb := a.onLoitering
		a.cbMu.RUnlock()
		if cb != nil {
			cb(cameraID, loitering)
		}
	}

	if a.dispatcher != nil {
		a.dispatcher.Observe(a.pipeline.Snapshot())
	}
}

func (a *App) reopenLocked(now time.Time) {
	if now.Sub(a.lastReopen) < reopenInterval {
		return
	}
	a.lastReopen = now
	if err := a.source.Open(); err != nil {
		a.log.Debug("camera reopen failed", "camera", a.source.ID(), "error", err)
		return
	}
	a.log.Info("camera reopened", "camera", a.source.ID())
}

// Start begins the frame and sweep loops.
func (a *App) Start() error {
	a.runMu.Lock()
	defer a.runMu.Unlock()

	if a.stopCh != nil {
		return nil
	}

	a.stopCh = make(chan struct{})
	a.wg.Add(2)
	go a.runFrames(a.stopCh)
	go a.runSweeps(a.stopCh)

	a.log.Info("detection loop started", "frameInterval", a.config.FrameInterval, "sweepInterval", a.config.SweepInterval)
	return nil
}

// Stop halts the loops, closes the camera and waits for warnings in flight.
func (a *App) Stop() {
	a.runMu.Lock()
	if a.stopCh != nil {
		close(a.stopCh)
		a.stopCh = nil
	}
	a.runMu.Unlock()
	a.wg.Wait()

	a.mu.Lock()
	if a.source != nil {
		if err := a.source.Close(); err != nil {
			a.log.Warn("error closing camera", "camera", a.source.ID(), "error", err)
		}
	}
	a.mu.Unlock()

	if a.dispatcher != nil {
		a.dispatcher.Wait()
	}
	a.log.Info("detection loop stopped")
}

// SetDetectionEnabled enables or disables detection. Sweeps keep running so
// tracks age out while disabled.
func (a *App) SetDetectionEnabled(enabled bool) {
	if a.enabled.Swap(enabled) != enabled {
		a.log.Info("detection toggled", "enabled", enabled)
	}
}

// DetectionEnabled returns whether detection is currently enabled.
func (a *App) DetectionEnabled() bool {
	return a.enabled.Load()
}

// SetAutoWarn enables or disables automatic warnings and remembers the choice.
func (a *App) SetAutoWarn(enabled bool) {
	if a.dispatcher == nil {
		return
	}
	a.dispatcher.SetAutoWarn(enabled)
	if err := a.store.Settings().Set(store.SettingAutoWarn, strconv.FormatBool(enabled)); err != nil {
		a.log.Warn("failed to remember auto-warn", "error", err)
	}
}

// AutoWarn reports whether automatic warnings are enabled.
func (a *App) AutoWarn() bool {
	return a.dispatcher != nil && a.dispatcher.AutoWarn()
}

// TriggerWarning sends a manual warning for the latest frame.
func (a *App) TriggerWarning(ctx context.Context) error {
	if a.dispatcher == nil {
		return alert.ErrNoPlugins
	}
	return a.dispatcher.Trigger(ctx, a.pipeline.Snapshot())
}

// LastWarning returns the outcome of the most recent warning, or nil.
func (a *App) LastWarning() *alert.Result {
	if a.dispatcher == nil {
		return nil
	}
	return a.dispatcher.LastResult()
}

// ApplyConfig updates the live pipeline when cameraID is active.
func (a *App) ApplyConfig(cameraID string, cfg pipeline.DetectionConfig) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.pipeline.SourceID() != cameraID {
		return
	}
	a.pipeline.UpdateConfig(cfg)
	a.log.Info("detection config applied", "camera", cameraID, "threshold", cfg.Threshold, "loiteringMs", cfg.LoiteringThresholdMs)
}

// ApplyROI updates the live region of interest when cameraID is active.
func (a *App) ApplyROI(cameraID string, roi vision.Polygon) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.pipeline.SourceID() != cameraID {
		return
	}
	a.pipeline.UpdateROI(roi)
	a.log.Info("roi applied", "camera", cameraID, "points", len(roi))
}

// Snapshot returns the latest published pipeline state.
func (a *App) Snapshot() *pipeline.Snapshot {
	return a.pipeline.Snapshot()
}

// ActiveCamera returns the id of the active camera, or "".
func (a *App) ActiveCamera() string {
	return a.pipeline.SourceID()
}

// Camera returns a copy of the active camera record.
func (a *App) Camera() (store.Camera, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.camera == nil {
		return store.Camera{}, false
	}
	return *a.camera, true
}
