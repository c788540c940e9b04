// Package tray provides a system tray interface for the dockwatch monitor.
package tray

import (
	"sync"

	"github.com/getlantern/systray"
)

// Tray shows the loitering state and active camera and exposes the
// detection and auto-warn toggles.
type Tray struct {
	onToggleDetection func(enabled bool)
	onToggleAutoWarn  func(enabled bool)
	onDashboard       func()
	onQuit            func()

	mu        sync.RWMutex
	detection bool
	autoWarn  bool
	loitering bool
	camera    string

	// Menu items stored for later updates
	menuStatus    *systray.MenuItem
	menuCamera    *systray.MenuItem
	menuDetection *systray.MenuItem
	menuAutoWarn  *systray.MenuItem
}

// New creates a new Tray reflecting the given initial toggle states.
func New(detection, autoWarn bool) *Tray {
	return &Tray{
		detection: detection,
		autoWarn:  autoWarn,
	}
}

// OnToggleDetection sets the callback for the detection toggle.
func (t *Tray) OnToggleDetection(fn func(enabled bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onToggleDetection = fn
}

// OnToggleAutoWarn sets the callback for the auto-warn toggle.
func (t *Tray) OnToggleAutoWarn(fn func(enabled bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onToggleAutoWarn = fn
}

// OnDashboard sets the callback for the dashboard menu item.
func (t *Tray) OnDashboard(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onDashboard = fn
}

// OnQuit sets the callback for the quit menu item.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray. It must be called from the main goroutine and
// blocks until Quit.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// Quit closes the tray and makes Run return.
func (t *Tray) Quit() {
	systray.Quit()
}

func (t *Tray) onReady() {
	systray.SetTitle("dockwatch")
	systray.SetTooltip("dockwatch loitering monitor")

	t.mu.Lock()
	t.menuStatus = systray.AddMenuItem(statusTitle(t.loitering), "Aggregate loitering state")
	t.menuStatus.Disable()
	t.menuCamera = systray.AddMenuItem(cameraTitle(t.camera), "Active camera")
	t.menuCamera.Disable()
	systray.AddSeparator()

	t.menuDetection = systray.AddMenuItemCheckbox("Detection", "Toggle motion detection", t.detection)
	t.menuAutoWarn = systray.AddMenuItemCheckbox("Automatic warnings", "Warn automatically when loitering starts", t.autoWarn)
	t.mu.Unlock()
	systray.AddSeparator()

	menuDashboard := systray.AddMenuItem("Open Dashboard...", "Open the dashboard in a browser")
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Quit dockwatch")

	go func() {
		for {
			select {
			case <-t.menuDetection.ClickedCh:
				t.handleToggleDetection()
			case <-t.menuAutoWarn.ClickedCh:
				t.handleToggleAutoWarn()
			case <-menuDashboard.ClickedCh:
				t.handleDashboard()
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				return
			}
		}
	}()
}

func (t *Tray) onExit() {}

func (t *Tray) handleToggleDetection() {
	t.mu.Lock()
	t.detection = !t.detection
	enabled := t.detection
	setChecked(t.menuDetection, enabled)
	callback := t.onToggleDetection
	t.mu.Unlock()

	// outside the lock: the callback may call back into the tray
	if callback != nil {
		callback(enabled)
	}
}

func (t *Tray) handleToggleAutoWarn() {
	t.mu.Lock()
	t.autoWarn = !t.autoWarn
	enabled := t.autoWarn
	setChecked(t.menuAutoWarn, enabled)
	callback := t.onToggleAutoWarn
	t.mu.Unlock()

	if callback != nil {
		callback(enabled)
	}
}

func (t *Tray) handleDashboard() {
	t.mu.RLock()
	callback := t.onDashboard
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

func (t *Tray) handleQuit() {
	t.mu.RLock()
	callback := t.onQuit
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}

	systray.Quit()
}

// SetLoitering updates the status line and the tray title.
func (t *Tray) SetLoitering(loitering bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.loitering = loitering
	if t.menuStatus != nil {
		t.menuStatus.SetTitle(statusTitle(loitering))
		if loitering {
			systray.SetTitle("dockwatch !")
		} else {
			systray.SetTitle("dockwatch")
		}
	}
}

// SetCamera updates the active camera line.
func (t *Tray) SetCamera(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.camera = name
	if t.menuCamera != nil {
		t.menuCamera.SetTitle(cameraTitle(name))
	}
}

// DetectionEnabled returns the detection toggle state.
func (t *Tray) DetectionEnabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.detection
}

// AutoWarn returns the auto-warn toggle state.
func (t *Tray) AutoWarn() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.autoWarn
}

// Loitering returns the last loitering state shown.
func (t *Tray) Loitering() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.loitering
}

// Camera returns the camera name shown.
func (t *Tray) Camera() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.camera
}

func statusTitle(loitering bool) string {
	if loitering {
		return "● Loitering detected"
	}
	return "○ Clear"
}

func cameraTitle(name string) string {
	if name == "" {
		return "Camera: none"
	}
	return "Camera: " + name
}

func setChecked(item *systray.MenuItem, on bool) {
	if item == nil {
		return
	}
	if on {
		item.Check()
	} else {
		item.Uncheck()
	}
}
