package alert

import (
	"context"
	"errors"
	"fmt"

	"github.com/ayusman/dockwatch/internal/logger"
	"github.com/ayusman/dockwatch/internal/plugin"
)

// ErrNoPlugins is returned when no plugin handles the loitering action.
var ErrNoPlugins = errors.New("no warning plugins installed")

// PluginNotifier runs every plugin that declares the loitering action.
type PluginNotifier struct {
	manager  *plugin.Manager
	executor *plugin.Executor
	log      *logger.Logger
}

// NewPluginNotifier creates a notifier over discovered plugins.
func NewPluginNotifier(manager *plugin.Manager, executor *plugin.Executor, log *logger.Logger) *PluginNotifier {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &PluginNotifier{
		manager:  manager,
		executor: executor,
		log:      log,
	}
}

// Notify runs the plugins in name order and joins their failures.
func (n *PluginNotifier) Notify(ctx context.Context, ev Event) error {
	plugins := n.manager.ForAction(plugin.ActionLoitering)
	if len(plugins) == 0 {
		return ErrNoPlugins
	}

	objects := make([]plugin.Object, len(ev.Objects))
	for i, obj := range ev.Objects {
		b := obj.Box.Bounds()
		objects[i] = plugin.Object{
			ID:                obj.ID,
			Box:               plugin.Box{X: b.X, Y: b.Y, Width: b.Width, Height: b.Height},
			FirstDetectedAt:   obj.FirstDetectedAt,
			ConsecutiveFrames: obj.ConsecutiveFrames,
		}
	}

	var errs []error
	for _, p := range plugins {
		req := &plugin.Request{
			Action:    plugin.ActionLoitering,
			CameraID:  ev.CameraID,
			Timestamp: ev.Timestamp,
			Manual:    ev.Manual,
			Image:     ev.Image,
			Objects:   objects,
		}

		resp, err := n.executor.Execute(ctx, p, req)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.Manifest.Name, err))
			continue
		}
		if !resp.Success {
			errs = append(errs, fmt.Errorf("%s: %s", p.Manifest.Name, resp.Error))
			continue
		}
		n.log.Info("plugin handled warning", "plugin", p.Manifest.Name, "camera", ev.CameraID, "data", string(resp.Data))
	}

	return errors.Join(errs...)
}
