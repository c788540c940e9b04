package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/ayusman/dockwatch/internal/alert"
	"github.com/ayusman/dockwatch/internal/app"
	"github.com/ayusman/dockwatch/internal/config"
	"github.com/ayusman/dockwatch/internal/logger"
	"github.com/ayusman/dockwatch/internal/pipeline"
	"github.com/ayusman/dockwatch/internal/plugin"
	"github.com/ayusman/dockwatch/internal/server"
	"github.com/ayusman/dockwatch/internal/store"
	"github.com/ayusman/dockwatch/internal/track"
	"github.com/ayusman/dockwatch/internal/tray"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML config file")
	addr := flag.String("addr", "", "HTTP listen address (overrides config)")
	source := flag.String("source", "", "default camera source: device index, file or stream URL (overrides config)")
	noTray := flag.Bool("no-tray", false, "run without the system tray icon")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dockwatch: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *source != "" {
		cfg.Camera.DefaultSource = *source
	}
	if *noTray {
		cfg.Tray.Enabled = false
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "dockwatch: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.LogConfig{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "dockwatch: failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("dockwatch stopped", "error", err)
	}
}

func run(cfg *config.Config, log *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	st, err := store.New(cfg.DatabasePath())
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	plugins := plugin.NewManager(cfg.Alert.PluginDir)
	if err := plugins.Discover(); err != nil {
		log.Warn("plugin discovery failed", "dir", cfg.Alert.PluginDir, "error", err)
	}
	names := make([]string, 0)
	for _, p := range plugins.ForAction(plugin.ActionLoitering) {
		names = append(names, p.Manifest.Name)
	}
	log.Info("warning plugins", "dir", cfg.Alert.PluginDir, "plugins", strings.Join(names, ","))

	alertLog := log.Named("alert")
	notifier := alert.NewPluginNotifier(plugins, plugin.NewExecutor(cfg.Alert.Timeout), alertLog)
	dispatcher := alert.NewDispatcher(notifier, cfg.Alert.Cooldown, cfg.Alert.Timeout, alertLog)
	dispatcher.SetAutoWarn(cfg.Alert.AutoWarn)

	retention, err := track.ParseRetentionMode(cfg.Pipeline.Retention)
	if err != nil {
		return err
	}

	a := app.New(app.Config{
		Store:         st,
		Dispatcher:    dispatcher,
		Log:           log,
		FrameInterval: cfg.Pipeline.FrameInterval,
		SweepInterval: cfg.Pipeline.SweepInterval,
		Pipeline: pipeline.Options{
			MinFrames: cfg.Pipeline.MinFrames,
			Retention: retention,
			CellSize:  cfg.Pipeline.DwellCellSize,
		},
		DefaultCamera: store.Camera{
			ID:     cfg.Camera.DefaultID,
			Name:   cfg.Camera.DefaultID,
			Source: cfg.Camera.DefaultSource,
		},
		Disabled: cfg.Pipeline.Disabled,
	})

	var tr *tray.Tray
	if cfg.Tray.Enabled {
		tr = newTray(a, "http://"+dashboardHost(cfg.Server.Addr), stop, log)
	}

	if err := a.Restore(); err != nil {
		return fmt.Errorf("restore active camera: %w", err)
	}

	webDir := findWebDir(cfg.Server.StaticDir, cfg.DataDir)
	if webDir != "" {
		log.Info("serving static files", "dir", webDir)
	}
	srv := server.New(server.Config{
		StaticDir: webDir,
		Store:     st,
		Monitor:   a,
		Log:       log,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(gctx, cfg.Server.Addr)
	})
	g.Go(func() error {
		if err := a.Start(); err != nil {
			return err
		}
		<-gctx.Done()
		a.Stop()
		return nil
	})

	if tr != nil {
		go func() {
			<-gctx.Done()
			tr.Quit()
		}()
		// systray needs the main goroutine
		tr.Run()
		stop()
	}

	return g.Wait()
}

// newTray wires the tray toggles to the app and the app's state changes
// back to the tray.
func newTray(a *app.App, dashboard string, quit func(), log *logger.Logger) *tray.Tray {
	tr := tray.New(a.DetectionEnabled(), a.AutoWarn())
	tr.OnToggleDetection(a.SetDetectionEnabled)
	tr.OnToggleAutoWarn(a.SetAutoWarn)
	tr.OnDashboard(func() {
		if err := openBrowser(dashboard); err != nil {
			log.Warn("failed to open dashboard", "url", dashboard, "error", err)
		}
	})
	tr.OnQuit(quit)

	a.OnLoiteringChange(func(_ string, loitering bool) {
		tr.SetLoitering(loitering)
	})
	a.OnCameraChange(func(cam store.Camera) {
		tr.SetCamera(cam.Name)
		tr.SetLoitering(false)
	})
	return tr
}

// dashboardHost turns a listen address such as ":8080" into a browsable host.
func dashboardHost(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "127.0.0.1" + addr
	}
	return strings.Replace(addr, "0.0.0.0", "127.0.0.1", 1)
}

func openBrowser(url string) error {
	name := "xdg-open"
	switch runtime.GOOS {
	case "darwin":
		name = "open"
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	}
	return exec.Command(name, url).Start()
}

// findWebDir returns configured if set, otherwise the first existing
// directory among "web", "../web", "../../web" and dataDir/web.
func findWebDir(configured, dataDir string) string {
	if configured != "" {
		return configured
	}

	candidates := []string{"web", "../web", "../../web", filepath.Join(dataDir, "web")}
	for _, p := range candidates {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			if abs, err := filepath.Abs(p); err == nil {
				return abs
			}
			return p
		}
	}
	return ""
}
