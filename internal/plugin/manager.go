package plugin

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// ErrPluginNotFound is returned when a requested plugin cannot be found.
var ErrPluginNotFound = errors.New("plugin not found")

const manifestFile = "plugin.json"

// Manager discovers plugins under a directory and looks them up by name or
// by declared action.
type Manager struct {
	pluginDir string

	mu      sync.RWMutex
	byName  map[string]*Plugin
	ordered []*Plugin // sorted by manifest name
}

// NewManager creates a Manager for pluginDir. Nothing is loaded until
// Discover.
func NewManager(pluginDir string) *Manager {
	return &Manager{
		pluginDir: pluginDir,
		byName:    make(map[string]*Plugin),
	}
}

// Discover rescans pluginDir and replaces the loaded set. Each subdirectory
// holding a valid plugin.json is a plugin; unreadable or incomplete manifests
// are skipped. A missing directory yields no plugins.
func (m *Manager) Discover() error {
	found, err := scan(m.pluginDir)
	if err != nil {
		return err
	}

	byName := make(map[string]*Plugin, len(found))
	for _, p := range found {
		byName[p.Manifest.Name] = p
	}
	ordered := make([]*Plugin, 0, len(byName))
	for _, p := range byName {
		ordered = append(ordered, p)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].Manifest.Name < ordered[j].Manifest.Name
	})

	m.mu.Lock()
	m.byName = byName
	m.ordered = ordered
	m.mu.Unlock()
	return nil
}

func scan(root string) ([]*Plugin, error) {
	entries, err := os.ReadDir(root)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		// a plain file where the directory should be is treated as empty
		if info, statErr := os.Stat(root); statErr == nil && !info.IsDir() {
			return nil, nil
		}
		return nil, fmt.Errorf("read plugin dir: %w", err)
	}

	var found []*Plugin
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if p, ok := readPlugin(filepath.Join(root, entry.Name())); ok {
			found = append(found, p)
		}
	}
	return found, nil
}

func readPlugin(dir string) (*Plugin, bool) {
	data, err := os.ReadFile(filepath.Join(dir, manifestFile))
	if err != nil {
		return nil, false
	}

	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, false
	}
	if manifest.Name == "" || manifest.Executable == "" {
		return nil, false
	}

	return &Plugin{
		Manifest:   manifest,
		Path:       dir,
		Executable: filepath.Join(dir, manifest.Executable),
	}, true
}

// Get returns a plugin by name or ErrPluginNotFound.
func (m *Manager) Get(name string) (*Plugin, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if p, ok := m.byName[name]; ok {
		return p, nil
	}
	return nil, ErrPluginNotFound
}

// List returns all discovered plugins sorted by name.
func (m *Manager) List() []*Plugin {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*Plugin(nil), m.ordered...)
}

// ForAction returns the plugins declaring action, sorted by name.
func (m *Manager) ForAction(action string) []*Plugin {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Plugin
	for _, p := range m.ordered {
		if p.Manifest.Handles(action) {
			out = append(out, p)
		}
	}
	return out
}

// PluginDir returns the plugin directory path.
func (m *Manager) PluginDir() string {
	return m.pluginDir
}
