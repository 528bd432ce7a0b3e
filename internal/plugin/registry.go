package plugin

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/Floopatron/donk-project/internal/protocol"
)

// Kind selects which side of a plugin a registry loads: sensors on the
// agent, renderers on the hub.
type Kind string

const (
	Sensors   Kind = "collector"
	Renderers Kind = "renderer"
)

// Registry scans a plugin directory and owns the loaded plugin instances.
type Registry struct {
	pluginDir string
	kind      Kind
	plugins   map[string]*Loaded // keyed by plugin ID
	mu        sync.RWMutex
	logger    *slog.Logger
}

// NewRegistry creates a registry for one plugin kind rooted at pluginDir.
func NewRegistry(pluginDir string, kind Kind, logger *slog.Logger) *Registry {
	return &Registry{
		pluginDir: pluginDir,
		kind:      kind,
		plugins:   make(map[string]*Loaded),
		logger:    logger.With("component", "plugin_registry"),
	}
}

// Discover returns the names of candidate plugin directories: any directory
// under the plugin root containing a manifest.json.
func (r *Registry) Discover() ([]string, error) {
	entries, err := os.ReadDir(r.pluginDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read plugin directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		manifestPath := filepath.Join(r.pluginDir, entry.Name(), "manifest.json")
		if _, err := os.Stat(manifestPath); err != nil {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}

// LoadAll discovers and loads every valid plugin. A manifest that fails
// validation, a duplicate plugin ID, or a factory failure skips only that
// plugin; one bad plugin never prevents the rest from loading. The first
// manifest claiming a plugin ID wins.
func (r *Registry) LoadAll() error {
	names, err := r.Discover()
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, name := range names {
		dir := filepath.Join(r.pluginDir, name)
		manifest, err := LoadManifest(filepath.Join(dir, "manifest.json"), r.kind)
		if err != nil {
			r.logger.Warn("Skipping plugin with invalid manifest",
				"plugin", name, "error", err)
			continue
		}

		if _, dup := r.plugins[manifest.PluginID]; dup {
			r.logger.Warn("Skipping duplicate plugin ID",
				"plugin", name, "id", manifest.PluginID)
			continue
		}

		loaded := &Loaded{Manifest: manifest, Dir: dir}
		switch r.kind {
		case Sensors:
			loaded.Sensor, err = newSensor(manifest.Collector.Class, manifest)
		default:
			loaded.Renderer, err = newRenderer(manifest.Renderer.Class, manifest)
		}
		if err != nil {
			r.logger.Warn("Skipping plugin that failed to instantiate",
				"plugin", name, "id", manifest.PluginID, "error", err)
			continue
		}

		r.plugins[manifest.PluginID] = loaded
		r.logger.Info("Loaded plugin",
			"id", manifest.PluginID,
			"name", manifest.Name,
			"version", manifest.Version,
			"kind", r.kind,
		)
	}

	r.logger.Info("Plugin load complete", "count", len(r.plugins), "kind", r.kind)
	return nil
}

// Get retrieves a loaded plugin by its ID.
func (r *Registry) Get(id string) (*Loaded, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plugins[id]
	return p, ok
}

// List returns all loaded plugins.
func (r *Registry) List() []*Loaded {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]*Loaded, 0, len(r.plugins))
	for _, p := range r.plugins {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Manifest.PluginID < result[j].Manifest.PluginID
	})
	return result
}

// Render renders a context payload through the named plugin. ok is false when
// the plugin is unknown or its renderer failed, so callers can distinguish
// "nothing to draw" (empty widgets) from "no such plugin". A renderer error
// or panic is contained here and never propagates.
func (r *Registry) Render(pluginID string, data json.RawMessage) (widgets []protocol.Widget, ok bool) {
	p, found := r.Get(pluginID)
	if !found || p.Renderer == nil {
		r.logger.Warn("Cannot render widgets for unknown plugin", "id", pluginID)
		return nil, false
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Renderer panicked", "id", pluginID, "panic", rec)
			widgets, ok = nil, false
		}
	}()

	widgets, err := p.Renderer.Render(data)
	if err != nil {
		r.logger.Error("Renderer failed", "id", pluginID, "error", err)
		return nil, false
	}
	return widgets, true
}

// Manifests returns the manifest of every loaded plugin, for the query API.
func (r *Registry) Manifests() []*Manifest {
	loaded := r.List()
	result := make([]*Manifest, 0, len(loaded))
	for _, p := range loaded {
		result = append(result, p.Manifest)
	}
	return result
}
