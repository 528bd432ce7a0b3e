package plugin

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
)

// Binding names the implementation a manifest resolves to. File is kept for
// compatibility with manifests written for dynamic loaders; Class is the key
// into the compiled factory tables.
type Binding struct {
	File  string `json:"file" validate:"required"`
	Class string `json:"class" validate:"required"`
}

// Manifest is the declarative plugin descriptor, one manifest.json per plugin
// directory. Immutable once loaded.
type Manifest struct {
	PluginID       string   `json:"plugin_id" validate:"required"`
	Version        string   `json:"version" validate:"required"`
	Name           string   `json:"name" validate:"required"`
	Author         string   `json:"author,omitempty"`
	Renderer       *Binding `json:"renderer,omitempty"`
	Collector      *Binding `json:"collector,omitempty"`
	UpdateInterval int      `json:"update_interval,omitempty" validate:"omitempty,min=1"`
}

var validate = validator.New()

// LoadManifest reads and validates a manifest file. A manifest must carry the
// base identity fields and a well-formed binding for the requested kind.
func LoadManifest(path string, kind Kind) (*Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}

	if err := validate.Struct(&m); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}

	binding := m.binding(kind)
	if binding == nil {
		return nil, fmt.Errorf("manifest has no %s binding", kind)
	}
	if err := validate.Struct(binding); err != nil {
		return nil, fmt.Errorf("invalid %s binding: %w", kind, err)
	}

	return &m, nil
}

func (m *Manifest) binding(kind Kind) *Binding {
	if kind == Sensors {
		return m.Collector
	}
	return m.Renderer
}

// Interval returns the sensor polling interval in seconds, defaulting to 30
// when the manifest does not declare one.
func (m *Manifest) Interval() int {
	if m.UpdateInterval > 0 {
		return m.UpdateInterval
	}
	return 30
}
