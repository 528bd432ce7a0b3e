// Package plugin implements manifest-driven discovery and loading of sensor
// and renderer plugins. Plugin implementations are compiled into the binary
// and registered in factory tables; the manifest's binding selects which
// factory instantiates the plugin.
package plugin

import (
	"context"
	"encoding/json"

	"github.com/Floopatron/donk-project/internal/protocol"
)

// Sensor is implemented by agent-side plugins that produce context payloads.
// Collect returns the current context, or nil when there is nothing to
// report right now (distinct from an inactive payload, which is a value the
// hub turns into a retraction).
type Sensor interface {
	Collect(ctx context.Context) (any, error)
}

// Commander is optionally implemented by sensors that accept commands from
// display clients.
type Commander interface {
	ExecuteCommand(ctx context.Context, commandID string, args map[string]any) CommandOutcome
}

// Renderer is implemented by hub-side plugins that turn a context payload
// into widgets for display clients.
type Renderer interface {
	Render(data json.RawMessage) ([]protocol.Widget, error)
}

// CommandOutcome is the structured result of a plugin command.
type CommandOutcome struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

// Loaded pairs one instantiated plugin with its manifest. Instances live for
// the process lifetime; plugins are never hot-reloaded.
type Loaded struct {
	Manifest *Manifest
	Dir      string
	Sensor   Sensor
	Renderer Renderer
}
