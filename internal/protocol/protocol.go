// Package protocol defines the websocket message types exchanged between the
// hub, collector agents, and display clients. All messages are JSON objects
// carrying at least "type" and "timestamp" fields.
package protocol

import (
	"encoding/json"
	"time"
)

// Message types. Direction is noted for each group.
const (
	// Collector -> hub
	TypeCollectorRegister  = "collector_register"
	TypeCollectorHeartbeat = "collector_heartbeat"
	TypeContextUpdate      = "context_update"
	TypeCommandResult      = "command_result"

	// Hub -> collector
	TypeCommand         = "command"
	TypeRegistrationAck = "registration_ack"

	// Hub -> display clients
	TypeCollectorList         = "collector_list"
	TypeCollectorStatus       = "collector_status"
	TypePluginUpdate          = "plugin_update"
	TypeConnectionEstablished = "connection_established"

	// Display client -> hub
	TypeRequestContext = "request_context"
	TypeSendCommand    = "send_command"

	// Bidirectional
	TypePing  = "ping"
	TypePong  = "pong"
	TypeError = "error"
)

// Message is the inbound envelope. Every wire message decodes into it; which
// fields are meaningful depends on Type. Outbound messages use the typed
// constructors below so required fields are never omitted.
type Message struct {
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	DeviceID  string          `json:"device_id,omitempty"`
	Hostname  string          `json:"hostname,omitempty"`
	Platform  string          `json:"platform,omitempty"`
	PluginID  string          `json:"plugin_id,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	CommandID string          `json:"command_id,omitempty"`
	Args      map[string]any  `json:"args,omitempty"`
	Success   bool            `json:"success,omitempty"`
	Message   string          `json:"message,omitempty"`
	RequestID string          `json:"request_id,omitempty"`
}

// Valid reports whether the message carries the structural fields every
// protocol message must have.
func (m *Message) Valid() bool {
	return m.Type != "" && !m.Timestamp.IsZero()
}

// CollectorInfo summarizes one registered collector for list broadcasts and
// the query API.
type CollectorInfo struct {
	DeviceID      string    `json:"device_id"`
	Hostname      string    `json:"hostname"`
	Platform      string    `json:"platform"`
	ConnectedAt   time.Time `json:"connected_at"`
	LastHeartbeat time.Time `json:"last_heartbeat,omitempty"`
}

// Widget is an opaque rendering instruction produced by renderer plugins.
// Its schema is a contract with the display layer, not with the hub.
type Widget struct {
	Type  string `json:"type"`
	Text  string `json:"text,omitempty"`
	Icon  string `json:"icon,omitempty"`
	Color string `json:"color,omitempty"`
	Size  string `json:"size,omitempty"`
}

// RegistrationAck acknowledges a successful collector registration.
type RegistrationAck struct {
	Type      string    `json:"type"`
	Status    string    `json:"status"`
	DeviceID  string    `json:"device_id"`
	Timestamp time.Time `json:"timestamp"`
}

// CollectorList carries the full session snapshot.
type CollectorList struct {
	Type       string          `json:"type"`
	Collectors []CollectorInfo `json:"collectors"`
	Count      int             `json:"count"`
	Timestamp  time.Time       `json:"timestamp"`
}

// CollectorStatus is the lightweight heartbeat delta pushed to display
// clients instead of a full snapshot.
type CollectorStatus struct {
	Type          string    `json:"type"`
	DeviceID      string    `json:"device_id"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
	Timestamp     time.Time `json:"timestamp"`
}

// PluginUpdate carries rendered widgets plus the raw context for one
// (device, plugin) pair. A retraction has an empty widget list and a null
// context; both fields are always present on the wire.
type PluginUpdate struct {
	Type      string          `json:"type"`
	DeviceID  string          `json:"device_id"`
	PluginID  string          `json:"plugin_id"`
	Widgets   []Widget        `json:"widgets"`
	Context   json.RawMessage `json:"context"`
	Timestamp time.Time       `json:"timestamp"`
}

// Command instructs one collector plugin to execute a command.
type Command struct {
	Type      string         `json:"type"`
	DeviceID  string         `json:"device_id"`
	PluginID  string         `json:"plugin_id"`
	CommandID string         `json:"command_id"`
	Args      map[string]any `json:"args"`
	RequestID string         `json:"request_id,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// CommandResult reports the outcome of an executed command.
type CommandResult struct {
	Type      string         `json:"type"`
	DeviceID  string         `json:"device_id"`
	PluginID  string         `json:"plugin_id"`
	CommandID string         `json:"command_id"`
	Success   bool           `json:"success"`
	Message   string         `json:"message"`
	RequestID string         `json:"request_id,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Error is sent to a single peer, never broadcast.
type Error struct {
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func NewRegistrationAck(deviceID string) RegistrationAck {
	return RegistrationAck{
		Type:      TypeRegistrationAck,
		Status:    "registered",
		DeviceID:  deviceID,
		Timestamp: time.Now().UTC(),
	}
}

func NewCollectorList(collectors []CollectorInfo) CollectorList {
	return CollectorList{
		Type:       TypeCollectorList,
		Collectors: collectors,
		Count:      len(collectors),
		Timestamp:  time.Now().UTC(),
	}
}

func NewCollectorStatus(deviceID string, lastHeartbeat time.Time) CollectorStatus {
	return CollectorStatus{
		Type:          TypeCollectorStatus,
		DeviceID:      deviceID,
		LastHeartbeat: lastHeartbeat,
		Timestamp:     time.Now().UTC(),
	}
}

func NewPluginUpdate(deviceID, pluginID string, widgets []Widget, context json.RawMessage, ts time.Time) PluginUpdate {
	if widgets == nil {
		widgets = []Widget{}
	}
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return PluginUpdate{
		Type:      TypePluginUpdate,
		DeviceID:  deviceID,
		PluginID:  pluginID,
		Widgets:   widgets,
		Context:   context,
		Timestamp: ts,
	}
}

// NewRetraction builds the plugin_update broadcast announcing that a plugin
// has nothing to report for a device: empty widgets, null context.
func NewRetraction(deviceID, pluginID string) PluginUpdate {
	return NewPluginUpdate(deviceID, pluginID, []Widget{}, nil, time.Now().UTC())
}

func NewCommand(deviceID, pluginID, commandID string, args map[string]any, requestID string) Command {
	if args == nil {
		args = map[string]any{}
	}
	return Command{
		Type:      TypeCommand,
		DeviceID:  deviceID,
		PluginID:  pluginID,
		CommandID: commandID,
		Args:      args,
		RequestID: requestID,
		Timestamp: time.Now().UTC(),
	}
}

func NewCommandResult(deviceID, pluginID, commandID string, success bool, message, requestID string) CommandResult {
	return CommandResult{
		Type:      TypeCommandResult,
		DeviceID:  deviceID,
		PluginID:  pluginID,
		CommandID: commandID,
		Success:   success,
		Message:   message,
		RequestID: requestID,
		Timestamp: time.Now().UTC(),
	}
}

func NewError(message, details string) Error {
	return Error{
		Type:      TypeError,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().UTC(),
	}
}

// NewContextUpdate builds the agent->hub message carrying one plugin's payload.
func NewContextUpdate(deviceID, pluginID string, data json.RawMessage) Message {
	return Message{
		Type:      TypeContextUpdate,
		Timestamp: time.Now().UTC(),
		DeviceID:  deviceID,
		PluginID:  pluginID,
		Data:      data,
	}
}

func NewCollectorRegister(deviceID, hostname, platform string) Message {
	return Message{
		Type:      TypeCollectorRegister,
		Timestamp: time.Now().UTC(),
		DeviceID:  deviceID,
		Hostname:  hostname,
		Platform:  platform,
	}
}

func NewCollectorHeartbeat(deviceID string) Message {
	return Message{
		Type:      TypeCollectorHeartbeat,
		Timestamp: time.Now().UTC(),
		DeviceID:  deviceID,
	}
}

// PayloadActive reports whether a context payload represents activity.
// A payload retracts (returns false) when it is absent, JSON null, or an
// object whose "active" field is present and false. Anything else upserts.
func PayloadActive(data json.RawMessage) bool {
	if len(data) == 0 || string(data) == "null" {
		return false
	}
	var probe struct {
		Active *bool `json:"active"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		// Not an object; treat as opaque active data.
		return true
	}
	if probe.Active != nil && !*probe.Active {
		return false
	}
	return true
}
