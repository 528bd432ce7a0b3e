package hub

import (
	"encoding/json"
	"time"

	"github.com/Floopatron/donk-project/internal/protocol"
)

// handleMessage is the per-connection protocol state machine. A connection
// starts with no identity; collector_register binds it to a device, and
// display-client requests need no binding at all. Every failure path replies
// to or drops only the offending message; nothing here is fatal.
func (h *Hub) handleMessage(c *Client, raw []byte) {
	var msg protocol.Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		h.logger.Warn("Dropping unparseable message", "handle", c.handle, "error", err)
		h.sendJSON(c, protocol.NewError("Invalid message", err.Error()))
		return
	}

	switch msg.Type {
	case protocol.TypeCollectorRegister:
		h.handleRegister(c, &msg)
	case protocol.TypeCollectorHeartbeat:
		h.handleHeartbeat(c, &msg)
	case protocol.TypeContextUpdate:
		h.handleContextUpdate(c, &msg)
	case protocol.TypeCommandResult:
		h.handleCommandResult(c, &msg, raw)
	case protocol.TypeRequestContext:
		h.handleRequestContext(c, &msg, raw)
	case protocol.TypeSendCommand:
		h.handleSendCommand(c, &msg, raw)
	case protocol.TypePing:
		h.sendJSON(c, map[string]any{"type": protocol.TypePong, "timestamp": time.Now().UTC()})
	case protocol.TypePong:
		// Liveness reply, nothing to do.
	default:
		h.logger.Warn("Unknown message type", "handle", c.handle, "type", msg.Type)
		h.sendJSON(c, protocol.NewError("Unknown message type", msg.Type))
	}
}

// handleRegister binds the connection to a device and announces the updated
// collector list. The connection stays unbound on a malformed message.
func (h *Hub) handleRegister(c *Client, msg *protocol.Message) {
	if !msg.Valid() || msg.DeviceID == "" {
		h.logger.Warn("Invalid registration message", "handle", c.handle)
		h.sendJSON(c, protocol.NewError("Invalid registration message", ""))
		return
	}

	h.sessions.Register(c.handle, msg.DeviceID, msg.Hostname, msg.Platform, time.Now().UTC())
	h.logger.Info("Collector registered",
		"device_id", msg.DeviceID,
		"hostname", msg.Hostname,
		"platform", msg.Platform,
	)

	h.sendJSON(c, protocol.NewRegistrationAck(msg.DeviceID))
	h.Broadcast(protocol.NewCollectorList(h.sessions.Snapshot()))
}

// handleHeartbeat updates the session's liveness time and pushes a per-device
// delta to clients. Heartbeats are never acknowledged; one from an unbound
// connection is logged and dropped. The delta carries the device ID the
// session registered under, not whatever the message claims.
func (h *Hub) handleHeartbeat(c *Client, msg *protocol.Message) {
	now := time.Now().UTC()
	deviceID, ok := h.sessions.TouchHeartbeat(c.handle, now)
	if !ok {
		h.logger.Warn("Heartbeat from unregistered collector", "device_id", msg.DeviceID)
		return
	}
	h.logger.Debug("Heartbeat", "device_id", deviceID)
	h.Broadcast(protocol.NewCollectorStatus(deviceID, now))
}

// handleContextUpdate stores an active payload and broadcasts its rendered
// widgets, or retracts the entry when the payload is null or marks itself
// inactive. A retraction is broadcast even when no entry previously existed:
// "nothing to report" is a semantic state the display side must see.
func (h *Hub) handleContextUpdate(c *Client, msg *protocol.Message) {
	if msg.DeviceID == "" || msg.PluginID == "" {
		h.logger.Warn("Context update missing device_id or plugin_id", "handle", c.handle)
		return
	}

	if !protocol.PayloadActive(msg.Data) {
		h.store.Remove(msg.DeviceID, msg.PluginID)
		h.logger.Debug("Context retracted", "device_id", msg.DeviceID, "plugin_id", msg.PluginID)
		h.Broadcast(protocol.NewRetraction(msg.DeviceID, msg.PluginID))
		return
	}

	ts := msg.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	h.store.Upsert(msg.DeviceID, msg.PluginID, msg.Data, ts)

	widgets, ok := h.registry.Render(msg.PluginID, msg.Data)
	if !ok || widgets == nil {
		return
	}
	h.Broadcast(protocol.NewPluginUpdate(msg.DeviceID, msg.PluginID, widgets, msg.Data, ts))
}

// handleCommandResult forwards the result verbatim to every connection and
// clears the matching pending request. The hub does not interpret success or
// failure.
func (h *Hub) handleCommandResult(c *Client, msg *protocol.Message, raw []byte) {
	if origin, ok := h.dispatcher.Resolve(msg.RequestID); ok {
		h.logger.Debug("Command result correlated",
			"request_id", msg.RequestID, "origin", origin)
	}
	h.broadcast <- raw
}

// handleRequestContext forwards a context refresh request from a display
// client to the addressed collector.
func (h *Hub) handleRequestContext(c *Client, msg *protocol.Message, raw []byte) {
	if msg.DeviceID == "" {
		h.sendJSON(c, protocol.NewError("request_context requires device_id", ""))
		return
	}
	h.forwardToDevice(c, msg.DeviceID, raw)
}

// handleSendCommand forwards a command from a display client to the
// addressed collector, recording the request_id for correlation.
func (h *Hub) handleSendCommand(c *Client, msg *protocol.Message, raw []byte) {
	if msg.DeviceID == "" || msg.PluginID == "" || msg.CommandID == "" {
		h.sendJSON(c, protocol.NewError("send_command requires device_id, plugin_id and command_id", ""))
		return
	}
	if !h.forwardToDevice(c, msg.DeviceID, raw) {
		return
	}
	h.dispatcher.Track(msg.RequestID, c.handle)
}

// forwardToDevice resolves a device to its live connection and passes the
// message through unmodified. An unresolved device yields exactly one error
// reply to the requester and nothing anywhere else.
func (h *Hub) forwardToDevice(c *Client, deviceID string, raw []byte) bool {
	handle, ok := h.sessions.FindByDeviceID(deviceID)
	if !ok {
		h.logger.Warn("Request for disconnected collector", "device_id", deviceID)
		h.sendJSON(c, protocol.NewError("Collector not connected", deviceID))
		return false
	}
	if !h.sendToHandle(handle, raw) {
		h.sendJSON(c, protocol.NewError("Collector not connected", deviceID))
		return false
	}
	return true
}
