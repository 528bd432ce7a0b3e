package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

type handlers struct {
	deps *Dependencies
}

// Health reports hub liveness and store statistics.
func (h *handlers) Health(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, http.StatusOK, map[string]any{
		"status":               "ok",
		"server":               "donk-hub",
		"timestamp":            time.Now().UTC(),
		"collectors_connected": h.deps.Sessions.Count(),
		"context":              h.deps.Store.Stats(),
	})
}

// ListCollectors returns the current session snapshot.
func (h *handlers) ListCollectors(w http.ResponseWriter, r *http.Request) {
	collectors := h.deps.Sessions.Snapshot()
	sendJSON(w, http.StatusOK, map[string]any{
		"collectors": collectors,
		"count":      len(collectors),
	})
}

// ListPlugins returns the manifests of all loaded renderer plugins.
func (h *handlers) ListPlugins(w http.ResponseWriter, r *http.Request) {
	manifests := h.deps.Registry.Manifests()
	sendJSON(w, http.StatusOK, map[string]any{
		"plugins": manifests,
		"count":   len(manifests),
	})
}

// GetDeviceContext returns all stored plugin context for one device.
func (h *handlers) GetDeviceContext(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")
	entries := h.deps.Store.GetDevice(deviceID)
	if len(entries) == 0 {
		sendError(w, r, http.StatusNotFound, "NOT_FOUND", "No context for device "+deviceID)
		return
	}
	sendJSON(w, http.StatusOK, map[string]any{
		"device_id": deviceID,
		"plugins":   entries,
	})
}

// GetPluginContext returns the stored context for one (device, plugin) pair.
func (h *handlers) GetPluginContext(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")
	pluginID := chi.URLParam(r, "pluginID")
	entry, ok := h.deps.Store.Get(deviceID, pluginID)
	if !ok {
		sendError(w, r, http.StatusNotFound, "NOT_FOUND", "No context for plugin "+pluginID)
		return
	}
	sendJSON(w, http.StatusOK, map[string]any{
		"device_id": deviceID,
		"plugin_id": pluginID,
		"data":      entry.Data,
		"timestamp": entry.Timestamp,
	})
}
