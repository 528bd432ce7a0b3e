// Package store holds the hub's in-memory context table: the latest payload
// reported by each plugin on each device. It is pure state with no background
// behavior; the router is its only writer, the query API its other reader.
package store

import (
	"encoding/json"
	"sync"
	"time"
)

// Entry is one stored context payload.
type Entry struct {
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// Stats summarizes store contents for the health endpoint.
type Stats struct {
	Devices        int            `json:"total_devices"`
	PluginContexts int            `json:"total_plugin_contexts"`
	PluginCounts   map[string]int `json:"plugin_counts"`
}

// ContextStore maps device_id -> plugin_id -> Entry. All methods are safe for
// concurrent use; a single coarse lock is sufficient at the expected write
// rate.
type ContextStore struct {
	mu      sync.RWMutex
	devices map[string]map[string]Entry
}

func NewContextStore() *ContextStore {
	return &ContextStore{devices: make(map[string]map[string]Entry)}
}

// Upsert sets the entry for (deviceID, pluginID), creating the device
// sub-map if absent. A zero timestamp defaults to now.
func (s *ContextStore) Upsert(deviceID, pluginID string, data json.RawMessage, ts time.Time) {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	plugins, ok := s.devices[deviceID]
	if !ok {
		plugins = make(map[string]Entry)
		s.devices[deviceID] = plugins
	}
	plugins[pluginID] = Entry{Data: data, Timestamp: ts}
}

// Get returns the entry for (deviceID, pluginID).
func (s *ContextStore) Get(deviceID, pluginID string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.devices[deviceID][pluginID]
	return entry, ok
}

// GetDevice returns a copy of every plugin entry stored for a device.
func (s *ContextStore) GetDevice(deviceID string) map[string]Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make(map[string]Entry, len(s.devices[deviceID]))
	for pluginID, entry := range s.devices[deviceID] {
		result[pluginID] = entry
	}
	return result
}

// Remove deletes the entry for (deviceID, pluginID), reporting whether it
// existed. The device sub-map is dropped when it empties.
func (s *ContextStore) Remove(deviceID, pluginID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	plugins, ok := s.devices[deviceID]
	if !ok {
		return false
	}
	if _, ok := plugins[pluginID]; !ok {
		return false
	}
	delete(plugins, pluginID)
	if len(plugins) == 0 {
		delete(s.devices, deviceID)
	}
	return true
}

// RemoveDevice deletes all context stored for a device.
func (s *ContextStore) RemoveDevice(deviceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.devices, deviceID)
}

// All returns a copy of the complete store, used for cold-start replay to
// newly connected display clients.
func (s *ContextStore) All() map[string]map[string]Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make(map[string]map[string]Entry, len(s.devices))
	for deviceID, plugins := range s.devices {
		inner := make(map[string]Entry, len(plugins))
		for pluginID, entry := range plugins {
			inner[pluginID] = entry
		}
		result[deviceID] = inner
	}
	return result
}

// DevicesHaving returns the IDs of devices with a stored entry for pluginID.
func (s *ContextStore) DevicesHaving(pluginID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var devices []string
	for deviceID, plugins := range s.devices {
		if _, ok := plugins[pluginID]; ok {
			devices = append(devices, deviceID)
		}
	}
	return devices
}

// Stats reports store-wide counts.
func (s *ContextStore) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := Stats{
		Devices:      len(s.devices),
		PluginCounts: make(map[string]int),
	}
	for _, plugins := range s.devices {
		stats.PluginContexts += len(plugins)
		for pluginID := range plugins {
			stats.PluginCounts[pluginID]++
		}
	}
	return stats
}
