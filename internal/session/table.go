// Package session tracks live collector connections on the hub. A session
// exists only between a successful registration handshake and the close of
// the underlying connection.
package session

import (
	"sort"
	"sync"
	"time"

	"github.com/Floopatron/donk-project/internal/protocol"
)

// Session is the hub's record of one registered collector.
type Session struct {
	Handle        string
	DeviceID      string
	Hostname      string
	Platform      string
	ConnectedAt   time.Time
	LastHeartbeat time.Time
}

// Info converts the session to its broadcast form.
func (s *Session) Info() protocol.CollectorInfo {
	return protocol.CollectorInfo{
		DeviceID:      s.DeviceID,
		Hostname:      s.Hostname,
		Platform:      s.Platform,
		ConnectedAt:   s.ConnectedAt,
		LastHeartbeat: s.LastHeartbeat,
	}
}

// Table maps connection handles to sessions and keeps a reverse index from
// device ID to handle. Both indices mutate under one lock so they can never
// disagree.
type Table struct {
	mu       sync.RWMutex
	byHandle map[string]*Session
	byDevice map[string]string // device_id -> handle
}

func NewTable() *Table {
	return &Table{
		byHandle: make(map[string]*Session),
		byDevice: make(map[string]string),
	}
}

// Register creates or replaces the session for a handle. Re-registration on
// the same handle is idempotent; the previous device binding is released.
func (t *Table) Register(handle, deviceID, hostname, platform string, now time.Time) *Session {
	t.mu.Lock()
	defer t.mu.Unlock()

	if prev, ok := t.byHandle[handle]; ok {
		delete(t.byDevice, prev.DeviceID)
	}

	s := &Session{
		Handle:      handle,
		DeviceID:    deviceID,
		Hostname:    hostname,
		Platform:    platform,
		ConnectedAt: now,
	}
	t.byHandle[handle] = s
	t.byDevice[deviceID] = handle
	return s
}

// TouchHeartbeat updates a session's heartbeat time, returning the device ID
// the session is bound to. ok is false when the handle has no registered
// session.
func (t *Table) TouchHeartbeat(handle string, now time.Time) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.byHandle[handle]
	if !ok {
		return "", false
	}
	s.LastHeartbeat = now
	return s.DeviceID, true
}

// Remove deletes the session for a handle from both indices, returning the
// removed session or nil.
func (t *Table) Remove(handle string) *Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.byHandle[handle]
	if !ok {
		return nil
	}
	delete(t.byHandle, handle)
	if t.byDevice[s.DeviceID] == handle {
		delete(t.byDevice, s.DeviceID)
	}
	return s
}

// Get returns the session bound to a handle.
func (t *Table) Get(handle string) (*Session, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.byHandle[handle]
	return s, ok
}

// FindByDeviceID resolves a device ID to its connection handle.
func (t *Table) FindByDeviceID(deviceID string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	handle, ok := t.byDevice[deviceID]
	return handle, ok
}

// Snapshot returns summaries of all sessions, ordered by device ID for
// stable broadcasts.
func (t *Table) Snapshot() []protocol.CollectorInfo {
	t.mu.RLock()
	defer t.mu.RUnlock()
	result := make([]protocol.CollectorInfo, 0, len(t.byHandle))
	for _, s := range t.byHandle {
		result = append(result, s.Info())
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].DeviceID < result[j].DeviceID
	})
	return result
}

// Count returns the number of registered sessions.
func (t *Table) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byHandle)
}
