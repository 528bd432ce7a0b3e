package hub

import (
	"log/slog"
	"sync"
)

// CommandDispatcher correlates outbound command request IDs with their
// inbound results. Results are broadcast regardless (clients filter by
// request_id themselves); the table exists so pending entries can be cleaned
// up when the result arrives or the originating client disconnects. There is
// no timeout: a request whose result never arrives stays pending until its
// originator disconnects.
type CommandDispatcher struct {
	mu      sync.Mutex
	pending map[string]string // request_id -> originating client handle
	logger  *slog.Logger
}

func NewCommandDispatcher(logger *slog.Logger) *CommandDispatcher {
	return &CommandDispatcher{
		pending: make(map[string]string),
		logger:  logger.With("component", "command_dispatcher"),
	}
}

// Track records a pending request. Commands sent without a request_id are
// fire-and-forget and are not tracked.
func (d *CommandDispatcher) Track(requestID, originHandle string) {
	if requestID == "" {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending[requestID] = originHandle
	d.logger.Debug("Tracking command request", "request_id", requestID)
}

// Resolve clears a pending request, returning the originating handle.
func (d *CommandDispatcher) Resolve(requestID string) (string, bool) {
	if requestID == "" {
		return "", false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	origin, ok := d.pending[requestID]
	if ok {
		delete(d.pending, requestID)
	}
	return origin, ok
}

// DropClient prunes every pending request originated by a handle.
func (d *CommandDispatcher) DropClient(originHandle string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for requestID, origin := range d.pending {
		if origin == originHandle {
			delete(d.pending, requestID)
		}
	}
}

// PendingCount reports the number of outstanding requests.
func (d *CommandDispatcher) PendingCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}
