package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Floopatron/donk-project/internal/plugin"
)

// PluginSource supplies the loaded sensor plugins the aggregator polls.
// *plugin.Registry satisfies it.
type PluginSource interface {
	Get(id string) (*plugin.Loaded, bool)
	List() []*plugin.Loaded
}

// SendFunc forwards one plugin's context payload to the hub.
type SendFunc func(pluginID string, data any)

// Aggregator polls every loaded sensor plugin on its own cadence and forwards
// non-nil results through the send callback. One misbehaving plugin delays or
// fails only itself; the tick always services the remaining plugins.
type Aggregator struct {
	source PluginSource
	send   SendFunc
	logger *slog.Logger

	tickInterval time.Duration

	mu       sync.Mutex
	lastPoll map[string]time.Time

	done chan struct{}
}

// NewAggregator creates an aggregator. tickInterval is the scheduling
// granularity; each plugin's own update_interval decides how often it is
// actually polled.
func NewAggregator(source PluginSource, send SendFunc, tickInterval time.Duration, logger *slog.Logger) *Aggregator {
	if tickInterval <= 0 {
		tickInterval = time.Second
	}
	return &Aggregator{
		source:       source,
		send:         send,
		logger:       logger.With("component", "aggregator"),
		tickInterval: tickInterval,
		lastPoll:     make(map[string]time.Time),
		done:         make(chan struct{}),
	}
}

// Run drives the polling loop until ctx is cancelled.
func (a *Aggregator) Run(ctx context.Context) {
	defer close(a.done)

	a.logger.Info("Aggregator started", "tick_interval", a.tickInterval)
	ticker := time.NewTicker(a.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("Aggregator stopped")
			return
		case <-ticker.C:
			a.tick(ctx)
		}
	}
}

// WaitStopped blocks until Run has returned, or the timeout elapses.
func (a *Aggregator) WaitStopped(timeout time.Duration) bool {
	select {
	case <-a.done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// tick polls every plugin whose interval has elapsed. last_poll advances
// whether or not the poll succeeded, so a failing plugin is retried on its
// normal cadence rather than every tick.
func (a *Aggregator) tick(ctx context.Context) {
	now := time.Now()
	for _, loaded := range a.source.List() {
		if loaded.Sensor == nil {
			continue
		}
		id := loaded.Manifest.PluginID
		interval := time.Duration(loaded.Manifest.Interval()) * time.Second

		a.mu.Lock()
		last := a.lastPoll[id]
		due := now.Sub(last) >= interval
		if due {
			a.lastPoll[id] = now
		}
		a.mu.Unlock()

		if due {
			a.collectAndSend(ctx, loaded)
		}
	}
}

// collectAndSend invokes one plugin's collection capability and forwards a
// non-nil result. Errors and panics are contained per plugin; the plugin's
// own cached state is left untouched so the next poll retries from where it
// was.
func (a *Aggregator) collectAndSend(ctx context.Context, loaded *plugin.Loaded) {
	id := loaded.Manifest.PluginID

	defer func() {
		if rec := recover(); rec != nil {
			a.logger.Error("Sensor panicked", "plugin", id, "panic", rec)
		}
	}()

	data, err := loaded.Sensor.Collect(ctx)
	if err != nil {
		a.logger.Error("Error collecting context", "plugin", id, "error", err)
		return
	}
	if data == nil {
		a.logger.Debug("Plugin returned no context", "plugin", id)
		return
	}

	a.logger.Debug("Collected context", "plugin", id)
	a.send(id, data)
}

// ForceUpdate collects from one plugin immediately, bypassing its interval,
// and resets its poll clock. Used after a command completes so observers see
// the effect without waiting for the next scheduled poll.
func (a *Aggregator) ForceUpdate(ctx context.Context, pluginID string) error {
	loaded, ok := a.source.Get(pluginID)
	if !ok || loaded.Sensor == nil {
		a.logger.Warn("Plugin not found for immediate update", "plugin", pluginID)
		return fmt.Errorf("plugin not found: %s", pluginID)
	}
	a.collectAndSend(ctx, loaded)
	a.mu.Lock()
	a.lastPoll[pluginID] = time.Now()
	a.mu.Unlock()
	a.logger.Info("Immediate update", "plugin", pluginID)
	return nil
}

// ForceUpdateAll collects from every loaded plugin immediately.
func (a *Aggregator) ForceUpdateAll(ctx context.Context) {
	plugins := a.source.List()
	for _, loaded := range plugins {
		if loaded.Sensor == nil {
			continue
		}
		a.collectAndSend(ctx, loaded)
		a.mu.Lock()
		a.lastPoll[loaded.Manifest.PluginID] = time.Now()
		a.mu.Unlock()
	}
	a.logger.Info("Immediate update for all plugins", "count", len(plugins))
}

// ExecuteCommand runs a command on one plugin, returning a structured
// outcome in every case. A successful command triggers an immediate update
// for that plugin.
func (a *Aggregator) ExecuteCommand(ctx context.Context, pluginID, commandID string, args map[string]any) (outcome plugin.CommandOutcome) {
	loaded, ok := a.source.Get(pluginID)
	if !ok {
		return plugin.CommandOutcome{
			Success: false,
			Message: fmt.Sprintf("Plugin not found: %s", pluginID),
		}
	}

	commander, ok := loaded.Sensor.(plugin.Commander)
	if !ok {
		return plugin.CommandOutcome{
			Success: false,
			Message: fmt.Sprintf("Plugin %s does not support commands", pluginID),
		}
	}

	defer func() {
		if rec := recover(); rec != nil {
			a.logger.Error("Command panicked", "plugin", pluginID, "command", commandID, "panic", rec)
			outcome = plugin.CommandOutcome{
				Success: false,
				Message: fmt.Sprintf("Error executing command: %v", rec),
			}
		}
	}()

	if args == nil {
		args = map[string]any{}
	}
	outcome = commander.ExecuteCommand(ctx, commandID, args)
	a.logger.Info("Executed command",
		"plugin", pluginID,
		"command", commandID,
		"success", outcome.Success,
	)

	if outcome.Success {
		a.ForceUpdate(ctx, pluginID)
	}
	return outcome
}
