// Package agent implements the collector process that runs on monitored
// devices: it hosts sensor plugins, connects to the hub over websocket,
// registers under a stable device ID, heartbeats, forwards aggregated
// context, and executes commands relayed from display clients.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sethvargo/go-retry"

	"github.com/Floopatron/donk-project/internal/plugin"
	"github.com/Floopatron/donk-project/internal/protocol"
)

// Options configures a Collector.
type Options struct {
	HubURL            string        // e.g. ws://hub:5000/ws
	DeviceID          string        // derived from hostname+platform when empty
	HeartbeatInterval time.Duration // defaults to 30s
	TickInterval      time.Duration // aggregator scheduling granularity
}

// Collector maintains the hub connection and owns the aggregator.
type Collector struct {
	opts     Options
	registry *plugin.Registry
	agg      *Aggregator
	logger   *slog.Logger

	hostname string
	platform string

	connMu sync.Mutex
	conn   *websocket.Conn
}

// NewCollector creates a collector around an already-loaded sensor registry.
func NewCollector(opts Options, registry *plugin.Registry, logger *slog.Logger) (*Collector, error) {
	if opts.HubURL == "" {
		return nil, fmt.Errorf("hub URL is required")
	}
	if _, err := url.Parse(opts.HubURL); err != nil {
		return nil, fmt.Errorf("invalid hub URL: %w", err)
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = 30 * time.Second
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	c := &Collector{
		opts:     opts,
		registry: registry,
		logger:   logger.With("component", "collector"),
		hostname: hostname,
		platform: runtime.GOOS,
	}
	if c.opts.DeviceID == "" {
		c.opts.DeviceID = deriveDeviceID(hostname)
	}
	c.agg = NewAggregator(registry, c.sendContext, opts.TickInterval, logger)
	return c, nil
}

// deriveDeviceID builds a stable device identifier from the hostname and
// platform, stripping characters that are not identifier-safe.
func deriveDeviceID(hostname string) string {
	clean := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return -1
		}
	}, hostname)
	if clean == "" {
		clean = "device"
	}
	return fmt.Sprintf("%s-%s", clean, runtime.GOOS)
}

// DeviceID returns the identifier this collector registers under.
func (c *Collector) DeviceID() string {
	return c.opts.DeviceID
}

// Aggregator exposes the context aggregator, mainly for tests.
func (c *Collector) Aggregator() *Aggregator {
	return c.agg
}

// Run connects to the hub and services the connection until ctx is
// cancelled, reconnecting with exponential backoff after any drop. The
// aggregator runs for the whole lifetime; context collected while
// disconnected is simply not forwarded.
func (c *Collector) Run(ctx context.Context) error {
	c.logger.Info("Collector starting",
		"device_id", c.opts.DeviceID,
		"hostname", c.hostname,
		"platform", c.platform,
		"hub_url", c.opts.HubURL,
	)

	go c.agg.Run(ctx)

	for {
		conn, err := c.dial(ctx)
		if err != nil {
			// Only context cancellation stops the retry loop.
			c.agg.WaitStopped(5 * time.Second)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}

		c.session(ctx, conn)

		select {
		case <-ctx.Done():
			c.agg.WaitStopped(5 * time.Second)
			c.logger.Info("Collector stopped")
			return ctx.Err()
		default:
			c.logger.Warn("Disconnected from hub, reconnecting")
		}
	}
}

// dial connects to the hub, retrying forever with capped exponential
// backoff.
func (c *Collector) dial(ctx context.Context) (*websocket.Conn, error) {
	backoff := retry.WithCappedDuration(30*time.Second, retry.NewExponential(time.Second))

	var conn *websocket.Conn
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		var err error
		conn, _, err = websocket.DefaultDialer.DialContext(dialCtx, c.opts.HubURL, nil)
		if err != nil {
			c.logger.Warn("Failed to connect to hub", "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("Connected to hub", "url", c.opts.HubURL)
	return conn, nil
}

// session registers, heartbeats, and reads messages until the connection
// fails or ctx is cancelled.
func (c *Collector) session(ctx context.Context, conn *websocket.Conn) {
	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()

	defer func() {
		c.connMu.Lock()
		c.conn = nil
		c.connMu.Unlock()
		conn.Close()
	}()

	if err := c.write(protocol.NewCollectorRegister(c.opts.DeviceID, c.hostname, c.platform)); err != nil {
		c.logger.Error("Failed to send registration", "error", err)
		return
	}

	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go c.heartbeatLoop(sessionCtx)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				c.logger.Warn("Read error", "error", err)
			}
			return
		}
		c.handleMessage(sessionCtx, raw)
	}
}

func (c *Collector) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(c.opts.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.write(protocol.NewCollectorHeartbeat(c.opts.DeviceID)); err != nil {
				c.logger.Warn("Failed to send heartbeat", "error", err)
				return
			}
			c.logger.Debug("Sent heartbeat")
		}
	}
}

// handleMessage processes one hub->agent message.
func (c *Collector) handleMessage(ctx context.Context, raw []byte) {
	var msg protocol.Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.logger.Warn("Dropping unparseable message from hub", "error", err)
		return
	}

	switch msg.Type {
	case protocol.TypeRegistrationAck:
		c.logger.Info("Registration acknowledged", "device_id", msg.DeviceID)
	case protocol.TypeCommand, protocol.TypeSendCommand:
		c.handleCommand(ctx, &msg)
	case protocol.TypeRequestContext:
		if msg.PluginID != "" {
			c.agg.ForceUpdate(ctx, msg.PluginID)
		} else {
			c.agg.ForceUpdateAll(ctx)
		}
	case protocol.TypePing:
		c.write(map[string]any{"type": protocol.TypePong, "timestamp": time.Now().UTC()})
	case protocol.TypeError:
		c.logger.Error("Error from hub", "message", msg.Message)
	case protocol.TypeCollectorList, protocol.TypeCollectorStatus, protocol.TypePluginUpdate, protocol.TypeConnectionEstablished:
		// Display-oriented broadcasts; collectors ignore them.
	default:
		c.logger.Debug("Ignoring message", "type", msg.Type)
	}
}

// handleCommand executes a relayed command and reports the result back to
// the hub, echoing the request_id for correlation.
func (c *Collector) handleCommand(ctx context.Context, msg *protocol.Message) {
	outcome := c.agg.ExecuteCommand(ctx, msg.PluginID, msg.CommandID, msg.Args)

	result := protocol.NewCommandResult(
		c.opts.DeviceID,
		msg.PluginID,
		msg.CommandID,
		outcome.Success,
		outcome.Message,
		msg.RequestID,
	)
	result.Data = outcome.Data
	if err := c.write(result); err != nil {
		c.logger.Warn("Failed to send command result", "error", err)
	}
}

// sendContext is the aggregator's send callback. Payloads collected while
// disconnected are dropped; the hub keeps last known state regardless.
func (c *Collector) sendContext(pluginID string, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		c.logger.Error("Failed to marshal context payload", "plugin", pluginID, "error", err)
		return
	}
	if err := c.write(protocol.NewContextUpdate(c.opts.DeviceID, pluginID, raw)); err != nil {
		c.logger.Debug("Context update not sent", "plugin", pluginID, "error", err)
	}
}

// write serializes one message to the hub. gorilla/websocket allows a single
// concurrent writer, so all writes go through connMu.
func (c *Collector) write(v any) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("not connected")
	}
	return c.conn.WriteJSON(v)
}
