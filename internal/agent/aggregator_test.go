package agent

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/Floopatron/donk-project/internal/plugin"
)

type fakeSource struct {
	plugins []*plugin.Loaded
}

func (f *fakeSource) Get(id string) (*plugin.Loaded, bool) {
	for _, p := range f.plugins {
		if p.Manifest.PluginID == id {
			return p, true
		}
	}
	return nil, false
}

func (f *fakeSource) List() []*plugin.Loaded { return f.plugins }

type fakeSensor struct {
	mu       sync.Mutex
	collects int
	data     any
	err      error
	panics   bool

	commandErr   bool
	commandPanic bool
	commands     []string
}

func (s *fakeSensor) Collect(ctx context.Context) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collects++
	if s.panics {
		panic("sensor exploded")
	}
	return s.data, s.err
}

func (s *fakeSensor) ExecuteCommand(ctx context.Context, commandID string, args map[string]any) plugin.CommandOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands = append(s.commands, commandID)
	if s.commandPanic {
		panic("command exploded")
	}
	if s.commandErr {
		return plugin.CommandOutcome{Success: false, Message: "nope"}
	}
	return plugin.CommandOutcome{Success: true, Message: "done", Data: map[string]any{"state": "paused"}}
}

func (s *fakeSensor) collectCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collects
}

// sensorOnly collects but does not accept commands.
type sensorOnly struct{}

func (sensorOnly) Collect(ctx context.Context) (any, error) { return nil, nil }

type sentMsg struct {
	pluginID string
	data     any
}

type recorder struct {
	mu   sync.Mutex
	sent []sentMsg
}

func (r *recorder) send(pluginID string, data any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sentMsg{pluginID, data})
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func loadedSensor(id string, interval int, s plugin.Sensor) *plugin.Loaded {
	return &plugin.Loaded{
		Manifest: &plugin.Manifest{
			PluginID:       id,
			Version:        "1.0.0",
			Name:           id,
			UpdateInterval: interval,
		},
		Sensor: s,
	}
}

func TestTickHonorsPluginInterval(t *testing.T) {
	sensor := &fakeSensor{data: map[string]any{"active": true}}
	src := &fakeSource{plugins: []*plugin.Loaded{loadedSensor("yt", 5, sensor)}}
	rec := &recorder{}
	a := NewAggregator(src, rec.send, time.Second, testLogger())

	ctx := context.Background()
	a.tick(ctx)
	if sensor.collectCount() != 1 {
		t.Fatalf("first tick should poll, got %d collects", sensor.collectCount())
	}

	// Within the interval: no poll.
	a.tick(ctx)
	if sensor.collectCount() != 1 {
		t.Fatalf("tick inside the interval must not poll, got %d collects", sensor.collectCount())
	}

	// Pretend the interval elapsed.
	a.mu.Lock()
	a.lastPoll["yt"] = time.Now().Add(-6 * time.Second)
	a.mu.Unlock()
	a.tick(ctx)
	if sensor.collectCount() != 2 {
		t.Fatalf("tick after the interval should poll, got %d collects", sensor.collectCount())
	}
	if rec.count() != 2 {
		t.Errorf("each successful poll should send, got %d sends", rec.count())
	}
}

func TestTickAdvancesClockAfterFailedPoll(t *testing.T) {
	sensor := &fakeSensor{err: errors.New("window list unavailable")}
	src := &fakeSource{plugins: []*plugin.Loaded{loadedSensor("yt", 5, sensor)}}
	rec := &recorder{}
	a := NewAggregator(src, rec.send, time.Second, testLogger())

	ctx := context.Background()
	a.tick(ctx)
	a.tick(ctx)
	if sensor.collectCount() != 1 {
		t.Errorf("a failing plugin retries on its cadence, not every tick; got %d collects", sensor.collectCount())
	}
	if rec.count() != 0 {
		t.Errorf("failed polls must not send, got %d", rec.count())
	}
}

func TestTickSkipsNilResults(t *testing.T) {
	sensor := &fakeSensor{data: nil}
	src := &fakeSource{plugins: []*plugin.Loaded{loadedSensor("yt", 5, sensor)}}
	rec := &recorder{}
	a := NewAggregator(src, rec.send, time.Second, testLogger())

	a.tick(context.Background())
	if rec.count() != 0 {
		t.Errorf("nil context must not be sent, got %d sends", rec.count())
	}
}

func TestTickContainsPanics(t *testing.T) {
	bad := &fakeSensor{panics: true}
	good := &fakeSensor{data: map[string]any{"active": true}}
	src := &fakeSource{plugins: []*plugin.Loaded{
		loadedSensor("bad", 5, bad),
		loadedSensor("good", 5, good),
	}}
	rec := &recorder{}
	a := NewAggregator(src, rec.send, time.Second, testLogger())

	a.tick(context.Background())
	if good.collectCount() != 1 {
		t.Error("a panicking plugin must not starve its siblings")
	}
	if rec.count() != 1 {
		t.Errorf("expected only the healthy plugin's send, got %d", rec.count())
	}
}

func TestForceUpdateBypassesInterval(t *testing.T) {
	sensor := &fakeSensor{data: map[string]any{"active": true}}
	src := &fakeSource{plugins: []*plugin.Loaded{loadedSensor("yt", 300, sensor)}}
	rec := &recorder{}
	a := NewAggregator(src, rec.send, time.Second, testLogger())

	ctx := context.Background()
	a.tick(ctx)

	if err := a.ForceUpdate(ctx, "yt"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sensor.collectCount() != 2 {
		t.Errorf("force update must poll immediately, got %d collects", sensor.collectCount())
	}

	// The poll clock was reset, so the next tick is not due.
	a.tick(ctx)
	if sensor.collectCount() != 2 {
		t.Error("force update should reset the poll clock")
	}
}

func TestForceUpdateUnknownPlugin(t *testing.T) {
	a := NewAggregator(&fakeSource{}, (&recorder{}).send, time.Second, testLogger())
	if err := a.ForceUpdate(context.Background(), "ghost"); err == nil {
		t.Error("expected an error for an unknown plugin")
	}
}

func TestExecuteCommandSuccessTriggersUpdate(t *testing.T) {
	sensor := &fakeSensor{data: map[string]any{"active": true}}
	src := &fakeSource{plugins: []*plugin.Loaded{loadedSensor("yt", 300, sensor)}}
	rec := &recorder{}
	a := NewAggregator(src, rec.send, time.Second, testLogger())

	outcome := a.ExecuteCommand(context.Background(), "yt", "pause", nil)
	if !outcome.Success || outcome.Message != "done" {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
	if outcome.Data["state"] != "paused" {
		t.Errorf("outcome data should pass through, got %v", outcome.Data)
	}
	if sensor.collectCount() != 1 {
		t.Error("a successful command triggers an immediate poll")
	}
	if rec.count() != 1 {
		t.Errorf("the immediate poll should send, got %d", rec.count())
	}
}

func TestExecuteCommandFailureSkipsUpdate(t *testing.T) {
	sensor := &fakeSensor{commandErr: true}
	src := &fakeSource{plugins: []*plugin.Loaded{loadedSensor("yt", 300, sensor)}}
	a := NewAggregator(src, (&recorder{}).send, time.Second, testLogger())

	outcome := a.ExecuteCommand(context.Background(), "yt", "pause", nil)
	if outcome.Success {
		t.Fatal("expected failure outcome")
	}
	if sensor.collectCount() != 0 {
		t.Error("a failed command must not trigger a poll")
	}
}

func TestExecuteCommandUnknownPlugin(t *testing.T) {
	a := NewAggregator(&fakeSource{}, (&recorder{}).send, time.Second, testLogger())
	outcome := a.ExecuteCommand(context.Background(), "ghost", "pause", nil)
	if outcome.Success || outcome.Message != "Plugin not found: ghost" {
		t.Errorf("unexpected outcome: %+v", outcome)
	}
}

func TestExecuteCommandUnsupportedPlugin(t *testing.T) {
	src := &fakeSource{plugins: []*plugin.Loaded{loadedSensor("yt", 5, sensorOnly{})}}
	a := NewAggregator(src, (&recorder{}).send, time.Second, testLogger())

	outcome := a.ExecuteCommand(context.Background(), "yt", "pause", nil)
	if outcome.Success || outcome.Message != "Plugin yt does not support commands" {
		t.Errorf("unexpected outcome: %+v", outcome)
	}
}

func TestExecuteCommandPanicBecomesFailure(t *testing.T) {
	sensor := &fakeSensor{commandPanic: true}
	src := &fakeSource{plugins: []*plugin.Loaded{loadedSensor("yt", 5, sensor)}}
	a := NewAggregator(src, (&recorder{}).send, time.Second, testLogger())

	outcome := a.ExecuteCommand(context.Background(), "yt", "pause", nil)
	if outcome.Success {
		t.Fatal("a panicking command must yield a failure outcome")
	}
	if outcome.Message == "" {
		t.Error("failure outcome should describe the panic")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	a := NewAggregator(&fakeSource{}, (&recorder{}).send, 10*time.Millisecond, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	go a.Run(ctx)
	cancel()
	if !a.WaitStopped(2 * time.Second) {
		t.Fatal("aggregator did not stop after cancellation")
	}
}
