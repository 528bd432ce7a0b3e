package store

import (
	"encoding/json"
	"sort"
	"testing"
	"time"
)

func TestUpsertThenGet(t *testing.T) {
	s := NewContextStore()
	payload := json.RawMessage(`{"active":true,"video_title":"X"}`)
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	s.Upsert("laptop-1", "youtube", payload, ts)

	entry, ok := s.Get("laptop-1", "youtube")
	if !ok {
		t.Fatal("expected entry after upsert")
	}
	if string(entry.Data) != string(payload) {
		t.Errorf("payload mismatch: got %s", entry.Data)
	}
	if !entry.Timestamp.Equal(ts) {
		t.Errorf("timestamp mismatch: got %v", entry.Timestamp)
	}
}

func TestUpsertDefaultsTimestamp(t *testing.T) {
	s := NewContextStore()
	before := time.Now().UTC()
	s.Upsert("dev", "p", json.RawMessage(`{}`), time.Time{})

	entry, _ := s.Get("dev", "p")
	if entry.Timestamp.Before(before) {
		t.Errorf("zero timestamp should default to now, got %v", entry.Timestamp)
	}
}

func TestUpsertOverwrites(t *testing.T) {
	s := NewContextStore()
	s.Upsert("dev", "p", json.RawMessage(`{"v":1}`), time.Time{})
	s.Upsert("dev", "p", json.RawMessage(`{"v":2}`), time.Time{})

	entry, _ := s.Get("dev", "p")
	if string(entry.Data) != `{"v":2}` {
		t.Errorf("expected latest payload, got %s", entry.Data)
	}
}

func TestRemoveThenGetMissing(t *testing.T) {
	s := NewContextStore()
	s.Upsert("dev", "p", json.RawMessage(`{}`), time.Time{})

	if !s.Remove("dev", "p") {
		t.Error("Remove should report the entry existed")
	}
	if _, ok := s.Get("dev", "p"); ok {
		t.Error("entry should be missing after remove, not stale")
	}
	if s.Remove("dev", "p") {
		t.Error("second remove should report missing")
	}
	if s.Remove("never", "seen") {
		t.Error("remove of unknown device should report missing")
	}
}

func TestRemoveDevice(t *testing.T) {
	s := NewContextStore()
	s.Upsert("dev", "a", json.RawMessage(`{}`), time.Time{})
	s.Upsert("dev", "b", json.RawMessage(`{}`), time.Time{})
	s.Upsert("other", "a", json.RawMessage(`{}`), time.Time{})

	s.RemoveDevice("dev")

	if len(s.GetDevice("dev")) != 0 {
		t.Error("all entries for removed device should be gone")
	}
	if _, ok := s.Get("other", "a"); !ok {
		t.Error("other devices should be untouched")
	}
}

func TestDevicesHaving(t *testing.T) {
	s := NewContextStore()
	s.Upsert("d1", "youtube", json.RawMessage(`{}`), time.Time{})
	s.Upsert("d2", "youtube", json.RawMessage(`{}`), time.Time{})
	s.Upsert("d3", "spotify", json.RawMessage(`{}`), time.Time{})

	devices := s.DevicesHaving("youtube")
	sort.Strings(devices)
	if len(devices) != 2 || devices[0] != "d1" || devices[1] != "d2" {
		t.Errorf("unexpected devices: %v", devices)
	}
	if got := s.DevicesHaving("missing"); len(got) != 0 {
		t.Errorf("expected no devices, got %v", got)
	}
}

func TestAllReturnsCopy(t *testing.T) {
	s := NewContextStore()
	s.Upsert("dev", "p", json.RawMessage(`{}`), time.Time{})

	all := s.All()
	delete(all["dev"], "p")

	if _, ok := s.Get("dev", "p"); !ok {
		t.Error("mutating the All() result must not affect the store")
	}
}

func TestStats(t *testing.T) {
	s := NewContextStore()
	s.Upsert("d1", "youtube", json.RawMessage(`{}`), time.Time{})
	s.Upsert("d1", "spotify", json.RawMessage(`{}`), time.Time{})
	s.Upsert("d2", "youtube", json.RawMessage(`{}`), time.Time{})

	stats := s.Stats()
	if stats.Devices != 2 {
		t.Errorf("expected 2 devices, got %d", stats.Devices)
	}
	if stats.PluginContexts != 3 {
		t.Errorf("expected 3 contexts, got %d", stats.PluginContexts)
	}
	if stats.PluginCounts["youtube"] != 2 {
		t.Errorf("expected youtube count 2, got %d", stats.PluginCounts["youtube"])
	}
}
