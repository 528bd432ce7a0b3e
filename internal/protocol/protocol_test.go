package protocol

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestMessageValid(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want bool
	}{
		{"complete", `{"type":"ping","timestamp":"2026-03-01T12:00:00Z"}`, true},
		{"missing type", `{"timestamp":"2026-03-01T12:00:00Z"}`, false},
		{"missing timestamp", `{"type":"ping"}`, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var msg Message
			if err := json.Unmarshal([]byte(tc.raw), &msg); err != nil {
				t.Fatalf("unmarshal failed: %v", err)
			}
			if got := msg.Valid(); got != tc.want {
				t.Errorf("Valid() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestPayloadActive(t *testing.T) {
	cases := []struct {
		name string
		data string
		want bool
	}{
		{"nil payload", "", false},
		{"json null", "null", false},
		{"active true", `{"active":true,"video_title":"X"}`, true},
		{"active false", `{"active":false}`, false},
		{"no active field", `{"video_title":"X"}`, true},
		{"non-object", `"just a string"`, true},
		{"empty object", `{}`, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var data json.RawMessage
			if tc.data != "" {
				data = json.RawMessage(tc.data)
			}
			if got := PayloadActive(data); got != tc.want {
				t.Errorf("PayloadActive(%s) = %v, want %v", tc.data, got, tc.want)
			}
		})
	}
}

func TestRetractionWireFormat(t *testing.T) {
	raw, err := json.Marshal(NewRetraction("laptop-1", "youtube"))
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	s := string(raw)
	if !strings.Contains(s, `"widgets":[]`) {
		t.Errorf("retraction must carry an empty widget list, got %s", s)
	}
	if !strings.Contains(s, `"context":null`) {
		t.Errorf("retraction must carry a null context, got %s", s)
	}
}

func TestPluginUpdateKeepsTimestamp(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	upd := NewPluginUpdate("d", "p", []Widget{{Type: "label"}}, json.RawMessage(`{}`), ts)
	if !upd.Timestamp.Equal(ts) {
		t.Errorf("explicit timestamp should be preserved, got %v", upd.Timestamp)
	}
}

func TestNewCommandDefaultsArgs(t *testing.T) {
	cmd := NewCommand("d", "p", "pause", nil, "r1")
	if cmd.Args == nil {
		t.Error("args should default to an empty map, not null")
	}
	if cmd.RequestID != "r1" {
		t.Errorf("request id should pass through, got %q", cmd.RequestID)
	}
}
