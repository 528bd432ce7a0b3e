package hub

import "testing"

func TestDispatcherTrackAndResolve(t *testing.T) {
	d := NewCommandDispatcher(quietLogger())

	d.Track("r1", "conn-a")
	d.Track("r2", "conn-b")
	if d.PendingCount() != 2 {
		t.Fatalf("expected 2 pending, got %d", d.PendingCount())
	}

	origin, ok := d.Resolve("r1")
	if !ok || origin != "conn-a" {
		t.Fatalf("expected (conn-a, true), got (%q, %v)", origin, ok)
	}
	if d.PendingCount() != 1 {
		t.Errorf("resolved request should be cleared, %d pending", d.PendingCount())
	}

	// A second resolve of the same id misses.
	if _, ok := d.Resolve("r1"); ok {
		t.Error("resolving an already-cleared request should miss")
	}
}

func TestDispatcherIgnoresEmptyRequestID(t *testing.T) {
	d := NewCommandDispatcher(quietLogger())

	d.Track("", "conn-a")
	if d.PendingCount() != 0 {
		t.Error("fire-and-forget commands must not be tracked")
	}
	if _, ok := d.Resolve(""); ok {
		t.Error("empty request id must never resolve")
	}
}

func TestDispatcherDropClient(t *testing.T) {
	d := NewCommandDispatcher(quietLogger())

	d.Track("r1", "conn-a")
	d.Track("r2", "conn-a")
	d.Track("r3", "conn-b")

	d.DropClient("conn-a")
	if d.PendingCount() != 1 {
		t.Fatalf("expected only conn-b's request to survive, %d pending", d.PendingCount())
	}
	if origin, ok := d.Resolve("r3"); !ok || origin != "conn-b" {
		t.Errorf("unrelated request must survive, got (%q, %v)", origin, ok)
	}
}
