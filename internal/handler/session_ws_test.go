package handler

import "testing"

func TestEvictedConnectionIsNotCurrentAtUnregister(t *testing.T) {
	h := NewSessionWSHandler()

	first := &wsClient{identity: "alice"}
	second := &wsClient{identity: "alice"}

	if old := h.register("s1", first); old != nil {
		t.Fatalf("first registration evicted %v", old)
	}
	if old := h.register("s1", second); old != first {
		t.Fatal("second registration should evict the first connection")
	}

	// The stale read loop unwinds after the reconnect took over; it must not
	// count as the current connection, or it would mark a live participant
	// disconnected.
	if h.unregister("s1", first) {
		t.Fatal("evicted connection reported as current")
	}
	if h.conns["s1"]["alice"] != second {
		t.Fatal("replacement connection lost its registration")
	}

	if !h.unregister("s1", second) {
		t.Fatal("current connection should unregister as current")
	}
	if _, ok := h.conns["s1"]; ok {
		t.Fatal("empty session should be dropped from the connection map")
	}
}

func TestUnregisterUnknownSessionIsNotCurrent(t *testing.T) {
	h := NewSessionWSHandler()
	if h.unregister("nope", &wsClient{identity: "alice"}) {
		t.Fatal("unknown session reported a current connection")
	}
}
