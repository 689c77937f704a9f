package hub

import "testing"

func TestMatch(t *testing.T) {
	meta := Meta{FileID: "VT-00001", AssignedTo: "Pavel"}
	cases := []struct {
		name string
		sub  Subscription
		want bool
	}{
		{"unsubscribed", Subscription{UserName: "Pavel"}, false},
		{"all", Subscription{Scope: ScopeAll}, true},
		{"same file", Subscription{Scope: ScopeFile, FileID: "VT-00001"}, true},
		{"other file", Subscription{Scope: ScopeFile, FileID: "VT-00002"}, false},
		{"mine assigned", Subscription{Scope: ScopeMine, UserName: "Pavel"}, true},
		{"mine not assigned", Subscription{Scope: ScopeMine, UserName: "Sara"}, false},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			if got := Match(tt.sub, meta); got != tt.want {
				t.Fatalf("Match()=%v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseSubscribe(t *testing.T) {
	cases := []struct {
		raw   string
		ok    bool
		scope string
		file  string
	}{
		{`{"action":"subscribe"}`, true, ScopeAll, ""},
		{`{"action":"subscribe","scope":"FILE","file_id":"vt-00001"}`, true, ScopeFile, "VT-00001"},
		{`{"action":"subscribe","scope":"file"}`, false, "", ""},
		{`{"action":"subscribe","scope":"mine"}`, true, ScopeMine, ""},
		{`{"action":"subscribe","scope":"everything"}`, false, "", ""},
		{`{"action":"unsubscribe"}`, true, "", ""},
		{`{"action":"ping"}`, false, "", ""},
		{`not json`, false, "", ""},
	}
	for _, tt := range cases {
		msg, ok := ParseSubscribe([]byte(tt.raw))
		if ok != tt.ok {
			t.Fatalf("ParseSubscribe(%s) ok=%v, want %v", tt.raw, ok, tt.ok)
		}
		if ok && msg.Action == "subscribe" && (msg.Scope != tt.scope || msg.FileID != tt.file) {
			t.Fatalf("ParseSubscribe(%s)=%+v", tt.raw, msg)
		}
	}
}

func TestBroadcastDeliversToMatchingClients(t *testing.T) {
	h := New()
	all := &Client{ID: "a", Send: make(chan []byte, 1), Subscription: Subscription{Scope: ScopeAll}}
	other := &Client{ID: "b", Send: make(chan []byte, 1), Subscription: Subscription{Scope: ScopeFile, FileID: "VT-00009"}}
	full := &Client{ID: "c", Send: make(chan []byte), Subscription: Subscription{Scope: ScopeAll}}
	h.Register(all)
	h.Register(other)
	h.Register(full)

	if n := h.Broadcast([]byte("x"), Meta{FileID: "VT-00001"}); n != 1 {
		t.Fatalf("expected 1 delivery, got %d", n)
	}
	if got := <-all.Send; string(got) != "x" {
		t.Fatalf("unexpected payload %q", got)
	}

	h.Unregister(all)
	h.Unregister(all)
	if h.Count() != 2 {
		t.Fatalf("expected 2 clients, got %d", h.Count())
	}
	if _, open := <-all.Send; open {
		t.Fatalf("expected send channel closed")
	}
}
