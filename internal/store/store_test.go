package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/nanogridbot/nanogridbot/internal/config"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := New(config.StoreConfig{Path: filepath.Join(dir, "test.db")})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestGroupRoundTrip(t *testing.T) {
	s := newTestStore(t)

	g := &Group{
		JID:             "telegram:123",
		Name:            "Test Group",
		Folder:          "test-group",
		RequiresTrigger: true,
		IsMain:          false,
	}
	if err := s.SaveGroup(g); err != nil {
		t.Fatalf("SaveGroup: %v", err)
	}

	got, err := s.GetGroup(g.JID)
	if err != nil {
		t.Fatalf("GetGroup: %v", err)
	}
	if got == nil {
		t.Fatal("GetGroup returned nil")
	}
	if got.Folder != g.Folder || got.Name != g.Name || !got.RequiresTrigger {
		t.Fatalf("round trip mismatch: %+v", got)
	}

	g.Name = "Renamed"
	if err := s.SaveGroup(g); err != nil {
		t.Fatalf("SaveGroup update: %v", err)
	}
	got, _ = s.GetGroup(g.JID)
	if got.Name != "Renamed" {
		t.Fatalf("expected updated name, got %q", got.Name)
	}

	if err := s.DeleteGroup(g.JID); err != nil {
		t.Fatalf("DeleteGroup: %v", err)
	}
	got, _ = s.GetGroup(g.JID)
	if got != nil {
		t.Fatal("expected nil after delete")
	}
}

func TestGetGroupNotFound(t *testing.T) {
	s := newTestStore(t)
	got, err := s.GetGroup("nonexistent")
	if err != nil {
		t.Fatalf("GetGroup: %v", err)
	}
	if got != nil {
		t.Fatal("expected nil for missing group")
	}
}

func TestMessagesSinceStrictlyGreaterThan(t *testing.T) {
	s := newTestStore(t)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	msgs := []Message{
		{ID: "1", ChatJID: "c1", Sender: "u1", Content: "a", Timestamp: base, Role: RoleUser},
		{ID: "2", ChatJID: "c1", Sender: "u1", Content: "b", Timestamp: base.Add(time.Second), Role: RoleUser},
		{ID: "3", ChatJID: "c1", Sender: "u1", Content: "c", Timestamp: base.Add(2 * time.Second), Role: RoleUser},
	}
	for i := range msgs {
		if err := s.SaveMessage(&msgs[i]); err != nil {
			t.Fatalf("SaveMessage: %v", err)
		}
	}

	got, err := s.MessagesSince(base)
	if err != nil {
		t.Fatalf("MessagesSince: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 messages strictly after base, got %d", len(got))
	}
	if got[0].ID != "2" || got[1].ID != "3" {
		t.Fatalf("unexpected order: %+v", got)
	}
}

func TestDeleteOlderThan(t *testing.T) {
	s := newTestStore(t)

	old := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	recent := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	s.SaveMessage(&Message{ID: "old", ChatJID: "c1", Sender: "u", Content: "x", Timestamp: old, Role: RoleUser})
	s.SaveMessage(&Message{ID: "new", ChatJID: "c1", Sender: "u", Content: "y", Timestamp: recent, Role: RoleUser})

	n, err := s.DeleteOlderThan(time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("DeleteOlderThan: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 deleted, got %d", n)
	}

	got, _ := s.GetMessage("old")
	if got != nil {
		t.Fatal("expected old message deleted")
	}
	got, _ = s.GetMessage("new")
	if got == nil {
		t.Fatal("expected new message retained")
	}
}
