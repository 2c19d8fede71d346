package router

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nanogridbot/nanogridbot/internal/config"
	"github.com/nanogridbot/nanogridbot/internal/store"
)

type fakeAdapter struct {
	prefix string
	sent   []string
}

func (a *fakeAdapter) OwnsJID(jid string) bool { return strings.HasPrefix(jid, a.prefix) }

func (a *fakeAdapter) SendMessage(ctx context.Context, jid, text string) error {
	a.sent = append(a.sent, jid+":"+text)
	return nil
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	dir := t.TempDir()
	s, err := store.New(config.StoreConfig{Path: filepath.Join(dir, "test.db")})
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRouteUnregisteredChatReturnsNoMatch(t *testing.T) {
	s := newTestStore(t)
	r := New(s, "NanoGridBot", nil)

	match, err := r.Route(&store.Message{ChatJID: "unknown", Content: "hello"})
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if match != nil {
		t.Fatal("expected nil match for unregistered chat")
	}
}

func TestRouteWithoutTriggerAlwaysMatches(t *testing.T) {
	s := newTestStore(t)
	s.SaveGroup(&store.Group{JID: "c1", Name: "G", Folder: "g1", RequiresTrigger: false})
	r := New(s, "NanoGridBot", nil)

	match, err := r.Route(&store.Message{ChatJID: "c1", Content: "anything at all"})
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if match == nil || match.GroupFolder != "g1" {
		t.Fatalf("expected match for no-trigger group, got %+v", match)
	}
}

func TestRouteWithDefaultTriggerPattern(t *testing.T) {
	s := newTestStore(t)
	s.SaveGroup(&store.Group{JID: "c1", Name: "G", Folder: "g1", RequiresTrigger: true})
	r := New(s, "NanoGridBot", nil)

	match, err := r.Route(&store.Message{ChatJID: "c1", Content: "@nanogridbot do a thing"})
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if match == nil {
		t.Fatal("expected default trigger pattern to match case-insensitively")
	}

	match, err = r.Route(&store.Message{ChatJID: "c1", Content: "no trigger here"})
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if match != nil {
		t.Fatal("expected no match without the trigger prefix")
	}
}

func TestRouteWithCustomTriggerPattern(t *testing.T) {
	s := newTestStore(t)
	s.SaveGroup(&store.Group{JID: "c1", Name: "G", Folder: "g1", RequiresTrigger: true, TriggerPattern: `(?i)^hey bot\b`})
	r := New(s, "NanoGridBot", nil)

	match, _ := r.Route(&store.Message{ChatJID: "c1", Content: "Hey Bot, what's up"})
	if match == nil {
		t.Fatal("expected custom trigger pattern to match")
	}
}

func TestRouteInvalidPatternIsNonMatch(t *testing.T) {
	s := newTestStore(t)
	s.SaveGroup(&store.Group{JID: "c1", Name: "G", Folder: "g1", RequiresTrigger: true, TriggerPattern: "(unclosed"})
	r := New(s, "NanoGridBot", nil)

	match, err := r.Route(&store.Message{ChatJID: "c1", Content: "anything"})
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if match != nil {
		t.Fatal("expected invalid regex to be treated as non-match, not an error")
	}
}

func TestSendResponseNoOwningAdapter(t *testing.T) {
	s := newTestStore(t)
	r := New(s, "NanoGridBot", nil)

	err := r.SendResponse(context.Background(), "telegram:1", "hi")
	if err == nil {
		t.Fatal("expected error when no adapter owns jid")
	}
}

func TestSendResponseDispatchesToOwningAdapter(t *testing.T) {
	s := newTestStore(t)
	tg := &fakeAdapter{prefix: "telegram:"}
	r := New(s, "NanoGridBot", []Adapter{tg})

	if err := r.SendResponse(context.Background(), "telegram:1", "hi"); err != nil {
		t.Fatalf("SendResponse: %v", err)
	}
	if len(tg.sent) != 1 || tg.sent[0] != "telegram:1:hi" {
		t.Fatalf("unexpected sent messages: %v", tg.sent)
	}
}

func TestBroadcastFiltersByFolder(t *testing.T) {
	s := newTestStore(t)
	s.SaveGroup(&store.Group{JID: "telegram:1", Name: "G1", Folder: "f1"})
	s.SaveGroup(&store.Group{JID: "telegram:2", Name: "G2", Folder: "f2"})

	tg := &fakeAdapter{prefix: "telegram:"}
	r := New(s, "NanoGridBot", []Adapter{tg})

	sent, err := r.Broadcast(context.Background(), "announcement", []string{"f1"})
	if err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	if len(sent) != 1 || sent[0] != "telegram:1" {
		t.Fatalf("unexpected broadcast targets: %v", sent)
	}
	if len(tg.sent) != 1 {
		t.Fatalf("expected exactly one dispatched message, got %v", tg.sent)
	}
}
