package store

import (
	"sync"
	"testing"
)

func TestRedeemAccessTokenSingleUse(t *testing.T) {
	s := newTestStore(t)

	ws := &Workspace{ID: "ws1", Name: "Workspace 1"}
	if err := s.SaveWorkspace(ws); err != nil {
		t.Fatalf("SaveWorkspace: %v", err)
	}

	tok := &AccessToken{ID: "tok1", TokenHash: []byte("hash"), Salt: []byte("salt"), WorkspaceID: ws.ID}
	if err := s.SaveAccessToken(tok); err != nil {
		t.Fatalf("SaveAccessToken: %v", err)
	}

	ok, err := s.RedeemAccessToken(tok.ID)
	if err != nil {
		t.Fatalf("RedeemAccessToken: %v", err)
	}
	if !ok {
		t.Fatal("expected first redemption to succeed")
	}

	ok, err = s.RedeemAccessToken(tok.ID)
	if err != nil {
		t.Fatalf("RedeemAccessToken second call: %v", err)
	}
	if ok {
		t.Fatal("expected second redemption to be rejected")
	}
}

func TestRedeemAccessTokenConcurrent(t *testing.T) {
	s := newTestStore(t)

	ws := &Workspace{ID: "ws1", Name: "Workspace 1"}
	s.SaveWorkspace(ws)
	tok := &AccessToken{ID: "tok1", TokenHash: []byte("hash"), Salt: []byte("salt"), WorkspaceID: ws.ID}
	s.SaveAccessToken(tok)

	const n = 10
	results := make([]bool, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, err := s.RedeemAccessToken(tok.ID)
			if err != nil {
				t.Errorf("RedeemAccessToken: %v", err)
				return
			}
			results[i] = ok
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, ok := range results {
		if ok {
			successes++
		}
	}
	if successes != 1 {
		t.Fatalf("expected exactly 1 successful redemption under concurrency, got %d", successes)
	}
}

func TestRedeemAccessTokenNotFound(t *testing.T) {
	s := newTestStore(t)
	ok, err := s.RedeemAccessToken("missing")
	if err != nil {
		t.Fatalf("RedeemAccessToken: %v", err)
	}
	if ok {
		t.Fatal("expected false for missing token")
	}
}

func TestChannelBindingRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ws := &Workspace{ID: "ws1", Name: "Workspace 1"}
	s.SaveWorkspace(ws)

	b := &ChannelBinding{ChannelJID: "telegram:1", WorkspaceID: ws.ID}
	if err := s.SaveChannelBinding(b); err != nil {
		t.Fatalf("SaveChannelBinding: %v", err)
	}

	got, err := s.GetChannelBinding(b.ChannelJID)
	if err != nil {
		t.Fatalf("GetChannelBinding: %v", err)
	}
	if got == nil || got.WorkspaceID != ws.ID {
		t.Fatalf("unexpected binding: %+v", got)
	}

	if err := s.DeleteChannelBinding(b.ChannelJID); err != nil {
		t.Fatalf("DeleteChannelBinding: %v", err)
	}
	got, _ = s.GetChannelBinding(b.ChannelJID)
	if got != nil {
		t.Fatal("expected binding gone after delete")
	}
}
