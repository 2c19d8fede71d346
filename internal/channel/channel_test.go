package channel

import (
	"strings"
	"testing"
)

func TestJIDRoundTrip(t *testing.T) {
	jid := JID("telegram", "12345")
	if jid != "telegram:12345" {
		t.Fatalf("JID() = %q", jid)
	}
	if !OwnsJID("telegram", jid) {
		t.Fatal("expected telegram to own its own jid")
	}
	if OwnsJID("discord", jid) {
		t.Fatal("expected discord to not own a telegram jid")
	}
	if NativeID("telegram", jid) != "12345" {
		t.Fatalf("NativeID() = %q", NativeID("telegram", jid))
	}
}

func TestChunkMessageUnderLimit(t *testing.T) {
	chunks := ChunkMessage("short message", 100)
	if len(chunks) != 1 || chunks[0] != "short message" {
		t.Fatalf("unexpected chunks: %v", chunks)
	}
}

func TestChunkMessageSplitsOnNewlineNearLimit(t *testing.T) {
	text := strings.Repeat("a", 10) + "\n" + strings.Repeat("b", 10)
	chunks := ChunkMessage(text, 12)

	var rebuilt string
	for _, c := range chunks {
		rebuilt += c
		if len(c) > 12 {
			t.Fatalf("chunk exceeds maxLen: %d", len(c))
		}
	}
	if rebuilt != text {
		t.Fatalf("chunks do not reassemble to original text: %q vs %q", rebuilt, text)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected text longer than maxLen to be split, got %v", chunks)
	}
}

func TestChunkMessageHardSplitWithoutNewline(t *testing.T) {
	text := strings.Repeat("x", 30)
	chunks := ChunkMessage(text, 10)

	var rebuilt string
	for _, c := range chunks {
		rebuilt += c
	}
	if rebuilt != text {
		t.Fatalf("chunks do not reassemble: %q", rebuilt)
	}
}
