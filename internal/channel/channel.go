// Package channel defines the chat-platform adapter contract shared by all
// concrete adapters (Telegram, Discord, and any future platform).
package channel

import (
	"context"
	"strings"
)

// Adapter is implemented once per chat platform. New platforms are added by
// implementing this interface; no core change is required.
type Adapter interface {
	Platform() string
	OwnsJID(jid string) bool
	SendMessage(ctx context.Context, jid, text string) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Connected() bool
}

// JID builds the platform-qualified chat address for a platform-native id.
func JID(platform, nativeID string) string {
	return platform + ":" + nativeID
}

// OwnsJID reports whether jid belongs to platform, per the address scheme
// "{platform}:{platform-native-id}".
func OwnsJID(platform, jid string) bool {
	return strings.HasPrefix(jid, platform+":")
}

// NativeID strips the "{platform}:" prefix from jid.
func NativeID(platform, jid string) string {
	return strings.TrimPrefix(jid, platform+":")
}

// ChunkMessage splits text into chunks no longer than maxLen, preferring to
// cut at a newline past the chunk's midpoint so messages don't break
// mid-sentence when a platform enforces a size limit.
func ChunkMessage(text string, maxLen int) []string {
	if len(text) <= maxLen {
		return []string{text}
	}

	var chunks []string
	for len(text) > 0 {
		if len(text) <= maxLen {
			chunks = append(chunks, text)
			break
		}

		cutAt := maxLen
		if idx := strings.LastIndex(text[:maxLen], "\n"); idx > maxLen/2 {
			cutAt = idx + 1
		}

		chunks = append(chunks, text[:cutAt])
		text = text[cutAt:]
	}

	return chunks
}
